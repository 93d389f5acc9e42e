package badgerdb

import (
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/timshannon/badgerhold/v4"
)

const maxRetries = 5

// NewStore opens the single badgerhold store shared by every repository.
// Sharing one store lets multi-aggregate mutations (roster replacement and
// its ballot check) run inside one badger transaction. An empty dir opens
// an in-memory store.
func NewStore(dbDir string, logger badger.Logger) (*badgerhold.Store, error) {
	isInMemory := len(dbDir) <= 0

	opts := badger.DefaultOptions(dbDir)
	opts.Logger = logger

	if isInMemory {
		opts.InMemory = true
	} else {
		opts.Compression = options.ZSTD
	}

	db, err := badgerhold.Open(badgerhold.Options{
		Encoder:          badgerhold.DefaultEncode,
		Decoder:          badgerhold.DefaultDecode,
		SequenceBandwith: 100,
		Options:          opts,
	})
	if err != nil {
		return nil, err
	}

	if !isInMemory {
		ticker := time.NewTicker(30 * time.Minute)

		go func() {
			for {
				<-ticker.C
				if err := db.Badger().RunValueLogGC(0.5); err != nil && err != badger.ErrNoRewrite {
					if logger != nil {
						logger.Errorf("%s", err)
					}
				}
			}
		}()
	}

	return db, nil
}

func withRetry(op func() error) error {
	err := op()
	attempts := 1
	for err == badger.ErrConflict && attempts <= maxRetries {
		time.Sleep(100 * time.Millisecond)
		err = op()
		attempts++
	}
	return err
}
