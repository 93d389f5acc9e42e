package ports

import "time"

// Clock abstracts the wall clock so that phase derivation stays a pure
// function of (round, now) and tests can pin any instant.
type Clock interface {
	Now() time.Time
}
