package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
)

type User struct {
	Id            string
	WalletAddress string
	CreatedAt     time.Time
}

func NewUser(walletAddress string) *User {
	return &User{
		Id:            uuid.New().String(),
		WalletAddress: NormalizeAddress(walletAddress),
		CreatedAt:     time.Now(),
	}
}

// NormalizeAddress lowercases a wallet address so that lookups and
// uniqueness constraints are case-insensitive.
func NormalizeAddress(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

type UserRepository interface {
	// GetOrCreateUser resolves the user record for a wallet address,
	// creating it if missing. The upsert is idempotent and keyed by the
	// normalized address.
	GetOrCreateUser(ctx context.Context, walletAddress string) (*User, error)
	GetUserWithId(ctx context.Context, id string) (*User, error)
	Close()
}
