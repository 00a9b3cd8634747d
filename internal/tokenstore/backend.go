package tokenstore

import (
	"context"
	"errors"

	"github.com/aussiebroadwan/loyalty/pkg/cryptox"
)

var (
	ErrNotFound = errors.New("tokenstore: not found")
	ErrCorrupt  = errors.New("tokenstore: persisted session is unreadable")
)

// Backend is durable key/value storage for the persisted session. Concrete
// drivers (sqlite, memory) implement it.
type Backend interface {
	// Load returns the value stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)

	// Save replaces the value stored under key.
	Save(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	Close() error
}

// Sealed encrypts values at rest before handing them to the wrapped backend.
type Sealed struct {
	Backend
	Sealer *cryptox.Sealer
}

// Seal wraps b so every value is sealed with s.
func Seal(b Backend, s *cryptox.Sealer) *Sealed {
	return &Sealed{Backend: b, Sealer: s}
}

func (b *Sealed) Load(ctx context.Context, key string) ([]byte, error) {
	raw, err := b.Backend.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	plain, err := b.Sealer.Open(raw)
	if err != nil {
		return nil, errors.Join(ErrCorrupt, err)
	}
	return plain, nil
}

func (b *Sealed) Save(ctx context.Context, key string, value []byte) error {
	sealed, err := b.Sealer.Seal(value)
	if err != nil {
		return err
	}
	return b.Backend.Save(ctx, key, sealed)
}
