package tokenstore

import (
	"context"
	"time"
)

// Sealer encrypts values at rest. *cryptox.Sealer satisfies it.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// SealedBackend encrypts values before handing them to the wrapped Backend.
// Keys are stored in the clear.
type SealedBackend struct {
	backend Backend
	sealer  Sealer
}

func NewSealedBackend(backend Backend, sealer Sealer) *SealedBackend {
	return &SealedBackend{backend: backend, sealer: sealer}
}

func (b *SealedBackend) Get(ctx context.Context, key string) ([]byte, error) {
	sealed, err := b.backend.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return b.sealer.Open(sealed)
}

func (b *SealedBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	sealed, err := b.sealer.Seal(value)
	if err != nil {
		return err
	}
	return b.backend.Set(ctx, key, sealed, ttl)
}

func (b *SealedBackend) Delete(ctx context.Context, key string) error {
	return b.backend.Delete(ctx, key)
}
