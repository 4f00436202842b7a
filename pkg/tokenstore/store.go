// Package tokenstore holds Data API session tokens and identity tokens
// between requests. Keys are opaque scope strings built by the caller.
package tokenstore

import "context"

// Store persists opaque tokens by scope key.
//
// Load reports found=false for a missing key and never treats absence as an
// error. Delete of a missing key is a no-op. Backend failures are returned
// unwrapped so callers see the driver's own error.
type Store interface {
	Load(ctx context.Context, key string) (token string, found bool, err error)
	Store(ctx context.Context, key, token string) error
	Delete(ctx context.Context, key string) error
}
