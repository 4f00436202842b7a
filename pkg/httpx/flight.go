package httpx

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"
)

// SharedCall runs fn once per key for all concurrent callers. fn gets a
// context that keeps the values of ctx but not its cancellation, bounded by
// timeout when positive, so the caller that started the call cannot fail it
// for the others. Each caller waits on its own ctx and returns ctx.Err() if
// that ends first; the call keeps running for the rest.
func SharedCall[T any](ctx context.Context, g *singleflight.Group, key string, timeout time.Duration, fn func(context.Context) (T, error)) (T, bool, error) {
	ch := g.DoChan(key, func() (any, error) {
		callCtx := context.WithoutCancel(ctx)
		if timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(callCtx, timeout)
			defer cancel()
		}
		return fn(callCtx)
	})

	var zero T
	select {
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return zero, res.Shared, res.Err
		}
		return res.Val.(T), res.Shared, nil
	}
}
