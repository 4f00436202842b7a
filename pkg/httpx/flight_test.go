package httpx_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/singleflight"
)

func TestSharedCallIgnoresStarterCancellation(t *testing.T) {
	var g singleflight.Group
	release := make(chan struct{})
	calls := 0

	fn := func(ctx context.Context) (string, error) {
		calls++
		select {
		case <-release:
			return "tok", ctx.Err()
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	starter := make(chan error, 1)
	go func() {
		_, _, err := httpx.SharedCall(ctx, &g, "scope", 0, fn)
		starter <- err
	}()

	time.Sleep(10 * time.Millisecond)
	joined := make(chan string, 1)
	go func() {
		v, shared, err := httpx.SharedCall(context.Background(), &g, "scope", 0, fn)
		if err != nil || !shared {
			joined <- "failed"
			return
		}
		joined <- v
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-starter, context.Canceled)

	close(release)
	require.Equal(t, "tok", <-joined)
	require.Equal(t, 1, calls)
}

func TestSharedCallTimeout(t *testing.T) {
	var g singleflight.Group

	_, _, err := httpx.SharedCall(context.Background(), &g, "scope", 20*time.Millisecond, func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSharedCallKeepsValues(t *testing.T) {
	type key struct{}
	var g singleflight.Group

	ctx := context.WithValue(context.Background(), key{}, "logger")
	v, _, err := httpx.SharedCall(ctx, &g, "scope", 0, func(ctx context.Context) (string, error) {
		s, ok := ctx.Value(key{}).(string)
		if !ok {
			return "", errors.New("value lost")
		}
		return s, nil
	})
	require.NoError(t, err)
	require.Equal(t, "logger", v)
}
