package fmrest

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/beezwax/fmrest-go/pkg/httpx"
)

// AuthErrorRetry re-sends a request once when it fails with an account
// error (codes 200-299), after expiring the cached Claris ID token so the
// next session is created with a fresh one.
type AuthErrorRetry struct {
	Next     http.RoundTripper
	Identity IdentityProvider
	Logger   *slog.Logger
}

func (a *AuthErrorRetry) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	next := transportOrDefault(a.Next)

	orig := req.Clone(ctx)
	if err := httpx.MakeReplayable(orig); err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		r, err := httpx.CloneForRetry(orig, attempt)
		if err != nil {
			return nil, err
		}

		resp, err := next.RoundTrip(r)
		if err == nil || attempt >= maxAuthRetries || !errors.Is(err, ErrAccount) {
			return resp, err
		}

		if a.Logger != nil {
			a.Logger.InfoContext(ctx, "account error, expiring claris id token", "err", err)
		}
		if err := a.Identity.ExpireToken(ctx); err != nil {
			return nil, err
		}
	}
}
