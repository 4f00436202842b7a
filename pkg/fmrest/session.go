package fmrest

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/beezwax/fmrest-go/pkg/slogx"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"golang.org/x/sync/singleflight"
)

// maxAuthRetries bounds how many times a request is re-sent after the
// server rejects its credentials.
const maxAuthRetries = 1

type logoutKey struct{}

// withLogout marks a request as the session-ending DELETE.
func withLogout(ctx context.Context) context.Context {
	return context.WithValue(ctx, logoutKey{}, true)
}

func isLogout(ctx context.Context) bool {
	v, _ := ctx.Value(logoutKey{}).(bool)
	return v
}

// TokenSession is an http.RoundTripper that attaches a Data API session
// token to every request. It creates the session on first use, remembers the
// token in a tokenstore.Store and, when the server answers 401, discards the
// token, logs in again and re-sends the request once.
type TokenSession struct {
	next    http.RoundTripper
	store   tokenstore.Store
	key     string
	auth    *sessionAuth
	limiter *httpx.KeyedLimiter
	log     *slog.Logger
	logins  singleflight.Group

	// timeout bounds a shared login, which no single caller can cancel.
	timeout time.Duration

	// preset is a caller supplied token, tried before the store until the
	// server rejects it once.
	preset         string
	presetRejected atomic.Bool
}

// ScopeKey is the store key this session's token lives under.
func (s *TokenSession) ScopeKey() string { return s.key }

func (s *TokenSession) RoundTrip(req *http.Request) (*http.Response, error) {
	if isLogout(req.Context()) {
		return s.logout(req)
	}

	ctx := slogx.WithScope(req.Context(), s.key)

	orig := req.Clone(ctx)
	if err := httpx.MakeReplayable(orig); err != nil {
		return nil, err
	}

	token, fromPreset, err := s.token(ctx)
	if err != nil {
		return nil, err
	}

	for attempt := 0; ; attempt++ {
		r, err := httpx.CloneForRetry(orig, attempt)
		if err != nil {
			return nil, err
		}
		r.Header.Set("Authorization", "Bearer "+token)

		resp, err := s.next.RoundTrip(r)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusUnauthorized || attempt >= maxAuthRetries {
			return resp, nil
		}

		httpx.DrainAndClose(resp)
		s.log.DebugContext(ctx, "data api session rejected, renewing", "scope", s.key)

		if fromPreset {
			s.presetRejected.Store(true)
		}
		if err := s.store.Delete(ctx, s.key); err != nil {
			return nil, err
		}
		if !s.auth.canLogin() {
			return nil, ErrNoRefreshableSession
		}

		token, err = s.login(ctx, false)
		if err != nil {
			return nil, err
		}
		fromPreset = false
	}
}

// token returns the token to send first: the preset one, a stored one, or a
// freshly created session.
func (s *TokenSession) token(ctx context.Context) (string, bool, error) {
	if s.preset != "" && !s.presetRejected.Load() {
		return s.preset, true, nil
	}

	token, found, err := s.store.Load(ctx, s.key)
	if err != nil {
		return "", false, err
	}
	if found {
		return token, false, nil
	}

	if !s.auth.canLogin() {
		return "", false, ErrNoRefreshableSession
	}

	token, err = s.login(ctx, true)
	return token, false, err
}

// login creates a session and stores its token. Concurrent logins for the
// same scope share one request, which runs detached from any single caller's
// cancellation and is bounded by the session timeout. With reuse set, a
// token stored by a login that finished after the caller's lookup is
// returned instead.
func (s *TokenSession) login(ctx context.Context, reuse bool) (string, error) {
	token, shared, err := httpx.SharedCall(ctx, &s.logins, s.key, s.timeout, func(ctx context.Context) (string, error) {
		if reuse {
			token, found, err := s.store.Load(ctx, s.key)
			if err != nil {
				return "", err
			}
			if found {
				return token, nil
			}
		}

		if err := s.limiter.Wait(ctx, s.key); err != nil {
			return "", err
		}

		token, err := s.auth.login(ctx)
		if err != nil {
			s.log.WarnContext(ctx, "data api login failed", "scope", s.key, "err", err)
			return "", err
		}

		if err := s.store.Store(ctx, s.key, token); err != nil {
			return "", err
		}

		s.log.DebugContext(ctx, "data api session created", "scope", s.key, "strategy", s.auth.strategy.String())
		return token, nil
	})
	if err != nil {
		return "", err
	}

	if shared {
		s.log.DebugContext(ctx, "data api login shared", "scope", s.key)
	}
	return token, nil
}

// logout sends DELETE sessions/<token> without credentials and then clears
// the stored token whatever the outcome.
func (s *TokenSession) logout(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	token := s.preset
	if token == "" || s.presetRejected.Load() {
		stored, found, err := s.store.Load(ctx, s.key)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, ErrNoSessionToken
		}
		token = stored
	}

	r := req.Clone(ctx)
	u := *req.URL
	u.Path = strings.TrimSuffix(u.Path, "/") + "/" + token
	u.RawPath = ""
	r.URL = &u
	r.Header.Del("Authorization")

	resp, err := s.next.RoundTrip(r)

	// The session is gone or unusable either way, and a cancelled caller
	// must not leave the entry behind.
	delErr := s.store.Delete(context.WithoutCancel(ctx), s.key)
	if s.preset != "" {
		s.presetRejected.Store(true)
	}

	if err != nil {
		return nil, err
	}
	if delErr != nil {
		httpx.DrainAndClose(resp)
		return nil, delErr
	}

	s.log.DebugContext(ctx, "data api session closed", "scope", s.key, "status", resp.StatusCode)
	return resp, nil
}
