package fmrest_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"

	"github.com/beezwax/fmrest-go/pkg/fmrest"
	"github.com/stretchr/testify/require"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// fakeIdentity issues id-1, id-2, ... and forgets the current token on expire.
type fakeIdentity struct {
	mu      sync.Mutex
	issued  int
	expired int
	current string
	err     error
}

func (f *fakeIdentity) FetchToken(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return "", f.err
	}
	if f.current == "" {
		f.issued++
		f.current = fmt.Sprintf("id-%d", f.issued)
	}
	return f.current, nil
}

func (f *fakeIdentity) ExpireToken(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.expired++
	f.current = ""
	return nil
}

func (f *fakeIdentity) expireCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.expired
}

func okResponse() *http.Response {
	return &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader("{}")), Header: http.Header{}}
}

func TestAuthErrorRetryExpiresAndRetriesOnce(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{}
	var bodies []string
	calls := 0

	rt := &fmrest.AuthErrorRetry{
		Identity: identity,
		Next: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls++
			b, _ := io.ReadAll(r.Body)
			bodies = append(bodies, string(b))
			if calls == 1 {
				return nil, fmrest.NewAPIError(212, "Invalid user account")
			}
			return okResponse(), nil
		}),
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, "https://fm.example.com/x", strings.NewReader(`{"a":1}`))
	require.NoError(t, err)

	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, 2, calls)
	require.Equal(t, 1, identity.expireCount())
	require.Equal(t, []string{`{"a":1}`, `{"a":1}`}, bodies)
}

func TestAuthErrorRetryGivesUpAfterOneRetry(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{}
	calls := 0

	rt := &fmrest.AuthErrorRetry{
		Identity: identity,
		Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
			calls++
			return nil, fmrest.NewAPIError(212, "Invalid user account")
		}),
	}

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://fm.example.com/x", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, fmrest.ErrAccount)
	require.Equal(t, 2, calls)
	require.Equal(t, 1, identity.expireCount())
}

func TestAuthErrorRetryIgnoresOtherErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
	}{
		{"record missing", fmrest.NewAPIError(401, "No records match the request")},
		{"invalid token", fmrest.NewAPIError(952, "Invalid FileMaker Data API token")},
		{"transport", errors.New("connection reset")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			identity := &fakeIdentity{}
			calls := 0
			rt := &fmrest.AuthErrorRetry{
				Identity: identity,
				Next: roundTripFunc(func(*http.Request) (*http.Response, error) {
					calls++
					return nil, tt.err
				}),
			}

			req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, "https://fm.example.com/x", nil)
			require.NoError(t, err)

			_, err = rt.RoundTrip(req)
			require.ErrorIs(t, err, tt.err)
			require.Equal(t, 1, calls)
			require.Zero(t, identity.expireCount())
		})
	}
}

func TestClarisIDPipeline(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{}
	f := newFixture(t, func(s *fmrest.Settings) { s.Cloud = fmrest.CloudOn }, fmrest.WithIdentityProvider(identity))

	// The first Claris ID token has been revoked server side.
	f.fake.failLogins(func(auth string) string {
		if auth == "FMID id-1" {
			return "212"
		}
		return ""
	})

	resp, err := f.get(t)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := f.fake.snapshot()
	require.Equal(t, []string{"FMID id-1", "FMID id-2"}, stats.loginAuth)
	require.Equal(t, []string{"Bearer tok-2"}, stats.dataAuth)
	require.Equal(t, 1, identity.expireCount())
}

func TestClarisIDPipelineBounded(t *testing.T) {
	t.Parallel()

	identity := &fakeIdentity{}
	f := newFixture(t, func(s *fmrest.Settings) { s.Cloud = fmrest.CloudOn }, fmrest.WithIdentityProvider(identity))
	f.fake.failLogins(func(string) string { return "212" })

	_, err := f.get(t)
	require.ErrorIs(t, err, fmrest.ErrAccount)
	require.Equal(t, 2, f.fake.loginCount())
	require.Equal(t, 1, identity.expireCount())
}

func TestClarisIDFetchErrorSurfaces(t *testing.T) {
	t.Parallel()

	errCognito := errors.New("cognito unavailable")
	identity := &fakeIdentity{err: errCognito}
	f := newFixture(t, func(s *fmrest.Settings) { s.Cloud = fmrest.CloudOn }, fmrest.WithIdentityProvider(identity))

	_, err := f.get(t)
	require.ErrorIs(t, err, errCognito)
	require.Zero(t, f.fake.requestCount())
}
