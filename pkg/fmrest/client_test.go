package fmrest_test

import (
	"context"
	"net/http"
	"testing"

	"github.com/beezwax/fmrest-go/pkg/fmrest"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"github.com/stretchr/testify/require"
)

func TestLogoutWithoutSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	err := f.client.Logout(context.Background())
	require.ErrorIs(t, err, fmrest.ErrNoSessionToken)
	require.False(t, f.client.TryLogout(context.Background()))
	require.Zero(t, f.fake.requestCount())
}

func TestLogoutEndsSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.get(t)
	require.NoError(t, err)

	require.NoError(t, f.client.Logout(context.Background()))

	stats := f.fake.snapshot()
	require.Equal(t, []string{"tok-1"}, stats.logouts)
	require.Equal(t, []string{""}, stats.logoutAuth, "logout must not send credentials")

	_, found := f.storedToken(t)
	require.False(t, found)

	// Nothing left to end.
	require.False(t, f.client.TryLogout(context.Background()))
	require.Len(t, f.fake.snapshot().logouts, 1)
}

func TestLogoutClearsStoreOnServerError(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	require.NoError(t, f.store.Store(context.Background(), f.client.ScopeKey(), "gone"))

	err := f.client.Logout(context.Background())
	require.ErrorIs(t, err, fmrest.ErrInvalidToken)

	_, found := f.storedToken(t)
	require.False(t, found)
}

func TestLogoutPresetToken(t *testing.T) {
	t.Parallel()
	f := newFixture(t, func(s *fmrest.Settings) {
		s.Username, s.Password = "", ""
		s.Token = "tok-preset"
	})
	f.fake.accept("tok-preset")

	require.True(t, f.client.TryLogout(context.Background()))
	require.Equal(t, []string{"tok-preset"}, f.fake.snapshot().logouts)

	require.ErrorIs(t, f.client.Logout(context.Background()), fmrest.ErrNoSessionToken)
}

func TestLogoutThenLoginAgain(t *testing.T) {
	t.Parallel()
	f := newFixture(t, nil)

	_, err := f.get(t)
	require.NoError(t, err)
	require.True(t, f.client.TryLogout(context.Background()))

	_, err = f.get(t)
	require.NoError(t, err)

	require.Equal(t, 2, f.fake.loginCount())
	token, _ := f.storedToken(t)
	require.Equal(t, "tok-2", token)
}

func TestNewClientReportsMissingSettings(t *testing.T) {
	t.Parallel()

	_, err := fmrest.NewClient(context.Background(), fmrest.Settings{Database: "Contacts", Username: "admin"})

	var cfgErr *fmrest.ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Equal(t, []string{"host", "password"}, cfgErr.Missing)
}

func TestNewClientRejectsBadProxy(t *testing.T) {
	t.Parallel()

	_, err := fmrest.NewClient(context.Background(), fmrest.Settings{
		Host:     "fm.example.com",
		Database: "Contacts",
		Username: "admin",
		Password: "secret",
		Proxy:    "://nope",
	})
	require.Error(t, err)
}

func TestClientURL(t *testing.T) {
	t.Parallel()

	c, err := fmrest.NewClient(context.Background(), fmrest.Settings{
		Host:       "fm.example.com",
		Database:   "My Contacts",
		Username:   "admin",
		Password:   "secret",
		TokenStore: tokenstore.Null{},
	})
	require.NoError(t, err)

	require.Equal(t, "https://fm.example.com/fmi/data/v1/databases/My%20Contacts/layouts", c.URL("/layouts"))
	require.Equal(t, "fm.example.com:My Contacts:user:admin", c.ScopeKey())
	require.Equal(t, fmrest.DefaultTimeout, c.Settings().Timeout)
	require.Equal(t, fmrest.CloudAuto, c.Settings().Cloud)
}

func TestNewTransport(t *testing.T) {
	t.Parallel()

	fake := newFakeDataAPI(t)
	rt, err := fmrest.NewTransport(context.Background(), fmrest.Settings{
		Host:       fake.URL(),
		Database:   testDatabase,
		Username:   "admin",
		Password:   "secret",
		TokenStore: tokenstore.NewKV(nil),
	})
	require.NoError(t, err)

	hc := &http.Client{Transport: rt}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, fake.URL()+basePath+"/layouts", nil)
	require.NoError(t, err)

	resp, err := hc.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, fake.loginCount())
}
