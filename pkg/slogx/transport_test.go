package slogx_test

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/beezwax/fmrest-go/pkg/idx"
	"github.com/beezwax/fmrest-go/pkg/slogx"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	var seenID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenID = r.Header.Get(slogx.RequestIDHeader)
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := slogx.New(slogx.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() { slog.SetDefault(slog.New(slog.DiscardHandler)) })

	client := &http.Client{Transport: &slogx.Transport{Logger: logger, Level: slog.LevelDebug}}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/fmi/data/v1/productInfo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer secret-token")

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	// A ULID request id is generated and forwarded
	_, err = idx.Parse(seenID)
	require.NoError(t, err)

	// The caller's request is not mutated
	require.Empty(t, req.Header.Get(slogx.RequestIDHeader))

	out := buf.String()
	require.Contains(t, out, `"msg":"http_request"`)
	require.Contains(t, out, `"status":204`)
	require.Contains(t, out, seenID)
	require.NotContains(t, out, "secret-token")
}

func TestTransportLogsScope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	client := &http.Client{Transport: &slogx.Transport{Logger: logger}}

	ctx := slogx.WithScope(context.Background(), "fm.example.com:Contacts:admin")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/fmi/data/v1/databases/Contacts/layouts", nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	out := buf.String()
	require.Contains(t, out, "scope=fm.example.com:Contacts:admin")
	require.Contains(t, out, "status=401")
}
