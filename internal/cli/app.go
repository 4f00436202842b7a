package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/beezwax/fmrest-go/internal/config"
	"github.com/beezwax/fmrest-go/pkg/fmrest"
	"github.com/beezwax/fmrest-go/pkg/slogx"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"github.com/spf13/cobra"
)

// app is what every command needs: a configured client and its store.
type app struct {
	client     *fmrest.Client
	store      tokenstore.Store
	closeStore func() error
}

func openApp(cmd *cobra.Command, o *rootOptions) (*app, context.Context, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	applyFlags(cmd, o, &cfg)

	if cfg.TokenStore.Kind == "" {
		cfg.TokenStore.Kind = config.StoreFile
	}

	logger := slogx.New(slogx.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cmd.ErrOrStderr(),
	})
	ctx := slogx.WithContext(cmd.Context(), logger)

	store, closeStore, err := config.OpenStore(ctx, cfg.TokenStore)
	if err != nil {
		return nil, nil, err
	}

	settings := cfg.Settings()
	settings.TokenStore = store
	settings.Logger = logger

	client, err := fmrest.NewClient(ctx, settings)
	if err != nil {
		_ = closeStore()
		return nil, nil, err
	}

	logger.Debug("client ready",
		"scope", client.ScopeKey(),
		"strategy", settings.Strategy().String(),
		"store", cfg.TokenStore.Kind,
	)

	return &app{client: client, store: store, closeStore: closeStore}, ctx, nil
}

func applyFlags(cmd *cobra.Command, o *rootOptions, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = o.host
	}
	if flags.Changed("database") {
		cfg.Database = o.database
	}
	if flags.Changed("username") {
		cfg.Username = o.username
	}
	if flags.Changed("store") {
		cfg.TokenStore.Kind = o.store
	}
	if flags.Changed("store-dsn") {
		cfg.TokenStore.DSN = o.storeDSN
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if o.verbose {
		cfg.Log.Requests = true
		cfg.Log.Level = "debug"
	}
}

func (a *app) Close() {
	if err := a.closeStore(); err != nil {
		slog.Warn("failed to close token store", "err", err)
	}
}

// get sends GET path through the session pipeline and returns the body.
func (a *app) get(ctx context.Context, path string) ([]byte, error) {
	req, err := a.client.NewRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &fmrest.HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	return body, nil
}

// storedToken returns the session token currently held for the client's scope.
func (a *app) storedToken(ctx context.Context) (string, bool, error) {
	return a.store.Load(ctx, a.client.ScopeKey())
}
