package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/beezwax/fmrest-go/pkg/fmrest"
	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ErrConfigNotFound is returned when an explicitly named config file does
// not exist.
var ErrConfigNotFound = errors.New("config file not found")

// DefaultFileName is looked up in the working directory when no path is given.
const DefaultFileName = "fmrest.yaml"

type CognitoConfig struct {
	PoolID     string `yaml:"pool_id,omitempty"`
	ClientID   string `yaml:"client_id,omitempty"`
	Region     string `yaml:"region,omitempty"`
	TOTPSecret string `yaml:"totp_secret,omitempty"`
}

type LogConfig struct {
	Level    string `yaml:"level"`    // debug, info, warn, error (default: info)
	Format   string `yaml:"format"`   // json, text (default: text)
	Requests bool   `yaml:"requests"` // log every Data API request
}

type Config struct {
	Host       string        `yaml:"host"`
	Database   string        `yaml:"database"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password,omitempty"`
	Token      string        `yaml:"token,omitempty"`
	FMIDToken  string        `yaml:"fmid_token,omitempty"`
	Cloud      string        `yaml:"cloud,omitempty"` // auto, on, off (default: auto)
	Cognito    CognitoConfig `yaml:"cognito,omitempty"`
	Proxy      string        `yaml:"proxy,omitempty"`
	APIVersion string        `yaml:"api_version,omitempty"`
	Timeout    time.Duration `yaml:"timeout,omitempty"`
	Log        LogConfig     `yaml:"log"`
	TokenStore StoreConfig   `yaml:"token_store"`

	LoginLimit httpx.RateLimitConfig `yaml:"-"`
}

// Load reads path (or DefaultFileName when path is empty and the file
// exists) and then applies FMREST_* environment overrides. A .env file in
// the working directory is loaded into the environment first.
func Load(path string) (Config, error) {
	loadDotEnv()

	cfg := Config{
		Cloud:   string(fmrest.CloudAuto),
		Timeout: fmrest.DefaultTimeout,
		Log:     LogConfig{Level: "info", Format: "text"},
	}

	explicit := path != ""
	if !explicit {
		path = DefaultFileName
	}

	if err := readFile(path, &cfg); err != nil {
		if !errors.Is(err, ErrConfigNotFound) || explicit {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

// loadDotEnv loads ./.env if present. Variables already set win.
func loadDotEnv() {
	_ = godotenv.Load()
}

func readFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrConfigNotFound
		}
		return err
	}
	return yaml.Unmarshal(data, cfg)
}

func applyEnv(cfg *Config) {
	cfg.Host = getEnvOrDefault("FMREST_HOST", cfg.Host)
	cfg.Database = getEnvOrDefault("FMREST_DATABASE", cfg.Database)
	cfg.Username = getEnvOrDefault("FMREST_USERNAME", cfg.Username)
	cfg.Password = getEnvOrDefault("FMREST_PASSWORD", cfg.Password)
	cfg.Token = getEnvOrDefault("FMREST_TOKEN", cfg.Token)
	cfg.FMIDToken = getEnvOrDefault("FMREST_FMID_TOKEN", cfg.FMIDToken)
	cfg.Cloud = strings.ToLower(getEnvOrDefault("FMREST_CLOUD", cfg.Cloud))
	cfg.Proxy = getEnvOrDefault("FMREST_PROXY", cfg.Proxy)
	cfg.APIVersion = getEnvOrDefault("FMREST_API_VERSION", cfg.APIVersion)
	cfg.Timeout = getEnvDurationOrDefault("FMREST_TIMEOUT", cfg.Timeout)

	cfg.Cognito.PoolID = getEnvOrDefault("FMREST_COGNITO_POOL_ID", cfg.Cognito.PoolID)
	cfg.Cognito.ClientID = getEnvOrDefault("FMREST_COGNITO_CLIENT_ID", cfg.Cognito.ClientID)
	cfg.Cognito.Region = getEnvOrDefault("FMREST_COGNITO_REGION", cfg.Cognito.Region)
	cfg.Cognito.TOTPSecret = getEnvOrDefault("FMREST_COGNITO_TOTP_SECRET", cfg.Cognito.TOTPSecret)

	cfg.Log.Level = getEnvOrDefault("FMREST_LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnvOrDefault("FMREST_LOG_FORMAT", cfg.Log.Format)
	cfg.Log.Requests = getEnvBoolOrDefault("FMREST_LOG", cfg.Log.Requests)

	cfg.TokenStore.Kind = strings.ToLower(getEnvOrDefault("FMREST_TOKEN_STORE", cfg.TokenStore.Kind))
	cfg.TokenStore.DSN = getEnvOrDefault("FMREST_TOKEN_STORE_DSN", cfg.TokenStore.DSN)
	cfg.TokenStore.Table = getEnvOrDefault("FMREST_TOKEN_STORE_TABLE", cfg.TokenStore.Table)
	cfg.TokenStore.Prefix = getEnvOrDefault("FMREST_TOKEN_STORE_PREFIX", cfg.TokenStore.Prefix)
	cfg.TokenStore.TTL = getEnvDurationOrDefault("FMREST_TOKEN_STORE_TTL", cfg.TokenStore.TTL)
	cfg.TokenStore.KeyFile = getEnvOrDefault("FMREST_TOKEN_STORE_KEY_FILE", cfg.TokenStore.KeyFile)

	cfg.LoginLimit = httpx.DefaultLoginLimit
}

// Settings converts the config into client settings. The token store is
// left unset; see OpenStore.
func (c Config) Settings() fmrest.Settings {
	return fmrest.Settings{
		Host:      c.Host,
		Database:  c.Database,
		Username:  c.Username,
		Password:  c.Password,
		Token:     c.Token,
		FMIDToken: c.FMIDToken,
		Cloud:     fmrest.CloudMode(c.Cloud),
		Cognito: fmrest.CognitoSettings{
			PoolID:     c.Cognito.PoolID,
			ClientID:   c.Cognito.ClientID,
			Region:     c.Cognito.Region,
			TOTPSecret: c.Cognito.TOTPSecret,
		},
		Proxy:      c.Proxy,
		Log:        c.Log.Requests,
		APIVersion: c.APIVersion,
		Timeout:    c.Timeout,
		LoginLimit: c.LoginLimit,
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	if b, err := strconv.ParseBool(value); err == nil {
		return b
	}

	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	// Try parsing as duration (e.g., "1h", "30m", "90s")
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}

	// Bare integers are seconds
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second
	}

	return defaultValue
}
