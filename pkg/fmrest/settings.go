package fmrest

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
)

// CloudMode selects whether Claris ID (FileMaker Cloud) authentication is used.
type CloudMode string

const (
	// CloudAuto enables Claris ID when the host is a FileMaker Cloud host.
	CloudAuto CloudMode = "auto"
	CloudOn   CloudMode = "on"
	CloudOff  CloudMode = "off"
)

// cloudHostSuffix identifies FileMaker Cloud hosts for CloudAuto.
const cloudHostSuffix = ".account.filemaker-cloud.com"

// Public Claris ID Cognito pool used by FileMaker Cloud.
const (
	DefaultCognitoPoolID   = "us-west-2_NqkuZcXQY"
	DefaultCognitoClientID = "4l9rvl4mv5es1eep1qe97cautn"
	DefaultCognitoRegion   = "us-west-2"
)

const (
	DefaultAPIVersion = "v1"
	DefaultTimeout    = 30 * time.Second
)

// sharedIdentity is the scope identity used when the settings carry no
// per-user credential (a pre-supplied session token only).
const sharedIdentity = "token:shared"

// scopeEscaper keeps ':' out of scope key parts so that distinct
// host/database/identity triples never join into the same key.
var scopeEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

type CognitoSettings struct {
	PoolID   string
	ClientID string
	Region   string

	// TOTPSecret answers SOFTWARE_TOKEN_MFA challenges for accounts with
	// authenticator app MFA enabled. Leave empty otherwise.
	TOTPSecret string
}

// Settings configures a client. It is validated once by NewClient and is
// treated as read-only afterwards.
type Settings struct {
	Host     string // e.g. "fm.example.com" or "https://fm.example.com:8443"
	Database string

	Username string
	Password string

	// Token is an existing Data API session token. When set, no login
	// happens until the server rejects it.
	Token string

	// FMIDToken is an existing Claris ID token, sent as "FMID <token>" when
	// creating a session.
	FMIDToken string

	// TokenStore holds session tokens between requests. Defaults to the
	// process-wide in-memory store.
	TokenStore tokenstore.Store

	Cloud   CloudMode
	Cognito CognitoSettings

	// Proxy is an http(s) proxy URL used for both Data API and Claris ID traffic.
	Proxy string

	// Log enables request logging at debug level.
	Log    bool
	Logger *slog.Logger

	APIVersion string
	Timeout    time.Duration

	// LoginLimit throttles session creation. The zero value disables it.
	LoginLimit httpx.RateLimitConfig
}

// Validate reports every missing required setting in a single *ConfigError.
func (s *Settings) Validate() error {
	var missing []string

	if strings.TrimSpace(s.Host) == "" {
		missing = append(missing, "host")
	}
	if strings.TrimSpace(s.Database) == "" {
		missing = append(missing, "database")
	}
	if s.Token == "" && s.FMIDToken == "" {
		if s.Username == "" {
			missing = append(missing, "username")
		}
		if s.Password == "" {
			missing = append(missing, "password")
		}
	}

	if len(missing) > 0 {
		return &ConfigError{Missing: missing}
	}
	return nil
}

// withDefaults returns a copy with unset optional fields filled in.
func (s Settings) withDefaults() Settings {
	if s.TokenStore == nil {
		s.TokenStore = tokenstore.NewMemory()
	}
	if s.Cloud == "" {
		s.Cloud = CloudAuto
	}
	if s.Cognito.PoolID == "" {
		s.Cognito.PoolID = DefaultCognitoPoolID
	}
	if s.Cognito.ClientID == "" {
		s.Cognito.ClientID = DefaultCognitoClientID
	}
	if s.Cognito.Region == "" {
		s.Cognito.Region = DefaultCognitoRegion
	}
	if s.Logger == nil {
		s.Logger = slog.Default()
	}
	if s.APIVersion == "" {
		s.APIVersion = DefaultAPIVersion
	}
	if s.Timeout == 0 {
		s.Timeout = DefaultTimeout
	}
	return s
}

// hostURL parses Host, assuming https when no scheme is given.
func (s *Settings) hostURL() *url.URL {
	host := strings.TrimSuffix(strings.TrimSpace(s.Host), "/")
	if !strings.Contains(host, "://") {
		host = "https://" + host
	}

	u, err := url.Parse(host)
	if err != nil {
		return &url.URL{Scheme: "https", Host: host}
	}
	return u
}

// Hostname is Host without scheme or port.
func (s *Settings) Hostname() string {
	return strings.ToLower(s.hostURL().Hostname())
}

// DatabaseURL is the base URL every database-scoped endpoint hangs off, e.g.
// https://fm.example.com/fmi/data/v1/databases/Contacts.
func (s *Settings) DatabaseURL() string {
	u := s.hostURL()
	version := s.APIVersion
	if version == "" {
		version = DefaultAPIVersion
	}
	return u.Scheme + "://" + u.Host + "/fmi/data/" + version + "/databases/" + url.PathEscape(s.Database)
}

// IsCloud reports whether Claris ID authentication applies.
func (s *Settings) IsCloud() bool {
	switch s.Cloud {
	case CloudOn:
		return true
	case CloudOff:
		return false
	default:
		return strings.HasSuffix(s.Hostname(), cloudHostSuffix)
	}
}

// Strategy describes how a session token is obtained.
type Strategy int

const (
	// StrategyToken only uses the pre-supplied session token.
	StrategyToken Strategy = iota
	// StrategyBasic logs in with username and password.
	StrategyBasic
	// StrategyFMID logs in with a pre-supplied Claris ID token.
	StrategyFMID
	// StrategyClarisID obtains a Claris ID token from Cognito, then logs in with it.
	StrategyClarisID
)

func (s Strategy) String() string {
	switch s {
	case StrategyBasic:
		return "basic"
	case StrategyFMID:
		return "fmid"
	case StrategyClarisID:
		return "claris_id"
	default:
		return "token"
	}
}

// Strategy picks the login method implied by the credentials present.
func (s *Settings) Strategy() Strategy {
	switch {
	case s.FMIDToken != "":
		return StrategyFMID
	case s.Username != "" && s.Password != "" && s.IsCloud():
		return StrategyClarisID
	case s.Username != "" && s.Password != "":
		return StrategyBasic
	default:
		return StrategyToken
	}
}

// ScopeKey identifies the session a token belongs to:
// "<hostname>:<database>:<identity>". The identity is tagged with the
// credential kind: "user:<name>", "claris:<name>", "fmid:sha256:<hex>" for a
// Claris ID token, or "token:shared" for token-only settings. Each free-form
// part has '%' and ':' percent-encoded.
func (s *Settings) ScopeKey() string {
	var identity string
	switch s.Strategy() {
	case StrategyFMID:
		sum := sha256.Sum256([]byte(s.FMIDToken))
		identity = "fmid:sha256:" + hex.EncodeToString(sum[:])
	case StrategyClarisID:
		identity = "claris:" + scopeEscaper.Replace(s.Username)
	case StrategyBasic:
		identity = "user:" + scopeEscaper.Replace(s.Username)
	default:
		identity = sharedIdentity
	}
	return scopeEscaper.Replace(s.Hostname()) + ":" + scopeEscaper.Replace(s.Database) + ":" + identity
}
