// Package cloud obtains Claris ID tokens for FileMaker Cloud hosts.
//
// Claris ID is an AWS Cognito user pool. IdentityClient signs in with the
// Secure Remote Password flow (USER_SRP_AUTH), renews with the refresh token
// and keeps both tokens in a tokenstore.Store so that every client sharing
// the store reuses one identity session.
package cloud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider/types"
	"github.com/beezwax/fmrest-go/pkg/httpx"
	"github.com/beezwax/fmrest-go/pkg/tokenstore"
	"golang.org/x/sync/singleflight"
)

// ErrNoAuthResult is returned when Cognito completes a flow without tokens.
var ErrNoAuthResult = errors.New("cloud: cognito returned no authentication result")

type Config struct {
	PoolID   string
	ClientID string
	Region   string
	Proxy    string

	Username string
	Password string

	// TOTPSecret answers SOFTWARE_TOKEN_MFA challenges.
	TOTPSecret string

	// Store holds the id and refresh tokens. Required.
	Store tokenstore.Store

	// API overrides the Cognito client built from Region and Proxy.
	API CognitoAPI

	// Timeout bounds a shared renewal, which no single caller can cancel.
	// Zero leaves it unbounded.
	Timeout time.Duration

	Logger *slog.Logger
}

// IdentityClient fetches and expires Claris ID tokens for one user.
type IdentityClient struct {
	cfg    Config
	api    CognitoAPI
	log    *slog.Logger
	flight singleflight.Group
	now    func() time.Time
}

// NewIdentityClient validates cfg and, unless cfg.API is set, builds a
// Cognito client for cfg.Region.
func NewIdentityClient(ctx context.Context, cfg Config) (*IdentityClient, error) {
	if cfg.Store == nil {
		return nil, errors.New("cloud: token store is required")
	}
	if cfg.PoolID == "" || cfg.ClientID == "" {
		return nil, errors.New("cloud: cognito pool id and client id are required")
	}
	if cfg.Username == "" || cfg.Password == "" {
		return nil, errors.New("cloud: username and password are required")
	}

	api := cfg.API
	if api == nil {
		c, err := NewCognitoAPI(ctx, cfg.Region, cfg.Proxy)
		if err != nil {
			return nil, err
		}
		api = c
	}

	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &IdentityClient{
		cfg: cfg,
		api: api,
		log: log.With("component", "claris_id", "pool_id", cfg.PoolID),
		now: time.Now,
	}, nil
}

// Scope is the store key prefix shared by this user's tokens. The username
// has '%' and ':' percent-encoded so it cannot reach into the key suffix.
func (c *IdentityClient) Scope() string {
	return "claris:" + c.cfg.PoolID + ":" + scopeEscaper.Replace(c.cfg.Username)
}

var scopeEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

func (c *IdentityClient) idKey() string      { return c.Scope() + ":id_token" }
func (c *IdentityClient) refreshKey() string { return c.Scope() + ":refresh_token" }

// FetchToken returns a Claris ID token, from the store when possible, then by
// refreshing, and finally by a full sign in.
func (c *IdentityClient) FetchToken(ctx context.Context) (string, error) {
	token, found, err := c.cfg.Store.Load(ctx, c.idKey())
	if err != nil {
		return "", err
	}
	if found && !c.expired(token) {
		return token, nil
	}

	token, _, err = httpx.SharedCall(ctx, &c.flight, c.Scope(), c.cfg.Timeout, c.renew)
	return token, err
}

// ExpireToken discards the id token. The refresh token is kept so the next
// FetchToken can renew without the password.
func (c *IdentityClient) ExpireToken(ctx context.Context) error {
	c.log.DebugContext(ctx, "expiring claris id token")
	return c.cfg.Store.Delete(ctx, c.idKey())
}

// expired reports whether token carries an exp claim in the past. Tokens
// that cannot be parsed are trusted and left for the server to judge.
func (c *IdentityClient) expired(token string) bool {
	exp, err := TokenExpiry(token)
	if err != nil {
		return false
	}
	return !c.now().Before(exp)
}

func (c *IdentityClient) renew(ctx context.Context) (string, error) {
	refresh, found, err := c.cfg.Store.Load(ctx, c.refreshKey())
	if err != nil {
		return "", err
	}

	if found {
		res, err := c.refresh(ctx, refresh)
		switch {
		case err == nil:
			return c.save(ctx, res)
		case isNotAuthorized(err):
			c.log.InfoContext(ctx, "claris id refresh token rejected, signing in again")
		default:
			return "", err
		}
	}

	res, err := c.signIn(ctx)
	if err != nil {
		return "", err
	}
	return c.save(ctx, res)
}

func (c *IdentityClient) save(ctx context.Context, res *types.AuthenticationResultType) (string, error) {
	idToken := aws.ToString(res.IdToken)
	if idToken == "" {
		return "", ErrNoAuthResult
	}

	if err := c.cfg.Store.Store(ctx, c.idKey(), idToken); err != nil {
		return "", err
	}
	if rt := aws.ToString(res.RefreshToken); rt != "" {
		if err := c.cfg.Store.Store(ctx, c.refreshKey(), rt); err != nil {
			return "", err
		}
	}

	attrs := []any{}
	if exp, err := TokenExpiry(idToken); err == nil {
		attrs = append(attrs, "expires_at", exp)
	}
	c.log.DebugContext(ctx, "claris id token issued", attrs...)

	return idToken, nil
}

func (c *IdentityClient) refresh(ctx context.Context, refreshToken string) (*types.AuthenticationResultType, error) {
	out, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeRefreshTokenAuth,
		ClientId: aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{
			"REFRESH_TOKEN": refreshToken,
		},
	})
	if err != nil {
		return nil, err
	}
	if out.AuthenticationResult == nil {
		return nil, ErrNoAuthResult
	}
	return out.AuthenticationResult, nil
}

func (c *IdentityClient) signIn(ctx context.Context) (*types.AuthenticationResultType, error) {
	srp, err := newSRPSessionRandom(c.cfg.PoolID)
	if err != nil {
		return nil, err
	}

	started, err := c.api.InitiateAuth(ctx, &cip.InitiateAuthInput{
		AuthFlow: types.AuthFlowTypeUserSrpAuth,
		ClientId: aws.String(c.cfg.ClientID),
		AuthParameters: map[string]string{
			"USERNAME": c.cfg.Username,
			"SRP_A":    srp.srpA(),
		},
	})
	if err != nil {
		return nil, err
	}
	if started.ChallengeName != types.ChallengeNameTypePasswordVerifier {
		return nil, fmt.Errorf("cloud: unexpected challenge %q", started.ChallengeName)
	}

	claim, err := srp.passwordClaim(started.ChallengeParameters, c.cfg.Password, c.now())
	if err != nil {
		return nil, err
	}

	resp, err := c.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
		ChallengeName:      types.ChallengeNameTypePasswordVerifier,
		ClientId:           aws.String(c.cfg.ClientID),
		ChallengeResponses: claim,
		Session:            started.Session,
	})
	if err != nil {
		return nil, err
	}

	if resp.ChallengeName == types.ChallengeNameTypeSoftwareTokenMfa {
		code, err := mfaCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return nil, err
		}

		resp, err = c.api.RespondToAuthChallenge(ctx, &cip.RespondToAuthChallengeInput{
			ChallengeName: types.ChallengeNameTypeSoftwareTokenMfa,
			ClientId:      aws.String(c.cfg.ClientID),
			ChallengeResponses: map[string]string{
				"USERNAME":                claim["USERNAME"],
				"SOFTWARE_TOKEN_MFA_CODE": code,
			},
			Session: resp.Session,
		})
		if err != nil {
			return nil, err
		}
	}

	if resp.AuthenticationResult == nil {
		if resp.ChallengeName != "" {
			return nil, fmt.Errorf("cloud: unsupported challenge %q", resp.ChallengeName)
		}
		return nil, ErrNoAuthResult
	}
	return resp.AuthenticationResult, nil
}

func isNotAuthorized(err error) bool {
	var nae *types.NotAuthorizedException
	return errors.As(err, &nae)
}
