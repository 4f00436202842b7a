package fmrest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// TokenHeader is the response header that carries a new session token.
const TokenHeader = "X-FM-Data-Access-Token"

// IdentityProvider supplies Claris ID tokens for session creation.
// *cloud.IdentityClient satisfies it.
type IdentityProvider interface {
	FetchToken(ctx context.Context) (string, error)
	ExpireToken(ctx context.Context) error
}

var errNoTokenInResponse = errors.New("fmrest: session response carried no token")

// sessionAuth creates Data API sessions with whichever credential the
// settings carry.
type sessionAuth struct {
	sessionsURL string
	transport   http.RoundTripper
	strategy    Strategy
	username    string
	password    string
	fmidToken   string
	identity    IdentityProvider
}

// canLogin reports whether a new session can be created at all.
func (a *sessionAuth) canLogin() bool {
	return a.strategy != StrategyToken
}

func (a *sessionAuth) authorize(ctx context.Context, req *http.Request) error {
	switch a.strategy {
	case StrategyBasic:
		req.SetBasicAuth(a.username, a.password)
	case StrategyFMID:
		req.Header.Set("Authorization", "FMID "+a.fmidToken)
	case StrategyClarisID:
		token, err := a.identity.FetchToken(ctx)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "FMID "+token)
	default:
		return ErrNoRefreshableSession
	}
	return nil
}

// login POSTs to the sessions endpoint and returns the new session token.
func (a *sessionAuth) login(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.sessionsURL, strings.NewReader("{}"))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	if err := a.authorize(ctx, req); err != nil {
		return "", err
	}

	resp, err := a.transport.RoundTrip(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}

	if err := CheckBody(body); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			apiErr.HTTPStatus = resp.StatusCode
		}
		return "", err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &HTTPError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	if token := resp.Header.Get(TokenHeader); token != "" {
		return token, nil
	}
	if token := gjson.GetBytes(body, "response.token").String(); token != "" {
		return token, nil
	}
	return "", errNoTokenInResponse
}
