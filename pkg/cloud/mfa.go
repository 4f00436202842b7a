package cloud

import (
	"errors"
	"fmt"
	"time"

	"github.com/pquerna/otp/totp"
)

// ErrMFARequired is returned when Cognito asks for an authenticator code
// and no TOTP secret is configured.
var ErrMFARequired = errors.New("cloud: claris id account requires an authenticator app code")

// mfaCode produces the SOFTWARE_TOKEN_MFA_CODE for secret at now.
func mfaCode(secret string, now time.Time) (string, error) {
	if secret == "" {
		return "", ErrMFARequired
	}

	code, err := totp.GenerateCode(secret, now)
	if err != nil {
		return "", fmt.Errorf("cloud: generate totp code: %w", err)
	}
	return code, nil
}
