package cli

import (
	"errors"
	"net"

	"github.com/beezwax/fmrest-go/internal/config"
	"github.com/beezwax/fmrest-go/pkg/fmrest"
)

const (
	ExitSuccess         = 0
	ExitGeneralError    = 1
	ExitPanic           = 3
	ExitConfigError     = 10
	ExitAuthError       = 11
	ExitConnectionError = 12
)

// ExitCodeForError maps an error returned by a command to a process exit code.
func ExitCodeForError(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cfgErr *fmrest.ConfigError
	var opErr *net.OpError
	var dnsErr *net.DNSError

	switch {
	case errors.As(err, &cfgErr), errors.Is(err, config.ErrConfigNotFound):
		return ExitConfigError
	case errors.Is(err, fmrest.ErrAccount),
		errors.Is(err, fmrest.ErrInvalidToken),
		errors.Is(err, fmrest.ErrNoRefreshableSession),
		errors.Is(err, fmrest.ErrNoSessionToken):
		return ExitAuthError
	case errors.As(err, &opErr), errors.As(err, &dnsErr):
		return ExitConnectionError
	}

	return ExitGeneralError
}
