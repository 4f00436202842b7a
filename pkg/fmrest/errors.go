package fmrest

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// ============================================================================
// Error kinds
// ============================================================================

// Kind groups Data API error codes into the categories callers branch on.
type Kind int

const (
	KindUnknown Kind = iota
	KindResourceMissing
	KindRecordMissing
	KindAccount
	KindLock
	KindParameter
	KindValidation
	KindSystem
	KindInvalidToken
	KindCallLimit
	KindScript
	KindODBC
)

var kindNames = map[Kind]string{
	KindUnknown:         "unknown",
	KindResourceMissing: "resource_missing",
	KindRecordMissing:   "record_missing",
	KindAccount:         "account",
	KindLock:            "lock",
	KindParameter:       "parameter",
	KindValidation:      "validation",
	KindSystem:          "system",
	KindInvalidToken:    "invalid_token",
	KindCallLimit:       "call_limit",
	KindScript:          "script",
	KindODBC:            "odbc",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// codeRange is an inclusive span of error codes.
type codeRange struct {
	lo, hi int
	kind   Kind
}

// codeRanges is checked in order; the first match wins.
var codeRanges = []codeRange{
	{-1, -1, KindUnknown},
	{100, 100, KindResourceMissing},
	{101, 101, KindRecordMissing},
	{102, 199, KindResourceMissing},
	{200, 299, KindAccount},
	{300, 399, KindLock},
	{400, 499, KindParameter},
	{500, 599, KindValidation},
	{800, 899, KindSystem},
	{952, 952, KindInvalidToken},
	{953, 953, KindCallLimit},
	{1200, 1299, KindScript},
	{1400, 1499, KindODBC},
}

// KindForCode maps a non-zero Data API error code to its Kind. Codes outside
// every known range map to KindUnknown.
func KindForCode(code int) Kind {
	for _, r := range codeRanges {
		if code >= r.lo && code <= r.hi {
			return r.kind
		}
	}
	return KindUnknown
}

// ============================================================================
// APIError
// ============================================================================

// APIError is a non-zero code reported in a Data API messages envelope.
type APIError struct {
	// Code is the FileMaker error number, e.g. 401 (no records match).
	Code int

	// Message is the server supplied text for the code.
	Message string

	Kind Kind

	// HTTPStatus is the status of the response that carried the envelope,
	// zero when the error was raised from a decoded body alone.
	HTTPStatus int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("fmrest: FileMaker Data API responded with error %d: %s", e.Code, e.Message)
}

// Is reports whether target is the sentinel for e's kind, so callers can
// write errors.Is(err, fmrest.ErrAccount).
func (e *APIError) Is(target error) bool {
	k, ok := target.(kindSentinel)
	return ok && Kind(k) == e.Kind
}

// NewAPIError classifies code and builds the matching error.
func NewAPIError(code int, message string) *APIError {
	return &APIError{Code: code, Message: message, Kind: KindForCode(code)}
}

// KindOf returns the Kind of the first APIError in err's chain, or false.
func KindOf(err error) (Kind, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Kind, true
	}
	return KindUnknown, false
}

type kindSentinel Kind

func (k kindSentinel) Error() string { return "fmrest: " + Kind(k).String() + " error" }

// Sentinels matched by APIError.Is.
var (
	ErrUnknown         error = kindSentinel(KindUnknown)
	ErrResourceMissing error = kindSentinel(KindResourceMissing)
	ErrRecordMissing   error = kindSentinel(KindRecordMissing)
	ErrAccount         error = kindSentinel(KindAccount)
	ErrLock            error = kindSentinel(KindLock)
	ErrParameter       error = kindSentinel(KindParameter)
	ErrValidation      error = kindSentinel(KindValidation)
	ErrSystem          error = kindSentinel(KindSystem)
	ErrInvalidToken    error = kindSentinel(KindInvalidToken)
	ErrCallLimit       error = kindSentinel(KindCallLimit)
	ErrScript          error = kindSentinel(KindScript)
	ErrODBC            error = kindSentinel(KindODBC)
)

// ============================================================================
// Session errors
// ============================================================================

var (
	// ErrNoSessionToken is returned by Logout when there is no session to end.
	ErrNoSessionToken = errors.New("fmrest: no session token to log out")

	// ErrNoRefreshableSession is returned when a pre-supplied token was
	// rejected and the settings hold no credentials to obtain another.
	ErrNoRefreshableSession = errors.New("fmrest: session token rejected and no credentials available to renew it")
)

// HTTPError is a non-2xx response from a session endpoint that carried no
// classifiable messages envelope.
type HTTPError struct {
	StatusCode int
	Body       string
}

// maxErrorBody caps how many bytes of a response body HTTPError reports.
const maxErrorBody = 200

func (e *HTTPError) Error() string {
	body := strings.TrimSpace(e.Body)
	if len(body) > maxErrorBody {
		cut := maxErrorBody
		for cut > 0 && !utf8.RuneStart(body[cut]) {
			cut--
		}
		body = body[:cut] + "..."
	}
	if body == "" {
		return fmt.Sprintf("fmrest: HTTP %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("fmrest: HTTP %d: %s", e.StatusCode, body)
}

// ============================================================================
// ConfigError
// ============================================================================

// ConfigError lists every required setting that was missing when a client
// was constructed.
type ConfigError struct {
	Missing []string
}

func (e *ConfigError) Error() string {
	return "fmrest: missing required settings: " + strings.Join(e.Missing, ", ")
}
