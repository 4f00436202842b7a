package fmrest

import (
	"bytes"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
)

// Message is one entry of a Data API messages array. Codes travel as
// strings on the wire ("0", "401", ...).
type Message struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// envelopePaths are probed in order for a messages array.
var envelopePaths = []string{"messages", "metadata.messages"}

// CheckMessages returns an *APIError for the first message with a non-zero
// code, or nil when every code is zero.
func CheckMessages(msgs []Message) error {
	for _, m := range msgs {
		if err := checkCode(m.Code, m.Message); err != nil {
			return err
		}
	}
	return nil
}

func checkCode(raw, message string) *APIError {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	code, err := strconv.Atoi(raw)
	if err != nil {
		// A code we cannot read is still a failure the caller must see.
		return &APIError{Code: -1, Message: message, Kind: KindUnknown}
	}
	if code == 0 {
		return nil
	}
	return NewAPIError(code, message)
}

// CheckBody inspects a decoded response body for an error envelope. The
// messages array is looked up at the top level first and then under
// metadata; bodies without either are treated as success.
func CheckBody(body []byte) error {
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}

	for _, path := range envelopePaths {
		msgs := gjson.GetBytes(body, path)
		if !msgs.IsArray() {
			continue
		}

		var found *APIError
		msgs.ForEach(func(_, m gjson.Result) bool {
			found = checkCode(m.Get("code").String(), m.Get("message").String())
			return found == nil
		})
		if found != nil {
			return found
		}
		return nil
	}
	return nil
}

// ErrorChecker is an http.RoundTripper that turns Data API error envelopes
// into *APIError values. Responses without an error are handed back with
// their body intact.
type ErrorChecker struct {
	Next http.RoundTripper
}

func (c *ErrorChecker) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := transportOrDefault(c.Next).RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.Body == nil || resp.Body == http.NoBody || !isJSON(resp.Header) {
		return resp, nil
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, err
	}

	if err := CheckBody(body); err != nil {
		if apiErr, ok := err.(*APIError); ok {
			apiErr.HTTPStatus = resp.StatusCode
		}
		return nil, err
	}

	resp.Body = io.NopCloser(bytes.NewReader(body))
	return resp, nil
}

// isJSON reports whether the response may carry a JSON envelope. A missing
// Content-Type is treated as JSON.
func isJSON(h http.Header) bool {
	ct := h.Get("Content-Type")
	if ct == "" {
		return true
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return false
	}
	return mt == "application/json" || strings.HasSuffix(mt, "+json")
}

func transportOrDefault(rt http.RoundTripper) http.RoundTripper {
	if rt == nil {
		return http.DefaultTransport
	}
	return rt
}
