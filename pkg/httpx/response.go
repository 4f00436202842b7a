package httpx

import (
	"bytes"
	"io"
	"net/http"
)

// maxDrainBytes bounds how much of a discarded body is read so the
// connection can be reused.
const maxDrainBytes = 64 << 10

// DrainAndClose discards up to 64KiB of the body and closes it.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))
	_ = resp.Body.Close()
}

// MakeReplayable ensures req.GetBody is set so the request can be sent more
// than once. Bodies without GetBody are read into memory.
func MakeReplayable(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return nil
	}

	data, err := io.ReadAll(req.Body)
	_ = req.Body.Close()
	if err != nil {
		return err
	}

	req.Body = io.NopCloser(bytes.NewReader(data))
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	req.ContentLength = int64(len(data))
	return nil
}

// CloneForRetry returns a copy of req with a fresh body from GetBody. The
// attempt counter decides whether the original body can be used as-is.
func CloneForRetry(req *http.Request, attempt int) (*http.Request, error) {
	r := req.Clone(req.Context())
	if attempt == 0 || req.GetBody == nil {
		return r, nil
	}

	body, err := req.GetBody()
	if err != nil {
		return nil, err
	}
	r.Body = body
	return r, nil
}
