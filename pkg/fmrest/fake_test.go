package fmrest_test

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

const (
	testDatabase = "Contacts"
	basePath     = "/fmi/data/v1/databases/" + testDatabase
)

// fakeDataAPI is a minimal Data API server. It hands out tok-1, tok-2, ...
// on login and accepts a bearer token until it is logged out.
type fakeDataAPI struct {
	srv *httptest.Server

	mu           sync.Mutex
	requests     int
	logins       int
	loginAuth    []string
	dataAuth     []string
	bodies       []string
	logouts      []string
	logoutAuth   []string
	valid        map[string]bool
	rejectNext   int
	loginDelay   time.Duration
	loginFailure func(auth string) string
}

func newFakeDataAPI(t *testing.T) *fakeDataAPI {
	t.Helper()

	f := &fakeDataAPI{valid: map[string]bool{}}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeDataAPI) URL() string { return f.srv.URL }

// accept marks token as a live session.
func (f *fakeDataAPI) accept(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.valid[token] = true
}

// reject answers the next n data requests with 401 whatever token they carry.
func (f *fakeDataAPI) reject(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectNext = n
}

func (f *fakeDataAPI) slowLogins(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginDelay = d
}

// failLogins makes login answer with the returned code when it is not empty.
func (f *fakeDataAPI) failLogins(fn func(auth string) string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loginFailure = fn
}

func (f *fakeDataAPI) loginCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.logins
}

func (f *fakeDataAPI) requestCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests
}

// fakeStats is a copy of what the server has seen so far.
type fakeStats struct {
	logins     int
	loginAuth  []string
	dataAuth   []string
	bodies     []string
	logouts    []string
	logoutAuth []string
}

func (f *fakeDataAPI) snapshot() fakeStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fakeStats{
		logins:     f.logins,
		loginAuth:  append([]string(nil), f.loginAuth...),
		dataAuth:   append([]string(nil), f.dataAuth...),
		bodies:     append([]string(nil), f.bodies...),
		logouts:    append([]string(nil), f.logouts...),
		logoutAuth: append([]string(nil), f.logoutAuth...),
	}
}

func (f *fakeDataAPI) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.requests++
	delay := f.loginDelay
	f.mu.Unlock()

	switch {
	case r.Method == http.MethodPost && r.URL.Path == basePath+"/sessions":
		if delay > 0 {
			time.Sleep(delay)
		}
		f.login(w, r)
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, basePath+"/sessions/"):
		f.logout(w, r)
	default:
		f.data(w, r)
	}
}

func (f *fakeDataAPI) login(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	auth := r.Header.Get("Authorization")
	f.loginAuth = append(f.loginAuth, auth)
	f.logins++

	if f.loginFailure != nil {
		if code := f.loginFailure(auth); code != "" {
			writeEnvelope(w, http.StatusUnauthorized, code, "Invalid user account and/or password; please try again", nil)
			return
		}
	}

	token := fmt.Sprintf("tok-%d", f.logins)
	f.valid[token] = true
	w.Header().Set("X-FM-Data-Access-Token", token)
	writeEnvelope(w, http.StatusOK, "0", "OK", map[string]any{"token": token})
}

func (f *fakeDataAPI) logout(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	token := strings.TrimPrefix(r.URL.Path, basePath+"/sessions/")
	f.logouts = append(f.logouts, token)
	f.logoutAuth = append(f.logoutAuth, r.Header.Get("Authorization"))

	if !f.valid[token] {
		writeEnvelope(w, http.StatusNotFound, "952", "Invalid FileMaker Data API token (*)", nil)
		return
	}
	delete(f.valid, token)
	writeEnvelope(w, http.StatusOK, "0", "OK", map[string]any{})
}

func (f *fakeDataAPI) data(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	defer f.mu.Unlock()

	auth := r.Header.Get("Authorization")
	f.dataAuth = append(f.dataAuth, auth)
	f.bodies = append(f.bodies, string(body))

	token := strings.TrimPrefix(auth, "Bearer ")
	if f.rejectNext > 0 || !f.valid[token] {
		if f.rejectNext > 0 {
			f.rejectNext--
		}
		writeEnvelope(w, http.StatusUnauthorized, "952", "Invalid FileMaker Data API token (*)", nil)
		return
	}

	writeEnvelope(w, http.StatusOK, "0", "OK", map[string]any{"data": []any{}})
}

func writeEnvelope(w http.ResponseWriter, status int, code, message string, response any) {
	if response == nil {
		response = map[string]any{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"response": response,
		"messages": []map[string]string{{"code": code, "message": message}},
	})
}
