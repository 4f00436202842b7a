/*
Package fmrest is the session and error handling core of a FileMaker Data
API client.

# Overview

The Data API authenticates every request with a short-lived session token.
A session is created by POSTing to the database's sessions endpoint with
either HTTP basic credentials or a Claris ID token ("FMID <token>"), and is
ended by DELETE sessions/<token>. Sessions idle out on the server, so a
client must be ready to log in again at any time.

fmrest hides that lifecycle behind an http.RoundTripper pipeline:

	AuthErrorRetry   (Claris ID only) expire the id token and retry once on account errors
	ErrorChecker     turn messages envelopes into *APIError
	TokenSession     attach Bearer tokens, log in on demand, retry once on 401
	base transport

# Usage

	client, err := fmrest.NewClient(ctx, fmrest.Settings{
		Host:     "fm.example.com",
		Database: "Contacts",
		Username: "api",
		Password: os.Getenv("FM_PASSWORD"),
	})
	if err != nil {
		var cfgErr *fmrest.ConfigError
		if errors.As(err, &cfgErr) {
			log.Fatalf("missing settings: %v", cfgErr.Missing)
		}
		log.Fatal(err)
	}

	req, _ := client.NewRequest(ctx, http.MethodGet, "layouts/People/records", nil)
	resp, err := client.Do(req)
	switch {
	case errors.Is(err, fmrest.ErrRecordMissing):
		// code 101
	case errors.Is(err, fmrest.ErrAccount):
		// codes 200-299
	}

	defer client.TryLogout(ctx)

# Token stores

Session tokens are kept in a tokenstore.Store keyed by
"<hostname>:<database>:<identity>". The default store is process wide, so
every client with the same host, database and user shares one session.
Redis and SQL backed stores share sessions across processes.

# Claris ID

For FileMaker Cloud hosts (or Cloud: CloudOn) the username and password are
Claris ID credentials. They are exchanged for a Cognito id token by the
cloud package, and that token is used to create the Data API session.
*/
package fmrest
