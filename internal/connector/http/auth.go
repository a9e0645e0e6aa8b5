package http

import (
	"net/http"

	"golang.org/x/oauth2"
)

// Authenticator adds credentials to an outgoing request.
type Authenticator interface {
	Apply(req *http.Request) error
}

// SessionCookie replays a browser session, for portals without an API.
type SessionCookie struct {
	Name  string
	Value string
}

func (a SessionCookie) Apply(req *http.Request) error {
	if a.Value != "" {
		req.AddCookie(&http.Cookie{Name: a.Name, Value: a.Value})
	}
	return nil
}

// TokenSource sets the bearer token of src, which refreshes it on expiry.
type TokenSource struct {
	Source oauth2.TokenSource
}

func (a TokenSource) Apply(req *http.Request) error {
	tok, err := a.Source.Token()
	if err != nil {
		return err
	}
	tok.SetAuthHeader(req)
	return nil
}
