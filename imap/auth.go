package imap

import (
	"errors"
	"fmt"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"golang.org/x/oauth2"
)

// Supported authentication mechanisms
const (
	AuthLogin   = "login"
	AuthPlain   = "plain"
	AuthXOAuth2 = "xoauth2"
)

func authenticate(c *client.Client, account Account) error {
	switch account.Auth {
	case AuthLogin, "":
		return c.Login(account.Username, account.Password)
	case AuthPlain:
		return c.Authenticate(sasl.NewPlainClient("", account.Username, account.Password))
	case AuthXOAuth2:
		// The password carries the access token
		src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: account.Password, TokenType: "Bearer"})
		return c.Authenticate(XOAuth2(account.Username, src))
	}
	return fmt.Errorf("unsupported auth mechanism %q", account.Auth)
}

type xOAuth2 struct {
	username string
	tokens   oauth2.TokenSource
}

// XOAuth2 returns a sasl client for the XOAUTH2 mechanism used by Gmail and Outlook,
// taking its bearer token from tokens
func XOAuth2(username string, tokens oauth2.TokenSource) sasl.Client {
	return &xOAuth2{username: username, tokens: tokens}
}

func (a *xOAuth2) Start() (string, []byte, error) {
	t, err := a.tokens.Token()
	if err != nil {
		return "", nil, fmt.Errorf("fetching oauth2 token: %w", err)
	}
	if t.AccessToken == "" {
		return "", nil, errors.New("empty oauth2 access token")
	}
	resp := fmt.Sprintf("user=%s\x01auth=Bearer %s\x01\x01", a.username, t.AccessToken)
	return "XOAUTH2", []byte(resp), nil
}

// Next is only called when the server rejects the token; it then sends a JSON error description
func (a *xOAuth2) Next(fromServer []byte) ([]byte, error) {
	return nil, fmt.Errorf("xoauth2 rejected by server: %s", fromServer)
}
