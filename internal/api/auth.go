package api

import (
	"context"
	"net/http"

	"github.com/bistrohq/bistroctl/internal/envelope"
)

// tokenPair is the payload of login and refresh responses.
type tokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Login exchanges operator credentials for a token pair and persists it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	env, err := c.Request(ctx, http.MethodPost, "/auth/login", nil,
		map[string]string{"email": email, "password": password},
		&RequestOptions{SkipErrorHandling: true})
	if err != nil {
		return err
	}
	var pair tokenPair
	if err := DecodeData(env.Data, &pair); err != nil {
		return err
	}
	if pair.AccessToken == "" || pair.RefreshToken == "" {
		return envelope.NewAPIError(envelope.CodeUnauthorized,
			"login response carried no token pair", env.StatusCode, env.Meta.RequestID)
	}
	return c.tokens.SetTokens(pair.AccessToken, pair.RefreshToken)
}

// Logout clears the persisted credentials. The server session, if any, is
// left to expire on its own.
func (c *Client) Logout() error {
	return c.tokens.Clear()
}
