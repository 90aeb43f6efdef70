package api

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/session"
)

// absorbToken persists a credential issued inline by an endpoint response.
// Cookie-mode deployments deliver credentials via Set-Cookie instead, so an
// empty token is the normal case there.
func (c *Client) absorbToken(ctx context.Context, token string) error {
	if token == "" || c.credMode != CredentialBearer {
		return nil
	}
	return c.store.Set(ctx, common.AccessTokenKey, token)
}

// absorbSession persists a full session pair issued inline by a
// sign-in-concluding endpoint. Without the refresh token the first
// authority failure would end the session instead of renewing it.
func (c *Client) absorbSession(ctx context.Context, accessToken, refreshToken string) error {
	if accessToken == "" || c.credMode != CredentialBearer {
		return nil
	}
	return c.StoreTokens(ctx, accessToken, refreshToken)
}

// StoreTokens persists a freshly issued access/refresh pair (bearer mode).
func (c *Client) StoreTokens(ctx context.Context, accessToken, refreshToken string) error {
	if c.credMode != CredentialBearer {
		return nil
	}
	if err := c.store.Set(ctx, common.AccessTokenKey, accessToken); err != nil {
		return err
	}
	if refreshToken != "" {
		return c.store.Set(ctx, common.RefreshTokenKey, refreshToken)
	}
	return nil
}

// ClearTokens removes any persisted credentials. Idempotent.
func (c *Client) ClearTokens(ctx context.Context) {
	_ = c.store.Delete(ctx, common.AccessTokenKey)
	_ = c.store.Delete(ctx, common.RefreshTokenKey)
}

// AccessCredential returns the current access credential, with its expiry
// read from the token's claims when the token is a JWT. The signature is
// not checked: the client is not the verifier, it only needs the window.
func (c *Client) AccessCredential(ctx context.Context) (session.Credential, bool) {
	if c.credMode != CredentialBearer {
		return session.Credential{}, false
	}
	token, err := c.store.Get(ctx, common.AccessTokenKey)
	if err != nil || token == "" {
		return session.Credential{}, false
	}
	return session.Credential{Token: token, ExpiresAt: tokenExpiry(token)}, true
}

// tokenExpiry extracts the exp claim from a JWT without verifying it.
// Returns the zero time for opaque tokens.
func tokenExpiry(token string) time.Time {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
