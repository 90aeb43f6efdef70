package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/fells-code/seamless-auth-go/internal/common"
)

// LoginStart begins a sign-in for the given identifier (email or phone).
// The server decides whether a passkey challenge or a magic link follows;
// passkeyCapable tells it what this client can do.
func (c *Client) LoginStart(ctx context.Context, identifier string, passkeyCapable bool) error {
	return c.do(ctx, http.MethodPost, "login", loginStartRequest{
		Identifier:     identifier,
		PasskeyCapable: passkeyCapable,
	}, nil, false)
}

// Register starts account creation. A duplicate account surfaces as
// common.ErrDuplicateAccount; the caller must show the distinct message.
func (c *Client) Register(ctx context.Context, email, phone string) (*MessageResponse, error) {
	var out MessageResponse
	if err := c.do(ctx, http.MethodPost, "registration/register", registerRequest{Email: email, Phone: phone}, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// GenerateOTP asks the server to (re)send a registration verification code
// on the given channel. A returned token replaces the stored credential in
// bearer mode.
func (c *Client) GenerateOTP(ctx context.Context, ch Channel) (*OTPResponse, error) {
	var out OTPResponse
	path := fmt.Sprintf("otp/generate-%s-otp", ch)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	if err := c.absorbToken(ctx, out.Token); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyOTP submits a registration verification code for one channel.
func (c *Client) VerifyOTP(ctx context.Context, ch Channel, code string) error {
	path := fmt.Sprintf("otp/verify-%s-otp", ch)
	err := c.do(ctx, http.MethodPost, path, verifyOTPRequest{VerificationToken: code}, nil, false)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return common.ErrVerificationFailed
		}
		return err
	}
	return nil
}

// GenerateLoginOTP sends an MFA code on the chosen channel.
func (c *Client) GenerateLoginOTP(ctx context.Context, ch Channel) (*OTPResponse, error) {
	var out OTPResponse
	path := fmt.Sprintf("otp/generate-login-%s-otp", ch)
	if err := c.do(ctx, http.MethodGet, path, nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// VerifyLoginOTP submits an MFA code. On success the server may issue the
// session credential in the response body (bearer mode) or as a cookie.
func (c *Client) VerifyLoginOTP(ctx context.Context, ch Channel, code string) (*MFAVerifyResponse, error) {
	var out MFAVerifyResponse
	path := fmt.Sprintf("otp/verify-login-%s-otp", ch)
	err := c.do(ctx, http.MethodPost, path, verifyOTPRequest{VerificationToken: code}, &out, false)
	if err != nil {
		if errors.Is(err, common.ErrUnauthorized) {
			return nil, common.ErrVerificationFailed
		}
		return nil, err
	}
	if err := c.absorbSession(ctx, out.Token, out.RefreshToken); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegistrationStart fetches creation options for a passkey enrollment
// ceremony. Requires the part-authenticated registration session.
func (c *Client) RegistrationStart(ctx context.Context) (*protocol.CredentialCreation, error) {
	var out protocol.CredentialCreation
	if err := c.do(ctx, http.MethodGet, "webAuthn/register/start", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// RegistrationFinish submits the attestation produced by the authenticator
// together with the device metadata used to label the credential.
func (c *Client) RegistrationFinish(ctx context.Context, att *protocol.CredentialCreationResponse, meta DeviceMetadata) (*RegisterFinishResponse, error) {
	var out RegisterFinishResponse
	req := registerFinishRequest{AttestationResponse: att, Metadata: meta}
	if err := c.do(ctx, http.MethodPost, "webAuthn/register/finish", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticationStart fetches assertion options for a passkey sign-in.
func (c *Client) AuthenticationStart(ctx context.Context) (*protocol.CredentialAssertion, error) {
	var out protocol.CredentialAssertion
	if err := c.do(ctx, http.MethodPost, "webAuthn/login/start", nil, &out, false); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuthenticationFinish submits the assertion. MFALogin in the response
// means a second factor is still required before the session exists.
func (c *Client) AuthenticationFinish(ctx context.Context, assertion *protocol.CredentialAssertionResponse) (*AuthnFinishResponse, error) {
	var out AuthnFinishResponse
	req := authnFinishRequest{AssertionResponse: assertion}
	if err := c.do(ctx, http.MethodPost, "webAuthn/login/finish", req, &out, false); err != nil {
		return nil, err
	}
	if !out.MFALogin {
		if err := c.absorbSession(ctx, out.Token, out.RefreshToken); err != nil {
			return nil, err
		}
	}
	return &out, nil
}

// VerifyMagicLink completes a magic-link sign-in with the token from the
// emailed link.
func (c *Client) VerifyMagicLink(ctx context.Context, token string) (*MagicLinkResponse, error) {
	var out MagicLinkResponse
	if err := c.do(ctx, http.MethodPost, "auth/verify", magicLinkRequest{Token: token}, &out, false); err != nil {
		return nil, err
	}
	if err := c.absorbSession(ctx, out.Token, out.RefreshToken); err != nil {
		return nil, err
	}
	return &out, nil
}

// RecoverAccount requests an account-recovery message. Every failure,
// including a 404 for an unknown identifier, collapses to one opaque error
// so responses never reveal whether the identifier is registered.
func (c *Client) RecoverAccount(ctx context.Context, identifier string) error {
	err := c.do(ctx, http.MethodPost, "recovery", recoveryRequest{Identifier: identifier}, nil, false)
	if err != nil {
		return fmt.Errorf("recovery request failed: %w", common.ErrUnavailable)
	}
	return nil
}

// Me fetches the current identity. Runs through the authenticated path so
// a stale credential refreshes transparently.
func (c *Client) Me(ctx context.Context) (*MeResponse, error) {
	var out MeResponse
	if err := c.do(ctx, http.MethodGet, "users/me", nil, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout notifies the server (best effort) and always wipes local tokens.
func (c *Client) Logout(ctx context.Context) error {
	err := c.do(ctx, http.MethodGet, "logout", nil, nil, false)
	c.ClearTokens(ctx)
	return err
}

// DeleteUser removes the account server-side.
func (c *Client) DeleteUser(ctx context.Context) error {
	if err := c.do(ctx, http.MethodDelete, "users/delete", nil, nil, true); err != nil {
		return err
	}
	c.ClearTokens(ctx)
	return nil
}

// ListCredentials returns the registered passkeys for the current user.
func (c *Client) ListCredentials(ctx context.Context) ([]CredentialRecord, error) {
	var out []CredentialRecord
	if err := c.do(ctx, http.MethodGet, "webAuthn/credentials", nil, &out, true); err != nil {
		return nil, err
	}
	return out, nil
}

// RenameCredential updates a passkey's friendly name.
func (c *Client) RenameCredential(ctx context.Context, id, friendlyName string) error {
	path := "webAuthn/credentials/" + id
	return c.do(ctx, http.MethodPut, path, renameCredentialRequest{FriendlyName: friendlyName}, nil, true)
}

// DeleteCredential removes a registered passkey.
func (c *Client) DeleteCredential(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "webAuthn/credentials/"+id, nil, nil, true)
}
