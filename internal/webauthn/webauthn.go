// Package webauthn drives passkey ceremonies: it fetches options from the
// server, hands them to a platform authenticator, and submits the result.
// The authenticator itself is an interface so hosts can plug in whatever
// the platform provides (browser bridge, FIDO2 device, test fake).
package webauthn

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/logging"
)

// Authenticator is the platform credential interface. Implementations
// return ErrCancelled (or wrap it) when the user dismisses the prompt.
type Authenticator interface {
	// Available reports whether this platform can perform ceremonies at
	// all. When false the flow falls back to magic-link sign-in.
	Available(ctx context.Context) bool
	// CreateCredential runs the attestation ceremony for enrollment.
	CreateCredential(ctx context.Context, opts *protocol.CredentialCreation) (*protocol.CredentialCreationResponse, error)
	// GetAssertion runs the assertion ceremony for sign-in.
	GetAssertion(ctx context.Context, opts *protocol.CredentialAssertion) (*protocol.CredentialAssertionResponse, error)
}

// ErrCancelled is returned by authenticators when the user dismisses the
// platform prompt. The adapter maps it to common.ErrCeremonyCancelled so
// flows can keep the challenge open instead of failing the sign-in.
var ErrCancelled = errors.New("webauthn: ceremony cancelled")

// Client is the slice of the API client the adapter needs.
type Client interface {
	RegistrationStart(ctx context.Context) (*protocol.CredentialCreation, error)
	RegistrationFinish(ctx context.Context, att *protocol.CredentialCreationResponse, meta api.DeviceMetadata) (*api.RegisterFinishResponse, error)
	AuthenticationStart(ctx context.Context) (*protocol.CredentialAssertion, error)
	AuthenticationFinish(ctx context.Context, assertion *protocol.CredentialAssertionResponse) (*api.AuthnFinishResponse, error)
}

// AuthenticationResult reports how a sign-in ceremony concluded.
type AuthenticationResult struct {
	// Verified is true when the server accepted the assertion.
	Verified bool
	// MFARequired means a second factor is still pending; no session
	// credential was issued.
	MFARequired bool
	// TokenIssued means a session credential was stored (bearer mode) or
	// set as a cookie.
	TokenIssued bool
	// Masked delivery hints for the MFA challenge, when the server
	// supplied them.
	MaskedEmail string
	MaskedPhone string
}

// RegistrationResult reports how an enrollment ceremony concluded.
type RegistrationResult struct {
	Verified bool
}

// Adapter orchestrates the start → platform ceremony → finish round trip.
type Adapter struct {
	client Client
	auth   Authenticator
	log    logging.Logger
}

func NewAdapter(client Client, auth Authenticator, log logging.Logger) *Adapter {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Adapter{client: client, auth: auth, log: log}
}

// Supported reports whether a passkey ceremony can run on this platform.
func (a *Adapter) Supported(ctx context.Context) bool {
	return a.auth != nil && a.auth.Available(ctx)
}

// PerformAuthentication runs a full passkey sign-in ceremony. A dismissed
// prompt surfaces as common.ErrCeremonyCancelled, distinct from a server
// rejection, so the caller can leave the challenge open.
func (a *Adapter) PerformAuthentication(ctx context.Context) (*AuthenticationResult, error) {
	if !a.Supported(ctx) {
		return nil, common.ErrPasskeyNotSupported
	}

	opts, err := a.client.AuthenticationStart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start authentication ceremony: %w", err)
	}

	assertion, err := a.auth.GetAssertion(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			a.log.Debug(ctx, "authentication ceremony dismissed")
			return nil, common.ErrCeremonyCancelled
		}
		return nil, fmt.Errorf("authenticator failed: %w", err)
	}

	resp, err := a.client.AuthenticationFinish(ctx, assertion)
	if err != nil {
		return nil, err
	}

	res := &AuthenticationResult{
		Verified:    true,
		MaskedEmail: resp.MaskedEmail,
		MaskedPhone: resp.MaskedPhone,
	}
	if resp.MFALogin {
		res.MFARequired = true
	} else {
		res.TokenIssued = true
	}
	return res, nil
}

// PerformRegistration runs a full passkey enrollment ceremony, labelling
// the new credential with the given device metadata.
func (a *Adapter) PerformRegistration(ctx context.Context, meta api.DeviceMetadata) (*RegistrationResult, error) {
	if !a.Supported(ctx) {
		return nil, common.ErrPasskeyNotSupported
	}

	opts, err := a.client.RegistrationStart(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to start registration ceremony: %w", err)
	}

	att, err := a.auth.CreateCredential(ctx, opts)
	if err != nil {
		if errors.Is(err, ErrCancelled) {
			a.log.Debug(ctx, "registration ceremony dismissed")
			return nil, common.ErrCeremonyCancelled
		}
		return nil, fmt.Errorf("authenticator failed: %w", err)
	}

	resp, err := a.client.RegistrationFinish(ctx, att, meta)
	if err != nil {
		return nil, err
	}
	if !resp.Verified {
		return nil, common.ErrVerificationFailed
	}
	return &RegistrationResult{Verified: true}, nil
}
