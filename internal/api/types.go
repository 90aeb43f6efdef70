package api

import (
	"github.com/go-webauthn/webauthn/protocol"

	"github.com/fells-code/seamless-auth-go/internal/session"
)

// Channel selects the delivery channel of an OTP code.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPhone Channel = "phone"
)

// DeviceMetadata labels a passkey at registration so the server can render
// a recognizable credential list.
type DeviceMetadata struct {
	FriendlyName string `json:"friendlyName"`
	Platform     string `json:"platform"`
	Browser      string `json:"browser"`
	DeviceInfo   string `json:"deviceInfo"`
}

// CredentialRecord is the client-visible subset of a registered passkey.
// Read-only except for the friendly-name update and deletion.
type CredentialRecord struct {
	ID           string   `json:"id"`
	FriendlyName string   `json:"friendlyName"`
	Transports   []string `json:"transports,omitempty"`
	Counter      uint32   `json:"counter"`
	Platform     string   `json:"platform,omitempty"`
	Browser      string   `json:"browser,omitempty"`
	DeviceInfo   string   `json:"deviceInfo,omitempty"`
	LastUsedAt   string   `json:"lastUsedAt,omitempty"`
}

type loginStartRequest struct {
	Identifier     string `json:"identifier"`
	PasskeyCapable bool   `json:"passkeyCapable"`
}

type registerRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type verifyOTPRequest struct {
	VerificationToken string `json:"verificationToken"`
}

type recoveryRequest struct {
	Identifier string `json:"identifier"`
}

type magicLinkRequest struct {
	Token string `json:"token"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type renameCredentialRequest struct {
	FriendlyName string `json:"friendlyName"`
}

type registerFinishRequest struct {
	AttestationResponse *protocol.CredentialCreationResponse `json:"attestationResponse"`
	Metadata            DeviceMetadata                       `json:"metadata"`
}

type authnFinishRequest struct {
	AssertionResponse *protocol.CredentialAssertionResponse `json:"assertionResponse"`
}

// MessageResponse is the generic `{message}` envelope many endpoints return.
type MessageResponse struct {
	Message string `json:"message"`
}

// OTPResponse is returned by the generate endpoints. A non-empty Token is a
// rotated bearer credential that must replace the stored one.
type OTPResponse struct {
	Message string `json:"message,omitempty"`
	Token   string `json:"token,omitempty"`
}

// MFAVerifyResponse is returned by the MFA verify endpoints. A successful
// verify concludes the sign-in, so it carries the full session pair in
// bearer mode.
type MFAVerifyResponse struct {
	Message      string `json:"message,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// RegisterFinishResponse reports whether a registration ceremony verified.
type RegisterFinishResponse struct {
	Verified bool   `json:"verified"`
	Message  string `json:"message,omitempty"`
}

// AuthnFinishResponse reports the outcome of an authentication ceremony.
// MFALogin routes the flow to the MFA challenge instead of a full session;
// the masked hints let the challenge name the delivery targets without
// disclosing them.
type AuthnFinishResponse struct {
	Message      string `json:"message"`
	MFALogin     bool   `json:"mfaLogin,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
	MaskedEmail  string `json:"maskedEmail,omitempty"`
	MaskedPhone  string `json:"maskedPhone,omitempty"`
}

// MagicLinkResponse carries the session pair issued for a verified link.
type MagicLinkResponse struct {
	Message      string `json:"message,omitempty"`
	Token        string `json:"token,omitempty"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

type refreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// MeResponse hydrates the session store. Credential is absent in
// cookie-mode deployments.
type MeResponse struct {
	User        session.User `json:"user"`
	Credential  string       `json:"credential,omitempty"`
	MaskedEmail string       `json:"maskedEmail,omitempty"`
	MaskedPhone string       `json:"maskedPhone,omitempty"`
}
