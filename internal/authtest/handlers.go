package authtest

import (
	"crypto/rand"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
	"github.com/google/uuid"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/session"
)

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier     string `json:"identifier"`
		PasskeyCapable bool   `json:"passkeyCapable"`
	}
	if err := decodeBody(r, &req); err != nil || req.Identifier == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// accepted whether or not the identifier exists; existence is never
	// disclosed at login start
	for _, a := range s.accounts {
		if a.email == req.Identifier || a.phone == req.Identifier {
			s.pending = a
			break
		}
	}
	writeJSON(w, api.MessageResponse{Message: "Success"})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Phone string `json:"phone"`
	}
	if err := decodeBody(r, &req); err != nil || req.Email == "" || req.Phone == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[req.Email]; exists {
		w.WriteHeader(http.StatusConflict)
		return
	}
	a := &account{id: uuid.NewString(), email: req.Email, phone: req.Phone}
	s.accounts[req.Email] = a
	s.pending = a
	writeJSON(w, api.MessageResponse{Message: "Success"})
}

// handleGenerateOTP acknowledges a (re)send. When a pending sign-up or
// sign-in exists the response rotates the part-auth credential, matching
// servers that re-issue on every send.
func (s *Server) handleGenerateOTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := api.OTPResponse{Message: "Code sent"}
	if s.pending != nil {
		access, _ := s.issueLocked(s.pending)
		out.Token = access
	}
	writeJSON(w, out)
}

// verifyOTPHandler builds a verify endpoint for one fixed code. MFA
// variants conclude a sign-in, so they issue a full session credential.
func (s *Server) verifyOTPHandler(code string, issueSession bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			VerificationToken string `json:"verificationToken"`
		}
		if err := decodeBody(r, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		if req.VerificationToken != code {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		if !issueSession {
			writeJSON(w, api.MessageResponse{Message: "Success"})
			return
		}

		a := s.pending
		if a == nil {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		access, refresh := s.issueLocked(a)
		writeJSON(w, api.MFAVerifyResponse{Message: "Success", Token: access, RefreshToken: refresh})
	}
}

func challengeBytes() protocol.URLEncodedBase64 {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return b
}

func (s *Server) handleRegistrationStart(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.bearerAccountLocked(r)
	if a == nil {
		a = s.pending
	}
	if a == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}

	writeJSON(w, protocol.CredentialCreation{
		Response: protocol.PublicKeyCredentialCreationOptions{
			Challenge: challengeBytes(),
			RelyingParty: protocol.RelyingPartyEntity{
				CredentialEntity: protocol.CredentialEntity{Name: "SeamlessAuth"},
				ID:               "localhost",
			},
			User: protocol.UserEntity{
				CredentialEntity: protocol.CredentialEntity{Name: a.email},
				DisplayName:      a.email,
				ID:               []byte(a.id),
			},
			Parameters: []protocol.CredentialParameter{
				{Type: protocol.PublicKeyCredentialType, Algorithm: webauthncose.AlgES256},
			},
		},
	})
}

// handleRegistrationFinish validates the submission structurally; real
// attestation verification is the production server's concern.
func (s *Server) handleRegistrationFinish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AttestationResponse *protocol.CredentialCreationResponse `json:"attestationResponse"`
		Metadata            api.DeviceMetadata                   `json:"metadata"`
	}
	if err := decodeBody(r, &req); err != nil || req.AttestationResponse == nil {
		writeJSON(w, api.RegisterFinishResponse{Verified: false, Message: "malformed attestation"})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.credentials = append(s.credentials, api.CredentialRecord{
		ID:           uuid.NewString(),
		FriendlyName: req.Metadata.FriendlyName,
		Platform:     req.Metadata.Platform,
		Browser:      req.Metadata.Browser,
		DeviceInfo:   req.Metadata.DeviceInfo,
	})
	writeJSON(w, api.RegisterFinishResponse{Verified: true, Message: "Success"})
}

func (s *Server) handleAuthenticationStart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, protocol.CredentialAssertion{
		Response: protocol.PublicKeyCredentialRequestOptions{
			Challenge:        challengeBytes(),
			RelyingPartyID:   "localhost",
			UserVerification: protocol.VerificationPreferred,
		},
	})
}

func (s *Server) handleAuthenticationFinish(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AssertionResponse *protocol.CredentialAssertionResponse `json:"assertionResponse"`
	}
	if err := decodeBody(r, &req); err != nil || req.AssertionResponse == nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.pending
	if a == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	if s.MFARequired {
		writeJSON(w, api.AuthnFinishResponse{
			Message:     "Success",
			MFALogin:    true,
			MaskedEmail: common.MaskEmail(a.email),
			MaskedPhone: common.MaskPhone(a.phone),
		})
		return
	}

	access, refresh := s.issueLocked(a)
	writeJSON(w, api.AuthnFinishResponse{Message: "Success", Token: access, RefreshToken: refresh})
}

func (s *Server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearerAccountLocked(r) == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}
	writeJSON(w, s.credentials)
}

func (s *Server) handleRenameCredential(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FriendlyName string `json:"friendlyName"`
	}
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearerAccountLocked(r) == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}
	id := chi.URLParam(r, "id")
	for i := range s.credentials {
		if s.credentials[i].ID == id {
			s.credentials[i].FriendlyName = req.FriendlyName
			writeJSON(w, api.MessageResponse{Message: "Success"})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bearerAccountLocked(r) == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}
	id := chi.URLParam(r, "id")
	for i := range s.credentials {
		if s.credentials[i].ID == id {
			s.credentials = append(s.credentials[:i], s.credentials[i+1:]...)
			writeJSON(w, api.MessageResponse{Message: "Success"})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.bearerAccountLocked(r)
	if a == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}
	writeJSON(w, api.MeResponse{
		User: session.User{
			ID:    a.id,
			Email: a.email,
			Phone: a.phone,
			Roles: a.roles,
		},
		MaskedEmail: common.MaskEmail(a.email),
		MaskedPhone: common.MaskPhone(a.phone),
	})
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := s.bearerAccountLocked(r)
	if a == nil {
		w.WriteHeader(s.AuthorityStatus)
		return
	}
	delete(s.accounts, a.email)
	s.currentAccess = ""
	s.refreshTokens = map[string]string{}
	writeJSON(w, api.MessageResponse{Message: "Success"})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAccess = ""
	s.refreshTokens = map[string]string{}
	writeJSON(w, api.MessageResponse{Message: "Success"})
}

// handleRecovery returns 404 for unknown identifiers. The client is
// expected to hide that distinction from the user.
func (s *Server) handleRecovery(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Identifier string `json:"identifier"`
	}
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.accounts {
		if a.email == req.Identifier || a.phone == req.Identifier {
			writeJSON(w, api.MessageResponse{Message: "Recovery message sent"})
			return
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (s *Server) handleMagicLink(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &req); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if req.Token != s.magicLink || s.pending == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	s.magicLink = uuid.NewString() // single use
	access, refresh := s.issueLocked(s.pending)
	writeJSON(w, api.MagicLinkResponse{Message: "Success", Token: access, RefreshToken: refresh})
}

// handleRefresh rotates the credential pair. The presented refresh token
// is consumed: replaying it fails even if the rotation response was lost.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshCalls++

	var presented string
	if r.Method == http.MethodPost {
		var req struct {
			RefreshToken string `json:"refreshToken"`
		}
		if err := decodeBody(r, &req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		presented = req.RefreshToken
	}

	accountID, ok := s.refreshTokens[presented]
	if !ok {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var a *account
	for _, candidate := range s.accounts {
		if candidate.id == accountID {
			a = candidate
			break
		}
	}
	if a == nil {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	access, refresh := s.issueLocked(a)
	writeJSON(w, map[string]string{
		"accessToken":  access,
		"refreshToken": refresh,
	})
}
