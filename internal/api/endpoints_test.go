package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fells-code/seamless-auth-go/internal/common"
)

func TestRegister_DuplicateAccountIsDistinct(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/registration/register", r.URL.Path)
		w.WriteHeader(http.StatusConflict)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	_, err := c.Register(context.Background(), "a@b.com", "+15551234567")
	require.ErrorIs(t, err, common.ErrDuplicateAccount)
}

func TestRegister_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "a@b.com", req["email"])
		assert.Equal(t, "+15551234567", req["phone"])
		_ = json.NewEncoder(w).Encode(MessageResponse{Message: "Success"})
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	out, err := c.Register(context.Background(), "a@b.com", "+15551234567")
	require.NoError(t, err)
	assert.Equal(t, "Success", out.Message)
}

func TestRecoverAccount_404IsIndistinguishable(t *testing.T) {
	mkServer := func(status int) *httptest.Server {
		return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(status)
		}))
	}

	srv404 := mkServer(http.StatusNotFound)
	defer srv404.Close()
	srv500 := mkServer(http.StatusInternalServerError)
	defer srv500.Close()

	c404, _ := newTestClient(t, srv404.URL)
	c500, _ := newTestClient(t, srv500.URL)

	err404 := c404.RecoverAccount(context.Background(), "ghost@example.com")
	err500 := c500.RecoverAccount(context.Background(), "known@example.com")

	require.Error(t, err404)
	require.Error(t, err500)
	// an unknown identifier must not be distinguishable from any other failure
	assert.Equal(t, err500.Error(), err404.Error())
}

func TestVerifyOTP_RejectionIsVerificationFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/otp/verify-email-otp", r.URL.Path)
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["verificationToken"] == "123456" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c, _ := newTestClient(t, srv.URL)
	ctx := context.Background()

	require.NoError(t, c.VerifyOTP(ctx, ChannelEmail, "123456"))
	require.ErrorIs(t, c.VerifyOTP(ctx, ChannelEmail, "000000"), common.ErrVerificationFailed)
}

func TestGenerateOTP_RotatedTokenIsPersisted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/otp/generate-phone-otp", r.URL.Path)
		_ = json.NewEncoder(w).Encode(OTPResponse{Token: "rotated"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.GenerateOTP(ctx, ChannelPhone)
	require.NoError(t, err)

	access, _ := store.Get(ctx, common.AccessTokenKey)
	assert.Equal(t, "rotated", access)
}

func TestAuthenticationFinish_MFARequiredDoesNotIssueCredential(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthnFinishResponse{Message: "Success", MFALogin: true, Token: "must-not-store"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	out, err := c.AuthenticationFinish(ctx, nil)
	require.NoError(t, err)
	assert.True(t, out.MFALogin)

	access, _ := store.Get(ctx, common.AccessTokenKey)
	assert.Empty(t, access)
}

func TestAuthenticationFinish_TokenIssued(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(AuthnFinishResponse{Message: "Success", Token: "issued", RefreshToken: "issued-refresh"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	out, err := c.AuthenticationFinish(ctx, nil)
	require.NoError(t, err)
	assert.False(t, out.MFALogin)

	access, _ := store.Get(ctx, common.AccessTokenKey)
	refresh, _ := store.Get(ctx, common.RefreshTokenKey)
	assert.Equal(t, "issued", access)
	assert.Equal(t, "issued-refresh", refresh)
}

func TestLogout_AlwaysClearsTokens(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()
	seedTokens(t, store, "tok", "ref")

	err := c.Logout(ctx)
	require.Error(t, err)

	access, _ := store.Get(ctx, common.AccessTokenKey)
	refresh, _ := store.Get(ctx, common.RefreshTokenKey)
	assert.Empty(t, access)
	assert.Empty(t, refresh)
}

func TestVerifyMagicLink_StoresIssuedToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/verify", r.URL.Path)
		var req map[string]string
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["token"] != "link-token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewEncoder(w).Encode(MagicLinkResponse{Message: "Success", Token: "session-token", RefreshToken: "refresh-token"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	out, err := c.VerifyMagicLink(ctx, "link-token")
	require.NoError(t, err)
	assert.Equal(t, "Success", out.Message)

	// both halves of the pair must land in storage: without the refresh
	// token the first authority failure would end the session
	access, _ := store.Get(ctx, common.AccessTokenKey)
	refresh, _ := store.Get(ctx, common.RefreshTokenKey)
	assert.Equal(t, "session-token", access)
	assert.Equal(t, "refresh-token", refresh)
}

func TestVerifyLoginOTP_StoresIssuedPair(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/otp/verify-login-email-otp", r.URL.Path)
		_ = json.NewEncoder(w).Encode(MFAVerifyResponse{Message: "Success", Token: "session-token", RefreshToken: "refresh-token"})
	}))
	defer srv.Close()

	c, store := newTestClient(t, srv.URL)
	ctx := context.Background()

	_, err := c.VerifyLoginOTP(ctx, ChannelEmail, "333333")
	require.NoError(t, err)

	access, _ := store.Get(ctx, common.AccessTokenKey)
	refresh, _ := store.Get(ctx, common.RefreshTokenKey)
	assert.Equal(t, "session-token", access)
	assert.Equal(t, "refresh-token", refresh)
}
