package flow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/webauthn"
)

type fakeFlowClient struct {
	mu sync.Mutex

	LoginStartErr error
	RegisterErr   error
	GenerateErr   error
	VerifyOTPErrs map[api.Channel]error
	VerifyMFAErr  error
	MagicLinkErr  error
	RecoverErr    error

	// VerifyOTPBlock, when non-nil, is received from before VerifyOTP
	// returns so tests can interleave navigation with an in-flight call.
	VerifyOTPBlock chan struct{}

	// VerifyOTPEntered, when non-nil, receives once when VerifyOTP is
	// entered so tests can tell the call is in flight before navigating.
	VerifyOTPEntered chan struct{}

	LastIdentifier     string
	LastPasskeyCapable bool
	LastEmail          string
	LastPhone          string
	LastOTPChannel     api.Channel
	LastOTPCode        string

	LoginStartCalls int
	GenerateCalls   int
	RecoverCalls    int
}

func (f *fakeFlowClient) LoginStart(ctx context.Context, identifier string, passkeyCapable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LoginStartCalls++
	f.LastIdentifier = identifier
	f.LastPasskeyCapable = passkeyCapable
	return f.LoginStartErr
}

func (f *fakeFlowClient) Register(ctx context.Context, email, phone string) (*api.MessageResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastEmail = email
	f.LastPhone = phone
	if f.RegisterErr != nil {
		return nil, f.RegisterErr
	}
	return &api.MessageResponse{Message: "Success"}, nil
}

func (f *fakeFlowClient) GenerateOTP(ctx context.Context, ch api.Channel) (*api.OTPResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GenerateCalls++
	f.LastOTPChannel = ch
	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}
	return &api.OTPResponse{Message: "sent"}, nil
}

func (f *fakeFlowClient) VerifyOTP(ctx context.Context, ch api.Channel, code string) error {
	if f.VerifyOTPEntered != nil {
		f.VerifyOTPEntered <- struct{}{}
	}
	if f.VerifyOTPBlock != nil {
		<-f.VerifyOTPBlock
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastOTPChannel = ch
	f.LastOTPCode = code
	return f.VerifyOTPErrs[ch]
}

func (f *fakeFlowClient) GenerateLoginOTP(ctx context.Context, ch api.Channel) (*api.OTPResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.GenerateCalls++
	f.LastOTPChannel = ch
	if f.GenerateErr != nil {
		return nil, f.GenerateErr
	}
	return &api.OTPResponse{Message: "sent"}, nil
}

func (f *fakeFlowClient) VerifyLoginOTP(ctx context.Context, ch api.Channel, code string) (*api.MFAVerifyResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.LastOTPChannel = ch
	f.LastOTPCode = code
	if f.VerifyMFAErr != nil {
		return nil, f.VerifyMFAErr
	}
	return &api.MFAVerifyResponse{Message: "Success"}, nil
}

func (f *fakeFlowClient) VerifyMagicLink(ctx context.Context, token string) (*api.MagicLinkResponse, error) {
	if f.MagicLinkErr != nil {
		return nil, f.MagicLinkErr
	}
	return &api.MagicLinkResponse{Message: "Success", Token: "issued"}, nil
}

func (f *fakeFlowClient) RecoverAccount(ctx context.Context, identifier string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RecoverCalls++
	return f.RecoverErr
}

type fakeCeremonies struct {
	supported bool
	AuthRes   *webauthn.AuthenticationResult
	AuthErr   error
	RegRes    *webauthn.RegistrationResult
	RegErr    error
}

func (f *fakeCeremonies) Supported(ctx context.Context) bool { return f.supported }

func (f *fakeCeremonies) PerformAuthentication(ctx context.Context) (*webauthn.AuthenticationResult, error) {
	return f.AuthRes, f.AuthErr
}

func (f *fakeCeremonies) PerformRegistration(ctx context.Context, meta api.DeviceMetadata) (*webauthn.RegistrationResult, error) {
	return f.RegRes, f.RegErr
}

type fakeValidator struct {
	mu            sync.Mutex
	ValidateCalls int
	ValidateFails bool
	priorSignIn   bool
}

func (f *fakeValidator) Validate(ctx context.Context) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ValidateCalls++
	return !f.ValidateFails
}

func (f *fakeValidator) HasPriorSignIn(ctx context.Context) bool { return f.priorSignIn }

func (f *fakeValidator) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ValidateCalls
}

func newTestController(t *testing.T, client *fakeFlowClient, cer *fakeCeremonies, val *fakeValidator) *Controller {
	t.Helper()
	c := New(Config{
		Client:           client,
		Ceremonies:       cer,
		Validator:        val,
		CountdownSeconds: 30,
	})
	c.tickInterval = time.Millisecond
	t.Cleanup(c.Close)
	return c
}

func TestNew_InitialStep(t *testing.T) {
	c := newTestController(t, &fakeFlowClient{}, &fakeCeremonies{}, &fakeValidator{priorSignIn: true})
	assert.Equal(t, StepIdentifierEntry, c.Step())

	c = newTestController(t, &fakeFlowClient{}, &fakeCeremonies{}, &fakeValidator{})
	assert.Equal(t, StepRegistrationEntry, c.Step())
	c.StartSignIn()
	assert.Equal(t, StepIdentifierEntry, c.Step())
}

func TestSubmitIdentifier_PasskeyCapable(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{supported: true}, &fakeValidator{priorSignIn: true})

	require.NoError(t, c.SubmitIdentifier(context.Background(), "user@example.com"))

	assert.Equal(t, StepPasskeyChallenge, c.Step())
	assert.Equal(t, "user@example.com", fc.LastIdentifier)
	assert.True(t, fc.LastPasskeyCapable)
}

func TestSubmitIdentifier_NoPasskeyMeansMagicLink(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{supported: false}, &fakeValidator{priorSignIn: true})

	require.NoError(t, c.SubmitIdentifier(context.Background(), "+15551234567"))
	assert.Equal(t, StepMagicLinkSent, c.Step())
	assert.False(t, fc.LastPasskeyCapable)
}

func TestSubmitIdentifier_InvalidFormatNeverReachesServer(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{priorSignIn: true})

	err := c.SubmitIdentifier(context.Background(), "not an identifier")
	require.ErrorIs(t, err, common.ErrInvalidIdentifier)
	assert.Equal(t, 0, fc.LoginStartCalls)
	assert.Equal(t, StepIdentifierEntry, c.Step())
}

func TestSubmitIdentifier_FailureStays(t *testing.T) {
	fc := &fakeFlowClient{LoginStartErr: errors.New("boom")}
	c := newTestController(t, fc, &fakeCeremonies{supported: true}, &fakeValidator{priorSignIn: true})

	require.Error(t, c.SubmitIdentifier(context.Background(), "user@example.com"))
	assert.Equal(t, StepIdentifierEntry, c.Step())
	assert.Equal(t, MsgGenericFailure, c.Snapshot().ErrorMessage)
}

func TestSubmitRegistration_DuplicateIsDistinct(t *testing.T) {
	fc := &fakeFlowClient{RegisterErr: common.ErrDuplicateAccount}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})

	err := c.SubmitRegistration(context.Background(), "a@b.com", "+15551234567")
	require.ErrorIs(t, err, common.ErrDuplicateAccount)

	snap := c.Snapshot()
	assert.Equal(t, StepRegistrationEntry, snap.Step)
	assert.Equal(t, MsgDuplicateAccount, snap.ErrorMessage)
}

func TestSubmitRegistration_OpensBothChallenges(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})

	require.NoError(t, c.SubmitRegistration(context.Background(), "a@b.com", "+15551234567"))

	snap := c.Snapshot()
	assert.Equal(t, StepOTPChallenge, snap.Step)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.False(t, snap.EmailOTP.Verified)
	assert.False(t, snap.PhoneOTP.Verified)
	assert.Greater(t, snap.EmailOTP.Remaining, 0)
	assert.Greater(t, snap.PhoneOTP.Remaining, 0)
}

func TestVerifyOTP_BothChannelsRequired(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))

	require.NoError(t, c.VerifyOTP(ctx, api.ChannelEmail, "111111"))
	snap := c.Snapshot()
	assert.Equal(t, StepOTPChallenge, snap.Step, "one channel alone must not advance")
	assert.True(t, snap.EmailOTP.Verified)
	assert.False(t, snap.PhoneOTP.Verified)

	require.NoError(t, c.VerifyOTP(ctx, api.ChannelPhone, "222222"))
	assert.Equal(t, StepPasskeyEnrollment, c.Step())
}

func TestVerifyOTP_RejectionStays(t *testing.T) {
	fc := &fakeFlowClient{VerifyOTPErrs: map[api.Channel]error{
		api.ChannelEmail: common.ErrVerificationFailed,
	}}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))
	require.ErrorIs(t, c.VerifyOTP(ctx, api.ChannelEmail, "000000"), common.ErrVerificationFailed)

	snap := c.Snapshot()
	assert.Equal(t, StepOTPChallenge, snap.Step)
	assert.Equal(t, MsgInvalidCode, snap.ErrorMessage)
	assert.False(t, snap.EmailOTP.Verified)
}

func TestVerifyOTP_MalformedCodeNeverReachesServer(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))
	require.ErrorIs(t, c.VerifyOTP(ctx, api.ChannelEmail, "12345"), common.ErrInvalidVerifyCode)
	assert.Empty(t, fc.LastOTPCode)
}

func TestResendOTP_ClearsErrorAndRearms(t *testing.T) {
	fc := &fakeFlowClient{VerifyOTPErrs: map[api.Channel]error{
		api.ChannelEmail: common.ErrVerificationFailed,
	}}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))
	_ = c.VerifyOTP(ctx, api.ChannelEmail, "000000")
	require.Equal(t, MsgInvalidCode, c.Snapshot().ErrorMessage)

	require.NoError(t, c.ResendOTP(ctx, api.ChannelEmail))
	snap := c.Snapshot()
	assert.Empty(t, snap.ErrorMessage)
	assert.False(t, snap.EmailOTP.ResendAvailable)
	assert.Greater(t, snap.EmailOTP.Remaining, 0)
}

func TestCountdown_ReachesResendAvailability(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})

	require.NoError(t, c.SubmitRegistration(context.Background(), "a@b.com", "+15551234567"))

	require.Eventually(t, func() bool {
		snap := c.Snapshot()
		return snap.EmailOTP.ResendAvailable && snap.PhoneOTP.ResendAvailable
	}, time.Second, 5*time.Millisecond)
}

func TestBack_AbandonedTimersAreInert(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})

	require.NoError(t, c.SubmitRegistration(context.Background(), "a@b.com", "+15551234567"))
	c.Back()
	require.Equal(t, StepRegistrationEntry, c.Step())

	// give abandoned tickers time to fire if they were still alive
	time.Sleep(20 * time.Millisecond)
	snap := c.Snapshot()
	assert.Equal(t, ChallengeState{}, snap.EmailOTP)
	assert.Equal(t, ChallengeState{}, snap.PhoneOTP)
}

func TestBack_LateVerificationIsDiscarded(t *testing.T) {
	block := make(chan struct{})
	entered := make(chan struct{})
	fc := &fakeFlowClient{VerifyOTPBlock: block, VerifyOTPEntered: entered}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{})
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))

	done := make(chan error, 1)
	go func() { done <- c.VerifyOTP(ctx, api.ChannelEmail, "111111") }()

	<-entered
	c.Back()
	close(block)
	require.NoError(t, <-done)

	// the success arrived for a step the user already left
	snap := c.Snapshot()
	assert.Equal(t, StepRegistrationEntry, snap.Step)
	assert.False(t, snap.EmailOTP.Verified)
}

func TestPasskeyLogin_MFARequired(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{priorSignIn: true}
	cer := &fakeCeremonies{
		supported: true,
		AuthRes:   &webauthn.AuthenticationResult{Verified: true, MFARequired: true, MaskedEmail: "j***@example.com"},
	}
	c := newTestController(t, fc, cer, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.PerformPasskeyLogin(ctx))

	snap := c.Snapshot()
	assert.Equal(t, StepMFAChallenge, snap.Step)
	assert.Equal(t, "j***@example.com", snap.MaskedEmail)
	assert.Equal(t, 0, fv.calls(), "validator must not run before the second factor")
}

func TestPasskeyLogin_TokenIssuedAuthenticates(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{priorSignIn: true}
	cer := &fakeCeremonies{
		supported: true,
		AuthRes:   &webauthn.AuthenticationResult{Verified: true, TokenIssued: true},
	}
	c := newTestController(t, fc, cer, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.PerformPasskeyLogin(ctx))

	assert.Equal(t, StepAuthenticated, c.Step())
	assert.Equal(t, 1, fv.calls())
}

func TestPasskeyLogin_CancelKeepsChallengeOpen(t *testing.T) {
	fc := &fakeFlowClient{}
	cer := &fakeCeremonies{supported: true, AuthErr: common.ErrCeremonyCancelled}
	c := newTestController(t, fc, cer, &fakeValidator{priorSignIn: true})
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.ErrorIs(t, c.PerformPasskeyLogin(ctx), common.ErrCeremonyCancelled)

	snap := c.Snapshot()
	assert.Equal(t, StepPasskeyChallenge, snap.Step)
	assert.Empty(t, snap.ErrorMessage, "a dismissed prompt is not an error state")
}

func TestUseMagicLink_FallsBack(t *testing.T) {
	fc := &fakeFlowClient{}
	cer := &fakeCeremonies{supported: true}
	c := newTestController(t, fc, cer, &fakeValidator{priorSignIn: true})
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.UseMagicLink(ctx))

	assert.Equal(t, StepMagicLinkSent, c.Step())
	assert.False(t, fc.LastPasskeyCapable)
	assert.Equal(t, 2, fc.LoginStartCalls)
}

func TestMFA_SelectVerifyAuthenticates(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{priorSignIn: true}
	cer := &fakeCeremonies{
		supported: true,
		AuthRes:   &webauthn.AuthenticationResult{Verified: true, MFARequired: true},
	}
	c := newTestController(t, fc, cer, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.PerformPasskeyLogin(ctx))
	require.NoError(t, c.SelectMFAChannel(ctx, api.ChannelPhone))

	snap := c.Snapshot()
	assert.Equal(t, api.ChannelPhone, snap.MFAChannel)
	assert.Greater(t, snap.MFA.Remaining, 0)

	require.NoError(t, c.VerifyMFA(ctx, "123456"))
	assert.Equal(t, StepAuthenticated, c.Step())
	assert.Equal(t, 1, fv.calls())
}

func TestMFA_VerifyWithoutChannelFails(t *testing.T) {
	fc := &fakeFlowClient{}
	cer := &fakeCeremonies{
		supported: true,
		AuthRes:   &webauthn.AuthenticationResult{Verified: true, MFARequired: true},
	}
	c := newTestController(t, fc, cer, &fakeValidator{priorSignIn: true})
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.PerformPasskeyLogin(ctx))
	require.Error(t, c.VerifyMFA(ctx, "123456"))
}

func TestEnrollPasskey_Authenticates(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{}
	cer := &fakeCeremonies{supported: true, RegRes: &webauthn.RegistrationResult{Verified: true}}
	c := newTestController(t, fc, cer, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitRegistration(ctx, "a@b.com", "+15551234567"))
	require.NoError(t, c.VerifyOTP(ctx, api.ChannelEmail, "111111"))
	require.NoError(t, c.VerifyOTP(ctx, api.ChannelPhone, "222222"))
	require.Equal(t, StepPasskeyEnrollment, c.Step())

	ua := "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"
	require.NoError(t, c.EnrollPasskey(ctx, "My Laptop", ua))

	assert.Equal(t, StepAuthenticated, c.Step())
	assert.Equal(t, 1, fv.calls())
}

func TestCompleteMagicLink_FailureReturnsToIdentifierEntry(t *testing.T) {
	fc := &fakeFlowClient{MagicLinkErr: errors.New("expired")}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{priorSignIn: true})
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.Error(t, c.CompleteMagicLink(ctx, "stale-link"))

	snap := c.Snapshot()
	assert.Equal(t, StepIdentifierEntry, snap.Step)
	assert.Equal(t, MsgMagicLinkFailed, snap.ErrorMessage)
}

func TestCompleteMagicLink_Success(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{priorSignIn: true}
	c := newTestController(t, fc, &fakeCeremonies{}, fv)

	require.NoError(t, c.CompleteMagicLink(context.Background(), "link-token"))
	assert.Equal(t, StepAuthenticated, c.Step())
	assert.Equal(t, 1, fv.calls())
}

func TestCompleteMagicLink_ValidationFailureDoesNotAuthenticate(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{ValidateFails: true, priorSignIn: true}
	c := newTestController(t, fc, &fakeCeremonies{}, fv)

	err := c.CompleteMagicLink(context.Background(), "link-token")
	require.ErrorIs(t, err, common.ErrSessionExpired)

	// the credential was issued but no session exists; claiming
	// Authenticated here would contradict the session store
	snap := c.Snapshot()
	assert.Equal(t, StepIdentifierEntry, snap.Step)
	assert.Equal(t, MsgGenericFailure, snap.ErrorMessage)
	assert.Equal(t, 1, fv.calls())
}

func TestVerifyMFA_ValidationFailureDoesNotAuthenticate(t *testing.T) {
	fc := &fakeFlowClient{}
	cer := &fakeCeremonies{
		supported: true,
		AuthRes:   &webauthn.AuthenticationResult{Verified: true, MFARequired: true},
	}
	fv := &fakeValidator{ValidateFails: true, priorSignIn: true}
	c := newTestController(t, fc, cer, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.NoError(t, c.PerformPasskeyLogin(ctx))
	require.NoError(t, c.SelectMFAChannel(ctx, api.ChannelEmail))

	require.ErrorIs(t, c.VerifyMFA(ctx, "123456"), common.ErrSessionExpired)
	assert.NotEqual(t, StepAuthenticated, c.Step())
	assert.Equal(t, StepIdentifierEntry, c.Step())
}

func TestRecoverAccount_NoticeOnSuccess(t *testing.T) {
	fc := &fakeFlowClient{}
	c := newTestController(t, fc, &fakeCeremonies{}, &fakeValidator{priorSignIn: true})

	require.NoError(t, c.RecoverAccount(context.Background(), "user@example.com"))
	assert.Equal(t, MsgRecoverySent, c.Snapshot().Notice)
}

func TestReset_ReturnsToInitialStep(t *testing.T) {
	fc := &fakeFlowClient{}
	fv := &fakeValidator{priorSignIn: true}
	c := newTestController(t, fc, &fakeCeremonies{supported: true}, fv)
	ctx := context.Background()

	require.NoError(t, c.SubmitIdentifier(ctx, "user@example.com"))
	require.Equal(t, StepPasskeyChallenge, c.Step())

	c.Reset()
	snap := c.Snapshot()
	assert.Equal(t, StepIdentifierEntry, snap.Step)
	assert.Empty(t, snap.Identifier)
	assert.Equal(t, ChallengeState{}, snap.EmailOTP)
}
