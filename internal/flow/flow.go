// Package flow is the authentication state machine. One Controller owns
// the closed set of steps a sign-in or registration can be in, and every
// forward transition fires only on a server-confirmed success. Client-side
// validation gates submission, never transitions.
package flow

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/logging"
	"github.com/fells-code/seamless-auth-go/internal/webauthn"
)

// Step identifies where the flow currently is.
type Step string

const (
	StepIdentifierEntry   Step = "identifier_entry"
	StepRegistrationEntry Step = "registration_entry"
	StepPasskeyChallenge  Step = "passkey_challenge"
	StepMagicLinkSent     Step = "magic_link_sent"
	StepOTPChallenge      Step = "otp_challenge"
	StepMFAChallenge      Step = "mfa_challenge"
	StepPasskeyEnrollment Step = "passkey_enrollment"
	StepAuthenticated     Step = "authenticated"
)

// User-visible messages. The generic one deliberately covers every failure
// without a distinct UX meaning, including recovery 404s.
const (
	MsgGenericFailure   = "Something went wrong. Please try again."
	MsgDuplicateAccount = "An account with that email or phone already exists."
	MsgInvalidCode      = "Invalid or expired code. Please try again."
	MsgMagicLinkFailed  = "We couldn't verify that link. Try requesting a new one."
	MsgRecoverySent     = "If an account exists for that identifier, a recovery message is on its way."
)

// defaultCountdownSeconds is the advisory resend window shown next to a
// challenge. The server remains the sole arbiter of code expiry.
const defaultCountdownSeconds = 300

// ChallengeState is the advisory client-side view of one pending code.
type ChallengeState struct {
	// Remaining seconds on the resend countdown.
	Remaining int
	// ResendAvailable flips when the countdown reaches zero. It never
	// blocks submission.
	ResendAvailable bool
	// Verified is set when the server accepted a code for this channel.
	Verified bool
}

// Snapshot is a copy of the controller's observable state.
type Snapshot struct {
	Step       Step
	Identifier string
	Email      string
	Phone      string

	// ErrorMessage is the user-visible error for the current step, empty
	// when the last action succeeded.
	ErrorMessage string
	// Notice is informational ("recovery message sent").
	Notice string

	// OTP challenge state, one per registration channel.
	EmailOTP ChallengeState
	PhoneOTP ChallengeState

	// MFA challenge state.
	MFAChannel  api.Channel
	MFA         ChallengeState
	MaskedEmail string
	MaskedPhone string
}

// Client is the slice of the API client the controller drives.
type Client interface {
	LoginStart(ctx context.Context, identifier string, passkeyCapable bool) error
	Register(ctx context.Context, email, phone string) (*api.MessageResponse, error)
	GenerateOTP(ctx context.Context, ch api.Channel) (*api.OTPResponse, error)
	VerifyOTP(ctx context.Context, ch api.Channel, code string) error
	GenerateLoginOTP(ctx context.Context, ch api.Channel) (*api.OTPResponse, error)
	VerifyLoginOTP(ctx context.Context, ch api.Channel, code string) (*api.MFAVerifyResponse, error)
	VerifyMagicLink(ctx context.Context, token string) (*api.MagicLinkResponse, error)
	RecoverAccount(ctx context.Context, identifier string) error
}

// Ceremonies is the passkey adapter surface.
type Ceremonies interface {
	Supported(ctx context.Context) bool
	PerformAuthentication(ctx context.Context) (*webauthn.AuthenticationResult, error)
	PerformRegistration(ctx context.Context, meta api.DeviceMetadata) (*webauthn.RegistrationResult, error)
}

// SessionValidator runs after every credential-issuing event. Validate
// reports whether a session was established.
type SessionValidator interface {
	Validate(ctx context.Context) bool
	HasPriorSignIn(ctx context.Context) bool
}

// countdown targets inside the controller.
type countdownTarget int

const (
	cdEmail countdownTarget = iota
	cdPhone
	cdMFA
)

// Config assembles a Controller.
type Config struct {
	Client     Client
	Ceremonies Ceremonies
	Validator  SessionValidator
	Logger     logging.Logger
	// CountdownSeconds overrides the advisory resend window. Zero means
	// the default.
	CountdownSeconds int
}

// Controller is the authentication flow state machine. All methods are
// safe for concurrent use. In-flight work is tagged with the generation it
// belongs to; a response arriving after the user navigated away is
// discarded instead of resurrecting the abandoned step.
type Controller struct {
	client     Client
	ceremonies Ceremonies
	validator  SessionValidator
	log        logging.Logger

	countdownSeconds int
	tickInterval     time.Duration

	mu         sync.Mutex
	step       Step
	generation string
	genCtx     context.Context
	genCancel  context.CancelFunc
	cdCancel   [3]context.CancelFunc

	identifier  string
	email       string
	phone       string
	errMsg      string
	notice      string
	emailOTP    ChallengeState
	phoneOTP    ChallengeState
	mfa         ChallengeState
	mfaChannel  api.Channel
	maskedEmail string
	maskedPhone string
}

// New builds a Controller. The initial step is identifier entry for
// returning installations and registration entry otherwise.
func New(cfg Config) *Controller {
	log := cfg.Logger
	if log == nil {
		log = logging.NopLogger{}
	}
	seconds := cfg.CountdownSeconds
	if seconds <= 0 {
		seconds = defaultCountdownSeconds
	}

	c := &Controller{
		client:           cfg.Client,
		ceremonies:       cfg.Ceremonies,
		validator:        cfg.Validator,
		log:              log,
		countdownSeconds: seconds,
		tickInterval:     time.Second,
	}

	step := StepRegistrationEntry
	if cfg.Validator != nil && cfg.Validator.HasPriorSignIn(context.Background()) {
		step = StepIdentifierEntry
	}
	c.step = step
	c.generation = uuid.NewString()
	c.genCtx, c.genCancel = context.WithCancel(context.Background())
	return c
}

// Snapshot returns a copy of the observable state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{
		Step:         c.step,
		Identifier:   c.identifier,
		Email:        c.email,
		Phone:        c.phone,
		ErrorMessage: c.errMsg,
		Notice:       c.notice,
		EmailOTP:     c.emailOTP,
		PhoneOTP:     c.phoneOTP,
		MFAChannel:   c.mfaChannel,
		MFA:          c.mfa,
		MaskedEmail:  c.maskedEmail,
		MaskedPhone:  c.maskedPhone,
	}
}

// Step returns the current step.
func (c *Controller) Step() Step {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.step
}

// advanceLocked moves to a new step: the generation is bumped so stale
// responses and timers belonging to the old step become inert, and
// per-step messages are cleared.
func (c *Controller) advanceLocked(step Step) {
	c.genCancel()
	c.genCtx, c.genCancel = context.WithCancel(context.Background())
	c.generation = uuid.NewString()
	c.cdCancel = [3]context.CancelFunc{}
	c.step = step
	c.errMsg = ""
	c.notice = ""
}

// staleLocked reports whether gen no longer identifies the current step.
func (c *Controller) staleLocked(gen string) bool {
	return c.generation != gen
}

func (c *Controller) challengeLocked(target countdownTarget) *ChallengeState {
	switch target {
	case cdEmail:
		return &c.emailOTP
	case cdPhone:
		return &c.phoneOTP
	default:
		return &c.mfa
	}
}

// startCountdownLocked arms the advisory resend countdown for one target.
// The ticker goroutine stops on generation change, on cancellation, or
// when the countdown hits zero. Restarting a target cancels its previous
// ticker first so a resend never double-ticks.
func (c *Controller) startCountdownLocked(target countdownTarget) {
	if cancel := c.cdCancel[target]; cancel != nil {
		cancel()
	}

	st := c.challengeLocked(target)
	st.Remaining = c.countdownSeconds
	st.ResendAvailable = false

	ctx, cancel := context.WithCancel(c.genCtx)
	c.cdCancel[target] = cancel
	gen := c.generation

	go func() {
		t := time.NewTicker(c.tickInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				c.mu.Lock()
				if c.staleLocked(gen) {
					c.mu.Unlock()
					return
				}
				st := c.challengeLocked(target)
				if st.Remaining > 0 {
					st.Remaining--
				}
				if st.Remaining == 0 {
					st.ResendAvailable = true
					c.mu.Unlock()
					return
				}
				c.mu.Unlock()
			}
		}
	}()
}

// Reset returns the flow to its initial step. Wired to the session-expired
// path so a dead session never leaves a half-finished challenge around.
func (c *Controller) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	step := StepRegistrationEntry
	if c.validator != nil && c.validator.HasPriorSignIn(context.Background()) {
		step = StepIdentifierEntry
	}
	c.advanceLocked(step)
	c.identifier = ""
	c.email = ""
	c.phone = ""
	c.emailOTP = ChallengeState{}
	c.phoneOTP = ChallengeState{}
	c.mfa = ChallengeState{}
	c.mfaChannel = ""
	c.maskedEmail = ""
	c.maskedPhone = ""
}

// Close cancels all timers and in-flight effect delivery.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.genCancel()
	c.generation = uuid.NewString()
}
