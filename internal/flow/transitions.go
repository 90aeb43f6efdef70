package flow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/webauthn"
)

// StartRegistration switches from identifier entry to registration entry.
// Local transition, no server call.
func (c *Controller) StartRegistration() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepIdentifierEntry {
		c.advanceLocked(StepRegistrationEntry)
	}
}

// StartSignIn switches from registration entry to identifier entry.
func (c *Controller) StartSignIn() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.step == StepRegistrationEntry {
		c.advanceLocked(StepIdentifierEntry)
	}
}

// SubmitIdentifier begins a sign-in. The identifier must pass the local
// format check before anything is sent; the server decides whether a
// passkey challenge or a magic link follows.
func (c *Controller) SubmitIdentifier(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if !common.ValidIdentifier(identifier) {
		return common.ErrInvalidIdentifier
	}

	c.mu.Lock()
	if c.step != StepIdentifierEntry {
		c.mu.Unlock()
		return fmt.Errorf("flow: cannot submit identifier in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	capable := c.ceremonies != nil && c.ceremonies.Supported(ctx)
	err := c.client.LoginStart(ctx, identifier, capable)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.log.Debug(ctx, "login start failed", "err", err)
		c.errMsg = MsgGenericFailure
		return err
	}

	c.identifier = identifier
	if capable {
		c.advanceLocked(StepPasskeyChallenge)
	} else {
		c.advanceLocked(StepMagicLinkSent)
	}
	return nil
}

// PerformPasskeyLogin runs the assertion ceremony from the passkey
// challenge. A dismissed prompt keeps the challenge open without an
// alarming error; a platform without passkey support falls back to a
// magic link.
func (c *Controller) PerformPasskeyLogin(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPasskeyChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no passkey challenge in step %s", c.step)
	}
	gen := c.generation
	identifier := c.identifier
	c.mu.Unlock()

	res, err := c.ceremonies.PerformAuthentication(ctx)

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return nil
	}

	switch {
	case errors.Is(err, common.ErrCeremonyCancelled):
		// retryable, not a security event
		c.mu.Unlock()
		return err
	case errors.Is(err, common.ErrPasskeyNotSupported):
		c.mu.Unlock()
		return c.fallbackToMagicLink(ctx, gen, identifier)
	case err != nil:
		c.log.Debug(ctx, "passkey login failed", "err", err)
		c.errMsg = MsgGenericFailure
		c.mu.Unlock()
		return err
	}

	if res.MFARequired {
		c.enterMFALocked(identifier, res.MaskedEmail, res.MaskedPhone)
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	return c.finishAuthenticated(ctx, gen)
}

// UseMagicLink abandons the passkey challenge in favour of a magic link.
func (c *Controller) UseMagicLink(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPasskeyChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no passkey challenge in step %s", c.step)
	}
	gen := c.generation
	identifier := c.identifier
	c.mu.Unlock()

	return c.fallbackToMagicLink(ctx, gen, identifier)
}

func (c *Controller) fallbackToMagicLink(ctx context.Context, gen, identifier string) error {
	err := c.client.LoginStart(ctx, identifier, false)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.errMsg = MsgGenericFailure
		return err
	}
	c.advanceLocked(StepMagicLinkSent)
	return nil
}

// CompleteMagicLink finishes a magic-link sign-in with the token from the
// emailed link. Reachable from any step: links are opened out of band.
func (c *Controller) CompleteMagicLink(ctx context.Context, token string) error {
	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	_, err := c.client.VerifyMagicLink(ctx, token)

	if err != nil {
		c.log.Debug(ctx, "magic link verification failed", "err", err)
		c.mu.Lock()
		if !c.staleLocked(gen) {
			c.advanceLocked(StepIdentifierEntry)
			c.errMsg = MsgMagicLinkFailed
		}
		c.mu.Unlock()
		return err
	}

	return c.finishAuthenticated(ctx, gen)
}

// SubmitRegistration starts account creation. A duplicate account is the
// distinct user-visible case; everything else collapses to the generic
// message. Success opens both OTP challenges with their countdowns armed.
func (c *Controller) SubmitRegistration(ctx context.Context, email, phone string) error {
	email = strings.TrimSpace(email)
	phone = strings.TrimSpace(phone)
	if !common.ValidEmail(email) {
		return common.ErrInvalidIdentifier
	}
	if !common.ValidPhone(phone) {
		return common.ErrInvalidIdentifier
	}

	c.mu.Lock()
	if c.step != StepRegistrationEntry {
		c.mu.Unlock()
		return fmt.Errorf("flow: cannot register in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	_, err := c.client.Register(ctx, email, phone)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		if errors.Is(err, common.ErrDuplicateAccount) {
			c.errMsg = MsgDuplicateAccount
		} else {
			c.log.Debug(ctx, "registration failed", "err", err)
			c.errMsg = MsgGenericFailure
		}
		return err
	}

	c.email = email
	c.phone = phone
	c.advanceLocked(StepOTPChallenge)
	c.emailOTP = ChallengeState{}
	c.phoneOTP = ChallengeState{}
	c.startCountdownLocked(cdEmail)
	c.startCountdownLocked(cdPhone)
	return nil
}

// VerifyOTP submits a registration code for one channel. The two channels
// are independent; enrollment opens only when both are verified.
func (c *Controller) VerifyOTP(ctx context.Context, ch api.Channel, code string) error {
	if !common.ValidOTP(code) {
		return common.ErrInvalidVerifyCode
	}

	c.mu.Lock()
	if c.step != StepOTPChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no OTP challenge in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	err := c.client.VerifyOTP(ctx, ch, code)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		if errors.Is(err, common.ErrVerificationFailed) {
			c.errMsg = MsgInvalidCode
		} else {
			c.errMsg = MsgGenericFailure
		}
		return err
	}

	c.errMsg = ""
	if ch == api.ChannelEmail {
		c.emailOTP.Verified = true
	} else {
		c.phoneOTP.Verified = true
	}
	if c.emailOTP.Verified && c.phoneOTP.Verified {
		c.advanceLocked(StepPasskeyEnrollment)
	}
	return nil
}

// ResendOTP requests a fresh code for one channel, clears any prior
// verification error, and re-arms the channel's countdown.
func (c *Controller) ResendOTP(ctx context.Context, ch api.Channel) error {
	c.mu.Lock()
	if c.step != StepOTPChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no OTP challenge in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	_, err := c.client.GenerateOTP(ctx, ch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.errMsg = MsgGenericFailure
		return err
	}

	c.errMsg = ""
	if ch == api.ChannelEmail {
		c.startCountdownLocked(cdEmail)
	} else {
		c.startCountdownLocked(cdPhone)
	}
	return nil
}

// EnrollPasskey runs the registration ceremony from the enrollment step.
// The friendly name comes from a user prompt; platform and browser are
// parsed from the user-agent string.
func (c *Controller) EnrollPasskey(ctx context.Context, friendlyName, userAgent string) error {
	c.mu.Lock()
	if c.step != StepPasskeyEnrollment {
		c.mu.Unlock()
		return fmt.Errorf("flow: no passkey enrollment in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	if c.ceremonies == nil {
		return common.ErrPasskeyNotSupported
	}

	meta := webauthn.MetadataFromUserAgent(userAgent)
	if friendlyName != "" {
		meta.FriendlyName = friendlyName
	}

	_, err := c.ceremonies.PerformRegistration(ctx, meta)

	c.mu.Lock()
	if c.staleLocked(gen) {
		c.mu.Unlock()
		return nil
	}
	if err != nil {
		if !errors.Is(err, common.ErrCeremonyCancelled) {
			c.log.Debug(ctx, "passkey enrollment failed", "err", err)
			c.errMsg = MsgGenericFailure
		}
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	return c.finishAuthenticated(ctx, gen)
}

// SkipEnrollment completes registration without a passkey. Platforms
// with no authenticator still finish the flow; the account signs in via
// magic link until a passkey is enrolled elsewhere.
func (c *Controller) SkipEnrollment(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepPasskeyEnrollment {
		c.mu.Unlock()
		return fmt.Errorf("flow: no passkey enrollment in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	return c.finishAuthenticated(ctx, gen)
}

// SelectMFAChannel picks the delivery channel for the second factor and
// asks the server to send a code on it.
func (c *Controller) SelectMFAChannel(ctx context.Context, ch api.Channel) error {
	c.mu.Lock()
	if c.step != StepMFAChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no MFA challenge in step %s", c.step)
	}
	gen := c.generation
	c.mu.Unlock()

	_, err := c.client.GenerateLoginOTP(ctx, ch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.errMsg = MsgGenericFailure
		return err
	}

	c.errMsg = ""
	c.mfaChannel = ch
	c.mfa = ChallengeState{}
	c.startCountdownLocked(cdMFA)
	return nil
}

// VerifyMFA submits the second-factor code for the selected channel. On
// success the session validator runs before the flow declares itself
// authenticated.
func (c *Controller) VerifyMFA(ctx context.Context, code string) error {
	if !common.ValidOTP(code) {
		return common.ErrInvalidVerifyCode
	}

	c.mu.Lock()
	if c.step != StepMFAChallenge {
		c.mu.Unlock()
		return fmt.Errorf("flow: no MFA challenge in step %s", c.step)
	}
	if c.mfaChannel == "" {
		c.mu.Unlock()
		return fmt.Errorf("flow: no MFA channel selected")
	}
	gen := c.generation
	ch := c.mfaChannel
	c.mu.Unlock()

	_, err := c.client.VerifyLoginOTP(ctx, ch, code)

	if err != nil {
		c.mu.Lock()
		if !c.staleLocked(gen) {
			if errors.Is(err, common.ErrVerificationFailed) {
				c.errMsg = MsgInvalidCode
			} else {
				c.errMsg = MsgGenericFailure
			}
		}
		c.mu.Unlock()
		return err
	}

	return c.finishAuthenticated(ctx, gen)
}

// ResendMFA requests a fresh second-factor code on the selected channel.
func (c *Controller) ResendMFA(ctx context.Context) error {
	c.mu.Lock()
	if c.step != StepMFAChallenge || c.mfaChannel == "" {
		c.mu.Unlock()
		return fmt.Errorf("flow: no MFA channel selected in step %s", c.step)
	}
	gen := c.generation
	ch := c.mfaChannel
	c.mu.Unlock()

	_, err := c.client.GenerateLoginOTP(ctx, ch)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.errMsg = MsgGenericFailure
		return err
	}
	c.errMsg = ""
	c.startCountdownLocked(cdMFA)
	return nil
}

// RecoverAccount requests an account-recovery message. The notice is the
// same whether or not the identifier exists.
func (c *Controller) RecoverAccount(ctx context.Context, identifier string) error {
	identifier = strings.TrimSpace(identifier)
	if !common.ValidIdentifier(identifier) {
		return common.ErrInvalidIdentifier
	}

	c.mu.Lock()
	gen := c.generation
	c.mu.Unlock()

	err := c.client.RecoverAccount(ctx, identifier)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if err != nil {
		c.log.Debug(ctx, "recovery request failed", "err", err)
		c.errMsg = MsgGenericFailure
		return err
	}
	c.notice = MsgRecoverySent
	return nil
}

// Back abandons the current step. In-flight responses and timers for the
// abandoned step are discarded, never applied late.
func (c *Controller) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.step {
	case StepOTPChallenge:
		c.advanceLocked(StepRegistrationEntry)
		c.emailOTP = ChallengeState{}
		c.phoneOTP = ChallengeState{}
	case StepRegistrationEntry:
		c.advanceLocked(StepIdentifierEntry)
	case StepPasskeyChallenge, StepMagicLinkSent, StepMFAChallenge, StepPasskeyEnrollment:
		c.advanceLocked(StepIdentifierEntry)
		c.mfa = ChallengeState{}
		c.mfaChannel = ""
	}
}

// enterMFALocked opens the MFA challenge. Masked hints prefer what the
// server supplied and fall back to masking the submitted identifier.
func (c *Controller) enterMFALocked(identifier, maskedEmail, maskedPhone string) {
	c.advanceLocked(StepMFAChallenge)
	c.mfa = ChallengeState{}
	c.mfaChannel = ""

	c.maskedEmail = maskedEmail
	c.maskedPhone = maskedPhone
	if c.maskedEmail == "" && common.ValidEmail(identifier) {
		c.maskedEmail = common.MaskEmail(identifier)
	}
	if c.maskedPhone == "" && common.ValidPhone(identifier) {
		c.maskedPhone = common.MaskPhone(identifier)
	}
}

// finishAuthenticated runs the session validator and, when the step is
// still current, lands on Authenticated — only on the validator's
// success. A credential was issued but no session could be established
// otherwise, so the flow returns to identifier entry instead of claiming
// a session it does not have.
func (c *Controller) finishAuthenticated(ctx context.Context, gen string) error {
	ok := c.validator.Validate(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.staleLocked(gen) {
		return nil
	}
	if !ok {
		c.log.Debug(ctx, "session validation failed after credential issue")
		c.advanceLocked(StepIdentifierEntry)
		c.errMsg = MsgGenericFailure
		return common.ErrSessionExpired
	}
	c.advanceLocked(StepAuthenticated)
	return nil
}
