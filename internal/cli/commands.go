package cli

import (
	"context"
	"fmt"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/flow"
)

func (a *App) printf(format string, args ...any) {
	fmt.Fprintf(a.out, format, args...)
}

// report prints the flow's current user-visible messages after a
// transition attempt.
func (a *App) report() {
	snap := a.flow.Snapshot()
	if snap.ErrorMessage != "" {
		a.printf("! %s\n", snap.ErrorMessage)
	}
	if snap.Notice != "" {
		a.printf("%s\n", snap.Notice)
	}

	switch snap.Step {
	case flow.StepMagicLinkSent:
		a.printf("A sign-in link is on its way. Use 'link' to paste its token.\n")
	case flow.StepOTPChallenge:
		a.printf("Codes sent to %s and %s. Use 'verify email' / 'verify phone'.\n", snap.Email, snap.Phone)
	case flow.StepMFAChallenge:
		a.printf("Second factor required")
		if snap.MaskedEmail != "" || snap.MaskedPhone != "" {
			a.printf(" (%s / %s)", snap.MaskedEmail, snap.MaskedPhone)
		}
		a.printf(". Pick a channel with 'mfa email' or 'mfa phone'.\n")
	case flow.StepPasskeyEnrollment:
		a.printf("Both channels verified. No authenticator here; 'skip' finishes registration.\n")
	case flow.StepAuthenticated:
		if u, ok := a.sessions.User(); ok {
			a.printf("Signed in as %s\n", u.Email)
		}
	}
}

func channelArg(args []string) (api.Channel, error) {
	if len(args) == 0 {
		return "", fmt.Errorf("channel required: email or phone")
	}
	switch args[0] {
	case "email":
		return api.ChannelEmail, nil
	case "phone":
		return api.ChannelPhone, nil
	default:
		return "", fmt.Errorf("unknown channel %q", args[0])
	}
}

func (a *App) Register(ctx context.Context) error {
	a.flow.StartRegistration()

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	phone, err := GetSimpleText(a.reader, "Enter phone (E.164, e.g. +15551234567)", a.out)
	if err != nil {
		return err
	}

	if err := a.flow.SubmitRegistration(ctx, email, phone); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) Login(ctx context.Context) error {
	a.flow.StartSignIn()

	identifier, err := GetSimpleText(a.reader, "Enter email or phone", a.out)
	if err != nil {
		return err
	}

	if err := a.flow.SubmitIdentifier(ctx, identifier); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) Verify(ctx context.Context, args []string) error {
	ch, err := channelArg(args)
	if err != nil {
		a.printf("! %v\n", err)
		return err
	}
	code, err := GetSimpleText(a.reader, fmt.Sprintf("Enter the 6-digit %s code", ch), a.out)
	if err != nil {
		return err
	}

	if err := a.flow.VerifyOTP(ctx, ch, code); err != nil {
		a.report()
		return err
	}
	a.printf("%s verified.\n", ch)
	a.report()
	return nil
}

func (a *App) Resend(ctx context.Context, args []string) error {
	ch, err := channelArg(args)
	if err != nil {
		a.printf("! %v\n", err)
		return err
	}
	if err := a.flow.ResendOTP(ctx, ch); err != nil {
		a.report()
		return err
	}
	a.printf("Code resent to %s.\n", ch)
	return nil
}

func (a *App) Skip(ctx context.Context) error {
	if err := a.flow.SkipEnrollment(ctx); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) Link(ctx context.Context) error {
	token, err := GetSecret("Paste the magic-link token", a.out)
	if err != nil {
		return err
	}
	if err := a.flow.CompleteMagicLink(ctx, token); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) MFA(ctx context.Context, args []string) error {
	ch, err := channelArg(args)
	if err != nil {
		a.printf("! %v\n", err)
		return err
	}
	if err := a.flow.SelectMFAChannel(ctx, ch); err != nil {
		a.report()
		return err
	}
	a.printf("Code sent to %s. Use 'code <otp>'.\n", ch)
	return nil
}

func (a *App) Code(ctx context.Context, args []string) error {
	var code string
	if len(args) > 0 {
		code = args[0]
	} else {
		var err error
		code, err = GetSimpleText(a.reader, "Enter the 6-digit code", a.out)
		if err != nil {
			return err
		}
	}

	if err := a.flow.VerifyMFA(ctx, code); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) Recover(ctx context.Context) error {
	identifier, err := GetSimpleText(a.reader, "Enter email or phone to recover", a.out)
	if err != nil {
		return err
	}
	if err := a.flow.RecoverAccount(ctx, identifier); err != nil {
		a.report()
		return err
	}
	a.report()
	return nil
}

func (a *App) WhoAmI(ctx context.Context) error {
	u, ok := a.sessions.User()
	if !ok {
		a.printf("Not signed in.\n")
		return nil
	}
	a.printf("id: %s\nemail: %s\n", u.ID, u.Email)
	if u.Phone != "" {
		a.printf("phone: %s\n", u.Phone)
	}
	if len(u.Roles) > 0 {
		a.printf("roles: %v\n", u.Roles)
	}
	return nil
}

func (a *App) Creds(ctx context.Context) error {
	creds, err := a.client.ListCredentials(ctx)
	if err != nil {
		a.printf("! could not list passkeys: %v\n", err)
		return err
	}
	if len(creds) == 0 {
		a.printf("No passkeys registered.\n")
		return nil
	}
	for _, c := range creds {
		a.printf("%s  %s (%s/%s)\n", c.ID, c.FriendlyName, c.Platform, c.Browser)
	}
	return nil
}

func (a *App) Rename(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: rename <credential-id>\n")
		return nil
	}
	name, err := GetSimpleText(a.reader, "New name", a.out)
	if err != nil {
		return err
	}
	if err := a.client.RenameCredential(ctx, args[0], name); err != nil {
		a.printf("! rename failed: %v\n", err)
		return err
	}
	a.printf("Renamed.\n")
	return nil
}

func (a *App) RemoveCred(ctx context.Context, args []string) error {
	if len(args) == 0 {
		a.printf("Usage: rmcred <credential-id>\n")
		return nil
	}
	if err := a.client.DeleteCredential(ctx, args[0]); err != nil {
		a.printf("! delete failed: %v\n", err)
		return err
	}
	a.printf("Deleted.\n")
	return nil
}

func (a *App) Back(ctx context.Context) error {
	a.flow.Back()
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	a.validator.Logout(ctx)
	a.flow.Reset()
	a.printf("Signed out.\n")
	return nil
}

// Delete removes the account after an explicit confirmation.
func (a *App) Delete(ctx context.Context) error {
	confirm, err := GetSimpleText(a.reader, "Type 'delete' to permanently remove this account", a.out)
	if err != nil {
		return err
	}
	if confirm != "delete" {
		a.printf("Aborted.\n")
		return nil
	}
	if err := a.validator.DeleteUser(ctx); err != nil {
		a.printf("! delete failed: %v\n", err)
		return err
	}
	a.flow.Reset()
	a.printf("Account deleted.\n")
	return nil
}
