// Package validator answers "who is the current user" authoritatively and
// owns the forced-logout path. It is the only writer of the session store.
package validator

import (
	"context"
	"sync/atomic"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/logging"
	"github.com/fells-code/seamless-auth-go/internal/session"
	"github.com/fells-code/seamless-auth-go/internal/storage"
)

// Client is the slice of the API client the validator needs.
type Client interface {
	Me(ctx context.Context) (*api.MeResponse, error)
	Logout(ctx context.Context) error
	DeleteUser(ctx context.Context) error
	StoreTokens(ctx context.Context, accessToken, refreshToken string) error
	ClearTokens(ctx context.Context)
	AccessCredential(ctx context.Context) (session.Credential, bool)
}

// Validator hydrates the session store from the identity endpoint. Run it
// once at startup and again after every credential-issuing event.
type Validator struct {
	client   Client
	sessions *session.Store
	store    storage.Store
	log      logging.Logger
	busy     atomic.Bool
}

func New(client Client, sessions *session.Store, store storage.Store, log logging.Logger) *Validator {
	if log == nil {
		log = logging.NopLogger{}
	}
	return &Validator{client: client, sessions: sessions, store: store, log: log}
}

// Busy reports whether a validation is in flight. Presentation uses it to
// suppress premature redirects.
func (v *Validator) Busy() bool {
	return v.busy.Load()
}

// Validate queries the identity endpoint and hydrates the session store,
// reporting whether a session now exists. Any failure — network,
// rejection, malformed body — forces a logout and returns false:
// "couldn't validate" and "not logged in" are indistinguishable on
// purpose, so a stale credential can never look ambiguous.
func (v *Validator) Validate(ctx context.Context) bool {
	v.busy.Store(true)
	defer v.busy.Store(false)

	resp, err := v.client.Me(ctx)
	if err != nil {
		v.log.Debug(ctx, "identity validation failed", "err", err)
		v.Logout(ctx)
		return false
	}
	if resp.User.ID == "" {
		v.log.Warn(ctx, "identity endpoint returned no user")
		v.Logout(ctx)
		return false
	}

	if resp.Credential != "" {
		if err := v.client.StoreTokens(ctx, resp.Credential, ""); err != nil {
			v.log.Error(ctx, "failed to persist issued credential", "err", err)
			v.Logout(ctx)
			return false
		}
	}

	var cred *session.Credential
	if c, ok := v.client.AccessCredential(ctx); ok {
		cred = &c
	}
	v.sessions.Hydrate(resp.User, cred)
	v.markSignedIn(ctx)
	return true
}

// Logout clears the session. The server call is best effort; local state
// is cleared regardless, atomically from the point of view of readers.
func (v *Validator) Logout(ctx context.Context) {
	if v.sessions.IsAuthenticated() {
		if err := v.client.Logout(ctx); err != nil {
			v.log.Debug(ctx, "server logout failed", "err", err)
		}
	} else {
		v.client.ClearTokens(ctx)
	}
	v.sessions.Clear()
}

// HandleSessionExpired is wired into the API client's refresh-failure
// hook. Tokens are already wiped by then; only local state remains.
func (v *Validator) HandleSessionExpired(ctx context.Context) {
	v.log.Info(ctx, "session expired, clearing local state")
	v.sessions.Clear()
}

// DeleteUser removes the account and clears every trace of the session.
func (v *Validator) DeleteUser(ctx context.Context) error {
	if err := v.client.DeleteUser(ctx); err != nil {
		return err
	}
	v.sessions.Clear()
	return nil
}

// markSignedIn persists the returning-user marker. Storage failures are
// ignored: the marker only biases the default UI mode.
func (v *Validator) markSignedIn(ctx context.Context) {
	if v.store == nil {
		return
	}
	_ = v.store.Set(ctx, common.PriorSignInKey, common.PriorSignInValue)
}

// HasPriorSignIn reports whether this installation has completed a
// sign-in before. Advisory only.
func (v *Validator) HasPriorSignIn(ctx context.Context) bool {
	if v.store == nil {
		return false
	}
	seen, err := v.store.Get(ctx, common.PriorSignInKey)
	return err == nil && seen == common.PriorSignInValue
}
