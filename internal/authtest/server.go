// Package authtest is an in-process fake of the remote SeamlessAuth
// service. It implements the endpoint surface faithfully enough to
// exercise every client path, with knobs for the behaviors a real server
// would decide: whether MFA is demanded, which status signals an expired
// credential, and forced failures per endpoint. Verification codes are
// fixed and retrievable so tests can complete challenges.
package authtest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/fells-code/seamless-auth-go/internal/api"
)

// Fixed verification codes. Anything else is rejected.
const (
	EmailOTP    = "111111"
	PhoneOTP    = "222222"
	MFAEmailOTP = "333333"
	MFAPhoneOTP = "444444"
)

type account struct {
	id    string
	email string
	phone string
	roles []string
}

// Server is the fake service. Mutate the exported knobs between requests;
// all handlers take the lock.
type Server struct {
	mu sync.Mutex

	// MFARequired makes webAuthn/login/finish demand a second factor
	// instead of issuing a session.
	MFARequired bool
	// AuthorityStatus is the status returned for a rejected credential.
	// Deployments disagree on 401 vs 403; default 401.
	AuthorityStatus int

	httpServer *httptest.Server
	secret     []byte

	accounts      map[string]*account
	pending       *account
	currentAccess string
	refreshTokens map[string]string // refresh token → account id
	magicLink     string
	credentials   []api.CredentialRecord

	refreshCalls int
	failures     map[string]int
}

// New builds and starts the fake service. Close it with Close.
func New() *Server {
	s := &Server{
		AuthorityStatus: http.StatusUnauthorized,
		secret:          []byte("authtest-secret"),
		accounts:        make(map[string]*account),
		refreshTokens:   make(map[string]string),
		magicLink:       uuid.NewString(),
		failures:        make(map[string]int),
	}
	s.httpServer = httptest.NewServer(s.router())
	return s
}

// URL is the base host to hand to the client under test.
func (s *Server) URL() string { return s.httpServer.URL }

func (s *Server) Close() { s.httpServer.Close() }

// FailWith forces the given status on every request to path until cleared
// with a zero status. Paths are keyed without the /auth prefix, e.g.
// "users/me" or "refresh-token".
func (s *Server) FailWith(path string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.failures, path)
		return
	}
	s.failures[path] = status
}

// RefreshCalls reports how many refresh attempts the server has seen.
func (s *Server) RefreshCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.refreshCalls
}

// MagicLinkToken is the token a "sent" magic link would carry.
func (s *Server) MagicLinkToken() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.magicLink
}

// SeedAccount registers an account directly, bypassing the endpoints.
func (s *Server) SeedAccount(email, phone string, roles ...string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := &account{id: uuid.NewString(), email: email, phone: phone, roles: roles}
	s.accounts[email] = a
	return a.id
}

// SeedSession issues a valid access/refresh pair for the given account
// email, as if a sign-in had completed.
func (s *Server) SeedSession(email string) (access, refresh string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.accounts[email]
	if a == nil {
		a = &account{id: uuid.NewString(), email: email}
		s.accounts[email] = a
	}
	return s.issueLocked(a)
}

// ExpireAccess invalidates the current access token while keeping the
// refresh token valid, simulating silent expiry.
func (s *Server) ExpireAccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentAccess = ""
}

// issueLocked mints a fresh pair and invalidates the previous one.
func (s *Server) issueLocked(a *account) (access, refresh string) {
	claims := jwt.MapClaims{
		"sub":   a.id,
		"email": a.email,
		"exp":   time.Now().Add(15 * time.Minute).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString(s.secret)
	if err != nil {
		panic(err) // static key and claims; cannot fail
	}

	refresh = uuid.NewString()
	s.currentAccess = signed
	s.refreshTokens = map[string]string{refresh: a.id}
	return signed, refresh
}

// bearerAccount resolves the Authorization header to an account, or nil
// when the presented token is not the current one.
func (s *Server) bearerAccountLocked(r *http.Request) *account {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok || token == "" || token != s.currentAccess {
		return nil
	}

	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) { return s.secret, nil })
	if err != nil || !parsed.Valid {
		return nil
	}
	claims, _ := parsed.Claims.(jwt.MapClaims)
	email, _ := claims["email"].(string)
	return s.accounts[email]
}

// router exposes the endpoint surface twice: unprefixed for web-mode
// clients and under /auth for server-mode ones. The "auth/"-rooted paths
// (refresh-token, verify) land on the /auth mount in both modes.
func (s *Server) router() http.Handler {
	outer := chi.NewRouter()
	outer.Use(s.failureInjector)
	outer.Mount("/auth", s.routes())
	outer.Mount("/", s.routes())
	return outer
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/login", s.handleLogin)
	r.Post("/registration/register", s.handleRegister)

	r.Get("/otp/generate-email-otp", s.handleGenerateOTP)
	r.Get("/otp/generate-phone-otp", s.handleGenerateOTP)
	r.Post("/otp/verify-email-otp", s.verifyOTPHandler(EmailOTP, false))
	r.Post("/otp/verify-phone-otp", s.verifyOTPHandler(PhoneOTP, false))
	r.Get("/otp/generate-login-email-otp", s.handleGenerateOTP)
	r.Get("/otp/generate-login-phone-otp", s.handleGenerateOTP)
	r.Post("/otp/verify-login-email-otp", s.verifyOTPHandler(MFAEmailOTP, true))
	r.Post("/otp/verify-login-phone-otp", s.verifyOTPHandler(MFAPhoneOTP, true))

	r.Get("/webAuthn/register/start", s.handleRegistrationStart)
	r.Post("/webAuthn/register/finish", s.handleRegistrationFinish)
	r.Post("/webAuthn/login/start", s.handleAuthenticationStart)
	r.Post("/webAuthn/login/finish", s.handleAuthenticationFinish)
	r.Get("/webAuthn/credentials", s.handleListCredentials)
	r.Put("/webAuthn/credentials/{id}", s.handleRenameCredential)
	r.Delete("/webAuthn/credentials/{id}", s.handleDeleteCredential)

	r.Get("/users/me", s.handleMe)
	r.Delete("/users/delete", s.handleDeleteUser)
	r.Get("/logout", s.handleLogout)
	r.Post("/recovery", s.handleRecovery)

	r.Post("/verify", s.handleMagicLink)
	r.Post("/refresh-token", s.handleRefresh)
	r.Get("/refresh-token", s.handleRefresh)

	return r
}

// failureInjector short-circuits paths configured via FailWith. Keys are
// normalized with the /auth prefix removed, so prefixed and unprefixed
// forms of the same endpoint fail alike ("users/me", "refresh-token").
func (s *Server) failureInjector(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(r.URL.Path, "/auth")
		path = strings.TrimPrefix(path, "/")

		s.mu.Lock()
		status, forced := s.failures[path]
		s.mu.Unlock()
		if forced {
			w.WriteHeader(status)
			return
		}
		next.ServeHTTP(w, r)
	})
}
