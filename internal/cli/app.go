// Package cli is the interactive demo shell for the SeamlessAuth client.
// It drives the authentication flow controller from a terminal: terminals
// have no platform authenticator, so sign-in degrades to magic links and
// OTP challenges, which is exactly the fallback path the SDK promises.
package cli

import (
	"bufio"
	"context"
	"database/sql"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"os"
	"time"

	"github.com/fells-code/seamless-auth-go/internal/api"
	"github.com/fells-code/seamless-auth-go/internal/config"
	"github.com/fells-code/seamless-auth-go/internal/cryptox"
	"github.com/fells-code/seamless-auth-go/internal/flow"
	"github.com/fells-code/seamless-auth-go/internal/logging"
	"github.com/fells-code/seamless-auth-go/internal/session"
	"github.com/fells-code/seamless-auth-go/internal/storage"
	"github.com/fells-code/seamless-auth-go/internal/validator"
)

// storageSalt fixes the argon2 salt for the at-rest sealing key. The
// secret itself comes from configuration.
var storageSalt = []byte("seamless-auth-client-v1")

// App wires the SDK components together behind the REPL.
type App struct {
	cfg       *config.Config
	log       logging.Logger
	client    *api.Client
	sessions  *session.Store
	store     storage.Store
	validator *validator.Validator
	flow      *flow.Controller

	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
}

// NewApp assembles the client stack from configuration.
func NewApp(cfg *config.Config) (*App, error) {
	log := logging.NewSlogLogger(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	store, db, err := openStore(cfg)
	if err != nil {
		return nil, err
	}

	httpClient, err := newHTTPClient(cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	client, err := api.NewClient(api.Config{
		Host:        cfg.Host,
		Mode:        cfg.Mode,
		Credentials: cfg.Credentials,
		HTTPClient:  httpClient,
		Storage:     store,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	sessions := session.NewStore()
	val := validator.New(client, sessions, store, log)
	client.SetSessionExpiredHook(val.HandleSessionExpired)

	ctrl := flow.New(flow.Config{
		Client:    client,
		Validator: val,
		Logger:    log,
	})

	return &App{
		cfg:       cfg,
		log:       log,
		client:    client,
		sessions:  sessions,
		store:     store,
		validator: val,
		flow:      ctrl,
		db:        db,
		reader:    bufio.NewReader(os.Stdin),
		out:       os.Stdout,
	}, nil
}

// newHTTPClient builds the transport every request shares: one cookie jar
// (cookie-mode credentials live there) and the configured timeout.
func newHTTPClient(timeout time.Duration) (*http.Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &http.Client{Jar: jar, Timeout: timeout}, nil
}

// openStore builds the persistence layer: sqlite when a DSN is
// configured, sealed when a storage secret is set, in-memory otherwise.
func openStore(cfg *config.Config) (storage.Store, *sql.DB, error) {
	var inner storage.Store = storage.NewMemoryStore()
	var db *sql.DB

	if cfg.DatabaseDSN != "" {
		opened, err := storage.InitDatabase(context.Background(), cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, err
		}
		db = opened
		inner = storage.NewSQLiteStore(opened)
	}

	if cfg.StorageSecret != "" {
		key := cryptox.DeriveStorageKey([]byte(cfg.StorageSecret), storageSalt)
		return storage.NewSealedStore(inner, key), db, nil
	}
	return inner, db, nil
}

// Run validates any persisted session, then hands control to the REPL.
func (a *App) Run(ctx context.Context) {
	defer a.closeDB()

	a.validator.Validate(ctx)
	if a.sessions.IsAuthenticated() {
		if u, ok := a.sessions.User(); ok {
			a.printf("Welcome back, %s\n", u.Email)
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.status, scanner)
}

func (a *App) closeDB() {
	if a.db != nil {
		_ = a.db.Close()
	}
}

// status renders the prompt segment: the current flow step, or the
// signed-in identity.
func (a *App) status() string {
	if u, ok := a.sessions.User(); ok {
		return u.Email
	}
	return string(a.flow.Step())
}

func (a *App) isAuthenticated() bool {
	return a.sessions.IsAuthenticated()
}
