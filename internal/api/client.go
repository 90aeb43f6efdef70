// Package api is the HTTP client for the remote SeamlessAuth service. It
// owns the authenticated-fetch contract: every call through an
// authenticated path tolerates a silently expired access credential by
// performing exactly one refresh-and-retry cycle, with concurrent callers
// sharing a single in-flight refresh.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/fells-code/seamless-auth-go/internal/common"
	"github.com/fells-code/seamless-auth-go/internal/logging"
	"github.com/fells-code/seamless-auth-go/internal/storage"
)

// Mode selects the endpoint layout of the deployment.
type Mode string

const (
	// ModeWeb talks to an unprefixed endpoint surface.
	ModeWeb Mode = "web"
	// ModeServer talks to an "auth/"-prefixed surface.
	ModeServer Mode = "server"
)

// CredentialMode selects how the session credential travels.
type CredentialMode string

const (
	// CredentialBearer keeps access/refresh tokens in local storage and
	// sends the access token as an Authorization header. The refresh
	// endpoint is called with the stored refresh token.
	CredentialBearer CredentialMode = "bearer"
	// CredentialCookie keeps no tokens client-side; the cookie jar carries
	// everything, including what the refresh endpoint needs.
	CredentialCookie CredentialMode = "cookie"
)

// Config configures a Client.
type Config struct {
	// Host is the base URL of the auth service, e.g. "https://auth.example.com/".
	Host string
	// Mode picks the endpoint prefix. Default ModeWeb.
	Mode Mode
	// Credentials picks bearer vs cookie transport. Default CredentialBearer.
	Credentials CredentialMode
	// HTTPClient optionally overrides the transport. When nil a client with
	// a fresh cookie jar is used (cookies must propagate in every mode).
	HTTPClient *http.Client
	// Storage persists tokens in bearer mode and the prior-sign-in marker.
	Storage storage.Store
	// Logger receives diagnostics. Defaults to a no-op logger.
	Logger logging.Logger
	// OnSessionExpired runs once whenever a refresh attempt fails and the
	// session is declared dead. Wiring points it at the forced-logout path.
	OnSessionExpired func(ctx context.Context)
}

// Client is the concrete SeamlessAuth HTTP client.
type Client struct {
	baseURL        *url.URL
	mode           Mode
	credMode       CredentialMode
	http           *http.Client
	store          storage.Store
	log            logging.Logger
	refreshGroup   singleflight.Group
	sessionExpired func(ctx context.Context)
}

// NewClient validates cfg and builds a Client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.Host == "" {
		return nil, errors.New("api: host is required")
	}
	base, err := url.Parse(cfg.Host)
	if err != nil {
		return nil, fmt.Errorf("api: invalid host: %w", err)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	if cfg.Mode == "" {
		cfg.Mode = ModeWeb
	}
	if cfg.Credentials == "" {
		cfg.Credentials = CredentialBearer
	}
	if cfg.Storage == nil {
		cfg.Storage = storage.NewMemoryStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NopLogger{}
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Jar: jar, Timeout: 30 * time.Second}
	}

	return &Client{
		baseURL:        base,
		mode:           cfg.Mode,
		credMode:       cfg.Credentials,
		http:           httpClient,
		store:          cfg.Storage,
		log:            cfg.Logger,
		sessionExpired: cfg.OnSessionExpired,
	}, nil
}

// SetSessionExpiredHook installs the forced-logout callback after
// construction. Used by the SDK wiring, which builds the client before the
// components that own logout.
func (c *Client) SetSessionExpiredHook(fn func(ctx context.Context)) {
	c.sessionExpired = fn
}

// endpoint resolves a service-relative path against the configured base,
// applying the deployment-mode prefix.
func (c *Client) endpoint(path string) string {
	if c.mode == ModeServer && !strings.HasPrefix(path, "auth/") {
		path = "auth/" + path
	}
	ref := &url.URL{Path: path}
	return c.baseURL.ResolveReference(ref).String()
}

// authorityFailure reports whether a status signals that the presented
// credential is no longer accepted. Deployments disagree on 401 vs 403, so
// both are treated identically.
func authorityFailure(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

// do issues one JSON request. When authed is true the current credential is
// attached and an authority failure triggers the single refresh-and-retry
// cycle; the retried response is final either way.
func (c *Client) do(ctx context.Context, method, path string, body any, out any, authed bool) error {
	resp, used, err := c.send(ctx, method, path, body, authed)
	if err != nil {
		return err
	}

	if authed && authorityFailure(resp.StatusCode) {
		drain(resp)

		if err := c.refresh(ctx, used); err != nil {
			c.log.Warn(ctx, "credential refresh failed", "err", err)
			c.forceExpire(ctx)
			return common.ErrSessionExpired
		}

		resp, _, err = c.send(ctx, method, path, body, authed)
		if err != nil {
			return err
		}
	}

	return c.decode(ctx, resp, path, out)
}

// send builds and issues the HTTP call once. The second return value is
// the bearer token attached to the request, if any; the refresh path uses
// it to detect tokens already renewed by a concurrent caller.
func (c *Client) send(ctx context.Context, method, path string, body any, authed bool) (*http.Response, string, error) {
	var payload io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, "", fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), payload)
	if err != nil {
		return nil, "", err
	}
	req.Header.Set("Content-Type", "application/json")

	var used string
	if authed && c.credMode == CredentialBearer {
		token, err := c.store.Get(ctx, common.AccessTokenKey)
		if err != nil {
			return nil, "", err
		}
		if token != "" {
			req.Header.Set(common.AuthorizationHeader, "Bearer "+token)
			used = token
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	return resp, used, nil
}

// refresh renews the access credential. Concurrent callers share one
// in-flight attempt, and a caller whose rejected token has already been
// replaced skips the network call entirely, so one stale token never
// produces competing refreshes that invalidate each other.
func (c *Client) refresh(ctx context.Context, staleToken string) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		if c.credMode == CredentialBearer && staleToken != "" {
			current, err := c.store.Get(ctx, common.AccessTokenKey)
			if err != nil {
				return nil, err
			}
			if current != "" && current != staleToken {
				// already renewed by an earlier caller
				return nil, nil
			}
		}
		return nil, c.refreshOnce(ctx)
	})
	return err
}

func (c *Client) refreshOnce(ctx context.Context) error {
	var body any
	method := http.MethodGet

	if c.credMode == CredentialBearer {
		refreshToken, err := c.store.Get(ctx, common.RefreshTokenKey)
		if err != nil {
			return err
		}
		if refreshToken == "" {
			return common.ErrNoRefreshToken
		}
		body = refreshRequest{RefreshToken: refreshToken}
		method = http.MethodPost
	}

	c.log.Debug(ctx, "refreshing access credential", "mode", string(c.credMode))

	resp, _, err := c.send(ctx, method, "auth/refresh-token", body, false)
	if err != nil {
		return err
	}

	var renewed refreshResponse
	if err := c.decode(ctx, resp, "auth/refresh-token", &renewed); err != nil {
		return err
	}

	if c.credMode == CredentialBearer {
		if renewed.AccessToken == "" {
			return fmt.Errorf("refresh response carried no access token")
		}
		if err := c.store.Set(ctx, common.AccessTokenKey, renewed.AccessToken); err != nil {
			return err
		}
		if renewed.RefreshToken != "" {
			if err := c.store.Set(ctx, common.RefreshTokenKey, renewed.RefreshToken); err != nil {
				return err
			}
		}
	}
	return nil
}

// forceExpire wipes persisted tokens and notifies the logout hook. The
// session is gone; no caller may retry past this point.
func (c *Client) forceExpire(ctx context.Context) {
	_ = c.store.Delete(ctx, common.AccessTokenKey)
	_ = c.store.Delete(ctx, common.RefreshTokenKey)
	if c.sessionExpired != nil {
		c.sessionExpired(ctx)
	}
}

// decode maps the final response to an error or unmarshals it into out.
func (c *Client) decode(ctx context.Context, resp *http.Response, path string, out any) error {
	defer drain(resp)

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to decode %s response: %w", path, err)
		}
		return nil
	case resp.StatusCode == http.StatusConflict:
		return common.ErrDuplicateAccount
	case authorityFailure(resp.StatusCode):
		return common.ErrUnauthorized
	default:
		c.log.Debug(ctx, "request failed", "path", path, "status", resp.StatusCode)
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
