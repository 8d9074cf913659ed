package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/repositories"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Scopes requested during authorization.
var Scopes = []string{
	"playlist-read-private",
	"user-read-email",
	"user-read-private",
	"user-top-read",
	"user-library-read",
	"user-read-recently-played",
}

// Authorizer runs the interactive half of the authorization-code flow and returns the code.
//
// It returns an error wrapping [shared.ErrAuthCancelled] when the user dismisses the session.
type Authorizer interface {
	Authorize(ctx context.Context, authURL, state string) (code string, err error)
}

// LoginHook runs after a successful login with the new access token.
type LoginHook func(ctx context.Context, accessToken string) error

// Option configures a [Manager].
type Option func(*Manager)

// WithAuthorizer sets the interactive authorizer used by [Manager.Authenticate].
func WithAuthorizer(a Authorizer) Option {
	return func(m *Manager) { m.authorizer = a }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithHTTPClient sets the client used for token endpoint calls.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) { m.httpClient = c }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics reports refresh outcomes to r.
func WithMetrics(r metrics.Recorder) Option {
	return func(m *Manager) { m.metrics = r }
}

// WithLoginHook adds a hook run after each successful login. Hook failures are logged and do not fail the login.
func WithLoginHook(h LoginHook) Option {
	return func(m *Manager) { m.hooks = append(m.hooks, h) }
}

// Manager produces a currently-valid bearer token for every catalog call.
type Manager struct {
	oauth      *oauth2.Config
	store      repositories.CredentialStore
	authorizer Authorizer
	httpClient *http.Client
	now        func() time.Time
	logger     *log.Logger
	metrics    metrics.Recorder
	hooks      []LoginHook
	refreshes  singleflight.Group

	mu    sync.Mutex
	state State
}

// NewManager builds a manager for the given client credentials and endpoints.
func NewManager(creds shared.SpotifyConfig, catalog shared.CatalogConfig, store repositories.CredentialStore, opts ...Option) *Manager {
	m := &Manager{
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			RedirectURL:  creds.RedirectURI,
			Scopes:       Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   catalog.AuthURL,
				TokenURL:  catalog.TokenURL,
				AuthStyle: oauth2.AuthStyleInHeader,
			},
		},
		store:   store,
		now:     time.Now,
		logger:  log.New(io.Discard),
		metrics: metrics.Nop{},
		state:   LoggedOut,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("auth state", "from", prev, "to", s)
	}
}

// AuthCodeURL builds the authorization URL for state. The consent dialog is always shown.
func (m *Manager) AuthCodeURL(state string) string {
	return m.oauth.AuthCodeURL(state, oauth2.SetAuthURLParam("show_dialog", "true"))
}

func (m *Manager) tokenContext(ctx context.Context) context.Context {
	if m.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, m.httpClient)
}

// Authenticate runs the interactive flow, exchanges the code and persists the credential.
//
// Nothing is persisted unless the exchange succeeds. On failure the state falls back to whatever the
// stored credential supports.
func (m *Manager) Authenticate(ctx context.Context) error {
	if m.authorizer == nil {
		return fmt.Errorf("%w: no authorizer configured", shared.ErrInvalidConfig)
	}

	state, err := shared.GenerateState()
	if err != nil {
		return err
	}

	m.setState(Authenticating)

	code, err := m.authorizer.Authorize(ctx, m.AuthCodeURL(state), state)
	if err != nil {
		m.restoreState(context.WithoutCancel(ctx))
		if ctx.Err() != nil && !errors.Is(err, shared.ErrAuthCancelled) {
			return fmt.Errorf("%w: %v", shared.ErrAuthCancelled, ctx.Err())
		}
		return err
	}

	tok, err := m.oauth.Exchange(m.tokenContext(ctx), code, oauth2.SetAuthURLParam("client_id", m.oauth.ClientID))
	if err != nil {
		m.restoreState(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: %v", shared.ErrAuthExchangeFailed, describe(err))
	}
	if tok.AccessToken == "" {
		m.restoreState(context.WithoutCancel(ctx))
		return fmt.Errorf("%w: response carried no access token", shared.ErrAuthExchangeFailed)
	}

	cred := models.Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    m.expiry(tok),
	}
	if err := m.save(ctx, cred, true); err != nil {
		m.setState(LoggedOut)
		return err
	}

	m.setState(LoggedIn)
	m.logger.Info("logged in", "expires_at", cred.ExpiresAt.Format(time.RFC3339))

	for _, hook := range m.hooks {
		if err := hook(ctx, cred.AccessToken); err != nil {
			m.logger.Warn("post-login hook failed", "err", err)
		}
	}

	return nil
}

// GetValidAccessToken returns the stored access token, refreshing it first when it has expired.
//
// It returns [shared.ErrNotAuthenticated] when no credential is stored.
func (m *Manager) GetValidAccessToken(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.AccessToken == "" {
		m.setState(LoggedOut)
		return "", shared.ErrNotAuthenticated
	}

	if !cred.Expired(m.now()) {
		m.setState(LoggedIn)
		return cred.AccessToken, nil
	}

	m.setState(Expired)
	return m.ForceRefresh(ctx)
}

// ForceRefresh refreshes regardless of the stored expiry and returns the new access token.
//
// Concurrent calls share one token endpoint request. The shared request outlives any single caller's
// context; a caller whose ctx ends stops waiting and gets ctx.Err() wrapped in [shared.ErrRefreshFailed].
func (m *Manager) ForceRefresh(ctx context.Context) (string, error) {
	ch := m.refreshes.DoChan("refresh", func() (any, error) {
		return m.refresh(context.WithoutCancel(ctx))
	})

	select {
	case res := <-ch:
		if res.Shared {
			m.logger.Debug("shared in-flight refresh")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %w", shared.ErrRefreshFailed, ctx.Err())
	}
}

// Refresh exchanges the stored refresh token for a new access token.
func (m *Manager) Refresh(ctx context.Context) error {
	_, err := m.ForceRefresh(ctx)
	return err
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return "", err
	}
	if cred.AccessToken == "" && cred.RefreshToken == "" {
		m.setState(LoggedOut)
		return "", shared.ErrNotAuthenticated
	}
	if cred.RefreshToken == "" {
		m.metrics.RecordTokenRefresh(metrics.RefreshInvalid)
		m.discard(ctx)
		return "", fmt.Errorf("%w: no refresh token stored", shared.ErrRefreshInvalid)
	}

	m.setState(Refreshing)

	src := m.oauth.TokenSource(m.tokenContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken})
	tok, err := src.Token()
	if err != nil {
		var re *oauth2.RetrieveError
		if errors.As(err, &re) && re.ErrorCode == "invalid_grant" {
			m.metrics.RecordTokenRefresh(metrics.RefreshInvalid)
			m.discard(ctx)
			m.logger.Warn("refresh token rejected; credentials cleared", "reason", re.ErrorDescription)
			return "", fmt.Errorf("%w: %s", shared.ErrRefreshInvalid, describe(err))
		}

		m.metrics.RecordTokenRefresh(metrics.RefreshFailed)
		m.setState(Expired)
		return "", fmt.Errorf("%w: %s", shared.ErrRefreshFailed, describe(err))
	}

	next := models.Credential{AccessToken: tok.AccessToken, ExpiresAt: m.expiry(tok)}
	rotated := tok.RefreshToken != "" && tok.RefreshToken != cred.RefreshToken
	if rotated {
		next.RefreshToken = tok.RefreshToken
	}

	if err := m.save(ctx, next, rotated); err != nil {
		m.metrics.RecordTokenRefresh(metrics.RefreshFailed)
		m.setState(LoggedOut)
		return "", err
	}

	m.metrics.RecordTokenRefresh(metrics.RefreshSuccess)
	m.setState(LoggedIn)
	m.logger.Info("access token refreshed", "rotated", rotated, "expires_at", next.ExpiresAt.Format(time.RFC3339))

	return next.AccessToken, nil
}

// LogOut deletes every stored credential. It is idempotent.
func (m *Manager) LogOut(ctx context.Context) error {
	err := m.clear(ctx)
	m.setState(LoggedOut)
	return err
}

// Status reports the stored credential without refreshing it.
func (m *Manager) Status(ctx context.Context) (Status, error) {
	st, err := m.inspect(ctx)
	if err != nil {
		return Status{}, err
	}
	if cur := m.State(); cur != Authenticating && cur != Refreshing {
		m.setState(st.State)
	}
	return st, nil
}

func (m *Manager) inspect(ctx context.Context) (Status, error) {
	cred, err := m.load(ctx)
	if err != nil {
		return Status{}, err
	}

	st := Status{HasRefreshToken: cred.RefreshToken != "", ExpiresAt: cred.ExpiresAt}
	now := m.now()

	switch {
	case cred.AccessToken == "":
		st.State = LoggedOut
	case cred.Expired(now):
		st.State = Expired
		st.LoggedIn = true
	default:
		st.State = LoggedIn
		st.LoggedIn = true
		st.Remaining = cred.ExpiresAt.Sub(now).Truncate(time.Second)
	}
	return st, nil
}

// restoreState recomputes the state from the store after an aborted login.
func (m *Manager) restoreState(ctx context.Context) {
	st, err := m.inspect(ctx)
	if err != nil {
		m.setState(LoggedOut)
		return
	}
	m.setState(st.State)
}

// expiry converts expires_in to an absolute time on the manager's clock.
func (m *Manager) expiry(tok *oauth2.Token) time.Time {
	secs := tok.ExpiresIn
	if secs == 0 {
		switch v := tok.Extra("expires_in").(type) {
		case float64:
			secs = int64(v)
		case string:
			secs, _ = strconv.ParseInt(v, 10, 64)
		}
	}
	if secs > 0 {
		return m.now().Add(time.Duration(secs) * time.Second)
	}
	return tok.Expiry
}

// load reads all three keys. An unreadable expiry loads as zero, which counts as expired.
func (m *Manager) load(ctx context.Context) (models.Credential, error) {
	var cred models.Credential

	access, _, err := m.store.Get(ctx, models.KeyAccessToken)
	if err != nil {
		return cred, err
	}
	refresh, _, err := m.store.Get(ctx, models.KeyRefreshToken)
	if err != nil {
		return cred, err
	}
	rawExpiry, ok, err := m.store.Get(ctx, models.KeyExpiresAt)
	if err != nil {
		return cred, err
	}

	cred.AccessToken = access
	cred.RefreshToken = refresh
	if ok {
		if t, err := models.ParseExpiry(rawExpiry); err == nil {
			cred.ExpiresAt = t
		} else {
			m.logger.Warn("stored expiry unreadable; treating token as expired", "err", err)
		}
	}
	return cred, nil
}

// save writes cred in [models.CredentialKeys] order. The refresh token is written only when withRefresh is set
// and non-empty. Any failure clears the store.
func (m *Manager) save(ctx context.Context, cred models.Credential, withRefresh bool) error {
	values := map[models.CredentialKey]string{
		models.KeyAccessToken: cred.AccessToken,
		models.KeyExpiresAt:   models.FormatExpiry(cred.ExpiresAt),
	}
	if withRefresh {
		values[models.KeyRefreshToken] = cred.RefreshToken
	}

	for _, key := range models.CredentialKeys {
		v, ok := values[key]
		if !ok {
			continue
		}
		var err error
		if v == "" {
			err = m.store.Delete(ctx, key)
		} else {
			err = m.store.Set(ctx, key, v)
		}
		if err != nil {
			m.logger.Error("credential write failed; clearing store", "key", key, "err", err)
			if cerr := m.clear(context.WithoutCancel(ctx)); cerr != nil {
				err = errors.Join(err, cerr)
			}
			return fmt.Errorf("%w: %v", shared.ErrCredentialStore, err)
		}
	}
	return nil
}

// discard clears the store after an unrecoverable refresh failure.
func (m *Manager) discard(ctx context.Context) {
	if err := m.clear(context.WithoutCancel(ctx)); err != nil {
		m.logger.Error("failed to clear credentials", "err", err)
	}
	m.setState(LoggedOut)
}

// clear attempts every delete and joins the failures.
func (m *Manager) clear(ctx context.Context) error {
	var errs []error
	for _, key := range models.CredentialKeys {
		if err := m.store.Delete(ctx, key); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// describe renders token endpoint errors without echoing response bodies that may hold secrets.
func describe(err error) string {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		parts := []string{}
		if re.Response != nil {
			parts = append(parts, fmt.Sprintf("status %d", re.Response.StatusCode))
		}
		if re.ErrorCode != "" {
			parts = append(parts, re.ErrorCode)
		}
		if re.ErrorDescription != "" {
			parts = append(parts, re.ErrorDescription)
		}
		if len(parts) > 0 {
			return strings.Join(parts, ": ")
		}
	}
	return err.Error()
}
