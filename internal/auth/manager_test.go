package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/repositories"
	"github.com/desertthunder/soundshare/internal/shared"
	tu "github.com/desertthunder/soundshare/internal/testing"
)

// tokenServer fakes the token endpoint. Responses are chosen per grant type.
type tokenServer struct {
	*httptest.Server
	mu        sync.Mutex
	calls     map[string]int
	forms     []url.Values
	delay     time.Duration
	responses map[string]func() (int, map[string]any)
}

func newTokenServer(t *testing.T) *tokenServer {
	t.Helper()
	ts := &tokenServer{
		calls: map[string]int{},
		responses: map[string]func() (int, map[string]any){
			"authorization_code": func() (int, map[string]any) {
				return http.StatusOK, map[string]any{"access_token": "access-1", "refresh_token": "refresh-1", "expires_in": 3600, "token_type": "Bearer"}
			},
			"refresh_token": func() (int, map[string]any) {
				return http.StatusOK, map[string]any{"access_token": "access-2", "expires_in": 3600, "token_type": "Bearer"}
			},
		},
	}

	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "client-id" || pass != "client-secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]any{"error": "invalid_client"})
			return
		}
		r.ParseForm()
		grant := r.PostForm.Get("grant_type")

		ts.mu.Lock()
		ts.calls[grant]++
		ts.forms = append(ts.forms, r.PostForm)
		respond := ts.responses[grant]
		delay := ts.delay
		ts.mu.Unlock()

		time.Sleep(delay)
		status, body := respond()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func (ts *tokenServer) count(grant string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.calls[grant]
}

func (ts *tokenServer) form(i int) url.Values {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.forms[i]
}

func (ts *tokenServer) respond(grant string, status int, body map[string]any) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.responses[grant] = func() (int, map[string]any) { return status, body }
}

type authorizerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f authorizerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

func codeAuthorizer(code string) Authorizer {
	return authorizerFunc(func(context.Context, string, string) (string, error) { return code, nil })
}

var epoch = time.UnixMilli(1_700_000_000_000)

func newTestManager(t *testing.T, ts *tokenServer, store repositories.CredentialStore, opts ...Option) (*Manager, *tu.Clock) {
	t.Helper()
	clock := tu.NewClock(epoch)
	creds := shared.SpotifyConfig{ClientID: "client-id", ClientSecret: "client-secret", RedirectURI: "http://127.0.0.1:3000/callback"}
	catalog := shared.CatalogConfig{AuthURL: ts.URL + "/authorize", TokenURL: ts.URL + "/api/token"}
	opts = append([]Option{WithClock(clock.Now)}, opts...)
	return NewManager(creds, catalog, store, opts...), clock
}

func seed(t *testing.T, store repositories.CredentialStore, access, refresh string, expires time.Time) {
	t.Helper()
	ctx := context.Background()
	if refresh != "" {
		store.Set(ctx, models.KeyRefreshToken, refresh)
	}
	if !expires.IsZero() {
		store.Set(ctx, models.KeyExpiresAt, models.FormatExpiry(expires))
	}
	if access != "" {
		store.Set(ctx, models.KeyAccessToken, access)
	}
}

func stored(t *testing.T, store repositories.CredentialStore, key models.CredentialKey) (string, bool) {
	t.Helper()
	v, ok, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("store.Get(%s) error: %v", key, err)
	}
	return v, ok
}

func assertEmpty(t *testing.T, store repositories.CredentialStore) {
	t.Helper()
	for _, key := range models.CredentialKeys {
		if v, ok := stored(t, store, key); ok {
			t.Errorf("expected %s to be absent, found %q", key, v)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	ctx := context.Background()

	t.Run("Persists credential", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()

		var seenURL, seenState string
		authorizer := authorizerFunc(func(_ context.Context, authURL, state string) (string, error) {
			seenURL, seenState = authURL, state
			return "code-123", nil
		})

		var hookToken string
		hook := func(_ context.Context, token string) error {
			hookToken = token
			return nil
		}

		m, clock := newTestManager(t, ts, store, WithAuthorizer(authorizer), WithLoginHook(hook))

		if err := m.Authenticate(ctx); err != nil {
			t.Fatalf("Authenticate() error: %v", err)
		}

		u, err := url.Parse(seenURL)
		if err != nil {
			t.Fatalf("bad auth url: %v", err)
		}
		q := u.Query()
		if q.Get("client_id") != "client-id" || q.Get("response_type") != "code" || q.Get("show_dialog") != "true" {
			t.Errorf("unexpected auth url query %v", q)
		}
		if q.Get("state") == "" || q.Get("state") != seenState {
			t.Errorf("state mismatch: url %q, authorizer %q", q.Get("state"), seenState)
		}
		if q.Get("scope") != strings.Join(Scopes, " ") {
			t.Errorf("unexpected scope %q", q.Get("scope"))
		}

		if form := ts.form(0); form.Get("code") != "code-123" || form.Get("redirect_uri") != "http://127.0.0.1:3000/callback" || form.Get("client_id") != "client-id" {
			t.Errorf("unexpected exchange form %v", form)
		}

		if v, _ := stored(t, store, models.KeyAccessToken); v != "access-1" {
			t.Errorf("access token = %q", v)
		}
		if v, _ := stored(t, store, models.KeyRefreshToken); v != "refresh-1" {
			t.Errorf("refresh token = %q", v)
		}
		if v, _ := stored(t, store, models.KeyExpiresAt); v != models.FormatExpiry(clock.Now().Add(time.Hour)) {
			t.Errorf("expires_at = %q", v)
		}

		if m.State() != LoggedIn {
			t.Errorf("state = %v, want logged_in", m.State())
		}
		if hookToken != "access-1" {
			t.Errorf("login hook got %q", hookToken)
		}
	})

	t.Run("User dismissal", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		authorizer := authorizerFunc(func(context.Context, string, string) (string, error) {
			return "", shared.ErrAuthCancelled
		})
		m, _ := newTestManager(t, ts, store, WithAuthorizer(authorizer))

		if err := m.Authenticate(ctx); !errors.Is(err, shared.ErrAuthCancelled) {
			t.Fatalf("expected ErrAuthCancelled, got %v", err)
		}
		assertEmpty(t, store)
		if m.State() != LoggedOut {
			t.Errorf("state = %v, want logged_out", m.State())
		}
		if ts.count("authorization_code") != 0 {
			t.Error("no exchange should happen after dismissal")
		}
	})

	t.Run("Context cancellation", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		authorizer := authorizerFunc(func(ctx context.Context, _, _ string) (string, error) {
			<-ctx.Done()
			return "", ctx.Err()
		})
		m, _ := newTestManager(t, ts, store, WithAuthorizer(authorizer))

		cctx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		if err := m.Authenticate(cctx); !errors.Is(err, shared.ErrAuthCancelled) {
			t.Fatalf("expected ErrAuthCancelled, got %v", err)
		}
		assertEmpty(t, store)
	})

	t.Run("Exchange failure persists nothing", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.respond("authorization_code", http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Invalid authorization code"})
		store := repositories.NewMemoryCredentialStore()
		m, _ := newTestManager(t, ts, store, WithAuthorizer(codeAuthorizer("bad")))

		err := m.Authenticate(ctx)
		if !errors.Is(err, shared.ErrAuthExchangeFailed) {
			t.Fatalf("expected ErrAuthExchangeFailed, got %v", err)
		}
		if !strings.Contains(err.Error(), "Invalid authorization code") {
			t.Errorf("expected server description in error, got %v", err)
		}
		assertEmpty(t, store)
		if m.State() != LoggedOut {
			t.Errorf("state = %v, want logged_out", m.State())
		}
	})

	t.Run("Failed login keeps earlier credential", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.respond("authorization_code", http.StatusBadRequest, map[string]any{"error": "invalid_grant"})
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "old-access", "old-refresh", epoch.Add(time.Hour))
		m, _ := newTestManager(t, ts, store, WithAuthorizer(codeAuthorizer("bad")))

		if err := m.Authenticate(ctx); err == nil {
			t.Fatal("expected error")
		}
		if v, _ := stored(t, store, models.KeyAccessToken); v != "old-access" {
			t.Errorf("earlier access token should survive, got %q", v)
		}
		if m.State() != LoggedIn {
			t.Errorf("state = %v, want logged_in", m.State())
		}
	})

	t.Run("Write failure clears everything", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewFlakyCredentialStore(models.KeyAccessToken)
		m, _ := newTestManager(t, ts, store, WithAuthorizer(codeAuthorizer("code")))

		if err := m.Authenticate(ctx); !errors.Is(err, shared.ErrCredentialStore) {
			t.Fatalf("expected ErrCredentialStore, got %v", err)
		}
		assertEmpty(t, store)
		if m.State() != LoggedOut {
			t.Errorf("state = %v, want logged_out", m.State())
		}
	})

	t.Run("Hook failure does not fail login", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		hook := func(context.Context, string) error { return errors.New("datastore down") }
		m, _ := newTestManager(t, ts, store, WithAuthorizer(codeAuthorizer("code")), WithLoginHook(hook))

		if err := m.Authenticate(ctx); err != nil {
			t.Fatalf("Authenticate() error: %v", err)
		}
		if v, _ := stored(t, store, models.KeyAccessToken); v != "access-1" {
			t.Errorf("access token = %q", v)
		}
	})

	t.Run("No authorizer", func(t *testing.T) {
		ts := newTokenServer(t)
		m, _ := newTestManager(t, ts, repositories.NewMemoryCredentialStore())
		if err := m.Authenticate(ctx); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

func TestGetValidAccessToken(t *testing.T) {
	ctx := context.Background()

	t.Run("No credential", func(t *testing.T) {
		ts := newTokenServer(t)
		m, _ := newTestManager(t, ts, repositories.NewMemoryCredentialStore())

		token, err := m.GetValidAccessToken(ctx)
		if !errors.Is(err, shared.ErrNotAuthenticated) || token != "" {
			t.Errorf("expected ErrNotAuthenticated, got %q, %v", token, err)
		}
		if ts.count("refresh_token") != 0 {
			t.Error("no refresh without a credential")
		}
	})

	t.Run("Valid token is returned as is", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(time.Minute))
		m, _ := newTestManager(t, ts, store)

		token, err := m.GetValidAccessToken(ctx)
		if err != nil || token != "access-1" {
			t.Errorf("got %q, %v", token, err)
		}
		if ts.count("refresh_token") != 0 {
			t.Error("unexpected refresh")
		}
		if m.State() != LoggedIn {
			t.Errorf("state = %v", m.State())
		}
	})

	t.Run("Expiry equal to now is still valid", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch)
		m, _ := newTestManager(t, ts, store)

		if token, _ := m.GetValidAccessToken(ctx); token != "access-1" || ts.count("refresh_token") != 0 {
			t.Errorf("expected no refresh at the boundary, got %q", token)
		}
	})

	t.Run("Expired token refreshes exactly once", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, clock := newTestManager(t, ts, store)

		token, err := m.GetValidAccessToken(ctx)
		if err != nil {
			t.Fatalf("GetValidAccessToken() error: %v", err)
		}
		if token != "access-2" {
			t.Errorf("expected refreshed token, got %q", token)
		}
		if n := ts.count("refresh_token"); n != 1 {
			t.Errorf("expected exactly one refresh, got %d", n)
		}
		if form := ts.form(0); form.Get("refresh_token") != "refresh-1" {
			t.Errorf("unexpected refresh form %v", form)
		}

		if v, _ := stored(t, store, models.KeyRefreshToken); v != "refresh-1" {
			t.Errorf("refresh token should be kept when not rotated, got %q", v)
		}
		if v, _ := stored(t, store, models.KeyExpiresAt); v != models.FormatExpiry(clock.Now().Add(time.Hour)) {
			t.Errorf("expires_at = %q", v)
		}

		if token, _ := m.GetValidAccessToken(ctx); token != "access-2" || ts.count("refresh_token") != 1 {
			t.Error("second call should reuse the refreshed token")
		}
	})

	t.Run("Rotated refresh token is stored", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.respond("refresh_token", http.StatusOK, map[string]any{"access_token": "access-3", "refresh_token": "refresh-2", "expires_in": 3600})
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		if _, err := m.GetValidAccessToken(ctx); err != nil {
			t.Fatalf("GetValidAccessToken() error: %v", err)
		}
		if v, _ := stored(t, store, models.KeyRefreshToken); v != "refresh-2" {
			t.Errorf("expected rotated refresh token, got %q", v)
		}
	})

	t.Run("Missing expiry counts as expired", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", time.Time{})
		m, _ := newTestManager(t, ts, store)

		if token, _ := m.GetValidAccessToken(ctx); token != "access-2" {
			t.Errorf("expected refresh, got %q", token)
		}
	})

	t.Run("Unreadable expiry counts as expired", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", time.Time{})
		store.Set(ctx, models.KeyExpiresAt, "tomorrow")
		m, _ := newTestManager(t, ts, store)

		if token, _ := m.GetValidAccessToken(ctx); token != "access-2" {
			t.Errorf("expected refresh, got %q", token)
		}
	})

	t.Run("Concurrent callers share one refresh", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.delay = 50 * time.Millisecond
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		var wg sync.WaitGroup
		tokens := make([]string, 8)
		for i := range tokens {
			wg.Add(1)
			go func() {
				defer wg.Done()
				tokens[i], _ = m.GetValidAccessToken(ctx)
			}()
		}
		wg.Wait()

		if n := ts.count("refresh_token"); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}
		for i, tok := range tokens {
			if tok != "access-2" {
				t.Errorf("caller %d got %q", i, tok)
			}
		}
	})

	t.Run("A cancelled caller does not fail others sharing its refresh", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.delay = 200 * time.Millisecond
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		leaderCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		leaderErr := make(chan error, 1)
		go func() {
			_, err := m.GetValidAccessToken(leaderCtx)
			leaderErr <- err
		}()

		deadline := time.Now().Add(time.Second)
		for ts.count("refresh_token") == 0 {
			if time.Now().After(deadline) {
				t.Fatal("refresh never reached the token endpoint")
			}
			time.Sleep(5 * time.Millisecond)
		}

		type result struct {
			token string
			err   error
		}
		follower := make(chan result, 1)
		go func() {
			token, err := m.GetValidAccessToken(ctx)
			follower <- result{token, err}
		}()

		time.Sleep(20 * time.Millisecond)
		cancel()

		if err := <-leaderErr; !errors.Is(err, context.Canceled) || !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("cancelled caller should get context.Canceled, got %v", err)
		}

		got := <-follower
		if got.err != nil || got.token != "access-2" {
			t.Errorf("follower got %q, %v; want access-2", got.token, got.err)
		}
		if n := ts.count("refresh_token"); n != 1 {
			t.Errorf("expected one refresh, got %d", n)
		}
		if v, _ := stored(t, store, models.KeyAccessToken); v != "access-2" {
			t.Errorf("refreshed token should be stored, got %q", v)
		}
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("invalid_grant clears the store", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.respond("refresh_token", http.StatusBadRequest, map[string]any{"error": "invalid_grant", "error_description": "Refresh token revoked"})
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		err := m.Refresh(ctx)
		if !errors.Is(err, shared.ErrRefreshInvalid) {
			t.Fatalf("expected ErrRefreshInvalid, got %v", err)
		}
		assertEmpty(t, store)
		if m.State() != LoggedOut {
			t.Errorf("state = %v, want logged_out", m.State())
		}

		if _, err := m.GetValidAccessToken(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated after invalid_grant, got %v", err)
		}
	})

	t.Run("Transient failure keeps the credential", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.respond("refresh_token", http.StatusServiceUnavailable, map[string]any{"error": "temporarily_unavailable"})
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		_, err := m.GetValidAccessToken(ctx)
		if !errors.Is(err, shared.ErrRefreshFailed) {
			t.Fatalf("expected ErrRefreshFailed, got %v", err)
		}
		if v, _ := stored(t, store, models.KeyRefreshToken); v != "refresh-1" {
			t.Errorf("refresh token should survive, got %q", v)
		}
		if m.State() != Expired {
			t.Errorf("state = %v, want expired", m.State())
		}
	})

	t.Run("Transport failure", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		client := &http.Client{Transport: tu.NewMockRoundTripper(nil, errors.New("dial tcp: connection refused"))}
		m, _ := newTestManager(t, ts, store, WithHTTPClient(client))

		if err := m.Refresh(ctx); !errors.Is(err, shared.ErrRefreshFailed) {
			t.Errorf("expected ErrRefreshFailed, got %v", err)
		}
		if v, _ := stored(t, store, models.KeyAccessToken); v != "access-1" {
			t.Errorf("access token should survive, got %q", v)
		}
	})

	t.Run("Missing refresh token", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "", epoch.Add(-time.Second))
		m, _ := newTestManager(t, ts, store)

		if err := m.Refresh(ctx); !errors.Is(err, shared.ErrRefreshInvalid) {
			t.Errorf("expected ErrRefreshInvalid, got %v", err)
		}
		assertEmpty(t, store)
	})

	t.Run("Nothing stored", func(t *testing.T) {
		ts := newTokenServer(t)
		m, _ := newTestManager(t, ts, repositories.NewMemoryCredentialStore())

		if err := m.Refresh(ctx); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})

	t.Run("Write failure clears everything", func(t *testing.T) {
		ts := newTokenServer(t)
		store := tu.NewFlakyCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(-time.Second))
		store.FailSet[models.KeyAccessToken] = true
		m, _ := newTestManager(t, ts, store)

		if err := m.Refresh(ctx); !errors.Is(err, shared.ErrCredentialStore) {
			t.Fatalf("expected ErrCredentialStore, got %v", err)
		}
		assertEmpty(t, store)
	})

	t.Run("ForceRefresh ignores expiry", func(t *testing.T) {
		ts := newTokenServer(t)
		store := repositories.NewMemoryCredentialStore()
		seed(t, store, "access-1", "refresh-1", epoch.Add(time.Hour))
		m, _ := newTestManager(t, ts, store)

		token, err := m.ForceRefresh(ctx)
		if err != nil || token != "access-2" {
			t.Errorf("ForceRefresh() = %q, %v", token, err)
		}
	})
}

func TestLogOutAndStatus(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	store := repositories.NewMemoryCredentialStore()
	seed(t, store, "access-1", "refresh-1", epoch.Add(90*time.Second))
	m, clock := newTestManager(t, ts, store)

	st, err := m.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error: %v", err)
	}
	if !st.LoggedIn || st.State != LoggedIn || st.Remaining != 90*time.Second || !st.HasRefreshToken {
		t.Errorf("unexpected status %+v", st)
	}

	clock.Advance(2 * time.Minute)
	st, _ = m.Status(ctx)
	if st.State != Expired || st.Remaining != 0 {
		t.Errorf("expected expired status, got %+v", st)
	}

	for range 2 {
		if err := m.LogOut(ctx); err != nil {
			t.Fatalf("LogOut() error: %v", err)
		}
	}
	assertEmpty(t, store)

	st, _ = m.Status(ctx)
	if st.LoggedIn || st.State != LoggedOut {
		t.Errorf("expected logged out status, got %+v", st)
	}
}

func TestStateString(t *testing.T) {
	for s, want := range map[State]string{
		LoggedOut:      "logged_out",
		Authenticating: "authenticating",
		LoggedIn:       "logged_in",
		Expired:        "expired",
		Refreshing:     "refreshing",
		State(99):      "unknown",
	} {
		if s.String() != want {
			t.Errorf("State(%d).String() = %s, want %s", int(s), s, want)
		}
	}
}
