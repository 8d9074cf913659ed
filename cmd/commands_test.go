package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/repositories"
	"github.com/desertthunder/soundshare/internal/shared"
	tu "github.com/desertthunder/soundshare/internal/testing"
)

// harness drives the CLI for several users against one shared datastore and catalog.
type harness struct {
	t       *testing.T
	store   *datastore.MemoryStore
	catalog *tu.FakeCatalog
	config  *shared.Config
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := datastore.NewMemoryStore()
	t.Cleanup(func() { store.Close() })

	config := shared.DefaultConfig()
	config.Database.Path = ":memory:"
	config.Datastore.Driver = "memory"

	return &harness{t: t, store: store, catalog: tu.NewFakeCatalog(), config: config}
}

type user struct {
	runner *Runner
	creds  *repositories.MemoryCredentialStore
	out    *bytes.Buffer
	in     *bytes.Buffer
	prompt *bytes.Buffer
}

// login grants a token for id and stores it as a credential valid for an hour.
func (h *harness) login(id, name string) *user {
	h.t.Helper()
	token := "tok-" + id
	h.catalog.Grant(token, id, name)

	creds := repositories.NewMemoryCredentialStore()
	ctx := context.Background()
	for key, value := range map[models.CredentialKey]string{
		models.KeyAccessToken:  token,
		models.KeyRefreshToken: "refresh-" + id,
		models.KeyExpiresAt:    models.FormatExpiry(time.Now().Add(time.Hour)),
	} {
		if err := creds.Set(ctx, key, value); err != nil {
			h.t.Fatalf("seed %s: %v", key, err)
		}
	}

	return h.user(creds)
}

func (h *harness) user(creds *repositories.MemoryCredentialStore, opts ...func(*RunnerOpts)) *user {
	out, in, prompt := &bytes.Buffer{}, &bytes.Buffer{}, &bytes.Buffer{}
	ro := RunnerOpts{
		Config:      h.config,
		Logger:      shared.NewLogger(&bytes.Buffer{}),
		Output:      out,
		Prompt:      prompt,
		Input:       in,
		Credentials: creds,
		Store:       h.store,
		Catalog:     h.catalog,
	}
	for _, opt := range opts {
		opt(&ro)
	}
	return &user{runner: NewRunner(ro), creds: creds, out: out, in: in, prompt: prompt}
}

// run executes one command line and returns what it printed.
func (u *user) run(args ...string) (string, error) {
	u.out.Reset()
	app := &cli.Command{Name: "soundshare", Commands: u.runner.register()}
	err := app.Run(context.Background(), append([]string{"soundshare"}, args...))
	return u.out.String(), err
}

func (u *user) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := u.run(args...)
	if err != nil {
		t.Fatalf("%s: %v", strings.Join(args, " "), err)
	}
	return out
}

func TestSetupCommands(t *testing.T) {
	t.Run("config", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "config.toml")
		u := &user{out: &bytes.Buffer{}}
		u.runner = NewRunner(RunnerOpts{ConfigPath: path, Output: u.out, Logger: shared.NewLogger(&bytes.Buffer{})})

		out := u.mustRun(t, "setup", "config")
		if !strings.Contains(out, "Wrote "+path) {
			t.Errorf("unexpected output %q", out)
		}
		if _, err := shared.LoadConfig(path); err != nil {
			t.Fatalf("written config does not load: %v", err)
		}

		if _, err := u.run("setup", "config"); err == nil || !strings.Contains(err.Error(), "already exists") {
			t.Errorf("expected an existing-file error, got %v", err)
		}

		os.WriteFile(path, []byte("garbage"), 0600)
		u.mustRun(t, "setup", "config", "--force")
		if _, err := shared.LoadConfig(path); err != nil {
			t.Errorf("--force should rewrite the config: %v", err)
		}
	})

	t.Run("database", func(t *testing.T) {
		config := shared.DefaultConfig()
		config.Database.Path = filepath.Join(t.TempDir(), "creds.db")
		out := &bytes.Buffer{}
		u := &user{runner: NewRunner(RunnerOpts{Config: config, Output: out, Logger: shared.NewLogger(&bytes.Buffer{})}), out: out}

		got := u.mustRun(t, "setup", "database")
		if !strings.Contains(got, "Database ready") || !strings.Contains(got, "schema version 0") {
			t.Errorf("unexpected output %q", got)
		}
		if _, err := os.Stat(config.Database.Path); err != nil {
			t.Errorf("database file missing: %v", err)
		}
	})
}

func TestAuthCommands(t *testing.T) {
	t.Run("status when logged out", func(t *testing.T) {
		h := newHarness(t)
		u := h.user(repositories.NewMemoryCredentialStore())

		out := u.mustRun(t, "auth", "status")
		if !strings.Contains(out, "State:         logged_out") || !strings.Contains(out, "auth login") {
			t.Errorf("unexpected output:\n%s", out)
		}

		out = u.mustRun(t, "auth", "status", "--json")
		var st map[string]any
		if err := json.Unmarshal([]byte(out), &st); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if st["state"] != "logged_out" || st["logged_in"] != false {
			t.Errorf("unexpected status %v", st)
		}
	})

	t.Run("status, token and logout", func(t *testing.T) {
		h := newHarness(t)
		u := h.login("u1", "Una")

		if out := u.mustRun(t, "auth", "status"); !strings.Contains(out, "logged_in") || !strings.Contains(out, "Refresh token: true") {
			t.Errorf("unexpected status:\n%s", out)
		}
		if out := u.mustRun(t, "auth", "token"); out != "tok-u1\n" {
			t.Errorf("unexpected token %q", out)
		}

		if out := u.mustRun(t, "auth", "logout"); !strings.Contains(out, "Logged out") {
			t.Errorf("unexpected logout output %q", out)
		}
		if _, err := u.run("auth", "token"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated after logout, got %v", err)
		}
	})

	t.Run("login stores the credential and creates the user record", func(t *testing.T) {
		var exchanged atomic.Int32
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			exchanged.Add(1)
			r.ParseForm()
			if r.Form.Get("code") != "the-code" {
				http.Error(w, `{"error":"invalid_grant"}`, http.StatusBadRequest)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{"access_token":"tok-u1","refresh_token":"refresh-u1","token_type":"Bearer","expires_in":3600}`)
		}))
		defer ts.Close()

		h := newHarness(t)
		h.config.Catalog.TokenURL = ts.URL
		h.catalog.Grant("tok-u1", "u1", "Una")

		creds := repositories.NewMemoryCredentialStore()
		u := h.user(creds, func(o *RunnerOpts) {
			o.Authorizer = authorizerFunc(func(context.Context, string, string) (string, error) { return "the-code", nil })
		})

		out := u.mustRun(t, "auth", "login")
		if !strings.Contains(out, "Logged in") || !strings.Contains(out, "User: Una (u1)") {
			t.Errorf("unexpected output:\n%s", out)
		}
		if n := exchanged.Load(); n != 1 {
			t.Errorf("expected one token exchange, got %d", n)
		}
		if v, _, _ := creds.Get(context.Background(), models.KeyAccessToken); v != "tok-u1" {
			t.Errorf("access token not stored, got %q", v)
		}

		snap, err := h.store.Get(context.Background(), models.UserPath("u1"))
		if err != nil || snap.Fields.Name() != "Una" {
			t.Errorf("login should create users/u1, got %+v, %v", snap, err)
		}
	})

	t.Run("cancelled login", func(t *testing.T) {
		h := newHarness(t)
		u := h.user(repositories.NewMemoryCredentialStore(), func(o *RunnerOpts) {
			o.Authorizer = authorizerFunc(func(context.Context, string, string) (string, error) {
				return "", shared.ErrAuthCancelled
			})
		})

		if _, err := u.run("auth", "login"); !errors.Is(err, shared.ErrAuthCancelled) {
			t.Errorf("expected ErrAuthCancelled, got %v", err)
		}
	})

	t.Run("invalid config", func(t *testing.T) {
		h := newHarness(t)
		h.config.Credentials.Spotify.ClientID = ""
		u := h.user(repositories.NewMemoryCredentialStore())

		if _, err := u.run("auth", "status"); !errors.Is(err, shared.ErrInvalidConfig) {
			t.Errorf("expected ErrInvalidConfig, got %v", err)
		}
	})
}

type authorizerFunc func(ctx context.Context, authURL, state string) (string, error)

func (f authorizerFunc) Authorize(ctx context.Context, authURL, state string) (string, error) {
	return f(ctx, authURL, state)
}

func TestCatalogCommands(t *testing.T) {
	h := newHarness(t)
	u := h.login("u1", "Una")

	t.Run("me", func(t *testing.T) {
		out := u.mustRun(t, "catalog", "me")
		if !strings.Contains(out, "Una") || !strings.Contains(out, "ID:      u1") {
			t.Errorf("unexpected output:\n%s", out)
		}

		out = u.mustRun(t, "catalog", "me", "--json")
		if !strings.Contains(out, `"id":"u1"`) {
			t.Errorf("unexpected JSON %q", out)
		}
	})

	t.Run("queries reach the catalog", func(t *testing.T) {
		for _, args := range [][]string{
			{"catalog", "playlists", "--limit", "5"},
			{"catalog", "top-tracks"},
			{"catalog", "top-artists"},
			{"catalog", "recent"},
			{"catalog", "search", "--type", "album", "spiderland"},
			{"catalog", "album", "a1"},
			{"catalog", "album-tracks", "a1"},
			{"catalog", "artist", "ar1"},
			{"catalog", "artist-top-tracks", "ar1"},
		} {
			u.mustRun(t, args...)
		}

		for _, method := range []string{"Playlists", "TopTracks", "TopArtists", "RecentlyPlayed", "Search", "Album", "AlbumTracks", "Artist", "ArtistTopTracks"} {
			if h.catalog.CallCount(method) == 0 {
				t.Errorf("%s was never called", method)
			}
		}
	})

	t.Run("missing argument", func(t *testing.T) {
		if _, err := u.run("catalog", "album"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
	})

	t.Run("not logged in", func(t *testing.T) {
		anon := h.user(repositories.NewMemoryCredentialStore())
		if _, err := anon.run("catalog", "me"); !errors.Is(err, shared.ErrNotAuthenticated) {
			t.Errorf("expected ErrNotAuthenticated, got %v", err)
		}
	})
}

func TestFriendsCommands(t *testing.T) {
	h := newHarness(t)
	una := h.login("u1", "Una")
	ugo := h.login("u2", "Ugo")
	ctx := context.Background()

	for _, u := range []struct{ id, name string }{{"u1", "Una"}, {"u2", "Ugo"}, {"u3", "Ulla"}} {
		h.store.Set(ctx, models.UserPath(u.id), models.NameFields(u.name))
	}

	t.Run("search excludes self", func(t *testing.T) {
		out := una.mustRun(t, "friends", "search", "u")
		if !strings.Contains(out, "Users: 2") || strings.Contains(out, "(u1)") {
			t.Errorf("unexpected output:\n%s", out)
		}
	})

	t.Run("request, approve and list", func(t *testing.T) {
		if out := una.mustRun(t, "friends", "add", "u2"); !strings.Contains(out, "Friend request sent to u2") {
			t.Errorf("unexpected output %q", out)
		}

		if out := ugo.mustRun(t, "friends", "requests", "--format", "csv"); out != "ID,Name\nu1,Una\n" {
			t.Errorf("unexpected requests CSV %q", out)
		}

		if out := ugo.mustRun(t, "friends", "approve", "u1"); !strings.Contains(out, "You and u1 are now friends") {
			t.Errorf("unexpected output %q", out)
		}

		if out := una.mustRun(t, "friends", "list"); out != "Friends: 1\n1. Ugo (u2)\n" {
			t.Errorf("unexpected friends list %q", out)
		}
		if out := ugo.mustRun(t, "friends", "requests", "--json"); out != "[]\n" {
			t.Errorf("requests should be empty, got %q", out)
		}
	})

	t.Run("self and duplicate requests are skipped", func(t *testing.T) {
		if out := una.mustRun(t, "friends", "add", "u1"); !strings.Contains(out, "Nothing to do") {
			t.Errorf("unexpected output %q", out)
		}
		if out := una.mustRun(t, "friends", "add", "u2"); !strings.Contains(out, "already friends") {
			t.Errorf("unexpected output %q", out)
		}
	})

	t.Run("audit and repair", func(t *testing.T) {
		if out := una.mustRun(t, "friends", "audit"); !strings.Contains(out, "consistent") {
			t.Errorf("unexpected audit %q", out)
		}

		h.store.Remove(ctx, models.FriendPath("u2", "u1"))

		out := una.mustRun(t, "friends", "audit", "--json")
		if !strings.Contains(out, `"peer":"u2"`) {
			t.Errorf("audit should report u2, got %q", out)
		}

		if out := una.mustRun(t, "friends", "repair"); !strings.Contains(out, "Repaired") {
			t.Errorf("unexpected repair output %q", out)
		}
		if out := una.mustRun(t, "friends", "list", "--json"); out != "[]\n" {
			t.Errorf("half removal should be completed, got %q", out)
		}
	})

	t.Run("deny and remove", func(t *testing.T) {
		una.mustRun(t, "friends", "add", "u2")
		ugo.mustRun(t, "friends", "deny", "u1")
		if out := ugo.mustRun(t, "friends", "requests"); out != "Requests: 0\n" {
			t.Errorf("unexpected requests %q", out)
		}

		una.mustRun(t, "friends", "add", "u2")
		ugo.mustRun(t, "friends", "approve", "u1")
		if out := una.mustRun(t, "friends", "remove", "u2"); !strings.Contains(out, "Removed u2") {
			t.Errorf("unexpected output %q", out)
		}
		if out := ugo.mustRun(t, "friends", "list"); out != "Friends: 0\n" {
			t.Errorf("removal should be mutual, got %q", out)
		}
	})

	t.Run("bad input", func(t *testing.T) {
		if _, err := una.run("friends", "add"); !errors.Is(err, shared.ErrMissingArgument) {
			t.Errorf("expected ErrMissingArgument, got %v", err)
		}
		if _, err := una.run("friends", "add", "a/b"); !errors.Is(err, shared.ErrInvalidInput) {
			t.Errorf("expected ErrInvalidInput, got %v", err)
		}
		if _, err := una.run("friends", "list", "--format", "xml"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})
}

func TestReviewsCommands(t *testing.T) {
	h := newHarness(t)
	una := h.login("u1", "Una")
	ugo := h.login("u2", "Ugo")

	t.Run("add and list", func(t *testing.T) {
		out := una.mustRun(t, "reviews", "add", "--rating", "4", "--text", "Grower", "album-1")
		if !strings.Contains(out, "Saved album review ★★★★☆ album-1") {
			t.Errorf("unexpected output %q", out)
		}
		una.mustRun(t, "reviews", "add", "--rating", "2", "--type", "track", "track-1")

		out = una.mustRun(t, "reviews", "list")
		if !strings.Contains(out, "Reviews by: Una") || !strings.Contains(out, "Reviews: 2") || !strings.Contains(out, "Grower") {
			t.Errorf("unexpected list:\n%s", out)
		}

		out = ugo.mustRun(t, "reviews", "list", "--user", "u1", "--json")
		var list []models.Review
		if err := json.Unmarshal([]byte(out), &list); err != nil || len(list) != 2 {
			t.Fatalf("expected two reviews from u1, got %q (%v)", out, err)
		}
	})

	t.Run("invalid reviews", func(t *testing.T) {
		if _, err := una.run("reviews", "add", "--rating", "9", "album-1"); !errors.Is(err, shared.ErrInvalidReview) {
			t.Errorf("expected ErrInvalidReview, got %v", err)
		}
		if _, err := una.run("reviews", "add", "--rating", "3", "--type", "podcast", "album-1"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("export", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "una")

		out := una.mustRun(t, "reviews", "export", "--format", "csv", "--output", base)
		if !strings.Contains(out, "Exported 2 review(s) as csv") || !strings.Contains(out, base+".csv") {
			t.Errorf("unexpected output:\n%s", out)
		}
		if content := tu.MustReadFile(t, base+".csv"); !strings.Contains(content, "album-1") {
			t.Errorf("CSV missing review:\n%s", content)
		}
		if h.catalog.CallCount("Album") == 0 || h.catalog.CallCount("Track") == 0 {
			t.Error("titles should be looked up in the catalog")
		}

		if _, err := una.run("reviews", "export", "--format", "pdf"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument, got %v", err)
		}
	})

	t.Run("delete", func(t *testing.T) {
		out := una.mustRun(t, "reviews", "list", "--json")
		var list []models.Review
		json.Unmarshal([]byte(out), &list)
		if len(list) == 0 {
			t.Fatal("expected reviews to delete")
		}

		id := list[0].ID

		una.in.WriteString("n\n")
		if out := una.mustRun(t, "reviews", "delete", id); !strings.Contains(out, "Kept review "+id) {
			t.Errorf("declining should keep the review, got %q", out)
		}
		if !strings.Contains(una.prompt.String(), "Delete review?") {
			t.Errorf("expected a confirmation prompt, got %q", una.prompt.String())
		}
		out = una.mustRun(t, "reviews", "list", "--json")
		json.Unmarshal([]byte(out), &list)
		if len(list) != 2 {
			t.Fatalf("declined delete removed a review, %d left", len(list))
		}

		// No answer at all keeps the default of no.
		una.in.Reset()
		una.mustRun(t, "reviews", "delete", id)
		out = una.mustRun(t, "reviews", "list", "--json")
		json.Unmarshal([]byte(out), &list)
		if len(list) != 2 {
			t.Fatalf("unanswered prompt removed a review, %d left", len(list))
		}

		una.in.WriteString("y\n")
		if out := una.mustRun(t, "reviews", "delete", id); !strings.Contains(out, "Deleted review "+id) {
			t.Errorf("unexpected output %q", out)
		}
		out = una.mustRun(t, "reviews", "list", "--json")
		json.Unmarshal([]byte(out), &list)
		if len(list) != 1 {
			t.Errorf("expected one review left, got %d", len(list))
		}

		una.mustRun(t, "reviews", "delete", "--yes", list[0].ID)
		out = una.mustRun(t, "reviews", "list", "--json")
		json.Unmarshal([]byte(out), &list)
		if len(list) != 0 {
			t.Errorf("--yes should delete without asking, %d left", len(list))
		}

		if _, err := una.run("reviews", "delete", "missing"); !errors.Is(err, shared.ErrInvalidArgument) {
			t.Errorf("expected ErrInvalidArgument for an unknown review, got %v", err)
		}
	})
}

func TestMetricsRouter(t *testing.T) {
	h := newHarness(t)
	u := h.login("u1", "Una")
	u.mustRun(t, "friends", "add", "u1")

	rec := httptest.NewRecorder()
	u.runner.metricsRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "go_goroutines") {
		t.Error("expected Go runtime metrics")
	}
	if !strings.Contains(body, `operation="send_request"`) {
		t.Errorf("expected graph write metrics, got:\n%s", body)
	}

	rec = httptest.NewRecorder()
	u.runner.metricsRouter().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/metrics", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405 for POST, got %d", rec.Code)
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{shared.ErrNotAuthenticated, "auth login"},
		{fmt.Errorf("%w: revoked", shared.ErrRefreshInvalid), "auth login"},
		{shared.ErrAuthCancelled, "login cancelled"},
		{fmt.Errorf("%w: missing", shared.ErrInvalidConfig), "setup config"},
		{&shared.GraphWriteError{Operation: "approve_request", Step: "write_edge_peer", Err: errors.New("boom")}, "friends audit"},
		{errors.New("boom"), "application error: boom"},
	}

	for _, tt := range tests {
		if got := describe(tt.err); !strings.Contains(got, tt.want) {
			t.Errorf("describe(%v) = %q, want it to contain %q", tt.err, got, tt.want)
		}
	}
}
