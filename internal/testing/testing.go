// package testing contains shared test doubles
package testing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/repositories"
	"github.com/desertthunder/soundshare/internal/services"
	"github.com/desertthunder/soundshare/internal/shared"
)

// FWriter always returns an error on Write
type FWriter struct{}

func (f *FWriter) Write(p []byte) (n int, err error) {
	return 0, errors.New("write failed")
}

// LimitedWriter fails after a certain number of writes
type LimitedWriter struct {
	maxWrites int
	written   int
	target    io.Writer
}

func (l *LimitedWriter) Write(p []byte) (n int, err error) {
	if l.written >= l.maxWrites {
		return 0, errors.New("write limit exceeded")
	}
	l.written++
	return l.target.Write(p)
}

func NewLimitedWriter(maxWrites, written int, target io.Writer) LimitedWriter {
	return LimitedWriter{maxWrites: maxWrites, written: written, target: target}
}

// MockRoundTripper allows custom HTTP responses for testing
type MockRoundTripper struct {
	response *http.Response
	err      error
}

func NewMockRoundTripper(r *http.Response, e error) *MockRoundTripper {
	return &MockRoundTripper{response: r, err: e}
}

func (m *MockRoundTripper) RoundTrip(*http.Request) (*http.Response, error) {
	return m.response, m.err
}

// FCloser simulates a failure when reading response body
type FCloser struct{}

func (f *FCloser) Read(p []byte) (n int, err error) {
	return 0, errors.New("read failed")
}

func (f *FCloser) Close() error {
	return nil
}

// Clock is a settable time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// FlakyCredentialStore wraps a store and fails Set for the keys in FailSet.
type FlakyCredentialStore struct {
	repositories.CredentialStore
	mu      sync.Mutex
	FailSet map[models.CredentialKey]bool
}

func NewFlakyCredentialStore(fail ...models.CredentialKey) *FlakyCredentialStore {
	s := &FlakyCredentialStore{
		CredentialStore: repositories.NewMemoryCredentialStore(),
		FailSet:         map[models.CredentialKey]bool{},
	}
	for _, k := range fail {
		s.FailSet[k] = true
	}
	return s
}

func (s *FlakyCredentialStore) Set(ctx context.Context, key models.CredentialKey, value string) error {
	s.mu.Lock()
	fail := s.FailSet[key]
	s.mu.Unlock()
	if fail {
		return fmt.Errorf("%w: injected failure for %s", shared.ErrCredentialStore, key)
	}
	return s.CredentialStore.Set(ctx, key, value)
}

// FakeCatalog implements [services.Catalog] from a token-to-profile table.
//
// Tokens listed in Revoked answer 401. Every method other than CurrentUser returns empty results.
type FakeCatalog struct {
	mu       sync.Mutex
	Profiles map[string]services.SpotifyUser
	Revoked  map[string]bool
	Calls    []string
}

func NewFakeCatalog() *FakeCatalog {
	return &FakeCatalog{Profiles: map[string]services.SpotifyUser{}, Revoked: map[string]bool{}}
}

// Grant makes token resolve to the given user.
func (f *FakeCatalog) Grant(token, id, displayName string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Profiles[token] = services.SpotifyUser{ID: id, DisplayName: displayName}
	delete(f.Revoked, token)
}

// Revoke makes token answer 401.
func (f *FakeCatalog) Revoke(token string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Revoked[token] = true
}

// CallCount counts calls to method.
func (f *FakeCatalog) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if strings.HasPrefix(c, method+" ") {
			n++
		}
	}
	return n
}

func (f *FakeCatalog) check(method, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, method+" "+token)
	if token == "" {
		return shared.ErrNotAuthenticated
	}
	if f.Revoked[token] {
		return &shared.CatalogRequestError{StatusCode: http.StatusUnauthorized, Body: []byte(`{"error":{"status":401,"message":"The access token expired"}}`)}
	}
	return nil
}

func (f *FakeCatalog) CurrentUser(_ context.Context, token string) (*services.SpotifyUser, error) {
	if err := f.check("CurrentUser", token); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.Profiles[token]
	if !ok {
		return nil, &shared.CatalogRequestError{StatusCode: http.StatusUnauthorized}
	}
	return &u, nil
}

func (f *FakeCatalog) Playlists(_ context.Context, token string, _, _ int) (*services.Paging[services.SpotifySimplePlaylist], error) {
	return &services.Paging[services.SpotifySimplePlaylist]{}, f.check("Playlists", token)
}

func (f *FakeCatalog) TopArtists(_ context.Context, token string, _ int) (*services.Paging[services.SpotifyArtist], error) {
	return &services.Paging[services.SpotifyArtist]{}, f.check("TopArtists", token)
}

func (f *FakeCatalog) TopTracks(_ context.Context, token string, _ int) (*services.Paging[services.SpotifyTrack], error) {
	return &services.Paging[services.SpotifyTrack]{}, f.check("TopTracks", token)
}

func (f *FakeCatalog) RecentlyPlayed(_ context.Context, token string, _ int) (*services.CursorPaging[services.SpotifyPlayHistory], error) {
	return &services.CursorPaging[services.SpotifyPlayHistory]{}, f.check("RecentlyPlayed", token)
}

func (f *FakeCatalog) Search(_ context.Context, token, _ string, _ []string, _ int) (*services.SpotifySearchResult, error) {
	return &services.SpotifySearchResult{}, f.check("Search", token)
}

func (f *FakeCatalog) Album(_ context.Context, token, id string) (*services.SpotifyAlbum, error) {
	return &services.SpotifyAlbum{ID: id}, f.check("Album", token)
}

func (f *FakeCatalog) AlbumTracks(_ context.Context, token, _ string, _, _ int) (*services.Paging[services.SpotifySimpleTrack], error) {
	return &services.Paging[services.SpotifySimpleTrack]{}, f.check("AlbumTracks", token)
}

func (f *FakeCatalog) Artist(_ context.Context, token, id string) (*services.SpotifyArtist, error) {
	return &services.SpotifyArtist{ID: id}, f.check("Artist", token)
}

func (f *FakeCatalog) ArtistTopTracks(_ context.Context, token, _ string) ([]services.SpotifyTrack, error) {
	return nil, f.check("ArtistTopTracks", token)
}

func (f *FakeCatalog) Track(_ context.Context, token, id string) (*services.SpotifyTrack, error) {
	return &services.SpotifyTrack{ID: id}, f.check("Track", token)
}

func MustReadFile(t *testing.T, path string) string {
	t.Helper()
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read file %s: %v", path, err)
	}
	return string(content)
}
