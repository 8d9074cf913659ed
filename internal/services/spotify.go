// Spotify Web API implementation of [Catalog]
//
// Spotify API response types based on https://developer.spotify.com/documentation/web-api/reference/
package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/shared"
)

const spotifyBaseURL = "https://api.spotify.com/v1"

type followers struct {
	Total int `json:"total"`
}

// SpotifyUser represents a Spotify user profile.
type SpotifyUser struct {
	ID          string         `json:"id"`
	DisplayName string         `json:"display_name"`
	Email       string         `json:"email"`
	Country     string         `json:"country"`
	Product     string         `json:"product"` // premium, free, etc.
	Followers   followers      `json:"followers"`
	Images      []SpotifyImage `json:"images"`
}

// SpotifyImage represents an image resource.
type SpotifyImage struct {
	URL    string `json:"url"`
	Height int    `json:"height"`
	Width  int    `json:"width"`
}

// SpotifyTrack represents a full track object.
type SpotifyTrack struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Artists    []SpotifyArtist `json:"artists"`
	Album      SpotifyAlbum    `json:"album"`
	DurationMS int             `json:"duration_ms"`
	Explicit   bool            `json:"explicit"`
	Popularity int             `json:"popularity"`
	URI        string          `json:"uri"`
}

// SpotifySimpleTrack is the track object nested in album track listings.
type SpotifySimpleTrack struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Artists     []SpotifyArtist `json:"artists"`
	DurationMS  int             `json:"duration_ms"`
	TrackNumber int             `json:"track_number"`
	URI         string          `json:"uri"`
}

// SpotifyArtist represents an artist.
type SpotifyArtist struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Genres     []string       `json:"genres"`
	Images     []SpotifyImage `json:"images"`
	Popularity int            `json:"popularity"`
	URI        string         `json:"uri"`
}

// SpotifyAlbum represents an album.
type SpotifyAlbum struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	AlbumType   string          `json:"album_type"`
	Artists     []SpotifyArtist `json:"artists"`
	ReleaseDate string          `json:"release_date"`
	TotalTracks int             `json:"total_tracks"`
	Images      []SpotifyImage  `json:"images"`
	URI         string          `json:"uri"`
}

// Owner is the owner of a playlist.
type Owner struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
}

type simplePlaylistTracks struct {
	Total int `json:"total"`
}

// SpotifySimplePlaylist represents a simplified playlist object (used in lists).
type SpotifySimplePlaylist struct {
	ID          string               `json:"id"`
	Name        string               `json:"name"`
	Description string               `json:"description"`
	Owner       Owner                `json:"owner"`
	Public      bool                 `json:"public"`
	Tracks      simplePlaylistTracks `json:"tracks"`
	Images      []SpotifyImage       `json:"images"`
	URI         string               `json:"uri"`
}

// SpotifyPlayHistory is one recently-played entry.
type SpotifyPlayHistory struct {
	Track    SpotifyTrack `json:"track"`
	PlayedAt string       `json:"played_at"`
}

// SpotifySearchResult holds one page per requested item type; types not requested are nil.
type SpotifySearchResult struct {
	Tracks    *Paging[SpotifyTrack]          `json:"tracks,omitempty"`
	Artists   *Paging[SpotifyArtist]         `json:"artists,omitempty"`
	Albums    *Paging[SpotifyAlbum]          `json:"albums,omitempty"`
	Playlists *Paging[SpotifySimplePlaylist] `json:"playlists,omitempty"`
}

// CatalogOption configures a [CatalogClient].
type CatalogOption func(*CatalogClient)

// WithHTTPClient replaces [http.DefaultClient].
func WithHTTPClient(client *http.Client) CatalogOption {
	return func(c *CatalogClient) { c.httpClient = client }
}

// WithRateLimit allows rps requests per second with the given burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) CatalogOption {
	return func(c *CatalogClient) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithMarket sets the market used by artist top tracks.
func WithMarket(market string) CatalogOption {
	return func(c *CatalogClient) { c.market = market }
}

// WithMetrics reports request status and latency to r.
func WithMetrics(r metrics.Recorder) CatalogOption {
	return func(c *CatalogClient) { c.metrics = r }
}

// WithLogger sets the logger used for request tracing.
func WithLogger(l *log.Logger) CatalogOption {
	return func(c *CatalogClient) { c.logger = l }
}

// CatalogClient implements [Catalog] against the Spotify Web API.
type CatalogClient struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	market     string
	metrics    metrics.Recorder
	logger     *log.Logger
}

// NewCatalogClient creates a client for baseURL, defaulting to the public Spotify API.
func NewCatalogClient(baseURL string, opts ...CatalogOption) *CatalogClient {
	if baseURL == "" {
		baseURL = spotifyBaseURL
	}

	c := &CatalogClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Inf, 0),
		market:     "US",
		metrics:    metrics.Nop{},
		logger:     log.New(io.Discard),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// doRequest performs an authenticated GET and decodes the JSON body into result.
func (c *CatalogClient) doRequest(ctx context.Context, token, endpoint string, query url.Values, result any) error {
	if token == "" {
		return fmt.Errorf("%w: empty bearer token", shared.ErrNotAuthenticated)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	apiURL := c.baseURL + endpoint
	if len(query) > 0 {
		apiURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.RecordCatalogRequest(0, time.Since(start))
		return fmt.Errorf("%w: %s: %v", shared.ErrCatalogRequest, endpoint, err)
	}
	defer resp.Body.Close()

	c.metrics.RecordCatalogRequest(resp.StatusCode, time.Since(start))
	c.logger.Debug("catalog request", "endpoint", endpoint, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		return &shared.CatalogRequestError{StatusCode: resp.StatusCode, Body: body}
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}

func pageQuery(limit, offset int) url.Values {
	q := url.Values{"limit": {strconv.Itoa(ClampLimit(limit))}}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	return q
}

func requireID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: %s id", shared.ErrMissingArgument, kind)
	}
	return nil
}

// CurrentUser retrieves the profile of the token's owner.
func (c *CatalogClient) CurrentUser(ctx context.Context, token string) (*SpotifyUser, error) {
	var user SpotifyUser
	if err := c.doRequest(ctx, token, "/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Playlists retrieves one page of the user's playlists.
func (c *CatalogClient) Playlists(ctx context.Context, token string, limit, offset int) (*Paging[SpotifySimplePlaylist], error) {
	var page Paging[SpotifySimplePlaylist]
	if err := c.doRequest(ctx, token, "/me/playlists", pageQuery(limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopArtists retrieves the user's most listened-to artists.
func (c *CatalogClient) TopArtists(ctx context.Context, token string, limit int) (*Paging[SpotifyArtist], error) {
	var page Paging[SpotifyArtist]
	if err := c.doRequest(ctx, token, "/me/top/artists", pageQuery(limit, 0), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// TopTracks retrieves the user's most listened-to tracks.
func (c *CatalogClient) TopTracks(ctx context.Context, token string, limit int) (*Paging[SpotifyTrack], error) {
	var page Paging[SpotifyTrack]
	if err := c.doRequest(ctx, token, "/me/top/tracks", pageQuery(limit, 0), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// RecentlyPlayed retrieves the user's latest plays, newest first.
func (c *CatalogClient) RecentlyPlayed(ctx context.Context, token string, limit int) (*CursorPaging[SpotifyPlayHistory], error) {
	var page CursorPaging[SpotifyPlayHistory]
	if err := c.doRequest(ctx, token, "/me/player/recently-played", pageQuery(limit, 0), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Search queries the catalog for items of the given types. No types means tracks.
func (c *CatalogClient) Search(ctx context.Context, token, query string, types []string, limit int) (*SpotifySearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: search query", shared.ErrMissingArgument)
	}
	if len(types) == 0 {
		types = []string{"track"}
	}
	for _, t := range types {
		if !slices.Contains(SearchTypes, t) {
			return nil, fmt.Errorf("%w: search type %q", shared.ErrInvalidArgument, t)
		}
	}

	q := pageQuery(limit, 0)
	q.Set("q", query)
	q.Set("type", strings.Join(types, ","))

	var result SpotifySearchResult
	if err := c.doRequest(ctx, token, "/search", q, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Album retrieves an album by ID.
func (c *CatalogClient) Album(ctx context.Context, token, albumID string) (*SpotifyAlbum, error) {
	if err := requireID("album", albumID); err != nil {
		return nil, err
	}

	var album SpotifyAlbum
	if err := c.doRequest(ctx, token, "/albums/"+url.PathEscape(albumID), nil, &album); err != nil {
		return nil, err
	}
	return &album, nil
}

// AlbumTracks retrieves one page of an album's track listing.
func (c *CatalogClient) AlbumTracks(ctx context.Context, token, albumID string, limit, offset int) (*Paging[SpotifySimpleTrack], error) {
	if err := requireID("album", albumID); err != nil {
		return nil, err
	}

	var page Paging[SpotifySimpleTrack]
	endpoint := "/albums/" + url.PathEscape(albumID) + "/tracks"
	if err := c.doRequest(ctx, token, endpoint, pageQuery(limit, offset), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Artist retrieves an artist by ID.
func (c *CatalogClient) Artist(ctx context.Context, token, artistID string) (*SpotifyArtist, error) {
	if err := requireID("artist", artistID); err != nil {
		return nil, err
	}

	var artist SpotifyArtist
	if err := c.doRequest(ctx, token, "/artists/"+url.PathEscape(artistID), nil, &artist); err != nil {
		return nil, err
	}
	return &artist, nil
}

// ArtistTopTracks retrieves an artist's top tracks in the configured market.
func (c *CatalogClient) ArtistTopTracks(ctx context.Context, token, artistID string) ([]SpotifyTrack, error) {
	if err := requireID("artist", artistID); err != nil {
		return nil, err
	}

	var response struct {
		Tracks []SpotifyTrack `json:"tracks"`
	}
	endpoint := "/artists/" + url.PathEscape(artistID) + "/top-tracks"
	if err := c.doRequest(ctx, token, endpoint, url.Values{"market": {c.market}}, &response); err != nil {
		return nil, err
	}
	return response.Tracks, nil
}

// Track retrieves a single track by ID.
func (c *CatalogClient) Track(ctx context.Context, token, trackID string) (*SpotifyTrack, error) {
	if err := requireID("track", trackID); err != nil {
		return nil, err
	}

	var track SpotifyTrack
	if err := c.doRequest(ctx, token, "/tracks/"+url.PathEscape(trackID), nil, &track); err != nil {
		return nil, err
	}
	return &track, nil
}
