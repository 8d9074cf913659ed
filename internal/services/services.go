package services

import (
	"context"
)

// Catalog is the read surface of the music catalog. Every call carries its own bearer token.
type Catalog interface {
	CurrentUser(ctx context.Context, token string) (*SpotifyUser, error)
	Playlists(ctx context.Context, token string, limit, offset int) (*Paging[SpotifySimplePlaylist], error)
	TopArtists(ctx context.Context, token string, limit int) (*Paging[SpotifyArtist], error)
	TopTracks(ctx context.Context, token string, limit int) (*Paging[SpotifyTrack], error)
	RecentlyPlayed(ctx context.Context, token string, limit int) (*CursorPaging[SpotifyPlayHistory], error)
	Search(ctx context.Context, token, query string, types []string, limit int) (*SpotifySearchResult, error)
	Album(ctx context.Context, token, albumID string) (*SpotifyAlbum, error)
	AlbumTracks(ctx context.Context, token, albumID string, limit, offset int) (*Paging[SpotifySimpleTrack], error)
	Artist(ctx context.Context, token, artistID string) (*SpotifyArtist, error)
	ArtistTopTracks(ctx context.Context, token, artistID string) ([]SpotifyTrack, error)
	Track(ctx context.Context, token, trackID string) (*SpotifyTrack, error)
}

// Paging is the offset-paged envelope used by most list endpoints.
type Paging[T any] struct {
	Items    []T     `json:"items"`
	Total    int     `json:"total"`
	Limit    int     `json:"limit"`
	Offset   int     `json:"offset"`
	Next     *string `json:"next"`
	Previous *string `json:"previous"`
}

// CursorPaging is the cursor-paged envelope used by recently-played.
type CursorPaging[T any] struct {
	Items   []T     `json:"items"`
	Limit   int     `json:"limit"`
	Next    *string `json:"next"`
	Cursors struct {
		After  string `json:"after"`
		Before string `json:"before"`
	} `json:"cursors"`
}

// SearchTypes lists the item types accepted by the search endpoint.
var SearchTypes = []string{"album", "artist", "playlist", "track"}

// ClampLimit bounds a page size to 1..50, treating zero or negative as the default of 20.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return 20
	case limit > 50:
		return 50
	default:
		return limit
	}
}
