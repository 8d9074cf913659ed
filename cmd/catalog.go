package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/services"
	"github.com/desertthunder/soundshare/internal/session"
	"github.com/desertthunder/soundshare/internal/shared"
)

// catalogQuery runs fn through the session (refreshing once on a 401) and prints the result as JSON
// when --json is set, otherwise with plain.
func catalogQuery[T any](ctx context.Context, r *Runner, cmd *cli.Command, fn func(ctx context.Context, c services.Catalog, token string) (T, error), plain func(T) error) error {
	sess, err := r.session(ctx)
	if err != nil {
		return err
	}

	v, err := session.Call(ctx, sess, func(ctx context.Context, token string) (T, error) {
		return fn(ctx, sess.Catalog(), token)
	})
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(v, cmd.Bool("pretty"))
	}
	return plain(v)
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.StringArg(name))
	if v == "" {
		return "", fmt.Errorf("%w: <%s>", shared.ErrMissingArgument, name)
	}
	return v, nil
}

func artistNames(artists []services.SpotifyArtist) string {
	names := make([]string, 0, len(artists))
	for _, a := range artists {
		names = append(names, a.Name)
	}
	return strings.Join(names, ", ")
}

func formatDuration(ms int) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}

// CatalogMe shows the logged-in user's profile.
func (r *Runner) CatalogMe(ctx context.Context, cmd *cli.Command) error {
	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.SpotifyUser, error) {
		return c.CurrentUser(ctx, token)
	}, func(u *services.SpotifyUser) error {
		r.writePlainHeader(u.DisplayName)
		r.writePlain("ID:      %s\n", u.ID)
		if u.Email != "" {
			r.writePlain("Email:   %s\n", u.Email)
		}
		if u.Country != "" {
			r.writePlain("Country: %s\n", u.Country)
		}
		if u.Product != "" {
			r.writePlain("Plan:    %s\n", u.Product)
		}
		return nil
	})
}

// CatalogPlaylists lists the user's playlists.
func (r *Runner) CatalogPlaylists(ctx context.Context, cmd *cli.Command) error {
	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.Paging[services.SpotifySimplePlaylist], error) {
		return c.Playlists(ctx, token, cmd.Int("limit"), cmd.Int("offset"))
	}, func(page *services.Paging[services.SpotifySimplePlaylist]) error {
		r.writePlain("Playlists: %d of %d\n\n", len(page.Items), page.Total)
		for i, p := range page.Items {
			r.writePlain("%d. %s (%d tracks)\n   ID: %s\n", page.Offset+i+1, p.Name, p.Tracks.Total, p.ID)
		}
		return nil
	})
}

// CatalogTopTracks lists the user's top tracks.
func (r *Runner) CatalogTopTracks(ctx context.Context, cmd *cli.Command) error {
	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.Paging[services.SpotifyTrack], error) {
		return c.TopTracks(ctx, token, cmd.Int("limit"))
	}, func(page *services.Paging[services.SpotifyTrack]) error {
		r.writePlainHeader("Top tracks")
		r.writeTracks(page.Items)
		return nil
	})
}

// CatalogTopArtists lists the user's top artists.
func (r *Runner) CatalogTopArtists(ctx context.Context, cmd *cli.Command) error {
	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.Paging[services.SpotifyArtist], error) {
		return c.TopArtists(ctx, token, cmd.Int("limit"))
	}, func(page *services.Paging[services.SpotifyArtist]) error {
		r.writePlainHeader("Top artists")
		for i, a := range page.Items {
			r.writePlain("%d. %s\n   ID: %s\n", i+1, a.Name, a.ID)
		}
		return nil
	})
}

// CatalogRecent lists recently played tracks.
func (r *Runner) CatalogRecent(ctx context.Context, cmd *cli.Command) error {
	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.CursorPaging[services.SpotifyPlayHistory], error) {
		return c.RecentlyPlayed(ctx, token, cmd.Int("limit"))
	}, func(page *services.CursorPaging[services.SpotifyPlayHistory]) error {
		r.writePlainHeader("Recently played")
		for i, h := range page.Items {
			r.writePlain("%d. %s - %s  [%s]\n", i+1, artistNames(h.Track.Artists), h.Track.Name, h.PlayedAt)
		}
		return nil
	})
}

// CatalogSearch searches the catalog for the query argument.
func (r *Runner) CatalogSearch(ctx context.Context, cmd *cli.Command) error {
	query, err := requireArg(cmd, "query")
	if err != nil {
		return err
	}

	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.SpotifySearchResult, error) {
		return c.Search(ctx, token, query, cmd.StringSlice("type"), cmd.Int("limit"))
	}, func(res *services.SpotifySearchResult) error {
		if res.Albums != nil {
			r.writePlainHeader("Albums")
			for i, a := range res.Albums.Items {
				r.writePlain("%d. %s - %s (%s)\n   ID: %s\n", i+1, artistNames(a.Artists), a.Name, a.ReleaseDate, a.ID)
			}
		}
		if res.Artists != nil {
			r.writePlainHeader("Artists")
			for i, a := range res.Artists.Items {
				r.writePlain("%d. %s\n   ID: %s\n", i+1, a.Name, a.ID)
			}
		}
		if res.Tracks != nil {
			r.writePlainHeader("Tracks")
			r.writeTracks(res.Tracks.Items)
		}
		if res.Playlists != nil {
			r.writePlainHeader("Playlists")
			for i, p := range res.Playlists.Items {
				r.writePlain("%d. %s by %s\n   ID: %s\n", i+1, p.Name, p.Owner.DisplayName, p.ID)
			}
		}
		return nil
	})
}

// CatalogAlbum shows one album.
func (r *Runner) CatalogAlbum(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.SpotifyAlbum, error) {
		return c.Album(ctx, token, id)
	}, func(a *services.SpotifyAlbum) error {
		r.writePlainHeader(a.Name)
		r.writePlain("Artist:   %s\n", artistNames(a.Artists))
		r.writePlain("Released: %s\n", a.ReleaseDate)
		r.writePlain("Tracks:   %d\n", a.TotalTracks)
		return r.writePlain("ID:       %s\n", a.ID)
	})
}

// CatalogAlbumTracks lists one album's tracks.
func (r *Runner) CatalogAlbumTracks(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.Paging[services.SpotifySimpleTrack], error) {
		return c.AlbumTracks(ctx, token, id, cmd.Int("limit"), cmd.Int("offset"))
	}, func(page *services.Paging[services.SpotifySimpleTrack]) error {
		for _, t := range page.Items {
			r.writePlain("%2d. %s  %s\n", t.TrackNumber, t.Name, formatDuration(t.DurationMS))
		}
		return nil
	})
}

// CatalogArtist shows one artist.
func (r *Runner) CatalogArtist(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) (*services.SpotifyArtist, error) {
		return c.Artist(ctx, token, id)
	}, func(a *services.SpotifyArtist) error {
		r.writePlainHeader(a.Name)
		if len(a.Genres) > 0 {
			r.writePlain("Genres: %s\n", strings.Join(a.Genres, ", "))
		}
		return r.writePlain("ID:     %s\n", a.ID)
	})
}

// CatalogArtistTopTracks lists one artist's top tracks.
func (r *Runner) CatalogArtistTopTracks(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	return catalogQuery(ctx, r, cmd, func(ctx context.Context, c services.Catalog, token string) ([]services.SpotifyTrack, error) {
		return c.ArtistTopTracks(ctx, token, id)
	}, func(tracks []services.SpotifyTrack) error {
		r.writeTracks(tracks)
		return nil
	})
}

func (r *Runner) writeTracks(tracks []services.SpotifyTrack) {
	for i, t := range tracks {
		r.writePlain("%d. %s - %s  %s\n   ID: %s\n", i+1, artistNames(t.Artists), t.Name, formatDuration(t.DurationMS), t.ID)
	}
}
