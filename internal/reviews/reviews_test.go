package reviews

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("r%02d", n)
	}
}

func TestStore(t *testing.T) {
	stores := map[string]func(*testing.T) datastore.Store{
		"Redis": func(t *testing.T) datastore.Store {
			mr := miniredis.RunT(t)
			s := datastore.NewRedisStore(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "reviews")
			t.Cleanup(func() { s.Close() })
			return s
		},
		"Memory": func(t *testing.T) datastore.Store {
			s := datastore.NewMemoryStore()
			t.Cleanup(func() { s.Close() })
			return s
		},
	}

	for name, newStore := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			t.Run("Add and list", func(t *testing.T) {
				ds := newStore(t)
				s := NewStore(ds, nil)
				s.newID = sequentialIDs()

				first, err := s.Add(ctx, "u1", models.Review{Rating: 5, Text: "Great record", TrackOrAlbumID: "album-1", MediaType: models.MediaAlbum})
				require.NoError(t, err)
				assert.Equal(t, "r01", first.ID)
				assert.Equal(t, "u1", first.AuthorID)

				_, err = s.Add(ctx, "u1", models.Review{Rating: 2, TrackOrAlbumID: "track-9", MediaType: models.MediaTrack})
				require.NoError(t, err)

				snap, err := ds.Get(ctx, models.ReviewPath("u1", "r01"))
				require.NoError(t, err)
				assert.Equal(t, models.Fields{"rating": "5", "review": "Great record", "spotifySongId": "album-1", "musicType": "1"}, snap.Fields)

				list, err := s.List(ctx, "u1")
				require.NoError(t, err)
				require.Len(t, list, 2)
				assert.Equal(t, first, list[0])
				assert.Equal(t, models.MediaTrack, list[1].MediaType)

				other, err := s.List(ctx, "u2")
				require.NoError(t, err)
				assert.Empty(t, other)
			})

			t.Run("Generated ids are unique", func(t *testing.T) {
				s := NewStore(newStore(t), nil)
				a, err := s.Add(ctx, "u1", models.Review{Rating: 3, TrackOrAlbumID: "t1"})
				require.NoError(t, err)
				b, err := s.Add(ctx, "u1", models.Review{Rating: 3, TrackOrAlbumID: "t1"})
				require.NoError(t, err)
				assert.NotEqual(t, a.ID, b.ID)
			})

			t.Run("Validation", func(t *testing.T) {
				ds := newStore(t)
				s := NewStore(ds, nil)

				for _, r := range []models.Review{
					{Rating: 0, TrackOrAlbumID: "t1"},
					{Rating: 6, TrackOrAlbumID: "t1"},
					{Rating: 3, TrackOrAlbumID: " "},
					{Rating: 3, TrackOrAlbumID: "t1", MediaType: models.MediaType(7)},
				} {
					_, err := s.Add(ctx, "u1", r)
					assert.ErrorIs(t, err, shared.ErrInvalidReview, "%+v", r)
				}

				_, err := s.Add(ctx, "", models.Review{Rating: 3, TrackOrAlbumID: "t1"})
				assert.ErrorIs(t, err, shared.ErrMissingArgument)

				assert.False(t, mustGet(t, ds, models.UserPath("u1")).Exists, "nothing written")
			})

			t.Run("Delete", func(t *testing.T) {
				ds := newStore(t)
				s := NewStore(ds, nil)
				s.newID = sequentialIDs()

				_, err := s.Add(ctx, "u1", models.Review{Rating: 4, TrackOrAlbumID: "t1"})
				require.NoError(t, err)
				require.NoError(t, ds.Set(ctx, models.UserPath("u1"), models.NameFields("Una")))

				require.NoError(t, s.Delete(ctx, "u1", "r01"))
				require.NoError(t, s.Delete(ctx, "u1", "r01"))

				list, err := s.List(ctx, "u1")
				require.NoError(t, err)
				assert.Empty(t, list)
				assert.Equal(t, "Una", mustGet(t, ds, models.UserPath("u1")).Fields.Name(), "user record survives")

				assert.ErrorIs(t, s.Delete(ctx, "u1", ""), shared.ErrMissingArgument)
			})

			t.Run("Watch", func(t *testing.T) {
				s := NewStore(newStore(t), nil)

				w, err := s.Watch(ctx, "u1")
				require.NoError(t, err)

				waitFor(t, w, func(l []models.Review) bool { return len(l) == 0 })

				_, err = s.Add(ctx, "u1", models.Review{Rating: 1, TrackOrAlbumID: "t1"})
				require.NoError(t, err)
				waitFor(t, w, func(l []models.Review) bool { return len(l) == 1 && l[0].Rating == 1 })

				require.NoError(t, w.Close())
				for range w.Updates() {
				}
			})
		})
	}
}

func mustGet(t *testing.T, ds datastore.Store, path string) datastore.Snapshot {
	t.Helper()
	snap, err := ds.Get(context.Background(), path)
	require.NoError(t, err)
	return snap
}

func waitFor(t *testing.T, w *Watch, cond func([]models.Review) bool) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		select {
		case l, ok := <-w.Updates():
			require.True(t, ok, "watch closed early")
			if cond(l) {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for reviews")
		}
	}
}
