// Package reviews stores ratings and short reviews of tracks and albums under users/{author}/reviews/{id}.
//
// Reviews are immutable once written; re-reviewing creates a new entry.
package reviews

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Store reads and writes reviews in the shared datastore.
type Store struct {
	store  datastore.Store
	logger *log.Logger
	newID  func() string
}

// NewStore wraps store. A nil logger discards output.
func NewStore(store datastore.Store, logger *log.Logger) *Store {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Store{store: store, logger: logger, newID: shared.GenerateID}
}

// Add validates r, assigns it a new id and writes it under authorID.
func (s *Store) Add(ctx context.Context, authorID string, r models.Review) (models.Review, error) {
	if authorID == "" {
		return models.Review{}, fmt.Errorf("%w: author id", shared.ErrMissingArgument)
	}
	if err := r.Validate(); err != nil {
		return models.Review{}, fmt.Errorf("%w: %v", shared.ErrInvalidReview, err)
	}

	r.ID = s.newID()
	r.AuthorID = authorID

	if err := s.store.Set(ctx, models.ReviewPath(authorID, r.ID), r.Fields()); err != nil {
		return models.Review{}, fmt.Errorf("failed to save review: %w", err)
	}

	s.logger.Info("review saved", "author", authorID, "review", r.ID, "item", r.TrackOrAlbumID, "rating", r.Rating)
	return r, nil
}

// List returns authorID's reviews ordered by id.
func (s *Store) List(ctx context.Context, authorID string) ([]models.Review, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author id", shared.ErrMissingArgument)
	}
	children, err := s.store.Children(ctx, models.ReviewsPath(authorID), datastore.Range{})
	if err != nil {
		return nil, fmt.Errorf("failed to read reviews: %w", err)
	}
	return toReviews(authorID, children), nil
}

// Delete removes one review. Deleting a missing review is not an error.
func (s *Store) Delete(ctx context.Context, authorID, reviewID string) error {
	if authorID == "" || reviewID == "" {
		return fmt.Errorf("%w: author and review id", shared.ErrMissingArgument)
	}
	if err := s.store.Remove(ctx, models.ReviewPath(authorID, reviewID)); err != nil {
		return fmt.Errorf("failed to delete review: %w", err)
	}
	s.logger.Info("review deleted", "author", authorID, "review", reviewID)
	return nil
}

func toReviews(authorID string, children []datastore.Child) []models.Review {
	out := make([]models.Review, 0, len(children))
	for _, c := range children {
		out = append(out, models.ReviewFromFields(authorID, c.Key, c.Fields))
	}
	return out
}

// Watch is a live view of one author's reviews.
type Watch struct {
	sub  *datastore.Subscription
	out  chan []models.Review
	done chan struct{}
}

// Updates delivers the full list after every change, latest-wins, and is closed when the watch ends.
func (w *Watch) Updates() <-chan []models.Review { return w.out }

func (w *Watch) Close() error {
	err := w.sub.Close()
	<-w.done
	return err
}

// Watch follows authorID's reviews until ctx ends or the watch is closed.
func (s *Store) Watch(ctx context.Context, authorID string) (*Watch, error) {
	if authorID == "" {
		return nil, fmt.Errorf("%w: author id", shared.ErrMissingArgument)
	}
	sub, err := s.store.Subscribe(ctx, models.ReviewsPath(authorID))
	if err != nil {
		return nil, fmt.Errorf("failed to watch reviews: %w", err)
	}

	w := &Watch{sub: sub, out: make(chan []models.Review, 1), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer close(w.out)
		for snap := range sub.Snapshots() {
			list := toReviews(authorID, snap.Children)
			select {
			case w.out <- list:
				continue
			default:
			}
			select {
			case <-w.out:
			default:
			}
			w.out <- list
		}
	}()
	return w, nil
}
