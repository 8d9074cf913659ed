package social

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/models"
)

// ListFriends returns the acting user's friends sorted by display name.
func (s *Service) ListFriends(ctx context.Context) ([]models.Friend, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, models.FriendsPath(me.ID))
}

// ListFriendRequests returns the requests pending for the acting user, sorted by display name.
func (s *Service) ListFriendRequests(ctx context.Context) ([]models.Friend, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.list(ctx, models.RequestsPath(me.ID))
}

func (s *Service) list(ctx context.Context, path string) ([]models.Friend, error) {
	children, err := s.store.Children(ctx, path, datastore.Range{})
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return toFriends(children), nil
}

func toFriends(children []datastore.Child) []models.Friend {
	friends := make([]models.Friend, 0, len(children))
	for _, c := range children {
		name := c.Fields.Name()
		if name == "" {
			name = c.Key
		}
		friends = append(friends, models.Friend{ID: c.Key, Name: name})
	}
	slices.SortStableFunc(friends, func(a, b models.Friend) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return friends
}

// SearchUsers returns users whose id starts with the trimmed, lowercased query, ordered by id. An empty
// query matches everyone. The acting user is never included.
func (s *Service) SearchUsers(ctx context.Context, query string) ([]models.UserRecord, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	prefix := strings.ToLower(strings.TrimSpace(query))
	children, err := s.store.Children(ctx, models.UsersRoot, datastore.Prefix(prefix))
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}

	users := make([]models.UserRecord, 0, len(children))
	for _, c := range children {
		if c.Key == me.ID {
			continue
		}
		name := c.Fields.Name()
		if name == "" {
			name = c.Key
		}
		users = append(users, models.UserRecord{ID: c.Key, Name: name})
	}
	return users, nil
}

// Watch is a live, sorted view of a friends or requests collection.
type Watch struct {
	sub  *datastore.Subscription
	out  chan []models.Friend
	done chan struct{}
}

// Updates delivers the full list after every change. A slow reader only sees the latest list. The channel
// is closed once the watch ends.
func (w *Watch) Updates() <-chan []models.Friend { return w.out }

// Err returns the last datastore read error seen by the underlying subscription.
func (w *Watch) Err() error { return w.sub.Err() }

// Close ends the watch and waits for delivery to stop.
func (w *Watch) Close() error {
	err := w.sub.Close()
	<-w.done
	return err
}

// WatchFriends follows the acting user's friends until ctx ends or the watch is closed.
func (s *Service) WatchFriends(ctx context.Context) (*Watch, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, models.FriendsPath(me.ID))
}

// WatchFriendRequests follows the requests pending for the acting user.
func (s *Service) WatchFriendRequests(ctx context.Context) (*Watch, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.watch(ctx, models.RequestsPath(me.ID))
}

func (s *Service) watch(ctx context.Context, path string) (*Watch, error) {
	sub, err := s.store.Subscribe(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", path, err)
	}

	w := &Watch{sub: sub, out: make(chan []models.Friend, 1), done: make(chan struct{})}
	go func() {
		defer close(w.done)
		defer close(w.out)
		for snap := range sub.Snapshots() {
			w.offer(toFriends(snap.Children))
		}
	}()
	return w, nil
}

// offer replaces any undelivered list with list.
func (w *Watch) offer(list []models.Friend) {
	for {
		select {
		case w.out <- list:
			return
		default:
		}
		select {
		case <-w.out:
		default:
		}
	}
}
