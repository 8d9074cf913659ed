package datastore

import (
	"context"
	"sync"
)

type snapshotFunc func(ctx context.Context, path string) (Snapshot, error)

// Subscription is a continuous, restartable view of one path.
//
// Snapshots are delivered on [Subscription.Snapshots] until [Subscription.Close] is called or the
// context passed to Subscribe ends, after which the channel is closed.
type Subscription struct {
	path    string
	out     chan Snapshot
	wake    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	detach  func()
	once    sync.Once
	mu      sync.Mutex
	lastErr error
}

func newSubscription(ctx context.Context, path string, detach func()) *Subscription {
	ctx, cancel := context.WithCancel(ctx)
	return &Subscription{
		path:   path,
		out:    make(chan Snapshot, 1),
		wake:   make(chan struct{}, 1),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
		detach: detach,
	}
}

// Path returns the watched path.
func (s *Subscription) Path() string { return s.path }

// Snapshots returns the delivery channel.
func (s *Subscription) Snapshots() <-chan Snapshot { return s.out }

// Err returns the most recent read error, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Close stops delivery and detaches from the store. It is safe to call more than once.
func (s *Subscription) Close() error {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		if s.detach != nil {
			s.detach()
		}
	})
	return nil
}

// notify marks the path as changed. Pending notifications coalesce.
func (s *Subscription) notify() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// start begins delivery. The subscription detaches itself once its context ends.
func (s *Subscription) start(read snapshotFunc) {
	go s.run(read)
	go func() {
		<-s.ctx.Done()
		s.Close()
	}()
}

// run reads a fresh snapshot on start and after every notification.
func (s *Subscription) run(read snapshotFunc) {
	defer close(s.done)
	defer close(s.out)

	for {
		snap, err := read(s.ctx, s.path)
		if s.ctx.Err() != nil {
			return
		}

		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()

		if err == nil {
			s.offer(snap)
		}

		select {
		case <-s.ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// offer replaces any undelivered snapshot with snap.
func (s *Subscription) offer(snap Snapshot) {
	select {
	case s.out <- snap:
		return
	default:
	}

	select {
	case <-s.out:
	default:
	}

	select {
	case s.out <- snap:
	default:
	}
}
