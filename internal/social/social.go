package social

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Operation names used in errors, logs and metrics.
const (
	OpSendRequest = "send_request"
	OpApprove     = "approve_request"
	OpDeny        = "deny_request"
	OpRemove      = "remove_friend"
	OpEnsureUser  = "ensure_user"
	OpRepair      = "repair"
)

// Outcome is the result of [Service.SendFriendRequest].
type Outcome int

const (
	Sent Outcome = iota
	SkippedSelf
	SkippedAlreadyFriends
)

func (o Outcome) String() string {
	switch o {
	case Sent:
		return "sent"
	case SkippedSelf:
		return "skipped: that is you"
	case SkippedAlreadyFriends:
		return "skipped: already friends"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// IdentityResolver resolves the acting user. [session.Session] implements it.
type IdentityResolver interface {
	CurrentUser(ctx context.Context) (models.UserIdentity, error)
}

type Option func(*Service)

func WithLogger(l *log.Logger) Option {
	return func(s *Service) { s.logger = l }
}

func WithMetrics(r metrics.Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

// Service is the friend request, approval, denial and removal protocol.
type Service struct {
	identity IdentityResolver
	store    datastore.Store
	logger   *log.Logger
	metrics  metrics.Recorder
}

func NewService(identity IdentityResolver, store datastore.Store, opts ...Option) *Service {
	s := &Service{
		identity: identity,
		store:    store,
		logger:   log.New(io.Discard),
		metrics:  metrics.Nop{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkPeer rejects ids that would address a different node than users/{id}.
func checkPeer(id string) error {
	if id == "" {
		return fmt.Errorf("%w: user id", shared.ErrMissingArgument)
	}
	if strings.ContainsAny(id, "/.#$[]") {
		return fmt.Errorf("%w: user id %q", shared.ErrInvalidInput, id)
	}
	return nil
}

// actor resolves the acting user and validates peer.
func (s *Service) actor(ctx context.Context, peer string) (models.UserIdentity, error) {
	if err := checkPeer(peer); err != nil {
		return models.UserIdentity{}, err
	}
	return s.identity.CurrentUser(ctx)
}

// SendFriendRequest writes users/{target}/friendRequests/{self}. Targeting oneself or an existing friend is
// skipped without error. Repeated sends overwrite the same key.
func (s *Service) SendFriendRequest(ctx context.Context, targetID string) (Outcome, error) {
	me, err := s.actor(ctx, targetID)
	if err != nil {
		return 0, err
	}

	if targetID == me.ID {
		s.skip(OpSendRequest, "self", "user", me.ID)
		return SkippedSelf, nil
	}

	edge, err := s.store.Get(ctx, models.FriendPath(me.ID, targetID))
	if err != nil {
		return 0, &shared.GraphWriteError{Operation: OpSendRequest, Step: "read_friendship", Err: err}
	}
	if edge.Exists {
		s.skip(OpSendRequest, "already friends", "user", me.ID, "peer", targetID)
		return SkippedAlreadyFriends, nil
	}

	err = s.execute(ctx, OpSendRequest, step{"write_request", func(ctx context.Context) error {
		return s.store.Set(ctx, models.RequestPath(targetID, me.ID), models.NameFields(me.Name()))
	}})
	if err != nil {
		return 0, err
	}

	s.logger.Info("friend request sent", "from", me.ID, "to", targetID)
	return Sent, nil
}

// ApproveFriendRequest creates both edges and then deletes the pending request. Approving twice leaves the
// same state as approving once.
func (s *Service) ApproveFriendRequest(ctx context.Context, requesterID string) error {
	me, err := s.actor(ctx, requesterID)
	if err != nil {
		return err
	}
	if requesterID == me.ID {
		s.skip(OpApprove, "self", "user", me.ID)
		return nil
	}

	name, err := s.peerName(ctx, me.ID, requesterID)
	if err != nil {
		return &shared.GraphWriteError{Operation: OpApprove, Step: "resolve_name", Err: err}
	}

	if err := s.approve(ctx, me, requesterID, name); err != nil {
		return err
	}
	s.logger.Info("friend request approved", "user", me.ID, "peer", requesterID)
	return nil
}

func (s *Service) approve(ctx context.Context, me models.UserIdentity, peer, peerName string) error {
	return s.execute(ctx, OpApprove,
		step{"write_edge_self", func(ctx context.Context) error {
			return s.store.Set(ctx, models.FriendPath(me.ID, peer), models.NameFields(peerName))
		}},
		step{"write_edge_peer", func(ctx context.Context) error {
			return s.store.Set(ctx, models.FriendPath(peer, me.ID), models.NameFields(me.Name()))
		}},
		step{"delete_request", func(ctx context.Context) error {
			return s.store.Remove(ctx, models.RequestPath(me.ID, peer))
		}},
	)
}

// peerName picks the display name stored on the self->peer edge: the pending request's name, then the
// existing edge's name, then the peer's user record, then the id itself.
func (s *Service) peerName(ctx context.Context, self, peer string) (string, error) {
	for _, path := range []string{
		models.RequestPath(self, peer),
		models.FriendPath(self, peer),
		models.UserPath(peer),
	} {
		snap, err := s.store.Get(ctx, path)
		if err != nil {
			return "", err
		}
		if name := snap.Fields.Name(); name != "" {
			return name, nil
		}
	}
	return peer, nil
}

// DenyFriendRequest deletes the pending request. Edges are not touched.
func (s *Service) DenyFriendRequest(ctx context.Context, requesterID string) error {
	me, err := s.actor(ctx, requesterID)
	if err != nil {
		return err
	}
	if requesterID == me.ID {
		s.skip(OpDeny, "self", "user", me.ID)
		return nil
	}

	err = s.execute(ctx, OpDeny, step{"delete_request", func(ctx context.Context) error {
		return s.store.Remove(ctx, models.RequestPath(me.ID, requesterID))
	}})
	if err != nil {
		return err
	}
	s.logger.Info("friend request denied", "user", me.ID, "peer", requesterID)
	return nil
}

// RemoveFriend deletes self->peer and then peer->self.
func (s *Service) RemoveFriend(ctx context.Context, peerID string) error {
	me, err := s.actor(ctx, peerID)
	if err != nil {
		return err
	}
	if peerID == me.ID {
		s.skip(OpRemove, "self", "user", me.ID)
		return nil
	}

	if err := s.remove(ctx, OpRemove, me.ID, peerID); err != nil {
		return err
	}
	s.logger.Info("friend removed", "user", me.ID, "peer", peerID)
	return nil
}

func (s *Service) remove(ctx context.Context, op, self, peer string) error {
	return s.execute(ctx, op,
		step{"delete_edge_self", func(ctx context.Context) error {
			return s.store.Remove(ctx, models.FriendPath(self, peer))
		}},
		step{"delete_edge_peer", func(ctx context.Context) error {
			return s.store.Remove(ctx, models.FriendPath(peer, self))
		}},
	)
}

// EnsureUser creates users/{id} with the display name unless the record already has fields. It never
// overwrites and reports whether it created the record.
func (s *Service) EnsureUser(ctx context.Context, u models.UserIdentity) (bool, error) {
	if err := checkPeer(u.ID); err != nil {
		return false, err
	}

	created, err := s.store.SetIfAbsent(ctx, models.UserPath(u.ID), models.NameFields(u.Name()))
	if err != nil {
		s.metrics.RecordGraphWrite(OpEnsureUser, metrics.WriteFailed)
		return false, &shared.GraphWriteError{Operation: OpEnsureUser, Step: "create_user", Err: err}
	}
	if !created {
		s.metrics.RecordGraphWrite(OpEnsureUser, metrics.WriteSkipped)
		return false, nil
	}

	s.metrics.RecordGraphWrite(OpEnsureUser, metrics.WriteComplete)
	s.logger.Info("user record created", "user", u.ID)
	return true, nil
}

// EnsureUserHook returns a post-login hook that resolves the new token's owner with resolve and ensures
// the user record exists.
func (s *Service) EnsureUserHook(resolve func(ctx context.Context, token string) (models.UserIdentity, error)) func(context.Context, string) error {
	return func(ctx context.Context, token string) error {
		u, err := resolve(ctx, token)
		if err != nil {
			return fmt.Errorf("failed to resolve user after login: %w", err)
		}
		_, err = s.EnsureUser(ctx, u)
		return err
	}
}
