package social

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
)

// Kind classifies an inconsistency in the friend graph.
type Kind int

const (
	// MissingReverseEdge is self->peer without peer->self: an approval or a removal stopped halfway.
	MissingReverseEdge Kind = iota
	// StaleRequest is a pending request from a peer that is already a friend.
	StaleRequest
)

func (k Kind) String() string {
	switch k {
	case MissingReverseEdge:
		return "missing_reverse_edge"
	case StaleRequest:
		return "stale_request"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Inconsistency is one problem found by [Service.Audit].
type Inconsistency struct {
	Kind Kind   `json:"kind"`
	Peer string `json:"peer"`
	// PendingRequest is set for MissingReverseEdge when the peer's request is still pending, which means
	// an approval was interrupted rather than a removal.
	PendingRequest bool `json:"pending_request,omitempty"`
}

func (i Inconsistency) String() string {
	switch {
	case i.Kind == MissingReverseEdge && i.PendingRequest:
		return fmt.Sprintf("%s: %s (approval incomplete)", i.Kind, i.Peer)
	case i.Kind == MissingReverseEdge:
		return fmt.Sprintf("%s: %s (removal incomplete)", i.Kind, i.Peer)
	default:
		return fmt.Sprintf("%s: %s", i.Kind, i.Peer)
	}
}

// Audit inspects the acting user's edges and requests for the states an interrupted mutation can leave.
func (s *Service) Audit(ctx context.Context) ([]Inconsistency, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	return s.audit(ctx, me)
}

func (s *Service) audit(ctx context.Context, me models.UserIdentity) ([]Inconsistency, error) {
	friends, err := s.store.Get(ctx, models.FriendsPath(me.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to read friends: %w", err)
	}
	requests, err := s.store.Get(ctx, models.RequestsPath(me.ID))
	if err != nil {
		return nil, fmt.Errorf("failed to read friend requests: %w", err)
	}

	var found []Inconsistency
	for _, f := range friends.Children {
		pending := requests.HasChild(f.Key)

		reverse, err := s.store.Get(ctx, models.FriendPath(f.Key, me.ID))
		if err != nil {
			return nil, fmt.Errorf("failed to read edge %s->%s: %w", f.Key, me.ID, err)
		}

		switch {
		case !reverse.Exists:
			found = append(found, Inconsistency{Kind: MissingReverseEdge, Peer: f.Key, PendingRequest: pending})
		case pending:
			found = append(found, Inconsistency{Kind: StaleRequest, Peer: f.Key})
		}
	}

	if len(found) > 0 {
		s.logger.Warn("friend graph inconsistent", "user", me.ID, "problems", len(found))
	}
	return found, nil
}

// Repair finishes what each inconsistency's interrupted mutation started: an approval with a pending
// request is completed, a half removal is completed, and a stale request is deleted. It returns what it
// fixed and the joined failures.
func (s *Service) Repair(ctx context.Context) ([]Inconsistency, error) {
	me, err := s.identity.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}

	found, err := s.audit(ctx, me)
	if err != nil {
		return nil, err
	}

	var fixed []Inconsistency
	var errs []error
	for _, inc := range found {
		var err error
		switch {
		case inc.Kind == StaleRequest:
			err = s.execute(ctx, OpRepair, step{"delete_request", func(ctx context.Context) error {
				return s.store.Remove(ctx, models.RequestPath(me.ID, inc.Peer))
			}})
		case inc.PendingRequest:
			var name string
			if name, err = s.peerName(ctx, me.ID, inc.Peer); err == nil {
				err = s.approve(ctx, me, inc.Peer, name)
			}
		default:
			err = s.remove(ctx, OpRepair, me.ID, inc.Peer)
		}

		if err != nil {
			errs = append(errs, err)
			continue
		}
		s.logger.Info("repaired", "user", me.ID, "problem", inc.String())
		fixed = append(fixed, inc)
	}

	if err := errors.Join(errs...); err != nil {
		return fixed, fmt.Errorf("%w: %d of %d repairs failed: %w", shared.ErrGraphWriteFailed, len(errs), len(found), err)
	}
	return fixed, nil
}
