package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/formatter"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/shared"
	"github.com/desertthunder/soundshare/internal/social"
)

func (r *Runner) writeFriends(cmd *cli.Command, title string, friends []models.Friend) error {
	format := cmd.String("format")
	if cmd.Bool("json") {
		format = "json"
	}

	switch format {
	case "json":
		return r.writeJSON(friends, cmd.Bool("pretty"))
	case "csv":
		data, err := formatter.FriendsToCSV(friends)
		if err != nil {
			return err
		}
		_, err = r.output.Write(data)
		return err
	case "text", "":
		return r.writePlain("%s", formatter.FriendsToText(title, friends))
	default:
		return fmt.Errorf("%w: unknown format %q (want text, csv or json)", shared.ErrInvalidArgument, format)
	}
}

// FriendsList prints the acting user's friends.
func (r *Runner) FriendsList(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	friends, err := svc.ListFriends(ctx)
	if err != nil {
		return err
	}
	return r.writeFriends(cmd, "Friends", friends)
}

// FriendsRequests prints requests waiting for the acting user.
func (r *Runner) FriendsRequests(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	requests, err := svc.ListFriendRequests(ctx)
	if err != nil {
		return err
	}
	return r.writeFriends(cmd, "Requests", requests)
}

// FriendsSearch finds users by id prefix.
func (r *Runner) FriendsSearch(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	users, err := svc.SearchUsers(ctx, cmd.StringArg("prefix"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(users, cmd.Bool("pretty"))
	}

	r.writePlain("Users: %d\n", len(users))
	for i, u := range users {
		r.writePlain("%d. %s (%s)\n", i+1, u.Name, u.ID)
	}
	return nil
}

// FriendsAdd sends a friend request.
func (r *Runner) FriendsAdd(ctx context.Context, cmd *cli.Command) error {
	target, err := requireArg(cmd, "user")
	if err != nil {
		return err
	}

	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	outcome, err := svc.SendFriendRequest(ctx, target)
	if err != nil {
		return err
	}

	if outcome != social.Sent {
		return r.writePlain("Nothing to do for %s (%s)\n", target, outcome)
	}
	return r.writePlain("✓ Friend request sent to %s\n", target)
}

// FriendsApprove approves a pending request.
func (r *Runner) FriendsApprove(ctx context.Context, cmd *cli.Command) error {
	return r.friendsMutation(ctx, cmd, "✓ You and %s are now friends\n", (*social.Service).ApproveFriendRequest)
}

// FriendsDeny deletes a pending request.
func (r *Runner) FriendsDeny(ctx context.Context, cmd *cli.Command) error {
	return r.friendsMutation(ctx, cmd, "✓ Request from %s denied\n", (*social.Service).DenyFriendRequest)
}

// FriendsRemove deletes the friendship on both sides.
func (r *Runner) FriendsRemove(ctx context.Context, cmd *cli.Command) error {
	return r.friendsMutation(ctx, cmd, "✓ Removed %s\n", (*social.Service).RemoveFriend)
}

func (r *Runner) friendsMutation(ctx context.Context, cmd *cli.Command, done string, fn func(*social.Service, context.Context, string) error) error {
	peer, err := requireArg(cmd, "user")
	if err != nil {
		return err
	}

	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	if err := fn(svc, ctx, peer); err != nil {
		var gwe *shared.GraphWriteError
		if errors.As(err, &gwe) && len(gwe.Completed) > 0 {
			r.logger.Warn("friend graph left partially updated; run `friends repair`", "completed", gwe.Completed)
		}
		return err
	}
	return r.writePlain(done, peer)
}

// FriendsWatch prints the friends (or requests) list on every change until interrupted.
func (r *Runner) FriendsWatch(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	title := "Friends"
	watch := svc.WatchFriends
	if cmd.Bool("requests") {
		title = "Requests"
		watch = svc.WatchFriendRequests
	}

	w, err := watch(ctx)
	if err != nil {
		return err
	}
	defer w.Close()

	for list := range w.Updates() {
		if cmd.Bool("json") {
			if err := r.writeJSON(list, cmd.Bool("pretty")); err != nil {
				return err
			}
			continue
		}
		if err := r.writePlainln("%s", formatter.FriendsToText(title, list)); err != nil {
			return err
		}
	}

	if err := w.Err(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// FriendsAudit reports inconsistencies left by interrupted mutations.
func (r *Runner) FriendsAudit(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	found, err := svc.Audit(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if found == nil {
			found = []social.Inconsistency{}
		}
		return r.writeJSON(found, cmd.Bool("pretty"))
	}

	if len(found) == 0 {
		return r.writePlain("✓ Friend graph is consistent\n")
	}
	for _, inc := range found {
		r.writePlain("✗ %s\n", inc)
	}
	return r.writePlain("Run `soundshare friends repair` to fix %d problem(s)\n", len(found))
}

// FriendsRepair completes interrupted mutations.
func (r *Runner) FriendsRepair(ctx context.Context, cmd *cli.Command) error {
	svc, err := r.social(ctx)
	if err != nil {
		return err
	}

	fixed, err := svc.Repair(ctx)
	for _, inc := range fixed {
		r.writePlain("✓ Repaired %s\n", inc)
	}
	if err != nil {
		return err
	}
	if len(fixed) == 0 {
		return r.writePlain("✓ Nothing to repair\n")
	}
	return nil
}
