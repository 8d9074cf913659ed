package main

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/formatter"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/session"
	"github.com/desertthunder/soundshare/internal/shared"
	"github.com/desertthunder/soundshare/internal/tasks"
)

// author resolves --user to an identity, defaulting to the logged-in user. Other users' display names
// come from their user record.
func (r *Runner) author(ctx context.Context, cmd *cli.Command, sess *session.Session) (models.UserIdentity, error) {
	id := strings.TrimSpace(cmd.String("user"))
	if id == "" {
		return sess.CurrentUser(ctx)
	}

	snap, err := sess.Store().Get(ctx, models.UserPath(id))
	if err != nil {
		return models.UserIdentity{}, err
	}
	return models.UserIdentity{ID: id, DisplayName: snap.Fields.Name()}, nil
}

// ReviewsAdd writes a review as the logged-in user.
func (r *Runner) ReviewsAdd(ctx context.Context, cmd *cli.Command) error {
	item, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}
	media, err := models.ParseMediaType(cmd.String("type"))
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}

	store, sess, err := r.reviews(ctx)
	if err != nil {
		return err
	}
	me, err := sess.CurrentUser(ctx)
	if err != nil {
		return err
	}

	review, err := store.Add(ctx, me.ID, models.Review{
		Rating:         cmd.Int("rating"),
		Text:           cmd.String("text"),
		TrackOrAlbumID: item,
		MediaType:      media,
	})
	if err != nil {
		return err
	}
	return r.writePlain("✓ Saved %s review %s %s (id %s)\n", media, formatter.Stars(review.Rating), item, review.ID)
}

// ReviewsList prints an author's reviews.
func (r *Runner) ReviewsList(ctx context.Context, cmd *cli.Command) error {
	store, sess, err := r.reviews(ctx)
	if err != nil {
		return err
	}
	author, err := r.author(ctx, cmd, sess)
	if err != nil {
		return err
	}

	list, err := store.List(ctx, author.ID)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(list, cmd.Bool("pretty"))
	}

	data, err := formatter.ExportToText(&formatter.ReviewExport{Author: author, Reviews: list})
	if err != nil {
		return err
	}
	return r.writePlain("%s", data)
}

// ReviewsDelete deletes one of the logged-in user's reviews after the user confirms, unless --yes is set.
func (r *Runner) ReviewsDelete(ctx context.Context, cmd *cli.Command) error {
	id, err := requireArg(cmd, "id")
	if err != nil {
		return err
	}

	store, sess, err := r.reviews(ctx)
	if err != nil {
		return err
	}
	me, err := sess.CurrentUser(ctx)
	if err != nil {
		return err
	}

	if !cmd.Bool("yes") {
		list, err := store.List(ctx, me.ID)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(list, func(rv models.Review) bool { return rv.ID == id })
		if idx < 0 {
			return fmt.Errorf("%w: no review %s", shared.ErrInvalidArgument, id)
		}
		rv := list[idx]

		ok, err := r.confirm(ctx, "Delete review?",
			strings.TrimSpace(fmt.Sprintf("%s %s %s %s", rv.MediaType, formatter.Stars(rv.Rating), rv.TrackOrAlbumID, rv.Text)))
		if err != nil {
			return err
		}
		if !ok {
			return r.writePlain("Kept review %s\n", id)
		}
	}

	if err := store.Delete(ctx, me.ID, id); err != nil {
		return err
	}
	return r.writePlain("✓ Deleted review %s\n", id)
}

// ReviewsExport writes an author's reviews to disk.
//
// With --titles, item names and the Markdown cover are looked up in the catalog. A failed lookup
// leaves the raw id in place.
func (r *Runner) ReviewsExport(ctx context.Context, cmd *cli.Command) error {
	format, err := tasks.ParseFormat(cmd.String("format"))
	if err != nil {
		return err
	}

	store, sess, err := r.reviews(ctx)
	if err != nil {
		return err
	}
	author, err := r.author(ctx, cmd, sess)
	if err != nil {
		return err
	}
	list, err := store.List(ctx, author.ID)
	if err != nil {
		return err
	}

	var lookup tasks.LookupFunc
	if cmd.Bool("titles") {
		lookup = tasks.CatalogLookup(sess)
	}
	engine := tasks.NewEngine(lookup, tasks.WithLogger(shared.WithLogger(r.logger, "component", "export")))

	prog := make(chan tasks.ProgressUpdate, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range prog {
			r.logger.Info(update.Message, "phase", update.Phase)
		}
	}()

	result, err := engine.Export(ctx, prog, &formatter.ReviewExport{
		Author:     author,
		Reviews:    list,
		ExportedAt: time.Now().UTC(),
	}, tasks.ExportOpts{Format: format, Output: cmd.String("output"), Warn: r.prompt})
	close(prog)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("✓ Exported %d review(s) as %s\n", result.Reviews, result.Format)
	if result.FailedLookups > 0 {
		r.writePlain("  %d title lookup(s) failed; raw ids were kept\n", result.FailedLookups)
	}
	for _, f := range result.Files {
		r.writePlain("  %s\n", f)
	}
	return nil
}
