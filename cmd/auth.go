package main

import (
	"context"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/auth"
)

// AuthLogin runs the browser authorization flow and stores the resulting credential.
//
// The datastore is opened first when reachable so the login hook can create the user record. A
// datastore outage only skips the hook.
func (r *Runner) AuthLogin(ctx context.Context, cmd *cli.Command) error {
	if _, err := r.session(ctx); err != nil {
		r.logger.Warn("datastore unavailable; user record will be created on next login", "error", err)
	}

	m, err := r.authManager(ctx)
	if err != nil {
		return err
	}

	if err := m.Authenticate(ctx); err != nil {
		return err
	}

	st, err := m.Status(ctx)
	if err != nil {
		return err
	}

	r.writePlain("✓ Logged in\n")
	if r.sess != nil {
		if me, err := r.sess.CurrentUser(ctx); err == nil {
			r.writePlain("  User: %s (%s)\n", me.Name(), me.ID)
		}
	}
	return r.writePlain("  Expires: %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
}

// AuthStatus reports the stored credential without refreshing it.
func (r *Runner) AuthStatus(ctx context.Context, cmd *cli.Command) error {
	m, err := r.authManager(ctx)
	if err != nil {
		return err
	}

	st, err := m.Status(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(st, cmd.Bool("pretty"))
	}

	r.writePlainHeader("Authentication")
	r.writePlain("State:         %s\n", st.State)
	switch st.State {
	case auth.LoggedIn:
		r.writePlain("Expires:       %s (in %s)\n", st.ExpiresAt.Local().Format(time.RFC1123), st.Remaining)
	case auth.Expired:
		r.writePlain("Expired:       %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
	default:
		return r.writePlain("Run `soundshare auth login` to authorize.\n")
	}
	return r.writePlain("Refresh token: %v\n", st.HasRefreshToken)
}

// AuthRefresh exchanges the refresh token regardless of expiry.
func (r *Runner) AuthRefresh(ctx context.Context, cmd *cli.Command) error {
	m, err := r.authManager(ctx)
	if err != nil {
		return err
	}

	if err := m.Refresh(ctx); err != nil {
		return err
	}

	st, err := m.Status(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Token refreshed, expires %s\n", st.ExpiresAt.Local().Format(time.RFC1123))
}

// AuthToken prints a valid access token for use with other tools.
func (r *Runner) AuthToken(ctx context.Context, cmd *cli.Command) error {
	m, err := r.authManager(ctx)
	if err != nil {
		return err
	}

	token, err := m.GetValidAccessToken(ctx)
	if err != nil {
		return err
	}
	return r.writePlain("%s\n", token)
}

// AuthLogout deletes the stored credential.
func (r *Runner) AuthLogout(ctx context.Context, cmd *cli.Command) error {
	m, err := r.authManager(ctx)
	if err != nil {
		return err
	}

	if err := m.LogOut(ctx); err != nil {
		return err
	}
	return r.writePlain("✓ Logged out\n")
}
