package session

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/models"
	"github.com/desertthunder/soundshare/internal/services"
	"github.com/desertthunder/soundshare/internal/shared"
)

// TokenSource supplies bearer tokens. [auth.Manager] implements it.
type TokenSource interface {
	GetValidAccessToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
}

// Session is passed by reference to every service that needs the catalog or the datastore.
type Session struct {
	tokens  TokenSource
	catalog services.Catalog
	store   datastore.Store
	logger  *log.Logger
}

// New builds a session. A nil logger discards output.
func New(tokens TokenSource, catalog services.Catalog, store datastore.Store, logger *log.Logger) *Session {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Session{tokens: tokens, catalog: catalog, store: store, logger: logger}
}

func (s *Session) Catalog() services.Catalog { return s.catalog }
func (s *Session) Store() datastore.Store    { return s.store }

// Call runs fn with a fresh token. On a catalog 401 it forces one refresh and retries once.
func Call[T any](ctx context.Context, s *Session, fn func(ctx context.Context, token string) (T, error)) (T, error) {
	var zero T

	token, err := s.tokens.GetValidAccessToken(ctx)
	if err != nil {
		return zero, err
	}

	v, err := fn(ctx, token)
	if err == nil || !shared.IsUnauthorized(err) {
		return v, err
	}

	s.logger.Debug("catalog rejected token; refreshing once")
	token, rerr := s.tokens.ForceRefresh(ctx)
	if rerr != nil {
		return zero, fmt.Errorf("%w (after %v)", rerr, err)
	}
	return fn(ctx, token)
}

// Do is [Call] for operations without a result.
func (s *Session) Do(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	_, err := Call(ctx, s, func(ctx context.Context, token string) (struct{}, error) {
		return struct{}{}, fn(ctx, token)
	})
	return err
}

// CurrentUser resolves the acting user from the catalog profile endpoint.
func (s *Session) CurrentUser(ctx context.Context) (models.UserIdentity, error) {
	return Call(ctx, s, s.identity)
}

// IdentityFor resolves the user owning token without going through the token source. It is used right after
// login, when the new token is known but has not been read back from the store.
func (s *Session) IdentityFor(ctx context.Context, token string) (models.UserIdentity, error) {
	return s.identity(ctx, token)
}

func (s *Session) identity(ctx context.Context, token string) (models.UserIdentity, error) {
	u, err := s.catalog.CurrentUser(ctx, token)
	if err != nil {
		return models.UserIdentity{}, err
	}
	if u.ID == "" {
		return models.UserIdentity{}, fmt.Errorf("%w: profile without id", shared.ErrCatalogRequest)
	}
	return models.UserIdentity{ID: u.ID, DisplayName: u.DisplayName}, nil
}
