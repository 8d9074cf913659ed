package auth

import (
	"context"
	"fmt"
	"io"
	"net/url"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/soundshare/internal/server"
	"github.com/desertthunder/soundshare/internal/shared"
)

// LoopbackAuthorizer completes the interactive flow through a browser and a temporary callback server bound to
// the redirect URI's host and port.
type LoopbackAuthorizer struct {
	redirect *url.URL
	open     func(string) error
	prompt   io.Writer
	logger   *log.Logger
}

// NewLoopbackAuthorizer validates redirectURI and returns an authorizer that opens URLs with open.
// The authorization URL is also written to prompt so the user can copy it when no browser is available.
func NewLoopbackAuthorizer(redirectURI string, open func(string) error, prompt io.Writer, logger *log.Logger) (*LoopbackAuthorizer, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("%w: redirect_uri: %v", shared.ErrInvalidConfig, err)
	}
	if u.Scheme != "http" || u.Port() == "" {
		return nil, fmt.Errorf("%w: redirect_uri must be an http loopback address with a port, got %q", shared.ErrInvalidConfig, redirectURI)
	}
	if open == nil {
		open = shared.OpenBrowser
	}
	if prompt == nil {
		prompt = io.Discard
	}
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &LoopbackAuthorizer{redirect: u, open: open, prompt: prompt, logger: logger}, nil
}

// Authorize serves the callback, opens authURL and waits for the redirect or for ctx to end.
func (a *LoopbackAuthorizer) Authorize(ctx context.Context, authURL, state string) (string, error) {
	ln, err := server.Listen(a.redirect.Host)
	if err != nil {
		return "", err
	}

	handler := server.NewCallbackHandler(a.redirect.Path, state)
	router := server.NewBasicRouter()
	router.Use(server.LoggingMiddleware(a.logger))
	router.Handler(handler)

	srvCtx, stop := context.WithCancel(ctx)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- server.Serve(srvCtx, ln, router, a.logger) }()

	fmt.Fprintf(a.prompt, "Opening browser for authorization. If it does not open, visit:\n\n  %s\n\n", authURL)
	if err := a.open(authURL); err != nil {
		a.logger.Warn("could not open browser", "err", err)
	}

	var result server.CallbackResult
	select {
	case result = <-handler.Result():
	case <-ctx.Done():
		result = server.CallbackResult{Err: fmt.Errorf("%w: %v", shared.ErrAuthCancelled, ctx.Err())}
	}

	stop()
	if err := <-served; err != nil {
		a.logger.Warn("callback server", "err", err)
	}

	if result.Err != nil {
		return "", result.Err
	}
	return result.Code, nil
}
