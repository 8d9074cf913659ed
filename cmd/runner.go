package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/soundshare/internal/auth"
	"github.com/desertthunder/soundshare/internal/datastore"
	"github.com/desertthunder/soundshare/internal/metrics"
	"github.com/desertthunder/soundshare/internal/repositories"
	"github.com/desertthunder/soundshare/internal/reviews"
	"github.com/desertthunder/soundshare/internal/services"
	"github.com/desertthunder/soundshare/internal/session"
	"github.com/desertthunder/soundshare/internal/shared"
	"github.com/desertthunder/soundshare/internal/social"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Stores, the catalog and the auth manager are built on first use so that commands like
// "setup config" work without a database or datastore.
type Runner struct {
	config      *shared.Config
	configPath  string
	httpClient  *http.Client
	logger      *log.Logger
	output      io.Writer
	prompt      io.Writer
	input       io.Reader
	openBrowser func(string) error

	credentials repositories.CredentialStore
	store       datastore.Store
	catalog     services.Catalog
	authorizer  auth.Authorizer

	registry  *prometheus.Registry
	collector *metrics.Collector

	db   *sql.DB
	auth *auth.Manager
	sess *session.Session
	soc  *social.Service
	revs *reviews.Store
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Any of Credentials, Store, Catalog or Authorizer left nil is built from Config when first needed.
type RunnerOpts struct {
	Config      *shared.Config
	ConfigPath  string
	HTTPClient  *http.Client
	Logger      *log.Logger
	Output      io.Writer
	Prompt      io.Writer
	Input       io.Reader
	OpenBrowser func(string) error

	Credentials repositories.CredentialStore
	Store       datastore.Store
	Catalog     services.Catalog
	Authorizer  auth.Authorizer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Prompt == nil {
		opts.Prompt = os.Stderr
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}
	if opts.OpenBrowser == nil {
		opts.OpenBrowser = shared.OpenBrowser
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return &Runner{
		config:      opts.Config,
		configPath:  opts.ConfigPath,
		httpClient:  opts.HTTPClient,
		logger:      opts.Logger,
		output:      opts.Output,
		prompt:      opts.Prompt,
		input:       opts.Input,
		openBrowser: opts.OpenBrowser,
		credentials: opts.Credentials,
		store:       opts.Store,
		catalog:     opts.Catalog,
		authorizer:  opts.Authorizer,
		registry:    registry,
		collector:   metrics.NewCollector(registry),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, catalogCommand, friendsCommand, reviewsCommand, metricsCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// authManager returns the token lifecycle manager, opening the credential database if needed.
func (r *Runner) authManager(ctx context.Context) (*auth.Manager, error) {
	if r.auth != nil {
		return r.auth, nil
	}

	if err := r.config.Validate(); err != nil {
		return nil, err
	}

	if r.credentials == nil {
		db, err := shared.OpenDatabase(r.config.Database)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", shared.ErrCredentialStore, err)
		}
		r.db = db
		r.credentials = repositories.NewSQLiteCredentialStore(db)
	}

	if r.authorizer == nil {
		a, err := auth.NewLoopbackAuthorizer(r.config.Credentials.Spotify.RedirectURI, r.openBrowser, r.prompt,
			shared.WithLogger(r.logger, "component", "authorizer"))
		if err != nil {
			return nil, err
		}
		r.authorizer = a
	}

	m := auth.NewManager(r.config.Credentials.Spotify, r.config.Catalog, r.credentials,
		auth.WithAuthorizer(r.authorizer),
		auth.WithHTTPClient(r.httpClient),
		auth.WithLogger(shared.WithLogger(r.logger, "component", "auth")),
		auth.WithMetrics(r.collector),
		auth.WithLoginHook(r.ensureUser),
	)
	r.auth = m

	if _, err := m.Status(ctx); err != nil {
		r.logger.Warn("could not read stored credentials", "error", err)
	}
	return m, nil
}

// session wires the auth manager, catalog client and datastore together along with the
// social and review services built on them.
func (r *Runner) session(ctx context.Context) (*session.Session, error) {
	if r.sess != nil {
		return r.sess, nil
	}

	m, err := r.authManager(ctx)
	if err != nil {
		return nil, err
	}

	if r.catalog == nil {
		r.catalog = services.NewCatalogClient(r.config.Catalog.APIURL,
			services.WithHTTPClient(r.httpClient),
			services.WithRateLimit(r.config.Catalog.RequestsPerSecond, r.config.Catalog.Burst),
			services.WithMarket(r.config.Catalog.Market),
			services.WithMetrics(r.collector),
			services.WithLogger(shared.WithLogger(r.logger, "component", "catalog")),
		)
	}

	if r.store == nil {
		store, err := datastore.Open(ctx, r.config.Datastore)
		if err != nil {
			return nil, err
		}
		r.store = store
	}

	r.sess = session.New(m, r.catalog, r.store, shared.WithLogger(r.logger, "component", "session"))
	r.soc = social.NewService(r.sess, r.store,
		social.WithLogger(shared.WithLogger(r.logger, "component", "social")),
		social.WithMetrics(r.collector),
	)
	r.revs = reviews.NewStore(r.store, shared.WithLogger(r.logger, "component", "reviews"))
	return r.sess, nil
}

// ensureUser runs after every successful login. Commands that log in without a session skip it.
func (r *Runner) ensureUser(ctx context.Context, token string) error {
	if r.soc == nil {
		return nil
	}
	return r.soc.EnsureUserHook(r.sess.IdentityFor)(ctx, token)
}

func (r *Runner) social(ctx context.Context) (*social.Service, error) {
	if _, err := r.session(ctx); err != nil {
		return nil, err
	}
	return r.soc, nil
}

func (r *Runner) reviews(ctx context.Context) (*reviews.Store, *session.Session, error) {
	sess, err := r.session(ctx)
	if err != nil {
		return nil, nil, err
	}
	return r.revs, sess, nil
}

// Close releases the credential database and datastore connections.
func (r *Runner) Close() error {
	var errs []error
	if r.store != nil {
		errs = append(errs, r.store.Close())
	}
	if r.db != nil {
		errs = append(errs, r.db.Close())
	}
	return errors.Join(errs...)
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
