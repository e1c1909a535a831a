// Package cmdutil provides shared command utilities.
// It builds the collaborator graph from configuration, runs action clients
// with a spinner and metrics, and formats reports.
package cmdutil

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/cache"
	"github.com/opmodel/subctl/internal/certdir"
	"github.com/opmodel/subctl/internal/config"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/facts"
	"github.com/opmodel/subctl/internal/identity"
	"github.com/opmodel/subctl/internal/lock"
	"github.com/opmodel/subctl/internal/metrics"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/profile"
	"github.com/opmodel/subctl/internal/reconcile"
	"github.com/opmodel/subctl/internal/server"
)

// App is the collaborator graph for one CLI invocation. Local state is
// usable immediately; Connect adds the server client.
type App struct {
	Config  *config.Config
	Deps    *reconcile.Deps
	Metrics *metrics.Recorder

	// Verbose disables the spinner so debug logs stay readable.
	Verbose bool
}

// NewApp wires every local collaborator from cfg.
func NewApp(cfg *config.Config) *App {
	d := &reconcile.Deps{
		Identity: identity.NewStore(cfg.Certs.ConsumerCertDir),
		EntDir:   certdir.NewEntitlementDir(cfg.Certs.EntitlementCertDir),
		ProdDir:  certdir.NewProductDir(cfg.Certs.ProductCertDir),
		Locker:   action.NewLocker(lock.New(cfg.Paths.LockFile)),

		Facts:      &facts.HostCollector{FactsDir: cfg.Paths.FactsDir},
		FactsCache: cache.New[facts.Facts](cfg.Paths.FactsCache()),
		Graylist:   cfg.Facts.Graylist,

		Packages:     &profile.RPMSource{},
		ProfileCache: cache.New[[]core.Package](cfg.Paths.ProfileCache()),

		InstalledCache: cache.New[[]core.InstalledProduct](cfg.Paths.InstalledProductsCache()),

		RepoFile:    cfg.Paths.RepoFile,
		BaseURL:     contentURL(cfg.Certs.BaseURL),
		RepoCACert:  cfg.Certs.RepoCACert,
		ManageRepos: cfg.Certs.ManageRepos,
		ArchiveDir:  cfg.Paths.ArchiveDir,
	}
	if d.Graylist == nil {
		d.Graylist = config.DefaultGraylist
	}

	app := &App{Config: cfg, Deps: d}
	if cfg.Metrics.Textfile != "" {
		app.Metrics = metrics.NewRecorder()
	}
	return app
}

// contentURL adds https:// to a bare content host.
func contentURL(base string) string {
	if base == "" || strings.Contains(base, "://") {
		return base
	}
	return "https://" + base
}

// ServerURL returns the entitlement server base URL.
func ServerURL(s config.ServerConfig) string {
	u := url.URL{
		Scheme: "https",
		Host:   s.Hostname,
		Path:   "/" + strings.Trim(s.Prefix, "/"),
	}
	if s.Port != 0 && s.Port != 443 {
		u.Host = s.Hostname + ":" + strconv.Itoa(s.Port)
	}
	return u.String()
}

// Connect builds the authenticated server client. The system must be
// registered.
func (a *App) Connect() error {
	if a.Deps.Server != nil {
		return nil
	}
	if _, err := a.Deps.Identity.Read(); err != nil {
		return err
	}
	rest, err := server.NewREST(server.Options{
		BaseURL:   ServerURL(a.Config.Server),
		CACertDir: a.Config.Server.CACertDir,
		Insecure:  a.Config.Server.Insecure,
		CertFile:  a.Deps.Identity.CertPath(),
		KeyFile:   a.Deps.Identity.KeyPath(),
		Timeout:   time.Duration(a.Config.Server.TimeoutSeconds) * time.Second,
	})
	if err != nil {
		return fmt.Errorf("creating server client: %w", err)
	}
	a.Deps.Server = rest
	return nil
}

// ClientFactory builds one of the reconcile clients.
type ClientFactory func(d *reconcile.Deps, opts ...action.ClientOption) *action.Client

// Run connects, builds the client and runs one batch behind a spinner.
// Metrics, when enabled, are written whatever the outcome.
func (a *App) Run(ctx context.Context, title string, factory ClientFactory, opts ...action.UpdateOption) (*action.Batch, error) {
	if err := a.Connect(); err != nil {
		return nil, err
	}

	var name string
	var clientOpts []action.ClientOption
	if a.Metrics != nil {
		clientOpts = append(clientOpts, action.WithObserver(func(res action.Result) {
			a.Metrics.Observer(name)(res)
		}))
	}
	client := factory(a.Deps, clientOpts...)
	name = client.Name()

	started := time.Now()
	var batch *action.Batch
	err := output.RunWithSpinner(ctx, func(ctx context.Context) error {
		var runErr error
		batch, runErr = client.Update(ctx, opts...)
		return runErr
	}, output.WithTitle(title), output.WithDisabled(a.Verbose))

	if a.Metrics != nil {
		a.Metrics.ObserveBatch(name, started, time.Now())
		if werr := a.Metrics.WriteTextfile(a.Config.Metrics.Textfile); werr != nil {
			output.Warn("writing metrics", "path", a.Config.Metrics.Textfile, "err", werr)
		}
	}
	return batch, err
}
