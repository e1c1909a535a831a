// Package reconcile implements the per-domain actions that bring local
// certificate, fact and repository state in line with the server, and the
// fixed-order clients that batch them.
package reconcile

import (
	"errors"
	"fmt"
	"time"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/cache"
	"github.com/opmodel/subctl/internal/certdir"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/facts"
	"github.com/opmodel/subctl/internal/identity"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/profile"
	"github.com/opmodel/subctl/internal/server"
)

// Deps carries every collaborator the actions use. It is built once per
// process and shared by all clients.
type Deps struct {
	Server   server.Server
	Identity *identity.Store
	EntDir   *certdir.EntitlementDir
	ProdDir  *certdir.ProductDir
	Locker   *action.Locker

	Facts      facts.Collector
	FactsCache *cache.File[facts.Facts]
	Graylist   []string

	Packages     profile.Source
	ProfileCache *cache.File[[]core.Package]

	InstalledCache *cache.File[[]core.InstalledProduct]

	RepoFile    string
	BaseURL     string
	RepoCACert  string
	ManageRepos bool

	ArchiveDir string

	// Now defaults to time.Now.
	Now func() time.Time
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) invoker(u action.Updater) *action.Invoker {
	return action.NewInvoker(u, d.Locker)
}

// consumerUUID reads the current identity.
func (d *Deps) consumerUUID() (string, error) {
	id, err := d.Identity.Read()
	if err != nil {
		return "", err
	}
	return id.UUID, nil
}

// checkGone applies the consumer-deleted policy to a server error. A 410
// naming the local consumer archives all certificates and the identity and
// returns the *server.GoneError itself. A 410 naming any other consumer
// touches nothing and is returned as an ordinary error.
func (d *Deps) checkGone(err error, localUUID string) error {
	var gone *server.GoneError
	if !errors.As(err, &gone) {
		return err
	}
	if gone.DeletedID != localUUID {
		output.Warn("ignoring deletion notice for another consumer", "deleted", gone.DeletedID, "local", localUUID)
		return fmt.Errorf("server reported consumer %q deleted, local consumer is %q: %v", gone.DeletedID, localUUID, gone)
	}

	now := d.now()
	if dst, err := d.EntDir.Archive(d.ArchiveDir, now); err != nil {
		output.Error("archiving entitlement certificates", "err", err)
	} else if dst != "" {
		output.Info("archived entitlement certificates", "path", dst)
	}
	if dst, err := d.Identity.Archive(d.ArchiveDir, now); err != nil {
		output.Error("archiving consumer identity", "err", err)
	} else if dst != "" {
		output.Info("archived consumer identity", "path", dst)
	}
	return gone
}
