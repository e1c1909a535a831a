package reconcile

import (
	"context"
	"fmt"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/profile"
	"github.com/opmodel/subctl/internal/server"
)

// PackageProfileUpdater uploads the installed package list when it differs
// from the last upload, ignoring order.
type PackageProfileUpdater struct {
	deps *Deps
}

// Kind implements action.Updater.
func (u *PackageProfileUpdater) Kind() action.Kind { return action.KindPackageProfile }

// DoUpdate implements action.Updater.
func (u *PackageProfileUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Package profile")

	uuid, err := u.deps.consumerUUID()
	if err != nil {
		return nil, err
	}

	supported, err := u.deps.Server.SupportsResource(ctx, server.ResourcePackages)
	if err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	if !supported {
		report.Status = "unsupported by server"
		return report, nil
	}

	pkgs, err := u.deps.Packages.Packages(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting packages: %w", err)
	}

	if cached, ok := u.deps.ProfileCache.Read(); ok && profile.Equal(pkgs, cached) {
		report.Status = "unchanged"
		return report, nil
	}

	if err := u.deps.Server.UpdatePackageProfile(ctx, uuid, pkgs); err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	report.Status = "uploaded"
	report.AddUpdate("uploaded %d packages", len(pkgs))

	if err := u.deps.ProfileCache.Write(pkgs); err != nil {
		report.AddError(err)
	}
	return report, nil
}
