package reconcile

import (
	"context"
	"slices"

	"github.com/opmodel/subctl/internal/action"
)

// InstalledProductsUpdater uploads the installed products derived from
// product certificates when they differ from the last upload.
type InstalledProductsUpdater struct {
	deps *Deps
}

// Kind implements action.Updater.
func (u *InstalledProductsUpdater) Kind() action.Kind { return action.KindInstalledProducts }

// DoUpdate implements action.Updater.
func (u *InstalledProductsUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Installed products")

	uuid, err := u.deps.consumerUUID()
	if err != nil {
		return nil, err
	}

	u.deps.ProdDir.Refresh()
	products, err := u.deps.ProdDir.InstalledProducts()
	if err != nil {
		return nil, err
	}

	if cached, ok := u.deps.InstalledCache.Read(); ok && slices.Equal(products, cached) {
		report.Status = "unchanged"
		return report, nil
	}

	if err := u.deps.Server.UpdateInstalledProducts(ctx, uuid, products); err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	report.Status = "uploaded"
	report.AddUpdate("uploaded %d installed products", len(products))

	if err := u.deps.InstalledCache.Write(products); err != nil {
		report.AddError(err)
	}
	return report, nil
}
