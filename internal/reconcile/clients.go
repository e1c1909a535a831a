package reconcile

import (
	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/repofile"
)

// Client names, also used as metric labels.
const (
	ClientCert    = "cert"
	ClientHealing = "healing"
	ClientProfile = "profile"
	ClientContent = "content"
	ClientFacts   = "facts"
)

// entitlementInvoker builds the certificate invoker with the repo file
// regenerated whenever certificates change.
func (d *Deps) entitlementInvoker() *action.Invoker {
	return d.invoker(&EntitlementUpdater{
		deps: d,
		Hook: d.invoker(&RepoUpdater{deps: d}),
	})
}

// NewActionClient runs the full periodic refresh: identity, entitlement
// certificates, facts, package profile, installed products.
func NewActionClient(d *Deps, opts ...action.ClientOption) *action.Client {
	return action.NewClient(ClientCert, d.Locker, []*action.Invoker{
		d.invoker(&IdentityUpdater{deps: d}),
		d.entitlementInvoker(),
		d.invoker(&FactsUpdater{deps: d}),
		d.invoker(&PackageProfileUpdater{deps: d}),
		d.invoker(&InstalledProductsUpdater{deps: d}),
	}, opts...)
}

// NewHealingClient uploads installed products, heals, then refreshes
// certificates.
func NewHealingClient(d *Deps, opts ...action.ClientOption) *action.Client {
	certs := d.entitlementInvoker()
	return action.NewClient(ClientHealing, d.Locker, []*action.Invoker{
		d.invoker(&InstalledProductsUpdater{deps: d}),
		d.invoker(&HealingUpdater{deps: d, Certs: certs}),
		certs,
	}, opts...)
}

// NewProfileClient uploads the package profile only.
func NewProfileClient(d *Deps, opts ...action.ClientOption) *action.Client {
	return action.NewClient(ClientProfile, d.Locker, []*action.Invoker{
		d.invoker(&PackageProfileUpdater{deps: d}),
	}, opts...)
}

// NewContentClient refreshes certificates and the repo file.
func NewContentClient(d *Deps, opts ...action.ClientOption) *action.Client {
	return action.NewClient(ClientContent, d.Locker, []*action.Invoker{
		d.entitlementInvoker(),
		d.invoker(&RepoUpdater{deps: d}),
	}, opts...)
}

// NewFactsClient uploads facts only.
func NewFactsClient(d *Deps, opts ...action.ClientOption) *action.Client {
	return action.NewClient(ClientFacts, d.Locker, []*action.Invoker{
		d.invoker(&FactsUpdater{deps: d}),
	}, opts...)
}

// Repos returns the repo definitions the current certificates grant.
func (d *Deps) Repos() ([]*repofile.Repo, error) {
	return (&RepoUpdater{deps: d}).Repos()
}
