// Package server defines the entitlement server collaborator and its REST
// implementation.
package server

import (
	"context"
	"time"

	"github.com/opmodel/subctl/internal/core"
)

// Resource names advertised by the server root.
const (
	ResourcePackages = "packages"
)

// PoolQuery selects pools for listing.
type PoolQuery struct {
	// Consumer restricts to pools compatible with this consumer.
	Consumer string

	// Owner lists the owner's pools instead; required when ListAll is set.
	Owner string

	// ListAll includes pools the consumer is not compatible with.
	ListAll bool

	// ActiveOn filters pools to those active on this date. Zero means now.
	ActiveOn time.Time
}

// Server is everything the reconciliation actions need from the
// entitlement server. Implementations map transport failures onto the
// error types in this package.
type Server interface {
	GetConsumer(ctx context.Context, uuid string) (*core.Consumer, error)
	GetCertificateSerials(ctx context.Context, uuid string) ([]int64, error)
	GetCertificates(ctx context.Context, uuid string, serials []int64) ([]core.CertBundle, error)
	SupportsResource(ctx context.Context, resource string) (bool, error)
	UpdateFacts(ctx context.Context, uuid string, facts map[string]string) error
	UpdatePackageProfile(ctx context.Context, uuid string, pkgs []core.Package) error
	UpdateInstalledProducts(ctx context.Context, uuid string, products []core.InstalledProduct) error
	GetCompliance(ctx context.Context, uuid string, on time.Time) (*core.Compliance, error)
	Bind(ctx context.Context, uuid string, on time.Time) error
	GetOwner(ctx context.Context, uuid string) (*core.Owner, error)
	GetPools(ctx context.Context, q PoolQuery) ([]core.Pool, error)
}
