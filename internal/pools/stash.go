package pools

import (
	"context"
	"fmt"
	"time"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/certdir"
	"github.com/opmodel/subctl/internal/core"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/server"
)

// Options turn on filters; the zero value lists every known pool.
type Options struct {
	// CompatibleOnly drops pools the server rules out for this consumer.
	CompatibleOnly bool

	// InstalledOnly keeps pools covering an installed product.
	InstalledOnly bool

	// NoOverlap drops pools overlapping existing valid entitlements.
	NoOverlap bool

	// NotSubscribed drops pools already attached.
	NotSubscribed bool

	// Matches keeps pools whose product names contain this text.
	Matches string
}

// Stash holds the pools fetched for one consumer, split into compatible
// and incompatible, and filters them in memory.
type Stash struct {
	server  server.Server
	uuid    string
	entDir  *certdir.EntitlementDir
	prodDir *certdir.ProductDir

	order        []string
	all          map[string]core.Pool
	compatible   sets.Set[string]
	subscribed   sets.Set[string]
	validProduct sets.Set[string]
}

// NewStash returns an empty stash; call Refresh before querying.
func NewStash(s server.Server, uuid string, entDir *certdir.EntitlementDir, prodDir *certdir.ProductDir) *Stash {
	return &Stash{
		server:       s,
		uuid:         uuid,
		entDir:       entDir,
		prodDir:      prodDir,
		all:          map[string]core.Pool{},
		compatible:   sets.New[string](),
		subscribed:   sets.New[string](),
		validProduct: sets.New[string](),
	}
}

// Refresh fetches compatible pools and then every pool of the owner,
// both active on activeOn.
func (s *Stash) Refresh(ctx context.Context, activeOn time.Time) error {
	s.order = nil
	s.all = map[string]core.Pool{}
	s.compatible = sets.New[string]()

	output.Debug("refreshing pools from server", "activeOn", activeOn)
	compatible, err := s.server.GetPools(ctx, server.PoolQuery{Consumer: s.uuid, ActiveOn: activeOn})
	if err != nil {
		return fmt.Errorf("listing compatible pools: %w", err)
	}
	for _, p := range compatible {
		s.add(p)
		s.compatible.Insert(p.ID)
	}

	owner, err := s.server.GetOwner(ctx, s.uuid)
	if err != nil {
		return fmt.Errorf("looking up owner: %w", err)
	}
	all, err := s.server.GetPools(ctx, server.PoolQuery{Consumer: s.uuid, Owner: owner.Key, ListAll: true, ActiveOn: activeOn})
	if err != nil {
		return fmt.Errorf("listing all pools: %w", err)
	}
	for _, p := range all {
		if !s.compatible.Has(p.ID) {
			s.add(p)
		}
	}

	s.subscribed = sets.New[string]()
	certs, err := s.entDir.List()
	if err != nil {
		return err
	}
	for _, c := range certs {
		if c.Pool.ID != "" {
			s.subscribed.Insert(c.Pool.ID)
		}
	}

	s.validProduct = sets.New[string]()
	compliance, err := s.server.GetCompliance(ctx, s.uuid, time.Now())
	if err != nil {
		output.Warn("compliance unavailable, overlap filter covers all entitled products", "err", err)
		s.validProduct = nil
	} else {
		for id := range compliance.CompliantProducts {
			s.validProduct.Insert(id)
		}
	}

	output.Debug("pools refreshed",
		"total", len(s.all),
		"compatible", s.compatible.Len(),
		"incompatible", len(s.all)-s.compatible.Len(),
		"subscribed", s.subscribed.Len())
	return nil
}

func (s *Stash) add(p core.Pool) {
	if _, ok := s.all[p.ID]; !ok {
		s.order = append(s.order, p.ID)
	}
	s.all[p.ID] = p
}

// Len returns the number of known pools.
func (s *Stash) Len() int {
	return len(s.all)
}

// FilteredPools returns known pools in fetch order, filtered by opts.
func (s *Stash) FilteredPools(opts Options) ([]core.Pool, error) {
	pools := make([]core.Pool, 0, len(s.order))
	for _, id := range s.order {
		if opts.CompatibleOnly && !s.compatible.Has(id) {
			continue
		}
		pools = append(pools, s.all[id])
	}

	var steps []Filter
	if opts.InstalledOnly {
		installed, err := s.prodDir.InstalledProductIDs()
		if err != nil {
			return nil, err
		}
		steps = append(steps, FilterOutUninstalled(installed))
	}
	if opts.NoOverlap {
		certs, err := s.entDir.List()
		if err != nil {
			return nil, err
		}
		steps = append(steps, FilterOutOverlapping(EntitledProducts(certs), s.validProduct))
	}
	if opts.Matches != "" {
		steps = append(steps, FilterProductName(opts.Matches))
	}
	if opts.NotSubscribed {
		steps = append(steps, FilterSubscribedPools(s.subscribed, s.compatible))
	}

	out := Chain(pools, steps...)
	output.Debug("filtered pools", "shown", len(out), "hidden", len(s.all)-len(out))
	return out, nil
}

// MergedPools returns FilteredPools grouped by product.
func (s *Stash) MergedPools(opts Options) (map[string]*MergedPools, error) {
	pools, err := s.FilteredPools(opts)
	if err != nil {
		return nil, err
	}
	return Merge(pools), nil
}

// LookupProvidedProducts returns the products provided by poolID, and
// false when the pool is unknown.
func (s *Stash) LookupProvidedProducts(poolID string) ([]core.ProvidedProduct, bool) {
	p, ok := s.all[poolID]
	if !ok {
		return nil, false
	}
	return append([]core.ProvidedProduct(nil), p.ProvidedProducts...), true
}
