package pools

import (
	"strings"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/certificate"
	"github.com/opmodel/subctl/internal/core"
)

// Filter is one pass over a pool list. Filters never modify their input
// and return a new slice.
type Filter func(pools []core.Pool) []core.Pool

// Chain applies steps in order. Nil steps are skipped.
func Chain(pools []core.Pool, steps ...Filter) []core.Pool {
	out := append([]core.Pool(nil), pools...)
	for _, step := range steps {
		if step != nil {
			out = step(out)
		}
	}
	return out
}

func keep(pools []core.Pool, pred func(p *core.Pool) bool) []core.Pool {
	out := make([]core.Pool, 0, len(pools))
	for i := range pools {
		if pred(&pools[i]) {
			out = append(out, pools[i])
		}
	}
	return out
}

// provides reports whether p is for, or provides, any product in ids.
func provides(p *core.Pool, ids sets.Set[string]) bool {
	if ids.Has(p.ProductID) {
		return true
	}
	for _, pp := range p.ProvidedProducts {
		if ids.Has(pp.ProductID) {
			return true
		}
	}
	return false
}

// FilterProductIDs keeps pools for, or providing, one of ids.
func FilterProductIDs(ids sets.Set[string]) Filter {
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool { return provides(p, ids) })
	}
}

// FilterOutUninstalled keeps pools that cover an installed product.
func FilterOutUninstalled(installed sets.Set[string]) Filter {
	return FilterProductIDs(installed)
}

// FilterOutInstalled keeps pools that cover no installed product.
func FilterOutInstalled(installed sets.Set[string]) Filter {
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool { return !provides(p, installed) })
	}
}

// FilterProductName keeps pools whose product, or a provided product, has a
// name containing text, ignoring case.
func FilterProductName(text string) Filter {
	lowered := strings.ToLower(text)
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool {
			if strings.Contains(strings.ToLower(p.ProductName), lowered) {
				return true
			}
			for _, pp := range p.ProvidedProducts {
				if strings.Contains(strings.ToLower(pp.ProductName), lowered) {
					return true
				}
			}
			return false
		})
	}
}

// Entitled maps each entitled product id to the validity of every
// certificate granting it.
type Entitled map[string][]certificate.DateRange

// EntitledProducts builds the product map from entitlement certificates.
func EntitledProducts(certs []*certificate.EntitlementCertificate) Entitled {
	out := Entitled{}
	for _, c := range certs {
		for _, p := range c.Products {
			out[p.ID] = append(out[p.ID], c.Validity)
		}
	}
	return out
}

// overlaps reports whether p starts or ends inside an entitlement for a
// product it covers. When valid is non-nil only products in it count.
func overlaps(p *core.Pool, entitled Entitled, valid sets.Set[string]) bool {
	covered := sets.New(p.ProvidedIDs()...).Insert(p.ProductID)
	for id, ranges := range entitled {
		if !covered.Has(id) {
			continue
		}
		if valid != nil && !valid.Has(id) {
			continue
		}
		for _, r := range ranges {
			if r.Contains(p.StartDate.Time) || r.Contains(p.EndDate.Time) {
				return true
			}
		}
	}
	return false
}

// FilterOutOverlapping drops pools whose dates overlap an existing
// entitlement for a product they cover. A non-nil valid limits this to
// products currently fully covered, so partially covered products still
// show their pools.
func FilterOutOverlapping(entitled Entitled, valid sets.Set[string]) Filter {
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool { return !overlaps(p, entitled, valid) })
	}
}

// FilterOutNonOverlapping is the complement of FilterOutOverlapping.
func FilterOutNonOverlapping(entitled Entitled, valid sets.Set[string]) Filter {
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool { return overlaps(p, entitled, valid) })
	}
}

// FilterSubscribedPools drops pools the consumer already holds unless they
// are in resubscribable.
func FilterSubscribedPools(subscribed, resubscribable sets.Set[string]) Filter {
	return func(pools []core.Pool) []core.Pool {
		return keep(pools, func(p *core.Pool) bool {
			return !subscribed.Has(p.ID) || resubscribable.Has(p.ID)
		})
	}
}
