// Package pools merges, filters and caches the subscription pools offered
// to a consumer.
package pools

import (
	"sort"

	"github.com/opmodel/subctl/internal/core"
)

// MergedPools totals every pool for one product.
type MergedPools struct {
	ProductID   string
	ProductName string

	// Quantity is the summed quantity, or core.Unlimited once any pool in
	// the group is unlimited.
	Quantity int

	// Consumed is the exact sum of consumed over the group.
	Consumed int

	// BundledProducts is the provided-product count of the last pool added.
	BundledProducts int

	Pools []core.Pool
}

// Add folds p into the totals.
func (m *MergedPools) Add(p core.Pool) {
	m.Consumed += p.Consumed
	switch {
	case p.IsUnlimited():
		m.Quantity = core.Unlimited
	case m.Quantity != core.Unlimited:
		m.Quantity += p.Quantity
	}
	m.Pools = append(m.Pools, p)
	m.BundledProducts = len(p.ProvidedProducts)
}

// IsUnlimited reports whether the group has no quantity cap.
func (m *MergedPools) IsUnlimited() bool {
	return m.Quantity == core.Unlimited
}

// Available returns the remaining quantity, or core.Unlimited.
func (m *MergedPools) Available() int {
	if m.IsUnlimited() {
		return core.Unlimited
	}
	if n := m.Quantity - m.Consumed; n > 0 {
		return n
	}
	return 0
}

// SortVirtToTop moves virt-only pools ahead of physical ones, keeping the
// relative order within each class.
func (m *MergedPools) SortVirtToTop() {
	sort.SliceStable(m.Pools, func(i, j int) bool {
		return m.Pools[i].VirtOnly() && !m.Pools[j].VirtOnly()
	})
}

// Merge groups pools by product id. The input is not modified.
func Merge(pools []core.Pool) map[string]*MergedPools {
	merged := make(map[string]*MergedPools)
	for _, p := range pools {
		m, ok := merged[p.ProductID]
		if !ok {
			m = &MergedPools{ProductID: p.ProductID, ProductName: p.ProductName}
			merged[p.ProductID] = m
		}
		m.Add(p)
	}
	return merged
}

// Sorted returns the merged groups ordered by product name, then id.
func Sorted(merged map[string]*MergedPools) []*MergedPools {
	out := make([]*MergedPools, 0, len(merged))
	for _, m := range merged {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ProductName != out[j].ProductName {
			return out[i].ProductName < out[j].ProductName
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}
