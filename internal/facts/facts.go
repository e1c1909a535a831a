// Package facts collects the system facts reported to the entitlement
// server and decides when they have changed enough to upload again.
package facts

import (
	"context"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"
)

// CertificateVersion is the entitlement certificate version this client prefers.
const CertificateVersion = "3.2"

// Facts maps dotted fact names to their values.
type Facts map[string]string

// Collector gathers the current facts.
type Collector interface {
	Collect(ctx context.Context) (Facts, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context) (Facts, error)

// Collect calls f.
func (f CollectorFunc) Collect(ctx context.Context) (Facts, error) {
	return f(ctx)
}

// ChangedKeys returns, sorted, every non-graylisted key that was added,
// removed or given a different value between cached and current.
func ChangedKeys(current, cached Facts, graylist []string) []string {
	gray := sets.New(graylist...)
	keys := sets.New[string]()
	for k := range current {
		keys.Insert(k)
	}
	for k := range cached {
		keys.Insert(k)
	}

	var changed []string
	for k := range keys.Difference(gray) {
		cv, inCur := current[k]
		pv, inCache := cached[k]
		if inCur != inCache || cv != pv {
			changed = append(changed, k)
		}
	}
	sort.Strings(changed)
	return changed
}

// Changed reports whether any non-graylisted fact differs.
func Changed(current, cached Facts, graylist []string) bool {
	return len(ChangedKeys(current, cached, graylist)) > 0
}

// Keys returns the fact names, sorted.
func (f Facts) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
