package reconcile

import (
	"context"
	"fmt"
	"sort"

	"k8s.io/apimachinery/pkg/util/sets"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/output"
)

// EntitlementUpdater makes the entitlement directory hold exactly the
// certificates the server lists for the consumer.
type EntitlementUpdater struct {
	deps *Deps

	// Hook runs after certificates were added or removed.
	Hook *action.Invoker
}

// Kind implements action.Updater.
func (u *EntitlementUpdater) Kind() action.Kind { return action.KindEntitlement }

// DoUpdate implements action.Updater.
func (u *EntitlementUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Entitlement certificates")

	uuid, err := u.deps.consumerUUID()
	if err != nil {
		return nil, err
	}

	local, err := u.deps.EntDir.Serials()
	if err != nil {
		return nil, err
	}

	serials, err := u.deps.Server.GetCertificateSerials(ctx, uuid)
	if err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	expected := sets.New(serials...)

	rogue := sorted(local.Difference(expected))
	missing := sorted(expected.Difference(local))

	for _, serial := range rogue {
		if err := u.deps.EntDir.Delete(serial); err != nil {
			report.AddError(err)
			continue
		}
		report.AddUpdate("removed certificate %d", serial)
	}

	if len(missing) > 0 {
		bundles, err := u.deps.Server.GetCertificates(ctx, uuid, missing)
		if err != nil {
			return nil, u.deps.checkGone(err, uuid)
		}
		for _, b := range bundles {
			if err := u.deps.EntDir.Write(b); err != nil {
				report.AddError(err)
				continue
			}
			report.AddUpdate("added certificate %d", b.Serial.Serial)
		}
		if len(bundles) < len(missing) {
			report.AddError(fmt.Errorf("server returned %d of %d requested certificates", len(bundles), len(missing)))
		}
	}

	report.Status = fmt.Sprintf("%d expected", expected.Len())

	if report.UpdateCount() > 0 && u.Hook != nil {
		if _, err := u.Hook.Update(ctx); err != nil {
			output.Warn("post-certificate hook failed", "hook", u.Hook.Kind(), "err", err)
		}
	}
	return report, nil
}

func sorted(s sets.Set[int64]) []int64 {
	out := s.UnsortedList()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
