package reconcile

import (
	"context"
	"fmt"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/facts"
)

// FactsUpdater uploads the full fact set when a non-graylisted fact
// differs from the last upload.
type FactsUpdater struct {
	deps *Deps
}

// Kind implements action.Updater.
func (u *FactsUpdater) Kind() action.Kind { return action.KindFacts }

// DoUpdate implements action.Updater.
func (u *FactsUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Facts")

	uuid, err := u.deps.consumerUUID()
	if err != nil {
		return nil, err
	}

	current, err := u.deps.Facts.Collect(ctx)
	if err != nil {
		return nil, fmt.Errorf("collecting facts: %w", err)
	}

	cached, ok := u.deps.FactsCache.Read()
	if ok && !facts.Changed(current, cached, u.deps.Graylist) {
		report.Status = "unchanged"
		return report, nil
	}

	if err := u.deps.Server.UpdateFacts(ctx, uuid, current); err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	report.Status = "uploaded"
	if ok {
		report.AddUpdate("uploaded %d facts (%d changed)", len(current), len(facts.ChangedKeys(current, cached, u.deps.Graylist)))
	} else {
		report.AddUpdate("uploaded %d facts", len(current))
	}

	if err := u.deps.FactsCache.Write(current); err != nil {
		report.AddError(err)
	}
	return report, nil
}
