package reconcile

import (
	"context"
	"time"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/output"
)

// healLookahead is how far ahead healing looks for an upcoming gap.
const healLookahead = 24 * time.Hour

// HealingUpdater asks the server to auto-attach when the consumer has
// autoheal enabled and is, or within a day will be, out of compliance.
type HealingUpdater struct {
	deps *Deps

	// Certs is refreshed after a successful bind.
	Certs *action.Invoker
}

// Kind implements action.Updater.
func (u *HealingUpdater) Kind() action.Kind { return action.KindHealing }

// DoUpdate implements action.Updater.
func (u *HealingUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Healing")

	uuid, err := u.deps.consumerUUID()
	if err != nil {
		return nil, err
	}

	consumer, err := u.deps.Server.GetConsumer(ctx, uuid)
	if err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	if !consumer.Autoheal {
		report.Status = "autoheal disabled"
		return report, nil
	}

	now := u.deps.now()
	on, heal, err := u.bindDate(ctx, uuid, now)
	if err != nil {
		return nil, err
	}
	if !heal {
		report.Status = "compliant"
		return report, nil
	}

	if err := u.deps.Server.Bind(ctx, uuid, on); err != nil {
		return nil, u.deps.checkGone(err, uuid)
	}
	if on.Equal(now) {
		report.AddUpdate("auto-attached for today")
	} else {
		report.AddUpdate("auto-attached for %s", on.Format(time.DateOnly))
	}
	report.Status = "healed"

	if u.Certs != nil {
		certs, err := u.Certs.Update(ctx)
		if err != nil {
			return nil, err
		}
		output.Debug("refreshed certificates after auto-attach", "updates", certs.UpdateCount())
	}
	return report, nil
}

// bindDate reports whether a bind is needed and for which date.
func (u *HealingUpdater) bindDate(ctx context.Context, uuid string, now time.Time) (time.Time, bool, error) {
	today, err := u.deps.Server.GetCompliance(ctx, uuid, now)
	if err != nil {
		return time.Time{}, false, u.deps.checkGone(err, uuid)
	}
	if !today.IsCompliant() {
		return now, true, nil
	}

	tomorrow := now.Add(healLookahead)
	ahead, err := u.deps.Server.GetCompliance(ctx, uuid, tomorrow)
	if err != nil {
		return time.Time{}, false, u.deps.checkGone(err, uuid)
	}
	if !ahead.IsCompliant() {
		return tomorrow, true, nil
	}
	return time.Time{}, false, nil
}
