package reconcile

import (
	"context"

	"github.com/opmodel/subctl/internal/action"
)

// IdentityUpdater re-persists the identity certificate when the server
// reports a different serial than the local one.
type IdentityUpdater struct {
	deps *Deps
}

// Kind implements action.Updater.
func (u *IdentityUpdater) Kind() action.Kind { return action.KindIdentity }

// DoUpdate implements action.Updater.
func (u *IdentityUpdater) DoUpdate(ctx context.Context) (*action.Report, error) {
	report := action.NewReport("Identity certificate")

	local, err := u.deps.Identity.Read()
	if err != nil {
		return nil, err
	}

	consumer, err := u.deps.Server.GetConsumer(ctx, local.UUID)
	if err != nil {
		return nil, u.deps.checkGone(err, local.UUID)
	}

	if consumer.IDCert == nil || consumer.IDCert.Serial.Serial == local.Serial {
		report.Status = "current"
		return report, nil
	}

	if err := u.deps.Identity.Write(*consumer.IDCert); err != nil {
		return nil, err
	}
	report.Status = "updated"
	report.AddUpdate("identity certificate serial %d replaced by %d", local.Serial, consumer.IDCert.Serial.Serial)
	return report, nil
}
