package reconcile

import (
	"context"

	"github.com/opmodel/subctl/internal/output"
)

// AutoAttach asks the server to attach the best matching subscriptions
// now, under the action lock. Certificates are not refreshed; run a content
// client afterwards.
func (d *Deps) AutoAttach(ctx context.Context) error {
	return d.Locker.Run(ctx, func(ctx context.Context) error {
		uuid, err := d.consumerUUID()
		if err != nil {
			return err
		}
		output.Debug("auto-attaching", "consumer", uuid)
		if err := d.Server.Bind(ctx, uuid, d.now()); err != nil {
			return d.checkGone(err, uuid)
		}
		return nil
	})
}
