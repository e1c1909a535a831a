package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	"github.com/opmodel/subctl/internal/output"
)

type identityView struct {
	UUID    string    `json:"uuid" yaml:"uuid"`
	Serial  int64     `json:"serial" yaml:"serial"`
	Starts  time.Time `json:"starts" yaml:"starts"`
	Ends    time.Time `json:"ends" yaml:"ends"`
	Expired bool      `json:"expired" yaml:"expired"`
	Name    string    `json:"name,omitempty" yaml:"name,omitempty"`
	Owner   string    `json:"owner,omitempty" yaml:"owner,omitempty"`
}

// NewIdentityCmd creates the identity command.
func NewIdentityCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var remote bool
	var out cmdutil.OutputFlags

	c := &cobra.Command{
		Use:   "identity",
		Short: "Show this system's consumer identity",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			format, err := out.Format()
			if err != nil {
				return err
			}
			app := cmdutil.NewApp(cfg.Config)
			id, err := app.Deps.Identity.Read()
			if err != nil {
				return err
			}
			view := identityView{
				UUID:    id.UUID,
				Serial:  id.Serial,
				Starts:  id.Validity.Start,
				Ends:    id.Validity.End,
				Expired: id.Expired(time.Now()),
			}

			if remote {
				if err := app.Connect(); err != nil {
					return err
				}
				consumer, err := app.Deps.Server.GetConsumer(c.Context(), id.UUID)
				if err != nil {
					return err
				}
				view.Name = consumer.Name
				if owner, err := app.Deps.Server.GetOwner(c.Context(), id.UUID); err == nil {
					view.Owner = owner.DisplayName
				} else {
					output.Warn("looking up owner", "err", err)
				}
			}

			w := c.OutOrStdout()
			if format != output.FormatTable {
				return output.WriteStructured(w, format, view)
			}
			table := output.NewTable("FIELD", "VALUE").
				Row("UUID", view.UUID).
				Row("Serial", strconv.FormatInt(view.Serial, 10)).
				Row("Valid From", view.Starts.Format(time.RFC3339)).
				Row("Valid Until", view.Ends.Format(time.RFC3339)).
				Row("Expired", strconv.FormatBool(view.Expired))
			if remote {
				table.Row("Name", view.Name).Row("Owner", view.Owner)
			}
			fmt.Fprintln(w, table.String())
			return nil
		},
	}

	c.Flags().BoolVar(&remote, "remote", false, "Also show the consumer name and owner from the server")
	out.AddTo(c)

	return c
}
