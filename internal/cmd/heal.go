package cmd

import (
	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	"github.com/opmodel/subctl/internal/reconcile"
)

// NewHealCmd creates the heal command.
func NewHealCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "heal",
		Short: "Auto-attach when out of compliance now or within a day",
		Long: `Upload installed products, then, if the consumer has autoheal enabled
and is out of compliance now or will be within 24 hours, ask the
server to auto-attach and refresh entitlement certificates.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			app := cmdutil.NewApp(cfg.Config)
			app.Verbose = cfg.Verbose
			batch, err := app.Run(c.Context(), "Healing...", reconcile.NewHealingClient)
			cmdutil.PrintBatch(c.OutOrStdout(), batch)
			if err != nil {
				return err
			}
			return cmdutil.BatchError(batch)
		},
	}
}
