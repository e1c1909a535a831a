package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/reconcile"
)

// NewAttachCmd creates the attach command.
func NewAttachCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	var auto bool

	c := &cobra.Command{
		Use:   "attach --auto",
		Short: "Attach subscriptions to this system",
		Long: `Ask the server to attach the subscriptions that best cover the
installed products, then refresh certificates and the repo file.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			if !auto {
				return fmt.Errorf("%w: only automatic attach is supported, pass --auto", oerrors.ErrValidation)
			}
			app := cmdutil.NewApp(cfg.Config)
			app.Verbose = cfg.Verbose
			if err := app.Connect(); err != nil {
				return err
			}

			err := output.RunWithSpinner(c.Context(), app.Deps.AutoAttach,
				output.WithTitle("Attaching..."), output.WithDisabled(cfg.Verbose))
			if err != nil {
				return err
			}

			batch, err := app.Run(c.Context(), "Refreshing certificates...", reconcile.NewContentClient)
			cmdutil.PrintBatch(c.OutOrStdout(), batch)
			if err != nil {
				return err
			}
			return cmdutil.BatchError(batch)
		},
	}

	c.Flags().BoolVar(&auto, "auto", false, "Attach automatically")

	return c
}
