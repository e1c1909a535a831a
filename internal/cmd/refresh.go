package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/reconcile"
)

// refreshOptions holds the flags for the refresh command.
type refreshOptions struct {
	skip []string
}

// NewRefreshCmd creates the refresh command.
func NewRefreshCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &refreshOptions{}

	c := &cobra.Command{
		Use:   "refresh",
		Short: "Synchronize certificates, facts and profiles with the server",
		Long: `Synchronize local state with the entitlement server.

Runs, in order and under one lock:
  - identity certificate check
  - entitlement certificates (and the repo file when they change)
  - facts
  - package profile
  - installed products`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			skips, err := parseKinds(opts.skip)
			if err != nil {
				return err
			}
			app := cmdutil.NewApp(cfg.Config)
			app.Verbose = cfg.Verbose
			batch, err := app.Run(c.Context(), "Refreshing...", reconcile.NewActionClient, action.WithSkips(skips...))
			cmdutil.PrintBatch(c.OutOrStdout(), batch)
			if err != nil {
				return err
			}
			return cmdutil.BatchError(batch)
		},
	}

	c.Flags().StringSliceVar(&opts.skip, "skip", nil,
		"Actions to skip (identity, entitlement, facts, package-profile, installed-products)")

	return c
}

var knownKinds = map[string]action.Kind{
	string(action.KindIdentity):          action.KindIdentity,
	string(action.KindEntitlement):       action.KindEntitlement,
	string(action.KindFacts):             action.KindFacts,
	string(action.KindPackageProfile):    action.KindPackageProfile,
	string(action.KindInstalledProducts): action.KindInstalledProducts,
	string(action.KindHealing):           action.KindHealing,
	string(action.KindRepos):             action.KindRepos,
}

func parseKinds(names []string) ([]action.Kind, error) {
	kinds := make([]action.Kind, 0, len(names))
	for _, n := range names {
		k, ok := knownKinds[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown action %q", oerrors.ErrValidation, n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}
