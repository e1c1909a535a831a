package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/facts"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/reconcile"
)

// factsOptions holds the flags for the facts command.
type factsOptions struct {
	list   bool
	update bool
	diff   bool
	cmdutil.OutputFlags
}

// NewFactsCmd creates the facts command.
func NewFactsCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &factsOptions{}

	c := &cobra.Command{
		Use:   "facts",
		Short: "Show or upload system facts",
		Long: `Show the facts collected from this system, compare them with the last
upload, or upload them now. With no flag, --list is assumed.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			return runFacts(c, cfg, opts)
		},
	}

	c.Flags().BoolVar(&opts.list, "list", false, "List collected facts")
	c.Flags().BoolVar(&opts.update, "update", false, "Upload facts if they changed")
	c.Flags().BoolVar(&opts.diff, "diff", false, "Show changes since the last upload")
	c.MarkFlagsMutuallyExclusive("list", "update", "diff")
	opts.OutputFlags.AddTo(c)

	return c
}

func runFacts(c *cobra.Command, cfg *cmdtypes.GlobalConfig, opts *factsOptions) error {
	app := cmdutil.NewApp(cfg.Config)
	app.Verbose = cfg.Verbose

	if opts.update {
		batch, err := app.Run(c.Context(), "Uploading facts...", reconcile.NewFactsClient)
		cmdutil.PrintBatch(c.OutOrStdout(), batch)
		if err != nil {
			return err
		}
		return cmdutil.BatchError(batch)
	}

	current, err := app.Deps.Facts.Collect(c.Context())
	if err != nil {
		return fmt.Errorf("collecting facts: %w", err)
	}

	if opts.diff {
		cached, ok := app.Deps.FactsCache.Read()
		if !ok {
			cached = facts.Facts{}
		}
		changed := facts.ChangedKeys(current, cached, app.Deps.Graylist)
		if len(changed) == 0 {
			fmt.Fprintln(c.OutOrStdout(), output.FormatCheckmark("No fact changes since the last upload"))
			return nil
		}
		diff, err := output.RenderDiff("uploaded", cached, "current", current, output.IsTTY())
		if err != nil {
			return fmt.Errorf("rendering diff: %w", err)
		}
		fmt.Fprint(c.OutOrStdout(), diff)
		fmt.Fprintln(c.OutOrStdout(), output.FormatCount(len(changed), "changed fact"))
		return nil
	}

	format, err := opts.Format()
	if err != nil {
		return err
	}
	return printFacts(c.OutOrStdout(), format, current)
}

func printFacts(w io.Writer, format output.OutputFormat, f facts.Facts) error {
	if format != output.FormatTable {
		if err := output.WriteStructured(w, format, f); err != nil {
			return fmt.Errorf("%w: %v", oerrors.ErrValidation, err)
		}
		return nil
	}
	table := output.NewTable("FACT", "VALUE")
	for _, k := range f.Keys() {
		table.Row(k, f[k])
	}
	fmt.Fprintln(w, table.String())
	return nil
}
