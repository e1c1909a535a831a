package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/opmodel/subctl/internal/cmdtypes"
	"github.com/opmodel/subctl/internal/cmdutil"
	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/reconcile"
	"github.com/opmodel/subctl/internal/repofile"
)

// reposOptions holds the flags for the repos command.
type reposOptions struct {
	list bool
	cmdutil.OutputFlags
}

// NewReposCmd creates the repos command.
func NewReposCmd(cfg *cmdtypes.GlobalConfig) *cobra.Command {
	opts := &reposOptions{}

	c := &cobra.Command{
		Use:   "repos",
		Short: "Regenerate or list repositories granted by entitlements",
		Long: `Refresh entitlement certificates and regenerate the repo file, then list
its repositories. With --list, only read the current repo file.`,
		Args: cobra.NoArgs,
		RunE: func(c *cobra.Command, _ []string) error {
			format, err := opts.Format()
			if err != nil {
				return err
			}
			app := cmdutil.NewApp(cfg.Config)
			app.Verbose = cfg.Verbose

			if !opts.list {
				batch, err := app.Run(c.Context(), "Updating repositories...", reconcile.NewContentClient)
				if err != nil {
					cmdutil.PrintBatch(c.ErrOrStderr(), batch)
					return err
				}
				if berr := cmdutil.BatchError(batch); berr != nil {
					cmdutil.PrintBatch(c.ErrOrStderr(), batch)
					return berr
				}
			}
			return printRepos(c.OutOrStdout(), app.Config.Paths.RepoFile, format)
		},
	}

	c.Flags().BoolVar(&opts.list, "list", false, "List repositories without refreshing")
	opts.OutputFlags.AddTo(c)

	return c
}

type repoView struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	BaseURL string `json:"baseurl" yaml:"baseurl"`
	Enabled bool   `json:"enabled" yaml:"enabled"`
}

func printRepos(w io.Writer, path string, format output.OutputFormat) error {
	file, err := repofile.Read(path)
	if err != nil {
		return err
	}
	views := make([]repoView, 0, len(file.Sections()))
	for _, id := range file.Sections() {
		r := file.Section(id)
		views = append(views, repoView{
			ID:      id,
			Name:    r.Name(),
			BaseURL: r.Value("baseurl"),
			Enabled: r.Value("enabled") == "1",
		})
	}

	if format != output.FormatTable {
		return output.WriteStructured(w, format, views)
	}
	if len(views) == 0 {
		fmt.Fprintf(w, "No repositories in %s.\n", path)
		return nil
	}
	table := output.NewTable("REPO ID", "NAME", "URL", "ENABLED")
	for _, v := range views {
		enabled := "0"
		if v.Enabled {
			enabled = "1"
		}
		table.Row(v.ID, v.Name, v.BaseURL, enabled)
	}
	fmt.Fprintln(w, table.String())
	return nil
}
