package cmdutil

import (
	"fmt"

	"github.com/spf13/cobra"

	oerrors "github.com/opmodel/subctl/internal/errors"
	"github.com/opmodel/subctl/internal/output"
)

// OutputFlags holds the output format flag shared by listing commands.
type OutputFlags struct {
	Output string
}

// AddTo registers the output flag on the given cobra command.
func (f *OutputFlags) AddTo(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.Output, "output", "o", "table",
		"Output format (table, json, yaml)")
}

// Format parses the flag.
func (f *OutputFlags) Format() (output.OutputFormat, error) {
	format, err := output.ParseOutputFormat(f.Output)
	if err != nil {
		return "", fmt.Errorf("%w: %v", oerrors.ErrValidation, err)
	}
	return format, nil
}
