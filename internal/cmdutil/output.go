package cmdutil

import (
	"fmt"
	"io"
	"strings"

	"github.com/opmodel/subctl/internal/action"
	"github.com/opmodel/subctl/internal/output"
)

// resultStatus summarizes one result for the status column.
func resultStatus(r action.Result) string {
	switch {
	case r.Outcome != action.OutcomeOK:
		return output.StatusFailed
	case r.Report != nil && r.Report.UpdateCount() > 0:
		return output.StatusUpdated
	default:
		return output.StatusUnchanged
	}
}

// PrintBatch writes one status line per result followed by its updates and
// errors.
func PrintBatch(w io.Writer, batch *action.Batch) {
	if batch == nil {
		return
	}
	for _, r := range batch.Results() {
		name := string(r.Kind)
		if r.Report != nil {
			name = r.Report.Name
		}
		fmt.Fprintln(w, output.FormatStatusLine(name, resultStatus(r)))
		if r.Report != nil {
			for _, u := range r.Report.Updates() {
				fmt.Fprintf(w, "    %s\n", u)
			}
		}
		if r.Err != nil {
			for _, line := range strings.Split(r.Err.Error(), "\n") {
				fmt.Fprintf(w, "    error: %s\n", line)
			}
		}
	}
	fmt.Fprintln(w, output.FormatCheckmark(output.FormatCount(batch.UpdateCount(), "change")))
}

// BatchError returns an error when any result failed, so the process exits
// non-zero after printing.
func BatchError(batch *action.Batch) error {
	if batch == nil || !batch.Failed() {
		return nil
	}
	var failed []string
	for _, r := range batch.Results() {
		if r.Outcome != action.OutcomeOK {
			failed = append(failed, string(r.Kind))
		}
	}
	return fmt.Errorf("%d action(s) failed: %s", len(failed), strings.Join(failed, ", "))
}
