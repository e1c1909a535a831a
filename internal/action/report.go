// Package action runs reconciliation actions under the process-wide lock
// and collects their reports.
package action

import (
	"fmt"
	"strings"

	utilerrors "k8s.io/apimachinery/pkg/util/errors"
)

// Report is the outcome of one action run. It is built by the action and
// must not be modified after DoUpdate returns it.
type Report struct {
	// Name labels the report in human output.
	Name string

	// Status is free-form, action specific.
	Status string

	updates []string
	errs    []error
}

// NewReport returns an empty report.
func NewReport(name string) *Report {
	return &Report{Name: name}
}

// AddUpdate records one change that was applied.
func (r *Report) AddUpdate(format string, args ...interface{}) {
	r.updates = append(r.updates, fmt.Sprintf(format, args...))
}

// AddError records a failure that did not stop the action.
func (r *Report) AddError(err error) {
	if err != nil {
		r.errs = append(r.errs, err)
	}
}

// Updates returns the recorded changes.
func (r *Report) Updates() []string {
	return append([]string(nil), r.updates...)
}

// Errors returns the recorded failures.
func (r *Report) Errors() []error {
	return append([]error(nil), r.errs...)
}

// UpdateCount returns the number of recorded changes.
func (r *Report) UpdateCount() int {
	return len(r.updates)
}

// Err aggregates the recorded failures, or returns nil.
func (r *Report) Err() error {
	return utilerrors.NewAggregate(r.errs)
}

// String renders a human summary.
func (r *Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %d update(s)", r.Name, len(r.updates))
	if r.Status != "" {
		fmt.Fprintf(&b, " [%s]", r.Status)
	}
	for _, u := range r.updates {
		b.WriteString("\n  ")
		b.WriteString(u)
	}
	if len(r.errs) > 0 {
		b.WriteString("\n")
		b.WriteString(r.FormatErrors())
	}
	return b.String()
}

// FormatErrors renders the recorded failures one per line, or "".
func (r *Report) FormatErrors() string {
	if len(r.errs) == 0 {
		return ""
	}
	lines := make([]string, 0, len(r.errs)+1)
	lines = append(lines, fmt.Sprintf("%s: %d error(s)", r.Name, len(r.errs)))
	for _, err := range r.errs {
		lines = append(lines, "  "+err.Error())
	}
	return strings.Join(lines, "\n")
}
