package action

import (
	"context"

	"github.com/opmodel/subctl/internal/output"
	"github.com/opmodel/subctl/internal/server"
)

// Outcome classifies one invoker's run within a batch.
type Outcome int

const (
	// OutcomeOK means the invoker finished and recorded no errors.
	OutcomeOK Outcome = iota

	// OutcomeRecoverable means the invoker failed or recorded errors; the
	// batch continued.
	OutcomeRecoverable

	// OutcomeFatal means the invoker hit an error that invalidates the
	// identity; the batch stopped.
	OutcomeFatal
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeRecoverable:
		return "recoverable"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result is the outcome of one invoker. Report is nil when the invoker
// returned an error.
type Result struct {
	Kind    Kind
	Outcome Outcome
	Report  *Report
	Err     error
}

// Batch collects results in invoker order, one per invoker attempted.
type Batch struct {
	results []Result
}

// Results returns every result.
func (b *Batch) Results() []Result {
	return append([]Result(nil), b.results...)
}

// Reports returns one slot per attempted invoker; failed invokers hold nil.
func (b *Batch) Reports() []*Report {
	out := make([]*Report, len(b.results))
	for i, r := range b.results {
		out[i] = r.Report
	}
	return out
}

// Report returns the report of the first invoker of kind k, or nil.
func (b *Batch) Report(k Kind) *Report {
	for _, r := range b.results {
		if r.Kind == k {
			return r.Report
		}
	}
	return nil
}

// UpdateCount sums updates over all reports.
func (b *Batch) UpdateCount() int {
	n := 0
	for _, r := range b.results {
		if r.Report != nil {
			n += r.Report.UpdateCount()
		}
	}
	return n
}

// Failed reports whether any invoker was not OK.
func (b *Batch) Failed() bool {
	for _, r := range b.results {
		if r.Outcome != OutcomeOK {
			return true
		}
	}
	return false
}

// Observer is told about every result as it happens.
type Observer func(Result)

// Client runs an ordered list of invokers as one locked batch.
type Client struct {
	name     string
	locker   *Locker
	invokers []*Invoker
	observer Observer
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithObserver registers o for every result.
func WithObserver(o Observer) ClientOption {
	return func(c *Client) {
		c.observer = o
	}
}

// NewClient returns a client running invokers in the given order.
func NewClient(name string, locker *Locker, invokers []*Invoker, opts ...ClientOption) *Client {
	c := &Client{name: name, locker: locker, invokers: invokers}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name returns the client's label.
func (c *Client) Name() string {
	return c.name
}

// Kinds returns the invoker kinds in run order.
func (c *Client) Kinds() []Kind {
	out := make([]Kind, len(c.invokers))
	for i, inv := range c.invokers {
		out[i] = inv.Kind()
	}
	return out
}

type updateOptions struct {
	skips map[Kind]bool
}

// UpdateOption configures one Update call.
type UpdateOption func(*updateOptions)

// WithSkips bypasses invokers of the given kinds.
func WithSkips(kinds ...Kind) UpdateOption {
	return func(o *updateOptions) {
		for _, k := range kinds {
			o.skips[k] = true
		}
	}
}

// Update holds the lock for the whole batch and runs every invoker in
// order. A *server.GoneError or *server.ExpiredIdentityError stops the
// batch and is returned as is, together with the results so far. Any other
// invoker error is logged and recorded as recoverable.
func (c *Client) Update(ctx context.Context, opts ...UpdateOption) (*Batch, error) {
	o := &updateOptions{skips: map[Kind]bool{}}
	for _, opt := range opts {
		opt(o)
	}

	batch := &Batch{}
	err := c.locker.Run(ctx, func(ctx context.Context) error {
		for _, inv := range c.invokers {
			if o.skips[inv.Kind()] {
				output.Debug("skipping action", "client", c.name, "action", inv.Kind())
				continue
			}
			if err := ctx.Err(); err != nil {
				return err
			}

			res := c.run(ctx, inv)
			batch.results = append(batch.results, res)
			if c.observer != nil {
				c.observer(res)
			}
			if res.Outcome == OutcomeFatal {
				return res.Err
			}
		}
		return nil
	})
	return batch, err
}

func (c *Client) run(ctx context.Context, inv *Invoker) Result {
	log := output.ActionLogger(string(inv.Kind()))
	report, err := inv.Update(ctx)

	switch {
	case err != nil && server.IsFatal(err):
		log.Error("aborting batch", "err", err)
		return Result{Kind: inv.Kind(), Outcome: OutcomeFatal, Err: err}
	case err != nil:
		log.Error("action failed", "err", err)
		return Result{Kind: inv.Kind(), Outcome: OutcomeRecoverable, Err: err}
	case report != nil && len(report.errs) > 0:
		log.Warn("action finished with errors", "errors", len(report.errs))
		return Result{Kind: inv.Kind(), Outcome: OutcomeRecoverable, Report: report, Err: report.Err()}
	default:
		if report != nil {
			log.Debug("action finished", "updates", report.UpdateCount())
		}
		return Result{Kind: inv.Kind(), Outcome: OutcomeOK, Report: report}
	}
}
