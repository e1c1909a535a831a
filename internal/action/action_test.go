package action

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opmodel/subctl/internal/server"
)

type countingLock struct {
	depth, maxDepth, acquires, releases int
	failAcquire                         error
}

func (l *countingLock) Acquire(context.Context) error {
	if l.failAcquire != nil {
		return l.failAcquire
	}
	l.acquires++
	l.depth++
	if l.depth > l.maxDepth {
		l.maxDepth = l.depth
	}
	return nil
}

func (l *countingLock) Release() {
	l.releases++
	l.depth--
}

type stubUpdater struct {
	kind   Kind
	calls  int
	report func() *Report
	err    error
	seen   *[]Kind
}

func (s *stubUpdater) Kind() Kind { return s.kind }

func (s *stubUpdater) DoUpdate(context.Context) (*Report, error) {
	s.calls++
	if s.seen != nil {
		*s.seen = append(*s.seen, s.kind)
	}
	if s.err != nil {
		return nil, s.err
	}
	if s.report != nil {
		return s.report(), nil
	}
	return NewReport(string(s.kind)), nil
}

func TestReport(t *testing.T) {
	r := NewReport("Facts")
	assert.NoError(t, r.Err())
	assert.Empty(t, r.FormatErrors())

	r.AddUpdate("uploaded %d facts", 12)
	r.AddError(nil)
	r.AddError(errors.New("cache unwritable"))
	r.Status = "changed"

	assert.Equal(t, 1, r.UpdateCount())
	assert.Equal(t, []string{"uploaded 12 facts"}, r.Updates())
	require.Len(t, r.Errors(), 1)
	assert.Error(t, r.Err())
	assert.Contains(t, r.FormatErrors(), "cache unwritable")
	assert.Contains(t, r.String(), "Facts: 1 update(s) [changed]")

	// accessors return copies
	ups := r.Updates()
	ups[0] = "mutated"
	assert.Equal(t, "uploaded 12 facts", r.Updates()[0])
}

func TestInvoker_ReleasesLockOnError(t *testing.T) {
	lock := &countingLock{}
	boom := errors.New("boom")
	inv := NewInvoker(&stubUpdater{kind: KindFacts, err: boom}, NewLocker(lock))

	report, err := inv.Update(context.Background())
	assert.Nil(t, report)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, lock.acquires)
	assert.Equal(t, 1, lock.releases)
	assert.Equal(t, 0, lock.depth)
}

func TestInvoker_AcquireFailure(t *testing.T) {
	lock := &countingLock{failAcquire: context.DeadlineExceeded}
	u := &stubUpdater{kind: KindFacts}

	_, err := NewInvoker(u, NewLocker(lock)).Update(context.Background())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 0, u.calls)
}

func TestClient_RunsInOrderUnderOneLock(t *testing.T) {
	lock := &countingLock{}
	locker := NewLocker(lock)
	var seen []Kind

	kinds := []Kind{KindIdentity, KindEntitlement, KindFacts, KindPackageProfile, KindInstalledProducts}
	var invokers []*Invoker
	for _, k := range kinds {
		invokers = append(invokers, NewInvoker(&stubUpdater{kind: k, seen: &seen}, locker))
	}

	var observed []Result
	c := NewClient("cert", locker, invokers, WithObserver(func(r Result) { observed = append(observed, r) }))
	batch, err := c.Update(context.Background())
	require.NoError(t, err)

	assert.Equal(t, kinds, seen)
	assert.Equal(t, kinds, c.Kinds())
	assert.Len(t, batch.Reports(), len(kinds))
	assert.Len(t, observed, len(kinds))
	assert.False(t, batch.Failed())
	assert.Equal(t, 2, lock.maxDepth, "invokers reenter the batch lock")
	assert.Equal(t, 0, lock.depth)
	assert.Equal(t, lock.acquires, lock.releases)
}

func TestClient_RecoverableKeepsPosition(t *testing.T) {
	locker := NewLocker(&countingLock{})
	withErrors := func() *Report {
		r := NewReport("facts")
		r.AddError(errors.New("partial"))
		return r
	}
	c := NewClient("cert", locker, []*Invoker{
		NewInvoker(&stubUpdater{kind: KindIdentity, err: errors.New("network blip")}, locker),
		NewInvoker(&stubUpdater{kind: KindFacts, report: withErrors}, locker),
		NewInvoker(&stubUpdater{kind: KindPackageProfile}, locker),
	})

	batch, err := c.Update(context.Background())
	require.NoError(t, err)

	reports := batch.Reports()
	require.Len(t, reports, 3)
	assert.Nil(t, reports[0])
	assert.NotNil(t, reports[1])
	assert.NotNil(t, reports[2])

	results := batch.Results()
	assert.Equal(t, OutcomeRecoverable, results[0].Outcome)
	assert.Equal(t, OutcomeRecoverable, results[1].Outcome)
	assert.Equal(t, OutcomeOK, results[2].Outcome)
	assert.True(t, batch.Failed())
	assert.Same(t, reports[1], batch.Report(KindFacts))
}

func TestClient_FatalStopsBatchUnwrapped(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"gone", &server.GoneError{DeletedID: "abc"}},
		{"expired", &server.ExpiredIdentityError{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lock := &countingLock{}
			locker := NewLocker(lock)
			after := &stubUpdater{kind: KindFacts}
			c := NewClient("cert", locker, []*Invoker{
				NewInvoker(&stubUpdater{kind: KindIdentity}, locker),
				NewInvoker(&stubUpdater{kind: KindEntitlement, err: tt.err}, locker),
				NewInvoker(after, locker),
			})

			batch, err := c.Update(context.Background())
			assert.Same(t, tt.err, err)
			assert.Equal(t, 0, after.calls)
			require.Len(t, batch.Results(), 2)
			assert.Equal(t, OutcomeFatal, batch.Results()[1].Outcome)
			assert.Equal(t, 0, lock.depth)
		})
	}
}

func TestClient_WrappedGoneIsRecoverable(t *testing.T) {
	locker := NewLocker(&countingLock{})
	wrapped := fmt.Errorf("stale: %v", &server.GoneError{DeletedID: "other"})
	after := &stubUpdater{kind: KindFacts}
	c := NewClient("cert", locker, []*Invoker{
		NewInvoker(&stubUpdater{kind: KindEntitlement, err: wrapped}, locker),
		NewInvoker(after, locker),
	})

	batch, err := c.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, after.calls)
	assert.Equal(t, OutcomeRecoverable, batch.Results()[0].Outcome)
}

func TestClient_WithSkips(t *testing.T) {
	locker := NewLocker(&countingLock{})
	skipped := &stubUpdater{kind: KindPackageProfile}
	c := NewClient("cert", locker, []*Invoker{
		NewInvoker(&stubUpdater{kind: KindFacts}, locker),
		NewInvoker(skipped, locker),
	})

	batch, err := c.Update(context.Background(), WithSkips(KindPackageProfile))
	require.NoError(t, err)
	assert.Equal(t, 0, skipped.calls)
	assert.Len(t, batch.Reports(), 1)

	batch, err = c.Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, skipped.calls)
	assert.Len(t, batch.Reports(), 2)
}

func TestBatch_UpdateCount(t *testing.T) {
	r1 := NewReport("a")
	r1.AddUpdate("x")
	r1.AddUpdate("y")
	b := &Batch{results: []Result{{Report: r1}, {Report: nil}}}
	assert.Equal(t, 2, b.UpdateCount())
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "ok", OutcomeOK.String())
	assert.Equal(t, "fatal", OutcomeFatal.String())
	assert.Equal(t, "unknown", Outcome(99).String())
}
