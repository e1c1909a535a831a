package action

import (
	"context"
	"fmt"
)

// Kind identifies an action type, used for ordering, skipping and metrics.
type Kind string

// Action kinds.
const (
	KindIdentity          Kind = "identity"
	KindEntitlement       Kind = "entitlement"
	KindFacts             Kind = "facts"
	KindPackageProfile    Kind = "package-profile"
	KindInstalledProducts Kind = "installed-products"
	KindHealing           Kind = "healing"
	KindRepos             Kind = "repos"
)

// Updater reconciles one piece of local state with the server. DoUpdate
// must be idempotent: a second call with nothing changed reports zero
// updates and has no side effects.
type Updater interface {
	Kind() Kind
	DoUpdate(ctx context.Context) (*Report, error)
}

// Lock is the process-wide mutation lock. Acquire must be reentrant.
type Lock interface {
	Acquire(ctx context.Context) error
	Release()
}

// Locker runs functions while holding a Lock.
type Locker struct {
	lock Lock
}

// NewLocker wraps l.
func NewLocker(l Lock) *Locker {
	return &Locker{lock: l}
}

// Run acquires the lock, calls fn and releases the lock whatever fn returns.
// Errors from fn are returned unchanged.
func (l *Locker) Run(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := l.lock.Acquire(ctx); err != nil {
		return fmt.Errorf("acquiring action lock: %w", err)
	}
	defer l.lock.Release()
	return fn(ctx)
}

// Invoker runs an Updater under a Locker.
type Invoker struct {
	updater Updater
	locker  *Locker
}

// NewInvoker binds u to l.
func NewInvoker(u Updater, l *Locker) *Invoker {
	return &Invoker{updater: u, locker: l}
}

// Kind returns the updater's kind.
func (i *Invoker) Kind() Kind {
	return i.updater.Kind()
}

// Update runs the updater with the lock held. On error the report is nil.
func (i *Invoker) Update(ctx context.Context) (*Report, error) {
	var report *Report
	err := i.locker.Run(ctx, func(ctx context.Context) error {
		r, err := i.updater.DoUpdate(ctx)
		if err != nil {
			return err
		}
		report = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return report, nil
}
