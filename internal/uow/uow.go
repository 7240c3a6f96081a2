package uow

import (
	"context"
)

// AfterCommit is a function that runs after a successful transaction commit.
type AfterCommit func(ctx context.Context)

// Runner opens a transaction and binds it to the context handed to fn.
// Repositories called with that context join the transaction.
type Runner interface {
	RunTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Immediate runs fn without a transaction, for stores that apply every
// write atomically on their own.
type Immediate struct{}

func (Immediate) RunTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// UoW represents a unit of work.
type UoW struct {
	runner Runner
}

func NewUoW(runner Runner) *UoW {
	if runner == nil {
		runner = Immediate{}
	}
	return &UoW{runner: runner}
}

// Do runs fn inside the transaction. After a successful commit, it executes
// all after-commit hooks in registration order. Hooks are skipped when fn or
// the commit fails, and they outlive cancellation of ctx.
func (u *UoW) Do(
	ctx context.Context,
	fn func(ctx context.Context, after func(AfterCommit)) error,
) error {
	var hooks []AfterCommit

	err := u.runner.RunTx(ctx, func(ctx context.Context) error {
		return fn(ctx, func(h AfterCommit) {
			hooks = append(hooks, h)
		})
	})
	if err != nil {
		return err
	}

	hctx := context.WithoutCancel(ctx)
	for _, h := range hooks {
		h(hctx)
	}

	return nil
}
