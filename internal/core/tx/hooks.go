package tx

import "context"

type hooksKey struct{}

// Hooks collects callbacks that must only run once the outermost
// transaction has committed.
type Hooks struct {
	fns []func(ctx context.Context)
}

// WithHooks attaches a fresh hook list to ctx. Managers call it when they
// begin an outermost transaction.
func WithHooks(ctx context.Context) (context.Context, *Hooks) {
	h := &Hooks{}
	return context.WithValue(ctx, hooksKey{}, h), h
}

// Run executes the collected callbacks in registration order.
func (h *Hooks) Run(ctx context.Context) {
	for _, fn := range h.fns {
		fn(ctx)
	}
	h.fns = nil
}

// AfterCommit defers fn until the transaction in ctx commits. It is dropped
// on rollback. Outside a transaction fn runs immediately.
func AfterCommit(ctx context.Context, fn func(ctx context.Context)) {
	if h, ok := ctx.Value(hooksKey{}).(*Hooks); ok {
		h.fns = append(h.fns, fn)
		return
	}
	fn(ctx)
}
