package service

import (
	"context"
	"time"

	"poke-backend/internal/model"
)

// CommitPolicy runs after a poke commits, outside the critical path.
// Anti-abuse behavior such as a post-action cooldown lives behind this
// interface instead of being hard-coded in the processor.
type CommitPolicy interface {
	AfterCommit(ctx context.Context, action *model.Action) error
}

// NoopPolicy does nothing after commit.
type NoopPolicy struct{}

// AfterCommit implements CommitPolicy.
func (NoopPolicy) AfterCommit(context.Context, *model.Action) error {
	return nil
}

// CooldownPolicy holds the response for a fixed duration after each
// committed poke. The commit itself is never undone by a policy; an error
// here only surfaces as a post-commit warning.
type CooldownPolicy struct {
	Duration time.Duration
}

// AfterCommit implements CommitPolicy.
func (p CooldownPolicy) AfterCommit(ctx context.Context, _ *model.Action) error {
	if p.Duration <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(p.Duration):
		return nil
	}
}
