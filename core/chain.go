package core

import (
	"context"
)

// Chain is an ordered sequence of Actions run over the same list of
// Contexts.
//
// A Chain does not swallow Stopped itself; its caller decides whether
// the chain boundary is one that catches the stop signal (behaviour
// dispatch and "run" are, a nested chain is not).
type Chain struct {
	actions []Action
}

// NewChain makes an empty Chain.
func NewChain() *Chain {
	return &Chain{
		actions: make([]Action, 0, 8),
	}
}

// Append adds an action to the end of the chain.
func (ch *Chain) Append(a Action) {
	ch.actions = append(ch.actions, a)
}

// Len is the number of actions in the chain.
func (ch *Chain) Len() int {
	return len(ch.actions)
}

// Exec runs the chain's actions strictly sequentially.  The first
// error (stop signal included) halts the chain.
func (ch *Chain) Exec(ctx context.Context, ectxs []*Context) ([]*Context, error) {
	ectxs = withSaved(ectxs)
	for _, a := range ch.actions {
		select {
		case <-ctx.Done():
			return ectxs, ctx.Err()
		default:
		}

		next, err := a.Exec(ctx, ectxs)
		if err != nil {
			return ectxs, err
		}
		if next != nil {
			ectxs = next
		}
	}
	return ectxs, nil
}
