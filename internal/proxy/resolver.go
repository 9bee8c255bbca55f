package proxy

import (
	"context"

	"github.com/nikmy/mongotx/internal/session"
)

// Resolver finds the session a call made with ctx must run on.
type Resolver interface {
	Resolve(ctx context.Context) (*session.Handle, bool, error)
}

type ResolverFunc func(ctx context.Context) (*session.Handle, bool, error)

func (f ResolverFunc) Resolve(ctx context.Context) (*session.Handle, bool, error) {
	return f(ctx)
}

// Chain asks each resolver in order and stops at the first one that
// either finds a session or fails.
type Chain []Resolver

func (c Chain) Resolve(ctx context.Context) (*session.Handle, bool, error) {
	for _, r := range c {
		h, ok, err := r.Resolve(ctx)
		if err != nil || ok {
			return h, ok, err
		}
	}
	return nil, false, nil
}
