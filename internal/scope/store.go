// Package scope binds session handles to execution scopes. A scope is a
// token carried by context.Context: one per unit of work on the synchronous
// path, one per subscription on the stream path.
package scope

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/nikmy/mongotx/internal/session"
	"github.com/nikmy/mongotx/pkg/errors"
)

var ErrAlreadyBound = errors.Error("scope already has a session bound")

type Token uuid.UUID

func (t Token) String() string {
	return uuid.UUID(t).String()
}

type tokenKey struct{}

// Enter returns ctx carrying a scope token. A ctx that already carries one
// is returned as is: calls made by the same task share its scope.
func Enter(ctx context.Context) (context.Context, Token) {
	if tok, ok := FromContext(ctx); ok {
		return ctx, tok
	}
	return Fork(ctx)
}

// Fork always opens a new scope, hiding the one ctx may carry.
func Fork(ctx context.Context) (context.Context, Token) {
	tok := Token(uuid.New())
	return context.WithValue(ctx, tokenKey{}, tok), tok
}

func FromContext(ctx context.Context) (Token, bool) {
	tok, ok := ctx.Value(tokenKey{}).(Token)
	return tok, ok
}

// Store maps scope tokens to bound handles. Lookups never block.
type Store struct {
	bindings sync.Map
}

func NewStore() *Store {
	return &Store{}
}

// Bind fails with ErrAlreadyBound if tok already has a handle.
func (s *Store) Bind(tok Token, h *session.Handle) error {
	if prev, loaded := s.bindings.LoadOrStore(tok, h); loaded {
		return errors.Wrapf(ErrAlreadyBound, "scope %s holds session %s", tok, prev.(*session.Handle).ID())
	}
	return nil
}

func (s *Store) Lookup(tok Token) (*session.Handle, bool) {
	v, ok := s.bindings.Load(tok)
	if !ok {
		return nil, false
	}
	return v.(*session.Handle), true
}

// Current returns the handle bound to the scope of ctx.
func (s *Store) Current(ctx context.Context) (*session.Handle, bool) {
	tok, ok := FromContext(ctx)
	if !ok {
		return nil, false
	}
	return s.Lookup(tok)
}

func (s *Store) Unbind(tok Token) {
	s.bindings.Delete(tok)
}

// Release unbinds tok only while it still holds h. It reports whether
// this call removed the binding, so concurrent finalizers release once.
func (s *Store) Release(tok Token, h *session.Handle) bool {
	return s.bindings.CompareAndDelete(tok, h)
}

func (s *Store) Resolve(ctx context.Context) (*session.Handle, bool, error) {
	h, ok := s.Current(ctx)
	return h, ok, nil
}
