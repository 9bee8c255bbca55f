// Package builder assembles a value step by step and stops at the first
// failing step.
package builder

func New[T any]() *Builder[T] {
	return &Builder[T]{obj: new(T)}
}

type Builder[T any] struct {
	obj *T
	err error
}

// Use applies setter unless an earlier step failed.
func (b *Builder[T]) Use(setter func(obj *T)) *Builder[T] {
	if b.err == nil {
		setter(b.obj)
	}
	return b
}

func (b *Builder[T]) MaybeUse(setter func(obj *T) error) *Builder[T] {
	if b.err == nil {
		b.err = setter(b.obj)
	}
	return b
}

// Get returns the value built so far together with the first error.
func (b *Builder[T]) Get() (*T, error) {
	return b.obj, b.err
}
