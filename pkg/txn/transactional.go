package txn

import "context"

// Transactional marks fn as a unit of work: every call of the returned
// function runs inside a transaction defined by def.
func Transactional[T any](m *Manager, def Definition, fn func(ctx context.Context) (T, error)) func(ctx context.Context) (T, error) {
	return func(ctx context.Context) (T, error) {
		var out T
		err := m.Do(ctx, def, func(ctx context.Context) error {
			var err error
			out, err = fn(ctx)
			return err
		})
		if err != nil {
			var zero T
			return zero, err
		}
		return out, nil
	}
}
