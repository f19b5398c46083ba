package environment

// ExecuteInTransaction implements spec.md §4.1's executor combinator: begin, run fn, flush; retry
// on a stale-snapshot revert; always abort in a finally.
func (env *Environment) ExecuteInTransaction(fn func(t *Transaction) error) error {
	_, err := env.ComputeInTransaction(func(t *Transaction) (any, error) {
		return nil, fn(t)
	})
	return err
}

// ComputeInTransaction runs fn in a retry loop identical to ExecuteInTransaction, returning fn's
// last successful result.
func (env *Environment) ComputeInTransaction(fn func(t *Transaction) (any, error)) (any, error) {
	t, err := env.BeginTransaction(BeginOptions{})
	if err != nil {
		return nil, err
	}
	defer t.Abort()

	for {
		result, fnErr := fn(t)
		if fnErr != nil {
			return nil, fnErr
		}
		ok, flushErr := t.Flush(false)
		if flushErr != nil {
			return nil, flushErr
		}
		if ok {
			return result, nil
		}
		if err := t.Revert(); err != nil {
			return nil, err
		}
	}
}

// ExecuteInReadonlyTransaction runs fn exactly once against a read-only transaction, no retry.
func (env *Environment) ExecuteInReadonlyTransaction(fn func(t *Transaction) error) error {
	t, err := env.BeginReadonlyTransaction(BeginOptions{})
	if err != nil {
		return err
	}
	defer t.Abort()
	return fn(t)
}
