package packrpc

import (
	"context"
	"fmt"
)

// CallTyped is a type-safe wrapper around Pool.Call using generics. TIn is
// marshaled as the request body; TOut is populated from the response body
// via fromValue, so TOut must be a type fromValue can produce (typically
// map[string]interface{} or a named alias of it).
func CallTyped[TIn any, TOut any](ctx context.Context, pool *Pool, method string, input TIn) (TOut, error) {
	var raw interface{}
	err := pool.Call(ctx, method, input, &raw)
	var output TOut
	if err != nil {
		return output, fmt.Errorf("packrpc: call %s failed: %w", method, err)
	}
	output, ok := raw.(TOut)
	if !ok {
		return output, fmt.Errorf("packrpc: call %s returned %T, not %T", method, raw, output)
	}
	return output, nil
}

// TypedPool wraps a Pool with a fixed input/output type pair.
type TypedPool[TIn any, TOut any] struct {
	pool *Pool
}

// NewTypedPool wraps pool for type-safe calls.
func NewTypedPool[TIn any, TOut any](pool *Pool) *TypedPool[TIn, TOut] {
	return &TypedPool[TIn, TOut]{pool: pool}
}

// Call executes method with type safety.
func (tp *TypedPool[TIn, TOut]) Call(ctx context.Context, method string, input TIn) (TOut, error) {
	return CallTyped[TIn, TOut](ctx, tp.pool, method, input)
}

// Start starts every server in the wrapped pool.
func (tp *TypedPool[TIn, TOut]) Start(ctx context.Context) error {
	return tp.pool.Start(ctx)
}

// Shutdown gracefully shuts the wrapped pool down.
func (tp *TypedPool[TIn, TOut]) Shutdown(ctx context.Context) error {
	return tp.pool.Shutdown(ctx)
}

// Health returns the wrapped pool's health status.
func (tp *TypedPool[TIn, TOut]) Health() HealthStatus {
	return tp.pool.Health()
}

// TypedServerClient binds a single method name to a type-safe call shape.
type TypedServerClient[TIn any, TOut any] struct {
	pool   *Pool
	method string
}

// NewTypedServerClient creates a client bound to one method on pool.
func NewTypedServerClient[TIn any, TOut any](pool *Pool, method string) *TypedServerClient[TIn, TOut] {
	return &TypedServerClient[TIn, TOut]{pool: pool, method: method}
}

// Call invokes the bound method with type safety.
func (tc *TypedServerClient[TIn, TOut]) Call(ctx context.Context, input TIn) (TOut, error) {
	return CallTyped[TIn, TOut](ctx, tc.pool, tc.method, input)
}

// BatchCall invokes the bound method once per input, concurrently,
// preserving input order in the results.
func (tc *TypedServerClient[TIn, TOut]) BatchCall(ctx context.Context, inputs []TIn) ([]TOut, []error) {
	results := make([]TOut, len(inputs))
	errs := make([]error, len(inputs))

	type outcome struct {
		index  int
		output TOut
		err    error
	}
	resultCh := make(chan outcome, len(inputs))

	for i, input := range inputs {
		go func(idx int, in TIn) {
			out, err := tc.Call(ctx, in)
			resultCh <- outcome{index: idx, output: out, err: err}
		}(i, input)
	}

	for range inputs {
		o := <-resultCh
		results[o.index] = o.output
		errs[o.index] = o.err
	}
	return results, errs
}
