package circuitbreaker

import (
	"context"
	"fmt"
)

// Execute runs fn through cb and returns its typed result.
// A fallback value that is not a T is reported as an error.
func Execute[T any](ctx context.Context, cb *CircuitBreaker, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	v, err := cb.Call(ctx, func(ctx context.Context) (any, error) {
		return fn(ctx)
	})
	if err != nil {
		return zero, err
	}
	if v == nil {
		return zero, nil
	}
	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("circuit breaker %q: fallback returned %T, want %T", cb.Name(), v, zero)
	}
	return t, nil
}

// Wrap returns fn decorated with cb. Every invocation of the returned function
// goes through the same breaker.
func Wrap[In, Out any](cb *CircuitBreaker, fn func(context.Context, In) (Out, error)) func(context.Context, In) (Out, error) {
	return func(ctx context.Context, in In) (Out, error) {
		return Execute(ctx, cb, func(ctx context.Context) (Out, error) {
			return fn(ctx, in)
		})
	}
}

// Guard is a scoped acquisition of a breaker. Obtain one with Enter and close it
// with Exit, passing the error produced inside the scope.
//
//	g, err := cb.Enter()
//	if err != nil {
//	    return err // circuit open
//	}
//	err = doWork()
//	g.Exit(err)
type Guard struct {
	cb   *CircuitBreaker
	adm  admission
	done bool
}

// Enter admits one call, or returns an *OpenError while the circuit is open.
// The fallback is not consulted.
func (cb *CircuitBreaker) Enter() (*Guard, error) {
	adm, err := cb.allow()
	if err != nil {
		return nil, err
	}
	return &Guard{cb: cb, adm: adm}, nil
}

// Exit records the scope's outcome: nil counts as a success, a matching error
// as a failure. Calls after the first are ignored.
func (g *Guard) Exit(err error) {
	if g == nil || g.done {
		return
	}
	g.done = true
	g.cb.record(err, g.adm)
}
