package batch

import (
	"context"
	"fmt"
	"os"

	"research-scrapers/internal/infra/procpool"
)

// Invoker runs the work of one item.
type Invoker[T, R any] interface {
	Invoke(ctx context.Context, item T) (R, error)
}

// WorkFunc adapts a plain function to Invoker. It can only run on a Threaded engine.
type WorkFunc[T, R any] func(ctx context.Context, item T) (R, error)

// Invoke calls f.
func (f WorkFunc[T, R]) Invoke(ctx context.Context, item T) (R, error) {
	return f(ctx, item)
}

// ChunkFunc processes a chunk of items and returns one result per item, in order.
type ChunkFunc[T, R any] func(ctx context.Context, chunk []T) ([]R, error)

// Task is named work that can cross a process boundary. A MultiProcess engine
// sends the name and the JSON-encoded item to a child, which must have
// registered a Task with the same name.
type Task[T, R any] struct {
	Name string
	Fn   func(ctx context.Context, item T) (R, error)
}

// NewTask returns a Task named name.
func NewTask[T, R any](name string, fn func(ctx context.Context, item T) (R, error)) Task[T, R] {
	return Task[T, R]{Name: name, Fn: fn}
}

// Invoke calls the task in-process.
func (t Task[T, R]) Invoke(ctx context.Context, item T) (R, error) {
	return t.Fn(ctx, item)
}

// Register adds the task to reg.
func (t Task[T, R]) Register(reg *procpool.Registry) error {
	if t.Fn == nil {
		return fmt.Errorf("task %q has no function", t.Name)
	}
	return reg.Register(t.Name, procpool.Handle(t.Fn))
}

// Registrant is anything that can add itself to a task registry; every Task is one.
type Registrant interface {
	Register(reg *procpool.Registry) error
}

// IsWorkerProcess reports whether this process was started by a MultiProcess engine.
func IsWorkerProcess() bool {
	return procpool.IsWorkerProcess()
}

// ServeWorker registers tasks and serves them on stdin/stdout until the parent
// closes stdin. Call it early in main when IsWorkerProcess is true; anything
// else the child prints must go to stderr.
//
// Example:
//
//	func main() {
//	    if batch.IsWorkerProcess() {
//	        if err := batch.ServeWorker(context.Background(), fetchTask); err != nil {
//	            os.Exit(1)
//	        }
//	        return
//	    }
//	    // ...
//	}
func ServeWorker(ctx context.Context, tasks ...Registrant) error {
	reg := procpool.NewRegistry()
	for _, t := range tasks {
		if err := t.Register(reg); err != nil {
			return err
		}
	}
	return procpool.Serve(ctx, reg, os.Stdin, os.Stdout)
}
