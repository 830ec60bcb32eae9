package procpool

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EnvWorker marks a process started by a Pool. Its value is "1" in children.
const EnvWorker = "PROCPOOL_WORKER"

// ErrPoolClosed is returned by Call after Close.
var ErrPoolClosed = errors.New("process pool closed")

// ErrUnknownTask is reported by a child asked to run a task it did not register.
var ErrUnknownTask = errors.New("unknown task")

// request is one line written to a child's stdin.
type request struct {
	ID      uint64          `json:"id"`
	Task    string          `json:"task"`
	Payload json.RawMessage `json:"payload"`
}

// response is one line read from a child's stdout.
type response struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// RemoteError is an error returned (or a panic raised) by the task inside the child.
type RemoteError struct {
	Task    string
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("task %q: %s", e.Task, e.Message)
}

// WorkerError is a transport failure: the child could not be started, crashed,
// or broke the protocol. The child is discarded and replaced on the next call.
type WorkerError struct {
	PID int
	Err error
}

// Error implements the error interface.
func (e *WorkerError) Error() string {
	if e.PID > 0 {
		return fmt.Sprintf("worker process %d: %v", e.PID, e.Err)
	}
	return fmt.Sprintf("worker process: %v", e.Err)
}

// Unwrap returns the underlying transport error.
func (e *WorkerError) Unwrap() error {
	return e.Err
}
