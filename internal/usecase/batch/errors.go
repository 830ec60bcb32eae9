package batch

import "errors"

var (
	// ErrNotTransferable is the error of every item handed to a MultiProcess
	// engine with work that is not a Task.
	ErrNotTransferable = errors.New("work is not transferable to a child process: use a batch.Task")

	// ErrChunkSize is the error of a chunk whose function returned a result
	// list of the wrong length.
	ErrChunkSize = errors.New("chunk function returned wrong number of results")

	// ErrInvalidChunkSize is returned by ProcessInChunks for a chunk size < 1.
	ErrInvalidChunkSize = errors.New("chunk size must be >= 1")
)
