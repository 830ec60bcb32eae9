package procpool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// IsWorkerProcess reports whether the current process was started by a Pool.
// Programs call it first thing in main and hand over to Serve when it is true.
func IsWorkerProcess() bool {
	return os.Getenv(EnvWorker) == "1"
}

// Serve runs the child side of the protocol: it reads one request per line
// from r, runs the registered handler and writes one response per line to w.
// Requests are handled one at a time. Serve returns nil when r reaches EOF.
//
// w must be the only writer of the child's stdout; log to stderr instead.
func Serve(ctx context.Context, reg *Registry, r io.Reader, w io.Writer) error {
	reader := bufio.NewReader(r)
	writer := bufio.NewWriter(w)
	enc := json.NewEncoder(writer)

	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			resp := handle(ctx, reg, line)
			if err := enc.Encode(resp); err != nil {
				return fmt.Errorf("write response: %w", err)
			}
			if err := writer.Flush(); err != nil {
				return fmt.Errorf("flush response: %w", err)
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("read request: %w", err)
		}
	}
}

func handle(ctx context.Context, reg *Registry, line []byte) (resp response) {
	var req request
	if err := json.Unmarshal(line, &req); err != nil {
		return response{Error: fmt.Sprintf("decode request: %v", err)}
	}
	resp.ID = req.ID

	h, ok := reg.Lookup(req.Task)
	if !ok {
		resp.Error = fmt.Sprintf("%v: %s", ErrUnknownTask, req.Task)
		return resp
	}

	defer func() {
		if p := recover(); p != nil {
			resp.Result = nil
			resp.Error = fmt.Sprintf("panic: %v", p)
		}
	}()

	result, err := h(ctx, req.Payload)
	if err != nil {
		resp.Error = err.Error()
		return resp
	}
	resp.Result = result
	return resp
}
