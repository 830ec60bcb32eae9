// Package procpool runs registered tasks in a bounded pool of child processes.
//
// The parent re-executes a binary (by default its own executable) with
// PROCPOOL_WORKER=1. The child registers the same tasks and calls Serve.
// Parent and child exchange newline-delimited JSON over the child's stdin and
// stdout, so task arguments and results must be JSON-serializable. Children
// are started lazily, reused across calls, and replaced when they crash.
package procpool

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	"golang.org/x/sync/semaphore"
)

// Config holds the configuration for a Pool.
type Config struct {
	// Path is the child executable. Empty uses os.Executable().
	Path string

	// Args are passed to the child executable
	Args []string

	// Env is appended to the parent's environment for each child
	Env []string

	// Size is the maximum number of concurrent children
	Size int

	// Logger receives lifecycle logs. Nil uses slog.Default().
	Logger *slog.Logger
}

// Pool is a bounded set of reusable child processes. Safe for concurrent use.
type Pool struct {
	cfg    Config
	logger *slog.Logger
	sem    *semaphore.Weighted

	mu     sync.Mutex
	idle   []*worker
	all    map[*worker]struct{}
	closed bool
}

// Start prepares a pool. Children are spawned on demand, so Start only
// resolves the executable.
func Start(cfg Config) (*Pool, error) {
	if cfg.Size < 1 {
		return nil, fmt.Errorf("process pool size must be >= 1, got %d", cfg.Size)
	}
	if cfg.Path == "" {
		exe, err := os.Executable()
		if err != nil {
			return nil, fmt.Errorf("resolve executable: %w", err)
		}
		cfg.Path = exe
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Pool{
		cfg:    cfg,
		logger: logger,
		sem:    semaphore.NewWeighted(int64(cfg.Size)),
		all:    make(map[*worker]struct{}),
	}, nil
}

// Call runs task with arg in a child and decodes its result into out.
// out may be nil to discard the result.
//
// Waiting for a free child honours ctx; once the request is sent the call runs
// to completion. Task failures are returned as *RemoteError, transport
// failures as *WorkerError.
func (p *Pool) Call(ctx context.Context, task string, arg any, out any) error {
	payload, err := json.Marshal(arg)
	if err != nil {
		return fmt.Errorf("encode argument for task %q: %w", task, err)
	}

	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	w, err := p.take()
	if err != nil {
		return err
	}

	resp, err := w.roundTrip(task, payload)
	if err != nil {
		p.discard(w)
		return &WorkerError{PID: w.pid(), Err: err}
	}
	p.put(w)

	if resp.Error != "" {
		return &RemoteError{Task: task, Message: resp.Error}
	}
	if out != nil && len(resp.Result) > 0 {
		if err := json.Unmarshal(resp.Result, out); err != nil {
			return fmt.Errorf("decode result of task %q: %w", task, err)
		}
	}
	return nil
}

// Close stops every child and waits for it to exit. Calls made after Close
// return ErrPoolClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	workers := make([]*worker, 0, len(p.all))
	for w := range p.all {
		workers = append(workers, w)
	}
	p.all = nil
	p.idle = nil
	p.mu.Unlock()

	var errs []error
	for _, w := range workers {
		if err := w.stop(); err != nil {
			errs = append(errs, err)
		}
	}
	p.logger.Debug("process pool closed", slog.Int("workers", len(workers)))
	return errors.Join(errs...)
}

// Size returns the maximum number of concurrent children.
func (p *Pool) Size() int {
	return p.cfg.Size
}

func (p *Pool) take() (*worker, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, ErrPoolClosed
	}
	if n := len(p.idle); n > 0 {
		w := p.idle[n-1]
		p.idle = p.idle[:n-1]
		p.mu.Unlock()
		return w, nil
	}
	p.mu.Unlock()

	w, err := spawn(p.cfg)
	if err != nil {
		return nil, &WorkerError{Err: err}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = w.stop()
		return nil, ErrPoolClosed
	}
	p.all[w] = struct{}{}
	p.logger.Debug("worker process started", slog.Int("pid", w.pid()))
	return w, nil
}

func (p *Pool) put(w *worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		_ = w.stop()
		return
	}
	p.idle = append(p.idle, w)
}

func (p *Pool) discard(w *worker) {
	p.mu.Lock()
	if p.all != nil {
		delete(p.all, w)
	}
	p.mu.Unlock()

	p.logger.Warn("worker process discarded", slog.Int("pid", w.pid()))
	_ = w.kill()
}

// worker is one child process. It is used by at most one call at a time.
type worker struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout *bufio.Reader
	nextID uint64
	once   sync.Once
	err    error
}

func spawn(cfg Config) (*worker, error) {
	// #nosec G204 -- the executable is configured by the program itself
	cmd := exec.Command(cfg.Path, cfg.Args...)
	cmd.Env = append(append(os.Environ(), EnvWorker+"=1"), cfg.Env...)
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Path, err)
	}

	return &worker{
		cmd:    cmd,
		stdin:  stdin,
		stdout: bufio.NewReader(stdout),
	}, nil
}

func (w *worker) pid() int {
	if w.cmd.Process == nil {
		return 0
	}
	return w.cmd.Process.Pid
}

func (w *worker) roundTrip(task string, payload json.RawMessage) (response, error) {
	w.nextID++
	line, err := json.Marshal(request{ID: w.nextID, Task: task, Payload: payload})
	if err != nil {
		return response{}, fmt.Errorf("encode request: %w", err)
	}
	if _, err := w.stdin.Write(append(line, '\n')); err != nil {
		return response{}, fmt.Errorf("write request: %w", err)
	}

	data, err := w.stdout.ReadBytes('\n')
	if err != nil {
		if errors.Is(err, io.EOF) {
			return response{}, fmt.Errorf("exited before responding: %w", io.ErrUnexpectedEOF)
		}
		return response{}, fmt.Errorf("read response: %w", err)
	}

	var resp response
	if err := json.Unmarshal(data, &resp); err != nil {
		return response{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.ID != w.nextID {
		return response{}, fmt.Errorf("response id %d, want %d", resp.ID, w.nextID)
	}
	return resp, nil
}

// stop closes stdin, which makes Serve return, and waits for the exit.
func (w *worker) stop() error {
	w.once.Do(func() {
		_ = w.stdin.Close()
		w.err = w.cmd.Wait()
	})
	return w.err
}

func (w *worker) kill() error {
	if w.cmd.Process != nil {
		_ = w.cmd.Process.Kill()
	}
	_ = w.stop()
	return nil
}
