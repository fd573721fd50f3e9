// Copyright (c) 2025 BVK Chaitanya

// Package worker manages the lifecycle of the external worker process. At
// most one worker is live at any time; starting a new worker asks the
// previous one to terminate.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"

	"github.com/bvk/rangebot/ctxutil"
	"github.com/bvk/rangebot/pricerange"
	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

type Supervisor struct {
	cg ctxutil.CloseGroup

	opts Options

	command []string

	mu sync.Mutex

	closed bool

	live *Handle

	// handles holds all spawned workers that are not yet reaped, including the
	// live worker.
	handles map[uuid.UUID]*Handle
}

// New creates a supervisor for the worker command. First element of the
// command is the executable and the rest are fixed leading arguments. Price
// range bounds are appended to these arguments for every worker instance.
func New(command []string, opts *Options) (*Supervisor, error) {
	if len(command) == 0 || len(command[0]) == 0 {
		return nil, fmt.Errorf("worker command cannot be empty: %w", os.ErrInvalid)
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	s := &Supervisor{
		opts:    *opts,
		command: slices.Clone(command),
		handles: make(map[uuid.UUID]*Handle),
	}
	return s, nil
}

// Close terminates all worker processes and waits for them to exit. Workers
// that do not exit within the close timeout are killed.
func (s *Supervisor) Close() error {
	s.mu.Lock()
	s.closed = true
	var handles []*Handle
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mu.Unlock()

	for _, h := range handles {
		if err := h.signal(unix.SIGTERM); err != nil {
			slog.Warn("could not send termination signal to worker (ignored)", "worker", h, "pid", h.pid, "err", err)
		}
	}
	for _, h := range handles {
		if !h.wait(s.opts.CloseTimeout) {
			slog.Warn("worker did not exit in time after termination signal; killing it", "worker", h, "pid", h.pid)
			if err := h.signal(unix.SIGKILL); err != nil {
				slog.Error("could not kill the worker", "worker", h, "pid", h.pid, "err", err)
			}
		}
	}

	s.cg.Close()
	return nil
}

// Live returns the current worker handle. Returns nil if no worker was
// started or if the last worker has exited.
func (s *Supervisor) Live() *Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.live
}

// Start replaces the current worker (if any) with a new worker process for
// the input price range. Previous worker is sent a termination signal, but
// its exit is not awaited unless a stop timeout is configured.
func (s *Supervisor) Start(ctx context.Context, r *pricerange.Range) (*Handle, error) {
	if r == nil {
		return nil, fmt.Errorf("price range cannot be nil: %w", os.ErrInvalid)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, fmt.Errorf("worker supervisor is closed: %w", os.ErrClosed)
	}

	if prev := s.live; prev != nil {
		s.stopLocked(ctx, prev)
		s.live = nil
	}

	args := append(slices.Clone(s.command[1:]), r.Args()...)
	cmd := exec.Command(s.command[0], args...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = s.opts.Stdout
	cmd.Stderr = s.opts.Stderr
	cmd.WaitDelay = s.opts.CloseTimeout
	if err := cmd.Start(); err != nil {
		slog.ErrorContext(ctx, "could not start new worker", "command", s.command[0], "range", r, "err", err)
		return nil, fmt.Errorf("could not start worker %q: %w", s.command[0], err)
	}

	h := newHandle(cmd, r)
	s.handles[h.id] = h
	s.live = h
	s.cg.Go(func(context.Context) { s.reap(h) })

	slog.InfoContext(ctx, "started new worker", "worker", h, "pid", h.pid, "lower", r.Lower.String(), "upper", r.Upper.String())
	return h, nil
}

func (s *Supervisor) stopLocked(ctx context.Context, h *Handle) {
	if h.Exited() {
		return
	}
	slog.InfoContext(ctx, "terminating previous worker", "worker", h, "pid", h.pid, "range", h.priceRange)
	if err := h.signal(unix.SIGTERM); err != nil {
		slog.WarnContext(ctx, "could not send termination signal to previous worker (ignored)", "worker", h, "pid", h.pid, "err", err)
		return
	}
	if s.opts.StopTimeout == 0 {
		return
	}
	if h.wait(s.opts.StopTimeout) {
		return
	}
	slog.WarnContext(ctx, "previous worker did not exit in time; killing it", "worker", h, "pid", h.pid, "timeout", s.opts.StopTimeout)
	if err := h.signal(unix.SIGKILL); err != nil {
		slog.ErrorContext(ctx, "could not kill previous worker", "worker", h, "pid", h.pid, "err", err)
		return
	}
	if !h.wait(s.opts.StopTimeout) {
		slog.ErrorContext(ctx, "previous worker is still not reaped after kill signal", "worker", h, "pid", h.pid)
	}
}

// reap waits for the worker process to exit and releases its resources.
func (s *Supervisor) reap(h *Handle) {
	err := h.cmd.Wait()
	h.finish(err)

	s.mu.Lock()
	delete(s.handles, h.id)
	isLive := s.live == h
	if isLive {
		s.live = nil
	}
	s.mu.Unlock()

	if isLive {
		slog.Error("live worker has exited", "worker", h, "pid", h.pid, "range", h.priceRange, "err", err)
		return
	}
	slog.Info("worker has exited", "worker", h, "pid", h.pid, "range", h.priceRange, "err", err)
}
