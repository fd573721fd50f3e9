// Copyright (c) 2025 BVK Chaitanya

package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"time"

	"github.com/bvk/rangebot/pricerange"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v4/process"
)

// Handle identifies one worker process spawned by the supervisor.
type Handle struct {
	id uuid.UUID

	cmd *exec.Cmd

	pid int

	priceRange *pricerange.Range

	startTime time.Time

	done chan struct{}

	// exitErr holds the process exit status. It is valid only after done is
	// closed.
	exitErr error
}

// Stats holds the process resource usage of a worker.
type Stats struct {
	Running    bool    `json:"running"`
	RSS        uint64  `json:"rss"`
	CPUPercent float64 `json:"cpu_percent"`
}

func newHandle(cmd *exec.Cmd, r *pricerange.Range) *Handle {
	return &Handle{
		id:         uuid.New(),
		cmd:        cmd,
		pid:        cmd.Process.Pid,
		priceRange: r,
		startTime:  time.Now(),
		done:       make(chan struct{}),
	}
}

func (h *Handle) String() string {
	return "worker:" + h.id.String()
}

func (h *Handle) ID() string {
	return h.id.String()
}

func (h *Handle) PID() int {
	return h.pid
}

// Range returns the price range the worker was started with.
func (h *Handle) Range() *pricerange.Range {
	return h.priceRange
}

// Args returns a copy of the command-line arguments, excluding the
// executable, passed to the worker process.
func (h *Handle) Args() []string {
	return slices.Clone(h.cmd.Args[1:])
}

func (h *Handle) StartTime() time.Time {
	return h.startTime
}

// Done returns a channel that is closed when the worker process exits.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited returns true if the worker process has exited.
func (h *Handle) Exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// Err returns the exit status of the worker process. Returns nil if process
// is still running or exited successfully.
func (h *Handle) Err() error {
	if !h.Exited() {
		return nil
	}
	return h.exitErr
}

func (h *Handle) finish(err error) {
	h.exitErr = err
	close(h.done)
}

func (h *Handle) signal(sig os.Signal) error {
	if h.Exited() {
		return nil
	}
	if err := h.cmd.Process.Signal(sig); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// wait blocks till the process exits or the timeout. Returns false on
// timeout.
func (h *Handle) wait(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-h.done:
		return true
	case <-timer.C:
		return false
	}
}

// Stats returns the current resource usage for the worker process.
func (h *Handle) Stats(ctx context.Context) (*Stats, error) {
	if h.Exited() {
		return &Stats{}, nil
	}
	p, err := process.NewProcessWithContext(ctx, int32(h.pid))
	if err != nil {
		if errors.Is(err, process.ErrorProcessNotRunning) {
			return &Stats{}, nil
		}
		return nil, err
	}
	stats := &Stats{Running: true}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil {
		stats.RSS = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		stats.CPUPercent = cpu
	}
	return stats, nil
}
