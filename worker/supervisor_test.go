// Copyright (c) 2025 BVK Chaitanya

package worker

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/bvk/rangebot/pricerange"
	"github.com/shopspring/decimal"
)

// sleeper is a worker command that runs till it is signaled. Shell receives
// the range bounds as $1 and $2.
var sleeper = []string{"/bin/sh", "-c", "exec sleep 30", "worker"}

func newRange(t *testing.T, price, offset string) *pricerange.Range {
	r, err := pricerange.Compute(price, decimal.RequireFromString(offset))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func newSupervisor(t *testing.T, command []string, opts *Options) *Supervisor {
	s, err := New(command, opts)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func waitExit(t *testing.T, h *Handle) {
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatalf("worker %s (pid %d) did not exit", h, h.PID())
	}
}

func TestStartReplacesWorker(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, sleeper, nil)

	r1 := newRange(t, "1000", "50")
	h1, err := s.Start(ctx, r1)
	if err != nil {
		t.Fatal(err)
	}
	if want, got := []string{"-c", "exec sleep 30", "worker", "950", "1050"}, h1.Args(); !slices.Equal(want, got) {
		t.Errorf("want args %v, got %v", want, got)
	}
	if !h1.Range().Equal(r1) {
		t.Errorf("want range %s, got %s", r1, h1.Range())
	}
	if s.Live() != h1 {
		t.Errorf("first worker must be the live worker")
	}

	r2 := newRange(t, "1100", "50")
	h2, err := s.Start(ctx, r2)
	if err != nil {
		t.Fatal(err)
	}
	if h1.ID() == h2.ID() || h1.PID() == h2.PID() {
		t.Errorf("new worker must have a new id and pid")
	}
	if want, got := []string{"1050", "1150"}, h2.Args()[3:]; !slices.Equal(want, got) {
		t.Errorf("want range args %v, got %v", want, got)
	}

	waitExit(t, h1)
	if h2.Exited() {
		t.Fatalf("second worker must be running")
	}
	if s.Live() != h2 {
		t.Errorf("second worker must be the live worker")
	}

	var exitErr *exec.ExitError
	if err := h1.Err(); !errors.As(err, &exitErr) {
		t.Errorf("want exit error for the terminated worker, got %v", err)
	}
}

func TestStartFailure(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, []string{"/nonexistent/rangebot-worker"}, nil)

	if _, err := s.Start(ctx, newRange(t, "1000", "50")); err == nil {
		t.Fatalf("want spawn failure")
	}
	if h := s.Live(); h != nil {
		t.Errorf("want no live worker, got %s", h)
	}
	if _, err := s.Start(ctx, nil); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("want os.ErrInvalid for nil range, got %v", err)
	}
}

func TestExitDetection(t *testing.T) {
	ctx := context.Background()
	s := newSupervisor(t, []string{"/bin/sh", "-c", "exit 3", "worker"}, nil)

	h, err := s.Start(ctx, newRange(t, "1000", "50"))
	if err != nil {
		t.Fatal(err)
	}
	waitExit(t, h)

	var exitErr *exec.ExitError
	if err := h.Err(); !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("want exit code 3, got %v", err)
	}

	// Reaper clears the live handle after the exit notification.
	for i := 0; i < 100 && s.Live() != nil; i++ {
		time.Sleep(10 * time.Millisecond)
	}
	if s.Live() != nil {
		t.Errorf("exited worker must not be live")
	}
}

func TestStopTimeout(t *testing.T) {
	ctx := context.Background()
	stubborn := []string{"/bin/sh", "-c", "trap '' TERM; exec sleep 30", "worker"}
	s := newSupervisor(t, stubborn, &Options{StopTimeout: 200 * time.Millisecond})

	h1, err := s.Start(ctx, newRange(t, "1000", "50"))
	if err != nil {
		t.Fatal(err)
	}
	// Give the shell time to install the signal disposition.
	time.Sleep(200 * time.Millisecond)

	if _, err := s.Start(ctx, newRange(t, "1100", "50")); err != nil {
		t.Fatal(err)
	}
	waitExit(t, h1)

	var exitErr *exec.ExitError
	if err := h1.Err(); !errors.As(err, &exitErr) {
		t.Fatalf("want exit error, got %v", err)
	}
	if exitErr.String() != "signal: killed" {
		t.Errorf("want worker to be killed, got %q", exitErr.String())
	}
}

func TestClose(t *testing.T) {
	ctx := context.Background()
	s, err := New(sleeper, nil)
	if err != nil {
		t.Fatal(err)
	}

	h, err := s.Start(ctx, newRange(t, "1000", "50"))
	if err != nil {
		t.Fatal(err)
	}

	stats, err := h.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !stats.Running {
		t.Errorf("worker must be reported as running")
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}
	if !h.Exited() {
		t.Errorf("worker must be exited after close")
	}
	if stats, _ := h.Stats(ctx); stats.Running {
		t.Errorf("exited worker must not be reported as running")
	}
	if _, err := s.Start(ctx, newRange(t, "1000", "50")); !errors.Is(err, os.ErrClosed) {
		t.Errorf("want os.ErrClosed, got %v", err)
	}
}

func TestNewInvalid(t *testing.T) {
	if _, err := New(nil, nil); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("want os.ErrInvalid for empty command, got %v", err)
	}
	if _, err := New(sleeper, &Options{StopTimeout: -time.Second}); !errors.Is(err, os.ErrInvalid) {
		t.Errorf("want os.ErrInvalid for negative timeout, got %v", err)
	}
}

func TestOutput(t *testing.T) {
	var stdout, stderr strings.Builder
	echo := []string{"/bin/sh", "-c", `echo "range $1 $2"; echo oops >&2`, "worker"}
	s := newSupervisor(t, echo, &Options{Stdout: &stdout, Stderr: &stderr})

	h, err := s.Start(context.Background(), newRange(t, "20.5", "0.5"))
	if err != nil {
		t.Fatal(err)
	}
	waitExit(t, h)
	if err := h.Err(); err != nil {
		t.Fatal(err)
	}
	if want, got := "range 20 21\n", stdout.String(); want != got {
		t.Fatalf("want stdout %q, got %q", want, got)
	}
	if want, got := "oops\n", stderr.String(); want != got {
		t.Fatalf("want stderr %q, got %q", want, got)
	}
}
