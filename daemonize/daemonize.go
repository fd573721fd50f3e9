// Copyright (c) 2023 BVK Chaitanya

// Package daemonize respawns the current program as a background process.
package daemonize

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bvk/rangebot/ctxutil"
	"golang.org/x/sys/unix"
)

// EnvKey is the environment variable used to identify if current process is
// a parent or child process. We expect this environment variable to be unique
// and not used (or set) by any other process. When it's value is non-empty, it
// contains the parent process pid.
var EnvKey = "RANGEBOT_DAEMONIZE"

// CheckFunc verifies that the background process has initialized
// successfully.
type CheckFunc func(ctx context.Context, child *os.Process) error

// IsChild returns true if current process is the background process.
func IsChild() bool {
	return ParentPID() > 0
}

// ParentPID returns the pid of the process that spawned the current
// background process or zero.
func ParentPID() int {
	pid, err := strconv.Atoi(os.Getenv(EnvKey))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// Daemonize respawns the current program in the background with the same
// command-line arguments, environment and working directory. It *must* be
// called during the program startup before performing any other significant
// logic, like acquiring locks or starting servers.
//
// Standard input and outputs in the background process are replaced with
// /dev/null.
//
// Parent process uses the check function to wait, up to the timeout, for the
// background process to initialize successfully or die unsuccessfully.
//
// When successful, Daemonize returns nil to the background process and exits
// the parent process (i.e., never returns). When unsuccessful, Daemonize
// returns non-nil error to the parent process and exits the background process
// (i.e., never returns).
func Daemonize(ctx context.Context, timeout time.Duration, check CheckFunc) error {
	if !IsChild() {
		if err := daemonizeParent(ctx, timeout, check); err != nil {
			return err
		}
		os.Exit(0)
	}
	if _, err := unix.Setsid(); err != nil {
		slog.Error("could not set session id for the background process", "err", err)
		os.Exit(1)
	}
	return nil
}

func daemonizeParent(ctx context.Context, timeout time.Duration, check CheckFunc) error {
	binary, err := exec.LookPath(os.Args[0])
	if err != nil {
		return fmt.Errorf("failed to lookup binary: %w", err)
	}
	binaryPath, err := filepath.Abs(binary)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for binary: %w", err)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("could not determine current directory: %w", err)
	}

	file, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", os.DevNull, err)
	}
	defer file.Close()

	// Receive signal when child-process dies.
	ctx, stop := signal.NotifyContext(ctx, unix.SIGCHLD, os.Interrupt)
	defer stop()

	attr := &os.ProcAttr{
		Dir:   cwd,
		Env:   append(os.Environ(), fmt.Sprintf("%s=%d", EnvKey, os.Getpid())),
		Files: []*os.File{file, file, file},
	}
	child, err := os.StartProcess(binaryPath, os.Args, attr)
	if err != nil {
		return fmt.Errorf("failed to start process: %w", err)
	}
	defer child.Release()

	if check == nil {
		return nil
	}
	retry := func() error {
		if err := check(ctx, child); err != nil {
			slog.DebugContext(ctx, "background process not yet initialized", "pid", child.Pid, "err", err)
			return err
		}
		return nil
	}
	if err := ctxutil.RetryTimeout(ctx, time.Second, timeout, retry); err != nil {
		return fmt.Errorf("could not initialize the background process %d: %w", child.Pid, err)
	}
	return nil
}
