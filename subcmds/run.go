// Copyright (c) 2023 BVK Chaitanya

package subcmds

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/bvk/rangebot/api"
	"github.com/bvk/rangebot/backpack"
	"github.com/bvk/rangebot/ctxutil"
	"github.com/bvk/rangebot/daemonize"
	"github.com/bvk/rangebot/httputil"
	"github.com/bvk/rangebot/logdir"
	"github.com/bvk/rangebot/monitor"
	"github.com/bvk/rangebot/pushover"
	"github.com/bvk/rangebot/subcmds/cmdutil"
	"github.com/bvk/rangebot/telegram"
	"github.com/bvk/rangebot/worker"
	"github.com/nightlyone/lockfile"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/visvasity/cli"
	"github.com/visvasity/sglog"
	"github.com/visvasity/topic"
	"golang.org/x/sys/unix"
)

type Run struct {
	cmdutil.EnvFlags
	cmdutil.ServerFlags

	background        bool
	backgroundTimeout time.Duration

	restart         bool
	shutdownTimeout time.Duration

	noPprof bool

	dataDir      string
	logDir       string
	workerLogDir string
}

func (c *Run) Command() (string, *flag.FlagSet, cli.CmdFunc) {
	fset := flag.NewFlagSet("run", flag.ContinueOnError)
	c.EnvFlags.SetFlags(fset)
	c.ServerFlags.SetFlags(fset)
	fset.BoolVar(&c.background, "background", false, "runs the supervisor in background")
	fset.DurationVar(&c.backgroundTimeout, "background-timeout", time.Minute, "max timeout for the background process initialization")
	fset.BoolVar(&c.restart, "restart", false, "when true, kills any old instance")
	fset.DurationVar(&c.shutdownTimeout, "shutdown-timeout", 30*time.Second, "max timeout for shutdown when restarting")
	fset.BoolVar(&c.noPprof, "no-pprof", false, "when true net/http/pprof handler is not registered")
	fset.StringVar(&c.dataDir, "data-dir", "", "path to the data directory (default $HOME/.rangebot)")
	fset.StringVar(&c.logDir, "log-dir", "", "path to the log files directory (default data-dir/logs)")
	fset.StringVar(&c.workerLogDir, "worker-log-dir", "", "when non-empty, worker output is saved to log files in this directory")
	return "run", fset, cli.CmdFunc(c.run)
}

func (c *Run) Purpose() string {
	return "Runs the price range supervisor in foreground"
}

func (c *Run) Description() string {
	return `

Command "run" starts the price range supervisor. Supervisor fetches the last
traded price for the configured symbol from the Backpack exchange, computes a
price range of price-offset to price+offset and starts the worker process with
the lower and upper bounds as the last two arguments.

Price is checked again on every check interval. When the price moves out of
the active range, a new range is computed from the current price and the
worker is restarted with the new bounds. Previous worker receives the SIGTERM
signal.

CONFIGURATION

Configuration is read from the environment variables. Variables defined in
the .env file from the current directory are added to the environment unless
they are already set.

    SYMBOL               Trading symbol (required, ex: SOL_USDC)
    BACKPACK_API_KEY     Backpack API key (required)
    BACKPACK_API_SECRET  Backpack API secret (required)
    RANGE_OFFSET         Half-width of the price range (required)
    WORKER_COMMAND       Worker command (default: node dist/app.js)
    CHECK_INTERVAL       Price check interval (default: 5s)
    FETCH_TIMEOUT        Timeout for one price fetch (default: 10s)
    STOP_TIMEOUT         Time to wait for the previous worker to exit before
                         it is killed (default: 0, doesn't wait)
    PUSHOVER_APP_KEY     Pushover keys to send worker restart
    PUSHOVER_USER_KEY    notifications (optional)
    TELEGRAM_BOT_TOKEN   Telegram bot token and the user names allowed to
    TELEGRAM_OWNER       use the bot; authorized users receive worker
    TELEGRAM_OTHERS      restart notifications (optional)

`
}

func (c *Run) run(ctx context.Context, args []string) error {
	if len(args) != 0 {
		return fmt.Errorf("this command takes no arguments")
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, unix.SIGTERM)
	defer stop()

	cfg, err := c.EnvFlags.Config()
	if err != nil {
		return fmt.Errorf("could not load configuration: %w", err)
	}

	if len(c.dataDir) == 0 {
		c.dataDir = filepath.Join(os.Getenv("HOME"), ".rangebot")
	}
	if err := os.MkdirAll(c.dataDir, 0700); err != nil {
		return fmt.Errorf("could not create data directory %q: %w", c.dataDir, err)
	}
	dataDir, err := filepath.Abs(c.dataDir)
	if err != nil {
		return fmt.Errorf("could not determine data-dir %q absolute path: %w", c.dataDir, err)
	}

	if c.background {
		if c.ServerFlags.NoServer || c.ServerFlags.Port == 0 {
			return fmt.Errorf("background mode requires the status server with a fixed listen port")
		}
		addr, err := c.ServerFlags.TCPAddr()
		if err != nil {
			return err
		}
		if err := daemonize.Daemonize(ctx, c.backgroundTimeout, checkChild(addr)); err != nil {
			return err
		}
	}

	if len(c.logDir) == 0 {
		c.logDir = filepath.Join(dataDir, "logs")
	}
	if err := os.MkdirAll(c.logDir, 0700); err != nil {
		return fmt.Errorf("could not create log directory %q: %w", c.logDir, err)
	}
	backend := sglog.NewBackend(&sglog.Options{
		LogDirs:    []string{c.logDir},
		LogLinkDir: c.logDir,
	})
	defer backend.Close()
	slog.SetDefault(slog.New(backend.Handler()))

	slog.InfoContext(ctx, "using data directory", "data-dir", dataDir, "log-dir", c.logDir, "symbol", cfg.Symbol, "offset", cfg.Offset, "worker", cfg.WorkerCommand)

	unlock, err := c.lock(ctx, filepath.Join(dataDir, "rangebot.lock"))
	if err != nil {
		return err
	}
	defer unlock()

	client, err := backpack.New(&cfg.Credentials, nil /* opts */)
	if err != nil {
		return fmt.Errorf("could not create backpack client: %w", err)
	}
	defer client.Close()

	wopts := cfg.WorkerOptions()
	if len(c.workerLogDir) != 0 {
		if err := os.MkdirAll(c.workerLogDir, 0700); err != nil {
			return fmt.Errorf("could not create worker log directory %q: %w", c.workerLogDir, err)
		}
		w, err := logdir.New(c.workerLogDir, "worker", nil /* opts */)
		if err != nil {
			return fmt.Errorf("could not create worker log file: %w", err)
		}
		defer w.Close()

		wopts.Stdout, wopts.Stderr = w, w
		slog.InfoContext(ctx, "worker output is redirected", "file", w.Name())
	}

	supervisor, err := worker.New(cfg.WorkerCommand, wopts)
	if err != nil {
		return fmt.Errorf("could not create worker supervisor: %w", err)
	}
	defer supervisor.Close()

	m, err := monitor.New(cfg.Symbol, cfg.Offset, client, supervisor, cfg.MonitorOptions())
	if err != nil {
		return err
	}

	var cg ctxutil.CloseGroup
	defer cg.Close()

	var notifiers []notifier
	if cfg.Pushover != nil {
		pclient, err := pushover.New(cfg.Pushover, nil /* opts */)
		if err != nil {
			return fmt.Errorf("could not create pushover client: %w", err)
		}
		notifiers = append(notifiers, pclient)
	}

	if cfg.Telegram != nil {
		tclient, err := telegram.New(ctx, filepath.Join(dataDir, "telegram.json"), cfg.Telegram)
		if err != nil {
			return fmt.Errorf("could not create telegram client: %w", err)
		}
		defer tclient.Close()

		statusCmd := func(ctx context.Context, _ []string) error {
			return printStatus(cli.Stdout(ctx), getStatus(ctx, m))
		}
		if err := tclient.AddCommand(ctx, "status", "Prints supervisor status", statusCmd); err != nil {
			return fmt.Errorf("could not add telegram status command: %w", err)
		}
		slog.InfoContext(ctx, "started telegram bot", "bot", tclient.BotUserName(), "owner", tclient.OwnerUserName())
		notifiers = append(notifiers, tclient)
	}

	for _, n := range notifiers {
		receiver, err := topic.Subscribe(m.Restarts(), 0, false /* includeRecent */)
		if err != nil {
			return fmt.Errorf("could not subscribe to worker restarts: %w", err)
		}
		defer receiver.Close()

		cg.Go(func(ctx context.Context) {
			notifyRestarts(ctx, n, receiver)
		})
	}

	if !c.ServerFlags.NoServer {
		addr, err := c.ServerFlags.TCPAddr()
		if err != nil {
			return err
		}
		s, err := httputil.New(nil /* opts */)
		if err != nil {
			return err
		}
		defer s.Close()

		tcpServer, err := s.StartTCP(ctx, addr)
		if err != nil {
			return fmt.Errorf("could not start http server on %s: %w", addr, err)
		}
		defer s.Stop(tcpServer)

		if !c.noPprof {
			s.AddHandler("/debug/pprof/heap", pprof.Handler("heap"))
			s.AddHandler("/debug/pprof/goroutine", pprof.Handler("goroutine"))
			s.AddHandler("/debug/pprof/allocs", pprof.Handler("allocs"))
		}
		s.AddHandler(api.StatusPath, statusHandler(m))
		s.AddHandler(api.MetricsPath, promhttp.Handler())
		s.AddHandler(api.PIDPath, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			io.WriteString(w, strconv.Itoa(os.Getpid()))
		}))
		slog.InfoContext(ctx, "started status server", "addr", addr)
	}

	if err := m.Initialize(ctx); err != nil {
		return err
	}

	if err := m.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	slog.InfoContext(ctx, "supervisor is shutting down", "cause", context.Cause(ctx))
	return nil
}

// checkChild returns a function that verifies the background supervisor is
// initialized. Health checker needs to verify that responding http server is
// really our child and not an older instance.
func checkChild(addr *net.TCPAddr) daemonize.CheckFunc {
	return func(ctx context.Context, child *os.Process) error {
		cf := &cmdutil.ClientFlags{Host: addr.IP.String(), HTTPTimeout: time.Second}
		cf.SetPort(addr.Port)
		status, err := cmdutil.Get[api.StatusResponse](ctx, cf, api.StatusPath)
		if err != nil {
			return err
		}
		if status.PID != child.Pid {
			return fmt.Errorf("is another instance already running? pid mismatch: want %d got %d", child.Pid, status.PID)
		}
		if status.Phase != monitor.Running.String() {
			return fmt.Errorf("background supervisor is in %s phase", status.Phase)
		}
		return nil
	}
}

// lock acquires the single instance lock file. Previous instance is
// interrupted and killed if necessary when restart flag is set.
func (c *Run) lock(ctx context.Context, lockPath string) (func(), error) {
	flock, err := lockfile.New(lockPath)
	if err != nil {
		return nil, fmt.Errorf("could not create lock file %q: %w", lockPath, err)
	}
	if err := flock.TryLock(); err != nil {
		if !c.restart {
			return nil, fmt.Errorf("could not get lock on file %q (is another instance running?): %w", lockPath, err)
		}
		owner, err := flock.GetOwner()
		if err != nil {
			return nil, fmt.Errorf("could not get current owner of the lock file: %w", err)
		}
		if err := owner.Signal(os.Interrupt); err == nil {
			slog.InfoContext(ctx, "waiting for the previous instance to shutdown", "pid", owner.Pid)
			if err := ctxutil.RetryTimeout(ctx, time.Second, c.shutdownTimeout, flock.TryLock); err != nil {
				if err := owner.Signal(os.Kill); err != nil && !errors.Is(err, os.ErrProcessDone) {
					return nil, fmt.Errorf("could not kill current owner of the lock file: %w", err)
				}
				ctxutil.Sleep(ctx, time.Millisecond)
			}
		}
		if err := flock.TryLock(); err != nil {
			return nil, fmt.Errorf("could not get lock on file %q after killing previous instance: %w", lockPath, err)
		}
	}
	unlock := func() {
		if err := flock.Unlock(); err != nil {
			slog.Warn("could not unlock the lock file (ignored)", "path", lockPath, "err", err)
		}
	}
	return unlock, nil
}

// notifier sends a text message to the user.
type notifier interface {
	SendMessage(ctx context.Context, at time.Time, msg string) error
}

func notifyRestarts(ctx context.Context, n notifier, receiver *topic.Receiver[*monitor.Restart]) {
	restartCh, err := topic.ReceiveCh(receiver)
	if err != nil {
		slog.ErrorContext(ctx, "could not receive worker restart updates", "err", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case r, ok := <-restartCh:
			if !ok {
				return
			}
			msg := fmt.Sprintf("%s price %s moved out of range %s; worker %s is restarted with range %s", r.Symbol, r.Price.String(), r.Old, r.WorkerID, r.New)
			if err := n.SendMessage(ctx, r.Time, msg); err != nil {
				slog.WarnContext(ctx, "could not send restart notification (ignored)", "symbol", r.Symbol, "err", err)
			}
		}
	}
}

func statusHandler(m *monitor.Monitor) http.Handler {
	return httputil.JSONHandler(func(ctx context.Context) (*api.StatusResponse, error) {
		return getStatus(ctx, m), nil
	})
}

func getStatus(ctx context.Context, m *monitor.Monitor) *api.StatusResponse {
	s := m.State()
	resp := &api.StatusResponse{
		PID:       os.Getpid(),
		Symbol:    m.Symbol(),
		Phase:     s.Phase.String(),
		Offset:    m.Offset(),
		LastPrice: s.LastPrice,
		LastCheck: s.LastCheck,
		Restarts:  s.Restarts,
	}
	if s.Range != nil {
		resp.Lower, resp.Upper = s.Range.Lower, s.Range.Upper
	}
	if h := s.Worker; h != nil {
		ws := &api.WorkerStatus{
			ID:        h.ID(),
			PID:       h.PID(),
			Args:      h.Args(),
			StartTime: h.StartTime(),
		}
		if stats, err := h.Stats(ctx); err != nil {
			ws.StatsError = err.Error()
		} else {
			ws.Running, ws.RSS, ws.CPUPercent = stats.Running, stats.RSS, stats.CPUPercent
		}
		resp.Worker = ws
	}
	return resp
}
