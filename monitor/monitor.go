// Copyright (c) 2025 BVK Chaitanya

// Package monitor implements the supervisor control loop. Monitor polls the
// last traded price of a symbol on a fixed interval and restarts the worker
// with a recomputed price range when the price moves out of the active range.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bvk/rangebot/ctxutil"
	"github.com/bvk/rangebot/pricerange"
	"github.com/bvk/rangebot/worker"
	"github.com/shopspring/decimal"
	"github.com/visvasity/topic"
)

// PriceSource fetches the last traded price for a symbol. Returned price is
// the raw value from the price source, which could be empty or invalid.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (string, error)
}

// Launcher replaces the current worker with a new worker for the range.
type Launcher interface {
	Start(ctx context.Context, r *pricerange.Range) (*worker.Handle, error)
}

type Monitor struct {
	opts Options

	symbol string
	offset decimal.Decimal

	source   PriceSource
	launcher Launcher

	restarts *topic.Topic[*Restart]

	// mu protects the state from concurrent readers. State is only modified by
	// the Initialize and Step methods, which must not be called concurrently.
	mu    sync.RWMutex
	state State
}

func New(symbol string, offset decimal.Decimal, source PriceSource, launcher Launcher, opts *Options) (*Monitor, error) {
	if len(symbol) == 0 {
		return nil, fmt.Errorf("symbol cannot be empty: %w", os.ErrInvalid)
	}
	if !offset.IsPositive() {
		return nil, fmt.Errorf("range offset %s must be positive: %w", offset, os.ErrInvalid)
	}
	if source == nil || launcher == nil {
		return nil, fmt.Errorf("price source and worker launcher are required: %w", os.ErrInvalid)
	}
	if opts == nil {
		opts = new(Options)
	}
	opts.setDefaults()
	if err := opts.Check(); err != nil {
		return nil, err
	}
	m := &Monitor{
		opts:     *opts,
		symbol:   symbol,
		offset:   offset,
		source:   source,
		launcher: launcher,
		restarts: topic.New[*Restart](),
		state:    State{Phase: Initializing},
	}
	return m, nil
}

func (m *Monitor) Symbol() string {
	return m.symbol
}

func (m *Monitor) Offset() decimal.Decimal {
	return m.offset
}

// State returns a snapshot of the current state.
func (m *Monitor) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.state
}

// Restarts returns the topic that receives an update for every worker
// restart due to a price range breach.
func (m *Monitor) Restarts() *topic.Topic[*Restart] {
	return m.restarts
}

func (m *Monitor) fetch(ctx context.Context) (string, error) {
	fctx, fcancel := context.WithTimeout(ctx, m.opts.FetchTimeout)
	defer fcancel()

	price, err := m.source.LastPrice(fctx, m.symbol)

	m.mu.Lock()
	m.state.LastCheck = time.Now()
	m.mu.Unlock()

	if err != nil {
		priceChecks.WithLabelValues(m.symbol, resultFetchError).Inc()
		return "", fmt.Errorf("could not fetch %s price: %w", m.symbol, err)
	}
	return price, nil
}

// Initialize fetches the current price, computes the initial range and
// starts the first worker. Monitor moves to the Running phase on success and
// to the Failed phase on any error.
func (m *Monitor) Initialize(ctx context.Context) (status error) {
	if phase := m.State().Phase; phase != Initializing {
		return fmt.Errorf("monitor cannot be initialized in %s phase: %w", phase, os.ErrInvalid)
	}
	defer func() {
		if status != nil {
			m.mu.Lock()
			m.state.Phase = Failed
			m.mu.Unlock()
			slog.ErrorContext(ctx, "could not initialize the supervisor", "symbol", m.symbol, "err", status)
		}
	}()

	raw, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	price, err := pricerange.ParsePrice(raw)
	if err != nil {
		priceChecks.WithLabelValues(m.symbol, resultInvalidPrice).Inc()
		return fmt.Errorf("invalid %s price %q: %w", m.symbol, raw, err)
	}
	r, err := pricerange.New(price, m.offset)
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "computed initial price range", "symbol", m.symbol, "price", price.String(), "lower", r.Lower.String(), "upper", r.Upper.String())

	h, err := m.launcher.Start(ctx, r)
	if err != nil {
		return fmt.Errorf("could not start initial worker: %w", err)
	}

	m.mu.Lock()
	m.state.Phase = Running
	m.state.Range = r
	m.state.Worker = h
	m.state.LastPrice = price
	m.mu.Unlock()

	priceChecks.WithLabelValues(m.symbol, resultOK).Inc()
	m.updateGauges(price, r)
	return nil
}

// Run performs the price checks on a fixed interval till the input context is
// canceled. Failures in a price check are logged and do not stop the loop.
// Monitor must be initialized before.
func (m *Monitor) Run(ctx context.Context) error {
	if phase := m.State().Phase; phase != Running {
		return fmt.Errorf("monitor cannot run in %s phase: %w", phase, os.ErrInvalid)
	}

	for ctx.Err() == nil {
		if err := m.Step(ctx); err != nil && ctx.Err() == nil {
			slog.ErrorContext(ctx, "price check has failed (skipped)", "symbol", m.symbol, "err", err)
		}
		ctxutil.Sleep(ctx, m.opts.Interval)
	}
	return context.Cause(ctx)
}

// Step performs one price check. When the price is out of the active range, a
// new range is computed from the price and the worker is restarted with it.
//
// Range is left untouched on all errors. When a restart fails, Worker is
// cleared and the next Step starts a worker for the unchanged range before
// checking the price.
func (m *Monitor) Step(ctx context.Context) (status error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "CAUGHT PANIC", "panic", r)
			slog.ErrorContext(ctx, string(debug.Stack()))
			status = fmt.Errorf("price check panicked: %v", r)
		}
	}()

	current := m.State()
	if current.Phase != Running {
		return fmt.Errorf("monitor cannot check prices in %s phase: %w", current.Phase, os.ErrInvalid)
	}

	if current.Worker == nil {
		h, err := m.relaunch(ctx, current.Range)
		if err != nil {
			return err
		}
		current.Worker = h
	}

	raw, err := m.fetch(ctx)
	if err != nil {
		return err
	}
	price, err := pricerange.ParsePrice(raw)
	if err != nil {
		priceChecks.WithLabelValues(m.symbol, resultInvalidPrice).Inc()
		return fmt.Errorf("invalid %s price %q received: %w", m.symbol, raw, err)
	}
	slog.InfoContext(ctx, "current price", "symbol", m.symbol, "price", price.String(), "range", current.Range)

	if current.Range.Contains(price) {
		m.mu.Lock()
		m.state.LastPrice = price
		m.mu.Unlock()

		priceChecks.WithLabelValues(m.symbol, resultOK).Inc()
		lastPrice.WithLabelValues(m.symbol).Set(price.InexactFloat64())
		return nil
	}

	priceChecks.WithLabelValues(m.symbol, resultBreach).Inc()
	slog.WarnContext(ctx, "price is out of range; recomputing the range and restarting the worker", "symbol", m.symbol, "price", price.String(), "lower", current.Range.Lower.String(), "upper", current.Range.Upper.String())

	next, err := pricerange.New(price, m.offset)
	if err != nil {
		return err
	}
	h, err := m.launcher.Start(ctx, next)
	if err != nil {
		// Previous worker may already be terminated by the launcher, so it is
		// not tracked anymore. Next check relaunches a worker for the range.
		m.mu.Lock()
		m.state.Worker = nil
		m.mu.Unlock()

		priceChecks.WithLabelValues(m.symbol, resultStartError).Inc()
		return fmt.Errorf("could not restart worker for range %s: %w", next, err)
	}

	m.mu.Lock()
	m.state.Range = next
	m.state.Worker = h
	m.state.LastPrice = price
	m.state.Restarts++
	m.mu.Unlock()

	workerRestarts.WithLabelValues(m.symbol).Inc()
	m.updateGauges(price, next)

	slog.InfoContext(ctx, "restarted worker with new price range", "symbol", m.symbol, "price", price.String(), "lower", next.Lower.String(), "upper", next.Upper.String(), "worker", h.ID())
	m.restarts.Send(&Restart{
		Time:     time.Now(),
		Symbol:   m.symbol,
		Price:    price,
		Old:      current.Range,
		New:      next,
		WorkerID: h.ID(),
	})
	return nil
}

// relaunch starts a worker for the active range after a failed restart left
// the supervisor without a worker.
func (m *Monitor) relaunch(ctx context.Context, r *pricerange.Range) (*worker.Handle, error) {
	slog.WarnContext(ctx, "no worker is running; starting a worker for the active range", "symbol", m.symbol, "lower", r.Lower.String(), "upper", r.Upper.String())

	h, err := m.launcher.Start(ctx, r)
	if err != nil {
		priceChecks.WithLabelValues(m.symbol, resultStartError).Inc()
		return nil, fmt.Errorf("could not relaunch worker for range %s: %w", r, err)
	}

	m.mu.Lock()
	m.state.Worker = h
	m.mu.Unlock()

	slog.InfoContext(ctx, "relaunched worker for the active range", "symbol", m.symbol, "worker", h.ID())
	return h, nil
}

func (m *Monitor) updateGauges(price decimal.Decimal, r *pricerange.Range) {
	lastPrice.WithLabelValues(m.symbol).Set(price.InexactFloat64())
	rangeBounds.WithLabelValues(m.symbol, "lower").Set(r.Lower.InexactFloat64())
	rangeBounds.WithLabelValues(m.symbol, "upper").Set(r.Upper.InexactFloat64())
}
