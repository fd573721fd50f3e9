// Copyright (c) 2025 BVK Chaitanya

package monitor

import (
	"time"

	"github.com/bvk/rangebot/pricerange"
	"github.com/bvk/rangebot/worker"
	"github.com/shopspring/decimal"
)

type Phase int

const (
	Initializing Phase = iota
	Running
	Failed
)

func (p Phase) String() string {
	switch p {
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// State is a snapshot of the supervisor state. Range and Worker are always
// updated together, so Worker, when non-nil, is always started with Range.
// Worker is nil in Running phase only after a failed worker restart.
type State struct {
	Phase Phase

	Range *pricerange.Range

	Worker *worker.Handle

	// LastPrice is the last valid price observed and LastCheck is the time of
	// the last price check attempt.
	LastPrice decimal.Decimal
	LastCheck time.Time

	// Restarts counts breach driven worker restarts.
	Restarts int
}

// Restart describes a breach driven worker restart.
type Restart struct {
	Time time.Time

	Symbol string
	Price  decimal.Decimal

	Old *pricerange.Range
	New *pricerange.Range

	WorkerID string
}
