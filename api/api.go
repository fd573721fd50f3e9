// Copyright (c) 2023 BVK Chaitanya

// Package api defines the json types served by the supervisor status server.
package api

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusPath  = "/status"
	MetricsPath = "/metrics"
	PIDPath     = "/pid"
)

type WorkerStatus struct {
	ID  string
	PID int

	Args []string

	StartTime time.Time

	Running    bool
	RSS        uint64
	CPUPercent float64

	// StatsError is set when process stats could not be collected.
	StatsError string `json:",omitempty"`
}

type StatusResponse struct {
	// PID is the supervisor process id.
	PID int

	Symbol string
	Phase  string

	Offset decimal.Decimal

	Lower decimal.Decimal
	Upper decimal.Decimal

	LastPrice decimal.Decimal
	LastCheck time.Time

	Restarts int

	Worker *WorkerStatus `json:",omitempty"`
}
