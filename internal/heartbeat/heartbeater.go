// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package heartbeat runs a callback on an interval while slow work is in flight.
package heartbeat

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// HeartbeatFunc is called once per beat. Errors are logged and counted.
type HeartbeatFunc func(ctx context.Context) error

type Heartbeater struct {
	beat     HeartbeatFunc
	interval time.Duration
	logger   *slog.Logger

	beats    atomic.Int64
	failures atomic.Int64
}

func New(beat HeartbeatFunc, interval time.Duration, logger *slog.Logger) *Heartbeater {
	if logger == nil {
		logger = slog.Default()
	}
	return &Heartbeater{
		beat:     beat,
		interval: interval,
		logger:   logger.With(slog.String("component", "heartbeater")),
	}
}

// Start beats once immediately and then every interval until stop is called
// or ctx ends. stop blocks until the loop has exited and may be called more
// than once.
func (h *Heartbeater) Start(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.loop(ctx)
	}()
	return sync.OnceFunc(func() {
		cancel()
		<-done
	})
}

// Beats counts every attempted beat, failed ones included.
func (h *Heartbeater) Beats() int64 { return h.beats.Load() }

func (h *Heartbeater) Failures() int64 { return h.failures.Load() }

func (h *Heartbeater) loop(ctx context.Context) {
	h.logger.Debug("Heartbeat loop started", slog.Duration("interval", h.interval))
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		h.once(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (h *Heartbeater) once(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	h.beats.Add(1)
	err := h.beat(ctx)
	if err == nil || ctx.Err() != nil {
		return
	}
	h.failures.Add(1)
	h.logger.Error("Heartbeat failed, continuing", slog.Any("error", err))
}

// During runs work while beat is called every interval, and returns work's
// error once both have finished.
func During(ctx context.Context, interval time.Duration, beat HeartbeatFunc, logger *slog.Logger, work func(ctx context.Context) error) error {
	stop := New(beat, interval, logger).Start(ctx)
	defer stop()
	return work(ctx)
}
