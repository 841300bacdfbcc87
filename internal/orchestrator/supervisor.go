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

package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"
)

// TaskResult is the outcome of one supervised task.
type TaskResult struct {
	Name     string
	Started  time.Time
	Finished time.Time
	Err      error
}

// Supervisor runs background tasks and keeps their outcome. At most limit
// tasks run at once; Go refuses new ones beyond that.
type Supervisor struct {
	group  errgroup.Group
	logger *slog.Logger

	mu      sync.Mutex
	pending []TaskResult
	running map[string]time.Time
}

func NewSupervisor(limit int) *Supervisor {
	s := &Supervisor{
		logger:  slog.Default().With(slog.String("component", "supervisor")),
		running: make(map[string]time.Time),
	}
	if limit > 0 {
		s.group.SetLimit(limit)
	}
	return s
}

// Go starts fn unless the supervisor is already at its limit. It reports
// whether the task was started.
func (s *Supervisor) Go(ctx context.Context, name string, fn func(ctx context.Context) error) bool {
	started := time.Now()
	s.mu.Lock()
	if _, busy := s.running[name]; busy {
		s.mu.Unlock()
		s.logger.Warn("Background task already running", slog.String("task", name))
		return false
	}
	s.running[name] = started
	s.mu.Unlock()

	ok := s.group.TryGo(func() error {
		defer func() {
			if r := recover(); r != nil {
				s.finish(name, started, fmt.Errorf("panic: %v", r))
			}
		}()
		s.finish(name, started, fn(ctx))
		return nil
	})
	if !ok {
		s.mu.Lock()
		delete(s.running, name)
		s.mu.Unlock()
		s.logger.Warn("Background task not started, supervisor busy", slog.String("task", name))
		return false
	}
	s.logger.Info("Background task started", slog.String("task", name))
	return true
}

func (s *Supervisor) finish(name string, started time.Time, err error) {
	res := TaskResult{Name: name, Started: started, Finished: time.Now(), Err: err}

	s.mu.Lock()
	delete(s.running, name)
	s.pending = append(s.pending, res)
	s.mu.Unlock()
	taskCounter.Add(context.Background(), 1, taskAttrs(name, err))

	if err != nil {
		s.logger.Error("Background task failed",
			slog.String("task", name),
			slog.Duration("elapsed", res.Finished.Sub(started)),
			slog.Any("error", err))
		return
	}
	s.logger.Info("Background task completed",
		slog.String("task", name),
		slog.Duration("elapsed", res.Finished.Sub(started)))
}

// Running lists the names of tasks still in flight.
func (s *Supervisor) Running() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.running))
	for name := range s.running {
		names = append(names, name)
	}
	return names
}

// Wait blocks until every started task has finished, then returns and
// clears their results. The error aggregates every failed task.
func (s *Supervisor) Wait() ([]TaskResult, error) {
	_ = s.group.Wait()

	s.mu.Lock()
	results := s.pending
	s.pending = nil
	s.mu.Unlock()

	var merr *multierror.Error
	for _, r := range results {
		if r.Err != nil {
			merr = multierror.Append(merr, fmt.Errorf("%s: %w", r.Name, r.Err))
		}
	}
	return results, merr.ErrorOrNil()
}
