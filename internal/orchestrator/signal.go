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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/cardinalhq/airharvest/flightdb"
)

// DefaultSignalPollInterval is how often WaitClear re-checks the signal.
const DefaultSignalPollInterval = 10 * time.Second

// Signal is the batch-complete handshake with the downstream processor.
// The orchestrator raises it after each batch of airports; the downstream
// side acknowledges it once it has processed that batch.
type Signal interface {
	Pending(ctx context.Context) (bool, error)
	Raise(ctx context.Context, cycleID string, batchStartedAt time.Time) error
	Acknowledge(ctx context.Context) error
}

// WaitClear blocks until s has no pending signal.
func WaitClear(ctx context.Context, s Signal, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultSignalPollInterval
	}
	for {
		pending, err := s.Pending(ctx)
		if err != nil {
			return fmt.Errorf("check batch signal: %w", err)
		}
		if !pending {
			return nil
		}
		timer := time.NewTimer(poll)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

type SignalQueries interface {
	InsertBatchSignal(ctx context.Context, arg flightdb.InsertBatchSignalParams) error
	CountPendingBatchSignals(ctx context.Context) (int64, error)
	ConsumeBatchSignals(ctx context.Context) (int64, error)
}

// StoreSignal keeps signals as rows in flightdb.batch_signals.
type StoreSignal struct {
	q SignalQueries
}

func NewStoreSignal(q SignalQueries) *StoreSignal {
	return &StoreSignal{q: q}
}

func (s *StoreSignal) Pending(ctx context.Context) (bool, error) {
	n, err := s.q.CountPendingBatchSignals(ctx)
	return n > 0, err
}

func (s *StoreSignal) Raise(ctx context.Context, cycleID string, batchStartedAt time.Time) error {
	return s.q.InsertBatchSignal(ctx, flightdb.InsertBatchSignalParams{
		ID:             uuid.New(),
		CycleID:        cycleID,
		BatchStartedAt: batchStartedAt.UTC(),
	})
}

func (s *StoreSignal) Acknowledge(ctx context.Context) error {
	_, err := s.q.ConsumeBatchSignals(ctx)
	return err
}

// FileSignal is a sentinel file holding the batch start time. The
// downstream process removes it when done.
type FileSignal struct {
	path string
}

func NewFileSignal(path string) *FileSignal {
	return &FileSignal{path: path}
}

func (s *FileSignal) Path() string { return s.path }

func (s *FileSignal) Pending(context.Context) (bool, error) {
	_, err := os.Stat(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

// Raise writes the file through a rename so readers never see it half written.
func (s *FileSignal) Raise(_ context.Context, _ string, batchStartedAt time.Time) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create signal directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("create signal file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(batchStartedAt.UTC().Format(time.RFC3339Nano)); err != nil {
		tmp.Close()
		return fmt.Errorf("write signal file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close signal file: %w", err)
	}
	return os.Rename(tmp.Name(), s.path)
}

func (s *FileSignal) Acknowledge(context.Context) error {
	err := os.Remove(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// StartedAt reads the batch start time out of a raised signal file.
func (s *FileSignal) StartedAt() (time.Time, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339Nano, strings.TrimSpace(string(data)))
}
