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

package flightdb

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const insertBatchSignal = `-- name: InsertBatchSignal :exec
INSERT INTO batch_signals (id, cycle_id, batch_started_at)
VALUES ($1, $2, $3)
`

type InsertBatchSignalParams struct {
	ID             uuid.UUID `json:"id"`
	CycleID        string    `json:"cycle_id"`
	BatchStartedAt time.Time `json:"batch_started_at"`
}

func (q *Queries) InsertBatchSignal(ctx context.Context, arg InsertBatchSignalParams) error {
	_, err := q.db.Exec(ctx, insertBatchSignal, arg.ID, arg.CycleID, arg.BatchStartedAt)
	return err
}

const countPendingBatchSignals = `-- name: CountPendingBatchSignals :one
SELECT count(*) FROM batch_signals WHERE consumed_at IS NULL
`

func (q *Queries) CountPendingBatchSignals(ctx context.Context) (int64, error) {
	row := q.db.QueryRow(ctx, countPendingBatchSignals)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const consumeBatchSignals = `-- name: ConsumeBatchSignals :execrows
UPDATE batch_signals SET consumed_at = now() WHERE consumed_at IS NULL
`

// ConsumeBatchSignals marks every pending signal consumed. This is what the
// downstream batch processor does when it has caught up.
func (q *Queries) ConsumeBatchSignals(ctx context.Context) (int64, error) {
	result, err := q.db.Exec(ctx, consumeBatchSignals)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected(), nil
}

const listPendingBatchSignals = `-- name: ListPendingBatchSignals :many
SELECT id, cycle_id, batch_started_at, created_at, consumed_at
FROM batch_signals
WHERE consumed_at IS NULL
ORDER BY created_at
`

func (q *Queries) ListPendingBatchSignals(ctx context.Context) ([]BatchSignal, error) {
	rows, err := q.db.Query(ctx, listPendingBatchSignals)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BatchSignal
	for rows.Next() {
		var i BatchSignal
		if err := rows.Scan(&i.ID, &i.CycleID, &i.BatchStartedAt, &i.CreatedAt, &i.ConsumedAt); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	return items, rows.Err()
}
