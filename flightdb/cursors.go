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
	"errors"

	"github.com/jackc/pgx/v5"
)

const getIngestCursor = `-- name: GetIngestCursor :one
SELECT name, position, cycle_id, updated_at
FROM ingest_cursors
WHERE name = $1
`

// GetIngestCursor returns the named cursor. A cursor that was never saved
// comes back at position 0 with no error.
func (q *Queries) GetIngestCursor(ctx context.Context, name string) (IngestCursor, error) {
	row := q.db.QueryRow(ctx, getIngestCursor, name)
	var i IngestCursor
	err := row.Scan(&i.Name, &i.Position, &i.CycleID, &i.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return IngestCursor{Name: name}, nil
	}
	return i, err
}

const saveIngestCursor = `-- name: SaveIngestCursor :exec
INSERT INTO ingest_cursors (name, position, cycle_id, updated_at)
VALUES ($1, $2, $3, now())
ON CONFLICT (name) DO UPDATE SET
  position = EXCLUDED.position,
  cycle_id = EXCLUDED.cycle_id,
  updated_at = now()
`

type SaveIngestCursorParams struct {
	Name     string `json:"name"`
	Position int32  `json:"position"`
	CycleID  string `json:"cycle_id"`
}

func (q *Queries) SaveIngestCursor(ctx context.Context, arg SaveIngestCursorParams) error {
	_, err := q.db.Exec(ctx, saveIngestCursor, arg.Name, arg.Position, arg.CycleID)
	return err
}
