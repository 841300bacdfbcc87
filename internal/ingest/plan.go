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

package ingest

import (
	"time"

	"github.com/cardinalhq/airharvest/internal/timechunk"
)

// Plan clips chunks to what still needs fetching. Comparisons are made on
// UTC calendar dates:
//   - chunks starting after cutoff are skipped, and ends past cutoff are clipped to it
//   - with a watermark, chunks ending on or before it are skipped and
//     starts before it are moved up to it
func Plan(chunks []timechunk.Chunk, cutoff time.Time, watermark time.Time, hasWatermark bool) []timechunk.Chunk {
	cutoffDate := timechunk.Date(cutoff)
	var wm time.Time
	if hasWatermark {
		wm = timechunk.Date(watermark)
	}

	planned := make([]timechunk.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if c.Start.After(cutoffDate) {
			continue
		}
		if c.End.After(cutoffDate) {
			c.End = cutoffDate
		}
		if hasWatermark {
			if !c.End.After(wm) {
				continue
			}
			if c.Start.Before(wm) {
				c.Start = wm
			}
		}
		if c.Start.After(c.End) {
			continue
		}
		planned = append(planned, c)
	}
	return planned
}
