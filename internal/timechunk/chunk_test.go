// Copyright (C) 2025 CardinalHQ, Inc
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

package timechunk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	require.NoError(t, err)
	return d
}

func TestGenerate_FourteenDaysSingleChunk(t *testing.T) {
	now := time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC)

	chunks, err := Generate(now, Window{Days: 14})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "2024-03-01", chunks[0].StartDate())
	assert.Equal(t, "2024-03-15", chunks[0].EndDate())
}

func TestGenerate_LastChunkClampedToNow(t *testing.T) {
	now := time.Date(2024, 3, 15, 8, 0, 0, 0, time.UTC)

	chunks, err := Generate(now, Window{Days: 30, StepDays: 14})
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.Equal(t, "2024-02-14", chunks[0].StartDate())
	assert.Equal(t, "2024-02-28", chunks[0].EndDate())
	assert.Equal(t, "2024-02-28", chunks[1].StartDate())
	assert.Equal(t, "2024-03-13", chunks[1].EndDate())
	assert.Equal(t, "2024-03-13", chunks[2].StartDate())
	assert.Equal(t, "2024-03-15", chunks[2].EndDate(), "final chunk is shorter than the step and ends today")
}

func TestGenerate_YearMode(t *testing.T) {
	now := time.Date(2024, 3, 15, 0, 30, 0, 0, time.UTC)

	chunks, err := Generate(now, Window{Years: 2})
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, Chunk{Start: mustDate(t, "2022-03-15"), End: mustDate(t, "2023-03-15")}, chunks[0])
	assert.Equal(t, Chunk{Start: mustDate(t, "2023-03-15"), End: mustDate(t, "2024-03-15")}, chunks[1])
}

func TestGenerate_Properties(t *testing.T) {
	windows := []Window{
		{Days: 1},
		{Days: 14},
		{Days: 15},
		{Days: 360},
		{Days: 90, StepDays: 30},
		{Days: 7, StepDays: 30},
		{Years: 1},
		{Years: 3},
	}
	instants := []time.Time{
		time.Date(2024, 2, 29, 23, 59, 59, 0, time.UTC),
		time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC),
	}

	for _, w := range windows {
		for _, now := range instants {
			t.Run(w.String()+"@"+now.Format(time.RFC3339), func(t *testing.T) {
				chunks, err := Generate(now, w)
				require.NoError(t, err)
				require.NotEmpty(t, chunks)

				for i, c := range chunks {
					assert.True(t, c.Start.Before(c.End), "chunk %d must be non-empty: %s", i, c)
					assert.False(t, c.End.After(now), "chunk %d ends after now: %s", i, c)
					if i > 0 {
						assert.Equal(t, chunks[i-1].End, c.Start, "chunks must be contiguous")
						assert.False(t, c.End.Before(chunks[i-1].End), "ends must be non-decreasing")
					}
				}
				assert.Equal(t, Date(now), chunks[len(chunks)-1].End)
			})
		}
	}
}

func TestGenerate_Restartable(t *testing.T) {
	now := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	a, err := Generate(now, Window{Days: 100})
	require.NoError(t, err)
	b, err := Generate(now, Window{Days: 100})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestGenerate_InvalidWindow(t *testing.T) {
	now := time.Now()
	for _, w := range []Window{{}, {Days: 1, Years: 1}, {Days: -3}, {Days: 3, StepDays: -1}} {
		_, err := Generate(now, w)
		assert.ErrorIs(t, err, ErrInvalidWindow, "window %+v", w)
	}
}

func TestDate(t *testing.T) {
	loc := time.FixedZone("plus5", 5*3600)
	in := time.Date(2024, 3, 10, 2, 0, 0, 0, loc)
	assert.Equal(t, time.Date(2024, 3, 9, 0, 0, 0, 0, time.UTC), Date(in))
}
