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

// Package timechunk splits a lookback window into ordered date ranges.
package timechunk

import (
	"errors"
	"fmt"
	"time"
)

const (
	// DefaultStepDays is the sub-window used in day mode when Window.StepDays is unset.
	DefaultStepDays = 14

	dateLayout = "2006-01-02"
)

var ErrInvalidWindow = errors.New("window must set exactly one of days or years")

// Window describes how far back to look and how to slice it.
type Window struct {
	Days     int `mapstructure:"days"`
	Years    int `mapstructure:"years"`
	StepDays int `mapstructure:"stepdays"`
}

func (w Window) String() string {
	if w.Years > 0 {
		return fmt.Sprintf("%dy/12mo", w.Years)
	}
	return fmt.Sprintf("%dd/%dd", w.Days, w.step())
}

func (w Window) step() int {
	if w.StepDays > 0 {
		return w.StepDays
	}
	return DefaultStepDays
}

func (w Window) validate() error {
	if (w.Days > 0) == (w.Years > 0) {
		return ErrInvalidWindow
	}
	if w.Days < 0 || w.Years < 0 || w.StepDays < 0 {
		return ErrInvalidWindow
	}
	return nil
}

// Chunk is a date range. Start and End are UTC midnights.
type Chunk struct {
	Start time.Time
	End   time.Time
}

func (c Chunk) StartDate() string { return c.Start.Format(dateLayout) }
func (c Chunk) EndDate() string   { return c.End.Format(dateLayout) }

func (c Chunk) String() string {
	return c.StartDate() + "→" + c.EndDate()
}

// Date truncates t to its UTC calendar date.
func Date(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD string as a UTC midnight.
func ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(dateLayout, s, time.UTC)
}

// Generate returns the chunks covering [now - window, now]. The result
// depends only on now and w, so calling it again is always safe.
func Generate(now time.Time, w Window) ([]Chunk, error) {
	if err := w.validate(); err != nil {
		return nil, err
	}

	now = now.UTC()
	var start time.Time
	var advance func(time.Time) time.Time
	if w.Years > 0 {
		start = now.AddDate(-w.Years, 0, 0)
		advance = func(t time.Time) time.Time { return t.AddDate(0, 12, 0) }
	} else {
		step := w.step()
		start = now.AddDate(0, 0, -w.Days)
		advance = func(t time.Time) time.Time { return t.AddDate(0, 0, step) }
	}

	var chunks []Chunk
	for current := start; current.Before(now); {
		next := advance(current)
		end := next
		if end.After(now) {
			end = now
		}
		chunks = append(chunks, Chunk{Start: Date(current), End: Date(end)})
		current = next
	}
	return chunks, nil
}
