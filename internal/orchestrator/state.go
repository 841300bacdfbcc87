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

import "sync/atomic"

// State is where the ingestion cycle currently is.
type State int32

const (
	StateIdle State = iota
	StateResolvingAirports
	StateFetching
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateResolvingAirports:
		return "resolving_airports"
	case StateFetching:
		return "fetching"
	case StateSleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}

type stateHolder struct {
	v atomic.Int32
}

func (h *stateHolder) load() State   { return State(h.v.Load()) }
func (h *stateHolder) store(s State) { h.v.Store(int32(s)) }
