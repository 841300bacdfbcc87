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

package idgen

import (
	"encoding/base32"
	"encoding/binary"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/sony/sonyflake"
)

// FlakeEpoch is the zero point of every flake ID this process hands out.
var FlakeEpoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

var lowerBase32 = base32.NewEncoding(strings.ToLower("ABCDEFGHIJKLMNOPQRSTUVWXYZ234567")).WithPadding(base32.NoPadding)

// FlakeGenerator produces 63-bit IDs that increase roughly in time order.
type FlakeGenerator struct {
	sf *sonyflake.Sonyflake
}

// NewFlakeGenerator starts a sonyflake sequence at epoch. The machine ID is
// derived from the host's private IP.
func NewFlakeGenerator(epoch time.Time) (*FlakeGenerator, error) {
	sf, err := sonyflake.New(sonyflake.Settings{StartTime: epoch})
	if err != nil {
		return nil, fmt.Errorf("sonyflake: %w", err)
	}
	return &FlakeGenerator{sf: sf}, nil
}

// NextID returns the next flake. If the sequence is exhausted or the clock
// ran past its range, a random positive value is returned instead.
func (g *FlakeGenerator) NextID() int64 {
	if g != nil && g.sf != nil {
		if v, err := g.sf.NextID(); err == nil {
			return int64(v)
		}
	}
	return rand.Int64N(1 << 62)
}

// NextBase32ID renders NextID as lower-case unpadded base32.
func (g *FlakeGenerator) NextBase32ID() string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(g.NextID()))
	return lowerBase32.EncodeToString(b[:])
}

// Flake returns the process-wide generator. It falls back to random IDs
// when no private address is available for the machine ID.
var Flake = sync.OnceValue(func() *FlakeGenerator {
	g, err := NewFlakeGenerator(FlakeEpoch)
	if err != nil {
		return &FlakeGenerator{}
	}
	return g
})

// InstanceID is a fresh flake used to tell processes apart in logs and
// heartbeats.
func InstanceID() int64 {
	return Flake().NextID()
}

// NextBase32ID returns a fresh base32 ID from the process-wide generator.
func NextBase32ID() string {
	return Flake().NextBase32ID()
}
