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

package records

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrEmptyPayload = errors.New("empty payload")

// Payload is what arrives on a topic: either one record or an array of them.
// Producers always send arrays; a bare object is tolerated.
type Payload[T any] struct {
	single *T
	many   []T
}

func (p *Payload[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return ErrEmptyPayload
	}
	switch data[0] {
	case '[':
		var many []T
		if err := json.Unmarshal(data, &many); err != nil {
			return err
		}
		p.single, p.many = nil, many
		return nil
	case '{':
		var one T
		if err := json.Unmarshal(data, &one); err != nil {
			return err
		}
		p.single, p.many = &one, nil
		return nil
	default:
		return fmt.Errorf("payload must be a JSON object or array, got %q", data[0])
	}
}

// IsSingle reports whether the payload was a bare object.
func (p Payload[T]) IsSingle() bool { return p.single != nil }

// Records normalises the payload to a slice.
func (p Payload[T]) Records() []T {
	if p.single != nil {
		return []T{*p.single}
	}
	return p.many
}

// DecodePayload parses a topic message value into a slice of records.
func DecodePayload[T any](data []byte) ([]T, error) {
	var p Payload[T]
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return p.Records(), nil
}
