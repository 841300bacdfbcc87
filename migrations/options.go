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

// Package migrations holds the options shared by the schema version checks.
package migrations

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// CheckMode selects what happens when the schema is behind the binary.
type CheckMode int

const (
	// CheckModeWait polls until the schema catches up or the timeout expires.
	CheckModeWait CheckMode = iota
	// CheckModeWarn logs the mismatch and carries on.
	CheckModeWarn
	// CheckModeSkip does not look at the schema at all.
	CheckModeSkip
)

var checkModeNames = map[CheckMode]string{
	CheckModeWait: "wait",
	CheckModeWarn: "warn",
	CheckModeSkip: "skip",
}

func (m CheckMode) String() string {
	if name, ok := checkModeNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseCheckMode maps a config string to a CheckMode. Unknown values wait.
func ParseCheckMode(s string) CheckMode {
	s = strings.ToLower(strings.TrimSpace(s))
	for mode, name := range checkModeNames {
		if name == s {
			return mode
		}
	}
	return CheckModeWait
}

// CheckOptions tune a schema version check.
type CheckOptions struct {
	Mode          CheckMode
	Timeout       time.Duration
	RetryInterval time.Duration
	AllowDirty    bool
}

type CheckOption func(*CheckOptions)

func WithCheckMode(mode CheckMode) CheckOption {
	return func(o *CheckOptions) { o.Mode = mode }
}

func WithTimeout(timeout time.Duration) CheckOption {
	return func(o *CheckOptions) { o.Timeout = timeout }
}

func WithRetryInterval(interval time.Duration) CheckOption {
	return func(o *CheckOptions) { o.RetryInterval = interval }
}

// WithAllowDirty lets a check pass while the last migration is marked dirty.
func WithAllowDirty(allow bool) CheckOption {
	return func(o *CheckOptions) { o.AllowDirty = allow }
}

// DefaultCheckOptions waits up to two minutes, polling every five seconds.
func DefaultCheckOptions() CheckOptions {
	return CheckOptions{
		Mode:          CheckModeWait,
		Timeout:       2 * time.Minute,
		RetryInterval: 5 * time.Second,
	}
}

// Resolve builds CheckOptions from the defaults, the given options and
// finally the MIGRATION_CHECK_* environment overrides.
func Resolve(options ...CheckOption) CheckOptions {
	opts := DefaultCheckOptions()
	for _, apply := range options {
		apply(&opts)
	}
	for _, apply := range envOptions() {
		apply(&opts)
	}
	return opts
}

// envOptions turns the set and parseable MIGRATION_CHECK_* variables into options.
func envOptions() []CheckOption {
	var out []CheckOption
	if v := os.Getenv("MIGRATION_CHECK_MODE"); v != "" {
		out = append(out, WithCheckMode(ParseCheckMode(v)))
	}
	if d, ok := envDuration("MIGRATION_CHECK_TIMEOUT"); ok {
		out = append(out, WithTimeout(d))
	}
	if d, ok := envDuration("MIGRATION_CHECK_RETRY_INTERVAL"); ok {
		out = append(out, WithRetryInterval(d))
	}
	if v := os.Getenv("MIGRATION_CHECK_ALLOW_DIRTY"); v != "" {
		dirty, _ := strconv.ParseBool(v)
		out = append(out, WithAllowDirty(dirty))
	}
	return out
}

func envDuration(name string) (time.Duration, bool) {
	d, err := time.ParseDuration(os.Getenv(name))
	return d, err == nil
}
