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

package dbopen

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/cardinalhq/airharvest/migrations"
)

func TestOptionsResolveToCheckModes(t *testing.T) {
	tests := []struct {
		name string
		opts Options
		want migrations.CheckMode
	}{
		{"zero value waits", Options{}, migrations.CheckModeWait},
		{"skip", SkipMigrationCheck(), migrations.CheckModeSkip},
		{"warn", WarnOnMigrationMismatch(), migrations.CheckModeWarn},
		{"wait", WaitForMigrations(), migrations.CheckModeWait},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("MIGRATION_CHECK_MODE", "")
			resolved := migrations.Resolve(tt.opts.MigrationCheckOptions...)
			assert.Equal(t, tt.want, resolved.Mode)
			assert.Equal(t, 120*time.Second, resolved.Timeout)
		})
	}
}

func TestEnvironmentOverridesOpenOptions(t *testing.T) {
	t.Setenv("MIGRATION_CHECK_MODE", "skip")
	t.Setenv("MIGRATION_CHECK_TIMEOUT", "3s")
	t.Setenv("MIGRATION_CHECK_ALLOW_DIRTY", "true")

	resolved := migrations.Resolve(WaitForMigrations().MigrationCheckOptions...)
	assert.Equal(t, migrations.CheckModeSkip, resolved.Mode)
	assert.Equal(t, 3*time.Second, resolved.Timeout)
	assert.True(t, resolved.AllowDirty)
}

func TestCustomOptionsCompose(t *testing.T) {
	t.Setenv("MIGRATION_CHECK_MODE", "")
	opts := Options{MigrationCheckOptions: []migrations.CheckOption{
		migrations.WithCheckMode(migrations.CheckModeWarn),
		migrations.WithTimeout(time.Minute),
		migrations.WithRetryInterval(time.Second),
	}}
	resolved := migrations.Resolve(opts.MigrationCheckOptions...)
	assert.Equal(t, "warn", resolved.Mode.String())
	assert.Equal(t, time.Minute, resolved.Timeout)
	assert.Equal(t, time.Second, resolved.RetryInterval)
	assert.False(t, resolved.AllowDirty)
}
