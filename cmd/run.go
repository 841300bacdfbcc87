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

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run ingestion and streaming in one process",
		RunE: func(_ *cobra.Command, _ []string) error {
			attrs := attribute.NewSet(attribute.String("action", "run"))
			return runWithTelemetry("airharvest", &attrs, func(ctx context.Context) error {
				return serve(ctx, serveOptions{ingest: true, stream: true})
			})
		},
	}

	rootCmd.AddCommand(cmd)
}
