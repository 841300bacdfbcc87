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
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"github.com/cardinalhq/kafka-sync/kafkasync"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/airharvest/config"
	"github.com/cardinalhq/airharvest/internal/fly"
)

var (
	topicsReconcile bool
	topicsDryRun    bool
	topicsStatus    bool
	topicsSyncFile  string
	topicsTimeout   time.Duration
)

func init() {
	cmd := &cobra.Command{
		Use:   "topics",
		Short: "Create missing Kafka topics and report or reconcile their settings",
		Long: `Without flags, create every missing topic with one partition, one replica and
the configured retention. --reconcile also fixes drifted settings on existing
topics, --dry-run only reports the drift, --status prints consumer lag.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), topicsTimeout)
			defer cancel()

			switch {
			case topicsStatus:
				return a.printTopicStatus(ctx, cmd.OutOrStdout())
			case topicsReconcile || topicsDryRun:
				return a.syncTopics(ctx, !topicsDryRun)
			default:
				return a.ensureTopics(ctx)
			}
		},
	}
	cmd.Flags().BoolVar(&topicsReconcile, "reconcile", false, "Create missing topics and fix drifted topic settings")
	cmd.Flags().BoolVar(&topicsDryRun, "dry-run", false, "Report drifted topic settings without changing anything")
	cmd.Flags().BoolVar(&topicsStatus, "status", false, "Print partition offsets and consumer lag for every topic")
	cmd.Flags().StringVar(&topicsSyncFile, "sync-file", "", "Use this kafka-sync YAML file instead of the topic registry")
	cmd.Flags().DurationVar(&topicsTimeout, "timeout", 5*time.Minute, "Overall time limit")
	cmd.MarkFlagsMutuallyExclusive("reconcile", "dry-run", "status")

	rootCmd.AddCommand(cmd)
}

// syncTopics hands the registry, or an explicit kafka-sync file, to kafka-sync.
func (a *app) syncTopics(ctx context.Context, fix bool) error {
	var topicsConfig *kafkasync.Config
	if topicsSyncFile != "" {
		slog.Info("Loading Kafka topics from file", slog.String("file", topicsSyncFile))
		loaded, err := fly.LoadTopicsConfig(topicsSyncFile)
		if err != nil {
			return fmt.Errorf("failed to load Kafka topics file: %w", err)
		}
		topicsConfig = loaded
	} else {
		topicsConfig = fly.BuildSyncConfig(a.topics.Specs(), topicsTimeout)
	}

	if len(topicsConfig.Topics) == 0 {
		slog.Info("No Kafka topics configured, skipping")
		return nil
	}
	return a.factory.CreateTopicSyncer().SyncTopics(ctx, topicsConfig, fix)
}

func (a *app) printTopicStatus(ctx context.Context, out io.Writer) error {
	admin, err := fly.NewAdminClient(&a.cfg.Kafka)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TOPIC\tGROUP\tPARTITION\tCOMMITTED\tHIGH WATER\tLAG")
	for _, spec := range a.topics.All() {
		exists, err := admin.TopicExists(ctx, spec.Name)
		if err != nil {
			return err
		}
		if !exists {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\tmissing\n", spec.Name, spec.ConsumerGroup)
			continue
		}
		lags, err := admin.GetConsumerGroupLag(ctx, spec.Name, spec.ConsumerGroup)
		if err != nil {
			return err
		}
		writeLagRows(tw, spec, lags)
	}
	return tw.Flush()
}

func writeLagRows(w io.Writer, spec config.TopicSpec, lags []fly.ConsumerGroupInfo) {
	for _, l := range lags {
		committed := "-"
		if l.CommittedOffset >= 0 {
			committed = fmt.Sprint(l.CommittedOffset)
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%d\t%d\n",
			spec.Name, spec.ConsumerGroup, l.Partition, committed, l.HighWaterMark, l.Lag)
	}
}
