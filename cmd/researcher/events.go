package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mohammad-safakhou/researcher/internal/queue/streams"
	"github.com/mohammad-safakhou/researcher/internal/research"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func eventsCmd(cfgPath *string) *cobra.Command {
	var (
		group    string
		consumer string
		progress bool
		block    time.Duration
		taskID   string
	)
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Tail the research events mirrored to Redis streams",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *cfgPath)
			if err != nil {
				return err
			}
			defer a.close()
			if a.redis == nil {
				return errors.New("events requires streams.enabled and storage.redis")
			}

			stream := a.cfg.Streams.ResultStream
			if progress {
				stream = a.cfg.Streams.ProgressStream
			}
			if consumer == "" {
				host, _ := os.Hostname()
				consumer = fmt.Sprintf("%s-%d", host, os.Getpid())
			}
			if err := streams.EnsureGroup(ctx, a.redis, stream, group, "$"); err != nil {
				return err
			}
			reg := streams.NewSchemaRegistry()
			if err := streams.RegisterResearchSchemas(reg); err != nil {
				return err
			}
			c := streams.NewConsumer(a.redis, reg, group, consumer, a.logger)
			a.logger.Info("Tailing stream.", zap.String("stream", stream), zap.String("group", group), zap.String("consumer", consumer))

			out := cmd.OutOrStdout()
			err = tail(ctx, c, stream, block, taskID, out)
			if lag, lagErr := c.Lag(context.WithoutCancel(ctx), stream); lagErr == nil {
				fmt.Fprintf(out, "group %s: %s\n", group, lag)
			}
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&group, "group", "researcher-cli", "consumer group")
	cmd.Flags().StringVar(&consumer, "consumer", "", "consumer name (default host-pid)")
	cmd.Flags().BoolVar(&progress, "progress", false, "tail the progress stream instead of results")
	cmd.Flags().DurationVar(&block, "block", 5*time.Second, "read block time")
	cmd.Flags().StringVar(&taskID, "task", "", "only print events for this task id")
	return cmd
}

// tail prints and acknowledges entries until ctx is done. Entries for other
// tasks are acknowledged without printing when taskID is set.
func tail(ctx context.Context, c *streams.Consumer, stream string, block time.Duration, taskID string, out io.Writer) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		msgs, err := c.Read(ctx, stream, streams.WithBlock(block), streams.WithCount(50))
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		ids := make([]string, 0, len(msgs))
		for _, m := range msgs {
			ids = append(ids, m.ID)
			if taskID != "" && m.Envelope.TaskID != taskID {
				continue
			}
			fmt.Fprintln(out, describe(m.Envelope))
		}
		if err := c.Ack(ctx, stream, ids...); err != nil {
			return err
		}
	}
}

func describe(env streams.Envelope) string {
	at := env.OccurredAt.Format(time.RFC3339)
	switch env.EventType {
	case streams.EventResearchProgress:
		var ev research.ProgressEvent
		if err := env.Decode(&ev); err == nil {
			return fmt.Sprintf("%s progress %s %s %.0f%% %s", at, ev.TaskID, ev.Status, ev.Percentage, ev.CurrentOperation)
		}
	case streams.EventResearchResult:
		var ev research.ResultEvent
		if err := env.Decode(&ev); err == nil {
			return fmt.Sprintf("%s result   %s %s", at, ev.TaskID, ev.Result.URL)
		}
	}
	return fmt.Sprintf("%s %s %s", at, env.EventType, env.EventID)
}
