package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"repokit/changefeed"
	"repokit/config"
	"repokit/errors"
	"repokit/logging"
	"repokit/validation"
)

func newWatchCmd() *cobra.Command {
	var entity, kind string
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Print entity changes published by other repokit processes",
		Long: `watch subscribes to the configured changefeed transport (nats or redis)
and prints every change until interrupted.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if kind != "" {
				if err := validateKind(kind); err != nil {
					return err
				}
			}
			return run(cmd.Context(), cmd.OutOrStdout(), func(ctx context.Context, a *app) error {
				switch a.cfg.ChangeFeed.Transport {
				case config.TransportNATS, config.TransportRedis:
				default:
					return errors.NewInvalidArgument("changefeed.transport",
						fmt.Sprintf("watch needs a cross-process transport (nats or redis), got %q", a.cfg.ChangeFeed.Transport))
				}
				return watch(ctx, a, cmd.OutOrStdout(), entity, changefeed.Kind(kind))
			})
		},
	}
	cmd.Flags().StringVar(&entity, "entity", "", "only changes of this entity (e.g. blogs)")
	cmd.Flags().StringVar(&kind, "kind", "", "only this change kind (added|updated|removed)")
	return cmd
}

func validateKind(kind string) error {
	return validation.Enum(kind, "kind", string(changefeed.Added), string(changefeed.Updated), string(changefeed.Removed))
}

func watch(ctx context.Context, a *app, out io.Writer, entity string, kind changefeed.Kind) error {
	changes := make(chan changefeed.Change, 64)
	err := changefeed.Subscribe(a.transport, entity, kind, func(ctx context.Context, c changefeed.Change) error {
		select {
		case changes <- c:
		case <-ctx.Done():
			return ctx.Err()
		}
		return nil
	})
	if err != nil {
		return err
	}
	a.logger.Info(ctx, "watching changes", logging.String("transport", a.cfg.ChangeFeed.Transport),
		logging.String("entity", entity), logging.String("kind", string(kind)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case c := <-changes:
			printChange(out, c)
		}
	}
}

func printChange(out io.Writer, c changefeed.Change) {
	fmt.Fprintf(out, "%s %-8s %-10s %v\n", c.At.Format("15:04:05.000"), c.Kind, c.Entity, c.Keys)
}
