package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"fincast/internal/log"
	"fincast/internal/worker"

	"github.com/spf13/cobra"
)

func newWorkerCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Refresh forecast snapshots on a schedule and on AMQP requests",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context(), log.ComponentWorker, os.Stdout)
			if err != nil {
				return err
			}
			defer app.Close()

			if app.Processor == nil {
				return fmt.Errorf("worker needs a backend that stores snapshots (sqlite or postgres), got %s", app.Config.DataBackend)
			}

			var consumer worker.RefreshConsumer
			if app.Broker != nil {
				consumer = app.Broker
			}
			w := worker.NewRefreshWorker(app.Processor, consumer, app.Config.RefreshSchedule)

			parent, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			ctx, done := GracefulShutdown(parent, app.Logger, 30*time.Second, nil)
			go app.RunCacheSweeper(ctx)

			app.Logger.Info("Starting fincast worker",
				log.FieldBackend, app.Config.DataBackend,
				"schedule", app.Config.RefreshSchedule,
				"amqp", app.Broker != nil)
			err = w.Run(ctx)
			cancel()
			<-done
			return err
		},
	}
}
