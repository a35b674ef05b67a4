package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	apphttp "fincast/internal/http"
	"fincast/internal/log"

	"github.com/spf13/cobra"
)

func newServeCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the forecast API and HTML partial",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := flags.bootstrap(cmd.Context(), log.ComponentHTTP, os.Stdout)
			if err != nil {
				return err
			}
			defer app.Close()
			return runServer(cmd.Context(), app)
		},
	}
}

func runServer(parent context.Context, app *App) error {
	cfg := app.Config
	deps := apphttp.Deps{
		Forecasts: app.Service,
		Ready:     app.Backend.Ping,
	}
	if app.Processor != nil {
		deps.Snapshots = app.Processor
	}
	if app.Broker != nil {
		deps.Publisher = app.Broker
	}

	srv := apphttp.NewServer(apphttp.Options{
		Addr:           ":" + cfg.Port,
		DefaultHorizon: cfg.DefaultHorizon,
		Logger:         app.Logger,
	}, deps)
	srv.ReadTimeout = 10 * time.Second
	srv.IdleTimeout = 60 * time.Second
	srv.MaxHeaderBytes = 1 << 16

	ctx, done := GracefulShutdown(parent, app.Logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			app.Logger.Error("Server shutdown error", log.FieldError, err)
		}
	})
	go app.RunCacheSweeper(ctx)

	app.Logger.Info("Starting fincast server",
		"port", cfg.Port,
		log.FieldBackend, cfg.DataBackend,
		"amqp", cfg.AMQPEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		app.Logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		return err
	}

	<-done
	app.Logger.Info("Server stopped gracefully")
	return nil
}
