package cmd

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lora-console/api/rest/routes"
	"lora-console/core/controller"
	"lora-console/core/store"

	"github.com/gorilla/mux"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the sync controller behind the control panel HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.logger.Sync()
			if addr, _ := cmd.Flags().GetString("listen"); addr != "" {
				e.cfg.ListenAddr = addr
			}
			return serve(e)
		},
	}
	cmd.Flags().String("listen", "", "listen address (overrides config)")
	return cmd
}

func serve(e *env) error {
	ctrl := newController(e)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ctrl.Start(ctx)
	}()

	r := mux.NewRouter()
	routes.SetupRoutes(r, ctrl, e.api.ArtifactURL, e.logger)

	server := &http.Server{
		Addr:    e.cfg.ListenAddr,
		Handler: r,
	}

	// Graceful shutdown
	failed := make(chan error, 1)
	go func() {
		e.logger.Info("starting control panel",
			zap.String("addr", e.cfg.ListenAddr),
			zap.String("api_url", e.api.BaseURL()),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			failed <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var serveErr error
	select {
	case <-quit:
	case serveErr = <-failed:
		e.logger.Error("control panel failed", zap.Error(serveErr))
	}

	e.logger.Info("shutting down control panel")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		e.logger.Warn("forced shutdown", zap.Error(err))
	}
	ctrl.Stop()
	<-stopped
	e.logger.Info("control panel exited")
	return serveErr
}

func newController(e *env) *controller.Controller {
	opts := controller.Options{
		PollInterval: e.cfg.PollInterval,
		LogLines:     e.cfg.LogLines,
		Stream:       e.cfg.Stream,
	}
	return controller.NewController(e.api, controller.ClientDialer(e.api), store.New(), opts, e.logger)
}
