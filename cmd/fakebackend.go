package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jerry-enebeli/lockverify/internal/fakebackend"
)

// fakeBackendCommands serves an in-memory backend for local runs. It does not
// need the verification config.
func fakeBackendCommands() *cobra.Command {
	var (
		port int
		opts fakebackend.Options
	)

	cmd := &cobra.Command{
		Use:   "fake-backend",
		Short: "serve a simulated lock indexing backend",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			gin.SetMode(gin.ReleaseMode)
			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", port),
				Handler:           fakebackend.New(opts).Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					logrus.WithError(err).Warn("Fake backend shutdown failed")
				}
			}()

			logrus.Infof("Starting fake backend on http://localhost:%d", port)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 5004, "Port to listen on")
	cmd.Flags().IntVar(&opts.ResyncFailures, "resync-failures", 0, "Resync calls answered with 503 before confirming")
	cmd.Flags().IntVar(&opts.IndexLag, "index-lag", 0, "Lock reads that still miss a lock after its resync")
	cmd.Flags().BoolVar(&opts.NeverIndex, "never-index", false, "Never show resynced locks")
	return cmd
}
