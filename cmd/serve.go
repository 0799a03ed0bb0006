package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/worldsim/worldsim/server"
	"github.com/worldsim/worldsim/sim/company"
)

var listenAddr string // HTTP listen address

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the company API, metrics and the live day feed",
	Run: func(cmd *cobra.Command, args []string) {
		if err := runServe(listenAddr); err != nil {
			logrus.Fatalf("serve: %v", err)
		}
	},
}

func runServe(addr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := server.NewHub()
	go hub.Run(ctx)

	svc := company.NewService(st, server.Broadcaster(hub))
	srv := &http.Server{
		Addr:              addr,
		Handler:           server.New(svc, hub).Router(),
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.Infof("worldsim listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logrus.Infof("received %s, shutting down", sig)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	logrus.Info("server stopped")
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "addr", ":8080", "HTTP listen address")
	rootCmd.AddCommand(serveCmd)
}
