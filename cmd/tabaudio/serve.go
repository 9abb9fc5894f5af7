package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgnsrekt/tabaudio/internal/api"
	"github.com/dgnsrekt/tabaudio/internal/netutil"
	"github.com/dgnsrekt/tabaudio/internal/reconciler"
	"github.com/dgnsrekt/tabaudio/internal/relay"
	"github.com/spf13/cobra"
)

var flagBind string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control API, relay and event stream",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&flagBind, "bind", "", "preferred listen address (overrides TABAUDIO_BIND_ADDR)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := startStack(ctx, os.Stdout)
	if err != nil {
		return err
	}
	defer s.close()

	broker := relay.NewBroker(string(reconciler.ChangeSnapshot))
	s.reconciler.SetListener(relay.Feed(broker))
	rl := relay.New(s.directory)

	ln, err := netutil.Listen(cfg.BindAddr, cfg.PortCandidates, cfg.PortAutoFallback)
	if err != nil {
		slog.Error("failed to bind control API", "preferred", cfg.BindAddr, "error", err)
		return err
	}
	addr := ln.Addr().String()

	if _, err := s.reconciler.Refresh(ctx); err != nil {
		slog.Warn("initial tab discovery failed", "error", err)
	}

	srv := &http.Server{Handler: api.NewServer(s.reconciler, rl, broker), ReadHeaderTimeout: 10 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("tabaudio listening", "addr", addr, "docs", "http://"+addr+"/docs")
		errCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			slog.Error("tabaudio server failed", "error", err)
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("tabaudio shutdown failed", "error", err)
	}
	return nil
}
