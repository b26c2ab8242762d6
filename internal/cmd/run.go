// Copyright 2026 The switchAILocal Authors. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package cmd assembles the routing service from configuration and runs it
// until a shutdown signal arrives.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/traylinx/switchai-router/internal/api"
	"github.com/traylinx/switchai-router/internal/config"
	"github.com/traylinx/switchai-router/internal/events"
	"github.com/traylinx/switchai-router/internal/intelligence"
	"github.com/traylinx/switchai-router/internal/logging"
	"github.com/traylinx/switchai-router/internal/metrics"
	"github.com/traylinx/switchai-router/internal/store"
)

const (
	shutdownTimeout   = 30 * time.Second
	retentionInterval = time.Hour
)

// StartService runs the server until SIGINT or SIGTERM.
//
// Parameters:
//   - cfg: The application configuration
//   - configPath: The configuration file to watch for changes; empty disables hot reload
func StartService(cfg *config.Config, configPath string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	return Run(ctx, cfg, configPath)
}

// Run wires the store, recorder, event hub, metrics and HTTP server, and
// blocks until ctx is done or the listener fails.
func Run(ctx context.Context, cfg *config.Config, configPath string) error {
	st, err := store.Open(ctx, cfg.Store.Driver, cfg.Store.DSN)
	if err != nil {
		return fmt.Errorf("failed to open decision store: %w", err)
	}
	defer st.Close()

	hub := events.NewHub()
	m := metrics.New()
	svc, err := intelligence.NewService(cfg,
		intelligence.WithStore(st),
		intelligence.WithHub(hub),
		intelligence.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	server := api.NewServer(cfg, svc, api.WithHub(hub), api.WithMetrics(m))

	if configPath != "" {
		watcher := config.NewWatcher(configPath, func(next *config.Config) {
			if errReload := svc.Reload(next); errReload != nil {
				return
			}
			server.UpdateConfig(next)
			logging.SetLevel(next.Debug)
		})
		if errWatch := watcher.Start(); errWatch != nil {
			log.Warnf("Config hot reload disabled: %v", errWatch)
		} else {
			defer watcher.Stop()
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		svc.RunRetention(gctx, retentionInterval)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		errStop := server.Stop(shutdownCtx)
		errDrain := svc.Shutdown(shutdownCtx)
		return errors.Join(errStop, errDrain)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
