package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/claude/liftlog/internal/api"
	"github.com/claude/liftlog/internal/config"
	"github.com/claude/liftlog/internal/history"
	"github.com/claude/liftlog/internal/server"
	"github.com/claude/liftlog/internal/session"
	"github.com/claude/liftlog/internal/statestore"
	"tailscale.com/tsnet"
)

// Version is set at build time via -ldflags.
var Version = "dev"

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	migrateOnly := flag.Bool("migrate-only", false, "run migrations and exit")
	flag.Parse()

	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	log.Info("LiftLog starting", "version", Version)

	// Load config
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Run history migrations
	dsn := cfg.History.DSN()
	if err := history.RunMigrations(dsn, "migrations"); err != nil {
		log.Error("migration failed", "error", err)
		os.Exit(1)
	}
	log.Info("migrations applied")

	if *migrateOnly {
		log.Info("migrate-only: exiting")
		return
	}

	// Connect history archive
	ctx := context.Background()
	archive, err := history.New(ctx, dsn)
	if err != nil {
		log.Error("failed to connect history database", "error", err)
		os.Exit(1)
	}
	defer archive.Close()
	log.Info("history database connected")

	// Open session state store
	store, err := openStore(ctx, cfg.Store)
	if err != nil {
		log.Error("failed to open state store", "backend", cfg.Store.Backend, "error", err)
		os.Exit(1)
	}
	defer store.Close()
	log.Info("state store opened", "backend", cfg.Store.Backend)

	// Session manager
	remote := api.NewClient(cfg.Remote.BaseURL, cfg.Remote.APIKey)
	manager := session.NewManager(store, remote, log)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if restored, err := manager.Restore(runCtx); err != nil {
		log.Warn("session restore failed", "error", err)
	} else if restored {
		log.Info("session restored from state store")
	}
	if err := manager.Start(runCtx); err != nil {
		log.Error("failed to start session manager", "error", err)
		os.Exit(1)
	}

	// Create server
	srv := server.New(manager, archive, cfg.Auth.APIKey, log)
	srv.Run(runCtx)

	// Start server — tsnet or plain HTTP
	var listener net.Listener
	var tsServer *tsnet.Server

	if cfg.Tailscale.Enabled {
		tsServer = &tsnet.Server{
			Hostname: cfg.Tailscale.Hostname,
			Dir:      cfg.Tailscale.StateDir,
		}
		if err := tsServer.Start(); err != nil {
			log.Error("tsnet start failed", "error", err)
			os.Exit(1)
		}
		defer tsServer.Close()

		listener, err = tsServer.Listen("tcp", ":80")
		if err != nil {
			log.Error("tsnet listen failed", "error", err)
			os.Exit(1)
		}
		log.Info("tsnet server starting", "hostname", cfg.Tailscale.Hostname)
	} else {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		listener, err = net.Listen("tcp", addr)
		if err != nil {
			log.Error("listen failed", "addr", addr, "error", err)
			os.Exit(1)
		}
		log.Info("server starting", "addr", addr, "mode", "dev (no tailscale)")
	}

	httpSrv := &http.Server{Handler: srv}

	go func() {
		if err := httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info("shutting down", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
	}

	// Final save so the session survives the restart.
	manager.Shutdown(shutdownCtx)
	log.Info("server stopped")
}

// openStore opens the configured state store backend.
func openStore(ctx context.Context, cfg config.StoreConfig) (statestore.Store, error) {
	switch cfg.Backend {
	case "sqlite":
		return statestore.OpenSQLite(cfg.SQLiteDir)
	case "redis":
		return statestore.OpenRedis(ctx, cfg.RedisURL)
	case "memory":
		return statestore.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
	}
}
