package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fentz26/taskboard/internal/audit"
	"github.com/fentz26/taskboard/internal/controlplane"
	"github.com/fentz26/taskboard/internal/snapshot"
	"github.com/fentz26/taskboard/internal/store"
)

var (
	listenAddr string
	dbPath     string
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Start the taskboard daemon",
	Long:  `Starts the daemon which serves the dashboard API over the scheduler's database.`,
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().StringVar(&listenAddr, "listen", "", "Listen address for the API server (default from config)")
	daemonCmd.Flags().StringVar(&dbPath, "db", "", "Path to SQLite database (default from config)")
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if listenAddr != "" {
		cfg.Listen = listenAddr
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}

	log := newLogger(cfg, cfg.LogFile, os.Stderr)
	log.WithFields(logrus.Fields{"listen": cfg.Listen, "db": cfg.DBPath}).Info("starting taskboard daemon")

	// Initialize store
	s, err := store.New(cfg.DBPath)
	if err != nil {
		return err
	}

	cache, err := newSnapshotCache(cmd.Context(), log)
	if err != nil {
		s.Close()
		return err
	}
	defer cache.Close()

	// Create service and server
	service := controlplane.NewService(s, audit.NewWriter(s), cache)
	service.SetLogger(log.WithField("component", "controlplane"))
	server := controlplane.NewServer(service, s, cfg.Listen)
	server.SetLogger(log.WithField("component", "http"))

	// Set up signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// Channel to receive server errors
	serverErr := make(chan error, 1)

	go func() {
		err := server.Start()
		if err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case sig := <-sigCh:
		log.WithField("signal", sig.String()).Info("initiating graceful shutdown")
	case err := <-serverErr:
		if err != nil {
			log.WithError(err).Error("server error")
			s.Close()
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	log.Info("shutting down HTTP server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("HTTP server shutdown error")
	}

	log.Info("closing database connection")
	if err := s.Close(); err != nil {
		log.WithError(err).Warn("database close error")
	}

	log.Info("shutdown complete")
	return nil
}

// newSnapshotCache uses Redis when configured so several daemons share
// snapshots, and an in-process LRU otherwise.
func newSnapshotCache(ctx context.Context, log logrus.FieldLogger) (snapshot.Cache, error) {
	if cfg.RedisAddr == "" {
		return snapshot.NewMemoryCache(cfg.SnapshotSize, cfg.SnapshotTTL), nil
	}
	c, err := snapshot.NewRedisCache(ctx, snapshot.RedisOptions{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.SnapshotTTL,
	})
	if err != nil {
		return nil, err
	}
	log.WithField("redis", cfg.RedisAddr).Info("using redis snapshot cache")
	return c, nil
}
