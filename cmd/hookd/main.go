package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/rodrwan/hookd/internal/config"
	"github.com/rodrwan/hookd/internal/database"
	"github.com/rodrwan/hookd/internal/docker"
	"github.com/rodrwan/hookd/internal/server"
)

func main() {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logrus.Fatalf("invalid configuration: %v", err)
	}
	logrus.SetLevel(cfg.LogLevel)

	logrus.Info("=== hookd - webhook deployment agent ===")
	logrus.Infof("configuration: %s", cfg)

	db, err := database.Open(context.Background(), cfg.DatabasePath)
	if err != nil {
		logrus.Fatalf("error opening database: %v", err)
	}

	// Container listings are optional; deployments go through the docker CLI.
	dockerClient, err := docker.NewClient()
	if err != nil {
		logrus.Warnf("Docker API unavailable, container status disabled: %v", err)
	}

	srv := server.NewServer(cfg, db, dockerClient)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		logrus.Info("shutdown signal received, stopping server...")
		cancel()
	}()

	go func() {
		if err := srv.Start(); err != nil && !server.IsClosed(err) {
			logrus.Fatalf("error starting server: %v", err)
		}
	}()

	<-ctx.Done()

	// Running deployments are waited for as long as the slowest one could take.
	// A second signal gives up on them.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), srv.DrainTimeout())
	defer shutdownCancel()

	go func() {
		select {
		case <-sigChan:
			logrus.Warn("second signal received, not waiting for running deployments")
			shutdownCancel()
		case <-shutdownCtx.Done():
		}
	}()

	logrus.Infof("waiting up to %s for running deployments", srv.DrainTimeout())
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("error during shutdown: %v", err)
	}

	logrus.Info("hookd stopped")
}
