package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fedepagnotta/lottery-server/internal/barrier"
	"github.com/fedepagnotta/lottery-server/internal/logging"
	"github.com/fedepagnotta/lottery-server/internal/metrics"
	"github.com/fedepagnotta/lottery-server/internal/server"
	"github.com/fedepagnotta/lottery-server/internal/store"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("lottery-server %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	if err := setupLogger(cfg.loggingLevel); err != nil {
		fmt.Printf("logger init error: %v\n", err)
		os.Exit(1)
	}

	st, err := store.Open(cfg.betsFile, cfg.winningNumber)
	if err != nil {
		logging.L().Errorf(logging.Fields("action", "store_open", "result", "fail", "error", err))
		os.Exit(1)
	}

	drawBarrier := barrier.New(cfg.numberOfClients, cfg.barrierTimeout)

	srv := server.New(
		server.WithListenAddr(fmt.Sprintf(":%d", cfg.port)),
		server.WithNumberOfClients(cfg.numberOfClients),
		server.WithAcceptPollInterval(cfg.acceptPollInterval),
		server.WithStore(st),
		server.WithBarrier(drawBarrier),
	)
	server.InstallSignalHandler(srv)

	var metricsSrv interface{ Shutdown(context.Context) error }
	if cfg.metricsAddr != "" {
		metricsSrv = metrics.StartHTTP(cfg.metricsAddr)
	}

	logging.L().Infof(logging.Fields("action", "startup", "result", "success", "port", cfg.port, "clients", cfg.numberOfClients))
	if err := srv.Run(); err != nil {
		logging.L().Criticalf(logging.Fields("action", "server_run", "result", "fail", "error", err))
		if metricsSrv != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = metricsSrv.Shutdown(shutdownCtx)
			cancel()
		}
		os.Exit(1)
	}
	if metricsSrv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = metricsSrv.Shutdown(shutdownCtx)
		cancel()
	}
	logging.L().Infof(logging.Fields("action", "shutdown", "result", "success"))
}
