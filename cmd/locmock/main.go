// Package main is the entry point of the LocMock daemon.
// It loads the configuration, sets up logging, constructs the providers, the
// mock engine and the control API, and runs them until interrupted.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"LocMock/internal/core"
	"LocMock/internal/debuglog"
	"LocMock/internal/util"
)

func main() {
	cfgPath := flag.String("c", "configs/config.yml", "path to configuration file")
	flag.Parse()

	cfg, err := core.LoadConfig(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	ring := debuglog.New(cfg.Global.Log.RingSize)
	logger, err := util.SetupLogger(cfg.Global.Log, ring)
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("using config", zap.String("path", *cfgPath))

	// Initialize system
	sys, err := core.NewSystem(cfg, logger, ring)
	if err != nil {
		logger.Fatal("failed to create system", zap.Error(err))
	}

	if err := sys.StartAll(); err != nil {
		logger.Fatal("failed to start system", zap.Error(err))
	}

	// wait for Ctrl+C, SIGTERM or a control API failure
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-stop:
		logger.Info("shutting down", zap.Stringer("signal", sig))
	case err := <-sys.Errors():
		logger.Error("shutting down after control API failure", zap.Error(err))
	}

	sys.StopAll()
	logger.Info("stopped cleanly")
}
