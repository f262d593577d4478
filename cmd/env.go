package main

import (
	"context"

	"go.uber.org/zap"

	"github.com/gridwatch/collector-cli/internal/pipeline"
	"github.com/gridwatch/collector-cli/internal/runlog"
	"github.com/gridwatch/collector-cli/internal/sink"
)

// env bundles the long-lived resources a command needs: the sink, the run
// log, and the driver on top of them.
type env struct {
	Sink   sink.Sink
	Runs   *runlog.Log
	Driver *pipeline.Driver
}

// initEnv opens the configured sink and run log. Callers must Close.
func initEnv(ctx context.Context) (*env, error) {
	s, err := sink.Open(ctx, sink.Config{
		Driver:      cfg.Sink.Driver,
		DataDir:     cfg.Sink.DataDir,
		SQLitePath:  cfg.Sink.SQLitePath,
		DatabaseURL: cfg.Sink.DatabaseURL,
	})
	if err != nil {
		return nil, err
	}

	runs, err := runlog.Open(cfg.Sink.RunLogPath)
	if err != nil {
		s.Close() //nolint:errcheck
		return nil, err
	}

	return &env{
		Sink:   s,
		Runs:   runs,
		Driver: pipeline.New(s, runs),
	}, nil
}

func (e *env) Close() {
	if err := e.Runs.Close(); err != nil {
		zap.L().Warn("closing run log", zap.Error(err))
	}
	if err := e.Sink.Close(); err != nil {
		zap.L().Warn("closing sink", zap.Error(err))
	}
}
