// Package util provides logger construction and virtual serial helpers.
package util

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"LocMock/internal/debuglog"
	"LocMock/internal/model"
)

// SetupLogger builds the daemon logger: console output on stderr, an optional
// rotating file sink, and a hook that mirrors every entry into ring.
func SetupLogger(cfg model.LogConfig, ring *debuglog.Ring) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}

	encCfg := zap.NewDevelopmentEncoderConfig()
	encCfg.EncodeTime = zapcore.RFC3339TimeEncoder
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encCfg), zapcore.Lock(os.Stderr), level),
	}

	if cfg.File != "" {
		file := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
			Compress:   true,
		}
		cores = append(cores,
			zapcore.NewCore(zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()), zapcore.AddSync(file), level))
	}

	core := zapcore.NewTee(cores...)
	if ring != nil {
		core = zapcore.RegisterHooks(core, ring.Hook())
	}
	return zap.New(core), nil
}
