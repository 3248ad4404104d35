package main

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"
)

// LoggingConfig configures ringctl's own console logger.
type LoggingConfig struct {
	Level zapcore.Level `yaml:"level"`
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{Level: zapcore.InfoLevel}
}

// initLogging builds a console zap.Logger, colorizing level names only
// when stderr is a terminal.
func initLogging(cfg LoggingConfig) (*zap.Logger, error) {
	encoderConfig := zap.NewDevelopmentEncoderConfig()
	if term.IsTerminal(int(os.Stderr.Fd())) {
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	}

	zcfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(cfg.Level),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	logger, err := zcfg.Build()
	if err != nil {
		return nil, fmt.Errorf("ringctl: build logger: %w", err)
	}
	return logger, nil
}
