package main

import (
	"go.uber.org/zap"

	"github.com/televibecode/televibe/internal/config"
	"github.com/televibecode/televibe/internal/telemetry"
)

func telemetryLogger(level config.LogLevel) (*zap.Logger, error) {
	return telemetry.New(telemetry.Level(level))
}
