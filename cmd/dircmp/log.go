package main

import (
	"fmt"
	"log/slog"
	"os"
)

var (
	logger       = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
	debugEnabled = os.Getenv("DIRCMP_DEBUG") != ""
)

func debugf(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	logger.Debug(fmt.Sprintf(format, args...))
}
