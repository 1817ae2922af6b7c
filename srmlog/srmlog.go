// Package srmlog provides the process-wide leveled logger used throughout
// the core, built on zerolog. Verbosity is read once from SRM_DEBUG
// (0=silent .. 4=debug, unknown/out-of-range values clamp to the nearest
// valid bound) and is treated as a constant for the remainder of the
// process's life.
package srmlog

import (
	"os"
	"strconv"
	"sync"

	"github.com/rs/zerolog"
)

var (
	once   sync.Once
	base   zerolog.Logger
	levels = []zerolog.Level{
		zerolog.Disabled, // 0: silent
		zerolog.FatalLevel,
		zerolog.ErrorLevel,
		zerolog.WarnLevel,
		zerolog.DebugLevel, // 4: debug (there's no separate "info" tier in SRM_DEBUG)
	}
)

func verbosityFromEnv() int {
	raw := os.Getenv("SRM_DEBUG")
	if raw == "" {
		return 2 // default: error-level, matching the upstream library's default
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 2
	}
	if n < 0 {
		n = 0
	}
	if n > 4 {
		n = 4
	}
	return n
}

func initBase() {
	level := levels[verbosityFromEnv()]
	w := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"}
	base = zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// For returns a logger tagged with the given component name
// ("device", "connector", "renderer", "lease", "hotplug", ...).
func For(component string) zerolog.Logger {
	once.Do(initBase)
	return base.With().Str("component", component).Logger()
}
