// Package hllconfig holds the typed configuration records consumed by
// the core, the logging seam the core logs through, and the on-disk
// path layout shared by the set manager and its sets.
package hllconfig

import (
	"fmt"
	"time"

	"github.com/hlldsvc/hlld/pkg/hll"
)

// GlobalConfig is the service-wide configuration record (spec §4.6).
type GlobalConfig struct {
	TCPPort          int
	UDPPort          int
	BindAddress      string
	DataDir          string
	LogLevel         string
	SyslogLogLevel   string
	DefaultEPS       float64
	DefaultPrecision uint8
	FlushInterval    time.Duration
	ColdInterval     time.Duration
	InMemory         bool
	WorkerThreads    int
	UseMmap          bool
}

// SetConfig is the per-set configuration record persisted in a set's
// config.ini (spec §4.6, §6).
type SetConfig struct {
	DefaultEPS       float64
	DefaultPrecision uint8
	InMemory         bool
	Size             uint64
}

// Normalize derives DefaultPrecision from DefaultEPS via
// [hll.PrecisionForError], then overwrites DefaultEPS with
// [hll.ErrorForPrecision] of the derived precision, so the stored ε is
// the achievable upper bound rather than the raw request (spec §4.6, S6).
func (c *SetConfig) Normalize() error {
	p, err := hll.PrecisionForError(c.DefaultEPS)
	if err != nil {
		return fmt.Errorf("normalizing default_eps %g: %w", c.DefaultEPS, err)
	}

	achieved, err := hll.ErrorForPrecision(p)
	if err != nil {
		return fmt.Errorf("deriving achieved error for precision %d: %w", p, err)
	}

	c.DefaultPrecision = p
	c.DefaultEPS = achieved

	return nil
}

// DefaultGlobalConfig returns the built-in defaults used when no config
// file is supplied to [LoadGlobalConfig].
func DefaultGlobalConfig() GlobalConfig {
	cfg := GlobalConfig{
		TCPPort:        4553,
		UDPPort:        4554,
		BindAddress:    "0.0.0.0",
		DataDir:        "/var/lib/hlld",
		LogLevel:       "info",
		SyslogLogLevel: "info",
		DefaultEPS:     0.02,
		FlushInterval:  60 * time.Second,
		ColdInterval:   300 * time.Second,
		InMemory:       false,
		WorkerThreads:  4,
		UseMmap:        true,
	}

	if p, err := hll.PrecisionForError(cfg.DefaultEPS); err == nil {
		cfg.DefaultPrecision = p
	}

	return cfg
}

// SetConfigFromGlobal derives the default per-set configuration from the
// service-wide one, used when a set is created without a custom config.
func SetConfigFromGlobal(global GlobalConfig) SetConfig {
	return SetConfig{
		DefaultEPS:       global.DefaultEPS,
		DefaultPrecision: global.DefaultPrecision,
		InMemory:         global.InMemory,
	}
}
