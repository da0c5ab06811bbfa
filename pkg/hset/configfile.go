package hset

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/natefinch/atomic"

	"github.com/hlldsvc/hlld/pkg/hllconfig"
)

// readConfigIni parses the fixed four-key config.ini format (spec §6):
//
//	[hlld]
//	size = <uint64>
//	default_eps = <double>
//	default_precision = <int>
//	in_memory = <0|1>
//
// No ecosystem INI library is wired here; the format is small, fixed,
// and single-section, so a hand-rolled line scanner is used (see
// DESIGN.md for the justification this requires).
func readConfigIni(path string) (hllconfig.SetConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return hllconfig.SetConfig{}, fmt.Errorf("opening %s: %w: %w", path, err, ErrIO)
	}
	defer f.Close()

	var cfg hllconfig.SetConfig

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, ";") || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if err := assignConfigField(&cfg, key, value); err != nil {
			return hllconfig.SetConfig{}, fmt.Errorf("parsing %s line %q: %w", path, line, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return hllconfig.SetConfig{}, fmt.Errorf("reading %s: %w: %w", path, err, ErrIO)
	}

	return cfg, nil
}

func assignConfigField(cfg *hllconfig.SetConfig, key, value string) error {
	switch key {
	case "size":
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %w", err, ErrInvalidArgument)
		}

		cfg.Size = v
	case "default_eps":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("%w: %w", err, ErrInvalidArgument)
		}

		cfg.DefaultEPS = v
	case "default_precision":
		v, err := strconv.ParseUint(value, 10, 8)
		if err != nil {
			return fmt.Errorf("%w: %w", err, ErrInvalidArgument)
		}

		cfg.DefaultPrecision = uint8(v)
	case "in_memory":
		cfg.InMemory = value == "1"
	}

	return nil
}

// writeConfigIni persists cfg to path via an atomic temp-file-then-rename,
// matching the teacher's ticket-file persistence pattern
// (github.com/natefinch/atomic).
func writeConfigIni(path string, cfg hllconfig.SetConfig) error {
	var buf bytes.Buffer

	fmt.Fprintln(&buf, "[hlld]")
	fmt.Fprintf(&buf, "size = %d\n", cfg.Size)
	fmt.Fprintf(&buf, "default_eps = %v\n", cfg.DefaultEPS)
	fmt.Fprintf(&buf, "default_precision = %d\n", cfg.DefaultPrecision)

	if cfg.InMemory {
		fmt.Fprintln(&buf, "in_memory = 1")
	} else {
		fmt.Fprintln(&buf, "in_memory = 0")
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("writing %s: %w: %w", path, err, ErrIO)
	}

	return nil
}
