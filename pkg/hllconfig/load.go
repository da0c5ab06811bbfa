package hllconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/tailscale/hujson"

	"github.com/hlldsvc/hlld/pkg/hll"
)

// jsonGlobalConfig mirrors GlobalConfig's wire shape; interval fields are
// plain seconds on disk and converted to time.Duration on load.
type jsonGlobalConfig struct {
	TCPPort          *int     `json:"tcp_port"`
	UDPPort          *int     `json:"udp_port"`
	BindAddress      *string  `json:"bind_address"`
	DataDir          *string  `json:"data_dir"`
	LogLevel         *string  `json:"log_level"`
	SyslogLogLevel   *string  `json:"syslog_log_level"`
	DefaultEPS       *float64 `json:"default_eps"`
	DefaultPrecision *uint8   `json:"default_precision"`
	FlushInterval    *int     `json:"flush_interval"`
	ColdInterval     *int     `json:"cold_interval"`
	InMemory         *bool    `json:"in_memory"`
	WorkerThreads    *int     `json:"worker_threads"`
	UseMmap          *bool    `json:"use_mmap"`
}

// LoadGlobalConfig reads a JSON-with-comments global configuration file,
// stripping comments and trailing commas via hujson.Standardize before
// unmarshaling. An empty path returns [DefaultGlobalConfig] unmodified,
// mirroring a layered config loader that falls back to built-in defaults.
// Fields absent from the file keep their default values.
func LoadGlobalConfig(path string) (GlobalConfig, error) {
	cfg := DefaultGlobalConfig()

	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("reading %s: %w: %w", path, err, ErrIO)
	}

	standardized, err := hujson.Standardize(raw)
	if err != nil {
		return GlobalConfig{}, fmt.Errorf("stripping comments in %s: %w: %w", path, err, ErrIO)
	}

	var doc jsonGlobalConfig
	if err := json.Unmarshal(standardized, &doc); err != nil {
		return GlobalConfig{}, fmt.Errorf("parsing %s: %w: %w", path, err, ErrIO)
	}

	applyOverrides(&cfg, doc)

	if doc.DefaultEPS != nil && doc.DefaultPrecision == nil {
		p, err := hll.PrecisionForError(cfg.DefaultEPS)
		if err != nil {
			return GlobalConfig{}, fmt.Errorf("default_eps %g in %s: %w", cfg.DefaultEPS, path, err)
		}

		cfg.DefaultPrecision = p
	}

	return cfg, nil
}

func applyOverrides(cfg *GlobalConfig, doc jsonGlobalConfig) {
	if doc.TCPPort != nil {
		cfg.TCPPort = *doc.TCPPort
	}

	if doc.UDPPort != nil {
		cfg.UDPPort = *doc.UDPPort
	}

	if doc.BindAddress != nil {
		cfg.BindAddress = *doc.BindAddress
	}

	if doc.DataDir != nil {
		cfg.DataDir = *doc.DataDir
	}

	if doc.LogLevel != nil {
		cfg.LogLevel = *doc.LogLevel
	}

	if doc.SyslogLogLevel != nil {
		cfg.SyslogLogLevel = *doc.SyslogLogLevel
	}

	if doc.DefaultEPS != nil {
		cfg.DefaultEPS = *doc.DefaultEPS
	}

	if doc.DefaultPrecision != nil {
		cfg.DefaultPrecision = *doc.DefaultPrecision
	}

	if doc.FlushInterval != nil {
		cfg.FlushInterval = time.Duration(*doc.FlushInterval) * time.Second
	}

	if doc.ColdInterval != nil {
		cfg.ColdInterval = time.Duration(*doc.ColdInterval) * time.Second
	}

	if doc.InMemory != nil {
		cfg.InMemory = *doc.InMemory
	}

	if doc.WorkerThreads != nil {
		cfg.WorkerThreads = *doc.WorkerThreads
	}

	if doc.UseMmap != nil {
		cfg.UseMmap = *doc.UseMmap
	}
}
