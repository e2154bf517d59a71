package config

import (
	"fmt"
	"time"
)

// Config represents a pulseline.yaml configuration file.
// All values are optional and act as defaults for pulseline run flags.
// CLI flags always override config values.
type Config struct {
	Storage    StorageConfig   `yaml:"storage"`
	Archive    ArchiveConfig   `yaml:"archive"`
	Procedures ProcedureConfig `yaml:"procedures"`
	Monitor    MonitorConfig   `yaml:"monitor"`
	Log        LogConfig       `yaml:"log"`
}

// StorageConfig holds sink defaults from the config file.
type StorageConfig struct {
	// Dir is the directory result files are written into.
	Dir string `yaml:"dir"`
	// Mirrors lists additional directories that receive identical copies
	// of every result file.
	Mirrors []string `yaml:"mirrors,omitempty"`
}

// ArchiveConfig holds long-term archive defaults from the config file.
// An empty bucket disables archiving.
type ArchiveConfig struct {
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix,omitempty"`
	Region      string `yaml:"region,omitempty"`
	Endpoint    string `yaml:"endpoint,omitempty"`
	S3PathStyle bool   `yaml:"s3_path_style,omitempty"`
}

// ProcedureConfig holds procedure loading defaults from the config file.
type ProcedureConfig struct {
	// ScriptDir is searched for interpreted procedure scripts when a
	// name is not found in the compiled registry.
	ScriptDir string `yaml:"script_dir"`
}

// MonitorConfig holds event stream defaults from the config file.
type MonitorConfig struct {
	// Buffer is the monitor stream capacity. Zero means the built-in
	// default.
	Buffer int `yaml:"buffer,omitempty"`
	// Refresh is the live view redraw interval.
	Refresh Duration `yaml:"refresh,omitempty"`
}

// LogConfig holds diagnostic logging defaults from the config file.
type LogConfig struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string `yaml:"level,omitempty"`
	// Path redirects diagnostics to a file instead of stderr.
	Path string `yaml:"path,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "10s", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Validate rejects combinations that cannot work regardless of flags.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	if c.Archive.Bucket == "" && (c.Archive.Prefix != "" || c.Archive.Endpoint != "") {
		return fmt.Errorf("archive settings require a bucket")
	}
	return nil
}
