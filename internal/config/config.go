// Package config loads settings for the stegpack command.
//
// Configuration is read from a single YAML file named by the --config flag
// or the STEGPACK_CONFIG environment variable. There is no discovery: with
// neither set, the built-in defaults apply. Unknown keys are rejected so a
// misspelled option cannot silently fall back to its default.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/justicz/stegpack/imageio"
	"github.com/justicz/stegpack/internal/safename"
)

// EnvVar names the environment variable holding the config file path
const EnvVar = "STEGPACK_CONFIG"

// Config is the full command configuration
type Config struct {
	// Log controls diagnostic output on stderr.
	Log LogConfig `yaml:"log"`

	// Output controls where and how results are written.
	Output OutputConfig `yaml:"output"`

	// StrictSize rejects recovered payloads whose declared size does not
	// match their content length.
	StrictSize bool `yaml:"strict_size"`
}

// LogConfig configures the slog handler
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is text or json.
	Format string `yaml:"format"`
}

// OutputConfig configures written files
type OutputConfig struct {
	// Dir is where reveal writes recovered files.
	Dir string `yaml:"dir"`

	// Prefix is prepended to recovered file names.
	Prefix string `yaml:"prefix"`

	// Format is the image format hide uses when the output path has no
	// extension.
	Format string `yaml:"format"`

	// Overwrite allows replacing existing files.
	Overwrite bool `yaml:"overwrite"`
}

// Default returns the built-in configuration
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Output: OutputConfig{
			Dir:    ".",
			Prefix: "decoded_",
			Format: string(imageio.PNG),
		},
	}
}

// Load reads the file at path, or at $STEGPACK_CONFIG when path is empty.
// With neither set it returns Default().
func Load(path string) (Config, error) {
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of the defaults and validates the result
func Parse(data []byte) (Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks field values
func (c Config) Validate() error {
	if _, err := c.Log.SlogLevel(); err != nil {
		return err
	}

	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	if c.Output.Dir == "" {
		return errors.New("output.dir must not be empty")
	}
	if err := safename.CheckPrefix(c.Output.Prefix); err != nil {
		return fmt.Errorf("output.prefix: %w", err)
	}

	format, err := imageio.ParseFormat(c.Output.Format)
	if err != nil {
		return fmt.Errorf("output.format: %w", err)
	}
	if !format.Lossless() {
		return fmt.Errorf("output.format: %w: %s", imageio.ErrLossyFormat, format)
	}

	return nil
}

// SlogLevel maps the configured level name onto slog
func (l LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(l.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("log.level must be debug, info, warn or error, got %q", l.Level)
}

// NewLogger builds the logger described by l, writing to w
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	level, err := l.SlogLevel()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if l.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}
