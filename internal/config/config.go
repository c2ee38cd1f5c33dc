// Package config loads the cartctx YAML configuration and validates it
// against an embedded CUE schema.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"
)

//go:embed schema.cue
var schemaCUE string

// File is the on-disk shape. Durations are Go duration strings.
type File struct {
	Backend      BackendFile      `yaml:"backend" json:"backend"`
	Storage      StorageFile      `yaml:"storage" json:"storage"`
	Notification NotificationFile `yaml:"notification" json:"notification"`
	Log          LogFile          `yaml:"log" json:"log"`
}

// BackendFile configures the cart API client. Only GET and idempotent
// requests are retried, up to max_retries times.
type BackendFile struct {
	BaseURL    string `yaml:"base_url" json:"base_url"`
	Timeout    string `yaml:"timeout" json:"timeout"`
	MaxRetries int    `yaml:"max_retries" json:"max_retries"`
}

// StorageFile locates the SQLite database holding session state.
type StorageFile struct {
	Path string `yaml:"path" json:"path"`
}

// NotificationFile tunes the notification overlay.
type NotificationFile struct {
	Debounce string `yaml:"debounce" json:"debounce"`
}

// LogFile sets the slog level: debug, info, warn or error.
type LogFile struct {
	Level string `yaml:"level" json:"level"`
}

// Config is the validated, typed configuration.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
	DBPath     string
	Debounce   time.Duration
	LogLevel   slog.Level
}

// Defaults returns the file values used for any key the file omits.
func Defaults() File {
	return File{
		Backend: BackendFile{
			BaseURL:    "http://127.0.0.1:8080",
			Timeout:    "15s",
			MaxRetries: 3,
		},
		Storage:      StorageFile{Path: "cartctx.db"},
		Notification: NotificationFile{Debounce: "3s"},
		Log:          LogFile{Level: "info"},
	}
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg, err := Build(Defaults())
	if err != nil {
		panic(fmt.Sprintf("config: invalid defaults: %v", err))
	}
	return cfg
}

// Load reads path. An empty path returns Default().
func Load(path string) (*Config, error) {
	if path == "" {
		return Default(), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse decodes YAML from r over the defaults, rejecting unknown keys.
func Parse(r io.Reader) (*Config, error) {
	file := Defaults()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return Build(file)
}

// Build validates file and converts it to a Config.
func Build(file File) (*Config, error) {
	if err := Validate(file); err != nil {
		return nil, err
	}

	timeout, err := time.ParseDuration(file.Backend.Timeout)
	if err != nil {
		return nil, fmt.Errorf("backend.timeout: %w", err)
	}
	debounce, err := time.ParseDuration(file.Notification.Debounce)
	if err != nil {
		return nil, fmt.Errorf("notification.debounce: %w", err)
	}
	var level slog.Level
	if err := level.UnmarshalText([]byte(file.Log.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	return &Config{
		BaseURL:    file.Backend.BaseURL,
		Timeout:    timeout,
		MaxRetries: file.Backend.MaxRetries,
		DBPath:     file.Storage.Path,
		Debounce:   debounce,
		LogLevel:   level,
	}, nil
}

// Validate checks file against the embedded CUE schema.
func Validate(file File) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	v := ctx.Encode(file)
	if err := v.Err(); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := schema.Unify(v).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
