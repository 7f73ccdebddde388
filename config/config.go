// Package config handles .leeplate.yaml configuration files.
//
// Settings are resolved in layers, later layers overriding earlier ones:
//
//	defaults < config file < environment (.env included) < command-line flags
//
// The config file is .leeplate.yaml in the working directory, falling back
// to $XDG_CONFIG_HOME/leeplate/config.yaml. Flags are applied by the caller.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// FileName is the per-directory config file name.
const FileName = ".leeplate.yaml"

const configDirName = "leeplate"

// Environment variables read by ApplyEnv.
const (
	EnvServer     = "LEEPLATE_SERVER"
	EnvSource     = "LEEPLATE_SOURCE"
	EnvTarget     = "LEEPLATE_TARGET"
	EnvDebounce   = "LEEPLATE_DEBOUNCE"
	EnvTimeout    = "LEEPLATE_TIMEOUT"
	EnvMaxRetries = "LEEPLATE_MAX_RETRIES"
	EnvPlayer     = "LEEPLATE_PLAYER"
	EnvProxy      = "LEEPLATE_PROXY"
	EnvSentryDSN  = "SENTRY_DSN"
)

// ---------------------------------------------------------------------------
// YAML schema
// ---------------------------------------------------------------------------

// File is the on-disk .leeplate.yaml structure. Empty fields keep the
// value of the lower layer.
type File struct {
	// Server is the backend base URL.
	Server string `yaml:"server,omitempty"`
	// SourceLang is the default source language ("auto" to detect).
	SourceLang string `yaml:"source_lang,omitempty"`
	// TargetLang is the default target language.
	TargetLang string `yaml:"target_lang,omitempty"`
	// Debounce is the quiet period before an edit is translated, e.g. "500ms".
	Debounce string `yaml:"debounce,omitempty"`
	// Timeout bounds each backend request, e.g. "30s".
	Timeout string `yaml:"timeout,omitempty"`
	// MaxRetries is the number of retries on transient backend errors.
	MaxRetries *int `yaml:"max_retries,omitempty"`
	// Player is the audio player command; audio is written to its stdin.
	Player []string `yaml:"player,omitempty"`
	// DownloadDir is where downloaded audio is saved.
	DownloadDir string `yaml:"download_dir,omitempty"`
	// Proxy is an optional HTTP proxy URL.
	Proxy string `yaml:"proxy,omitempty"`
}

// ---------------------------------------------------------------------------
// Resolved configuration
// ---------------------------------------------------------------------------

// Config is the fully resolved configuration.
type Config struct {
	Server      string
	SourceLang  string
	TargetLang  string
	Debounce    time.Duration
	Timeout     time.Duration
	MaxRetries  int
	Player      []string
	DownloadDir string
	Proxy       string
	SentryDSN   string

	// Path is the config file that was loaded, empty if none.
	Path string
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Server:      "http://127.0.0.1:8000",
		SourceLang:  "auto",
		TargetLang:  "en",
		Debounce:    500 * time.Millisecond,
		Timeout:     30 * time.Second,
		MaxRetries:  0,
		Player:      []string{"mpv", "--no-video", "--really-quiet", "-"},
		DownloadDir: ".",
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Dir returns the XDG config directory for leeplate.
// Respects $XDG_CONFIG_HOME (falls back to ~/.config).
func Dir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, configDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", configDirName), nil
}

// Find returns the config file that applies to workDir, or "" if there is
// none.
func Find(workDir string) string {
	local := filepath.Join(workDir, FileName)
	if _, err := os.Stat(local); err == nil {
		return local
	}
	dir, err := Dir()
	if err != nil {
		return ""
	}
	global := filepath.Join(dir, "config.yaml")
	if _, err := os.Stat(global); err == nil {
		return global
	}
	return ""
}

// LoadFile parses a config file. Unknown keys are rejected.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &f, nil
}

// Load resolves the configuration for workDir. If explicit is non-empty
// that file is used and must exist; otherwise Find decides. A .env file in
// workDir is loaded into the process environment first, without
// overriding variables that are already set.
func Load(workDir, explicit string) (Config, error) {
	cfg := Defaults()

	if err := LoadDotEnv(workDir); err != nil {
		return cfg, err
	}

	path := explicit
	if path == "" {
		path = Find(workDir)
	}
	if path != "" {
		f, err := LoadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := cfg.ApplyFile(f); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
		cfg.Path = path
	}

	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads dir/.env if present.
func LoadDotEnv(dir string) error {
	path := filepath.Join(dir, ".env")
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// ApplyFile overlays the non-empty fields of f.
func (c *Config) ApplyFile(f *File) error {
	if f.Server != "" {
		c.Server = f.Server
	}
	if f.SourceLang != "" {
		c.SourceLang = f.SourceLang
	}
	if f.TargetLang != "" {
		c.TargetLang = f.TargetLang
	}
	if f.Debounce != "" {
		d, err := time.ParseDuration(f.Debounce)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		c.Debounce = d
	}
	if f.Timeout != "" {
		d, err := time.ParseDuration(f.Timeout)
		if err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		c.Timeout = d
	}
	if f.MaxRetries != nil {
		c.MaxRetries = *f.MaxRetries
	}
	if len(f.Player) > 0 {
		c.Player = append([]string(nil), f.Player...)
	}
	if f.DownloadDir != "" {
		c.DownloadDir = f.DownloadDir
	}
	if f.Proxy != "" {
		c.Proxy = f.Proxy
	}
	return nil
}

// ApplyEnv overlays settings from the environment.
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvServer); v != "" {
		c.Server = v
	}
	if v := os.Getenv(EnvSource); v != "" {
		c.SourceLang = v
	}
	if v := os.Getenv(EnvTarget); v != "" {
		c.TargetLang = v
	}
	if v := os.Getenv(EnvDebounce); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvDebounce, err)
		}
		c.Debounce = d
	}
	if v := os.Getenv(EnvTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvTimeout, err)
		}
		c.Timeout = d
	}
	if v := os.Getenv(EnvMaxRetries); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvMaxRetries, err)
		}
		c.MaxRetries = n
	}
	if v := os.Getenv(EnvPlayer); v != "" {
		c.Player = strings.Fields(v)
	}
	if v := os.Getenv(EnvProxy); v != "" {
		c.Proxy = v
	}
	if v := os.Getenv(EnvSentryDSN); v != "" {
		c.SentryDSN = v
	}
	return nil
}

// ---------------------------------------------------------------------------
// Validation
// ---------------------------------------------------------------------------

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server) == "" {
		return errors.New("server URL is empty")
	}
	u, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server URL %q: %w", c.Server, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL %q: unsupported scheme %q (valid: http, https)", c.Server, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("server URL %q has no host", c.Server)
	}
	if c.Debounce <= 0 {
		return fmt.Errorf("debounce must be positive, got %s", c.Debounce)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max_retries must not be negative, got %d", c.MaxRetries)
	}
	if c.TargetLang == "" || strings.EqualFold(c.TargetLang, "auto") {
		return fmt.Errorf("target language %q is not a concrete language", c.TargetLang)
	}
	if c.SourceLang == "" {
		return errors.New("source language is empty")
	}
	if c.Proxy != "" {
		if _, err := url.Parse(c.Proxy); err != nil {
			return fmt.Errorf("invalid proxy URL %q: %w", c.Proxy, err)
		}
	}
	return nil
}
