// Package config loads jsonffi settings from TOML.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap/zapcore"

	"github.com/wippyai/jsonffi/errors"
)

// Backend names a foreign library implementation.
type Backend string

const (
	BackendWasm   Backend = "wasm"
	BackendNative Backend = "native"
	BackendMemory Backend = "memory"
)

// Config holds runtime settings.
type Config struct {
	Backend Backend

	// Module is a container library binary for the wasm backend. Empty
	// selects the built-in library.
	Module string

	LogLevel string
	Indent   string

	CallTimeout time.Duration

	MemoryLimitPages   uint32
	CloseOnContextDone bool

	// Release containers after decoding.
	Release bool
}

type fileConfig struct {
	Backend            string `toml:"backend"`
	Module             string `toml:"module"`
	LogLevel           string `toml:"log_level"`
	Indent             string `toml:"indent"`
	CallTimeout        string `toml:"call_timeout"`
	MemoryLimitPages   int64  `toml:"memory_limit_pages"`
	CloseOnContextDone bool   `toml:"close_on_context_done"`
	Release            bool   `toml:"release"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:            BackendWasm,
		LogLevel:           "info",
		Indent:             "  ",
		CallTimeout:        5 * time.Second,
		MemoryLimitPages:   256,
		CloseOnContextDone: true,
		Release:            true,
	}
}

// LoadFile reads path and overlays the keys it defines on Default.
func LoadFile(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, errors.InvalidConfig("load "+path, err)
	}
	return overlay(meta, raw)
}

// Parse decodes TOML text and overlays the keys it defines on Default.
func Parse(text string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(text, &raw)
	if err != nil {
		return Config{}, errors.InvalidConfig("parse config", err)
	}
	return overlay(meta, raw)
}

func overlay(meta toml.MetaData, raw fileConfig) (Config, error) {
	cfg := Default()

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, errors.InvalidConfig("unknown keys: "+strings.Join(keys, ", "), nil)
	}

	if meta.IsDefined("backend") {
		cfg.Backend = Backend(strings.ToLower(strings.TrimSpace(raw.Backend)))
	}

	if meta.IsDefined("module") {
		cfg.Module = strings.TrimSpace(raw.Module)
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("indent") {
		cfg.Indent = raw.Indent
	}

	if meta.IsDefined("call_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.CallTimeout))
		if err != nil {
			return Config{}, errors.InvalidConfig("parse call_timeout", err)
		}
		cfg.CallTimeout = d
	}

	if meta.IsDefined("memory_limit_pages") {
		if raw.MemoryLimitPages < 0 || raw.MemoryLimitPages > 65536 {
			return Config{}, errors.InvalidConfig(
				fmt.Sprintf("memory_limit_pages %d out of range", raw.MemoryLimitPages), nil)
		}
		cfg.MemoryLimitPages = uint32(raw.MemoryLimitPages)
	}

	if meta.IsDefined("close_on_context_done") {
		cfg.CloseOnContextDone = raw.CloseOnContextDone
	}

	if meta.IsDefined("release") {
		cfg.Release = raw.Release
	}

	return cfg, cfg.Validate()
}

// Validate checks field values.
func (c Config) Validate() error {
	switch c.Backend {
	case BackendWasm, BackendNative, BackendMemory:
	default:
		return errors.InvalidConfig(fmt.Sprintf("unknown backend %q", c.Backend), nil)
	}
	if c.Module != "" && c.Backend != BackendWasm {
		return errors.InvalidConfig("module is only used by the wasm backend", nil)
	}
	if c.MemoryLimitPages > 65536 {
		return errors.InvalidConfig(fmt.Sprintf("memory_limit_pages %d out of range", c.MemoryLimitPages), nil)
	}
	if c.CallTimeout < 0 {
		return errors.InvalidConfig("call_timeout must not be negative", nil)
	}
	if strings.Trim(c.Indent, " \t") != "" {
		return errors.InvalidConfig("indent may only contain spaces and tabs", nil)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (zapcore.Level, error) {
	lvl, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return zapcore.InfoLevel, errors.InvalidConfig("parse log_level", err)
	}
	return lvl, nil
}
