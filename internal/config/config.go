// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/sheetmate/internal/provider"
	"github.com/jeranaias/sheetmate/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete sheetmate configuration.
type Config struct {
	Server    ServerConfig    `toml:"server" json:"server"`
	Logging   LoggingConfig   `toml:"logging" json:"logging"`
	Model     ModelConfig     `toml:"model" json:"model"`
	Providers ProvidersConfig `toml:"providers" json:"providers"`
	Settings  SettingsConfig  `toml:"settings" json:"settings"`
	Session   SessionConfig   `toml:"session" json:"session"`
}

// ServerConfig configures the task pane API.
type ServerConfig struct {
	// Addr is the listen address, e.g. "127.0.0.1:3978"
	Addr string `toml:"addr" json:"addr"`
	// AllowedOrigins lists the task pane origins allowed by CORS ("*" for any)
	AllowedOrigins []string `toml:"allowed_origins" json:"allowed_origins"`
	// AuthToken, when set, must be sent as a bearer token on API routes
	AuthToken string `toml:"auth_token" json:"auth_token,omitempty"`
	// MaxBodyMB caps request bodies, attachments included
	MaxBodyMB int `toml:"max_body_mb" json:"max_body_mb"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	// Level is one of trace, debug, info, warn, error
	Level string `toml:"level" json:"level"`
	// Format is "console" or "json"
	Format string `toml:"format" json:"format"`
}

// ModelConfig holds the defaults for new sessions.
type ModelConfig struct {
	// Default is the "provider:model" selection new sessions start with
	Default string `toml:"default" json:"default"`
	// Language is the reply language injected into the prompts
	Language string `toml:"language" json:"language"`
	// RequestTimeoutSecs bounds every provider call
	RequestTimeoutSecs int `toml:"request_timeout_secs" json:"request_timeout_secs"`
	// ScriptTimeoutSecs bounds host script execution
	ScriptTimeoutSecs int `toml:"script_timeout_secs" json:"script_timeout_secs"`
	// ProbeTimeoutSecs bounds key tests and model checks
	ProbeTimeoutSecs int `toml:"probe_timeout_secs" json:"probe_timeout_secs"`
}

// Endpoint overrides a provider base URL.
type Endpoint struct {
	BaseURL string `toml:"base_url" json:"base_url"`
}

// AnthropicConfig configures the messages API.
type AnthropicConfig struct {
	BaseURL   string `toml:"base_url" json:"base_url"`
	Version   string `toml:"version" json:"version"`
	MaxTokens int    `toml:"max_tokens" json:"max_tokens"`
}

// ProvidersConfig holds per-provider endpoint settings. API keys are never
// stored here.
type ProvidersConfig struct {
	OpenAI    Endpoint        `toml:"openai" json:"openai"`
	Anthropic AnthropicConfig `toml:"anthropic" json:"anthropic"`
	Gemini    Endpoint        `toml:"gemini" json:"gemini"`
}

// SettingsConfig selects the saved-key store.
type SettingsConfig struct {
	// Store is "sqlite", "file" or "memory"
	Store string `toml:"store" json:"store"`
	// Path is the SQLite database path
	Path string `toml:"path" json:"path"`
	// FallbackPath is the JSON file used when SQLite is unavailable
	FallbackPath string `toml:"fallback_path" json:"fallback_path"`
}

// SessionConfig configures panel sessions.
type SessionConfig struct {
	// IdleTimeoutMins expires sessions without activity
	IdleTimeoutMins int `toml:"idle_timeout_mins" json:"idle_timeout_mins"`
}

// RequestTimeout returns the provider call timeout.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Model.RequestTimeoutSecs) * time.Second
}

// ScriptTimeout returns the host execution timeout.
func (c *Config) ScriptTimeout() time.Duration {
	return time.Duration(c.Model.ScriptTimeoutSecs) * time.Second
}

// ProbeTimeout returns the key test timeout.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Model.ProbeTimeoutSecs) * time.Second
}

// IdleTimeout returns the session idle timeout.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Session.IdleTimeoutMins) * time.Minute
}

// DefaultSelection parses Model.Default, falling back to the catalog default.
func (c *Config) DefaultSelection() provider.Selection {
	sel, err := provider.ParseSelection(c.Model.Default)
	if err != nil {
		return provider.DefaultSelection()
	}
	return sel
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values. Settings paths are
// filled in by SetDefaults.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           "127.0.0.1:3978",
			AllowedOrigins: []string{"https://localhost:3000"},
			MaxBodyMB:      32,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Model: ModelConfig{
			Default:            provider.DefaultSelection().String(),
			Language:           "ja",
			RequestTimeoutSecs: 120,
			ScriptTimeoutSecs:  60,
			ProbeTimeoutSecs:   15,
		},
		Providers: ProvidersConfig{
			OpenAI: Endpoint{BaseURL: "https://api.openai.com/v1"},
			Anthropic: AnthropicConfig{
				BaseURL:   "https://api.anthropic.com/v1",
				Version:   "2023-06-01",
				MaxTokens: 4096,
			},
			Gemini: Endpoint{BaseURL: "https://generativelanguage.googleapis.com/v1beta"},
		},
		Settings: SettingsConfig{
			Store: "sqlite",
		},
		Session: SessionConfig{
			IdleTimeoutMins: 120,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the sheetmate configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".sheetmate"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0700)
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			return LoadFromPath(tomlPath)
		}
	}

	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			return LoadFromPath(jsonPath)
		}
	}

	return finish(Default())
}

// LoadTOML decodes a TOML file over cfg.
func LoadTOML(cfg *Config, path string) error {
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON decodes a JSON file over cfg.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path. Values missing
// from the file keep their defaults.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// SetDefaults fills zero values with defaults and resolves the settings
// paths under ConfigDir.
func (c *Config) SetDefaults() {
	d := Default()

	if c.Server.Addr == "" {
		c.Server.Addr = d.Server.Addr
	}
	if c.Server.MaxBodyMB == 0 {
		c.Server.MaxBodyMB = d.Server.MaxBodyMB
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = d.Logging.Format
	}
	if c.Model.Default == "" {
		c.Model.Default = d.Model.Default
	}
	if c.Model.Language == "" {
		c.Model.Language = d.Model.Language
	}
	if c.Model.RequestTimeoutSecs == 0 {
		c.Model.RequestTimeoutSecs = d.Model.RequestTimeoutSecs
	}
	if c.Model.ScriptTimeoutSecs == 0 {
		c.Model.ScriptTimeoutSecs = d.Model.ScriptTimeoutSecs
	}
	if c.Model.ProbeTimeoutSecs == 0 {
		c.Model.ProbeTimeoutSecs = d.Model.ProbeTimeoutSecs
	}
	if c.Providers.OpenAI.BaseURL == "" {
		c.Providers.OpenAI.BaseURL = d.Providers.OpenAI.BaseURL
	}
	if c.Providers.Anthropic.BaseURL == "" {
		c.Providers.Anthropic.BaseURL = d.Providers.Anthropic.BaseURL
	}
	if c.Providers.Anthropic.Version == "" {
		c.Providers.Anthropic.Version = d.Providers.Anthropic.Version
	}
	if c.Providers.Anthropic.MaxTokens == 0 {
		c.Providers.Anthropic.MaxTokens = d.Providers.Anthropic.MaxTokens
	}
	if c.Providers.Gemini.BaseURL == "" {
		c.Providers.Gemini.BaseURL = d.Providers.Gemini.BaseURL
	}
	if c.Settings.Store == "" {
		c.Settings.Store = d.Settings.Store
	}
	if c.Session.IdleTimeoutMins == 0 {
		c.Session.IdleTimeoutMins = d.Session.IdleTimeoutMins
	}

	if dir, err := ConfigDir(); err == nil {
		if c.Settings.Path == "" {
			c.Settings.Path = filepath.Join(dir, "settings.db")
		}
		if c.Settings.FallbackPath == "" {
			c.Settings.FallbackPath = filepath.Join(dir, "keys.json")
		}
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes cfg to path atomically with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf strings.Builder
	buf.WriteString("# sheetmate configuration file\n")
	buf.WriteString("# API keys do not belong here: use `sheetmate keys set` or the *_API_KEY env vars\n\n")
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, []byte(buf.String()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON writes cfg to path atomically with 0600 permissions.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var (
	validLevels  = map[string]bool{"trace": true, "debug": true, "info": true, "warn": true, "error": true}
	validFormats = map[string]bool{"console": true, "json": true}
	validStores  = map[string]bool{"sqlite": true, "file": true, "memory": true}
)

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Server
	if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		add("server.addr", "invalid listen address '%s': %v", c.Server.Addr, err)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if err := validateHTTPURL(origin); err != nil {
			add("server.allowed_origins", "invalid origin '%s': %v", origin, err)
		}
	}
	if c.Server.MaxBodyMB < 1 || c.Server.MaxBodyMB > 512 {
		add("server.max_body_mb", "must be between 1 and 512, got %d", c.Server.MaxBodyMB)
	}

	// Logging
	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "invalid level '%s', must be one of: trace, debug, info, warn, error", c.Logging.Level)
	}
	if !validFormats[strings.ToLower(c.Logging.Format)] {
		add("logging.format", "invalid format '%s', must be one of: console, json", c.Logging.Format)
	}

	// Model
	if _, err := provider.ParseSelection(c.Model.Default); err != nil {
		add("model.default", "%v", err)
	}
	if strings.TrimSpace(c.Model.Language) == "" {
		add("model.language", "must not be empty")
	}
	for field, secs := range map[string]int{
		"model.request_timeout_secs": c.Model.RequestTimeoutSecs,
		"model.script_timeout_secs":  c.Model.ScriptTimeoutSecs,
		"model.probe_timeout_secs":   c.Model.ProbeTimeoutSecs,
	} {
		if secs < 1 || secs > 3600 {
			add(field, "must be between 1 and 3600, got %d", secs)
		}
	}

	// Providers
	for field, u := range map[string]string{
		"providers.openai.base_url":    c.Providers.OpenAI.BaseURL,
		"providers.anthropic.base_url": c.Providers.Anthropic.BaseURL,
		"providers.gemini.base_url":    c.Providers.Gemini.BaseURL,
	} {
		if err := validateHTTPURL(u); err != nil {
			add(field, "invalid URL '%s': %v", u, err)
		}
	}
	if c.Providers.Anthropic.Version == "" {
		add("providers.anthropic.version", "must not be empty")
	}
	if c.Providers.Anthropic.MaxTokens < 1 || c.Providers.Anthropic.MaxTokens > 200000 {
		add("providers.anthropic.max_tokens", "must be between 1 and 200000, got %d", c.Providers.Anthropic.MaxTokens)
	}

	// Settings
	if !validStores[c.Settings.Store] {
		add("settings.store", "invalid store '%s', must be one of: sqlite, file, memory", c.Settings.Store)
	}

	// Session
	if c.Session.IdleTimeoutMins < 1 {
		add("session.idle_timeout_mins", "must be positive, got %d", c.Session.IdleTimeoutMins)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - SHEETMATE_ADDR: overrides server.addr
//   - SHEETMATE_ALLOWED_ORIGINS: comma-separated server.allowed_origins
//   - SHEETMATE_AUTH_TOKEN: overrides server.auth_token
//   - SHEETMATE_LOG_LEVEL, SHEETMATE_LOG_FORMAT: override logging
//   - SHEETMATE_MODEL: overrides model.default
//   - SHEETMATE_LANGUAGE: overrides model.language
//   - SHEETMATE_OPENAI_BASE_URL, SHEETMATE_ANTHROPIC_BASE_URL,
//     SHEETMATE_GEMINI_BASE_URL: override provider endpoints
//   - SHEETMATE_SETTINGS_STORE: overrides settings.store
func (c *Config) ApplyEnvOverrides() {
	str := map[string]*string{
		"SHEETMATE_ADDR":               &c.Server.Addr,
		"SHEETMATE_AUTH_TOKEN":         &c.Server.AuthToken,
		"SHEETMATE_LOG_LEVEL":          &c.Logging.Level,
		"SHEETMATE_LOG_FORMAT":         &c.Logging.Format,
		"SHEETMATE_MODEL":              &c.Model.Default,
		"SHEETMATE_LANGUAGE":           &c.Model.Language,
		"SHEETMATE_OPENAI_BASE_URL":    &c.Providers.OpenAI.BaseURL,
		"SHEETMATE_ANTHROPIC_BASE_URL": &c.Providers.Anthropic.BaseURL,
		"SHEETMATE_GEMINI_BASE_URL":    &c.Providers.Gemini.BaseURL,
		"SHEETMATE_SETTINGS_STORE":     &c.Settings.Store,
	}
	for name, dst := range str {
		if v := strings.TrimSpace(os.Getenv(name)); v != "" {
			*dst = v
		}
	}

	if origins := os.Getenv("SHEETMATE_ALLOWED_ORIGINS"); origins != "" {
		var list []string
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				list = append(list, o)
			}
		}
		c.Server.AllowedOrigins = list
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "model.default").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation (e.g., "model.default").
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

func (c *Config) lookup(key string) (reflect.Value, error) {
	if key == "" {
		return reflect.Value{}, errors.New("empty key")
	}
	parts := strings.Split(key, ".")

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)
		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})
		if !field.IsValid() {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}
	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.EqualFold(strVal, "true") || strings.EqualFold(strVal, "yes")
			field.SetBool(boolVal)
			return nil
		case reflect.Slice:
			if field.Type().Elem().Kind() == reflect.String {
				var list []string
				for _, s := range strings.Split(strVal, ",") {
					if s = strings.TrimSpace(s); s != "" {
						list = append(list, s)
					}
				}
				field.Set(reflect.ValueOf(list))
				return nil
			}
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"server.addr",
		"server.allowed_origins",
		"server.auth_token",
		"server.max_body_mb",
		"logging.level",
		"logging.format",
		"model.default",
		"model.language",
		"model.request_timeout_secs",
		"model.script_timeout_secs",
		"model.probe_timeout_secs",
		"providers.openai.base_url",
		"providers.anthropic.base_url",
		"providers.anthropic.version",
		"providers.anthropic.max_tokens",
		"providers.gemini.base_url",
		"settings.store",
		"settings.path",
		"settings.fallback_path",
		"session.idle_timeout_mins",
	}
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	if c.Server.AllowedOrigins != nil {
		clone.Server.AllowedOrigins = append([]string(nil), c.Server.AllowedOrigins...)
	}
	return &clone
}

// String returns the config as indented JSON.
func (c *Config) String() string {
	out := c.Clone()
	if out.Server.AuthToken != "" {
		out.Server.AuthToken = "********"
	}
	data, _ := json.MarshalIndent(out, "", "  ")
	return string(data)
}
