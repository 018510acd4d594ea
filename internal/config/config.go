// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/ksaregtech/regtech-tui/internal/logging"
	"github.com/ksaregtech/regtech-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete regtech configuration.
type Config struct {
	Service    ServiceConfig    `toml:"service" json:"service"`
	Usage      UsageConfig      `toml:"usage" json:"usage"`
	Credential CredentialConfig `toml:"credential" json:"credential"`
	Storage    StorageConfig    `toml:"storage" json:"storage"`
	UI         UIConfig         `toml:"ui" json:"ui"`
	Logging    LoggingConfig    `toml:"logging" json:"logging"`
}

// ServiceConfig locates the answer service.
type ServiceConfig struct {
	// BaseURL is the answer service root, e.g. http://localhost:8000
	BaseURL string `toml:"base_url" json:"base_url"`

	// HealthTimeoutSecs bounds the /health probe
	HealthTimeoutSecs int `toml:"health_timeout_secs" json:"health_timeout_secs"`
}

// UsageConfig controls the anonymous quota.
type UsageConfig struct {
	// Quota is the number of free prompts before sign-in is required
	Quota int `toml:"quota" json:"quota"`

	// IdentityTTLHours expires signed identities (0 = until logout)
	IdentityTTLHours int `toml:"identity_ttl_hours" json:"identity_ttl_hours"`
}

// CredentialConfig selects the credential backend.
type CredentialConfig struct {
	// Provider is one of: device, totp, none
	Provider string `toml:"provider" json:"provider"`

	// Issuer labels TOTP accounts in authenticator apps
	Issuer string `toml:"issuer" json:"issuer"`
}

// StorageConfig controls local persistence.
type StorageConfig struct {
	// DataDir holds conversations, state.db and credentials (default ~/.regtech)
	DataDir string `toml:"data_dir" json:"data_dir"`

	// MaxConversations limits stored conversations (0 = unlimited)
	MaxConversations int `toml:"max_conversations" json:"max_conversations"`
}

// UIConfig contains terminal UI preferences.
type UIConfig struct {
	// Theme is one of: auto, dark, light
	Theme string `toml:"theme" json:"theme"`

	// WordWrap is the transcript wrap width (0 = terminal width)
	WordWrap int `toml:"word_wrap" json:"word_wrap"`

	// RenderMarkdown renders answers with glamour
	RenderMarkdown bool `toml:"render_markdown" json:"render_markdown"`
}

// LoggingConfig controls the log file.
type LoggingConfig struct {
	// Level is one of: debug, info, warn, error
	Level string `toml:"level" json:"level"`

	// File is the log path (default <data_dir>/regtech.log)
	File string `toml:"file" json:"file"`
}

// =============================================================================
// DEFAULTS
// =============================================================================

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Service: ServiceConfig{
			BaseURL:           "http://localhost:8000",
			HealthTimeoutSecs: 5,
		},
		Usage: UsageConfig{
			Quota:            10,
			IdentityTTLHours: 0,
		},
		Credential: CredentialConfig{
			Provider: "device",
			Issuer:   "KSA RegTech",
		},
		Storage: StorageConfig{
			MaxConversations: 100,
		},
		UI: UIConfig{
			Theme:          "auto",
			WordWrap:       0,
			RenderMarkdown: true,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// SetDefaults fills empty fields with built-in values.
func (c *Config) SetDefaults() {
	d := Default()
	if c.Service.BaseURL == "" {
		c.Service.BaseURL = d.Service.BaseURL
	}
	if c.Service.HealthTimeoutSecs == 0 {
		c.Service.HealthTimeoutSecs = d.Service.HealthTimeoutSecs
	}
	if c.Usage.Quota == 0 {
		c.Usage.Quota = d.Usage.Quota
	}
	if c.Credential.Provider == "" {
		c.Credential.Provider = d.Credential.Provider
	}
	if c.Credential.Issuer == "" {
		c.Credential.Issuer = d.Credential.Issuer
	}
	if c.UI.Theme == "" {
		c.UI.Theme = d.UI.Theme
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	c.Service.BaseURL = strings.TrimRight(c.Service.BaseURL, "/")
	c.Credential.Provider = strings.ToLower(c.Credential.Provider)
	c.UI.Theme = strings.ToLower(c.UI.Theme)
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the regtech home directory. REGTECH_HOME overrides the
// default ~/.regtech.
func ConfigDir() (string, error) {
	if dir := os.Getenv("REGTECH_HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".regtech"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the resolved data directory.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir), nil
	}
	return ConfigDir()
}

// LogFile returns the resolved log path.
func (c *Config) LogFile() (string, error) {
	if c.Logging.File != "" {
		return expandHome(c.Logging.File), nil
	}
	dir, err := c.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "regtech.log"), nil
}

// HealthTimeout returns the /health timeout.
func (c *Config) HealthTimeout() time.Duration {
	return time.Duration(c.Service.HealthTimeoutSecs) * time.Second
}

// IdentityTTL returns the identity lifetime (0 = until logout).
func (c *Config) IdentityTTL() time.Duration {
	return time.Duration(c.Usage.IdentityTTLHours) * time.Hour
}

func expandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// ensureSecurePermissions tightens config files to 0600.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// LoadDotEnv loads KEY=VALUE pairs from the given files (default ".env")
// into the environment without overriding variables that are already set.
// Missing files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load reads ~/.regtech/config.toml when present, then applies environment
// overrides, defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPathTOML()
	if err != nil {
		return nil, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		return finish(Default())
	}
	return LoadFromPath(path)
}

// LoadFromPath loads configuration from a specific TOML file.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if err := LoadTOML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

// LoadTOML decodes a TOML file over cfg. Unknown keys are rejected.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown config keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
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

// SaveTOML writes cfg to path with 0600 permissions.
func SaveTOML(cfg *Config, path string) error {
	err := util.AtomicWrite(path, 0600, func(w io.Writer) error {
		fmt.Fprintln(w, "# regtech configuration file")
		fmt.Fprintln(w, "# Environment variables REGTECH_* override these values")
		fmt.Fprintln(w)
		if err := toml.NewEncoder(w).Encode(cfg); err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		return nil
	})
	if err != nil {
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
	msgs := make([]string, len(e))
	for i, err := range e {
		msgs[i] = err.Error()
	}
	return strings.Join(msgs, "; ")
}

var (
	validProviders = map[string]bool{"device": true, "totp": true, "none": true}
	validThemes    = map[string]bool{"auto": true, "dark": true, "light": true}
)

// Validate checks every field and returns ValidateErrors listing all problems.
func (c *Config) Validate() error {
	var errs ValidateErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	// Service
	if u, err := url.Parse(c.Service.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		add("service.base_url", "invalid URL '%s', must be http(s)://host[:port]", c.Service.BaseURL)
	}
	if c.Service.HealthTimeoutSecs < 1 || c.Service.HealthTimeoutSecs > 120 {
		add("service.health_timeout_secs", "must be between 1 and 120, got %d", c.Service.HealthTimeoutSecs)
	}

	// Usage
	if c.Usage.Quota < 1 || c.Usage.Quota > 10000 {
		add("usage.quota", "must be between 1 and 10000, got %d", c.Usage.Quota)
	}
	if c.Usage.IdentityTTLHours < 0 {
		add("usage.identity_ttl_hours", "must not be negative, got %d", c.Usage.IdentityTTLHours)
	}

	// Credential
	if !validProviders[c.Credential.Provider] {
		add("credential.provider", "invalid provider '%s', must be one of: device, totp, none", c.Credential.Provider)
	}

	// Storage
	if c.Storage.MaxConversations < 0 {
		add("storage.max_conversations", "must not be negative, got %d", c.Storage.MaxConversations)
	}

	// UI
	if !validThemes[c.UI.Theme] {
		add("ui.theme", "invalid theme '%s', must be one of: auto, dark, light", c.UI.Theme)
	}
	if c.UI.WordWrap != 0 && (c.UI.WordWrap < 20 || c.UI.WordWrap > 400) {
		add("ui.word_wrap", "must be 0 or between 20 and 400, got %d", c.UI.WordWrap)
	}

	// Logging
	if !logging.ValidLevel(c.Logging.Level) {
		add("logging.level", "invalid level '%s', must be one of: debug, info, warn, error", c.Logging.Level)
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies REGTECH_* environment variables:
//   - REGTECH_API_URL: service.base_url
//   - REGTECH_QUOTA: usage.quota
//   - REGTECH_PROVIDER: credential.provider
//   - REGTECH_DATA_DIR: storage.data_dir
//   - REGTECH_LOG_LEVEL: logging.level
//   - REGTECH_THEME: ui.theme
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("REGTECH_API_URL"); v != "" {
		c.Service.BaseURL = v
	}
	if v := os.Getenv("REGTECH_QUOTA"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Usage.Quota = n
		} else {
			fmt.Fprintf(os.Stderr, "Warning: ignoring REGTECH_QUOTA=%q: %v\n", v, err)
		}
	}
	if v := os.Getenv("REGTECH_PROVIDER"); v != "" {
		c.Credential.Provider = v
	}
	if v := os.Getenv("REGTECH_DATA_DIR"); v != "" {
		c.Storage.DataDir = v
	}
	if v := os.Getenv("REGTECH_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REGTECH_THEME"); v != "" {
		c.UI.Theme = v
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "usage.quota").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
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
	parts := strings.Split(key, ".")
	if key == "" || len(parts) != 2 {
		return reflect.Value{}, fmt.Errorf("invalid key %q, expected section.field", key)
	}

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
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
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
			boolVal, err := strconv.ParseBool(strVal)
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
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

// Keys returns all configuration keys in dot notation.
func Keys() []string {
	return []string{
		"service.base_url",
		"service.health_timeout_secs",
		"usage.quota",
		"usage.identity_ttl_hours",
		"credential.provider",
		"credential.issuer",
		"storage.data_dir",
		"storage.max_conversations",
		"ui.theme",
		"ui.word_wrap",
		"ui.render_markdown",
		"logging.level",
		"logging.file",
	}
}

// Clone returns a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns the configuration as indented JSON.
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}
