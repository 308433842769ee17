// Package config loads session settings from a TOML file and MODALSYNC_
// environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. MODALSYNC_SYNC_ECHO_GRACE.
const EnvPrefix = "MODALSYNC"

// Config holds session configuration.
type Config struct {
	Sync     SyncConfig     `mapstructure:"sync"`
	Viewport ViewportConfig `mapstructure:"viewport"`
	Log      LogConfig      `mapstructure:"log"`
}

// SyncConfig holds reconciliation timing.
type SyncConfig struct {
	// EchoGrace is how long a predicted echo of an outbound update is
	// recognized.
	EchoGrace time.Duration `mapstructure:"echo_grace"`
	// AckTimeout bounds every outbound call.
	AckTimeout time.Duration `mapstructure:"ack_timeout"`
	// Debounce delays draining after a burst of events. Zero drains at once.
	Debounce time.Duration `mapstructure:"debounce"`
	// EngineViewports forwards host scrolling to engines that support it.
	EngineViewports bool `mapstructure:"engine_viewports"`
}

// ViewportConfig holds the reveal policy.
type ViewportConfig struct {
	Margin        int `mapstructure:"margin"`
	DefaultHeight int `mapstructure:"default_height"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level   string `mapstructure:"level"`
	Format  string `mapstructure:"format"`
	History int    `mapstructure:"history"`
}

func Default() Config {
	return Config{
		Sync: SyncConfig{
			EchoGrace:  150 * time.Millisecond,
			AckTimeout: 2 * time.Second,
		},
		Viewport: ViewportConfig{
			Margin:        3,
			DefaultHeight: 40,
		},
		Log: LogConfig{
			Level:   "info",
			Format:  "text",
			History: 256,
		},
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("sync.echo_grace", d.Sync.EchoGrace)
	v.SetDefault("sync.ack_timeout", d.Sync.AckTimeout)
	v.SetDefault("sync.debounce", d.Sync.Debounce)
	v.SetDefault("sync.engine_viewports", d.Sync.EngineViewports)
	v.SetDefault("viewport.margin", d.Viewport.Margin)
	v.SetDefault("viewport.default_height", d.Viewport.DefaultHeight)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.history", d.Log.History)
}

// DefaultPath is where Load looks when neither a path nor MODALSYNC_CONFIG is
// given.
func DefaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".config", "modalsync", "config.toml")
}

// Load reads configuration from path, or from MODALSYNC_CONFIG when path is
// empty, or from DefaultPath. A missing file is an error only when it was
// named explicitly. Env var overrides use prefix MODALSYNC_.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigType("toml")

	explicit := true
	if path == "" {
		path = os.Getenv(EnvPrefix + "_CONFIG")
	}
	if path == "" {
		path = DefaultPath()
		explicit = false
	}
	v.SetConfigFile(path)

	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Save writes cfg as TOML, creating the directory if needed.
func Save(cfg Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("sync.echo_grace", cfg.Sync.EchoGrace.String())
	v.Set("sync.ack_timeout", cfg.Sync.AckTimeout.String())
	v.Set("sync.debounce", cfg.Sync.Debounce.String())
	v.Set("sync.engine_viewports", cfg.Sync.EngineViewports)
	v.Set("viewport.margin", cfg.Viewport.Margin)
	v.Set("viewport.default_height", cfg.Viewport.DefaultHeight)
	v.Set("log.level", cfg.Log.Level)
	v.Set("log.format", cfg.Log.Format)
	v.Set("log.history", cfg.Log.History)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

var ErrInvalid = errors.New("config: invalid value")

// Validate rejects negative durations and margins, and unknown log settings.
func (c Config) Validate() error {
	var errs []error
	for key, d := range map[string]time.Duration{
		"sync.echo_grace":  c.Sync.EchoGrace,
		"sync.ack_timeout": c.Sync.AckTimeout,
		"sync.debounce":    c.Sync.Debounce,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%w: %s must not be negative (%s)", ErrInvalid, key, d))
		}
	}
	if c.Viewport.Margin < 0 {
		errs = append(errs, fmt.Errorf("%w: viewport.margin must not be negative (%d)", ErrInvalid, c.Viewport.Margin))
	}
	if c.Viewport.DefaultHeight < 1 {
		errs = append(errs, fmt.Errorf("%w: viewport.default_height must be positive (%d)", ErrInvalid, c.Viewport.DefaultHeight))
	}
	if _, err := c.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json", "":
	default:
		errs = append(errs, fmt.Errorf("%w: log.format %q", ErrInvalid, c.Log.Format))
	}
	return errors.Join(errs...)
}

// SlogLevel parses Level; empty means info.
func (c LogConfig) SlogLevel() (slog.Level, error) {
	switch strings.ToLower(c.Level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("%w: log.level %q", ErrInvalid, c.Level)
	}
}
