// Package config loads airbridge.yml (§6 "CLI... -c/--config <path>
// default airbridge.yml") via viper, binding only the subset of fields the
// four core subsystems actually consume. Everything else — the full DS ini
// schema, the HTTP API config — is an external collaborator per §1 and is
// passed through untouched as an opaque map. Grounded on the teacher's own
// config.go (viper.New + SetDefault + mapstructure Unmarshal pattern).
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// DSConfig describes how to spawn and talk to the DS child process.
type DSConfig struct {
	WineBinPath    string `mapstructure:"wine_bin_path"`
	ExePath        string `mapstructure:"exe_path"`
	ConfigPath     string `mapstructure:"config_path"`
	StartScript    string `mapstructure:"start_script"`
	Host           string `mapstructure:"host"`
	ConnectionPort int    `mapstructure:"connection_port"`
	ConsolePort    int    `mapstructure:"console_port"`
	DeviceLinkPort int    `mapstructure:"device_link_port"`
	BootTimeout    string `mapstructure:"boot_timeout"`
}

// ProxyConfig describes one proxy listener's bind address and whether it
// is enabled at all (§4.12 step 9: proxies are optional).
type ProxyConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BindAddr string `mapstructure:"bind_addr"`
}

// BusConfig describes the optional messaging-bus connection (§4.12 step 5).
type BusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URLs    string `mapstructure:"urls"`
}

// SinkConfig is one entry of the shortcut subscriber mapping described in
// §6: {shortcut_name: {args, subscription_options}}.
type SinkConfig struct {
	Shortcut            string         `mapstructure:"shortcut"`
	Args                map[string]any `mapstructure:"args"`
	SubscriptionOptions map[string]any `mapstructure:"subscription_options"`
}

// FacilitySinks lists the sinks subscribed to one facility at boot.
type FacilitySinks struct {
	Chat      []SinkConfig `mapstructure:"chat"`
	Events    []SinkConfig `mapstructure:"events"`
	NotParsed []SinkConfig `mapstructure:"not_parsed_strings"`
	Radar     []SinkConfig `mapstructure:"radar"`
}

// Config is the full set of fields this core consumes. Any other key
// present in the file is preserved in Extra (§1 non-goals: "the YAML
// app-config schema and loader" beyond this subset is out of scope).
type Config struct {
	DS             DSConfig      `mapstructure:"ds"`
	GameLogPath    string        `mapstructure:"game_log_path"`
	StatePath      string        `mapstructure:"state_path"`
	ConsoleProxy   ProxyConfig   `mapstructure:"console_proxy"`
	DeviceLinkProxy ProxyConfig  `mapstructure:"device_link_proxy"`
	Bus            BusConfig     `mapstructure:"bus"`
	Sinks          FacilitySinks `mapstructure:"sinks"`
	LogLevel       string        `mapstructure:"log_level"`

	Extra map[string]any `mapstructure:",remain"`
}

// Default returns a Config with sane defaults for local development.
func Default() *Config {
	return &Config{
		DS: DSConfig{
			Host:           "localhost",
			ConnectionPort: 21000,
			ConsolePort:    20000,
			DeviceLinkPort: 10000,
			BootTimeout:    "30s",
		},
		GameLogPath: "events.log",
		StatePath:   "airbridge_state.yml",
		ConsoleProxy: ProxyConfig{
			Enabled:  true,
			BindAddr: ":20001",
		},
		DeviceLinkProxy: ProxyConfig{
			Enabled:  true,
			BindAddr: ":10001",
		},
		LogLevel: "info",
	}
}

// Load reads path (or the default airbridge.yml if path is empty) and
// unmarshals it over Default(). A missing file is not treated as a read
// error: the defaults are used and then validated like a loaded file, so a
// missing file still fails Validate, since the defaults set no ds.exe_path.
func Load(path string) (*Config, error) {
	cfg := Default()
	v := viper.New()

	if path == "" {
		path = "airbridge.yml"
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		// SetConfigFile (used above, since path may be explicit) makes viper
		// surface a missing file as the underlying *os.PathError rather than
		// its own ConfigFileNotFoundError, which only SetConfigName/
		// AddConfigPath-based lookups produce; check both.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	v.SetEnvPrefix("AIRBRIDGE")
	v.AutomaticEnv()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// BootTimeout parses DS.BootTimeout, defaulting to 30s on a bad or empty
// value.
func (c *Config) BootTimeout() time.Duration {
	d, err := time.ParseDuration(c.DS.BootTimeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// Validate checks the fields this core actually requires.
func (c *Config) Validate() error {
	if c.DS.ExePath == "" {
		return fmt.Errorf("config: ds.exe_path is required")
	}
	if c.DS.ConsolePort <= 0 || c.DS.ConnectionPort <= 0 || c.DS.DeviceLinkPort <= 0 {
		return fmt.Errorf("config: ds connection/console/device_link ports must be positive")
	}
	return nil
}
