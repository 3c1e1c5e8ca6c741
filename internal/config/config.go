// Package config loads settings for the agent and the room server.
//
// Values are layered: built-in defaults, then an optional TOML or YAML file,
// then environment variables. Command-line flags are applied last by each
// binary's main.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "COLLABTEXT_"

// ErrUnsupportedFormat is returned for config files that are neither TOML nor YAML.
var ErrUnsupportedFormat = errors.New("config: unsupported file format")

// Config is the full settings tree.
type Config struct {
	Agent  Agent  `toml:"agent" yaml:"agent"`
	Server Server `toml:"server" yaml:"server"`
}

// Agent configures the editor client.
type Agent struct {
	APIBaseURL      string   `toml:"api_base_url" yaml:"api_base_url"`
	WSBaseURL       string   `toml:"ws_base_url" yaml:"ws_base_url"`
	ReconnectDelay  Duration `toml:"reconnect_delay" yaml:"reconnect_delay"`
	Discover        bool     `toml:"discover" yaml:"discover"`
	DiscoverTimeout Duration `toml:"discover_timeout" yaml:"discover_timeout"`
	Language        string   `toml:"language" yaml:"language"`
	LogFile         string   `toml:"log_file" yaml:"log_file"`
}

// Server configures the room server.
type Server struct {
	Addr        string `toml:"addr" yaml:"addr"`
	DatabaseURL string `toml:"database_url" yaml:"database_url"`
	BoltPath    string `toml:"bolt_path" yaml:"bolt_path"`
	RedisAddr   string `toml:"redis_addr" yaml:"redis_addr"`
	Announce    bool   `toml:"announce" yaml:"announce"`
	ServiceName string `toml:"service_name" yaml:"service_name"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Agent: Agent{
			APIBaseURL:      "http://localhost:8000/api",
			WSBaseURL:       "ws://localhost:8000",
			ReconnectDelay:  Duration(3 * time.Second),
			DiscoverTimeout: Duration(3 * time.Second),
			Language:        "python",
			LogFile:         "collabtext.log",
		},
		Server: Server{
			Addr:        ":8000",
			BoltPath:    "collabtext.db",
			ServiceName: "_collabtext._tcp",
		},
	}
}

// Load returns Default overlaid with the file at path (if path is not empty)
// and then with the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

type lookupFunc func(string) (string, bool)

func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(dst *string, names ...string) {
		for _, name := range names {
			if v, ok := lookup(name); ok && v != "" {
				*dst = v
				return
			}
		}
	}
	boolean := func(dst *bool, name string) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = b
		return nil
	}
	duration := func(dst *Duration, name string) error {
		v, ok := lookup(name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		*dst = Duration(d)
		return nil
	}

	str(&cfg.Agent.APIBaseURL, EnvPrefix+"API_BASE_URL")
	str(&cfg.Agent.WSBaseURL, EnvPrefix+"WS_BASE_URL")
	str(&cfg.Agent.Language, EnvPrefix+"LANGUAGE")
	str(&cfg.Agent.LogFile, EnvPrefix+"LOG_FILE")
	str(&cfg.Server.Addr, EnvPrefix+"ADDR")
	str(&cfg.Server.DatabaseURL, EnvPrefix+"DATABASE_URL", "DATABASE_URL")
	str(&cfg.Server.BoltPath, EnvPrefix+"BOLT_PATH")
	str(&cfg.Server.RedisAddr, EnvPrefix+"REDIS_ADDR", "REDIS_ADDR")
	str(&cfg.Server.ServiceName, EnvPrefix+"SERVICE_NAME")

	return errors.Join(
		duration(&cfg.Agent.ReconnectDelay, EnvPrefix+"RECONNECT_DELAY"),
		duration(&cfg.Agent.DiscoverTimeout, EnvPrefix+"DISCOVER_TIMEOUT"),
		boolean(&cfg.Agent.Discover, EnvPrefix+"DISCOVER"),
		boolean(&cfg.Server.Announce, EnvPrefix+"ANNOUNCE"),
	)
}

// Validate reports settings that cannot work.
func (c Config) Validate() error {
	var errs []error
	if c.Agent.APIBaseURL == "" {
		errs = append(errs, errors.New("agent.api_base_url is empty"))
	}
	if c.Agent.WSBaseURL == "" {
		errs = append(errs, errors.New("agent.ws_base_url is empty"))
	}
	if c.Agent.ReconnectDelay <= 0 {
		errs = append(errs, fmt.Errorf("agent.reconnect_delay must be positive, got %s", c.Agent.ReconnectDelay))
	}
	if c.Agent.Discover && c.Agent.DiscoverTimeout <= 0 {
		errs = append(errs, fmt.Errorf("agent.discover_timeout must be positive, got %s", c.Agent.DiscoverTimeout))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	}
	if c.Server.DatabaseURL == "" && c.Server.BoltPath == "" {
		errs = append(errs, errors.New("server needs database_url or bolt_path"))
	}
	if c.Server.Announce && c.Server.ServiceName == "" {
		errs = append(errs, errors.New("server.service_name is empty"))
	}
	return errors.Join(errs...)
}

// Duration is a time.Duration written as a string ("3s", "500ms") in config files.
type Duration time.Duration

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}
