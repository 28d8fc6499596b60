package main

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"github.com/Zereker/particle"
)

// Config holds the echo example configuration.
type Config struct {
	Address string `yaml:"address"`
	Debug   bool   `yaml:"debug"`

	Keepalive struct {
		InitialDelay time.Duration `yaml:"initial_delay"`
		Period       time.Duration `yaml:"period"`
	} `yaml:"keepalive"`

	PeerTimeout     time.Duration `yaml:"peer_timeout"`
	DialTimeout     time.Duration `yaml:"dial_timeout"`
	MaxDatagramSize int           `yaml:"max_datagram_size"`

	// StatsInterval is how often servers log their connection count. Zero
	// disables it.
	StatsInterval time.Duration `yaml:"stats_interval"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Address:       "127.0.0.1:12345",
		StatsInterval: 10 * time.Second,
	}
	cfg.Keepalive.InitialDelay = 100 * time.Millisecond
	cfg.Keepalive.Period = time.Second
	return cfg
}

// loadConfig reads a YAML file over the defaults. A missing file yields
// the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, errors.Wrap(err, "read config")
	}

	if err = yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parse config %s", path)
	}
	return cfg, nil
}

// options maps the configuration onto endpoint options. Zero values keep
// the library defaults.
func (c *Config) options(logger particle.Logger) []particle.Option {
	opts := []particle.Option{
		particle.LoggerOption(logger),
		particle.KeepaliveOption(c.Keepalive.InitialDelay, c.Keepalive.Period),
		particle.PeerTimeoutOption(c.PeerTimeout),
		particle.DialTimeoutOption(c.DialTimeout),
	}
	if c.MaxDatagramSize > 0 {
		opts = append(opts, particle.MaxDatagramSizeOption(c.MaxDatagramSize))
	}
	return opts
}
