// Package config loads evnet's runtime configuration (listen addresses,
// worker counts, timeouts, TLS material paths) from environment variables,
// grounded on the teacher pack's env-var config pattern (the
// caarlos0/env-backed Load/MustLoad convention documented in
// dmitrymomot/foundation's core/config package) rather than a bespoke flag
// parser. This package is never imported by the root evnet/http/ws
// packages; it is purely an optional convenience for application binaries.
package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the environment-sourced settings for a typical evnet
// application: where to listen, how many worker Threads to run, and the
// timeouts governing connect/close/handshake.
type Config struct {
	ListenAddr string `env:"EVNET_LISTEN_ADDR" envDefault:"0.0.0.0:8080"`

	WorkerCount          int `env:"EVNET_WORKER_COUNT" envDefault:"4"`
	MaxChannelsPerWorker int `env:"EVNET_MAX_CHANNELS_PER_WORKER" envDefault:"0"`

	ConnectTimeout time.Duration `env:"EVNET_CONNECT_TIMEOUT" envDefault:"10s"`
	CloseTimeout   time.Duration `env:"EVNET_CLOSE_TIMEOUT" envDefault:"15s"`

	TLSCertFile string `env:"EVNET_TLS_CERT_FILE"`
	TLSKeyFile  string `env:"EVNET_TLS_KEY_FILE"`

	LogLevel string `env:"EVNET_LOG_LEVEL" envDefault:"info"`
}

// Load parses environment variables into a Config.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoad is Load, panicking on failure. Intended for use during process
// startup where a malformed environment should abort immediately.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// TLSEnabled reports whether both certificate and key file paths were
// configured.
func (c *Config) TLSEnabled() bool {
	return c.TLSCertFile != "" && c.TLSKeyFile != ""
}
