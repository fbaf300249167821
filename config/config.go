// Package config loads TOML configuration for the server, the client and the
// order-entry tool. Every field has a default, so a missing file section or an
// empty path yields a usable configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"order-shop/logging"
	"order-shop/store"
)

// Duration is a time.Duration written as a string ("10s", "250ms") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type EtcdConfig struct {
	Endpoints     []string `toml:"endpoints"`
	AdvertiseAddr string   `toml:"advertise_addr"`
	TTL           int64    `toml:"ttl"` // seconds
	DialTimeout   Duration `toml:"dial_timeout"`
}

// Enabled reports whether any endpoint is configured.
func (e EtcdConfig) Enabled() bool {
	return len(e.Endpoints) > 0
}

type RateLimitConfig struct {
	RPS   float64 `toml:"rps"` // 0 disables limiting
	Burst int     `toml:"burst"`
}

type ServerConfig struct {
	Port            int             `toml:"port"`
	Workers         int             `toml:"workers"`
	SerializeAccept bool            `toml:"serialize_accept"`
	IdleTimeout     Duration        `toml:"idle_timeout"`
	DrainTimeout    Duration        `toml:"drain_timeout"`
	RequestTimeout  Duration        `toml:"request_timeout"`
	MaxRows         int             `toml:"max_rows"`
	Store           string          `toml:"store"` // "postgres" or "memory"
	DatabaseURL     string          `toml:"database_url"`
	AdminAddr       string          `toml:"admin_addr"` // empty disables the admin listener
	RateLimit       RateLimitConfig `toml:"rate_limit"`
	Etcd            EtcdConfig      `toml:"etcd"`
	Log             logging.Config  `toml:"log"`
}

type ClientConfig struct {
	Addr     string         `toml:"addr"`
	Timeout  Duration       `toml:"timeout"`
	Balancer string         `toml:"balancer"` // "round_robin" or "weighted_random"
	Etcd     EtcdConfig     `toml:"etcd"`
	Log      logging.Config `toml:"log"`
}

type OrderEntryConfig struct {
	DatabaseURL string         `toml:"database_url"`
	Log         logging.Config `toml:"log"`
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            8080,
		Workers:         100,
		SerializeAccept: true,
		IdleTimeout:     Duration{10 * time.Second},
		DrainTimeout:    Duration{5 * time.Second},
		RequestTimeout:  Duration{5 * time.Second},
		MaxRows:         10,
		Store:           "postgres",
		DatabaseURL:     store.DefaultDatabaseURL,
		AdminAddr:       ":9090",
		Etcd:            defaultEtcd(),
		Log:             logging.Config{Level: "info"},
	}
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Addr:     "localhost:8080",
		Timeout:  Duration{15 * time.Second},
		Balancer: "round_robin",
		Etcd:     defaultEtcd(),
		Log:      logging.Config{Level: "warn", Development: true},
	}
}

func DefaultOrderEntryConfig() OrderEntryConfig {
	return OrderEntryConfig{
		DatabaseURL: store.DefaultDatabaseURL,
		Log:         logging.Config{Level: "warn", Development: true},
	}
}

func defaultEtcd() EtcdConfig {
	return EtcdConfig{TTL: 10, DialTimeout: Duration{3 * time.Second}}
}

// LoadServer decodes path over the defaults. An empty path returns the defaults.
func LoadServer(path string) (ServerConfig, error) {
	cfg := DefaultServerConfig()
	if err := decode(path, &cfg); err != nil {
		return ServerConfig{}, err
	}
	if err := ValidateServer(cfg); err != nil {
		return ServerConfig{}, err
	}
	return cfg, nil
}

func LoadClient(path string) (ClientConfig, error) {
	cfg := DefaultClientConfig()
	if err := decode(path, &cfg); err != nil {
		return ClientConfig{}, err
	}
	if err := ValidateClient(cfg); err != nil {
		return ClientConfig{}, err
	}
	return cfg, nil
}

func LoadOrderEntry(path string) (OrderEntryConfig, error) {
	cfg := DefaultOrderEntryConfig()
	if err := decode(path, &cfg); err != nil {
		return OrderEntryConfig{}, err
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return OrderEntryConfig{}, fmt.Errorf("order entry config missing database_url")
	}
	return cfg, nil
}

func decode(path string, out any) error {
	if strings.TrimSpace(path) == "" {
		return nil
	}
	meta, err := toml.DecodeFile(path, out)
	if err != nil {
		return fmt.Errorf("config load failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config parse failed (%s): unknown key %q", path, undecoded[0].String())
	}
	return nil
}

func ValidateServer(cfg ServerConfig) error {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return fmt.Errorf("server config port out of range: %d", cfg.Port)
	}
	if cfg.Workers < 1 {
		return fmt.Errorf("server config workers must be positive")
	}
	if cfg.IdleTimeout.Duration <= 0 {
		return fmt.Errorf("server config idle_timeout must be positive")
	}
	if cfg.MaxRows < 0 {
		return fmt.Errorf("server config max_rows must not be negative")
	}
	switch cfg.Store {
	case "memory":
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return fmt.Errorf("server config missing database_url")
		}
	default:
		return fmt.Errorf("server config unknown store %q", cfg.Store)
	}
	if cfg.RateLimit.RPS < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("server config rate_limit must not be negative")
	}
	if cfg.RateLimit.RPS > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("server config rate_limit burst required when rps is set")
	}
	if cfg.Etcd.Enabled() && strings.TrimSpace(cfg.Etcd.AdvertiseAddr) == "" {
		return fmt.Errorf("server config etcd advertise_addr required when endpoints are set")
	}
	return nil
}

func ValidateClient(cfg ClientConfig) error {
	if !cfg.Etcd.Enabled() && strings.TrimSpace(cfg.Addr) == "" {
		return fmt.Errorf("client config needs addr or etcd endpoints")
	}
	switch cfg.Balancer {
	case "round_robin", "weighted_random":
	default:
		return fmt.Errorf("client config unknown balancer %q", cfg.Balancer)
	}
	return nil
}
