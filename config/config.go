// Package config loads the TOML configuration of the jsonrpc-peer command.
//
//	timeout_window  = "10s"
//	sweep_interval  = "1s"
//	handler_timeout = "5s"
//	codec           = "gojson"          # or "json"
//	framing         = "stream"          # or "content-length"
//
//	[log]
//	level = "info"
//	format = "console"
//	timestamp = true
//
//	[server]
//	listen = ":9090"
//	advertise = "127.0.0.1:9090"
//	service = "echo"
//	ttl = 10
//
//	[registry]
//	etcd = ["127.0.0.1:2379"]
//	dial_timeout = "5s"
//
//	[rate_limit]
//	rate = 100.0
//	burst = 20
package config

import (
	"fmt"
	"strings"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/logging"
	"jsonrpc-peer/peer"
	"jsonrpc-peer/protocol"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
)

type Config struct {
	TimeoutWindow  time.Duration
	SweepInterval  time.Duration
	HandlerTimeout time.Duration // 0 disables the timeout middleware
	Codec          codec.CodecType
	Framing        protocol.Framing

	Log       logging.Config
	Server    ServerConfig
	Registry  RegistryConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Listen    string
	Advertise string
	Service   string
	TTL       int64
}

// RegistryConfig selects etcd discovery when Etcd is non-empty.
type RegistryConfig struct {
	Etcd        []string
	DialTimeout time.Duration
}

// RateLimitConfig is a token bucket on inbound requests. Rate 0 disables it.
type RateLimitConfig struct {
	Rate  float64
	Burst int
}

func Default() Config {
	return Config{
		TimeoutWindow: peer.DefaultTimeoutWindow,
		SweepInterval: peer.DefaultSweepInterval,
		Codec:         codec.CodecTypeGoJSON,
		Framing:       protocol.FramingStream,
		Log:           logging.Default(),
		Server: ServerConfig{
			Listen:  ":9090",
			Service: "echo",
			TTL:     10,
		},
		Registry: RegistryConfig{DialTimeout: 5 * time.Second},
	}
}

type fileConfig struct {
	TimeoutWindow  string `toml:"timeout_window"`
	SweepInterval  string `toml:"sweep_interval"`
	HandlerTimeout string `toml:"handler_timeout"`
	Codec          string `toml:"codec"`
	Framing        string `toml:"framing"`

	Log struct {
		Level     string `toml:"level"`
		Format    string `toml:"format"`
		Timestamp bool   `toml:"timestamp"`
	} `toml:"log"`

	Server struct {
		Listen    string `toml:"listen"`
		Advertise string `toml:"advertise"`
		Service   string `toml:"service"`
		TTL       int64  `toml:"ttl"`
	} `toml:"server"`

	Registry struct {
		Etcd        []string `toml:"etcd"`
		DialTimeout string   `toml:"dial_timeout"`
	} `toml:"registry"`

	RateLimit struct {
		Rate  float64 `toml:"rate"`
		Burst int     `toml:"burst"`
	} `toml:"rate_limit"`
}

// Load reads path on top of Default. Keys absent from the file keep their
// default value.
func Load(path string) (Config, error) {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config (%s): %w", path, err)
	}
	return apply(raw, meta)
}

// Parse is Load for TOML text.
func Parse(data string) (Config, error) {
	var raw fileConfig
	meta, err := toml.Decode(data, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	return apply(raw, meta)
}

func apply(raw fileConfig, meta toml.MetaData) (Config, error) {
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("unknown config key: %s", undecoded[0])
	}

	cfg := Default()
	var err error

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"timeout_window", raw.TimeoutWindow, &cfg.TimeoutWindow},
		{"sweep_interval", raw.SweepInterval, &cfg.SweepInterval},
		{"handler_timeout", raw.HandlerTimeout, &cfg.HandlerTimeout},
		{"registry.dial_timeout", raw.Registry.DialTimeout, &cfg.Registry.DialTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(strings.Split(d.key, ".")...) {
			continue
		}
		if *d.dst, err = time.ParseDuration(strings.TrimSpace(d.raw)); err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
	}

	if meta.IsDefined("codec") {
		if cfg.Codec, err = codec.ParseCodecType(strings.TrimSpace(raw.Codec)); err != nil {
			return Config{}, err
		}
	}
	if meta.IsDefined("framing") {
		cfg.Framing = protocol.Framing(strings.TrimSpace(raw.Framing))
	}

	if meta.IsDefined("log", "level") {
		cfg.Log.Level = raw.Log.Level
	}
	if meta.IsDefined("log", "format") {
		cfg.Log.Format = raw.Log.Format
	}
	if meta.IsDefined("log", "timestamp") {
		cfg.Log.Timestamp = raw.Log.Timestamp
	}

	if meta.IsDefined("server", "listen") {
		cfg.Server.Listen = strings.TrimSpace(raw.Server.Listen)
	}
	if meta.IsDefined("server", "advertise") {
		cfg.Server.Advertise = strings.TrimSpace(raw.Server.Advertise)
	}
	if meta.IsDefined("server", "service") {
		cfg.Server.Service = strings.TrimSpace(raw.Server.Service)
	}
	if meta.IsDefined("server", "ttl") {
		cfg.Server.TTL = raw.Server.TTL
	}

	if meta.IsDefined("registry", "etcd") {
		cfg.Registry.Etcd = normalizeEndpoints(raw.Registry.Etcd)
	}

	if meta.IsDefined("rate_limit", "rate") {
		cfg.RateLimit.Rate = raw.RateLimit.Rate
	}
	if meta.IsDefined("rate_limit", "burst") {
		cfg.RateLimit.Burst = raw.RateLimit.Burst
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) Validate() error {
	if cfg.TimeoutWindow <= 0 {
		return fmt.Errorf("timeout_window must be positive, got %s", cfg.TimeoutWindow)
	}
	if cfg.HandlerTimeout < 0 {
		return fmt.Errorf("handler_timeout must not be negative, got %s", cfg.HandlerTimeout)
	}
	if _, err := protocol.NewFramer(cfg.Framing); err != nil {
		return err
	}
	if _, ok := logging.ParseLevel(cfg.Log.Level); !ok {
		return fmt.Errorf("unknown log level: %q", cfg.Log.Level)
	}
	if cfg.Server.TTL <= 0 {
		return fmt.Errorf("server.ttl must be positive, got %d", cfg.Server.TTL)
	}
	if cfg.RateLimit.Rate < 0 || cfg.RateLimit.Burst < 0 {
		return fmt.Errorf("rate_limit must not be negative")
	}
	if cfg.RateLimit.Rate > 0 && cfg.RateLimit.Burst == 0 {
		return fmt.Errorf("rate_limit.burst must be positive when rate is set")
	}
	return nil
}

// Peer returns the runtime subset as a peer.Config. A fresh Framer is built
// for each call; framers carry per-connection state.
func (cfg Config) Peer(logger *zerolog.Logger) peer.Config {
	framer, _ := protocol.NewFramer(cfg.Framing)
	return peer.Config{
		TimeoutWindow: cfg.TimeoutWindow,
		SweepInterval: cfg.SweepInterval,
		Logger:        logger,
		Codec:         codec.GetCodec(cfg.Codec),
		Framer:        framer,
	}
}

func normalizeEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ep := range in {
		if v := strings.TrimSpace(ep); v != "" {
			out = append(out, v)
		}
	}
	return out
}
