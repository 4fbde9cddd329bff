package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"jsonrpc-peer/codec"
	"jsonrpc-peer/logging"
	"jsonrpc-peer/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
timeout_window  = "3s"
handler_timeout = "500ms"
codec           = "json"
framing         = "content-length"

[log]
level = "debug"
format = "json"

[server]
listen = ":7000"
advertise = "10.0.0.1:7000"
service = "arith"

[registry]
etcd = ["127.0.0.1:2379", " ", "127.0.0.1:22379"]

[rate_limit]
rate = 50.0
burst = 5
`

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.TimeoutWindow)
	assert.Equal(t, time.Second, cfg.SweepInterval)
	assert.Equal(t, protocol.FramingStream, cfg.Framing)
	assert.Empty(t, cfg.Registry.Etcd)
}

func TestParse(t *testing.T) {
	cfg, err := Parse(sample)
	require.NoError(t, err)

	assert.Equal(t, 3*time.Second, cfg.TimeoutWindow)
	assert.Equal(t, time.Second, cfg.SweepInterval, "absent keys keep the default")
	assert.Equal(t, 500*time.Millisecond, cfg.HandlerTimeout)
	assert.Equal(t, codec.CodecTypeJSON, cfg.Codec)
	assert.Equal(t, protocol.FramingContentLength, cfg.Framing)
	assert.Equal(t, logging.Config{Level: "debug", Format: "json", Timestamp: true}, cfg.Log)
	assert.Equal(t, ServerConfig{Listen: ":7000", Advertise: "10.0.0.1:7000", Service: "arith", TTL: 10}, cfg.Server)
	assert.Equal(t, []string{"127.0.0.1:2379", "127.0.0.1:22379"}, cfg.Registry.Etcd)
	assert.Equal(t, RateLimitConfig{Rate: 50, Burst: 5}, cfg.RateLimit)
}

func TestParseRejects(t *testing.T) {
	cases := map[string]string{
		"bad duration":   `timeout_window = "soon"`,
		"zero window":    `timeout_window = "0s"`,
		"bad codec":      `codec = "xml"`,
		"bad framing":    `framing = "lines"`,
		"bad level":      "[log]\nlevel = \"loud\"",
		"unknown key":    `colour = "blue"`,
		"burst missing":  "[rate_limit]\nrate = 1.0",
		"not toml":       `timeout_window = `,
		"negative limit": "[rate_limit]\nrate = -1.0",
	}
	for name, data := range cases {
		_, err := Parse(data)
		assert.Error(t, err, name)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer.toml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "arith", cfg.Server.Service)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestPeerConfig(t *testing.T) {
	cfg, err := Parse(sample)
	require.NoError(t, err)

	a, b := cfg.Peer(nil), cfg.Peer(nil)
	assert.Equal(t, 3*time.Second, a.TimeoutWindow)
	assert.Equal(t, codec.CodecTypeJSON, a.Codec.Type())
	assert.IsType(t, &protocol.ContentLengthFramer{}, a.Framer)
	assert.NotSame(t, a.Framer, b.Framer)
}
