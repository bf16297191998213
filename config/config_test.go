package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Dyastin-0/lanshare/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	node := cfg.Node()
	assert.Equal(t, ":41234", node.Discovery.Bind)
	assert.Equal(t, "224.0.0.114:41234", node.Discovery.Group)
	assert.Equal(t, 1, node.Discovery.TTL)
	assert.Equal(t, ":41235", node.Listener.Addr)
	assert.Equal(t, 41235, node.PeerPort)
	assert.Equal(t, 15*time.Second, node.Listener.RequestTimeout)
	assert.Equal(t, core.DefaultNodeConfig(), node)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
identity = "aa:bb"
transfer_addr = "127.0.0.1:9000"
peer_port = 9000
request_timeout = "3s"
offer_ttl = "1m"
log_level = "debug"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "aa:bb", cfg.Identity)
	assert.Equal(t, "127.0.0.1:9000", cfg.TransferAddr)
	assert.Equal(t, 9000, cfg.PeerPort)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout.Duration)
	assert.Equal(t, time.Minute, cfg.OfferTTL.Duration)
	assert.Equal(t, "debug", cfg.LogLevel)

	// untouched keys keep their defaults
	assert.Equal(t, Default().Group, cfg.Group)
	assert.Equal(t, core.DialTimeout, cfg.DialTimeout.Duration)

	id, err := cfg.Resolver().Resolve()
	require.NoError(t, err)
	assert.Equal(t, core.NodeIdentity("aa:bb"), id)
}

func TestLoadRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown key", `colour = "blue"`},
		{"bad syntax", `identity = `},
		{"bad duration", `dial_timeout = "soon"`},
		{"separator in identity", `identity = "aa|bb"`},
		{"bad group", `group = "224.0.0.114"`},
		{"bad port", `transfer_addr = ":99999"`},
		{"bad ttl", `ttl = 0`},
		{"bad peer port", `peer_port = -1`},
		{"sub-second offer ttl", `offer_ttl = "1ns"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestWriteThenLoad(t *testing.T) {
	cfg := Default()
	cfg.Identity = "cc:dd"
	cfg.IdleTimeout = Duration{time.Minute}

	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	require.NoError(t, cfg.Write(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}

func TestFindExplicitPath(t *testing.T) {
	path := writeConfig(t, `max_offers = 7`)

	cfg, err := Find(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.MaxOffers)
}

func TestOfferTTLZeroKeepsOffers(t *testing.T) {
	cfg, err := Load(writeConfig(t, `offer_ttl = "0s"`))
	require.NoError(t, err)
	assert.Zero(t, cfg.Node().OfferTTL)
}
