package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/uthernet2/config"
)

func TestDefaults(t *testing.T) {
	cfg := config.Defaults()
	assert.Equal(t, "192.168.65.100", cfg.ClientIP)
	assert.Equal(t, "192.168.65.1", cfg.GatewayIP)
	assert.Equal(t, []int{64, 65}, cfg.RedirectOctet)
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoad_OverridesSubset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "override.yaml")
	require.NoError(t, os.WriteFile(path, []byte("client_ip: 10.0.0.50\n"), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.50", cfg.ClientIP)
	assert.Equal(t, config.Defaults().GatewayIP, cfg.GatewayIP, "unspecified fields keep their default")
}

func TestIP4_RoundTrips(t *testing.T) {
	ip, err := config.IP4("192.168.65.1")
	require.NoError(t, err)
	assert.Equal(t, [4]byte{192, 168, 65, 1}, ip)

	_, err = config.IP4("not-an-ip")
	assert.Error(t, err)
}

func TestMAC6_RoundTrips(t *testing.T) {
	mac, err := config.MAC6("02:00:DE:AD:BE:01")
	require.NoError(t, err)
	assert.Equal(t, [6]byte{0x02, 0x00, 0xDE, 0xAD, 0xBE, 0x01}, mac)

	_, err = config.MAC6("not-a-mac")
	assert.Error(t, err)
}
