package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 443, cfg.Server.Port)
	assert.Equal(t, "/subscription", cfg.Server.Prefix)
	assert.Equal(t, "/var/run/rhsm/cert.pid", cfg.Paths.LockFile)
	assert.Equal(t, "/etc/pki/entitlement", cfg.Certs.EntitlementCertDir)
	assert.True(t, cfg.Certs.ManageRepos)
	assert.Nil(t, cfg.Log.Timestamps)
	assert.Equal(t, []string{"cpu.cpu_mhz", "lscpu.cpu_mhz"}, cfg.Facts.Graylist)
}

func TestDefaultConfig_GraylistIsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Facts.Graylist[0] = "mutated"

	assert.Equal(t, "cpu.cpu_mhz", DefaultGraylist[0])
}

func TestPathHelpers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Paths.CacheDir = "/tmp/cache"
	cfg.Certs.ConsumerCertDir = "/tmp/consumer"

	assert.Equal(t, "/tmp/cache/facts/facts.json", cfg.Paths.FactsCache())
	assert.Equal(t, "/tmp/cache/packages/profile.json", cfg.Paths.ProfileCache())
	assert.Equal(t, "/tmp/cache/cache/installed_products.json", cfg.Paths.InstalledProductsCache())
	assert.Equal(t, "/tmp/consumer/cert.pem", cfg.Certs.IdentityCert())
	assert.Equal(t, "/tmp/consumer/key.pem", cfg.Certs.IdentityKey())
}

func TestGetConfigFile(t *testing.T) {
	t.Run("default", func(t *testing.T) {
		t.Setenv("SUBCTL_CONFIG", "")
		assert.Equal(t, DefaultConfigFile, GetConfigFile())
	})

	t.Run("env override", func(t *testing.T) {
		t.Setenv("SUBCTL_CONFIG", "/custom/subctl.yaml")
		assert.Equal(t, "/custom/subctl.yaml", GetConfigFile())
	})
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")

	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/abs/path", "/abs/path"},
		{"~", "/home/tester"},
		{"~/subctl.yaml", "/home/tester/subctl.yaml"},
		{"~other/x", "~other/x"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ExpandPath(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
