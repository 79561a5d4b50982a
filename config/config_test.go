package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlagsRequiresAllFlags(t *testing.T) {
	_, err := ParseFlags("gamemaster", []string{"-u", "http://host:8002"})
	require.Error(t, err)
}

func TestParseFlagsRepeatableGamemasterURLs(t *testing.T) {
	cfg, err := ParseFlags("gamemaster", []string{
		"-u", "http://a:8002",
		"-p", "1",
		"-g", "http://a:8002",
		"-g", "http://b:8002",
		"-g", "http://c:8002",
		"-k", "key.pem",
		"-r", "cert.pem",
		"-ca", "ca.pem",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://a:8002", cfg.URL)
	assert.Equal(t, 1, cfg.Priority)
	assert.Equal(t, []string{"http://a:8002", "http://b:8002", "http://c:8002"}, cfg.GamemasterURLs)
	assert.Equal(t, 8002, cfg.PeerPort)
	assert.Equal(t, 8001, cfg.UnitPort)
}

func TestParseFlagsLongForm(t *testing.T) {
	cfg, err := ParseFlags("gamemaster", []string{
		"--url", "http://a:9000",
		"--priority", "2",
		"--gamemaster-urls", "http://a:9000",
		"--key", "k", "--certificate", "c", "--ca-certificate", "ca",
		"--port", "9000",
	})
	require.NoError(t, err)
	assert.Equal(t, "http://a:9000", cfg.URL)
	assert.Equal(t, 9000, cfg.PeerPort)
}

func TestDefaultTimings(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 2_000_000_000, int(cfg.PressThreshold))
}
