package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDestination(t *testing.T) {
	addr, port, err := parseDestination("224.1.2.1/5001")
	require.NoError(t, err)
	assert.Equal(t, "224.1.2.1", addr)
	assert.Equal(t, 5001, port)

	addr, _, err = parseDestination("ff02::1/5000")
	require.NoError(t, err)
	assert.Equal(t, "ff02::1", addr)

	for _, bad := range []string{"10.0.0.1", "/5000", "10.0.0.1/http"} {
		_, _, err := parseDestination(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildFlow(t *testing.T) {
	flowID, flowProto, flowDst, flowPattern, flowCount, flowPayload = 3, "TCP", "10.0.0.2/6000", "poisson [5 256]", 7, "hi"
	t.Cleanup(func() {
		flowID, flowProto, flowDst, flowPattern, flowCount, flowPayload = 1, "udp", "", "periodic [1 1024]", 0, ""
	})

	f, err := buildFlow()
	require.NoError(t, err)
	info := f.Info()
	assert.Equal(t, 3, info.ID)
	assert.Equal(t, "10.0.0.2/6000", info.Destination)
	assert.Equal(t, "poisson [5 256]", info.Pattern)
	text, ok := f.TextPayload()
	assert.True(t, ok)
	assert.Equal(t, "hi", text)

	flowProto = "sctp"
	_, err = buildFlow()
	assert.Error(t, err)
}

func TestLoadConfig_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("generator:\n  instance: from-file\n  socket_dir: /var/run/mgen\n"), 0644))

	configPath, instance, socketDir = path, "", ""
	t.Cleanup(func() { configPath, instance, socketDir = "", "", "" })

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "from-file", cfg.Generator.Instance)
	assert.Equal(t, "/var/run/mgen", cfg.Generator.SocketDir)
	assert.Equal(t, "mgen", cfg.Generator.Binary)

	instance, socketDir = "lab", "/tmp/x"
	cfg, err = loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "lab", cfg.Generator.Instance)
	assert.Equal(t, "/tmp/x", cfg.Generator.SocketDir)
}
