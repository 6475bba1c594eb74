package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "vklogd.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadDecodesKnownKeys(t *testing.T) {
	path := writeConfig(t, `
format.main=%U%q
format.main.encoding=json
scratch.size=8192
tag.size.max=4096
datacopy=false
log.level=4
topic=requests
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "%U%q", cfg.FormatMain)
	assert.Equal(t, "json", cfg.FormatMainEncoding)
	assert.Equal(t, 8192, cfg.ScratchSize)
	assert.False(t, cfg.Datacopy)
	assert.Equal(t, 4, cfg.LogLevel)
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `topic=requests`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4096, cfg.ScratchSize)
	assert.True(t, cfg.Datacopy)
}

func TestLoadRoutesVarnishArgs(t *testing.T) {
	path := writeConfig(t, `
topic=requests
varnish.arg.n=myinstance
varnish.arg.r=/tmp/varnish.log
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "myinstance", cfg.VarnishArgs["n"])
	assert.Equal(t, "/tmp/varnish.log", cfg.VarnishArgs["r"])
}

func TestLoadRoutesBusOptions(t *testing.T) {
	path := writeConfig(t, `
topic=requests
kafka.compression.codec=snappy
topic.request.required.acks=1
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "snappy", cfg.BusOptions["kafka.compression.codec"])
	assert.Equal(t, "1", cfg.BusOptions["topic.request.required.acks"])
}

func TestLoadRejectsEmptyTopicWithBusOutput(t *testing.T) {
	path := writeConfig(t, `output=bus`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadAllowsEmptyTopicWithNonBusOutput(t *testing.T) {
	path := writeConfig(t, `output=stdout`)

	_, err := Load(path)
	assert.NoError(t, err)
}
