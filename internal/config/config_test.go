package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studykit/relay/pkg/core"
)

func TestLoad_DefaultsWithoutConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	require.NoError(t, Load(t.TempDir()))

	assert.Equal(t, "info", GetString("logLevel"))
	assert.Equal(t, "./submissions", GetString("outputDir"))
	assert.Equal(t, core.DefaultServerURL, GetString("serverUrl"))
	assert.Equal(t, core.DefaultExperimentName, GetString("experimentName"))
	assert.True(t, GetBool("fallbackToLocal"))
	assert.Equal(t, "https:", GetString("location.protocol"))
	assert.Equal(t, "", GetString("location.hostname"))

	stats := GetStatsConfig()
	assert.False(t, stats.Enabled)
	assert.Equal(t, "http://localhost:8086", stats.URL)
	assert.Equal(t, "trial_delivery", stats.Bucket)

	archive := GetArchiveConfig()
	assert.False(t, archive.Enabled)
	assert.Equal(t, "./submissions/relay.db", archive.Path)
}

func TestLoad_ConfigFileOverridesDefaults(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	content := `{
		"logLevel": "debug",
		"serverUrl": "https://collect.example.org",
		"fallbackToLocal": false,
		"location": {"hostname": "study.example.com"},
		"archive": {"enabled": true, "path": "/var/lib/relay/archive.db"}
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay.cfg.json"), []byte(content), 0644))

	require.NoError(t, Load(dir))

	assert.Equal(t, "debug", GetString("logLevel"))
	assert.Equal(t, "https://collect.example.org", GetString("serverUrl"))
	assert.False(t, GetBool("fallbackToLocal"))
	assert.Equal(t, "study.example.com", GetString("location.hostname"))
	// untouched keys keep their defaults
	assert.Equal(t, "https:", GetString("location.protocol"))

	archive := GetArchiveConfig()
	assert.True(t, archive.Enabled)
	assert.Equal(t, "/var/lib/relay/archive.db", archive.Path)
}

func TestLoad_MalformedConfigFile(t *testing.T) {
	t.Cleanup(viper.Reset)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "relay.cfg.json"), []byte("{broken"), 0644))

	assert.Error(t, Load(dir))
}
