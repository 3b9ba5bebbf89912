package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.False(t, cfg.DBEnabled)
	assert.Equal(t, 3, cfg.Roster.OverloadThreshold)
	assert.Equal(t, []string{NotifyLog}, cfg.NotifyChannels())
}

func TestLoad_Env(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("DB_ENABLED", "true")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("MQTT_QOS", "2")
	t.Setenv("OVERLOAD_THRESHOLD", "4")
	t.Setenv("ROSTER_FETCH_TIMEOUT", "5s")
	t.Setenv("NOTIFY_MODE", "stream, mqtt,none")

	cfg := Load()
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.True(t, cfg.DBEnabled)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
	assert.Equal(t, 4, cfg.Roster.OverloadThreshold)
	assert.Equal(t, 5*time.Second, cfg.Roster.FetchTimeout)
	assert.Equal(t, []string{NotifyStream, NotifyMQTT}, cfg.NotifyChannels())
}

func TestLoadFile_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roster.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  addr: ":7000"
roster:
  workbook: /data/roster.xlsx
  overload_threshold: 5
  weights_file: /etc/roster/weights.yaml
`), 0o644))
	t.Setenv("OVERLOAD_THRESHOLD", "6")

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "/data/roster.xlsx", cfg.Roster.Workbook)
	assert.Equal(t, "/etc/roster/weights.yaml", cfg.Roster.WeightsFile)
	assert.Equal(t, 6, cfg.Roster.OverloadThreshold)
	// 文件里没写的保持默认
	assert.Equal(t, 30*time.Second, cfg.Roster.FetchTimeout)
}

func TestLoadFile_MissingAndInvalid(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("http: [::"), 0o644))
	_, err = LoadFile(bad)
	assert.Error(t, err)
}
