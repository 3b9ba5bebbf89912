package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestDatabaseConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "roster")
	t.Setenv("DB_MAX_IDLE", "4")
	t.Setenv("DB_CONN_MAX_LIFETIME", "5m")

	cfg := DefaultDatabase()
	cfg.LoadFromEnv("DB")

	assert.Equal(t, "db.internal", cfg.Host)
	assert.Equal(t, 6543, cfg.Port)
	assert.Equal(t, "roster", cfg.Database)
	assert.Equal(t, 4, cfg.MaxIdle)
	assert.Equal(t, 5*time.Minute, cfg.ConnMaxLifetime)
	assert.Equal(t, "host=db.internal port=6543 user=postgres password=postgres dbname=roster sslmode=disable", cfg.GetDSN())
	assert.NoError(t, cfg.Validate())
}

func TestDatabaseConfig_InvalidPortKeepsDefault(t *testing.T) {
	t.Setenv("PG_PORT", "not-a-number")

	cfg := DatabaseConfig{Port: 5432}
	cfg.LoadFromEnv("PG")
	assert.Equal(t, 5432, cfg.Port)
}

func TestDatabaseConfig_DSNQuotesValues(t *testing.T) {
	cfg := DatabaseConfig{Host: "localhost", Port: 5432, User: "roster", Password: `it's a\secret`, Database: "roster", SSLMode: "disable"}
	assert.Equal(t, `host=localhost port=5432 user=roster password='it\'s a\\secret' dbname=roster sslmode=disable`, cfg.GetDSN())
	assert.Equal(t, "host=localhost port=5432 user=roster password=*** dbname=roster sslmode=disable", cfg.Redacted())

	cfg.Password = ""
	assert.Contains(t, cfg.GetDSN(), "password=''")
}

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *DatabaseConfig)
		errMsg string
	}{
		{"missing host", func(c *DatabaseConfig) { c.Host = " " }, "host is required"},
		{"bad port", func(c *DatabaseConfig) { c.Port = 70000 }, "out of range"},
		{"missing name", func(c *DatabaseConfig) { c.Database = "" }, "name is required"},
		{"bad sslmode", func(c *DatabaseConfig) { c.SSLMode = "maybe" }, "unknown sslmode"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultDatabase()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestRedisConfig_Validate(t *testing.T) {
	t.Setenv("REDIS_DB", "2")
	cfg := DefaultRedis()
	cfg.LoadFromEnv("REDIS")
	assert.Equal(t, 2, cfg.DB)
	assert.NoError(t, cfg.Validate())

	cfg.Addr = "localhost"
	assert.Error(t, cfg.Validate())
}

func TestMQTTConfig_LoadFromEnv(t *testing.T) {
	t.Setenv("MQTT_BROKER", "tcp://broker:1883")
	t.Setenv("MQTT_TOPIC", "roster/pipeline")
	t.Setenv("MQTT_QOS", "2")

	cfg := DefaultMQTT()
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "roster/pipeline", cfg.Topic)
	assert.Equal(t, byte(2), cfg.QoS)
	assert.NoError(t, cfg.Validate())

	t.Setenv("MQTT_QOS", "7")
	cfg.LoadFromEnv("MQTT")
	assert.Equal(t, byte(2), cfg.QoS)

	cfg.Broker = "broker:1883"
	assert.Error(t, cfg.Validate())
}

func TestConfig_YAMLKeys(t *testing.T) {
	var cfg struct {
		Database DatabaseConfig `yaml:"database"`
		MQTT     MQTTConfig     `yaml:"mqtt"`
	}
	data := []byte(`
database:
  host: pg
  name: roster_prod
  sslmode: require
  max_conns: 8
  conn_max_lifetime: 10m
mqtt:
  client_id: roster-1
  qos: 2
`)
	require.NoError(t, yaml.Unmarshal(data, &cfg))
	assert.Equal(t, "pg", cfg.Database.Host)
	assert.Equal(t, "roster_prod", cfg.Database.Database)
	assert.Equal(t, "require", cfg.Database.SSLMode)
	assert.Equal(t, 8, cfg.Database.MaxConns)
	assert.Equal(t, 10*time.Minute, cfg.Database.ConnMaxLifetime)
	assert.Equal(t, "roster-1", cfg.MQTT.ClientID)
	assert.Equal(t, byte(2), cfg.MQTT.QoS)
}
