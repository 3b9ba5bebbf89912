package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	commoncfg "church-roster/common/config"

	"gopkg.in/yaml.v3"
)

// 通知通道
const (
	NotifyNone   = "none"
	NotifyLog    = "log"
	NotifyStream = "stream"
	NotifyMQTT   = "mqtt"
)

// Config roster-data / rosterctl 配置
type Config struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	DBEnabled    bool                     `yaml:"db_enabled"`
	Database     commoncfg.DatabaseConfig `yaml:"database"`
	RedisEnabled bool                     `yaml:"redis_enabled"`
	Redis        commoncfg.RedisConfig    `yaml:"redis"`
	MQTTEnabled  bool                     `yaml:"mqtt_enabled"`
	MQTT         commoncfg.MQTTConfig     `yaml:"mqtt"`
	Log          struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Roster RosterConfig `yaml:"roster"`
}

// RosterConfig 排班相关配置
type RosterConfig struct {
	SourceURL         string        `yaml:"source_url"` // 远程工作簿 xlsx 地址，优先于 Workbook
	Workbook          string        `yaml:"workbook"`   // 本地工作簿路径
	FetchTimeout      time.Duration `yaml:"fetch_timeout"`
	OverloadThreshold int           `yaml:"overload_threshold"`
	WeightsFile       string        `yaml:"weights_file"`

	// NotifyMode 逗号分隔：none / log / stream / mqtt
	NotifyMode   string `yaml:"notify_mode"`
	NotifyStream string `yaml:"notify_stream"`
	StreamMaxLen int64  `yaml:"stream_max_len"`

	CheckpointHistoryTTL time.Duration `yaml:"checkpoint_history_ttl"`

	// SyncInterval roster-data 定时运行流水线的间隔，0 表示只在调用接口时运行
	SyncInterval time.Duration `yaml:"sync_interval"`
}

// Default 默认配置
func Default() *Config {
	cfg := &Config{}
	cfg.HTTP.Addr = ":8080"

	cfg.DBEnabled = false
	cfg.Database = commoncfg.DefaultDatabase()
	cfg.RedisEnabled = false
	cfg.Redis = commoncfg.DefaultRedis()
	cfg.MQTT = commoncfg.DefaultMQTT()
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"

	cfg.Roster = RosterConfig{
		FetchTimeout:         30 * time.Second,
		OverloadThreshold:    3,
		NotifyMode:           NotifyLog,
		NotifyStream:         "roster:events",
		StreamMaxLen:         1000,
		CheckpointHistoryTTL: 30 * 24 * time.Hour,
	}
	return cfg
}

// Load 默认值 + 环境变量
func Load() *Config {
	cfg := Default()
	loadFromEnv(cfg)
	return cfg
}

// LoadFile 默认值 + 配置文件（YAML，兼容 JSON）+ 环境变量
// path 为空或文件不存在时等同 Load
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				if jsonErr := json.Unmarshal(data, cfg); jsonErr != nil {
					return nil, fmt.Errorf("parse config (tried YAML and JSON): YAML error: %v, JSON error: %w", err, jsonErr)
				}
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}
	loadFromEnv(cfg)
	return cfg, nil
}

// NotifyChannels 解析后的通知通道
func (c *Config) NotifyChannels() []string {
	var out []string
	for _, part := range strings.Split(c.Roster.NotifyMode, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		if part == "" || part == NotifyNone {
			continue
		}
		out = append(out, part)
	}
	return out
}

func loadFromEnv(cfg *Config) {
	cfg.HTTP.Addr = getEnv("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.DBEnabled = parseBool(getEnv("DB_ENABLED", ""), cfg.DBEnabled)
	cfg.Database.LoadFromEnv("DB")

	cfg.RedisEnabled = parseBool(getEnv("REDIS_ENABLED", ""), cfg.RedisEnabled)
	cfg.Redis.LoadFromEnv("REDIS")

	cfg.MQTTEnabled = parseBool(getEnv("MQTT_ENABLED", ""), cfg.MQTTEnabled)
	cfg.MQTT.LoadFromEnv("MQTT")

	cfg.Log.Level = getEnv("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Format = getEnv("LOG_FORMAT", cfg.Log.Format)

	cfg.Roster.SourceURL = getEnv("ROSTER_SOURCE_URL", cfg.Roster.SourceURL)
	cfg.Roster.Workbook = getEnv("ROSTER_WORKBOOK", cfg.Roster.Workbook)
	cfg.Roster.FetchTimeout = parseDuration(getEnv("ROSTER_FETCH_TIMEOUT", ""), cfg.Roster.FetchTimeout)
	cfg.Roster.OverloadThreshold = parseInt(getEnv("OVERLOAD_THRESHOLD", ""), cfg.Roster.OverloadThreshold)
	cfg.Roster.WeightsFile = getEnv("SUGGEST_WEIGHTS_FILE", cfg.Roster.WeightsFile)
	cfg.Roster.NotifyMode = getEnv("NOTIFY_MODE", cfg.Roster.NotifyMode)
	cfg.Roster.NotifyStream = getEnv("NOTIFY_STREAM", cfg.Roster.NotifyStream)
	cfg.Roster.CheckpointHistoryTTL = parseDuration(getEnv("CHECKPOINT_HISTORY_TTL", ""), cfg.Roster.CheckpointHistoryTTL)
	cfg.Roster.SyncInterval = parseDuration(getEnv("ROSTER_SYNC_INTERVAL", ""), cfg.Roster.SyncInterval)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseBool(s string, def bool) bool {
	b, err := strconv.ParseBool(s)
	if err != nil {
		return def
	}
	return b
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}
