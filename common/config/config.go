package config

import (
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// DatabaseConfig 数据库配置（别名表、同工资料表、排班表所在的 PostgreSQL）
type DatabaseConfig struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port"`
	User            string        `yaml:"user" json:"user"`
	Password        string        `yaml:"password" json:"password"`
	Database        string        `yaml:"name" json:"name"`
	SSLMode         string        `yaml:"sslmode" json:"sslmode"`
	MaxConns        int           `yaml:"max_conns" json:"max_conns"`
	MaxIdle         int           `yaml:"max_idle" json:"max_idle"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// RedisConfig Redis配置（checkpoint 与通知 stream）
type RedisConfig struct {
	Addr     string `yaml:"addr" json:"addr"`
	Password string `yaml:"password" json:"password"`
	DB       int    `yaml:"db" json:"db"`
}

// MQTTConfig MQTT配置（清洗流水线触发通知）
type MQTTConfig struct {
	Broker   string `yaml:"broker" json:"broker"`
	ClientID string `yaml:"client_id" json:"client_id"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Topic    string `yaml:"topic" json:"topic"`
	QoS      byte   `yaml:"qos" json:"qos"`
}

// DefaultDatabase 本地开发用的库；排班数据量小，连接池取小值
func DefaultDatabase() DatabaseConfig {
	return DatabaseConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Password:        "postgres",
		Database:        "roster",
		SSLMode:         "disable",
		MaxConns:        5,
		MaxIdle:         2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// DefaultRedis 默认 Redis
func DefaultRedis() RedisConfig {
	return RedisConfig{Addr: "localhost:6379"}
}

// DefaultMQTT 默认 broker 与通知主题
func DefaultMQTT() MQTTConfig {
	return MQTTConfig{
		Broker:   "tcp://localhost:1883",
		ClientID: "roster-data",
		Topic:    "church/roster/events",
		QoS:      1,
	}
}

var sslModes = map[string]bool{
	"disable": true, "allow": true, "prefer": true,
	"require": true, "verify-ca": true, "verify-full": true,
}

// GetDSN 获取数据库连接字符串（lib/pq key=value 格式，含空格或引号的值加引号）
func (c *DatabaseConfig) GetDSN() string {
	return c.dsn(c.Password)
}

// Redacted 隐去密码的连接串，用于日志
func (c *DatabaseConfig) Redacted() string {
	if c.Password == "" {
		return c.dsn("")
	}
	return c.dsn("***")
}

func (c *DatabaseConfig) dsn(password string) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dsnValue(c.Host), c.Port, dsnValue(c.User), dsnValue(password), dsnValue(c.Database), dsnValue(c.SSLMode))
}

// dsnValue 按 libpq 规则转义：空值或含空格、引号、反斜杠时用单引号包起来
func dsnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, " '\\") {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// Validate 连接前检查
func (c *DatabaseConfig) Validate() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("database port %d out of range", c.Port)
	}
	if strings.TrimSpace(c.Database) == "" {
		return fmt.Errorf("database name is required")
	}
	if c.SSLMode != "" && !sslModes[c.SSLMode] {
		return fmt.Errorf("unknown sslmode %q", c.SSLMode)
	}
	return nil
}

// LoadFromEnv 从环境变量加载配置，prefix 如 "DB"
func (c *DatabaseConfig) LoadFromEnv(prefix string) {
	envString(&c.Host, prefix+"_HOST")
	envInt(&c.Port, prefix+"_PORT")
	envString(&c.User, prefix+"_USER")
	envString(&c.Password, prefix+"_PASSWORD")
	envString(&c.Database, prefix+"_NAME")
	envString(&c.SSLMode, prefix+"_SSLMODE")
	envInt(&c.MaxConns, prefix+"_MAX_CONNS")
	envInt(&c.MaxIdle, prefix+"_MAX_IDLE")
	envDuration(&c.ConnMaxLifetime, prefix+"_CONN_MAX_LIFETIME")
}

// Validate addr 必须是 host:port
func (c *RedisConfig) Validate() error {
	if _, _, err := net.SplitHostPort(c.Addr); err != nil {
		return fmt.Errorf("invalid redis addr %q: %w", c.Addr, err)
	}
	if c.DB < 0 {
		return fmt.Errorf("redis db %d must not be negative", c.DB)
	}
	return nil
}

// LoadFromEnv 从环境变量加载Redis配置
func (c *RedisConfig) LoadFromEnv(prefix string) {
	envString(&c.Addr, prefix+"_ADDR")
	envString(&c.Password, prefix+"_PASSWORD")
	envInt(&c.DB, prefix+"_DB")
}

// Validate broker 需带协议（tcp/ssl/ws/wss），QoS 只能是 0-2
func (c *MQTTConfig) Validate() error {
	u, err := url.Parse(c.Broker)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid mqtt broker %q", c.Broker)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "mqtt", "mqtts", "ws", "wss":
	default:
		return fmt.Errorf("unsupported mqtt broker scheme %q", u.Scheme)
	}
	if c.QoS > 2 {
		return fmt.Errorf("mqtt qos %d must be 0, 1 or 2", c.QoS)
	}
	if strings.TrimSpace(c.Topic) == "" {
		return fmt.Errorf("mqtt topic is required")
	}
	return nil
}

// LoadFromEnv 从环境变量加载MQTT配置；QoS 超出 0-2 时忽略
func (c *MQTTConfig) LoadFromEnv(prefix string) {
	envString(&c.Broker, prefix+"_BROKER")
	envString(&c.ClientID, prefix+"_CLIENT_ID")
	envString(&c.Username, prefix+"_USERNAME")
	envString(&c.Password, prefix+"_PASSWORD")
	envString(&c.Topic, prefix+"_TOPIC")

	qos := int(c.QoS)
	envInt(&qos, prefix+"_QOS")
	if qos >= 0 && qos <= 2 {
		c.QoS = byte(qos)
	}
}

func envString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

// envInt 解析失败时保留原值
func envInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
