package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/meshcom-gateway/meshcom-server/pkg/meshcom"
)

// DefaultPort is the MeshCom UDP port
const DefaultPort = 1799

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	API      APIConfig      `yaml:"api"`
	JWT      JWTConfig      `yaml:"jwt"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	MQTT     MQTTConfig     `yaml:"mqtt"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// GatewayConfig represents the MeshCom UDP gateway configuration
type GatewayConfig struct {
	BindIP        string `yaml:"bind_ip"`
	Port          int    `yaml:"port"`
	MyCall        string `yaml:"my_call"`
	Groups        string `yaml:"groups"` // 逗号分隔，例如 "*,10,262"
	DefaultTarget string `yaml:"default_target"`
	DefaultPort   int    `yaml:"default_port"`
	ReadBuffer    int    `yaml:"read_buffer"`
	NotifyQueue   int    `yaml:"notify_queue"`
}

// APIConfig represents REST API configuration
type APIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	StaticDir string `yaml:"static_dir"`
}

// JWTConfig represents JWT configuration
type JWTConfig struct {
	Secret         string        `yaml:"secret"`
	AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
	Users          []UserConfig  `yaml:"users"`
}

// UserConfig is an API user with a bcrypt password hash
type UserConfig struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
}

// DatabaseConfig represents database configuration
type DatabaseConfig struct {
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// NATSConfig represents NATS configuration
type NATSConfig struct {
	URL               string        `yaml:"url"`
	Username          string        `yaml:"username"`
	Password          string        `yaml:"password"`
	SubjectPrefix     string        `yaml:"subject_prefix"`
	MaxReconnects     int           `yaml:"max_reconnects"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
}

// MQTTConfig represents the MQTT integration configuration
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         byte   `yaml:"qos"`
}

// KafkaConfig represents the Kafka integration configuration
type KafkaConfig struct {
	Enabled bool     `yaml:"enabled"`
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// MetricsConfig represents Prometheus configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig represents logging configuration
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// GroupList returns the subscribed groups as trimmed, upper-cased tokens
func (g *GatewayConfig) GroupList() []string {
	groups := meshcom.ParseGroups(g.Groups)
	for i := range groups {
		groups[i] = strings.ToUpper(groups[i])
	}
	return groups
}

// BindAddr returns host:port of the UDP socket
func (g *GatewayConfig) BindAddr() string {
	return net.JoinHostPort(g.BindIP, strconv.Itoa(g.Port))
}

// Identity builds the gateway identity from the configuration
func (g *GatewayConfig) Identity() meshcom.Identity {
	return meshcom.NewIdentity(g.MyCall, g.GroupList())
}

// Load loads configuration from file
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	return Parse(data)
}

// Parse parses YAML configuration, applies env overrides and defaults
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Apply environment overrides
	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, fmt.Errorf("env override: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides
func (c *Config) applyEnvOverrides() error {
	if bindIP := os.Getenv("MESHCOM_BIND_IP"); bindIP != "" {
		c.Gateway.BindIP = bindIP
	}

	if port := os.Getenv("MESHCOM_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("MESHCOM_PORT: %w", err)
		}
		c.Gateway.Port = p
	}

	if myCall := os.Getenv("MESHCOM_MY_CALL"); myCall != "" {
		c.Gateway.MyCall = myCall
	}

	if groups := os.Getenv("MESHCOM_GROUPS"); groups != "" {
		c.Gateway.Groups = groups
	}

	if target := os.Getenv("MESHCOM_TARGET"); target != "" {
		c.Gateway.DefaultTarget = target
	}

	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		c.Database.DSN = dsn
	}

	if natsURL := os.Getenv("NATS_URL"); natsURL != "" {
		c.NATS.URL = natsURL
	}

	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		c.JWT.Secret = jwtSecret
	}

	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		c.Log.Level = logLevel
	}

	return nil
}

// setDefaults 设置默认值
func (c *Config) setDefaults() {
	if c.Server.Name == "" {
		c.Server.Name = "meshcom-gateway"
	}

	if c.Gateway.BindIP == "" {
		c.Gateway.BindIP = "0.0.0.0"
	}
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultPort
	}
	if c.Gateway.DefaultPort == 0 {
		c.Gateway.DefaultPort = DefaultPort
	}
	if c.Gateway.ReadBuffer == 0 {
		c.Gateway.ReadBuffer = 65507 // UDP 最大负载
	}
	if c.Gateway.NotifyQueue == 0 {
		c.Gateway.NotifyQueue = 256
	}
	c.Gateway.MyCall = strings.ToUpper(strings.TrimSpace(c.Gateway.MyCall))

	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}

	if c.JWT.AccessTokenTTL == 0 {
		c.JWT.AccessTokenTTL = 24 * time.Hour
	}

	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 10
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 2
	}

	if c.NATS.SubjectPrefix == "" {
		c.NATS.SubjectPrefix = "meshcom"
	}
	if c.NATS.MaxReconnects == 0 {
		c.NATS.MaxReconnects = -1 // 无限重连
	}
	if c.NATS.ReconnectInterval == 0 {
		c.NATS.ReconnectInterval = 2 * time.Second
	}

	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "meshcom-gateway"
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "meshcom"
	}

	if c.Kafka.Topic == "" {
		c.Kafka.Topic = "meshcom.messages"
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
}

// Validate checks the configuration for values the gateway cannot run with
func (c *Config) Validate() error {
	if c.Gateway.Port < 1 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}
	if c.Gateway.DefaultPort < 1 || c.Gateway.DefaultPort > 65535 {
		return fmt.Errorf("invalid gateway default_port: %d", c.Gateway.DefaultPort)
	}
	if net.ParseIP(c.Gateway.BindIP) == nil {
		return fmt.Errorf("invalid gateway bind_ip: %s", c.Gateway.BindIP)
	}
	if c.Gateway.MyCall == "" && len(c.Gateway.GroupList()) == 0 {
		return fmt.Errorf("neither my_call nor groups configured, no message would be accepted")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		return fmt.Errorf("invalid api port: %d", c.API.Port)
	}

	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("mqtt enabled without broker")
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("invalid mqtt qos: %d", c.MQTT.QoS)
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka enabled without brokers")
	}

	switch c.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("invalid log format: %s", c.Log.Format)
	}

	return nil
}

// PrintConfigSummary 打印配置摘要
func (c *Config) PrintConfigSummary() {
	fmt.Printf("=== MeshCom Gateway Configuration ===\n")
	fmt.Printf("Server: %s %s\n", c.Server.Name, c.Server.Version)
	fmt.Printf("UDP Bind: %s\n", c.Gateway.BindAddr())

	myCall := c.Gateway.MyCall
	if myCall == "" {
		myCall = "(none)"
	}
	fmt.Printf("My Call: %s\n", myCall)
	fmt.Printf("Groups: %s\n", strings.Join(c.Gateway.GroupList(), ", "))

	if c.Gateway.DefaultTarget != "" {
		fmt.Printf("Default Target: %s:%d\n", c.Gateway.DefaultTarget, c.Gateway.DefaultPort)
	}

	if c.API.Enabled {
		fmt.Printf("REST API: %s:%d (auth: %v)\n", c.API.Host, c.API.Port, c.JWT.Secret != "")
	}
	fmt.Printf("Database: %v\n", c.Database.DSN != "")
	fmt.Printf("NATS: %v\n", c.NATS.URL != "")
	fmt.Printf("MQTT: %v\n", c.MQTT.Enabled)
	fmt.Printf("Kafka: %v\n", c.Kafka.Enabled)
	fmt.Printf("Metrics: %v\n", c.Metrics.Enabled)
	fmt.Printf("==========================================\n")
}
