package db

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"gopkg.in/yaml.v3"
)

const (
	driverName     = "mysql"
	configFilePath = "config/config.yaml"
)

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type AuthConfig struct {
	JWTSecret     string `yaml:"jwt_secret"`
	TokenTTLHours int    `yaml:"token_ttl_hours"`
}

// 自動検出の対象（サブネット先頭3オクテット × host_start から host_count 台）
type DiscoveryConfig struct {
	Subnets     []string `yaml:"subnets"`
	HostStart   int      `yaml:"host_start"`
	HostCount   int      `yaml:"host_count"`
	Port        int      `yaml:"port"`
	TimeoutMS   int      `yaml:"timeout_ms"`
	Concurrency int      `yaml:"concurrency"`
}

type PrintersConfig struct {
	ProbeTimeoutMS    int             `yaml:"probe_timeout_ms"`
	DispatchTimeoutMS int             `yaml:"dispatch_timeout_ms"`
	FallbackPorts     []int           `yaml:"fallback_ports"`
	Discovery         DiscoveryConfig `yaml:"discovery"`
}

type Config struct {
	Version     string         `yaml:"version"`
	Mode        string         `yaml:"mode"`
	Server      ServerConfig   `yaml:"server"`
	DB          DatabaseConfig `yaml:"database"`
	Certificate Certs          `yaml:"certificate"`
	Auth        AuthConfig     `yaml:"auth"`
	Printers    PrintersConfig `yaml:"printers"`
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		path = configFilePath
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("設定ファイルの読み込み失敗: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("設定ファイルのパース失敗: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

// 未指定項目は既定値で埋める
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8443"
	}
	if c.Auth.TokenTTLHours <= 0 {
		c.Auth.TokenTTLHours = 24
	}

	p := &c.Printers
	if p.ProbeTimeoutMS <= 0 {
		p.ProbeTimeoutMS = 5000
	}
	if p.DispatchTimeoutMS <= 0 {
		p.DispatchTimeoutMS = 5000
	}
	if len(p.FallbackPorts) == 0 {
		p.FallbackPorts = []int{9100}
	}

	d := &p.Discovery
	if len(d.Subnets) == 0 {
		d.Subnets = []string{"192.168.1", "192.168.0"}
	}
	if d.HostStart <= 0 {
		d.HostStart = 100
	}
	if d.HostCount <= 0 {
		d.HostCount = 10
	}
	if d.Port <= 0 {
		d.Port = 9100
	}
	if d.TimeoutMS <= 0 {
		d.TimeoutMS = 2000
	}
	if d.Concurrency <= 0 {
		d.Concurrency = 8
	}
}

func Connect(c DatabaseConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&tls=false&timeout=3s&readTimeout=5s&writeTimeout=5s&loc=UTC&clientFoundRows=true",
		c.Username, c.Password, c.Host, c.Port, c.DBName)

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("接続準備に失敗: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("DB接続に失敗: %w", err)
	}

	// 接続プール（管理系の低頻度アクセスが中心なので控えめ）
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return db, nil
}
