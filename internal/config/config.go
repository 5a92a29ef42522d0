// Package config loads the webpool configuration file (YAML or JSON).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"webpool/internal/httpd"
	"webpool/internal/logger"

	"gopkg.in/yaml.v3"
)

// FileConfig は設定ファイルの構造
type FileConfig struct {
	Server ServerConfig `yaml:"server" json:"server"`
	Admin  AdminConfig  `yaml:"admin" json:"admin"`
	Log    LogConfig    `yaml:"log" json:"log"`
}

// ServerConfig はHTTPサーバーとワーカープールの設定
type ServerConfig struct {
	Addr        string `yaml:"addr" json:"addr"`
	Workers     int    `yaml:"workers" json:"workers"`
	StaticDir   string `yaml:"static_dir" json:"static_dir"`
	SleepDelay  string `yaml:"sleep_delay" json:"sleep_delay"`
	ReadBuffer  int    `yaml:"read_buffer" json:"read_buffer"`
	ReadTimeout string `yaml:"read_timeout" json:"read_timeout"`
	MaxConns    int    `yaml:"max_conns" json:"max_conns"`
}

// AdminConfig は管理APIの設定
type AdminConfig struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	Addr    string `yaml:"addr" json:"addr"`
}

// LogConfig はログ設定
type LogConfig struct {
	Level string `yaml:"level" json:"level"`
}

// DefaultAdminAddr は管理APIのデフォルトアドレス
const DefaultAdminAddr = "127.0.0.1:9090"

// LoadFile は設定ファイルを読み込む
func LoadFile(path string) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config FileConfig
	ext := strings.ToLower(filepath.Ext(path))

	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}

	return &config, nil
}

// Validate は設定を検証する
func (f *FileConfig) Validate() error {
	sc := f.Server

	if sc.Workers < 0 {
		return fmt.Errorf("server.workers must be non-negative")
	}
	if sc.ReadBuffer < 0 {
		return fmt.Errorf("server.read_buffer must be non-negative")
	}
	if sc.MaxConns < 0 {
		return fmt.Errorf("server.max_conns must be non-negative")
	}
	if _, err := logger.ParseLevel(f.Log.Level); err != nil {
		return fmt.Errorf("log.level: %w", err)
	}

	return nil
}

// ToServerConfig はFileConfigをhttpd.Configに変換する。
// 未指定の項目はデフォルト値のまま
func (f *FileConfig) ToServerConfig() (httpd.Config, error) {
	sc := f.Server
	config := httpd.DefaultConfig()

	if sc.Addr != "" {
		config.Addr = sc.Addr
	}
	if sc.Workers > 0 {
		config.Workers = sc.Workers
	}
	config.StaticDir = sc.StaticDir
	if sc.SleepDelay != "" {
		d, err := time.ParseDuration(sc.SleepDelay)
		if err != nil {
			return config, fmt.Errorf("invalid sleep_delay: %w", err)
		}
		config.SleepDelay = d
	}
	if sc.ReadBuffer > 0 {
		config.ReadBufferSize = sc.ReadBuffer
	}
	if sc.ReadTimeout != "" {
		d, err := time.ParseDuration(sc.ReadTimeout)
		if err != nil {
			return config, fmt.Errorf("invalid read_timeout: %w", err)
		}
		config.ReadTimeout = d
	}
	config.MaxConns = sc.MaxConns

	return config, nil
}

// AdminAddr は管理APIのアドレスを返す（無効なら空文字）
func (f *FileConfig) AdminAddr() string {
	if !f.Admin.Enabled {
		return ""
	}
	if f.Admin.Addr == "" {
		return DefaultAdminAddr
	}
	return f.Admin.Addr
}

// LogLevel はログレベルを返す
func (f *FileConfig) LogLevel() (logger.Level, error) {
	return logger.ParseLevel(f.Log.Level)
}
