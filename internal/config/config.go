package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gorm.io/gorm"
)

// Config 全局配置结构体（完全匹配config.yaml）
type Config struct {
	Server   ServerConfig            `mapstructure:"server"`   // 服务器配置
	Log      LogConfig               `mapstructure:"log"`      // 日志配置
	Database DatabaseConfig          `mapstructure:"database"` // 审计库配置（可选）
	Sources  map[string]SourceConfig `mapstructure:"sources"`  // 各来源目录配置：streaming/filesystem/external
	Segments SourceConfig            `mapstructure:"segments"` // 分段表
	Matching MatchingConfig          `mapstructure:"matching"` // 匹配配置
	NAS      NASConfig               `mapstructure:"nas"`      // NAS 浏览
	Sync     SyncConfig              `mapstructure:"sync"`     // 对账调度
	Audit    AuditConfig             `mapstructure:"audit"`    // 审计输出
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Port        int      `mapstructure:"port"`         // 服务端口
	Mode        string   `mapstructure:"mode"`         // Gin运行模式：debug/release/test
	Pprof       bool     `mapstructure:"pprof"`        // 是否挂载 /debug/pprof
	CORSOrigins []string `mapstructure:"cors_origins"` // 看板前端地址
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug/info/warn/error
	Format string `mapstructure:"format"` // text/json
}

// DatabaseConfig PostgreSQL 配置；DSN 为空时不持久化审计记录
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`               // 连接DSN
	MaxOpenConns    int           `mapstructure:"max_open_conns"`    // 最大打开连接数
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`    // 最大空闲连接数
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"` // 连接最大存活时间
	AutoMigrate     bool          `mapstructure:"auto_migrate"`      // 启动时自动建表
}

// SourceConfig 单个来源的独立配置
type SourceConfig struct {
	Path      string `mapstructure:"path"`       // 本地文件路径
	URL       string `mapstructure:"url"`        // http(s) 地址（外部目录）
	ScanRoot  string `mapstructure:"scan_root"`  // 文件系统来源：直接扫描的目录
	Format    string `mapstructure:"format"`     // json/csv，为空时按扩展名判断
	Required  bool   `mapstructure:"required"`   // 缺失时跳过整个对账
	Timeout   int    `mapstructure:"timeout"`    // 请求超时（秒）
	Proxy     string `mapstructure:"proxy"`      // 代理地址
	AuthToken string `mapstructure:"auth_token"` // Bearer Token
}

// Enabled 来源是否配置了任意输入
func (s SourceConfig) Enabled() bool {
	return s.Path != "" || s.URL != "" || s.ScanRoot != ""
}

// MatchingConfig 匹配配置
type MatchingConfig struct {
	EpisodeOffsets map[string]int `mapstructure:"episode_offsets"` // 年份 -> 节目号与流媒体集数的偏移
	PatternsFile   string         `mapstructure:"patterns_file"`   // 身份抽取规则表，为空用内置表
}

// Offsets 把 yaml 中的字符串年份转为 int，非法年份报错
func (m MatchingConfig) Offsets() (map[int]int, error) {
	out := make(map[int]int, len(m.EpisodeOffsets))
	keys := make([]string, 0, len(m.EpisodeOffsets))
	for k := range m.EpisodeOffsets {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		year, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil || year < 1900 || year > 2099 {
			return nil, fmt.Errorf("episode_offsets 年份非法: %q", k)
		}
		out[year] = m.EpisodeOffsets[k]
	}
	return out, nil
}

// NASConfig NAS 浏览配置
type NASConfig struct {
	Root     string        `mapstructure:"root"`      // 只读根目录
	MaxDepth int           `mapstructure:"max_depth"` // 目录树最大深度
	CacheTTL time.Duration `mapstructure:"cache_ttl"` // 目录树/列表缓存时间
}

// SyncConfig 对账调度配置
type SyncConfig struct {
	Interval time.Duration `mapstructure:"interval"` // 周期对账间隔，0 表示只在触发时执行
	OnStart  bool          `mapstructure:"on_start"` // 启动时立即执行一次
}

// AuditConfig 审计输出
type AuditConfig struct {
	DumpDir string `mapstructure:"dump_dir"` // 每次发布的快照 JSON 落盘目录，为空不写
}

// LoadConfig 加载配置文件（config/config.yaml），敏感项从 .env 覆盖（不提交 git）
func LoadConfig() (*Config, error) {
	return LoadConfigFrom("")
}

// LoadConfigFrom 从指定文件加载；path 为空时在 ./config 下查找 config.yaml
func LoadConfigFrom(path string) (*Config, error) {
	// 1. 加载 .env（若存在），env 中的值会覆盖 config.yaml 中同名字段
	_ = godotenv.Load() // 忽略错误（.env 可不存在）

	// 2. 读取 config.yaml
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType(strings.TrimPrefix(filepath.Ext(path), "."))
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	v.SetTypeByDefaultValue(true)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if cfg.Sources == nil {
		cfg.Sources = make(map[string]SourceConfig)
	}

	// 3. 敏感字段：用 env 覆盖（优先级 env > yaml）
	overrideFromEnv(&cfg)
	if _, err := cfg.Matching.Offsets(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.pprof", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("nas.max_depth", 4)
	v.SetDefault("nas.cache_ttl", 5*time.Minute)
	v.SetDefault("sync.interval", 30*time.Minute)
	v.SetDefault("sync.on_start", true)
}

// overrideFromEnv 用环境变量覆盖敏感配置
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("CATALOGSYNC_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("CATALOGSYNC_NAS_ROOT"); v != "" {
		cfg.NAS.Root = v
	}
	if e, ok := cfg.Sources["external"]; ok {
		if v := os.Getenv("CATALOGSYNC_EXTERNAL_TOKEN"); v != "" {
			e.AuthToken = v
		}
		cfg.Sources["external"] = e
	}
}

// GetGORMConfig 获取GORM配置
func (d *DatabaseConfig) GetGORMConfig() gorm.Config {
	return gorm.Config{}
}
