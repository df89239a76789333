// Package config 提供应用配置管理功能
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"portfolio-srv/internal/gate"
	"portfolio-srv/internal/puzzle"
)

// Config 应用配置结构
type Config struct {
	// 服务器配置
	Port     string
	LogLevel string

	// 存储配置
	StoreDriver  string
	DBHost       string
	DBPort       string
	DBSocketPath string
	DBUser       string
	DBPassword   string
	DBName       string
	SQLitePath   string

	// 管理员口令
	AdminPassphrase     string
	AdminPassphraseHash string

	// 限流配置
	MaxAttempts int // 最大尝试次数
	LockTime    int // 锁定时间（分钟）

	// 可信反向代理（逗号分隔的 IP 或 CIDR），仅来自这些地址的请求才读取转发头
	TrustedProxies string

	// 拼图
	ShuffleMoves    int
	GameIdleMinutes int

	// 通知
	EmailJSServiceID  string
	EmailJSTemplateID string
	EmailJSPublicKey  string
	NotifyToName      string
	NATSURL           string
	NATSSubject       string
}

// Load 从环境变量加载配置
func Load() *Config {
	return &Config{
		Port:                getEnv("PORT", "3000"),
		LogLevel:            getEnv("LOG_LEVEL", "info"),
		StoreDriver:         getEnv("STORE_DRIVER", "sqlite"),
		DBHost:              getEnv("DB_HOST", "localhost"),
		DBPort:              getEnv("DB_PORT", "5432"),
		DBSocketPath:        getEnv("DB_SOCKET_PATH", ""),
		DBUser:              getEnv("DB_USER", "postgres"),
		DBPassword:          getEnv("DB_PASSWORD", "postgres"),
		DBName:              getEnv("DB_NAME", "portfolio"),
		SQLitePath:          getEnv("SQLITE_PATH", "portfolio.db"),
		AdminPassphrase:     getEnv("ADMIN_PASSPHRASE", "122008"),
		AdminPassphraseHash: getEnv("ADMIN_PASSPHRASE_HASH", ""),
		MaxAttempts:         getEnvAsInt("MAX_ATTEMPTS", 5),
		LockTime:            getEnvAsInt("LOCK_TIME", 5),
		TrustedProxies:      getEnv("TRUSTED_PROXIES", ""),
		ShuffleMoves:        getEnvAsInt("SHUFFLE_MOVES", puzzle.DefaultShuffleMoves),
		GameIdleMinutes:     getEnvAsInt("GAME_IDLE_MINUTES", 60),
		EmailJSServiceID:    getEnv("EMAILJS_SERVICE_ID", ""),
		EmailJSTemplateID:   getEnv("EMAILJS_TEMPLATE_ID", ""),
		EmailJSPublicKey:    getEnv("EMAILJS_PUBLIC_KEY", ""),
		NotifyToName:        getEnv("NOTIFY_TO_NAME", "Fares Mohammed"),
		NATSURL:             getEnv("NATS_URL", ""),
		NATSSubject:         getEnv("NATS_SUBJECT", "portfolio.notifications"),
	}
}

// DatabaseDSN 返回数据库连接字符串
func (c *Config) DatabaseDSN() string {
	if c.DBSocketPath != "" {
		// Unix Socket 连接
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			c.DBSocketPath, c.DBUser, c.DBPassword, c.DBName)
	}
	// TCP 连接
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName)
}

// Verifier 返回管理员口令校验器，配置了哈希时优先使用 bcrypt
func (c *Config) Verifier() gate.Verifier {
	if c.AdminPassphraseHash != "" {
		return gate.BcryptVerifier(c.AdminPassphraseHash)
	}
	return gate.PlainVerifier(c.AdminPassphrase)
}

// EmailJSEnabled EmailJS 凭据是否齐全
func (c *Config) EmailJSEnabled() bool {
	return c.EmailJSServiceID != "" && c.EmailJSTemplateID != "" && c.EmailJSPublicKey != ""
}

// LockDuration 限流锁定时长
func (c *Config) LockDuration() time.Duration {
	return time.Duration(c.LockTime) * time.Minute
}

// TrustedProxyList 拆分 TRUSTED_PROXIES
func (c *Config) TrustedProxyList() []string {
	var out []string
	for _, p := range strings.Split(c.TrustedProxies, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// GameIdle 拼图实例空闲回收时长
func (c *Config) GameIdle() time.Duration {
	return time.Duration(c.GameIdleMinutes) * time.Minute
}

// SlogLevel 解析日志级别，未知值按 info 处理
func (c *Config) SlogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// getEnv 获取环境变量，如果不存在则返回默认值
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt 获取环境变量并转换为整数，如果不存在或转换失败则返回默认值
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// LoadEnvFile 从 .env 文件加载环境变量，已存在的变量不会被覆盖
func LoadEnvFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		// 跳过空行和注释
		if line == "" || line[0] == '#' {
			continue
		}

		key, value := parseEnvLine(line)
		if key == "" || os.Getenv(key) != "" {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			slog.Warn("设置环境变量失败", "key", key, "error", err)
		}
	}

	return nil
}

// parseEnvLine 解析 KEY=VALUE 行，值两侧的引号会被移除
func parseEnvLine(line string) (key, value string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return "", ""
	}
	key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
	value = strings.TrimSpace(value)
	if len(value) >= 2 {
		if (value[0] == '"' && value[len(value)-1] == '"') || (value[0] == '\'' && value[len(value)-1] == '\'') {
			value = value[1 : len(value)-1]
		}
	}
	return key, value
}
