package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	chatService "github.com/zhouzirui/site-concierge/backend/internal/service/chat"
	widgetService "github.com/zhouzirui/site-concierge/backend/internal/service/widget"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	Chat    ChatConfig
	Storage StorageConfig
	Log     LogConfig
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Port           string   `env:"PORT" envDefault:"8080"`
	AllowedOrigins []string `env:"CHAT_ALLOWED_ORIGINS" envSeparator:","`
	Addr           string
}

// ChatConfig 控制回复节奏、自动弹出和会话生命周期。
type ChatConfig struct {
	TypingBase    time.Duration `env:"CHAT_TYPING_BASE" envDefault:"1s"`
	TypingPerChar time.Duration `env:"CHAT_TYPING_PER_CHAR" envDefault:"10ms"`
	TypingMax     time.Duration `env:"CHAT_TYPING_MAX" envDefault:"3s"`
	AutoOpenDelay time.Duration `env:"CHAT_AUTO_OPEN_DELAY" envDefault:"5s"`
	SessionTTL    time.Duration `env:"CHAT_SESSION_TTL" envDefault:"30m"`
	// RandomSeed fixes the fallback pick when non-zero.
	RandomSeed uint64  `env:"CHAT_RANDOM_SEED"`
	SendRate   float64 `env:"CHAT_SEND_RATE" envDefault:"1"`
	SendBurst  int     `env:"CHAT_SEND_BURST" envDefault:"5"`
}

// StorageConfig 选择消息记录与问候标记的存储。为空时使用内存存储。
type StorageConfig struct {
	SQLitePath string `env:"CHAT_SQLITE_PATH"`
}

// LogConfig 描述日志输出。
type LogConfig struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty bool   `env:"LOG_PRETTY" envDefault:"false"`
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	addr, err := normalizeAddr(cfg.Server.Port)
	if err != nil {
		return nil, err
	}
	cfg.Server.Addr = addr

	if err := cfg.Chat.validate(); err != nil {
		return nil, err
	}
	if _, err := cfg.Log.ZerologLevel(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// normalizeAddr 解析服务器监听地址。
func normalizeAddr(port string) (string, error) {
	port = strings.TrimSpace(port)
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return port, nil
	}

	if strings.Contains(port, " ") {
		return "", fmt.Errorf("invalid PORT value: %q", port)
	}

	return ":" + port, nil
}

func (c ChatConfig) validate() error {
	if c.TypingBase < 0 || c.TypingPerChar < 0 || c.TypingMax < 0 || c.AutoOpenDelay < 0 {
		return fmt.Errorf("chat delays must not be negative")
	}
	if c.TypingMax > 0 && c.TypingMax < c.TypingBase {
		return fmt.Errorf("CHAT_TYPING_MAX (%s) is below CHAT_TYPING_BASE (%s)", c.TypingMax, c.TypingBase)
	}
	if c.SendRate < 0 {
		return fmt.Errorf("invalid CHAT_SEND_RATE value %v", c.SendRate)
	}
	return nil
}

// WidgetOptions 转换为展示驱动的配置。
func (c ChatConfig) WidgetOptions() widgetService.Options {
	opts := widgetService.DefaultOptions()
	opts.TypingBase = c.TypingBase
	opts.TypingPerChar = c.TypingPerChar
	opts.TypingMax = c.TypingMax
	opts.AutoOpenDelay = c.AutoOpenDelay
	return opts
}

// SessionOptions 转换为会话服务的配置。
func (c ChatConfig) SessionOptions() chatService.Options {
	return chatService.Options{
		TTL:       c.SessionTTL,
		SendRate:  rate.Limit(c.SendRate),
		SendBurst: c.SendBurst,
	}
}

// ZerologLevel 解析日志级别。
func (c LogConfig) ZerologLevel() (zerolog.Level, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(c.Level)))
	if err != nil {
		return zerolog.InfoLevel, fmt.Errorf("invalid LOG_LEVEL value %q: %w", c.Level, err)
	}
	return level, nil
}
