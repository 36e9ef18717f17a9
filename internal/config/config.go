package config

import (
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Assistant    AssistantConfig    `yaml:"assistant"`
	LLM          LLMConfig          `yaml:"llm"`
	Redis        RedisConfig        `yaml:"redis"`
	Notification NotificationConfig `yaml:"notification"`
	Log          LogConfig          `yaml:"log"`
	Client       ClientConfig       `yaml:"client"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release, test
	// QueryRPS and QueryBurst bound /query and /referral per client.
	QueryRPS   float64 `yaml:"query_rps"`
	QueryBurst int     `yaml:"query_burst"`

	// CORSOrigins lists the pages allowed to embed the widget with cookies.
	// Empty allows any origin, but without credentials.
	CORSOrigins []string `yaml:"cors_origins"`

	// SMEToken is the bearer token SMEs present to resolve referrals. Empty
	// disables the resolve endpoint.
	SMEToken string `yaml:"sme_token"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"` // sqlite, mysql, postgres
	DSN    string `yaml:"dsn"`
}

// AssistantConfig is published to chat clients through /health.
type AssistantConfig struct {
	ServiceName string `yaml:"service_name"`
	BotName     string `yaml:"bot_name"`
	AutoYesMs   int64  `yaml:"auto_yes_ms"`
	// MaxSources caps how many guidance documents back one answer.
	MaxSources int `yaml:"max_sources"`
}

// LLMConfig lists providers in failover order. With none configured, answers
// are built from the retrieved guidance alone.
type LLMConfig struct {
	Providers []LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	Name        string  `yaml:"name"`
	Provider    string  `yaml:"provider"` // openai, azure, anthropic, ollama, gemini
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// RedisConfig for optional async task queue
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// Queue is the asynq queue referral notifications are routed through.
	Queue       string `yaml:"queue"`
	Concurrency int    `yaml:"concurrency"`
}

// NotificationConfig points referral alerts and the daily digest at an IM webhook.
type NotificationConfig struct {
	Type    string `yaml:"type"` // slack, wechat_work, dingtalk, feishu, teams, generic
	Webhook string `yaml:"webhook"`
	Secret  string `yaml:"secret"`
	// DigestTime is HH:MM local time; empty disables the digest.
	DigestTime     string `yaml:"digest_time"`
	HolidayCountry string `yaml:"holiday_country"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	// File receives client logs while the chat screen owns the terminal.
	File string `yaml:"file"`
}

// ClientConfig is read by the smechat command.
type ClientConfig struct {
	APIURL         string `yaml:"api_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
	// IdentityFile keeps the client cookie between runs. Empty means
	// $XDG_CONFIG_HOME/smechat/client_key.
	IdentityFile string `yaml:"identity_file"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	cfg.overrideFromEnv()
	GlobalConfig = cfg
	return cfg, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:       "0.0.0.0",
			Port:       "8000",
			Mode:       "debug",
			QueryRPS:   2,
			QueryBurst: 10,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "smechat.db",
		},
		Assistant: AssistantConfig{
			ServiceName: "sme-assistant",
			BotName:     "Assistant",
			AutoYesMs:   10000,
			MaxSources:  3,
		},
		Redis: RedisConfig{
			Enabled:     false,
			Addr:        "localhost:6379",
			DB:          0,
			Queue:       "referrals",
			Concurrency: 2,
		},
		Notification: NotificationConfig{
			Type:           "generic",
			DigestTime:     "09:00",
			HolidayCountry: "NONE",
		},
		Log: LogConfig{
			Level: "info",
		},
		Client: ClientConfig{
			APIURL:         "http://localhost:8000",
			TimeoutSeconds: 60,
		},
	}
}

func (c *Config) overrideFromEnv() {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		c.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		c.Server.Port = port
	}
	if token := os.Getenv("SME_TOKEN"); token != "" {
		c.Server.SMEToken = token
	}
	if mode := os.Getenv("SERVER_MODE"); mode != "" {
		c.Server.Mode = mode
	}
	if driver := os.Getenv("DB_DRIVER"); driver != "" {
		c.Database.Driver = driver
	}
	if dsn := os.Getenv("DB_DSN"); dsn != "" {
		c.Database.DSN = dsn
	}
	if name := os.Getenv("BOT_NAME"); name != "" {
		c.Assistant.BotName = name
	}
	if ms := os.Getenv("AUTO_YES_MS"); ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			c.Assistant.AutoYesMs = v
		}
	}
	// A provider from the environment goes first in the failover order.
	if provider := os.Getenv("LLM_PROVIDER"); provider != "" {
		p := LLMProviderConfig{
			Name:     "env",
			Provider: provider,
			BaseURL:  os.Getenv("LLM_BASE_URL"),
			APIKey:   os.Getenv("LLM_API_KEY"),
			Model:    os.Getenv("LLM_MODEL"),
		}
		c.LLM.Providers = append([]LLMProviderConfig{p}, c.LLM.Providers...)
	}
	// Redis URL override (format: redis://:password@host:port/db)
	if redisURL := os.Getenv("REDIS_URL"); redisURL != "" {
		c.Redis.Enabled = true
		c.parseRedisURL(redisURL)
	}
	if webhook := os.Getenv("NOTIFY_WEBHOOK"); webhook != "" {
		c.Notification.Webhook = webhook
	}
	if typ := os.Getenv("NOTIFY_TYPE"); typ != "" {
		c.Notification.Type = typ
	}
	if country := os.Getenv("HOLIDAY_COUNTRY"); country != "" {
		c.Notification.HolidayCountry = strings.ToUpper(country)
	}
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if apiURL := os.Getenv("SME_API_URL"); apiURL != "" {
		c.Client.APIURL = apiURL
	}
	if idFile := os.Getenv("SME_IDENTITY_FILE"); idFile != "" {
		c.Client.IdentityFile = idFile
	}
}

// parseRedisURL parses a Redis URL and sets config values
// Format: redis://:password@host:port/db
func (c *Config) parseRedisURL(redisURL string) {
	url := strings.TrimPrefix(redisURL, "redis://")

	if atIdx := strings.Index(url, "@"); atIdx != -1 {
		authPart := url[:atIdx]
		url = url[atIdx+1:]
		// Password format: :password or user:password
		if colonIdx := strings.Index(authPart, ":"); colonIdx != -1 {
			c.Redis.Password = authPart[colonIdx+1:]
		}
	}

	if slashIdx := strings.LastIndex(url, "/"); slashIdx != -1 {
		dbStr := url[slashIdx+1:]
		url = url[:slashIdx]
		if db, err := strconv.Atoi(dbStr); err == nil {
			c.Redis.DB = db
		}
	}

	c.Redis.Addr = url
}
