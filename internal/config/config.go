package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerCfg struct {
	Port                string `mapstructure:"port"`
	ReadTimeoutSeconds  int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `mapstructure:"write_timeout_seconds"`
	Development         bool   `mapstructure:"development"`
}

type MongoCfg struct {
	URI string `mapstructure:"uri"`
	DB  string `mapstructure:"db"`
}

type RedisCfg struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

type KafkaCfg struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
	GroupID string   `mapstructure:"group_id"`
}

type ChatCfg struct {
	MaxContentLength int `mapstructure:"max_content_length"`
	GroupCapacity    int `mapstructure:"group_capacity"`
}

type Config struct {
	Server ServerCfg `mapstructure:"server"`
	Mongo  MongoCfg  `mapstructure:"mongo"`
	Redis  RedisCfg  `mapstructure:"redis"`
	Kafka  KafkaCfg  `mapstructure:"kafka"`
	Chat   ChatCfg   `mapstructure:"chat"`

	// Derived
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Load reads the config file at path and applies APP_* env overrides,
// e.g. APP_SERVER_PORT, APP_REDIS_ADDR.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "5050"
	}
	if cfg.Server.ReadTimeoutSeconds == 0 {
		cfg.Server.ReadTimeoutSeconds = 15
	}
	if cfg.Server.WriteTimeoutSeconds == 0 {
		cfg.Server.WriteTimeoutSeconds = 15
	}
	if cfg.Mongo.DB == "" {
		cfg.Mongo.DB = "chatdb"
	}
	if cfg.Redis.Channel == "" {
		cfg.Redis.Channel = "chat_messages"
	}
	if cfg.Kafka.Topic == "" {
		cfg.Kafka.Topic = "chat.message.persist"
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = "chat-server-group"
	}
	if cfg.Chat.MaxContentLength == 0 {
		cfg.Chat.MaxContentLength = 1000
	}
	if cfg.Chat.GroupCapacity == 0 {
		cfg.Chat.GroupCapacity = 100
	}
	cfg.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	cfg.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
}
