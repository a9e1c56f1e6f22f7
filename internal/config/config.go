package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	// Core
	DatabaseURL string `env:"DATABASE_URL,required"`
	DBMaxConns  int32  `env:"DB_MAX_CONNS" envDefault:"20"`
	DBMinConns  int32  `env:"DB_MIN_CONNS" envDefault:"5"`
	QueuePath   string `env:"QUEUE_PATH" envDefault:"solace-queue.db"`
	JWTSecret   string `env:"JWT_SECRET,required"`

	// Completion backend (OpenAI-compatible)
	OpenAIKey     string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL" envDefault:"https://api.openai.com/v1"`
	Model         string `env:"COMPLETION_MODEL" envDefault:"gpt-4o-mini"`

	// Daily message quotas. Premium is unlimited and has no knob.
	GuestDailyLimit int `env:"GUEST_DAILY_LIMIT" envDefault:"3"`
	FreeDailyLimit  int `env:"FREE_DAILY_LIMIT" envDefault:"10"`

	// Server
	Host string `env:"HOST" envDefault:"0.0.0.0"`
	Port int    `env:"PORT" envDefault:"3000"`
}

func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}

// Addr is the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
