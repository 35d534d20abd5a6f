package config

import (
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel               string        `env:"LOG_LEVEL" envDefault:"info"`
	ListenAddr             string        `env:"LISTEN_ADDR" envDefault:":8025"`
	PostgresURL            string        `env:"POSTGRES_URL,required"`
	RedisAddr              string        `env:"REDIS_ADDR"`
	HelixClientID          string        `env:"HELIX_CLIENT_ID,required"`
	HelixToken             string        `env:"HELIX_TOKEN,required"`
	AdminAPIKey            string        `env:"ADMIN_API_KEY"`
	ChannelIDs             []string      `env:"CHANNEL_IDS" envSeparator:","`
	FlushInterval          time.Duration `env:"FLUSH_INTERVAL" envDefault:"30s"`
	StreamsRequestInterval time.Duration `env:"STREAMS_REQUEST_INTERVAL" envDefault:"30s"`
	StreamQueueSize        int           `env:"STREAM_QUEUE_SIZE" envDefault:"16"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
