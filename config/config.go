package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	BotToken         string        `env:"BOT_TOKEN,required"`
	MongoURL         string        `env:"MONGO_URL" envDefault:"mongodb://localhost:27017"`
	MongoDatabase    string        `env:"MONGO_DB" envDefault:"keeper"`
	AdminID          int64         `env:"ADMIN_ID"`
	SnapshotPath     string        `env:"REGISTRY_SNAPSHOT" envDefault:"keeper-registry.json"`
	SnapshotInterval time.Duration `env:"REGISTRY_SNAPSHOT_INTERVAL" envDefault:"5s"`
	BanUnauthorized  bool          `env:"BAN_UNAUTHORIZED"`
}

// Load reads the configuration from environment variables. The bot token is
// the only required value; everything else has a sensible default.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
