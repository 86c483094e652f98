package guildcore

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/pelletier/go-toml/v2"

	"github.com/guildforge/guildcore/guildcore/database"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log    LogConfig         `toml:"log"`
	DB     database.DBConfig `toml:"db"`
	Engine EngineConfig      `toml:"engine"`
	Nats   NatsConfig        `toml:"nats"`
	Mongo  MongoConfig       `toml:"mongo"`
	Spaces SpacesConfig      `toml:"spaces"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// EngineConfig carries the tunables of the incentive engine itself.
type EngineConfig struct {
	DefaultPolicy    string `toml:"default_policy"`
	AntiSnipeSeconds int    `toml:"anti_snipe_seconds"`
}

type NatsConfig struct {
	URL     string `toml:"url"`
	Subject string `toml:"subject"`
}

type MongoConfig struct {
	URI      string `toml:"uri"`
	Database string `toml:"database"`
}

type SpacesConfig struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
	Region string `toml:"region"`
	Bucket string `toml:"bucket"`
	Prefix string `toml:"prefix"`
}
