package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/BurntSushi/toml"
)

// Config is the process configuration, read from config.toml.
type Config struct {
	BotToken     string       `toml:"bot_token"`
	OpencodePort int          `toml:"opencode_port"`
	LogLevel     string       `toml:"log_level"`
	DataDir      string       `toml:"data_dir"`
	Repositories []Repository `toml:"repository"`
	Models       []Model      `toml:"model"`
}

type Repository struct {
	Path string `toml:"path"`
	Name string `toml:"name"`
}

type Model struct {
	ProviderID string `toml:"provider_id"`
	ModelID    string `toml:"model_id"`
}

// Load reads and validates the config file at path.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file %s not found: %w", path, err)
	}

	var cfg Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", path, err)
	}

	if cfg.OpencodePort == 0 {
		cfg.OpencodePort = 4096
	}
	if cfg.DataDir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		cfg.DataDir = cwd
	}
	if len(cfg.Models) == 0 {
		return nil, fmt.Errorf("config %s declares no models", path)
	}

	slog.Info("config loaded successfully", "path", path)
	return &cfg, nil
}

// SetLogLevel installs the default slog handler at the given level.
func SetLogLevel(levelStr string) {
	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo // default to info
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}
