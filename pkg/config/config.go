package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/caarlos0/env/v11"

	"github.com/dotsetgreg/masquerade/pkg/listing"
	"github.com/dotsetgreg/masquerade/pkg/masq"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Discord DiscordConfig `json:"discord"`
	Storage StorageConfig `json:"storage"`
	Bot     BotConfig     `json:"bot"`
	Gateway GatewayConfig `json:"gateway"`
	Log     LogConfig     `json:"log"`
	mu      sync.RWMutex
}

type DiscordConfig struct {
	Token       string              `json:"token" env:"MASQUERADE_DISCORD_TOKEN"`
	AllowFrom   FlexibleStringSlice `json:"allow_from" env:"MASQUERADE_DISCORD_ALLOW_FROM"`
	WebhookName string              `json:"webhook_name" env:"MASQUERADE_DISCORD_WEBHOOK_NAME"`
}

// Storage drivers.
const (
	DriverMongo    = "mongo"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

type StorageConfig struct {
	Driver             string `json:"driver" env:"MASQUERADE_STORAGE_DRIVER"`
	URI                string `json:"uri" env:"MASQUERADE_STORAGE_URI"`
	Database           string `json:"database" env:"MASQUERADE_STORAGE_DATABASE"`
	AuthorsCollection  string `json:"authors_collection" env:"MASQUERADE_STORAGE_AUTHORS_COLLECTION"`
	ProfilesCollection string `json:"profiles_collection" env:"MASQUERADE_STORAGE_PROFILES_COLLECTION"`
	DefaultsCollection string `json:"defaults_collection" env:"MASQUERADE_STORAGE_DEFAULTS_COLLECTION"`
	SQLitePath         string `json:"sqlite_path" env:"MASQUERADE_STORAGE_SQLITE_PATH"`
	TimeoutSeconds     int    `json:"timeout_seconds" env:"MASQUERADE_STORAGE_TIMEOUT_SECONDS"`
}

type BotConfig struct {
	MaxSegments    int    `json:"max_segments" env:"MASQUERADE_BOT_MAX_SEGMENTS"`
	PageSize       int    `json:"page_size" env:"MASQUERADE_BOT_PAGE_SIZE"`
	ImportMaxBytes int64  `json:"import_max_bytes" env:"MASQUERADE_BOT_IMPORT_MAX_BYTES"`
	DeleteOriginal bool   `json:"delete_original" env:"MASQUERADE_BOT_DELETE_ORIGINAL"`
	UseDefaults    bool   `json:"use_defaults" env:"MASQUERADE_BOT_USE_DEFAULTS"`
	StatusText     string `json:"status_text" env:"MASQUERADE_BOT_STATUS_TEXT"`
	SupportURL     string `json:"support_url" env:"MASQUERADE_BOT_SUPPORT_URL"`
}

// GatewayConfig controls the status server. ExposeProfiles publishes every
// user's profiles without authentication; keep Host on loopback when set.
type GatewayConfig struct {
	Enabled        bool   `json:"enabled" env:"MASQUERADE_GATEWAY_ENABLED"`
	Host           string `json:"host" env:"MASQUERADE_GATEWAY_HOST"`
	Port           int    `json:"port" env:"MASQUERADE_GATEWAY_PORT"`
	ExposeProfiles bool   `json:"expose_profiles" env:"MASQUERADE_GATEWAY_EXPOSE_PROFILES"`
}

type LogConfig struct {
	Level string `json:"level" env:"MASQUERADE_LOG_LEVEL"`
}

func DefaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			Token:       "",
			AllowFrom:   FlexibleStringSlice{},
			WebhookName: "masquerade",
		},
		Storage: StorageConfig{
			Driver:             DriverSQLite,
			Database:           "masquerade",
			AuthorsCollection:  "authors",
			ProfilesCollection: "profiles",
			DefaultsCollection: "defaults",
			SQLitePath:         "~/.masquerade/masquerade.db",
			TimeoutSeconds:     10,
		},
		Bot: BotConfig{
			MaxSegments:    10,
			PageSize:       5,
			ImportMaxBytes: 256 * 1024,
			DeleteOriginal: true,
			UseDefaults:    true,
			StatusText:     "Mention Me!",
		},
		Gateway: GatewayConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    18791,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// LoadConfig reads path over the defaults and then applies environment
// overrides. A missing file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate reports configuration that would make the bot unusable.
// requireToken is false for transports that do not talk to Discord.
func (c *Config) Validate(requireToken bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if requireToken && strings.TrimSpace(c.Discord.Token) == "" {
		return fmt.Errorf("discord.token is required")
	}
	switch c.Storage.Driver {
	case DriverMongo, DriverPostgres:
		if strings.TrimSpace(c.Storage.URI) == "" {
			return fmt.Errorf("storage.uri is required for driver %q", c.Storage.Driver)
		}
	case DriverSQLite:
		if strings.TrimSpace(c.Storage.SQLitePath) == "" {
			return fmt.Errorf("storage.sqlite_path is required for driver %q", c.Storage.Driver)
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown storage.driver %q", c.Storage.Driver)
	}
	if c.Bot.MaxSegments <= 0 || c.Bot.MaxSegments > masq.MaxSegments {
		return fmt.Errorf("bot.max_segments must be between 1 and %d", masq.MaxSegments)
	}
	if c.Bot.PageSize <= 0 || c.Bot.PageSize > listing.DefaultPageSize {
		return fmt.Errorf("bot.page_size must be between 1 and %d", listing.DefaultPageSize)
	}
	if c.Bot.ImportMaxBytes <= 0 {
		return fmt.Errorf("bot.import_max_bytes must be positive")
	}
	return nil
}

func (c *Config) SQLitePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return expandHome(c.Storage.SQLitePath)
}

func expandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
