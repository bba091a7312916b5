package config

import (
	"github.com/Laisky/errors/v2"
	gconfig "github.com/Laisky/go-config/v2"
	"github.com/spf13/cast"
)

const defaultPageSize = 5

// MongoConfig is the dial info for the mongo-backed store.
type MongoConfig struct {
	Addr       string
	DBName     string
	User       string
	Pwd        string
	Collection string
}

// RedisConfig is the dial info for the redis-backed store.
type RedisConfig struct {
	Addr string
	Pwd  string
	DB   int
}

// StoreConfig selects and configures the key-value store backend.
type StoreConfig struct {
	// Driver is one of "mongo", "redis" or "memory".
	Driver string
	Mongo  MongoConfig
	Redis  RedisConfig
}

// Config is the explicit process configuration, built once at startup
// and injected into every component that needs it.
type Config struct {
	// Token is the bot API token.
	Token string
	// APIEndpoint overrides the bot API URL, empty for the default.
	APIEndpoint string
	// BotName is the bot's username, used to build share links and to
	// strip "@botname" suffixes from commands.
	BotName string
	// AdminUIDs are the user ids allowed to save and administer files.
	AdminUIDs []int64
	// WebhookSecret is the secret path segment of the webhook URL.
	WebhookSecret string
	// Listen is the HTTP listen address.
	Listen string
	// PageSize is the number of items per page in file listings.
	PageSize int
	// Categories are the preset category buttons offered during save.
	Categories []string

	Store StoreConfig
}

// FromSettings builds the typed config from the shared settings.
func FromSettings() (*Config, error) {
	s := gconfig.Shared

	cfg := &Config{
		Token:         s.GetString("settings.telegram.token"),
		APIEndpoint:   s.GetString("settings.telegram.api"),
		BotName:       s.GetString("settings.telegram.bot_name"),
		WebhookSecret: s.GetString("settings.telegram.webhook_secret"),
		Listen:        s.GetString("listen"),
		PageSize:      s.GetInt("settings.telegram.page_size"),
		Categories:    s.GetStringSlice("settings.telegram.categories"),
		Store: StoreConfig{
			Driver: s.GetString("settings.store.driver"),
			Mongo: MongoConfig{
				Addr:       s.GetString("settings.store.mongo.addr"),
				DBName:     s.GetString("settings.store.mongo.db"),
				User:       s.GetString("settings.store.mongo.user"),
				Pwd:        s.GetString("settings.store.mongo.pwd"),
				Collection: s.GetString("settings.store.mongo.collection"),
			},
			Redis: RedisConfig{
				Addr: s.GetString("settings.store.redis.addr"),
				Pwd:  s.GetString("settings.store.redis.pwd"),
				DB:   s.GetInt("settings.store.redis.db"),
			},
		},
	}

	for _, uid := range cast.ToIntSlice(s.Get("settings.telegram.admin_uids")) {
		cfg.AdminUIDs = append(cfg.AdminUIDs, int64(uid))
	}

	if cfg.Token == "" {
		return nil, errors.New("settings.telegram.token is empty")
	}
	if cfg.BotName == "" {
		return nil, errors.New("settings.telegram.bot_name is empty")
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	if cfg.Store.Driver == "" {
		cfg.Store.Driver = "mongo"
	}

	return cfg, nil
}

// IsAdmin reports whether uid is in the configured administrator set.
func (c *Config) IsAdmin(uid int64) bool {
	for _, admin := range c.AdminUIDs {
		if admin == uid {
			return true
		}
	}

	return false
}
