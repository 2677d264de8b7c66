package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Auth         AuthConfig         `mapstructure:"auth"`
	APIKeys      APIKeysConfig      `mapstructure:"api_keys"`
	EventHorizon EventHorizonConfig `mapstructure:"eventhorizon"`
	RateLimit    RateLimitConfig    `mapstructure:"rate_limit"`
	Detach       DetachConfig       `mapstructure:"detach"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Worker       WorkerConfig       `mapstructure:"worker"`
}

type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	BasePath     string        `mapstructure:"base_path"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type DatabaseConfig struct {
	URL            string `mapstructure:"url"`
	MaxConnections int    `mapstructure:"max_connections"`
}

// RedisConfig is optional. An empty URL keeps OAuth nonces in process memory.
type RedisConfig struct {
	URL string `mapstructure:"url"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type AuthConfig struct {
	BcryptCost int `mapstructure:"bcrypt_cost"`
}

type APIKeysConfig struct {
	Prefix     string `mapstructure:"prefix"`
	MaxPerUser int    `mapstructure:"max_per_user"`
}

type EventHorizonConfig struct {
	ClientID            string        `mapstructure:"client_id"`
	ClientSecret        string        `mapstructure:"client_secret"`
	AuthorizeURL        string        `mapstructure:"authorize_url"`
	TokenURL            string        `mapstructure:"token_url"`
	ProfileURL          string        `mapstructure:"profile_url"`
	CallbackURL         string        `mapstructure:"callback_url"`
	Scopes              []string      `mapstructure:"scopes"`
	AllowedRedirectURIs []string      `mapstructure:"allowed_redirect_uris"`
	StateTTL            time.Duration `mapstructure:"state_ttl"`
	// When set, an existing local account is only linked if the provider
	// reports the email as verified.
	LinkRequiresVerifiedEmail bool `mapstructure:"link_requires_verified_email"`
}

type RateLimitConfig struct {
	AuthPerMinute int `mapstructure:"auth_per_minute"`
}

type DetachConfig struct {
	MaxConcurrent int           `mapstructure:"max_concurrent"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type LoggingConfig struct {
	Level    string `mapstructure:"level"`
	Format   string `mapstructure:"format"`
	Output   string `mapstructure:"output"`
	FilePath string `mapstructure:"file_path"`
}

type WorkerConfig struct {
	PurgeInterval time.Duration `mapstructure:"purge_interval"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.base_path", "/api")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)

	v.SetDefault("database.url", "file:tasker.db")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("redis.url", "")

	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_ttl", 7*24*time.Hour)

	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("api_keys.prefix", "tsk_k_")
	v.SetDefault("api_keys.max_per_user", 10)

	v.SetDefault("eventhorizon.client_id", "")
	v.SetDefault("eventhorizon.client_secret", "")
	v.SetDefault("eventhorizon.authorize_url", "")
	v.SetDefault("eventhorizon.token_url", "")
	v.SetDefault("eventhorizon.profile_url", "")
	v.SetDefault("eventhorizon.callback_url", "")
	v.SetDefault("eventhorizon.scopes", []string{"openid", "profile", "email"})
	v.SetDefault("eventhorizon.allowed_redirect_uris", []string{})
	v.SetDefault("eventhorizon.state_ttl", 5*time.Minute)
	v.SetDefault("eventhorizon.link_requires_verified_email", false)

	v.SetDefault("rate_limit.auth_per_minute", 30)

	v.SetDefault("detach.max_concurrent", 10)
	v.SetDefault("detach.timeout", 2*time.Second)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("worker.purge_interval", time.Hour)
}

// Load reads the optional YAML file at path and overlays environment
// variables (JWT_SECRET, EVENTHORIZON_CLIENT_ID, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
