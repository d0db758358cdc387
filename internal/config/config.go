package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

const (
	DriverSQLite = "sqlite"
	DriverBadger = "badger"
)

type Config struct {
	Mode       string        `mapstructure:"mode" validate:"oneof=debug release test"`
	Port       int           `mapstructure:"port" validate:"min=1,max=65535"`
	LogLevel   string        `mapstructure:"log_level"`
	ReadLimit  int64         `mapstructure:"read_limit" validate:"min=512"`
	PingPeriod time.Duration `mapstructure:"ping_period" validate:"gt=0,ltfield=PongWait"`
	PongWait   time.Duration `mapstructure:"pong_wait" validate:"gt=0"`
	WriteWait  time.Duration `mapstructure:"write_wait" validate:"gt=0"`
	SendBuffer int           `mapstructure:"send_buffer" validate:"min=1"`

	Storage    Storage    `mapstructure:"storage"`
	IDP        IDP        `mapstructure:"idp"`
	Federation Federation `mapstructure:"federation"`
	Chat       Chat       `mapstructure:"chat"`
}

type Storage struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite badger"`
	// DSN is a sqlite file path or a badger directory.
	DSN string `mapstructure:"dsn" validate:"required"`
}

// IDP describes the platform identity provider used for non-federated tokens.
type IDP struct {
	Host              string        `mapstructure:"host" validate:"required,url"`
	AllowedHosts      []string      `mapstructure:"allowed_hosts"`
	CurrentLoginPath  string        `mapstructure:"current_login_path" validate:"required,startswith=/"`
	DefaultTenantID   string        `mapstructure:"default_tenant_id" validate:"required"`
	DefaultTenantName string        `mapstructure:"default_tenant_name" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type Federation struct {
	IssuerKind  string        `mapstructure:"issuer_kind" validate:"required"`
	RealmPrefix string        `mapstructure:"realm_prefix" validate:"required,url"`
	TenantClaim string        `mapstructure:"tenant_claim" validate:"required"`
	JWKSTTL     time.Duration `mapstructure:"jwks_ttl" validate:"gt=0"`
	Timeout     time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type Chat struct {
	HistoryLimit      int       `mapstructure:"history_limit" validate:"min=1"`
	MaxMessageLength  int       `mapstructure:"max_message_length" validate:"min=1"`
	EnforceMembership bool      `mapstructure:"enforce_membership"`
	RateLimit         RateLimit `mapstructure:"rate_limit"`
}

type RateLimit struct {
	Messages int           `mapstructure:"messages" validate:"min=1"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("log_level", "info")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "10s")
	v.SetDefault("send_buffer", 32)

	v.SetDefault("storage.driver", DriverSQLite)
	v.SetDefault("storage.dsn", "chat.db")

	v.SetDefault("idp.host", "https://api.techademy.com")
	v.SetDefault("idp.allowed_hosts", []string{})
	v.SetDefault("idp.current_login_path", "/api/services/app/Session/GetCurrentLoginInformations")
	v.SetDefault("idp.default_tenant_id", "1")
	v.SetDefault("idp.default_tenant_name", "Default")
	v.SetDefault("idp.timeout", "10s")

	v.SetDefault("federation.issuer_kind", "KC")
	v.SetDefault("federation.realm_prefix", "https://auth.techademy.com/realms/")
	v.SetDefault("federation.tenant_claim", "B2B")
	v.SetDefault("federation.jwks_ttl", "1200s")
	v.SetDefault("federation.timeout", "10s")

	v.SetDefault("chat.history_limit", 10)
	v.SetDefault("chat.max_message_length", 500)
	v.SetDefault("chat.enforce_membership", false)
	v.SetDefault("chat.rate_limit.messages", 20)
	v.SetDefault("chat.rate_limit.interval", "10s")
}

// Default returns the configuration built from defaults only.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// defaults always decode
	_ = v.Unmarshal(&cfg)
	return &cfg
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("CHAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("config loaded")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).Str("storage", cfg.Storage.Driver).Msg("config ready")
	return &cfg, nil
}
