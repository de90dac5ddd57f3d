package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "SOUPVOICE"

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	PongWait   time.Duration `mapstructure:"pong_wait"`
	WriteWait  time.Duration `mapstructure:"write_wait"`
	SendBuffer int           `mapstructure:"send_buffer"`
	LogLevel   string        `mapstructure:"log_level"`
	PublicURL  string        `mapstructure:"public_url"`

	Mic    MicConfig    `mapstructure:"mic"`
	Signal SignalConfig `mapstructure:"signal"`
	Auth   AuthConfig   `mapstructure:"auth"`
	Redis  RedisConfig  `mapstructure:"redis"`
	ICE    ICEConfig    `mapstructure:"ice"`
}

type MicConfig struct {
	// Conflict is "evict" or "reject".
	Conflict string `mapstructure:"conflict"`
}

type SignalConfig struct {
	NegotiationTimeout time.Duration `mapstructure:"negotiation_timeout"`
	RateLimit          int           `mapstructure:"rate_limit"`
	RateInterval       time.Duration `mapstructure:"rate_interval"`
	// Backpressure is "kick" or "drop".
	Backpressure       string        `mapstructure:"backpressure"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// RedisConfig enables the presence mirror when Addr is set.
type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type ICEConfig struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "")
	v.SetDefault("secret", "soupvoice-dev-secret")
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("pong_wait", "60s")
	v.SetDefault("write_wait", "5s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("log_level", "info")
	v.SetDefault("public_url", "")

	v.SetDefault("mic.conflict", "evict")
	v.SetDefault("signal.negotiation_timeout", "30s")
	v.SetDefault("signal.rate_limit", 50)
	v.SetDefault("signal.rate_interval", "1s")
	v.SetDefault("signal.backpressure", "kick")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.ttl", "24h")
	v.SetDefault("ice.urls", []string{})
	v.SetDefault("ice.username", "")
	v.SetDefault("ice.credential", "")
}

// Load reads config/config.<env>.yaml, then SOUPVOICE_* env vars, then the
// flags in fs that were set explicitly. fs may be nil.
func Load(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := ""
	if fs != nil {
		if f := fs.Lookup("config-env"); f != nil {
			env = f.Value.String()
		}
	}
	if env == "" {
		env = os.Getenv("CONFIG_ENV")
	}
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)
	v.SetConfigFile(fileName)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	if fs != nil {
		for _, key := range []string{"port", "mode"} {
			if f := fs.Lookup(key); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", key, err)
				}
			}
		}
		if f := fs.Lookup("verbose"); f != nil && f.Changed && f.Value.String() == "true" {
			v.Set("log_level", "debug")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Int("port", cfg.Port).
		Str("mic_conflict", cfg.Mic.Conflict).Str("backpressure", cfg.Signal.Backpressure).
		Bool("redis", cfg.Redis.Addr != "").Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.Port)
	}
	switch c.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
	switch strings.ToLower(c.Mic.Conflict) {
	case "", "evict", "reject":
	default:
		return fmt.Errorf("invalid mic.conflict %q", c.Mic.Conflict)
	}
	switch strings.ToLower(c.Signal.Backpressure) {
	case "", "kick", "drop":
	default:
		return fmt.Errorf("invalid signal.backpressure %q", c.Signal.Backpressure)
	}
	if c.PingPeriod <= 0 || c.PongWait <= c.PingPeriod {
		return errors.New("pong_wait must be longer than ping_period")
	}
	if c.SendBuffer < 4 {
		return fmt.Errorf("send_buffer too small: %d", c.SendBuffer)
	}
	if c.Signal.RateLimit > 0 && c.Signal.RateInterval <= 0 {
		return errors.New("signal.rate_interval must be positive when rate_limit is set")
	}
	return nil
}
