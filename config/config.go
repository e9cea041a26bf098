package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Env string `yaml:"env"`

	HTTP struct {
		Addr            string        `yaml:"addr"`
		AllowOrigins    []string      `yaml:"allow_origins"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"http"`

	Database struct {
		Driver       string        `yaml:"driver"` // mysql | sqlite
		DSN          string        `yaml:"dsn"`
		MaxOpenConns int           `yaml:"max_open_conns"`
		MaxIdleConns int           `yaml:"max_idle_conns"`
		ConnMaxLife  time.Duration `yaml:"conn_max_life"`
		LogLevel     string        `yaml:"log_level"` // silent | error | warn | info
	} `yaml:"database"`

	Redis struct {
		Addr        string        `yaml:"addr"` // empty disables the presence mirror
		Password    string        `yaml:"password"`
		DB          int           `yaml:"db"`
		PresenceTTL time.Duration `yaml:"presence_ttl"`
	} `yaml:"redis"`

	Auth struct {
		Secret       string        `yaml:"secret"`
		Header       string        `yaml:"header"`
		BearerPrefix string        `yaml:"bearer_prefix"`
		QueryKey     string        `yaml:"query_key"`
		TokenTTL     time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`

	Realtime struct {
		SendBuffer     int           `yaml:"send_buffer"`
		MaxMessageSize int64         `yaml:"max_message_size"` // bytes per inbound frame
		PingInterval   time.Duration `yaml:"ping_interval"`
		PongTimeout    time.Duration `yaml:"pong_timeout"`
		WriteTimeout   time.Duration `yaml:"write_timeout"`
		TypingRate     float64       `yaml:"typing_rate"` // events per second per user+conversation
		TypingBurst    int           `yaml:"typing_burst"`
	} `yaml:"realtime"`

	Notification struct {
		Window    time.Duration `yaml:"window"`
		OpTimeout time.Duration `yaml:"op_timeout"`
	} `yaml:"notification"`
}

// Load reads comma-separated config files ("-c common.yml,social.yml"), later
// files overriding earlier ones, then applies defaults and environment
// overrides. An empty path list yields defaults plus environment.
func Load(pathList string) (*Config, error) {
	var c Config
	for _, p := range strings.Split(pathList, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read config %s", p)
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, errors.Wrapf(err, "parse config %s", p)
		}
	}

	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()
	c.applyEnv()
	c.applyDefaults()

	if c.Database.Driver != "mysql" && c.Database.Driver != "sqlite" {
		return nil, errors.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return &c, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Env, "APP_ENV")
	set(&c.HTTP.Addr, "HTTP_ADDR")
	set(&c.Database.Driver, "DB_DRIVER")
	set(&c.Database.DSN, "DB_DSN")
	set(&c.Auth.Secret, "JWT_SECRET")
	set(&c.Redis.Addr, "REDIS_ADDR")
	set(&c.Redis.Password, "REDIS_PASSWORD")
}

func (c *Config) applyDefaults() {
	if c.Env == "" {
		c.Env = "prod"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8082"
	}
	if len(c.HTTP.AllowOrigins) == 0 {
		c.HTTP.AllowOrigins = []string{"*"}
	}
	if c.HTTP.ShutdownTimeout == 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "sqlite" && c.Database.DSN == "" {
		c.Database.DSN = "social.db"
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 50
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 25
	}
	if c.Database.ConnMaxLife == 0 {
		c.Database.ConnMaxLife = 30 * time.Minute
	}
	if c.Database.LogLevel == "" {
		c.Database.LogLevel = "warn"
	}
	if c.Redis.PresenceTTL == 0 {
		c.Redis.PresenceTTL = 24 * time.Hour
	}
	if c.Auth.Header == "" {
		c.Auth.Header = "Authorization"
	}
	if c.Auth.BearerPrefix == "" {
		c.Auth.BearerPrefix = "Bearer "
	}
	if c.Auth.QueryKey == "" {
		c.Auth.QueryKey = "token"
	}
	if c.Auth.TokenTTL == 0 {
		c.Auth.TokenTTL = 7 * 24 * time.Hour
	}
	if c.Realtime.SendBuffer <= 0 {
		c.Realtime.SendBuffer = 256
	}
	if c.Realtime.MaxMessageSize <= 0 {
		c.Realtime.MaxMessageSize = 64 << 10
	}
	if c.Realtime.PingInterval == 0 {
		c.Realtime.PingInterval = 10 * time.Second
	}
	if c.Realtime.PongTimeout == 0 {
		c.Realtime.PongTimeout = 15 * time.Second
	}
	if c.Realtime.WriteTimeout == 0 {
		c.Realtime.WriteTimeout = 5 * time.Second
	}
	if c.Realtime.TypingRate <= 0 {
		c.Realtime.TypingRate = 1
	}
	if c.Realtime.TypingBurst <= 0 {
		c.Realtime.TypingBurst = 3
	}
	if c.Notification.Window == 0 {
		c.Notification.Window = 5 * time.Minute
	}
	if c.Notification.OpTimeout == 0 {
		c.Notification.OpTimeout = 3 * time.Second
	}
}

// IsDev reports whether development logging and gin debug mode apply.
func (c *Config) IsDev() bool {
	return c.Env == "dev" || c.Env == "development"
}
