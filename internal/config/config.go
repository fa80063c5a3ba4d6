package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/ivankudzin/daycare-admin/internal/pkg/validate"
)

const envPrefix = "DAYCARE"

type Config struct {
	Env     string        `yaml:"env" envconfig:"ENV"`
	Log     LogConfig     `yaml:"log"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Cache   CacheConfig   `yaml:"cache"`
}

type LogConfig struct {
	Level string `yaml:"level" validate:"required"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url" split_words:"true" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

type StorageConfig struct {
	Driver    string      `yaml:"driver" validate:"oneof=memory redis"`
	Namespace string      `yaml:"namespace"`
	TokenKey  string      `yaml:"token_key" split_words:"true" validate:"required"`
	UserKey   string      `yaml:"user_key" split_words:"true" validate:"required"`
	Redis     RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"gte=0"`
}

type AuthConfig struct {
	LoginRedirect             string `yaml:"login_redirect" split_words:"true"`
	LogoutRedirect            string `yaml:"logout_redirect" split_words:"true"`
	KeepSessionOnNetworkError bool   `yaml:"keep_session_on_network_error" split_words:"true"`
	Email                     string `yaml:"email"`
	Password                  string `yaml:"password"`
}

type CacheConfig struct {
	TTL time.Duration `yaml:"ttl" validate:"gte=0"`
}

func Default() Config {
	return Config{
		Env: "dev",
		Log: LogConfig{Level: "info"},
		API: APIConfig{
			BaseURL: "http://localhost:3000/api",
			Timeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:    "memory",
			Namespace: "daycare-admin:",
			TokenKey:  "refine-auth",
			UserKey:   "user",
			Redis: RedisConfig{
				Addr: "localhost:6379",
				DB:   0,
			},
		},
		Auth: AuthConfig{
			LoginRedirect:             "/",
			LogoutRedirect:            "/login",
			KeepSessionOnNetworkError: true,
		},
		Cache: CacheConfig{TTL: 0},
	}
}

// Load layers defaults, the optional YAML file at path and DAYCARE_* environment
// variables, in that order, and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if err := loadFromYAML(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.normalize()

	if err := validate.New().Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

func (c Config) UsesRedis() bool {
	return c.Storage.Driver == "redis"
}

func (c Config) CacheEnabled() bool {
	return c.Cache.TTL > 0
}

func loadFromYAML(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("unmarshal config yaml: %w", err)
	}

	return nil
}

func (c *Config) normalize() {
	c.Log.Level = strings.ToLower(strings.TrimSpace(c.Log.Level))
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if strings.TrimSpace(c.Auth.LoginRedirect) == "" {
		c.Auth.LoginRedirect = "/"
	}
	if strings.TrimSpace(c.Auth.LogoutRedirect) == "" {
		c.Auth.LogoutRedirect = "/login"
	}
}
