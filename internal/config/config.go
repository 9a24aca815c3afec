package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa de authgate.
// Se carga desde YAML y se sobreescribe con variables de entorno AUTHGATE_*.
type Config struct {
	App struct {
		// dev | prod
		Env      string `yaml:"env" env:"AUTHGATE_ENV"`
		LogLevel string `yaml:"log_level" env:"AUTHGATE_LOG_LEVEL"`
	} `yaml:"app"`

	// API es el backend de sesiones (first-party).
	API struct {
		BaseURL string        `yaml:"base_url" env:"AUTHGATE_API_URL"`
		Timeout time.Duration `yaml:"timeout" env:"AUTHGATE_API_TIMEOUT"`
	} `yaml:"api"`

	// Provider es el identity provider OAuth/OIDC (third-party).
	Provider struct {
		Domain       string        `yaml:"domain" env:"AUTHGATE_PROVIDER_DOMAIN"`
		ClientID     string        `yaml:"client_id" env:"AUTHGATE_PROVIDER_CLIENT_ID"`
		RedirectURL  string        `yaml:"redirect_url" env:"AUTHGATE_PROVIDER_REDIRECT_URL"`
		Scopes       []string      `yaml:"scopes" env:"AUTHGATE_PROVIDER_SCOPES"`
		CallbackAddr string        `yaml:"callback_addr" env:"AUTHGATE_CALLBACK_ADDR"`
		LoginTimeout time.Duration `yaml:"login_timeout" env:"AUTHGATE_LOGIN_TIMEOUT"`
	} `yaml:"provider"`

	// Store es la persistencia local de la sesión.
	Store struct {
		// file | redis | memory
		Driver string `yaml:"driver" env:"AUTHGATE_STORE_DRIVER"`
		File   struct {
			Path string `yaml:"path" env:"AUTHGATE_STORE_PATH"`
		} `yaml:"file"`
		Redis struct {
			Addr     string `yaml:"addr" env:"AUTHGATE_REDIS_ADDR"`
			Password string `yaml:"password" env:"AUTHGATE_REDIS_PASSWORD"`
			DB       int    `yaml:"db" env:"AUTHGATE_REDIS_DB"`
			Prefix   string `yaml:"prefix" env:"AUTHGATE_REDIS_PREFIX"`
		} `yaml:"redis"`
	} `yaml:"store"`

	// Claim es el flujo de "claim profile" (perfil existente sin reclamar).
	Claim struct {
		// TTL del pending claim en el cliente. El backend expira el temp
		// token por su cuenta; este TTL evita ofrecer un claim ya muerto.
		TTL time.Duration `yaml:"ttl" env:"AUTHGATE_CLAIM_TTL"`
	} `yaml:"claim"`
}

// Load lee la configuración desde path (YAML), aplica overrides de entorno
// y defaults. Si path no existe, parte de una config vacía (solo env).
func Load(path string) (*Config, error) {
	var c Config

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	// Overrides de entorno (AUTHGATE_*)
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("config: parse env: %w", err)
	}

	// sane defaults
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.API.Timeout == 0 {
		c.API.Timeout = 10 * time.Second
	}
	if len(c.Provider.Scopes) == 0 {
		c.Provider.Scopes = []string{"openid", "email", "profile"}
	}
	if c.Provider.CallbackAddr == "" {
		c.Provider.CallbackAddr = "127.0.0.1:8765"
	}
	if c.Provider.RedirectURL == "" {
		c.Provider.RedirectURL = "http://" + c.Provider.CallbackAddr + "/callback"
	}
	if c.Provider.LoginTimeout == 0 {
		c.Provider.LoginTimeout = 5 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "file"
	}
	if c.Store.File.Path == "" {
		home, err := os.UserHomeDir()
		if err == nil {
			c.Store.File.Path = home + "/.authgate/session.json"
		} else {
			c.Store.File.Path = "./.authgate/session.json"
		}
	}
	if c.Store.Redis.Prefix == "" {
		c.Store.Redis.Prefix = "authgate"
	}
	if c.Claim.TTL == 0 {
		c.Claim.TTL = 10 * time.Minute
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate chequea los valores críticos.
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("config: api.base_url is required (AUTHGATE_API_URL)")
	}
	switch c.Store.Driver {
	case "file", "redis", "memory":
	default:
		return fmt.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "redis" && c.Store.Redis.Addr == "" {
		return fmt.Errorf("config: store.redis.addr is required for the redis driver")
	}
	return nil
}
