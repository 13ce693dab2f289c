// Package config loads the process configuration from a YAML file with
// environment variable overrides (dots become underscores, e.g.
// AUTH_ACCESS_SECRET overrides auth.access_secret).
package config

import (
	"time"

	"github.com/postloop/postloop/internal/postgres"
	"github.com/postloop/postloop/platforms"
)

type App struct {
	Name   string `mapstructure:"name"`
	Env    string `mapstructure:"env"`
	Domain string `mapstructure:"domain"`
}

type Server struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	GracefulTimeout time.Duration `mapstructure:"graceful_timeout"`
}

type Auth struct {
	AccessSecret  string        `mapstructure:"access_secret"`
	RefreshSecret string        `mapstructure:"refresh_secret"`
	AccessTTL     time.Duration `mapstructure:"access_ttl"`
	RefreshTTL    time.Duration `mapstructure:"refresh_ttl"`
}

type Vault struct {
	// OperatorSecret derives the credential encryption key. In production
	// the process refuses to start without one.
	OperatorSecret string        `mapstructure:"operator_secret"`
	RevokeTimeout  time.Duration `mapstructure:"revoke_timeout"`
}

type Refresh struct {
	LeadWindow  time.Duration `mapstructure:"lead_window"`
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

type Log struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

type Config struct {
	App       App                            `mapstructure:"app"`
	Server    Server                         `mapstructure:"server"`
	DB        postgres.Config                `mapstructure:"db"`
	Auth      Auth                           `mapstructure:"auth"`
	Vault     Vault                          `mapstructure:"vault"`
	Refresh   Refresh                        `mapstructure:"refresh"`
	Log       Log                            `mapstructure:"log"`
	Providers map[string]platforms.AppConfig `mapstructure:"providers"`
}
