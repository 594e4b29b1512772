// Package config loads server settings from an optional YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	BindIP string `yaml:"bind_ip" env:"FORMLINK_BIND_IP" env-default:"0.0.0.0"`
	Port   string `yaml:"port" env:"PORT" env-default:"8080"`
}

type Database struct {
	Driver string `yaml:"driver" env:"FORMLINK_DB_DRIVER" env-default:"sqlite" env-description:"sqlite or postgres"`
	DSN    string `yaml:"dsn" env:"FORMLINK_DB_DSN" env-default:"formlink.db"`
}

type JWT struct {
	Secret string        `yaml:"secret" env:"JWT_SECRET" env-description:"token signing key"`
	TTL    time.Duration `yaml:"ttl" env:"FORMLINK_JWT_TTL" env-default:"24h"`
}

type Uploads struct {
	Driver   string `yaml:"driver" env:"FORMLINK_UPLOAD_DRIVER" env-default:"file" env-description:"file or minio"`
	Path     string `yaml:"path" env:"FORMLINK_UPLOAD_PATH" env-default:"uploads"`
	MaxBytes int64  `yaml:"max_bytes" env:"FORMLINK_UPLOAD_MAX_BYTES" env-default:"52428800"`
}

type Minio struct {
	Endpoint  string `yaml:"endpoint" env:"FORMLINK_MINIO_ENDPOINT"`
	AccessKey string `yaml:"access_key" env:"FORMLINK_MINIO_ACCESS_KEY"`
	SecretKey string `yaml:"secret_key" env:"FORMLINK_MINIO_SECRET_KEY"`
	Bucket    string `yaml:"bucket" env:"FORMLINK_MINIO_BUCKET" env-default:"formlink-photos"`
	UseSSL    bool   `yaml:"use_ssl" env:"FORMLINK_MINIO_USE_SSL" env-default:"false"`
}

type Redis struct {
	Addr     string `yaml:"addr" env:"FORMLINK_REDIS_ADDR" env-description:"rate limiting is disabled when empty"`
	Password string `yaml:"password" env:"FORMLINK_REDIS_PASSWORD"`
}

type RateLimit struct {
	SubmissionsPerMinute int `yaml:"submissions_per_minute" env:"FORMLINK_RATE_LIMIT" env-default:"30"`
}

type Links struct {
	PerPage int `yaml:"per_page" env:"FORMLINK_LINKS_PER_PAGE" env-default:"8"`
}

type Admin struct {
	Email    string `yaml:"email" env:"FORMLINK_ADMIN_EMAIL" env-default:"admin@formlink.local"`
	Password string `yaml:"password" env:"FORMLINK_ADMIN_PASSWORD" env-default:"changeme"`
}

type Config struct {
	Env       string    `yaml:"env" env:"FORMLINK_ENV" env-default:"local"`
	LogLevel  string    `yaml:"log_level" env:"FORMLINK_LOG_LEVEL"`
	Listen    Listen    `yaml:"listen"`
	Database  Database  `yaml:"database"`
	JWT       JWT       `yaml:"jwt"`
	Uploads   Uploads   `yaml:"uploads"`
	Minio     Minio     `yaml:"minio"`
	Redis     Redis     `yaml:"redis"`
	RateLimit RateLimit `yaml:"rate_limit"`
	Links     Links     `yaml:"links"`
	Admin     Admin     `yaml:"admin"`
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return c.Listen.BindIP + ":" + c.Listen.Port
}

// Load reads the config file at path, if it exists, and applies environment
// overrides. An empty path reads the environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	var err error
	if path != "" && fileExists(path) {
		err = cleanenv.ReadConfig(path, cfg)
	} else {
		err = cleanenv.ReadEnv(cfg)
	}
	if err != nil {
		desc, _ := cleanenv.GetDescription(cfg, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// MustLoad is Load for main; it exits on error
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) validate() error {
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Uploads.Driver {
	case "file":
	case "minio":
		if c.Minio.Endpoint == "" {
			return errors.New("minio endpoint is required for the minio upload driver")
		}
	default:
		return fmt.Errorf("unknown upload driver %q", c.Uploads.Driver)
	}
	if c.Uploads.MaxBytes <= 0 {
		return errors.New("uploads max_bytes must be positive")
	}
	if c.Links.PerPage <= 0 {
		return errors.New("links per_page must be positive")
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
