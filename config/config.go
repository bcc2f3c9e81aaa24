// Copyright (c) 2024-2025 Darcy Buskermolen <darcy@dbitech.ca>
// SPDX-License-Identifier: BSD-3-Clause

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port int    `yaml:"port"`
	} `yaml:"server"`

	API struct {
		BasePath string `yaml:"base_path"`
	} `yaml:"api"`

	Metrics struct {
		Enabled bool   `yaml:"enabled"`
		Path    string `yaml:"path"`
	} `yaml:"metrics"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json or console
	} `yaml:"log"`

	Auth struct {
		JWT struct {
			Secret     string `yaml:"secret"`
			PublicKey  string `yaml:"public_key"`  // PEM; selects RS256 when set
			PrivateKey string `yaml:"private_key"` // PEM; required to issue RS256 tokens
			Issuer     string `yaml:"issuer"`
			Audience   string `yaml:"audience"`
			TokenTTL   int    `yaml:"token_ttl_seconds"`
		} `yaml:"jwt"`
		Redis struct {
			Enabled       bool   `yaml:"enabled"`
			Mock          bool   `yaml:"mock"` // serve the store from an in-process miniredis
			URL           string `yaml:"url"`  // takes precedence over host/port
			Host          string `yaml:"host"`
			Port          int    `yaml:"port"`
			DB            int    `yaml:"db"`
			Password      string `yaml:"password"`
			KeyPrefix     string `yaml:"key_prefix"`
			ProbeInterval int    `yaml:"probe_interval_seconds"`
			Timeout       int    `yaml:"timeout_seconds"`
		} `yaml:"redis"`
		Memory struct {
			SweepInterval int `yaml:"sweep_interval_seconds"`
		} `yaml:"memory"`
		Postgres struct {
			Enabled         bool   `yaml:"enabled"`
			Host            string `yaml:"host"`
			Port            int    `yaml:"port"`
			User            string `yaml:"user"`
			Password        string `yaml:"password"`
			DBName          string `yaml:"dbname"`
			SSLMode         string `yaml:"sslmode"`
			UserByIDQuery   string `yaml:"user_by_id_query"`
			UserByNameQuery string `yaml:"user_by_name_query"`
			CreateUserQuery string `yaml:"create_user_query"`
		} `yaml:"postgres"`
	} `yaml:"auth"`
}

// LoadConfig reads filename (skipped when empty), applies defaults and then
// environment overrides.
func LoadConfig(filename string) (*Config, error) {
	config := &Config{}

	if filename != "" {
		data, err := os.ReadFile(filename)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}

	if err := config.applyEnv(); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if config.Auth.JWT.TokenTTL < 1 {
		return nil, fmt.Errorf("invalid auth.jwt.token_ttl_seconds %d: must be at least 1", config.Auth.JWT.TokenTTL)
	}

	return config, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 4000
	}
	if c.Server.Host == "" {
		c.Server.Host = "localhost"
	}
	if c.API.BasePath == "" {
		c.API.BasePath = "/api"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.Auth.JWT.TokenTTL == 0 {
		c.Auth.JWT.TokenTTL = 60
	}
	if c.Auth.Redis.Host == "" {
		c.Auth.Redis.Host = "localhost"
	}
	if c.Auth.Redis.Port == 0 {
		c.Auth.Redis.Port = 6379
	}
	if c.Auth.Redis.KeyPrefix == "" {
		c.Auth.Redis.KeyPrefix = "revoked:"
	}
	if c.Auth.Redis.ProbeInterval == 0 {
		c.Auth.Redis.ProbeInterval = 5
	}
	if c.Auth.Redis.Timeout == 0 {
		c.Auth.Redis.Timeout = 2
	}
	if c.Auth.Memory.SweepInterval == 0 {
		c.Auth.Memory.SweepInterval = 60
	}
	if c.Auth.Postgres.Port == 0 {
		c.Auth.Postgres.Port = 5432
	}
	if c.Auth.Postgres.SSLMode == "" {
		c.Auth.Postgres.SSLMode = "disable"
	}
	if c.Auth.Postgres.UserByIDQuery == "" {
		c.Auth.Postgres.UserByIDQuery = "SELECT id, username, password_hash, avatar, is_admin, is_verified, verification_type FROM users WHERE id = $1"
	}
	if c.Auth.Postgres.UserByNameQuery == "" {
		c.Auth.Postgres.UserByNameQuery = "SELECT id, username, password_hash, avatar, is_admin, is_verified, verification_type FROM users WHERE username = $1"
	}
	if c.Auth.Postgres.CreateUserQuery == "" {
		c.Auth.Postgres.CreateUserQuery = "INSERT INTO users (username, password_hash, avatar, is_admin, is_verified, verification_type) VALUES ($1, $2, $3, $4, $5, $6) RETURNING id"
	}
}

func (c *Config) applyEnv() error {
	if v, ok := os.LookupEnv("JWT_SECRET"); ok {
		c.Auth.JWT.Secret = v
	}
	if v, ok := os.LookupEnv("JWT_PUBLIC_KEY"); ok {
		c.Auth.JWT.PublicKey = unfoldPEM(v)
	}
	if v, ok := os.LookupEnv("JWT_PRIVATE_KEY"); ok {
		c.Auth.JWT.PrivateKey = unfoldPEM(v)
	}
	if v, ok := os.LookupEnv("JWT_ISSUER"); ok {
		c.Auth.JWT.Issuer = v
	}
	if v, ok := os.LookupEnv("JWT_AUDIENCE"); ok {
		c.Auth.JWT.Audience = v
	}
	if v := os.Getenv("JWT_TTL_SECONDS"); v != "" {
		ttl, err := strconv.Atoi(v)
		if err != nil || ttl <= 0 {
			return fmt.Errorf("invalid JWT_TTL_SECONDS %q", v)
		}
		c.Auth.JWT.TokenTTL = ttl
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Auth.Redis.Enabled = true
		c.Auth.Redis.URL = v
	}
	if os.Getenv("REDIS_MOCK") == "1" {
		c.Auth.Redis.Enabled = true
		c.Auth.Redis.Mock = true
	}
	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PORT %q", v)
		}
		c.Server.Port = port
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	return nil
}

// unfoldPEM turns literal "\n" sequences, as commonly found in env files,
// back into newlines.
func unfoldPEM(v string) string {
	return strings.ReplaceAll(v, `\n`, "\n")
}
