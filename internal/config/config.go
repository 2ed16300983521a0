package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	defaultHistoryCacheSize = 200
	maxHistoryCacheSize     = 5000
)

// Options is the raw, unvalidated configuration as it appears in a YAML
// file or on the command line.
type Options struct {
	ServerAddr       string   `yaml:"addr"`
	DatabaseDSN      string   `yaml:"dsn"`
	SigningKey       string   `yaml:"signing_key"`
	Issuer           string   `yaml:"issuer"`
	Audience         string   `yaml:"audience"`
	AllowedOrigins   []string `yaml:"allowed_origins"`
	RedisAddr        string   `yaml:"redis_addr"`
	HistoryCacheSize int      `yaml:"history_cache_size"`
	AutoMigrate      bool     `yaml:"auto_migrate"`
}

type Config struct {
	ServerAddr       string
	DatabaseDSN      string
	SigningKey       []byte
	Issuer           string
	Audience         string
	AllowedOrigins   []string
	RedisAddr        string
	HistoryCacheSize int
	AutoMigrate      bool
}

// DefaultOptions returns development defaults. The signing key must be
// overridden outside of local development.
func DefaultOptions() Options {
	return Options{
		ServerAddr:       "localhost:8000",
		DatabaseDSN:      "host=localhost user=postgres password=postgres dbname=campus sslmode=disable",
		SigningKey:       "wT0phFUusHZIrDhL9bUKPUhwaxKhpi/SaI6PtgB+MgU=",
		Issuer:           "campus-connect",
		Audience:         "campus-connect-client",
		AllowedOrigins:   []string{"http://localhost:5173"},
		HistoryCacheSize: defaultHistoryCacheSize,
		AutoMigrate:      true,
	}
}

// LoadFile overlays the YAML document at path onto base. Keys missing from
// the file keep their value from base.
func LoadFile(path string, base Options) (Options, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return base, fmt.Errorf("read config file: %w", err)
	}

	opts := base
	if err := yaml.Unmarshal(raw, &opts); err != nil {
		return base, fmt.Errorf("parse config file: %w", err)
	}

	return opts, nil
}

func decodeSigningSecret(base64Secret string) ([]byte, error) {
	if base64Secret == "" {
		return nil, fmt.Errorf("empty secret")
	}
	return base64.StdEncoding.DecodeString(base64Secret)
}

func NewConfig(opts Options) (*Config, error) {
	if opts.ServerAddr == "" {
		return nil, fmt.Errorf("server address cannot be empty")
	}
	if opts.DatabaseDSN == "" {
		return nil, fmt.Errorf("database DSN cannot be empty")
	}
	if opts.SigningKey == "" {
		return nil, fmt.Errorf("signing secret cannot be empty")
	}
	if opts.Issuer == "" || opts.Audience == "" {
		return nil, fmt.Errorf("token issuer and audience cannot be empty")
	}
	if opts.HistoryCacheSize < 0 || opts.HistoryCacheSize > maxHistoryCacheSize {
		return nil, fmt.Errorf("history cache size must be between 0 and %d", maxHistoryCacheSize)
	}

	signingKey, err := decodeSigningSecret(opts.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("decode signing secret: %w", err)
	}

	origins := make([]string, 0, len(opts.AllowedOrigins))
	for _, o := range opts.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}

	return &Config{
		ServerAddr:       opts.ServerAddr,
		DatabaseDSN:      opts.DatabaseDSN,
		SigningKey:       signingKey,
		Issuer:           opts.Issuer,
		Audience:         opts.Audience,
		AllowedOrigins:   origins,
		RedisAddr:        opts.RedisAddr,
		HistoryCacheSize: opts.HistoryCacheSize,
		AutoMigrate:      opts.AutoMigrate,
	}, nil
}
