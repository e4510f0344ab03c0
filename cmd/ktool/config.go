package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Fill    FillConfig    `yaml:"fill"`
	Render  RenderConfig  `yaml:"render"`
	Audit   AuditConfig   `yaml:"audit"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BackendConfig points at the content-management backend.
type BackendConfig struct {
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	PublishPath string `yaml:"publish_path"`
	ContentPath string `yaml:"content_path"`
}

// FillConfig points at the content-fill collaborator.
type FillConfig struct {
	URL   string `yaml:"url"`
	Token string `yaml:"token"`
}

// RenderConfig controls diagram rendering and upload pacing.
type RenderConfig struct {
	EngineURL   string        `yaml:"engine_url"`
	UploadDelay time.Duration `yaml:"upload_delay"`
}

// AuditConfig controls the publish-run history store.
type AuditConfig struct {
	Path string `yaml:"path"`
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8086"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Audit.Path == "" {
		c.Audit.Path = "db/audit.db"
	}
}

// applyEnv overlays environment variables onto the file configuration, so a
// container deploy can run without a config file at all.
func (c *Config) applyEnv() {
	overlay := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	overlay(&c.Server.Port, "PORT")
	overlay(&c.Server.LogLevel, "LOG_LEVEL")
	overlay(&c.Backend.URL, "BACKEND_URL")
	overlay(&c.Backend.Token, "BACKEND_TOKEN")
	overlay(&c.Fill.URL, "FILL_URL")
	overlay(&c.Fill.Token, "FILL_TOKEN")
	overlay(&c.Render.EngineURL, "RENDER_ENGINE_URL")
	overlay(&c.Audit.Path, "AUDIT_DB")
}
