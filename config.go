package infinidom

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Renderer mode names accepted in configuration.
const (
	RendererAuto     = "auto"
	RendererTree     = "tree"
	RendererFallback = "fallback"
)

// Config is the top-level client configuration.
type Config struct {
	// ServerURL is the base URL of the stream server.
	ServerURL string `yaml:"server_url"`
	// PageURL is the URL the rendered page presents as. It decides which
	// links are same-origin. Defaults to ServerURL.
	PageURL string `yaml:"page_url"`
	// Renderer selects the rendering mode: auto, tree or fallback. Auto
	// probes the attached view once and settles on tree or fallback for
	// the rest of the session.
	Renderer string `yaml:"renderer"`
	// SessionDB is the path of the SQLite file holding the session token.
	// Empty means in-memory only.
	SessionDB string `yaml:"session_db"`
	// AttachTimeout bounds the view probe in auto mode.
	AttachTimeout time.Duration `yaml:"attach_timeout"`

	Viewport ViewportConfig `yaml:"viewport"`
}

// ViewportConfig is the viewport reported with every interaction.
type ViewportConfig struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("infinidom: read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("infinidom: parse config: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.ServerURL == "" {
		c.ServerURL = "http://localhost:8000"
	}
	if c.PageURL == "" {
		c.PageURL = c.ServerURL
	}
	if c.Renderer == "" {
		c.Renderer = RendererAuto
	}
	if c.AttachTimeout <= 0 {
		c.AttachTimeout = 3 * time.Second
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = 1280
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 800
	}
}
