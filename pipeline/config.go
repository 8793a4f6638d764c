package pipeline

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/maquette/auth"
	"github.com/hazyhaar/maquette/compare"
	"github.com/hazyhaar/maquette/designsource"
	"github.com/hazyhaar/maquette/extract"
	"github.com/hazyhaar/maquette/horosafe"
	"github.com/hazyhaar/maquette/navigate"
	"github.com/hazyhaar/maquette/session"
)

// Viewport is the browser viewport applied to every page of a request.
type Viewport struct {
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// Config is the full pipeline configuration. Zero values take defaults.
type Config struct {
	// RequestTimeout is the per-request deadline every step budget derives
	// from. Default: 120s.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	Viewport  Viewport `yaml:"viewport"`
	UserAgent string   `yaml:"user_agent"`

	// URLPolicy guards user-supplied navigation targets.
	URLPolicy horosafe.URLPolicy `yaml:"url_policy"`

	// StaticFirst tries a plain HTTP fetch before acquiring a browser
	// session. The static path is taken only when the HTML is
	// server-rendered and yields a usable token set on its own.
	StaticFirst bool `yaml:"static_first"`

	Session  session.Config      `yaml:"session"`
	Navigate navigate.Config     `yaml:"navigate"`
	Auth     auth.Config         `yaml:"auth"`
	Extract  extract.Config      `yaml:"extract"`
	Design   designsource.Config `yaml:"design"`

	// Weights controls category weighting in the aggregate score.
	Weights compare.Weights `yaml:"weights"`

	Logger *slog.Logger `yaml:"-"`
}

func (c *Config) defaults() {
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.Viewport.Width <= 0 {
		c.Viewport.Width = 1280
	}
	if c.Viewport.Height <= 0 {
		c.Viewport.Height = 800
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	c.Session.Logger = c.Logger
	c.Navigate.Logger = c.Logger
	c.Auth.Logger = c.Logger
	c.Extract.Logger = c.Logger
	c.Design.Logger = c.Logger
}

// LoadConfig reads a YAML config file.
func LoadConfig(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("pipeline: read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("pipeline: parse config: %w", err)
	}
	return cfg, nil
}
