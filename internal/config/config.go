package config

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"annotation-xref/internal/models"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Server struct {
		Host string `yaml:"host"`
		Port string `yaml:"port"`

		// Browser origins allowed to call the API; none by default
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"server"`

	// Obsidian vaults, keyed by vault name
	Profiles       map[string]*models.Profile `yaml:"profiles"`
	DefaultProfile string                     `yaml:"default_profile"`

	Library struct {
		Path           string `yaml:"path"`            // zotero.sqlite
		AnnotationMode string `yaml:"annotation_mode"` // "auto", "direct" or "children"
	} `yaml:"library"`

	Search struct {
		Timeout            time.Duration `yaml:"timeout"`
		RequestsPerMinute  int           `yaml:"requests_per_minute"`
		InsecureSkipVerify bool          `yaml:"insecure_skip_verify"`
	} `yaml:"search"`

	Log struct {
		Level       string `yaml:"level"`
		Development *bool  `yaml:"development"`
	} `yaml:"log"`
}

// LoadConfig loads configuration from YAML file
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file: %w", err)
	}

	if err := config.applyDefaults(); err != nil {
		return nil, err
	}

	return config, nil
}

func (c *Config) applyDefaults() error {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == "" {
		c.Server.Port = "8003"
	}
	for i, origin := range c.Server.AllowedOrigins {
		c.Server.AllowedOrigins[i] = strings.TrimRight(strings.TrimSpace(origin), "/")
	}

	if c.Library.AnnotationMode == "" {
		c.Library.AnnotationMode = "auto"
	}

	switch c.Library.AnnotationMode {
	case "auto", "direct", "children":
	default:
		return fmt.Errorf("invalid library.annotation_mode %q", c.Library.AnnotationMode)
	}

	if c.Search.Timeout == 0 {
		c.Search.Timeout = 10 * time.Second
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}

	if c.Log.Development == nil {
		dev := true
		c.Log.Development = &dev
	}

	// Expand environment variables in paths and vault tokens
	c.Library.Path = os.ExpandEnv(c.Library.Path)
	for name, p := range c.Profiles {
		if p == nil {
			return fmt.Errorf("profile %q is empty", name)
		}
		p.Name = name
		p.Token = os.ExpandEnv(p.Token)
		p.BaseURL = strings.TrimRight(os.ExpandEnv(p.BaseURL), "/")
		if p.BaseURL == "" {
			return fmt.Errorf("profile %q has no base_url", name)
		}
	}

	if len(c.Profiles) == 0 {
		return fmt.Errorf("no profiles configured")
	}

	if c.DefaultProfile == "" {
		c.DefaultProfile = c.ProfileNames()[0]
	}
	if _, ok := c.Profiles[c.DefaultProfile]; !ok {
		return fmt.Errorf("default_profile %q is not configured", c.DefaultProfile)
	}

	return nil
}

// ProfileNames returns the configured vault names in sorted order
func (c *Config) ProfileNames() []string {
	names := make([]string, 0, len(c.Profiles))
	for name := range c.Profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns the active profile. An empty or unknown override falls
// back to the default profile; the second return value is false in the
// unknown case so callers can mention it.
func (c *Config) Resolve(override string) (models.Profile, bool) {
	override = strings.TrimSpace(override)
	if override != "" {
		if p, ok := c.Profiles[override]; ok {
			return *p, true
		}
		return *c.Profiles[c.DefaultProfile], false
	}
	return *c.Profiles[c.DefaultProfile], true
}
