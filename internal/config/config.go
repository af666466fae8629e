// Package config loads the application configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the configuration file read when none is given.
const DefaultPath = "spacetraveling.yaml"

// Config is the full application configuration.
type Config struct {
	SiteTitle string `yaml:"siteTitle"`
	BaseURL   string `yaml:"baseURL"`
	Addr      string `yaml:"addr"`
	Debug     bool   `yaml:"debug"`
	CMS       CMS    `yaml:"cms"`
	Cache     Cache  `yaml:"cache"`
	Build     Build  `yaml:"build"`
}

// CMS configures the content backend.
type CMS struct {
	Endpoint    string `yaml:"endpoint"`
	AccessToken string `yaml:"accessToken"`
	// PageSize is the number of posts on the first listing page.
	PageSize int           `yaml:"pageSize"`
	Timeout  time.Duration `yaml:"timeout"`
}

// Cache configures the document cache.
type Cache struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Revalidate is how long a cached document is served before refetching.
	Revalidate time.Duration `yaml:"revalidate"`
	// RetainFor is how long unrefreshed documents are kept before purging.
	RetainFor time.Duration `yaml:"retainFor"`
}

// Build configures the static generator.
type Build struct {
	OutDir      string `yaml:"outDir"`
	Concurrency int    `yaml:"concurrency"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		SiteTitle: "spacetraveling",
		BaseURL:   "http://localhost:8080",
		Addr:      ":8080",
		CMS: CMS{
			PageSize: 1,
			Timeout:  30 * time.Second,
		},
		Cache: Cache{
			Driver:     "sqlite",
			DSN:        "spacetraveling.db",
			Revalidate: 24 * time.Hour,
			RetainFor:  7 * 24 * time.Hour,
		},
		Build: Build{
			OutDir:      "public",
			Concurrency: 4,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file is not an error when path is DefaultPath.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	case err != nil:
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	strs := map[string]*string{
		"SPACETRAVELING_ADDR":             &c.Addr,
		"SPACETRAVELING_BASE_URL":         &c.BaseURL,
		"SPACETRAVELING_CMS_ENDPOINT":     &c.CMS.Endpoint,
		"SPACETRAVELING_CMS_ACCESS_TOKEN": &c.CMS.AccessToken,
		"SPACETRAVELING_CACHE_DRIVER":     &c.Cache.Driver,
		"SPACETRAVELING_CACHE_DSN":        &c.Cache.DSN,
		"SPACETRAVELING_OUT_DIR":          &c.Build.OutDir,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	if v, ok := lookup("SPACETRAVELING_CMS_PAGE_SIZE"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("SPACETRAVELING_CMS_PAGE_SIZE: %w", err)
		}
		c.CMS.PageSize = n
	}
	if v, ok := lookup("SPACETRAVELING_CACHE_REVALIDATE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("SPACETRAVELING_CACHE_REVALIDATE: %w", err)
		}
		c.Cache.Revalidate = d
	}
	if v, ok := lookup("SPACETRAVELING_DEBUG"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("SPACETRAVELING_DEBUG: %w", err)
		}
		c.Debug = b
	}
	return nil
}

// Validate reports configuration that cannot work.
func (c Config) Validate() error {
	switch {
	case c.CMS.PageSize < 1:
		return fmt.Errorf("cms.pageSize must be at least 1, got %d", c.CMS.PageSize)
	case c.Cache.Revalidate <= 0:
		return fmt.Errorf("cache.revalidate must be positive, got %s", c.Cache.Revalidate)
	case c.Cache.Driver != "sqlite" && c.Cache.Driver != "postgres":
		return fmt.Errorf(`cache.driver must be "sqlite" or "postgres", got %q`, c.Cache.Driver)
	case c.Build.Concurrency < 1:
		return fmt.Errorf("build.concurrency must be at least 1, got %d", c.Build.Concurrency)
	}
	return nil
}
