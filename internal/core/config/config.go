package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/gobwas/glob"
)

type Config struct {
	Version   int       `toml:"version"`
	Workspace Workspace `toml:"workspace"`
	Registry  Registry  `toml:"registry"`
	DB        Database  `toml:"db"`
	Metrics   Metrics   `toml:"metrics"`
	Trace     Trace     `toml:"trace"`
	Watch     Watch     `toml:"watch"`
}

type Workspace struct {
	Root         string   `toml:"root"`
	ModuleSuffix string   `toml:"module_suffix"`
	ExcludeDirs  []string `toml:"exclude_dirs"`
	ExcludeFiles []string `toml:"exclude_files"`
}

type Registry struct {
	// IntrinsicPatterns name built-in module paths (e.g. "std.*") that
	// resolve without invoking the loader.
	IntrinsicPatterns []string `toml:"intrinsic_patterns"`
	LoaderRate        float64  `toml:"loader_rate"`
	LoaderBurst       int      `toml:"loader_burst"`
}

type Database struct {
	Enabled    bool   `toml:"enabled"`
	Path       string `toml:"path"`
	ProjectKey string `toml:"project_key"`
}

type Metrics struct {
	Enabled bool   `toml:"enabled"`
	Addr    string `toml:"addr"`
}

type Trace struct {
	Enabled    bool    `toml:"enabled"`
	Endpoint   string  `toml:"endpoint"`
	SampleRate float64 `toml:"sample_rate"`
}

type Watch struct {
	Debounce time.Duration `toml:"debounce"`
}

func Default() *Config {
	return &Config{
		Version: 1,
		Workspace: Workspace{
			Root:         ".",
			ModuleSuffix: ".mod",
			ExcludeDirs:  []string{".git", "node_modules"},
		},
		Registry: Registry{
			IntrinsicPatterns: nil,
			LoaderRate:        0,
			LoaderBurst:       0,
		},
		DB: Database{
			Enabled:    false,
			Path:       ".declimp/snapshot.db",
			ProjectKey: "default",
		},
		Metrics: Metrics{
			Enabled: false,
			Addr:    "127.0.0.1:9187",
		},
		Trace: Trace{
			Enabled:    false,
			SampleRate: 1.0,
		},
		Watch: Watch{
			Debounce: 300 * time.Millisecond,
		},
	}
}

// Load reads a TOML config file over the defaults. A missing path returns
// the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Workspace.ModuleSuffix == "" {
		return fmt.Errorf("workspace.module_suffix must not be empty")
	}
	for _, p := range c.Registry.IntrinsicPatterns {
		if _, err := glob.Compile(p, '.'); err != nil {
			return fmt.Errorf("registry.intrinsic_patterns: invalid pattern %q: %w", p, err)
		}
	}
	for _, p := range append(append([]string{}, c.Workspace.ExcludeDirs...), c.Workspace.ExcludeFiles...) {
		if _, err := glob.Compile(p); err != nil {
			return fmt.Errorf("workspace excludes: invalid pattern %q: %w", p, err)
		}
	}
	if c.Trace.SampleRate < 0 || c.Trace.SampleRate > 1 {
		return fmt.Errorf("trace.sample_rate must be within [0, 1]")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}
