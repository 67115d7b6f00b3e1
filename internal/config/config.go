// Package config loads pipeline configuration from YAML or JSON files,
// layered over built-in defaults with environment variable overrides.
package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/shilohtd/grants-pipeline/internal/models"
)

// Config is the full pipeline configuration.
type Config struct {
	Pipeline PipelineConfig        `yaml:"pipeline" json:"pipeline"`
	Output   OutputConfig          `yaml:"output" json:"output"`
	Logging  LoggingConfig         `yaml:"logging" json:"logging"`
	Sources  []models.SourceConfig `yaml:"sources" json:"sources"`
}

type PipelineConfig struct {
	MaxRecordsPerSource int    `yaml:"max_records_per_source" json:"max_records_per_source"`
	FutureOnly          bool   `yaml:"future_only" json:"future_only"`
	EnableDeduplication bool   `yaml:"enable_deduplication" json:"enable_deduplication"`
	DefaultSort         string `yaml:"default_sort" json:"default_sort"`
}

type OutputConfig struct {
	Formats      []string `yaml:"formats" json:"formats"`
	OutputDir    string   `yaml:"output_dir" json:"output_dir"`
	WebOutputDir string   `yaml:"web_output_dir" json:"web_output_dir"`
}

type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
	File  string `yaml:"file" json:"file"`
}

// Defaults returns the configuration used when no file is given. Loaded
// files are unmarshaled over this, so omitted keys keep their defaults.
func Defaults() Config {
	return Config{
		Pipeline: PipelineConfig{
			MaxRecordsPerSource: 10000,
			FutureOnly:          true,
			EnableDeduplication: true,
			DefaultSort:         "close_date",
		},
		Output: OutputConfig{
			Formats:      []string{"json"},
			OutputDir:    "./output",
			WebOutputDir: "./web",
		},
		Logging: LoggingConfig{Level: "INFO"},
	}
}

// Load reads the configuration file at path. An empty path returns the
// defaults. ${VAR} references in the file are expanded from the environment
// before parsing; GRANTS_* environment variables override the result.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config file: %w", err)
		}
		expanded := []byte(os.ExpandEnv(string(raw)))

		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(expanded, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		case ".json":
			if err := json.Unmarshal(expanded, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing %s: %w", path, err)
			}
		default:
			return cfg, fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
		}
		log.Printf("[config] loaded configuration from %s", path)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides lets deployments tweak settings without editing files.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GRANTS_MAX_RECORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Pipeline.MaxRecordsPerSource = n
		}
	}
	if v := os.Getenv("GRANTS_FUTURE_ONLY"); v != "" {
		c.Pipeline.FutureOnly = models.ParseFlag(v)
	}
	if v := os.Getenv("GRANTS_OUTPUT_DIR"); v != "" {
		c.Output.OutputDir = v
	}
	if v := os.Getenv("GRANTS_LOG_FILE"); v != "" {
		c.Logging.File = v
	}
}

// Validate returns configuration defects. The output directory is created
// here so a bad path fails before any fetching happens.
func (c *Config) Validate() []string {
	var errs []string

	if c.Output.OutputDir != "" {
		if err := os.MkdirAll(c.Output.OutputDir, 0o755); err != nil {
			errs = append(errs, fmt.Sprintf("cannot create output directory %s: %v", c.Output.OutputDir, err))
		}
	}
	if c.Pipeline.MaxRecordsPerSource < 0 {
		errs = append(errs, "pipeline.max_records_per_source cannot be negative")
	}
	for i, src := range c.Sources {
		if src.Name == "" {
			errs = append(errs, fmt.Sprintf("source %d missing name", i))
		}
	}

	return errs
}

// SourceConfig returns the configuration block for one source by name.
func (c *Config) SourceConfig(name string) (models.SourceConfig, bool) {
	for _, src := range c.Sources {
		if src.Name == name {
			return src, true
		}
	}
	return models.SourceConfig{}, false
}

// Save writes the configuration to path as YAML or JSON by extension.
func Save(cfg Config, path string) error {
	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(cfg)
	case ".json":
		data, err = json.MarshalIndent(cfg, "", "  ")
	default:
		return fmt.Errorf("unsupported config file format: %s", filepath.Ext(path))
	}
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Example returns a starter configuration with the built-in sources wired
// to local extract files, suitable for Save.
func Example() Config {
	cfg := Defaults()
	cfg.Sources = []models.SourceConfig{
		{
			Name:            "grants.gov",
			Enabled:         true,
			UpdateFrequency: "daily",
			Config:          map[string]any{"file_path": "./data/grants_database.csv"},
		},
		{
			Name:            "grants.gov.xml",
			Enabled:         false,
			UpdateFrequency: "weekly",
			Config:          map[string]any{"file_path": "./data/grants_extract.xml"},
		},
		{
			Name:            "grants.gov.extract",
			Enabled:         false,
			UpdateFrequency: "weekly",
			Config: map[string]any{
				"base_url":     "https://www.grants.gov/xml-extract",
				"download_dir": "./downloads",
			},
		},
	}
	return cfg
}
