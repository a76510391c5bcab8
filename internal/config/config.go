package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"vipctl/internal/filter"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Environment variables read after the config file
const (
	EnvAPIURL        = "VIP_API_URL"
	EnvAPIToken      = "VIP_API_TOKEN"
	EnvFilesEndpoint = "VIP_FILES_ENDPOINT"
)

// Files backends
const (
	BackendFiles = "files"
	BackendS3    = "s3"
)

// Config represents the application configuration
type Config struct {
	API         API    `yaml:"api"`
	Files       Files  `yaml:"files"`
	Import      Import `yaml:"import"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// API represents control-plane connection settings
type API struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Files represents the upload target
type Files struct {
	Endpoint string   `yaml:"endpoint"`
	Secure   bool     `yaml:"secure"`
	Backend  string   `yaml:"backend"`
	S3       S3Config `yaml:"s3"`
}

// S3Config represents S3-compatible storage configuration
type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	Secure    bool   `yaml:"secure"`
}

// Import represents import-specific configuration
type Import struct {
	Types          []string `yaml:"types"`
	ExtraTypes     []string `yaml:"extra_types"`
	Parallel       int      `yaml:"parallel"`
	Intermediate   bool     `yaml:"intermediate"`
	Fast           bool     `yaml:"fast"`
	DryRun         bool     `yaml:"dry_run"`
	Retries        int      `yaml:"retries"`
	RetryBackoffMs int      `yaml:"retry_backoff_ms"`
	Checkpoint     string   `yaml:"checkpoint"`
	Resume         bool     `yaml:"resume"`
	LogDir         string   `yaml:"log_dir"`
	ShowProgress   bool     `yaml:"show_progress"`
	SkipConfirm    bool     `yaml:"skip_confirm"`
	UploadsRoot    string   `yaml:"uploads_root"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		LogLevel: "info",
		API: API{
			Timeout: 30 * time.Second,
		},
		Files: Files{
			Endpoint: "files.vipv2.net",
			Secure:   true,
			Backend:  BackendFiles,
		},
		Import: Import{
			Types:          append([]string(nil), filter.DefaultTypes...),
			Parallel:       5,
			Retries:        3,
			RetryBackoffMs: 500,
			Checkpoint:     "./import-checkpoint.db",
			LogDir:         os.TempDir(),
			ShowProgress:   true,
			UploadsRoot:    filter.DefaultUploadsRoot,
		},
	}
}

// Load loads configuration from defaults, file, environment and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := Default()

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

// loadFromEnv reads .env from the working directory when present. Variables
// already set in the process environment win over .env entries.
func loadFromEnv(cfg *Config) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	if v := os.Getenv(EnvAPIURL); v != "" {
		cfg.API.URL = v
	}
	if v := os.Getenv(EnvAPIToken); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv(EnvFilesEndpoint); v != "" {
		cfg.Files.Endpoint = v
	}
	return nil
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	var err error
	set := func(name string, fn func() error) {
		if err == nil && flags.Lookup(name) != nil && flags.Changed(name) {
			if e := fn(); e != nil {
				err = fmt.Errorf("--%s: %w", name, e)
			}
		}
	}

	set("types", func() (e error) { cfg.Import.Types, e = flags.GetStringSlice("types"); return })
	set("extra-types", func() (e error) { cfg.Import.ExtraTypes, e = flags.GetStringSlice("extra-types"); return })
	set("parallel", func() (e error) { cfg.Import.Parallel, e = flags.GetInt("parallel"); return })
	set("intermediate", func() (e error) { cfg.Import.Intermediate, e = flags.GetBool("intermediate"); return })
	set("fast", func() (e error) { cfg.Import.Fast, e = flags.GetBool("fast"); return })
	set("dry-run", func() (e error) { cfg.Import.DryRun, e = flags.GetBool("dry-run"); return })
	set("retries", func() (e error) { cfg.Import.Retries, e = flags.GetInt("retries"); return })
	set("retry-backoff-ms", func() (e error) { cfg.Import.RetryBackoffMs, e = flags.GetInt("retry-backoff-ms"); return })
	set("checkpoint", func() (e error) { cfg.Import.Checkpoint, e = flags.GetString("checkpoint"); return })
	set("resume", func() (e error) { cfg.Import.Resume, e = flags.GetBool("resume"); return })
	set("log-dir", func() (e error) { cfg.Import.LogDir, e = flags.GetString("log-dir"); return })
	set("show-progress", func() (e error) { cfg.Import.ShowProgress, e = flags.GetBool("show-progress"); return })
	set("skip-confirm", func() (e error) { cfg.Import.SkipConfirm, e = flags.GetBool("skip-confirm"); return })
	set("backend", func() (e error) { cfg.Files.Backend, e = flags.GetString("backend"); return })
	set("metrics-addr", func() (e error) { cfg.MetricsAddr, e = flags.GetString("metrics-addr"); return })
	set("log-level", func() (e error) { cfg.LogLevel, e = flags.GetString("log-level"); return })

	return err
}

func (c *Config) validate() error {
	c.Import.Types = normalizeTypes(c.Import.Types)
	c.Import.ExtraTypes = normalizeTypes(c.Import.ExtraTypes)

	if c.API.URL == "" {
		return fmt.Errorf("api url is required (set api.url or %s)", EnvAPIURL)
	}
	if len(c.Import.Types) == 0 && len(c.Import.ExtraTypes) == 0 {
		return fmt.Errorf("at least one file type is required")
	}
	if c.Import.Parallel <= 0 {
		return fmt.Errorf("parallel must be positive")
	}
	if c.Import.Retries < 0 {
		return fmt.Errorf("retries cannot be negative")
	}
	if c.Import.UploadsRoot == "" || strings.Contains(c.Import.UploadsRoot, "/") {
		return fmt.Errorf("uploads root must be a single path segment")
	}

	switch c.Files.Backend {
	case BackendFiles:
		if c.Files.Endpoint == "" {
			return fmt.Errorf("files endpoint is required")
		}
	case BackendS3:
		if c.Files.S3.Endpoint == "" {
			return fmt.Errorf("s3 endpoint is required")
		}
		if c.Files.S3.Bucket == "" {
			return fmt.Errorf("s3 bucket is required")
		}
	default:
		return fmt.Errorf("unknown files backend %q", c.Files.Backend)
	}

	if c.Import.Resume && c.Import.Checkpoint == "" {
		return fmt.Errorf("resume requires a checkpoint file")
	}

	return nil
}

// normalizeTypes lowercases, trims leading dots and drops empty entries
func normalizeTypes(types []string) []string {
	out := make([]string, 0, len(types))
	for _, t := range types {
		t = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(t), "."))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}
