// Package config handles loading and resolving bistroctl configuration.
// Resolution order (first non-empty value wins):
//  1. CLI flags (--tenant, --base-url, ...)
//  2. Environment variables (BISTRO_TENANT, BISTRO_BASE_URL, ...)
//  3. config.json in the current working directory
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	DefaultConfigFile    = "config.json"
	DefaultFormat        = "table"
	DefaultTimeout       = 30 * time.Second
	DefaultReportTimeout = 2 * time.Minute
	DefaultRate          = 10.0
	DefaultBaseURL       = "https://api.bistrohq.io/v1"
	EnvTenant            = "BISTRO_TENANT"
	EnvBaseURL           = "BISTRO_BASE_URL"
	EnvDBPath            = "BISTRO_DB_PATH"
	EnvDownloadDir       = "BISTRO_DOWNLOAD_DIR"
)

// File is the on-disk representation of config.json.
type File struct {
	BaseURL       string  `json:"base_url"`
	Tenant        string  `json:"tenant"`
	DefaultFormat string  `json:"default_format"`
	Timeout       string  `json:"timeout"`
	ReportTimeout string  `json:"report_timeout"`
	Rate          float64 `json:"rate"`
	DBPath        string  `json:"db_path"`
	DownloadDir   string  `json:"download_dir"`
}

// Config is the fully-resolved runtime configuration.
// All callers use this struct; the File is only read during loading.
type Config struct {
	BaseURL       string
	Tenant        string // tenant from config.json (lowest-priority source)
	TenantFlag    string // tenant from the --tenant CLI flag
	TenantEnv     string // value of BISTRO_TENANT captured at load time
	Format        string
	Timeout       time.Duration
	ReportTimeout time.Duration
	Rate          float64
	DBPath        string
	DownloadDir   string
	ConfigPath    string // path of the config.json that was loaded (empty if none found)

	// Runtime overrides set from CLI flags after Load()
	Quiet   bool
	Verbose bool
	Debug   bool
}

// Load resolves configuration from all sources.
// flagTenant and flagBaseURL are the CLI flag values ("" if not set).
func Load(flagTenant, flagBaseURL string) (*Config, error) {
	cfg := &Config{
		BaseURL:       DefaultBaseURL,
		Format:        DefaultFormat,
		Timeout:       DefaultTimeout,
		ReportTimeout: DefaultReportTimeout,
		Rate:          DefaultRate,
	}

	// Layer 1: config.json (lowest priority)
	if f, path, err := loadFile(); err == nil {
		applyFile(cfg, f, path)
	}

	// Layer 2: environment variables
	cfg.TenantEnv = os.Getenv(EnvTenant)
	if v := os.Getenv(EnvBaseURL); v != "" {
		cfg.BaseURL = v
	}
	if v := os.Getenv(EnvDBPath); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv(EnvDownloadDir); v != "" {
		cfg.DownloadDir = v
	}

	// Layer 3: CLI flags (highest priority). The tenant flag is kept
	// separate so the tenant resolver can order all three sources itself.
	cfg.TenantFlag = flagTenant
	if flagBaseURL != "" {
		cfg.BaseURL = flagBaseURL
	}

	// Set default paths if still unset
	if home, err := os.UserHomeDir(); err == nil {
		if cfg.DBPath == "" {
			cfg.DBPath = filepath.Join(home, ".bistroctl", "credentials.db")
		}
		if cfg.DownloadDir == "" {
			cfg.DownloadDir = filepath.Join(home, ".bistroctl", "downloads")
		}
	}

	return cfg, nil
}

// Validate returns an error if required fields are missing or malformed.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base URL not configured (set --base-url, BISTRO_BASE_URL, or base_url in config.json)")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid base URL %q", c.BaseURL)
	}
	return nil
}

// loadFile attempts to read config.json from the current working directory.
func loadFile() (*File, string, error) {
	path, err := filepath.Abs(DefaultConfigFile)
	if err != nil {
		return nil, "", err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("config.json not found at %s", path)
		}
		return nil, "", fmt.Errorf("reading config.json: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, "", fmt.Errorf("parsing config.json: %w", err)
	}
	return &f, path, nil
}

// applyFile copies values from a parsed File into cfg,
// skipping any fields that are zero/empty.
func applyFile(cfg *Config, f *File, path string) {
	cfg.ConfigPath = path
	if f.BaseURL != "" {
		cfg.BaseURL = f.BaseURL
	}
	if f.Tenant != "" {
		cfg.Tenant = f.Tenant
	}
	if f.DefaultFormat != "" {
		cfg.Format = f.DefaultFormat
	}
	if f.Timeout != "" {
		if d, err := time.ParseDuration(f.Timeout); err == nil {
			cfg.Timeout = d
		}
	}
	if f.ReportTimeout != "" {
		if d, err := time.ParseDuration(f.ReportTimeout); err == nil {
			cfg.ReportTimeout = d
		}
	}
	if f.Rate > 0 {
		cfg.Rate = f.Rate
	}
	if f.DBPath != "" {
		cfg.DBPath = f.DBPath
	}
	if f.DownloadDir != "" {
		cfg.DownloadDir = f.DownloadDir
	}
}

// Template returns a File populated with sensible defaults, suitable for
// writing an initial config.json via `bistroctl config init`.
func Template() File {
	return File{
		BaseURL:       DefaultBaseURL,
		Tenant:        "",
		DefaultFormat: DefaultFormat,
		Timeout:       "30s",
		ReportTimeout: "2m",
		Rate:          DefaultRate,
	}
}

// WriteFile serialises a File to the given path.
func WriteFile(path string, f File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
