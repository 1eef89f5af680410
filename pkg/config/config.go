package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// DefaultConfigPath is the configuration file read by Load.
const DefaultConfigPath = "config.yaml"

// Config holds all configuration for ekaya-roofscan.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (API keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3443"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	// Stage 1 filtering
	DrawingSet DrawingSetConfig `yaml:"drawing_set"`

	// Stage 2 vision analysis
	Vision VisionConfig `yaml:"vision"`

	// Page image export
	Export ExportConfig `yaml:"export"`

	// Provider credentials. Secret - not in YAML.
	AnthropicAPIKey string `yaml:"-" env:"ANTHROPIC_API_KEY"`
	OpenAIAPIKey    string `yaml:"-" env:"OPENAI_API_KEY"`
}

// DrawingSetConfig holds Stage 1 settings.
type DrawingSetConfig struct {
	// MinRelevanceScore is the inclusive threshold for a page to be roof related.
	MinRelevanceScore float64 `yaml:"min_relevance_score" env:"MIN_RELEVANCE_SCORE" env-default:"0.3"`
	// MaxPages caps the number of pages analyzed. 0 means no cap.
	MaxPages int `yaml:"max_pages" env:"MAX_PAGES" env-default:"0"`
	// ScoringRulesPath overrides the built-in scoring rules.
	ScoringRulesPath string `yaml:"scoring_rules_path" env:"SCORING_RULES_PATH" env-default:""`
}

// VisionConfig holds vision provider settings.
type VisionConfig struct {
	// Disabled turns Stage 2 off.
	Disabled bool   `yaml:"disabled" env:"VISION_DISABLED" env-default:"false"`
	Provider string `yaml:"provider" env:"VISION_PROVIDER" env-default:"anthropic"`
	Model    string `yaml:"model" env:"VISION_MODEL" env-default:""`
	// Endpoint overrides the provider base URL (e.g. an OpenAI-compatible local server).
	Endpoint       string        `yaml:"endpoint" env:"VISION_ENDPOINT" env-default:""`
	MaxConcurrent  int           `yaml:"max_concurrent" env:"VISION_MAX_CONCURRENT" env-default:"3"`
	MaxTokens      int           `yaml:"max_tokens" env:"VISION_MAX_TOKENS" env-default:"4096"`
	RequestTimeout time.Duration `yaml:"request_timeout" env:"VISION_REQUEST_TIMEOUT" env-default:"0s"`
	MaxRetries     int           `yaml:"max_retries" env:"VISION_MAX_RETRIES" env-default:"0"`
}

// ExportConfig holds page rasterization settings.
type ExportConfig struct {
	// OutputDir keeps each run's images under OutputDir/drawing_analysis_<run id>.
	// Empty means a temporary directory.
	OutputDir string `yaml:"output_dir" env:"EXPORT_OUTPUT_DIR" env-default:""`
	DPI       int    `yaml:"dpi" env:"EXPORT_DPI" env-default:"150"`
	Pdftoppm  string `yaml:"pdftoppm" env:"PDFTOPPM_PATH" env-default:"pdftoppm"`
	// KeepImages keeps temporary image directories after a run.
	KeepImages  bool  `yaml:"keep_images" env:"EXPORT_KEEP_IMAGES" env-default:"false"`
	MaxUploadMB int64 `yaml:"max_upload_mb" env:"MAX_UPLOAD_MB" env-default:"200"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Without a config.yaml only environment variables and defaults are used.
func Load(version string) (*Config, error) {
	return LoadFrom(DefaultConfigPath, version)
}

// LoadFrom is Load with an explicit config file path.
func LoadFrom(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		// Load config from YAML file with environment variable overrides
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if errors.Is(err, fs.ErrNotExist) {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	// Use HTTPS scheme if TLS is configured
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	if c.DrawingSet.MinRelevanceScore < 0 || c.DrawingSet.MinRelevanceScore > 1 {
		return fmt.Errorf("drawing_set.min_relevance_score must be within [0, 1], got %v", c.DrawingSet.MinRelevanceScore)
	}
	if c.DrawingSet.MaxPages < 0 {
		return fmt.Errorf("drawing_set.max_pages must not be negative")
	}
	if c.Vision.MaxConcurrent < 1 {
		return fmt.Errorf("vision.max_concurrent must be positive, got %d", c.Vision.MaxConcurrent)
	}
	if c.Vision.MaxRetries < 0 {
		return fmt.Errorf("vision.max_retries must not be negative")
	}
	if c.Vision.RequestTimeout < 0 {
		return fmt.Errorf("vision.request_timeout must not be negative")
	}
	switch strings.ToLower(c.Vision.Provider) {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("vision.provider must be anthropic or openai, got %q", c.Vision.Provider)
	}
	if c.Export.DPI < 1 {
		return fmt.Errorf("export.dpi must be positive, got %d", c.Export.DPI)
	}
	return c.validateTLS()
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist and be readable.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	// Both must be provided together or both empty
	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	// If both provided, verify files exist (actual readability checked by tls.LoadX509KeyPair at startup)
	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

// VisionAPIKey returns the credential for the configured provider.
func (c *Config) VisionAPIKey() string {
	if strings.EqualFold(c.Vision.Provider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.AnthropicAPIKey
}

// VisionEndpoint returns the configured endpoint, rewritten for Docker when needed.
func (c *Config) VisionEndpoint() string {
	return ResolveEndpointForDocker(c.Vision.Endpoint)
}
