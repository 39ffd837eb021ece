package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const DefaultConfigFile = "wifiqr.yaml"

const (
	BackendDify   = "dify"
	BackendOllama = "ollama"
	BackendOpenAI = "openai"
	BackendGemini = "gemini"
)

// Config holds every setting of the service
type Config struct {
	Backend     string         `yaml:"backend"`
	Locale      string         `yaml:"locale"`
	ReloadDelay time.Duration  `yaml:"reload_delay"`
	Server      ServerConfig   `yaml:"server"`
	Dify        DifyConfig     `yaml:"dify"`
	Image       ImageConfig    `yaml:"image"`
	QR          QRConfig       `yaml:"qr"`
	Providers   ProviderConfig `yaml:"providers"`
}

type ServerConfig struct {
	Port           string        `yaml:"port"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type DifyConfig struct {
	BaseURL   string        `yaml:"base_url"`
	FilesURL  string        `yaml:"files_url"`
	APIKey    string        `yaml:"api_key"`
	Timeout   time.Duration `yaml:"timeout"`
	InputName string        `yaml:"input_name"`
}

type ImageConfig struct {
	MaxDimension int `yaml:"max_dimension"`
	JPEGQuality  int `yaml:"jpeg_quality"`
	MaxPixels    int `yaml:"max_pixels"`
}

type QRConfig struct {
	Size int `yaml:"size"`
}

type ProviderConfig struct {
	OllamaURL    string `yaml:"ollama_url"`
	OllamaModel  string `yaml:"ollama_model"`
	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`
	GeminiAPIKey string `yaml:"gemini_api_key"`
	GeminiModel  string `yaml:"gemini_model"`
}

// Default returns the configuration used when nothing else is set
func Default() *Config {
	return &Config{
		Backend:     BackendDify,
		Locale:      "ja",
		ReloadDelay: 3 * time.Second,
		Server: ServerConfig{
			Port:           "8888",
			SessionTTL:     30 * time.Minute,
			MaxUploadBytes: 10 * 1024 * 1024,
		},
		Dify: DifyConfig{
			BaseURL:   "https://api.dify.ai/v1",
			Timeout:   60 * time.Second,
			InputName: "image",
		},
		Image: ImageConfig{
			MaxDimension: 1280,
			JPEGQuality:  85,
			MaxPixels:    50_000_000,
		},
		QR: QRConfig{
			Size: 512,
		},
		Providers: ProviderConfig{
			OllamaModel: "mistral-small3.2:24b",
			OpenAIModel: "gpt-4o",
			GeminiModel: "gemini-1.5-flash",
		},
	}
}

// Load builds the configuration from defaults, the YAML file at path and the
// environment, in that order. A missing file is only an error when path was
// given explicitly.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.Backend, "WIFIQR_BACKEND")
	setString(&c.Locale, "WIFIQR_LOCALE")
	setString(&c.Server.Port, "PORT")
	setString(&c.Dify.BaseURL, "DIFY_API_URL")
	setString(&c.Dify.FilesURL, "DIFY_FILES_URL")
	setString(&c.Dify.APIKey, "DIFY_API_KEY")
	setString(&c.Dify.InputName, "DIFY_INPUT_NAME")
	setString(&c.Providers.OllamaURL, "OLLAMA_URL")
	if c.Providers.OllamaURL == "" {
		setString(&c.Providers.OllamaURL, "OLLAMA_HOST")
	}
	setString(&c.Providers.OllamaModel, "OLLAMA_MODEL")
	setString(&c.Providers.OpenAIAPIKey, "OPENAI_API_KEY")
	setString(&c.Providers.OpenAIModel, "OPENAI_MODEL")
	setString(&c.Providers.GeminiAPIKey, "GEMINI_API_KEY")
	setString(&c.Providers.GeminiModel, "GEMINI_MODEL")

	if err := setDuration(&c.Dify.Timeout, "DIFY_TIMEOUT"); err != nil {
		return err
	}
	if err := setDuration(&c.ReloadDelay, "WIFIQR_RELOAD_DELAY"); err != nil {
		return err
	}
	if err := setDuration(&c.Server.SessionTTL, "WIFIQR_SESSION_TTL"); err != nil {
		return err
	}
	if v := os.Getenv("WIFIQR_MAX_DIMENSION"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid WIFIQR_MAX_DIMENSION %q: %w", v, err)
		}
		c.Image.MaxDimension = n
	}
	return nil
}

// Validate reports settings the service cannot start with
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendDify:
		if c.Dify.APIKey == "" {
			errs = append(errs, errors.New("DIFY_API_KEY is required for the dify backend"))
		}
		if err := checkHTTPURL(c.Dify.BaseURL); err != nil {
			errs = append(errs, fmt.Errorf("dify base URL: %w", err))
		}
		if c.Dify.FilesURL != "" {
			if err := checkHTTPURL(c.Dify.FilesURL); err != nil {
				errs = append(errs, fmt.Errorf("dify files URL: %w", err))
			}
		}
	case BackendOllama:
	case BackendOpenAI:
		if c.Providers.OpenAIAPIKey == "" {
			errs = append(errs, errors.New("OPENAI_API_KEY is required for the openai backend"))
		}
	case BackendGemini:
		if c.Providers.GeminiAPIKey == "" {
			errs = append(errs, errors.New("GEMINI_API_KEY is required for the gemini backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q: must be dify, ollama, openai or gemini", c.Backend))
	}

	if c.Dify.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.Locale != "ja" && c.Locale != "en" {
		errs = append(errs, fmt.Errorf("unknown locale %q: must be ja or en", c.Locale))
	}
	if c.Server.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("max upload size must be positive"))
	}
	if c.Image.MaxPixels <= 0 {
		errs = append(errs, errors.New("max pixels must be positive"))
	}

	return errors.Join(errs...)
}

// Masked returns a copy with secrets hidden, for display
func (c *Config) Masked() *Config {
	m := *c
	m.Dify.APIKey = mask(c.Dify.APIKey)
	m.Providers.OpenAIAPIKey = mask(c.Providers.OpenAIAPIKey)
	m.Providers.GeminiAPIKey = mask(c.Providers.GeminiAPIKey)
	return &m
}

// YAML renders the configuration in the config file format
func (c *Config) YAML() ([]byte, error) {
	return yaml.Marshal(c)
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 8 {
		return "****"
	}
	return secret[:4] + strings.Repeat("*", 4)
}

func checkHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, v, err)
	}
	*dst = d
	return nil
}
