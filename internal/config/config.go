package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/menta2k/isitai/pkg/capture"
	"github.com/menta2k/isitai/pkg/inference"
	"github.com/menta2k/isitai/pkg/processing"
)

// EnvPrefix prefixes every environment override, e.g. ISITAI_UI_ADDR
const EnvPrefix = "ISITAI"

// Backend names
const (
	BackendHuggingFace = "huggingface"
	BackendOllama      = "ollama"
)

// Config holds the application configuration
type Config struct {
	Inference  InferenceConfig  `json:"inference"`
	Capture    CaptureConfig    `json:"capture"`
	UI         UIConfig         `json:"ui"`
	Processing ProcessingConfig `json:"processing"`
}

// InferenceConfig selects and configures the classification backend
type InferenceConfig struct {
	Backend  string `json:"backend" validate:"oneof=huggingface ollama"`
	Endpoint string `json:"endpoint" validate:"required,url"`
	// APIToken falls back to the unprefixed HF_API_TOKEN variable
	APIToken string `json:"api_token,omitempty" envconfig:"HF_API_TOKEN"`
	// ModelID falls back to HF_MODEL_ID. Only the ollama backend uses it.
	ModelID        string `json:"model_id,omitempty" envconfig:"HF_MODEL_ID"`
	OllamaURL      string `json:"ollama_url" split_words:"true" validate:"omitempty,url"`
	TimeoutSeconds int    `json:"timeout_seconds" split_words:"true" validate:"gte=0"`
}

// CaptureConfig configures the privileged side
type CaptureConfig struct {
	ChannelAddr     string `json:"channel_addr" split_words:"true" validate:"required"`
	WindowsSettleMS int    `json:"windows_settle_ms" split_words:"true" validate:"gte=0"`
	DarwinSettleMS  int    `json:"darwin_settle_ms" split_words:"true" validate:"gte=0"`
}

// UIConfig configures the local web UI and the desktop window
type UIConfig struct {
	Addr       string `json:"addr" validate:"required"`
	DevMode    bool   `json:"dev_mode" split_words:"true"`
	DevURL     string `json:"dev_url" split_words:"true" validate:"omitempty,url"`
	ChromePath string `json:"chrome_path,omitempty" split_words:"true"`
	Width      int    `json:"width" validate:"gt=0"`
	Height     int    `json:"height" validate:"gt=0"`
}

// ProcessingConfig mirrors processing.Config
type ProcessingConfig struct {
	MaxDimension   int `json:"max_dimension" split_words:"true" validate:"gte=0"`
	JPEGQuality    int `json:"jpeg_quality" split_words:"true" validate:"gte=1,lte=100"`
	MinImageSize   int `json:"min_image_size" split_words:"true" validate:"gte=1"`
	MaxUploadBytes int `json:"max_upload_bytes" split_words:"true" validate:"gte=0"`
}

// Default returns a configuration with default values
func Default() *Config {
	p := processing.DefaultConfig()
	return &Config{
		Inference: InferenceConfig{
			Backend:        BackendHuggingFace,
			Endpoint:       inference.DefaultEndpoint,
			OllamaURL:      "http://localhost:11434",
			TimeoutSeconds: 0,
		},
		Capture: CaptureConfig{
			ChannelAddr:     "127.0.0.1:0",
			WindowsSettleMS: int(capture.DefaultTools["windows"].Settle / time.Millisecond),
			DarwinSettleMS:  int(capture.DefaultTools["darwin"].Settle / time.Millisecond),
		},
		UI: UIConfig{
			Addr:   "127.0.0.1:0",
			DevURL: "http://localhost:3000",
			Width:  800,
			Height: 600,
		},
		Processing: ProcessingConfig{
			MaxDimension:   p.MaxDimension,
			JPEGQuality:    p.JPEGQuality,
			MinImageSize:   p.MinImageSize,
			MaxUploadBytes: p.MaxUploadBytes,
		},
	}
}

// Load builds the effective configuration: defaults, then the JSON file at
// path (if it exists), then .env, then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if err := cfg.mergeFile(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	// a missing .env is normal
	_ = godotenv.Load()

	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	cfg := Default()
	if err := cfg.mergeFile(filename); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// SaveToFile saves configuration to a JSON file. The API token is never written.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *c
	out.Inference.APIToken = ""
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config: %s failed %q", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Inference.Backend == BackendOllama {
		if c.Inference.OllamaURL == "" {
			return fmt.Errorf("inference.ollama_url is required for the ollama backend")
		}
		if c.Inference.ModelID == "" {
			return fmt.Errorf("inference.model_id is required for the ollama backend")
		}
	}
	for name, addr := range map[string]string{"capture.channel_addr": c.Capture.ChannelAddr, "ui.addr": c.UI.Addr} {
		if _, _, err := net.SplitHostPort(addr); err != nil {
			return fmt.Errorf("%s must be host:port: %w", name, err)
		}
	}
	if c.UI.DevMode && c.UI.DevURL == "" {
		return fmt.Errorf("ui.dev_url is required in development mode")
	}
	return nil
}

// ProcessorConfig converts the processing section
func (c *Config) ProcessorConfig() processing.Config {
	return processing.Config{
		MaxDimension:   c.Processing.MaxDimension,
		JPEGQuality:    c.Processing.JPEGQuality,
		MinImageSize:   c.Processing.MinImageSize,
		MaxUploadBytes: c.Processing.MaxUploadBytes,
	}
}

// CaptureTools returns the capture utility table with the configured settle delays
func (c *Config) CaptureTools() map[string]capture.Tool {
	tools := make(map[string]capture.Tool, len(capture.DefaultTools))
	for goos, tool := range capture.DefaultTools {
		tools[goos] = tool
	}
	win := tools["windows"]
	win.Settle = time.Duration(c.Capture.WindowsSettleMS) * time.Millisecond
	tools["windows"] = win
	mac := tools["darwin"]
	mac.Settle = time.Duration(c.Capture.DarwinSettleMS) * time.Millisecond
	tools["darwin"] = mac
	return tools
}

// Timeout returns the classification timeout, 0 means none
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Inference.TimeoutSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "isitai", "config.json")
}
