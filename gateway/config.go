package gateway

import (
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all gateway configuration.
type Config struct {
	Listen   string        `yaml:"listen"`
	LogLevel string        `yaml:"log_level"`
	Convert  ConvertConfig `yaml:"convert"`
	Parser   ParserConfig  `yaml:"parser"`
	Audit    AuditConfig   `yaml:"audit"`
}

// ConvertConfig controls the office converter and the rasterizer defaults.
type ConvertConfig struct {
	SofficePath string        `yaml:"soffice_path"`
	Timeout     time.Duration `yaml:"timeout"`
	ImageFormat string        `yaml:"image_format"`
	DPI         int           `yaml:"dpi"`
}

// ParserConfig holds the back-end pool settings. Either pool may be empty;
// which pools are non-empty decides the parser profile at startup.
type ParserConfig struct {
	Docling DoclingConfig `yaml:"docling"`
	VLM     VLMConfig     `yaml:"vlm"`
}

// DoclingConfig configures the structured-parser pool.
type DoclingConfig struct {
	BaseURLs      []string      `yaml:"base_urls"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxBufferSize int64         `yaml:"max_buffer_size"`
}

// VLMServer is one VLM pool entry.
type VLMServer struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// VLMConfig configures the vision-language-model pool.
type VLMConfig struct {
	Servers             []VLMServer   `yaml:"servers"`
	Timeout             time.Duration `yaml:"timeout"`
	MaxTokens           int           `yaml:"max_tokens"`
	Temperature         float32       `yaml:"temperature"`
	DefaultPrompt       string        `yaml:"default_prompt"`
	EmbeddedImagePrompt string        `yaml:"embedded_image_prompt"`
	ImageFormat         string        `yaml:"image_format"`
}

// AuditConfig controls the sqlite request log. An empty DBPath disables it.
type AuditConfig struct {
	DBPath        string `yaml:"db_path"`
	RetentionDays int    `yaml:"retention_days"`
}

func (c *Config) defaults() {
	if c.Listen == "" {
		c.Listen = ":8085"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Convert.SofficePath == "" {
		c.Convert.SofficePath = "soffice"
	}
	if c.Convert.Timeout <= 0 {
		c.Convert.Timeout = 2 * time.Minute
	}
	if c.Convert.ImageFormat == "" {
		c.Convert.ImageFormat = "png"
	}
	if c.Convert.DPI <= 0 {
		c.Convert.DPI = 150
	}
	if c.Parser.Docling.Timeout <= 0 {
		c.Parser.Docling.Timeout = 5 * time.Minute
	}
	if c.Parser.Docling.MaxBufferSize <= 0 {
		c.Parser.Docling.MaxBufferSize = 16 << 20
	}
	if c.Parser.VLM.Timeout <= 0 {
		c.Parser.VLM.Timeout = 2 * time.Minute
	}
	if c.Parser.VLM.MaxTokens <= 0 {
		c.Parser.VLM.MaxTokens = 4096
	}
	if c.Parser.VLM.Temperature <= 0 {
		c.Parser.VLM.Temperature = 0.01
	}
	if c.Parser.VLM.ImageFormat == "" {
		c.Parser.VLM.ImageFormat = "png"
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 30
	}
}

// LoadConfigFile reads a YAML config file and applies defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	cfg.defaults()
	return cfg, nil
}

// DefaultConfig returns a config with all defaults applied and no pools.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.defaults()
	return cfg
}

// ApplyEnv overrides config fields from environment variables. Pool env vars
// replace the file-configured pools entirely when set.
func (c *Config) ApplyEnv() {
	if v := os.Getenv("PORT"); v != "" {
		c.Listen = ":" + strings.TrimPrefix(v, ":")
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SOFFICE_PATH"); v != "" {
		c.Convert.SofficePath = v
	}
	if v := os.Getenv("AUDIT_DB"); v != "" {
		c.Audit.DBPath = v
	}
	if v := os.Getenv("DOCLING_BASE_URLS"); v != "" {
		c.Parser.Docling.BaseURLs = splitList(v)
	}
	if v := os.Getenv("VLM_SERVERS"); v != "" {
		var servers []VLMServer
		for _, entry := range splitList(v) {
			url, model, _ := strings.Cut(entry, "=")
			servers = append(servers, VLMServer{BaseURL: url, Model: model})
		}
		c.Parser.VLM.Servers = servers
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
