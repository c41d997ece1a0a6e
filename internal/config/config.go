// Package config provides configuration loading and structs for the rtmgen server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const apiKeyEnv = "RTMGEN_API_KEY"

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Analyzer   AnalyzerConfig   `yaml:"analyzer"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Processing ProcessingConfig `yaml:"processing"`
	Watch      WatchConfig      `yaml:"watch"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds upload and output directory paths.
type StorageConfig struct {
	UploadDir string `yaml:"upload_dir"`
	OutputDir string `yaml:"output_dir"`
}

// AnalyzerConfig holds classification service settings. The API key can be
// supplied via the RTMGEN_API_KEY environment variable, which wins over the
// file value.
type AnalyzerConfig struct {
	BaseURL               string  `yaml:"base_url"`
	APIKey                string  `yaml:"api_key"`
	Model                 string  `yaml:"model"`
	FallbackModel         string  `yaml:"fallback_model"`
	Temperature           float64 `yaml:"temperature"`
	MaxTokens             int     `yaml:"max_tokens"`
	RequestsPerMinute     int     `yaml:"requests_per_minute"`
	MaxRetries            int     `yaml:"max_retries"`
	RequestTimeoutSeconds int     `yaml:"request_timeout_seconds"`
	InterBatchDelaySecs   int     `yaml:"inter_batch_delay_seconds"`
}

// ChunkingConfig holds batch planning settings.
type ChunkingConfig struct {
	MaxTokensPerChunk     int `yaml:"max_tokens_per_chunk"`
	PromptOverheadTokens  int `yaml:"prompt_overhead_tokens"`
	OverlapCount          int `yaml:"overlap_count"`
	FocusTargetPerChunk   int `yaml:"focus_target_per_chunk"`
	DefaultTargetPerChunk int `yaml:"default_target_per_chunk"`
}

// ProcessingConfig holds extraction and identifier settings.
type ProcessingConfig struct {
	FocusSheet          string   `yaml:"focus_sheet"`
	RequirementIDPrefix string   `yaml:"requirement_id_prefix"`
	TestCaseIDPrefix    string   `yaml:"test_case_id_prefix"`
	MaxFileSizeBytes    int64    `yaml:"max_file_size_bytes"`
	AllowedExtensions   []string `yaml:"allowed_extensions"`
}

// WatchConfig holds inbox directory watch settings.
type WatchConfig struct {
	Directories []string `yaml:"directories"`
	Extensions  []string `yaml:"extensions"`
	Recursive   *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (w *WatchConfig) RecursiveOrDefault() bool {
	if w.Recursive != nil {
		return *w.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults, expands
// paths relative to the config directory, and applies environment overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.UploadDir = expandPath(cfg.Storage.UploadDir, configDir)
	cfg.Storage.OutputDir = expandPath(cfg.Storage.OutputDir, configDir)
	for i := range cfg.Watch.Directories {
		cfg.Watch.Directories[i] = expandPath(cfg.Watch.Directories[i], configDir)
	}

	if v := os.Getenv(apiKeyEnv); v != "" {
		cfg.Analyzer.APIKey = v
	}

	return &cfg, nil
}

// AllowedExtension reports whether ext (including the dot) is an accepted
// upload extension. Matching is case-insensitive.
func (p *ProcessingConfig) AllowedExtension(ext string) bool {
	ext = strings.ToLower(ext)
	for _, allowed := range p.AllowedExtensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// expandPath converts a path to absolute. Paths starting with "./" are relative
// to configDir; other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
