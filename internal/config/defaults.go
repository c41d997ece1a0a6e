package config

import "os"

// Default returns a configuration with all defaults applied and the API key
// taken from the environment. Used when no config file is present.
func Default() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	if v := os.Getenv(apiKeyEnv); v != "" {
		cfg.Analyzer.APIKey = v
	}
	return cfg
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.UploadDir == "" {
		cfg.Storage.UploadDir = "./uploads"
	}
	if cfg.Storage.OutputDir == "" {
		cfg.Storage.OutputDir = "./outputs"
	}
	if cfg.Analyzer.BaseURL == "" {
		cfg.Analyzer.BaseURL = "https://api.groq.com/openai/v1"
	}
	if cfg.Analyzer.Model == "" {
		cfg.Analyzer.Model = "gemma2-9b-it"
	}
	if cfg.Analyzer.FallbackModel == "" {
		cfg.Analyzer.FallbackModel = "llama-3.1-8b-instant"
	}
	if cfg.Analyzer.Temperature == 0 {
		cfg.Analyzer.Temperature = 0.1
	}
	if cfg.Analyzer.MaxTokens == 0 {
		cfg.Analyzer.MaxTokens = 8000
	}
	if cfg.Analyzer.RequestsPerMinute == 0 {
		cfg.Analyzer.RequestsPerMinute = 35
	}
	if cfg.Analyzer.MaxRetries == 0 {
		cfg.Analyzer.MaxRetries = 3
	}
	if cfg.Analyzer.RequestTimeoutSeconds == 0 {
		cfg.Analyzer.RequestTimeoutSeconds = 60
	}
	if cfg.Analyzer.InterBatchDelaySecs == 0 {
		cfg.Analyzer.InterBatchDelaySecs = 3
	}
	if cfg.Chunking.MaxTokensPerChunk == 0 {
		cfg.Chunking.MaxTokensPerChunk = 4800
	}
	if cfg.Chunking.PromptOverheadTokens == 0 {
		cfg.Chunking.PromptOverheadTokens = 500
	}
	if cfg.Chunking.OverlapCount == 0 {
		cfg.Chunking.OverlapCount = 2
	}
	if cfg.Chunking.FocusTargetPerChunk == 0 {
		cfg.Chunking.FocusTargetPerChunk = 20
	}
	if cfg.Chunking.DefaultTargetPerChunk == 0 {
		cfg.Chunking.DefaultTargetPerChunk = 30
	}
	if cfg.Processing.RequirementIDPrefix == "" {
		cfg.Processing.RequirementIDPrefix = "REQ"
	}
	if cfg.Processing.TestCaseIDPrefix == "" {
		cfg.Processing.TestCaseIDPrefix = "TC"
	}
	if cfg.Processing.MaxFileSizeBytes == 0 {
		cfg.Processing.MaxFileSizeBytes = 10 * 1024 * 1024
	}
	if cfg.Processing.AllowedExtensions == nil {
		cfg.Processing.AllowedExtensions = []string{".xlsx", ".xls"}
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".xlsx", ".xls"}
	}
	if len(cfg.Watch.Directories) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
