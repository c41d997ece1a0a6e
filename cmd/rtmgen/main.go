// Package main is the rtmgen CLI entry point.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/reqtrace/rtmgen/internal/config"
	"github.com/reqtrace/rtmgen/internal/pipeline"
	"github.com/reqtrace/rtmgen/internal/progress"
	"github.com/reqtrace/rtmgen/internal/server"
	"github.com/reqtrace/rtmgen/internal/watcher"
	"github.com/reqtrace/rtmgen/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/rtmgen/config.yaml"

// trackerCleanupAge is how long finished jobs stay queryable over the API.
const trackerCleanupAge = 24 * time.Hour

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. When neither exists, built-in defaults are returned so one-shot
// commands work without a config file. Returns the config and the path that
// was actually loaded ("" for built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return config.Default(), "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "generate":
		runGenerate()
	case "sheets":
		runSheets()
	case "estimate":
		runEstimate()
	case "version", "--version", "-v":
		fmt.Printf("rtmgen version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	if cfg.Analyzer.APIKey == "" {
		logger.Warn("no API key configured; all classification will use rule-based fallback")
	}

	tracker := progress.New(progress.WithLogger(logger))
	pipe := pipeline.New(cfg, tracker, pipeline.WithLogger(logger))

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go runTrackerCleanup(cleanupCtx, tracker, logger)

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	var inbox *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		inbox = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				jobID := uuid.NewString()
				logger.Info("inbox spreadsheet detected",
					zap.String("path", path), zap.String("job_id", jobID))
				if _, err := pipe.Run(context.Background(), jobID, path, cfg.Processing.FocusSheet); err != nil {
					logger.Warn("inbox generation failed",
						zap.String("path", path), zap.String("job_id", jobID), zap.Error(err))
				}
			},
			watcher.WithLogger(logger),
		)
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		inbox.ProcessExisting()
	}

	srv := server.NewServer(pipe, tracker, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	if inbox != nil {
		inbox.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// runTrackerCleanup periodically drops finished jobs so the in-memory
// tracker does not grow without bound.
func runTrackerCleanup(ctx context.Context, tracker *progress.Tracker, logger *zap.Logger) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := tracker.Cleanup(trackerCleanupAge); n > 0 {
				logger.Info("cleaned up finished jobs", zap.Int("count", n))
			}
		}
	}
}

func runGenerate() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("generate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	focus := fs.String("focus", "", "focus sheet name (overrides config)")
	output := fs.String("output", "", "output file path (default: generated name in the output directory)")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: rtmgen generate [flags] <spreadsheet>")
		os.Exit(1)
	}
	inputPath := fs.Arg(0)

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if cfg.Analyzer.APIKey == "" {
		fmt.Println("Note: no API key configured; using rule-based classification only.")
	}

	tracker := progress.New(progress.WithLogger(logger))
	pipe := pipeline.New(cfg, tracker, pipeline.WithLogger(logger))

	jobID := uuid.NewString()
	result, err := pipe.Run(context.Background(), jobID, inputPath, *focus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Generation failed: %v\n", err)
		os.Exit(1)
	}

	outPath := result.FilePath
	if *output != "" {
		if err := os.Rename(result.FilePath, *output); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to move output to %s: %v\n", *output, err)
			os.Exit(1)
		}
		outPath = *output
	}

	fmt.Printf("RTM generated: %s\n", outPath)
	fmt.Printf("  requirements:        %d\n", result.RequirementsCount)
	if result.Stats != nil {
		fmt.Printf("  service classified:  %d\n", result.Stats.AIAnalyzed)
		fmt.Printf("  rule-based fallback: %d\n", result.Stats.FallbackUsed)
	}
	fmt.Printf("  processing time:     %s\n", result.ProcessingTime.Round(time.Second))
}

func runSheets() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("sheets", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: rtmgen sheets [flags] <spreadsheet>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	pipe, logger := buildPipeline(*configPath)
	defer logger.Sync()

	suggestions, err := pipe.SheetInfo(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Sheet analysis failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(suggestions); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if len(suggestions) == 0 {
			fmt.Println("No sheets with requirement content found.")
			return
		}
		fmt.Printf("%-31s %10s %6s %6s  %s\n", "SHEET", "CONFIDENCE", "COLS", "ROWS", "REASON")
		for _, s := range suggestions {
			fmt.Printf("%-31s %10.2f %6d %6d  %s\n",
				utils.Truncate(s.SheetName, 31), s.ConfidenceScore,
				s.RequirementColumns, s.TotalRows, utils.Truncate(s.Reason, 60))
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runEstimate() {
	args := argsReorder(os.Args[2:])
	fs := flag.NewFlagSet("estimate", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	focus := fs.String("focus", "", "focus sheet name (overrides config)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	if fs.NArg() < 1 {
		fmt.Println("Usage: rtmgen estimate [flags] <spreadsheet>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	pipe, logger := buildPipeline(*configPath)
	defer logger.Sync()

	est, err := pipe.EstimateRun(path, *focus)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Estimate failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(est); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("total_requirements:  %d\n", est.TotalRequirements)
		fmt.Printf("estimated_batches:   %d\n", est.EstimatedBatches)
		fmt.Printf("estimated_api_calls: %d\n", est.EstimatedAPICalls)
		fmt.Printf("estimated_minutes:   %d\n", est.EstimatedMinutes)
		if est.FocusSheet != "" {
			fmt.Printf("focus_sheet:         %s (%d requirements)\n", est.FocusSheet, est.FocusRequirements)
		}
		for sheet, count := range est.PerSheet {
			fmt.Printf("  %-31s %d\n", utils.Truncate(sheet, 31), count)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// buildPipeline loads the config and constructs a pipeline for one-shot
// commands that do not report progress.
func buildPipeline(configPath string) (*pipeline.Pipeline, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	tracker := progress.New(progress.WithLogger(logger))
	return pipeline.New(cfg, tracker, pipeline.WithLogger(logger)), logger
}

// argsReorder moves any flags (and their values) that appear after the
// positional file argument to the front of the slice so that flag.Parse()
// sees them. Go's flag package stops at the first non-flag argument, so
// "rtmgen generate file.xlsx --focus Scope" would otherwise leave --focus
// unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func printUsage() {
	fmt.Println(`rtmgen - Requirements Traceability Matrix generator

Usage:
  rtmgen server [flags]             Start the HTTP server (and inbox watcher, if configured)
  rtmgen generate [flags] <file>    Generate an RTM workbook from a spreadsheet
  rtmgen sheets [flags] <file>      Score sheets as focus-sheet candidates
  rtmgen estimate [flags] <file>    Estimate batches and processing time
  rtmgen version                    Show version
  rtmgen help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/rtmgen/config.yaml)
  --debug            Enable debug logging

Generate Flags:
  --config string    Config file path
  --focus string     Focus sheet name (overrides config)
  --output string    Output file path (default: generated name in the output directory)

Sheets / Estimate Flags:
  --config string    Config file path
  --focus string     Focus sheet name (estimate only)
  --output string    Output format: text or json (default: text)

The classification service API key is read from the RTMGEN_API_KEY
environment variable (overrides the config file). Without a key, all
requirements are classified by the rule-based fallback.

Examples:
  rtmgen server
  rtmgen generate requirements.xlsx --focus "Scope"
  rtmgen generate requirements.xlsx --output matrix.xlsx
  rtmgen sheets requirements.xlsx
  rtmgen estimate requirements.xlsx --focus "Scope" --output json`)
}
