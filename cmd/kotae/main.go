// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/indexer"
	"github.com/hyperjump/kotae/internal/metrics"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, a config.yaml in the
// current directory takes precedence, so running from a project directory uses its config.
// Returns the config and the path that was actually loaded.
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
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	// API keys may live in a local .env file
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "serve", "server":
		runServe()
	case "build":
		runBuild()
	case "ask":
		runAsk()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads the config, creates the logger and initializes components.
func setup(configPath string, debug bool) (*config.Config, *zap.Logger, *Components) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))

	components, err := initializeComponents(cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return cfg, logger, components
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()
	metrics.Register()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []server.Option
	if components.Keyword != nil {
		opts = append(opts, server.WithKeywordIndex(components.Keyword))
	}
	srv := server.NewServer(components.Engine, components.Indexer, components.Storage, cfg, logger, opts...)

	index, err := loadIndex(ctx, cfg, components.Storage)
	if err != nil {
		logger.Fatal("Failed to load index", zap.Error(err))
	}
	switch {
	case index != nil:
		srv.SetIndex(index)
		logger.Info("index loaded", zap.String("path", cfg.Storage.IndexPath), zap.Int("entries", index.Size()))
	case len(cfg.Sources.Paths) > 0:
		go func() {
			if _, err := srv.RebuildFromSources(ctx); err != nil {
				logger.Error("initial build failed", zap.Error(err))
			}
		}()
	default:
		logger.Warn("no index on disk and no sources configured; POST /api/v1/build to create one")
	}

	if cfg.Sources.Watch && len(cfg.Sources.Paths) > 0 {
		w := watcher.NewWatcher(
			cfg.Sources.Paths,
			cfg.Sources.Extensions,
			cfg.Sources.RecursiveOrDefault(),
			func(ctx context.Context) {
				if _, err := srv.RebuildFromSources(ctx); err != nil {
					logger.Warn("rebuild after source change failed", zap.Error(err))
				}
			},
			watcher.WithDebounce(cfg.Sources.Debounce),
			watcher.WithLogger(logger),
		)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

func runBuild() {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	cfg, logger, components := setup(*configPath, *debug)
	defer logger.Sync()
	defer components.Close()

	if fs.NArg() > 0 {
		cfg.Sources.Paths = fs.Args()
	}
	report, err := buildIndex(context.Background(), cfg, components)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Build failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteBuildReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// buildIndex builds from the configured sources and persists the result.
func buildIndex(ctx context.Context, cfg *config.Config, c *Components) (*models.BuildReport, error) {
	docs, err := indexer.LoadSources(&cfg.Sources)
	if err != nil {
		return nil, err
	}
	res, err := c.Indexer.Build(ctx, docs)
	if err != nil {
		return nil, err
	}
	defer res.Index.Close()
	if err := server.Persist(ctx, cfg, c.Storage, res); err != nil {
		if res.Passages != nil {
			_ = res.Passages.Discard()
		}
		return nil, err
	}
	if res.Passages != nil {
		if err := res.Passages.Commit(); err != nil {
			return nil, fmt.Errorf("keyword index: %w", err)
		}
	}
	return res.Report, nil
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (local mode)")
	serverURL := fs.String("server", "", "server URL; empty answers from the local index")
	topK := fs.Int("top-k", 0, "number of chunks to retrieve (default from config)")
	minScore := fs.Float64("min-score", 0, "minimum similarity for a context (default from config)")
	maxContexts := fs.Int("max-contexts", 0, "maximum contexts passed to the answer (default from config)")
	noGenerate := fs.Bool("extractive", false, "answer from retrieved text without calling the generator")
	showSources := fs.Bool("sources", false, "print the retrieved chunks")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question>\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	req := models.QueryRequest{
		Query:       joinQuery(fs.Args()),
		TopK:        *topK,
		MaxContexts: *maxContexts,
	}
	if req.Query == "" {
		fs.Usage()
		os.Exit(1)
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "min-score" {
			req.MinScore = minScore
		}
	})
	if *noGenerate {
		off := false
		req.UseGeneration = &off
	}

	var answer *models.Answer
	if *serverURL != "" {
		answer, err = askViaHTTP(*serverURL, &req)
	} else {
		answer, err = askLocal(*configPath, req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswer(os.Stdout, answer, format, *showSources); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func askLocal(configPath string, req models.QueryRequest) (*models.Answer, error) {
	cfg, logger, components := setup(configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	index, err := loadIndex(ctx, cfg, components.Storage)
	if err != nil {
		return nil, err
	}
	if index == nil {
		return nil, fmt.Errorf("%w: run \"kotae build\" first", models.ErrNoIndexLoaded)
	}
	defer index.Close()
	return components.Engine.Answer(ctx, index, req)
}

func askViaHTTP(serverURL string, req *models.QueryRequest) (*models.Answer, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(strings.TrimSuffix(serverURL, "/")+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var answer models.Answer
	if err := json.NewDecoder(resp.Body).Decode(&answer); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &answer, nil
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (local mode)")
	serverURL := fs.String("server", "", "server URL; empty reads the local index")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseOutputFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status *cli.Status
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		status, err = statusLocal(*configPath)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusLocal(configPath string) (*cli.Status, error) {
	cfg, logger, components := setup(configPath, false)
	defer logger.Sync()
	defer components.Close()

	ctx := context.Background()
	index, err := loadIndex(ctx, cfg, components.Storage)
	if err != nil {
		return nil, err
	}
	if index != nil {
		defer index.Close()
	}
	return cli.CollectStatus(ctx, cfg, components.Storage, index)
}

func statusViaHTTP(serverURL string) (*cli.Status, error) {
	resp, err := http.Get(strings.TrimSuffix(serverURL, "/") + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, httpError(resp)
	}
	var status cli.Status
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &status, nil
}

func httpError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var e struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(b, &e) == nil && e.Error != "" {
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, e.Error)
	}
	return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
}

// joinQuery joins positional arguments into one question.
func joinQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags that follow positional arguments to the front,
// so "kotae ask what is x -top-k 3" parses the flag.
func reorderArgs(args []string) []string {
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
	fmt.Println(`kotae - answer questions from your documents

Usage:
  kotae build [flags] [paths...]   Build the index from configured sources (or paths)
  kotae ask [flags] <question>     Answer a question from the index
  kotae serve [flags]              Start the HTTP server
  kotae status [flags]             Show index status
  kotae version                    Show version
  kotae help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml,
                     or ./config.yaml when present)
  --debug            Enable debug logging (build, serve)
  --output string    Output format: text or json (build, ask, status)

Ask Flags:
  --server string      Server URL; empty answers from the local index
  --top-k int          Chunks to retrieve
  --min-score float    Minimum similarity for a context
  --max-contexts int   Maximum contexts used for the answer
  --extractive         Answer from retrieved text without the generator
  --sources            Print retrieved chunks

Examples:
  kotae build ./docs
  kotae ask "What is the refund policy?"
  kotae ask --sources --top-k 3 how do I reset my password
  kotae ask --server http://localhost:8080 "What is covered?"
  kotae serve
  kotae status --output json`)
}
