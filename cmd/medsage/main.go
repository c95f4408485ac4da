// Package main is the medsage CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/medsage/internal/cli"
	"github.com/hyperjump/medsage/internal/config"
	"github.com/hyperjump/medsage/internal/diagnose"
	"github.com/hyperjump/medsage/internal/embedding"
	"github.com/hyperjump/medsage/internal/extract"
	"github.com/hyperjump/medsage/internal/indexer"
	"github.com/hyperjump/medsage/internal/llm"
	"github.com/hyperjump/medsage/internal/models"
	"github.com/hyperjump/medsage/internal/rag"
	"github.com/hyperjump/medsage/internal/server"
	"github.com/hyperjump/medsage/internal/storage"
	"github.com/hyperjump/medsage/internal/vector"
	"github.com/hyperjump/medsage/internal/watcher"
	"github.com/hyperjump/medsage/pkg/utils"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/medsage/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory wins if it exists, and a missing default file yields the built-in defaults.
// Returns the config and the path that was actually loaded ("" for built-in defaults).
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
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
	// Secrets may live in a local .env; a missing file is fine.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "ask":
		runAsk()
	case "consult":
		runConsult()
	case "documents":
		runDocuments()
	case "clear":
		runClear()
	case "load-cases":
		runLoadCases()
	case "setup":
		runSetup()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("medsage version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func exitf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// joinArgs joins all positional args with spaces so multi-word input works the same with or
// without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the positional arguments
// to the front so that flag.Parse() sees them. Go's flag package stops at the first non-flag
// argument, so "medsage ask what is sepsis --output json" would otherwise leave --output unparsed.
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

func outputFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		exitf("%v", err)
	}
	return format
}

// bootstrap loads config and builds the logger for in-process commands.
func bootstrap(configPath string, debug bool) (*config.Config, *zap.Logger) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		exitf("Failed to load config: %v", err)
	}
	debugMode := cfg.Debug || debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		exitf("Failed to create logger: %v", err)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (inbox events, retrieval details, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := bootstrap(*configPath, *debug)
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	if len(cfg.Watch.Directories) > 0 {
		inbox := watcher.NewWatcher(
			cfg.Watch.Directories,
			cfg.Upload.AllowedExtensions,
			cfg.Watch.RecursiveOrDefault(),
			components.Ingestor,
			watcher.WithLogger(logger),
		)
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		go func() {
			n := inbox.SyncExistingFiles()
			logger.Info("inbox synced", zap.Int("ingested", n))
		}()
	}

	srv := server.NewServer(components.Engine, components.Ingestor, components.Ledger, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
	if err := vector.Persist(components.Store, cfg.Storage.VectorIndexPath); err != nil {
		logger.Warn("vector snapshot save failed", zap.String("path", cfg.Storage.VectorIndexPath), zap.Error(err))
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	nResults := fs.Int("n", 0, "number of documents to retrieve (0 = server default)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	question := joinArgs(fs.Args())
	if question == "" {
		exitf("Usage: medsage ask [flags] <question>")
	}
	format := outputFormat(*output)
	req := &models.AskRequest{Question: question, NResults: *nResults}
	ctx := context.Background()

	var ans *models.Answer
	var err error
	if *serverURL != "" {
		ans, err = cli.NewClient(*serverURL).Ask(ctx, req)
	} else {
		cfg, logger := bootstrap(*configPath, false)
		defer logger.Sync()
		components, initErr := initializeComponents(ctx, cfg, logger, true)
		if initErr != nil {
			exitf("Failed to initialize: %v", initErr)
		}
		defer components.Close()
		ans, err = components.Engine.Ask(ctx, req)
	}
	if err != nil {
		exitf("Ask failed: %v", err)
	}
	if err := cli.WriteAnswer(os.Stdout, ans, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runConsult() {
	fs := flag.NewFlagSet("consult", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	symptoms := joinArgs(fs.Args())
	if symptoms == "" {
		exitf("Usage: medsage consult [flags] <symptoms>")
	}
	format := outputFormat(*output)
	req := &models.ConsultRequest{Symptoms: symptoms}
	ctx := context.Background()

	var d *models.Diagnosis
	var err error
	if *serverURL != "" {
		d, err = cli.NewClient(*serverURL).Consult(ctx, req)
	} else {
		cfg, logger := bootstrap(*configPath, false)
		defer logger.Sync()
		components, initErr := initializeComponents(ctx, cfg, logger, true)
		if initErr != nil {
			exitf("Failed to initialize: %v", initErr)
		}
		defer components.Close()
		d, err = components.Engine.Consult(ctx, req)
	}
	if err != nil {
		exitf("Consult failed: %v", err)
	}
	if err := cli.WriteDiagnosis(os.Stdout, d, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		exitf("Usage: medsage upload [flags] <file-or-directory>")
	}
	path := fs.Arg(0)
	format := outputFormat(*output)
	info, err := os.Stat(path)
	if err != nil {
		exitf("Failed to stat path: %v", err)
	}
	ctx := context.Background()

	if *serverURL != "" {
		if info.IsDir() {
			exitf("Directories are ingested in-process only; use --server \"\"")
		}
		res, err := cli.NewClient(*serverURL).Upload(ctx, path)
		if err != nil {
			exitf("Upload failed: %v", err)
		}
		if err := cli.WriteUpload(os.Stdout, res, format); err != nil {
			exitf("Output failed: %v", err)
		}
		return
	}

	cfg, logger := bootstrap(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(ctx, cfg, logger, true)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer components.Close()

	if info.IsDir() {
		n, err := components.Ingestor.IngestDirectory(ctx, path)
		if err != nil {
			exitf("Ingesting directory failed: %v", err)
		}
		fmt.Printf("Ingested %d file(s) from %s\n", n, path)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		exitf("Failed to read file: %v", err)
	}
	res, err := components.Ingestor.Upload(ctx, &models.Document{Filename: filepath.Base(path), Content: content})
	if err != nil {
		exitf("Upload failed: %v", err)
	}
	if err := cli.WriteUpload(os.Stdout, res, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runDocuments() {
	fs := flag.NewFlagSet("documents", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = read the ledger directly)")
	offset := fs.Int("offset", 0, "number of uploads to skip")
	limit := fs.Int("limit", 50, "number of uploads to list")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := outputFormat(*output)
	ctx := context.Background()
	var list *models.UploadList
	if *serverURL != "" {
		var err error
		list, err = cli.NewClient(*serverURL).Documents(ctx, *offset, *limit)
		if err != nil {
			exitf("Listing failed: %v", err)
		}
	} else {
		cfg, logger := bootstrap(*configPath, false)
		defer logger.Sync()
		ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
		if err != nil {
			exitf("Failed to open ledger: %v", err)
		}
		defer ledger.Close()
		docs, err := ledger.ListUploads(ctx, *offset, *limit)
		if err != nil {
			exitf("Listing failed: %v", err)
		}
		total, err := ledger.CountUploads(ctx)
		if err != nil {
			exitf("Count failed: %v", err)
		}
		list = &models.UploadList{Documents: docs, Total: total, Offset: *offset, Limit: *limit}
	}
	if err := cli.WriteUploads(os.Stdout, list, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

func runClear() {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	_ = fs.Parse(os.Args[2:])

	ctx := context.Background()
	if *serverURL != "" {
		if err := cli.NewClient(*serverURL).Clear(ctx); err != nil {
			exitf("Clear failed: %v", err)
		}
	} else {
		cfg, logger := bootstrap(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(ctx, cfg, logger, false)
		if err != nil {
			exitf("Failed to initialize: %v", err)
		}
		defer components.Close()
		if err := components.Engine.Clear(ctx); err != nil {
			exitf("Clear failed: %v", err)
		}
	}
	fmt.Println("Collection cleared.")
}

func runLoadCases() {
	fs := flag.NewFlagSet("load-cases", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		exitf("Usage: medsage load-cases [flags] <dataset.json>")
	}
	path := fs.Arg(0)
	cfg, logger := bootstrap(*configPath, *debug)
	defer logger.Sync()

	f, err := os.Open(path)
	if err != nil {
		exitf("Failed to open dataset: %v", err)
	}
	defer f.Close()

	ctx := context.Background()
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		exitf("Failed to initialize: %v", err)
	}
	defer components.Close()

	stats, err := components.Ingestor.LoadCases(ctx, f, filepath.Base(path))
	if err != nil {
		exitf("Loading cases failed: %v", err)
	}
	fmt.Printf("Loaded %d case(s) as %d record(s) into %s (%d skipped)\n",
		stats.Entries, stats.Chunks, cfg.VectorStore.Collection, stats.Skipped)
}

func runSetup() {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger := bootstrap(*configPath, false)
	defer logger.Sync()
	ctx := context.Background()
	// initializeComponents ensures the collection exists.
	components, err := initializeComponents(ctx, cfg, logger, false)
	if err != nil {
		exitf("Setup failed: %v", err)
	}
	defer components.Close()

	collection := cfg.VectorStore.Collection
	if fi, ok := components.Store.(vector.FieldIndexer); ok {
		if err := fi.CreateKeywordIndex(ctx, collection, models.PayloadDomain); err != nil {
			exitf("Creating %s index failed: %v", models.PayloadDomain, err)
		}
		fmt.Printf("Collection %s ready with a keyword index on %s\n", collection, models.PayloadDomain)
		return
	}
	fmt.Printf("Collection %s ready (%s store has no payload indexes)\n", collection, components.Store.Type())
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (in-process mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = run in-process)")
	output := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := outputFormat(*output)
	ctx := context.Background()
	var st *models.Status
	var err error
	if *serverURL != "" {
		st, err = cli.NewClient(*serverURL).Status(ctx)
	} else {
		cfg, logger := bootstrap(*configPath, false)
		defer logger.Sync()
		components, initErr := initializeComponents(ctx, cfg, logger, false)
		if initErr != nil {
			exitf("Failed to initialize: %v", initErr)
		}
		defer components.Close()
		st, err = components.Engine.Status(ctx)
	}
	if err != nil {
		exitf("Status failed: %v", err)
	}
	if err := cli.WriteStatus(os.Stdout, st, format); err != nil {
		exitf("Output failed: %v", err)
	}
}

// Components holds initialized services.
type Components struct {
	Ledger   storage.Storage
	Embedder embedding.Embedder
	Store    vector.Store
	Model    llm.Client
	Ingestor *indexer.Ingestor
	Engine   *rag.Engine
}

func (c *Components) Close() {
	if c.Ledger != nil {
		_ = c.Ledger.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

// initializeComponents wires the ledger, embedder, vector store and, when withModel is set,
// the language model. The active collection is created if it does not exist.
func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, withModel bool) (*Components, error) {
	c := &Components{}
	ledger, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload ledger: %w", err)
	}
	c.Ledger = ledger

	c.Embedder, err = embedding.New(&cfg.Embedding, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	c.Store, err = vector.NewStore(&cfg.VectorStore, cfg.Storage.VectorIndexPath, logger)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	distance, err := vector.ParseDistance(cfg.VectorStore.Distance)
	if err != nil {
		c.Close()
		return nil, err
	}
	if err := c.Store.EnsureCollection(ctx, cfg.VectorStore.Collection, c.Embedder.Dimensions(), distance); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}
	logger.Info("vector store initialized",
		zap.String("type", c.Store.Type()),
		zap.String("collection", cfg.VectorStore.Collection),
		zap.Int("dimensions", c.Embedder.Dimensions()))

	extractOpts := []extract.Option{extract.WithLogger(logger)}
	ingestOpts := []indexer.IngestorOption{indexer.WithLogger(logger)}
	var composer *rag.Composer
	var consultant *diagnose.Consultant
	if withModel {
		c.Model, err = llm.New(ctx, &cfg.LLM, logger)
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to initialize language model: %w", err)
		}
		logger.Info("language model initialized", zap.String("provider", c.Model.Provider()), zap.String("model", c.Model.Model()))
		extractOpts = append(extractOpts, extract.WithLLM(c.Model))
		ingestOpts = append(ingestOpts, indexer.WithLLM(c.Model))
		composer = rag.NewComposer(c.Model, &cfg.Retrieval, logger)
		consultant = diagnose.NewConsultant(
			diagnose.NewReasoner(c.Model, logger),
			diagnose.NewEscalationDetector(c.Model),
			logger,
		)
	}

	c.Ingestor = indexer.NewIngestor(extract.NewExtractor(extractOpts...), c.Embedder, c.Store, c.Ledger, cfg, ingestOpts...)
	c.Engine = rag.NewEngine(c.Embedder, c.Store, c.Ledger, composer, consultant, cfg, rag.WithLogger(logger))
	return c, nil
}

func printUsage() {
	fmt.Println(`medsage - Medical document question answering and diagnostic consults

Usage:
  medsage server [flags]               Start the HTTP server (and the inbox watcher)
  medsage upload [flags] <file>        Upload a medical document
  medsage ask [flags] <question>       Ask a question about uploaded documents
  medsage consult [flags] <symptoms>   Get a structured diagnostic consult
  medsage documents [flags]            List uploaded documents
  medsage clear [flags]                Drop and recreate the collection
  medsage load-cases [flags] <file>    Load a reasoning case dataset (JSON array or NDJSON)
  medsage setup [flags]                Create the collection and its payload indexes
  medsage status [flags]               Show store, ledger and model status
  medsage version                      Show version
  medsage help                         Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/medsage/config.yaml, or ./config.yaml)
  --server string    Server URL (default: http://localhost:8080). Use --server "" to run in-process.
  --output string    Output format: text or json (default: text)

Server Flags:
  --debug            Enable debug logging

Ask Flags:
  --n int            Number of documents to retrieve (default from config)

Documents Flags:
  --offset int       Uploads to skip (default: 0)
  --limit int        Uploads to list (default: 50)

Examples:
  medsage server
  medsage upload discharge-summary.pdf
  medsage ask what medication was prescribed
  medsage consult "fever and stiff neck since this morning"
  medsage consult --output json chest pain radiating to the left arm
  medsage load-cases medical_o1_sft.json
  medsage status`)
}
