package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/zombor/grocery-tracker/internal/category"
	"github.com/zombor/grocery-tracker/internal/logging"
	"github.com/zombor/grocery-tracker/internal/matching"
	"github.com/zombor/grocery-tracker/internal/parser"
	"github.com/zombor/grocery-tracker/internal/receipt"
	"github.com/zombor/grocery-tracker/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("grocery-tracker")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "grocery-tracker.db", "Database file path")
		storageType = fs.StringLong("storage", "local", "Image storage: 'local' or 's3'")
		storagePath = fs.StringLong("storage-dir", "./tickets", "Local storage directory path")
		storageURL  = fs.StringLong("storage-url", "", "Public base URL of the local storage directory (optional)")

		s3Bucket    = fs.StringLong("s3-bucket", "", "S3 bucket for ticket images")
		s3Region    = fs.StringLong("s3-region", "us-east-1", "S3 region")
		s3Endpoint  = fs.StringLong("s3-endpoint", "", "S3-compatible endpoint URL (optional)")
		s3AccessKey = fs.StringLong("s3-access-key", "", "S3 access key id (optional, defaults to the AWS credential chain)")
		s3SecretKey = fs.StringLong("s3-secret-key", "", "S3 secret access key")
		s3Prefix    = fs.StringLong("s3-prefix", "tickets", "Key prefix for ticket images")
		s3PublicURL = fs.StringLong("s3-public-url", "", "Public base URL for stored images (optional)")
		s3PathStyle = fs.BoolLong("s3-path-style", "Use path-style S3 addressing")

		scannerType = fs.StringLong("scanner", "gemini", "Scanner type: 'gemini', 'ollama' or 'tesseract'")
		geminiKey   = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel = fs.StringLong("gemini-model", "gemini-2.5-flash", "Google Gemini model name")
		ollamaURL   = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel = fs.StringLong("ollama-model", "qwen2.5vl:7b", "Ollama vision model name")
		tessLang    = fs.StringLong("tesseract-lang", "spa", "Tesseract language(s), '+' separated")

		autoAccept    = fs.Float64Long("match-auto-accept", matching.DefaultThresholds().AutoAccept, "Similarity at which a product match is accepted automatically")
		minSimilarity = fs.Float64Long("match-min-similarity", matching.DefaultThresholds().MinSimilarity, "Lowest similarity kept as a suggestion")
		matchLimit    = fs.IntLong("match-limit", matching.DefaultThresholds().Limit, "Maximum number of suggestions per item")
		detectConfirm = fs.Float64Long("detect-confirm-threshold", parser.DefaultConfirmThreshold, "Store detection score below which the store must be confirmed")

		authUser  = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass  = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		rateLimit = fs.Float64Long("rate-limit", 10, "Requests per second per client (0 disables)")
		rateBurst = fs.IntLong("rate-burst", 20, "Requests a client may burst above the rate limit")

		logLevel    = fs.StringLong("log-level", "info", "Log level: debug, info, warn or error")
		logFormat   = fs.StringLong("log-format", "text", "Log format: text or json")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("GROCERY_TRACKER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.SetupLogger(os.Stderr, *logLevel, *logFormat); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Initialize database
	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Initialize scanner based on type
	var scanner scanning.Scanner
	switch *scannerType {
	case "gemini":
		// Get Gemini API key from flag or environment
		apiKey := *geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			slog.Error("Gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
			os.Exit(1)
		}
		slog.Info("Initializing Gemini scanner...", "model", *geminiModel)
		scanner, err = scanning.NewGemini(apiKey, *geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama scanner...", "url", *ollamaURL, "model", *ollamaModel)
		scanner, err = scanning.NewOllama(*ollamaURL, *ollamaModel)
	case "tesseract":
		slog.Info("Initializing Tesseract scanner...", "lang", *tessLang)
		scanner, err = scanning.NewTesseract(strings.Split(*tessLang, "+")...)
	default:
		slog.Error("Invalid scanner type", "type", *scannerType, "valid", "gemini, ollama or tesseract")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize scanner", "type", *scannerType, "error", err)
		os.Exit(1)
	}
	defer scanner.Close()

	// Initialize image storage
	var images receipt.ImageStore
	switch *storageType {
	case "local":
		slog.Info("Initializing local storage...", "dir", *storagePath)
		images, err = receipt.NewLocalStorage(*storagePath, *storageURL)
	case "s3":
		slog.Info("Initializing S3 storage...", "bucket", *s3Bucket, "region", *s3Region)
		images, err = receipt.NewS3ImageStore(context.Background(), receipt.S3Config{
			Bucket:          *s3Bucket,
			Region:          *s3Region,
			Endpoint:        *s3Endpoint,
			AccessKeyID:     *s3AccessKey,
			SecretAccessKey: *s3SecretKey,
			Prefix:          *s3Prefix,
			PublicURL:       *s3PublicURL,
			UsePathStyle:    *s3PathStyle,
		})
	default:
		slog.Error("Invalid storage type", "type", *storageType, "valid", "local or s3")
		os.Exit(1)
	}
	if err != nil {
		slog.Error("Failed to initialize storage", "type", *storageType, "error", err)
		os.Exit(1)
	}

	registry := parser.NewDefaultRegistry(parser.RegistryConfig{ConfirmThreshold: *detectConfirm})
	matcher := matching.NewEngine(matching.Thresholds{
		AutoAccept:    *autoAccept,
		MinSimilarity: *minSimilarity,
		Limit:         *matchLimit,
	})

	// Initialize service
	service := receipt.NewService(db, scanner, images, registry, matcher, category.NewDefaultClassifier())

	// Initialize server
	basicAuth := receipt.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	var limiter *receipt.RateLimiter
	if *rateLimit > 0 {
		limiter = receipt.NewRateLimiter(*rateLimit, *rateBurst)
	}
	server := receipt.NewServer(service, basicAuth, limiter)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}
