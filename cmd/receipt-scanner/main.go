package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/zombor/receipt-scanner/internal/category"
	"github.com/zombor/receipt-scanner/internal/layout"
	"github.com/zombor/receipt-scanner/internal/receipt"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

// annotatorConfig selects and configures the OCR backend
type annotatorConfig struct {
	kind        string
	visionKey   string
	geminiKey   string
	geminiModel string
	ollamaURL   string
	ollamaModel string
}

func main() {
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-scanner")
	var (
		port           = fs.IntLong("port", 8080, "HTTP server port")
		dbPath         = fs.StringLong("db", "receipts.db", "Database file path")
		storagePath    = fs.StringLong("storage", "./annotations", "Directory for raw OCR annotations")
		policyPath     = fs.StringLong("policy", "", "YAML parsing policy (optional, defaults built in)")
		categoriesPath = fs.StringLong("categories", "", "YAML category table (optional, defaults built in)")
		annotatorType  = fs.StringLong("annotator", "vision", "OCR backend: 'vision', 'gemini', 'ollama' or 'none'")
		visionKey      = fs.StringLong("vision-key", "", "Google Cloud Vision API key (or set VISION_API_KEY env var)")
		geminiKey      = fs.StringLong("gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
		geminiModel    = fs.StringLong("gemini-model", "gemini-2.5-pro", "Google Gemini model name")
		ollamaURL      = fs.StringLong("ollama-url", "http://localhost:11434", "Ollama API base URL")
		ollamaModel    = fs.StringLong("ollama-model", "qwen2.5vl", "Ollama vision model name")
		parsePath      = fs.StringLong("parse", "", "Parse an annotation JSON file ('-' for stdin), print the receipt and exit")
		exportPath     = fs.StringLong("export", "", "Write all stored receipts to an XLSX file and exit")
		debug          = fs.BoolLong("debug", "Log parser decisions at debug level")
		showVersion    = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_SCANNER"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if *debug {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	policy := layout.DefaultPolicy()
	if *policyPath != "" {
		var err error
		policy, err = layout.LoadPolicy(*policyPath)
		if err != nil {
			slog.Error("Failed to load policy", "path", *policyPath, "error", err)
			os.Exit(1)
		}
	}
	var parserOpts []layout.Option
	if *debug {
		parserOpts = append(parserOpts, layout.WithLogger(slog.Default()))
	}
	parser := layout.NewParser(policy, parserOpts...)

	if *parsePath != "" {
		if err := parseFile(*parsePath, parser, os.Stdout); err != nil {
			slog.Error("Failed to parse annotations", "path", *parsePath, "error", err)
			os.Exit(1)
		}
		return
	}

	categories := category.Default()
	if *categoriesPath != "" {
		var err error
		categories, err = category.Load(*categoriesPath)
		if err != nil {
			slog.Error("Failed to load categories", "path", *categoriesPath, "error", err)
			os.Exit(1)
		}
	}

	slog.Info("Initializing database...")
	db, err := receipt.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	slog.Info("Initializing storage...")
	store, err := receipt.NewLocalStorage(*storagePath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	if *exportPath != "" {
		service := receipt.NewService(db, nil, store, parser, categories)
		if err := exportFile(*exportPath, service); err != nil {
			slog.Error("Failed to export receipts", "path", *exportPath, "error", err)
			db.Close()
			os.Exit(1)
		}
		return
	}

	annotator, err := newAnnotator(annotatorConfig{
		kind:        *annotatorType,
		visionKey:   firstNonEmpty(*visionKey, os.Getenv("VISION_API_KEY")),
		geminiKey:   firstNonEmpty(*geminiKey, os.Getenv("GEMINI_API_KEY")),
		geminiModel: *geminiModel,
		ollamaURL:   *ollamaURL,
		ollamaModel: *ollamaModel,
	})
	if err != nil {
		slog.Error("Failed to initialize annotator", "type", *annotatorType, "error", err)
		db.Close()
		os.Exit(1)
	}
	if annotator != nil {
		defer annotator.Close()
	}

	receiptService := receipt.NewService(db, annotator, store, parser, categories)
	server := receipt.NewServer(receiptService)

	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "annotator", *annotatorType)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

// newAnnotator builds the configured OCR backend. It returns nil for "none".
func newAnnotator(cfg annotatorConfig) (scanning.Annotator, error) {
	switch cfg.kind {
	case "vision":
		if cfg.visionKey == "" {
			return nil, fmt.Errorf("vision API key is required: set --vision-key or VISION_API_KEY")
		}
		slog.Info("Initializing Cloud Vision annotator...")
		return scanning.NewVision(cfg.visionKey)
	case "gemini":
		if cfg.geminiKey == "" {
			return nil, fmt.Errorf("gemini API key is required: set --gemini-key or GEMINI_API_KEY")
		}
		slog.Info("Initializing Gemini annotator...", "model", cfg.geminiModel)
		return scanning.NewGemini(cfg.geminiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama annotator...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "none":
		slog.Info("No annotator configured, only annotation uploads are accepted")
		return nil, nil
	}
	return nil, fmt.Errorf("invalid annotator type %q (valid: vision, gemini, ollama, none)", cfg.kind)
}

// parseFile parses an annotation file and writes the receipt as JSON
func parseFile(path string, parser *layout.Parser, w io.Writer) error {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return fmt.Errorf("reading annotations: %w", err)
	}

	anns, err := layout.DecodeAnnotations(data)
	if err != nil {
		return err
	}
	parsed := parser.Parse(anns)
	key, _ := parsed.Key()

	out := struct {
		layout.Receipt
		Key   string `json:"key,omitempty"`
		Total string `json:"total"`
	}{parsed, key, parsed.Total().StringFixed(2)}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return fmt.Errorf("encoding receipt: %w", err)
	}
	return nil
}

// exportFile writes the XLSX export to path
func exportFile(path string, service *receipt.Service) error {
	data, err := service.ExportXLSX()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing export: %w", err)
	}
	slog.Info("Exported receipts", "path", path)
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
