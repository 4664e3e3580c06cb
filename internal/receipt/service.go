package receipt

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/zombor/receipt-scanner/internal/category"
	"github.com/zombor/receipt-scanner/internal/layout"
	"github.com/zombor/receipt-scanner/internal/scanning"
)

var (
	// ErrInvalidAnnotations is returned for annotation JSON that cannot be decoded
	ErrInvalidAnnotations = errors.New("invalid annotations")
	// ErrNoAnnotator is returned when scanning without a configured annotator
	ErrNoAnnotator = errors.New("no annotator configured")
)

// SourceUpload marks receipts parsed from uploaded annotations
const SourceUpload = "upload"

// IDGenerator generates IDs for receipts that have no natural key
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Service parses, stores and exports receipts
type Service struct {
	db          DB
	annotator   scanning.Annotator
	storage     Storage
	parser      *layout.Parser
	categories  category.Table
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source.
// annotator may be nil, in which case only annotation uploads are accepted.
func NewService(db DB, annotator scanning.Annotator, storage Storage, parser *layout.Parser, categories category.Table) *Service {
	return NewServiceWithDeps(db, annotator, storage, parser, categories, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, annotator scanning.Annotator, storage Storage, parser *layout.Parser, categories category.Table, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		annotator:   annotator,
		storage:     storage,
		parser:      parser,
		categories:  categories,
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var fileNameReplacer = strings.NewReplacer(":", "-", "/", "-", `\`, "-", " ", "_")

// annotationFile is the storage name of a receipt's raw annotations
func annotationFile(id string) string {
	return fileNameReplacer.Replace(id) + ".json"
}

// ParseAnnotations parses an uploaded annotation list and stores the result
func (s *Service) ParseAnnotations(data []byte) (*Receipt, error) {
	anns, err := layout.DecodeAnnotations(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidAnnotations, err)
	}
	return s.save(anns, SourceUpload)
}

// ScanReceipt runs OCR on an uploaded image, then parses and stores it
func (s *Service) ScanReceipt(filename string, data []byte, contentType string) (*Receipt, error) {
	if s.annotator == nil {
		return nil, ErrNoAnnotator
	}

	start := time.Now()
	anns, err := s.annotator.Annotate(data, contentType)
	annotateDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		annotateRequestsTotal.WithLabelValues("error").Inc()
		slog.Error("Failed to annotate receipt",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		return nil, fmt.Errorf("annotating receipt: %w", err)
	}
	annotateRequestsTotal.WithLabelValues("success").Inc()

	return s.save(anns, annotatorName(s.annotator))
}

// annotatorName labels receipts with the backend that read them
func annotatorName(a scanning.Annotator) string {
	switch a.(type) {
	case *scanning.Vision:
		return "vision"
	case *scanning.Gemini:
		return "gemini"
	case *scanning.Ollama:
		return "ollama"
	}
	return "annotator"
}

// parse runs the layout parser and records parser metrics
func (s *Service) parse(anns []layout.Annotation) layout.Receipt {
	start := time.Now()
	parsed := s.parser.Parse(anns)
	parseDuration.Observe(time.Since(start).Seconds())
	annotationsPerReceipt.Observe(float64(len(anns)))
	itemsPerReceipt.Observe(float64(len(parsed.Items)))
	_, keyed := parsed.Key()
	receiptsParsedTotal.WithLabelValues(strconv.FormatBool(keyed)).Inc()
	return parsed
}

// save parses annotations and stores both the receipt and the raw
// annotations. A receipt with a natural key replaces an earlier scan of the
// same receipt.
func (s *Service) save(anns []layout.Annotation, source string) (*Receipt, error) {
	parsed := s.parse(anns)
	now := s.timeSource.Now()

	id, ok := parsed.Key()
	if !ok {
		id = s.idGenerator.Generate()
	}

	receipt := &Receipt{
		ID:        id,
		Source:    source,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if existing, err := s.db.GetReceipt(id); err == nil {
		receipt.CreatedAt = existing.CreatedAt
	}
	receipt.apply(parsed, s.categories.Classify(parsed.Merchant))

	raw, err := json.Marshal(anns)
	if err != nil {
		return nil, fmt.Errorf("marshaling annotations: %w", err)
	}
	savedPath, err := s.storage.Save(annotationFile(id), raw)
	if err != nil {
		return nil, fmt.Errorf("saving annotations: %w", err)
	}
	receipt.Filename = savedPath

	if err := s.db.SaveReceipt(receipt); err != nil {
		s.storage.Delete(savedPath)
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}

	slog.Info("Parsed receipt",
		"id", receipt.ID,
		"merchant", receipt.Merchant,
		"items", len(receipt.Items),
		"total", receipt.Total.String(),
		"source", source,
	)
	return receipt, nil
}

// GetReceipt retrieves a receipt by ID
func (s *Service) GetReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}
	return receipt, nil
}

// ListReceipts returns all receipts
func (s *Service) ListReceipts() ([]*Receipt, error) {
	receipts, err := s.db.ListReceipts()
	if err != nil {
		return nil, fmt.Errorf("listing receipts: %w", err)
	}
	return receipts, nil
}

// DeleteReceipt removes a receipt and its annotation file
func (s *Service) DeleteReceipt(id string) error {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return fmt.Errorf("getting receipt for deletion: %w", err)
	}

	if err := s.storage.Delete(receipt.Filename); err != nil {
		slog.Warn("Failed to delete file", "filename", receipt.Filename, "error", err)
	}

	if err := s.db.DeleteReceipt(id); err != nil {
		return fmt.Errorf("deleting receipt from database: %w", err)
	}
	return nil
}

// ReparseReceipt parses a receipt's stored annotations again with the
// current policy. The receipt keeps its ID even if its key changes.
func (s *Service) ReparseReceipt(id string) (*Receipt, error) {
	receipt, err := s.db.GetReceipt(id)
	if err != nil {
		return nil, fmt.Errorf("getting receipt: %w", err)
	}

	raw, err := s.storage.Get(receipt.Filename)
	if err != nil {
		return nil, fmt.Errorf("getting annotations: %w", err)
	}
	anns, err := layout.DecodeAnnotations(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding stored annotations: %w", err)
	}

	parsed := s.parse(anns)
	receipt.apply(parsed, s.categories.Classify(parsed.Merchant))
	receipt.UpdatedAt = s.timeSource.Now()

	if err := s.db.SaveReceipt(receipt); err != nil {
		return nil, fmt.Errorf("saving receipt to database: %w", err)
	}
	return receipt, nil
}
