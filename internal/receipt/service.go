package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/zombor/grocery-tracker/internal/matching"
	"github.com/zombor/grocery-tracker/internal/parser"
	"github.com/zombor/grocery-tracker/internal/scanning"
	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// IDGenerator generates unique IDs for records
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// CategoryClassifier guesses the category of a new product
type CategoryClassifier interface {
	DetectCategory(productName string) string
	Categories() []string
}

// defaultIDGenerator generates random UUIDs
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return uuid.NewString()
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now().UTC()
}

// Service handles ticket review and the catalog around it
type Service struct {
	db          DB
	scanner     scanning.Scanner
	images      ImageStore
	registry    *parser.Registry
	matcher     *matching.Engine
	classifier  CategoryClassifier
	validate    *validator.Validate
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewService creates a new Service with default ID generator and time source
func NewService(db DB, scanner scanning.Scanner, images ImageStore, registry *parser.Registry, matcher *matching.Engine, classifier CategoryClassifier) *Service {
	return NewServiceWithDeps(db, scanner, images, registry, matcher, classifier, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing
func NewServiceWithDeps(db DB, scanner scanning.Scanner, images ImageStore, registry *parser.Registry, matcher *matching.Engine, classifier CategoryClassifier, idGen IDGenerator, timeSrc TimeSource) *Service {
	return &Service{
		db:          db,
		scanner:     scanner,
		images:      images,
		registry:    registry,
		matcher:     matcher,
		classifier:  classifier,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		idGenerator: idGen,
		timeSource:  timeSrc,
	}
}

var (
	filenameCharsRe = regexp.MustCompile(`[^a-zA-Z0-9\s\-_]`)
	filenameSpaceRe = regexp.MustCompile(`\s+`)
)

// sanitizeBaseName cleans up a filename by dropping its extension and special
// characters and truncating length
func sanitizeBaseName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))

	base = filenameCharsRe.ReplaceAllString(base, "")
	base = filenameSpaceRe.ReplaceAllString(strings.TrimSpace(base), "_")

	// Truncate to reasonable length
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "ticket"
	}
	return base
}

// extensionFor returns the file extension stored images get for mimeType
func extensionFor(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	default:
		return ""
	}
}

// validationError turns validator output into an ErrValidation error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", ErrValidation, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %v", ErrValidation, err)
}

// owned returns ErrPermission unless the record belongs to userID
func owned(kind, id, ownerID, userID string) error {
	if ownerID != userID {
		return fmt.Errorf("%w: %s %s belongs to another user", ErrPermission, kind, id)
	}
	return nil
}

// ScanTicket stores an uploaded receipt image, runs OCR on it and creates a
// READY ticket. Nothing is left behind when any step fails.
func (s *Service) ScanTicket(ctx context.Context, userID, filename string, data []byte, contentType, forceParser string) (*TicketDetail, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", ErrInput)
	}

	// HEIC and PDF uploads are kept as PNG so they can be shown back
	imageData, mimeType, _, err := scanning.PrepareImage(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInput, err)
	}

	id := s.idGenerator.Generate()
	name := fmt.Sprintf("%s_%s%s", id, sanitizeBaseName(filename), extensionFor(mimeType))
	stored, err := s.images.Upload(name, imageData, mimeType)
	if err != nil {
		return nil, fmt.Errorf("uploading image: %w", err)
	}

	ocr, err := s.scanner.RecognizeText(imageData, mimeType)
	if err != nil {
		slog.Error("Failed to recognize ticket text",
			"filename", filename,
			"content_type", contentType,
			"file_size", len(data),
			"error", err,
		)
		s.releaseImage(stored.Ref)
		return nil, fmt.Errorf("recognizing text: %w", err)
	}
	if strings.TrimSpace(ocr.FullText) == "" {
		s.releaseImage(stored.Ref)
		return nil, fmt.Errorf("%w: no text found in image", ErrInput)
	}

	detail, err := s.createTicket(ctx, id, userID, ocr.FullText, forceParser, stored, mimeType)
	if err != nil {
		s.releaseImage(stored.Ref)
		return nil, err
	}
	return detail, nil
}

// CreateTicketFromText creates a READY ticket from already recognized text
func (s *Service) CreateTicketFromText(ctx context.Context, userID, text, forceParser string) (*TicketDetail, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInput)
	}
	return s.createTicket(ctx, s.idGenerator.Generate(), userID, text, forceParser, nil, "")
}

// releaseImage deletes an image, logging failures
func (s *Service) releaseImage(ref string) {
	if ref == "" {
		return
	}
	if err := s.images.Delete(ref); err != nil {
		slog.Warn("Failed to delete image", "ref", ref, "error", err)
	}
}

func (s *Service) createTicket(ctx context.Context, id, userID, text, forceParser string, image *StoredImage, contentType string) (*TicketDetail, error) {
	parsed, err := s.registry.Parse(text, forceParser)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	needsConfirmation := false
	if forceParser == "" {
		needsConfirmation = s.registry.DetectWithConfirmation(text).NeedsConfirmation
	}

	var (
		catalog []matching.Product
		stores  []*Store
	)
	err = s.db.View(func(tx Tx) error {
		products, err := tx.ListProducts(userID)
		if err != nil {
			return err
		}
		catalog = toCatalog(products)
		stores, err = tx.ListStores(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading catalog: %w", err)
	}

	names := make([]string, len(parsed.Items))
	for i, it := range parsed.Items {
		names[i] = it.Description
	}
	matches, err := s.matcher.MatchAll(ctx, catalog, names)
	if err != nil {
		return nil, fmt.Errorf("matching items: %w", err)
	}

	now := s.timeSource.Now()
	ticket := &TicketScan{
		ID:                     id,
		UserID:                 userID,
		ContentType:            contentType,
		RawText:                text,
		Status:                 TicketReady,
		PurchaseDate:           parsed.Date.Value,
		ItemsCount:             len(parsed.Items),
		TotalAmount:            parsed.Totals.Total,
		ParserUsed:             parsed.Meta.ParserUsed,
		DetectedStore:          parsed.Store,
		NeedsStoreConfirmation: needsConfirmation,
		Payment:                parsed.Payment,
		Warnings:               parsed.Meta.Warnings,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
	if image != nil {
		ticket.ImageRef = image.Ref
		ticket.ImageURL = image.URL
	}
	if ticket.TotalAmount == 0 {
		ticket.TotalAmount = parsed.ItemsTotal()
	}
	if store := findStore(stores, parsed.Store); store != nil {
		ticket.StoreRef = store.ID
	}

	items := make([]*TicketScanItem, len(parsed.Items))
	for i, it := range parsed.Items {
		items[i] = newTicketItem(s.idGenerator.Generate(), ticket.ID, i, it, matches[i])
	}

	err = s.db.Update(func(tx Tx) error {
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.SaveItem(item); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("saving ticket: %w", err)
	}

	slog.Info("Ticket created",
		"ticket_id", ticket.ID,
		"parser", ticket.ParserUsed,
		"items", len(items),
		"needs_store_confirmation", needsConfirmation,
	)
	return &TicketDetail{TicketScan: ticket, Items: items}, nil
}

func newTicketItem(id, ticketID string, position int, it parser.ParsedItem, m matching.MatchResult) *TicketScanItem {
	item := &TicketScanItem{
		ID:               id,
		TicketScanID:     ticketID,
		Position:         position,
		RawText:          it.RawLine,
		Code:             it.Code,
		DetectedName:     it.Description,
		DetectedPrice:    it.TotalPrice,
		DetectedQuantity: it.Quantity,
		Unit:             it.Unit,
		UnitPrice:        it.UnitPrice,
		ParseConfidence:  it.Confidence,
		Flags:            it.Flags,
		Status:           ItemStatus(m.Status),
		Suggestions:      m.Suggestions,
	}
	if m.Match != nil {
		similarity := m.Match.Similarity
		item.MatchedProductRef = m.Match.ProductID
		item.MatchConfidence = &similarity
	}
	return item
}

func toCatalog(products []*Product) []matching.Product {
	catalog := make([]matching.Product, len(products))
	for i, p := range products {
		catalog[i] = matching.Product{ID: p.ID, Name: p.Name, Category: p.Category, Brand: p.Brand}
	}
	return catalog
}

// findStore picks the user's store with the detected NIT, or failing that
// the same name
func findStore(stores []*Store, detected parser.StoreInfo) *Store {
	nit := digitsOnly(detected.NIT)
	for _, st := range stores {
		if nit != "" && digitsOnly(st.NIT) == nit {
			return st
		}
	}
	for _, st := range stores {
		if detected.Name != "" && textnorm.Fold(st.Name) == textnorm.Fold(detected.Name) {
			return st
		}
	}
	return nil
}

// digitsOnly keeps the NIT body, dropping separators and the check digit
func digitsOnly(nit string) string {
	nit, _, _ = strings.Cut(nit, "-")
	var b strings.Builder
	for _, r := range nit {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// GetTicket retrieves a ticket with its items
func (s *Service) GetTicket(userID, id string) (*TicketDetail, error) {
	var detail *TicketDetail
	err := s.db.View(func(tx Tx) error {
		ticket, err := tx.GetTicket(id)
		if err != nil {
			return err
		}
		if err := owned("ticket", id, ticket.UserID, userID); err != nil {
			return err
		}
		items, err := tx.ListItems(id)
		if err != nil {
			return err
		}
		detail = &TicketDetail{TicketScan: ticket, Items: items}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting ticket: %w", err)
	}
	return detail, nil
}

// ListTickets returns the user's tickets, newest first
func (s *Service) ListTickets(userID string) ([]*TicketScan, error) {
	var tickets []*TicketScan
	err := s.db.View(func(tx Tx) (err error) {
		tickets, err = tx.ListTickets(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing tickets: %w", err)
	}
	return tickets, nil
}

// GetTicketImage returns the stored image of a ticket
func (s *Service) GetTicketImage(userID, id string) ([]byte, string, error) {
	var ticket *TicketScan
	err := s.db.View(func(tx Tx) (err error) {
		if ticket, err = tx.GetTicket(id); err != nil {
			return err
		}
		return owned("ticket", id, ticket.UserID, userID)
	})
	if err != nil {
		return nil, "", fmt.Errorf("getting ticket: %w", err)
	}
	if ticket.ImageRef == "" {
		return nil, "", fmt.Errorf("%w: ticket %s has no image", ErrNotFound, id)
	}

	data, err := s.images.Get(ticket.ImageRef)
	if err != nil {
		return nil, "", fmt.Errorf("getting ticket image: %w", err)
	}
	return data, ticket.ContentType, nil
}

// DeleteTicket removes a READY ticket and releases its image
func (s *Service) DeleteTicket(userID, id string) error {
	var imageRef string
	err := s.db.Update(func(tx Tx) error {
		ticket, err := tx.GetTicket(id)
		if err != nil {
			return err
		}
		if err := owned("ticket", id, ticket.UserID, userID); err != nil {
			return err
		}
		if ticket.Status == TicketConfirmed {
			return fmt.Errorf("%w: ticket %s is confirmed", ErrConflict, id)
		}
		imageRef = ticket.ImageRef
		return tx.DeleteTicket(id)
	})
	if err != nil {
		return fmt.Errorf("deleting ticket: %w", err)
	}

	s.releaseImage(imageRef)
	return nil
}
