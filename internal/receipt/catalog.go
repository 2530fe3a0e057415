package receipt

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/zombor/grocery-tracker/internal/matching"
	"github.com/zombor/grocery-tracker/internal/parser"
	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// CreateStoreRequest represents the request to create a store
type CreateStoreRequest struct {
	Name    string `json:"name" validate:"required,max=120"`
	NIT     string `json:"nit" validate:"max=20"`
	Address string `json:"address" validate:"max=200"`
}

// CreateProductRequest represents the request to create a product. An empty
// category is filled in by the classifier.
type CreateProductRequest struct {
	Name     string `json:"name" validate:"required,max=200"`
	Category string `json:"category" validate:"max=60"`
	Brand    string `json:"brand" validate:"max=60"`
}

// ParsePreview is the result of parsing text without saving a ticket
type ParsePreview struct {
	Ticket    *parser.ParsedTicket `json:"ticket"`
	Detection parser.Confirmation  `json:"detection"`
}

// ParserInfo describes one registered parser
type ParserInfo struct {
	Key          string   `json:"key"`
	Name         string   `json:"name"`
	TaxIDs       []string `json:"tax_ids"`
	NamePatterns []string `json:"name_patterns"`
}

// CreateStore adds a store to the user's list
func (s *Service) CreateStore(userID string, req CreateStoreRequest) (*Store, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	store := &Store{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		NIT:       strings.TrimSpace(req.NIT),
		Address:   strings.TrimSpace(req.Address),
		CreatedAt: s.timeSource.Now(),
	}
	err := s.db.Update(func(tx Tx) error {
		stores, err := tx.ListStores(userID)
		if err != nil {
			return err
		}
		for _, st := range stores {
			if textnorm.Fold(st.Name) == textnorm.Fold(store.Name) {
				return fmt.Errorf("%w: store %q already exists", ErrConflict, st.Name)
			}
		}
		return tx.SaveStore(store)
	})
	if err != nil {
		return nil, fmt.Errorf("creating store: %w", err)
	}
	return store, nil
}

// ListStores returns the user's stores sorted by name
func (s *Service) ListStores(userID string) ([]*Store, error) {
	var stores []*Store
	err := s.db.View(func(tx Tx) (err error) {
		stores, err = tx.ListStores(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing stores: %w", err)
	}
	return stores, nil
}

// DeleteStore removes a store no purchase refers to
func (s *Service) DeleteStore(userID, id string) error {
	err := s.db.Update(func(tx Tx) error {
		store, err := tx.GetStore(id)
		if err != nil {
			return err
		}
		if err := owned("store", id, store.UserID, userID); err != nil {
			return err
		}
		purchases, err := tx.ListPurchases(userID)
		if err != nil {
			return err
		}
		for _, p := range purchases {
			if p.StoreID == id {
				return fmt.Errorf("%w: store %s has purchases", ErrConflict, id)
			}
		}
		return tx.DeleteStore(id)
	})
	if err != nil {
		return fmt.Errorf("deleting store: %w", err)
	}
	return nil
}

// CreateProduct adds a product to the user's catalog
func (s *Service) CreateProduct(userID string, req CreateProductRequest) (*Product, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	product := &Product{
		ID:        s.idGenerator.Generate(),
		UserID:    userID,
		Name:      strings.TrimSpace(req.Name),
		Category:  strings.TrimSpace(req.Category),
		Brand:     strings.TrimSpace(req.Brand),
		CreatedAt: s.timeSource.Now(),
	}
	if product.Category == "" {
		product.Category = s.classifier.DetectCategory(product.Name)
	} else {
		category, err := s.knownCategory(product.Category)
		if err != nil {
			return nil, err
		}
		product.Category = category
	}

	key := matching.NormalizeName(product.Name)
	err := s.db.Update(func(tx Tx) error {
		products, err := tx.ListProducts(userID)
		if err != nil {
			return err
		}
		for _, p := range products {
			if matching.NormalizeName(p.Name) == key {
				return fmt.Errorf("%w: product %q already exists", ErrConflict, p.Name)
			}
		}
		return tx.SaveProduct(product)
	})
	if err != nil {
		return nil, fmt.Errorf("creating product: %w", err)
	}
	return product, nil
}

// ListProducts returns the user's catalog sorted by name
func (s *Service) ListProducts(userID string) ([]*Product, error) {
	var products []*Product
	err := s.db.View(func(tx Tx) (err error) {
		products, err = tx.ListProducts(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return products, nil
}

// SearchProducts ranks the user's products by similarity to query
func (s *Service) SearchProducts(userID, query string) ([]matching.ProductMatch, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	products, err := s.ListProducts(userID)
	if err != nil {
		return nil, err
	}
	return s.matcher.FindSimilar(toCatalog(products), query), nil
}

// knownCategory returns the classifier's spelling of category
func (s *Service) knownCategory(category string) (string, error) {
	folded := textnorm.Fold(category)
	for _, c := range s.classifier.Categories() {
		if textnorm.Fold(c) == folded {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: unknown category %q", ErrValidation, category)
}

// DeleteProduct removes a product that no purchase and no unconfirmed
// ticket item refers to
func (s *Service) DeleteProduct(userID, id string) error {
	err := s.db.Update(func(tx Tx) error {
		product, err := tx.GetProduct(id)
		if err != nil {
			return err
		}
		if err := owned("product", id, product.UserID, userID); err != nil {
			return err
		}
		purchases, err := tx.ListPurchases(userID)
		if err != nil {
			return err
		}
		for _, p := range purchases {
			for _, it := range p.Items {
				if it.ProductID == id {
					return fmt.Errorf("%w: product %s has purchases", ErrConflict, id)
				}
			}
		}
		tickets, err := tx.ListTickets(userID)
		if err != nil {
			return err
		}
		for _, t := range tickets {
			if t.Status == TicketConfirmed {
				continue
			}
			items, err := tx.ListItems(t.ID)
			if err != nil {
				return err
			}
			for _, it := range items {
				if it.MatchedProductRef == id {
					return fmt.Errorf("%w: product %s is matched on ticket %s", ErrConflict, id, t.ID)
				}
			}
		}
		return tx.DeleteProduct(id)
	})
	if err != nil {
		return fmt.Errorf("deleting product: %w", err)
	}
	return nil
}

// ListPurchases returns the user's purchases, most recent first
func (s *Service) ListPurchases(userID string) ([]*Purchase, error) {
	var purchases []*Purchase
	err := s.db.View(func(tx Tx) (err error) {
		purchases, err = tx.ListPurchases(userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing purchases: %w", err)
	}
	return purchases, nil
}

// PreviewParse runs detection and parsing on text without saving anything
func (s *Service) PreviewParse(text, forceParser string) (*ParsePreview, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrInput)
	}
	ticket, err := s.registry.Parse(text, forceParser)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return &ParsePreview{Ticket: ticket, Detection: s.registry.DetectWithConfirmation(text)}, nil
}

// Parsers lists the registered parsers in registration order
func (s *Service) Parsers() []ParserInfo {
	identities := s.registry.Parsers()
	infos := make([]ParserInfo, len(identities))
	for i, id := range identities {
		infos[i] = ParserInfo{
			Key:          id.Key,
			Name:         id.DisplayName,
			TaxIDs:       patternStrings(id.TaxIDPatterns),
			NamePatterns: patternStrings(id.NamePatterns),
		}
	}
	return infos
}

func patternStrings(patterns []*regexp.Regexp) []string {
	out := make([]string, len(patterns))
	for i, p := range patterns {
		out[i] = p.String()
	}
	return out
}
