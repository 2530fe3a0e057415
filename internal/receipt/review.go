package receipt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/grocery-tracker/internal/matching"
)

// UpdateItemRequest edits the detected fields of a ticket item. Nil fields
// are left alone.
type UpdateItemRequest struct {
	Name     *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Price    *int64           `json:"price" validate:"omitempty,gte=0"`
	Quantity *decimal.Decimal `json:"quantity"`
}

// ItemOverride is a last edit applied to an item as part of confirmation
type ItemOverride struct {
	ItemID    string           `json:"item_id" validate:"required"`
	Name      *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Price     *int64           `json:"price" validate:"omitempty,gte=0"`
	Quantity  *decimal.Decimal `json:"quantity"`
	ProductID *string          `json:"product_id"`
	Ignored   *bool            `json:"ignored"`
}

// ConfirmRequest turns a READY ticket into a purchase. PurchaseDate falls
// back to the date read from the ticket.
type ConfirmRequest struct {
	StoreID      string         `json:"store_id" validate:"required"`
	PurchaseDate *time.Time     `json:"purchase_date"`
	Items        []ItemOverride `json:"items" validate:"dive"`
}

// UnmarshalJSON accepts purchase_date either as RFC 3339 or as a bare
// YYYY-MM-DD date, read as UTC midnight.
func (r *ConfirmRequest) UnmarshalJSON(data []byte) error {
	type plain ConfirmRequest
	aux := struct {
		*plain
		PurchaseDate *string `json:"purchase_date"`
	}{plain: (*plain)(r)}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}

	r.PurchaseDate = nil
	if aux.PurchaseDate == nil || *aux.PurchaseDate == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, *aux.PurchaseDate); err == nil {
			r.PurchaseDate = &t
			return nil
		}
	}
	return fmt.Errorf("%w: purchase_date %q is not a YYYY-MM-DD or RFC 3339 date", ErrValidation, *aux.PurchaseDate)
}

// ConfirmResult is what a confirmation created
type ConfirmResult struct {
	Ticket          *TicketDetail `json:"ticket"`
	Purchase        *Purchase     `json:"purchase"`
	CreatedProducts []*Product    `json:"created_products"`
}

func validQuantity(q *decimal.Decimal) error {
	if q != nil && !q.IsPositive() {
		return fmt.Errorf("%w: quantity must be positive", ErrValidation)
	}
	return nil
}

// editItem loads a ticket item for editing inside one transaction. Items of
// confirmed tickets are frozen.
func (s *Service) editItem(userID, ticketID, itemID string, fn func(tx Tx, item *TicketScanItem) error) (*TicketScanItem, error) {
	var item *TicketScanItem
	err := s.db.Update(func(tx Tx) error {
		ticket, err := tx.GetTicket(ticketID)
		if err != nil {
			return err
		}
		if err := owned("ticket", ticketID, ticket.UserID, userID); err != nil {
			return err
		}
		if ticket.Status != TicketReady {
			return fmt.Errorf("%w: ticket %s is %s", ErrConflict, ticketID, ticket.Status)
		}
		if item, err = tx.GetItem(ticketID, itemID); err != nil {
			return err
		}
		if err := fn(tx, item); err != nil {
			return err
		}
		ticket.UpdatedAt = s.timeSource.Now()
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}
		return tx.SaveItem(item)
	})
	if err != nil {
		return nil, fmt.Errorf("editing item: %w", err)
	}
	return item, nil
}

// UpdateItem edits an item's name, price or quantity
func (s *Service) UpdateItem(userID, ticketID, itemID string, req UpdateItemRequest) (*TicketScanItem, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	if err := validQuantity(req.Quantity); err != nil {
		return nil, err
	}
	return s.editItem(userID, ticketID, itemID, func(_ Tx, item *TicketScanItem) error {
		applyEdits(item, req.Name, req.Price, req.Quantity)
		return nil
	})
}

func applyEdits(item *TicketScanItem, name *string, price *int64, quantity *decimal.Decimal) {
	if name != nil {
		item.DetectedName = *name
	}
	if price != nil {
		item.DetectedPrice = *price
	}
	if quantity != nil {
		item.DetectedQuantity = *quantity
	}
	if price != nil || quantity != nil {
		item.UnitPrice = unitPrice(item.DetectedPrice, item.DetectedQuantity)
	}
}

// unitPrice derives a per-unit price from a line total
func unitPrice(total int64, quantity decimal.Decimal) int64 {
	if !quantity.IsPositive() {
		return total
	}
	return decimal.NewFromInt(total).Div(quantity).Round(0).IntPart()
}

// AcceptSuggestion matches an item to one of the user's products
func (s *Service) AcceptSuggestion(userID, ticketID, itemID, productID string) (*TicketScanItem, error) {
	return s.editItem(userID, ticketID, itemID, func(tx Tx, item *TicketScanItem) error {
		product, err := tx.GetProduct(productID)
		if err != nil {
			return err
		}
		if err := owned("product", productID, product.UserID, userID); err != nil {
			return err
		}
		matchItem(item, productID)
		return nil
	})
}

// matchItem points item at productID, taking the similarity from the
// suggestion list when the product was suggested
func matchItem(item *TicketScanItem, productID string) {
	item.Status = ItemMatched
	item.PreviousStatus = ""
	item.MatchedProductRef = productID
	item.MatchConfidence = nil

	var rest []matching.ProductMatch
	for _, sug := range item.Suggestions {
		if sug.ProductID == productID {
			similarity := sug.Similarity
			item.MatchConfidence = &similarity
			continue
		}
		rest = append(rest, sug)
	}
	if rest == nil {
		rest = []matching.ProductMatch{}
	}
	item.Suggestions = rest
}

// IgnoreItem excludes an item from confirmation
func (s *Service) IgnoreItem(userID, ticketID, itemID string) (*TicketScanItem, error) {
	return s.editItem(userID, ticketID, itemID, func(_ Tx, item *TicketScanItem) error {
		ignoreItem(item)
		return nil
	})
}

func ignoreItem(item *TicketScanItem) {
	if item.Status == ItemIgnored {
		return
	}
	item.PreviousStatus = item.Status
	item.Status = ItemIgnored
}

// RestoreItem puts an ignored item back in the status it had before
func (s *Service) RestoreItem(userID, ticketID, itemID string) (*TicketScanItem, error) {
	return s.editItem(userID, ticketID, itemID, func(_ Tx, item *TicketScanItem) error {
		restoreItem(item)
		return nil
	})
}

func restoreItem(item *TicketScanItem) {
	if item.Status != ItemIgnored {
		return
	}
	item.Status = item.PreviousStatus
	if item.Status == "" {
		item.Status = ItemNew
	}
	item.PreviousStatus = ""
}

// ConfirmTicket creates the purchase for a READY ticket. Everything it
// writes happens in one transaction: new products, the purchase, the item
// and ticket updates. The status check runs inside that transaction, so of
// two concurrent confirmations only one succeeds.
func (s *Service) ConfirmTicket(userID, ticketID string, req ConfirmRequest) (*ConfirmResult, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}
	for _, o := range req.Items {
		if err := validQuantity(o.Quantity); err != nil {
			return nil, err
		}
	}

	var result *ConfirmResult
	err := s.db.Update(func(tx Tx) error {
		ticket, err := tx.GetTicket(ticketID)
		if err != nil {
			return err
		}
		if err := owned("ticket", ticketID, ticket.UserID, userID); err != nil {
			return err
		}
		if ticket.Status == TicketConfirmed {
			return fmt.Errorf("%w: ticket %s is already confirmed", ErrConflict, ticketID)
		}

		store, err := tx.GetStore(req.StoreID)
		if err != nil {
			return err
		}
		if err := owned("store", req.StoreID, store.UserID, userID); err != nil {
			return err
		}

		purchaseDate := ticket.PurchaseDate
		if req.PurchaseDate != nil {
			purchaseDate = req.PurchaseDate
		}
		if purchaseDate == nil {
			return fmt.Errorf("%w: purchase date is required", ErrValidation)
		}

		items, err := tx.ListItems(ticketID)
		if err != nil {
			return err
		}
		if err := applyOverrides(tx, userID, items, req.Items); err != nil {
			return err
		}

		var remaining []*TicketScanItem
		for _, item := range items {
			if item.Status != ItemIgnored {
				remaining = append(remaining, item)
			}
		}
		if len(remaining) == 0 {
			return fmt.Errorf("%w: no items to confirm", ErrValidation)
		}

		resolver, err := s.newProductResolver(tx, userID)
		if err != nil {
			return err
		}

		now := s.timeSource.Now()
		purchase := &Purchase{
			ID:           s.idGenerator.Generate(),
			UserID:       userID,
			StoreID:      store.ID,
			TicketScanID: ticket.ID,
			PurchaseDate: *purchaseDate,
			Items:        make([]PurchaseItem, 0, len(remaining)),
			CreatedAt:    now,
		}
		for _, item := range remaining {
			product, err := resolver.resolve(item)
			if err != nil {
				return err
			}
			purchase.Items = append(purchase.Items, PurchaseItem{
				ProductID:  product.ID,
				Name:       item.DetectedName,
				Quantity:   item.DetectedQuantity,
				UnitPrice:  unitPrice(item.DetectedPrice, item.DetectedQuantity),
				TotalPrice: item.DetectedPrice,
			})
			purchase.Total += item.DetectedPrice

			item.Status = ItemConfirmed
			item.FinalProductRef = product.ID
		}
		if err := tx.SavePurchase(purchase); err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.SaveItem(item); err != nil {
				return err
			}
		}

		ticket.Status = TicketConfirmed
		ticket.StoreRef = store.ID
		ticket.PurchaseDate = purchaseDate
		ticket.PurchaseRef = purchase.ID
		ticket.ItemsCount = len(remaining)
		ticket.TotalAmount = purchase.Total
		ticket.NeedsStoreConfirmation = false
		ticket.ConfirmedAt = &now
		ticket.UpdatedAt = now
		if err := tx.SaveTicket(ticket); err != nil {
			return err
		}

		result = &ConfirmResult{
			Ticket:          &TicketDetail{TicketScan: ticket, Items: items},
			Purchase:        purchase,
			CreatedProducts: resolver.created,
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("confirming ticket: %w", err)
	}

	slog.Info("Ticket confirmed",
		"ticket_id", ticketID,
		"purchase_id", result.Purchase.ID,
		"items", len(result.Purchase.Items),
		"new_products", len(result.CreatedProducts),
	)
	return result, nil
}

// applyOverrides applies the edits sent with a confirmation
func applyOverrides(tx Tx, userID string, items []*TicketScanItem, overrides []ItemOverride) error {
	byID := make(map[string]*TicketScanItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	for _, o := range overrides {
		item, ok := byID[o.ItemID]
		if !ok {
			return fmt.Errorf("%w: item %s", ErrNotFound, o.ItemID)
		}
		applyEdits(item, o.Name, o.Price, o.Quantity)
		if o.ProductID != nil {
			product, err := tx.GetProduct(*o.ProductID)
			if err != nil {
				return err
			}
			if err := owned("product", product.ID, product.UserID, userID); err != nil {
				return err
			}
			matchItem(item, product.ID)
		}
		if o.Ignored != nil {
			if *o.Ignored {
				ignoreItem(item)
			} else {
				restoreItem(item)
			}
		}
	}
	return nil
}

// productResolver finds or creates the catalog product for each confirmed
// item. Items naming the same new product share one.
type productResolver struct {
	tx      Tx
	s       *Service
	userID  string
	byName  map[string]*Product
	created []*Product
}

func (s *Service) newProductResolver(tx Tx, userID string) (*productResolver, error) {
	products, err := tx.ListProducts(userID)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*Product, len(products))
	for _, p := range products {
		byName[matching.NormalizeName(p.Name)] = p
	}
	return &productResolver{tx: tx, s: s, userID: userID, byName: byName, created: []*Product{}}, nil
}

func (r *productResolver) resolve(item *TicketScanItem) (*Product, error) {
	if item.MatchedProductRef != "" {
		product, err := r.tx.GetProduct(item.MatchedProductRef)
		if err != nil {
			return nil, err
		}
		if err := owned("product", product.ID, product.UserID, r.userID); err != nil {
			return nil, err
		}
		return product, nil
	}

	key := matching.NormalizeName(item.DetectedName)
	if product, ok := r.byName[key]; ok && key != "" {
		return product, nil
	}

	product := &Product{
		ID:        r.s.idGenerator.Generate(),
		UserID:    r.userID,
		Name:      item.DetectedName,
		Category:  r.s.classifier.DetectCategory(item.DetectedName),
		CreatedAt: r.s.timeSource.Now(),
	}
	if err := r.tx.SaveProduct(product); err != nil {
		return nil, err
	}
	r.byName[key] = product
	r.created = append(r.created, product)
	return product, nil
}
