package receipt

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/grocery-tracker/internal/matching"
	"github.com/zombor/grocery-tracker/internal/parser"
)

// TicketStatus is the lifecycle state of a scanned ticket. READY moves to
// CONFIRMED once and never back.
type TicketStatus string

const (
	TicketReady     TicketStatus = "READY"
	TicketConfirmed TicketStatus = "CONFIRMED"
)

// ItemStatus is the review state of a ticket line.
type ItemStatus string

const (
	ItemNew       ItemStatus = "NEW"
	ItemMatched   ItemStatus = "MATCHED"
	ItemPending   ItemStatus = "PENDING"
	ItemIgnored   ItemStatus = "IGNORED"
	ItemConfirmed ItemStatus = "CONFIRMED"
)

// Store is a shop in a user's list
type Store struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	NIT       string    `json:"nit,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Product is an entry in a user's catalog
type Product struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Category  string    `json:"category"`
	Brand     string    `json:"brand,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TicketScan is a scanned receipt under review
type TicketScan struct {
	ID                     string             `json:"id"`
	UserID                 string             `json:"user_id"`
	ImageRef               string             `json:"image_ref,omitempty"`
	ImageURL               string             `json:"image_url,omitempty"`
	ContentType            string             `json:"content_type,omitempty"`
	RawText                string             `json:"raw_text"`
	Status                 TicketStatus       `json:"status"`
	StoreRef               string             `json:"store_ref,omitempty"`
	PurchaseDate           *time.Time         `json:"purchase_date,omitempty"`
	ItemsCount             int                `json:"items_count"`
	TotalAmount            int64              `json:"total_amount"` // pesos
	ParserUsed             string             `json:"parser_used"`
	DetectedStore          parser.StoreInfo   `json:"detected_store"`
	NeedsStoreConfirmation bool               `json:"needs_store_confirmation"`
	Payment                parser.PaymentInfo `json:"payment"`
	Warnings               []string           `json:"warnings"`
	PurchaseRef            string             `json:"purchase_ref,omitempty"`
	ConfirmedAt            *time.Time         `json:"confirmed_at,omitempty"`
	CreatedAt              time.Time          `json:"created_at"`
	UpdatedAt              time.Time          `json:"updated_at"`
}

// TicketScanItem is one reviewed line of a ticket
type TicketScanItem struct {
	ID                string                  `json:"id"`
	TicketScanID      string                  `json:"ticket_scan_id"`
	Position          int                     `json:"position"`
	RawText           string                  `json:"raw_text"`
	Code              string                  `json:"code,omitempty"`
	DetectedName      string                  `json:"detected_name"`
	DetectedPrice     int64                   `json:"detected_price"` // line total in pesos
	DetectedQuantity  decimal.Decimal         `json:"detected_quantity"`
	Unit              string                  `json:"unit"`
	UnitPrice         int64                   `json:"unit_price"`
	ParseConfidence   float64                 `json:"parse_confidence"`
	Flags             []string                `json:"flags"`
	Status            ItemStatus              `json:"status"`
	PreviousStatus    ItemStatus              `json:"previous_status,omitempty"` // restored when un-ignored
	MatchedProductRef string                  `json:"matched_product_ref,omitempty"`
	MatchConfidence   *float64                `json:"match_confidence,omitempty"`
	Suggestions       []matching.ProductMatch `json:"suggestions"`
	FinalProductRef   string                  `json:"final_product_ref,omitempty"`
}

// TicketDetail is a ticket with its items in position order
type TicketDetail struct {
	*TicketScan
	Items []*TicketScanItem `json:"items"`
}

// Purchase is the durable record created when a ticket is confirmed
type Purchase struct {
	ID           string         `json:"id"`
	UserID       string         `json:"user_id"`
	StoreID      string         `json:"store_id"`
	TicketScanID string         `json:"ticket_scan_id"`
	PurchaseDate time.Time      `json:"purchase_date"`
	Total        int64          `json:"total"`
	Items        []PurchaseItem `json:"items"`
	CreatedAt    time.Time      `json:"created_at"`
}

type PurchaseItem struct {
	ProductID  string          `json:"product_id"`
	Name       string          `json:"name"`
	Quantity   decimal.Decimal `json:"quantity"`
	UnitPrice  int64           `json:"unit_price"`
	TotalPrice int64           `json:"total_price"`
}
