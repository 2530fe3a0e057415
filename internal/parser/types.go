// Package parser turns normalized OCR text into a ParsedTicket. Each supported
// retailer has its own Parser; the Registry scores them against the text and
// dispatches to the best match, falling back to the Generic parser.
package parser

import (
	"regexp"
	"time"

	"github.com/shopspring/decimal"
)

// Item flags.
const (
	FlagNeedsReview     = "needs_review"
	FlagOCRUnordered    = "ocr_unordered"
	FlagQuantityCarried = "quantity_carried"
	FlagPriceMismatch   = "price_mismatch"
	FlagNoCode          = "no_code"
)

// Payment methods.
const (
	PaymentCash = "CASH"
	PaymentCard = "CARD"
)

// StoreIdentity is the static description of one retailer.
type StoreIdentity struct {
	Key           string
	DisplayName   string
	TaxIDPatterns []*regexp.Regexp
	NamePatterns  []*regexp.Regexp
}

// DetectionResult is one parser's claim on a text.
type DetectionResult struct {
	StoreKey        string   `json:"store_key"`
	StoreName       string   `json:"store_name"`
	Confidence      float64  `json:"confidence"`
	MatchedPatterns []string `json:"matched_patterns"`
}

// ParsedItem is a single line item recovered from one or more raw lines.
// Quantity defaults to 1 and UnitPrice to TotalPrice when the receipt does
// not print them.
type ParsedItem struct {
	LineNumber  int             `json:"line_number"`
	RawLine     string          `json:"raw_line"`
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   int64           `json:"unit_price"`
	TotalPrice  int64           `json:"total_price"`
	Code        string          `json:"code,omitempty"`
	Unit        string          `json:"unit"`
	Confidence  float64         `json:"confidence"`
	Flags       []string        `json:"flags"`
}

// HasFlag reports whether flag is set on the item.
func (i ParsedItem) HasFlag(flag string) bool {
	for _, f := range i.Flags {
		if f == flag {
			return true
		}
	}
	return false
}

type StoreInfo struct {
	Key        string  `json:"key"`
	Name       string  `json:"name"`
	NIT        string  `json:"nit,omitempty"`
	Address    string  `json:"address,omitempty"`
	Confidence float64 `json:"confidence"`
}

type DateInfo struct {
	Value      *time.Time `json:"value"`
	Raw        string     `json:"raw"`
	Confidence float64    `json:"confidence"`
}

type Totals struct {
	Total      int64   `json:"total"`
	Confidence float64 `json:"confidence"`
}

type PaymentInfo struct {
	Method     string `json:"method,omitempty"`
	LastDigits string `json:"last_digits,omitempty"`
}

type Meta struct {
	ParserUsed string    `json:"parser_used"`
	ParsedAt   time.Time `json:"parsed_at"`
	RawText    string    `json:"raw_text"`
	Warnings   []string  `json:"warnings"`
}

// ParsedTicket is the output of the parsing stage. Review works on a copy.
type ParsedTicket struct {
	Store   StoreInfo    `json:"store"`
	Date    DateInfo     `json:"date"`
	Items   []ParsedItem `json:"items"`
	Totals  Totals       `json:"totals"`
	Payment PaymentInfo  `json:"payment"`
	Meta    Meta         `json:"meta"`
}

// ItemsTotal sums TotalPrice over every item.
func (t *ParsedTicket) ItemsTotal() int64 {
	var sum int64
	for _, it := range t.Items {
		sum += it.TotalPrice
	}
	return sum
}

// Parser is implemented by every store variant.
type Parser interface {
	// Key is the stable identifier used for forced dispatch.
	Key() string
	Identity() StoreIdentity
	// Detect returns nil when none of the parser's patterns matched.
	Detect(text string) *DetectionResult
	// Parse never fails: lines it cannot read are skipped and reported
	// through confidence, flags and warnings.
	Parse(text string) *ParsedTicket
}
