package parser

import (
	"fmt"
	"regexp"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// Dollarcity receipts come out of OCR with their columns split: every
// description first, then a "VALOR" line, then every price. Items are
// rebuilt by pairing the Nth description with the Nth price.
type Dollarcity struct {
	identity StoreIdentity
}

var (
	dcMarkerRe   = regexp.MustCompile(`^VALOR\s*\$?$`)
	dcHeaderRe   = regexp.MustCompile(`^(?:DESCRIPCION|ARTICULO|PRODUCTO|DETALLE)\b`)
	dcPriceRe    = regexp.MustCompile(`^` + amt + `\s*[A-Z]?$`)
	dcLineItemRe = regexp.MustCompile(`^(?:(\d{4,14})\s+)?(.+?)\s+` + amt + `\s*[A-Z]?$`)
	dcCompanyRe  = regexp.MustCompile(`\b(?:S\.?A\.?S|LTDA|S\.A|COLOMBIA)\b`)
)

// dollarcityNIT is the tax id printed on Dollarcity Colombia receipts.
const dollarcityNIT = `901[.\s]?058[.\s]?291`

func NewDollarcity() *Dollarcity {
	return &Dollarcity{identity: StoreIdentity{
		Key:           "dollarcity",
		DisplayName:   "Dollarcity",
		TaxIDPatterns: mustCompileAll(dollarcityNIT),
		NamePatterns:  mustCompileAll(`\bDOLLAR\s*CITY\b`),
	}}
}

func (p *Dollarcity) Key() string { return p.identity.Key }

func (p *Dollarcity) Identity() StoreIdentity { return p.identity }

func (p *Dollarcity) Detect(text string) *DetectionResult {
	return detectIdentity(p.identity, text)
}

func (p *Dollarcity) Parse(text string) *ParsedTicket {
	lines := textnorm.NormalizedLines(text)
	t := newTicket(p.identity, text, lines, p.Detect(text))

	marker := -1
	for i, line := range lines {
		if dcMarkerRe.MatchString(line) {
			marker = i
			break
		}
	}
	if marker < 0 {
		p.parseLines(t, lines)
		return finish(t)
	}

	products := p.productZone(lines[:marker])
	prices := priceZone(lines[marker+1:])

	n := min(len(products), len(prices))
	if len(products) != len(prices) {
		t.Meta.Warnings = append(t.Meta.Warnings,
			fmt.Sprintf("found %d product lines and %d price lines; paired the first %d", len(products), len(prices), n))
	}
	for k := 0; k < n; k++ {
		prod, price := products[k], prices[k]
		raw := prod.line + "\n" + price.line
		dm := codeDescRe.FindStringSubmatch(prod.line)
		code, desc := dm[1], dm[2]
		t.Items = append(t.Items, newItem(prod.index, raw, code, desc, unitQuantity, "UN", 0, price.total, 0.6,
			FlagOCRUnordered, FlagNeedsReview))
	}
	return finish(t)
}

type zoneLine struct {
	index int
	line  string
	total int64
}

// productZone keeps the description lines above the marker. When a column
// header is present only the lines after it count.
func (p *Dollarcity) productZone(lines []string) []zoneLine {
	start := 0
	for i, line := range lines {
		if dcHeaderRe.MatchString(line) {
			start = i + 1
		}
	}

	var out []zoneLine
	for i := start; i < len(lines); i++ {
		line := lines[i]
		if !p.isProductLine(line) {
			continue
		}
		out = append(out, zoneLine{index: i, line: line})
	}
	return out
}

func (p *Dollarcity) isProductLine(line string) bool {
	if isExcluded(line) || !validDescription(line) || dcPriceRe.MatchString(line) {
		return false
	}
	for _, re := range p.identity.NamePatterns {
		if re.MatchString(line) {
			return false
		}
	}
	if dcCompanyRe.MatchString(line) || nitRe.MatchString(line) || addressRe.MatchString(line) {
		return false
	}
	return ExtractDate(line).Value == nil
}

// priceZone reads consecutive amount lines after the marker and stops at the
// first line that is not one.
func priceZone(lines []string) []zoneLine {
	var out []zoneLine
	for i, line := range lines {
		if separatorRe.MatchString(line) {
			continue
		}
		m := dcPriceRe.FindStringSubmatch(line)
		if m == nil {
			break
		}
		total := ParsePrice(m[1])
		if total == 0 {
			break
		}
		out = append(out, zoneLine{index: i, line: line, total: total})
	}
	return out
}

// parseLines handles receipts where OCR kept the columns together.
func (p *Dollarcity) parseLines(t *ParsedTicket, lines []string) {
	for i, line := range lines {
		if isExcluded(line) {
			continue
		}
		m := dcLineItemRe.FindStringSubmatch(line)
		if m == nil || !validDescription(m[2]) || !p.isProductLine(m[2]) {
			continue
		}
		if total := ParsePrice(m[3]); total > 0 {
			t.Items = append(t.Items, newItem(i, line, m[1], m[2], unitQuantity, "UN", 0, total, 0.7, FlagNeedsReview))
		}
	}
}
