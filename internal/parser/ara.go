package parser

import (
	"fmt"
	"regexp"

	"github.com/shopspring/decimal"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// ARA prints multi-unit and weighed items as a quantity line followed by the
// code line that carries the total:
//
//	2 UN X 3.200
//	7701234 GALLETAS DUCALES 6.400
//
// Single units print the code line alone.
type ARA struct {
	identity StoreIdentity
}

var (
	araQtyRe   = regexp.MustCompile(`^` + qty + `\s*` + unit + `?\s*[X*]\s*` + amt + `$`)
	araItemRe  = regexp.MustCompile(`^(\d{4,14})\s+(.+?)\s+` + amt + `\s*[A-Z]?$`)
	araLooseRe = regexp.MustCompile(`^(.+?)\s+` + amt + `\s*[A-Z]?$`)
)

type pendingQuantity struct {
	lineNo    int
	quantity  decimal.Decimal
	unit      string
	unitPrice int64
}

func NewARA() *ARA {
	return &ARA{identity: StoreIdentity{
		Key:           "ara",
		DisplayName:   "Tiendas ARA",
		TaxIDPatterns: mustCompileAll(`900[.\s]?480[.\s]?569`),
		NamePatterns:  mustCompileAll(`\bTIENDAS?\s+ARA\b`, `\bJERONIMO\s+MARTINS\b`, `^ARA\b`),
	}}
}

func (p *ARA) Key() string { return p.identity.Key }

func (p *ARA) Identity() StoreIdentity { return p.identity }

func (p *ARA) Detect(text string) *DetectionResult {
	return detectIdentity(p.identity, text)
}

func (p *ARA) Parse(text string) *ParsedTicket {
	lines := textnorm.NormalizedLines(text)
	t := newTicket(p.identity, text, lines, p.Detect(text))

	var pending *pendingQuantity
	for i, line := range lines {
		// A quantity line only applies to the line right after it.
		carried := pending
		pending = nil

		if m := araQtyRe.FindStringSubmatch(line); m != nil {
			q, ok := ParseQuantity(m[1])
			if ok {
				pending = &pendingQuantity{lineNo: i, quantity: q, unit: m[2], unitPrice: ParsePrice(m[3])}
			}
			if carried != nil {
				t.Meta.Warnings = append(t.Meta.Warnings, fmt.Sprintf("quantity on line %d has no item", carried.lineNo))
			}
			continue
		}
		if isExcluded(line) {
			if carried != nil {
				t.Meta.Warnings = append(t.Meta.Warnings, fmt.Sprintf("quantity on line %d has no item", carried.lineNo))
			}
			continue
		}

		if m := araItemRe.FindStringSubmatch(line); m != nil && validDescription(m[2]) {
			total := ParsePrice(m[3])
			if total == 0 {
				continue
			}
			t.Items = append(t.Items, p.item(i, line, m[1], m[2], total, carried))
			continue
		}

		if m := araLooseRe.FindStringSubmatch(line); m != nil && validDescription(m[1]) {
			total := ParsePrice(m[2])
			if total == 0 {
				continue
			}
			item := p.item(i, line, "", m[1], total, carried)
			item.Confidence = min(item.Confidence, 0.6)
			item.Flags = appendFlags(item.Flags, FlagNoCode, FlagNeedsReview)
			t.Items = append(t.Items, item)
		}
	}
	return finish(t)
}

func (p *ARA) item(lineNo int, line, code, desc string, total int64, carried *pendingQuantity) ParsedItem {
	if carried == nil {
		return newItem(lineNo, line, code, desc, unitQuantity, "UN", 0, total, 0.8)
	}
	if consistent(carried.quantity, carried.unitPrice, total) {
		return newItem(lineNo, line, code, desc, carried.quantity, carried.unit, carried.unitPrice, total, 0.9,
			FlagQuantityCarried)
	}
	return newItem(lineNo, line, code, desc, carried.quantity, carried.unit, carried.unitPrice, total, 0.65,
		FlagQuantityCarried, FlagPriceMismatch, FlagNeedsReview)
}

// appendFlags adds flags that are not already present.
func appendFlags(flags []string, add ...string) []string {
	for _, f := range add {
		found := false
		for _, existing := range flags {
			if existing == f {
				found = true
				break
			}
		}
		if !found {
			flags = append(flags, f)
		}
	}
	return flags
}
