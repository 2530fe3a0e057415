package parser

import (
	"regexp"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// D1 prints one item per line:
//
//	7702001023456 LECHE ENTERA ALQUERIA 1 UN X 4.500 4.500 A
type D1 struct {
	identity StoreIdentity
}

var (
	d1ItemRe  = regexp.MustCompile(`^(\d{4,14})\s+(.+?)\s+` + qty + `\s*` + unit + `\s*[X*]\s*` + amt + `\s+` + amt + `\s*[A-Z]?$`)
	d1ShortRe = regexp.MustCompile(`^(\d{4,14})\s+(.+?)\s+` + amt + `\s*[A-Z]?$`)
)

func NewD1() *D1 {
	return &D1{identity: StoreIdentity{
		Key:           "d1",
		DisplayName:   "Tiendas D1",
		TaxIDPatterns: mustCompileAll(`900[.\s]?276[.\s]?962`),
		NamePatterns:  mustCompileAll(`\bTIENDAS?\s+D1\b`, `\bKOBA\s+COLOMBIA\b`, `^D1\b`),
	}}
}

func (p *D1) Key() string { return p.identity.Key }

func (p *D1) Identity() StoreIdentity { return p.identity }

func (p *D1) Detect(text string) *DetectionResult {
	return detectIdentity(p.identity, text)
}

func (p *D1) Parse(text string) *ParsedTicket {
	lines := textnorm.NormalizedLines(text)
	t := newTicket(p.identity, text, lines, p.Detect(text))

	for i, line := range lines {
		if isExcluded(line) {
			continue
		}
		if m := d1ItemRe.FindStringSubmatch(line); m != nil {
			if !validDescription(m[2]) {
				continue
			}
			q, ok := ParseQuantity(m[3])
			if !ok {
				continue
			}
			unitPrice, total := ParsePrice(m[5]), ParsePrice(m[6])
			if total == 0 {
				continue
			}
			if consistent(q, unitPrice, total) {
				t.Items = append(t.Items, newItem(i, line, m[1], m[2], q, m[4], unitPrice, total, 0.95))
			} else {
				t.Items = append(t.Items, newItem(i, line, m[1], m[2], q, m[4], unitPrice, total, 0.7,
					FlagPriceMismatch, FlagNeedsReview))
			}
			continue
		}
		if m := d1ShortRe.FindStringSubmatch(line); m != nil && validDescription(m[2]) {
			total := ParsePrice(m[3])
			if total == 0 {
				continue
			}
			t.Items = append(t.Items, newItem(i, line, m[1], m[2], unitQuantity, "UN", 0, total, 0.7, FlagNeedsReview))
		}
	}
	return finish(t)
}
