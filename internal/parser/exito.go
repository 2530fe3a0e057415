package parser

import (
	"regexp"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// Exito prints the description on one line and the quantity, unit price and
// total on the next:
//
//	7702001023456 ARROZ DIANA 500G
//	2 UN 2.100 4.200
//
// Items sold by the unit sometimes collapse to "code description total".
type Exito struct {
	identity StoreIdentity
}

var (
	exitoQtyRe    = regexp.MustCompile(`^` + qty + `\s*` + unit + `\s+` + amt + `\s+` + amt + `\s*[A-Z]?$`)
	exitoSingleRe = regexp.MustCompile(`^(\d{4,14})\s+(.+?)\s+` + amt + `\s*[A-Z]?$`)
)

func NewExito() *Exito {
	return &Exito{identity: StoreIdentity{
		Key:           "exito",
		DisplayName:   "Almacenes Éxito",
		TaxIDPatterns: mustCompileAll(`890[.\s]?900[.\s]?608`),
		NamePatterns:  mustCompileAll(`\bALMACENES\s+EXITO\b`, `\bEXITO\b`),
	}}
}

func (p *Exito) Key() string { return p.identity.Key }

func (p *Exito) Identity() StoreIdentity { return p.identity }

func (p *Exito) Detect(text string) *DetectionResult {
	return detectIdentity(p.identity, text)
}

func (p *Exito) Parse(text string) *ParsedTicket {
	lines := textnorm.NormalizedLines(text)
	t := newTicket(p.identity, text, lines, p.Detect(text))

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if isExcluded(line) {
			continue
		}

		if i+1 < len(lines) {
			if qm := exitoQtyRe.FindStringSubmatch(lines[i+1]); qm != nil {
				if item, ok := p.windowItem(i, line, lines[i+1], qm); ok {
					t.Items = append(t.Items, item)
					i++
					continue
				}
			}
		}

		if m := exitoSingleRe.FindStringSubmatch(line); m != nil && validDescription(m[2]) {
			if total := ParsePrice(m[3]); total > 0 {
				t.Items = append(t.Items, newItem(i, line, m[1], m[2], unitQuantity, "UN", 0, total, 0.8))
			}
		}
	}
	return finish(t)
}

// windowItem joins a description line with the quantity line below it.
func (p *Exito) windowItem(lineNo int, descLine, qtyLine string, qm []string) (ParsedItem, bool) {
	dm := codeDescRe.FindStringSubmatch(descLine)
	if dm == nil || !validDescription(dm[2]) {
		return ParsedItem{}, false
	}
	q, ok := ParseQuantity(qm[1])
	if !ok {
		return ParsedItem{}, false
	}
	unitPrice, total := ParsePrice(qm[3]), ParsePrice(qm[4])
	if total == 0 {
		return ParsedItem{}, false
	}

	raw := descLine + "\n" + qtyLine
	code, desc := dm[1], dm[2]
	switch {
	case !consistent(q, unitPrice, total):
		return newItem(lineNo, raw, code, desc, q, qm[2], unitPrice, total, 0.65,
			FlagPriceMismatch, FlagNeedsReview), true
	case code == "":
		return newItem(lineNo, raw, code, desc, q, qm[2], unitPrice, total, 0.85, FlagNoCode), true
	default:
		return newItem(lineNo, raw, code, desc, q, qm[2], unitPrice, total, 0.92), true
	}
}
