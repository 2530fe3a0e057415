package parser

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// Detection weights.
const (
	taxIDWeight       = 0.6
	namePatternWeight = 0.3
)

// minDescriptionLen is the shortest item description accepted.
const minDescriptionLen = 3

var (
	nitRe = regexp.MustCompile(`\bN\.?\s?I\.?\s?T\.?\s*[:.#]?\s*(\d{1,3}(?:[.\s]?\d{3}){2,3})(?:\s*-\s*(\d))?`)

	addressRe = regexp.MustCompile(`^(?:DIR(?:ECCION)?\.?\s*:?\s*)?((?:CALLE|CL|CLL|CRA|KR|CARRERA|AV|AVENIDA|DG|DIAGONAL|TV|TRANSVERSAL|AUTOPISTA)\.?\s+\d.*)$`)

	cardRe  = regexp.MustCompile(`\b(TARJETA|DEBITO|CREDITO|VISA|MASTER\s?CARD|AMEX|DATAFONO|REDEBAN|CREDIBANCO)\b`)
	cashRe  = regexp.MustCompile(`\b(EFECTIVO|CAMBIO)\b`)
	last4Re = regexp.MustCompile(`(?:\*{2,}|X{3,}|#{2,})\s*(\d{4})\b`)

	// excludeRe matches lines that are never items: totals, taxes, payment
	// and header boilerplate.
	excludeRe = regexp.MustCompile(`^(?:SUB\s*-?\s*TOTAL|TOTAL|VALOR\s+(?:TOTAL|PAGADO)|IVA|I\.V\.A|IMPUESTO|IMPOCONSUMO|BASE|CAMBIO|EFECTIVO|TARJETA|DEBITO|CREDITO|VISA|MASTER\s?CARD|DESCUENTO|DSCTO|AHORRO|REDONDEO|NIT|FACTURA|RESOLUCION|CAJA|CAJERO|FECHA|HORA|DIRECCION|TEL|TELEFONO|GRACIAS|ARTICULOS|ITEMS|VUELTO|RECIBIDO|PAGO|DATAFONO|APROBACION|AUTORIZACION|CLIENTE|CC|REGIMEN|CUFE)\b`)

	separatorRe = regexp.MustCompile(`^[-=*_.#\s]+$`)

	// codeDescRe splits an optional leading product code off a description.
	codeDescRe = regexp.MustCompile(`^(?:(\d{4,14})\s+)?(.+)$`)
)

// mustCompileAll compiles patterns that are known-good at init time.
func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, regexp.MustCompile(p))
	}
	return out
}

// detectIdentity scores text against a store identity: a tax-id hit is the
// strong signal, each name pattern hit a weak one.
func detectIdentity(id StoreIdentity, text string) *DetectionResult {
	norm := textnorm.Normalize(text)

	var score float64
	matched := []string{}
	for _, re := range id.TaxIDPatterns {
		if re.MatchString(norm) {
			if score == 0 {
				score = taxIDWeight
			}
			matched = append(matched, re.String())
		}
	}
	for _, re := range id.NamePatterns {
		if re.MatchString(norm) {
			score += namePatternWeight
			matched = append(matched, re.String())
		}
	}
	if len(matched) == 0 {
		return nil
	}
	if score > 1 {
		score = 1
	}
	return &DetectionResult{
		StoreKey:        id.Key,
		StoreName:       id.DisplayName,
		Confidence:      score,
		MatchedPatterns: matched,
	}
}

// newTicket builds the parts of a ticket every variant shares: store, date,
// totals and the best-effort enrichments.
func newTicket(id StoreIdentity, text string, lines []string, detection *DetectionResult) *ParsedTicket {
	t := &ParsedTicket{
		Store: StoreInfo{Key: id.Key, Name: id.DisplayName},
		Items: []ParsedItem{},
		Meta: Meta{
			ParserUsed: id.Key,
			RawText:    text,
			Warnings:   []string{},
		},
	}
	if detection != nil {
		t.Store.Confidence = detection.Confidence
	}
	t.Date = ExtractDate(strings.Join(lines, "\n"))
	t.Totals = ExtractTotal(lines)
	enrich(t, lines)
	return t
}

// enrich fills NIT, address and payment details. Each pass is independent
// and leaves its field empty when nothing matches.
func enrich(t *ParsedTicket, lines []string) {
	for _, l := range lines {
		if t.Store.NIT == "" {
			if m := nitRe.FindStringSubmatch(l); m != nil {
				t.Store.NIT = nonDigitRe.ReplaceAllString(m[1], "")
				if m[2] != "" {
					t.Store.NIT += "-" + m[2]
				}
			}
		}
		if t.Store.Address == "" {
			if m := addressRe.FindStringSubmatch(l); m != nil {
				t.Store.Address = m[1]
			}
		}
	}

	full := strings.Join(lines, "\n")
	switch {
	case cardRe.MatchString(full):
		t.Payment.Method = PaymentCard
		if m := last4Re.FindStringSubmatch(full); m != nil {
			t.Payment.LastDigits = m[1]
		}
	case cashRe.MatchString(full):
		t.Payment.Method = PaymentCash
	}
}

// finish appends the warnings that apply to every variant.
func finish(t *ParsedTicket) *ParsedTicket {
	if len(t.Items) == 0 {
		t.Meta.Warnings = append(t.Meta.Warnings, "no items recognized")
	}
	if t.Date.Value == nil {
		t.Meta.Warnings = append(t.Meta.Warnings, "purchase date not found")
	}
	if t.Totals.Total == 0 {
		t.Meta.Warnings = append(t.Meta.Warnings, "total not found")
	} else if sum := t.ItemsTotal(); len(t.Items) > 0 && sum != t.Totals.Total {
		t.Meta.Warnings = append(t.Meta.Warnings,
			fmt.Sprintf("items add up to %d but the printed total is %d", sum, t.Totals.Total))
	}
	return t
}

// isExcluded reports whether a normalized line is boilerplate: totals,
// payment, separators, addresses and tax id lines.
func isExcluded(line string) bool {
	return excludeRe.MatchString(line) || separatorRe.MatchString(line) ||
		addressRe.MatchString(line) || nitRe.MatchString(line)
}

// validDescription rejects numeric or too-short descriptions.
func validDescription(desc string) bool {
	if len([]rune(desc)) < minDescriptionLen {
		return false
	}
	letters := 0
	for _, r := range desc {
		if unicode.IsLetter(r) {
			letters++
		}
	}
	return letters > 0
}

func cleanDescription(desc string) string {
	desc = textnorm.CollapseSpaces(desc)
	return strings.Trim(desc, " .,;:-_*#@")
}

// newItem assembles a ParsedItem; a zero unitPrice falls back to total.
func newItem(lineNo int, raw, code, desc string, q decimal.Decimal, u string, unitPrice, total int64, confidence float64, flags ...string) ParsedItem {
	if unitPrice == 0 {
		unitPrice = total
	}
	if flags == nil {
		flags = []string{}
	}
	return ParsedItem{
		LineNumber:  lineNo,
		RawLine:     raw,
		Description: cleanDescription(desc),
		Quantity:    q,
		UnitPrice:   unitPrice,
		TotalPrice:  total,
		Code:        code,
		Unit:        NormalizeUnit(u),
		Confidence:  confidence,
		Flags:       flags,
	}
}

// unitQuantity is the implied quantity for lines that print none.
var unitQuantity = decimal.NewFromInt(1)
