package parser

import (
	"regexp"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// GenericKey is the key of the fallback parser.
const GenericKey = "generic"

// genericConfidence is the lowest non-null detection score, so any specific
// variant outranks the fallback.
const genericConfidence = 0.1

const genericWarning = "no store-specific parser matched; generic parsing used"

// minGenericPrice is the smallest amount read as an item price. Smaller
// numbers at the end of a line are branch or street numbers.
const minGenericPrice = 50

var genericPatterns = []struct {
	re         *regexp.Regexp
	confidence float64
	build      func(m []string) (desc string, q decimal.Decimal, u string, total int64, ok bool)
}{
	{
		// 2 X GASEOSA 2.500
		re:         regexp.MustCompile(`^(\d+)\s*[X*]\s+(.+?)\s+` + amt + `\s*[A-Z]?$`),
		confidence: 0.7,
		build: func(m []string) (string, decimal.Decimal, string, int64, bool) {
			q, ok := ParseQuantity(m[1])
			return m[2], q, "UN", ParsePrice(m[3]), ok
		},
	},
	{
		// PAPA PASTUSA 1,250 KG 3.125
		re:         regexp.MustCompile(`^(.+?)\s+` + qty + `\s*` + unit + `\s+` + amt + `$`),
		confidence: 0.65,
		build: func(m []string) (string, decimal.Decimal, string, int64, bool) {
			q, ok := ParseQuantity(m[2])
			return m[1], q, m[3], ParsePrice(m[4]), ok
		},
	},
	{
		// PAN TAJADO 5.200
		re:         regexp.MustCompile(`^(.+?)\s+` + amt + `$`),
		confidence: 0.5,
		build: func(m []string) (string, decimal.Decimal, string, int64, bool) {
			return m[1], unitQuantity, "UN", ParsePrice(m[2]), true
		},
	},
}

// Generic reads any receipt with loose line patterns. It always detects, at
// the lowest score, and flags every item for review.
type Generic struct {
	identity StoreIdentity
}

func NewGeneric() *Generic {
	return &Generic{identity: StoreIdentity{Key: GenericKey, DisplayName: "Generic"}}
}

func (p *Generic) Key() string { return p.identity.Key }

func (p *Generic) Identity() StoreIdentity { return p.identity }

func (p *Generic) Detect(string) *DetectionResult {
	return &DetectionResult{
		StoreKey:        p.identity.Key,
		StoreName:       p.identity.DisplayName,
		Confidence:      genericConfidence,
		MatchedPatterns: []string{},
	}
}

func (p *Generic) Parse(text string) *ParsedTicket {
	lines := textnorm.NormalizedLines(text)
	t := newTicket(p.identity, text, lines, p.Detect(text))
	t.Store.Name = guessStoreName(lines)
	t.Meta.Warnings = append(t.Meta.Warnings, genericWarning)

	for i, line := range lines {
		if isExcluded(line) {
			continue
		}
		for _, gp := range genericPatterns {
			m := gp.re.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			desc, q, u, total, ok := gp.build(m)
			if !ok || total < minGenericPrice || !validDescription(cleanDescription(desc)) {
				continue
			}
			t.Items = append(t.Items, newItem(i, line, "", desc, q, u, unitPriceOf(q, total), total, gp.confidence,
				FlagNeedsReview))
			break
		}
	}
	return finish(t)
}

// unitPriceOf divides total by q when the division is exact; otherwise the
// unit price is not recoverable and total is used.
func unitPriceOf(q decimal.Decimal, total int64) int64 {
	if !q.IsPositive() {
		return total
	}
	per := decimal.NewFromInt(total).Div(q)
	if !per.IsInteger() {
		return total
	}
	return per.IntPart()
}

// guessStoreName returns the first line that reads like a name: letters
// only, not boilerplate and not an item.
func guessStoreName(lines []string) string {
	for _, line := range lines {
		if isExcluded(line) || !validDescription(line) {
			continue
		}
		hasDigit := false
		for _, r := range line {
			if unicode.IsDigit(r) {
				hasDigit = true
				break
			}
		}
		if !hasDigit {
			return line
		}
	}
	return ""
}
