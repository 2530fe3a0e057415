package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// amt matches a peso amount with optional "$", thousands separators and a
// trailing two-digit cents group, capturing the integer part only.
const amt = `\$?\s*(\d{1,3}(?:[.,]\d{3})+|\d+)(?:[.,]\d{2})?`

// qty matches a quantity such as "2", "0,535" or "1.5".
const qty = `(\d+(?:[.,]\d{1,3})?)`

// unit matches the measure printed next to a quantity.
const unit = `(UN|UND|UNID|KG|KL|GR|G|LT|L|ML)`

var nonDigitRe = regexp.MustCompile(`\D`)

// ParsePrice strips every non-digit and parses the rest as pesos. "." and ","
// are thousands separators only. It returns 0 for anything unparseable;
// callers must read 0 as "no price found".
func ParsePrice(s string) int64 {
	digits := nonDigitRe.ReplaceAllString(s, "")
	if digits == "" {
		return 0
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

// ParseQuantity reads a printed quantity, where a single "," or "." is a
// decimal point ("0,535" KG). ok is false when s is not a positive number.
func ParseQuantity(s string) (q decimal.Decimal, ok bool) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if strings.Count(s, ".") > 1 {
		return decimal.Zero, false
	}
	q, err := decimal.NewFromString(s)
	if err != nil || !q.IsPositive() {
		return decimal.Zero, false
	}
	return q, true
}

// NormalizeUnit maps printed unit spellings onto UN, KG, GR, LT or ML.
func NormalizeUnit(u string) string {
	switch strings.ToUpper(strings.TrimSpace(u)) {
	case "KG", "KL":
		return "KG"
	case "GR", "G":
		return "GR"
	case "LT", "L":
		return "LT"
	case "ML":
		return "ML"
	default:
		return "UN"
	}
}

// consistent reports whether quantity × unitPrice reproduces total within a
// small rounding tolerance (weighed goods are rounded by the till).
func consistent(q decimal.Decimal, unitPrice, total int64) bool {
	if unitPrice <= 0 || total <= 0 {
		return false
	}
	expected := q.Mul(decimal.NewFromInt(unitPrice)).Round(0).IntPart()
	tolerance := int64(math.Max(float64(total)/100, 10))
	diff := expected - total
	if diff < 0 {
		diff = -diff
	}
	return diff <= tolerance
}

type dateFormat struct {
	re         *regexp.Regexp
	confidence float64
	build      func(m []string) (time.Time, bool)
}

// dateFormats is ordered from least to most ambiguous; the first format with
// a valid match wins.
var dateFormats = []dateFormat{
	{
		re:         regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})(?:[ T](\d{2}):(\d{2}))?`),
		confidence: 0.95,
		build: func(m []string) (time.Time, bool) {
			return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), atoi(m[4]), atoi(m[5]))
		},
	},
	{
		re:         regexp.MustCompile(`\b(\d{4})/(\d{1,2})/(\d{1,2})\b`),
		confidence: 0.9,
		build: func(m []string) (time.Time, bool) {
			return buildDate(atoi(m[1]), atoi(m[2]), atoi(m[3]), 0, 0)
		},
	},
	{
		re:         regexp.MustCompile(`\b(\d{1,2})[/-](\d{1,2})[/-](\d{4})\b`),
		confidence: 0.85,
		build: func(m []string) (time.Time, bool) {
			return buildDate(atoi(m[3]), atoi(m[2]), atoi(m[1]), 0, 0)
		},
	},
	{
		re:         regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})/(\d{2})\b`),
		confidence: 0.7,
		build: func(m []string) (time.Time, bool) {
			return buildDate(pivotYear(atoi(m[3])), atoi(m[2]), atoi(m[1]), 0, 0)
		},
	},
}

// pivotYear maps a two-digit year onto 1950–2049.
func pivotYear(yy int) int {
	if yy < 50 {
		return 2000 + yy
	}
	return 1900 + yy
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func buildDate(year, month, day, hour, minute int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || hour > 23 || minute > 59 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, time.UTC)
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, false
	}
	return t, true
}

// ExtractDate returns the purchase date found in text. Dates carry no zone
// on receipts and are returned in UTC.
func ExtractDate(text string) DateInfo {
	for _, f := range dateFormats {
		for _, m := range f.re.FindAllStringSubmatch(text, -1) {
			if t, ok := f.build(m); ok {
				return DateInfo{Value: &t, Raw: m[0], Confidence: f.confidence}
			}
		}
	}
	return DateInfo{}
}

var totalPatterns = []struct {
	re         *regexp.Regexp
	confidence float64
}{
	{regexp.MustCompile(`^TOTAL\s*(?:A\s+PAGAR)?\s*[:=]?\s*` + amt + `\s*$`), 0.95},
	{regexp.MustCompile(`^VALOR\s+TOTAL\s*[:=]?\s*` + amt + `\s*$`), 0.9},
	{regexp.MustCompile(`^VALOR\s+PAGADO\s*[:=]?\s*` + amt + `\s*$`), 0.85},
	{regexp.MustCompile(`^(?:SUB\s*-?\s*TOTAL|\*+\s*TOTAL\s*\*+)\s*[:=]?\s*` + amt + `\s*$`), 0.6},
}

// ExtractTotal scans normalized lines from the bottom up, where receipts
// print their totals, and returns the first labelled amount it finds.
func ExtractTotal(lines []string) Totals {
	for i := len(lines) - 1; i >= 0; i-- {
		for _, p := range totalPatterns {
			m := p.re.FindStringSubmatch(lines[i])
			if m == nil {
				continue
			}
			if total := ParsePrice(m[1]); total > 0 {
				return Totals{Total: total, Confidence: p.confidence}
			}
		}
	}
	return Totals{}
}
