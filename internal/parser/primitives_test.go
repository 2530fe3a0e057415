package parser

import (
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// formatThousands renders n with sep between groups of three digits.
func formatThousands(n int64, sep string) string {
	s := strconv.FormatInt(n, 10)
	var groups []string
	for len(s) > 3 {
		groups = append([]string{s[len(s)-3:]}, groups...)
		s = s[:len(s)-3]
	}
	return strings.Join(append([]string{s}, groups...), sep)
}

var _ = Describe("ParsePrice", func() {
	It("should read dot thousands separators", func() {
		Expect(ParsePrice("$4.500")).To(Equal(int64(4500)))
	})

	It("should read comma thousands separators", func() {
		Expect(ParsePrice("1,234,567")).To(Equal(int64(1234567)))
	})

	It("should return 0 for input without digits", func() {
		Expect(ParsePrice("abc")).To(BeZero())
		Expect(ParsePrice("")).To(BeZero())
	})

	It("should return 0 when the digits overflow", func() {
		Expect(ParsePrice("99999999999999999999999")).To(BeZero())
	})

	It("should round-trip formatted amounts", func() {
		for _, n := range []int64{0, 7, 85, 999, 1000, 4500, 12345, 999999, 1000000, 23456789, 9876543210} {
			for _, sep := range []string{".", ","} {
				Expect(ParsePrice(formatThousands(n, sep))).To(Equal(n), "n=%d sep=%q", n, sep)
			}
		}
	})
})

var _ = Describe("ParseQuantity", func() {
	It("should read a comma as a decimal point", func() {
		q, ok := ParseQuantity("0,535")
		Expect(ok).To(BeTrue())
		Expect(q.Equal(decimal.RequireFromString("0.535"))).To(BeTrue())
	})

	It("should reject zero and garbage", func() {
		_, ok := ParseQuantity("0")
		Expect(ok).To(BeFalse())
		_, ok = ParseQuantity("x")
		Expect(ok).To(BeFalse())
	})
})

var _ = Describe("NormalizeUnit", func() {
	It("should map spellings onto canonical units", func() {
		Expect(NormalizeUnit("kl")).To(Equal("KG"))
		Expect(NormalizeUnit("G")).To(Equal("GR"))
		Expect(NormalizeUnit("L")).To(Equal("LT"))
		Expect(NormalizeUnit("UND")).To(Equal("UN"))
		Expect(NormalizeUnit("")).To(Equal("UN"))
	})
})

var _ = Describe("ExtractDate", func() {
	var (
		text string
		info DateInfo
	)

	JustBeforeEach(func() {
		info = ExtractDate(text)
	})

	When("the text has an ISO date with time", func() {
		BeforeEach(func() {
			text = "FECHA: 2024-03-15 14:30"
		})

		It("should parse the date and time", func() {
			Expect(info.Value).NotTo(BeNil())
			Expect(*info.Value).To(Equal(time.Date(2024, 3, 15, 14, 30, 0, 0, time.UTC)))
			Expect(info.Confidence).To(Equal(0.95))
			Expect(info.Raw).To(Equal("2024-03-15 14:30"))
		})
	})

	When("the text has a year-first slashed date", func() {
		BeforeEach(func() {
			text = "2024/3/5"
		})

		It("should parse it", func() {
			Expect(*info.Value).To(Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
			Expect(info.Confidence).To(Equal(0.9))
		})
	})

	When("the text has a day-first date", func() {
		BeforeEach(func() {
			text = "15/03/2024"
		})

		It("should read the day first", func() {
			Expect(*info.Value).To(Equal(time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC)))
			Expect(info.Confidence).To(Equal(0.85))
		})
	})

	When("the text has a two-digit year", func() {
		It("should pivot into the 2000s below 50", func() {
			Expect(ExtractDate("15/03/24").Value.Year()).To(Equal(2024))
		})

		It("should pivot into the 1900s from 50", func() {
			Expect(ExtractDate("15/03/99").Value.Year()).To(Equal(1999))
		})
	})

	When("the text has several formats", func() {
		BeforeEach(func() {
			text = "15/03/2024\n2024-03-16"
		})

		It("should prefer the more specific format", func() {
			Expect(info.Value.Day()).To(Equal(16))
		})
	})

	When("the date is not a real calendar day", func() {
		BeforeEach(func() {
			text = "31/02/2024"
		})

		It("should return no value", func() {
			Expect(info.Value).To(BeNil())
		})
	})
})

var _ = Describe("ExtractTotal", func() {
	It("should take the label closest to the bottom", func() {
		totals := ExtractTotal([]string{"SUBTOTAL 10.000", "TOTAL 10.000", "EFECTIVO 20.000", "CAMBIO 10.000"})
		Expect(totals.Total).To(Equal(int64(10000)))
		Expect(totals.Confidence).To(Equal(0.95))
	})

	It("should fall back to subtotal lines with lower confidence", func() {
		totals := ExtractTotal([]string{"ITEM 8.000", "SUBTOTAL 8.000"})
		Expect(totals.Total).To(Equal(int64(8000)))
		Expect(totals.Confidence).To(Equal(0.6))
	})

	It("should read VALOR PAGADO", func() {
		Expect(ExtractTotal([]string{"VALOR PAGADO: $12.300"}).Total).To(Equal(int64(12300)))
	})

	It("should return zero when no total is printed", func() {
		Expect(ExtractTotal([]string{"LECHE 4.500"})).To(Equal(Totals{}))
	})
})
