package matching

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("MatchResult JSON", func() {
	roundTrip := func(r MatchResult) MatchResult {
		data, err := json.Marshal(r)
		Expect(err).NotTo(HaveOccurred())
		var decoded MatchResult
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		return decoded
	}

	It("keeps a nil match and the suggestion order", func() {
		original := MatchResult{
			DetectedName:   "LECHE ENTERA 1L",
			NormalizedName: "leche entera",
			Status:         StatusPending,
			Suggestions: []ProductMatch{
				{ProductID: "p2", Name: "Leche Entera Alqueria", Category: "Lácteos", Similarity: 0.7142857142857143},
				{ProductID: "p1", Name: "Leche Deslactosada", Category: "Lácteos", Brand: "Alpina", Similarity: 0.3},
			},
		}
		Expect(roundTrip(original)).To(Equal(original))
	})

	It("keeps the accepted match", func() {
		best := ProductMatch{ProductID: "p1", Name: "Arroz Diana", Category: "Granos", Similarity: 0.8}
		original := MatchResult{
			DetectedName:   "ARROZ DIANA 500G",
			NormalizedName: "arroz diana",
			Status:         StatusMatched,
			Match:          &best,
			Suggestions:    []ProductMatch{best},
		}
		decoded := roundTrip(original)
		Expect(decoded).To(Equal(original))
		Expect(decoded.Match).NotTo(BeIdenticalTo(original.Match))
	})

	It("keeps an empty suggestion list empty rather than null", func() {
		original := MatchResult{DetectedName: "X", NormalizedName: "x", Status: StatusNew, Suggestions: []ProductMatch{}}
		Expect(roundTrip(original)).To(Equal(original))
	})
})
