package matching

import (
	"regexp"
	"strings"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

var (
	sizeTokenRe = regexp.MustCompile(`\b\d+(?:[.,]\d+)?\s*(?:kgs?|grs?|g|ml|lts?|l|cc|oz|und?|unid)\b`)
	nonAlnumRe  = regexp.MustCompile(`[^a-z0-9]+`)
)

// noiseWords are unit and packaging words that say nothing about which
// product a line is.
var noiseWords = map[string]struct{}{
	"kg": {}, "kgs": {}, "gr": {}, "grs": {}, "g": {}, "ml": {}, "l": {}, "lt": {}, "lts": {},
	"cc": {}, "oz": {}, "un": {}, "und": {}, "unid": {}, "unidad": {}, "unidades": {},
	"paq": {}, "paquete": {}, "pack": {}, "caja": {}, "bolsa": {}, "sobre": {},
	"botella": {}, "lata": {}, "frasco": {}, "x": {},
}

// NormalizeName folds a product name into the form used for comparison:
// lower case, no accents, no sizes, no packaging words, single spaces.
func NormalizeName(name string) string {
	s := textnorm.Fold(name)
	s = sizeTokenRe.ReplaceAllString(s, " ")
	s = nonAlnumRe.ReplaceAllString(s, " ")

	words := strings.Fields(s)
	kept := words[:0]
	for _, w := range words {
		if _, noise := noiseWords[w]; noise {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}
