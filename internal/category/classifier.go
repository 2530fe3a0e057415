// Package category guesses a catalog category for a new product from its
// name using keyword rules.
package category

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/zombor/grocery-tracker/internal/textnorm"
)

// Fallback is the category given to names no rule matches.
const Fallback = "Otros"

// Rule assigns Category to names matching Regex.
type Rule struct {
	Category string
	Regex    string
	Priority int // higher is checked first
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// Classifier is read-only after construction.
type Classifier struct {
	rules []compiledRule
}

func NewClassifier(rules []Rule) (*Classifier, error) {
	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		expr := r.Regex
		if !strings.HasPrefix(expr, "(?i)") {
			expr = "(?i)" + expr
		}
		re, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("failed to compile rule %s: %w", r.Category, err)
		}
		compiled = append(compiled, compiledRule{Rule: r, re: re})
	}
	sort.SliceStable(compiled, func(i, j int) bool {
		return compiled[i].Priority > compiled[j].Priority
	})
	return &Classifier{rules: compiled}, nil
}

// NewDefaultClassifier builds a Classifier from DefaultRules.
func NewDefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultRules())
	if err != nil {
		panic(err)
	}
	return c
}

// DetectCategory returns the category of the highest-priority matching rule,
// or Fallback.
func (c *Classifier) DetectCategory(productName string) string {
	name := textnorm.Fold(productName)
	for _, r := range c.rules {
		if r.re.MatchString(name) {
			return r.Category
		}
	}
	return Fallback
}

// Categories lists every category the classifier can return, Fallback last.
func (c *Classifier) Categories() []string {
	seen := make(map[string]bool, len(c.rules))
	var out []string
	for _, r := range c.rules {
		if !seen[r.Category] {
			seen[r.Category] = true
			out = append(out, r.Category)
		}
	}
	return append(out, Fallback)
}
