// Package matching reconciles detected receipt item names with a user's
// product catalog.
package matching

import (
	"context"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"
)

type Status string

const (
	StatusMatched Status = "MATCHED"
	StatusPending Status = "PENDING"
	StatusNew     Status = "NEW"
)

// Product is a catalog entry. Catalogs passed to the Engine must belong to a
// single user.
type Product struct {
	ID       string
	Name     string
	Category string
	Brand    string
}

type ProductMatch struct {
	ProductID  string  `json:"product_id"`
	Name       string  `json:"name"`
	Category   string  `json:"category"`
	Brand      string  `json:"brand"`
	Similarity float64 `json:"similarity"`
}

type MatchResult struct {
	DetectedName   string         `json:"detected_name"`
	NormalizedName string         `json:"normalized_name"`
	Status         Status         `json:"status"`
	Match          *ProductMatch  `json:"match"`
	Suggestions    []ProductMatch `json:"suggestions"`
}

// Thresholds are the tuning knobs of the matcher.
type Thresholds struct {
	// AutoAccept is the score at or above which the best candidate is
	// matched without review.
	AutoAccept float64
	// MinSimilarity is the lowest score kept as a candidate.
	MinSimilarity float64
	// Limit caps the number of candidates; 0 means no cap.
	Limit int
}

func DefaultThresholds() Thresholds {
	return Thresholds{AutoAccept: 0.8, MinSimilarity: 0.3, Limit: 5}
}

// SimilarityFunc scores two normalized names from 0 to 1.
type SimilarityFunc func(a, b string) float64

type Option func(*Engine)

// WithSimilarity replaces the trigram scorer.
func WithSimilarity(fn SimilarityFunc) Option {
	return func(e *Engine) {
		e.similarity = fn
	}
}

// Engine is stateless apart from its configuration and safe for concurrent use.
type Engine struct {
	thresholds Thresholds
	similarity SimilarityFunc
}

func NewEngine(t Thresholds, opts ...Option) *Engine {
	e := &Engine{thresholds: t, similarity: TrigramSimilarity}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) Thresholds() Thresholds {
	return e.thresholds
}

type indexedProduct struct {
	Product
	normalized string
}

// index normalizes every catalog name once.
func index(catalog []Product) []indexedProduct {
	out := make([]indexedProduct, len(catalog))
	for i, p := range catalog {
		out[i] = indexedProduct{Product: p, normalized: NormalizeName(p.Name)}
	}
	return out
}

// FindSimilar ranks catalog products against name, best first. Ties keep
// catalog order.
func (e *Engine) FindSimilar(catalog []Product, name string) []ProductMatch {
	return e.findSimilar(index(catalog), NormalizeName(name))
}

func (e *Engine) findSimilar(catalog []indexedProduct, normalized string) []ProductMatch {
	matches := []ProductMatch{}
	for _, p := range catalog {
		score := e.similarity(normalized, p.normalized)
		if score < e.thresholds.MinSimilarity {
			continue
		}
		matches = append(matches, ProductMatch{
			ProductID:  p.ID,
			Name:       p.Name,
			Category:   p.Category,
			Brand:      p.Brand,
			Similarity: score,
		})
	}
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})
	if e.thresholds.Limit > 0 && len(matches) > e.thresholds.Limit {
		matches = matches[:e.thresholds.Limit]
	}
	return matches
}

// Match classifies detectedName against catalog. An empty catalog yields NEW.
func (e *Engine) Match(catalog []Product, detectedName string) MatchResult {
	return e.match(index(catalog), detectedName)
}

func (e *Engine) match(catalog []indexedProduct, detectedName string) MatchResult {
	normalized := NormalizeName(detectedName)
	res := MatchResult{
		DetectedName:   detectedName,
		NormalizedName: normalized,
		Status:         StatusNew,
		Suggestions:    []ProductMatch{},
	}

	candidates := e.findSimilar(catalog, normalized)
	switch {
	case len(candidates) == 0:
	case candidates[0].Similarity >= e.thresholds.AutoAccept:
		best := candidates[0]
		res.Status = StatusMatched
		res.Match = &best
		res.Suggestions = candidates[1:]
	default:
		res.Status = StatusPending
		res.Suggestions = candidates
	}
	return res
}

// MatchAll matches every name against one catalog in parallel. Results are
// in the order of names.
func (e *Engine) MatchAll(ctx context.Context, catalog []Product, names []string) ([]MatchResult, error) {
	idx := index(catalog)
	results := make([]MatchResult, len(names))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, name := range names {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = e.match(idx, name)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
