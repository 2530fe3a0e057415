package parser

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrParserNotFound is returned when a forced parser key is not registered.
var ErrParserNotFound = errors.New("parser not found")

// DefaultConfirmThreshold is the detection score below which the store
// should be confirmed by the user before it is applied.
const DefaultConfirmThreshold = 0.7

type RegistryConfig struct {
	ConfirmThreshold float64
}

// Registry owns the parser variants. It is built once and is read-only
// afterwards, so it is safe for concurrent use.
type Registry struct {
	parsers   []Parser
	byKey     map[string]Parser
	fallback  Parser
	threshold float64
	now       func() time.Time
}

// Confirmation is the outcome of DetectWithConfirmation.
type Confirmation struct {
	// Detected is the best result, nil when nothing but the fallback matched.
	Detected          *DetectionResult  `json:"detected"`
	Results           []DetectionResult `json:"results"`
	NeedsConfirmation bool              `json:"needs_confirmation"`
	// Suggested is the key Parse would dispatch to.
	Suggested string `json:"suggested"`
}

// NewRegistry registers variants in order followed by fallback, which is
// always last.
func NewRegistry(cfg RegistryConfig, fallback Parser, variants ...Parser) (*Registry, error) {
	if fallback == nil {
		return nil, errors.New("registry needs a fallback parser")
	}
	if cfg.ConfirmThreshold <= 0 {
		cfg.ConfirmThreshold = DefaultConfirmThreshold
	}

	r := &Registry{
		byKey:     make(map[string]Parser, len(variants)+1),
		fallback:  fallback,
		threshold: cfg.ConfirmThreshold,
		now:       time.Now,
	}
	all := append(append([]Parser{}, variants...), fallback)
	for _, p := range all {
		if _, dup := r.byKey[p.Key()]; dup {
			return nil, fmt.Errorf("parser %q registered twice", p.Key())
		}
		r.byKey[p.Key()] = p
		r.parsers = append(r.parsers, p)
	}
	return r, nil
}

// NewDefaultRegistry registers every supported store.
func NewDefaultRegistry(cfg RegistryConfig) *Registry {
	r, err := NewRegistry(cfg, NewGeneric(), NewD1(), NewARA(), NewExito(), NewDollarcity())
	if err != nil {
		panic(err)
	}
	return r
}

// Parsers lists the registered identities in registration order.
func (r *Registry) Parsers() []StoreIdentity {
	out := make([]StoreIdentity, 0, len(r.parsers))
	for _, p := range r.parsers {
		out = append(out, p.Identity())
	}
	return out
}

// Detect scores text against every parser and returns the hits, best first.
// Ties keep registration order.
func (r *Registry) Detect(text string) []DetectionResult {
	results := []DetectionResult{}
	for _, p := range r.parsers {
		if d := p.Detect(text); d != nil && d.Confidence > 0 {
			results = append(results, *d)
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Confidence > results[j].Confidence
	})
	return results
}

func (r *Registry) DetectWithConfirmation(text string) Confirmation {
	results := r.Detect(text)
	c := Confirmation{
		Results:           results,
		NeedsConfirmation: true,
		Suggested:         r.fallback.Key(),
	}
	if len(results) == 0 || results[0].StoreKey == r.fallback.Key() {
		return c
	}
	best := results[0]
	c.Detected = &best
	c.Suggested = best.StoreKey
	c.NeedsConfirmation = best.Confidence < r.threshold
	return c
}

// Parse runs the parser named by forceKey, or the best detected one when
// forceKey is empty. Without a forced key it always succeeds.
func (r *Registry) Parse(text, forceKey string) (*ParsedTicket, error) {
	var (
		p          Parser
		confidence float64
	)
	if forceKey != "" {
		var ok bool
		if p, ok = r.byKey[forceKey]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrParserNotFound, forceKey)
		}
		confidence = 1
	} else {
		p = r.fallback
		if results := r.Detect(text); len(results) > 0 {
			p = r.byKey[results[0].StoreKey]
			confidence = results[0].Confidence
		}
	}

	t := p.Parse(text)
	t.Meta.ParserUsed = p.Key()
	t.Meta.ParsedAt = r.now().UTC()
	if p.Key() != r.fallback.Key() && confidence < r.threshold {
		t.Meta.Warnings = append(t.Meta.Warnings,
			fmt.Sprintf("store detected with low confidence (%.2f); please confirm", confidence))
	}
	return t, nil
}
