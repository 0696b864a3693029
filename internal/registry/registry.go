package registry

import (
	"sync"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPlus Tier = "plus"
	TierPro  Tier = "pro"
)

var tierRank = map[Tier]int{
	TierFree: 0,
	TierPlus: 1,
	TierPro:  2,
}

// Document is one renderable document type. Sections is the template
// outline handed to the render service.
type Document struct {
	DocID    string
	Title    string
	Kind     string
	Tier     Tier
	Sections []string
	Enabled  bool
}

// Eligibility is what the status listing reports per document type.
type Eligibility struct {
	Tier    Tier   `json:"tier"`
	Enabled bool   `json:"enabled"`
	Locked  bool   `json:"locked"`
	Reason  string `json:"reason,omitempty"`
}

// Registry resolves effective eligibility: built-in defaults plus an
// operator overlay (enable/disable per doc). Overlay wins over default.
type Registry struct {
	mu      sync.RWMutex
	docs    map[string]Document
	order   []string
	overlay map[string]bool
}

func New(docs []Document) *Registry {
	r := &Registry{
		docs:    make(map[string]Document, len(docs)),
		overlay: make(map[string]bool),
	}
	for _, d := range docs {
		r.docs[d.DocID] = d
		r.order = append(r.order, d.DocID)
	}
	return r
}

// Default is the built-in document set.
func Default() *Registry {
	return New([]Document{
		{DocID: "executive-summary", Title: "Executive Summary", Kind: "executive_summary", Tier: TierFree, Enabled: true,
			Sections: []string{"overview", "problem", "solution", "ask"}},
		{DocID: "business-plan", Title: "Business Plan", Kind: "business_plan", Tier: TierPlus, Enabled: true,
			Sections: []string{"overview", "market", "product", "operations", "team", "financials"}},
		{DocID: "financial-forecast", Title: "Financial Forecast", Kind: "financial_forecast", Tier: TierPlus, Enabled: true,
			Sections: []string{"assumptions", "revenue", "costs", "cashflow"}},
		{DocID: "market-analysis", Title: "Market Analysis", Kind: "market_analysis", Tier: TierPro, Enabled: true,
			Sections: []string{"segments", "competitors", "positioning", "trends"}},
		{DocID: "pitch-outline", Title: "Pitch Outline", Kind: "pitch_outline", Tier: TierPro, Enabled: true,
			Sections: []string{"hook", "problem", "solution", "traction", "ask"}},
	})
}

func (r *Registry) Lookup(docID string) (Document, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[docID]
	return d, ok
}

// All returns every registered document in registration order.
func (r *Registry) All() []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Document, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.docs[id])
	}
	return out
}

// SetEnabled applies an operator overlay on top of the default.
func (r *Registry) SetEnabled(docID string, enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.overlay[docID] = enabled
}

func (r *Registry) enabled(d Document) bool {
	if v, ok := r.overlay[d.DocID]; ok {
		return v
	}
	return d.Enabled
}

// Eligibility resolves the effective status of one doc for a pack tier.
// Second return is false for unknown doc ids.
func (r *Registry) Eligibility(docID string, packTier Tier) (Eligibility, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.docs[docID]
	if !ok {
		return Eligibility{}, false
	}
	e := Eligibility{Tier: d.Tier, Enabled: r.enabled(d)}
	if !e.Enabled {
		e.Locked = true
		e.Reason = "document disabled"
	} else if tierRank[packTier] < tierRank[d.Tier] {
		e.Locked = true
		e.Reason = "requires " + string(d.Tier) + " tier"
	}
	return e, true
}

// Eligible reports whether the doc can be rendered for the pack tier.
func (r *Registry) Eligible(docID string, packTier Tier) bool {
	e, ok := r.Eligibility(docID, packTier)
	return ok && !e.Locked
}

// Visible returns the docs renderable for the pack tier, in order.
func (r *Registry) Visible(packTier Tier) []Document {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Document
	for _, id := range r.order {
		d := r.docs[id]
		if !r.enabled(d) {
			continue
		}
		if tierRank[packTier] < tierRank[d.Tier] {
			continue
		}
		out = append(out, d)
	}
	return out
}
