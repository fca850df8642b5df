package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidRequest marks caller programming errors. It is the only error
// the ranking engine returns.
var ErrInvalidRequest = errors.New("INVALID_RANKING_REQUEST")

type Source string

const (
	SourceProvider Source = "provider"
	SourceFallback Source = "fallback"
)

type Label string

const (
	LabelExact       Label = "exact"
	LabelAlternative Label = "alternative"
)

// ProductCandidate is a read-only catalog item eligible for ranking.
type ProductCandidate struct {
	Handle       string              `json:"handle"`
	Title        string              `json:"title"`
	ProductType  string              `json:"productType,omitempty"`
	Vendor       string              `json:"vendor,omitempty"`
	Price        float64             `json:"price,omitempty"`
	Tags         []string            `json:"tags,omitempty"`
	Available    bool                `json:"available"`
	Description  string              `json:"description,omitempty"`
	Sizes        []string            `json:"sizes,omitempty"`
	Colors       []string            `json:"colors,omitempty"`
	Materials    []string            `json:"materials,omitempty"`
	OptionValues map[string][]string `json:"optionValues,omitempty"`
	// ItemIndex is the bundle slot this candidate was sourced for.
	ItemIndex *int `json:"itemIndex,omitempty"`
}

// SearchText is the lowercased text that hard terms and avoid terms are
// checked against.
func (c ProductCandidate) SearchText() string {
	parts := []string{c.Title, c.ProductType, strings.Join(c.Tags, " "), c.Description}
	return strings.ToLower(strings.Join(parts, " "))
}

type HardFacets struct {
	Size     []string `json:"size,omitempty"`
	Color    []string `json:"color,omitempty"`
	Material []string `json:"material,omitempty"`
}

func (f HardFacets) Empty() bool {
	return len(f.Size) == 0 && len(f.Color) == 0 && len(f.Material) == 0
}

// BundleItem is one slot of a multi-slot request.
type BundleItem struct {
	HardTerms []string `json:"hardTerms,omitempty"`
	Quantity  int      `json:"quantity,omitempty"`
	BudgetMax *float64 `json:"budgetMax,omitempty"`
}

type HardConstraints struct {
	HardTerms     []string     `json:"hardTerms,omitempty"`
	HardFacets    HardFacets   `json:"hardFacets,omitempty"`
	AvoidTerms    []string     `json:"avoidTerms,omitempty"`
	TrustFallback bool         `json:"trustFallback"`
	BundleItems   []BundleItem `json:"bundleItems,omitempty"`
}

type RankingRequest struct {
	Intent             string             `json:"intent"`
	Candidates         []ProductCandidate `json:"candidates"`
	ResultCount        int                `json:"resultCount"`
	VariantConstraints map[string]string  `json:"variantConstraints,omitempty"`
	VariantPreferences map[string]string  `json:"variantPreferences,omitempty"`
	IncludeTerms       []string           `json:"includeTerms,omitempty"`
	AvoidTerms         []string           `json:"avoidTerms,omitempty"`
	Constraints        *HardConstraints   `json:"constraints,omitempty"`
	// StrictGateHandles narrows the fallback scope when set.
	StrictGateHandles []string `json:"strictGateHandles,omitempty"`
}

// IsBundle reports whether the request ranks more than one slot.
func (r RankingRequest) IsBundle() bool {
	return r.Constraints != nil && len(r.Constraints.BundleItems) > 1
}

func (r RankingRequest) HardTerms() []string {
	if r.Constraints == nil {
		return nil
	}
	return r.Constraints.HardTerms
}

func (r RankingRequest) TrustFallback() bool {
	return r.Constraints != nil && r.Constraints.TrustFallback
}

// AllAvoidTerms merges request-level and constraint-level avoid terms.
func (r RankingRequest) AllAvoidTerms() []string {
	out := append([]string{}, r.AvoidTerms...)
	if r.Constraints != nil {
		out = append(out, r.Constraints.AvoidTerms...)
	}
	return out
}

// Preferences merges variant constraints and preferences; constraints win.
func (r RankingRequest) Preferences() map[string]string {
	out := make(map[string]string, len(r.VariantPreferences)+len(r.VariantConstraints))
	for k, v := range r.VariantPreferences {
		out[k] = v
	}
	for k, v := range r.VariantConstraints {
		out[k] = v
	}
	return out
}

// Validate rejects malformed requests before any provider work starts.
func (r RankingRequest) Validate() error {
	if r.ResultCount < 0 {
		return fmt.Errorf("%w: resultCount must be >= 0, got %d", ErrInvalidRequest, r.ResultCount)
	}

	seen := make(map[string]struct{}, len(r.Candidates))
	for i, c := range r.Candidates {
		if strings.TrimSpace(c.Handle) == "" {
			return fmt.Errorf("%w: candidate %d has an empty handle", ErrInvalidRequest, i)
		}
		if _, dup := seen[c.Handle]; dup {
			return fmt.Errorf("%w: duplicate handle %q", ErrInvalidRequest, c.Handle)
		}
		seen[c.Handle] = struct{}{}
	}

	for _, h := range r.StrictGateHandles {
		if _, ok := seen[h]; !ok {
			return fmt.Errorf("%w: strict-gate handle %q is not in the candidate pool", ErrInvalidRequest, h)
		}
	}

	if r.IsBundle() {
		slots := len(r.Constraints.BundleItems)
		for _, c := range r.Candidates {
			if c.ItemIndex == nil {
				return fmt.Errorf("%w: bundle candidate %q has no itemIndex", ErrInvalidRequest, c.Handle)
			}
			if *c.ItemIndex < 0 || *c.ItemIndex >= slots {
				return fmt.Errorf("%w: candidate %q itemIndex %d outside %d bundle items", ErrInvalidRequest, c.Handle, *c.ItemIndex, slots)
			}
		}
	}

	return nil
}

type Evidence struct {
	MatchedHardTerms []string   `json:"matchedHardTerms"`
	MatchedFacets    HardFacets `json:"matchedFacets"`
	FieldsUsed       []string   `json:"fieldsUsed,omitempty"`
}

type SelectedItem struct {
	Handle    string   `json:"handle"`
	Label     Label    `json:"label"`
	Score     float64  `json:"score"`
	Evidence  Evidence `json:"evidence"`
	Reason    string   `json:"reason"`
	ItemIndex *int     `json:"itemIndex,omitempty"`
}

// RankingOutcome is the only value handed back to callers.
type RankingOutcome struct {
	SelectedHandles []string `json:"selectedHandles"`
	Reasoning       string   `json:"reasoning,omitempty"`
	TrustFallback   bool     `json:"trustFallback"`
	Source          Source   `json:"source"`
	FailureReason   string   `json:"failureReason,omitempty"`
	RankingID       string   `json:"rankingId"`
	Attempts        int      `json:"attempts"`
	OverBudget      bool     `json:"overBudget,omitempty"`
	MissingSlots    []int    `json:"missingSlots,omitempty"`
	CacheHit        bool     `json:"cacheHit,omitempty"`
}

// IntPtr is a convenience for ItemIndex literals.
func IntPtr(i int) *int { return &i }
