// Package assembler builds the provider payload for a ranking attempt.
package assembler

import (
	"encoding/json"
	"strings"
	"unicode/utf8"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const maxCompressedTags = 8

type Options struct {
	DescriptionMaxChars int
	CompressedDescChars int
}

// Payload is one serialized provider request.
type Payload struct {
	System         string
	Prompt         string
	Compressed     bool
	Bytes          int
	CandidateCount int
}

type candidateView struct {
	Handle      string              `json:"handle"`
	Title       string              `json:"title"`
	ProductType string              `json:"type,omitempty"`
	Vendor      string              `json:"vendor,omitempty"`
	Price       float64             `json:"price,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
	Available   bool                `json:"available"`
	Description string              `json:"desc,omitempty"`
	Sizes       []string            `json:"sizes,omitempty"`
	Colors      []string            `json:"colors,omitempty"`
	Materials   []string            `json:"materials,omitempty"`
	Options     map[string][]string `json:"options,omitempty"`
	ItemIndex   *int                `json:"itemIndex,omitempty"`
}

type promptView struct {
	Intent             string                  `json:"intent"`
	ResultCount        int                     `json:"resultCount"`
	VariantConstraints map[string]string       `json:"variantConstraints,omitempty"`
	VariantPreferences map[string]string       `json:"variantPreferences,omitempty"`
	IncludeTerms       []string                `json:"includeTerms,omitempty"`
	AvoidTerms         []string                `json:"avoidTerms,omitempty"`
	Constraints        *models.HardConstraints `json:"hardConstraints,omitempty"`
	Candidates         []candidateView         `json:"candidates"`
}

// Build serializes the request over the given candidate set. The candidate
// set may be narrower than req.Candidates after a shrink.
func Build(req models.RankingRequest, candidates []models.ProductCandidate, compressed bool, opts Options) Payload {
	view := promptView{
		Intent:             req.Intent,
		ResultCount:        req.ResultCount,
		VariantConstraints: req.VariantConstraints,
		VariantPreferences: req.VariantPreferences,
		IncludeTerms:       req.IncludeTerms,
		AvoidTerms:         req.AvoidTerms,
		Constraints:        req.Constraints,
		Candidates:         make([]candidateView, 0, len(candidates)),
	}

	descLimit := opts.DescriptionMaxChars
	if compressed {
		descLimit = opts.CompressedDescChars
	}

	for _, c := range candidates {
		cv := candidateView{
			Handle:      c.Handle,
			Title:       c.Title,
			ProductType: c.ProductType,
			Vendor:      c.Vendor,
			Price:       c.Price,
			Tags:        c.Tags,
			Available:   c.Available,
			Description: truncate(c.Description, descLimit),
			Sizes:       c.Sizes,
			Colors:      c.Colors,
			Materials:   c.Materials,
			ItemIndex:   c.ItemIndex,
		}
		if compressed {
			if len(cv.Tags) > maxCompressedTags {
				cv.Tags = cv.Tags[:maxCompressedTags]
			}
		} else {
			cv.Options = c.OptionValues
		}
		view.Candidates = append(view.Candidates, cv)
	}

	// Marshal only fails on unsupported types, none of which are reachable here.
	body, _ := json.Marshal(view)

	system := systemPrompt
	if req.IsBundle() {
		system = bundleSystemPrompt
	}

	return Payload{
		System:         system,
		Prompt:         string(body),
		Compressed:     compressed,
		Bytes:          len(body),
		CandidateCount: len(candidates),
	}
}

// Size is the uncompressed payload size in bytes, used for the timeout and
// compression decisions.
func Size(req models.RankingRequest, candidates []models.ProductCandidate, opts Options) int {
	return Build(req, candidates, false, opts).Bytes
}

func truncate(s string, limit int) string {
	s = strings.TrimSpace(s)
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}

const systemPrompt = `You rank catalog products for a shopper.
Return ONLY a JSON object of this shape:
{"trustFallback": boolean,
 "selected": [{"handle": string, "label": "exact"|"alternative", "score": number 0-100,
   "evidence": {"matchedHardTerms": [string], "matchedFacets": {"size": [string], "color": [string], "material": [string]}, "fieldsUsed": [string]},
   "reason": string}]}
Rules:
- Use only handles from the candidate list. Never repeat a handle.
- Select at most resultCount items, best first.
- When hardConstraints.trustFallback is false and hardTerms is non-empty, every item must list at least one matched hard term that appears in its title, type, tags or description.
- Never select an item containing an avoid term.
- If nothing matches exactly and trustFallback is allowed, return the closest items labeled "alternative" and set trustFallback to true.`

const bundleSystemPrompt = `You assemble a multi-item bundle from catalog products for a shopper.
Each candidate carries an itemIndex naming the bundle item it belongs to.
Return ONLY a JSON object of this shape:
{"trustFallback": boolean,
 "selected_by_item": [{"itemIndex": integer, "handle": string, "label": "exact"|"alternative", "score": number 0-100,
   "evidence": {"matchedHardTerms": [string], "matchedFacets": {"size": [string], "color": [string], "material": [string]}, "fieldsUsed": [string]},
   "reason": string}]}
Rules:
- Pick the best product for every itemIndex before adding alternates for any item.
- An item with a quantity above 1 needs that many distinct products before any item gets alternates.
- A handle may only be used with the itemIndex of its own candidate entry. Never repeat a handle.
- Select at most resultCount items in total and respect each item's budgetMax where possible.
- Never select an item containing an avoid term.`
