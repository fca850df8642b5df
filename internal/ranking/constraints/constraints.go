// Package constraints re-verifies provider selections against the request's
// hard terms, hard facets and avoid terms using the candidates' own data.
package constraints

import (
	"strings"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/bundle"
)

const (
	RuleAvoidTerm         = "avoid_term"
	RuleHardTermUnmatched = "hard_term_unverified"
	RuleFacetPrefix       = "facet_unmatched"
	RuleAllAvoided        = "all_items_avoided"
)

type Violation struct {
	Rule string
}

func (v *Violation) Error() string { return "constraint violation: " + v.Rule }

type Rejection struct {
	Handle string
	Rule   string
}

type Result struct {
	Items         []models.SelectedItem
	TrustFallback bool
	Rejected      []Rejection
	// Relaxed is set when every item failed verification and the provider's
	// picks were surfaced as alternatives instead.
	Relaxed bool
}

// Enforce keeps the items whose own text backs up the provider's claims.
// Avoid terms always disqualify. Hard terms and facets are only enforced
// when trustFallback is false.
func Enforce(items []models.SelectedItem, trustFallback bool, req models.RankingRequest, pool map[string]models.ProductCandidate) (Result, error) {
	res := Result{TrustFallback: trustFallback}
	avoid := normalizeTerms(req.AllAvoidTerms())

	var facets models.HardFacets
	if req.Constraints != nil {
		facets = req.Constraints.HardFacets
	}

	var owners map[string][]int
	if req.IsBundle() {
		owners = bundle.Owners(req)
	}

	var softRejected []models.SelectedItem

	for _, item := range items {
		c, ok := pool[item.Handle]
		if !ok {
			continue
		}
		text := c.SearchText()

		if term, hit := containsAny(text, avoid); hit {
			res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleAvoidTerm + ":" + term})
			continue
		}

		if trustFallback {
			res.Items = append(res.Items, item)
			continue
		}

		hardTerms := termsFor(item, req, owners)
		if len(hardTerms) > 0 {
			verified := verifyTerms(text, item.Evidence.MatchedHardTerms, hardTerms)
			if len(verified) == 0 {
				res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleHardTermUnmatched})
				softRejected = append(softRejected, item)
				continue
			}
			item.Evidence.MatchedHardTerms = verified
		}

		if !facets.Empty() {
			matched, missing := matchFacets(c, facets)
			if missing != "" {
				res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleFacetPrefix + ":" + missing})
				softRejected = append(softRejected, item)
				continue
			}
			item.Evidence.MatchedFacets = matched
		}

		res.Items = append(res.Items, item)
	}

	if len(res.Items) > 0 {
		return res, nil
	}
	if len(softRejected) == 0 {
		if len(items) == 0 {
			return res, nil
		}
		return res, &Violation{Rule: RuleAllAvoided}
	}

	// An imperfect answer beats an empty one.
	for _, item := range softRejected {
		item.Label = models.LabelAlternative
		res.Items = append(res.Items, item)
	}
	res.TrustFallback = true
	res.Relaxed = true
	return res, nil
}

// TextMatches reports whether term appears in text, either as a substring or
// with every word of three or more characters present.
func TextMatches(text, term string) bool {
	text = strings.ToLower(text)
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return false
	}
	if strings.Contains(text, term) {
		return true
	}

	significant := 0
	for _, word := range strings.Fields(term) {
		if len([]rune(word)) < 3 {
			continue
		}
		significant++
		if !strings.Contains(text, word) {
			return false
		}
	}
	return significant > 0
}

// termsFor returns the hard terms of the slot that owns the handle in bundle
// mode, else the request's. A mislabeled slot is resolved the same way the
// bundle resolver remaps it.
func termsFor(item models.SelectedItem, req models.RankingRequest, owners map[string][]int) []string {
	if req.IsBundle() {
		if slot, _, ok := bundle.SlotOf(item, owners[item.Handle]); ok {
			if terms := req.Constraints.BundleItems[slot].HardTerms; len(terms) > 0 {
				return terms
			}
		}
	}
	return req.HardTerms()
}

// verifyTerms checks the declared terms that name real hard terms, or all hard
// terms when none are declared, against the candidate text.
func verifyTerms(text string, declared, hardTerms []string) []string {
	hardSet := make(map[string]string, len(hardTerms))
	for _, h := range hardTerms {
		hardSet[strings.ToLower(strings.TrimSpace(h))] = h
	}

	var toCheck []string
	for _, d := range declared {
		if h, ok := hardSet[strings.ToLower(strings.TrimSpace(d))]; ok {
			toCheck = append(toCheck, h)
		}
	}
	if len(toCheck) == 0 {
		toCheck = hardTerms
	}

	var verified []string
	seen := make(map[string]struct{}, len(toCheck))
	for _, term := range toCheck {
		key := strings.ToLower(term)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		if TextMatches(text, term) {
			verified = append(verified, term)
		}
	}
	return verified
}

// matchFacets returns the matched values per facet, or the name of the first
// required facet the candidate does not offer.
func matchFacets(c models.ProductCandidate, required models.HardFacets) (models.HardFacets, string) {
	var matched models.HardFacets

	checks := []struct {
		name     string
		required []string
		offered  []string
		out      *[]string
	}{
		{"size", required.Size, offeredValues(c, c.Sizes, "size"), &matched.Size},
		{"color", required.Color, offeredValues(c, c.Colors, "color", "colour"), &matched.Color},
		{"material", required.Material, offeredValues(c, c.Materials, "material"), &matched.Material},
	}

	for _, chk := range checks {
		if len(chk.required) == 0 {
			continue
		}
		for _, want := range chk.required {
			if valueOffered(want, chk.offered) {
				*chk.out = append(*chk.out, want)
			}
		}
		if len(*chk.out) == 0 {
			return matched, chk.name
		}
	}
	return matched, ""
}

func offeredValues(c models.ProductCandidate, direct []string, optionNames ...string) []string {
	out := append([]string{}, direct...)
	for name, values := range c.OptionValues {
		lname := strings.ToLower(name)
		for _, want := range optionNames {
			if lname == want {
				out = append(out, values...)
			}
		}
	}
	return out
}

func valueOffered(want string, offered []string) bool {
	w := strings.ToLower(strings.TrimSpace(want))
	if w == "" {
		return false
	}
	for _, o := range offered {
		if strings.ToLower(strings.TrimSpace(o)) == w {
			return true
		}
	}
	return false
}

func normalizeTerms(terms []string) []string {
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if t = strings.ToLower(strings.TrimSpace(t)); t != "" {
			out = append(out, t)
		}
	}
	return out
}

func containsAny(text string, terms []string) (string, bool) {
	for _, t := range terms {
		if strings.Contains(text, t) {
			return t, true
		}
	}
	return "", false
}
