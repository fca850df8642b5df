// Package fallback is the deterministic ranker used whenever the provider
// path cannot produce a valid selection.
package fallback

import (
	"sort"
	"strings"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const (
	availabilityScore = 10
	preferenceScore   = 6
	maxPreferenceHits = 3
	preferenceBonus   = 4
)

// Rank orders candidates by availability, preference score, tag count,
// description presence and finally handle, then truncates to resultCount.
// It never mutates its inputs.
func Rank(candidates []models.ProductCandidate, resultCount int, prefs map[string]string) []string {
	if resultCount <= 0 || len(candidates) == 0 {
		return []string{}
	}

	type scored struct {
		handle    string
		available bool
		score     int
		tags      int
		hasDesc   bool
	}

	rows := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		rows = append(rows, scored{
			handle:    c.Handle,
			available: c.Available,
			score:     Score(c, prefs),
			tags:      len(c.Tags),
			hasDesc:   strings.TrimSpace(c.Description) != "",
		})
	}

	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.available != b.available {
			return a.available
		}
		if a.score != b.score {
			return a.score > b.score
		}
		if a.tags != b.tags {
			return a.tags > b.tags
		}
		if a.hasDesc != b.hasDesc {
			return a.hasDesc
		}
		return a.handle < b.handle
	})

	if len(rows) > resultCount {
		rows = rows[:resultCount]
	}
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.handle
	}
	return out
}

// Score is +10 for availability plus +6 per matched preference, counting at
// most three matches, with a +4 bonus once three match.
func Score(c models.ProductCandidate, prefs map[string]string) int {
	score := 0
	if c.Available {
		score += availabilityScore
	}

	hits := 0
	for key, want := range prefs {
		if matchesPreference(c, key, want) {
			hits++
		}
	}
	if hits > maxPreferenceHits {
		hits = maxPreferenceHits
	}
	score += hits * preferenceScore
	if hits >= maxPreferenceHits {
		score += preferenceBonus
	}
	return score
}

func matchesPreference(c models.ProductCandidate, key, want string) bool {
	want = strings.ToLower(strings.TrimSpace(want))
	if want == "" {
		return false
	}
	for _, v := range optionValues(c, key) {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" {
			continue
		}
		if strings.Contains(v, want) || strings.Contains(want, v) {
			return true
		}
	}
	return false
}

// optionValues returns the values offered for an option name, or every
// offered value when the name is unknown to the candidate.
func optionValues(c models.ProductCandidate, key string) []string {
	k := strings.ToLower(strings.TrimSpace(key))

	var out []string
	switch k {
	case "size":
		out = append(out, c.Sizes...)
	case "color", "colour":
		out = append(out, c.Colors...)
	case "material":
		out = append(out, c.Materials...)
	}
	for name, values := range c.OptionValues {
		if strings.EqualFold(name, k) || (k == "color" && strings.EqualFold(name, "colour")) {
			out = append(out, values...)
		}
	}
	if len(out) > 0 {
		return out
	}

	for _, values := range c.OptionValues {
		out = append(out, values...)
	}
	out = append(out, c.Sizes...)
	out = append(out, c.Colors...)
	out = append(out, c.Materials...)
	return out
}
