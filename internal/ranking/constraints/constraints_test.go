package constraints

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

var testPool = map[string]models.ProductCandidate{
	"linen-shirt": {
		Handle:      "linen-shirt",
		Title:       "Relaxed Linen Shirt",
		ProductType: "Shirt",
		Tags:        []string{"summer", "breathable"},
		Sizes:       []string{"S", "M"},
		Colors:      []string{"White"},
	},
	"cotton-shirt": {
		Handle:       "cotton-shirt",
		Title:        "Oxford Cotton Shirt",
		ProductType:  "Shirt",
		OptionValues: map[string][]string{"Size": {"L"}, "Colour": {"Blue"}},
	},
	"leather-belt": {
		Handle:      "leather-belt",
		Title:       "Leather Belt",
		Description: "Full grain leather, made in Italy",
	},
}

func sel(handle string, terms ...string) models.SelectedItem {
	return models.SelectedItem{
		Handle:   handle,
		Label:    models.LabelExact,
		Evidence: models.Evidence{MatchedHardTerms: terms},
	}
}

func handles(items []models.SelectedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Handle)
	}
	return out
}

func TestTextMatches(t *testing.T) {
	tests := []struct {
		text string
		term string
		want bool
	}{
		{"relaxed linen shirt", "linen", true},
		{"relaxed linen shirt", "LINEN SHIRT", true},
		{"relaxed linen shirt summer", "linen summer", true},
		{"relaxed linen shirt", "linen trousers", false},
		{"a c b", "a b", false},
		{"anything", "  ", false},
		{"a red dress", "to red", true},
	}
	for _, tt := range tests {
		t.Run(tt.term, func(t *testing.T) {
			assert.Equal(t, tt.want, TextMatches(tt.text, tt.term))
		})
	}
}

func TestEnforce_HardTerms(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{HardTerms: []string{"linen"}}}
	items := []models.SelectedItem{
		sel("linen-shirt", "linen"),
		sel("cotton-shirt", "linen"),
	}

	res, err := Enforce(items, false, req, testPool)
	require.NoError(t, err)
	assert.Equal(t, []string{"linen-shirt"}, handles(res.Items))
	assert.False(t, res.TrustFallback)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, RuleHardTermUnmatched, res.Rejected[0].Rule)

	for _, it := range res.Items {
		require.NotEmpty(t, it.Evidence.MatchedHardTerms)
		for _, term := range it.Evidence.MatchedHardTerms {
			assert.True(t, TextMatches(testPool[it.Handle].SearchText(), term))
		}
	}
}

func TestEnforce_DeclaredTermsNotHardTermsAreIgnored(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{HardTerms: []string{"linen"}}}

	res, err := Enforce([]models.SelectedItem{sel("linen-shirt", "breathable")}, false, req, testPool)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, []string{"linen"}, res.Items[0].Evidence.MatchedHardTerms)
}

func TestEnforce_AvoidTermsAlwaysReject(t *testing.T) {
	req := models.RankingRequest{
		AvoidTerms:  []string{"Leather"},
		Constraints: &models.HardConstraints{TrustFallback: true},
	}

	res, err := Enforce([]models.SelectedItem{sel("leather-belt"), sel("linen-shirt")}, true, req, testPool)
	require.NoError(t, err)
	assert.Equal(t, []string{"linen-shirt"}, handles(res.Items))

	_, err = Enforce([]models.SelectedItem{sel("leather-belt")}, true, req, testPool)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, RuleAllAvoided, v.Rule)
}

func TestEnforce_RelaxesWhenEverythingFails(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{HardTerms: []string{"silk"}}}

	res, err := Enforce([]models.SelectedItem{sel("linen-shirt", "silk"), sel("cotton-shirt", "silk")}, false, req, testPool)
	require.NoError(t, err)
	assert.True(t, res.Relaxed)
	assert.True(t, res.TrustFallback)
	assert.Equal(t, []string{"linen-shirt", "cotton-shirt"}, handles(res.Items))
	for _, it := range res.Items {
		assert.Equal(t, models.LabelAlternative, it.Label)
	}
}

func TestEnforce_Facets(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{
		HardFacets: models.HardFacets{Size: []string{"l", "xl"}, Color: []string{"blue"}},
	}}

	res, err := Enforce([]models.SelectedItem{sel("linen-shirt"), sel("cotton-shirt")}, false, req, testPool)
	require.NoError(t, err)
	assert.Equal(t, []string{"cotton-shirt"}, handles(res.Items))
	assert.Equal(t, []string{"l"}, res.Items[0].Evidence.MatchedFacets.Size)
	assert.Equal(t, []string{"blue"}, res.Items[0].Evidence.MatchedFacets.Color)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, RuleFacetPrefix+":size", res.Rejected[0].Rule)
}

func TestEnforce_TrustFallbackSkipsHardChecks(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{HardTerms: []string{"silk"}, TrustFallback: true}}

	res, err := Enforce([]models.SelectedItem{sel("cotton-shirt")}, true, req, testPool)
	require.NoError(t, err)
	assert.Len(t, res.Items, 1)
	assert.False(t, res.Relaxed)
}

func TestEnforce_BundleSlotTerms(t *testing.T) {
	slotted := func(handle string, slot int) models.ProductCandidate {
		c := testPool[handle]
		c.ItemIndex = models.IntPtr(slot)
		return c
	}
	req := models.RankingRequest{
		Candidates: []models.ProductCandidate{
			slotted("linen-shirt", 0),
			slotted("leather-belt", 1),
			slotted("cotton-shirt", 1),
		},
		Constraints: &models.HardConstraints{
			HardTerms: []string{"shirt"},
			BundleItems: []models.BundleItem{
				{HardTerms: []string{"shirt"}},
				{HardTerms: []string{"belt"}},
			},
		},
	}

	belt := sel("leather-belt")
	belt.ItemIndex = models.IntPtr(1)
	// Declared under the belt slot but sourced for the shirt slot.
	linen := sel("linen-shirt", "shirt")
	linen.ItemIndex = models.IntPtr(1)
	// Sourced for the belt slot, so the belt terms apply.
	cotton := sel("cotton-shirt")
	cotton.ItemIndex = models.IntPtr(0)

	res, err := Enforce([]models.SelectedItem{belt, linen, cotton}, false, req, testPool)
	require.NoError(t, err)
	assert.Equal(t, []string{"leather-belt", "linen-shirt"}, handles(res.Items))
	assert.Equal(t, []string{"shirt"}, res.Items[1].Evidence.MatchedHardTerms)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, Rejection{Handle: "cotton-shirt", Rule: RuleHardTermUnmatched}, res.Rejected[0])
}
