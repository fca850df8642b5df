package fallback

import (
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

func TestScore(t *testing.T) {
	c := models.ProductCandidate{
		Handle:       "tee",
		Available:    true,
		Sizes:        []string{"M", "L"},
		Colors:       []string{"Navy Blue"},
		OptionValues: map[string][]string{"Fit": {"Slim"}, "Sleeve": {"Short"}},
	}

	tests := []struct {
		name  string
		prefs map[string]string
		want  int
	}{
		{name: "no preferences", prefs: nil, want: 10},
		{name: "one match", prefs: map[string]string{"size": "m"}, want: 16},
		{name: "containment either direction", prefs: map[string]string{"color": "blue"}, want: 16},
		{name: "no match", prefs: map[string]string{"size": "s"}, want: 10},
		{name: "three matches get bonus", prefs: map[string]string{"size": "L", "color": "navy", "fit": "slim"}, want: 10 + 18 + 4},
		{name: "capped at three", prefs: map[string]string{"size": "L", "color": "navy", "fit": "slim", "sleeve": "short"}, want: 10 + 18 + 4},
		{name: "unknown key checks all values", prefs: map[string]string{"style": "slim"}, want: 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(c, tt.prefs))
		})
	}

	c.Available = false
	assert.Equal(t, 0, Score(c, nil))
}

func TestRank_Order(t *testing.T) {
	candidates := []models.ProductCandidate{
		{Handle: "out-of-stock", Available: false, Tags: []string{"a", "b", "c"}, Description: "x"},
		{Handle: "plain-b", Available: true},
		{Handle: "plain-a", Available: true},
		{Handle: "tagged", Available: true, Tags: []string{"a"}},
		{Handle: "described", Available: true, Description: "long text"},
		{Handle: "preferred", Available: true, Sizes: []string{"M"}},
	}

	got := Rank(candidates, 10, map[string]string{"size": "M"})
	want := []string{"preferred", "tagged", "described", "plain-a", "plain-b", "out-of-stock"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Rank() mismatch (-want +got):\n%s", diff)
	}

	assert.Equal(t, want[:2], Rank(candidates, 2, map[string]string{"size": "M"}))
}

func TestRank_EdgeCases(t *testing.T) {
	assert.Empty(t, Rank(nil, 5, nil))
	assert.Empty(t, Rank([]models.ProductCandidate{{Handle: "a"}}, 0, nil))
}

func TestRank_DeterministicAndPure(t *testing.T) {
	var candidates []models.ProductCandidate
	for i := 0; i < 50; i++ {
		candidates = append(candidates, models.ProductCandidate{
			Handle:    fmt.Sprintf("item-%02d", (i*37)%50),
			Available: i%3 != 0,
			Tags:      make([]string, i%4),
			Colors:    []string{[]string{"red", "blue"}[i%2]},
		})
	}
	snapshot := append([]models.ProductCandidate(nil), candidates...)
	prefs := map[string]string{"color": "red", "size": "m"}

	first := Rank(candidates, 20, prefs)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, Rank(candidates, 20, prefs))
	}
	assert.Len(t, first, 20)
	if diff := cmp.Diff(snapshot, candidates); diff != "" {
		t.Errorf("Rank mutated its input:\n%s", diff)
	}
}
