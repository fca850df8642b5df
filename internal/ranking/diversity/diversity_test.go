package diversity

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

type item struct {
	handle, vendor, ptype string
	price                 float64
}

func poolOf(items ...item) ([]string, map[string]models.ProductCandidate) {
	ranked := make([]string, 0, len(items))
	pool := make(map[string]models.ProductCandidate, len(items))
	for _, it := range items {
		ranked = append(ranked, it.handle)
		pool[it.handle] = models.ProductCandidate{
			Handle:      it.handle,
			Vendor:      it.vendor,
			ProductType: it.ptype,
			Price:       it.price,
		}
	}
	return ranked, pool
}

func TestCapsFor(t *testing.T) {
	tests := []struct {
		target int
		want   Caps
	}{
		{target: 1, want: Caps{Vendor: 2, Type: 3, Bucket: 3}},
		{target: 6, want: Caps{Vendor: 2, Type: 3, Bucket: 3}},
		{target: 8, want: Caps{Vendor: 3, Type: 4, Bucket: 4}},
		{target: 12, want: Caps{Vendor: 4, Type: 5, Bucket: 6}},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("target_%d", tt.target), func(t *testing.T) {
			assert.Equal(t, tt.want, CapsFor(tt.target))
		})
	}
}

func TestPriceBucket(t *testing.T) {
	tests := []struct {
		price float64
		want  int
	}{
		{0, -1},
		{10, 0},
		{25, 1},
		{49.99, 1},
		{99, 2},
		{249, 3},
		{250, 4},
		{1000, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PriceBucket(tt.price), "price %v", tt.price)
	}
}

func TestRerank_AlreadyDiverseKeepsOrder(t *testing.T) {
	ranked, pool := poolOf(
		item{"a", "v1", "t1", 10},
		item{"b", "v2", "t2", 30},
		item{"c", "v3", "t3", 60},
		item{"d", "v4", "t4", 120},
		item{"e", "v5", "t5", 300},
	)
	assert.Equal(t, ranked, Rerank(ranked, pool, 5, Options{RelevanceShare: 0.7}))
	assert.Equal(t, ranked[:3], Rerank(ranked, pool, 3, Options{RelevanceShare: 0.7}))
}

func TestRerank_FirstThreeAlwaysAdmitted(t *testing.T) {
	ranked, pool := poolOf(
		item{"a1", "acme", "t1", 0},
		item{"a2", "acme", "t2", 0},
		item{"a3", "acme", "t3", 0},
		item{"a4", "acme", "t4", 0},
		item{"b1", "bolt", "t5", 0},
	)
	got := Rerank(ranked, pool, 4, Options{RelevanceShare: 0.7})
	assert.Equal(t, []string{"a1", "a2", "a3", "b1"}, got)
}

func TestRerank_ContributionPass(t *testing.T) {
	ranked, pool := poolOf(
		item{"a1", "acme", "shirt", 0},
		item{"a2", "acme", "shirt", 0},
		item{"a3", "acme", "shirt", 0},
		item{"b1", "bolt", "shirt", 0},
		item{"b2", "bolt", "shirt", 0},
		item{"c1", "core", "shoe", 0},
		item{"d1", "dart", "shirt", 0},
	)
	// b2 is held back by the type cap in pass 1 and admitted in pass 2
	// because bolt has been seen only once.
	got := Rerank(ranked, pool, 6, Options{RelevanceShare: 0.7})
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "c1", "b2"}, got)
}

func TestRerank_CompletenessBeatsCaps(t *testing.T) {
	ranked, pool := poolOf(
		item{"a1", "acme", "t1", 0},
		item{"a2", "acme", "t1", 0},
		item{"a3", "acme", "t1", 0},
		item{"a4", "acme", "t1", 0},
		item{"a5", "acme", "t1", 0},
		item{"b1", "bolt", "t1", 0},
		item{"b2", "bolt", "t1", 0},
		item{"b3", "bolt", "t1", 0},
		item{"b4", "bolt", "t1", 0},
		item{"b5", "bolt", "t1", 0},
		item{"c1", "core", "t2", 0},
	)
	got := Rerank(ranked, pool, 8, Options{RelevanceShare: 0.7})
	assert.Equal(t, []string{"a1", "a2", "a3", "b1", "b2", "c1", "b3", "a4"}, got)

	single, singlePool := poolOf(
		item{"x1", "solo", "t", 0},
		item{"x2", "solo", "t", 0},
		item{"x3", "solo", "t", 0},
		item{"x4", "solo", "t", 0},
		item{"x5", "solo", "t", 0},
	)
	assert.Equal(t, single, Rerank(single, singlePool, 5, Options{RelevanceShare: 0.7}))
}

func TestRerank_VendorCapProperty(t *testing.T) {
	vendors := []string{"acme", "bolt", "core"}
	for target := 8; target <= 15; target++ {
		for _, share := range []float64{0.5, 0.7, 1.0} {
			t.Run(fmt.Sprintf("target_%d_share_%v", target, share), func(t *testing.T) {
				var items []item
				// Relevance order is grouped by vendor, the worst case for diversity.
				for _, v := range vendors {
					for i := 0; i < 12; i++ {
						items = append(items, item{
							handle: fmt.Sprintf("%s-%02d", v, i),
							vendor: v,
							ptype:  "shirt",
							price:  40,
						})
					}
				}
				ranked, pool := poolOf(items...)

				got := Rerank(ranked, pool, target, Options{RelevanceShare: share})
				require.Len(t, got, target)

				limit := CapsFor(target).Vendor
				perVendor := map[string]int{}
				seen := map[string]bool{}
				for _, h := range got {
					require.False(t, seen[h], "duplicate %s", h)
					seen[h] = true
					perVendor[pool[h].Vendor]++
				}
				for v, n := range perVendor {
					assert.LessOrEqual(t, n, limit, "vendor %s", v)
				}
			})
		}
	}
}

func TestRerank_EdgeCases(t *testing.T) {
	ranked, pool := poolOf(item{"a", "v", "t", 1}, item{"b", "v", "t", 1})

	assert.Empty(t, Rerank(nil, pool, 5, Options{}))
	assert.Empty(t, Rerank(ranked, pool, 0, Options{}))
	assert.Equal(t, []string{"a", "b"}, Rerank(append(ranked, "ghost", "a"), pool, 5, Options{}))
}
