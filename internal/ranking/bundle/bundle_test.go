package bundle

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

func cand(handle string, slot int, price float64) models.ProductCandidate {
	return models.ProductCandidate{Handle: handle, ItemIndex: models.IntPtr(slot), Price: price}
}

func pick(handle string, slot *int) models.SelectedItem {
	return models.SelectedItem{Handle: handle, Label: models.LabelExact, ItemIndex: slot}
}

func bundleRequest(budgets ...*float64) models.RankingRequest {
	items := make([]models.BundleItem, 0, 3)
	for i := 0; i < 3; i++ {
		bi := models.BundleItem{Quantity: 1}
		if i < len(budgets) {
			bi.BudgetMax = budgets[i]
		}
		items = append(items, bi)
	}
	return models.RankingRequest{
		ResultCount: 6,
		Constraints: &models.HardConstraints{BundleItems: items},
		Candidates: []models.ProductCandidate{
			cand("suit-1", 0, 300), cand("suit-2", 0, 250), cand("suit-3", 0, 200),
			cand("shirt-1", 1, 60), cand("shirt-2", 1, 50),
			cand("shoe-1", 2, 120),
		},
	}
}

func handlesOf(items []models.SelectedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Handle)
	}
	return out
}

func ptr(f float64) *float64 { return &f }

func TestResolve_RoundRobinQuota(t *testing.T) {
	req := bundleRequest()
	items := []models.SelectedItem{
		pick("suit-1", models.IntPtr(0)),
		pick("suit-2", models.IntPtr(0)),
		pick("suit-3", models.IntPtr(0)),
		pick("shirt-1", models.IntPtr(1)),
		pick("shoe-1", models.IntPtr(2)),
		pick("shirt-2", models.IntPtr(1)),
	}

	res, err := Resolve(items, false, req, 5)
	require.NoError(t, err)
	assert.Equal(t, []string{"suit-1", "shirt-1", "shoe-1", "suit-2", "shirt-2"}, handlesOf(res.Items))
	assert.Empty(t, res.MissingSlots)

	// Every slot appears once before any slot appears twice.
	firstRound := map[int]bool{}
	for i, it := range res.Items[:3] {
		firstRound[*it.ItemIndex] = true
		assert.NotNil(t, it.ItemIndex, i)
	}
	assert.Len(t, firstRound, 3)
}

func TestResolve_Remapping(t *testing.T) {
	req := bundleRequest()
	items := []models.SelectedItem{
		pick("shirt-1", models.IntPtr(0)), // wrong slot, owned only by slot 1
		pick("shoe-1", nil),               // no slot declared
	}

	res, err := Resolve(items, false, req, 6)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Remapped)
	require.Len(t, res.Items, 2)
	assert.Equal(t, 1, *res.Items[0].ItemIndex)
	assert.Equal(t, 2, *res.Items[1].ItemIndex)
	assert.Equal(t, []int{0}, res.MissingSlots)
}

func TestResolve_Unresolvable(t *testing.T) {
	req := bundleRequest()
	// shared-1 is owned by slots 1 and 2; the provider declared slot 0.
	req.Candidates = append(req.Candidates, cand("shared-1", 1, 10), cand("shared-1", 2, 10))
	items := []models.SelectedItem{
		pick("suit-1", models.IntPtr(0)),
		pick("shared-1", models.IntPtr(0)),
		pick("ghost", models.IntPtr(1)),
	}

	_, err := Resolve(items, false, req, 6)
	var v *Violation
	require.True(t, errors.As(err, &v))
	assert.Equal(t, RuleUnresolvableSlot+":shared-1", v.Rule)

	res, err := Resolve(items, true, req, 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"suit-1"}, handlesOf(res.Items))
	assert.Len(t, res.Dropped, 2)
}

func TestResolve_DeclaredSlotWinsWhenShared(t *testing.T) {
	req := bundleRequest()
	req.Candidates = append(req.Candidates, cand("shared-1", 1, 10), cand("shared-1", 2, 10))

	res, err := Resolve([]models.SelectedItem{pick("shared-1", models.IntPtr(2))}, false, req, 6)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	assert.Equal(t, 2, *res.Items[0].ItemIndex)
	assert.Zero(t, res.Remapped)
}

func TestResolve_Budget(t *testing.T) {
	tests := []struct {
		name     string
		budgets  []*float64
		wantOver bool
	}{
		{name: "no budgets", budgets: nil, wantOver: false},
		{name: "within budget", budgets: []*float64{ptr(400), ptr(100), ptr(150)}, wantOver: false},
		{name: "over budget", budgets: []*float64{ptr(200), ptr(50)}, wantOver: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := bundleRequest(tt.budgets...)
			items := []models.SelectedItem{
				pick("suit-1", models.IntPtr(0)),
				pick("shirt-1", models.IntPtr(1)),
				pick("shoe-1", models.IntPtr(2)),
			}
			res, err := Resolve(items, false, req, 3)
			require.NoError(t, err)
			assert.Equal(t, 480.0, res.TotalPrice)
			assert.Equal(t, tt.wantOver, res.OverBudget)
			assert.Len(t, res.Items, 3)
		})
	}
}

func TestAllocate(t *testing.T) {
	tests := []struct {
		name   string
		groups [][]string
		quotas []int
		limit  int
		want   []string
	}{
		{name: "round robin without quotas", groups: [][]string{{"a1", "a2", "a3"}, {}, {"c1"}}, limit: 10, want: []string{"a1", "c1", "a2", "a3"}},
		{name: "limit cuts the first round", groups: [][]string{{"a1", "a2", "a3"}, {}, {"c1"}}, limit: 2, want: []string{"a1", "c1"}},
		{name: "zero limit", groups: [][]string{{"a1"}}, limit: 0, want: nil},
		{name: "unit quotas", groups: [][]string{{"a0", "a1"}, {"b0", "b1"}}, quotas: []int{1, 1}, limit: 3, want: []string{"a0", "b0", "a1"}},
		{name: "second unit before alternates", groups: [][]string{{"a0", "a1"}, {"b0", "b1"}}, quotas: []int{1, 2}, limit: 3, want: []string{"a0", "b0", "b1"}},
		{name: "quota rounds interleave", groups: [][]string{{"a0", "a1", "a2"}, {"b0", "b1", "b2"}}, quotas: []int{2, 2}, limit: 5, want: []string{"a0", "b0", "a1", "b1", "a2"}},
		{name: "short slot leaves room for others", groups: [][]string{{"a0"}, {"b0", "b1", "b2"}}, quotas: []int{3, 1}, limit: 4, want: []string{"a0", "b0", "b1", "b2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Allocate(tt.groups, tt.quotas, tt.limit))
		})
	}
}

func TestQuotas(t *testing.T) {
	req := models.RankingRequest{Constraints: &models.HardConstraints{BundleItems: []models.BundleItem{
		{Quantity: 2}, {}, {Quantity: -1},
	}}}
	assert.Equal(t, []int{2, 1, 1}, Quotas(req))
	assert.Nil(t, Quotas(models.RankingRequest{}))
}

func TestResolve_QuantityFillsSlotFirst(t *testing.T) {
	req := models.RankingRequest{
		Constraints: &models.HardConstraints{BundleItems: []models.BundleItem{{Quantity: 1}, {Quantity: 2}}},
		Candidates: []models.ProductCandidate{
			cand("a0", 0, 10), cand("a1", 0, 10),
			cand("b0", 1, 10), cand("b1", 1, 10),
		},
	}
	items := []models.SelectedItem{
		pick("a0", models.IntPtr(0)),
		pick("a1", models.IntPtr(0)),
		pick("b0", models.IntPtr(1)),
		pick("b1", models.IntPtr(1)),
	}

	res, err := Resolve(items, false, req, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0", "b1"}, handlesOf(res.Items))

	req.Constraints.BundleItems[1].Quantity = 1
	res, err = Resolve(items, false, req, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"a0", "b0", "a1"}, handlesOf(res.Items))
}

func TestSlotPools(t *testing.T) {
	req := bundleRequest()
	pools := SlotPools(req.Candidates, 3)
	require.Len(t, pools, 3)
	assert.Len(t, pools[0], 3)
	assert.Len(t, pools[1], 2)
	assert.Len(t, pools[2], 1)
}
