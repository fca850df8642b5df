// Package bundle maps provider picks back onto the slot pools of a
// multi-item request.
package bundle

import (
	"fmt"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const (
	RuleUnresolvableSlot = "unresolvable_slot"
	RuleNoSlotSelections = "no_slot_selections"
)

type Violation struct {
	Rule string
}

func (v *Violation) Error() string { return "bundle violation: " + v.Rule }

type Drop struct {
	Handle string
	Rule   string
}

type Result struct {
	Items        []models.SelectedItem
	MissingSlots []int
	OverBudget   bool
	TotalPrice   float64
	Budget       float64
	Remapped     int
	Dropped      []Drop
}

// SlotPools groups candidate handles by their slot, in candidate order.
func SlotPools(candidates []models.ProductCandidate, slots int) [][]models.ProductCandidate {
	pools := make([][]models.ProductCandidate, slots)
	for _, c := range candidates {
		if c.ItemIndex == nil || *c.ItemIndex < 0 || *c.ItemIndex >= slots {
			continue
		}
		pools[*c.ItemIndex] = append(pools[*c.ItemIndex], c)
	}
	return pools
}

// Owners maps every handle to the slots whose pools contain it.
func Owners(req models.RankingRequest) map[string][]int {
	slots := 0
	if req.Constraints != nil {
		slots = len(req.Constraints.BundleItems)
	}
	owners := make(map[string][]int, len(req.Candidates))
	for _, c := range req.Candidates {
		if c.ItemIndex != nil && *c.ItemIndex >= 0 && *c.ItemIndex < slots {
			owners[c.Handle] = append(owners[c.Handle], *c.ItemIndex)
		}
	}
	return owners
}

// Quotas is the number of units each slot must be offered before any slot
// receives an alternate. A slot without a quantity needs one.
func Quotas(req models.RankingRequest) []int {
	if req.Constraints == nil {
		return nil
	}
	quotas := make([]int, len(req.Constraints.BundleItems))
	for i, bi := range req.Constraints.BundleItems {
		quotas[i] = max(bi.Quantity, 1)
	}
	return quotas
}

// Resolve assigns every item to the slot that legitimately owns its handle,
// fills each slot up to its quota in round-robin order and then distributes
// the remaining picks as alternates.
func Resolve(items []models.SelectedItem, trustFallback bool, req models.RankingRequest, resultCount int) (Result, error) {
	slots := len(req.Constraints.BundleItems)
	owners := Owners(req)
	prices := make(map[string]float64, len(req.Candidates))
	for _, c := range req.Candidates {
		prices[c.Handle] = c.Price
	}

	var res Result
	groups := make([][]models.SelectedItem, slots)
	seen := make(map[string]struct{}, len(items))

	for _, item := range items {
		if _, dup := seen[item.Handle]; dup {
			continue
		}

		slot, remapped, ok := SlotOf(item, owners[item.Handle])
		if !ok {
			if !trustFallback {
				return res, &Violation{Rule: fmt.Sprintf("%s:%s", RuleUnresolvableSlot, item.Handle)}
			}
			res.Dropped = append(res.Dropped, Drop{Handle: item.Handle, Rule: RuleUnresolvableSlot})
			continue
		}
		if remapped {
			res.Remapped++
		}

		seen[item.Handle] = struct{}{}
		item.ItemIndex = models.IntPtr(slot)
		groups[slot] = append(groups[slot], item)
	}

	res.Items = Allocate(groups, Quotas(req), resultCount)
	if len(res.Items) == 0 && len(items) > 0 {
		return res, &Violation{Rule: RuleNoSlotSelections}
	}

	for slot, g := range groups {
		if len(g) == 0 {
			res.MissingSlots = append(res.MissingSlots, slot)
		}
	}

	budgeted := false
	for _, bi := range req.Constraints.BundleItems {
		if bi.BudgetMax != nil {
			budgeted = true
			res.Budget += *bi.BudgetMax
		}
	}
	for _, item := range res.Items {
		res.TotalPrice += prices[item.Handle]
	}
	res.OverBudget = budgeted && res.TotalPrice > res.Budget

	return res, nil
}

// SlotOf keeps the declared slot when it owns the handle and otherwise
// remaps to the single other owner. A handle owned by no slot, or by several
// slots none of which was declared, is unresolvable.
func SlotOf(item models.SelectedItem, owners []int) (slot int, remapped bool, ok bool) {
	if item.ItemIndex != nil {
		for _, o := range owners {
			if o == *item.ItemIndex {
				return o, false, true
			}
		}
	}
	if len(owners) == 1 {
		return owners[0], item.ItemIndex != nil, true
	}
	return 0, false, false
}

// Allocate takes one item per slot per round until every slot has reached
// its quota or run dry, then keeps taking one item per slot per round from
// what is left. Missing or non-positive quotas count as one.
func Allocate[T any](groups [][]T, quotas []int, limit int) []T {
	if limit <= 0 {
		return nil
	}
	quota := func(i int) int {
		if i < len(quotas) && quotas[i] > 0 {
			return quotas[i]
		}
		return 1
	}

	var out []T
	taken := make([]int, len(groups))
	for _, capped := range []bool{true, false} {
		for {
			added := false
			for i, g := range groups {
				if taken[i] >= len(g) || (capped && taken[i] >= quota(i)) {
					continue
				}
				out = append(out, g[taken[i]])
				taken[i]++
				added = true
				if len(out) == limit {
					return out
				}
			}
			if !added {
				break
			}
		}
	}
	return out
}
