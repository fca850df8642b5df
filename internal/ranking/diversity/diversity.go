// Package diversity reorders a ranked list so no vendor, product type or
// price bucket dominates it, while keeping as much relevance order as
// possible.
package diversity

import (
	"math"
	"strings"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const (
	alwaysAdmit     = 3
	minVendorCap    = 2
	minBucketCap    = 3
	contributionCap = 2
)

var priceBuckets = []float64{25, 50, 100, 250}

type Options struct {
	// RelevanceShare is the fraction of the target that is filled in pure
	// relevance order, subject only to the vendor cap.
	RelevanceShare float64
}

// Caps are the per-dimension limits for a given target size.
type Caps struct {
	Vendor int
	Type   int
	Bucket int
}

func CapsFor(target int) Caps {
	vendor := int(math.Max(minVendorCap, math.Ceil(float64(target)/3)))
	return Caps{
		Vendor: vendor,
		Type:   vendor + 1,
		Bucket: int(math.Max(minBucketCap, math.Ceil(float64(target)/2))),
	}
}

// PriceBucket returns 0..4 for known prices and -1 when the price is unset.
func PriceBucket(price float64) int {
	if price <= 0 {
		return -1
	}
	for i, upper := range priceBuckets {
		if price < upper {
			return i
		}
	}
	return len(priceBuckets)
}

type counter struct {
	vendor map[string]int
	ptype  map[string]int
	bucket map[int]int
}

func newCounter() *counter {
	return &counter{vendor: map[string]int{}, ptype: map[string]int{}, bucket: map[int]int{}}
}

func (c *counter) add(p models.ProductCandidate) {
	if v := key(p.Vendor); v != "" {
		c.vendor[v]++
	}
	if t := key(p.ProductType); t != "" {
		c.ptype[t]++
	}
	if b := PriceBucket(p.Price); b >= 0 {
		c.bucket[b]++
	}
}

func (c *counter) vendorCount(p models.ProductCandidate) int {
	if v := key(p.Vendor); v != "" {
		return c.vendor[v]
	}
	return 0
}

func (c *counter) typeCount(p models.ProductCandidate) int {
	if t := key(p.ProductType); t != "" {
		return c.ptype[t]
	}
	return 0
}

func (c *counter) bucketCount(p models.ProductCandidate) int {
	if b := PriceBucket(p.Price); b >= 0 {
		return c.bucket[b]
	}
	return 0
}

func key(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Rerank returns at most target handles from ranked in three passes: a
// relevance-first pass under caps, a pass that only admits items adding
// diversity, and a completeness pass that ends up ignoring caps.
func Rerank(ranked []string, pool map[string]models.ProductCandidate, target int, opts Options) []string {
	if target <= 0 || len(ranked) == 0 {
		return []string{}
	}

	share := opts.RelevanceShare
	if share <= 0 || share > 1 {
		share = 0.7
	}
	caps := CapsFor(target)
	relevanceZone := int(math.Floor(float64(target) * share))
	if relevanceZone < alwaysAdmit {
		relevanceZone = alwaysAdmit
	}

	out := make([]string, 0, target)
	used := make(map[string]bool, len(ranked))
	counts := newCounter()

	admit := func(h string, p models.ProductCandidate) {
		out = append(out, h)
		used[h] = true
		counts.add(p)
	}

	// Pass 1: relevance order under caps.
	for _, h := range ranked {
		if len(out) >= target {
			break
		}
		p, ok := pool[h]
		if !ok || used[h] {
			continue
		}
		switch {
		case len(out) < alwaysAdmit:
			admit(h, p)
		case len(out) < relevanceZone:
			if counts.vendorCount(p) < caps.Vendor {
				admit(h, p)
			}
		default:
			if counts.vendorCount(p) < caps.Vendor &&
				counts.typeCount(p) < caps.Type &&
				counts.bucketCount(p) < caps.Bucket {
				admit(h, p)
			}
		}
	}

	// Pass 2: only items that add a vendor or type not yet seen twice.
	for _, h := range ranked {
		if len(out) >= target {
			break
		}
		p, ok := pool[h]
		if !ok || used[h] {
			continue
		}
		contributes := counts.vendorCount(p) < contributionCap || counts.typeCount(p) < contributionCap
		if contributes && counts.vendorCount(p) < caps.Vendor {
			admit(h, p)
		}
	}

	// Pass 3: fill whatever is left, still honoring the vendor cap while the
	// pool allows it, then unconditionally.
	for _, capped := range []bool{true, false} {
		for _, h := range ranked {
			if len(out) >= target {
				break
			}
			p, ok := pool[h]
			if !ok || used[h] {
				continue
			}
			if capped && counts.vendorCount(p) >= caps.Vendor {
				continue
			}
			admit(h, p)
		}
	}

	return out
}
