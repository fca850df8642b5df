// Package cache stores provider-sourced ranking outcomes in redis. Reads sit
// on the ranking path under a short deadline; writes go through AsyncWriter
// and never touch the caller's control flow.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

var ErrUnavailable = errors.New("ranking cache unavailable")

// Gateway is the cache collaborator the engine talks to.
type Gateway interface {
	Get(ctx context.Context, key string) (models.RankingOutcome, bool, error)
	Put(ctx context.Context, key string, outcome models.RankingOutcome, ttl time.Duration) error
}

type keyMaterial struct {
	Intent             string                  `json:"intent"`
	Handles            []string                `json:"handles"`
	ResultCount        int                     `json:"resultCount"`
	Constraints        *models.HardConstraints `json:"constraints,omitempty"`
	VariantConstraints map[string]string       `json:"variantConstraints,omitempty"`
	VariantPreferences map[string]string       `json:"variantPreferences,omitempty"`
	IncludeTerms       []string                `json:"includeTerms,omitempty"`
	AvoidTerms         []string                `json:"avoidTerms,omitempty"`
	StrictGateHandles  []string                `json:"strictGateHandles,omitempty"`
}

// Key hashes the normalized intent, the sorted candidate handles, the result
// count and the canonical constraint payload. Candidate order does not change
// the key; anything that could change the outcome does.
func Key(req models.RankingRequest) string {
	handles := make([]string, 0, len(req.Candidates))
	for _, c := range req.Candidates {
		handles = append(handles, c.Handle)
	}
	sort.Strings(handles)

	gate := append([]string(nil), req.StrictGateHandles...)
	sort.Strings(gate)

	material := keyMaterial{
		Intent:             normalizeIntent(req.Intent),
		Handles:            handles,
		ResultCount:        req.ResultCount,
		Constraints:        req.Constraints,
		VariantConstraints: req.VariantConstraints,
		VariantPreferences: req.VariantPreferences,
		IncludeTerms:       req.IncludeTerms,
		AvoidTerms:         req.AvoidTerms,
		StrictGateHandles:  gate,
	}

	// encoding/json sorts map keys, so the encoding is canonical.
	data, _ := json.Marshal(material)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func normalizeIntent(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// RedisGateway stores outcomes as JSON strings under a key prefix.
type RedisGateway struct {
	client *redis.Client
	prefix string
}

func NewRedisGateway(client *redis.Client, prefix string) *RedisGateway {
	return &RedisGateway{client: client, prefix: prefix}
}

func (g *RedisGateway) Get(ctx context.Context, key string) (models.RankingOutcome, bool, error) {
	var outcome models.RankingOutcome

	val, err := g.client.Get(ctx, g.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return outcome, false, nil
	}
	if err != nil {
		return outcome, false, fmt.Errorf("%w: get: %v", ErrUnavailable, err)
	}

	if err := json.Unmarshal([]byte(val), &outcome); err != nil {
		return outcome, false, fmt.Errorf("%w: decode cached outcome: %v", ErrUnavailable, err)
	}
	return outcome, true, nil
}

func (g *RedisGateway) Put(ctx context.Context, key string, outcome models.RankingOutcome, ttl time.Duration) error {
	data, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := g.client.Set(ctx, g.prefix+key, data, ttl).Err(); err != nil {
		return fmt.Errorf("%w: set: %v", ErrUnavailable, err)
	}
	return nil
}
