package cache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redismock/v9"
	"github.com/google/go-cmp/cmp"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const testPrefix = "ranking:outcome:"

func baseRequest() models.RankingRequest {
	return models.RankingRequest{
		Intent:      "  Navy Linen   Shirt ",
		ResultCount: 4,
		Candidates: []models.ProductCandidate{
			{Handle: "b"}, {Handle: "a"}, {Handle: "c"},
		},
		VariantPreferences: map[string]string{"size": "M", "color": "navy"},
		Constraints: &models.HardConstraints{
			HardTerms: []string{"linen"},
		},
	}
}

func sampleOutcome() models.RankingOutcome {
	return models.RankingOutcome{
		SelectedHandles: []string{"a", "c"},
		Reasoning:       "linen shirts",
		Source:          models.SourceProvider,
		RankingID:       "rid-1",
		Attempts:        1,
	}
}

func TestKey(t *testing.T) {
	base := Key(baseRequest())
	assert.Len(t, base, 64)

	t.Run("stable across candidate order and intent whitespace", func(t *testing.T) {
		req := baseRequest()
		req.Intent = "navy linen shirt"
		req.Candidates = []models.ProductCandidate{{Handle: "c"}, {Handle: "a"}, {Handle: "b"}}
		assert.Equal(t, base, Key(req))
	})

	changes := []struct {
		name   string
		mutate func(*models.RankingRequest)
	}{
		{name: "intent", mutate: func(r *models.RankingRequest) { r.Intent = "wool shirt" }},
		{name: "result count", mutate: func(r *models.RankingRequest) { r.ResultCount = 5 }},
		{name: "handles", mutate: func(r *models.RankingRequest) { r.Candidates = r.Candidates[:2] }},
		{name: "hard terms", mutate: func(r *models.RankingRequest) { r.Constraints.HardTerms = []string{"wool"} }},
		{name: "trust fallback", mutate: func(r *models.RankingRequest) { r.Constraints.TrustFallback = true }},
		{name: "preferences", mutate: func(r *models.RankingRequest) { r.VariantPreferences["size"] = "L" }},
		{name: "strict gate", mutate: func(r *models.RankingRequest) { r.StrictGateHandles = []string{"a"} }},
	}
	for _, tt := range changes {
		t.Run("changes with "+tt.name, func(t *testing.T) {
			req := baseRequest()
			tt.mutate(&req)
			assert.NotEqual(t, base, Key(req))
		})
	}
}

func TestRedisGateway_RoundTrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	gw := NewRedisGateway(client, testPrefix)
	ctx := context.Background()

	_, ok, err := gw.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	want := sampleOutcome()
	require.NoError(t, gw.Put(ctx, "k1", want, 15*time.Minute))
	assert.True(t, mr.Exists(testPrefix+"k1"))
	assert.Equal(t, 15*time.Minute, mr.TTL(testPrefix+"k1"))

	got, ok, err := gw.Get(ctx, "k1")
	require.NoError(t, err)
	require.True(t, ok)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("cached outcome mismatch (-want +got):\n%s", diff)
	}

	mr.FastForward(16 * time.Minute)
	_, ok, err = gw.Get(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisGateway_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	require.NoError(t, mr.Set(testPrefix+"bad", "{not json"))

	_, ok, err := NewRedisGateway(client, testPrefix).Get(context.Background(), "bad")
	assert.False(t, ok)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRedisGateway_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("get error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		mock.ExpectGet(testPrefix + "k").SetErr(errors.New("connection refused"))

		_, ok, err := NewRedisGateway(client, testPrefix).Get(ctx, "k")
		assert.False(t, ok)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("set error", func(t *testing.T) {
		client, mock := redismock.NewClientMock()
		outcome := sampleOutcome()
		data, _ := json.Marshal(outcome)
		mock.ExpectSet(testPrefix+"k", data, time.Minute).SetErr(errors.New("READONLY"))

		err := NewRedisGateway(client, testPrefix).Put(ctx, "k", outcome, time.Minute)
		assert.ErrorIs(t, err, ErrUnavailable)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
