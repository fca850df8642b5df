// Package engine runs the ranking attempt loop: it asks the provider for a
// selection, repairs and validates the answer, re-verifies constraints and
// falls back to the deterministic ranker when the provider path fails.
package engine

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/EditMuse/EditMuse-sub002/internal/common/errors"
	"github.com/EditMuse/EditMuse-sub002/internal/common/logger"
	"github.com/EditMuse/EditMuse-sub002/internal/common/metrics"
	"github.com/EditMuse/EditMuse-sub002/internal/common/observability"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/assembler"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/bundle"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/cache"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/constraints"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/diversity"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/fallback"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/parser"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/provider"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/schema"
)

// CacheWriter accepts fire-and-forget outcome writes.
type CacheWriter interface {
	Enqueue(key string, outcome models.RankingOutcome) bool
}

type Engine struct {
	cfg      Config
	provider provider.Client
	log      logger.Logger
	obs      *observability.Observability

	cache  cache.Gateway
	writer CacheWriter

	newID func() string
}

type Option func(*Engine)

// WithCache enables outcome caching. Reads go through gateway; writes go
// through writer and never block Rank.
func WithCache(gateway cache.Gateway, writer CacheWriter) Option {
	return func(e *Engine) {
		e.cache = gateway
		e.writer = writer
	}
}

func WithObservability(obs *observability.Observability) Option {
	return func(e *Engine) { e.obs = obs }
}

func withIDs(f func() string) Option {
	return func(e *Engine) { e.newID = f }
}

func New(cfg Config, client provider.Client, log logger.Logger, opts ...Option) *Engine {
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	e := &Engine{
		cfg:      cfg,
		provider: client,
		log:      log,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rank always returns an outcome for a well-formed request. The only error
// is models.ErrInvalidRequest, raised before any provider work.
func (e *Engine) Rank(ctx context.Context, req models.RankingRequest) (models.RankingOutcome, error) {
	if err := req.Validate(); err != nil {
		return models.RankingOutcome{}, err
	}

	start := time.Now()
	rankingID := e.newID()
	log := e.log.With(map[string]interface{}{"rankingId": rankingID})

	ctx, span := e.obs.Tracer().Start(ctx, "ranking.Rank", trace.WithAttributes(
		attribute.String("ranking.id", rankingID),
		attribute.Int("ranking.candidates", len(req.Candidates)),
		attribute.Int("ranking.result_count", req.ResultCount),
		attribute.Bool("ranking.bundle", req.IsBundle()),
	))
	defer span.End()

	outcome := e.rank(ctx, req, log, span)
	outcome.RankingID = rankingID

	elapsed := time.Since(start)
	span.SetAttributes(
		attribute.String("ranking.source", string(outcome.Source)),
		attribute.Int("ranking.attempts", outcome.Attempts),
		attribute.Bool("ranking.cache_hit", outcome.CacheHit),
	)
	metrics.RankingOutcomes.WithLabelValues(string(outcome.Source)).Inc()
	metrics.RankingDuration.WithLabelValues(string(outcome.Source)).Observe(elapsed.Seconds())
	e.obs.RecordRanking(ctx, string(outcome.Source), outcome.CacheHit, elapsed)

	log.Info("Ranking completed", map[string]interface{}{
		"source":        outcome.Source,
		"attempts":      outcome.Attempts,
		"selected":      len(outcome.SelectedHandles),
		"trustFallback": outcome.TrustFallback,
		"failureReason": outcome.FailureReason,
		"cacheHit":      outcome.CacheHit,
		"durationMs":    elapsed.Milliseconds(),
	})
	return outcome, nil
}

func (e *Engine) rank(ctx context.Context, req models.RankingRequest, log logger.Logger, span trace.Span) models.RankingOutcome {
	if req.ResultCount == 0 || len(req.Candidates) == 0 {
		return e.fallbackOutcome(req, AttemptState{State: StateExhausted})
	}

	var key string
	if e.cache != nil {
		key = cache.Key(req)
		if cached, ok := e.cacheGet(ctx, key, log); ok {
			cached.CacheHit = true
			cached.Attempts = 0
			return cached
		}
	}

	pool := make(map[string]models.ProductCandidate, len(req.Candidates))
	for _, c := range req.Candidates {
		pool[c.Handle] = c
	}

	bundled := req.IsBundle()
	opts := assembler.Options{
		DescriptionMaxChars: e.cfg.DescriptionMaxChars,
		CompressedDescChars: e.cfg.CompressedDescChars,
	}
	size := assembler.Size(req, req.Candidates, opts)
	st := AttemptState{
		State:      StateFresh,
		Candidates: req.Candidates,
		Compressed: e.cfg.ShouldCompress(len(req.Candidates), size, bundled),
	}

	for st.State != StateExhausted {
		st.Timeout = e.cfg.Timeout(len(st.Candidates), assembler.Size(req, st.Candidates, opts))
		payload := assembler.Build(req, st.Candidates, st.Compressed, opts)

		attemptLog := log.With(map[string]interface{}{
			"attempt":        st.Attempt + 1,
			"state":          st.State,
			"timeoutMs":      st.Timeout.Milliseconds(),
			"payloadBytes":   payload.Bytes,
			"candidateCount": payload.CandidateCount,
			"compressed":     payload.Compressed,
		})
		attemptLog.Debug("Ranking attempt started", nil)

		attemptStart := time.Now()
		outcome, failure := e.attempt(ctx, req, pool, st, payload)
		failure.Attempt = st.Attempt + 1
		failure.Elapsed = time.Since(attemptStart)
		failure.PayloadBytes = payload.Bytes
		failure.CandidateCount = payload.CandidateCount

		if outcome != nil {
			metrics.RankingAttempts.WithLabelValues(string(st.State), "ok").Inc()
			span.AddEvent("attempt", trace.WithAttributes(
				attribute.Int("attempt", st.Attempt+1),
				attribute.String("state", string(st.State)),
				attribute.String("result", "ok"),
			))

			outcome.Attempts = st.Attempt + 1
			if st.LastFailure != nil {
				outcome.FailureReason = st.LastFailure.Reason()
			}
			if e.writer != nil && key != "" {
				e.writer.Enqueue(key, *outcome)
			}
			return *outcome
		}

		metrics.RankingAttempts.WithLabelValues(string(st.State), "failed").Inc()
		metrics.RankingFailures.WithLabelValues(string(failure.Kind)).Inc()
		span.AddEvent("attempt", trace.WithAttributes(
			attribute.Int("attempt", st.Attempt+1),
			attribute.String("state", string(st.State)),
			attribute.String("result", failure.Reason()),
		))
		attemptLog.Warn("Ranking attempt failed", map[string]interface{}{
			"failureKind": failure.Kind,
			"failureRule": failure.Rule,
			"durationMs":  failure.Elapsed.Milliseconds(),
			"error":       failure.Err(),
		})

		st = e.cfg.next(st, failure, bundled)
		if ctx.Err() != nil {
			st.State = StateExhausted
		}
	}

	return e.fallbackOutcome(req, st)
}

// attempt runs one provider round trip through the validation pipeline.
// Exactly one of the results is meaningful: a non-nil outcome on success,
// otherwise the failure.
func (e *Engine) attempt(ctx context.Context, req models.RankingRequest, pool map[string]models.ProductCandidate, st AttemptState, payload assembler.Payload) (*models.RankingOutcome, Failure) {
	callCtx, cancel := context.WithTimeout(ctx, st.Timeout)
	raw, err := e.provider.Call(callCtx, provider.Request{System: payload.System, Prompt: payload.Prompt})
	cancel()
	if err != nil {
		return nil, providerFailure(err)
	}

	var value map[string]any
	switch p := parser.Parse(raw).(type) {
	case parser.Valid:
		metrics.RankingParseStage.WithLabelValues(string(p.Stage)).Inc()
		value = p.Value
	case parser.Refused:
		metrics.RankingParseStage.WithLabelValues("refused").Inc()
		return nil, Failure{Kind: KindRefusal, Rule: "body_refusal"}
	case parser.Malformed:
		metrics.RankingParseStage.WithLabelValues("malformed").Inc()
		return nil, parseFailure(p)
	}

	bundled := req.IsBundle()
	validated, err := schema.Validate(value, schema.Input{
		Pool:      pool,
		HardTerms: allHardTerms(req),
		Bundle:    bundled,
	})
	if err != nil {
		return nil, validationFailure(err)
	}

	enforced, err := constraints.Enforce(validated.Items, validated.TrustFallback, req, pool)
	if err != nil {
		return nil, validationFailure(err)
	}

	outcome := &models.RankingOutcome{
		Reasoning:     validated.Reasoning,
		TrustFallback: enforced.TrustFallback,
		Source:        models.SourceProvider,
	}

	if bundled {
		resolved, err := bundle.Resolve(enforced.Items, enforced.TrustFallback, req, req.ResultCount)
		if err != nil {
			return nil, validationFailure(err)
		}
		outcome.SelectedHandles = handlesOf(resolved.Items)
		outcome.OverBudget = resolved.OverBudget
		outcome.MissingSlots = resolved.MissingSlots
		return outcome, Failure{}
	}

	// Bundle picks keep their slot interleaving; only single-slot results are
	// reranked for diversity.
	outcome.SelectedHandles = diversity.Rerank(handlesOf(enforced.Items), pool, req.ResultCount, diversity.Options{
		RelevanceShare: e.cfg.RelevanceShare,
	})
	return outcome, Failure{}
}

// fallbackOutcome ranks the authoritative scope deterministically: the
// strict-gate pool when one was supplied, otherwise every candidate.
func (e *Engine) fallbackOutcome(req models.RankingRequest, st AttemptState) models.RankingOutcome {
	scope := req.Candidates
	if len(req.StrictGateHandles) > 0 {
		gate := make(map[string]struct{}, len(req.StrictGateHandles))
		for _, h := range req.StrictGateHandles {
			gate[h] = struct{}{}
		}
		scope = make([]models.ProductCandidate, 0, len(gate))
		for _, c := range req.Candidates {
			if _, ok := gate[c.Handle]; ok {
				scope = append(scope, c)
			}
		}
	}

	outcome := models.RankingOutcome{
		TrustFallback: true,
		Source:        models.SourceFallback,
		Attempts:      st.Attempt,
	}
	if st.LastFailure != nil {
		outcome.Attempts = st.LastFailure.Attempt
		outcome.FailureReason = st.LastFailure.Reason()
	}

	prefs := req.Preferences()
	if !req.IsBundle() {
		outcome.SelectedHandles = fallback.Rank(scope, req.ResultCount, prefs)
		return outcome
	}

	slots := bundle.SlotPools(scope, len(req.Constraints.BundleItems))
	ranked := make([][]string, len(slots))
	for i, pool := range slots {
		ranked[i] = fallback.Rank(pool, req.ResultCount, prefs)
		if len(ranked[i]) == 0 {
			outcome.MissingSlots = append(outcome.MissingSlots, i)
		}
	}
	outcome.SelectedHandles = bundle.Allocate(ranked, bundle.Quotas(req), req.ResultCount)
	if outcome.SelectedHandles == nil {
		outcome.SelectedHandles = []string{}
	}
	return outcome
}

func (e *Engine) cacheGet(ctx context.Context, key string, log logger.Logger) (models.RankingOutcome, bool) {
	readCtx, cancel := context.WithTimeout(ctx, e.cfg.CacheReadTimeout)
	defer cancel()

	outcome, ok, err := e.cache.Get(readCtx, key)
	switch {
	case err != nil:
		metrics.RankingCache.WithLabelValues("error").Inc()
		cacheErr := apperrors.NewCacheUnavailableError(err)
		log.Warn("Cache read failed", map[string]interface{}{
			"code":  cacheErr.Code,
			"error": cacheErr.Details,
		})
		return models.RankingOutcome{}, false
	case !ok:
		metrics.RankingCache.WithLabelValues("miss").Inc()
		return models.RankingOutcome{}, false
	}
	metrics.RankingCache.WithLabelValues("hit").Inc()
	return outcome, true
}

func allHardTerms(req models.RankingRequest) []string {
	terms := append([]string(nil), req.HardTerms()...)
	if req.Constraints != nil {
		for _, bi := range req.Constraints.BundleItems {
			terms = append(terms, bi.HardTerms...)
		}
	}
	return terms
}

func handlesOf(items []models.SelectedItem) []string {
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, it.Handle)
	}
	return out
}
