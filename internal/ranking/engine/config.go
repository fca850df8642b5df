package engine

import (
	"math"
	"time"

	"github.com/EditMuse/EditMuse-sub002/internal/common/config"
)

// Config is the engine's only source of tuning. It is built once at the
// process boundary; the engine never reads the environment.
type Config struct {
	BaseTimeout time.Duration
	MaxTimeout  time.Duration
	TimeoutStep time.Duration
	// CandidateStep and PayloadStepBytes size one timeout step.
	CandidateStep    int
	PayloadStepBytes int

	CompressPayloadBytes int
	CompressCandidates   int

	ShrinkFraction      float64
	ShrinkMinCandidates int

	MaxRetries int

	DescriptionMaxChars int
	CompressedDescChars int

	RelevanceShare float64

	CacheReadTimeout time.Duration
	CacheTTL         time.Duration
}

func DefaultConfig() Config {
	return Config{
		BaseTimeout:          12 * time.Second,
		MaxTimeout:           30 * time.Second,
		TimeoutStep:          3 * time.Second,
		CandidateStep:        40,
		PayloadStepBytes:     40000,
		CompressPayloadBytes: 60000,
		CompressCandidates:   80,
		ShrinkFraction:       0.3,
		ShrinkMinCandidates:  30,
		MaxRetries:           1,
		DescriptionMaxChars:  400,
		CompressedDescChars:  120,
		RelevanceShare:       0.7,
		CacheReadTimeout:     50 * time.Millisecond,
		CacheTTL:             15 * time.Minute,
	}
}

// ConfigFrom converts the loaded configuration sections. Zero values fall
// back to DefaultConfig.
func ConfigFrom(r config.RankingConfig, c config.CacheConfig) Config {
	cfg := DefaultConfig()

	setDuration(&cfg.BaseTimeout, r.BaseTimeout, time.Millisecond)
	setDuration(&cfg.MaxTimeout, r.MaxTimeout, time.Millisecond)
	setDuration(&cfg.TimeoutStep, r.TimeoutStep, time.Millisecond)
	setInt(&cfg.CandidateStep, r.CandidateStep)
	setInt(&cfg.PayloadStepBytes, r.PayloadStepBytes)
	setInt(&cfg.CompressPayloadBytes, r.CompressPayloadBytes)
	setInt(&cfg.CompressCandidates, r.CompressCandidates)
	setInt(&cfg.ShrinkMinCandidates, r.ShrinkMinCandidates)
	setInt(&cfg.DescriptionMaxChars, r.DescriptionMaxChars)
	setInt(&cfg.CompressedDescChars, r.CompressedDescChars)
	if r.ShrinkFraction > 0 && r.ShrinkFraction < 1 {
		cfg.ShrinkFraction = r.ShrinkFraction
	}
	if r.RelevanceShare > 0 && r.RelevanceShare <= 1 {
		cfg.RelevanceShare = r.RelevanceShare
	}

	// At most one retry, ever. Negative disables it.
	if r.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}

	setDuration(&cfg.CacheReadTimeout, c.ReadTimeout, time.Millisecond)
	setDuration(&cfg.CacheTTL, c.TTL, time.Second)

	if cfg.MaxTimeout < cfg.BaseTimeout {
		cfg.MaxTimeout = cfg.BaseTimeout
	}
	return cfg
}

func setDuration(dst *time.Duration, v int, unit time.Duration) {
	if v > 0 {
		*dst = time.Duration(v) * unit
	}
}

func setInt(dst *int, v int) {
	if v > 0 {
		*dst = v
	}
}

// Timeout is a step function of candidate count and payload size: one step
// per CandidateStep candidates or PayloadStepBytes bytes, whichever gives
// more, capped at MaxTimeout.
func (c Config) Timeout(candidates, payloadBytes int) time.Duration {
	steps := 0
	if c.CandidateStep > 0 {
		steps = candidates / c.CandidateStep
	}
	if c.PayloadStepBytes > 0 {
		if s := payloadBytes / c.PayloadStepBytes; s > steps {
			steps = s
		}
	}

	timeout := c.BaseTimeout + time.Duration(steps)*c.TimeoutStep
	if timeout > c.MaxTimeout {
		return c.MaxTimeout
	}
	return timeout
}

// ShouldCompress decides the payload representation for the first attempt.
func (c Config) ShouldCompress(candidates, payloadBytes int, bundle bool) bool {
	return bundle ||
		(c.CompressPayloadBytes > 0 && payloadBytes >= c.CompressPayloadBytes) ||
		(c.CompressCandidates > 0 && candidates >= c.CompressCandidates)
}

// ShrinkTo is the candidate count kept after a shrink.
func (c Config) ShrinkTo(n int) int {
	keep := int(math.Ceil(float64(n)*(1-c.ShrinkFraction) - 1e-9))
	if keep < 1 && n > 0 {
		keep = 1
	}
	return keep
}
