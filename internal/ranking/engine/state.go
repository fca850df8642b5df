package engine

import (
	"errors"
	"fmt"
	"time"

	apperrors "github.com/EditMuse/EditMuse-sub002/internal/common/errors"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/bundle"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/constraints"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/parser"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/provider"
	"github.com/EditMuse/EditMuse-sub002/internal/ranking/schema"
)

type State string

const (
	StateFresh     State = "fresh"
	StateDegraded  State = "degraded"
	StateShrunk    State = "shrunk"
	StateExhausted State = "exhausted"
)

// AttemptState is owned by a single Rank call and threaded through the loop.
type AttemptState struct {
	Attempt     int
	State       State
	Timeout     time.Duration
	Compressed  bool
	Candidates  []models.ProductCandidate
	LastFailure *Failure
}

// Kind is the failure taxonomy for one attempt.
type Kind string

const (
	KindTimeout            Kind = "timeout"
	KindTransport          Kind = "transport"
	KindRefusal            Kind = "refusal"
	KindEmptyOrUnparseable Kind = "empty_or_unparseable"
	KindSchemaViolation    Kind = "schema_violation"
	KindConstraint         Kind = "constraint_violation"
)

var kindCodes = map[Kind]apperrors.ErrorCode{
	KindTimeout:            apperrors.ErrCodeRankingTimeout,
	KindTransport:          apperrors.ErrCodeRankingTransportError,
	KindRefusal:            apperrors.ErrCodeRankingProviderRefusal,
	KindEmptyOrUnparseable: apperrors.ErrCodeRankingEmptyOrUnparseable,
	KindSchemaViolation:    apperrors.ErrCodeRankingSchemaViolation,
	KindConstraint:         apperrors.ErrCodeRankingConstraintViolation,
}

func (k Kind) Code() apperrors.ErrorCode {
	return kindCodes[k]
}

// Failure records why an attempt produced no usable selection. It never
// holds candidate content or prompt text.
type Failure struct {
	Kind       Kind
	Rule       string
	StatusCode int
	// EmptyResponse marks a structurally empty answer, which is answered by
	// shrinking the candidate set rather than compressing the payload.
	EmptyResponse bool

	Attempt        int
	Elapsed        time.Duration
	PayloadBytes   int
	CandidateCount int
}

// Reason is the "<kind>:<rule>" string surfaced on the outcome.
func (f Failure) Reason() string {
	return fmt.Sprintf("%s:%s", f.Kind, f.Rule)
}

// Err renders the failure as a StandardError with its diagnostic metadata.
func (f Failure) Err() *apperrors.StandardError {
	var se *apperrors.StandardError
	switch f.Kind {
	case KindTimeout:
		se = apperrors.NewRankingTimeoutError(f.Rule)
	case KindTransport:
		se = apperrors.NewRankingTransportError(f.StatusCode, f.Rule)
	case KindRefusal:
		se = apperrors.NewRankingProviderRefusalError(f.Rule)
	case KindEmptyOrUnparseable:
		se = apperrors.NewRankingEmptyOrUnparseableError(f.Rule)
	case KindSchemaViolation:
		se = apperrors.NewRankingSchemaViolationError(f.Rule)
	default:
		se = apperrors.NewRankingConstraintViolationError(f.Rule)
	}
	return se.
		WithMetadata("attempt", f.Attempt).
		WithMetadata("elapsedMs", f.Elapsed.Milliseconds()).
		WithMetadata("payloadBytes", f.PayloadBytes).
		WithMetadata("candidateCount", f.CandidateCount)
}

func providerFailure(err error) Failure {
	pe := provider.AsError(err)
	f := Failure{StatusCode: pe.StatusCode}
	switch pe.Kind {
	case provider.KindTimeout:
		f.Kind, f.Rule = KindTimeout, "deadline_exceeded"
	case provider.KindRefusal:
		f.Kind, f.Rule = KindRefusal, "provider_refusal"
	case provider.KindEmpty:
		f.Kind, f.Rule, f.EmptyResponse = KindEmptyOrUnparseable, "empty_response", true
	default:
		f.Kind, f.Rule = KindTransport, "network"
		if pe.StatusCode != 0 {
			f.Rule = fmt.Sprintf("http_%d", pe.StatusCode)
		}
	}
	return f
}

func parseFailure(m parser.Malformed) Failure {
	switch {
	case errors.Is(m.Err, parser.ErrEmpty):
		return Failure{Kind: KindEmptyOrUnparseable, Rule: "empty_body", EmptyResponse: true}
	case errors.Is(m.Err, parser.ErrNoObject):
		return Failure{Kind: KindEmptyOrUnparseable, Rule: "no_json_object"}
	default:
		return Failure{Kind: KindEmptyOrUnparseable, Rule: "unrepairable_json"}
	}
}

// validationFailure classifies the typed violations of the schema,
// constraints and bundle stages.
func validationFailure(err error) Failure {
	var sv *schema.Violation
	if errors.As(err, &sv) {
		if sv.Empty {
			return Failure{Kind: KindEmptyOrUnparseable, Rule: sv.Rule, EmptyResponse: true}
		}
		return Failure{Kind: KindSchemaViolation, Rule: sv.Rule}
	}
	var cv *constraints.Violation
	if errors.As(err, &cv) {
		return Failure{Kind: KindConstraint, Rule: cv.Rule}
	}
	var bv *bundle.Violation
	if errors.As(err, &bv) {
		return Failure{Kind: KindSchemaViolation, Rule: bv.Rule}
	}
	return Failure{Kind: KindSchemaViolation, Rule: err.Error()}
}

// next decides the state of the following attempt. A structurally empty
// answer over a large candidate set shrinks the set; every other failure
// switches to the compressed payload.
func (c Config) next(st AttemptState, f Failure, bundled bool) AttemptState {
	st.LastFailure = &f
	if st.Attempt >= c.MaxRetries {
		st.State = StateExhausted
		return st
	}

	st.Attempt++
	if f.EmptyResponse && len(st.Candidates) >= c.ShrinkMinCandidates {
		st.State = StateShrunk
		st.Candidates = shrink(st.Candidates, c.ShrinkTo(len(st.Candidates)), bundled)
		return st
	}

	st.State = StateDegraded
	st.Compressed = true
	return st
}

// shrink keeps the leading candidates. In bundle mode each slot is cut by
// the same fraction so every slot stays represented.
func shrink(candidates []models.ProductCandidate, keep int, bundled bool) []models.ProductCandidate {
	if keep >= len(candidates) {
		return candidates
	}
	if !bundled {
		return append([]models.ProductCandidate(nil), candidates[:keep]...)
	}

	ratio := float64(keep) / float64(len(candidates))
	perSlot := map[int]int{}
	for _, c := range candidates {
		perSlot[*c.ItemIndex]++
	}
	quota := make(map[int]int, len(perSlot))
	for slot, n := range perSlot {
		q := int(float64(n)*ratio + 0.5)
		if q < 1 {
			q = 1
		}
		quota[slot] = q
	}

	out := make([]models.ProductCandidate, 0, keep)
	for _, c := range candidates {
		slot := *c.ItemIndex
		if quota[slot] > 0 {
			out = append(out, c)
			quota[slot]--
		}
	}
	return out
}
