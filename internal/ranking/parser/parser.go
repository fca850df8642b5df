// Package parser turns free-text provider output into a JSON object through
// a ladder of increasingly invasive repairs.
package parser

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmpty      = errors.New("empty response")
	ErrNoObject   = errors.New("no JSON object in response")
	ErrUnrepaired = errors.New("response could not be repaired into JSON")
)

type Stage string

const (
	StageDirect     Stage = "direct"
	StageComma      Stage = "comma_repair"
	StageAggressive Stage = "aggressive_repair"
	StageBalanced   Stage = "balanced_object"
)

// Parsed is Valid, Malformed or Refused. Consumers switch on the concrete type.
type Parsed interface {
	isParsed()
}

// Valid holds the repaired JSON text and its decoded object.
type Valid struct {
	JSON  string
	Value map[string]any
	Stage Stage
}

// Malformed carries the original text for diagnostics; never partial data.
type Malformed struct {
	Raw string
	Err error
}

// Refused is an explicit refusal, either reported by the provider or
// written into the response body.
type Refused struct {
	Reason string
}

func (Valid) isParsed()     {}
func (Malformed) isParsed() {}
func (Refused) isParsed()   {}

type rung struct {
	stage  Stage
	repair func(string) string
}

// ladder is evaluated in order; the first rung whose output decodes wins.
var ladder = []rung{
	{StageDirect, func(s string) string { return s }},
	{StageComma, InsertMissingCommas},
	{StageAggressive, InsertMissingCommasAggressive},
}

// Parse runs the leniency ladder over raw provider output.
func Parse(raw string) Parsed {
	if strings.TrimSpace(raw) == "" {
		return Malformed{Raw: raw, Err: ErrEmpty}
	}

	stripped := StripFences(raw)
	sliced, ok := SliceObject(stripped)
	if !ok {
		return Malformed{Raw: raw, Err: ErrNoObject}
	}
	base := RemoveTrailingCommas(sliced)

	var lastErr error
	for _, r := range ladder {
		candidate := RemoveTrailingCommas(r.repair(base))
		value, err := decode(candidate)
		if err == nil {
			return classify(candidate, value, r.stage)
		}
		lastErr = err
	}

	if obj, ok := ExtractBalancedObject(stripped); ok {
		for _, candidate := range []string{obj, RemoveTrailingCommas(obj)} {
			value, err := decode(candidate)
			if err == nil {
				return classify(candidate, value, StageBalanced)
			}
			lastErr = err
		}
	}

	return Malformed{Raw: raw, Err: fmt.Errorf("%w: %v", ErrUnrepaired, lastErr)}
}

func decode(s string) (map[string]any, error) {
	var value map[string]any
	if err := json.Unmarshal([]byte(s), &value); err != nil {
		return nil, err
	}
	if value == nil {
		return nil, ErrNoObject
	}
	return value, nil
}

// classify turns a body-level refusal envelope into Refused.
func classify(text string, value map[string]any, stage Stage) Parsed {
	_, hasSelected := value["selected"]
	_, hasByItem := value["selected_by_item"]
	if reason, ok := value["refusal"].(string); ok && reason != "" && !hasSelected && !hasByItem {
		return Refused{Reason: reason}
	}
	return Valid{JSON: text, Value: value, Stage: stage}
}
