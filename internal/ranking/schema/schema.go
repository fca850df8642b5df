// Package schema checks the structure of a decoded provider response and
// turns it into selected items, dropping items that cannot be trusted.
package schema

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/EditMuse/EditMuse-sub002/internal/common/validation"
	"github.com/EditMuse/EditMuse-sub002/internal/models"
)

const (
	RuleEmptySelection    = "empty_selection"
	RuleUnknownHandle     = "unknown_handle"
	RuleDuplicateHandle   = "duplicate_handle"
	RuleMissingEvidence   = "missing_evidence"
	RuleAllItemsRejected  = "all_items_rejected"
	RuleLegacyNoHandles   = "legacy_no_valid_handles"
	ruleItemShapePrefix   = "item_shape"
	ruleTopLevelShapeName = "shape"
)

// Violation is returned when an attempt yields no usable selection. Empty
// marks a structurally empty response, which the engine answers by
// shrinking the candidate set.
type Violation struct {
	Empty bool
	Rule  string
}

func (v *Violation) Error() string {
	if v.Empty {
		return "empty selection: " + v.Rule
	}
	return "schema violation: " + v.Rule
}

type Rejection struct {
	Handle string
	Rule   string
}

// Result is the structurally valid part of a provider response.
type Result struct {
	TrustFallback bool
	Items         []models.SelectedItem
	Reasoning     string
	// Legacy is set when the response used the flat ranked-handles shape.
	Legacy   bool
	Rejected []Rejection
}

type Input struct {
	Pool      map[string]models.ProductCandidate
	HardTerms []string
	Bundle    bool
}

var (
	singleTopLevel = validation.MustCompile(`{
		"type": "object",
		"required": ["trustFallback", "selected"],
		"properties": {
			"trustFallback": {"type": "boolean"},
			"selected": {"type": "array", "items": {"type": "object"}},
			"reasoning": {"type": "string"}
		}
	}`)

	bundleTopLevel = validation.MustCompile(`{
		"type": "object",
		"required": ["trustFallback", "selected_by_item"],
		"properties": {
			"trustFallback": {"type": "boolean"},
			"selected_by_item": {"type": "array", "items": {"type": "object"}},
			"reasoning": {"type": "string"}
		}
	}`)

	singleItem = validation.MustCompile(itemSchema(false))
	bundleItem = validation.MustCompile(itemSchema(true))
)

func itemSchema(bundle bool) string {
	required := `"handle", "label", "score", "evidence", "reason"`
	extra := ""
	if bundle {
		required += `, "itemIndex"`
		extra = `, "itemIndex": {"type": "integer", "minimum": 0}`
	}
	return fmt.Sprintf(`{
		"type": "object",
		"required": [%s],
		"properties": {
			"handle": {"type": "string", "minLength": 1},
			"label": {"enum": ["exact", "alternative"]},
			"score": {"type": "number", "minimum": 0, "maximum": 100},
			"evidence": {
				"type": "object",
				"required": ["matchedHardTerms"],
				"properties": {
					"matchedHardTerms": {"type": "array", "items": {"type": "string"}},
					"matchedFacets": {
						"type": "object",
						"properties": {
							"size": {"type": "array", "items": {"type": "string"}},
							"color": {"type": "array", "items": {"type": "string"}},
							"material": {"type": "array", "items": {"type": "string"}}
						}
					},
					"fieldsUsed": {"type": "array", "items": {"type": "string"}}
				}
			},
			"reason": {"type": "string"}%s
		}
	}`, required, extra)
}

// Validate checks the strict shape first and falls back to the legacy
// ranked-handles shape when the strict top level does not match.
func Validate(value map[string]any, in Input) (Result, error) {
	top, items, key := singleTopLevel, singleItem, "selected"
	if in.Bundle {
		top, items, key = bundleTopLevel, bundleItem, "selected_by_item"
	}

	shape := top.Validate(value)
	if !shape.Valid {
		if res, ok, err := legacy(value, in); ok {
			return res, err
		}
		return Result{}, &Violation{Rule: ruleFromErrors(ruleTopLevelShapeName, shape)}
	}

	res := Result{TrustFallback: value["trustFallback"].(bool)}
	if r, ok := value["reasoning"].(string); ok {
		res.Reasoning = r
	}

	rawItems, _ := value[key].([]any)
	if len(rawItems) == 0 {
		return res, &Violation{Empty: true, Rule: RuleEmptySelection}
	}

	requireEvidence := !res.TrustFallback && len(in.HardTerms) > 0
	seen := make(map[string]struct{}, len(rawItems))

	for _, raw := range rawItems {
		handle := handleOf(raw)

		if check := items.Validate(raw); !check.Valid {
			res.Rejected = append(res.Rejected, Rejection{Handle: handle, Rule: ruleFromErrors(ruleItemShapePrefix, check)})
			continue
		}

		item, err := decodeItem(raw)
		if err != nil {
			res.Rejected = append(res.Rejected, Rejection{Handle: handle, Rule: ruleItemShapePrefix})
			continue
		}

		if _, ok := in.Pool[item.Handle]; !ok {
			res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleUnknownHandle})
			continue
		}
		if _, dup := seen[item.Handle]; dup {
			res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleDuplicateHandle})
			continue
		}
		if requireEvidence && len(item.Evidence.MatchedHardTerms) == 0 {
			res.Rejected = append(res.Rejected, Rejection{Handle: item.Handle, Rule: RuleMissingEvidence})
			continue
		}

		seen[item.Handle] = struct{}{}
		res.Items = append(res.Items, item)
	}

	if len(res.Items) == 0 {
		return res, &Violation{Rule: RuleAllItemsRejected + ":" + res.Rejected[0].Rule}
	}
	return res, nil
}

var legacyKeys = []string{"ranked_handles", "rankedHandles", "handles"}

// legacy accepts {"ranked_handles": [...]} style responses. ok is false when
// no legacy key is present at all.
func legacy(value map[string]any, in Input) (Result, bool, error) {
	var list []any
	found := false
	for _, key := range legacyKeys {
		if l, isList := value[key].([]any); isList {
			list, found = l, true
			break
		}
	}
	if !found {
		return Result{}, false, nil
	}

	res := Result{Legacy: true}
	if tf, ok := value["trustFallback"].(bool); ok {
		res.TrustFallback = tf
	}
	if r, ok := value["reasoning"].(string); ok {
		res.Reasoning = r
	}

	seen := make(map[string]struct{}, len(list))
	for _, raw := range list {
		handle, ok := raw.(string)
		handle = strings.TrimSpace(handle)
		if !ok || handle == "" {
			continue
		}
		if _, inPool := in.Pool[handle]; !inPool {
			res.Rejected = append(res.Rejected, Rejection{Handle: handle, Rule: RuleUnknownHandle})
			continue
		}
		if _, dup := seen[handle]; dup {
			res.Rejected = append(res.Rejected, Rejection{Handle: handle, Rule: RuleDuplicateHandle})
			continue
		}
		seen[handle] = struct{}{}

		item := models.SelectedItem{Handle: handle, Label: models.LabelExact}
		if in.Bundle {
			item.ItemIndex = in.Pool[handle].ItemIndex
		}
		res.Items = append(res.Items, item)
	}

	if len(list) == 0 {
		return res, true, &Violation{Empty: true, Rule: RuleEmptySelection}
	}
	if len(res.Items) == 0 {
		return res, true, &Violation{Rule: RuleLegacyNoHandles}
	}
	return res, true, nil
}

func decodeItem(raw any) (models.SelectedItem, error) {
	var item models.SelectedItem
	b, err := json.Marshal(raw)
	if err != nil {
		return item, err
	}
	if err := json.Unmarshal(b, &item); err != nil {
		return item, err
	}
	item.Handle = strings.TrimSpace(item.Handle)
	return item, nil
}

func handleOf(raw any) string {
	if m, ok := raw.(map[string]any); ok {
		if h, ok := m["handle"].(string); ok {
			return h
		}
	}
	return ""
}

func ruleFromErrors(prefix string, r *validation.ValidationResult) string {
	if len(r.Errors) == 0 {
		return prefix
	}
	e := r.Errors[0]
	return fmt.Sprintf("%s:%s:%s", prefix, e.Field, strings.ToLower(e.Code))
}
