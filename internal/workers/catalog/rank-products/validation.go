package rankproducts

import "github.com/EditMuse/EditMuse-sub002/internal/common/validation"

// inputSchema covers the shape of the job variables. Semantic checks such
// as duplicate handles are left to RankingRequest.Validate.
var inputSchema = validation.MustCompile(`{
	"type": "object",
	"required": ["intent", "candidates", "resultCount"],
	"properties": {
		"intent": {"type": "string"},
		"resultCount": {"type": "integer", "minimum": 0},
		"candidates": {
			"type": "array",
			"items": {
				"type": "object",
				"required": ["handle"],
				"properties": {
					"handle": {"type": "string", "minLength": 1},
					"title": {"type": "string"},
					"productType": {"type": "string"},
					"vendor": {"type": "string"},
					"price": {"type": "number", "minimum": 0},
					"tags": {"type": "array", "items": {"type": "string"}},
					"available": {"type": "boolean"},
					"description": {"type": "string"},
					"sizes": {"type": "array", "items": {"type": "string"}},
					"colors": {"type": "array", "items": {"type": "string"}},
					"materials": {"type": "array", "items": {"type": "string"}},
					"optionValues": {
						"type": "object",
						"additionalProperties": {"type": "array", "items": {"type": "string"}}
					},
					"itemIndex": {"type": "integer", "minimum": 0}
				}
			}
		},
		"variantConstraints": {"type": "object", "additionalProperties": {"type": "string"}},
		"variantPreferences": {"type": "object", "additionalProperties": {"type": "string"}},
		"includeTerms": {"type": "array", "items": {"type": "string"}},
		"avoidTerms": {"type": "array", "items": {"type": "string"}},
		"strictGateHandles": {"type": "array", "items": {"type": "string"}},
		"constraints": {
			"type": "object",
			"properties": {
				"hardTerms": {"type": "array", "items": {"type": "string"}},
				"avoidTerms": {"type": "array", "items": {"type": "string"}},
				"trustFallback": {"type": "boolean"},
				"hardFacets": {
					"type": "object",
					"properties": {
						"size": {"type": "array", "items": {"type": "string"}},
						"color": {"type": "array", "items": {"type": "string"}},
						"material": {"type": "array", "items": {"type": "string"}}
					}
				},
				"bundleItems": {
					"type": "array",
					"items": {
						"type": "object",
						"properties": {
							"hardTerms": {"type": "array", "items": {"type": "string"}},
							"quantity": {"type": "integer", "minimum": 0},
							"budgetMax": {"type": "number", "minimum": 0}
						}
					}
				}
			}
		}
	}
}`)
