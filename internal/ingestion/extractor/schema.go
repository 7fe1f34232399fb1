package extractor

// resultSchema is the strict json_schema the vision model must satisfy. Every
// leaf is nullable; a non-null leaf must cite the OCR line ids it was read
// from. Strict mode requires every property listed and additionalProperties
// closed at each level.
func resultSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title":       fieldSchema(false),
			"servings":    fieldSchema(true),
			"prep_time":   fieldSchema(true),
			"cook_time":   fieldSchema(true),
			"total_time":  fieldSchema(true),
			"ingredients": map[string]any{"type": "array", "items": fieldSchema(false)},
			"steps":       map[string]any{"type": "array", "items": fieldSchema(false)},
			"tags":        map[string]any{"type": "array", "items": fieldSchema(false)},
			"servings_estimate": map[string]any{
				"type": []string{"object", "null"},
				"properties": map[string]any{
					"value":      map[string]any{"type": "number"},
					"confidence": map[string]any{"type": "number"},
					"basis":      map[string]any{"type": "string"},
				},
				"required":             []string{"value", "confidence", "basis"},
				"additionalProperties": false,
			},
			"unreadable_regions": map[string]any{
				"type": "array",
				"items": map[string]any{
					"type":     "array",
					"items":    map[string]any{"type": "number"},
					"minItems": 4,
					"maxItems": 4,
				},
			},
		},
		"required": []string{
			"title", "servings", "prep_time", "cook_time", "total_time",
			"ingredients", "steps", "tags", "servings_estimate", "unreadable_regions",
		},
		"additionalProperties": false,
	}
}

func fieldSchema(numeric bool) map[string]any {
	props := map[string]any{
		"text": map[string]any{"type": "string"},
		"evidence_ocr_line_ids": map[string]any{
			"type":  "array",
			"items": map[string]any{"type": "string"},
		},
		"confidence": map[string]any{"type": "number"},
	}
	required := []string{"text", "evidence_ocr_line_ids", "confidence"}
	if numeric {
		props["value"] = map[string]any{"type": []string{"number", "null"}}
		required = append(required, "value")
	}
	return map[string]any{
		"type":                 []string{"object", "null"},
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}
