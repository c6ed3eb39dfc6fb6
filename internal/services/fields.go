package services

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Lllllllleong/adt1extractor/internal/failure"
	"github.com/Lllllllleong/adt1extractor/internal/models"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// fieldsSchema accepts one flat object carrying every ADT-1 key. Values may be
// strings, numbers or null; extra keys are allowed.
var fieldsSchema = jsonschema.MustCompileString("adt1-fields.json", buildFieldsSchema())

func buildFieldsSchema() string {
	props := make(map[string]any, len(models.ADT1FieldKeys))
	for _, key := range models.ADT1FieldKeys {
		props[key] = map[string]any{"type": []string{"string", "number", "null"}}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": props,
		"required":   models.ADT1FieldKeys,
	}
	b, err := json.Marshal(schema)
	if err != nil {
		panic(err)
	}
	return string(b)
}

var codeFenceRegex = regexp.MustCompile("```(?:json)?")

// StripCodeFences removes Markdown code fences the model sometimes wraps JSON in.
func StripCodeFences(s string) string {
	return strings.TrimSpace(codeFenceRegex.ReplaceAllString(s, ""))
}

// NormalizeFields checks a fields response against the ADT-1 schema and
// returns it re-indented along with the parsed record.
func NormalizeFields(raw string) (string, models.FieldRecord, error) {
	cleaned := StripCodeFences(raw)

	var data any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return "", nil, fmt.Errorf("fields response: %w: not JSON: %v", failure.ErrValidation, err)
	}
	if err := fieldsSchema.Validate(data); err != nil {
		return "", nil, fmt.Errorf("fields response: %w: %v", failure.ErrValidation, err)
	}

	obj := data.(map[string]any)
	record := make(models.FieldRecord, len(models.ADT1FieldKeys))
	for _, key := range models.ADT1FieldKeys {
		switch v := obj[key].(type) {
		case string:
			record[key] = v
		case float64:
			record[key] = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			record[key] = ""
		}
	}

	pretty, err := json.MarshalIndent(obj, "", "    ")
	if err != nil {
		return "", nil, fmt.Errorf("fields response: %w: %v", failure.ErrValidation, err)
	}
	return string(pretty), record, nil
}
