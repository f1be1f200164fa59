package cta

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

type decodeMode int

const (
	// strictDecode rejects values that cannot be coerced to the typed field.
	strictDecode decodeMode = iota
	// lenientDecode leaves such fields unchanged; the stored value is kept verbatim.
	lenientDecode
)

// storedFields holds every content and styling key supplied to a variant, verbatim.
// Keys the typed records do not model and explicit zero values live only here.
type storedFields struct {
	content map[string]json.RawMessage
	styling map[string]json.RawMessage
}

// apply projects content and styling onto the typed records and returns the stored
// keys extended with everything supplied. The receiver maps are never mutated.
func (s storedFields) apply(content any, styling any, rawContent json.RawMessage, rawStyling json.RawMessage, mode decodeMode) (storedFields, error) {
	contentValues, err := decodeFieldObject(rawContent)
	if err != nil {
		return storedFields{}, fmt.Errorf("content: %w", err)
	}
	stylingValues, err := decodeFieldObject(rawStyling)
	if err != nil {
		return storedFields{}, fmt.Errorf("styling: %w", err)
	}
	if err := project(content, contentValues, mode); err != nil {
		return storedFields{}, fmt.Errorf("content: %w", err)
	}
	if err := project(styling, stylingValues, mode); err != nil {
		return storedFields{}, fmt.Errorf("styling: %w", err)
	}
	return storedFields{
		content: overlayRaw(s.content, contentValues),
		styling: overlayRaw(s.styling, stylingValues),
	}, nil
}

func (s storedFields) fields(content any, styling any) (Fields, Fields) {
	return withStored(toFields(content), s.content), withStored(toFields(styling), s.styling)
}

// decodeFieldObject accepts an object or a string-encoded object. Empty input and
// null decode to no values.
func decodeFieldObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return nil, err
		}
		trimmed = bytes.TrimSpace([]byte(inner))
		if len(trimmed) == 0 {
			return nil, nil
		}
	}
	var values map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &values); err != nil {
		return nil, err
	}
	return values, nil
}

// project decodes values onto the record behind target by json tag. Numbers fill text
// fields and numeric or pixel strings fill numeric fields.
func project(target any, values map[string]json.RawMessage, mode decodeMode) error {
	if len(values) == 0 {
		return nil
	}
	input := make(map[string]any, len(values))
	for key, raw := range values {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		input[key] = value
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           target,
		TagName:          "json",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.DecodeHookFuncKind(pixelLength),
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(input); err != nil && mode == strictDecode {
		return err
	}
	return nil
}

// pixelLength strips a CSS "px" unit from strings bound for numeric fields.
func pixelLength(from reflect.Kind, to reflect.Kind, data any) (any, error) {
	text, ok := data.(string)
	if !ok || from != reflect.String || to != reflect.Float64 {
		return data, nil
	}
	normalized := strings.TrimSpace(strings.ToLower(text))
	return strings.TrimSpace(strings.TrimSuffix(normalized, "px")), nil
}

func overlayRaw(base map[string]json.RawMessage, updates map[string]json.RawMessage) map[string]json.RawMessage {
	if len(updates) == 0 {
		return base
	}
	merged := make(map[string]json.RawMessage, len(base)+len(updates))
	for key, value := range base {
		merged[key] = value
	}
	for key, value := range updates {
		merged[key] = value
	}
	return merged
}

func withStored(fields Fields, stored map[string]json.RawMessage) Fields {
	for key, raw := range stored {
		var value any
		if err := json.Unmarshal(raw, &value); err != nil {
			continue
		}
		fields[key] = value
	}
	return fields
}
