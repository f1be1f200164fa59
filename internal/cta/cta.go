// Package cta defines call-to-action variants, their defaults, immutable array
// helpers and the minimal payload persisted by the backend.
package cta

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Fields is a loosely typed set of content or styling values supplied by callers.
type Fields map[string]any

// Overrides carries content and styling values merged over a variant.
type Overrides struct {
	Content Fields `json:"content,omitempty"`
	Styling Fields `json:"styling,omitempty"`
}

// EditorMeta holds editor bookkeeping that is never persisted.
type EditorMeta struct {
	ElementID string
	Selected  bool
}

// CTA is one call-to-action attached to a slide.
type CTA struct {
	ID      string
	Variant Variant
	Editor  EditorMeta
}

// Kind returns the variant kind, or an empty kind for a zero CTA.
func (c CTA) Kind() Kind {
	if c.Variant == nil {
		return ""
	}
	return c.Variant.Kind()
}

// Fields returns the content and styling of the CTA as generic maps.
func (c CTA) Fields() (Fields, Fields) {
	if c.Variant == nil {
		return Fields{}, Fields{}
	}
	content, styling := c.Variant.parts()
	return c.Variant.stored().fields(content, styling)
}

type wireCTA struct {
	ID      json.RawMessage `json:"id,omitempty"`
	Type    string          `json:"type"`
	Content json.RawMessage `json:"content,omitempty"`
	Styling json.RawMessage `json:"styling,omitempty"`
}

type encodedCTA struct {
	ID      string `json:"id"`
	Type    Kind   `json:"type"`
	Content Fields `json:"content"`
	Styling Fields `json:"styling"`
}

// MarshalJSON encodes the backend shape; editor bookkeeping is omitted.
func (c CTA) MarshalJSON() ([]byte, error) {
	if c.Variant == nil {
		return nil, fmt.Errorf("%w: missing variant", ErrInvalidPayload)
	}
	content, styling := c.Fields()
	return json.Marshal(encodedCTA{ID: c.ID, Type: c.Variant.Kind(), Content: content, Styling: styling})
}

// UnmarshalJSON decodes a stored CTA entry, accepting legacy type spellings,
// numeric ids and string-encoded content or styling objects. Field values of an
// unexpected JSON type are coerced where possible and otherwise kept verbatim.
func (c *CTA) UnmarshalJSON(data []byte) error {
	var wire wireCTA
	if err := json.Unmarshal(data, &wire); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	kind, err := ParseKind(wire.Type)
	if err != nil {
		return err
	}
	variant, err := registry[kind].blank().merge(wire.Content, wire.Styling, lenientDecode)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	*c = CTA{ID: decodeID(wire.ID), Variant: variant}
	return nil
}

// IDProvider issues CTA identifiers.
type IDProvider interface {
	NewID() (string, error)
}

// Factory creates CTAs with fresh identifiers.
type Factory struct {
	ids IDProvider
}

// NewFactory returns a Factory backed by the provided IDProvider, or UUIDv7 ids when nil.
func NewFactory(ids IDProvider) *Factory {
	if ids == nil {
		ids = NewUUIDProvider()
	}
	return &Factory{ids: ids}
}

// Create builds a CTA of the given kind with its defaults deep-merged with overrides.
// It returns ErrUnknownKind and a nil CTA for unsupported kinds.
func (f *Factory) Create(kind Kind, overrides Overrides) (*CTA, error) {
	def, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, string(kind))
	}
	variant, err := applyOverrides(def.defaults(), overrides)
	if err != nil {
		return nil, err
	}
	id, err := f.ids.NewID()
	if err != nil {
		return nil, err
	}
	return &CTA{ID: id, Variant: variant}, nil
}

// AddToArray returns a new slice with item appended.
func AddToArray(ctas []CTA, item CTA) []CTA {
	result := make([]CTA, 0, len(ctas)+1)
	result = append(result, ctas...)
	return append(result, item)
}

// RemoveFromArray returns a new slice without the CTA identified by id.
func RemoveFromArray(ctas []CTA, id string) []CTA {
	result := make([]CTA, 0, len(ctas))
	for _, item := range ctas {
		if item.ID == id {
			continue
		}
		result = append(result, item)
	}
	return result
}

// UpdateInArray returns a new slice where the CTA identified by id has its content and
// styling shallow-merged with updates. A missing id yields an unchanged copy.
func UpdateInArray(ctas []CTA, id string, updates Overrides) ([]CTA, error) {
	result := make([]CTA, len(ctas))
	copy(result, ctas)
	for index, item := range result {
		if item.ID != id || item.Variant == nil {
			continue
		}
		variant, err := applyOverrides(item.Variant, updates)
		if err != nil {
			return nil, err
		}
		result[index].Variant = variant
	}
	return result, nil
}

// Find returns the CTA identified by id.
func Find(ctas []CTA, id string) (CTA, bool) {
	for _, item := range ctas {
		if item.ID == id {
			return item, true
		}
	}
	return CTA{}, false
}

// Payload is the minimal CTA shape accepted by the backend.
type Payload struct {
	ID      string `json:"id"`
	Type    Kind   `json:"type"`
	Content Fields `json:"content"`
	Styling Fields `json:"styling"`
}

// ExtractPayload strips editor bookkeeping and returns backend payloads.
func ExtractPayload(ctas []CTA) []Payload {
	payloads := make([]Payload, 0, len(ctas))
	for _, item := range ctas {
		if item.Variant == nil {
			continue
		}
		content, styling := item.Fields()
		payloads = append(payloads, Payload{
			ID:      item.ID,
			Type:    item.Variant.Kind(),
			Content: content,
			Styling: styling,
		})
	}
	return payloads
}

func applyOverrides(variant Variant, overrides Overrides) (Variant, error) {
	content, err := marshalFields(overrides.Content)
	if err != nil {
		return nil, err
	}
	styling, err := marshalFields(overrides.Styling)
	if err != nil {
		return nil, err
	}
	merged, err := variant.merge(content, styling, strictDecode)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOverrides, err)
	}
	return merged, nil
}

func marshalFields(fields Fields) (json.RawMessage, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	encoded, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidOverrides, err)
	}
	return encoded, nil
}

func toFields(value any) Fields {
	encoded, err := json.Marshal(value)
	if err != nil {
		return Fields{}
	}
	fields := Fields{}
	if err := json.Unmarshal(encoded, &fields); err != nil {
		return Fields{}
	}
	return fields
}

func decodeID(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		return text
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err == nil {
		return number.String()
	}
	return string(trimmed)
}
