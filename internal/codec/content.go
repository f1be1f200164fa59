package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
)

var errMalformedObject = errors.New("codec: value is not a JSON object")

// Poll is a question with answer options rendered as a widget.
type Poll struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// SlideStyling is the typed view of a slide's styling object. Unknown keys are kept in Extra.
type SlideStyling struct {
	BackgroundColor string
	TextColor       string
	FontSize        float64
	FontFamily      string
	FontWeight      string
	TextAlign       string
	TextX           float64
	TextY           float64
	HasTextPosition bool
	Extra           map[string]json.RawMessage
}

// decodeObject parses a free-form content or styling value that may be an object or a
// JSON-encoded string holding an object. Empty input yields an empty map.
func decodeObject(raw json.RawMessage) (map[string]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return map[string]json.RawMessage{}, nil
	}
	if trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return map[string]json.RawMessage{}, err
		}
		inner = strings.TrimSpace(inner)
		if inner == "" {
			return map[string]json.RawMessage{}, nil
		}
		trimmed = []byte(inner)
	}
	if trimmed[0] != '{' {
		return map[string]json.RawMessage{}, fmt.Errorf("%w: %.40s", errMalformedObject, string(trimmed))
	}
	object := map[string]json.RawMessage{}
	if err := json.Unmarshal(trimmed, &object); err != nil {
		return map[string]json.RawMessage{}, err
	}
	return object, nil
}

func stringValue(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		return text
	}
	var number json.Number
	if err := json.Unmarshal(raw, &number); err == nil {
		return number.String()
	}
	return ""
}

func numberValue(raw json.RawMessage) (float64, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	var number float64
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		text = strings.TrimSuffix(strings.TrimSpace(text), "px")
		if parsed, parseErr := strconv.ParseFloat(text, 64); parseErr == nil {
			return parsed, true
		}
	}
	return 0, false
}

var stylingKeys = map[string]struct{}{
	"backgroundColor": {}, "textColor": {}, "color": {}, "fontSize": {}, "fontFamily": {},
	"fontWeight": {}, "textAlign": {}, "textPosition": {},
}

func parseStyling(object map[string]json.RawMessage) SlideStyling {
	styling := SlideStyling{
		BackgroundColor: stringValue(object["backgroundColor"]),
		TextColor:       stringValue(object["textColor"]),
		FontFamily:      stringValue(object["fontFamily"]),
		FontWeight:      stringValue(object["fontWeight"]),
		TextAlign:       stringValue(object["textAlign"]),
		Extra:           map[string]json.RawMessage{},
	}
	if styling.TextColor == "" {
		styling.TextColor = stringValue(object["color"])
	}
	if size, ok := numberValue(object["fontSize"]); ok {
		styling.FontSize = size
	}
	if rawPosition, ok := object["textPosition"]; ok {
		position, err := decodeObject(rawPosition)
		if err == nil {
			x, okX := numberValue(position["x"])
			y, okY := numberValue(position["y"])
			if okX && okY {
				styling.TextX, styling.TextY, styling.HasTextPosition = x, y, true
			}
		}
	}
	for key, value := range object {
		if _, known := stylingKeys[key]; !known {
			styling.Extra[key] = value
		}
	}
	return styling
}

// parsePoll accepts options as strings or as objects carrying text/label.
func parsePoll(raw json.RawMessage) (*Poll, error) {
	object, err := decodeObject(raw)
	if err != nil {
		return nil, err
	}
	if len(object) == 0 {
		return nil, nil
	}
	poll := &Poll{Question: stringValue(object["question"])}
	var options []json.RawMessage
	if rawOptions, ok := object["options"]; ok {
		if err := json.Unmarshal(rawOptions, &options); err != nil {
			return nil, fmt.Errorf("codec: poll options: %w", err)
		}
	}
	for _, option := range options {
		if text := stringValue(option); text != "" {
			poll.Options = append(poll.Options, text)
			continue
		}
		fields, err := decodeObject(option)
		if err != nil {
			continue
		}
		text := stringValue(fields["text"])
		if text == "" {
			text = stringValue(fields["label"])
		}
		if text != "" {
			poll.Options = append(poll.Options, text)
		}
	}
	if poll.Question == "" && len(poll.Options) == 0 {
		return nil, nil
	}
	return poll, nil
}

// rawCTAs returns content.ctas entries followed by the legacy single content.cta entry.
func rawCTAs(object map[string]json.RawMessage) ([]json.RawMessage, error) {
	var entries []json.RawMessage
	if raw, ok := object["ctas"]; ok {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && trimmed[0] == '"' {
			var inner string
			if err := json.Unmarshal(trimmed, &inner); err != nil {
				return nil, err
			}
			trimmed = []byte(inner)
		}
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			if err := json.Unmarshal(trimmed, &entries); err != nil {
				return nil, fmt.Errorf("codec: ctas is not an array: %w", err)
			}
		}
	}
	if raw, ok := object["cta"]; ok {
		trimmed := bytes.TrimSpace(raw)
		if len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null")) {
			entries = append(entries, raw)
		}
	}
	return entries, nil
}

func decodeCTA(raw json.RawMessage) (cta.CTA, error) {
	var item cta.CTA
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var inner string
		if err := json.Unmarshal(trimmed, &inner); err != nil {
			return cta.CTA{}, err
		}
		trimmed = []byte(inner)
	}
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return cta.CTA{}, err
	}
	return item, nil
}
