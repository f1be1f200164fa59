// Package campaigns holds the campaign aggregate fetched from the backend and the
// per-editor cache that serves lookups over it.
package campaigns

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Status reports whether a campaign is live.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// ID is a backend identifier that may be encoded as a JSON string or number.
type ID string

// UnmarshalJSON accepts strings, numbers and null.
func (id *ID) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*id = ""
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		*id = ID(strings.TrimSpace(text))
		return nil
	}
	var number json.Number
	if err := json.Unmarshal(trimmed, &number); err != nil {
		return fmt.Errorf("campaigns: identifier must be a string or number: %s", string(trimmed))
	}
	*id = ID(number.String())
	return nil
}

// String returns the identifier text.
func (id ID) String() string {
	return string(id)
}

// Campaign is the top-level aggregate owning ordered story groups.
type Campaign struct {
	ID          ID              `json:"id"`
	Name        string          `json:"name"`
	Conditions  json.RawMessage `json:"conditions,omitempty"`
	Status      Status          `json:"status,omitempty"`
	StoryGroups []StoryGroup    `json:"story_groups"`
}

// StoryGroup is a named collection of slides sharing presentation settings.
type StoryGroup struct {
	ID                   ID      `json:"id"`
	CampaignID           ID      `json:"campaign_id,omitempty"`
	Name                 string  `json:"name"`
	RingColor            string  `json:"ring_color,omitempty"`
	SlideDurationSeconds float64 `json:"slide_duration_seconds,omitempty"`
	Slides               []Slide `json:"slides"`
}

// SlideCustom correlates a slide with the record it was cloned from.
type SlideCustom struct {
	OriginalSlideID ID `json:"originalSlideId,omitempty"`
}

// Slide is one story frame. Content and styling are free-form JSON that may arrive
// as objects or as JSON-encoded strings.
type Slide struct {
	ID      ID              `json:"id"`
	Order   int             `json:"order"`
	Image   string          `json:"image,omitempty"`
	Video   string          `json:"video,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Styling json.RawMessage `json:"styling,omitempty"`
	Custom  *SlideCustom    `json:"custom,omitempty"`
}

// CorrelationID returns the id a canvas page hydrated from this slide refers back to.
func (s Slide) CorrelationID() ID {
	if s.Custom != nil && s.Custom.OriginalSlideID != "" {
		return s.Custom.OriginalSlideID
	}
	return s.ID
}

// NormalizeSlideOrders returns a copy of slides renumbered 1..N. The sort key is the
// slide's order when positive and its 1-based position otherwise; ties keep the original
// position. Normalizing an already normalized list returns an equal list.
func NormalizeSlideOrders(slides []Slide) []Slide {
	type keyed struct {
		slide    Slide
		key      int
		position int
	}
	entries := make([]keyed, len(slides))
	for index, slide := range slides {
		key := slide.Order
		if key <= 0 {
			key = index + 1
		}
		entries[index] = keyed{slide: slide, key: key, position: index}
	}
	sort.SliceStable(entries, func(left, right int) bool {
		if entries[left].key != entries[right].key {
			return entries[left].key < entries[right].key
		}
		return entries[left].position < entries[right].position
	})
	normalized := make([]Slide, len(entries))
	for index, entry := range entries {
		entry.slide.Order = index + 1
		normalized[index] = entry.slide
	}
	return normalized
}

func cloneCampaign(campaign Campaign) Campaign {
	cloned := campaign
	cloned.StoryGroups = make([]StoryGroup, len(campaign.StoryGroups))
	for index, group := range campaign.StoryGroups {
		cloned.StoryGroups[index] = cloneGroup(group)
	}
	return cloned
}

func cloneGroup(group StoryGroup) StoryGroup {
	cloned := group
	cloned.Slides = append([]Slide(nil), group.Slides...)
	return cloned
}
