// Package canvas is the design-canvas document consumed by the editor: an ordered set of
// pages holding positioned elements, an active page, an element selection and a change feed.
package canvas

import "encoding/json"

// ElementType enumerates the element kinds the editor produces.
type ElementType string

const (
	ElementImage ElementType = "image"
	ElementVideo ElementType = "video"
	ElementSVG   ElementType = "svg"
	ElementText  ElementType = "text"
)

// Element roles recorded in ElementCustom.Role.
const (
	RoleBackground = "background"
	RoleText       = "text"
	RoleCTA        = "cta"
	RolePoll       = "poll"
)

// ElementCustom carries editor metadata attached to an element.
type ElementCustom struct {
	Role  string          `json:"role,omitempty"`
	CTAID string          `json:"ctaId,omitempty"`
	CTA   json.RawMessage `json:"cta,omitempty"`
}

// Element is one positioned visual on a page.
type Element struct {
	ID           string         `json:"id"`
	Type         ElementType    `json:"type"`
	Name         string         `json:"name,omitempty"`
	X            float64        `json:"x"`
	Y            float64        `json:"y"`
	Width        float64        `json:"width"`
	Height       float64        `json:"height"`
	Rotation     float64        `json:"rotation"`
	Opacity      float64        `json:"opacity"`
	Src          string         `json:"src,omitempty"`
	Text         string         `json:"text,omitempty"`
	FontSize     float64        `json:"fontSize,omitempty"`
	FontFamily   string         `json:"fontFamily,omitempty"`
	FontWeight   string         `json:"fontWeight,omitempty"`
	Fill         string         `json:"fill,omitempty"`
	Align        string         `json:"align,omitempty"`
	CornerRadius float64        `json:"cornerRadius,omitempty"`
	Custom       *ElementCustom `json:"custom,omitempty"`
}

// PageCustom correlates a page with the backend slide it was hydrated from.
type PageCustom struct {
	OriginalSlideID string `json:"originalSlideId,omitempty"`
	HasMedia        bool   `json:"hasMedia"`
	HasText         bool   `json:"hasText"`
	HasCtas         bool   `json:"hasCtas"`
	HasPoll         bool   `json:"hasPoll"`
}

// Page is one canvas page.
type Page struct {
	ID         string     `json:"id"`
	Background string     `json:"background,omitempty"`
	Children   []Element  `json:"children"`
	Custom     PageCustom `json:"custom"`
}

// SlideID resolves the logical slide id of the page, preferring the backend correlation.
func (p Page) SlideID() string {
	if p.Custom.OriginalSlideID != "" {
		return p.Custom.OriginalSlideID
	}
	return p.ID
}

// DocumentJSON is the serialized document accepted by LoadJSON.
type DocumentJSON struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Unit   string  `json:"unit"`
	DPI    int     `json:"dpi"`
	Fonts  []Font  `json:"fonts"`
	Pages  []Page  `json:"pages"`
}

// Font declares a custom font family used by text elements.
type Font struct {
	FontFamily string `json:"fontFamily"`
	URL        string `json:"url,omitempty"`
}

func clonePage(page Page) Page {
	cloned := page
	cloned.Children = make([]Element, len(page.Children))
	for index, element := range page.Children {
		cloned.Children[index] = cloneElement(element)
	}
	return cloned
}

func cloneElement(element Element) Element {
	cloned := element
	if element.Custom != nil {
		custom := *element.Custom
		if element.Custom.CTA != nil {
			custom.CTA = append(json.RawMessage(nil), element.Custom.CTA...)
		}
		cloned.Custom = &custom
	}
	return cloned
}
