package editor

import (
	"errors"
	"fmt"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
	"github.com/MarcoPoloResearchLab/storyboard/internal/hydration"
)

// CTAs returns a copy of the current slide's CTA array.
func (s *Session) CTAs() []cta.CTA {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]cta.CTA(nil), s.ctas...)
}

// CTAPayload returns the backend payload for the current slide's CTAs.
func (s *Session) CTAPayload() []cta.Payload {
	return cta.ExtractPayload(s.CTAs())
}

// AddCTA creates a CTA of kind on the current slide and places its element on the
// slide's page.
func (s *Session) AddCTA(kind cta.Kind, overrides cta.Overrides) (cta.CTA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pageID, err := s.currentPageLocked()
	if err != nil {
		return cta.CTA{}, err
	}
	created, err := s.factory.Create(kind, overrides)
	if err != nil {
		return cta.CTA{}, err
	}
	item := *created
	element, err := s.encoder.CTAElement(pageID, len(s.ctas), item)
	if err != nil {
		return cta.CTA{}, err
	}
	if err := s.document.AddElement(pageID, element); err != nil {
		return cta.CTA{}, err
	}
	item.Editor.ElementID = element.ID
	s.ctas = cta.AddToArray(s.ctas, item)
	return item, nil
}

// UpdateCTA merges updates into a CTA of the current slide and refreshes its element.
func (s *Session) UpdateCTA(id string, updates cta.Overrides) (cta.CTA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pageID, err := s.currentPageLocked()
	if err != nil {
		return cta.CTA{}, err
	}
	index := ctaIndex(s.ctas, id)
	if index < 0 {
		return cta.CTA{}, fmt.Errorf("%w: %s", ErrCTANotFound, id)
	}
	updated, err := cta.UpdateInArray(s.ctas, id, updates)
	if err != nil {
		return cta.CTA{}, err
	}
	item := updated[index]
	element, err := s.encoder.CTAElement(pageID, index, item)
	if err != nil {
		return cta.CTA{}, err
	}
	err = s.document.ReplaceElement(pageID, element)
	if errors.Is(err, canvas.ErrElementNotFound) {
		err = s.document.AddElement(pageID, element)
	}
	if err != nil {
		return cta.CTA{}, err
	}
	updated[index].Editor.ElementID = element.ID
	s.ctas = updated
	return updated[index], nil
}

// RemoveCTA deletes a CTA of the current slide together with its element.
func (s *Session) RemoveCTA(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pageID, err := s.currentPageLocked()
	if err != nil {
		return err
	}
	index := ctaIndex(s.ctas, id)
	if index < 0 {
		return fmt.Errorf("%w: %s", ErrCTANotFound, id)
	}
	elementID := s.ctas[index].Editor.ElementID
	if elementID != "" {
		if err := s.document.RemoveElement(pageID, elementID); err != nil && !errors.Is(err, canvas.ErrElementNotFound) {
			return err
		}
	}
	s.ctas = cta.RemoveFromArray(s.ctas, id)
	return nil
}

func (s *Session) currentPageLocked() (string, error) {
	if !s.open {
		return "", ErrSessionClosed
	}
	if s.currentSlideID == "" {
		return "", ErrNoCurrentSlide
	}
	pageID, ok := hydration.FindPageID(s.document.Pages(), s.currentSlideID)
	if !ok {
		return "", fmt.Errorf("%w: slide %s has no page", canvas.ErrPageNotFound, s.currentSlideID)
	}
	return pageID, nil
}

func ctaIndex(ctas []cta.CTA, id string) int {
	for index, item := range ctas {
		if item.ID == id {
			return index
		}
	}
	return -1
}
