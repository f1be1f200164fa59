// Package editor is the top-level editing session: it owns the current group and slide,
// the CTA array of the current slide, and keeps them in step with the canvas document's
// active page.
package editor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/codec"
	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
	"github.com/MarcoPoloResearchLab/storyboard/internal/hydration"
)

var (
	errMissingDocument   = errors.New("editor: canvas document is required")
	errMissingCache      = errors.New("editor: campaign cache is required")
	errMissingController = errors.New("editor: hydration controller is required")
	errMissingDeleter    = errors.New("editor: slide deleter is required")
	errMissingConfirmer  = errors.New("editor: confirmer is required")

	// ErrSessionClosed indicates an operation on a session that is not open.
	ErrSessionClosed = errors.New("editor: session is not open")
	// ErrGroupNotFound indicates an unknown story group.
	ErrGroupNotFound = errors.New("editor: story group not found")
	// ErrSlideNotFound indicates an unknown slide or one outside the current group.
	ErrSlideNotFound = errors.New("editor: slide not found in current group")
	// ErrNoCurrentSlide indicates a CTA operation without a selected slide.
	ErrNoCurrentSlide = errors.New("editor: no current slide")
	// ErrHydrationFailed indicates the group could not be loaded into the document.
	ErrHydrationFailed = errors.New("editor: hydration failed")
	// ErrCTANotFound indicates an unknown CTA id on the current slide.
	ErrCTANotFound = errors.New("editor: cta not found")
)

// Confirmer asks the user to approve a destructive operation.
type Confirmer interface {
	Confirm(ctx context.Context, message string) bool
}

// Alerter shows a blocking failure message to the user.
type Alerter interface {
	Alert(ctx context.Context, message string)
}

// SlideDeleter deletes slides on the backend.
type SlideDeleter interface {
	DeleteStorySlide(ctx context.Context, slideID campaigns.ID) error
}

// Config wires a Session.
type Config struct {
	Document   *canvas.Document
	Cache      *campaigns.Cache
	Controller *hydration.Controller
	Deleter    SlideDeleter
	Confirmer  Confirmer
	Alerter    Alerter
	CTAFactory *cta.Factory
	Logger     *zap.Logger
}

// Session is one editing session over a campaign.
type Session struct {
	document   *canvas.Document
	cache      *campaigns.Cache
	controller *hydration.Controller
	encoder    *codec.Encoder
	deleter    SlideDeleter
	confirmer  Confirmer
	alerter    Alerter
	factory    *cta.Factory
	logger     *zap.Logger

	switching atomic.Int32

	mu             sync.Mutex
	open           bool
	dispose        func()
	campaignID     campaigns.ID
	currentGroupID campaigns.ID
	currentSlideID campaigns.ID
	state          codec.EditorState
	ctas           []cta.CTA
}

// NewSession validates dependencies and returns a closed session.
func NewSession(cfg Config) (*Session, error) {
	switch {
	case cfg.Document == nil:
		return nil, errMissingDocument
	case cfg.Cache == nil:
		return nil, errMissingCache
	case cfg.Controller == nil:
		return nil, errMissingController
	case cfg.Deleter == nil:
		return nil, errMissingDeleter
	case cfg.Confirmer == nil:
		return nil, errMissingConfirmer
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := cfg.CTAFactory
	if factory == nil {
		factory = cta.NewFactory(nil)
	}
	alerter := cfg.Alerter
	if alerter == nil {
		alerter = logAlerter{logger: logger}
	}
	return &Session{
		document:   cfg.Document,
		cache:      cfg.Cache,
		controller: cfg.Controller,
		encoder:    cfg.Controller.Encoder(),
		deleter:    cfg.Deleter,
		confirmer:  cfg.Confirmer,
		alerter:    alerter,
		factory:    factory,
		logger:     logger,
	}, nil
}

// Open fetches the campaign, selects the requested group (or the first one) and starts
// observing the document's active page.
func (s *Session) Open(ctx context.Context, campaignID campaigns.ID, groupID campaigns.ID) error {
	if err := s.cache.FetchCampaign(ctx, campaignID, groupID, false); err != nil {
		return err
	}
	campaign, _ := s.cache.Campaign()

	s.mu.Lock()
	if s.dispose != nil {
		s.dispose()
	}
	s.open = true
	s.campaignID = campaign.ID
	s.dispose = s.document.Subscribe(s.observeActivePage)
	s.mu.Unlock()

	if groupID == "" {
		groups := s.cache.Groups()
		if len(groups) == 0 {
			return nil
		}
		groupID = groups[0].ID
	}
	return s.SetCurrentGroup(ctx, groupID)
}

// Close stops observing the document and discards session state.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dispose != nil {
		s.dispose()
		s.dispose = nil
	}
	s.open = false
	s.campaignID = ""
	s.currentGroupID = ""
	s.currentSlideID = ""
	s.state = codec.EditorState{}
	s.ctas = nil
}

// CampaignID returns the campaign the session was opened on.
func (s *Session) CampaignID() campaigns.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.campaignID
}

// CurrentGroupID returns the selected group id.
func (s *Session) CurrentGroupID() campaigns.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentGroupID
}

// CurrentSlideID returns the selected slide id, empty when the group has no slides.
func (s *Session) CurrentSlideID() campaigns.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSlideID
}

// CurrentGroup returns the selected group from the cache.
func (s *Session) CurrentGroup() (campaigns.StoryGroup, bool) {
	groupID := s.CurrentGroupID()
	if groupID == "" {
		return campaigns.StoryGroup{}, false
	}
	return s.cache.FindGroup(groupID, "")
}

// CurrentSlide returns the selected slide from the cache.
func (s *Session) CurrentSlide() (campaigns.Slide, bool) {
	return s.cache.FindSlide(s.CurrentSlideID())
}

// EditorState returns the derived state of the current slide.
func (s *Session) EditorState() codec.EditorState {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := s.state
	state.CTAs = append([]cta.CTA(nil), s.ctas...)
	return state
}

// SetCurrentGroup switches to a group, selecting its first slide (or none) and hydrating
// the group's slides into the document. The current group and slide change only after
// the group has loaded; a failed load leaves them untouched.
func (s *Session) SetCurrentGroup(ctx context.Context, groupID campaigns.ID) error {
	if _, ok := s.cache.FindGroup(groupID, ""); !ok {
		return fmt.Errorf("%w: %s", ErrGroupNotFound, groupID)
	}
	slides := s.cache.GetSlidesForGroup(groupID)
	if !s.isOpen() {
		return ErrSessionClosed
	}

	s.switching.Add(1)
	defer s.switching.Add(-1)

	if !s.controller.HydrateAllSlides(ctx, slides) {
		return fmt.Errorf("%w: group %s", ErrHydrationFailed, groupID)
	}

	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	s.currentGroupID = groupID
	s.currentSlideID = ""
	if len(slides) > 0 {
		s.currentSlideID = slides[0].ID
	}
	s.rederiveLocked()
	s.mu.Unlock()

	if len(slides) > 0 {
		s.controller.SelectSlide(s.CurrentSlideID())
	}
	return nil
}

// IsHydrating reports whether the document is loading or the session is between groups.
// Document changes observed while it is true do not belong to the current group.
func (s *Session) IsHydrating() bool {
	return s.switching.Load() > 0 || s.controller.IsHydrating()
}

func (s *Session) isOpen() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.open
}

// SetCurrentSlide selects a slide of the current group, re-derives its CTA state and
// activates its page.
func (s *Session) SetCurrentSlide(slideID campaigns.ID) error {
	s.mu.Lock()
	if !s.open {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	slide, ok := s.slideInGroupLocked(slideID)
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrSlideNotFound, slideID)
	}
	changed := s.currentSlideID != slide.ID
	s.currentSlideID = slide.ID
	if changed {
		s.rederiveLocked()
	}
	s.mu.Unlock()

	s.controller.SelectSlide(slide.ID)
	return nil
}

// observeActivePage maps the document's active page back to a slide. It runs on the
// document's change feed and returns early when the slide is already current.
func (s *Session) observeActivePage(change canvas.Change) {
	if change.Kind != canvas.ChangeActivePage && change.Kind != canvas.ChangeLoaded {
		return
	}
	var resolved campaigns.ID
	if change.ActivePageID != "" {
		page, ok := s.document.Page(change.ActivePageID)
		if !ok {
			return
		}
		resolved = campaigns.ID(page.SlideID())
		if slide, found := s.cache.FindSlide(resolved); found {
			resolved = slide.ID
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open || resolved == s.currentSlideID {
		return
	}
	if resolved != "" {
		if _, ok := s.slideInGroupLocked(resolved); !ok {
			s.logger.Debug("editor active page outside current group", zap.String("slide_id", resolved.String()))
			return
		}
	}
	s.currentSlideID = resolved
	s.rederiveLocked()
}

func (s *Session) slideInGroupLocked(slideID campaigns.ID) (campaigns.Slide, bool) {
	if slideID == "" || s.currentGroupID == "" {
		return campaigns.Slide{}, false
	}
	for _, slide := range s.cache.GetSlidesForGroup(s.currentGroupID) {
		if slide.ID == slideID || slide.CorrelationID() == slideID {
			return slide, true
		}
	}
	return campaigns.Slide{}, false
}

func (s *Session) rederiveLocked() {
	if s.currentSlideID == "" {
		s.state = codec.EditorState{}
		s.ctas = nil
		return
	}
	slide, ok := s.cache.FindSlide(s.currentSlideID)
	if !ok {
		s.state = codec.EditorState{}
		s.ctas = nil
		return
	}
	s.state = s.controller.HydrateCTAState(slide)
	s.ctas = s.state.CTAs
}

type logAlerter struct {
	logger *zap.Logger
}

func (a logAlerter) Alert(_ context.Context, message string) {
	a.logger.Warn("editor alert", zap.String("message", message))
}
