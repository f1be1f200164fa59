package server

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/backend"
	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/cta"
	"github.com/MarcoPoloResearchLab/storyboard/internal/drafts"
	"github.com/MarcoPoloResearchLab/storyboard/internal/editor"
	"github.com/MarcoPoloResearchLab/storyboard/internal/hydration"
)

var (
	errMissingBackend = errors.New("backend api dependency required")

	// ErrSessionNotFound indicates an unknown or closed session id.
	ErrSessionNotFound = errors.New("server: session not found")
	// ErrDraftsDisabled indicates a draft operation on a manager without a draft store.
	ErrDraftsDisabled = errors.New("server: drafts are not configured")
)

type confirmationKey struct{}

// WithConfirmation marks ctx as carrying the caller's answer to deletion prompts.
func WithConfirmation(ctx context.Context, confirmed bool) context.Context {
	return context.WithValue(ctx, confirmationKey{}, confirmed)
}

// requestConfirmer answers prompts from the flag the HTTP request carried.
type requestConfirmer struct{}

func (requestConfirmer) Confirm(ctx context.Context, _ string) bool {
	confirmed, _ := ctx.Value(confirmationKey{}).(bool)
	return confirmed
}

// streamAlerter forwards alerts to the session's event stream.
type streamAlerter struct {
	sessionID string
	events    *RealtimeDispatcher
	logger    *zap.Logger
}

func (a streamAlerter) Alert(_ context.Context, message string) {
	a.logger.Warn("editor alert", zap.String("session_id", a.sessionID), zap.String("message", message))
	a.events.Publish(RealtimeMessage{
		SessionID: a.sessionID,
		EventType: RealtimeEventAlert,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}

// SessionManagerConfig wires a SessionManager.
type SessionManagerConfig struct {
	Backend     backend.API
	Drafts      *drafts.Store
	Events      *RealtimeDispatcher
	SettleDelay time.Duration
	ExportScale float64
	Logger      *zap.Logger
}

// SessionManager owns the editor sessions opened over HTTP. Each session gets its own
// canvas document, campaign cache and hydration controller.
type SessionManager struct {
	backend     backend.API
	drafts      *drafts.Store
	events      *RealtimeDispatcher
	settleDelay time.Duration
	exportScale float64
	factory     *cta.Factory
	logger      *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*editorSession
}

type editorSession struct {
	id         string
	createdAt  time.Time
	document   *canvas.Document
	controller *hydration.Controller
	editor     *editor.Session
	autosaver  *drafts.Autosaver
	unwatch    func()
}

// NewSessionManager validates dependencies.
func NewSessionManager(cfg SessionManagerConfig) (*SessionManager, error) {
	if cfg.Backend == nil {
		return nil, errMissingBackend
	}
	events := cfg.Events
	if events == nil {
		events = NewRealtimeDispatcher()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionManager{
		backend:     cfg.Backend,
		drafts:      cfg.Drafts,
		events:      events,
		settleDelay: cfg.SettleDelay,
		exportScale: cfg.ExportScale,
		factory:     cta.NewFactory(cta.NewUUIDProvider()),
		logger:      logger,
		sessions:    make(map[string]*editorSession),
	}, nil
}

// Events returns the dispatcher carrying session events.
func (m *SessionManager) Events() *RealtimeDispatcher {
	return m.events
}

// Open builds a session stack and opens it on a campaign.
func (m *SessionManager) Open(ctx context.Context, campaignID campaigns.ID, groupID campaigns.ID) (*editorSession, error) {
	identifier, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}
	sessionID := identifier.String()
	logger := m.logger.With(zap.String("session_id", sessionID))

	document := canvas.NewDocument(canvas.DocumentConfig{ExportScale: m.exportScale})
	cache, err := campaigns.NewCache(campaigns.CacheConfig{Backend: m.backend, Logger: logger})
	if err != nil {
		document.Close()
		return nil, err
	}
	controller, err := hydration.NewController(hydration.Config{
		Document:    document,
		SettleDelay: m.settleDelay,
		Logger:      logger,
	})
	if err != nil {
		document.Close()
		return nil, err
	}
	session, err := editor.NewSession(editor.Config{
		Document:   document,
		Cache:      cache,
		Controller: controller,
		Deleter:    m.backend,
		Confirmer:  requestConfirmer{},
		Alerter:    streamAlerter{sessionID: sessionID, events: m.events, logger: logger},
		CTAFactory: m.factory,
		Logger:     logger,
	})
	if err != nil {
		document.Close()
		return nil, err
	}

	entry := &editorSession{
		id:         sessionID,
		createdAt:  time.Now().UTC(),
		document:   document,
		controller: controller,
		editor:     session,
	}
	entry.unwatch = document.Subscribe(func(change canvas.Change) {
		m.events.Publish(RealtimeMessage{
			SessionID:    sessionID,
			EventType:    string(change.Kind),
			Revision:     change.Revision,
			ActivePageID: change.ActivePageID,
			PageIDs:      change.PageIDs,
			Timestamp:    time.Now().UTC(),
		})
	})

	if m.drafts != nil {
		autosaver, err := drafts.NewAutosaver(drafts.AutosaverConfig{
			Store:  m.drafts,
			Source: document,
			Guard:  session,
			Key:    sessionDraftKey(session),
			Logger: logger,
		})
		if err != nil {
			entry.close()
			return nil, err
		}
		autosaver.Start()
		entry.autosaver = autosaver
	}

	if err := session.Open(ctx, campaignID, groupID); err != nil {
		entry.close()
		return nil, err
	}

	m.mu.Lock()
	m.sessions[sessionID] = entry
	m.mu.Unlock()
	logger.Info("editor session opened",
		zap.String("campaign_id", session.CampaignID().String()),
		zap.String("group_id", session.CurrentGroupID().String()))
	return entry, nil
}

// Get returns an open session.
func (m *SessionManager) Get(sessionID string) (*editorSession, error) {
	m.mu.RLock()
	entry, ok := m.sessions[sessionID]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return entry, nil
}

// Close closes and forgets a session.
func (m *SessionManager) Close(sessionID string) error {
	m.mu.Lock()
	entry, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	entry.close()
	m.events.CloseSession(sessionID)
	m.logger.Info("editor session closed", zap.String("session_id", sessionID))
	return nil
}

// CloseAll closes every session.
func (m *SessionManager) CloseAll() {
	m.mu.Lock()
	entries := m.sessions
	m.sessions = make(map[string]*editorSession)
	m.mu.Unlock()
	for sessionID, entry := range entries {
		entry.close()
		m.events.CloseSession(sessionID)
	}
}

// SaveDraft flushes the session's document to the draft store.
func (m *SessionManager) SaveDraft(ctx context.Context, entry *editorSession) (drafts.SaveOutcome, error) {
	if entry.autosaver == nil {
		return drafts.SaveOutcome{}, ErrDraftsDisabled
	}
	return entry.autosaver.Flush(ctx)
}

// LatestDraft loads the stored draft of the session's current group.
func (m *SessionManager) LatestDraft(ctx context.Context, entry *editorSession) (drafts.Draft, error) {
	if m.drafts == nil {
		return drafts.Draft{}, ErrDraftsDisabled
	}
	key, ok := sessionDraftKey(entry.editor)()
	if !ok {
		return drafts.Draft{}, drafts.ErrInvalidDraftKey
	}
	return m.drafts.Latest(ctx, key)
}

func (e *editorSession) close() {
	if e.autosaver != nil {
		e.autosaver.Stop()
	}
	if e.unwatch != nil {
		e.unwatch()
	}
	e.editor.Close()
	e.document.Close()
}

func sessionDraftKey(session *editor.Session) drafts.KeyFunc {
	return func() (drafts.DraftKey, bool) {
		key, err := drafts.NewDraftKey(session.CampaignID().String(), session.CurrentGroupID().String())
		return key, err == nil
	}
}
