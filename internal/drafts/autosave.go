package drafts

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

const defaultSaveTimeout = 5 * time.Second

var (
	errMissingStore  = errors.New("drafts: store is required")
	errMissingSource = errors.New("drafts: document source is required")
	errMissingKey    = errors.New("drafts: key resolver is required")

	// ErrHydrating indicates a save attempted while slides were being loaded into the document.
	ErrHydrating = errors.New("drafts: document is hydrating")
)

// Source is the document an Autosaver watches.
type Source interface {
	Subscribe(listener canvas.Listener) func()
	ToJSON() canvas.DocumentJSON
	Revision() uint64
}

// Guard reports whether the document is being replaced by hydration.
type Guard interface {
	IsHydrating() bool
}

// KeyFunc resolves the draft key for the current editing context.
type KeyFunc func() (DraftKey, bool)

// AutosaverConfig wires an Autosaver.
type AutosaverConfig struct {
	Store       *Store
	Source      Source
	Guard       Guard
	Key         KeyFunc
	SaveTimeout time.Duration
	Logger      *zap.Logger
}

// AutosaveStats counts autosave decisions.
type AutosaveStats struct {
	Saved      int
	Duplicates int
	Skipped    int
	Failed     int
}

// Autosaver persists the document after user edits. Changes published while the guard
// reports hydration are never written.
type Autosaver struct {
	store   *Store
	source  Source
	guard   Guard
	key     KeyFunc
	timeout time.Duration
	logger  *zap.Logger

	mu      sync.Mutex
	stats   AutosaveStats
	dispose func()
}

// NewAutosaver validates the configuration.
func NewAutosaver(cfg AutosaverConfig) (*Autosaver, error) {
	switch {
	case cfg.Store == nil:
		return nil, errMissingStore
	case cfg.Source == nil:
		return nil, errMissingSource
	case cfg.Key == nil:
		return nil, errMissingKey
	}
	timeout := cfg.SaveTimeout
	if timeout <= 0 {
		timeout = defaultSaveTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}
	return &Autosaver{
		store:   cfg.Store,
		source:  cfg.Source,
		guard:   cfg.Guard,
		key:     cfg.Key,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Start subscribes to the source. Calling Start twice replaces the subscription.
func (a *Autosaver) Start() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dispose != nil {
		a.dispose()
	}
	a.dispose = a.source.Subscribe(a.handle)
}

// Stop unsubscribes from the source.
func (a *Autosaver) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.dispose != nil {
		a.dispose()
		a.dispose = nil
	}
}

// Stats returns a snapshot of the counters.
func (a *Autosaver) Stats() AutosaveStats {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stats
}

// Flush saves the current document immediately.
func (a *Autosaver) Flush(ctx context.Context) (SaveOutcome, error) {
	if a.hydrating() {
		a.count(func(stats *AutosaveStats) { stats.Skipped++ })
		return SaveOutcome{}, ErrHydrating
	}
	key, ok := a.key()
	if !ok {
		return SaveOutcome{}, ErrInvalidDraftKey
	}
	return a.save(ctx, key)
}

func (a *Autosaver) handle(change canvas.Change) {
	switch change.Kind {
	case canvas.ChangeElements, canvas.ChangePagesDeleted:
	default:
		return
	}
	if a.hydrating() {
		a.count(func(stats *AutosaveStats) { stats.Skipped++ })
		a.logger.Debug("autosave skipped during hydration", zap.Uint64("revision", change.Revision))
		return
	}
	key, ok := a.key()
	if !ok {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
	defer cancel()
	_, _ = a.save(ctx, key)
}

// save snapshots the source under key. A guard raised while the snapshot was taken
// means key and document may belong to different groups, so nothing is written.
func (a *Autosaver) save(ctx context.Context, key DraftKey) (SaveOutcome, error) {
	revision := a.source.Revision()
	document := a.source.ToJSON()
	if a.hydrating() {
		a.count(func(stats *AutosaveStats) { stats.Skipped++ })
		return SaveOutcome{}, ErrHydrating
	}
	outcome, err := a.store.Save(ctx, key, document, revision)
	switch {
	case err != nil:
		a.count(func(stats *AutosaveStats) { stats.Failed++ })
		a.logger.Warn("autosave failed",
			zap.String("campaign_id", key.CampaignID),
			zap.String("group_id", key.GroupID),
			zap.Error(err))
	case outcome.Duplicate:
		a.count(func(stats *AutosaveStats) { stats.Duplicates++ })
	default:
		a.count(func(stats *AutosaveStats) { stats.Saved++ })
		a.logger.Debug("autosave stored draft",
			zap.String("draft_id", outcome.Draft.DraftID),
			zap.Int64("version", outcome.Draft.Version),
			zap.Uint64("revision", revision))
	}
	return outcome, err
}

func (a *Autosaver) hydrating() bool {
	return a.guard != nil && a.guard.IsHydrating()
}

func (a *Autosaver) count(update func(*AutosaveStats)) {
	a.mu.Lock()
	update(&a.stats)
	a.mu.Unlock()
}
