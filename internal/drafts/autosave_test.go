package drafts

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

type switchGuard struct {
	hydrating atomic.Bool
}

func (g *switchGuard) IsHydrating() bool {
	return g.hydrating.Load()
}

// risingGuard reports hydration from its second query on, as when a group switch starts
// between the change delivery and the document snapshot.
type risingGuard struct {
	calls atomic.Int32
}

func (g *risingGuard) IsHydrating() bool {
	return g.calls.Add(1) > 1
}

type autosaveFixture struct {
	document  *canvas.Document
	store     *Store
	guard     *switchGuard
	autosaver *Autosaver
	key       DraftKey
}

func newAutosaveFixture(t *testing.T) *autosaveFixture {
	t.Helper()
	document := canvas.NewDocument(canvas.DocumentConfig{})
	t.Cleanup(document.Close)
	if err := document.LoadJSON(documentWithText("initial")); err != nil {
		t.Fatalf("load: %v", err)
	}
	store := newTestStore(t)
	guard := &switchGuard{}
	key := DraftKey{CampaignID: "c1", GroupID: "g1"}
	autosaver, err := NewAutosaver(AutosaverConfig{
		Store:  store,
		Source: document,
		Guard:  guard,
		Key:    func() (DraftKey, bool) { return key, true },
	})
	if err != nil {
		t.Fatalf("new autosaver: %v", err)
	}
	autosaver.Start()
	t.Cleanup(autosaver.Stop)
	return &autosaveFixture{document: document, store: store, guard: guard, autosaver: autosaver, key: key}
}

func (f *autosaveFixture) settle(t *testing.T) {
	t.Helper()
	if err := f.document.WaitIdle(context.Background()); err != nil {
		t.Fatalf("wait idle: %v", err)
	}
}

func TestAutosaverStoresElementEdits(t *testing.T) {
	fixture := newAutosaveFixture(t)
	fixture.settle(t)

	if err := fixture.document.AddElement("page-s1", canvas.Element{ID: "added", Type: canvas.ElementText, Text: "new"}); err != nil {
		t.Fatalf("add element: %v", err)
	}
	fixture.settle(t)

	draft, err := fixture.store.Latest(context.Background(), fixture.key)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if draft.Revision != int64(fixture.document.Revision()) {
		t.Fatalf("expected revision %d, got %d", fixture.document.Revision(), draft.Revision)
	}
	if stats := fixture.autosaver.Stats(); stats.Saved != 1 || stats.Skipped != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAutosaverNeverWritesWhileHydrating(t *testing.T) {
	fixture := newAutosaveFixture(t)
	fixture.guard.hydrating.Store(true)

	if err := fixture.document.LoadJSON(documentWithText("reloaded")); err != nil {
		t.Fatalf("load: %v", err)
	}
	if err := fixture.document.AddElement("page-s1", canvas.Element{ID: "during", Type: canvas.ElementText}); err != nil {
		t.Fatalf("add element: %v", err)
	}
	fixture.document.DeletePages([]string{"page-s1"})
	fixture.settle(t)

	if _, err := fixture.store.Latest(context.Background(), fixture.key); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected no draft while hydrating, got %v", err)
	}
	if stats := fixture.autosaver.Stats(); stats.Saved != 0 || stats.Skipped != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if _, err := fixture.autosaver.Flush(context.Background()); !errors.Is(err, ErrHydrating) {
		t.Fatalf("expected ErrHydrating from flush, got %v", err)
	}
}

func TestAutosaverDropsSnapshotTakenWhileGuardRises(t *testing.T) {
	document := canvas.NewDocument(canvas.DocumentConfig{})
	t.Cleanup(document.Close)
	if err := document.LoadJSON(documentWithText("initial")); err != nil {
		t.Fatalf("load: %v", err)
	}
	store := newTestStore(t)
	key := DraftKey{CampaignID: "c1", GroupID: "g1"}
	autosaver, err := NewAutosaver(AutosaverConfig{
		Store:  store,
		Source: document,
		Guard:  &risingGuard{},
		Key:    func() (DraftKey, bool) { return key, true },
	})
	if err != nil {
		t.Fatalf("new autosaver: %v", err)
	}
	autosaver.Start()
	t.Cleanup(autosaver.Stop)

	if err := document.AddElement("page-s1", canvas.Element{ID: "edit", Type: canvas.ElementText, Text: "edit"}); err != nil {
		t.Fatalf("add element: %v", err)
	}
	if err := document.WaitIdle(context.Background()); err != nil {
		t.Fatalf("wait idle: %v", err)
	}

	if _, err := store.Latest(context.Background(), key); !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected no draft from a snapshot taken while the guard rose, got %v", err)
	}
	if stats := autosaver.Stats(); stats.Saved != 0 || stats.Skipped != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAutosaverIgnoresSelectionAndCountsDuplicates(t *testing.T) {
	fixture := newAutosaveFixture(t)

	if err := fixture.document.SelectElements([]string{"page-s1-text"}); err != nil {
		t.Fatalf("select: %v", err)
	}
	fixture.settle(t)
	if stats := fixture.autosaver.Stats(); stats != (AutosaveStats{}) {
		t.Fatalf("expected selection to be ignored, got %+v", stats)
	}

	if _, err := fixture.autosaver.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	outcome, err := fixture.autosaver.Flush(context.Background())
	if err != nil {
		t.Fatalf("second flush: %v", err)
	}
	if !outcome.Duplicate {
		t.Fatalf("expected unchanged document to be a duplicate")
	}
	if stats := fixture.autosaver.Stats(); stats.Saved != 1 || stats.Duplicates != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestAutosaverStopsOnStop(t *testing.T) {
	fixture := newAutosaveFixture(t)
	fixture.autosaver.Stop()

	if err := fixture.document.AddElement("page-s1", canvas.Element{ID: "after-stop", Type: canvas.ElementText}); err != nil {
		t.Fatalf("add element: %v", err)
	}
	fixture.settle(t)
	if stats := fixture.autosaver.Stats(); stats.Saved != 0 {
		t.Fatalf("expected no saves after stop, got %+v", stats)
	}
}

func TestNewAutosaverValidation(t *testing.T) {
	store := newTestStore(t)
	document := canvas.NewDocument(canvas.DocumentConfig{})
	defer document.Close()
	key := func() (DraftKey, bool) { return DraftKey{}, false }

	testCases := []struct {
		name   string
		config AutosaverConfig
		want   error
	}{
		{name: "missing store", config: AutosaverConfig{Source: document, Key: key}, want: errMissingStore},
		{name: "missing source", config: AutosaverConfig{Store: store, Key: key}, want: errMissingSource},
		{name: "missing key", config: AutosaverConfig{Store: store, Source: document}, want: errMissingKey},
	}
	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if _, err := NewAutosaver(testCase.config); !errors.Is(err, testCase.want) {
				t.Fatalf("expected %v, got %v", testCase.want, err)
			}
		})
	}
}
