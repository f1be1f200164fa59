package drafts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	database, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "drafts.db")), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := database.AutoMigrate(&Draft{}, &DraftRevision{}); err != nil {
		t.Fatalf("failed to migrate schema: %v", err)
	}
	return database
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tick := int64(1_700_000_000)
	store, err := NewStore(StoreConfig{
		Database: openTestDatabase(t),
		Clock: func() time.Time {
			tick++
			return time.Unix(tick, 0)
		},
	})
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func documentWithText(text string) canvas.DocumentJSON {
	return canvas.DocumentJSON{
		Width:  360,
		Height: 640,
		Pages: []canvas.Page{{
			ID:       "page-s1",
			Children: []canvas.Element{{ID: "page-s1-text", Type: canvas.ElementText, Text: text}},
		}},
	}
}

func TestStoreSaveVersionsAndDeduplicates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := DraftKey{CampaignID: "c1", GroupID: "g1"}

	first, err := store.Save(ctx, key, documentWithText("hello"), 3)
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if first.Duplicate || first.Draft.Version != 1 || first.Draft.DraftID == "" {
		t.Fatalf("unexpected first outcome %+v", first)
	}

	repeat, err := store.Save(ctx, key, documentWithText("hello"), 4)
	if err != nil {
		t.Fatalf("repeat save: %v", err)
	}
	if !repeat.Duplicate || repeat.Draft.Version != 1 {
		t.Fatalf("expected duplicate at version 1, got %+v", repeat)
	}

	changed, err := store.Save(ctx, key, documentWithText("world"), 5)
	if err != nil {
		t.Fatalf("changed save: %v", err)
	}
	if changed.Duplicate || changed.Draft.Version != 2 || changed.Draft.DraftID != first.Draft.DraftID {
		t.Fatalf("unexpected changed outcome %+v", changed)
	}

	reverted, err := store.Save(ctx, key, documentWithText("hello"), 6)
	if err != nil {
		t.Fatalf("reverted save: %v", err)
	}
	if reverted.Duplicate || reverted.Draft.Version != 3 {
		t.Fatalf("expected revert to advance the draft, got %+v", reverted)
	}

	latest, err := store.Latest(ctx, key)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if latest.Revision != 6 || latest.DocumentHash != first.Draft.DocumentHash {
		t.Fatalf("unexpected latest draft %+v", latest)
	}
	document, err := latest.Document()
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if document.Pages[0].Children[0].Text != "hello" {
		t.Fatalf("unexpected stored document %+v", document)
	}

	history, err := store.History(ctx, key, 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("expected two distinct revisions, got %d", len(history))
	}
	if history[0].DocumentHash != changed.Draft.DocumentHash {
		t.Fatalf("expected newest revision first, got %+v", history[0])
	}
}

func TestStoreKeysAreIndependent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Save(ctx, DraftKey{CampaignID: "c1", GroupID: "g1"}, documentWithText("same"), 1); err != nil {
		t.Fatalf("save g1: %v", err)
	}
	outcome, err := store.Save(ctx, DraftKey{CampaignID: "c1", GroupID: "g2"}, documentWithText("same"), 1)
	if err != nil {
		t.Fatalf("save g2: %v", err)
	}
	if outcome.Duplicate {
		t.Fatalf("expected identical documents in different groups to be stored separately")
	}
}

func TestStoreLatestMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Latest(context.Background(), DraftKey{CampaignID: "c1", GroupID: "missing"})
	if !errors.Is(err, ErrDraftNotFound) {
		t.Fatalf("expected ErrDraftNotFound, got %v", err)
	}
}

func TestStoreSaveRejectsEmptyKey(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Save(context.Background(), DraftKey{CampaignID: "c1"}, documentWithText("x"), 1)
	if !errors.Is(err, ErrInvalidDraftKey) {
		t.Fatalf("expected ErrInvalidDraftKey, got %v", err)
	}
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "drafts.save.invalid_key" {
		t.Fatalf("unexpected service error %v", err)
	}
}

func TestNewStoreRequiresDatabase(t *testing.T) {
	_, err := NewStore(StoreConfig{})
	var serviceErr *ServiceError
	if !errors.As(err, &serviceErr) || serviceErr.Code() != "drafts.store.new.missing_database" {
		t.Fatalf("expected missing database error, got %v", err)
	}
}

func TestNewDraftKey(t *testing.T) {
	key, err := NewDraftKey(" c1 ", "g1")
	if err != nil || key.CampaignID != "c1" || key.GroupID != "g1" {
		t.Fatalf("unexpected key %+v err %v", key, err)
	}
	if _, err := NewDraftKey("c1", " "); !errors.Is(err, ErrInvalidDraftKey) {
		t.Fatalf("expected ErrInvalidDraftKey, got %v", err)
	}
}
