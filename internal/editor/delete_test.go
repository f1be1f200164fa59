package editor

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
)

// addScratchPage appends a page with no backend correlation.
func addScratchPage(t *testing.T, document *canvas.Document) {
	t.Helper()
	snapshot := document.ToJSON()
	snapshot.Pages = append(snapshot.Pages, canvas.Page{ID: "scratch", Children: []canvas.Element{}})
	if err := document.LoadJSON(snapshot); err != nil {
		t.Fatalf("load scratch page: %v", err)
	}
	settle(t, document)
}

func TestDeletePagesPartialFailureRemovesNothing(t *testing.T) {
	f := newFixture(t)
	addScratchPage(t, f.document)
	f.backend.failDelete["s2"] = errors.New("backend unavailable")
	before := pageIDs(f.document)

	_, err := f.session.DeletePages(context.Background(), []string{"page-s2", "scratch"})
	if !errors.Is(err, ErrDeletionFailed) {
		t.Fatalf("expected ErrDeletionFailed, got %v", err)
	}
	if !reflect.DeepEqual(pageIDs(f.document), before) {
		t.Fatalf("pages changed after failed delete: %v", pageIDs(f.document))
	}
	if len(f.alerter.messages) != 1 || !strings.Contains(f.alerter.messages[0], "backend unavailable") {
		t.Fatalf("expected one alert, got %v", f.alerter.messages)
	}
	if _, ok := f.cache.FindSlide("s2"); !ok {
		t.Fatalf("cache dropped a slide the backend kept")
	}
}

func TestDeletePagesAllOrNothingAcrossSeveralSlides(t *testing.T) {
	f := newFixture(t)
	f.backend.failDelete["s3"] = errors.New("conflict")
	before := pageIDs(f.document)

	if _, err := f.session.DeletePages(context.Background(), []string{"page-s2", "page-s3"}); !errors.Is(err, ErrDeletionFailed) {
		t.Fatalf("expected ErrDeletionFailed, got %v", err)
	}
	if len(f.backend.deletes()) != 2 {
		t.Fatalf("expected both deletes attempted, got %v", f.backend.deletes())
	}
	if !reflect.DeepEqual(pageIDs(f.document), before) {
		t.Fatalf("partial removal happened: %v", pageIDs(f.document))
	}
}

func TestDeletePagesDeclinedConfirmationSkipsBackend(t *testing.T) {
	f := newFixture(t)
	f.confirmer.answer = false

	if _, err := f.session.DeletePages(context.Background(), []string{"page-s1"}); !errors.Is(err, ErrDeletionCancelled) {
		t.Fatalf("expected ErrDeletionCancelled, got %v", err)
	}
	if len(f.backend.deletes()) != 0 {
		t.Fatalf("backend called after decline")
	}
	if len(pageIDs(f.document)) != 3 {
		t.Fatalf("pages removed after decline")
	}
}

func TestDeletePagesSuccessMovesCurrentSlide(t *testing.T) {
	f := newFixture(t)
	addScratchPage(t, f.document)

	result, err := f.session.DeletePages(context.Background(), []string{"page-s1", "scratch", "unknown"})
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !reflect.DeepEqual(result.DeletedSlideIDs, []campaigns.ID{"s1"}) || len(result.RemovedPageIDs) != 2 {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(f.confirmer.messages) != 1 {
		t.Fatalf("expected one confirmation prompt")
	}
	settle(t, f.document)
	if !reflect.DeepEqual(pageIDs(f.document), []string{"page-s2", "page-s3"}) {
		t.Fatalf("unexpected pages %v", pageIDs(f.document))
	}
	if _, ok := f.cache.FindSlide("s1"); ok {
		t.Fatalf("expected s1 removed from cache")
	}
	if f.session.CurrentSlideID() != "s2" {
		t.Fatalf("expected current slide to follow the active page, got %q", f.session.CurrentSlideID())
	}
}

func TestDeleteUncorrelatedPagesNeedsNoConfirmation(t *testing.T) {
	f := newFixture(t)
	addScratchPage(t, f.document)

	if _, err := f.session.DeletePages(context.Background(), []string{"scratch"}); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if len(f.confirmer.messages) != 0 || len(f.backend.deletes()) != 0 {
		t.Fatalf("uncorrelated delete should not prompt or call the backend")
	}
}
