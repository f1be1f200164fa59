package editor

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
	"github.com/MarcoPoloResearchLab/storyboard/internal/canvas"
	"github.com/MarcoPoloResearchLab/storyboard/internal/codec"
	"github.com/MarcoPoloResearchLab/storyboard/internal/hydration"
)

var errLoadRejected = errors.New("load rejected")

// rejectingDocument fails bulk loads on demand and forwards everything else.
type rejectingDocument struct {
	*canvas.Document
	reject atomic.Bool
}

func (d *rejectingDocument) LoadJSON(document canvas.DocumentJSON) error {
	if d.reject.Load() {
		return errLoadRejected
	}
	return d.Document.LoadJSON(document)
}

type switchObservation struct {
	groupID   campaigns.ID
	hydrating bool
}

func newSwitchSession(t *testing.T, campaign campaigns.Campaign) (*Session, *rejectingDocument) {
	t.Helper()
	backend := &stubBackend{campaign: campaign, failDelete: map[campaigns.ID]error{}}
	document := &rejectingDocument{Document: canvas.NewDocument(canvas.DocumentConfig{})}
	t.Cleanup(document.Close)
	cache, err := campaigns.NewCache(campaigns.CacheConfig{Backend: backend})
	if err != nil {
		t.Fatalf("cache: %v", err)
	}
	controller, err := hydration.NewController(hydration.Config{
		Document: document,
		Encoder:  codec.NewEncoder(codec.Config{Space: document.Document}),
	})
	if err != nil {
		t.Fatalf("controller: %v", err)
	}
	session, err := NewSession(Config{
		Document:   document.Document,
		Cache:      cache,
		Controller: controller,
		Deleter:    backend,
		Confirmer:  &staticConfirmer{answer: true},
	})
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	if err := session.Open(context.Background(), campaign.ID, ""); err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(session.Close)
	return session, document
}

func TestSetCurrentGroupLoadsSlidesWithMissingIDs(t *testing.T) {
	campaign := editorCampaign()
	campaign.StoryGroups = append(campaign.StoryGroups, campaigns.StoryGroup{
		ID: "g4", CampaignID: "c1", Slides: []campaigns.Slide{{ID: ""}, {ID: "1"}},
	})
	session, document := newSwitchSession(t, campaign)

	if err := session.SetCurrentGroup(context.Background(), "g4"); err != nil {
		t.Fatalf("expected group with id-less slide to load, got %v", err)
	}
	settle(t, document.Document)
	if session.CurrentGroupID() != "g4" {
		t.Fatalf("expected g4 current, got %s", session.CurrentGroupID())
	}
	if got := pageIDs(document.Document); !reflect.DeepEqual(got, []string{"page-1-2", "page-1"}) {
		t.Fatalf("unexpected pages %v", got)
	}

	if err := session.SetCurrentSlide("1"); err != nil {
		t.Fatalf("select slide 1: %v", err)
	}
	settle(t, document.Document)
	if document.ActivePageID() != "page-1" {
		t.Fatalf("expected the page of slide 1 active, got %s", document.ActivePageID())
	}
}

func TestSetCurrentGroupKeepsSelectionWhenLoadFails(t *testing.T) {
	session, document := newSwitchSession(t, editorCampaign())
	settle(t, document.Document)
	before := pageIDs(document.Document)

	document.reject.Store(true)
	err := session.SetCurrentGroup(context.Background(), "g2")
	if !errors.Is(err, ErrHydrationFailed) {
		t.Fatalf("expected ErrHydrationFailed, got %v", err)
	}
	settle(t, document.Document)

	if session.CurrentGroupID() != "g1" || session.CurrentSlideID() != "s1" {
		t.Fatalf("expected g1/s1 kept, got %s/%s", session.CurrentGroupID(), session.CurrentSlideID())
	}
	if state := session.EditorState(); state.SlideID != "s1" || len(state.CTAs) != 1 {
		t.Fatalf("expected s1 editor state kept, got %+v", state)
	}
	if got := pageIDs(document.Document); !reflect.DeepEqual(got, before) {
		t.Fatalf("expected pages %v kept, got %v", before, got)
	}
	if session.IsHydrating() {
		t.Fatalf("guard must drop after a failed switch")
	}

	document.reject.Store(false)
	if err := session.SetCurrentGroup(context.Background(), "g2"); err != nil {
		t.Fatalf("retry switch: %v", err)
	}
	if session.CurrentGroupID() != "g2" || session.CurrentSlideID() != "s4" {
		t.Fatalf("expected g2/s4 after retry, got %s/%s", session.CurrentGroupID(), session.CurrentSlideID())
	}
}

func TestGroupSwitchKeepsGuardUpUntilIDsMatchDocument(t *testing.T) {
	session, document := newSwitchSession(t, editorCampaign())
	settle(t, document.Document)

	var mu sync.Mutex
	var loads []switchObservation
	dispose := document.Subscribe(func(change canvas.Change) {
		if change.Kind != canvas.ChangeLoaded {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		loads = append(loads, switchObservation{groupID: session.CurrentGroupID(), hydrating: session.IsHydrating()})
	})
	defer dispose()

	if err := session.SetCurrentGroup(context.Background(), "g2"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	settle(t, document.Document)

	mu.Lock()
	defer mu.Unlock()
	if len(loads) != 1 {
		t.Fatalf("expected one load, got %+v", loads)
	}
	if loads[0].groupID != "g1" || !loads[0].hydrating {
		t.Fatalf("expected the load to be delivered behind the guard with g1 still current, got %+v", loads[0])
	}
	if session.IsHydrating() || session.CurrentGroupID() != "g2" {
		t.Fatalf("expected g2 committed and guard down, got %s hydrating=%v", session.CurrentGroupID(), session.IsHydrating())
	}
}
