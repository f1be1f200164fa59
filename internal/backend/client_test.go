package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
)

type recordedRequest struct {
	method        string
	path          string
	authorization string
	contentType   string
	form          map[string]string
	body          string
}

type fakeAPIServer struct {
	mu       sync.Mutex
	requests []recordedRequest
	server   *httptest.Server
}

func newFakeAPIServer(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) *fakeAPIServer {
	t.Helper()
	fake := &fakeAPIServer{}
	fake.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorded := recordedRequest{
			method:        r.Method,
			path:          r.URL.Path,
			authorization: r.Header.Get("Authorization"),
			contentType:   r.Header.Get("Content-Type"),
		}
		if r.MultipartForm == nil && r.Header.Get("Content-Type") != "" && r.Header.Get("Content-Type") != "application/json" {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				recorded.form = map[string]string{}
				for key, values := range r.MultipartForm.Value {
					recorded.form[key] = values[0]
				}
			}
		} else {
			body, _ := io.ReadAll(r.Body)
			recorded.body = string(body)
		}
		fake.mu.Lock()
		fake.requests = append(fake.requests, recorded)
		fake.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(fake.server.Close)
	return fake
}

func (f *fakeAPIServer) last() recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: baseURL + "/api/", APIToken: "secret"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestNewClientValidatesBaseURL(t *testing.T) {
	testCases := []string{"", "   ", "not a url"}
	for _, baseURL := range testCases {
		if _, err := NewClient(ClientConfig{BaseURL: baseURL}); !errors.Is(err, ErrInvalidClientConfig) {
			t.Fatalf("expected ErrInvalidClientConfig for %q, got %v", baseURL, err)
		}
	}
}

func TestGetCampaignDetailsDecodesEnvelope(t *testing.T) {
	fake := newFakeAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":200,"data":{"id":7,"name":"Spring","story_groups":[{"id":"g1","slides":[{"id":3,"order":1,"content":"{\"text\":\"hi\"}"}]}]}}`))
	})
	client := newTestClient(t, fake.server.URL)

	campaign, err := client.GetCampaignDetails(context.Background(), "7")
	if err != nil {
		t.Fatalf("get campaign: %v", err)
	}
	if campaign.ID != "7" || len(campaign.StoryGroups) != 1 || campaign.StoryGroups[0].Slides[0].ID != "3" {
		t.Fatalf("unexpected campaign %+v", campaign)
	}
	request := fake.last()
	if request.method != http.MethodGet || request.path != "/api/campaigns/7" || request.authorization != "Bearer secret" {
		t.Fatalf("unexpected request %+v", request)
	}
}

func TestGetStoryGroupDecodesBareBody(t *testing.T) {
	fake := newFakeAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"g1","campaign_id":"c1","name":"Intro","slides":[]}`))
	})
	client := newTestClient(t, fake.server.URL)

	group, err := client.GetStoryGroup(context.Background(), "g1")
	if err != nil {
		t.Fatalf("get group: %v", err)
	}
	if group.CampaignID != "c1" || fake.last().path != "/api/story-groups/g1" {
		t.Fatalf("unexpected group %+v", group)
	}
}

func TestNon2xxIsAPIError(t *testing.T) {
	fake := newFakeAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte("slide is published"))
	})
	client := newTestClient(t, fake.server.URL)

	err := client.DeleteStorySlide(context.Background(), "9")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Operation != "delete_story_slide" || apiErr.Body != "slide is published" {
		t.Fatalf("unexpected api error %+v", apiErr)
	}
	if request := fake.last(); request.method != http.MethodDelete || request.path != "/api/story-slides/9" {
		t.Fatalf("unexpected request %+v", request)
	}
}

func TestStoryGroupFormsAreMultipart(t *testing.T) {
	fake := newFakeAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"g9","name":"New"}`))
	})
	client := newTestClient(t, fake.server.URL)
	ctx := context.Background()

	form := StoryGroupForm{CampaignID: "c1", Name: "New", RingColor: "#FF00FF", SlideDurationSeconds: 5.5}
	if _, err := client.CreateStoryGroup(ctx, form); err != nil {
		t.Fatalf("create: %v", err)
	}
	created := fake.last()
	if created.method != http.MethodPost || created.path != "/api/story-groups" {
		t.Fatalf("unexpected create request %+v", created)
	}
	if created.form["campaign_id"] != "c1" || created.form["ring_color"] != "#FF00FF" || created.form["slide_duration_seconds"] != "5.5" {
		t.Fatalf("unexpected form %+v", created.form)
	}
	if _, present := created.form["id"]; present {
		t.Fatalf("empty id must not be submitted")
	}

	form.ID = "g9"
	if _, err := client.UpdateStoryGroup(ctx, form); err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated := fake.last(); updated.method != http.MethodPut || updated.path != "/api/story-groups/g9" || updated.form["id"] != "g9" {
		t.Fatalf("unexpected update request %+v", updated)
	}

	if _, err := client.UpdateStoryGroup(ctx, StoryGroupForm{}); !errors.Is(err, errMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	if err := client.DeleteStoryGroup(ctx, "g9"); err != nil {
		t.Fatalf("delete group: %v", err)
	}
	if deleted := fake.last(); deleted.method != http.MethodDelete || deleted.path != "/api/story-groups/g9" {
		t.Fatalf("unexpected delete request %+v", deleted)
	}
}

func TestCreateSlideSendsOrder(t *testing.T) {
	fake := newFakeAPIServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"id":"s5","order":4}}`))
	})
	client := newTestClient(t, fake.server.URL)

	slide, err := client.CreateSlide(context.Background(), "g1", SlideInput{
		Image:   "https://cdn.example.com/x.jpg",
		Content: json.RawMessage(`{"text":"hello"}`),
	}, 4)
	if err != nil {
		t.Fatalf("create slide: %v", err)
	}
	if slide.ID != "s5" || slide.Order != 4 {
		t.Fatalf("unexpected slide %+v", slide)
	}
	request := fake.last()
	var body map[string]any
	if err := json.Unmarshal([]byte(request.body), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if request.path != "/api/story-groups/g1/slides" || body["order"] != float64(4) || body["image"] != "https://cdn.example.com/x.jpg" {
		t.Fatalf("unexpected request %+v", request)
	}
}

func TestMissingIdentifiersFailFast(t *testing.T) {
	client, err := NewClient(ClientConfig{BaseURL: "http://127.0.0.1:1"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	ctx := context.Background()
	if _, err := client.GetCampaignDetails(ctx, ""); !errors.Is(err, errMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	if err := client.DeleteStorySlide(ctx, ""); !errors.Is(err, errMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	if _, err := client.CreateSlide(ctx, "", SlideInput{}, 1); !errors.Is(err, errMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
}

var _ API = (*Client)(nil)
var _ campaigns.Backend = (*Client)(nil)
