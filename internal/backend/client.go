// Package backend is the HTTP client of the campaign API and a redis read-through cache
// in front of it.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
)

const (
	defaultTimeout   = 15 * time.Second
	maxErrorBodySize = 4096
)

var (
	// ErrInvalidClientConfig indicates a client that cannot be constructed.
	ErrInvalidClientConfig = errors.New("backend: invalid client config")
	errMissingBaseURL      = errors.New("base url is required")
	errMissingIdentifier   = errors.New("identifier is required")
)

// API is the campaign backend contract.
type API interface {
	GetCampaignDetails(ctx context.Context, campaignID campaigns.ID) (campaigns.Campaign, error)
	GetStoryGroup(ctx context.Context, groupID campaigns.ID) (campaigns.StoryGroup, error)
	DeleteStorySlide(ctx context.Context, slideID campaigns.ID) error
	CreateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error)
	UpdateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error)
	DeleteStoryGroup(ctx context.Context, groupID campaigns.ID) error
	CreateSlide(ctx context.Context, groupID campaigns.ID, input SlideInput, order int) (campaigns.Slide, error)
}

// APIError reports a non-2xx response.
type APIError struct {
	Operation  string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend %s: status %d: %s", e.Operation, e.StatusCode, e.Body)
}

// StoryGroupForm is submitted as multipart form data to create or update a group.
type StoryGroupForm struct {
	ID                   campaigns.ID
	CampaignID           campaigns.ID
	Name                 string
	RingColor            string
	SlideDurationSeconds float64
}

// SlideInput is the body of a new slide.
type SlideInput struct {
	Image   string          `json:"image,omitempty"`
	Video   string          `json:"video,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
	Styling json.RawMessage `json:"styling,omitempty"`
}

// ClientConfig configures a Client.
type ClientConfig struct {
	BaseURL    string
	APIToken   string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// Client calls the campaign API over HTTP.
type Client struct {
	baseURL    string
	apiToken   string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient validates configuration and constructs a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingBaseURL)
	}
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    baseURL,
		apiToken:   strings.TrimSpace(cfg.APIToken),
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// GetCampaignDetails fetches a campaign with its groups and slides.
func (c *Client) GetCampaignDetails(ctx context.Context, campaignID campaigns.ID) (campaigns.Campaign, error) {
	var campaign campaigns.Campaign
	if campaignID == "" {
		return campaign, errMissingIdentifier
	}
	err := c.do(ctx, "get_campaign_details", http.MethodGet, "/campaigns/"+url.PathEscape(campaignID.String()), nil, "", &campaign)
	return campaign, err
}

// GetStoryGroup fetches one story group.
func (c *Client) GetStoryGroup(ctx context.Context, groupID campaigns.ID) (campaigns.StoryGroup, error) {
	var group campaigns.StoryGroup
	if groupID == "" {
		return group, errMissingIdentifier
	}
	err := c.do(ctx, "get_story_group", http.MethodGet, "/story-groups/"+url.PathEscape(groupID.String()), nil, "", &group)
	return group, err
}

// DeleteStorySlide deletes one slide.
func (c *Client) DeleteStorySlide(ctx context.Context, slideID campaigns.ID) error {
	if slideID == "" {
		return errMissingIdentifier
	}
	return c.do(ctx, "delete_story_slide", http.MethodDelete, "/story-slides/"+url.PathEscape(slideID.String()), nil, "", nil)
}

// CreateStoryGroup creates a group from form data.
func (c *Client) CreateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error) {
	var group campaigns.StoryGroup
	body, contentType, err := encodeGroupForm(form)
	if err != nil {
		return group, err
	}
	err = c.do(ctx, "create_story_group", http.MethodPost, "/story-groups", body, contentType, &group)
	return group, err
}

// UpdateStoryGroup updates a group from form data.
func (c *Client) UpdateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error) {
	var group campaigns.StoryGroup
	if form.ID == "" {
		return group, errMissingIdentifier
	}
	body, contentType, err := encodeGroupForm(form)
	if err != nil {
		return group, err
	}
	err = c.do(ctx, "update_story_group", http.MethodPut, "/story-groups/"+url.PathEscape(form.ID.String()), body, contentType, &group)
	return group, err
}

// DeleteStoryGroup deletes one group.
func (c *Client) DeleteStoryGroup(ctx context.Context, groupID campaigns.ID) error {
	if groupID == "" {
		return errMissingIdentifier
	}
	return c.do(ctx, "delete_story_group", http.MethodDelete, "/story-groups/"+url.PathEscape(groupID.String()), nil, "", nil)
}

// CreateSlide appends a slide to a group at order.
func (c *Client) CreateSlide(ctx context.Context, groupID campaigns.ID, input SlideInput, order int) (campaigns.Slide, error) {
	var slide campaigns.Slide
	if groupID == "" {
		return slide, errMissingIdentifier
	}
	payload := struct {
		SlideInput
		Order int `json:"order"`
	}{SlideInput: input, Order: order}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return slide, err
	}
	err = c.do(ctx, "create_slide", http.MethodPost, "/story-groups/"+url.PathEscape(groupID.String())+"/slides", bytes.NewReader(encoded), "application/json", &slide)
	return slide, err
}

// envelope is the {status, data} wrapper some endpoints respond with.
type envelope struct {
	Status json.RawMessage `json:"status"`
	Data   json.RawMessage `json:"data"`
}

func (c *Client) do(ctx context.Context, operation, method, path string, body io.Reader, contentType string, target any) error {
	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	request.Header.Set("Accept", "application/json")
	if contentType != "" {
		request.Header.Set("Content-Type", contentType)
	}
	if c.apiToken != "" {
		request.Header.Set("Authorization", "Bearer "+c.apiToken)
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Warn("backend request failed", zap.String("operation", operation), zap.Error(err))
		return fmt.Errorf("backend %s: %w", operation, err)
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBodySize))
		apiErr := &APIError{Operation: operation, StatusCode: response.StatusCode, Body: strings.TrimSpace(string(snippet))}
		c.logger.Warn("backend request rejected",
			zap.String("operation", operation),
			zap.Int("status", response.StatusCode),
		)
		return apiErr
	}
	if target == nil {
		return nil
	}

	raw, err := io.ReadAll(response.Body)
	if err != nil {
		return fmt.Errorf("backend %s: read body: %w", operation, err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return fmt.Errorf("backend %s: empty response body", operation)
	}
	var wrapped envelope
	if err := json.Unmarshal(raw, &wrapped); err == nil && len(wrapped.Data) > 0 && !bytes.Equal(wrapped.Data, []byte("null")) {
		raw = wrapped.Data
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return fmt.Errorf("backend %s: decode body: %w", operation, err)
	}
	return nil
}

type formField struct {
	name  string
	value string
}

func encodeGroupForm(form StoryGroupForm) (io.Reader, string, error) {
	var buffer bytes.Buffer
	writer := multipart.NewWriter(&buffer)
	fields := []formField{
		{name: "id", value: form.ID.String()},
		{name: "campaign_id", value: form.CampaignID.String()},
		{name: "name", value: form.Name},
		{name: "ring_color", value: form.RingColor},
	}
	if form.SlideDurationSeconds > 0 {
		fields = append(fields, formField{name: "slide_duration_seconds", value: strconv.FormatFloat(form.SlideDurationSeconds, 'f', -1, 64)})
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		if err := writer.WriteField(field.name, field.value); err != nil {
			return nil, "", err
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buffer, writer.FormDataContentType(), nil
}
