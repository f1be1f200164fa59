package campaigns

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

var (
	errMissingBackend    = errors.New("backend client is required")
	errMissingCampaignID = errors.New("campaign or group identifier is required")
	errUnresolvedGroup   = errors.New("story group has no campaign")
)

// ServiceError carries an operation.reason code alongside the cause.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the operation.reason code.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opCacheNew      = "campaigns.cache.new"
	opFetchCampaign = "campaigns.fetch_campaign"
	opResolveGroup  = "campaigns.resolve_group"
)

func newServiceError(operation, reason string, cause error) error {
	return &ServiceError{code: fmt.Sprintf("%s.%s", operation, reason), err: cause}
}

// Backend is the subset of the campaign API the cache reads from.
type Backend interface {
	GetCampaignDetails(ctx context.Context, campaignID ID) (Campaign, error)
	GetStoryGroup(ctx context.Context, groupID ID) (StoryGroup, error)
}

// CacheConfig wires a Cache.
type CacheConfig struct {
	Backend Backend
	Logger  *zap.Logger
}

// Cache holds one campaign tree and serves lookups over it. A campaign id is fetched at
// most once unless forced; concurrent fetches of the same id share one request.
type Cache struct {
	backend  Backend
	logger   *zap.Logger
	inflight singleflight.Group
	loading  atomic.Int32

	mu         sync.RWMutex
	campaign   *Campaign
	resolvedID ID
	lastErr    error
}

// NewCache constructs a Cache.
func NewCache(cfg CacheConfig) (*Cache, error) {
	if cfg.Backend == nil {
		return nil, newServiceError(opCacheNew, "missing_backend", errMissingBackend)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: cfg.Backend, logger: logger}, nil
}

// FetchCampaign loads the campaign into the cache. When campaignID is empty the campaign is
// resolved through groupID. A failed fetch records Err and keeps any cached tree.
func (c *Cache) FetchCampaign(ctx context.Context, campaignID ID, groupID ID, force bool) error {
	if campaignID == "" && groupID != "" {
		resolved, err := c.resolveCampaignID(ctx, groupID)
		if err != nil {
			c.setErr(err)
			return err
		}
		campaignID = resolved
	}
	if campaignID == "" {
		err := newServiceError(opFetchCampaign, "missing_identifier", errMissingCampaignID)
		c.setErr(err)
		return err
	}

	if !force {
		c.mu.RLock()
		cached := c.campaign != nil && c.resolvedID == campaignID
		c.mu.RUnlock()
		if cached {
			return nil
		}
	}

	_, err, _ := c.inflight.Do(campaignID.String(), func() (any, error) {
		c.loading.Add(1)
		defer c.loading.Add(-1)

		campaign, fetchErr := c.backend.GetCampaignDetails(ctx, campaignID)
		if fetchErr != nil {
			c.logError(opFetchCampaign, "backend_failure", fetchErr, zap.String("campaign_id", campaignID.String()))
			return nil, newServiceError(opFetchCampaign, "backend_failure", fetchErr)
		}
		if campaign.ID == "" {
			campaign.ID = campaignID
		}
		for index := range campaign.StoryGroups {
			campaign.StoryGroups[index].Slides = NormalizeSlideOrders(campaign.StoryGroups[index].Slides)
		}

		c.mu.Lock()
		c.campaign = &campaign
		c.resolvedID = campaignID
		c.lastErr = nil
		c.mu.Unlock()
		return nil, nil
	})
	if err != nil {
		c.setErr(err)
	}
	return err
}

func (c *Cache) resolveCampaignID(ctx context.Context, groupID ID) (ID, error) {
	c.mu.RLock()
	if c.campaign != nil {
		for _, group := range c.campaign.StoryGroups {
			if group.ID == groupID {
				campaignID := c.campaign.ID
				c.mu.RUnlock()
				return campaignID, nil
			}
		}
	}
	c.mu.RUnlock()

	c.loading.Add(1)
	group, err := c.backend.GetStoryGroup(ctx, groupID)
	c.loading.Add(-1)
	if err != nil {
		c.logError(opResolveGroup, "backend_failure", err, zap.String("group_id", groupID.String()))
		return "", newServiceError(opResolveGroup, "backend_failure", err)
	}
	if group.CampaignID == "" {
		return "", newServiceError(opResolveGroup, "missing_campaign", fmt.Errorf("%w: %s", errUnresolvedGroup, groupID))
	}
	return group.CampaignID, nil
}

// Campaign returns a copy of the cached campaign.
func (c *Cache) Campaign() (Campaign, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.campaign == nil {
		return Campaign{}, false
	}
	return cloneCampaign(*c.campaign), true
}

// Groups returns copies of the cached story groups in order.
func (c *Cache) Groups() []StoryGroup {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.campaign == nil {
		return nil
	}
	groups := make([]StoryGroup, len(c.campaign.StoryGroups))
	for index, group := range c.campaign.StoryGroups {
		groups[index] = cloneGroup(group)
	}
	return groups
}

// Loading reports whether a network request is in flight.
func (c *Cache) Loading() bool {
	return c.loading.Load() > 0
}

// Err returns the error of the most recent failed fetch, cleared by a successful one.
func (c *Cache) Err() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastErr
}

// FindSlide looks a slide up by id, then by its original slide correlation.
func (c *Cache) FindSlide(slideID ID) (Slide, bool) {
	if slideID == "" {
		return Slide{}, false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.campaign == nil {
		return Slide{}, false
	}
	for _, group := range c.campaign.StoryGroups {
		for _, slide := range group.Slides {
			if slide.ID == slideID {
				return slide, true
			}
		}
	}
	for _, group := range c.campaign.StoryGroups {
		for _, slide := range group.Slides {
			if slide.CorrelationID() == slideID {
				return slide, true
			}
		}
	}
	return Slide{}, false
}

// FindGroup looks a group up by id, or by a slide it contains when groupID is empty.
func (c *Cache) FindGroup(groupID ID, slideID ID) (StoryGroup, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.campaign == nil {
		return StoryGroup{}, false
	}
	for _, group := range c.campaign.StoryGroups {
		if groupID != "" && group.ID == groupID {
			return cloneGroup(group), true
		}
		if groupID == "" && slideID != "" {
			for _, slide := range group.Slides {
				if slide.ID == slideID || slide.CorrelationID() == slideID {
					return cloneGroup(group), true
				}
			}
		}
	}
	return StoryGroup{}, false
}

// GetSlidesForGroup returns the group's slides with normalized orders.
func (c *Cache) GetSlidesForGroup(groupID ID) []Slide {
	group, ok := c.FindGroup(groupID, "")
	if !ok {
		return nil
	}
	return NormalizeSlideOrders(group.Slides)
}

// RemoveSlides drops slides from the cached tree and renumbers the affected groups. It
// returns the number of slides removed.
func (c *Cache) RemoveSlides(slideIDs []ID) int {
	if len(slideIDs) == 0 {
		return 0
	}
	remove := make(map[ID]struct{}, len(slideIDs))
	for _, id := range slideIDs {
		remove[id] = struct{}{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.campaign == nil {
		return 0
	}
	removed := 0
	for index, group := range c.campaign.StoryGroups {
		kept := make([]Slide, 0, len(group.Slides))
		for _, slide := range group.Slides {
			if _, ok := remove[slide.ID]; ok {
				removed++
				continue
			}
			kept = append(kept, slide)
		}
		if len(kept) != len(group.Slides) {
			c.campaign.StoryGroups[index].Slides = NormalizeSlideOrders(kept)
		}
	}
	return removed
}

func (c *Cache) setErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Cache) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	c.logger.Error("campaign cache error", attrs...)
}
