package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/storyboard/internal/campaigns"
)

const (
	defaultCachePrefix = "storyboard:"
	defaultCacheTTL    = 5 * time.Minute
	scanBatchSize      = 100
)

var (
	errMissingInner = errors.New("inner api is required")
	errMissingRedis = errors.New("redis client is required")
)

// OpenRedis connects to redisURL and verifies the connection.
func OpenRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(options)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// CachedClientConfig configures a CachedClient.
type CachedClientConfig struct {
	Inner  API
	Redis  *redis.Client
	TTL    time.Duration
	Prefix string
	Logger *zap.Logger
}

// CachedClient serves campaign and group reads from redis and drops every cached entry
// after a mutation. Redis failures degrade to the inner API.
type CachedClient struct {
	inner  API
	redis  *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger
}

// NewCachedClient constructs a CachedClient.
func NewCachedClient(cfg CachedClientConfig) (*CachedClient, error) {
	if cfg.Inner == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingInner)
	}
	if cfg.Redis == nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidClientConfig, errMissingRedis)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = defaultCachePrefix
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedClient{inner: cfg.Inner, redis: cfg.Redis, ttl: ttl, prefix: prefix, logger: logger}, nil
}

func (c *CachedClient) campaignKey(id campaigns.ID) string {
	return c.prefix + "campaign:" + id.String()
}

func (c *CachedClient) groupKey(id campaigns.ID) string {
	return c.prefix + "group:" + id.String()
}

// GetCampaignDetails reads through the cache.
func (c *CachedClient) GetCampaignDetails(ctx context.Context, campaignID campaigns.ID) (campaigns.Campaign, error) {
	var campaign campaigns.Campaign
	key := c.campaignKey(campaignID)
	if c.lookup(ctx, key, &campaign) {
		return campaign, nil
	}
	campaign, err := c.inner.GetCampaignDetails(ctx, campaignID)
	if err != nil {
		return campaigns.Campaign{}, err
	}
	c.store(ctx, key, campaign)
	return campaign, nil
}

// GetStoryGroup reads through the cache.
func (c *CachedClient) GetStoryGroup(ctx context.Context, groupID campaigns.ID) (campaigns.StoryGroup, error) {
	var group campaigns.StoryGroup
	key := c.groupKey(groupID)
	if c.lookup(ctx, key, &group) {
		return group, nil
	}
	group, err := c.inner.GetStoryGroup(ctx, groupID)
	if err != nil {
		return campaigns.StoryGroup{}, err
	}
	c.store(ctx, key, group)
	return group, nil
}

// DeleteStorySlide deletes through the inner API and invalidates the cache.
func (c *CachedClient) DeleteStorySlide(ctx context.Context, slideID campaigns.ID) error {
	if err := c.inner.DeleteStorySlide(ctx, slideID); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// CreateStoryGroup creates through the inner API and invalidates the cache.
func (c *CachedClient) CreateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error) {
	group, err := c.inner.CreateStoryGroup(ctx, form)
	if err != nil {
		return campaigns.StoryGroup{}, err
	}
	c.Invalidate(ctx)
	return group, nil
}

// UpdateStoryGroup updates through the inner API and invalidates the cache.
func (c *CachedClient) UpdateStoryGroup(ctx context.Context, form StoryGroupForm) (campaigns.StoryGroup, error) {
	group, err := c.inner.UpdateStoryGroup(ctx, form)
	if err != nil {
		return campaigns.StoryGroup{}, err
	}
	c.Invalidate(ctx)
	return group, nil
}

// DeleteStoryGroup deletes through the inner API and invalidates the cache.
func (c *CachedClient) DeleteStoryGroup(ctx context.Context, groupID campaigns.ID) error {
	if err := c.inner.DeleteStoryGroup(ctx, groupID); err != nil {
		return err
	}
	c.Invalidate(ctx)
	return nil
}

// CreateSlide creates through the inner API and invalidates the cache.
func (c *CachedClient) CreateSlide(ctx context.Context, groupID campaigns.ID, input SlideInput, order int) (campaigns.Slide, error) {
	slide, err := c.inner.CreateSlide(ctx, groupID, input, order)
	if err != nil {
		return campaigns.Slide{}, err
	}
	c.Invalidate(ctx)
	return slide, nil
}

// Invalidate drops every cached entry under the client prefix.
func (c *CachedClient) Invalidate(ctx context.Context) {
	var cursor uint64
	for {
		keys, next, err := c.redis.Scan(ctx, cursor, c.prefix+"*", scanBatchSize).Result()
		if err != nil {
			c.logger.Warn("backend cache invalidate failed", zap.Error(err))
			return
		}
		if len(keys) > 0 {
			if err := c.redis.Del(ctx, keys...).Err(); err != nil {
				c.logger.Warn("backend cache delete failed", zap.Error(err))
				return
			}
		}
		cursor = next
		if cursor == 0 {
			return
		}
	}
}

func (c *CachedClient) lookup(ctx context.Context, key string, target any) bool {
	payload, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		c.logger.Warn("backend cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(payload, target); err != nil {
		c.logger.Warn("backend cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *CachedClient) store(ctx context.Context, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		c.logger.Warn("backend cache encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.redis.Set(ctx, key, payload, c.ttl).Err(); err != nil {
		c.logger.Warn("backend cache write failed", zap.String("key", key), zap.Error(err))
	}
}
