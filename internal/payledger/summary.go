package payledger

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const summaryCacheKey = "pay:summary"

// SummaryCache serves per-member payout totals from Redis, recomputing
// from the ledger when the cache is cold. The background worker warms
// it periodically.
type SummaryCache struct {
	client  *redis.Client
	repo    Repository
	logger  *slog.Logger
	ttl     time.Duration
	printer *message.Printer
	group   singleflight.Group
}

// NewSummaryCache constructs a SummaryCache. client may be nil, in
// which case every read recomputes.
func NewSummaryCache(client *redis.Client, repo Repository, logger *slog.Logger) *SummaryCache {
	if logger == nil {
		logger = slog.Default()
	}
	return &SummaryCache{
		client:  client,
		repo:    repo,
		logger:  logger,
		ttl:     10 * time.Minute,
		printer: message.NewPrinter(language.English),
	}
}

// Get returns the cached summary, recomputing on a miss. Redis
// failures fall back to a direct recompute.
func (c *SummaryCache) Get(ctx context.Context) ([]SummaryRow, error) {
	if c.client != nil {
		raw, err := c.client.Get(ctx, summaryCacheKey).Bytes()
		if err == nil {
			var rows []SummaryRow
			if err := json.Unmarshal(raw, &rows); err == nil {
				return rows, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("summary cache read failed", slog.Any("error", err))
		}
	}
	return c.Refresh(ctx)
}

// Refresh recomputes the summary from the ledger and stores it.
// Concurrent refreshes collapse into one recompute.
func (c *SummaryCache) Refresh(ctx context.Context) ([]SummaryRow, error) {
	result, err, _ := c.group.Do(summaryCacheKey, func() (any, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return nil, err
	}
	return result.([]SummaryRow), nil
}

func (c *SummaryCache) refresh(ctx context.Context) ([]SummaryRow, error) {
	rows, err := c.repo.Summaries(ctx)
	if err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].FormattedTotal = c.printer.Sprintf("$%.2f", rows[i].Total)
	}
	if rows == nil {
		rows = []SummaryRow{}
	}

	if c.client != nil {
		raw, err := json.Marshal(rows)
		if err == nil {
			if err := c.client.Set(ctx, summaryCacheKey, raw, c.ttl).Err(); err != nil {
				c.logger.Warn("summary cache write failed", slog.Any("error", err))
			}
		}
	}
	return rows, nil
}

// Invalidate drops the cached summary after a ledger mutation.
func (c *SummaryCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, summaryCacheKey).Err(); err != nil {
		c.logger.Warn("summary cache invalidate failed", slog.Any("error", err))
	}
}
