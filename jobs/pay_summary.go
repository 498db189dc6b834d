package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atelier-ops/atelier-ops/internal/payledger"
)

// PaySummaryWarmup refreshes the cached per-member payout summary so
// dashboard reads stay warm.
type PaySummaryWarmup struct {
	cache  *payledger.SummaryCache
	logger *slog.Logger
}

// NewPaySummaryWarmup constructs the handler.
func NewPaySummaryWarmup(cache *payledger.SummaryCache, logger *slog.Logger) *PaySummaryWarmup {
	if logger == nil {
		logger = slog.Default()
	}
	return &PaySummaryWarmup{cache: cache, logger: logger}
}

// Handle processes TaskTypePaySummaryWarmup tasks.
func (h *PaySummaryWarmup) Handle(ctx context.Context, t *asynq.Task) error {
	rows, err := h.cache.Refresh(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("pay summary warmup", slog.Int("members", len(rows)))
	return nil
}
