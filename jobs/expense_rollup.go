package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/atelier-ops/atelier-ops/internal/deals"
)

// ExpenseRollup recomputes a deal's accumulated expenses from its
// expense rows after an expense mutation.
type ExpenseRollup struct {
	repo   deals.Repository
	logger *slog.Logger
}

// NewExpenseRollup constructs the handler.
func NewExpenseRollup(repo deals.Repository, logger *slog.Logger) *ExpenseRollup {
	if logger == nil {
		logger = slog.Default()
	}
	return &ExpenseRollup{repo: repo, logger: logger}
}

// Handle processes TaskTypeExpenseRollup tasks.
func (h *ExpenseRollup) Handle(ctx context.Context, t *asynq.Task) error {
	var payload ExpenseRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	total, err := h.repo.SumExpenses(ctx, payload.DealID)
	if err != nil {
		return err
	}
	if err := h.repo.SetExpenses(ctx, payload.DealID, total); err != nil {
		return err
	}
	h.logger.Info("expense rollup",
		slog.Int64("deal_id", payload.DealID),
		slog.Float64("total", total))
	return nil
}
