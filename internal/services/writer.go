package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/kubev2v/inventory-collector/internal/models"
	"github.com/kubev2v/inventory-collector/internal/store"
)

// FactWriter persists unit outcomes. Each write is one transaction retried
// as a whole on contention.
type FactWriter struct {
	units  *store.UnitStore
	policy RetryPolicy
}

func NewFactWriter(units *store.UnitStore, policy RetryPolicy) *FactWriter {
	return &FactWriter{units: units, policy: policy}
}

// Write stores facts, replaces the unit sub-collections, sets status and
// appends detail.
func (w *FactWriter) Write(ctx context.Context, unitID int64, facts *models.NormalizedFacts, status models.CollectionStatus, detail *models.CollectionDetail) error {
	return retryOnContention(ctx, w.policy, func(ctx context.Context) error {
		return w.units.ApplyFacts(ctx, unitID, facts, status, detail)
	}, w.onRetry(unitID))
}

// RecordOutcome sets status and appends detail without touching facts.
func (w *FactWriter) RecordOutcome(ctx context.Context, unitID int64, status models.CollectionStatus, detail *models.CollectionDetail) error {
	return retryOnContention(ctx, w.policy, func(ctx context.Context) error {
		return w.units.RecordOutcome(ctx, unitID, status, detail)
	}, w.onRetry(unitID))
}

func (w *FactWriter) onRetry(unitID int64) func(error) {
	return func(err error) {
		zap.S().Named("orchestrator").Debugw("unit write contention, retrying", "unit_id", unitID, "error", err)
	}
}
