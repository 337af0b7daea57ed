package journal

import (
	"context"

	"go.uber.org/zap"

	"carbon-scribe/credit-market/credit-market-backend/internal/market"
)

// Recorder is a market.Publisher that appends every event to the journal
type Recorder struct {
	repo   Repository
	logger *zap.Logger
}

func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) Publish(ctx context.Context, event market.Event) error {
	if err := r.repo.Append(ctx, event); err != nil {
		return err
	}
	r.logger.Debug("Event journaled",
		zap.Uint64("sequence", event.Sequence),
		zap.String("type", string(event.Type)))
	return nil
}
