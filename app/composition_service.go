package app

import (
	"context"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"go.uber.org/zap"
)

// CompositionService backfills parent/component links for merged
// products. It is a one-transaction-per-parent loop, architecturally
// independent of the reporting pipeline's concurrency domain.
type CompositionService struct {
	repo ports.CompositionRepository
	log  *zap.Logger
}

func NewCompositionService(repo ports.CompositionRepository, log *zap.Logger) *CompositionService {
	return &CompositionService{repo: repo, log: log}
}

// BackfillOutcome counts what one backfill pass did.
type BackfillOutcome struct {
	Linked int
	Failed int
}

// Backfill links every unlinked parent it can. A component that does not
// resolve to exactly one row fails that parent only; a malformed parent
// file name is a structural error and aborts the run.
func (s *CompositionService) Backfill(ctx context.Context) (*BackfillOutcome, error) {
	parents, err := s.repo.UnlinkedParents(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list unlinked parents")
	}

	out := &BackfillOutcome{}
	for _, parent := range parents {
		keys, err := models.ComponentKeys(parent.FileName)
		if err != nil {
			return out, errors.WithCode(errors.CodeCompositionError,
				errors.Wrapf(err, "structural error in parent %d", parent.ID))
		}

		componentIDs, err := s.resolveAll(ctx, keys)
		if err != nil {
			s.log.Error("failed to resolve components; skipping parent",
				zap.Int64("parent", parent.ID),
				zap.String("file", parent.FileName),
				zap.Error(err))
			out.Failed++
			continue
		}

		if err := s.repo.LinkComponents(ctx, parent.ID, componentIDs); err != nil {
			s.log.Error("failed to link components; skipping parent",
				zap.Int64("parent", parent.ID),
				zap.Error(err))
			out.Failed++
			continue
		}
		out.Linked++
		s.log.Info("linked parent",
			zap.Int64("parent", parent.ID),
			zap.Int("components", len(componentIDs)))
	}
	return out, nil
}

func (s *CompositionService) resolveAll(ctx context.Context, keys []models.ComponentKey) ([]int64, error) {
	ids := make([]int64, 0, len(keys))
	for _, key := range keys {
		id, err := s.repo.ResolveComponent(ctx, key)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}
