package ports

import (
	"context"

	"ukbreport/models"
)

// CompositionRepository backs the composition backfill: merged parent
// products are linked to the pre-existing single-lane rows they were
// built from.
type CompositionRepository interface {
	// UnlinkedParents lists merged product rows with no composition links
	// yet.
	UnlinkedParents(ctx context.Context) ([]models.ParentProduct, error)

	// ResolveComponent finds the product row id for a single-lane
	// component key. Exactly one row must match.
	ResolveComponent(ctx context.Context, key models.ComponentKey) (int64, error)

	// LinkComponents atomically creates the linking rows for one parent,
	// recording each component's position and the total count.
	LinkComponents(ctx context.Context, parentID int64, componentIDs []int64) error
}
