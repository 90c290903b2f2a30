package testkit

import (
	"context"
	"fmt"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"
)

// FakeComposition implements CompositionRepository over maps. Components
// maps a natural key to the product row ids matching it, so tests can
// model the zero-match and many-match failure cases.
type FakeComposition struct {
	Parents    []models.ParentProduct
	Components map[models.ComponentKey][]int64
	Links      map[int64][]int64
	LinkErr    error
}

func NewFakeComposition() *FakeComposition {
	return &FakeComposition{
		Components: make(map[models.ComponentKey][]int64),
		Links:      make(map[int64][]int64),
	}
}

func (f *FakeComposition) UnlinkedParents(ctx context.Context) ([]models.ParentProduct, error) {
	var unlinked []models.ParentProduct
	for _, p := range f.Parents {
		if _, ok := f.Links[p.ID]; !ok {
			unlinked = append(unlinked, p)
		}
	}
	return unlinked, nil
}

func (f *FakeComposition) ResolveComponent(ctx context.Context, key models.ComponentKey) (int64, error) {
	ids := f.Components[key]
	if len(ids) != 1 {
		return 0, errors.New(errors.CodeCompositionError,
			fmt.Sprintf("component %d_%d#%d matched %d rows, want 1",
				key.RunID, key.Lane, key.TagIndex, len(ids)))
	}
	return ids[0], nil
}

func (f *FakeComposition) LinkComponents(ctx context.Context, parentID int64, componentIDs []int64) error {
	if f.LinkErr != nil {
		return f.LinkErr
	}
	f.Links[parentID] = append([]int64(nil), componentIDs...)
	return nil
}

var _ ports.CompositionRepository = (*FakeComposition)(nil)
