package postgres

import (
	"context"
	"fmt"

	"ukbreport/internal/errors"
	"ukbreport/models"
	"ukbreport/ports"

	"github.com/jmoiron/sqlx"
)

// CompositionRepositoryImpl implements CompositionRepository for
// PostgreSQL
type CompositionRepositoryImpl struct {
	db *sqlx.DB
}

// NewCompositionRepository creates a new PostgreSQL composition
// repository
func NewCompositionRepository(db *sqlx.DB) ports.CompositionRepository {
	return &CompositionRepositoryImpl{db: db}
}

// UnlinkedParents lists merged products (lane token contains a dash)
// with no composition rows yet.
func (r *CompositionRepositoryImpl) UnlinkedParents(ctx context.Context) ([]models.ParentProduct, error) {
	var parents []models.ParentProduct
	err := r.db.SelectContext(ctx, &parents, `
		SELECT p.id_product, p.file_name
		FROM product p
		WHERE p.file_name LIKE '%-%'
		  AND NOT EXISTS (
			SELECT 1 FROM product_component pc WHERE pc.id_parent = p.id_product
		  )
		ORDER BY p.id_product
	`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query unlinked parents")
	}
	return parents, nil
}

// ResolveComponent maps a component's natural key to its product row id.
// Anything other than exactly one match is an error.
func (r *CompositionRepositoryImpl) ResolveComponent(ctx context.Context, key models.ComponentKey) (int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id_product
		FROM product
		WHERE id_run = $1 AND position = $2 AND tag_index = $3
	`, key.RunID, key.Lane, key.TagIndex)
	if err != nil {
		return 0, errors.Wrap(err, "failed to resolve component")
	}
	if len(ids) != 1 {
		return 0, errors.New(errors.CodeCompositionError,
			fmt.Sprintf("component %d_%d#%d matched %d rows, want 1",
				key.RunID, key.Lane, key.TagIndex, len(ids)))
	}
	return ids[0], nil
}

// LinkComponents creates the linking rows for one parent in a single
// transaction, one transaction per parent.
func (r *CompositionRepositoryImpl) LinkComponents(ctx context.Context, parentID int64, componentIDs []int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin composition transaction")
	}
	defer tx.Rollback()

	total := len(componentIDs)
	for i, componentID := range componentIDs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO product_component (id_parent, id_component, position, num_components)
			VALUES ($1, $2, $3, $4)
		`, parentID, componentID, i+1, total)
		if err != nil {
			return errors.Wrapf(err, "failed to link component %d of parent %d", componentID, parentID)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit composition transaction")
	}
	return nil
}
