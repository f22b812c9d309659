package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/jbcub/studentdir/internal/domain/shared"
	"github.com/jbcub/studentdir/internal/domain/student"
)

// FieldRepository implements student.FieldCatalog for PostgreSQL.
type FieldRepository struct {
	conn *Connection
}

// NewFieldRepository creates a new FieldRepository.
func NewFieldRepository(conn *Connection) *FieldRepository {
	return &FieldRepository{conn: conn}
}

var _ student.FieldCatalog = (*FieldRepository)(nil)

// LoadFieldDefinitions returns the catalogue in the order it was saved.
func (r *FieldRepository) LoadFieldDefinitions(ctx context.Context) ([]student.FieldDefinition, error) {
	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	rows, err := r.conn.Query(ctx, `
		SELECT name, classification, description, synonyms
		FROM field_definitions
		ORDER BY position, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to load field definitions: %w", err)
	}
	defer rows.Close()

	var defs []student.FieldDefinition
	for rows.Next() {
		var (
			d     student.FieldDefinition
			class string
		)
		if err := rows.Scan(&d.Name, &class, &d.Description, &d.Synonyms); err != nil {
			return nil, fmt.Errorf("failed to scan field definition: %w", err)
		}
		d.Classification = student.Classification(class)
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

// SaveFieldDefinitions replaces the whole catalogue in one transaction.
func (r *FieldRepository) SaveFieldDefinitions(ctx context.Context, defs []student.FieldDefinition) error {
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
	}

	ctx, cancel := r.conn.withTimeout(ctx)
	defer cancel()

	return r.conn.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM field_definitions`); err != nil {
			return fmt.Errorf("failed to clear field definitions: %w", err)
		}

		batch := &pgx.Batch{}
		for i, d := range defs {
			synonyms := d.Synonyms
			if synonyms == nil {
				synonyms = []string{}
			}
			batch.Queue(`
				INSERT INTO field_definitions (name, classification, description, synonyms, position)
				VALUES ($1, $2, $3, $4, $5)`,
				d.Name, string(d.Classification), d.Description, synonyms, i)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			if IsUniqueViolation(err) {
				return shared.ErrDuplicateField
			}
			return fmt.Errorf("failed to save field definitions: %w", err)
		}
		return nil
	})
}
