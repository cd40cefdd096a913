package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/workstreamd/workstream/pkg/models"
)

const transformColumns = `transform_id, transform_tag, status, retries, transform_metadata,
	expired_at, created_at, updated_at`

func scanTransform(row pgx.Row) (*models.Transform, error) {
	var t models.Transform
	var meta *string
	if err := row.Scan(&t.TransformID, &t.TransformTag, &t.Status, &t.Retries, &meta,
		&t.ExpiredAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if t.TransformMetadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) CreateTransform(ctx context.Context, tf *models.Transform) (int64, error) {
	return createTransform(ctx, s.pool, tf)
}

func createTransform(ctx context.Context, q querier, tf *models.Transform) (int64, error) {
	meta, err := marshalMetadata(tf.TransformMetadata)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var id int64
	err = q.QueryRow(ctx,
		`INSERT INTO transforms (transform_tag, status, retries, transform_metadata, expired_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING transform_id`,
		tf.TransformTag, tf.Status, tf.Retries, meta, tf.ExpiredAt, now, now,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("create transform: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetTransform(ctx context.Context, transformID int64) (*models.Transform, error) {
	tf, err := scanTransform(s.pool.QueryRow(ctx,
		`SELECT `+transformColumns+` FROM transforms WHERE transform_id = $1`, transformID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("transform %d: %w", transformID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get transform: %w", err)
	}
	return tf, nil
}

func (s *PostgresStore) UpdateTransform(ctx context.Context, transformID int64, upd TransformUpdate) error {
	return updateTransform(ctx, s.pool, transformID, upd)
}

func updateTransform(ctx context.Context, q querier, transformID int64, upd TransformUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{transformID, time.Now().UTC()}
	argIdx := 3

	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *upd.Status)
		argIdx++
	}
	if upd.Retries != nil {
		sets = append(sets, fmt.Sprintf("retries = $%d", argIdx))
		args = append(args, *upd.Retries)
		argIdx++
	}
	if upd.TransformMetadata != nil {
		meta, err := marshalMetadata(*upd.TransformMetadata)
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("transform_metadata = $%d", argIdx))
		args = append(args, meta)
	}

	tag, err := q.Exec(ctx,
		"UPDATE transforms SET "+strings.Join(sets, ", ")+" WHERE transform_id = $1", args...)
	if err != nil {
		return fmt.Errorf("update transform: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transform %d: %w", transformID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteTransform(ctx context.Context, transformID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM transforms WHERE transform_id = $1`, transformID)
	if err != nil {
		return fmt.Errorf("delete transform: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transform %d: %w", transformID, ErrNotFound)
	}
	return nil
}
