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

const collectionColumns = `coll_id, transform_id, scope, name, status, total_files, bytes,
	coll_metadata, created_at, updated_at`

func scanCollection(row pgx.Row) (*models.Collection, error) {
	var c models.Collection
	var meta *string
	if err := row.Scan(&c.CollID, &c.TransformID, &c.Scope, &c.Name, &c.Status,
		&c.TotalFiles, &c.Bytes, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.CollMetadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) CreateCollection(ctx context.Context, coll *models.Collection) (int64, error) {
	return createCollection(ctx, s.pool, coll)
}

func createCollection(ctx context.Context, q querier, coll *models.Collection) (int64, error) {
	meta, err := marshalMetadata(coll.CollMetadata)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	var id int64
	err = q.QueryRow(ctx,
		`INSERT INTO collections (transform_id, scope, name, status, total_files, bytes, coll_metadata, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING coll_id`,
		coll.TransformID, coll.Scope, coll.Name, coll.Status, coll.TotalFiles, coll.Bytes, meta, now, now,
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("collection %s:%s: %w", coll.Scope, coll.Name, ErrDuplicateKey)
		}
		return 0, fmt.Errorf("create collection: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetCollection(ctx context.Context, collID int64) (*models.Collection, error) {
	coll, err := scanCollection(s.pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE coll_id = $1`, collID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %d: %w", collID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection: %w", err)
	}
	return coll, nil
}

func (s *PostgresStore) GetCollectionByName(ctx context.Context, transformID int64, scope, name string) (*models.Collection, error) {
	coll, err := scanCollection(s.pool.QueryRow(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE transform_id = $1 AND scope = $2 AND name = $3`,
		transformID, scope, name))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("collection %s:%s of transform %d: %w", scope, name, transformID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get collection by name: %w", err)
	}
	return coll, nil
}

func (s *PostgresStore) GetCollectionsByTransform(ctx context.Context, transformID int64) ([]*models.Collection, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+collectionColumns+` FROM collections WHERE transform_id = $1 ORDER BY coll_id`, transformID)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer rows.Close()

	var colls []*models.Collection
	for rows.Next() {
		coll, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan collection: %w", err)
		}
		colls = append(colls, coll)
	}
	return colls, rows.Err()
}

func (s *PostgresStore) UpdateCollection(ctx context.Context, collID int64, upd CollectionUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{collID, time.Now().UTC()}
	argIdx := 3

	if upd.Status != nil {
		sets = append(sets, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, *upd.Status)
		argIdx++
	}
	if upd.TotalFiles != nil {
		sets = append(sets, fmt.Sprintf("total_files = $%d", argIdx))
		args = append(args, *upd.TotalFiles)
		argIdx++
	}
	if upd.Bytes != nil {
		sets = append(sets, fmt.Sprintf("bytes = $%d", argIdx))
		args = append(args, *upd.Bytes)
		argIdx++
	}
	if upd.CollMetadata != nil {
		meta, err := marshalMetadata(*upd.CollMetadata)
		if err != nil {
			return err
		}
		sets = append(sets, fmt.Sprintf("coll_metadata = $%d", argIdx))
		args = append(args, meta)
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE collections SET "+strings.Join(sets, ", ")+" WHERE coll_id = $1", args...)
	if err != nil {
		return fmt.Errorf("update collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %d: %w", collID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) DeleteCollection(ctx context.Context, collID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM collections WHERE coll_id = $1`, collID)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("collection %d: %w", collID, ErrNotFound)
	}
	return nil
}
