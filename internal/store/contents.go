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

const contentColumns = `content_id, coll_id, scope, name, min_id, max_id, content_type, status,
	bytes, md5, adler32, processing_id, storage_id, retries, path, expired_at,
	content_metadata, created_at, updated_at`

const insertContentSQL = `INSERT INTO contents (coll_id, scope, name, min_id, max_id, content_type, status,
	                       bytes, md5, adler32, processing_id, storage_id, retries, path, expired_at,
	                       content_metadata, created_at, updated_at)
	 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

// defaultContentLifetime is applied when a content carries no expiry of its own.
const defaultContentLifetime = 30 * 24 * time.Hour

func scanContent(row pgx.Row) (*models.Content, error) {
	var c models.Content
	var meta *string
	if err := row.Scan(&c.ContentID, &c.CollID, &c.Scope, &c.Name, &c.MinID, &c.MaxID,
		&c.ContentType, &c.Status, &c.Bytes, &c.MD5, &c.Adler32, &c.ProcessingID, &c.StorageID,
		&c.Retries, &c.Path, &c.ExpiredAt, &meta, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.ContentMetadata, err = unmarshalMetadata(meta); err != nil {
		return nil, err
	}
	return &c, nil
}

func contentInsertArgs(c *models.Content, now time.Time) ([]any, error) {
	meta, err := marshalMetadata(c.ContentMetadata)
	if err != nil {
		return nil, err
	}
	expiredAt := c.ExpiredAt
	if expiredAt == nil {
		t := now.Add(defaultContentLifetime)
		expiredAt = &t
	}
	return []any{c.CollID, c.Scope, c.Name, c.MinID, c.MaxID, c.ContentType, c.Status,
		c.Bytes, c.MD5, c.Adler32, c.ProcessingID, c.StorageID, c.Retries, c.Path, expiredAt,
		meta, now, now}, nil
}

// CreateContent inserts one Content and returns its generated id. A
// uniqueness violation on the identity key surfaces as ErrDuplicateKey.
func (s *PostgresStore) CreateContent(ctx context.Context, content *models.Content) (int64, error) {
	args, err := contentInsertArgs(content, time.Now().UTC())
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, insertContentSQL+" RETURNING content_id", args...).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("content %d:%s:%s: %w", content.CollID, content.Scope, content.Name, ErrDuplicateKey)
		}
		return 0, fmt.Errorf("create content: %w", err)
	}
	return id, nil
}

// CreateContents inserts contents in chunks of at most bulkSize records, each
// chunk issued as one batched statement inside its own transaction. With
// returningID the generated ids come back in input order; without it the
// result is a same-length slice of zeros so callers can treat both modes
// uniformly. Any duplicate fails its whole chunk; the call should then be
// treated as failed.
func (s *PostgresStore) CreateContents(ctx context.Context, contents []*models.Content, returningID bool, bulkSize int) ([]int64, error) {
	if bulkSize <= 0 {
		bulkSize = 100
	}

	ids := make([]int64, 0, len(contents))
	now := time.Now().UTC()

	for start := 0; start < len(contents); start += bulkSize {
		end := min(start+bulkSize, len(contents))
		chunkIDs, err := s.insertContentChunk(ctx, contents[start:end], returningID, now)
		if err != nil {
			return nil, err
		}
		ids = append(ids, chunkIDs...)
	}
	return ids, nil
}

func (s *PostgresStore) insertContentChunk(ctx context.Context, chunk []*models.Content, returningID bool, now time.Time) ([]int64, error) {
	batch := &pgx.Batch{}
	sql := insertContentSQL
	if returningID {
		sql += " RETURNING content_id"
	}
	for _, c := range chunk {
		args, err := contentInsertArgs(c, now)
		if err != nil {
			return nil, err
		}
		batch.Queue(sql, args...)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin bulk insert: %w", err)
	}
	defer tx.Rollback(ctx)

	results := tx.SendBatch(ctx, batch)
	ids := make([]int64, len(chunk))
	for i, c := range chunk {
		if returningID {
			err = results.QueryRow().Scan(&ids[i])
		} else {
			_, err = results.Exec()
		}
		if err != nil {
			results.Close()
			if isDuplicateKeyError(err) {
				return nil, fmt.Errorf("content %d:%s:%s: %w", c.CollID, c.Scope, c.Name, ErrDuplicateKey)
			}
			return nil, fmt.Errorf("bulk insert contents: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return nil, fmt.Errorf("bulk insert contents: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit bulk insert: %w", err)
	}
	return ids, nil
}

// GetContentID resolves a Content's identity key to its id, used to detect
// whether a (sub-)range was already registered. The File type matches without
// range bounds; any other type must match min_id/max_id exactly.
func (s *PostgresStore) GetContentID(ctx context.Context, key ContentKey) (int64, error) {
	var row pgx.Row
	if key.Ranged() {
		row = s.pool.QueryRow(ctx,
			`SELECT content_id FROM contents
			 WHERE coll_id = $1 AND scope = $2 AND name = $3 AND content_type = $4 AND min_id = $5 AND max_id = $6`,
			key.CollID, key.Scope, key.Name, key.ContentType, key.MinID, key.MaxID)
	} else {
		row = s.pool.QueryRow(ctx,
			`SELECT content_id FROM contents
			 WHERE coll_id = $1 AND scope = $2 AND name = $3 AND content_type = $4`,
			key.CollID, key.Scope, key.Name, key.ContentType)
	}

	var id int64
	err := row.Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("content %d:%s:%s: %w", key.CollID, key.Scope, key.Name, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("get content id: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetContent(ctx context.Context, contentID int64) (*models.Content, error) {
	content, err := scanContent(s.pool.QueryRow(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE content_id = $1`, contentID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("content %d: %w", contentID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content: %w", err)
	}
	return content, nil
}

func (s *PostgresStore) GetContentByKey(ctx context.Context, key ContentKey) (*models.Content, error) {
	id, err := s.GetContentID(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.GetContent(ctx, id)
}

// GetMatchContents returns the contents covering the key: for a ranged key,
// rows whose [min_id, max_id] contains the requested range; for File, the
// single unranged row.
func (s *PostgresStore) GetMatchContents(ctx context.Context, key ContentKey) ([]*models.Content, error) {
	var rows pgx.Rows
	var err error
	if key.Ranged() {
		rows, err = s.pool.Query(ctx,
			`SELECT `+contentColumns+` FROM contents
			 WHERE coll_id = $1 AND scope = $2 AND name = $3 AND content_type = $4
			   AND min_id <= $5 AND max_id >= $6`,
			key.CollID, key.Scope, key.Name, key.ContentType, key.MinID, key.MaxID)
	} else {
		rows, err = s.pool.Query(ctx,
			`SELECT `+contentColumns+` FROM contents
			 WHERE coll_id = $1 AND scope = $2 AND name = $3 AND content_type = $4`,
			key.CollID, key.Scope, key.Name, key.ContentType)
	}
	if err != nil {
		return nil, fmt.Errorf("match contents: %w", err)
	}
	return collectContents(rows)
}

func (s *PostgresStore) GetContents(ctx context.Context, filter ContentFilter) ([]*models.Content, error) {
	hasName := filter.Scope != "" && filter.Name != ""
	if !hasName && filter.CollID == nil && len(filter.Statuses) == 0 {
		return nil, fmt.Errorf("content filter needs scope+name, coll_id or status: %w", ErrInvalidArgument)
	}

	var conditions []string
	var args []any
	argIdx := 1

	add := func(cond string, value any) {
		conditions = append(conditions, fmt.Sprintf(cond, argIdx))
		args = append(args, value)
		argIdx++
	}

	if hasName {
		add("scope = $%d", filter.Scope)
		add("name LIKE $%d", "%"+filter.Name+"%")
	}
	if filter.CollID != nil {
		add("coll_id = $%d", *filter.CollID)
	}
	if len(filter.Statuses) > 0 {
		add("status = ANY($%d)", statusValues(filter.Statuses))
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+contentColumns+` FROM contents WHERE `+strings.Join(conditions, " AND ")+` ORDER BY content_id`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list contents: %w", err)
	}
	return collectContents(rows)
}

func collectContents(rows pgx.Rows) ([]*models.Content, error) {
	defer rows.Close()
	var contents []*models.Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

func (s *PostgresStore) UpdateContent(ctx context.Context, contentID int64, upd ContentUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{contentID, time.Now().UTC()}
	argIdx := 3

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Bytes != nil {
		add("bytes", *upd.Bytes)
	}
	if upd.Retries != nil {
		add("retries", *upd.Retries)
	}
	if upd.Path != nil {
		add("path", *upd.Path)
	}
	if upd.ContentMetadata != nil {
		meta, err := marshalMetadata(*upd.ContentMetadata)
		if err != nil {
			return err
		}
		add("content_metadata", meta)
	}

	tag, err := s.pool.Exec(ctx,
		"UPDATE contents SET "+strings.Join(sets, ", ")+" WHERE content_id = $1", args...)
	if err != nil {
		return fmt.Errorf("update content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("content %d: %w", contentID, ErrNotFound)
	}
	return nil
}

// UpdateContentsStatus applies status/path transitions to many contents in
// one batch, each addressed by content id or by identity key.
func (s *PostgresStore) UpdateContentsStatus(ctx context.Context, updates []ContentStatusUpdate) error {
	batch := &pgx.Batch{}
	now := time.Now().UTC()
	for _, u := range updates {
		switch {
		case u.ContentID != nil:
			batch.Queue(
				`UPDATE contents SET status = $2, path = COALESCE($3, path), updated_at = $4 WHERE content_id = $1`,
				*u.ContentID, u.Status, u.Path, now)
		case u.Key != nil:
			batch.Queue(
				`UPDATE contents SET status = $7, path = COALESCE($8, path), updated_at = $9
				 WHERE coll_id = $1 AND scope = $2 AND name = $3 AND content_type = $4 AND min_id = $5 AND max_id = $6`,
				u.Key.CollID, u.Key.Scope, u.Key.Name, u.Key.ContentType, u.Key.MinID, u.Key.MaxID,
				u.Status, u.Path, now)
		default:
			return fmt.Errorf("content status update needs content id or identity key: %w", ErrInvalidArgument)
		}
	}

	if err := s.pool.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("update contents: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteContent(ctx context.Context, contentID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM contents WHERE content_id = $1`, contentID)
	if err != nil {
		return fmt.Errorf("delete content: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("content %d: %w", contentID, ErrNotFound)
	}
	return nil
}

// CountContentsByStatus groups contents by status, optionally scoped to one
// collection. Progress reporting only; never consulted for claiming.
func (s *PostgresStore) CountContentsByStatus(ctx context.Context, collID *int64) (map[models.ContentStatus]int64, error) {
	var rows pgx.Rows
	var err error
	if collID != nil {
		rows, err = s.pool.Query(ctx,
			`SELECT status, COUNT(*) FROM contents WHERE coll_id = $1 GROUP BY status`, *collID)
	} else {
		rows, err = s.pool.Query(ctx, `SELECT status, COUNT(*) FROM contents GROUP BY status`)
	}
	if err != nil {
		return nil, fmt.Errorf("count contents by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.ContentStatus]int64)
	for rows.Next() {
		var status models.ContentStatus
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		counts[status] = count
	}
	return counts, rows.Err()
}
