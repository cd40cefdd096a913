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

const requestColumns = `request_id, scope, name, requester, request_type, transform_tag, status, locking,
	priority, lifetime, workload_id, request_metadata, processing_metadata,
	locked_by, locked_at, lock_version, expired_at, created_at, updated_at`

func scanRequest(row pgx.Row) (*models.Request, error) {
	var r models.Request
	var reqMeta, procMeta *string
	if err := row.Scan(&r.RequestID, &r.Scope, &r.Name, &r.Requester, &r.RequestType, &r.TransformTag,
		&r.Status, &r.Locking, &r.Priority, &r.Lifetime, &r.WorkloadID, &reqMeta, &procMeta,
		&r.LockedBy, &r.LockedAt, &r.LockVersion, &r.ExpiredAt, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	var err error
	if r.RequestMetadata, err = unmarshalMetadata(reqMeta); err != nil {
		return nil, err
	}
	if r.ProcessingMetadata, err = unmarshalMetadata(procMeta); err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateRequest inserts a Request and returns its generated id. When the
// request metadata carries a workload_id and none was set explicitly, the
// metadata value becomes the request's workload id.
func (s *PostgresStore) CreateRequest(ctx context.Context, req *models.Request) (int64, error) {
	workloadID := req.WorkloadID
	if workloadID == nil {
		if id, ok := metadataInt64(req.RequestMetadata, "workload_id"); ok {
			workloadID = &id
		}
	}

	reqMeta, err := marshalMetadata(req.RequestMetadata)
	if err != nil {
		return 0, err
	}
	procMeta, err := marshalMetadata(req.ProcessingMetadata)
	if err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	expiredAt := now.AddDate(0, 0, req.Lifetime)

	var id int64
	err = s.pool.QueryRow(ctx,
		`INSERT INTO requests (scope, name, requester, request_type, transform_tag, status, locking,
		                       priority, lifetime, workload_id, request_metadata, processing_metadata,
		                       expired_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		 RETURNING request_id`,
		req.Scope, req.Name, req.Requester, req.RequestType, req.TransformTag, req.Status, req.Locking,
		req.Priority, req.Lifetime, workloadID, reqMeta, procMeta, expiredAt, now, now,
	).Scan(&id)
	if err != nil {
		if isDuplicateKeyError(err) {
			return 0, fmt.Errorf("request %s:%s: %w", req.Scope, req.Name, ErrDuplicateKey)
		}
		return 0, fmt.Errorf("create request: %w", err)
	}
	return id, nil
}

func (s *PostgresStore) GetRequest(ctx context.Context, requestID int64) (*models.Request, error) {
	req, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE request_id = $1`, requestID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("request %d: %w", requestID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) GetRequestByWorkloadID(ctx context.Context, workloadID int64) (*models.Request, error) {
	req, err := scanRequest(s.pool.QueryRow(ctx,
		`SELECT `+requestColumns+` FROM requests WHERE workload_id = $1 ORDER BY request_id DESC LIMIT 1`,
		workloadID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("request with workload %d: %w", workloadID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get request by workload: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) UpdateRequest(ctx context.Context, requestID int64, upd RequestUpdate) error {
	return updateRequest(ctx, s.pool, requestID, upd)
}

func updateRequest(ctx context.Context, q querier, requestID int64, upd RequestUpdate) error {
	sets := []string{"updated_at = $2"}
	args := []any{requestID, time.Now().UTC()}
	argIdx := 3

	add := func(column string, value any) {
		sets = append(sets, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	if upd.Status != nil {
		add("status", *upd.Status)
	}
	if upd.Locking != nil {
		add("locking", *upd.Locking)
	}
	if upd.Priority != nil {
		add("priority", *upd.Priority)
	}
	if upd.WorkloadID != nil {
		add("workload_id", *upd.WorkloadID)
	}
	if upd.RequestMetadata != nil {
		meta, err := marshalMetadata(*upd.RequestMetadata)
		if err != nil {
			return err
		}
		add("request_metadata", meta)
	}
	if upd.ProcessingMetadata != nil {
		meta, err := marshalMetadata(*upd.ProcessingMetadata)
		if err != nil {
			return err
		}
		add("processing_metadata", meta)
	}

	query := "UPDATE requests SET " + strings.Join(sets, ", ") + " WHERE request_id = $1"
	if upd.IfLockVersion != nil {
		query += fmt.Sprintf(" AND lock_version = $%d", argIdx)
		args = append(args, *upd.IfLockVersion)
	}

	tag, err := q.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if upd.IfLockVersion != nil {
			var one int
			err := q.QueryRow(ctx, `SELECT 1 FROM requests WHERE request_id = $1`, requestID).Scan(&one)
			if err == nil {
				return fmt.Errorf("request %d: %w", requestID, ErrStaleLock)
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("update request: %w", err)
			}
		}
		return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
	}
	return nil
}

// ExtendRequest pushes a request's expiry horizon to lifetime days from now.
func (s *PostgresStore) ExtendRequest(ctx context.Context, requestID int64, lifetime int) error {
	now := time.Now().UTC()
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests SET lifetime = $2, expired_at = $3, updated_at = $4 WHERE request_id = $1`,
		requestID, lifetime, now.AddDate(0, 0, lifetime), now)
	if err != nil {
		return fmt.Errorf("extend request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
	}
	return nil
}

func (s *PostgresStore) CancelRequest(ctx context.Context, requestID int64) error {
	status := models.RequestStatusCancelled
	return updateRequest(ctx, s.pool, requestID, RequestUpdate{Status: &status})
}

func (s *PostgresStore) DeleteRequest(ctx context.Context, requestID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM requests WHERE request_id = $1`, requestID)
	if err != nil {
		return fmt.Errorf("delete request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("request %d: %w", requestID, ErrNotFound)
	}
	return nil
}

// ClaimRequests selects Requests matching the filter and, when Lock is set,
// atomically marks them Locking so no concurrent claimer can take them. The
// select and the lock update share one transaction; FOR UPDATE SKIP LOCKED
// keeps concurrent claimers from blocking on each other's candidate rows.
//
// The returned rows are the pre-lock snapshots (the status that made each
// request eligible), with LockVersion updated to the fencing value the claim
// produced.
func (s *PostgresStore) ClaimRequests(ctx context.Context, filter ClaimFilter) ([]*models.Request, error) {
	if len(filter.Statuses) == 0 {
		return nil, fmt.Errorf("claim requires at least one status: %w", ErrInvalidArgument)
	}

	conditions := []string{"status = ANY($1)"}
	args := []any{statusValues(filter.Statuses)}
	argIdx := 2

	if filter.RequestType != nil {
		conditions = append(conditions, fmt.Sprintf("request_type = $%d", argIdx))
		args = append(args, *filter.RequestType)
		argIdx++
	}
	if filter.OlderThan > 0 {
		conditions = append(conditions, fmt.Sprintf("updated_at < $%d", argIdx))
		args = append(args, time.Now().UTC().Add(-filter.OlderThan))
		argIdx++
	}
	if filter.Lock {
		conditions = append(conditions, "locking = 0")
	}

	query := `SELECT ` + requestColumns + ` FROM requests WHERE ` + strings.Join(conditions, " AND ") +
		" ORDER BY priority DESC, request_id"
	if filter.BulkSize > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, filter.BulkSize)
	}

	if !filter.Lock {
		rows, err := s.pool.Query(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("query requests: %w", err)
		}
		return collectRequests(rows)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin claim: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, query+" FOR UPDATE SKIP LOCKED", args...)
	if err != nil {
		return nil, fmt.Errorf("query claimable requests: %w", err)
	}
	reqs, err := collectRequests(rows)
	if err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, len(reqs))
	byID := make(map[int64]*models.Request, len(reqs))
	for i, r := range reqs {
		ids[i] = r.RequestID
		byID[r.RequestID] = r
	}

	lockRows, err := tx.Query(ctx,
		`UPDATE requests
		 SET locking = 1, locked_by = $2, locked_at = $3, lock_version = lock_version + 1, updated_at = $3
		 WHERE request_id = ANY($1)
		 RETURNING request_id, lock_version`,
		ids, filter.LockedBy, time.Now().UTC())
	if err != nil {
		return nil, fmt.Errorf("lock requests: %w", err)
	}
	for lockRows.Next() {
		var id, version int64
		if err := lockRows.Scan(&id, &version); err != nil {
			lockRows.Close()
			return nil, fmt.Errorf("scan lock version: %w", err)
		}
		byID[id].LockVersion = version
	}
	if err := lockRows.Err(); err != nil {
		return nil, fmt.Errorf("lock requests: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit claim: %w", err)
	}
	return reqs, nil
}

func collectRequests(rows pgx.Rows) ([]*models.Request, error) {
	defer rows.Close()
	var reqs []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan request: %w", err)
		}
		reqs = append(reqs, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read requests: %w", err)
	}
	return reqs, nil
}

// ReclaimExpiredLocks resets every lease older than olderThan back to Idle so
// the requests become claimable again. This is the only recovery path for a
// worker that died between claiming and committing; olderThan must exceed the
// worst-case legitimate processing time of one claim cycle.
func (s *PostgresStore) ReclaimExpiredLocks(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`UPDATE requests
		 SET locking = 0, locked_by = NULL, locked_at = NULL, updated_at = $2
		 WHERE locking = 1 AND locked_at < $1`,
		time.Now().UTC().Add(-olderThan), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("reclaim expired locks: %w", err)
	}
	return tag.RowsAffected(), nil
}
