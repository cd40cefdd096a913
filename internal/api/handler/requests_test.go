package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstreamd/workstream/internal/store"
	"github.com/workstreamd/workstream/pkg/models"
)

// stubStore lets each test plug in just the operations it needs; the rest
// panic via the embedded nil interface.
type stubStore struct {
	store.Store

	createRequest    func(ctx context.Context, req *models.Request) (int64, error)
	getRequest       func(ctx context.Context, requestID int64) (*models.Request, error)
	updateRequest    func(ctx context.Context, requestID int64, upd store.RequestUpdate) error
	claimRequests    func(ctx context.Context, filter store.ClaimFilter) ([]*models.Request, error)
	commitTransforms func(ctx context.Context, requestID int64, upd store.RequestUpdate, toAdd []store.TransformCommit, toExtend []store.TransformExtension) error
}

func (s *stubStore) CreateRequest(ctx context.Context, req *models.Request) (int64, error) {
	return s.createRequest(ctx, req)
}

func (s *stubStore) GetRequest(ctx context.Context, requestID int64) (*models.Request, error) {
	return s.getRequest(ctx, requestID)
}

func (s *stubStore) UpdateRequest(ctx context.Context, requestID int64, upd store.RequestUpdate) error {
	return s.updateRequest(ctx, requestID, upd)
}

func (s *stubStore) ClaimRequests(ctx context.Context, filter store.ClaimFilter) ([]*models.Request, error) {
	return s.claimRequests(ctx, filter)
}

func (s *stubStore) CommitTransforms(ctx context.Context, requestID int64, upd store.RequestUpdate, toAdd []store.TransformCommit, toExtend []store.TransformExtension) error {
	return s.commitTransforms(ctx, requestID, upd, toAdd, toExtend)
}

// --- helpers ---

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	r := httptest.NewRequest(method, target, bytes.NewReader(b))
	r.Header.Set("Content-Type", "application/json")
	return r
}

// withURLParam injects a chi route parameter without standing up a router.
func withURLParam(r *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Error.Code
}

// --- create ---

func TestCreateRequestHandler_Defaults(t *testing.T) {
	var captured *models.Request
	s := &stubStore{createRequest: func(_ context.Context, req *models.Request) (int64, error) {
		captured = req
		return 7, nil
	}}

	h := NewCreateRequestHandler(s)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"scope": "data17",
		"name":  "data17.runs.period-a",
	}))

	require.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, models.RequestStatusNew, captured.Status)
	assert.Equal(t, 30, captured.Lifetime)

	var env struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, float64(7), env.Data["request_id"])
}

func TestCreateRequestHandler_MissingFields(t *testing.T) {
	h := NewCreateRequestHandler(&stubStore{})
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/requests", map[string]any{
		"scope": "data17",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

// --- get ---

func TestGetRequestHandler_NotFound(t *testing.T) {
	s := &stubStore{getRequest: func(_ context.Context, id int64) (*models.Request, error) {
		return nil, fmt.Errorf("request %d: %w", id, store.ErrNotFound)
	}}

	h := NewGetRequestHandler(s)
	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/requests/99", nil), "requestID", "99")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, rec))
}

func TestGetRequestHandler_BadID(t *testing.T) {
	h := NewGetRequestHandler(&stubStore{})
	rec := httptest.NewRecorder()
	r := withURLParam(httptest.NewRequest(http.MethodGet, "/api/v1/requests/abc", nil), "requestID", "abc")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- update ---

func TestUpdateRequestHandler_StaleLock(t *testing.T) {
	s := &stubStore{updateRequest: func(_ context.Context, id int64, _ store.RequestUpdate) error {
		return fmt.Errorf("request %d: %w", id, store.ErrStaleLock)
	}}

	h := NewUpdateRequestHandler(s)
	rec := httptest.NewRecorder()
	version := int64(3)
	r := withURLParam(jsonRequest(t, http.MethodPut, "/api/v1/requests/1", map[string]any{
		"status":          int(models.RequestStatusTransforming),
		"if_lock_version": version,
	}), "requestID", "1")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "STALE_LOCK", errorCode(t, rec))
}

func TestUpdateRequestHandler_PassesConditionThrough(t *testing.T) {
	var captured store.RequestUpdate
	s := &stubStore{updateRequest: func(_ context.Context, _ int64, upd store.RequestUpdate) error {
		captured = upd
		return nil
	}}

	h := NewUpdateRequestHandler(s)
	rec := httptest.NewRecorder()
	r := withURLParam(jsonRequest(t, http.MethodPut, "/api/v1/requests/1", map[string]any{
		"priority":        5,
		"if_lock_version": 2,
	}), "requestID", "1")
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, captured.Priority)
	assert.Equal(t, 5, *captured.Priority)
	require.NotNil(t, captured.IfLockVersion)
	assert.Equal(t, int64(2), *captured.IfLockVersion)
	assert.Nil(t, captured.Status)
}

// --- claim ---

func TestClaimRequestsHandler_OK(t *testing.T) {
	var captured store.ClaimFilter
	s := &stubStore{claimRequests: func(_ context.Context, filter store.ClaimFilter) ([]*models.Request, error) {
		captured = filter
		return []*models.Request{{RequestID: 1, LockVersion: 1}}, nil
	}}

	h := NewClaimRequestsHandler(s, 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/requests/claim", map[string]any{
		"statuses":        []int{int(models.RequestStatusNew)},
		"lock":            true,
		"older_than_secs": 60,
	}))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []models.RequestStatus{models.RequestStatusNew}, captured.Statuses)
	assert.True(t, captured.Lock)
	assert.Equal(t, 10, captured.BulkSize, "default bulk size applies")
	assert.NotEqual(t, "00000000-0000-0000-0000-000000000000", captured.LockedBy.String(),
		"a worker id is generated when none is given")
}

func TestClaimRequestsHandler_RequiresStatuses(t *testing.T) {
	h := NewClaimRequestsHandler(&stubStore{}, 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/requests/claim", map[string]any{
		"lock": true,
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestClaimRequestsHandler_RejectsBadWorkerID(t *testing.T) {
	h := NewClaimRequestsHandler(&stubStore{}, 10)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, jsonRequest(t, http.MethodPost, "/api/v1/requests/claim", map[string]any{
		"statuses":  []int{int(models.RequestStatusNew)},
		"worker_id": "not-a-uuid",
	}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// --- commit ---

func TestCommitTransformsHandler_OK(t *testing.T) {
	var gotRequestID int64
	var gotToAdd []store.TransformCommit
	s := &stubStore{commitTransforms: func(_ context.Context, requestID int64, _ store.RequestUpdate, toAdd []store.TransformCommit, _ []store.TransformExtension) error {
		gotRequestID = requestID
		gotToAdd = toAdd
		return nil
	}}

	h := NewCommitTransformsHandler(s)
	rec := httptest.NewRecorder()
	body := map[string]any{
		"request_update": map[string]any{"status": int(models.RequestStatusTransforming)},
		"transforms_to_add": []map[string]any{{
			"transform_tag": "r9364",
			"collections": map[string]any{
				"input_collections":  []map[string]any{{"scope": "data17", "name": "in.raw"}},
				"output_collections": []map[string]any{{"scope": "data17", "name": "out.derived"}},
			},
		}},
	}
	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/requests/1/transforms", body), "requestID", "1")
	h.ServeHTTP(rec, r)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, int64(1), gotRequestID)
	require.Len(t, gotToAdd, 1)
	assert.Equal(t, "r9364", gotToAdd[0].Transform.TransformTag)
	assert.Equal(t, models.TransformStatusNew, gotToAdd[0].Transform.Status, "status defaults to New")
	assert.Len(t, gotToAdd[0].InputCollections, 1)
	assert.Len(t, gotToAdd[0].OutputCollections, 1)
}

func TestCommitTransformsHandler_RejectsMissingCollections(t *testing.T) {
	h := NewCommitTransformsHandler(&stubStore{})
	rec := httptest.NewRecorder()
	body := map[string]any{
		"transforms_to_add": []map[string]any{{"transform_tag": "r9364"}},
	}
	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/requests/1/transforms", body), "requestID", "1")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_REQUEST", errorCode(t, rec))
}

func TestCommitTransformsHandler_DuplicateMapsToConflict(t *testing.T) {
	s := &stubStore{commitTransforms: func(_ context.Context, _ int64, _ store.RequestUpdate, _ []store.TransformCommit, _ []store.TransformExtension) error {
		return fmt.Errorf("collection data17:out.derived: %w", store.ErrDuplicateKey)
	}}

	h := NewCommitTransformsHandler(s)
	rec := httptest.NewRecorder()
	body := map[string]any{
		"transforms_to_add": []map[string]any{{
			"transform_tag": "r9364",
			"collections": map[string]any{
				"output_collections": []map[string]any{{"scope": "data17", "name": "out.derived"}},
			},
		}},
	}
	r := withURLParam(jsonRequest(t, http.MethodPost, "/api/v1/requests/1/transforms", body), "requestID", "1")
	h.ServeHTTP(rec, r)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "DUPLICATE", errorCode(t, rec))
}
