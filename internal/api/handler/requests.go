package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/workstreamd/workstream/internal/api/response"
	"github.com/workstreamd/workstream/internal/store"
	"github.com/workstreamd/workstream/pkg/models"
)

func requestIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "requestID"), 10, 64)
	if err != nil {
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "requestID must be an integer", nil)
		return 0, false
	}
	return id, true
}

// NewCreateRequestHandler returns an http.HandlerFunc for POST /api/v1/requests.
func NewCreateRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req models.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.Scope == "" || req.Name == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "scope and name are required", nil)
			return
		}
		if req.Status == 0 {
			req.Status = models.RequestStatusNew
		}
		if req.Lifetime == 0 {
			req.Lifetime = 30
		}

		id, err := s.CreateRequest(r.Context(), &req)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.Created(w, map[string]any{"request_id": id})
	}
}

// NewGetRequestHandler returns an http.HandlerFunc for GET /api/v1/requests/{requestID}.
func NewGetRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		req, err := s.GetRequest(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, req)
	}
}

// NewGetRequestByWorkloadHandler returns an http.HandlerFunc for
// GET /api/v1/requests/workload/{workloadID}.
func NewGetRequestByWorkloadHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workloadID, err := strconv.ParseInt(chi.URLParam(r, "workloadID"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "workloadID must be an integer", nil)
			return
		}
		req, err := s.GetRequestByWorkloadID(r.Context(), workloadID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, req)
	}
}

type requestUpdateBody struct {
	Status             *models.RequestStatus `json:"status"`
	Priority           *int                  `json:"priority"`
	ProcessingMetadata *models.Metadata      `json:"processing_metadata"`
	IfLockVersion      *int64                `json:"if_lock_version"`
}

func (b requestUpdateBody) toUpdate() store.RequestUpdate {
	return store.RequestUpdate{
		Status:             b.Status,
		Priority:           b.Priority,
		ProcessingMetadata: b.ProcessingMetadata,
		IfLockVersion:      b.IfLockVersion,
	}
}

// NewUpdateRequestHandler returns an http.HandlerFunc for PUT /api/v1/requests/{requestID}.
func NewUpdateRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		var body requestUpdateBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if err := s.UpdateRequest(r.Context(), id, body.toUpdate()); err != nil {
			writeStoreError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewExtendRequestHandler returns an http.HandlerFunc for POST /api/v1/requests/{requestID}/extend.
func NewExtendRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		var body struct {
			Lifetime int `json:"lifetime"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if body.Lifetime <= 0 {
			body.Lifetime = 30
		}
		if err := s.ExtendRequest(r.Context(), id, body.Lifetime); err != nil {
			writeStoreError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewCancelRequestHandler returns an http.HandlerFunc for POST /api/v1/requests/{requestID}/cancel.
func NewCancelRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		if err := s.CancelRequest(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewDeleteRequestHandler returns an http.HandlerFunc for DELETE /api/v1/requests/{requestID}.
func NewDeleteRequestHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		if err := s.DeleteRequest(r.Context(), id); err != nil {
			writeStoreError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewClaimRequestsHandler returns an http.HandlerFunc for POST /api/v1/requests/claim.
// defaultBulkSize caps the batch when the caller does not ask for a size.
func NewClaimRequestsHandler(s store.Store, defaultBulkSize int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Statuses      []models.RequestStatus `json:"statuses"`
			RequestType   *models.RequestType    `json:"request_type"`
			OlderThanSecs int                    `json:"older_than_secs"`
			Lock          bool                   `json:"lock"`
			WorkerID      string                 `json:"worker_id"`
			BulkSize      int                    `json:"bulk_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(body.Statuses) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "statuses is required", nil)
			return
		}

		workerID := uuid.New()
		if body.WorkerID != "" {
			parsed, err := uuid.Parse(body.WorkerID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "worker_id must be a UUID", nil)
				return
			}
			workerID = parsed
		}

		bulkSize := body.BulkSize
		if bulkSize <= 0 {
			bulkSize = defaultBulkSize
		}

		reqs, err := s.ClaimRequests(r.Context(), store.ClaimFilter{
			Statuses:    body.Statuses,
			RequestType: body.RequestType,
			OlderThan:   time.Duration(body.OlderThanSecs) * time.Second,
			Lock:        body.Lock,
			LockedBy:    workerID,
			BulkSize:    bulkSize,
		})
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, reqs)
	}
}

type transformPayload struct {
	TransformTag      string                 `json:"transform_tag"`
	Status            models.TransformStatus `json:"status"`
	TransformMetadata models.Metadata        `json:"transform_metadata"`
	Collections       *struct {
		Input  []models.Collection `json:"input_collections"`
		Output []models.Collection `json:"output_collections"`
		Log    []models.Collection `json:"log_collections"`
	} `json:"collections"`
}

type transformExtensionPayload struct {
	TransformID       int64                   `json:"transform_id"`
	Status            *models.TransformStatus `json:"status"`
	Retries           *int                    `json:"retries"`
	TransformMetadata *models.Metadata        `json:"transform_metadata"`
}

// NewCommitTransformsHandler returns an http.HandlerFunc for
// POST /api/v1/requests/{requestID}/transforms. The whole payload commits or
// rolls back as one unit.
func NewCommitTransformsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := requestIDParam(w, r)
		if !ok {
			return
		}
		var body struct {
			RequestUpdate      requestUpdateBody           `json:"request_update"`
			TransformsToAdd    []transformPayload          `json:"transforms_to_add"`
			TransformsToExtend []transformExtensionPayload `json:"transforms_to_extend"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		toAdd := make([]store.TransformCommit, 0, len(body.TransformsToAdd))
		for _, p := range body.TransformsToAdd {
			if p.Collections == nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
					"transform must have collections, such as input, output and log collections", nil)
				return
			}
			status := p.Status
			if status == 0 {
				status = models.TransformStatusNew
			}
			toAdd = append(toAdd, store.TransformCommit{
				Transform: models.Transform{
					TransformTag:      p.TransformTag,
					Status:            status,
					TransformMetadata: p.TransformMetadata,
				},
				InputCollections:  p.Collections.Input,
				OutputCollections: p.Collections.Output,
				LogCollections:    p.Collections.Log,
			})
		}

		toExtend := make([]store.TransformExtension, 0, len(body.TransformsToExtend))
		for _, p := range body.TransformsToExtend {
			toExtend = append(toExtend, store.TransformExtension{
				TransformID: p.TransformID,
				Update: store.TransformUpdate{
					Status:            p.Status,
					Retries:           p.Retries,
					TransformMetadata: p.TransformMetadata,
				},
			})
		}

		if err := s.CommitTransforms(r.Context(), id, body.RequestUpdate.toUpdate(), toAdd, toExtend); err != nil {
			writeStoreError(w, err)
			return
		}
		response.NoContent(w)
	}
}
