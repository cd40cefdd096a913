package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/workstreamd/workstream/internal/api/response"
	"github.com/workstreamd/workstream/internal/cache"
	"github.com/workstreamd/workstream/internal/config"
	"github.com/workstreamd/workstream/internal/store"
	"github.com/workstreamd/workstream/pkg/models"
)

// NewAddContentsHandler returns an http.HandlerFunc for POST /api/v1/catalog/contents.
// The payload is inserted in chunks of the configured bulk size.
func NewAddContentsHandler(s store.Store, cfg config.CatalogConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Contents    []*models.Content `json:"contents"`
			ReturningID bool              `json:"returning_id"`
			BulkSize    int               `json:"bulk_size"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if len(body.Contents) == 0 {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "contents is required", nil)
			return
		}
		bulkSize := body.BulkSize
		if bulkSize <= 0 {
			bulkSize = cfg.ContentBulkSize
		}

		ids, err := s.CreateContents(r.Context(), body.Contents, body.ReturningID, bulkSize)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.Created(w, map[string]any{"content_ids": ids})
	}
}

func contentKeyFromQuery(r *http.Request) (store.ContentKey, error) {
	q := r.URL.Query()
	collID, err := strconv.ParseInt(q.Get("coll_id"), 10, 64)
	if err != nil {
		return store.ContentKey{}, err
	}
	key := store.ContentKey{
		CollID: collID,
		Scope:  q.Get("scope"),
		Name:   q.Get("name"),
	}
	if v := q.Get("content_type"); v != "" {
		t, err := strconv.Atoi(v)
		if err != nil {
			return store.ContentKey{}, err
		}
		key.ContentType = models.ContentType(t)
	}
	if v := q.Get("min_id"); v != "" {
		if key.MinID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return store.ContentKey{}, err
		}
	}
	if v := q.Get("max_id"); v != "" {
		if key.MaxID, err = strconv.ParseInt(v, 10, 64); err != nil {
			return store.ContentKey{}, err
		}
	}
	return key, nil
}

// NewGetContentIDHandler returns an http.HandlerFunc for GET /api/v1/catalog/contents/id,
// the dedup lookup on the content identity key.
func NewGetContentIDHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key, err := contentKeyFromQuery(r)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "invalid content key", nil)
			return
		}
		id, err := s.GetContentID(r.Context(), key)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, map[string]any{"content_id": id})
	}
}

// NewGetContentHandler returns an http.HandlerFunc for GET /api/v1/catalog/contents/{contentID}.
func NewGetContentHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "contentID"), 10, 64)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "contentID must be an integer", nil)
			return
		}
		content, err := s.GetContent(r.Context(), id)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, content)
	}
}

// NewListContentsHandler returns an http.HandlerFunc for GET /api/v1/catalog/contents.
func NewListContentsHandler(s store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := store.ContentFilter{
			Scope: q.Get("scope"),
			Name:  q.Get("name"),
		}
		if v := q.Get("coll_id"); v != "" {
			collID, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "coll_id must be an integer", nil)
				return
			}
			filter.CollID = &collID
		}
		for _, v := range q["status"] {
			st, err := strconv.Atoi(v)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "status must be an integer", nil)
				return
			}
			filter.Statuses = append(filter.Statuses, models.ContentStatus(st))
		}

		contents, err := s.GetContents(r.Context(), filter)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		response.JSON(w, contents)
	}
}

// NewContentStatsHandler returns an http.HandlerFunc for GET /api/v1/catalog/stats.
// Results come from the cache when fresh; a cache outage degrades to a direct
// count, never to an error.
func NewContentStatsHandler(s store.Store, c cache.Cache, cfg config.CatalogConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var collID *int64
		if v := r.URL.Query().Get("coll_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "coll_id must be an integer", nil)
				return
			}
			collID = &id
		}

		if stats, hit, err := c.GetContentStats(r.Context(), collID); err == nil && hit {
			response.JSON(w, statsPayload(stats))
			return
		} else if err != nil {
			slog.Warn("stats cache read failed", "error", err)
		}

		stats, err := s.CountContentsByStatus(r.Context(), collID)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		if err := c.SetContentStats(r.Context(), collID, stats, cfg.StatsCacheTTL); err != nil {
			slog.Warn("stats cache write failed", "error", err)
		}
		response.JSON(w, statsPayload(stats))
	}
}

func statsPayload(stats map[models.ContentStatus]int64) map[string]int64 {
	out := make(map[string]int64, len(stats))
	for status, count := range stats {
		out[status.String()] = count
	}
	return out
}
