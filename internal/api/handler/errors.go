package handler

import (
	"errors"
	"net/http"

	"github.com/workstreamd/workstream/internal/api/response"
	"github.com/workstreamd/workstream/internal/store"
)

// writeStoreError maps the store's error taxonomy onto HTTP. Anything not in
// the taxonomy is a storage problem and must not be retried as a client error.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		response.Error(w, http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, store.ErrDuplicateKey):
		response.Error(w, http.StatusConflict, "DUPLICATE", err.Error(), nil)
	case errors.Is(err, store.ErrStaleLock):
		response.Error(w, http.StatusConflict, "STALE_LOCK", err.Error(), nil)
	case errors.Is(err, store.ErrInvalidArgument):
		response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", err.Error(), nil)
	default:
		response.Error(w, http.StatusInternalServerError, "STORAGE_ERROR", "storage operation failed", nil)
	}
}
