package api_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/workstreamd/workstream/internal/api"
	"github.com/workstreamd/workstream/internal/api/response"
)

func okHandler(marker string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, map[string]string{"handler": marker})
	}
}

func handlerMarker(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var env struct {
		Data map[string]string `json:"data"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	return env.Data["handler"]
}

func TestRouter_WiresAllRoutes(t *testing.T) {
	router := api.NewRouter(api.Dependencies{
		HealthHandler:        okHandler("health"),
		CreateRequest:        okHandler("create"),
		GetRequest:           okHandler("get"),
		GetRequestByWorkload: okHandler("workload"),
		UpdateRequest:        okHandler("update"),
		ExtendRequest:        okHandler("extend"),
		CancelRequest:        okHandler("cancel"),
		DeleteRequest:        okHandler("delete"),
		ClaimRequests:        okHandler("claim"),
		CommitTransforms:     okHandler("commit"),
		AddContents:          okHandler("add-contents"),
		GetContentID:         okHandler("content-id"),
		GetContent:           okHandler("content"),
		ListContents:         okHandler("list-contents"),
		ContentStats:         okHandler("stats"),
	})

	cases := []struct {
		method string
		path   string
		want   string
	}{
		{http.MethodGet, "/api/v1/health", "health"},
		{http.MethodPost, "/api/v1/requests", "create"},
		{http.MethodPost, "/api/v1/requests/claim", "claim"},
		{http.MethodGet, "/api/v1/requests/workload/123", "workload"},
		{http.MethodGet, "/api/v1/requests/7", "get"},
		{http.MethodPut, "/api/v1/requests/7", "update"},
		{http.MethodDelete, "/api/v1/requests/7", "delete"},
		{http.MethodPost, "/api/v1/requests/7/extend", "extend"},
		{http.MethodPost, "/api/v1/requests/7/cancel", "cancel"},
		{http.MethodPost, "/api/v1/requests/7/transforms", "commit"},
		{http.MethodPost, "/api/v1/catalog/contents", "add-contents"},
		{http.MethodGet, "/api/v1/catalog/contents", "list-contents"},
		{http.MethodGet, "/api/v1/catalog/contents/id", "content-id"},
		{http.MethodGet, "/api/v1/catalog/contents/42", "content"},
		{http.MethodGet, "/api/v1/catalog/stats", "stats"},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(tc.method, tc.path, nil))
		require.Equal(t, http.StatusOK, rec.Code, "%s %s", tc.method, tc.path)
		assert.Equal(t, tc.want, handlerMarker(t, rec), "%s %s", tc.method, tc.path)
	}
}

func TestRouter_MissingHandlersReturn501(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/requests/claim", nil))

	assert.Equal(t, http.StatusNotImplemented, rec.Code)

	var env struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
	assert.Equal(t, "NOT_IMPLEMENTED", env.Error.Code)
}

func TestRouter_UnknownRoute404(t *testing.T) {
	router := api.NewRouter(api.Dependencies{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nope", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
