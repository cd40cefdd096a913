package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/workstreamd/workstream/internal/api/middleware"
	"github.com/workstreamd/workstream/internal/api/response"
)

// Dependencies holds all handler dependencies for the router.
type Dependencies struct {
	HealthHandler http.HandlerFunc

	CreateRequest        http.HandlerFunc
	GetRequest           http.HandlerFunc
	GetRequestByWorkload http.HandlerFunc
	UpdateRequest        http.HandlerFunc
	ExtendRequest        http.HandlerFunc
	CancelRequest        http.HandlerFunc
	DeleteRequest        http.HandlerFunc
	ClaimRequests        http.HandlerFunc
	CommitTransforms     http.HandlerFunc

	AddContents  http.HandlerFunc
	GetContentID http.HandlerFunc
	GetContent   http.HandlerFunc
	ListContents http.HandlerFunc
	ContentStats http.HandlerFunc
}

// NewRouter builds the Chi router with the middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	r.Route("/api/v1/requests", func(r chi.Router) {
		r.Post("/", orNotImplemented(deps.CreateRequest))
		r.Post("/claim", orNotImplemented(deps.ClaimRequests))
		r.Get("/workload/{workloadID}", orNotImplemented(deps.GetRequestByWorkload))
		r.Get("/{requestID}", orNotImplemented(deps.GetRequest))
		r.Put("/{requestID}", orNotImplemented(deps.UpdateRequest))
		r.Delete("/{requestID}", orNotImplemented(deps.DeleteRequest))
		r.Post("/{requestID}/extend", orNotImplemented(deps.ExtendRequest))
		r.Post("/{requestID}/cancel", orNotImplemented(deps.CancelRequest))
		r.Post("/{requestID}/transforms", orNotImplemented(deps.CommitTransforms))
	})

	r.Route("/api/v1/catalog", func(r chi.Router) {
		r.Post("/contents", orNotImplemented(deps.AddContents))
		r.Get("/contents", orNotImplemented(deps.ListContents))
		r.Get("/contents/id", orNotImplemented(deps.GetContentID))
		r.Get("/contents/{contentID}", orNotImplemented(deps.GetContent))
		r.Get("/stats", orNotImplemented(deps.ContentStats))
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
