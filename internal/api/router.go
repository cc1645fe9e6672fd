package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted. Reads are
// anonymous; writes go through AuthMiddleware. sseHandler, if non-nil, is
// mounted at GET /events.
//
// GET /posts/{key} takes a slug; PUT and DELETE take a filename.
func NewRouter(services ServiceFactory, opts Options, sseHandler http.Handler) chi.Router {
	h := NewHandler(services, opts)

	r := chi.NewRouter()
	r.Get("/posts", h.ListPosts)
	r.Get("/posts/{key}", h.GetPost)
	r.Get("/tags", h.ListTags)
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(opts.AuthMode, opts.Token))
		r.Post("/posts", h.CreatePost)
		r.Put("/posts/{key}", h.UpdatePost)
		r.Delete("/posts/{key}", h.DeletePost)
	})
	return r
}
