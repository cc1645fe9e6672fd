package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/query"
)

const maxBody = 10 << 20

// ServiceFactory returns the synchronizer for one request. credential is the
// caller's token in passthrough mode and "" otherwise.
type ServiceFactory func(credential string) *blog.Service

// Options configures the handlers.
type Options struct {
	AuthMode  string
	Token     string
	PageSize  int
	Neighbors query.Neighbors
}

// Handler holds API route handlers.
type Handler struct {
	services ServiceFactory
	opts     Options
}

// NewHandler creates a new Handler.
func NewHandler(services ServiceFactory, opts Options) *Handler {
	return &Handler{services: services, opts: opts}
}

// pathParam returns a route parameter, unescaping encoded characters.
func pathParam(r *http.Request, key string) string {
	raw := chi.URLParam(r, key)
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// ListPosts handles GET /posts?tag=&q=&page=.
func (h *Handler) ListPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))

	st, err := h.services("").Load(r.Context())
	if err != nil {
		writeError(w, "list posts", err)
		return
	}
	list := query.Filter(st.Index.Posts, query.Criteria{Tag: q.Get("tag"), Query: q.Get("q")})
	writeJSON(w, http.StatusOK, query.Paginate(list, page, h.opts.PageSize))
}

// GetPost handles GET /posts/{slug}.
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	slug := pathParam(r, "key")
	svc := h.services("")
	st, err := svc.Load(r.Context())
	if err != nil {
		writeError(w, "get post", err)
		return
	}
	d, err := query.Lookup(st.Index.Posts, slug, h.opts.Neighbors, query.Criteria{})
	if err != nil {
		writeError(w, "get post", err)
		return
	}
	body, err := svc.ReadBody(r.Context(), st, d.Post.Filename)
	if err != nil {
		writeError(w, "get post", err)
		return
	}
	writeJSON(w, http.StatusOK, PostResponse{Post: d.Post, Body: body, Prev: d.Prev, Next: d.Next})
}

// ListTags handles GET /tags.
func (h *Handler) ListTags(w http.ResponseWriter, r *http.Request) {
	st, err := h.services("").Load(r.Context())
	if err != nil {
		writeError(w, "list tags", err)
		return
	}
	writeJSON(w, http.StatusOK, TagsResponse{Tags: query.Tags(st.Index.Posts)})
}

// CreatePost handles POST /posts.
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	var req CreatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	post, err := h.services(Credential(r.Context())).Create(r.Context(), req)
	if err != nil {
		writeError(w, "create post", err)
		return
	}
	writeJSON(w, http.StatusCreated, post)
}

// UpdatePost handles PUT /posts/{filename}.
func (h *Handler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	filename := pathParam(r, "key")
	var req UpdatePostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Empty() {
		writeError(w, "update post", apperr.Invalid("no fields to update"))
		return
	}
	post, err := h.services(Credential(r.Context())).Update(r.Context(), filename, req)
	if err != nil {
		writeError(w, "update post", err)
		return
	}
	writeJSON(w, http.StatusOK, post)
}

// DeletePost handles DELETE /posts/{filename}.
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	filename := pathParam(r, "key")
	if err := h.services(Credential(r.Context())).Delete(r.Context(), filename); err != nil {
		writeError(w, "delete post", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
