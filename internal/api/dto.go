package api

import (
	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/query"
)

// CreatePostRequest is the request body for creating a post.
type CreatePostRequest = blog.PostInput

// UpdatePostRequest is the request body for updating a post. Omitted fields
// keep their value.
type UpdatePostRequest = blog.PostUpdate

// PostListResponse is one page of the published list.
type PostListResponse = query.Page

// PostResponse is a post with its body and neighbors.
type PostResponse struct {
	Post models.Post  `json:"post"`
	Body string       `json:"body"`
	Prev *models.Post `json:"prev"`
	Next *models.Post `json:"next"`
}

// TagsResponse lists every tag in index order.
type TagsResponse struct {
	Tags []string `json:"tags"`
}
