// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the blog tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/query"
)

const formatURI = "gistblog://post-format"

// Server wraps the MCP server with the blog tools.
type Server struct {
	mcp       *server.MCPServer
	svc       *blog.Service
	pageSize  int
	neighbors query.Neighbors
}

// Option configures a Server.
type Option func(*Server)

// WithPageSize sets the list_posts page size.
func WithPageSize(n int) Option {
	return func(s *Server) { s.pageSize = n }
}

// WithNeighbors sets how read_post picks previous and next posts.
func WithNeighbors(n query.Neighbors) Option {
	return func(s *Server) { s.neighbors = n }
}

// New creates a new MCP server with all blog tools registered.
func New(svc *blog.Service, version string, opts ...Option) *Server {
	s := &Server{svc: svc, pageSize: query.DefaultPageSize}
	for _, o := range opts {
		o(s)
	}

	s.mcp = server.NewMCPServer(
		"gistblog",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_posts",
		mcp.WithDescription("List published posts, newest first. Optionally filter by tag and a case-insensitive search over title, summary and tags."),
		mcp.WithString("tag", mcp.Description("Tag to filter by (empty or \"all\" for every tag)")),
		mcp.WithString("query", mcp.Description("Search text")),
		mcp.WithNumber("page", mcp.Description("1-based page number")),
	), s.listPosts)

	s.mcp.AddTool(mcp.NewTool("list_tags",
		mcp.WithDescription("List every tag used by any post."),
	), s.listTags)

	s.mcp.AddTool(mcp.NewTool("read_post",
		mcp.WithDescription("Read a post with its Markdown body. Pass either slug or filename."),
		mcp.WithString("slug", mcp.Description("Slug of the post")),
		mcp.WithString("filename", mcp.Description("Filename of the post (e.g. 2024-03-05--hello-world.md)")),
	), s.readPost)

	s.mcp.AddTool(mcp.NewTool("create_post",
		mcp.WithDescription("Create a post. The filename and timestamps are generated. "+
			"Read the format via get_post_format or the "+formatURI+" resource first."),
		mcp.WithString("title", mcp.Required(), mcp.Description("Post title")),
		mcp.WithString("body", mcp.Description("Markdown body")),
		mcp.WithString("slug", mcp.Description("URL slug (derived from the title when empty)")),
		mcp.WithString("summary", mcp.Description("Short summary")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags")),
		mcp.WithString("status", mcp.Description("published (default) or draft"), mcp.Enum("published", "draft")),
	), s.createPost)

	s.mcp.AddTool(mcp.NewTool("update_post",
		mcp.WithDescription("Update a post by filename. Omitted fields keep their value."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename of the post")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("body", mcp.Description("New Markdown body")),
		mcp.WithString("slug", mcp.Description("New slug")),
		mcp.WithString("summary", mcp.Description("New summary")),
		mcp.WithString("tags", mcp.Description("Comma-separated tags; replaces the current list")),
		mcp.WithString("status", mcp.Description("published or draft"), mcp.Enum("published", "draft")),
	), s.updatePost)

	s.mcp.AddTool(mcp.NewTool("delete_post",
		mcp.WithDescription("Delete a post and remove it from the index."),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Filename of the post")),
	), s.deletePost)

	s.mcp.AddTool(mcp.NewTool("get_post_format",
		mcp.WithDescription("Returns the post file format and the rules the server enforces."),
	), s.getPostFormat)

	s.mcp.AddResource(
		mcp.NewResource(formatURI, "Post Format",
			mcp.WithResourceDescription("Post file layout and write rules."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readPostFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func toolError(tool string, err error) *mcp.CallToolResult {
	slog.Warn("mcp tool failed", slog.String("tool", tool), slog.String("error", err.Error()))
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listPosts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Load(ctx)
	if err != nil {
		return toolError("list_posts", err), nil
	}
	list := query.Filter(st.Index.Posts, query.Criteria{
		Tag:   req.GetString("tag", ""),
		Query: req.GetString("query", ""),
	})
	return jsonResult(query.Paginate(list, req.GetInt("page", 1), s.pageSize))
}

func (s *Server) listTags(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	st, err := s.svc.Load(ctx)
	if err != nil {
		return toolError("list_tags", err), nil
	}
	return jsonResult(query.Tags(st.Index.Posts))
}

type postView struct {
	Post models.Post  `json:"post"`
	Body string       `json:"body"`
	Prev *models.Post `json:"prev,omitempty"`
	Next *models.Post `json:"next,omitempty"`
}

func (s *Server) readPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	slugArg := req.GetString("slug", "")
	filename := req.GetString("filename", "")
	if slugArg == "" && filename == "" {
		return mcp.NewToolResultError("slug or filename is required"), nil
	}

	if filename != "" {
		d, err := s.svc.ReadPost(ctx, filename)
		if err != nil {
			return toolError("read_post", err), nil
		}
		return jsonResult(postView{Post: d.Post, Body: d.Body})
	}

	st, err := s.svc.Load(ctx)
	if err != nil {
		return toolError("read_post", err), nil
	}
	d, err := query.Lookup(st.Index.Posts, slugArg, s.neighbors, query.Criteria{})
	if err != nil {
		return toolError("read_post", err), nil
	}
	body, err := s.svc.ReadBody(ctx, st, d.Post.Filename)
	if err != nil {
		return toolError("read_post", err), nil
	}
	return jsonResult(postView{Post: d.Post, Body: body, Prev: d.Prev, Next: d.Next})
}

func (s *Server) createPost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	title, err := req.RequireString("title")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	in := blog.PostInput{
		Title:   title,
		Slug:    req.GetString("slug", ""),
		Summary: req.GetString("summary", ""),
		Tags:    blog.SplitTags(req.GetString("tags", "")),
		Status:  models.Status(req.GetString("status", "")),
		Body:    req.GetString("body", ""),
	}
	post, err := s.svc.Create(ctx, in)
	if err != nil {
		return toolError("create_post", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", post.Filename)), nil
}

// stringArg returns a pointer to args[key] when the caller supplied it.
func stringArg(args map[string]any, key string) *string {
	v, ok := args[key].(string)
	if !ok {
		return nil
	}
	return &v
}

func (s *Server) updatePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	args := req.GetArguments()
	u := blog.PostUpdate{
		Title:   stringArg(args, "title"),
		Slug:    stringArg(args, "slug"),
		Summary: stringArg(args, "summary"),
		Body:    stringArg(args, "body"),
	}
	if tags := stringArg(args, "tags"); tags != nil {
		list := blog.SplitTags(*tags)
		u.Tags = &list
	}
	if status := stringArg(args, "status"); status != nil {
		st := models.Status(*status)
		u.Status = &st
	}
	if u.Empty() {
		return mcp.NewToolResultError("no fields to update"), nil
	}

	post, err := s.svc.Update(ctx, filename, u)
	if err != nil {
		return toolError("update_post", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s", post.Filename)), nil
}

func (s *Server) deletePost(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filename, err := req.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.svc.Delete(ctx, filename); err != nil {
		return toolError("delete_post", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", filename)), nil
}

func (s *Server) getPostFormat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PostFormat), nil
}

func (s *Server) readPostFormatResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      formatURI,
			MIMEType: "text/markdown",
			Text:     PostFormat,
		},
	}, nil
}
