package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/query"
	"github.com/starford/gistblog/internal/storage"
	"github.com/starford/gistblog/internal/testutil"
)

func testServer(t *testing.T) (*Server, *storage.Memory) {
	t.Helper()
	mem := testutil.Bucket(t)
	clock := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	svc := blog.NewService(mem, blog.WithClock(func() time.Time {
		clock = clock.Add(time.Hour)
		return clock
	}))
	return New(svc, "test", WithPageSize(2)), mem
}

func callTool(t *testing.T, srv *Server, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"list_posts":      srv.listPosts,
		"list_tags":       srv.listTags,
		"read_post":       srv.readPost,
		"create_post":     srv.createPost,
		"update_post":     srv.updatePost,
		"delete_post":     srv.deletePost,
		"get_post_format": srv.getPostFormat,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadPost(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_post", map[string]any{
		"title": "Hello World",
		"body":  "hi there",
		"tags":  "go, notes",
	})
	if text := resultText(r); text != "created: 2024-03-05--hello-world.md" {
		t.Fatalf("create result = %q", text)
	}

	r = callTool(t, srv, "read_post", map[string]any{"slug": "hello-world"})
	if r.IsError {
		t.Fatalf("read_post: %s", resultText(r))
	}
	var view postView
	if err := json.Unmarshal([]byte(resultText(r)), &view); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if view.Body != "hi there" || strings.Join(view.Post.Tags, ",") != "go,notes" {
		t.Errorf("view = %+v", view)
	}

	r = callTool(t, srv, "read_post", map[string]any{"filename": "2024-03-05--hello-world.md"})
	if r.IsError || !strings.Contains(resultText(r), `"hi there"`) {
		t.Errorf("read by filename = %s", resultText(r))
	}
}

func TestReadPostMissing(t *testing.T) {
	srv, _ := testServer(t)
	if r := callTool(t, srv, "read_post", map[string]any{"slug": "nope"}); !r.IsError {
		t.Error("expected error for missing post")
	}
	if r := callTool(t, srv, "read_post", map[string]any{}); !r.IsError {
		t.Error("expected error without slug or filename")
	}
}

func TestListPostsAndTags(t *testing.T) {
	srv, _ := testServer(t)
	for _, title := range []string{"One", "Two", "Three"} {
		callTool(t, srv, "create_post", map[string]any{"title": title, "tags": "x"})
	}
	callTool(t, srv, "create_post", map[string]any{"title": "Hidden", "status": "draft", "tags": "y"})

	r := callTool(t, srv, "list_posts", map[string]any{"page": 2})
	var page query.Page
	if err := json.Unmarshal([]byte(resultText(r)), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 3 || page.Number != 2 || len(page.Items) != 1 || page.Items[0].Slug != "one" {
		t.Errorf("page = %+v", page)
	}

	r = callTool(t, srv, "list_tags", nil)
	var tags []string
	if err := json.Unmarshal([]byte(resultText(r)), &tags); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if strings.Join(tags, ",") != "x,y" {
		t.Errorf("tags = %v", tags)
	}
}

func TestUpdateAndDeletePost(t *testing.T) {
	srv, mem := testServer(t)
	callTool(t, srv, "create_post", map[string]any{"title": "Hello", "body": "old"})
	name := "2024-03-05--hello.md"

	r := callTool(t, srv, "update_post", map[string]any{"filename": name, "status": "draft"})
	if r.IsError {
		t.Fatalf("update_post: %s", resultText(r))
	}
	content, _ := mem.Content(name)
	if !strings.Contains(content, "status: draft") || !strings.HasSuffix(content, "old") {
		t.Errorf("content = %q", content)
	}

	if r := callTool(t, srv, "update_post", map[string]any{"filename": name}); !r.IsError {
		t.Error("expected error for empty update")
	}
	if r := callTool(t, srv, "update_post", map[string]any{"filename": name, "status": "archived"}); !r.IsError {
		t.Error("expected validation error")
	}

	r = callTool(t, srv, "delete_post", map[string]any{"filename": name})
	if text := resultText(r); text != "deleted: "+name {
		t.Fatalf("delete result = %q", text)
	}
	if _, ok := mem.Content(name); ok {
		t.Error("post file still present")
	}
	if r := callTool(t, srv, "delete_post", map[string]any{"filename": name}); !r.IsError {
		t.Error("expected error deleting twice")
	}
}

func TestCreatePostConflict(t *testing.T) {
	srv, _ := testServer(t)
	callTool(t, srv, "create_post", map[string]any{"title": "Same"})
	r := callTool(t, srv, "create_post", map[string]any{"title": "Same"})
	if !r.IsError || !strings.Contains(resultText(r), "conflict") {
		t.Errorf("second create = %q", resultText(r))
	}
}

func TestPostFormat(t *testing.T) {
	srv, _ := testServer(t)
	if text := resultText(callTool(t, srv, "get_post_format", nil)); text != PostFormat {
		t.Error("format tool text differs from PostFormat")
	}
	res, err := srv.readPostFormatResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatalf("resource: %v", err)
	}
	tc, ok := res[0].(mcp.TextResourceContents)
	if !ok || tc.URI != formatURI || tc.Text != PostFormat {
		t.Errorf("resource = %+v", res[0])
	}
}
