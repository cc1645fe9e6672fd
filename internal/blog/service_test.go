package blog

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/frontmatter"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/storage"
)

// stepClock returns t0, t0+1s, t0+2s, ... on successive calls.
func stepClock(t0 time.Time) func() time.Time {
	var mu sync.Mutex
	next := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func newService(t *testing.T, files map[string]string, opts ...Option) (*Service, *storage.Memory) {
	t.Helper()
	mem := storage.NewMemory(files)
	base := []Option{WithClock(stepClock(time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)))}
	return NewService(mem, append(base, opts...)...), mem
}

func emptyBucket() map[string]string {
	return map[string]string{DefaultIndexFile: `{"posts": []}`}
}

func loadIndex(t *testing.T, mem *storage.Memory) *models.Index {
	t.Helper()
	text, ok := mem.Content(DefaultIndexFile)
	if !ok {
		t.Fatal("index missing")
	}
	ix, err := models.DecodeIndex(text)
	if err != nil {
		t.Fatalf("DecodeIndex: %v", err)
	}
	return ix
}

func TestCreate_HelloWorld(t *testing.T) {
	svc, mem := newService(t, emptyBucket())
	ctx := context.Background()

	post, err := svc.Create(ctx, PostInput{Title: "Hello World", Tags: []string{"go", " gist "}, Body: "# Hi\n"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if post.Filename != "2024-03-05--hello-world.md" {
		t.Errorf("filename = %q", post.Filename)
	}
	if post.Slug != "hello-world" || post.Status != models.StatusPublished {
		t.Errorf("post = %+v", post)
	}
	if !post.CreatedAt.Equal(post.UpdatedAt) {
		t.Errorf("created_at %v != updated_at %v", post.CreatedAt, post.UpdatedAt)
	}

	ix := loadIndex(t, mem)
	if len(ix.Posts) != 1 || ix.Posts[0].Filename != post.Filename {
		t.Fatalf("index = %+v", ix.Posts)
	}
	if diff := cmp.Diff([]string{"go", "gist"}, ix.Posts[0].Tags); diff != "" {
		t.Errorf("tags (-want +got):\n%s", diff)
	}

	content, ok := mem.Content(post.Filename)
	if !ok {
		t.Fatal("post file not written")
	}
	h, body := frontmatter.Decode(content)
	if body != "# Hi\n" {
		t.Errorf("body = %q", body)
	}
	if title, _ := h.String("title"); title != "Hello World" {
		t.Errorf("front matter title = %q", title)
	}

	batches := mem.Batches()
	if len(batches) != 1 || len(batches[0].Files) != 2 {
		t.Fatalf("want one batch with two files, got %+v", batches)
	}
	if batches[0].Description != DefaultDescription {
		t.Errorf("description = %q", batches[0].Description)
	}
}

func TestCreate_Conflicts(t *testing.T) {
	ctx := context.Background()
	t.Run("same filename", func(t *testing.T) {
		mem := storage.NewMemory(emptyBucket())
		fixed := func() time.Time { return time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC) }
		svc := NewService(mem, WithClock(fixed))
		if _, err := svc.Create(ctx, PostInput{Title: "Dup", Status: models.StatusDraft}); err != nil {
			t.Fatalf("first Create: %v", err)
		}
		_, err := svc.Create(ctx, PostInput{Title: "Dup", Status: models.StatusDraft})
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
		if n := len(mem.Batches()); n != 1 {
			t.Errorf("batches = %d, want 1", n)
		}
	})
	t.Run("published slug", func(t *testing.T) {
		svc, _ := newService(t, map[string]string{
			DefaultIndexFile: `{"posts":[{"filename":"2023-01-01--dup.md","slug":"dup","status":"published"}]}`,
		})
		_, err := svc.Create(ctx, PostInput{Title: "Dup"})
		if !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
		if _, err := svc.Create(ctx, PostInput{Title: "Dup", Status: models.StatusDraft}); err != nil {
			t.Errorf("draft with same slug should be allowed: %v", err)
		}
	})
	t.Run("orphan file", func(t *testing.T) {
		files := emptyBucket()
		files["2024-03-05--orphan.md"] = "stale"
		svc, _ := newService(t, files)
		if _, err := svc.Create(ctx, PostInput{Title: "Orphan"}); !errors.Is(err, apperr.ErrConflict) {
			t.Fatalf("err = %v, want conflict", err)
		}
	})
}

func TestCreate_Validation(t *testing.T) {
	svc, mem := newService(t, emptyBucket())
	ctx := context.Background()
	cases := []PostInput{
		{Title: "   "},
		{Title: "ok", Status: "archived"},
		{Title: "ok", Slug: "Not A Slug"},
		{Title: "!!!"},
	}
	for _, in := range cases {
		if _, err := svc.Create(ctx, in); !errors.Is(err, apperr.ErrValidation) {
			t.Errorf("Create(%+v) err = %v, want validation", in, err)
		}
	}
	if n := len(mem.Batches()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}
}

func TestCreate_MissingIndex(t *testing.T) {
	svc, _ := newService(t, nil)
	_, err := svc.Create(context.Background(), PostInput{Title: "x"})
	if !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("err = %v, want not found", err)
	}
}

func TestUpdate_PreservesIdentityAndUnknownFields(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile: `{
  "posts": [
    {"filename": "2024-01-01--a.md", "slug": "a", "title": "A", "summary": "", "tags": ["x"],
     "status": "published", "created_at": "2024-01-01T00:00:00.000Z",
     "updated_at": "2024-01-02T00:00:00.000Z", "cover": "a.png"},
    {"filename": "2024-01-03--b.md", "slug": "b", "title": "B", "tags": [], "status": "draft"}
  ],
  "site": {"title": "My blog"}
}`,
		"2024-01-01--a.md": "---\ntitle: A\n---\nold body",
	}
	svc, mem := newService(t, files)
	ctx := context.Background()

	title := "A, revised"
	post, err := svc.Update(ctx, "2024-01-01--a.md", PostUpdate{Title: &title})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if post.Filename != "2024-01-01--a.md" || post.Slug != "a" {
		t.Errorf("identity changed: %+v", post)
	}
	if !post.CreatedAt.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at = %v", post.CreatedAt)
	}
	if !post.UpdatedAt.After(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("updated_at did not increase: %v", post.UpdatedAt)
	}

	ix := loadIndex(t, mem)
	if len(ix.Posts) != 2 {
		t.Fatalf("record count = %d", len(ix.Posts))
	}
	if string(ix.Posts[0].Extra["cover"]) != `"a.png"` {
		t.Errorf("unknown record field lost: %v", ix.Posts[0].Extra)
	}
	if _, ok := ix.Extra["site"]; !ok {
		t.Errorf("unknown index field lost: %v", ix.Extra)
	}
	if ix.Posts[1].Title != "B" || ix.Posts[1].Status != models.StatusDraft {
		t.Errorf("other record altered: %+v", ix.Posts[1])
	}

	content, _ := mem.Content("2024-01-01--a.md")
	h, body := frontmatter.Decode(content)
	if body != "old body" {
		t.Errorf("body not kept: %q", body)
	}
	if s, _ := h.String("title"); s != title {
		t.Errorf("front matter title = %q", s)
	}
}

func TestUpdate_UpdatedAtNeverDecreases(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile: `{"posts":[{"filename":"f.md","slug":"f","status":"draft",` +
			`"created_at":"2030-01-01T00:00:00.000Z","updated_at":"2030-01-01T00:00:00.000Z"}]}`,
	}
	svc, _ := newService(t, files)
	body := "new"
	post, err := svc.Update(context.Background(), "f.md", PostUpdate{Body: &body})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if want := time.Date(2030, 1, 1, 0, 0, 0, int(time.Millisecond), time.UTC); !post.UpdatedAt.Equal(want) {
		t.Errorf("updated_at = %v, want %v", post.UpdatedAt, want)
	}
}

func TestUpdate_SameMillisecondStillIncreases(t *testing.T) {
	frozen := time.Date(2024, 3, 5, 10, 0, 0, 0, time.UTC)
	svc, _ := newService(t, emptyBucket(), WithClock(func() time.Time { return frozen }))
	ctx := context.Background()
	created, err := svc.Create(ctx, PostInput{Title: "Frozen"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	prev := created.UpdatedAt
	for i := 1; i <= 3; i++ {
		summary := "rev"
		post, err := svc.Update(ctx, created.Filename, PostUpdate{Summary: &summary})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if want := frozen.Add(time.Duration(i) * time.Millisecond); !post.UpdatedAt.Equal(want) {
			t.Fatalf("update %d: updated_at = %v, want %v", i, post.UpdatedAt, want)
		}
		prev = post.UpdatedAt
	}
	if !prev.After(created.CreatedAt) {
		t.Errorf("updated_at %v not after created_at %v", prev, created.CreatedAt)
	}
}

func TestUpdate_StrictlyIncreasingWithClock(t *testing.T) {
	svc, mem := newService(t, emptyBucket())
	ctx := context.Background()
	created, err := svc.Create(ctx, PostInput{Title: "Tick"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	prev := created.UpdatedAt
	for i := 0; i < 3; i++ {
		summary := "rev"
		post, err := svc.Update(ctx, created.Filename, PostUpdate{Summary: &summary})
		if err != nil {
			t.Fatalf("Update: %v", err)
		}
		if !post.UpdatedAt.After(prev) {
			t.Fatalf("updated_at %v not after %v", post.UpdatedAt, prev)
		}
		if !post.CreatedAt.Equal(created.CreatedAt) {
			t.Fatalf("created_at changed")
		}
		prev = post.UpdatedAt
	}
	if n := len(loadIndex(t, mem).Posts); n != 1 {
		t.Errorf("record count = %d", n)
	}
}

func TestUpdate_Errors(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile: `{"posts":[` +
			`{"filename":"a.md","slug":"a","status":"published"},` +
			`{"filename":"b.md","slug":"b","status":"published"}]}`,
	}
	svc, mem := newService(t, files)
	ctx := context.Background()

	if _, err := svc.Update(ctx, "missing.md", PostUpdate{}); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
	taken := "a"
	if _, err := svc.Update(ctx, "b.md", PostUpdate{Slug: &taken}); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("slug clash err = %v", err)
	}
	blank := " "
	if _, err := svc.Update(ctx, "b.md", PostUpdate{Title: &blank}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("blank title err = %v", err)
	}
	bad := models.Status("hidden")
	if _, err := svc.Update(ctx, "b.md", PostUpdate{Status: &bad}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("bad status err = %v", err)
	}
	var none models.Status
	if _, err := svc.Update(ctx, "b.md", PostUpdate{Status: &none}); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("empty status err = %v", err)
	}
	if n := len(mem.Batches()); n != 0 {
		t.Errorf("batches = %d, want 0", n)
	}

	draft := models.StatusDraft
	if _, err := svc.Update(ctx, "b.md", PostUpdate{Slug: &taken, Status: &draft}); err != nil {
		t.Errorf("draft may share a slug: %v", err)
	}
}

func TestDelete_Scenario(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile:   `{"posts":[{"filename":"2024-01-01--a.md","slug":"a","status":"published"}]}`,
		"2024-01-01--a.md": "---\ntitle: a\n---\n",
	}
	svc, mem := newService(t, files)

	if err := svc.Delete(context.Background(), "2024-01-01--a.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	batches := mem.Batches()
	if len(batches) != 1 {
		t.Fatalf("batches = %d", len(batches))
	}
	want := map[string]storage.Change{
		"2024-01-01--a.md": storage.Tombstone(),
		DefaultIndexFile:   storage.Put("{\n  \"posts\": []\n}"),
	}
	if diff := cmp.Diff(want, batches[0].Files); diff != "" {
		t.Errorf("batch (-want +got):\n%s", diff)
	}
	if _, ok := mem.Content("2024-01-01--a.md"); ok {
		t.Error("post file still present")
	}
	if n := len(loadIndex(t, mem).Posts); n != 0 {
		t.Errorf("records = %d", n)
	}
}

func TestDelete_LeavesOthersUntouched(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile: `{"posts":[` +
			`{"filename":"a.md","slug":"a","status":"published","x-rank":3},` +
			`{"filename":"b.md","slug":"b","status":"draft"},` +
			`{"filename":"c.md","slug":"c","status":"published"}]}`,
		"a.md": "a", "b.md": "b", "c.md": "c",
	}
	svc, mem := newService(t, files)
	before := loadIndex(t, mem)

	if err := svc.Delete(context.Background(), "b.md"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	after := loadIndex(t, mem)
	want := []models.Post{before.Posts[0], before.Posts[2]}
	if diff := cmp.Diff(want, after.Posts, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("records (-want +got):\n%s", diff)
	}
	if err := svc.Delete(context.Background(), "b.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestWriteFailureLeavesBucketUnchanged(t *testing.T) {
	svc, mem := newService(t, emptyBucket())
	before, _ := mem.Content(DefaultIndexFile)

	mem.FailNextWrite(&apperr.AuthError{Status: 401, Message: "Bad credentials"})
	_, err := svc.Create(context.Background(), PostInput{Title: "Nope"})
	var ae *apperr.AuthError
	if !errors.As(err, &ae) || ae.Status != 401 {
		t.Fatalf("err = %v, want AuthError", err)
	}
	after, _ := mem.Content(DefaultIndexFile)
	if before != after {
		t.Error("index changed after failed write")
	}
}

func TestVersionCheck(t *testing.T) {
	mem := storage.NewMemory(emptyBucket())
	svc := NewService(mem, WithVersionCheck(true))
	if _, err := svc.Create(context.Background(), PostInput{Title: "First"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got := mem.Batches()[0].IfMatch; got != "v1" {
		t.Errorf("IfMatch = %q, want v1", got)
	}
}

func TestInit(t *testing.T) {
	svc, mem := newService(t, nil)
	ctx := context.Background()
	if err := svc.Init(ctx); err != nil {
		t.Fatalf("Init: %v", err)
	}
	text, _ := mem.Content(DefaultIndexFile)
	if text != "{\n  \"posts\": []\n}" {
		t.Errorf("index = %q", text)
	}
	if err := svc.Init(ctx); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("second Init err = %v", err)
	}
}

func TestReadPost(t *testing.T) {
	files := map[string]string{
		DefaultIndexFile: `{"posts":[{"filename":"a.md","slug":"a","title":"Index title","status":"published"}]}`,
		"a.md":           "---\ntitle: Drifted title\n---\nthe body",
	}
	svc, _ := newService(t, files)
	d, err := svc.ReadPost(context.Background(), "a.md")
	if err != nil {
		t.Fatalf("ReadPost: %v", err)
	}
	if d.Post.Title != "Index title" || d.Body != "the body" {
		t.Errorf("detail = %+v", d)
	}
	if _, err := svc.ReadPost(context.Background(), "b.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing err = %v", err)
	}
}

type countingLocker struct {
	mu       sync.Mutex
	acquired int
	released int
}

func (l *countingLocker) Lock(context.Context) (func(), error) {
	l.mu.Lock()
	l.acquired++
	l.mu.Unlock()
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func TestLockerAndNotify(t *testing.T) {
	lock := &countingLocker{}
	var events []string
	svc, _ := newService(t, emptyBucket(),
		WithLocker(lock),
		WithNotify(func(kind, filename string) { events = append(events, kind+" "+filename) }))
	ctx := context.Background()

	post, err := svc.Create(ctx, PostInput{Title: "Locked"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.Delete(ctx, post.Filename); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if lock.acquired != 2 || lock.released != 2 {
		t.Errorf("lock acquired=%d released=%d", lock.acquired, lock.released)
	}
	want := []string{EventCreated + " " + post.Filename, EventDeleted + " " + post.Filename}
	if diff := cmp.Diff(want, events); diff != "" {
		t.Errorf("events (-want +got):\n%s", diff)
	}
}

func TestIndexStaysValidJSON(t *testing.T) {
	svc, mem := newService(t, emptyBucket())
	ctx := context.Background()
	for _, title := range []string{"One", "Two", "三"} {
		if _, err := svc.Create(ctx, PostInput{Title: title, Tags: []string{`a "quoted" tag`}}); err != nil {
			t.Fatalf("Create %q: %v", title, err)
		}
		text, _ := mem.Content(DefaultIndexFile)
		if !json.Valid([]byte(text)) {
			t.Fatalf("index is not valid JSON:\n%s", text)
		}
	}
}
