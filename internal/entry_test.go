package internal

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/starford/gistblog/internal/sse"
	"github.com/starford/gistblog/internal/testutil"
)

// fakeGist serves one gist the way the REST API does, applying PATCH bodies.
type fakeGist struct {
	mu       sync.Mutex
	srv      *httptest.Server
	files    map[string]string
	lastAuth string
}

func newFakeGist(t *testing.T, files map[string]string) *fakeGist {
	t.Helper()
	f := &fakeGist{files: files}
	f.srv = httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeGist) serve(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if name, ok := strings.CutPrefix(r.URL.Path, "/raw/"); ok {
		content, found := f.files[name]
		if !found {
			http.NotFound(w, r)
			return
		}
		_, _ = io.WriteString(w, content)
		return
	}
	if r.URL.Path != "/gists/g1" {
		http.NotFound(w, r)
		return
	}
	if r.Method == http.MethodPatch {
		f.lastAuth = r.Header.Get("Authorization")
		var body struct {
			Files map[string]*struct {
				Content string `json:"content"`
			} `json:"files"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		for name, file := range body.Files {
			if file == nil {
				delete(f.files, name)
				continue
			}
			f.files[name] = file.Content
		}
	}

	out := map[string]any{"id": "g1", "description": "blog data"}
	files := map[string]any{}
	for name, content := range f.files {
		files[name] = map[string]any{"filename": name, "raw_url": f.srv.URL + "/raw/" + name, "size": len(content)}
	}
	out["files"] = files
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(out)
}

func testApp(t *testing.T, fake *fakeGist) (*application, *Config) {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Gist.ID = "g1"
	cfg.Gist.APIURL = fake.srv.URL
	return &application{config: cfg, version: "test", logger: NewLogger(io.Discard, 0)}, cfg
}

func TestRouter_HealthAndReads(t *testing.T) {
	fake := newFakeGist(t, testutil.Files(t,
		testutil.Post{Title: "A", Created: testutil.Day(1), Body: "body of a"},
	))
	app, cfg := testApp(t, fake)
	backend := NewBackend(cfg, app.logger, nil)
	defer backend.Close()
	r := newRouter(app, backend, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"version":"test"`) {
		t.Errorf("live = %d %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/posts/a", nil))
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "body of a") {
		t.Errorf("get post = %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_PassthroughCredentialReachesGist(t *testing.T) {
	fake := newFakeGist(t, testutil.Files(t))
	app, cfg := testApp(t, fake)
	cfg.Gist.Token = "configured"
	broker := sse.NewBroker(0)
	defer broker.Close()
	backend := NewBackend(cfg, app.logger, broker.PublishPostEvent)
	defer backend.Close()
	r := newRouter(app, backend, broker)

	req := httptest.NewRequest(http.MethodPost, "/api/posts", strings.NewReader(`{"title":"Hello World","body":"hi"}`))
	req.Header.Set("Authorization", "Bearer caller-token")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d %s", w.Code, w.Body.String())
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if fake.lastAuth != "Bearer caller-token" {
		t.Errorf("Authorization = %q, want caller token", fake.lastAuth)
	}
	if len(fake.files) != 2 {
		t.Errorf("files = %v", fake.files)
	}
}

func TestRouter_ReadyChecksRedis(t *testing.T) {
	fake := newFakeGist(t, testutil.Files(t))
	app, cfg := testApp(t, fake)
	mr := miniredis.RunT(t)
	cfg.Lock.RedisAddr = mr.Addr()
	backend := NewBackend(cfg, app.logger, nil)
	defer backend.Close()
	r := newRouter(app, backend, nil)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready = %d %s", w.Code, w.Body.String())
	}

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready after redis stop = %d", w.Code)
	}
}
