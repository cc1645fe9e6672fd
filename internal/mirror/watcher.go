package mirror

import (
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/checksum"
	"github.com/starford/gistblog/internal/frontmatter"
	"github.com/starford/gistblog/internal/models"
)

const defaultDebounce = 300 * time.Millisecond

// Publisher applies an edit to a post. *blog.Service satisfies it.
type Publisher interface {
	Update(ctx context.Context, filename string, u blog.PostUpdate) (*models.Post, error)
}

// PublishCallback is called after a mirrored file was published.
type PublishCallback func(post *models.Post)

// Watcher publishes edited post files from a mirror directory.
type Watcher struct {
	dir       *Dir
	pub       Publisher
	logger    *slog.Logger
	debounce  time.Duration
	onPublish PublishCallback

	// sums holds the checksum of the last content seen or written per file.
	sums map[string]string
}

// WatcherOption configures a Watcher.
type WatcherOption func(*Watcher)

// WithDebounce sets how long a file must stay quiet before it is published.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *Watcher) { w.debounce = d }
}

// WithWatchLogger sets the logger.
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.logger = l }
}

// WithPublishCallback registers cb.
func WithPublishCallback(cb PublishCallback) WatcherOption {
	return func(w *Watcher) { w.onPublish = cb }
}

// NewWatcher returns a watcher for dir.
func NewWatcher(dir *Dir, pub Publisher, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		dir:      dir,
		pub:      pub,
		logger:   slog.Default(),
		debounce: defaultDebounce,
		sums:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run watches the directory until ctx is cancelled. Files present when Run
// starts are treated as already published.
func (w *Watcher) Run(ctx context.Context) error {
	entries, err := w.dir.List()
	if err != nil {
		return err
	}
	for _, e := range entries {
		w.sums[e.Name] = e.Checksum
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer fw.Close()
	if err := fw.Add(w.dir.Root()); err != nil {
		return err
	}
	w.logger.Info("mirror: watching", slog.String("root", w.dir.Root()))

	pending := make(map[string]struct{})
	var timer *time.Timer
	var timerC <-chan time.Time
	schedule := func() {
		if timer == nil {
			timer = time.NewTimer(w.debounce)
			timerC = timer.C
			return
		}
		timer.Reset(w.debounce)
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.logger.Info("mirror: watcher stopped")
			return nil

		case <-timerC:
			for name := range pending {
				w.publish(ctx, name)
			}
			clear(pending)

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			name := filepath.Base(ev.Name)
			if !isPostFile(name) || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			pending[name] = struct{}{}
			schedule()

		case werr, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("mirror: watcher error", slog.String("error", werr.Error()))
		}
	}
}

// publish sends one file through the synchronizer and rewrites the local
// copy with the canonical content, so the rewrite is not published again.
func (w *Watcher) publish(ctx context.Context, name string) {
	data, err := w.dir.Read(name)
	if err != nil {
		w.logger.Debug("mirror: skip unreadable file", slog.String("file", name), slog.String("error", err.Error()))
		return
	}
	sum := checksum.Sum(data)
	if w.sums[name] == sum {
		return
	}

	h, body := frontmatter.Decode(string(data))
	post, err := w.pub.Update(ctx, name, UpdateFromHeader(h, body))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			w.logger.Warn("mirror: file is not in the index; create the post first", slog.String("file", name))
		} else {
			w.logger.Error("mirror: publish failed", slog.String("file", name), slog.String("error", err.Error()))
		}
		w.sums[name] = sum
		return
	}

	canonical := []byte(frontmatter.Encode(frontmatter.MetaFromPost(*post), body))
	if err := w.dir.Write(name, canonical); err != nil {
		w.logger.Warn("mirror: rewrite failed", slog.String("file", name), slog.String("error", err.Error()))
		w.sums[name] = sum
	} else {
		w.sums[name] = checksum.Sum(canonical)
	}
	w.logger.Info("mirror: published", slog.String("file", name))
	if w.onPublish != nil {
		w.onPublish(post)
	}
}

// UpdateFromHeader builds an update from the editable header fields present
// in h. Blank title, slug and status keep the current values. Timestamps are ignored;
// the synchronizer owns them.
func UpdateFromHeader(h frontmatter.Header, body string) blog.PostUpdate {
	u := blog.PostUpdate{Body: &body}
	if v, ok := h.String("title"); ok && strings.TrimSpace(v) != "" {
		u.Title = &v
	}
	if v, ok := h.String("slug"); ok && strings.TrimSpace(v) != "" {
		u.Slug = &v
	}
	if v, ok := h.String("summary"); ok {
		u.Summary = &v
	}
	if v, ok := h.List("tags"); ok {
		u.Tags = &v
	}
	if v, ok := h.String("status"); ok && strings.TrimSpace(v) != "" {
		st := models.Status(v)
		u.Status = &st
	}
	return u
}
