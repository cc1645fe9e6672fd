// Package blog keeps the index document and the per-post files of a bucket
// consistent. Every mutation re-reads the index, computes the new post file
// and the new index, and applies both in a single batch write.
package blog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/starford/gistblog/internal/apperr"
	"github.com/starford/gistblog/internal/frontmatter"
	"github.com/starford/gistblog/internal/models"
	"github.com/starford/gistblog/internal/slug"
	"github.com/starford/gistblog/internal/storage"
)

const (
	DefaultIndexFile   = "index.json"
	DefaultDescription = "blog data"
)

// Event kinds passed to the notify hook after a successful write.
const (
	EventCreated = "post.created"
	EventUpdated = "post.updated"
	EventDeleted = "post.deleted"
)

// Locker serializes the read-modify-write cycle between editors that share a
// lock backend. The returned function releases the lock.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

type nopLocker struct{}

func (nopLocker) Lock(context.Context) (func(), error) { return func() {}, nil }

// Service is the index synchronizer.
type Service struct {
	store        storage.Provider
	indexFile    string
	description  string
	versionCheck bool
	now          func() time.Time
	locker       Locker
	logger       *slog.Logger
	notify       func(kind, filename string)
}

// Option configures a Service.
type Option func(*Service)

// WithIndexFile sets the name of the index document.
func WithIndexFile(name string) Option {
	return func(s *Service) { s.indexFile = name }
}

// WithDescription sets the bucket description written when the bucket has none.
func WithDescription(d string) Option {
	return func(s *Service) { s.description = d }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithLocker sets the lock held around each mutation.
func WithLocker(l Locker) Option {
	return func(s *Service) { s.locker = l }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithVersionCheck makes every write conditional on the bucket version seen
// by the preceding read.
func WithVersionCheck(on bool) Option {
	return func(s *Service) { s.versionCheck = on }
}

// WithNotify registers a hook called after each successful mutation.
func WithNotify(fn func(kind, filename string)) Option {
	return func(s *Service) { s.notify = fn }
}

// NewService creates a synchronizer over store.
func NewService(store storage.Provider, opts ...Option) *Service {
	s := &Service{
		store:       store,
		indexFile:   DefaultIndexFile,
		description: DefaultDescription,
		now:         time.Now,
		locker:      nopLocker{},
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IndexFile returns the name of the index document.
func (s *Service) IndexFile() string { return s.indexFile }

// State is one consistent read of the bucket.
type State struct {
	Snapshot *storage.Snapshot
	Index    *models.Index
}

// PostDetail is a record together with the body of its post file.
type PostDetail struct {
	Post models.Post `json:"post"`
	Body string      `json:"body"`
}

// Load fetches the bucket and decodes the index.
func (s *Service) Load(ctx context.Context) (*State, error) {
	snap, err := s.store.FetchBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("blog: fetch bucket: %w", err)
	}
	f, ok := snap.File(s.indexFile)
	if !ok {
		return nil, apperr.NotFound("%s is missing from the bucket; create it first", s.indexFile)
	}
	text, err := s.store.ReadFile(ctx, f.RawURL)
	if err != nil {
		return nil, fmt.Errorf("blog: read %s: %w", s.indexFile, err)
	}
	ix, err := models.DecodeIndex(text)
	if err != nil {
		return nil, fmt.Errorf("blog: %s: %w", s.indexFile, err)
	}
	return &State{Snapshot: snap, Index: ix}, nil
}

// ReadPost returns the record for filename and the body of its post file.
func (s *Service) ReadPost(ctx context.Context, filename string) (*PostDetail, error) {
	st, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := st.Index.Find(filename)
	if i < 0 {
		return nil, apperr.NotFound("post %s", filename)
	}
	body, err := s.readBody(ctx, st.Snapshot, filename)
	if err != nil {
		return nil, err
	}
	return &PostDetail{Post: st.Index.Posts[i].Clone(), Body: body}, nil
}

// ReadBody returns the body of a post file from an already loaded snapshot.
func (s *Service) ReadBody(ctx context.Context, st *State, filename string) (string, error) {
	return s.readBody(ctx, st.Snapshot, filename)
}

func (s *Service) readBody(ctx context.Context, snap *storage.Snapshot, filename string) (string, error) {
	f, ok := snap.File(filename)
	if !ok {
		return "", apperr.NotFound("post file %s is missing from the bucket", filename)
	}
	content, err := s.store.ReadFile(ctx, f.RawURL)
	if err != nil {
		return "", fmt.Errorf("blog: read %s: %w", filename, err)
	}
	_, body := frontmatter.Decode(content)
	return body, nil
}

// Init writes an empty index document. It fails with a conflict when the
// index already exists.
func (s *Service) Init(ctx context.Context) error {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("blog: lock: %w", err)
	}
	defer unlock()

	snap, err := s.store.FetchBucket(ctx)
	if err != nil {
		return fmt.Errorf("blog: fetch bucket: %w", err)
	}
	if _, ok := snap.File(s.indexFile); ok {
		return apperr.Conflict("%s already exists", s.indexFile)
	}
	st := &State{Snapshot: snap, Index: &models.Index{}}
	if err := s.commit(ctx, st, map[string]storage.Change{}, st.Index); err != nil {
		return err
	}
	s.logger.Info("index created", slog.String("file", s.indexFile))
	return nil
}

// Create adds a post. The filename is derived from the current UTC date and
// the slug; an existing file of that name, or a published post with the same
// slug, is a conflict.
func (s *Service) Create(ctx context.Context, in PostInput) (*models.Post, error) {
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return nil, apperr.Invalid("%v", err)
	}
	postSlug := in.Slug
	if postSlug == "" {
		postSlug = slug.Slugify(in.Title)
	}
	if postSlug == "" {
		return nil, apperr.Invalid("title %q yields an empty slug; set one explicitly", in.Title)
	}

	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("blog: lock: %w", err)
	}
	defer unlock()

	st, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC().Truncate(time.Millisecond)
	filename := slug.BuildFilename(now, postSlug)
	if st.Index.Find(filename) >= 0 {
		return nil, apperr.Conflict("post %s already exists", filename)
	}
	if _, ok := st.Snapshot.File(filename); ok {
		return nil, apperr.Conflict("file %s already exists in the bucket", filename)
	}

	post := models.Post{
		Filename:  filename,
		Slug:      postSlug,
		Title:     in.Title,
		Summary:   in.Summary,
		Tags:      in.Tags,
		Status:    in.Status,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if post.Published() {
		if other := publishedWithSlug(st.Index, post.Slug, ""); other != "" {
			return nil, apperr.Conflict("slug %q is already used by %s", post.Slug, other)
		}
	}

	ix := st.Index.Clone()
	ix.Posts = append(ix.Posts, post)
	files := map[string]storage.Change{
		filename: storage.Put(frontmatter.Encode(frontmatter.MetaFromPost(post), in.Body)),
	}
	if err := s.commit(ctx, st, files, ix); err != nil {
		return nil, err
	}

	s.logger.Info("post created", slog.String("filename", filename), slog.String("slug", post.Slug))
	s.emit(EventCreated, filename)
	return &post, nil
}

// Update merges u into the record for filename and rewrites its post file.
// The filename and created_at never change; updated_at never decreases.
func (s *Service) Update(ctx context.Context, filename string, u PostUpdate) (*models.Post, error) {
	u = u.normalize()
	if err := u.Validate(); err != nil {
		return nil, apperr.Invalid("%v", err)
	}

	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("blog: lock: %w", err)
	}
	defer unlock()

	st, err := s.Load(ctx)
	if err != nil {
		return nil, err
	}
	i := st.Index.Find(filename)
	if i < 0 {
		return nil, apperr.NotFound("post %s", filename)
	}

	prev := st.Index.Posts[i]
	post := u.apply(prev.Clone())
	post.Filename = prev.Filename
	post.CreatedAt = prev.CreatedAt

	// updated_at strictly increases at millisecond precision, even when the
	// clock stalls or runs behind the stored value.
	now := s.now().UTC().Truncate(time.Millisecond)
	if !now.After(prev.UpdatedAt) {
		now = prev.UpdatedAt.Add(time.Millisecond)
	}
	post.UpdatedAt = now

	if post.Published() {
		if other := publishedWithSlug(st.Index, post.Slug, filename); other != "" {
			return nil, apperr.Conflict("slug %q is already used by %s", post.Slug, other)
		}
	}

	var body string
	if u.Body != nil {
		body = *u.Body
	} else {
		body, err = s.readBody(ctx, st.Snapshot, filename)
		if err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}

	ix := st.Index.Clone()
	ix.Posts[i] = post
	files := map[string]storage.Change{
		filename: storage.Put(frontmatter.Encode(frontmatter.MetaFromPost(post), body)),
	}
	if err := s.commit(ctx, st, files, ix); err != nil {
		return nil, err
	}

	s.logger.Info("post updated", slog.String("filename", filename))
	s.emit(EventUpdated, filename)
	return &post, nil
}

// Delete removes the record for filename and its post file.
func (s *Service) Delete(ctx context.Context, filename string) error {
	unlock, err := s.locker.Lock(ctx)
	if err != nil {
		return fmt.Errorf("blog: lock: %w", err)
	}
	defer unlock()

	st, err := s.Load(ctx)
	if err != nil {
		return err
	}
	i := st.Index.Find(filename)
	if i < 0 {
		return apperr.NotFound("post %s", filename)
	}

	ix := st.Index.Clone()
	ix.Posts = append(ix.Posts[:i:i], ix.Posts[i+1:]...)
	files := map[string]storage.Change{}
	if _, ok := st.Snapshot.File(filename); ok {
		files[filename] = storage.Tombstone()
	} else {
		s.logger.Warn("post file already absent", slog.String("filename", filename))
	}
	if err := s.commit(ctx, st, files, ix); err != nil {
		return err
	}

	s.logger.Info("post deleted", slog.String("filename", filename))
	s.emit(EventDeleted, filename)
	return nil
}

// commit adds the encoded index to files and writes everything as one batch.
func (s *Service) commit(ctx context.Context, st *State, files map[string]storage.Change, ix *models.Index) error {
	text, err := ix.Encode()
	if err != nil {
		return fmt.Errorf("blog: %w", err)
	}
	files[s.indexFile] = storage.Put(text)

	b := storage.Batch{Description: st.Snapshot.Description, Files: files}
	if b.Description == "" {
		b.Description = s.description
	}
	if s.versionCheck {
		b.IfMatch = st.Snapshot.Version
	}
	if _, err := s.store.WriteBatch(ctx, b); err != nil {
		return fmt.Errorf("blog: write batch: %w", err)
	}
	return nil
}

func (s *Service) emit(kind, filename string) {
	if s.notify != nil {
		s.notify(kind, filename)
	}
}

// publishedWithSlug returns the filename of a published record other than
// except that uses slug, or "".
func publishedWithSlug(ix *models.Index, postSlug, except string) string {
	for _, p := range ix.Posts {
		if p.Filename != except && p.Published() && p.Slug == postSlug {
			return p.Filename
		}
	}
	return ""
}
