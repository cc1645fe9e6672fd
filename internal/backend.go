package internal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/starford/gistblog/internal/blog"
	"github.com/starford/gistblog/internal/editlock"
	"github.com/starford/gistblog/internal/gist"
)

// NewLogger returns a JSON slog logger writing to w.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Backend builds synchronizers for one configured bucket. Each call to
// Service gets its own store client, so a credential never outlives the
// request that supplied it.
type Backend struct {
	cfg    *Config
	logger *slog.Logger
	http   *http.Client
	rdb    *redis.Client
	locker blog.Locker
	notify func(kind, filename string)
}

// NewBackend wires the store client, the optional editor lock and notify.
// notify may be nil.
func NewBackend(cfg *Config, logger *slog.Logger, notify func(kind, filename string)) *Backend {
	b := &Backend{
		cfg:    cfg,
		logger: logger,
		http:   &http.Client{Timeout: cfg.Gist.Timeout},
		notify: notify,
	}
	if cfg.Lock.Enabled() {
		b.rdb = redis.NewClient(&redis.Options{Addr: cfg.Lock.RedisAddr})
		opts := []editlock.Option{editlock.WithLogger(logger)}
		if cfg.Lock.TTL > 0 {
			opts = append(opts, editlock.WithTTL(cfg.Lock.TTL))
		}
		b.locker = editlock.New(b.rdb, editlock.Key(cfg.Gist.ID), opts...)
	}
	return b
}

// Client returns a store client using credential, or the configured token
// when credential is empty.
func (b *Backend) Client(credential string) *gist.Client {
	token := credential
	if token == "" {
		token = b.cfg.Gist.Token
	}
	return gist.NewClient(b.cfg.Gist.ID,
		gist.WithToken(token),
		gist.WithBaseURL(b.cfg.Gist.APIURL),
		gist.WithHTTPClient(b.http),
		gist.WithLogger(b.logger),
	)
}

// Service returns a synchronizer bound to credential. It satisfies
// api.ServiceFactory.
func (b *Backend) Service(credential string) *blog.Service {
	opts := []blog.Option{
		blog.WithIndexFile(b.cfg.Gist.IndexFile),
		blog.WithDescription(b.cfg.Gist.Description),
		blog.WithVersionCheck(b.cfg.Gist.VersionCheck),
		blog.WithLogger(b.logger),
	}
	if b.locker != nil {
		opts = append(opts, blog.WithLocker(b.locker))
	}
	if b.notify != nil {
		opts = append(opts, blog.WithNotify(b.notify))
	}
	return blog.NewService(b.Client(credential), opts...)
}

// Ping checks the lock backend, if any.
func (b *Backend) Ping(ctx context.Context) error {
	if b.rdb == nil {
		return nil
	}
	if err := b.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %w", err)
	}
	return nil
}

// Close releases the redis connection pool.
func (b *Backend) Close() error {
	if b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
