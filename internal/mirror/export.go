package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/starford/gistblog/internal/checksum"
	"github.com/starford/gistblog/internal/storage"
)

const defaultConcurrency = 4

// ExportOptions tunes Export.
type ExportOptions struct {
	// Prune removes local post files that are no longer in the bucket.
	Prune bool
	// Concurrency bounds parallel downloads; <= 0 means 4.
	Concurrency int
	Logger      *slog.Logger
}

// ExportResult lists what Export did, each slice sorted by name.
type ExportResult struct {
	Written   []string
	Unchanged []string
	Removed   []string
}

// Export downloads every file of the bucket into dir. Files whose local
// content already matches are left untouched.
func Export(ctx context.Context, store storage.Provider, dir *Dir, opts ExportOptions) (*ExportResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	limit := opts.Concurrency
	if limit <= 0 {
		limit = defaultConcurrency
	}

	snap, err := store.FetchBucket(ctx)
	if err != nil {
		return nil, fmt.Errorf("mirror: fetch bucket: %w", err)
	}
	local, err := dir.List()
	if err != nil {
		return nil, err
	}
	sums := make(map[string]string, len(local))
	for _, e := range local {
		sums[e.Name] = e.Checksum
	}

	var (
		mu  sync.Mutex
		res ExportResult
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, name := range snap.Names() {
		f, _ := snap.File(name)
		g.Go(func() error {
			content, err := store.ReadFile(gctx, f.RawURL)
			if err != nil {
				return fmt.Errorf("mirror: download %s: %w", f.Name, err)
			}
			if sums[f.Name] == checksum.String(content) {
				mu.Lock()
				res.Unchanged = append(res.Unchanged, f.Name)
				mu.Unlock()
				return nil
			}
			if err := dir.Write(f.Name, []byte(content)); err != nil {
				return err
			}
			logger.Debug("mirror: exported", slog.String("file", f.Name))
			mu.Lock()
			res.Written = append(res.Written, f.Name)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if opts.Prune {
		for _, e := range local {
			if _, ok := snap.File(e.Name); ok || !isPostFile(e.Name) {
				continue
			}
			if err := dir.Remove(e.Name); err != nil {
				return nil, err
			}
			res.Removed = append(res.Removed, e.Name)
		}
	}

	sort.Strings(res.Written)
	sort.Strings(res.Unchanged)
	sort.Strings(res.Removed)
	logger.Info("mirror: export finished",
		slog.String("root", dir.Root()),
		slog.Int("written", len(res.Written)),
		slog.Int("unchanged", len(res.Unchanged)),
		slog.Int("removed", len(res.Removed)))
	return &res, nil
}
