// Invalidates the cache when table files change outside this process.

package csvdb

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch invalidates c whenever a .csv file in dir is written, created,
// removed or renamed. It returns once the watcher is registered; watching
// stops when ctx is done.
//
// The process's own rewrites trigger events too. They cost one extra parse
// and nothing else.
func (c *Cache) Watch(ctx context.Context, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	go func() {
		defer func() { _ = w.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-w.Events:
				if !ok {
					return
				}
				if !strings.HasSuffix(event.Name, ".csv") {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
					slog.DebugContext(ctx, "Table changed on disk", "file", filepath.Base(event.Name), "op", event.Op.String())
					c.InvalidateAll()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.WarnContext(ctx, "Error watching tables", "err", err)
			}
		}
	}()
	return nil
}
