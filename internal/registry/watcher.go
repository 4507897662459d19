package registry

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/opsmesh/conductor/internal/logging"
)

// Watch invalidates the registry cache whenever the catalog file changes
// on disk. It blocks until ctx is cancelled. There is no hot-reload
// requirement; this is an optional convenience for long-running
// deployments that update the catalog in place.
func (r *Registry) Watch(ctx context.Context, logger *logging.Logger) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	// Watch the parent directory: editors and config management tools
	// typically replace the file rather than write it in place.
	dir := filepath.Dir(r.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			r.Invalidate()
			if logger != nil {
				logger.Info("catalog invalidated", map[string]interface{}{
					"path": target,
					"op":   event.Op.String(),
				})
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			if logger != nil {
				logger.Warn("catalog watch error", map[string]interface{}{
					"error": err.Error(),
				})
			}
		}
	}
}
