package file

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceWindow coalesces rapid event bursts (editors often emit several
// events per save) into a single reload.
const debounceWindow = 250 * time.Millisecond

// Watch monitors the rule document for external edits and invokes onChange
// for each detected change until ctx is cancelled.
//
// The parent directory is watched rather than the file itself: atomic saves
// replace the file via rename, which would silently detach a file-level
// watch. Our own atomic writes also land here as a final rename, so
// onChange fires for self-inflicted saves too; callers debounce reloads
// against their current snapshot.
func (s *RuleStore) Watch(ctx context.Context, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	fire := make(chan struct{}, 1)

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
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceWindow, func() {
				select {
				case fire <- struct{}{}:
				default:
				}
			})

		case <-fire:
			s.logger.Debug("rule store changed on disk", "path", s.path)
			onChange()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			// Watch errors are non-fatal: the engine keeps serving its
			// last in-memory snapshot.
			s.logger.Warn("rule store watch error", "path", s.path, "error", err)
		}
	}
}
