package composer

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce is how long Watch waits after the last change before
// rebuilding.
const DefaultWatchDebounce = 500 * time.Millisecond

// BuildFunc receives the outcome of every build in watch mode. Exactly one of
// res and err is non-nil.
type BuildFunc func(res *Result, err error)

// Watch builds the deployment at path, then rebuilds it from scratch whenever one
// of the files read by the previous build is written or created, until ctx is
// cancelled. Build errors are passed to onBuild and do not stop watching.
func (c *Composer) Watch(ctx context.Context, path string, onBuild BuildFunc) error {
	return c.watch(ctx, path, DefaultWatchDebounce, onBuild)
}

func (c *Composer) watch(ctx context.Context, path string, debounce time.Duration, onBuild BuildFunc) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	logger := c.logger.With().Str("deployment", path).Logger()

	sources := make(map[string]bool)
	dirs := make(map[string]bool)

	rebuild := func() {
		res, read, err := c.build(ctx, path)

		// Watch everything read so far, including files that failed to load.
		for _, src := range read {
			sources[filepath.Clean(src)] = true
			dir := filepath.Dir(src)
			if dirs[dir] {
				continue
			}
			if err := watcher.Add(dir); err != nil {
				logger.Warn().Err(err).Str("dir", dir).Msg("Failed to watch directory")
				continue
			}
			dirs[dir] = true
		}

		onBuild(res, err)
	}

	rebuild()
	logger.Info().Int("dirs", len(dirs)).Msg("Watching for changes")

	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !sources[filepath.Clean(event.Name)] {
				continue
			}

			logger.Debug().
				Str("file", event.Name).
				Str("op", event.Op.String()).
				Msg("Source changed")

			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(debounce)
			fire = timer.C

		case <-fire:
			fire = nil
			logger.Info().Msg("Rebuilding dataflow")
			rebuild()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Error().Err(err).Msg("Watcher error")
		}
	}
}
