package legacy

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watch observes the data directory and runs the importer when a legacy
// export file lands in it, debounced so a file still being written is read
// once, whole. Blocks until ctx is cancelled.
func Watch(ctx context.Context, imp *Importer, dataDir string, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(dataDir); err != nil {
		return err
	}
	logger.Info("legacy watcher: started", slog.String("dir", dataDir))

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	schedule := func() {
		if debounce == nil {
			debounce = time.NewTimer(500 * time.Millisecond)
			debounceCh = debounce.C
		} else {
			debounce.Reset(500 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if debounce != nil {
				debounce.Stop()
			}
			logger.Info("legacy watcher: stopped")
			return nil

		case <-debounceCh:
			stats, err := imp.Run(ctx)
			if err != nil {
				logger.Warn("legacy watcher: import failed", slog.String("error", err.Error()))
			} else if stats.NotesMigrated > 0 || stats.FoldersCreated > 0 {
				logger.Info("legacy watcher: imported",
					slog.Int("folders", stats.FoldersCreated),
					slog.Int("notes", stats.NotesMigrated))
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != SourceFile {
				continue
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				schedule()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("legacy watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}
