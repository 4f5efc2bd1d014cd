package lifecycle

import (
	"context"
	"time"

	"github.com/voss/murmur/internal/models"
	"github.com/voss/murmur/internal/repo"
)

// DefaultPollInterval is how often an observing view re-reads a
// transcribing note.
const DefaultPollInterval = 2 * time.Second

// Watch re-reads the note on the given interval and sends each snapshot on
// the returned channel. The channel closes as soon as a non-transcribing
// status is observed, the note disappears, or ctx is cancelled — the caller
// must cancel ctx on view teardown so no timer leaks.
//
// There is no push notification from background transitions; polling is the
// only cross-view visibility mechanism.
func Watch(ctx context.Context, notes *repo.Notes, id string, interval time.Duration) <-chan models.VoiceNote {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	out := make(chan models.VoiceNote, 1)

	go func() {
		defer close(out)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			note, err := notes.Get(ctx, id)
			if err != nil || note == nil {
				return
			}
			select {
			case out <- *note:
			case <-ctx.Done():
				return
			}
			if note.Status != models.StatusTranscribing {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}
