package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher notifies when new session transcripts land in the sessions
// directory, so a cycle can be triggered by fresh activity instead of only
// by the timer.
type Watcher struct {
	dir string
	log *zap.Logger
}

// NewWatcher builds a watcher over the sessions directory.
func NewWatcher(dir string, log *zap.Logger) *Watcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Watcher{dir: dir, log: log}
}

// Watch blocks until the context is cancelled, invoking onTranscript for
// every transcript file created or written in the sessions directory.
func (w *Watcher) Watch(ctx context.Context, onTranscript func(path string)) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("bridge: create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("bridge: watch %s: %w", w.dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(event.Name, ".jsonl") {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.log.Debug("transcript activity", zap.String("path", event.Name))
				onTranscript(event.Name)
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn("watcher error", zap.Error(err))
		}
	}
}
