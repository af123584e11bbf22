// Package watcher monitors the inbox directory for newly dropped chat
// export archives and hands them to a processing handler.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/rcastellanos/chatrecap/internal/logger"
)

// settleDelay gives the OS time to finish writing a dropped archive before
// the handler opens it. Exports with many voice notes can take a moment to
// land completely.
const settleDelay = time.Second

type implWatcher struct {
	inputDir      string
	handler       EventHandler
	logger        logger.Logger
	watcher       *fsnotify.Watcher
	maxConcurrent int
	semaphore     chan struct{}
	wg            sync.WaitGroup
}

// Start begins monitoring the input directory for new export archives.
// Blocks until the context is cancelled, then drains in-flight handlers.
func (w *implWatcher) Start(ctx context.Context) error {
	w.logger.Info(ctx, "Archive watcher started (max concurrent: %d). Monitoring: %s", w.maxConcurrent, w.inputDir)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info(ctx, "Waiting for ongoing processing to complete...")
			w.wg.Wait()
			w.logger.Info(ctx, "Archive watcher stopped")
			return ctx.Err()

		case event, ok := <-w.watcher.Events:
			if !ok {
				return fmt.Errorf("watcher events channel closed")
			}

			if event.Op&fsnotify.Create == fsnotify.Create {
				if isArchive(event.Name) {
					w.logger.Info(ctx, "New archive detected: %s", event.Name)

					time.Sleep(settleDelay)

					select {
					case w.semaphore <- struct{}{}:
						w.wg.Add(1)
						go func(archivePath string) {
							defer w.wg.Done()
							defer func() { <-w.semaphore }()

							if err := w.handler(ctx, archivePath); err != nil {
								w.logger.Error(ctx, "Failed to process %s: %v", archivePath, err)
							}
						}(event.Name)
					case <-ctx.Done():
						return ctx.Err()
					}
				} else {
					w.logger.Debug(ctx, "Ignoring non-archive file: %s", event.Name)
				}
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher errors channel closed")
			}
			w.logger.Error(ctx, "Watcher error: %v", err)
		}
	}
}

// Stop closes the file watcher
func (w *implWatcher) Stop() error {
	return w.watcher.Close()
}

func isArchive(path string) bool {
	return strings.ToLower(filepath.Ext(path)) == ".zip"
}
