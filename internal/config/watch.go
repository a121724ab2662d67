package config

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"longform-transcriber/internal/domain"
)

// Watch reloads settings whenever the store's file is written, created or
// renamed into place and passes them to onChange. The parent directory is
// watched so editors that replace the file atomically are still seen.
// Parse errors are logged and the previous settings stay in effect.
func Watch(ctx context.Context, store *FileStore, onChange func(domain.Settings)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	target := filepath.Clean(store.Path())
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != target {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				settings, err := store.Load()
				if err != nil {
					log.Printf("config: reload path=%s err=%v", target, err)
					continue
				}
				onChange(settings)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("config: watcher error: %v", err)
			}
		}
	}()

	if err := watcher.Add(filepath.Dir(target)); err != nil {
		_ = watcher.Close()
		return err
	}
	return nil
}
