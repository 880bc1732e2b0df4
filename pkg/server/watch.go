package server

import (
	"context"
	"log"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// WatchConf starts an fsnotify watcher on the directory holding path.
// Each time the file is written or replaced it is reloaded and, if it
// parses, handed to apply. The watcher stops when ctx ends.
func WatchConf(ctx context.Context, path string, apply func(*ChatConf)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Editors often replace the file, so watch its directory.
	dir, name := filepath.Split(filepath.Clean(path))
	if dir == "" {
		dir = "."
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if filepath.Base(event.Name) != name {
					continue
				}
				cc, err := LoadChatConf(path)
				if err != nil {
					log.Printf("chatconf: reload %s: %v", path, err)
					continue
				}
				log.Printf("chatconf: reloaded %s", path)
				apply(cc)

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Printf("chatconf: watcher error: %v", err)
			}
		}
	}()

	log.Printf("chatconf: watching %s for changes", path)
	return nil
}
