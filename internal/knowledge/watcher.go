package knowledge

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatchDebounce is the window over which changed-file events are coalesced
// before a batch re-embed, adapted from the teacher watcher's debounce.
const WatchDebounce = 2 * time.Second

// Watch monitors root for document changes and re-adds them to vault as
// they settle, using the same content-hash idempotency AddDocument already
// provides (so an unrelated save with identical bytes is a no-op). skipDirs
// names directory basenames the walk does not descend into. It blocks until
// stop is closed or an unrecoverable watcher error occurs.
func (v *Vault) Watch(root string, skipDirs map[string]bool, stop <-chan struct{}) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("%w: create watcher: %v", ErrBackendUnavailable, err)
	}
	defer w.Close()

	for _, dir := range walkDirs(root, skipDirs) {
		if err := w.Add(dir); err != nil {
			fmt.Fprintf(os.Stderr, "knowledge: could not watch %s: %v\n", dir, err)
		}
	}

	var (
		mu      sync.Mutex
		pending = make(map[string]bool)
		timer   *time.Timer
	)

	flush := func() {
		mu.Lock()
		paths := make([]string, 0, len(pending))
		for p := range pending {
			paths = append(paths, p)
		}
		pending = make(map[string]bool)
		mu.Unlock()

		for _, path := range paths {
			content, kind, _, err := ReadDocument(path)
			if err != nil {
				fmt.Fprintf(os.Stderr, "knowledge: skip %s: %v\n", path, err)
				continue
			}
			if _, err := v.AddDocument(path, content, kind); err != nil {
				fmt.Fprintf(os.Stderr, "knowledge: reindex %s: %v\n", path, err)
			}
		}
	}

	for {
		select {
		case <-stop:
			return nil
		case event, ok := <-w.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if !skipDirs[filepath.Base(event.Name)] {
						w.Add(event.Name)
					}
					continue
				}
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				mu.Lock()
				pending[event.Name] = true
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(WatchDebounce, flush)
				mu.Unlock()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "knowledge: watcher error: %v\n", err)
		}
	}
}

// walkDirs returns root and every subdirectory not named in skipDirs.
func walkDirs(root string, skipDirs map[string]bool) []string {
	var dirs []string
	filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info == nil || !info.IsDir() {
			return nil
		}
		if skipDirs[filepath.Base(path)] {
			return filepath.SkipDir
		}
		dirs = append(dirs, path)
		return nil
	})
	return dirs
}
