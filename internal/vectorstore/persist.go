package vectorstore

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/gofrs/flock"
)

// snapshot is the gob-encoded on-disk representation of a Memory store,
// mirroring the teacher's HNSW metadata snapshot shape but holding raw
// vectors instead of graph state.
type snapshot struct {
	Dim     int
	Vectors map[string][]float32
}

// Save writes the store to path under an advisory lock, via a temp file
// plus atomic rename so a concurrent reader never observes a partial
// snapshot.
func (m *Memory) Save(path string) error {
	m.mu.RLock()
	snap := snapshot{Dim: m.dim, Vectors: make(map[string][]float32, len(m.vectors))}
	for name, v := range m.vectors {
		cp := make([]float32, len(v))
		copy(cp, v)
		snap.Vectors[name] = cp
	}
	m.mu.RUnlock()

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock vector snapshot: %w", err)
	}
	defer lock.Unlock()

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create vector snapshot: %w", err)
	}
	if err := gob.NewEncoder(f).Encode(snap); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode vector snapshot: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close vector snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Load replaces the store's contents with a snapshot written by Save.
func (m *Memory) Load(path string) error {
	lock := flock.New(path + ".lock")
	if err := lock.RLock(); err != nil {
		return fmt.Errorf("lock vector snapshot: %w", err)
	}
	defer lock.Unlock()

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open vector snapshot: %w", err)
	}
	defer f.Close()

	var snap snapshot
	if err := gob.NewDecoder(f).Decode(&snap); err != nil {
		return fmt.Errorf("decode vector snapshot: %w", err)
	}

	m.mu.Lock()
	m.dim = snap.Dim
	m.vectors = snap.Vectors
	m.mu.Unlock()
	return nil
}

// Watcher reloads a Memory store from path whenever it changes on disk.
// This is optional: a store that never calls Watch only ever reflects
// explicit Save/Load calls.
type Watcher struct {
	watcher *fsnotify.Watcher
	store   *Memory
	path    string
	done    chan struct{}
}

// WatchReload starts watching path for external changes and reloads store
// whenever a write is observed. Call Close to stop watching.
func WatchReload(store *Memory, path string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(path); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch vector snapshot: %w", err)
	}

	w := &Watcher{watcher: fw, store: store, path: path, done: make(chan struct{})}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				_ = w.store.Load(w.path)
			}
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		case <-w.done:
			return
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
