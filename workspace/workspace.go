// Package workspace rebuilds the remote file tree from the message stream.
// The platform exposes no file-read API: everything known about the remote
// workspace comes from full snapshots and incremental per-file events.
package workspace

import (
	"sort"
	"strings"
	"sync"

	"github.com/vibewire/vibewire/wire"
)

// Workspace is a flat map from normalized path (forward slashes, no leading
// slash) to file content. A snapshot replaces the whole map; incremental
// events touch exactly one key.
type Workspace struct {
	mu    sync.RWMutex
	files map[string]string
}

// New creates an empty workspace.
func New() *Workspace {
	return &Workspace{files: make(map[string]string)}
}

// Apply folds one server message into the workspace. Messages without file
// effects are ignored.
func (w *Workspace) Apply(msg *wire.Message) {
	if msg == nil {
		return
	}
	switch msg.Type {
	case wire.TypeStateSnapshot:
		// A snapshot with a files map is the authoritative resync point:
		// incremental events lost across a reconnect are recovered by
		// replacing the whole map. A snapshot without one leaves files
		// alone.
		if msg.State == nil || msg.State.GeneratedFilesMap == nil {
			return
		}
		files := make(map[string]string, len(msg.State.GeneratedFilesMap))
		for key, f := range msg.State.GeneratedFilesMap {
			path := f.FilePath
			if path == "" {
				path = key
			}
			files[normalizePath(path)] = f.FileContents
		}
		w.mu.Lock()
		w.files = files
		w.mu.Unlock()

	case wire.TypeFileGenerated, wire.TypeFileRegenerated:
		if msg.File == nil || msg.File.FilePath == "" {
			return
		}
		w.mu.Lock()
		w.files[normalizePath(msg.File.FilePath)] = msg.File.FileContents
		w.mu.Unlock()

	case wire.TypeFileChunkGenerated:
		if msg.FilePath == "" {
			return
		}
		// Chunks carry no offsets; stream order per file is the reassembly
		// order.
		w.mu.Lock()
		path := normalizePath(msg.FilePath)
		w.files[path] += msg.Chunk
		w.mu.Unlock()
	}
}

// Get returns the content of one file.
func (w *Workspace) Get(path string) (string, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	content, ok := w.files[normalizePath(path)]
	return content, ok
}

// Len returns the number of files.
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.files)
}

// Paths returns every file path, lexicographically sorted.
func (w *Workspace) Paths() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	paths := make([]string, 0, len(w.files))
	for p := range w.files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// Files returns a copy of the whole path→content map.
func (w *Workspace) Files() map[string]string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	files := make(map[string]string, len(w.files))
	for p, c := range w.files {
		files[p] = c
	}
	return files
}

func normalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	for strings.HasPrefix(p, "/") {
		p = strings.TrimPrefix(p, "/")
	}
	return p
}
