package core

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// Library maps announced file names to the local paths served for them.
type Library struct {
	mu    sync.RWMutex
	files map[string]string
}

func NewLibrary() *Library {
	return &Library{files: make(map[string]string)}
}

// Add shares path under its base name, replacing any earlier file with the
// same name.
func (l *Library) Add(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}

	name := filepath.Base(abs)

	l.mu.Lock()
	l.files[name] = abs
	l.mu.Unlock()

	return name, nil
}

func (l *Library) Remove(name string) {
	l.mu.Lock()
	delete(l.files, name)
	l.mu.Unlock()
}

// Open opens the file shared under name. Names are never treated as paths.
func (l *Library) Open(name string) (*os.File, os.FileInfo, error) {
	l.mu.RLock()
	path, ok := l.files[name]
	l.mu.RUnlock()

	if !ok {
		return nil, nil, os.ErrNotExist
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, nil, err
	}

	if stat.IsDir() {
		file.Close()
		return nil, nil, os.ErrNotExist
	}

	return file, stat, nil
}

func (l *Library) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	names := make([]string, 0, len(l.files))
	for name := range l.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
