package state

import (
	"path/filepath"
	"strings"

	"github.com/hugo-lorenzo-mato/flowrun/internal/core"
)

// MemoryPath selects the in-memory store.
const MemoryPath = ":memory:"

// Store is a recorder that also keeps workflow definitions.
type Store interface {
	core.ExecutionRecorder
	core.WorkflowStore
	core.InterruptedRunCloser
}

// NewStore opens the store at path. ":memory:" selects the in-process store;
// any other path is a SQLite database (".db" is appended when missing).
func NewStore(path string) (Store, error) {
	if strings.TrimSpace(path) == "" || path == MemoryPath {
		return NewMemoryStore(), nil
	}
	if !strings.HasSuffix(path, ".db") {
		path = strings.TrimSuffix(path, filepath.Ext(path)) + ".db"
	}
	return NewSQLiteStore(path)
}

// Closeable is an optional interface for stores that need cleanup.
type Closeable interface {
	Close() error
}

// CloseStore safely closes a store if it implements Closeable.
func CloseStore(s Store) error {
	if closeable, ok := s.(Closeable); ok {
		return closeable.Close()
	}
	return nil
}
