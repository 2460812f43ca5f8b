package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

// FileMap records which document ids each indexed file produced, so a
// file's entries can be removed exactly, and keeps per-project stat snapshots.
type FileMap interface {
	// SetFileDocuments replaces the ids recorded for filePath.
	SetFileDocuments(projectID, filePath string, ids []string) error

	// FileDocuments returns the ids recorded for filePath (nil when none).
	FileDocuments(projectID, filePath string) ([]string, error)

	// RemoveFile forgets filePath.
	RemoveFile(projectID, filePath string) error

	// ProjectFiles returns filePath -> ids for a project.
	ProjectFiles(projectID string) (map[string][]string, error)

	// RemoveProject forgets all files and the stats snapshot of a project.
	RemoveProject(projectID string) error

	// SaveProjectStats stores v (JSON encoded) as the project's snapshot.
	SaveProjectStats(projectID string, v any) error

	// EachProjectStats calls fn for every stored snapshot.
	EachProjectStats(fn func(projectID string, data []byte) error) error

	// Clear forgets every project.
	Clear() error

	Close() error
}

var (
	bucketFiles    = []byte("files")
	bucketProjects = []byte("projects")
)

// BoltFileMap persists the file map in a bbolt database. Files are stored in
// a sub-bucket per project under "files"; snapshots under "projects".
type BoltFileMap struct {
	db *bbolt.DB
}

var _ FileMap = (*BoltFileMap)(nil)

// NewBoltFileMap opens or creates the database at path.
func NewBoltFileMap(path string) (*BoltFileMap, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open file map: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketFiles); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketProjects)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &BoltFileMap{db: db}, nil
}

// FileMapPath returns the file map location in dataDir.
func FileMapPath(dataDir string) string {
	return filepath.Join(dataDir, "filemap.db")
}

func (m *BoltFileMap) SetFileDocuments(projectID, filePath string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.Bucket(bucketFiles).CreateBucketIfNotExists([]byte(projectID))
		if err != nil {
			return err
		}
		return b.Put([]byte(filePath), data)
	})
}

func (m *BoltFileMap) FileDocuments(projectID, filePath string) ([]string, error) {
	var ids []string
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFiles).Bucket([]byte(projectID))
		if b == nil {
			return nil
		}
		data := b.Get([]byte(filePath))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &ids)
	})
	return ids, err
}

func (m *BoltFileMap) RemoveFile(projectID, filePath string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFiles).Bucket([]byte(projectID))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(filePath))
	})
}

func (m *BoltFileMap) ProjectFiles(projectID string) (map[string][]string, error) {
	files := make(map[string][]string)
	err := m.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketFiles).Bucket([]byte(projectID))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			var ids []string
			if err := json.Unmarshal(v, &ids); err != nil {
				return fmt.Errorf("decode ids for %s: %w", k, err)
			}
			files[string(k)] = ids
			return nil
		})
	})
	return files, err
}

func (m *BoltFileMap) RemoveProject(projectID string) error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		files := tx.Bucket(bucketFiles)
		if files.Bucket([]byte(projectID)) != nil {
			if err := files.DeleteBucket([]byte(projectID)); err != nil {
				return err
			}
		}
		return tx.Bucket(bucketProjects).Delete([]byte(projectID))
	})
}

func (m *BoltFileMap) SaveProjectStats(projectID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return m.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProjects).Put([]byte(projectID), data)
	})
}

func (m *BoltFileMap) EachProjectStats(fn func(projectID string, data []byte) error) error {
	return m.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketProjects).ForEach(func(k, v []byte) error {
			// v is only valid for the life of the transaction.
			return fn(string(k), append([]byte(nil), v...))
		})
	})
}

func (m *BoltFileMap) Clear() error {
	return m.db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketFiles, bucketProjects} {
			if err := tx.DeleteBucket(name); err != nil {
				return err
			}
			if _, err := tx.CreateBucket(name); err != nil {
				return err
			}
		}
		return nil
	})
}

func (m *BoltFileMap) Close() error {
	return m.db.Close()
}

// MemoryFileMap is a FileMap held only in memory.
type MemoryFileMap struct {
	mu       sync.RWMutex
	files    map[string]map[string][]string
	projects map[string][]byte
}

var _ FileMap = (*MemoryFileMap)(nil)

// NewMemoryFileMap creates an empty in-memory file map.
func NewMemoryFileMap() *MemoryFileMap {
	return &MemoryFileMap{
		files:    make(map[string]map[string][]string),
		projects: make(map[string][]byte),
	}
}

func (m *MemoryFileMap) SetFileDocuments(projectID, filePath string, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.files[projectID] == nil {
		m.files[projectID] = make(map[string][]string)
	}
	m.files[projectID][filePath] = append([]string(nil), ids...)
	return nil
}

func (m *MemoryFileMap) FileDocuments(projectID, filePath string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ids := m.files[projectID][filePath]
	if ids == nil {
		return nil, nil
	}
	return append([]string(nil), ids...), nil
}

func (m *MemoryFileMap) RemoveFile(projectID, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files[projectID], filePath)
	return nil
}

func (m *MemoryFileMap) ProjectFiles(projectID string) (map[string][]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string][]string, len(m.files[projectID]))
	for path, ids := range m.files[projectID] {
		out[path] = append([]string(nil), ids...)
	}
	return out, nil
}

func (m *MemoryFileMap) RemoveProject(projectID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.files, projectID)
	delete(m.projects, projectID)
	return nil
}

func (m *MemoryFileMap) SaveProjectStats(projectID string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.projects[projectID] = data
	return nil
}

func (m *MemoryFileMap) EachProjectStats(fn func(projectID string, data []byte) error) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.projects))
	for id := range m.projects {
		ids = append(ids, id)
	}
	snapshot := make(map[string][]byte, len(m.projects))
	for id, data := range m.projects {
		snapshot[id] = data
	}
	m.mu.RUnlock()

	sort.Strings(ids)
	for _, id := range ids {
		if err := fn(id, snapshot[id]); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryFileMap) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.files = make(map[string]map[string][]string)
	m.projects = make(map[string][]byte)
	return nil
}

func (m *MemoryFileMap) Close() error { return nil }
