package gitcore

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// PackIndexManager caches one PackIndex per pack file. The pack directory
// is scanned once; each index is loaded lazily the first time a lookup
// reaches it. All methods are serialized on an internal mutex.
type PackIndexManager struct {
	mu      sync.Mutex
	packDir string

	scanned  bool
	idxPaths []string              // discovery order; lookup probes in this order
	loaded   map[string]*PackIndex // keyed by pack path
}

// NewPackIndexManager creates a manager over gitDir's objects/pack directory.
func NewPackIndexManager(gitDir string) *PackIndexManager {
	return &PackIndexManager{
		packDir: filepath.Join(gitDir, "objects", "pack"),
		loaded:  make(map[string]*PackIndex),
	}
}

// FindObject probes the cached indices in discovery order and returns the
// first hit. Indices that fail to load are logged and skipped so one
// corrupt pack cannot hide objects stored in the others.
func (m *PackIndexManager) FindObject(h Hash) (PackObjectLocation, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureScanned(); err != nil {
		log.Printf("failed to scan pack directory: %v", err)
		return PackObjectLocation{}, false
	}

	h = normalizeHash(h)
	for _, idxPath := range m.idxPaths {
		idx, err := m.indexFor(idxPath)
		if err != nil {
			log.Printf("failed to load pack index %s: %v", filepath.Base(idxPath), err)
			continue
		}
		if loc, found := idx.FindObject(h); found {
			return loc, true
		}
	}
	return PackObjectLocation{}, false
}

// GetPackIndex returns the index for the given pack path, loading it if
// it has not been touched yet.
func (m *PackIndexManager) GetPackIndex(packPath string) (*PackIndex, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.loaded[packPath]; ok {
		return idx, nil
	}
	idxPath := strings.TrimSuffix(packPath, ".pack") + ".idx"
	return m.indexFor(idxPath)
}

// EnumeratePackedHashes visits every hash across all packs. The visitor
// returns false to stop the enumeration globally.
func (m *PackIndexManager) EnumeratePackedHashes(visit HashVisitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.ensureScanned(); err != nil {
		return err
	}

	for _, idxPath := range m.idxPaths {
		idx, err := m.indexFor(idxPath)
		if err != nil {
			log.Printf("failed to load pack index %s: %v", filepath.Base(idxPath), err)
			continue
		}
		for _, h := range idx.AllHashes() {
			if !visit(h) {
				return nil
			}
		}
	}
	return nil
}

// Invalidate clears all cached indices; the next access rescans the pack
// directory. Callers invoke this after any repository mutation (gc,
// repack, fetch).
func (m *PackIndexManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, idx := range m.loaded {
		idx.Clear()
	}
	m.scanned = false
	m.idxPaths = nil
	m.loaded = make(map[string]*PackIndex)
}

// ensureScanned enumerates objects/pack/*.idx once. A missing pack
// directory is a repository with no packs, not an error.
// Caller must hold m.mu.
func (m *PackIndexManager) ensureScanned() error {
	if m.scanned {
		return nil
	}

	entries, err := os.ReadDir(m.packDir)
	if err != nil {
		if os.IsNotExist(err) {
			m.scanned = true
			return nil
		}
		return fmt.Errorf("failed to read pack directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".idx") {
			continue
		}
		m.idxPaths = append(m.idxPaths, filepath.Join(m.packDir, entry.Name()))
	}
	m.scanned = true
	return nil
}

// indexFor loads and caches the index at idxPath.
// Caller must hold m.mu.
func (m *PackIndexManager) indexFor(idxPath string) (*PackIndex, error) {
	packPath := strings.TrimSuffix(idxPath, ".idx") + ".pack"
	if idx, ok := m.loaded[packPath]; ok {
		return idx, nil
	}

	idx, err := LoadPackIndex(idxPath, packPath)
	if err != nil {
		return nil, err
	}
	m.loaded[packPath] = idx
	return idx, nil
}
