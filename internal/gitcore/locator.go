package gitcore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ObjectLocator maps a hash to its physical location: a loose file under
// objects/, or an offset inside a pack. When the same object exists both
// loose and packed, loose wins. The loose index is built lazily on first
// use and only dropped by an explicit Invalidate.
type ObjectLocator struct {
	mu         sync.Mutex
	objectsDir string

	loose map[Hash]string
	built bool

	packs *PackIndexManager
}

// NewObjectLocator creates a locator over gitDir's object database,
// delegating pack lookups to packs.
func NewObjectLocator(gitDir string, packs *PackIndexManager) *ObjectLocator {
	return &ObjectLocator{
		objectsDir: filepath.Join(gitDir, "objects"),
		packs:      packs,
	}
}

// Locate returns the location of the object with the given hash, or
// found=false if the hash exists in neither namespace. The error return
// covers infrastructure failures during the loose scan only.
func (l *ObjectLocator) Locate(ctx context.Context, h Hash) (ObjectLocation, bool, error) {
	h = normalizeHash(h)

	l.mu.Lock()
	err := l.ensureLooseIndex(ctx)
	if err != nil {
		l.mu.Unlock()
		return ObjectLocation{}, false, err
	}
	path, isLoose := l.loose[h]
	l.mu.Unlock()

	if isLoose {
		return ObjectLocation{LoosePath: path}, true, nil
	}

	if loc, found := l.packs.FindObject(h); found {
		return ObjectLocation{Packed: &loc}, true, nil
	}
	return ObjectLocation{}, false, nil
}

// Exists reports whether the object is present in either namespace.
func (l *ObjectLocator) Exists(ctx context.Context, h Hash) (bool, error) {
	_, found, err := l.Locate(ctx, h)
	return found, err
}

// EnumerateLooseHashes visits every loose object hash. The visitor
// returns false to stop.
func (l *ObjectLocator) EnumerateLooseHashes(ctx context.Context, visit HashVisitor) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.ensureLooseIndex(ctx); err != nil {
		return err
	}
	for h := range l.loose {
		if !visit(h) {
			return nil
		}
	}
	return nil
}

// EnumeratePackedHashes visits every packed object hash across all packs.
func (l *ObjectLocator) EnumeratePackedHashes(visit HashVisitor) error {
	return l.packs.EnumeratePackedHashes(visit)
}

// Invalidate drops the loose index and cascades to the pack index
// manager. The next lookup rebuilds both.
func (l *ObjectLocator) Invalidate() {
	l.mu.Lock()
	l.loose = nil
	l.built = false
	l.mu.Unlock()

	l.packs.Invalidate()
}

// ensureLooseIndex walks objects/ once, collecting every file under a
// two-hex-digit prefix directory. Non-hex prefixes (info, pack) are
// skipped silently. Cancellation is checked between directory entries.
// Caller must hold l.mu.
func (l *ObjectLocator) ensureLooseIndex(ctx context.Context) error {
	if l.built {
		return nil
	}

	loose := make(map[Hash]string)

	prefixes, err := os.ReadDir(l.objectsDir)
	if err != nil {
		if os.IsNotExist(err) {
			l.loose = loose
			l.built = true
			return nil
		}
		return fmt.Errorf("failed to read objects directory: %w", err)
	}

	for _, prefix := range prefixes {
		if err := ctx.Err(); err != nil {
			return err
		}
		name := prefix.Name()
		if !prefix.IsDir() || len(name) != 2 || !isHexString(name) {
			continue
		}

		dir := filepath.Join(l.objectsDir, name)
		files, err := os.ReadDir(dir)
		if err != nil {
			return fmt.Errorf("failed to read object directory %s: %w", name, err)
		}
		for _, f := range files {
			if err := ctx.Err(); err != nil {
				return err
			}
			if f.IsDir() || len(f.Name()) != 38 || !isHexString(f.Name()) {
				continue
			}
			h, err := NewHash(name + f.Name())
			if err != nil {
				continue
			}
			loose[h] = filepath.Join(dir, f.Name())
		}
	}

	l.loose = loose
	l.built = true
	return nil
}
