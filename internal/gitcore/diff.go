package gitcore

import (
	"context"
	"sync"
)

// DiffCalculator computes file-level changes between two tree snapshots.
// Renames are detected before adds and deletes: a blob that appears at
// different paths in the two snapshots subsumes the would-be add/delete
// pair. Entries whose blob cannot be loaded are skipped; the diff is
// best-effort under corruption.
type DiffCalculator struct {
	mu sync.Mutex
}

// NewDiffCalculator returns a ready-to-use calculator.
func NewDiffCalculator() *DiffCalculator {
	return &DiffCalculator{}
}

// CalculateDiff compares current against parent. A nil parent means a
// root commit: every current entry is emitted as added. The result is
// keyed by path; no path appears twice.
func (d *DiffCalculator) CalculateDiff(ctx context.Context, current, parent TreeSnapshot, load BlobLoader) (map[string]CommittedFile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	result := make(map[string]CommittedFile)

	if parent == nil {
		for path, hash := range current {
			blob, err := load(ctx, hash)
			if err != nil {
				return nil, err
			}
			if blob == nil {
				continue
			}
			result[path] = CommittedFile{Path: path, Blob: blob, Change: ChangeType{Kind: ChangeAdded}}
		}
		return result, nil
	}

	currentByBlob := reverseSnapshot(current)
	parentByBlob := reverseSnapshot(parent)

	// Renames first. A blob present in both snapshots at different
	// representative paths moved, provided the move is a genuine
	// add/delete pair: the new path must not exist in the parent and the
	// old path must be gone from current. Consume the blob so the
	// add/delete passes leave it alone.
	consumed := make(map[Hash]bool)
	for hash, newPath := range currentByBlob {
		oldPath, inParent := parentByBlob[hash]
		if !inParent || oldPath == newPath {
			continue
		}
		if _, exists := parent[newPath]; exists {
			continue
		}
		if _, exists := current[oldPath]; exists {
			continue
		}
		consumed[hash] = true

		blob, err := load(ctx, hash)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		result[newPath] = CommittedFile{
			Path:   newPath,
			Blob:   blob,
			Change: ChangeType{Kind: ChangeRenamed, FromPath: oldPath},
		}
	}

	// Adds and modifications.
	for path, hash := range current {
		if consumed[hash] {
			continue
		}
		oldHash, existed := parent[path]
		if existed && oldHash == hash {
			continue
		}

		kind := ChangeAdded
		if existed {
			kind = ChangeModified
		}
		blob, err := load(ctx, hash)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		result[path] = CommittedFile{Path: path, Blob: blob, Change: ChangeType{Kind: kind}}
	}

	// Deletions. The blob loaded is the parent-side content.
	for path, hash := range parent {
		if consumed[hash] {
			continue
		}
		if _, stillThere := current[path]; stillThere {
			continue
		}

		blob, err := load(ctx, hash)
		if err != nil {
			return nil, err
		}
		if blob == nil {
			continue
		}
		result[path] = CommittedFile{Path: path, Blob: blob, Change: ChangeType{Kind: ChangeDeleted}}
	}

	return result, nil
}

// reverseSnapshot inverts path→hash into hash→path. When the same blob
// appears at multiple paths, the lexicographically smallest path is the
// representative so rename detection is reproducible.
func reverseSnapshot(snap TreeSnapshot) map[Hash]string {
	rev := make(map[Hash]string, len(snap))
	for path, hash := range snap {
		if existing, ok := rev[hash]; !ok || path < existing {
			rev[hash] = path
		}
	}
	return rev
}
