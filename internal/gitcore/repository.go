package gitcore

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Repository ties the read-path components together: object reader, ref
// reader, and diff calculator over one .git directory. All state lives
// in the components; Repository itself is immutable after Open.
type Repository struct {
	gitDir  string
	workDir string

	reader *ObjectReader
	refs   *RefReader
	diff   *DiffCalculator
}

// Open opens a Git repository starting from path, which can be the
// working directory, the .git directory, or any descendant of the
// working directory.
func Open(path string) (*Repository, error) {
	gitDir, workDir, err := findGitDirectory(path)
	if err != nil {
		return nil, err
	}
	if err := validateGitDirectory(gitDir); err != nil {
		return nil, err
	}

	repo := &Repository{
		gitDir:  gitDir,
		workDir: workDir,
		diff:    NewDiffCalculator(),
	}
	repo.reader = NewObjectReader(gitDir)
	repo.refs = NewRefReader(gitDir, func(ctx context.Context, h Hash) (bool, error) {
		return repo.reader.Exists(ctx, h)
	})
	return repo, nil
}

// Name returns the base name of the repository's working directory.
func (r *Repository) Name() string { return filepath.Base(r.workDir) }

// GitDir returns the path to the repository's .git directory.
func (r *Repository) GitDir() string { return r.gitDir }

// WorkDir returns the path to the repository's working directory.
func (r *Repository) WorkDir() string { return r.workDir }

// IsBare reports whether the repository is a bare repository.
func (r *Repository) IsBare() bool { return r.gitDir == r.workDir }

// Objects returns the object reader façade.
func (r *Repository) Objects() *ObjectReader { return r.reader }

// Refs returns the ref reader.
func (r *Repository) Refs() *RefReader { return r.refs }

// GetCommit reads and parses a commit object.
func (r *Repository) GetCommit(ctx context.Context, h Hash) (*Commit, error) {
	return r.reader.GetCommit(ctx, h)
}

// GetTree reads and parses a tree object.
func (r *Repository) GetTree(ctx context.Context, h Hash) (*Tree, error) {
	return r.reader.GetTree(ctx, h)
}

// GetBlob reads raw blob content.
func (r *Repository) GetBlob(ctx context.Context, h Hash) (*Blob, error) {
	return r.reader.GetBlob(ctx, h)
}

// StreamBlob yields blob content incrementally where possible.
func (r *Repository) StreamBlob(ctx context.Context, h Hash) (io.ReadCloser, error) {
	return r.reader.StreamBlob(ctx, h)
}

// GetTreePaths flattens a tree into a path-to-blob snapshot.
func (r *Repository) GetTreePaths(ctx context.Context, rootTree Hash) (TreeSnapshot, error) {
	return r.reader.GetTreePaths(ctx, rootTree)
}

// GetRefs returns all refs grouped by kind.
func (r *Repository) GetRefs(ctx context.Context) (map[RefKind][]GitRef, error) {
	return r.refs.GetRefs(ctx)
}

// ResolveReference resolves a full ref path to a hash.
func (r *Repository) ResolveReference(ctx context.Context, refPath string) (Hash, bool) {
	return r.refs.ResolveReference(ctx, refPath)
}

// GetHEAD resolves HEAD to a commit hash.
func (r *Repository) GetHEAD(ctx context.Context) (Hash, bool, error) {
	return r.refs.GetHEAD(ctx)
}

// GetHEADBranch returns the current branch short name, or found=false
// when HEAD is detached.
func (r *Repository) GetHEADBranch(ctx context.Context) (string, bool) {
	return r.refs.GetHEADBranch(ctx)
}

// BlobLoader returns a loader backed by this repository's object store.
// A missing blob yields (nil, nil) per the loader contract.
func (r *Repository) BlobLoader() BlobLoader {
	return func(ctx context.Context, h Hash) (*Blob, error) {
		blob, err := r.reader.GetBlob(ctx, h)
		if err != nil {
			if errors.Is(err, ErrObjectNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return blob, nil
	}
}

// CalculateDiff computes file-level changes between two tree snapshots
// using the repository's own blob loader.
func (r *Repository) CalculateDiff(ctx context.Context, current, parent TreeSnapshot) (map[string]CommittedFile, error) {
	return r.diff.CalculateDiff(ctx, current, parent, r.BlobLoader())
}

// DiffCommits flattens both commits' trees and diffs them. parentHash
// may be empty for a root commit.
func (r *Repository) DiffCommits(ctx context.Context, commitHash, parentHash Hash) (map[string]CommittedFile, error) {
	commit, err := r.GetCommit(ctx, commitHash)
	if err != nil {
		return nil, err
	}
	current, err := r.GetTreePaths(ctx, commit.Tree)
	if err != nil {
		return nil, err
	}

	var parent TreeSnapshot
	if parentHash != "" {
		parentCommit, err := r.GetCommit(ctx, parentHash)
		if err != nil {
			return nil, err
		}
		parent, err = r.GetTreePaths(ctx, parentCommit.Tree)
		if err != nil {
			return nil, err
		}
	}

	return r.diff.CalculateDiff(ctx, current, parent, r.BlobLoader())
}

// Invalidate fans out to every cache: loose index, pack indices, and
// refs. Callers invoke it after any mutation of the repository (commit,
// checkout, branch create/delete, stash, gc).
func (r *Repository) Invalidate() {
	r.reader.Invalidate()
	r.refs.Invalidate()
}

// MergeInProgress reports whether a merge has been started but not
// concluded.
func (r *Repository) MergeInProgress() bool { return r.sentinelExists("MERGE_HEAD") }

// CherryPickInProgress reports whether a cherry-pick is underway.
func (r *Repository) CherryPickInProgress() bool { return r.sentinelExists("CHERRY_PICK_HEAD") }

// RevertInProgress reports whether a revert is underway.
func (r *Repository) RevertInProgress() bool { return r.sentinelExists("REVERT_HEAD") }

func (r *Repository) sentinelExists(name string) bool {
	_, err := os.Stat(filepath.Join(r.gitDir, name))
	return err == nil
}

// commitHeap is a max-heap of commits sorted by committer date (newest first).
type commitHeap []*Commit

func (h commitHeap) Len() int { return len(h) }

func (h commitHeap) Less(i, j int) bool {
	return h[i].Committer.Timestamp > h[j].Committer.Timestamp
}

func (h commitHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *commitHeap) Push(x any) {
	*h = append(*h, x.(*Commit)) //nolint:errcheck // heap only stores *Commit; assertion always succeeds
}

func (h *commitHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return item
}

// CommitLog walks from the given commit through parents in reverse
// chronological order, loading commits on demand. Parents missing from
// the object store (shallow clones, corruption) are skipped. If
// maxCount <= 0 all reachable commits are returned.
func (r *Repository) CommitLog(ctx context.Context, from Hash, maxCount int) ([]*Commit, error) {
	head, err := r.GetCommit(ctx, from)
	if err != nil {
		return nil, err
	}

	visited := map[Hash]bool{head.ID: true}
	h := &commitHeap{}
	heap.Init(h)
	heap.Push(h, head)

	var result []*Commit
	for h.Len() > 0 {
		if maxCount > 0 && len(result) >= maxCount {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		c := heap.Pop(h).(*Commit) //nolint:errcheck // heap only stores *Commit; assertion always succeeds
		result = append(result, c)

		for _, parentHash := range c.Parents {
			if visited[parentHash] {
				continue
			}
			visited[parentHash] = true
			parent, err := r.GetCommit(ctx, parentHash)
			if err != nil {
				if errors.Is(err, ErrObjectNotFound) {
					continue
				}
				return nil, err
			}
			heap.Push(h, parent)
		}
	}
	return result, nil
}

// findGitDirectory walks up from startPath to locate the .git directory.
func findGitDirectory(startPath string) (gitDir string, workDir string, err error) {
	absPath, err := filepath.Abs(startPath)
	if err != nil {
		return "", "", fmt.Errorf("failed to resolve path: %w", err)
	}

	if filepath.Base(absPath) == ".git" {
		info, err := os.Stat(absPath)
		if err == nil && info.IsDir() {
			return absPath, filepath.Dir(absPath), nil
		}
	}

	if isBareRepository(absPath) {
		return absPath, absPath, nil
	}

	currentPath := absPath
	for {
		gitPath := filepath.Join(currentPath, ".git")

		info, err := os.Stat(gitPath)
		if err == nil {
			if info.IsDir() {
				return gitPath, currentPath, nil
			}
			return resolveGitFile(gitPath, currentPath)
		}

		parentPath := filepath.Dir(currentPath)
		if parentPath == currentPath {
			return "", "", fmt.Errorf("not a git repository (or any parent up to mount point): %s", startPath)
		}
		currentPath = parentPath
	}
}

// resolveGitFile handles .git files (worktrees, submodules) with format
// "gitdir: <path>".
func resolveGitFile(gitFilePath, workDir string) (string, string, error) {
	content, err := os.ReadFile(gitFilePath) //nolint:gosec // G304: path found during repository discovery
	if err != nil {
		return "", "", fmt.Errorf("failed to read .git file: %w", err)
	}

	line := strings.TrimSpace(string(content))
	target, ok := strings.CutPrefix(line, "gitdir: ")
	if !ok {
		return "", "", fmt.Errorf("invalid .git file format: %s", gitFilePath)
	}

	gitDir := target
	if !filepath.IsAbs(gitDir) {
		gitDir = filepath.Join(filepath.Dir(gitFilePath), gitDir)
	}
	gitDir = filepath.Clean(gitDir)

	if _, err := os.Stat(gitDir); err != nil {
		return "", "", fmt.Errorf("gitdir points to non-existent directory: %s", gitDir)
	}

	return gitDir, workDir, nil
}

// validateGitDirectory checks that gitDir exists, is a directory, and
// contains the expected Git internals (objects, refs, HEAD).
func validateGitDirectory(gitDir string) error {
	info, err := os.Stat(gitDir)
	if err != nil {
		return fmt.Errorf("git directory does not exist: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("git path is not a directory: %s", gitDir)
	}

	for _, required := range []string{"objects", "refs", "HEAD"} {
		if _, err := os.Stat(filepath.Join(gitDir, required)); err != nil {
			return fmt.Errorf("invalid git repository, missing: %s", required)
		}
	}

	return nil
}

// isBareRepository checks whether path looks like a bare Git repository:
// a directory holding objects/, refs/, and HEAD with no .git subdirectory.
func isBareRepository(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if _, err := os.Stat(filepath.Join(path, ".git")); err == nil {
		return false
	}
	for _, required := range []string{"objects", "refs", "HEAD"} {
		if _, err := os.Stat(filepath.Join(path, required)); err != nil {
			return false
		}
	}
	return true
}
