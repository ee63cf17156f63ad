package gitcore

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// refCacheTTL absorbs bursty reads: a full ref scan costs one directory
// walk plus a packed-refs parse, and callers (log views, watchers) tend
// to ask several times in quick succession.
const refCacheTTL = time.Second

// maxSymbolicRefDepth bounds "ref: " indirection so a cyclic symbolic
// ref cannot recurse forever.
const maxSymbolicRefDepth = 5

// RefReader produces the union of loose refs and packed refs, resolves
// HEAD, and peels annotated tags recorded in packed-refs. Results are
// cached for refCacheTTL; callers invalidate explicitly after any
// ref-mutating operation.
type RefReader struct {
	mu          sync.Mutex
	gitDir      string
	existsCheck ObjectExistsCheck

	cached   map[RefKind][]GitRef
	cachedAt time.Time
}

// NewRefReader creates a reader over gitDir. existsCheck is optional;
// when set, HEAD resolution verifies the target object is reachable.
func NewRefReader(gitDir string, existsCheck ObjectExistsCheck) *RefReader {
	return &RefReader{gitDir: gitDir, existsCheck: existsCheck}
}

// GetRefs returns all refs grouped by kind. Loose refs override packed
// refs of the same full path; the result never contains two refs with
// the same (kind, name).
func (r *RefReader) GetRefs(ctx context.Context) (map[RefKind][]GitRef, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.cached != nil && time.Since(r.cachedAt) < refCacheTTL {
		return copyRefs(r.cached), nil
	}

	refs, err := r.loadRefs(ctx)
	if err != nil {
		return nil, err
	}
	r.cached = refs
	r.cachedAt = time.Now()
	return copyRefs(refs), nil
}

// Invalidate drops the cache. The next GetRefs rescans the filesystem.
func (r *RefReader) Invalidate() {
	r.mu.Lock()
	r.cached = nil
	r.mu.Unlock()
}

// ResolveReference resolves a full ref path (e.g. "refs/heads/main") to
// a hash, reading the loose file first and falling back to a linear scan
// of packed-refs. Returns found=false if the ref does not exist.
func (r *RefReader) ResolveReference(ctx context.Context, refPath string) (Hash, bool) {
	return r.resolveReference(ctx, refPath, 0)
}

func (r *RefReader) resolveReference(ctx context.Context, refPath string, depth int) (Hash, bool) {
	if depth > maxSymbolicRefDepth {
		return "", false
	}
	if err := ctx.Err(); err != nil {
		return "", false
	}

	if content, err := os.ReadFile(filepath.Join(r.gitDir, filepath.FromSlash(refPath))); err == nil {
		line := firstLine(content)
		if target, ok := strings.CutPrefix(line, "ref: "); ok {
			return r.resolveReference(ctx, strings.TrimSpace(target), depth+1)
		}
		if hash, err := NewHash(line); err == nil {
			return hash, true
		}
		// An unparsable loose file does not shadow a packed ref.
	}

	packed, _, err := r.readPackedRefs()
	if err != nil {
		return "", false
	}
	hash, found := packed[refPath]
	return hash, found
}

// GetHEAD resolves HEAD to a commit hash. A symbolic HEAD follows its
// ref; a detached HEAD is the hash itself. When an existence check is
// configured, a target missing from the object store resolves to
// found=false rather than a dangling hash.
func (r *RefReader) GetHEAD(ctx context.Context) (Hash, bool, error) {
	content, err := os.ReadFile(filepath.Join(r.gitDir, "HEAD"))
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read HEAD: %w", err)
	}

	line := firstLine(content)

	var hash Hash
	if target, ok := strings.CutPrefix(line, "ref: "); ok {
		resolved, found := r.ResolveReference(ctx, strings.TrimSpace(target))
		if !found {
			// Unborn branch: HEAD names a ref that has no commits yet.
			return "", false, nil
		}
		hash = resolved
	} else {
		hash, err = NewHash(line)
		if err != nil {
			return "", false, fmt.Errorf("invalid HEAD: %w", err)
		}
	}

	if r.existsCheck != nil {
		exists, err := r.existsCheck(ctx, hash)
		if err != nil {
			return "", false, err
		}
		if !exists {
			return "", false, nil
		}
	}
	return hash, true, nil
}

// GetHEADBranch returns the short branch name iff HEAD is a symbolic ref
// into refs/heads; a detached HEAD returns found=false.
func (r *RefReader) GetHEADBranch(ctx context.Context) (string, bool) {
	if err := ctx.Err(); err != nil {
		return "", false
	}
	content, err := os.ReadFile(filepath.Join(r.gitDir, "HEAD"))
	if err != nil {
		return "", false
	}

	line := firstLine(content)
	target, ok := strings.CutPrefix(line, "ref: ")
	if !ok {
		return "", false
	}
	name, ok := strings.CutPrefix(strings.TrimSpace(target), "refs/heads/")
	if !ok {
		return "", false
	}
	return name, true
}

// loadRefs builds the merged ref set: packed refs first, loose refs
// overriding, annotated tags peeled, refs/stash appended.
func (r *RefReader) loadRefs(ctx context.Context) (map[RefKind][]GitRef, error) {
	packed, peeled, err := r.readPackedRefs()
	if err != nil {
		return nil, err
	}

	full := make(map[string]Hash, len(packed))
	for path, hash := range packed {
		full[path] = hash
	}

	loose, err := r.readLooseRefs(ctx)
	if err != nil {
		return nil, err
	}
	for path, hash := range loose {
		full[path] = hash
	}

	refs := make(map[RefKind][]GitRef)
	for path, hash := range full {
		kind, name, ok := classifyRefPath(path)
		if !ok {
			continue
		}
		if kind == RefTag {
			// The ^ line in packed-refs records the commit an annotated
			// tag peels to. It describes the packed tag object, so it
			// only applies when the packed entry is still the winner.
			if peeledHash, hasPeel := peeled[path]; hasPeel && packed[path] == hash {
				hash = peeledHash
			}
		}
		refs[kind] = append(refs[kind], GitRef{Name: name, Hash: hash, Kind: kind})
	}

	if stash, ok := r.readStashRef(); ok {
		refs[RefStash] = append(refs[RefStash], stash)
	}

	for kind := range refs {
		list := refs[kind]
		sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	}
	return refs, nil
}

// readLooseRefs walks refs/heads, refs/remotes, and refs/tags. Files
// whose first line is not a valid SHA are skipped silently: one invalid
// entry must never corrupt the whole read.
func (r *RefReader) readLooseRefs(ctx context.Context) (map[string]Hash, error) {
	loose := make(map[string]Hash)

	for _, sub := range []string{"refs/heads", "refs/remotes", "refs/tags"} {
		root := filepath.Join(r.gitDir, filepath.FromSlash(sub))
		if _, err := os.Stat(root); os.IsNotExist(err) {
			continue
		}

		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil //nolint:nilerr // skip unreadable entries
			}
			if info.IsDir() {
				return nil
			}
			if cerr := ctx.Err(); cerr != nil {
				return cerr
			}

			content, err := os.ReadFile(path)
			if err != nil {
				return nil //nolint:nilerr // skip unreadable files
			}
			hash, err := NewHash(firstLine(content))
			if err != nil {
				return nil //nolint:nilerr // skip files that do not hold a SHA
			}

			rel, err := filepath.Rel(r.gitDir, path)
			if err != nil {
				return err
			}
			loose[filepath.ToSlash(rel)] = hash
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", sub, err)
		}
	}

	return loose, nil
}

// readPackedRefs parses the packed-refs file into full-path-to-hash
// mappings. A "^<sha>" line records the peeled commit for the
// immediately preceding ref. Malformed lines are skipped.
func (r *RefReader) readPackedRefs() (refs, peeled map[string]Hash, err error) {
	refs = make(map[string]Hash)
	peeled = make(map[string]Hash)

	file, err := os.Open(filepath.Join(r.gitDir, "packed-refs"))
	if err != nil {
		if os.IsNotExist(err) {
			return refs, peeled, nil
		}
		return nil, nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			log.Printf("failed to close packed-refs file: %v", cerr)
		}
	}()

	var lastPath string
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if rest, ok := strings.CutPrefix(line, "^"); ok {
			if lastPath == "" {
				continue
			}
			if hash, err := NewHash(strings.TrimSpace(rest)); err == nil {
				peeled[lastPath] = hash
			}
			continue
		}

		parts := strings.Fields(line)
		if len(parts) != 2 {
			continue
		}
		hash, err := NewHash(parts[0])
		if err != nil {
			continue
		}
		refs[parts[1]] = hash
		lastPath = parts[1]
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, err
	}
	return refs, peeled, nil
}

// readStashRef surfaces the refs/stash tip as a stash-kind ref.
func (r *RefReader) readStashRef() (GitRef, bool) {
	content, err := os.ReadFile(filepath.Join(r.gitDir, "refs", "stash"))
	if err != nil {
		return GitRef{}, false
	}
	hash, err := NewHash(firstLine(content))
	if err != nil {
		return GitRef{}, false
	}
	return GitRef{Name: "stash", Hash: hash, Kind: RefStash}, true
}

// classifyRefPath maps a full ref path to its kind and emitted short
// name. Paths outside the three namespaces are ignored.
func classifyRefPath(path string) (RefKind, string, bool) {
	if name, ok := strings.CutPrefix(path, "refs/heads/"); ok {
		return RefLocalBranch, name, true
	}
	if name, ok := strings.CutPrefix(path, "refs/remotes/"); ok {
		return RefRemoteBranch, name, true
	}
	if name, ok := strings.CutPrefix(path, "refs/tags/"); ok {
		return RefTag, name, true
	}
	return 0, "", false
}

// copyRefs returns a shallow per-kind copy so callers cannot mutate the
// cache through the returned slices.
func copyRefs(src map[RefKind][]GitRef) map[RefKind][]GitRef {
	dst := make(map[RefKind][]GitRef, len(src))
	for kind, list := range src {
		cp := make([]GitRef, len(list))
		copy(cp, list)
		dst[kind] = cp
	}
	return dst
}
