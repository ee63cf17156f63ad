package gitcore

import (
	"bytes"
	"fmt"
	"io"
)

// parseTreeBody parses the binary body of a tree object: a run of
// "<mode> <name>\0<20-byte hash>" records. Entries are emitted in file
// order; Path is left empty for the consumer to fill when flattening.
func parseTreeBody(body []byte, id Hash) (*Tree, error) {
	tree := &Tree{
		ID:      id,
		Entries: make([]TreeEntry, 0),
	}

	rest := body
	for len(rest) > 0 {
		sp := bytes.IndexByte(rest, ' ')
		if sp < 0 {
			return nil, fmt.Errorf("%w: truncated mode", ErrMalformedTree)
		}
		mode := string(rest[:sp])
		rest = rest[sp+1:]

		nul := bytes.IndexByte(rest, 0)
		if nul < 0 {
			return nil, fmt.Errorf("%w: truncated name", ErrMalformedTree)
		}
		name := string(rest[:nul])
		rest = rest[nul+1:]

		if len(rest) < 20 {
			return nil, fmt.Errorf("%w: truncated hash: %v", ErrMalformedTree, io.ErrUnexpectedEOF)
		}
		var hashBytes [20]byte
		copy(hashBytes[:], rest[:20])
		rest = rest[20:]

		hash, err := NewHashFromBytes(hashBytes)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrMalformedTree, err)
		}

		tree.Entries = append(tree.Entries, TreeEntry{
			Mode: mode,
			Kind: kindFromMode(mode),
			ID:   hash,
			Name: name,
		})
	}

	return tree, nil
}

// kindFromMode derives the entry kind from its octal mode string:
// 40000 = tree, 160000 = gitlink (submodule), 120000 = symlink,
// everything else is a blob.
func kindFromMode(mode string) TreeEntryKind {
	switch mode {
	case "40000", "040000":
		return EntryTree
	case "160000":
		return EntryGitlink
	case "120000":
		return EntrySymlink
	default:
		return EntryBlob
	}
}
