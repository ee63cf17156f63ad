package gitcore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const (
	fixBlobHello  = Hash("1111111111111111111111111111111111111111")
	fixBlobScript = Hash("2222222222222222222222222222222222222222")
	fixSubtree    = Hash("3333333333333333333333333333333333333333")
	fixRootTree   = Hash("4444444444444444444444444444444444444444")
	fixGitlink    = Hash("5555555555555555555555555555555555555555")
	fixCommit     = Hash("6666666666666666666666666666666666666666")
)

// writeLooseObject stores a framed, compressed loose object under
// objects/<xx>/<rest>.
func writeLooseObject(t *testing.T, gitDir string, hash Hash, typeName string, body []byte) {
	t.Helper()
	writeLooseFixture(t, gitDir, hash, looseObjectBytes(t, typeName, body))
}

// buildObjectFixture populates gitDir with a commit → tree → blob graph:
//
//	hello.txt        (fixBlobHello)
//	scripts/util.sh  (fixBlobScript)
//	vendored         (gitlink, not descended)
func buildObjectFixture(t *testing.T, gitDir string) {
	t.Helper()

	writeLooseObject(t, gitDir, fixBlobHello, "blob", []byte("hello world\n"))
	writeLooseObject(t, gitDir, fixBlobScript, "blob", []byte("#!/bin/sh\n"))

	subtree := encodeTree(t, []TreeEntry{
		{Mode: "100755", ID: fixBlobScript, Name: "util.sh"},
	})
	writeLooseObject(t, gitDir, fixSubtree, "tree", subtree)

	rootTree := encodeTree(t, []TreeEntry{
		{Mode: "100644", ID: fixBlobHello, Name: "hello.txt"},
		{Mode: "40000", ID: fixSubtree, Name: "scripts"},
		{Mode: "160000", ID: fixGitlink, Name: "vendored"},
	})
	writeLooseObject(t, gitDir, fixRootTree, "tree", rootTree)

	commitBody := []byte("tree " + string(fixRootTree) + "\n" +
		"author A <a@x> 1700000000 +0000\n" +
		"committer C <c@x> 1700000001 +0000\n" +
		"\nAdd scripts\n")
	writeLooseObject(t, gitDir, fixCommit, "commit", commitBody)
}

func TestObjectReader_GetCommit(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	commit, err := r.GetCommit(context.Background(), fixCommit)
	if err != nil {
		t.Fatalf("GetCommit failed: %v", err)
	}
	if commit.Tree != fixRootTree || commit.Title != "Add scripts" {
		t.Errorf("commit: got %+v", commit)
	}
}

func TestObjectReader_GetTree(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	tree, err := r.GetTree(context.Background(), fixRootTree)
	if err != nil {
		t.Fatalf("GetTree failed: %v", err)
	}
	if len(tree.Entries) != 3 {
		t.Fatalf("entries: got %d, want 3", len(tree.Entries))
	}
	if tree.Entries[2].Kind != EntryGitlink {
		t.Errorf("vendored entry kind: got %s", tree.Entries[2].Kind)
	}
}

func TestObjectReader_GetBlob(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	blob, err := r.GetBlob(context.Background(), fixBlobHello)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(blob.Data) != "hello world\n" {
		t.Errorf("blob data: got %q", blob.Data)
	}

	// Asking for a commit as a blob is a type error, not a lookup miss.
	if _, err := r.GetBlob(context.Background(), fixCommit); err == nil {
		t.Error("GetBlob on a commit hash succeeded")
	}
}

func TestObjectReader_GetObjectInfo(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	typeName, size, err := r.GetObjectInfo(context.Background(), fixBlobHello)
	if err != nil {
		t.Fatalf("GetObjectInfo failed: %v", err)
	}
	if typeName != "blob" || size != len("hello world\n") {
		t.Errorf("got %s/%d", typeName, size)
	}
}

func TestObjectReader_NotFound(t *testing.T) {
	r := NewObjectReader(t.TempDir())
	_, err := r.GetCommit(context.Background(), Hash(strings.Repeat("ef", 20)))
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("got %v, want ErrObjectNotFound", err)
	}
}

func TestObjectReader_GetTreePaths(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	snap, err := r.GetTreePaths(context.Background(), fixRootTree)
	if err != nil {
		t.Fatalf("GetTreePaths failed: %v", err)
	}

	want := TreeSnapshot{
		"hello.txt":       fixBlobHello,
		"scripts/util.sh": fixBlobScript,
	}
	if diff := cmp.Diff(want, snap); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestObjectReader_StreamBlobLoose(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	rc, err := r.StreamBlob(context.Background(), fixBlobHello)
	if err != nil {
		t.Fatalf("StreamBlob failed: %v", err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if string(data) != "hello world\n" {
		t.Errorf("streamed data: got %q", data)
	}
}

func TestObjectReader_StreamBlobOnTreeFails(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	if _, err := r.StreamBlob(context.Background(), fixRootTree); err == nil {
		t.Error("StreamBlob on a tree succeeded")
	}
}

// installPack writes a synthetic pack and its index into objects/pack.
func installPack(t *testing.T, gitDir, name string, pack []byte, entries []idxEntry) {
	t.Helper()
	packDir := filepath.Join(gitDir, "objects", "pack")
	if err := os.MkdirAll(packDir, 0o755); err != nil {
		t.Fatalf("failed to create pack dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(packDir, name+".pack"), pack, 0o644); err != nil {
		t.Fatalf("failed to write pack: %v", err)
	}
	if err := os.WriteFile(filepath.Join(packDir, name+".idx"), buildIndexV2(entries, nil), 0o644); err != nil {
		t.Fatalf("failed to write index: %v", err)
	}
}

func TestObjectReader_PackedBlob(t *testing.T) {
	gitDir := t.TempDir()
	packedBlob := Hash(strings.Repeat("77", 20))

	b := newPackBuilder()
	offset := b.addObject(t, packObjectBlob, []byte("packed blob data"))
	installPack(t, gitDir, "pack-fixture", b.buf.Bytes(), []idxEntry{
		{hashFromHex(string(packedBlob)), uint32(offset)},
	})

	r := NewObjectReader(gitDir)
	blob, err := r.GetBlob(context.Background(), packedBlob)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(blob.Data) != "packed blob data" {
		t.Errorf("blob data: got %q", blob.Data)
	}

	// Packed blobs stream as a single chunk over the resolved buffer.
	rc, err := r.StreamBlob(context.Background(), packedBlob)
	if err != nil {
		t.Fatalf("StreamBlob failed: %v", err)
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		t.Fatalf("reading stream failed: %v", err)
	}
	if !bytes.Equal(data, blob.Data) {
		t.Errorf("streamed data: got %q", data)
	}
}

func TestObjectReader_RefDeltaAcrossNamespaces(t *testing.T) {
	// The delta lives in a pack; its base is a loose object.
	gitDir := t.TempDir()
	baseHash := Hash(strings.Repeat("88", 20))
	deltaHash := Hash(strings.Repeat("99", 20))

	writeLooseObject(t, gitDir, baseHash, "blob", []byte("Hello, world!"))

	b := newPackBuilder()
	offset := b.addRefDelta(t, helloDelta, baseHash)
	installPack(t, gitDir, "pack-delta", b.buf.Bytes(), []idxEntry{
		{hashFromHex(string(deltaHash)), uint32(offset)},
	})

	r := NewObjectReader(gitDir)
	blob, err := r.GetBlob(context.Background(), deltaHash)
	if err != nil {
		t.Fatalf("GetBlob failed: %v", err)
	}
	if string(blob.Data) != "Hello, friends!" {
		t.Errorf("resolved delta: got %q", blob.Data)
	}
}

func TestObjectReader_InvalidatePicksUpNewObjects(t *testing.T) {
	gitDir := t.TempDir()
	buildObjectFixture(t, gitDir)

	r := NewObjectReader(gitDir)
	if _, err := r.GetBlob(context.Background(), fixBlobHello); err != nil {
		t.Fatalf("initial read failed: %v", err)
	}

	late := Hash(strings.Repeat("aa", 20))
	writeLooseObject(t, gitDir, late, "blob", []byte("late arrival"))

	if _, err := r.GetBlob(context.Background(), late); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("late object visible before invalidation: %v", err)
	}

	r.Invalidate()
	blob, err := r.GetBlob(context.Background(), late)
	if err != nil {
		t.Fatalf("GetBlob after invalidation failed: %v", err)
	}
	if string(blob.Data) != "late arrival" {
		t.Errorf("got %q", blob.Data)
	}
}
