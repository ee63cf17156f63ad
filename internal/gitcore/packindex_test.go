package gitcore

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
)

// writeUint32BE writes a uint32 in big-endian to the buffer.
func writeUint32BE(buf *bytes.Buffer, v uint32) {
	binary.Write(buf, binary.BigEndian, v)
}

// writeUint64BE writes a uint64 in big-endian to the buffer.
func writeUint64BE(buf *bytes.Buffer, v uint64) {
	binary.Write(buf, binary.BigEndian, v)
}

// hashFromHex returns a 20-byte array from a 40-char hex string.
func hashFromHex(s string) [20]byte {
	b, _ := hex.DecodeString(s)
	var h [20]byte
	copy(h[:], b)
	return h
}

// idxEntry pairs a hash with its encoded 32-bit offset field.
type idxEntry struct {
	hash   [20]byte
	offset uint32
}

// buildIndexV2 assembles a complete index-v2 file image: magic, version,
// fanout, sorted names, CRCs, offsets, large offset table, and a fake
// checksum trailer. Entries must be pre-sorted by hash.
func buildIndexV2(entries []idxEntry, largeOffsets []uint64) []byte {
	var buf bytes.Buffer
	buf.Write([]byte{0xFF, 0x74, 0x4F, 0x63})
	writeUint32BE(&buf, 2)

	var fanout [256]uint32
	for _, e := range entries {
		for i := int(e.hash[0]); i < 256; i++ {
			fanout[i]++
		}
	}
	for i := 0; i < 256; i++ {
		writeUint32BE(&buf, fanout[i])
	}

	for _, e := range entries {
		buf.Write(e.hash[:])
	}
	for range entries {
		writeUint32BE(&buf, 0xDEADBEEF) // CRCs are skipped by the reader
	}
	for _, e := range entries {
		writeUint32BE(&buf, e.offset)
	}
	for _, lo := range largeOffsets {
		writeUint64BE(&buf, lo)
	}

	// Pack checksum + idx checksum trailer; the reader ignores both.
	buf.Write(bytes.Repeat([]byte{0xAB}, 40))
	return buf.Bytes()
}

func writeTempIndex(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "pack-test.idx")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write index fixture: %v", err)
	}
	return path
}

func TestLoadPackIndex_ThreeObjectsWithLargeOffset(t *testing.T) {
	hashA := strings.Repeat("aa", 19) + "00"
	hashB := strings.Repeat("bb", 19) + "11"
	hashC := strings.Repeat("cc", 19) + "22"

	data := buildIndexV2([]idxEntry{
		{hashFromHex(hashA), 100},
		{hashFromHex(hashB), 0x80000000}, // large offset table index 0
		{hashFromHex(hashC), 300},
	}, []uint64{0x1_0000_0000})

	idx, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if err != nil {
		t.Fatalf("LoadPackIndex failed: %v", err)
	}

	if idx.Version() != 2 {
		t.Errorf("Version: got %d, want 2", idx.Version())
	}
	if idx.NumObjects() != 3 {
		t.Errorf("NumObjects: got %d, want 3", idx.NumObjects())
	}

	locA, ok := idx.FindObject(Hash(hashA))
	if !ok || locA.Offset != 100 {
		t.Errorf("offset for %s: got %d (found=%v), want 100", hashA[:8], locA.Offset, ok)
	}
	locB, ok := idx.FindObject(Hash(hashB))
	if !ok || locB.Offset != 0x1_0000_0000 {
		t.Errorf("offset for %s: got %d (found=%v), want 0x1_0000_0000", hashB[:8], locB.Offset, ok)
	}
	if locB.PackPath != "pack-test.pack" {
		t.Errorf("PackPath: got %q", locB.PackPath)
	}
	locC, ok := idx.FindObject(Hash(hashC))
	if !ok || locC.Offset != 300 {
		t.Errorf("offset for %s: got %d (found=%v), want 300", hashC[:8], locC.Offset, ok)
	}

	all := idx.AllHashes()
	sort.Slice(all, func(i, j int) bool { return all[i] < all[j] })
	want := []Hash{Hash(hashA), Hash(hashB), Hash(hashC)}
	if len(all) != 3 || all[0] != want[0] || all[1] != want[1] || all[2] != want[2] {
		t.Errorf("AllHashes: got %v, want %v", all, want)
	}
}

func TestLoadPackIndex_LookupIsCaseInsensitive(t *testing.T) {
	hashA := strings.Repeat("ab", 20)
	data := buildIndexV2([]idxEntry{{hashFromHex(hashA), 42}}, nil)

	idx, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if err != nil {
		t.Fatalf("LoadPackIndex failed: %v", err)
	}

	loc, ok := idx.FindObject(Hash(strings.ToUpper(hashA)))
	if !ok || loc.Offset != 42 {
		t.Errorf("uppercase lookup: got %d (found=%v), want 42", loc.Offset, ok)
	}
}

func TestLoadPackIndex_BadMagic(t *testing.T) {
	data := buildIndexV2([]idxEntry{{hashFromHex(strings.Repeat("aa", 20)), 1}}, nil)
	copy(data[:4], []byte{0x00, 0x01, 0x02, 0x03})

	_, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if !errors.Is(err, ErrUnsupportedPackVersion) {
		t.Errorf("got %v, want ErrUnsupportedPackVersion", err)
	}
}

func TestLoadPackIndex_BadVersion(t *testing.T) {
	data := buildIndexV2([]idxEntry{{hashFromHex(strings.Repeat("aa", 20)), 1}}, nil)
	binary.BigEndian.PutUint32(data[4:8], 3)

	_, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if !errors.Is(err, ErrUnsupportedPackVersion) {
		t.Errorf("got %v, want ErrUnsupportedPackVersion", err)
	}
}

func TestLoadPackIndex_TruncatedBeforeNames(t *testing.T) {
	data := buildIndexV2([]idxEntry{{hashFromHex(strings.Repeat("aa", 20)), 1}}, nil)
	// Cut inside the object name table; the fanout promises one entry.
	truncated := data[:8+256*4+10]

	_, err := LoadPackIndex(writeTempIndex(t, truncated), "pack-test.pack")
	if !errors.Is(err, ErrCorruptedData) {
		t.Errorf("got %v, want ErrCorruptedData", err)
	}
}

func TestLoadPackIndex_LargeOffsetOutOfRange(t *testing.T) {
	// Offset references large table index 5, but the table is empty.
	data := buildIndexV2([]idxEntry{{hashFromHex(strings.Repeat("aa", 20)), 0x80000005}}, nil)

	_, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if !errors.Is(err, ErrCorruptedData) {
		t.Errorf("got %v, want ErrCorruptedData", err)
	}
}

func TestPackIndex_Clear(t *testing.T) {
	hashA := strings.Repeat("aa", 20)
	data := buildIndexV2([]idxEntry{{hashFromHex(hashA), 7}}, nil)

	idx, err := LoadPackIndex(writeTempIndex(t, data), "pack-test.pack")
	if err != nil {
		t.Fatalf("LoadPackIndex failed: %v", err)
	}

	idx.Clear()
	if _, ok := idx.FindObject(Hash(hashA)); ok {
		t.Error("FindObject succeeded after Clear")
	}
	if len(idx.AllHashes()) != 0 {
		t.Error("AllHashes not empty after Clear")
	}
}
