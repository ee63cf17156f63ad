package gitcore

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
)

// Pack index v2 magic number bytes: "\377tOc".
// See: https://git-scm.com/docs/pack-format#_version_2_pack_idx_files_support_packs_larger_than_4_gib_and
var packIndexV2Magic = [4]byte{0xFF, 0x74, 0x4F, 0x63}

// Pack index v2 large offset constants. A 32-bit offset with the high bit
// set indicates the actual offset lives in the 64-bit large offset table.
const (
	packIndexLargeOffsetFlag uint32 = 0x80000000
	packIndexLargeOffsetMask uint32 = 0x7FFFFFFF
)

// PackIndex maps object hashes to their byte offsets within one pack file.
// Lookup is O(1) on an in-memory map built at load time; the on-disk
// fanout table is retained for diagnostics.
type PackIndex struct {
	idxPath    string
	packPath   string
	version    uint32
	numObjects uint32
	fanout     [256]uint32
	locations  map[Hash]PackObjectLocation
}

// LoadPackIndex reads an index-v2 file and builds the hash-to-offset
// mapping for the pack at packPath. It fails with ErrUnsupportedPackVersion
// when the magic or version is not v2, and with ErrCorruptedData when the
// file is shorter than its fanout implies or a large-offset reference is
// out of range.
func LoadPackIndex(idxPath, packPath string) (*PackIndex, error) {
	//nolint:gosec // G304: Pack index paths come from the repository's pack directory.
	file, err := os.Open(idxPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := file.Close(); cerr != nil {
			log.Printf("failed to close pack index file: %v", cerr)
		}
	}()

	idx, err := parsePackIndexV2(file, packPath)
	if err != nil {
		return nil, fmt.Errorf("pack index %s: %w", idxPath, err)
	}
	idx.idxPath = idxPath
	return idx, nil
}

// parsePackIndexV2 reads the full index-v2 layout from r. Short reads map
// to ErrCorruptedData: the fanout promised more entries than the file holds.
func parsePackIndexV2(r io.Reader, packPath string) (*PackIndex, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, corrupted("reading magic", err)
	}
	if magic != packIndexV2Magic {
		return nil, fmt.Errorf("%w: bad magic %x", ErrUnsupportedPackVersion, magic)
	}

	var version uint32
	if err := binary.Read(r, binary.BigEndian, &version); err != nil {
		return nil, corrupted("reading version", err)
	}
	if version != 2 {
		return nil, fmt.Errorf("%w: version %d", ErrUnsupportedPackVersion, version)
	}

	idx := &PackIndex{
		packPath: packPath,
		version:  version,
	}
	for i := 0; i < 256; i++ {
		if err := binary.Read(r, binary.BigEndian, &idx.fanout[i]); err != nil {
			return nil, corrupted(fmt.Sprintf("reading fanout[%d]", i), err)
		}
	}
	idx.numObjects = idx.fanout[255]

	hashes := make([]Hash, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		var name [20]byte
		if _, err := io.ReadFull(r, name[:]); err != nil {
			return nil, corrupted(fmt.Sprintf("reading object name %d", i), err)
		}
		h, err := NewHashFromBytes(name)
		if err != nil {
			return nil, err
		}
		hashes[i] = h
	}

	// CRC table: 4 bytes per object, not validated here.
	if _, err := io.CopyN(io.Discard, r, int64(idx.numObjects)*4); err != nil {
		return nil, corrupted("skipping CRCs", err)
	}

	offsets := make([]uint32, idx.numObjects)
	largeCount := 0
	for i := uint32(0); i < idx.numObjects; i++ {
		if err := binary.Read(r, binary.BigEndian, &offsets[i]); err != nil {
			return nil, corrupted(fmt.Sprintf("reading offset %d", i), err)
		}
		if offsets[i]&packIndexLargeOffsetFlag != 0 {
			largeCount++
		}
	}

	// The large offset table holds exactly one 8-byte entry per offset
	// with the high bit set; anything after it is the checksum trailer.
	large := make([]uint64, largeCount)
	for i := 0; i < largeCount; i++ {
		if err := binary.Read(r, binary.BigEndian, &large[i]); err != nil {
			return nil, corrupted(fmt.Sprintf("reading large offset %d", i), err)
		}
	}

	idx.locations = make(map[Hash]PackObjectLocation, idx.numObjects)
	for i := uint32(0); i < idx.numObjects; i++ {
		offset := int64(offsets[i])
		if offsets[i]&packIndexLargeOffsetFlag != 0 {
			largeIdx := offsets[i] & packIndexLargeOffsetMask
			if largeIdx >= uint32(largeCount) {
				return nil, fmt.Errorf("%w: large offset index %d out of range (table size %d)",
					ErrCorruptedData, largeIdx, largeCount)
			}
			// #nosec G115 -- pack offsets fit int64 by format definition.
			offset = int64(large[largeIdx])
		}
		idx.locations[hashes[i]] = PackObjectLocation{
			Hash:     hashes[i],
			Offset:   offset,
			PackPath: packPath,
		}
	}

	return idx, nil
}

// corrupted wraps a short-read error into the corruption taxonomy while
// keeping the underlying cause in the chain.
func corrupted(stage string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated while %s", ErrCorruptedData, stage)
	}
	return fmt.Errorf("%s: %w", stage, err)
}

// FindObject looks up the pack location of an object by its hash.
func (p *PackIndex) FindObject(h Hash) (PackObjectLocation, bool) {
	loc, found := p.locations[normalizeHash(h)]
	return loc, found
}

// AllHashes returns every hash indexed by this pack, in unspecified order.
func (p *PackIndex) AllHashes() []Hash {
	hashes := make([]Hash, 0, len(p.locations))
	for h := range p.locations {
		hashes = append(hashes, h)
	}
	return hashes
}

// Clear drops all hash mappings. The index is unusable afterwards until
// reloaded; the pack index manager calls this during invalidation.
func (p *PackIndex) Clear() {
	p.locations = make(map[Hash]PackObjectLocation)
}

// PackFile returns the path to the pack file associated with this index.
func (p *PackIndex) PackFile() string { return p.packPath }

// IndexFile returns the path of the .idx file this index was loaded from.
func (p *PackIndex) IndexFile() string { return p.idxPath }

// Version returns the pack index format version (always 2).
func (p *PackIndex) Version() uint32 { return p.version }

// NumObjects returns the number of objects recorded by the index.
func (p *PackIndex) NumObjects() uint32 { return p.numObjects }

// Fanout returns the 256-entry cumulative count table from the index header.
func (p *PackIndex) Fanout() [256]uint32 { return p.fanout }
