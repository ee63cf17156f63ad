package gitcore

import (
	"bytes"
	"fmt"
	"io"
)

// Pack object types as defined in the Git pack format specification.
// The plain types share numeric values with ObjectType.
const (
	packObjectCommit      byte = 1
	packObjectTree        byte = 2
	packObjectBlob        byte = 3
	packObjectTag         byte = 4
	packObjectOffsetDelta byte = 6
	packObjectRefDelta    byte = 7
)

// DefaultMaxDeltaDepth bounds how many delta hops a single object
// reconstruction may chase before failing with ErrDeltaChainTooDeep.
const DefaultMaxDeltaDepth = 50

// baseResolver retrieves raw object data and type by hash, used for
// resolving REF_DELTA bases that may live outside the current pack.
// depth carries the chain position so the chase limit spans packs.
type baseResolver func(h Hash, depth int) ([]byte, ObjectType, error)

// readPackObjectAt reads one object from a pack file, resolving delta
// chains as needed. visited holds every offset already touched in this
// chase; revisiting one means the OFS_DELTA links form a cycle.
func readPackObjectAt(rs io.ReadSeeker, offset int64, depth, maxDepth int, visited map[int64]bool, resolve baseResolver) ([]byte, ObjectType, error) {
	if depth > maxDepth {
		return nil, NoneObject, fmt.Errorf("%w: depth %d exceeds limit %d", ErrDeltaChainTooDeep, depth, maxDepth)
	}
	if visited[offset] {
		return nil, NoneObject, fmt.Errorf("%w: delta base cycle at offset %d", ErrCorruptedData, offset)
	}
	visited[offset] = true

	if _, err := rs.Seek(offset, io.SeekStart); err != nil {
		return nil, NoneObject, fmt.Errorf("failed to seek to object at %d: %w", offset, err)
	}

	objType, size, err := readPackObjectHeader(rs)
	if err != nil {
		return nil, NoneObject, err
	}

	switch objType {
	case packObjectCommit, packObjectTree, packObjectBlob, packObjectTag:
		data, err := readCompressedObject(rs, size)
		if err != nil {
			return nil, NoneObject, err
		}
		return data, ObjectType(objType), nil

	case packObjectOffsetDelta:
		negOffset, err := readOffsetDeltaDistance(rs)
		if err != nil {
			return nil, NoneObject, err
		}
		deltaData, err := readCompressedObject(rs, size)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to read offset delta data: %w", err)
		}

		basePos := offset - negOffset
		if basePos < 0 {
			return nil, NoneObject, fmt.Errorf("%w: delta base offset %d before pack start", ErrCorruptedData, basePos)
		}
		baseData, baseType, err := readPackObjectAt(rs, basePos, depth+1, maxDepth, visited, resolve)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to read base object at %d: %w", basePos, err)
		}

		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to apply offset delta: %w", err)
		}
		return result, baseType, nil

	case packObjectRefDelta:
		var baseHashBytes [20]byte
		if _, err := io.ReadFull(rs, baseHashBytes[:]); err != nil {
			return nil, NoneObject, fmt.Errorf("failed to read base hash: %w", err)
		}
		baseHash, err := NewHashFromBytes(baseHashBytes)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("invalid base hash: %w", err)
		}
		deltaData, err := readCompressedObject(rs, size)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to read ref delta data: %w", err)
		}

		baseData, baseType, err := resolve(baseHash, depth+1)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to read base object %s: %w", baseHash.Short(), err)
		}

		result, err := applyDelta(baseData, deltaData)
		if err != nil {
			return nil, NoneObject, fmt.Errorf("failed to apply ref delta: %w", err)
		}
		return result, baseType, nil

	default:
		return nil, NoneObject, fmt.Errorf("%w: pack object type %d", ErrUnsupportedObjectType, objType)
	}
}

// readPackObjectHeader reads the variable-length encoded type and size
// that open every pack object record.
func readPackObjectHeader(r io.Reader) (objectType byte, size int64, err error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, 0, err
	}

	objectType = (b[0] >> 4) & 0x07
	size = int64(b[0] & 0x0F)
	shift := 4

	for b[0]&0x80 != 0 {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, 0, err
		}
		size |= int64(b[0]&0x7F) << shift
		shift += 7
	}

	return objectType, size, nil
}

// readOffsetDeltaDistance decodes the backwards distance that precedes an
// OFS_DELTA's compressed payload. Note the +1 per continuation byte: the
// encoding has no redundant forms.
func readOffsetDeltaDistance(r io.Reader) (int64, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	offset := int64(b[0] & 0x7F)
	for b[0]&0x80 != 0 {
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, err
		}
		offset = ((offset + 1) << 7) | int64(b[0]&0x7F)
	}
	return offset, nil
}

// readCompressedObject inflates a pack object payload and checks it
// against the size declared in the object header.
func readCompressedObject(r io.Reader, expectedSize int64) ([]byte, error) {
	content, err := readCompressedData(r)
	if err != nil {
		return nil, fmt.Errorf("invalid compressed data: %w", err)
	}
	if int64(len(content)) != expectedSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrCorruptedData, expectedSize, len(content))
	}
	return content, nil
}

// applyDelta applies Git pack delta instructions to reconstruct an object
// from its base.
// See: https://git-scm.com/docs/pack-format#_deltified_representation
func applyDelta(base, delta []byte) ([]byte, error) {
	src := bytes.NewReader(delta)

	srcSize, err := readVarInt(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeltaHeader, err)
	}
	if srcSize > int64(len(base)) {
		return nil, fmt.Errorf("%w: source size %d exceeds base length %d", ErrInvalidDeltaHeader, srcSize, len(base))
	}

	targetSize, err := readVarInt(src)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDeltaHeader, err)
	}

	result := make([]byte, 0, targetSize)

	for {
		cmd, err := src.ReadByte()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		switch {
		case cmd&0x80 != 0:
			// Copy from base. The low 7 bits select which of 4 offset
			// bytes and 3 size bytes follow, each little-endian.
			var offset, size int64

			for i := 0; i < 4; i++ {
				if cmd&(0x01<<i) != 0 {
					b, err := src.ReadByte()
					if err != nil {
						return nil, fmt.Errorf("%w: truncated copy offset", ErrDeltaOutOfBounds)
					}
					offset |= int64(b) << (8 * i)
				}
			}
			for i := 0; i < 3; i++ {
				if cmd&(0x10<<i) != 0 {
					b, err := src.ReadByte()
					if err != nil {
						return nil, fmt.Errorf("%w: truncated copy size", ErrDeltaOutOfBounds)
					}
					size |= int64(b) << (8 * i)
				}
			}

			// "Size zero is automatically converted to 0x10000."
			if size == 0 {
				size = 0x10000
			}
			if offset+size > int64(len(base)) {
				return nil, fmt.Errorf("%w: copy of [%d..%d) exceeds base size %d", ErrDeltaOutOfBounds, offset, offset+size, len(base))
			}
			result = append(result, base[offset:offset+size]...)

		case cmd != 0:
			// Insert the next cmd bytes of the delta stream verbatim.
			n := int(cmd & 0x7F)
			data := make([]byte, n)
			if _, err := io.ReadFull(src, data); err != nil {
				return nil, fmt.Errorf("%w: insert of %d bytes past end of delta", ErrDeltaOutOfBounds, n)
			}
			result = append(result, data...)

		default:
			return nil, fmt.Errorf("%w: opcode 0 is illegal", ErrInvalidDeltaHeader)
		}
	}

	if int64(len(result)) != targetSize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrDeltaSizeMismatch, targetSize, len(result))
	}

	return result, nil
}

// readVarInt decodes an unsigned little-endian base-128 varint.
func readVarInt(src *bytes.Reader) (int64, error) {
	var result int64
	var shift uint

	for {
		b, err := src.ReadByte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			break
		}
	}

	return result, nil
}
