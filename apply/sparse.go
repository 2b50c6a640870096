package apply

import (
	"io"
)

// blockSource pulls the next raw (already-decompressed) block out of the
// archive entry currently being streamed. It is the Go analog of libarchive's
// archive_read_data_block: each call returns a view that stays valid only
// until the next call (spec.md Design Note 9, "borrowed view").
type blockSource struct {
	r   io.Reader
	buf []byte
}

// newBlockSource wraps an archive entry's decompressing reader.
func newBlockSource(r io.Reader) *blockSource {
	return &blockSource{r: r, buf: make([]byte, 64*1024)}
}

// next returns the next block, or io.EOF once the entry is exhausted.
func (s *blockSource) next() ([]byte, error) {
	for {
		n, err := s.r.Read(s.buf)
		if n > 0 {
			return s.buf[:n], nil
		}
		if err != nil {
			if err == io.EOF {
				return nil, io.EOF
			}
			return nil, err
		}
	}
}

// SparseReader converts a concatenated data stream back into (offset,
// buffer) chunks separated by holes, driven by a resource's sparse map
// (spec.md §3, §4.A). This is a direct, field-for-field port of
// fwup_apply.c's read_callback: mapIndex <-> sparse_map_ix, inSegmentOffset
// <-> sparse_block_offset, actualOffset <-> actual_offset, leftover <->
// sparse_leftover(_len).
type SparseReader struct {
	source *blockSource

	sparseMap []int64

	mapIndex        int
	inSegmentOffset int64
	actualOffset    int64
	leftover        []byte
}

// NewSparseReader builds a SparseReader for one resource's sparse map and
// archive entry reader, handling the leading-hole initialization edge case
// from spec.md §3 ("Initialization edge case") including the deliberately
// preserved single-zero-entry EOF quirk from spec.md §9.
func NewSparseReader(sparseMap []int64, entryReader io.Reader) (*SparseReader, error) {
	if len(sparseMap) == 0 {
		return nil, errorf(ErrSparseMapInvalid, "sparse map must have at least one entry")
	}

	sr := &SparseReader{
		source:    newBlockSource(entryReader),
		sparseMap: sparseMap,
	}

	if sparseMap[0] == 0 {
		if len(sparseMap) > 2 {
			// Leading hole: skip straight to the offset of the data that
			// follows it.
			sr.mapIndex = 2
			sr.actualOffset = sparseMap[1]
		} else {
			// A zero-length data segment with no further data segment.
			// spec.md §9 Open Question: this is treated as EOF without any
			// emitted data, which the original author flags as possibly a
			// bug. We preserve that behavior exactly rather than guess at
			// the intended fix.
			sr.mapIndex = len(sparseMap)
		}
	}

	return sr, nil
}

// NextChunk returns the next (buffer, length, logicalOffset) triple. A
// length of 0 with a nil buffer signals end-of-resource (spec.md §4.A).
// Successive calls are monotonic and non-overlapping in logicalOffset.
func (sr *SparseReader) NextChunk() (buffer []byte, length int, logicalOffset int64, err error) {
	if sr.mapIndex == len(sr.sparseMap) {
		return nil, 0, 0, nil
	}

	segLen := sr.sparseMap[sr.mapIndex]
	remainingInSegment := segLen - sr.inSegmentOffset

	if len(sr.leftover) > 0 {
		n := int64(len(sr.leftover))
		if n > remainingInSegment {
			n = remainingInSegment
		}

		buffer = sr.leftover[:n]
		logicalOffset = sr.actualOffset

		sr.leftover = sr.leftover[n:]
		sr.actualOffset += n
		sr.inSegmentOffset += n

		if sr.inSegmentOffset == segLen {
			sr.advanceOverHole()
		}

		return buffer, int(n), logicalOffset, nil
	}

	raw, err := sr.source.next()
	if err == io.EOF {
		return nil, 0, 0, nil
	} else if err != nil {
		return nil, 0, 0, newError(ErrArchiveReadFailed, err)
	}

	logicalOffset = sr.actualOffset

	rawLen := int64(len(raw))
	if remainingInSegment > rawLen {
		// The whole block fits within the current data segment.
		buffer = raw
		sr.actualOffset += rawLen
		sr.inSegmentOffset += rawLen
		return buffer, len(buffer), logicalOffset, nil
	}

	// The block crosses the data-segment boundary: emit the contiguous
	// part and hold the rest as leftover for the next call.
	buffer = raw[:remainingInSegment]
	sr.leftover = raw[remainingInSegment:]
	sr.actualOffset += remainingInSegment
	sr.inSegmentOffset = segLen

	sr.advanceOverHole()

	return buffer, len(buffer), logicalOffset, nil
}

// advanceOverHole skips mapIndex past the hole that follows a just-completed
// data segment, unless that was the last segment in the map.
func (sr *SparseReader) advanceOverHole() {
	sr.mapIndex++
	sr.inSegmentOffset = 0

	if sr.mapIndex != len(sr.sparseMap) {
		sr.actualOffset += sr.sparseMap[sr.mapIndex]
		sr.mapIndex++
	}
}

// ValidateSparseMap checks the invariants from spec.md §3/§8: the sum of
// data-segment (even-indexed) lengths must equal payloadSize, and the sum of
// all segment lengths must equal logicalSize. A map of length 1 denotes a
// fully dense resource.
func ValidateSparseMap(sparseMap []int64, payloadSize, logicalSize int64) error {
	if len(sparseMap) == 0 {
		return errorf(ErrSparseMapInvalid, "sparse map must not be empty")
	}

	var dataSum, totalSum int64
	for i, v := range sparseMap {
		if v < 0 {
			return errorf(ErrSparseMapInvalid, "sparse map entry %d is negative", i)
		}
		totalSum += v
		if i%2 == 0 {
			dataSum += v
		}
	}

	if dataSum != payloadSize {
		return errorf(ErrSparseMapInvalid, "sparse map data length %d does not match archive payload size %d", dataSum, payloadSize)
	}
	if totalSum != logicalSize {
		return errorf(ErrSparseMapInvalid, "sparse map total length %d does not match resource logical size %d", totalSum, logicalSize)
	}

	return nil
}
