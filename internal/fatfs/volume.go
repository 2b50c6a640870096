package fatfs

import (
	"io"
	"strings"

	"github.com/dsoprea/go-logging"
)

// ReaderWriterAt is the collaborator contract a Volume binds against: a
// fixed-size, partition-relative random-access region. apply.FatCache
// satisfies this directly.
type ReaderWriterAt interface {
	io.ReaderAt
	io.WriterAt
}

// Volume is a single flat directory region plus a bump-allocated data area,
// both carved out of the bytes a FatCache keeps buffered for one bound
// partition offset (spec.md §3, "FAT cache state"). Record 0 of the
// directory region is reserved for the volume label.
type Volume struct {
	rw ReaderWriterAt

	dirOffset  int64
	dirEntries int64

	dataOffset int64
	dataSize   int64
}

// NewVolume describes the fixed layout a Volume reads and writes within rw:
// dirEntries 32-byte directory records starting at dirOffset, followed by a
// dataSize-byte bump-allocated region starting at dataOffset.
func NewVolume(rw ReaderWriterAt, dirOffset int64, dirEntries int64, dataOffset, dataSize int64) *Volume {
	return &Volume{
		rw:         rw,
		dirOffset:  dirOffset,
		dirEntries: dirEntries,
		dataOffset: dataOffset,
		dataSize:   dataSize,
	}
}

// readRecord reads and decodes the directory record at the given index.
func (v *Volume) readRecord(index int64) (*record, error) {
	raw := make([]byte, entrySize)
	offset := v.dirOffset + index*entrySize
	if _, err := v.rw.ReadAt(raw, offset); err != nil {
		return nil, log.Wrap(err)
	}
	return decodeRecord(offset, raw)
}

func (v *Volume) writeRecord(index int64, raw []byte) error {
	offset := v.dirOffset + index*entrySize
	_, err := v.rw.WriteAt(raw, offset)
	return err
}

// namedEntry is one fully-resolved file: its primary record, its stream
// extension, and its reconstituted name.
type namedEntry struct {
	fileIndex   int64
	streamIndex int64
	nameIndices []int64
	file        *fileDirectoryEntry
	stream      *streamExtensionDirectoryEntry
	name        string
}

// walk enumerates every file in the directory, invoking cb for each one.
// Enumeration stops at the first end-of-directory marker or once dirEntries
// records have been scanned.
func (v *Volume) walk(cb func(ne *namedEntry) (doContinue bool, err error)) error {
	var i int64 = 1 // record 0 is reserved for the volume label
	for i < v.dirEntries {
		rec, err := v.readRecord(i)
		if err != nil {
			return err
		}

		if rec.typ.IsEndOfDirectory() {
			return nil
		}

		if rec.file == nil {
			i++
			continue
		}

		fileIndex := i
		fde := rec.file
		i++

		var sede *streamExtensionDirectoryEntry
		streamIndex := int64(-1)
		if i < v.dirEntries {
			streamRec, err := v.readRecord(i)
			if err != nil {
				return err
			}
			if streamRec.stream != nil {
				sede = streamRec.stream
				streamIndex = i
				i++
			}
		}

		var nameIndices []int64
		var nameBuilder strings.Builder
		for sede != nil && i < v.dirEntries {
			nameRec, err := v.readRecord(i)
			if err != nil {
				return err
			}
			if nameRec.name == nil {
				break
			}
			nameIndices = append(nameIndices, i)
			remaining := int(sede.NameLength) - nameBuilder.Len()
			count := 15
			if remaining < count {
				count = remaining
			}
			nameBuilder.WriteString(decodeUtf16Name(nameRec.name.FileName, count))
			i++
			if nameBuilder.Len() >= int(sede.NameLength) {
				break
			}
		}

		ne := &namedEntry{
			fileIndex:   fileIndex,
			streamIndex: streamIndex,
			nameIndices: nameIndices,
			file:        fde,
			stream:      sede,
			name:        nameBuilder.String(),
		}

		doContinue, err := cb(ne)
		if err != nil {
			return err
		}
		if !doContinue {
			return nil
		}
	}

	return nil
}

func normalizePath(path string) string {
	return strings.TrimPrefix(path, "/")
}

// find locates the named file, if present.
func (v *Volume) find(path string) (*namedEntry, error) {
	target := normalizePath(path)

	var found *namedEntry
	err := v.walk(func(ne *namedEntry) (bool, error) {
		if ne.name == target {
			found = ne
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}

	return found, nil
}

// Exists reports whether path names a live file in this volume (spec.md
// §4.C fat-file-exists requirement).
func (v *Volume) Exists(path string) bool {
	ne, err := v.find(path)
	if err != nil {
		return false
	}
	return ne != nil
}

// ReadFile returns the full contents of path's data extent.
func (v *Volume) ReadFile(path string) ([]byte, error) {
	ne, err := v.find(path)
	if err != nil {
		return nil, log.Wrap(err)
	}
	if ne == nil {
		return nil, log.Errorf("no such file: %s", path)
	}
	if ne.stream == nil {
		return nil, log.Errorf("file %s has no stream extension record", path)
	}

	buf := make([]byte, ne.stream.DataLength)
	if _, err := v.rw.ReadAt(buf, v.dataOffset+int64(ne.stream.FirstCluster)); err != nil {
		return nil, log.Wrap(err)
	}
	return buf, nil
}
