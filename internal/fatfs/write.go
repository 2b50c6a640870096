package fatfs

import (
	"encoding/binary"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// nextFreeDataOffset returns the first byte past every file's current data
// extent, the bump allocator's high-water mark (spec.md's FAT cache is a
// scratch buffer; there's no persistent free list to consult, so each write
// recomputes the mark from what's already recorded).
func (v *Volume) nextFreeDataOffset() (int64, error) {
	var high int64
	err := v.walk(func(ne *namedEntry) (bool, error) {
		if ne.stream == nil {
			return true, nil
		}
		end := int64(ne.stream.FirstCluster) + int64(ne.stream.DataLength)
		if end > high {
			high = end
		}
		return true, nil
	})
	if err != nil {
		return 0, err
	}
	return high, nil
}

// firstFreeRecordRun returns the index of the terminal end-of-directory
// marker when n records fit from there to the end of the directory region.
// Records freed by Remove before that marker are not reused.
func (v *Volume) firstFreeRecordRun(n int64) (int64, error) {
	var i int64 = 1
	for i < v.dirEntries {
		rec, err := v.readRecord(i)
		if err != nil {
			return 0, err
		}
		if rec.typ.IsEndOfDirectory() {
			if i+n > v.dirEntries {
				return 0, errNoDirectorySpace
			}
			return i, nil
		}
		i++
	}
	return 0, errNoDirectorySpace
}

var errNoDirectorySpace = log.Errorf("directory region has no room for a new entry")

func packRecord(v interface{}) ([]byte, error) {
	raw, err := restruct.Pack(binary.LittleEndian, v)
	if err != nil {
		return nil, log.Wrap(err)
	}
	if len(raw) != entrySize {
		return nil, log.Errorf("packed record was %d bytes, expected %d", len(raw), entrySize)
	}
	return raw, nil
}

// WriteFile creates (or overwrites) path with data, allocating fresh space
// in the bump-allocated data region and directory slots for the File,
// StreamExtension, and FileName record run (spec.md fat_write action).
func (v *Volume) WriteFile(path string, data []byte) error {
	if existing, err := v.find(path); err != nil {
		return log.Wrap(err)
	} else if existing != nil {
		if err := v.Remove(path); err != nil {
			return log.Wrap(err)
		}
	}

	nameChunks := utf16NameChunks(normalizePath(path))
	recordsNeeded := int64(2 + len(nameChunks))

	start, err := v.firstFreeRecordRun(recordsNeeded)
	if err != nil {
		return log.Wrap(err)
	}

	dataOffset, err := v.nextFreeDataOffset()
	if err != nil {
		return log.Wrap(err)
	}
	if dataOffset+int64(len(data)) > v.dataSize {
		return log.Errorf("fat data region is full: need %d more bytes", int64(len(data))-(v.dataSize-dataOffset))
	}

	now := NewFatTimestamp(time.Now())

	fde := &fileDirectoryEntry{
		EntryType:         entryTypeFile,
		SecondaryCount:    uint8(1 + len(nameChunks)),
		FileAttributes:    AttrArchive,
		CreateTimestamp:   now,
		ModifiedTimestamp: now,
		AccessedTimestamp: now,
	}
	fdeRaw, err := packRecord(fde)
	if err != nil {
		return err
	}
	if err := v.writeRecord(start, fdeRaw); err != nil {
		return log.Wrap(err)
	}

	sede := &streamExtensionDirectoryEntry{
		EntryType:       entryTypeStreamExtension,
		NameLength:      uint8(len(normalizePath(path))),
		ValidDataLength: uint64(len(data)),
		FirstCluster:    uint32(dataOffset),
		DataLength:      uint64(len(data)),
	}
	sedeRaw, err := packRecord(sede)
	if err != nil {
		return err
	}
	if err := v.writeRecord(start+1, sedeRaw); err != nil {
		return log.Wrap(err)
	}

	for i, chunk := range nameChunks {
		fnde := &fileNameDirectoryEntry{EntryType: entryTypeFileName}
		for j, u := range chunk {
			fnde.FileName[j*2] = byte(u)
			fnde.FileName[j*2+1] = byte(u >> 8)
		}
		raw, err := packRecord(fnde)
		if err != nil {
			return err
		}
		if err := v.writeRecord(start+2+int64(i), raw); err != nil {
			return log.Wrap(err)
		}
	}

	if _, err := v.rw.WriteAt(data, v.dataOffset+dataOffset); err != nil {
		return log.Wrap(err)
	}

	return nil
}

// Remove deletes path by clearing its directory records' in-use bit, the
// same "leave the type code, clear bit 0x80" convention exFAT uses for
// unused-entry markers rather than compacting the directory.
func (v *Volume) Remove(path string) error {
	ne, err := v.find(path)
	if err != nil {
		return log.Wrap(err)
	}
	if ne == nil {
		return log.Errorf("no such file: %s", path)
	}

	indices := append([]int64{ne.fileIndex, ne.streamIndex}, ne.nameIndices...)
	for _, idx := range indices {
		if idx < 0 {
			continue
		}
		rec, err := v.readRecord(idx)
		if err != nil {
			return err
		}

		typeByte := make([]byte, 1)
		typeByte[0] = byte(rec.typ) &^ 0x80
		if _, err := v.rw.WriteAt(typeByte, v.dirOffset+idx*entrySize); err != nil {
			return log.Wrap(err)
		}
	}

	return nil
}

// SetAttr replaces path's File directory entry attribute bits (spec.md
// fat_attrib action).
func (v *Volume) SetAttr(path string, attrs FileAttributes) error {
	ne, err := v.find(path)
	if err != nil {
		return log.Wrap(err)
	}
	if ne == nil {
		return log.Errorf("no such file: %s", path)
	}

	ne.file.FileAttributes = attrs
	raw, err := packRecord(ne.file)
	if err != nil {
		return err
	}
	return v.writeRecord(ne.fileIndex, raw)
}

// SetLabel overwrites the volume's label record (spec.md fat_setlabel
// action). label is truncated to 15 UTF-16 code units.
func (v *Volume) SetLabel(label string) error {
	units := make([]uint16, 0, len(label))
	for _, r := range label {
		if len(units) == 15 {
			break
		}
		if r > 0xffff {
			r = '?'
		}
		units = append(units, uint16(r))
	}

	vlde := &volumeLabelDirectoryEntry{
		EntryType:      entryTypeVolumeLabel,
		CharacterCount: uint8(len(units)),
	}
	for i, u := range units {
		vlde.VolumeLabel[i*2] = byte(u)
		vlde.VolumeLabel[i*2+1] = byte(u >> 8)
	}

	raw, err := packRecord(vlde)
	if err != nil {
		return err
	}
	return v.writeRecord(0, raw)
}

// Label returns the volume's current label.
func (v *Volume) Label() (string, error) {
	rec, err := v.readRecord(0)
	if err != nil {
		return "", log.Wrap(err)
	}
	if rec.label == nil {
		return "", nil
	}
	return decodeUtf16Name(rec.label.VolumeLabel, int(rec.label.CharacterCount)), nil
}
