package fatfs

import (
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/go-restruct/restruct"
)

// entrySize is the fixed width of a directory entry record, exFAT section
// 6.1.
const entrySize = 32

var defaultEncoding = binary.LittleEndian

// EntryType decomposes a directory entry's type byte (exFAT section 6.2.1).
type EntryType uint8

// IsEndOfDirectory reports the terminal record that ends a directory.
func (et EntryType) IsEndOfDirectory() bool { return et == 0 }

// IsInUse reports whether this is a live (not deleted) entry.
func (et EntryType) IsInUse() bool { return et&0x80 > 0 }

// IsSecondary reports whether this entry accompanies a preceding primary
// entry rather than starting a new record.
func (et EntryType) IsSecondary() bool { return et&0x40 > 0 }

const (
	entryTypeEndOfDirectory  EntryType = 0x00
	entryTypeFile            EntryType = 0x85
	entryTypeStreamExtension EntryType = 0xc0
	entryTypeFileName        EntryType = 0xc1
	entryTypeVolumeLabel     EntryType = 0x83
)

// FatTimestamp is the packed exFAT timestamp format (section 7.4.5-7).
type FatTimestamp uint32

func (ts FatTimestamp) second() int { return int(ts&31) * 2 }
func (ts FatTimestamp) minute() int { return int(ts&2016) >> 5 }
func (ts FatTimestamp) hour() int   { return int(ts&63488) >> 11 }
func (ts FatTimestamp) day() int    { return int(ts&2031616) >> 16 }
func (ts FatTimestamp) month() int  { return int(ts&31457280) >> 21 }
func (ts FatTimestamp) year() int   { return 1980 + int(ts&4261412864)>>25 }

// Time returns the UTC-assumed time.Time for this packed value.
func (ts FatTimestamp) Time() time.Time {
	return time.Date(ts.year(), time.Month(ts.month()), ts.day(), ts.hour(), ts.minute(), ts.second(), 0, time.UTC)
}

// NewFatTimestamp packs a time.Time into the exFAT format. Years before 1980
// or after 2107 saturate to the format's epoch (spec.md Design Note 9's
// FAT-epoch default of 1980-0-0 for undated creation times).
func NewFatTimestamp(t time.Time) FatTimestamp {
	year := t.Year() - 1980
	if year < 0 || year > 127 {
		return 0
	}
	return FatTimestamp(uint32(year)<<25 |
		uint32(t.Month())<<21 |
		uint32(t.Day())<<16 |
		uint32(t.Hour())<<11 |
		uint32(t.Minute())<<5 |
		uint32(t.Second()/2))
}

// FileAttributes decomposes the attribute bits carried by a File directory
// entry (exFAT section 7.4.4).
type FileAttributes uint16

const (
	AttrReadOnly  FileAttributes = 1 << 0
	AttrHidden    FileAttributes = 1 << 1
	AttrSystem    FileAttributes = 1 << 2
	AttrDirectory FileAttributes = 1 << 4
	AttrArchive   FileAttributes = 1 << 5
)

func (fa FileAttributes) IsDirectory() bool { return fa&AttrDirectory > 0 }

func (fa FileAttributes) String() string {
	return fmt.Sprintf("FileAttributes<RO=%v HIDDEN=%v SYSTEM=%v DIR=%v ARCHIVE=%v>",
		fa&AttrReadOnly > 0, fa&AttrHidden > 0, fa&AttrSystem > 0, fa.IsDirectory(), fa&AttrArchive > 0)
}

// fileDirectoryEntry is the on-disk primary File directory entry (exFAT
// section 7.4), trimmed to the fields this collaborator actually consults.
type fileDirectoryEntry struct {
	EntryType         EntryType
	SecondaryCount    uint8
	SetChecksum       uint16
	FileAttributes    FileAttributes
	Reserved1         uint16
	CreateTimestamp   FatTimestamp
	ModifiedTimestamp FatTimestamp
	AccessedTimestamp FatTimestamp
	Create10ms        uint8
	Modified10ms      uint8
	CreateUtcOffset   uint8
	ModifiedUtcOffset uint8
	AccessedUtcOffset uint8
	Reserved2         [7]byte
}

// streamExtensionDirectoryEntry is the secondary entry naming a file's data
// extent (exFAT section 7.6), trimmed similarly.
type streamExtensionDirectoryEntry struct {
	EntryType       EntryType
	SecondaryFlags  uint8
	Reserved1       [1]byte
	NameLength      uint8
	NameHash        uint16
	Reserved2       [2]byte
	ValidDataLength uint64
	Reserved3       [4]byte
	FirstCluster    uint32
	DataLength      uint64
}

// fileNameDirectoryEntry carries up to 15 UTF-16 characters of a file's name
// (exFAT section 7.7); long names span several of these in sequence.
type fileNameDirectoryEntry struct {
	EntryType      EntryType
	SecondaryFlags uint8
	FileName       [30]byte
}

// volumeLabelDirectoryEntry carries the volume's display name (exFAT section
// 7.3), kept in the directory's reserved first record rather than requiring
// a dedicated allocation.
type volumeLabelDirectoryEntry struct {
	EntryType      EntryType
	CharacterCount uint8
	VolumeLabel    [30]byte
}

// record is one decoded directory record alongside its byte offset within
// the directory region, used so writers know where to patch or append.
type record struct {
	offset int64
	typ    EntryType
	file   *fileDirectoryEntry
	stream *streamExtensionDirectoryEntry
	name   *fileNameDirectoryEntry
	label  *volumeLabelDirectoryEntry
}

func decodeRecord(offset int64, raw []byte) (*record, error) {
	if len(raw) != entrySize {
		return nil, fmt.Errorf("directory record must be exactly %d bytes", entrySize)
	}

	rec := &record{offset: offset, typ: EntryType(raw[0])}

	switch rec.typ {
	case entryTypeFile:
		fde := &fileDirectoryEntry{}
		if err := restruct.Unpack(raw, defaultEncoding, fde); err != nil {
			return nil, log.Wrap(err)
		}
		rec.file = fde
	case entryTypeStreamExtension:
		sede := &streamExtensionDirectoryEntry{}
		if err := restruct.Unpack(raw, defaultEncoding, sede); err != nil {
			return nil, log.Wrap(err)
		}
		rec.stream = sede
	case entryTypeFileName:
		fnde := &fileNameDirectoryEntry{}
		if err := restruct.Unpack(raw, defaultEncoding, fnde); err != nil {
			return nil, log.Wrap(err)
		}
		rec.name = fnde
	case entryTypeVolumeLabel:
		vlde := &volumeLabelDirectoryEntry{}
		if err := restruct.Unpack(raw, defaultEncoding, vlde); err != nil {
			return nil, log.Wrap(err)
		}
		rec.label = vlde
	}

	return rec, nil
}

// utf16NameChunks splits name into 15-UTF16-unit chunks for FileName
// directory entries, matching the packing the teacher's
// MultipartFilename.Filename does in reverse.
func utf16NameChunks(name string) [][15]uint16 {
	units := make([]uint16, 0, len(name))
	for _, r := range name {
		if r > 0xffff {
			r = '?'
		}
		units = append(units, uint16(r))
	}

	var chunks [][15]uint16
	for i := 0; i < len(units); i += 15 {
		var chunk [15]uint16
		copy(chunk[:], units[i:])
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		chunks = append(chunks, [15]uint16{})
	}
	return chunks
}

func decodeUtf16Name(raw [30]byte, count int) string {
	var b strings.Builder
	for i := 0; i < count && i*2+1 < len(raw); i++ {
		u := uint16(raw[i*2]) | uint16(raw[i*2+1])<<8
		if u == 0 {
			break
		}
		b.WriteRune(rune(u))
	}
	return b.String()
}
