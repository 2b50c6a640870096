package apply

import (
	"encoding/binary"

	"github.com/go-restruct/restruct"
)

// mbrSectorSize is the size of the boot sector an MBR lives in (spec.md
// §4.C).
const mbrSectorSize = 512

const mbrSignature = uint16(0xaa55)

// mbrPartitionEntry is one of the four on-disk MBR partition table entries,
// decoded the way the teacher's structures.go decodes the exFAT boot sector
// header: a plain Go struct whose field order matches the on-disk layout,
// unpacked with restruct.
type mbrPartitionEntry struct {
	Status        uint8
	FirstCHS      [3]byte
	PartitionType uint8
	LastCHS       [3]byte
	LBAFirst      uint32
	SectorCount   uint32
}

type mbrSectorLayout struct {
	BootCode   [446]byte
	Partitions [4]mbrPartitionEntry
	Signature  uint16
}

// Partition is the decoded, domain-facing view of one MBR partition table
// entry.
type Partition struct {
	Status        uint8
	PartitionType uint8
	BlockOffset   uint32
	SectorCount   uint32
}

// decodeMBR parses a 512-byte MBR sector into its four partition entries
// (spec.md §4.C, "Decode the MBR partition table").
func decodeMBR(sector []byte) ([4]Partition, error) {
	var partitions [4]Partition

	if len(sector) != mbrSectorSize {
		return partitions, errorf(ErrIOFailed, "MBR sector must be exactly %d bytes, got %d", mbrSectorSize, len(sector))
	}

	var layout mbrSectorLayout
	if err := restruct.Unpack(sector, binary.LittleEndian, &layout); err != nil {
		return partitions, newError(ErrIOFailed, err)
	}

	for i, p := range layout.Partitions {
		partitions[i] = Partition{
			Status:        p.Status,
			PartitionType: p.PartitionType,
			BlockOffset:   p.LBAFirst,
			SectorCount:   p.SectorCount,
		}
	}

	return partitions, nil
}

// encodeMBR serializes four partition entries into a fresh 512-byte sector,
// used by the mbr_write action.
func encodeMBR(partitions [4]Partition) ([]byte, error) {
	var layout mbrSectorLayout
	layout.Signature = mbrSignature

	for i, p := range partitions {
		layout.Partitions[i] = mbrPartitionEntry{
			Status:        p.Status,
			PartitionType: p.PartitionType,
			LBAFirst:      p.BlockOffset,
			SectorCount:   p.SectorCount,
		}
	}

	raw, err := restruct.Pack(binary.LittleEndian, &layout)
	if err != nil {
		return nil, newError(ErrIOFailed, err)
	}

	return raw, nil
}

// readPartition1Offset implements the legacy require-partition1-offset
// constraint (spec.md §4.C): any read error is treated as "constraint not
// satisfied" rather than a hard error (spec.md §7 policy).
func readPartition1Offset(output OutputSink) (uint32, bool) {
	reader, ok := output.(ReaderOutputSink)
	if !ok {
		return 0, false
	}

	buffer := make([]byte, mbrSectorSize)
	n, err := reader.ReadAt(buffer, 0)
	if err != nil || n != mbrSectorSize {
		return 0, false
	}

	partitions, err := decodeMBR(buffer)
	if err != nil {
		return 0, false
	}

	return partitions[1].BlockOffset, true
}
