package apply

import "testing"

func TestEncodeDecodeMBR_RoundTrip(t *testing.T) {
	want := [4]Partition{
		{Status: 0x80, PartitionType: 0x0c, BlockOffset: 2048, SectorCount: 1048576},
		{Status: 0x00, PartitionType: 0x83, BlockOffset: 1050624, SectorCount: 2097152},
		{},
		{},
	}

	sector, err := encodeMBR(want)
	if err != nil {
		t.Fatalf("encodeMBR: %v", err)
	}
	if len(sector) != mbrSectorSize {
		t.Fatalf("expected a %d-byte sector, got %d", mbrSectorSize, len(sector))
	}

	got, err := decodeMBR(sector)
	if err != nil {
		t.Fatalf("decodeMBR: %v", err)
	}

	if got != want {
		t.Fatalf("round trip mismatch:\n got=%+v\nwant=%+v", got, want)
	}
}

func TestReadPartition1Offset_Success(t *testing.T) {
	want := [4]Partition{
		{},
		{BlockOffset: 4096, SectorCount: 1024, PartitionType: 0x0c},
		{},
		{},
	}

	sector, err := encodeMBR(want)
	if err != nil {
		t.Fatalf("encodeMBR: %v", err)
	}

	sink := newMemSink(mbrSectorSize)
	if _, err := sink.WriteAt(sector, 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	offset, ok := readPartition1Offset(sink)
	if !ok {
		t.Fatalf("expected readPartition1Offset to succeed")
	}
	if offset != 4096 {
		t.Fatalf("got offset %d, want 4096", offset)
	}
}

func TestReadPartition1Offset_NoReaderSupport(t *testing.T) {
	if _, ok := readPartition1Offset(writeOnlySink{}); ok {
		t.Fatalf("expected a write-only sink to fail the read")
	}
}
