package fatfs

import (
	"bytes"
	"testing"
)

type memRW struct {
	buf []byte
}

func newMemRW(size int64) *memRW {
	return &memRW{buf: make([]byte, size)}
}

func (m *memRW) ReadAt(p []byte, off int64) (int, error) {
	return copy(p, m.buf[off:]), nil
}

func (m *memRW) WriteAt(p []byte, off int64) (int, error) {
	return copy(m.buf[off:], p), nil
}

func testVolume() *Volume {
	const dirEntries = 64
	rw := newMemRW(dirEntries*entrySize + 4096)
	return NewVolume(rw, 0, dirEntries, dirEntries*entrySize, 4096)
}

func TestVolume_WriteExistsReadRoundTrip(t *testing.T) {
	vol := testVolume()

	if vol.Exists("boot/uImage") {
		t.Fatalf("file should not exist before it's written")
	}

	payload := []byte("firmware bytes go here")
	if err := vol.WriteFile("boot/uImage", payload); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if !vol.Exists("boot/uImage") {
		t.Fatalf("expected the file to exist after WriteFile")
	}

	got, err := vol.ReadFile("boot/uImage")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("got %q, want %q", got, payload)
	}
}

func TestVolume_RemoveThenRewrite(t *testing.T) {
	vol := testVolume()

	if err := vol.WriteFile("a.bin", []byte("first")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := vol.Remove("a.bin"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if vol.Exists("a.bin") {
		t.Fatalf("expected a.bin to be gone after Remove")
	}

	if err := vol.WriteFile("a.bin", []byte("second")); err != nil {
		t.Fatalf("re-WriteFile: %v", err)
	}
	got, err := vol.ReadFile("a.bin")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "second" {
		t.Fatalf("got %q, want %q", got, "second")
	}
}

func TestVolume_SetAttr(t *testing.T) {
	vol := testVolume()

	if err := vol.WriteFile("readme.txt", []byte("hi")); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := vol.SetAttr("readme.txt", AttrReadOnly|AttrHidden); err != nil {
		t.Fatalf("SetAttr: %v", err)
	}

	ne, err := vol.find("readme.txt")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if ne.file.FileAttributes&AttrReadOnly == 0 || ne.file.FileAttributes&AttrHidden == 0 {
		t.Fatalf("attributes did not persist: %v", ne.file.FileAttributes)
	}
}

func TestVolume_SetLabel(t *testing.T) {
	vol := testVolume()

	if err := vol.SetLabel("FIRMWARE"); err != nil {
		t.Fatalf("SetLabel: %v", err)
	}

	label, err := vol.Label()
	if err != nil {
		t.Fatalf("Label: %v", err)
	}
	if label != "FIRMWARE" {
		t.Fatalf("got label %q, want FIRMWARE", label)
	}
}

func TestVolume_WriteMultipleFilesAndEnumerate(t *testing.T) {
	vol := testVolume()

	names := []string{"one", "two", "three"}
	for _, n := range names {
		if err := vol.WriteFile(n, []byte(n)); err != nil {
			t.Fatalf("WriteFile(%s): %v", n, err)
		}
	}

	for _, n := range names {
		if !vol.Exists(n) {
			t.Fatalf("expected %s to exist", n)
		}
	}
}
