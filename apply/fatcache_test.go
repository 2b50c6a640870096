package apply

import (
	"bytes"
	"testing"
)

// memSink is a minimal in-memory OutputSink/ReaderOutputSink for tests.
type memSink struct {
	buf []byte
}

func newMemSink(size int) *memSink {
	return &memSink{buf: make([]byte, size)}
}

func (m *memSink) ReadAt(p []byte, off int64) (int, error) {
	n := copy(p, m.buf[off:])
	if n < len(p) {
		return n, bytes.ErrTooLarge
	}
	return n, nil
}

func (m *memSink) WriteAt(p []byte, off int64) (int, error) {
	n := copy(m.buf[off:], p)
	return n, nil
}

func (m *memSink) Close() error { return nil }

func TestFatCacheController_BindFlushRebind(t *testing.T) {
	sink := newMemSink(64 * 1024 * 1024)
	controller := NewFatCacheController(sink)

	cache, err := controller.Bind(100)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if _, err := cache.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatalf("WriteAt: %v", err)
	}

	// Binding to the same offset is a no-op that returns the same cache.
	same, err := controller.Bind(100)
	if err != nil {
		t.Fatalf("re-bind same offset: %v", err)
	}
	if same != cache {
		t.Fatalf("expected re-bind to the same offset to return the same cache")
	}

	// Binding to a different offset flushes the first.
	if _, err := controller.Bind(200); err != nil {
		t.Fatalf("bind new offset: %v", err)
	}

	got := sink.buf[100*bytesPerBlock : 100*bytesPerBlock+5]
	if !bytes.Equal(got, []byte("hello")) {
		t.Fatalf("flush did not persist the write: got %q", got)
	}
}

func TestFatCacheController_DoubleFlushIsIdempotent(t *testing.T) {
	sink := newMemSink(64 * 1024 * 1024)
	controller := NewFatCacheController(sink)

	if _, err := controller.Bind(0); err != nil {
		t.Fatalf("Bind: %v", err)
	}

	if _, err := controller.Bind(-1); err != nil {
		t.Fatalf("first flush: %v", err)
	}
	if _, err := controller.Bind(-1); err != nil {
		t.Fatalf("second flush should be a harmless no-op: %v", err)
	}

	if controller.Current() != nil {
		t.Fatalf("controller should be idle after flushing")
	}
}
