package apply

import (
	"io"
)

// fatCacheSize is the fixed write-back buffer size (spec.md §3): 12 MiB,
// matching fat_cache_init's hard-coded size in the original fwup_apply.c
// ("TODO: Make cache size configurable" — preserved as a fixed constant
// here for the same reason the original never got around to it: nothing in
// this spec's scope needs it to vary).
const fatCacheSize = 12 * 1024 * 1024

// bytesPerBlock is the sector size legacy offsets are expressed in (spec.md
// §3, "in 512-byte units").
const bytesPerBlock = 512

// FatCache is a single write-back buffer bound to one partition byte offset
// (spec.md §3, "FAT cache state"). It is owned exclusively by the
// FatCacheController; actions obtain only a borrowed *FatCache while it is
// bound (spec.md §5).
type FatCache struct {
	output              OutputSink
	partitionByteOffset int64
	buf                 []byte
	dirty               bool
}

func newFatCache(output OutputSink, partitionBlockOffset int64) (*FatCache, error) {
	fc := &FatCache{
		output:              output,
		partitionByteOffset: partitionBlockOffset * bytesPerBlock,
		buf:                 make([]byte, fatCacheSize),
	}

	if reader, ok := output.(ReaderOutputSink); ok {
		// Preload the cache window from the current state of the sink so
		// that reads through the cache observe what's already there, not
		// zeros.
		_, err := reader.ReadAt(fc.buf, fc.partitionByteOffset)
		if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
			return nil, err
		}
	}

	return fc, nil
}

// ReadAt reads from the cache's buffered window. volumeOffset is relative to
// the bound partition's start.
func (fc *FatCache) ReadAt(p []byte, volumeOffset int64) (int, error) {
	if volumeOffset < 0 || volumeOffset+int64(len(p)) > int64(len(fc.buf)) {
		return 0, errorf(ErrIOFailed, "FAT cache read at %d+%d falls outside the %d-byte cache window", volumeOffset, len(p), len(fc.buf))
	}
	n := copy(p, fc.buf[volumeOffset:])
	return n, nil
}

// WriteAt writes into the cache's buffered window without touching the
// output sink; the write is persisted on the next flush.
func (fc *FatCache) WriteAt(p []byte, volumeOffset int64) (int, error) {
	if volumeOffset < 0 || volumeOffset+int64(len(p)) > int64(len(fc.buf)) {
		return 0, errorf(ErrIOFailed, "FAT cache write at %d+%d falls outside the %d-byte cache window", volumeOffset, len(p), len(fc.buf))
	}
	n := copy(fc.buf[volumeOffset:], p)
	fc.dirty = true
	return n, nil
}

// flush drains buffered writes to the output sink, if any are pending.
func (fc *FatCache) flush() error {
	if !fc.dirty {
		return nil
	}

	if _, err := fc.output.WriteAt(fc.buf, fc.partitionByteOffset); err != nil {
		return newError(ErrIOFailed, err)
	}

	fc.dirty = false
	return nil
}

// FatCacheController owns at-most-one FatCache at a time (spec.md §4.B). It
// is the direct Go port of fwup_apply.c's fatfs_ptr_callback.
type FatCacheController struct {
	output  OutputSink
	current *FatCache
}

// NewFatCacheController returns a controller bound to no cache.
func NewFatCacheController(output OutputSink) *FatCacheController {
	return &FatCacheController{output: output}
}

// Bind implements the FatBindFunc contract (spec.md §4.B): a negative offset
// performs a final flush and leaves the controller idle; binding to the
// already-bound offset is a no-op; otherwise the current cache (if any) is
// flushed and replaced.
func (c *FatCacheController) Bind(partitionBlockOffset int64) (*FatCache, error) {
	if partitionBlockOffset < 0 {
		if c.current == nil {
			return nil, nil
		}
		if err := c.current.flush(); err != nil {
			return nil, err
		}
		c.current = nil
		return nil, nil
	}

	if c.current != nil && c.current.partitionByteOffset == partitionBlockOffset*bytesPerBlock {
		return c.current, nil
	}

	if c.current != nil {
		if err := c.current.flush(); err != nil {
			return nil, err
		}
		c.current = nil
	}

	cache, err := newFatCache(c.output, partitionBlockOffset)
	if err != nil {
		return nil, errorf(ErrFatCacheInitFailed, "%s", err)
	}

	c.current = cache
	return cache, nil
}

// Current returns the currently-bound cache, or nil if none is bound.
func (c *FatCacheController) Current() *FatCache {
	return c.current
}
