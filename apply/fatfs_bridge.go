package apply

import "github.com/wrtcoder/go-fwup-apply/internal/fatfs"

// fatDirectoryEntries is the number of 32-byte directory records reserved at
// the front of every bound FatCache window, with the remainder of the
// 12 MiB buffer available to the bump-allocated file data region.
const fatDirectoryEntries = 4096

// volumeFor adapts a bound FatCache (which already satisfies
// fatfs.ReaderWriterAt via its ReadAt/WriteAt methods) to a fatfs.Volume
// over that cache's buffered window.
func volumeFor(cache *FatCache) *fatfs.Volume {
	dirBytes := int64(fatDirectoryEntries) * 32
	return fatfs.NewVolume(cache, 0, fatDirectoryEntries, dirBytes, fatCacheSize-dirBytes)
}

// fatFileExists implements the fat-file-exists requirement predicate
// (spec.md §4.C) against the FAT filesystem collaborator bound at the
// given cache.
func fatFileExists(cache *FatCache, path string) bool {
	return volumeFor(cache).Exists(path)
}

// FileAttributesFromInt coerces a manifest-supplied attribute bitmask into
// fatfs.FileAttributes.
func FileAttributesFromInt(v int64) fatfs.FileAttributes {
	return fatfs.FileAttributes(uint16(v))
}
