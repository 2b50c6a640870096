package fatfs

import "github.com/dsoprea/go-logging"

// Format initializes a fresh, empty directory region: every record zeroed,
// which doubles as the end-of-directory marker at record 1 onward (spec.md
// fat_mkfs action).
func Format(rw ReaderWriterAt, dirOffset int64, dirEntries int64) error {
	zeroed := make([]byte, dirEntries*entrySize)
	if _, err := rw.WriteAt(zeroed, dirOffset); err != nil {
		return log.Wrap(err)
	}
	return nil
}
