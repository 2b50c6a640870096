// Package fatfs is a minimal exFAT-flavored directory reader/writer used as
// the concrete implementation of the FAT filesystem collaborator that the
// apply package's cache controller binds against. It is adapted from a
// read-only exFAT directory-entry navigator: the on-disk entry encodings
// (File / StreamExtension / FileName directory entries, the EntryType and
// FileAttributes bitfields, the packed timestamp format) are kept faithful
// to the exFAT specification, but directory and cluster-chain navigation is
// deliberately simplified to a flat, single-directory region within the
// bound cache window plus a bump-allocated data area after it. That's
// adequate for locating, creating, and removing files in a cache window;
// it does not implement general multi-cluster directory trees or a real
// allocation bitmap.
package fatfs
