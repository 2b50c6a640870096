package apply

import (
	"path"
	"strings"
)

// resourceIDForArchivePath derives a resource identifier from an archive
// entry's path (spec.md §3, "maps an archive member to the resource ID it
// satisfies"). The real naming convention lives outside this spec's scope;
// this is a simple, deterministic stand-in: every leading directory
// (including a data/ prefix) is dropped, as is one trailing file extension,
// leaving the bare member name as the ID.
func resourceIDForArchivePath(entryPath string) string {
	trimmed := strings.TrimPrefix(entryPath, "data/")
	base := path.Base(trimmed)
	ext := path.Ext(base)
	return strings.TrimSuffix(base, ext)
}
