package apply

import "github.com/wrtcoder/go-fwup-apply/internal/fatfs"

// Built-in funlist actions (spec.md GLOSSARY, "Action / funlist entry").
// Each action's plan function estimates progress units without touching
// ctx.Output; its run function performs the actual work.

// planRawWrite charges raw_write's progress against the current resource's
// declared length, since the bytes it writes come from the sparse reader
// driving that resource (spec.md §4.F step 8).
func planRawWrite(ctx *Context, action *Action) (int64, error) {
	if ctx.CurrentResource == nil {
		return 0, errorf(ErrActionFailed, "raw_write used outside an on-resource section")
	}
	return ctx.CurrentResource.Length, nil
}

// runRawWrite drains ctx.Read (the sparse reader for the bound resource),
// writing each chunk to ctx.Output at blockOffset*512 + the chunk's logical
// offset. args: [blockOffset (int)].
func runRawWrite(ctx *Context, action *Action) error {
	if len(action.Args) != 1 {
		return errorf(ErrActionFailed, "raw_write requires (block-offset)")
	}
	blockOffset, ok := asInt64(action.Args[0])
	if !ok {
		return errorf(ErrActionFailed, "raw_write: block-offset must be an integer")
	}
	if ctx.Read == nil {
		return errorf(ErrActionFailed, "raw_write used outside the execute pass's resource stream")
	}

	base := blockOffset * bytesPerBlock

	for {
		buffer, length, logicalOffset, err := ctx.Read()
		if err != nil {
			return err
		}
		if length == 0 {
			return nil
		}

		if _, err := ctx.Output.WriteAt(buffer[:length], base+logicalOffset); err != nil {
			return newError(ErrIOFailed, err)
		}
	}
}

func planRawMemset(ctx *Context, action *Action) (int64, error) {
	if len(action.Args) != 3 {
		return 0, errorf(ErrActionFailed, "raw_memset requires (block-offset, length, value)")
	}
	length, ok := asInt64(action.Args[1])
	if !ok {
		return 0, errorf(ErrActionFailed, "raw_memset: length must be an integer")
	}
	return length, nil
}

// runRawMemset fills length bytes starting at blockOffset*512 with value.
// args: [blockOffset (int), length (int), value (int, 0-255)].
func runRawMemset(ctx *Context, action *Action) error {
	if len(action.Args) != 3 {
		return errorf(ErrActionFailed, "raw_memset requires (block-offset, length, value)")
	}
	blockOffset, ok := asInt64(action.Args[0])
	if !ok {
		return errorf(ErrActionFailed, "raw_memset: block-offset must be an integer")
	}
	length, ok := asInt64(action.Args[1])
	if !ok {
		return errorf(ErrActionFailed, "raw_memset: length must be an integer")
	}
	value, ok := asInt64(action.Args[2])
	if !ok {
		return errorf(ErrActionFailed, "raw_memset: value must be an integer")
	}

	buf := make([]byte, length)
	for i := range buf {
		buf[i] = byte(value)
	}

	if _, err := ctx.Output.WriteAt(buf, blockOffset*bytesPerBlock); err != nil {
		return newError(ErrIOFailed, err)
	}
	return nil
}

// runMbrWrite rebuilds the MBR sector from 16 integer fields describing the
// four partition entries: (status, type, block-offset, sector-count) × 4,
// in partition-table order.
func runMbrWrite(ctx *Context, action *Action) error {
	if len(action.Args) != 16 {
		return errorf(ErrActionFailed, "mbr_write requires 4 partitions of (status, type, block-offset, sector-count)")
	}

	var partitions [4]Partition
	for i := 0; i < 4; i++ {
		base := i * 4
		status, ok1 := asInt64(action.Args[base])
		ptype, ok2 := asInt64(action.Args[base+1])
		offset, ok3 := asInt64(action.Args[base+2])
		count, ok4 := asInt64(action.Args[base+3])
		if !ok1 || !ok2 || !ok3 || !ok4 {
			return errorf(ErrActionFailed, "mbr_write: partition %d fields must be integers", i)
		}
		partitions[i] = Partition{
			Status:        uint8(status),
			PartitionType: uint8(ptype),
			BlockOffset:   uint32(offset),
			SectorCount:   uint32(count),
		}
	}

	sector, err := encodeMBR(partitions)
	if err != nil {
		return err
	}

	if _, err := ctx.Output.WriteAt(sector, 0); err != nil {
		return newError(ErrIOFailed, err)
	}
	return nil
}

// runFatMkfs formats the FAT region bound at the given partition block
// offset. args: [partitionBlockOffset (int)].
func runFatMkfs(ctx *Context, action *Action) error {
	blockOffset, err := fatBlockOffsetArg(action, 0)
	if err != nil {
		return err
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}

	return fatfs.Format(cache, 0, fatDirectoryEntries)
}

func planFatWrite(ctx *Context, action *Action) (int64, error) {
	if ctx.CurrentResource == nil {
		return 0, errorf(ErrActionFailed, "fat_write used outside an on-resource section")
	}
	return ctx.CurrentResource.Length, nil
}

// runFatWrite drains ctx.Read into a single in-memory buffer and writes it
// to the named file in the FAT filesystem bound at partitionBlockOffset.
// args: [partitionBlockOffset (int), path (string)].
func runFatWrite(ctx *Context, action *Action) error {
	if len(action.Args) != 2 {
		return errorf(ErrActionFailed, "fat_write requires (partition-block-offset, path)")
	}
	blockOffset, ok := asInt64(action.Args[0])
	if !ok {
		return errorf(ErrActionFailed, "fat_write: partition-block-offset must be an integer")
	}
	path, ok := action.Args[1].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_write: path must be a string")
	}
	if ctx.Read == nil {
		return errorf(ErrActionFailed, "fat_write used outside the execute pass's resource stream")
	}

	var data []byte
	for {
		buffer, length, _, err := ctx.Read()
		if err != nil {
			return err
		}
		if length == 0 {
			break
		}
		data = append(data, buffer[:length]...)
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}

	return volumeFor(cache).WriteFile(path, data)
}

// runFatMv renames a file by writing it under the new name and removing the
// old one; args: [partitionBlockOffset (int), fromPath, toPath (string)].
func runFatMv(ctx *Context, action *Action) error {
	if len(action.Args) != 3 {
		return errorf(ErrActionFailed, "fat_mv requires (partition-block-offset, from, to)")
	}
	blockOffset, ok := asInt64(action.Args[0])
	if !ok {
		return errorf(ErrActionFailed, "fat_mv: partition-block-offset must be an integer")
	}
	from, ok := action.Args[1].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_mv: from must be a string")
	}
	to, ok := action.Args[2].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_mv: to must be a string")
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}

	vol := volumeFor(cache)
	data, err := vol.ReadFile(from)
	if err != nil {
		return newError(ErrActionFailed, err)
	}
	if err := vol.WriteFile(to, data); err != nil {
		return err
	}
	return vol.Remove(from)
}

// runFatRm removes a file. args: [partitionBlockOffset (int), path (string)].
func runFatRm(ctx *Context, action *Action) error {
	if len(action.Args) != 2 {
		return errorf(ErrActionFailed, "fat_rm requires (partition-block-offset, path)")
	}
	blockOffset, err := fatBlockOffsetArg(action, 0)
	if err != nil {
		return err
	}
	path, ok := action.Args[1].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_rm: path must be a string")
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}
	return volumeFor(cache).Remove(path)
}

// runFatAttrib sets a file's attribute bits. args: [partitionBlockOffset
// (int), path (string), attrs (int)].
func runFatAttrib(ctx *Context, action *Action) error {
	if len(action.Args) != 3 {
		return errorf(ErrActionFailed, "fat_attrib requires (partition-block-offset, path, attrs)")
	}
	blockOffset, ok := asInt64(action.Args[0])
	if !ok {
		return errorf(ErrActionFailed, "fat_attrib: partition-block-offset must be an integer")
	}
	path, ok := action.Args[1].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_attrib: path must be a string")
	}
	attrs, ok := asInt64(action.Args[2])
	if !ok {
		return errorf(ErrActionFailed, "fat_attrib: attrs must be an integer")
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}
	return volumeFor(cache).SetAttr(path, FileAttributesFromInt(attrs))
}

// runFatSetlabel sets the volume label. args: [partitionBlockOffset (int),
// label (string)].
func runFatSetlabel(ctx *Context, action *Action) error {
	if len(action.Args) != 2 {
		return errorf(ErrActionFailed, "fat_setlabel requires (partition-block-offset, label)")
	}
	blockOffset, err := fatBlockOffsetArg(action, 0)
	if err != nil {
		return err
	}
	label, ok := action.Args[1].(string)
	if !ok {
		return errorf(ErrActionFailed, "fat_setlabel: label must be a string")
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return newError(ErrFatCacheInitFailed, err)
	}
	return volumeFor(cache).SetLabel(label)
}

// runTrim is a deliberate no-op: this engine's OutputSink has no concept of
// discard/TRIM, so the action simply succeeds (spec.md §1 scope boundary
// around block-device-specific operations).
func runTrim(ctx *Context, action *Action) error {
	return nil
}

// runError always fails with the operator-supplied message. args:
// [message (string)].
func runError(ctx *Context, action *Action) error {
	message := "error action triggered"
	if len(action.Args) == 1 {
		if m, ok := action.Args[0].(string); ok {
			message = m
		}
	}
	return errorf(ErrActionFailed, "%s", message)
}

// runInfo accepts an informational message and succeeds. It does not print
// the message or pass it to the progress reporter, and it does not affect
// progress totals.
func runInfo(ctx *Context, action *Action) error {
	return nil
}

func fatBlockOffsetArg(action *Action, index int) (int64, error) {
	if index >= len(action.Args) {
		return 0, errorf(ErrActionFailed, "missing partition-block-offset argument")
	}
	v, ok := asInt64(action.Args[index])
	if !ok {
		return 0, errorf(ErrActionFailed, "partition-block-offset must be an integer")
	}
	return v, nil
}
