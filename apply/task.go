package apply

import "strings"

// RequirementFunc evaluates one reqlist predicate (spec.md §4.C). It
// returns false, rather than an error, when the requirement simply isn't
// met; an error indicates the requirement itself is malformed.
type RequirementFunc func(ctx *Context, args []interface{}) (bool, error)

// requirementRegistry is the fixed set of requirement predicates this
// engine understands, keyed by name exactly as the manifest's reqlist
// entries name them (spec.md GLOSSARY). Modeled after the teacher's
// directoryEntryParsers registry-by-key dispatch in
// navigator_entry_types.go.
var requirementRegistry = map[string]RequirementFunc{
	"fat-file-exists": requireFatFileExists,
	"output-min-size": requireOutputMinSize,
}

// deprecatedTaskIsApplicable evaluates the legacy require-partition1-offset
// constraint (spec.md §4.C constraint 1), a direct port of
// fwup_apply.c's deprecated_task_is_applicable.
func deprecatedTaskIsApplicable(task *Task, output OutputSink) bool {
	required := task.PartitionOffsetOrUnused()
	if required < 0 {
		return true
	}

	offset, ok := readPartition1Offset(output)
	if !ok {
		return false
	}

	return uint32(required) == offset
}

// taskIsApplicable evaluates the task's reqlist (spec.md §4.C constraint 2).
func taskIsApplicable(ctx *Context, task *Task) bool {
	for _, req := range task.Requirements {
		fn, found := requirementRegistry[req.Name]
		if !found {
			// An unrecognized requirement can never be met.
			return false
		}

		met, err := fn(ctx, req.Args)
		if err != nil || !met {
			return false
		}
	}

	return true
}

// FindTask implements the task selector (spec.md §4.C): the first task in
// manifest order whose title starts with taskPrefix and whose constraints
// are all satisfied.
func FindTask(ctx *Context, cfg *Config, taskPrefix string) (*Task, error) {
	for _, task := range cfg.Tasks {
		if !strings.HasPrefix(task.Title, taskPrefix) {
			continue
		}
		if !deprecatedTaskIsApplicable(task, ctx.Output) {
			continue
		}
		if !taskIsApplicable(ctx, task) {
			continue
		}
		return task, nil
	}

	return nil, errorf(ErrNoApplicableTask, "no task matching prefix %q has satisfied constraints", taskPrefix)
}

// requireFatFileExists checks that a file exists in the FAT filesystem
// bound at a given partition block offset. args: [partitionBlockOffset
// (int), path (string)].
func requireFatFileExists(ctx *Context, args []interface{}) (bool, error) {
	if len(args) != 2 {
		return false, errorf(ErrActionFailed, "fat-file-exists requires (partition-block-offset, path)")
	}

	blockOffset, ok := asInt64(args[0])
	if !ok {
		return false, errorf(ErrActionFailed, "fat-file-exists: first argument must be an integer partition block offset")
	}

	path, ok := args[1].(string)
	if !ok {
		return false, errorf(ErrActionFailed, "fat-file-exists: second argument must be a path string")
	}

	cache, err := ctx.BindFat(blockOffset)
	if err != nil {
		return false, nil
	}
	if cache == nil {
		return false, nil
	}

	return fatFileExists(cache, path), nil
}

// requireOutputMinSize checks that the output sink is at least the given
// number of bytes, when the sink can report its size. args: [minBytes (int)].
func requireOutputMinSize(ctx *Context, args []interface{}) (bool, error) {
	if len(args) != 1 {
		return false, errorf(ErrActionFailed, "output-min-size requires (min-bytes)")
	}

	minBytes, ok := asInt64(args[0])
	if !ok {
		return false, errorf(ErrActionFailed, "output-min-size: argument must be an integer byte count")
	}

	sizer, ok := ctx.Output.(interface{ Size() (int64, error) })
	if !ok {
		// Can't be determined; don't reject the task over it.
		return true, nil
	}

	size, err := sizer.Size()
	if err != nil {
		return false, nil
	}

	return size >= minBytes, nil
}

// asInt64 coerces a YAML-decoded numeric argument (int or float64,
// depending on how it was written in the manifest) to int64.
func asInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}
