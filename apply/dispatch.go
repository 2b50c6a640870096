package apply

// PlanFunc estimates the work an action will perform, in whatever unit
// ProgressReporter totals across a task (typically bytes written). It must
// not mutate ctx.Output (spec.md §4.F step 7, "compute-progress visitor").
type PlanFunc func(ctx *Context, action *Action) (int64, error)

// RunFunc actually performs an action (spec.md §4.F step 8, "run visitor").
type RunFunc func(ctx *Context, action *Action) error

type actionDef struct {
	plan PlanFunc
	run  RunFunc
}

// actionRegistry is the fixed set of funlist actions this engine understands,
// keyed by name exactly as the manifest's funlist entries name them. Modeled
// after the teacher's directoryEntryParsers registry-by-key dispatch.
var actionRegistry = map[string]actionDef{
	"raw_write":    {plan: planRawWrite, run: runRawWrite},
	"raw_memset":   {plan: planRawMemset, run: runRawMemset},
	"mbr_write":    {plan: planConstant(mbrSectorSize), run: runMbrWrite},
	"fat_mkfs":     {plan: planConstant(0), run: runFatMkfs},
	"fat_write":    {plan: planFatWrite, run: runFatWrite},
	"fat_mv":       {plan: planConstant(0), run: runFatMv},
	"fat_rm":       {plan: planConstant(0), run: runFatRm},
	"fat_attrib":   {plan: planConstant(0), run: runFatAttrib},
	"fat_setlabel": {plan: planConstant(0), run: runFatSetlabel},
	"trim":         {plan: planConstant(0), run: runTrim},
	"error":        {plan: planConstant(0), run: runError},
	"info":         {plan: planConstant(0), run: runInfo},
}

func planConstant(n int64) PlanFunc {
	return func(ctx *Context, action *Action) (int64, error) { return n, nil }
}

// PlanSection runs the compute-progress visitor over every action in
// section, in order, returning the total estimated progress units (spec.md
// §4.F step 7). ctx.Event is bound for the duration of the pass and released
// on every exit path.
func PlanSection(ctx *Context, section *EventSection) (int64, error) {
	if section == nil {
		return 0, nil
	}

	ctx.Event = section
	defer func() { ctx.Event = nil }()

	var total int64
	for i := range section.Actions {
		action := &section.Actions[i]

		def, found := actionRegistry[action.Name]
		if !found {
			return 0, errorf(ErrActionFailed, "unrecognized action %q", action.Name)
		}

		units, err := def.plan(ctx, action)
		if err != nil {
			return 0, err
		}
		total += units
	}

	return total, nil
}

// RunSection runs the run visitor over every action in section, in order
// (spec.md §4.F step 8). ctx.Event is bound for the duration of the pass and
// released on every exit path, including an action failure partway through.
func RunSection(ctx *Context, section *EventSection) error {
	if section == nil {
		return nil
	}

	ctx.Event = section
	defer func() { ctx.Event = nil }()

	for i := range section.Actions {
		action := &section.Actions[i]

		def, found := actionRegistry[action.Name]
		if !found {
			return errorf(ErrActionFailed, "unrecognized action %q", action.Name)
		}

		if err := def.run(ctx, action); err != nil {
			if _, ok := err.(*AppliedError); !ok {
				return newError(ErrActionFailed, err)
			}
			return err
		}
	}

	return nil
}
