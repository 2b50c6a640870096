package apply

import "testing"

func TestFindTask_PrefixAndReqlist(t *testing.T) {
	minSize := int64(100)

	cfg := &Config{
		Tasks: []*Task{
			{
				Title: "upgrade-a",
				Requirements: []Requirement{
					{Name: "output-min-size", Args: []interface{}{minSize}},
				},
			},
			{
				Title: "upgrade-b",
			},
		},
	}

	sink := newMemSink(1024)
	ctx := &Context{Output: sink}

	task, err := FindTask(ctx, cfg, "upgrade")
	if err != nil {
		t.Fatalf("FindTask: %v", err)
	}
	if task.Title != "upgrade-a" {
		t.Fatalf("expected the first matching+satisfied task, got %s", task.Title)
	}
}

func TestFindTask_UnrecognizedRequirementRejectsTask(t *testing.T) {
	cfg := &Config{
		Tasks: []*Task{
			{
				Title:        "only",
				Requirements: []Requirement{{Name: "no-such-requirement"}},
			},
		},
	}

	ctx := &Context{Output: newMemSink(1024)}

	if _, err := FindTask(ctx, cfg, "only"); err == nil {
		t.Fatalf("expected no-such-requirement to reject the only candidate task")
	}
}

func TestFindTask_NoMatch(t *testing.T) {
	cfg := &Config{Tasks: []*Task{{Title: "complete"}}}
	ctx := &Context{Output: newMemSink(1024)}

	if _, err := FindTask(ctx, cfg, "upgrade"); err == nil {
		t.Fatalf("expected no task to match an unrelated prefix")
	}
}

func TestDeprecatedTaskIsApplicable_Unused(t *testing.T) {
	task := &Task{}
	if !deprecatedTaskIsApplicable(task, newMemSink(1024)) {
		t.Fatalf("a task with no require-partition1-offset should always be applicable")
	}
}

func TestDeprecatedTaskIsApplicable_ReadErrorMeansNotSatisfied(t *testing.T) {
	required := int64(2048)
	task := &Task{RequirePartition1Offset: &required}

	// An output sink with no ReaderOutputSink support can't satisfy the
	// legacy constraint (spec.md §7 policy: any read error => not
	// satisfied).
	if deprecatedTaskIsApplicable(task, writeOnlySink{}) {
		t.Fatalf("expected a read failure to make the constraint unsatisfied")
	}
}

type writeOnlySink struct{}

func (writeOnlySink) WriteAt(p []byte, off int64) (int, error) { return len(p), nil }
func (writeOnlySink) Close() error                             { return nil }
