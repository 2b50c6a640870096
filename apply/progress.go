package apply

import (
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
)

// ProgressReporter receives the apply orchestrator's 0%-to-100% reports
// (spec.md §4.F steps 2 and 11). The first report, made before the plan pass
// runs, is (0, 1); every later one passes the cumulative units completed out
// of the total computed by the plan pass.
type ProgressReporter interface {
	Report(done, total int64)
}

// HumaneProgressReporter writes a human-readable progress line to w each
// time Report is called, in the teacher's plain-stdout style (compare
// cmd/exfat_extract_file/main.go's use of fmt.Printf for status).
type HumaneProgressReporter struct {
	w io.Writer
}

// NewHumaneProgressReporter returns a reporter that writes lines to w.
func NewHumaneProgressReporter(w io.Writer) *HumaneProgressReporter {
	return &HumaneProgressReporter{w: w}
}

// Report prints "<percent>% (<done> / <total>)" using humanize.Bytes for
// the byte counts.
func (r *HumaneProgressReporter) Report(done, total int64) {
	percent := 100.0
	if total > 0 {
		percent = float64(done) / float64(total) * 100
	}

	fmt.Fprintf(r.w, "%.1f%% (%s / %s)\n", percent,
		humanize.Bytes(uint64(done)), humanize.Bytes(uint64(total)))
}

// NullProgressReporter discards every report; used when the caller doesn't
// care about progress (e.g. tests).
type NullProgressReporter struct{}

func (NullProgressReporter) Report(done, total int64) {}
