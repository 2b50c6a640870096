package apply

import (
	"archive/zip"
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/dsoprea/go-logging"
	"github.com/klauspost/compress/flate"
)

// fatEpoch is the creation timestamp used when the manifest carries no
// meta-creation-date (spec.md Design Note 9).
var fatEpoch = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

func init() {
	// Swap in klauspost/compress's faster DEFLATE implementation for every
	// zip.Reader this package opens, the way the teacher's cmd/ binaries
	// never had to think about compression (exFAT images are stored
	// uncompressed) but firmware archives are not.
	zip.RegisterDecompressor(zip.Deflate, func(r io.Reader) io.ReadCloser {
		return flate.NewReader(r)
	})
}

// Apply runs the full firmware-archive apply sequence against archivePath
// (spec.md §4.F): open the archive, verify and parse its manifest, select a
// task by prefix, plan and then execute that task's events, and close
// output. trustedPublicKey may be nil to skip signature verification;
// progress may be nil to discard progress reports.
func Apply(archivePath, taskPrefix string, output OutputSink, trustedPublicKey ed25519.PublicKey, progress ProgressReporter) (err error) {
	defer func() {
		if errRaw := recover(); errRaw != nil {
			err = recoverToAppliedError(errRaw, ErrActionFailed)
		}
	}()

	if progress == nil {
		progress = NullProgressReporter{}
	}

	ctx := &Context{
		Output:   output,
		Progress: progress,
	}

	progress.Report(0, 1)

	outputClosed := false
	defer func() {
		// cleanup on every exit path, success or failure (spec.md §4.F
		// step 12): an unbound FAT cache flush is a no-op, and closing the
		// sink is always attempted once.
		if ctx.BindFat != nil {
			if _, flushErr := ctx.BindFat(-1); err == nil && flushErr != nil {
				err = flushErr
			}
		}
		if !outputClosed {
			if closeErr := output.Close(); err == nil && closeErr != nil {
				err = newError(ErrIOFailed, closeErr)
			}
		}
	}()

	fatController := NewFatCacheController(output)
	ctx.BindFat = fatController.Bind

	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		return newError(ErrArchiveOpenFailed, err)
	}
	defer zr.Close()

	manifestBytes, err := readZipEntry(&zr.Reader, "meta.conf")
	if err != nil {
		return newError(ErrMissingManifest, err)
	}

	var signature []byte
	if sigBytes, sigErr := readZipEntry(&zr.Reader, "meta.conf.ed25519"); sigErr == nil {
		if len(sigBytes) != SignatureSize {
			return errorf(ErrBadSignatureSize, "meta.conf.ed25519 must be exactly %d bytes, got %d", SignatureSize, len(sigBytes))
		}
		signature = sigBytes
	}

	cfg, err := ParseManifest(manifestBytes, signature, trustedPublicKey)
	if err != nil {
		return err
	}
	ctx.Config = cfg

	ctx.CreationTime = fatEpoch
	if cfg.CreationDate != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, cfg.CreationDate); parseErr == nil {
			ctx.CreationTime = parsed
		}
	}

	task, err := FindTask(ctx, cfg, taskPrefix)
	if err != nil {
		return err
	}
	ctx.Task = task

	entriesByResource := indexZipEntriesByResource(&zr.Reader)

	plan, err := planTask(ctx, task, entriesByResource)
	if err != nil {
		return err
	}

	var done int64
	reportAfter := func(units int64) {
		done += units
		progress.Report(done, plan.total)
	}

	ctx.Phase = PhaseInit
	if err := RunSection(ctx, task.OnInit); err != nil {
		return err
	}
	reportAfter(plan.onInit)

	// Drive the execute pass by archive entry order (spec.md §4.F step 8):
	// each archive member maps onto at most one on-resource section, and a
	// section with no corresponding archive member is simply never
	// dispatched (scenario 6), the same log-and-skip policy
	// fwup_apply.c:344-350 applies in its own resource loop.
	onResourceByID := make(map[string]*ResourceEvent, len(task.OnResource))
	for i := range task.OnResource {
		onResourceByID[task.OnResource[i].ResourceID] = &task.OnResource[i]
	}

	ctx.Phase = PhaseFile
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if f.Name == "meta.conf" || f.Name == "meta.conf.ed25519" {
			continue
		}

		resourceID := resourceIDForArchivePath(f.Name)

		re, found := onResourceByID[resourceID]
		if !found {
			continue
		}

		resource, found := cfg.Resources[resourceID]
		if !found {
			// Already logged during the plan pass; this section carries no
			// planned progress units and must not run.
			continue
		}

		payload, err := readZipFile(f)
		if err != nil {
			return newError(ErrArchiveReadFailed, err)
		}

		if err := verifyResourceHash(resource, payload); err != nil {
			return err
		}

		sparseMap := resource.SparseMap
		if len(sparseMap) == 0 {
			sparseMap = []int64{resource.Length}
		}
		if err := ValidateSparseMap(sparseMap, int64(len(payload)), resource.Length); err != nil {
			return err
		}

		sr, err := NewSparseReader(sparseMap, bytes.NewReader(payload))
		if err != nil {
			return err
		}

		ctx.CurrentResource = resource
		ctx.Read = sr.NextChunk

		if err := RunSection(ctx, &re.Section); err != nil {
			return err
		}

		ctx.Read = nil
		ctx.CurrentResource = nil

		reportAfter(plan.resourceUnits[resourceID])
	}

	ctx.Phase = PhaseFinish
	if err := RunSection(ctx, task.OnFinish); err != nil {
		return err
	}

	// Final FAT flush and sink close happen before the completion report,
	// so 100% is only reported once the output has been closed.
	if _, err := ctx.BindFat(-1); err != nil {
		return err
	}
	outputClosed = true
	if err := output.Close(); err != nil {
		return newError(ErrIOFailed, err)
	}

	reportAfter(plan.onFinish)
	progress.Report(plan.total, plan.total)

	return nil
}

// taskPlan is the compute-progress pass's output: the total progress units
// the task will report, broken down by section so the execute pass can
// report each section's share without re-deriving it (spec.md §4.F step 7).
type taskPlan struct {
	total         int64
	onInit        int64
	onFinish      int64
	resourceUnits map[string]int64
}

// planTask runs the compute-progress visitor over every section the task
// will execute, in the same order the execute pass visits them (spec.md
// §4.F step 7). An on-resource entry naming an undeclared resource is logged
// and skipped, and one with no corresponding archive member is skipped
// without a log line, rather than aborting the whole task (spec.md §4.F step 7 / §7 scenario 6,
// fwup_apply.c:344-350's INFO(...); continue; policy).
func planTask(ctx *Context, task *Task, entriesByResource map[string]*zip.File) (*taskPlan, error) {
	plan := &taskPlan{resourceUnits: make(map[string]int64, len(task.OnResource))}

	ctx.Phase = PhaseInit
	units, err := PlanSection(ctx, task.OnInit)
	if err != nil {
		return nil, err
	}
	plan.onInit = units
	plan.total += units

	ctx.Phase = PhaseFile
	for _, re := range task.OnResource {
		resource, found := ctx.Config.Resources[re.ResourceID]
		if !found {
			log.PrintError(log.Errorf("manifest references undeclared resource %q; skipping", re.ResourceID))
			continue
		}

		if _, found := entriesByResource[re.ResourceID]; !found {
			continue
		}

		ctx.CurrentResource = resource
		units, err := PlanSection(ctx, &re.Section)
		ctx.CurrentResource = nil
		if err != nil {
			return nil, err
		}
		plan.resourceUnits[re.ResourceID] = units
		plan.total += units
	}

	ctx.Phase = PhaseFinish
	units, err = PlanSection(ctx, task.OnFinish)
	if err != nil {
		return nil, err
	}
	plan.onFinish = units
	plan.total += units

	return plan, nil
}

func readZipEntry(zr *zip.Reader, name string) ([]byte, error) {
	for _, f := range zr.File {
		if f.Name == name {
			return readZipFile(f)
		}
	}
	return nil, log.Errorf("archive has no %q entry", name)
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, log.Wrap(err)
	}
	defer rc.Close()

	return io.ReadAll(rc)
}

func indexZipEntriesByResource(zr *zip.Reader) map[string]*zip.File {
	index := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		if f.Name == "meta.conf" || f.Name == "meta.conf.ed25519" {
			continue
		}
		index[resourceIDForArchivePath(f.Name)] = f
	}
	return index
}

// verifyResourceHash checks payload against resource.Hash when the hash is
// given in "sha256:<hex>" form; any other (or absent) form is left
// unverified, matching the manifest grammar's abstract, unvalidated "hash"
// field (spec.md §3).
func verifyResourceHash(resource *FileResource, payload []byte) error {
	const prefix = "sha256:"
	if !strings.HasPrefix(resource.Hash, prefix) {
		return nil
	}

	want := strings.TrimPrefix(resource.Hash, prefix)
	sum := sha256.Sum256(payload)
	got := hex.EncodeToString(sum[:])

	if !strings.EqualFold(want, got) {
		return errorf(ErrIOFailed, "resource hash mismatch: manifest says %s, archive member hashes to %s", want, got)
	}
	return nil
}
