// Package detector runs a candidate image through the comparator against
// the current reference, stores the generated images and records the run.
package detector

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"gocv.io/x/gocv"

	"tamperdetect/database"
	"tamperdetect/imageprocessor"
	"tamperdetect/logging"
	"tamperdetect/metadata"
	"tamperdetect/reference"
	"tamperdetect/report"
	"tamperdetect/signalhandler"
	"tamperdetect/storage"
	"tamperdetect/types"
	"tamperdetect/utils"
)

// ErrReadOnlyReference is returned by SetReference when the provider cannot be replaced.
var ErrReadOnlyReference = errors.New("reference provider is read-only")

// ErrEmptyUpload is returned for a zero-length candidate or reference.
var ErrEmptyUpload = errors.New("uploaded file is empty")

// ReferenceError wraps a failure to load or decode the reference image, as
// opposed to a problem with the submitted candidate.
type ReferenceError struct {
	Err error
}

func (e *ReferenceError) Error() string {
	return "reference image: " + e.Err.Error()
}

func (e *ReferenceError) Unwrap() error {
	return e.Err
}

// MetadataReader summarizes the EXIF tags of an upload. *metadata.Extractor
// implements it.
type MetadataReader interface {
	Summarize(ctx context.Context, data []byte, name string) (types.ExifSummary, error)
}

// Config wires a Detector. DB and Metadata are optional.
type Config struct {
	References reference.Provider
	Store      storage.Store
	DB         *sql.DB
	Metadata   MetadataReader

	// MinRegionArea drops smaller regions; zero keeps all.
	MinRegionArea int
	// MaxConcurrent bounds comparisons in flight; zero uses GetOptimalProcs.
	MaxConcurrent int
	// KeepCandidate also stores the submitted candidate next to the outputs.
	KeepCandidate bool
}

// Detector compares candidates against the reference.
type Detector struct {
	refs          reference.Provider
	store         storage.Store
	db            *sql.DB
	exif          MetadataReader
	sem           *semaphore.Weighted
	minRegionArea int
	keepCandidate bool
}

// New validates cfg and returns a Detector.
func New(cfg Config) (*Detector, error) {
	if cfg.References == nil {
		return nil, errors.New("detector: reference provider is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("detector: output store is required")
	}

	limit := cfg.MaxConcurrent
	if limit <= 0 {
		limit = signalhandler.GetOptimalProcs()
	}

	return &Detector{
		refs:          cfg.References,
		store:         cfg.Store,
		db:            cfg.DB,
		exif:          cfg.Metadata,
		sem:           semaphore.NewWeighted(int64(limit)),
		minRegionArea: cfg.MinRegionArea,
		keepCandidate: cfg.KeepCandidate,
	}, nil
}

// Check compares a candidate against the current reference.
func (d *Detector) Check(ctx context.Context, candidateName string, data []byte) (*report.Report, error) {
	ref, err := d.refs.Reference(ctx)
	if err != nil {
		if errors.Is(err, reference.ErrEmptyReferenceSet) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, &ReferenceError{Err: err}
	}
	return d.Compare(ctx, ref, candidateName, data)
}

// outcome is what the comparison goroutine hands back
type outcome struct {
	score     float64
	threshold float64
	regions   []types.Region
	width     int
	height    int
	outputs   []imageprocessor.EncodedOutput
	refSHA    string
	exif      types.ExifSummary
	err       error
}

// Compare runs the comparison of candidate against ref, stores the four
// output images under a fresh comparison ID and records the run.
//
// When ctx expires first, Compare returns ctx.Err() immediately; the
// comparison itself finishes in the background and frees its native memory.
func (d *Detector) Compare(ctx context.Context, ref *reference.Image, candidateName string, data []byte) (*report.Report, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	id := utils.NewComparisonID()
	candidateName = utils.SanitizeFilename(candidateName, "candidate")

	if err := d.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}

	done := make(chan outcome, 1)
	go func() {
		defer d.sem.Release(1)
		done <- d.compute(ctx, ref, candidateName, data)
	}()

	var out outcome
	select {
	case out = <-done:
	case <-ctx.Done():
		logging.LogComparison(id, candidateName, 0, 0, ctx.Err())
		return nil, ctx.Err()
	}
	if out.err != nil {
		logging.LogComparison(id, candidateName, 0, 0, out.err)
		return nil, out.err
	}

	rep := &report.Report{
		ComparisonID: id,
		Original:     ref.Name,
		Candidate:    candidateName,
		ReferenceSHA: out.refSHA,
		Score:        out.score,
		Threshold:    out.threshold,
		Width:        out.width,
		Height:       out.height,
		Regions:      out.regions,
		Exif:         out.exif,
		Hints:        metadata.EditingHints(out.exif),
		GeneratedAt:  time.Now().UTC(),
	}

	if err := d.saveOutputs(ctx, rep, out.outputs, candidateName, data); err != nil {
		logging.LogComparison(id, candidateName, rep.Score, len(rep.Regions), err)
		return nil, err
	}

	d.record(rep)
	logging.LogComparison(id, candidateName, rep.Score, len(rep.Regions), nil)
	return rep, nil
}

// compute decodes both images concurrently, compares them and encodes the outputs
func (d *Detector) compute(ctx context.Context, ref *reference.Image, candidateName string, data []byte) outcome {
	var (
		refMat, candMat gocv.Mat
		refErr, candErr error
		exifSummary     types.ExifSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		refMat, refErr = imageprocessor.DecodeImage(ref.Data, ref.Name)
		return refErr
	})
	g.Go(func() error {
		candMat, candErr = imageprocessor.DecodeImage(data, candidateName)
		return candErr
	})
	if d.exif != nil {
		g.Go(func() error {
			s, err := d.exif.Summarize(gctx, data, candidateName)
			if err != nil {
				logging.LogWarning("EXIF extraction failed for %s: %v", candidateName, err)
			}
			exifSummary = s
			return nil
		})
	}
	// Both decode errors are kept individually to tell them apart.
	_ = g.Wait()
	defer refMat.Close()
	defer candMat.Close()

	if refErr != nil {
		return outcome{err: &ReferenceError{Err: refErr}}
	}
	if candErr != nil {
		return outcome{err: candErr}
	}

	fp, err := imageprocessor.ComputeFingerprint(ref.Data, refMat)
	if err != nil {
		return outcome{err: &ReferenceError{Err: err}}
	}

	res, err := imageprocessor.CompareWithOptions(refMat, candMat, imageprocessor.Options{MinRegionArea: d.minRegionArea})
	if err != nil {
		return outcome{err: err}
	}
	defer res.Close()

	outputs, err := res.EncodeOutputs()
	if err != nil {
		return outcome{err: err}
	}

	out := outcome{
		score:     res.Score,
		threshold: float64(res.Threshold),
		regions: lo.Map(res.Regions, func(r imageprocessor.Region, _ int) types.Region {
			return types.Region{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
		}),
		outputs: outputs,
		refSHA:  fp.SHA256,
		exif:    exifSummary,
	}
	out.width, out.height = res.Size().X, res.Size().Y
	return out
}

// saveOutputs writes every output under "<id>_<name>" and fills rep.Outputs
func (d *Detector) saveOutputs(ctx context.Context, rep *report.Report, outputs []imageprocessor.EncodedOutput, candidateName string, data []byte) error {
	if d.keepCandidate {
		outputs = append(outputs, imageprocessor.EncodedOutput{Name: "upload_" + candidateName, Data: data})
	}

	for _, o := range outputs {
		key := utils.OutputName(rep.ComparisonID, o.Name)
		if err := d.store.Save(ctx, key, o.Data, utils.ContentType(o.Name)); err != nil {
			return fmt.Errorf("failed to store %s: %w", o.Name, err)
		}
		rep.Outputs = append(rep.Outputs, report.Output{Name: o.Name, URL: d.store.URL(key)})
	}
	return nil
}

// record stores the run in the history database; failures are logged only
func (d *Detector) record(rep *report.Report) {
	if d.db == nil {
		return
	}

	_, err := database.StoreComparison(d.db, types.ComparisonRecord{
		ComparisonID:  rep.ComparisonID,
		CandidateName: rep.Candidate,
		ReferenceSHA:  rep.ReferenceSHA,
		Score:         rep.Score,
		Threshold:     rep.Threshold,
		Regions:       rep.Regions,
		Width:         rep.Width,
		Height:        rep.Height,
		Outputs:       lo.Map(rep.Outputs, func(o report.Output, _ int) string { return o.URL }),
		CreatedAt:     rep.GeneratedAt,
	})
	if err != nil {
		logging.LogError("Failed to record comparison %s: %v", rep.ComparisonID, err)
	}
}

// SetReference validates data as an image, makes it the current reference
// and registers its fingerprint.
func (d *Detector) SetReference(ctx context.Context, name string, data []byte) (*types.ReferenceInfo, error) {
	if len(data) == 0 {
		return nil, ErrEmptyUpload
	}

	replacer, ok := d.refs.(reference.Replacer)
	if !ok {
		return nil, ErrReadOnlyReference
	}

	mat, err := imageprocessor.DecodeImage(data, name)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	fp, err := imageprocessor.ComputeFingerprint(data, mat)
	if err != nil {
		return nil, err
	}

	img, err := replacer.Replace(ctx, referenceName(name, data), data)
	if err != nil {
		return nil, err
	}

	info := &types.ReferenceInfo{
		Path:        lo.Ternary(img.Path != "", img.Path, img.Name),
		SHA256:      fp.SHA256,
		AverageHash: fp.AverageHash,
		Width:       fp.Width,
		Height:      fp.Height,
		Size:        int64(len(data)),
		CreatedAt:   time.Now().UTC(),
	}

	if d.db != nil {
		if err := database.StoreReference(d.db, *info); err != nil {
			return nil, err
		}
	}

	logging.LogInfo("Reference set to %s (%dx%d, sha256 %s)", info.Path, info.Width, info.Height, info.SHA256[:12])
	return info, nil
}

// referenceName gives name an extension matching the encoded format of data
// when it has no image extension, so uploads named "blob" can be stored.
func referenceName(name string, data []byte) string {
	if utils.IsImageFile(name) {
		return name
	}

	ext := "png"
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		ext = lo.Ternary(format == "jpeg", "jpg", format)
	}

	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	if base == "" || base == "." || base == "/" {
		base = "original"
	}
	return base + "." + ext
}

// CurrentReference returns the fingerprint of the current reference image.
func (d *Detector) CurrentReference(ctx context.Context) (*types.ReferenceInfo, error) {
	ref, err := d.refs.Reference(ctx)
	if err != nil {
		return nil, err
	}

	mat, err := imageprocessor.DecodeImage(ref.Data, ref.Name)
	if err != nil {
		return nil, &ReferenceError{Err: err}
	}
	defer mat.Close()

	fp, err := imageprocessor.ComputeFingerprint(ref.Data, mat)
	if err != nil {
		return nil, &ReferenceError{Err: err}
	}

	return &types.ReferenceInfo{
		Path:        lo.Ternary(ref.Path != "", ref.Path, ref.Name),
		SHA256:      fp.SHA256,
		AverageHash: fp.AverageHash,
		Width:       fp.Width,
		Height:      fp.Height,
		Size:        int64(len(ref.Data)),
		CreatedAt:   ref.ModTime,
	}, nil
}
