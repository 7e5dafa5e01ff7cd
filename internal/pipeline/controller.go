package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/kapeview/kapeview/internal/model"
)

var (
	// ErrBusy is returned when an action is triggered while a stage is in flight.
	ErrBusy = errors.New("pipeline: a stage is already running")
	// ErrNoFile is returned by Upload before a file is selected.
	ErrNoFile = errors.New("pipeline: no file selected")
	// ErrNoJob is returned by Analyze when there is no uploaded job.
	ErrNoJob = errors.New("pipeline: no uploaded evidence")
)

// Backend is the subset of the backend the controller drives.
type Backend interface {
	Upload(ctx context.Context, req model.UploadRequest, progress func(sent, total int64)) (*model.UploadResult, error)
	StartExtract(ctx context.Context, id string) (*model.ExtractResult, error)
	StartParse(ctx context.Context, id string) (*model.ParseResult, error)
}

// Job tracks one uploaded evidence archive through the pipeline.
type Job struct {
	ID           string
	CaseID       string
	CaseNumber   string
	OriginalName string
	SizeBytes    int64
	SHA256       string
	Stage        Stage
	Artifacts    map[string]string
	LastError    string
	LogTail      string
	Summary      model.Summary
}

// Result is the completion of one stage's round trip.
type Result struct {
	stage   Stage
	gen     uint64
	upload  *model.UploadResult
	extract *model.ExtractResult
	parse   *model.ParseResult
	err     error
}

// Stage returns the stage the result completes.
func (r Result) Stage() Stage { return r.stage }

// Step performs one stage's backend round trip. It blocks and must run off
// the UI loop; its Result goes back through Controller.Apply.
type Step func() Result

// Controller is the ingestion state machine. It holds at most one job.
// It is not safe for concurrent use; Step closures are the only part that
// runs elsewhere.
type Controller struct {
	backend Backend
	timeout time.Duration

	stage    Stage
	req      model.UploadRequest
	job      *Job
	gen      uint64
	failedAt Stage
	lastErr  string
}

// New creates a controller in the idle stage. timeout bounds each round
// trip; zero means model.DefaultRequestTimeout.
func New(b Backend, timeout time.Duration) *Controller {
	if timeout <= 0 {
		timeout = model.DefaultRequestTimeout
	}
	return &Controller{backend: b, timeout: timeout}
}

// Stage returns the current stage.
func (c *Controller) Stage() Stage { return c.stage }

// Job returns the current job, or nil before an upload succeeds.
func (c *Controller) Job() *Job { return c.job }

// File returns the selected archive path.
func (c *Controller) File() string { return c.req.Path }

// Failure returns the most recent failure and the stage it happened in.
func (c *Controller) Failure() (Stage, string, bool) {
	if c.lastErr == "" {
		return StageIdle, "", false
	}
	return c.failedAt, c.lastErr, true
}

// CanUpload reports whether the upload trigger is enabled.
func (c *Controller) CanUpload() bool {
	return c.req.Path != "" && !c.stage.InFlight()
}

// CanAnalyze reports whether the analysis trigger is enabled.
func (c *Controller) CanAnalyze() bool {
	if c.job == nil || c.stage.InFlight() {
		return false
	}
	return c.stage == StageUploaded || c.stage == StageFailed
}

// Status is the one-line description of the current stage.
func (c *Controller) Status() string {
	switch c.stage {
	case StageIdle:
		return "Select an evidence archive"
	case StageReady:
		if c.lastErr != "" {
			return "Upload failed: " + c.lastErr
		}
		return "Ready to upload " + filepath.Base(c.req.Path)
	case StageUploading:
		return "Uploading " + filepath.Base(c.req.Path) + "..."
	case StageUploaded:
		return fmt.Sprintf("Uploaded %s to %s", c.job.OriginalName, c.job.CaseNumber)
	case StageExtracting:
		return "Extracting archive..."
	case StageParsing:
		return "Parsing artifacts..."
	case StageParsed:
		return fmt.Sprintf("Parsed: %d artifacts", len(c.job.Artifacts))
	case StageFailed:
		return fmt.Sprintf("%s failed: %s", stageVerb(c.failedAt), c.lastErr)
	}
	return ""
}

func stageVerb(s Stage) string {
	switch s {
	case StageUploading:
		return "Upload"
	case StageExtracting:
		return "Extraction"
	case StageParsing:
		return "Parsing"
	}
	return "Stage"
}

// SelectFile sets the archive to upload along with its case metadata and
// returns the controller to ready. A finished or failed job is dropped.
func (c *Controller) SelectFile(req model.UploadRequest) error {
	if c.stage.InFlight() {
		return ErrBusy
	}
	if strings.TrimSpace(req.Path) == "" {
		return ErrNoFile
	}
	c.req = req
	c.job = nil
	c.stage = StageReady
	c.failedAt = StageIdle
	c.lastErr = ""
	return nil
}

// Upload starts uploading the selected file. Any prior job is discarded;
// its server-side data is left alone. progress, when non-nil, receives
// byte counts from the Step's goroutine.
func (c *Controller) Upload(progress func(sent, total int64)) (Step, error) {
	if c.stage.InFlight() {
		return nil, ErrBusy
	}
	if c.req.Path == "" {
		return nil, ErrNoFile
	}
	c.gen++
	c.job = nil
	c.lastErr = ""
	c.stage = StageUploading

	gen, req, b, timeout := c.gen, c.req, c.backend, c.timeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := b.Upload(ctx, req, progress)
		return Result{stage: StageUploading, gen: gen, upload: res, err: err}
	}, nil
}

// Analyze starts extraction of the uploaded job. After a failure it resumes
// at the stage that failed.
func (c *Controller) Analyze() (Step, error) {
	if c.stage.InFlight() {
		return nil, ErrBusy
	}
	if c.job == nil {
		return nil, ErrNoJob
	}
	if !c.CanAnalyze() {
		return nil, fmt.Errorf("pipeline: cannot analyze in stage %s", c.stage)
	}
	if c.stage == StageFailed && c.failedAt == StageParsing {
		return c.parseStep(), nil
	}
	return c.extractStep(), nil
}

func (c *Controller) extractStep() Step {
	c.enter(StageExtracting)
	gen, id, b, timeout := c.gen, c.job.ID, c.backend, c.timeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := b.StartExtract(ctx, id)
		return Result{stage: StageExtracting, gen: gen, extract: res, err: err}
	}
}

func (c *Controller) parseStep() Step {
	c.enter(StageParsing)
	gen, id, b, timeout := c.gen, c.job.ID, c.backend, c.timeout
	return func() Result {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		res, err := b.StartParse(ctx, id)
		return Result{stage: StageParsing, gen: gen, parse: res, err: err}
	}
}

func (c *Controller) enter(s Stage) {
	c.stage = s
	c.lastErr = ""
	c.job.Stage = s
	c.job.LastError = ""
}

// Apply records a stage completion and returns the follow-up step, if any.
// Results from a discarded job or for a stage that is no longer current
// are ignored.
func (c *Controller) Apply(r Result) Step {
	if r.gen != c.gen || r.stage != c.stage {
		return nil
	}
	switch r.stage {
	case StageUploading:
		c.applyUpload(r)
	case StageExtracting:
		if c.applyExtract(r) {
			return c.parseStep()
		}
	case StageParsing:
		c.applyParse(r)
	}
	return nil
}

func (c *Controller) applyUpload(r Result) {
	switch {
	case r.err != nil:
		c.uploadFailed(r.err.Error())
	case r.upload == nil || strings.TrimSpace(r.upload.ID) == "":
		c.uploadFailed("invalid upload response: missing evidence id")
	default:
		u := r.upload
		name := u.OriginalName
		if name == "" {
			name = filepath.Base(c.req.Path)
		}
		c.job = &Job{
			ID:           u.ID,
			CaseID:       u.CaseID,
			CaseNumber:   u.CaseNumber,
			OriginalName: name,
			SizeBytes:    u.SizeBytes,
			SHA256:       u.SHA256,
			Stage:        StageUploaded,
		}
		c.stage = StageUploaded
		log.Printf("pipeline: uploaded %s as evidence %s (case %s)", name, u.ID, u.CaseNumber)
	}
}

func (c *Controller) uploadFailed(reason string) {
	log.Printf("pipeline: upload of %s failed: %s", c.req.Path, reason)
	c.failedAt = StageUploading
	c.lastErr = reason
	c.stage = StageReady
}

func (c *Controller) applyExtract(r Result) bool {
	if r.extract != nil && r.extract.OK && r.err == nil {
		return true
	}
	reason := firstNonEmpty(extractError(r.extract), errText(r.err), "extraction failed")
	c.fail(StageExtracting, reason)
	return false
}

func (c *Controller) applyParse(r Result) {
	p := r.parse
	if p != nil && p.Succeeded() {
		c.job.Artifacts = p.Artifacts()
		c.job.LogTail = p.LogTail
		c.job.Summary = p.Summary
		c.job.Stage = StageParsed
		c.stage = StageParsed
		log.Printf("pipeline: evidence %s parsed (%d artifacts)", c.job.ID, len(c.job.Artifacts))
		return
	}
	var reason string
	if p != nil {
		c.job.LogTail = p.LogTail
		reason = firstNonEmpty(p.Error, strings.TrimSpace(p.LogTail))
	}
	reason = firstNonEmpty(reason, errText(r.err), "parsing failed")
	c.fail(StageParsing, reason)
}

func (c *Controller) fail(at Stage, reason string) {
	log.Printf("pipeline: evidence %s %s failed: %s", c.job.ID, at, reason)
	c.failedAt = at
	c.lastErr = reason
	c.job.LastError = reason
	c.job.Stage = StageFailed
	c.stage = StageFailed
}

func extractError(r *model.ExtractResult) string {
	if r == nil {
		return ""
	}
	return r.Error
}

func errText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
