// Package pipeline drives one evidence archive through upload, extraction
// and parsing on the backend.
package pipeline

// Stage is the position of the controller in the ingestion pipeline.
// Stages are ordered; later stages compare greater.
type Stage int

const (
	StageIdle Stage = iota
	StageReady
	StageUploading
	StageUploaded
	StageExtracting
	StageParsing
	StageParsed
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageIdle:
		return "idle"
	case StageReady:
		return "ready"
	case StageUploading:
		return "uploading"
	case StageUploaded:
		return "uploaded"
	case StageExtracting:
		return "extracting"
	case StageParsing:
		return "parsing"
	case StageParsed:
		return "parsed"
	case StageFailed:
		return "failed"
	}
	return "unknown"
}

// InFlight reports whether a backend round trip is outstanding.
func (s Stage) InFlight() bool {
	return s == StageUploading || s == StageExtracting || s == StageParsing
}

// Terminal reports whether the analysis reached an end state.
func (s Stage) Terminal() bool {
	return s == StageParsed || s == StageFailed
}

// Checkpoint maps a stage to a coarse progress indicator in percent.
// The backend reports no progress, so this is an approximation of how far
// the pipeline is, not a measurement.
func (s Stage) Checkpoint() int {
	switch s {
	case StageExtracting:
		return 15
	case StageParsing:
		return 60
	case StageParsed, StageFailed:
		return 100
	}
	return 0
}
