package core

import "errors"

// Validation errors: detected before any resource is touched. The caller must
// fix the input; these are never retried.
var (
	// ErrEmptyText indicates the request text was empty or whitespace only.
	ErrEmptyText = errors.New("text cannot be empty")
	// ErrTextTooLong indicates the request text exceeded the configured maximum length.
	ErrTextTooLong = errors.New("text exceeds maximum length")
	// ErrUnsupportedLanguage indicates the language code is not in the supported set.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrNoVoiceSource indicates neither a catalog name nor uploaded bytes were provided.
	ErrNoVoiceSource = errors.New("no voice source provided")
)

// Resource errors: detected during reference-audio ingestion. The caller must
// supply different input.
var (
	// ErrSampleNotFound indicates the requested catalog sample does not exist.
	ErrSampleNotFound = errors.New("sample not found")
	// ErrUnsupportedFormat indicates the uploaded audio could not be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
	// ErrFileTooLarge indicates the upload exceeded the configured size ceiling.
	ErrFileTooLarge = errors.New("uploaded file too large")
	// ErrSilenceOnly indicates the reference contains no usable audio after trimming.
	ErrSilenceOnly = errors.New("reference audio is silence only")
)

// Concurrency and inference errors.
var (
	// ErrBusy indicates the engine token could not be acquired before the deadline.
	// Safe to retry with backoff.
	ErrBusy = errors.New("engine busy")
	// ErrInferenceTimeout indicates the engine invocation did not complete in time.
	ErrInferenceTimeout = errors.New("inference timed out")
	// ErrEngineFailure indicates the engine invocation failed.
	ErrEngineFailure = errors.New("engine failure")
	// ErrEngineCorrupted indicates the engine singleton is no longer usable and
	// the process must be restarted. Fatal.
	ErrEngineCorrupted = errors.New("engine corrupted")
)

// ErrArtifactNotFound indicates no artifact exists for the given key, or the
// artifact has expired.
var ErrArtifactNotFound = errors.New("artifact not found")

// CodeInternal is the catch-all identifier for errors outside the taxonomy.
const CodeInternal = "Internal"

// Code maps a pipeline error to its stable machine-readable identifier so the
// API layer can choose status codes and retry guidance without string matching.
func Code(err error) string {
	switch {
	case errors.Is(err, ErrEmptyText):
		return "EmptyText"
	case errors.Is(err, ErrTextTooLong):
		return "TextTooLong"
	case errors.Is(err, ErrUnsupportedLanguage):
		return "UnsupportedLanguage"
	case errors.Is(err, ErrNoVoiceSource):
		return "NoVoiceSource"
	case errors.Is(err, ErrSampleNotFound):
		return "SampleNotFound"
	case errors.Is(err, ErrUnsupportedFormat):
		return "UnsupportedFormat"
	case errors.Is(err, ErrFileTooLarge):
		return "FileTooLarge"
	case errors.Is(err, ErrSilenceOnly):
		return "SilenceOnly"
	case errors.Is(err, ErrBusy):
		return "Busy"
	case errors.Is(err, ErrInferenceTimeout):
		return "InferenceTimeout"
	case errors.Is(err, ErrEngineCorrupted):
		return "EngineCorrupted"
	case errors.Is(err, ErrEngineFailure):
		return "EngineFailure"
	case errors.Is(err, ErrArtifactNotFound):
		return "NotFound"
	default:
		return CodeInternal
	}
}
