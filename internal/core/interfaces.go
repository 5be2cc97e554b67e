// Package core defines the domain types and interfaces shared by the
// voice-clone synthesis service.
package core

import (
	"context"
	"time"
)

// Waveform is the canonical in-memory audio representation used throughout
// the pipeline: mono float samples at a single sample rate.
type Waveform struct {
	Samples    []float64
	SampleRate int
}

// Duration returns the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}

	seconds := float64(len(w.Samples)) / float64(w.SampleRate)

	return time.Duration(seconds * float64(time.Second))
}

// Empty reports whether the waveform carries no samples.
func (w Waveform) Empty() bool {
	return len(w.Samples) == 0
}

// VoiceOrigin identifies where a reference voice came from.
type VoiceOrigin string

// Supported reference origins.
const (
	OriginCatalog VoiceOrigin = "catalog"
	OriginUpload  VoiceOrigin = "uploaded"
)

// VoiceReference is a normalized reference voice ready for cloning.
// The waveform is always mono at the pipeline's target sample rate, silence
// trimmed and peak normalized.
type VoiceReference struct {
	Origin   VoiceOrigin
	Identity string // catalog name, or content checksum for uploads
	Waveform Waveform
}

// VoiceSource selects a reference voice for a synthesis request: either a
// curated catalog entry by name, or raw uploaded audio bytes.
type VoiceSource struct {
	CatalogName string
	UploadBytes []byte
	UploadMIME  string
}

// SynthesisRequest is a validated request for one synthesis run.
type SynthesisRequest struct {
	Text        string
	Language    string
	Reference   VoiceReference
	SubmittedAt time.Time
}

// SynthesisResult is the handle returned for a stored synthesis artifact.
type SynthesisResult struct {
	Key        string
	SampleRate int
	Duration   time.Duration
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Artifact is a stored synthesized waveform, encoded as a WAV file.
type Artifact struct {
	Key        string
	WAV        []byte
	SampleRate int
	Duration   time.Duration
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// InferenceEngine is the opaque voice-cloning model. Implementations are
// assumed non-reentrant: callers must serialize Synthesize invocations.
type InferenceEngine interface {
	Load(ctx context.Context) error
	Synthesize(ctx context.Context, text, language string, reference Waveform) (Waveform, error)
	Close() error
}

// ArtifactStore persists produced waveforms under generated keys with an
// expiry policy.
type ArtifactStore interface {
	Put(ctx context.Context, waveform Waveform) (SynthesisResult, error)
	Get(ctx context.Context, key string) (*Artifact, error)
	Delete(ctx context.Context, key string) error
	Sweep(ctx context.Context) (int, error)
}

// ObjectStore is a key-value blob store used for job transport: uploaded
// reference audio in, produced artifacts out.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte) error
}
