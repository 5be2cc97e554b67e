// Package coordinator validates synthesis requests and drives the pipeline:
// reference ingestion, serialized inference, artifact storage.
package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/book-expert/logger"

	"github.com/speech-forge/voiceclone-service/internal/core"
	"github.com/speech-forge/voiceclone-service/internal/engine"
	"github.com/speech-forge/voiceclone-service/internal/ingest"
	"github.com/speech-forge/voiceclone-service/internal/text"
)

// Options are the request-policy parameters, passed in at construction.
type Options struct {
	Languages       []string
	MaxTextLength   int
	DefaultDeadline time.Duration
}

// Coordinator composes the ingestor, the engine session and the artifact
// store behind a single Submit operation.
type Coordinator struct {
	ingestor        *ingest.Ingestor
	session         *engine.Session
	store           core.ArtifactStore
	normalizer      *text.Normalizer
	languages       map[string]struct{}
	languageList    []string
	maxTextLength   int
	defaultDeadline time.Duration
	log             *logger.Logger
}

// New creates a Coordinator.
func New(
	ingestor *ingest.Ingestor,
	session *engine.Session,
	store core.ArtifactStore,
	opts Options,
	log *logger.Logger,
) *Coordinator {
	languages := make(map[string]struct{}, len(opts.Languages))
	for _, code := range opts.Languages {
		languages[code] = struct{}{}
	}

	return &Coordinator{
		ingestor:        ingestor,
		session:         session,
		store:           store,
		normalizer:      text.NewNormalizer(),
		languages:       languages,
		languageList:    opts.Languages,
		maxTextLength:   opts.MaxTextLength,
		defaultDeadline: opts.DefaultDeadline,
		log:             log,
	}
}

// Languages returns the supported language codes in configured order.
func (c *Coordinator) Languages() []string {
	codes := make([]string, len(c.languageList))
	copy(codes, c.languageList)

	return codes
}

// Samples returns the catalog entry names available for cloning.
func (c *Coordinator) Samples() []string {
	return c.ingestor.Samples()
}

// Submit validates and executes one synthesis request.
//
// Checks run in a fixed fail-fast order before any expensive work: text,
// then language, then voice-source resolution. Only then is the engine
// token requested. On success the waveform is stored and its handle
// returned; on any failure the typed error is returned with no partial side
// effects - in particular, no orphaned artifact is ever stored.
func (c *Coordinator) Submit(
	ctx context.Context,
	requestText, language string,
	source core.VoiceSource,
	deadline time.Duration,
) (core.SynthesisResult, error) {
	normalized, err := c.validateText(requestText)
	if err != nil {
		return core.SynthesisResult{}, err
	}

	if _, ok := c.languages[language]; !ok {
		return core.SynthesisResult{}, fmt.Errorf(
			"%w: '%s' (supported: %s)",
			core.ErrUnsupportedLanguage, language, strings.Join(c.languageList, ", "),
		)
	}

	reference, err := c.resolveReference(ctx, source)
	if err != nil {
		return core.SynthesisResult{}, err
	}

	request := core.SynthesisRequest{
		Text:        normalized,
		Language:    language,
		Reference:   reference,
		SubmittedAt: time.Now(),
	}

	if deadline <= 0 {
		deadline = c.defaultDeadline
	}

	synthCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	waveform, err := c.session.Synthesize(synthCtx, request.Text, request.Language, request.Reference.Waveform)
	if err != nil {
		return core.SynthesisResult{}, err
	}

	result, err := c.store.Put(ctx, waveform)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to store synthesis artifact: %w", err)
	}

	c.log.Info(
		"Synthesized %s audio for %s reference '%s' -> artifact %s",
		result.Duration, request.Reference.Origin, request.Reference.Identity, result.Key,
	)

	return result, nil
}

// validateText checks emptiness and length on the trimmed text, then returns
// the normalized form. Input that survives the checks but normalizes to
// nothing (emoji only, for example) is rejected as empty rather than handed
// to the engine.
func (c *Coordinator) validateText(requestText string) (string, error) {
	trimmed := strings.TrimSpace(requestText)
	if trimmed == "" {
		return "", core.ErrEmptyText
	}

	length := utf8.RuneCountInString(trimmed)
	if length > c.maxTextLength {
		return "", fmt.Errorf(
			"%w: %d characters exceeds maximum of %d",
			core.ErrTextTooLong, length, c.maxTextLength,
		)
	}

	normalized := c.normalizer.Normalize(trimmed)
	if normalized == "" {
		return "", fmt.Errorf("%w: no speakable text after normalization", core.ErrEmptyText)
	}

	return normalized, nil
}

func (c *Coordinator) resolveReference(ctx context.Context, source core.VoiceSource) (core.VoiceReference, error) {
	switch {
	case source.CatalogName != "":
		return c.ingestor.ResolveSample(source.CatalogName)
	case len(source.UploadBytes) > 0:
		return c.ingestor.IngestUpload(ctx, source.UploadBytes, source.UploadMIME)
	default:
		return core.VoiceReference{}, core.ErrNoVoiceSource
	}
}
