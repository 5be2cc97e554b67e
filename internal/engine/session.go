// Package engine owns the loaded inference engine and serializes access to
// it. The engine is non-reentrant, so a single exclusive-access token gates
// every invocation, and each invocation runs in its own abandonable worker
// so a timed-out call cannot corrupt the engine for the next holder.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"

	"github.com/speech-forge/voiceclone-service/internal/core"
)

// Session wraps the process-wide inference engine singleton. It is created
// once at startup, loaded synchronously before any request is accepted, and
// released at shutdown.
type Session struct {
	engine         core.InferenceEngine
	token          chan struct{}
	defaultTimeout time.Duration
	loaded         atomic.Bool
	corrupted      atomic.Bool
	log            *logger.Logger
}

// NewSession creates a Session around an engine. defaultTimeout bounds
// invocations whose caller context carries no deadline of its own.
func NewSession(eng core.InferenceEngine, defaultTimeout time.Duration, log *logger.Logger) *Session {
	return &Session{
		engine:         eng,
		token:          make(chan struct{}, 1),
		defaultTimeout: defaultTimeout,
		log:            log,
	}
}

// Load loads the engine. It blocks until the engine is ready; a failure here
// is fatal to process startup. Load is idempotent after the first success.
func (s *Session) Load(ctx context.Context) error {
	if s.loaded.Load() {
		return nil
	}

	err := s.engine.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load inference engine: %w", err)
	}

	s.loaded.Store(true)
	s.log.System("Inference engine loaded and ready.")

	return nil
}

// Loaded reports whether startup loading has completed.
func (s *Session) Loaded() bool {
	return s.loaded.Load()
}

// Healthy reports whether the engine is loaded and not flagged as corrupted.
// A corrupted engine requires a process restart.
func (s *Session) Healthy() bool {
	return s.loaded.Load() && !s.corrupted.Load()
}

// Close releases the engine at shutdown.
func (s *Session) Close() error {
	closeErr := s.engine.Close()
	if closeErr != nil {
		return fmt.Errorf("failed to close inference engine: %w", closeErr)
	}

	return nil
}

// Synthesize acquires the exclusive-access token and runs one inference.
//
// The caller's context deadline bounds both phases: waiting for the token
// (ErrBusy on expiry, the engine is never invoked) and waiting for the
// invocation itself (ErrInferenceTimeout on expiry). The invocation runs in
// its own worker with a detached context carrying the same deadline, and the
// token is released only once that worker genuinely terminates - a hung
// invocation therefore delays queued callers until it exits.
func (s *Session) Synthesize(
	ctx context.Context,
	text, language string,
	reference core.Waveform,
) (core.Waveform, error) {
	if !s.loaded.Load() {
		return core.Waveform{}, fmt.Errorf("%w: engine not loaded", core.ErrEngineFailure)
	}

	if s.corrupted.Load() {
		return core.Waveform{}, fmt.Errorf("%w: restart required", core.ErrEngineCorrupted)
	}

	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		return core.Waveform{}, fmt.Errorf("%w: token not acquired before deadline", core.ErrBusy)
	}

	results := s.runInvocation(ctx, text, language, reference)

	select {
	case res := <-results:
		return s.finishInvocation(res)
	case <-ctx.Done():
		return core.Waveform{}, fmt.Errorf(
			"%w: invocation still running at deadline", core.ErrInferenceTimeout,
		)
	}
}

type invocationResult struct {
	waveform core.Waveform
	err      error
}

// runInvocation starts the isolated worker. The worker owns the token: its
// deferred release is the only release path, so the token stays held for the
// worker's full lifetime even when the caller abandons it. The worker also
// latches the corruption flag itself, so corruption reported after the caller
// gave up at its deadline still poisons the session.
func (s *Session) runInvocation(
	ctx context.Context,
	text, language string,
	reference core.Waveform,
) <-chan invocationResult {
	invCtx, cancel := s.invocationContext(ctx)
	results := make(chan invocationResult, 1)

	go func() {
		defer func() {
			cancel()
			<-s.token
		}()

		waveform, err := s.engine.Synthesize(invCtx, text, language, reference)
		if err != nil && errors.Is(err, core.ErrEngineCorrupted) {
			s.corrupted.Store(true)
			s.log.Error("Inference engine reported corruption: %v", err)
		}

		results <- invocationResult{waveform: waveform, err: err}
	}()

	return results
}

func (s *Session) finishInvocation(res invocationResult) (core.Waveform, error) {
	if res.err == nil {
		return res.waveform, nil
	}

	if errors.Is(res.err, core.ErrEngineCorrupted) {
		return core.Waveform{}, res.err
	}

	return core.Waveform{}, fmt.Errorf("%w: %w", core.ErrEngineFailure, res.err)
}

// invocationContext carries the caller's deadline but not its cancellation:
// the caller abandoning the wait must not tear down a run that the engine
// cannot cooperatively cancel mid-flight.
func (s *Session) invocationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if ok {
		return context.WithDeadline(context.Background(), deadline)
	}

	return context.WithTimeout(context.Background(), s.defaultTimeout)
}
