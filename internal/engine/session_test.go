// Package engine_test tests the single-flight inference session.
package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speech-forge/voiceclone-service/internal/core"
	"github.com/speech-forge/voiceclone-service/internal/engine"
)

const testDefaultTimeout = 5 * time.Second

// fakeEngine is a controllable core.InferenceEngine. When gate is non-nil,
// the first Synthesize call blocks until the gate channel is closed.
type fakeEngine struct {
	gate      chan struct{}
	synthErr  error
	delay     time.Duration
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32
}

func (f *fakeEngine) Load(_ context.Context) error {
	return nil
}

func (f *fakeEngine) Synthesize(
	_ context.Context,
	_, _ string,
	_ core.Waveform,
) (core.Waveform, error) {
	call := f.calls.Add(1)

	current := f.active.Add(1)
	defer f.active.Add(-1)

	for {
		observed := f.maxActive.Load()
		if current <= observed || f.maxActive.CompareAndSwap(observed, current) {
			break
		}
	}

	if f.gate != nil && call == 1 {
		<-f.gate
	}

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	if f.synthErr != nil {
		return core.Waveform{}, f.synthErr
	}

	return core.Waveform{
		Samples:    []float64{0.1, -0.1, 0.2},
		SampleRate: 22050,
	}, nil
}

func (f *fakeEngine) Close() error {
	return nil
}

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "test.log")
	require.NoError(t, err)

	return log
}

func loadedSession(t *testing.T, eng *fakeEngine) *engine.Session {
	t.Helper()

	session := engine.NewSession(eng, testDefaultTimeout, testLogger(t))
	require.NoError(t, session.Load(context.Background()))

	return session
}

func TestSynthesizeRequiresLoad(t *testing.T) {
	t.Parallel()

	session := engine.NewSession(&fakeEngine{}, testDefaultTimeout, testLogger(t))

	_, err := session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrEngineFailure)
	assert.False(t, session.Loaded())
}

func TestSynthesizeSuccess(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{}
	session := loadedSession(t, eng)

	waveform, err := session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
	require.NoError(t, err)

	assert.NotEmpty(t, waveform.Samples)
	assert.True(t, session.Healthy())
	assert.Equal(t, int32(1), eng.calls.Load())
}

func TestSynthesizeBusy(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{gate: make(chan struct{})}
	session := loadedSession(t, eng)

	firstDone := make(chan error, 1)

	go func() {
		_, err := session.Synthesize(context.Background(), "first", "en", core.Waveform{})
		firstDone <- err
	}()

	// Wait for the first invocation to actually hold the token.
	require.Eventually(t, func() bool {
		return eng.calls.Load() == 1
	}, time.Second, 5*time.Millisecond)

	busyCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Synthesize(busyCtx, "second", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrBusy)

	// The waiting caller never reached the engine.
	assert.Equal(t, int32(1), eng.calls.Load())

	close(eng.gate)
	require.NoError(t, <-firstDone)
}

func TestSynthesizeTimeoutReleasesTokenAfterTeardown(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{gate: make(chan struct{})}
	session := loadedSession(t, eng)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Synthesize(ctx, "slow", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrInferenceTimeout)

	// Let the abandoned invocation terminate; only then does the token
	// become available again.
	close(eng.gate)

	retryCtx, retryCancel := context.WithTimeout(context.Background(), time.Second)
	defer retryCancel()

	_, err = session.Synthesize(retryCtx, "retry", "en", core.Waveform{})
	require.NoError(t, err)
}

func TestSynthesizeNeverOverlaps(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{delay: 10 * time.Millisecond}
	session := loadedSession(t, eng)

	const submissions = 8

	var waitGroup sync.WaitGroup

	errs := make([]error, submissions)

	for i := range submissions {
		waitGroup.Add(1)

		go func() {
			defer waitGroup.Done()

			_, errs[i] = session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
		}()
	}

	waitGroup.Wait()

	for i, err := range errs {
		require.NoError(t, err, "submission %d", i)
	}

	assert.Equal(t, int32(submissions), eng.calls.Load())
	assert.Equal(t, int32(1), eng.maxActive.Load(), "invocations must be serialized")
}

func TestSynthesizeCorruptionFlagsSession(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{
		synthErr: fmt.Errorf("%w: engine state torn down mid-run", core.ErrEngineCorrupted),
	}
	session := loadedSession(t, eng)

	_, err := session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrEngineCorrupted)
	assert.False(t, session.Healthy())

	// Subsequent calls fail fast without touching the engine again.
	_, err = session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrEngineCorrupted)
	assert.Equal(t, int32(1), eng.calls.Load())
}

func TestSynthesizeCorruptionAfterAbandonedInvocation(t *testing.T) {
	t.Parallel()

	// The invocation outlives the caller's deadline and only then reports
	// corruption. The abandoned worker must still latch the flag so the
	// next caller does not re-invoke the corrupted engine.
	eng := &fakeEngine{
		gate:     make(chan struct{}),
		synthErr: fmt.Errorf("%w: subprocess killed mid-run", core.ErrEngineCorrupted),
	}
	session := loadedSession(t, eng)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := session.Synthesize(ctx, "slow", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrInferenceTimeout)

	close(eng.gate)

	require.Eventually(t, func() bool {
		return !session.Healthy()
	}, time.Second, 5*time.Millisecond, "corruption from an abandoned invocation must poison the session")

	_, err = session.Synthesize(context.Background(), "retry", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrEngineCorrupted)
	assert.Equal(t, int32(1), eng.calls.Load(), "the corrupted engine must not be invoked again")
}

func TestSynthesizeWrapsEngineErrors(t *testing.T) {
	t.Parallel()

	eng := &fakeEngine{synthErr: errors.New("subprocess exited with status 1")}
	session := loadedSession(t, eng)

	_, err := session.Synthesize(context.Background(), "hello", "en", core.Waveform{})
	require.ErrorIs(t, err, core.ErrEngineFailure)

	// Ordinary failures do not poison the session.
	assert.True(t, session.Healthy())
}
