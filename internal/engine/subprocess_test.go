package engine_test

import (
	"context"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speech-forge/voiceclone-service/internal/core"
	"github.com/speech-forge/voiceclone-service/internal/engine"
)

const testTargetRate = 8000

// stubEngineScript copies the reference WAV to the output path, standing in
// for the real inference binary.
const stubEngineScript = `#!/bin/sh
while [ $# -gt 0 ]; do
  case "$1" in
    --speaker-ref) ref="$2"; shift 2 ;;
    --output) out="$2"; shift 2 ;;
    *) shift ;;
  esac
done
cp "$ref" "$out"
`

func writeStubBinary(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "voiceclone-engine")
	require.NoError(t, os.WriteFile(path, []byte(stubEngineScript), 0o700))

	return path
}

func writeModelFile(t *testing.T) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "model.bin")
	require.NoError(t, os.WriteFile(path, []byte("weights"), 0o600))

	return path
}

func referenceWaveform() core.Waveform {
	samples := make([]float64, testTargetRate/2)
	for i := range samples {
		samples[i] = 0.5 * math.Sin(2*math.Pi*440*float64(i)/testTargetRate)
	}

	return core.Waveform{Samples: samples, SampleRate: testTargetRate}
}

func TestSubprocessEngineLoad(t *testing.T) {
	t.Parallel()

	eng := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           writeStubBinary(t),
		ModelPath:        writeModelFile(t),
		TargetSampleRate: testTargetRate,
	}, testLogger(t))

	require.NoError(t, eng.Load(context.Background()))
}

func TestSubprocessEngineLoadMissingBinary(t *testing.T) {
	t.Parallel()

	eng := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           filepath.Join(t.TempDir(), "no-such-binary"),
		ModelPath:        writeModelFile(t),
		TargetSampleRate: testTargetRate,
	}, testLogger(t))

	require.Error(t, eng.Load(context.Background()))
}

func TestSubprocessEngineLoadMissingModel(t *testing.T) {
	t.Parallel()

	eng := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           writeStubBinary(t),
		ModelPath:        filepath.Join(t.TempDir(), "no-such-model.bin"),
		TargetSampleRate: testTargetRate,
	}, testLogger(t))

	require.Error(t, eng.Load(context.Background()))
}

func TestSubprocessEngineSynthesize(t *testing.T) {
	t.Parallel()

	eng := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           writeStubBinary(t),
		ModelPath:        writeModelFile(t),
		TargetSampleRate: testTargetRate,
	}, testLogger(t))

	reference := referenceWaveform()

	waveform, err := eng.Synthesize(context.Background(), "Hello there.", "en", reference)
	require.NoError(t, err)

	assert.Equal(t, testTargetRate, waveform.SampleRate)
	assert.Len(t, waveform.Samples, len(reference.Samples))

	// The stub echoes the reference back through a 16-bit WAV round trip.
	for i := range reference.Samples {
		assert.InDelta(t, reference.Samples[i], waveform.Samples[i], 1.0/32000)
	}
}

func TestSubprocessEngineSynthesizeBinaryFailure(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "failing-engine")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexit 1\n"), 0o700))

	eng := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           path,
		ModelPath:        writeModelFile(t),
		TargetSampleRate: testTargetRate,
	}, testLogger(t))

	_, err := eng.Synthesize(context.Background(), "Hello there.", "en", referenceWaveform())
	require.Error(t, err)
}
