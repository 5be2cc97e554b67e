package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/book-expert/logger"

	"github.com/speech-forge/voiceclone-service/internal/audio"
	"github.com/speech-forge/voiceclone-service/internal/core"
)

// SubprocessConfig configures the external inference binary.
type SubprocessConfig struct {
	Binary           string
	ModelPath        string
	TargetSampleRate int
}

// SubprocessEngine implements core.InferenceEngine by invoking the
// voice-cloning binary. The reference waveform is handed over as a temp WAV
// file and the produced WAV is decoded back into the canonical waveform.
type SubprocessEngine struct {
	cfg SubprocessConfig
	log *logger.Logger
}

// NewSubprocessEngine creates a SubprocessEngine.
func NewSubprocessEngine(cfg SubprocessConfig, log *logger.Logger) *SubprocessEngine {
	return &SubprocessEngine{
		cfg: cfg,
		log: log,
	}
}

// Load verifies the binary and model are present. The model weights
// themselves are loaded lazily by the binary on first invocation.
func (e *SubprocessEngine) Load(_ context.Context) error {
	_, lookErr := exec.LookPath(e.cfg.Binary)
	if lookErr != nil {
		return fmt.Errorf("engine binary '%s' not found: %w", e.cfg.Binary, lookErr)
	}

	_, statErr := os.Stat(e.cfg.ModelPath)
	if statErr != nil {
		return fmt.Errorf("model path '%s' not usable: %w", e.cfg.ModelPath, statErr)
	}

	return nil
}

// Synthesize runs one inference. The context kills the subprocess when the
// invocation deadline expires, so an abandoned run cannot outlive its worker.
func (e *SubprocessEngine) Synthesize(
	ctx context.Context,
	text, language string,
	reference core.Waveform,
) (core.Waveform, error) {
	refPath, outPath, cleanup, err := e.prepareFiles(reference)
	if err != nil {
		return core.Waveform{}, err
	}

	defer cleanup()

	args := []string{
		"--model", e.cfg.ModelPath,
		"--language", language,
		"--speaker-ref", refPath,
		"--output", outPath,
		"--sample-rate", strconv.Itoa(e.cfg.TargetSampleRate),
		"--text", text,
	}

	// #nosec G204 -- text and language are validated upstream, paths are service-created
	cmd := exec.CommandContext(ctx, e.cfg.Binary, args...)

	output, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return core.Waveform{}, fmt.Errorf(
			"engine binary execution failed: %w - output: %s", runErr, string(output),
		)
	}

	return e.readOutput(outPath)
}

// Close releases engine resources. The subprocess model holds nothing open
// between invocations.
func (e *SubprocessEngine) Close() error {
	return nil
}

func (e *SubprocessEngine) prepareFiles(reference core.Waveform) (refPath, outPath string, cleanup func(), err error) {
	refBytes, err := audio.Encode(reference)
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to encode reference waveform: %w", err)
	}

	refFile, err := os.CreateTemp("", "voiceclone-ref-*.wav")
	if err != nil {
		return "", "", nil, fmt.Errorf("failed to create reference temp file: %w", err)
	}

	refPath = refFile.Name()
	outPath = refPath + ".out.wav"
	cleanup = func() {
		e.removeTempFile(refPath)
		e.removeTempFile(outPath)
	}

	_, writeErr := refFile.Write(refBytes)
	closeErr := refFile.Close()

	if writeErr != nil {
		cleanup()

		return "", "", nil, fmt.Errorf("failed to write reference temp file: %w", writeErr)
	}

	if closeErr != nil {
		cleanup()

		return "", "", nil, fmt.Errorf("failed to close reference temp file: %w", closeErr)
	}

	return refPath, outPath, cleanup, nil
}

func (e *SubprocessEngine) readOutput(outPath string) (core.Waveform, error) {
	data, readErr := os.ReadFile(outPath)
	if readErr != nil {
		return core.Waveform{}, fmt.Errorf("failed to read engine output: %w", readErr)
	}

	channels, rate, decodeErr := audio.Decode(data)
	if decodeErr != nil {
		return core.Waveform{}, fmt.Errorf("failed to decode engine output: %w", decodeErr)
	}

	mono := audio.DownmixMono(channels)
	if rate != e.cfg.TargetSampleRate {
		mono = audio.Resample(mono, rate, e.cfg.TargetSampleRate)
	}

	return core.Waveform{
		Samples:    mono,
		SampleRate: e.cfg.TargetSampleRate,
	}, nil
}

func (e *SubprocessEngine) removeTempFile(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		e.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}
