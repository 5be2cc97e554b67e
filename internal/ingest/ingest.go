// Package ingest loads and normalizes reference voices from the curated
// catalog or from uploaded audio into the pipeline's canonical waveform.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/book-expert/logger"

	"github.com/speech-forge/voiceclone-service/internal/audio"
	"github.com/speech-forge/voiceclone-service/internal/core"
)

const catalogSampleExt = ".wav"

// ErrEmptyCatalogDir indicates the samples directory contains no catalog entries.
var ErrEmptyCatalogDir = errors.New("no catalog samples found")

// Options are the tunable ingestion parameters, passed in at construction.
type Options struct {
	TargetSampleRate    int
	SilenceThresholdDB  float64
	PeakTarget          float64
	MinReferenceSeconds float64
	MaxReferenceSeconds float64
	MaxUploadBytes      int64
}

// Ingestor resolves and normalizes reference voices. The catalog mapping is
// established at construction and immutable thereafter, so all methods are
// safe for concurrent use.
type Ingestor struct {
	opts    Options
	catalog map[string][]byte
	log     *logger.Logger
}

// New creates an Ingestor over a fixed catalog of name -> raw WAV bytes.
func New(opts Options, catalog map[string][]byte, log *logger.Logger) *Ingestor {
	return &Ingestor{
		opts:    opts,
		catalog: catalog,
		log:     log,
	}
}

// LoadCatalog reads every .wav file in dir into a catalog mapping keyed by
// the file name without extension.
func LoadCatalog(dir string) (map[string][]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read samples directory '%s': %w", dir, err)
	}

	catalog := make(map[string][]byte)

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), catalogSampleExt) {
			continue
		}

		data, readErr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if readErr != nil {
			return nil, fmt.Errorf("failed to read sample '%s': %w", entry.Name(), readErr)
		}

		name := strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name()))
		catalog[name] = data
	}

	if len(catalog) == 0 {
		return nil, fmt.Errorf("%w in '%s'", ErrEmptyCatalogDir, dir)
	}

	return catalog, nil
}

// Samples returns the catalog entry names in sorted order.
func (i *Ingestor) Samples() []string {
	names := make([]string, 0, len(i.catalog))
	for name := range i.catalog {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// ResolveSample looks up a curated catalog entry and returns its normalized
// reference. Identical names always yield bit-identical waveforms because
// every processing step is deterministic.
func (i *Ingestor) ResolveSample(name string) (core.VoiceReference, error) {
	data, ok := i.catalog[name]
	if !ok {
		return core.VoiceReference{}, fmt.Errorf("%w: '%s'", core.ErrSampleNotFound, name)
	}

	channels, rate, err := audio.Decode(data)
	if err != nil {
		return core.VoiceReference{}, fmt.Errorf("failed to decode catalog sample '%s': %w", name, err)
	}

	waveform, err := i.normalize(channels, rate)
	if err != nil {
		return core.VoiceReference{}, err
	}

	return core.VoiceReference{
		Origin:   core.OriginCatalog,
		Identity: name,
		Waveform: waveform,
	}, nil
}

// IngestUpload decodes uploaded audio bytes into a normalized reference.
// The size ceiling is checked before any decoding work. WAV containers are
// decoded directly; anything else is converted through ffmpeg and rejected
// with ErrUnsupportedFormat when conversion fails too.
func (i *Ingestor) IngestUpload(ctx context.Context, data []byte, declaredMIME string) (core.VoiceReference, error) {
	if int64(len(data)) > i.opts.MaxUploadBytes {
		return core.VoiceReference{}, fmt.Errorf(
			"%w: %d bytes exceeds ceiling of %d",
			core.ErrFileTooLarge, len(data), i.opts.MaxUploadBytes,
		)
	}

	channels, rate, err := audio.Decode(data)
	if err != nil {
		i.log.Warn("Direct WAV decode failed (%s), attempting ffmpeg conversion: %v", declaredMIME, err)

		converted, convErr := i.convertWithFFmpeg(ctx, data)
		if convErr != nil {
			return core.VoiceReference{}, fmt.Errorf("%w: %w", core.ErrUnsupportedFormat, convErr)
		}

		channels, rate, err = audio.Decode(converted)
		if err != nil {
			return core.VoiceReference{}, fmt.Errorf("failed to decode converted upload: %w", err)
		}
	}

	waveform, err := i.normalize(channels, rate)
	if err != nil {
		return core.VoiceReference{}, err
	}

	checksum := sha256.Sum256(data)

	return core.VoiceReference{
		Origin:   core.OriginUpload,
		Identity: hex.EncodeToString(checksum[:]),
		Waveform: waveform,
	}, nil
}

// normalize applies the canonical processing pipeline: mono downmix,
// resample to the target rate, silence trim, length cap, peak normalization.
func (i *Ingestor) normalize(channels [][]float64, rate int) (core.Waveform, error) {
	mono := audio.DownmixMono(channels)
	mono = audio.Resample(mono, rate, i.opts.TargetSampleRate)
	mono = audio.TrimSilence(mono, i.opts.SilenceThresholdDB)

	minSamples := int(i.opts.MinReferenceSeconds * float64(i.opts.TargetSampleRate))
	if len(mono) == 0 || len(mono) < minSamples {
		return core.Waveform{}, fmt.Errorf(
			"%w: %d usable samples, need at least %d",
			core.ErrSilenceOnly, len(mono), minSamples,
		)
	}

	maxSamples := int(i.opts.MaxReferenceSeconds * float64(i.opts.TargetSampleRate))
	if maxSamples > 0 && len(mono) > maxSamples {
		mono = mono[:maxSamples]
	}

	mono = audio.NormalizePeak(mono, i.opts.PeakTarget)

	return core.Waveform{
		Samples:    mono,
		SampleRate: i.opts.TargetSampleRate,
	}, nil
}

// convertWithFFmpeg shells out to ffmpeg to transcode an arbitrary container
// into mono PCM WAV at the target rate.
func (i *Ingestor) convertWithFFmpeg(ctx context.Context, data []byte) ([]byte, error) {
	inputFile, err := os.CreateTemp("", "voiceclone-upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp input file: %w", err)
	}

	defer i.removeTempFile(inputFile.Name())

	_, writeErr := inputFile.Write(data)
	closeErr := inputFile.Close()

	if writeErr != nil {
		return nil, fmt.Errorf("failed to write temp input file: %w", writeErr)
	}

	if closeErr != nil {
		return nil, fmt.Errorf("failed to close temp input file: %w", closeErr)
	}

	outputPath := inputFile.Name() + catalogSampleExt
	defer i.removeTempFile(outputPath)

	output, err := runFFmpeg(ctx, inputFile.Name(), outputPath, i.opts.TargetSampleRate)
	if err != nil {
		return nil, fmt.Errorf("ffmpeg conversion failed: %w - output: %s", err, string(output))
	}

	converted, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read converted audio: %w", err)
	}

	return converted, nil
}

func (i *Ingestor) removeTempFile(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		i.log.Warn("Failed to remove temp file '%s': %v", path, removeErr)
	}
}

func ffmpegArgs(inputPath, outputPath string, sampleRate int) []string {
	return []string{
		"-i", inputPath,
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(sampleRate),
		"-ac", "1",
		"-y",
		outputPath,
	}
}
