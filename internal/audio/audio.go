// Package audio provides WAV encoding/decoding and the deterministic signal
// transforms applied to reference voices: mono downmix, resampling, silence
// trimming and peak normalization.
package audio

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/speech-forge/voiceclone-service/internal/core"
)

// PCM encoding parameters for stored artifacts.
const (
	pcmBitDepth     = 16
	pcmMaxAmplitude = 32767
	wavAudioFormat  = 1 // uncompressed PCM
)

const dbPerDecade = 20.0

// Static errors.
var (
	ErrEmptyWaveform   = errors.New("waveform has no samples")
	ErrNoAudioData     = errors.New("no audio data in container")
	ErrInvalidRate     = errors.New("invalid sample rate")
	ErrInvalidChannels = errors.New("invalid channel count")
)

// Decode parses a WAV container into per-channel float64 samples in [-1, 1].
// The outer slice is indexed by channel. Decoding is deterministic: identical
// input bytes always yield identical samples.
func Decode(data []byte) (channels [][]float64, sampleRate int, err error) {
	decoder := wav.NewDecoder(bytes.NewReader(data))
	if !decoder.IsValidFile() {
		return nil, 0, fmt.Errorf("%w: not a valid WAV container", core.ErrUnsupportedFormat)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrUnsupportedFormat, err)
	}

	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrUnsupportedFormat, ErrNoAudioData)
	}

	numChannels := buf.Format.NumChannels
	if numChannels <= 0 {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrUnsupportedFormat, ErrInvalidChannels)
	}

	rate := buf.Format.SampleRate
	if rate <= 0 {
		return nil, 0, fmt.Errorf("%w: %w", core.ErrUnsupportedFormat, ErrInvalidRate)
	}

	scale := float64(int64(1) << (decoder.BitDepth - 1))
	frames := len(buf.Data) / numChannels

	channels = make([][]float64, numChannels)
	for ch := range channels {
		channels[ch] = make([]float64, frames)
	}

	for frame := range frames {
		for ch := range numChannels {
			channels[ch][frame] = float64(buf.Data[frame*numChannels+ch]) / scale
		}
	}

	return channels, rate, nil
}

// Encode serializes a mono waveform as an uncompressed 16-bit PCM WAV file.
func Encode(waveform core.Waveform) ([]byte, error) {
	if waveform.Empty() {
		return nil, ErrEmptyWaveform
	}

	if waveform.SampleRate <= 0 {
		return nil, ErrInvalidRate
	}

	intData := make([]int, len(waveform.Samples))
	for i, sample := range waveform.Samples {
		clamped := math.Max(-1.0, math.Min(1.0, sample))
		intData[i] = int(math.Round(clamped * pcmMaxAmplitude))
	}

	var out seekableBuffer

	encoder := wav.NewEncoder(&out, waveform.SampleRate, pcmBitDepth, 1, wavAudioFormat)

	writeErr := encoder.Write(&goaudio.IntBuffer{
		Data:           intData,
		Format:         &goaudio.Format{SampleRate: waveform.SampleRate, NumChannels: 1},
		SourceBitDepth: pcmBitDepth,
	})
	if writeErr != nil {
		return nil, fmt.Errorf("failed to write PCM data: %w", writeErr)
	}

	closeErr := encoder.Close()
	if closeErr != nil {
		return nil, fmt.Errorf("failed to finalize WAV encoder: %w", closeErr)
	}

	return out.Bytes(), nil
}

// DownmixMono collapses multi-channel audio into a single channel by
// averaging the channels sample by sample.
func DownmixMono(channels [][]float64) []float64 {
	if len(channels) == 0 {
		return nil
	}

	if len(channels) == 1 {
		mono := make([]float64, len(channels[0]))
		copy(mono, channels[0])

		return mono
	}

	frames := len(channels[0])
	mono := make([]float64, frames)

	for frame := range frames {
		var sum float64
		for ch := range channels {
			sum += channels[ch][frame]
		}

		mono[frame] = sum / float64(len(channels))
	}

	return mono
}

// Resample converts samples from one rate to another using linear
// interpolation. The transform is pure: the same input always produces the
// same output.
func Resample(samples []float64, fromRate, toRate int) []float64 {
	if fromRate == toRate || len(samples) == 0 {
		out := make([]float64, len(samples))
		copy(out, samples)

		return out
	}

	ratio := float64(fromRate) / float64(toRate)
	outLen := int(math.Ceil(float64(len(samples)) * float64(toRate) / float64(fromRate)))
	out := make([]float64, outLen)

	for i := range outLen {
		position := float64(i) * ratio

		left := int(position)
		if left >= len(samples)-1 {
			out[i] = samples[len(samples)-1]

			continue
		}

		frac := position - float64(left)
		out[i] = samples[left]*(1-frac) + samples[left+1]*frac
	}

	return out
}

// TrimSilence removes leading and trailing samples whose amplitude falls
// below the threshold, expressed in dB under the waveform's peak. A fully
// silent input yields an empty slice.
func TrimSilence(samples []float64, thresholdDB float64) []float64 {
	peak := peakAmplitude(samples)
	if peak == 0 {
		return nil
	}

	threshold := peak * math.Pow(10, -thresholdDB/dbPerDecade)

	start := 0
	for start < len(samples) && math.Abs(samples[start]) < threshold {
		start++
	}

	if start == len(samples) {
		return nil
	}

	end := len(samples) - 1
	for end > start && math.Abs(samples[end]) < threshold {
		end--
	}

	trimmed := make([]float64, end-start+1)
	copy(trimmed, samples[start:end+1])

	return trimmed
}

// NormalizePeak scales samples so the peak amplitude equals target. Silent
// input is returned unchanged.
func NormalizePeak(samples []float64, target float64) []float64 {
	peak := peakAmplitude(samples)

	out := make([]float64, len(samples))
	if peak == 0 {
		copy(out, samples)

		return out
	}

	gain := target / peak
	for i, sample := range samples {
		out[i] = sample * gain
	}

	return out
}

func peakAmplitude(samples []float64) float64 {
	var peak float64
	for _, sample := range samples {
		abs := math.Abs(sample)
		if abs > peak {
			peak = abs
		}
	}

	return peak
}

// seekableBuffer adapts an in-memory buffer to the io.WriteSeeker the WAV
// encoder needs for patching the RIFF header after writing.
type seekableBuffer struct {
	data []byte
	pos  int
}

func (b *seekableBuffer) Write(p []byte) (int, error) {
	if b.pos+len(p) > len(b.data) {
		grown := make([]byte, b.pos+len(p))
		copy(grown, b.data)
		b.data = grown
	}

	copy(b.data[b.pos:], p)
	b.pos += len(p)

	return len(p), nil
}

func (b *seekableBuffer) Seek(offset int64, whence int) (int64, error) {
	var next int

	switch whence {
	case 0: // io.SeekStart
		next = int(offset)
	case 1: // io.SeekCurrent
		next = b.pos + int(offset)
	default: // io.SeekEnd
		next = len(b.data) + int(offset)
	}

	if next < 0 {
		return 0, errors.New("seek before start of buffer")
	}

	b.pos = next

	return int64(next), nil
}

func (b *seekableBuffer) Bytes() []byte {
	return b.data
}
