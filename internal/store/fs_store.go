// Package store persists synthesized waveforms as WAV artifacts on the
// filesystem, addressable by generated keys and subject to a TTL.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"

	"github.com/speech-forge/voiceclone-service/internal/audio"
	"github.com/speech-forge/voiceclone-service/internal/core"
)

const (
	artifactExt     = ".wav"
	tempPrefix      = ".tmp-"
	filePermissions = 0o600
	dirPermissions  = 0o750
)

type artifactEntry struct {
	sampleRate int
	duration   time.Duration
	createdAt  time.Time
	expiresAt  time.Time
}

// FSStore implements core.ArtifactStore over a directory. An artifact becomes
// visible atomically: bytes are written to a temp file and renamed into place
// before the key is indexed, so a partially written artifact is never exposed.
type FSStore struct {
	dir   string
	ttl   time.Duration
	mu    sync.Mutex
	index map[string]artifactEntry
	now   func() time.Time
	log   *logger.Logger
}

// NewFSStore creates the artifact directory if needed and returns an empty
// store. Artifacts from earlier runs are not re-indexed; the sweeper's
// directory pass removes their files once orphaned.
func NewFSStore(dir string, ttl time.Duration, log *logger.Logger) (*FSStore, error) {
	mkdirErr := os.MkdirAll(dir, dirPermissions)
	if mkdirErr != nil {
		return nil, fmt.Errorf("failed to create artifact directory '%s': %w", dir, mkdirErr)
	}

	return &FSStore{
		dir:   dir,
		ttl:   ttl,
		index: make(map[string]artifactEntry),
		now:   time.Now,
		log:   log,
	}, nil
}

// Put encodes the waveform as a WAV artifact under a fresh key and records
// its expiry. On any failure nothing is left behind.
func (s *FSStore) Put(_ context.Context, waveform core.Waveform) (core.SynthesisResult, error) {
	wavBytes, err := audio.Encode(waveform)
	if err != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to encode artifact: %w", err)
	}

	key := uuid.NewString() + artifactExt
	finalPath := filepath.Join(s.dir, key)
	tempPath := filepath.Join(s.dir, tempPrefix+key)

	writeErr := os.WriteFile(tempPath, wavBytes, filePermissions)
	if writeErr != nil {
		return core.SynthesisResult{}, fmt.Errorf("failed to write artifact: %w", writeErr)
	}

	renameErr := os.Rename(tempPath, finalPath)
	if renameErr != nil {
		s.removeFile(tempPath)

		return core.SynthesisResult{}, fmt.Errorf("failed to publish artifact: %w", renameErr)
	}

	createdAt := s.now()
	entry := artifactEntry{
		sampleRate: waveform.SampleRate,
		duration:   waveform.Duration(),
		createdAt:  createdAt,
		expiresAt:  createdAt.Add(s.ttl),
	}

	s.mu.Lock()
	s.index[key] = entry
	s.mu.Unlock()

	return core.SynthesisResult{
		Key:        key,
		SampleRate: entry.sampleRate,
		Duration:   entry.duration,
		CreatedAt:  entry.createdAt,
		ExpiresAt:  entry.expiresAt,
	}, nil
}

// Get returns the stored artifact for key, or ErrArtifactNotFound if the key
// is unknown or past expiry.
func (s *FSStore) Get(_ context.Context, key string) (*core.Artifact, error) {
	s.mu.Lock()
	entry, ok := s.index[key]
	s.mu.Unlock()

	if !ok || s.now().After(entry.expiresAt) {
		return nil, fmt.Errorf("%w: '%s'", core.ErrArtifactNotFound, key)
	}

	data, readErr := os.ReadFile(filepath.Join(s.dir, key))
	if readErr != nil {
		// A concurrent sweep or delete can remove the file between the
		// index lookup and the read.
		if os.IsNotExist(readErr) {
			s.mu.Lock()
			delete(s.index, key)
			s.mu.Unlock()

			return nil, fmt.Errorf("%w: '%s'", core.ErrArtifactNotFound, key)
		}

		return nil, fmt.Errorf("failed to read artifact '%s': %w", key, readErr)
	}

	return &core.Artifact{
		Key:        key,
		WAV:        data,
		SampleRate: entry.sampleRate,
		Duration:   entry.duration,
		CreatedAt:  entry.createdAt,
		ExpiresAt:  entry.expiresAt,
	}, nil
}

// Delete removes an artifact explicitly, before its expiry.
func (s *FSStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	_, ok := s.index[key]
	delete(s.index, key)
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: '%s'", core.ErrArtifactNotFound, key)
	}

	s.removeFile(filepath.Join(s.dir, key))

	return nil
}

// Sweep removes every artifact past its expiry and returns the removal
// count. It is idempotent and safe to call periodically or on demand.
func (s *FSStore) Sweep(_ context.Context) (int, error) {
	cutoff := s.now()

	s.mu.Lock()

	var expired []string

	for key, entry := range s.index {
		if cutoff.After(entry.expiresAt) {
			expired = append(expired, key)
			delete(s.index, key)
		}
	}

	s.mu.Unlock()

	for _, key := range expired {
		s.removeFile(filepath.Join(s.dir, key))
	}

	orphans := s.sweepOrphans(cutoff)

	return len(expired) + orphans, nil
}

// sweepOrphans removes files left behind by earlier runs: artifacts that are
// past their TTL but no longer indexed, and stale temp files.
func (s *FSStore) sweepOrphans(cutoff time.Time) int {
	entries, readErr := os.ReadDir(s.dir)
	if readErr != nil {
		s.log.Warn("Failed to scan artifact directory '%s': %v", s.dir, readErr)

		return 0
	}

	removed := 0

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		s.mu.Lock()
		_, indexed := s.index[entry.Name()]
		s.mu.Unlock()

		if indexed {
			continue
		}

		info, infoErr := entry.Info()
		if infoErr != nil {
			continue
		}

		if cutoff.After(info.ModTime().Add(s.ttl)) {
			s.removeFile(filepath.Join(s.dir, entry.Name()))

			removed++
		}
	}

	return removed
}

func (s *FSStore) removeFile(path string) {
	removeErr := os.Remove(path)
	if removeErr != nil && !os.IsNotExist(removeErr) {
		s.log.Warn("Failed to remove artifact file '%s': %v", path, removeErr)
	}
}
