// Package config_test tests the configuration loading for the voiceclone-service.
package config_test

import (
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/speech-forge/voiceclone-service/internal/config"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()

	tomlData := `
[audio]
target_sample_rate = 22050
silence_threshold_db = 50.0
peak_target = 0.95
min_reference_seconds = 2.0
max_reference_seconds = 30.0
max_upload_bytes = 52428800

[synthesis]
languages = ["en", "de"]
max_text_length = 5000
timeout_seconds = 300
engine_binary = "xtts"
model_path = "models/xtts_v2"

[store]
artifact_dir = "output"
ttl_seconds = 3600
sweep_seconds = 300

[catalog]
samples_dir = "samples"

[nats]
url = "nats://127.0.0.1:4222"
synthesis_request_subject = "voiceclone.synthesis.requested"
upload_object_store_bucket = "VOICE_UPLOADS"
artifact_object_store_bucket = "VOICE_ARTIFACTS"

[paths]
base_logs_dir = "/var/log/voiceclone-service"
`

	var cfg config.Config

	err := toml.Unmarshal([]byte(tomlData), &cfg)
	require.NoError(t, err)

	assert.Equal(t, 22050, cfg.Audio.TargetSampleRate)
	assert.InEpsilon(t, 50.0, cfg.Audio.SilenceThresholdDB, 0.001)
	assert.InEpsilon(t, 0.95, cfg.Audio.PeakTarget, 0.001)
	assert.InEpsilon(t, 2.0, cfg.Audio.MinReferenceSeconds, 0.001)
	assert.InEpsilon(t, 30.0, cfg.Audio.MaxReferenceSeconds, 0.001)
	assert.Equal(t, int64(52428800), cfg.Audio.MaxUploadBytes)

	assert.Equal(t, []string{"en", "de"}, cfg.Synthesis.Languages)
	assert.Equal(t, 5000, cfg.Synthesis.MaxTextLength)
	assert.Equal(t, "xtts", cfg.Synthesis.EngineBinary)
	assert.Equal(t, "models/xtts_v2", cfg.Synthesis.ModelPath)
	assert.Equal(t, 5*time.Minute, cfg.RequestTimeout())

	assert.Equal(t, "output", cfg.Store.ArtifactDir)
	assert.Equal(t, time.Hour, cfg.ArtifactTTL())
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval())

	assert.Equal(t, "samples", cfg.Catalog.SamplesDir)

	assert.Equal(t, "nats://127.0.0.1:4222", cfg.NATS.URL)
	assert.Equal(t, "voiceclone.synthesis.requested", cfg.NATS.SynthesisRequestSubject)
	assert.Equal(t, "VOICE_UPLOADS", cfg.NATS.UploadObjectStoreBucket)
	assert.Equal(t, "VOICE_ARTIFACTS", cfg.NATS.ArtifactObjectStoreBucket)

	assert.Equal(t, "/var/log/voiceclone-service", cfg.Paths.BaseLogsDir)
}
