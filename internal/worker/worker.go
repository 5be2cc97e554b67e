// Package worker provides a NATS worker that processes voice-clone
// synthesis jobs: it resolves the job's voice source, submits the request to
// the coordinator, mirrors the produced artifact into the artifact bucket
// and replies with the result metadata.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/speech-forge/voiceclone-service/internal/core"
)

// Submitter is the slice of the coordinator the worker needs.
type Submitter interface {
	Submit(
		ctx context.Context,
		text, language string,
		source core.VoiceSource,
		deadline time.Duration,
	) (core.SynthesisResult, error)
}

// SynthesisJob is the JSON payload of a synthesis request message. The voice
// source is either a catalog sample name or the upload bucket key of
// previously uploaded reference audio.
type SynthesisJob struct {
	JobID          string `json:"job_id"`
	Text           string `json:"text"`
	Language       string `json:"language"`
	SampleName     string `json:"sample_name,omitempty"`
	UploadKey      string `json:"upload_key,omitempty"`
	UploadMIME     string `json:"upload_mime,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
}

// SynthesisReply is the JSON payload sent back on the job's reply subject.
// On failure ErrorCode carries the stable error identifier.
type SynthesisReply struct {
	JobID           string  `json:"job_id"`
	ArtifactKey     string  `json:"artifact_key,omitempty"`
	SampleRate      int     `json:"sample_rate,omitempty"`
	DurationSeconds float64 `json:"duration_seconds,omitempty"`
	ErrorCode       string  `json:"error_code,omitempty"`
	Error           string  `json:"error,omitempty"`
}

// NatsWorker listens for synthesis jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	subject        string
	uploads        core.ObjectStore
	artifacts      core.ObjectStore
	artifactStore  core.ArtifactStore
	submitter      Submitter
	defaultTimeout time.Duration
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	subject string,
	uploads core.ObjectStore,
	artifacts core.ObjectStore,
	artifactStore core.ArtifactStore,
	submitter Submitter,
	defaultTimeout time.Duration,
	log *logger.Logger,
) *NatsWorker {
	return &NatsWorker{
		natsConnection: natsConnection,
		subject:        subject,
		uploads:        uploads,
		artifacts:      artifacts,
		artifactStore:  artifactStore,
		submitter:      submitter,
		defaultTimeout: defaultTimeout,
		log:            log,
	}
}

// Run starts the worker and begins listening for messages.
func (w *NatsWorker) Run(ctx context.Context) error {
	sub, err := w.natsConnection.Subscribe(w.subject, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.subject, err)
	}

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(msg *nats.Msg) {
	var job SynthesisJob

	err := json.Unmarshal(msg.Data, &job)
	if err != nil {
		w.log.Error("Failed to unmarshal synthesis job: %v", err)

		return
	}

	timeout := w.defaultTimeout
	if job.TimeoutSeconds > 0 {
		timeout = time.Duration(job.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	reply := w.processJob(ctx, &job, timeout)

	w.respond(msg, reply)
}

func (w *NatsWorker) processJob(ctx context.Context, job *SynthesisJob, timeout time.Duration) *SynthesisReply {
	source, err := w.resolveSource(ctx, job)
	if err != nil {
		w.log.Error("Failed to resolve voice source for job %s: %v", job.JobID, err)

		return failureReply(job.JobID, err)
	}

	result, err := w.submitter.Submit(ctx, job.Text, job.Language, source, timeout)
	if err != nil {
		w.log.Error("Failed to process synthesis job %s: %v", job.JobID, err)

		return failureReply(job.JobID, err)
	}

	mirrorErr := w.mirrorArtifact(ctx, result.Key)
	if mirrorErr != nil {
		w.log.Error("Failed to mirror artifact %s for job %s: %v", result.Key, job.JobID, mirrorErr)

		return failureReply(job.JobID, mirrorErr)
	}

	return &SynthesisReply{
		JobID:           job.JobID,
		ArtifactKey:     result.Key,
		SampleRate:      result.SampleRate,
		DurationSeconds: result.Duration.Seconds(),
	}
}

// resolveSource turns the job's voice selector into a core.VoiceSource,
// downloading uploaded reference bytes from the upload bucket when needed.
func (w *NatsWorker) resolveSource(ctx context.Context, job *SynthesisJob) (core.VoiceSource, error) {
	if job.UploadKey == "" {
		return core.VoiceSource{CatalogName: job.SampleName}, nil
	}

	data, err := w.uploads.Download(ctx, job.UploadKey)
	if err != nil {
		return core.VoiceSource{}, fmt.Errorf("failed to download upload '%s': %w", job.UploadKey, err)
	}

	return core.VoiceSource{UploadBytes: data, UploadMIME: job.UploadMIME}, nil
}

// mirrorArtifact copies the stored artifact into the artifact bucket so a
// remote client can fetch it by key.
func (w *NatsWorker) mirrorArtifact(ctx context.Context, key string) error {
	artifact, err := w.artifactStore.Get(ctx, key)
	if err != nil {
		return fmt.Errorf("failed to load artifact '%s': %w", key, err)
	}

	uploadErr := w.artifacts.Upload(ctx, key, artifact.WAV)
	if uploadErr != nil {
		return fmt.Errorf("failed to upload artifact '%s': %w", key, uploadErr)
	}

	return nil
}

func (w *NatsWorker) respond(msg *nats.Msg, reply *SynthesisReply) {
	replyData, err := json.Marshal(reply)
	if err != nil {
		w.log.Error("Failed to marshal reply for job %s: %v", reply.JobID, err)

		return
	}

	respondErr := msg.Respond(replyData)
	if respondErr != nil {
		w.log.Error("Failed to publish reply for job %s: %v", reply.JobID, respondErr)
	}
}

func failureReply(jobID string, err error) *SynthesisReply {
	return &SynthesisReply{
		JobID:     jobID,
		ErrorCode: core.Code(err),
		Error:     err.Error(),
	}
}
