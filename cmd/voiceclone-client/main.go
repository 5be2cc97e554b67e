// main package for the voiceclone-client, a small NATS client for
// submitting synthesis jobs and saving the returned artifact.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/book-expert/logger"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/speech-forge/voiceclone-service/internal/config"
	"github.com/speech-forge/voiceclone-service/internal/objectstore"
	"github.com/speech-forge/voiceclone-service/internal/worker"
)

// Flag names and descriptions.
const (
	flagText          = "text"
	flagTextDesc      = "Text to synthesize"
	flagLanguage      = "language"
	flagLanguageDesc  = "Language code (e.g., en, de)"
	flagSample        = "sample"
	flagSampleDesc    = "Catalog sample name to clone"
	flagReference     = "reference"
	flagReferenceDesc = "Path to a reference audio file to upload and clone"
	flagOutput        = "output"
	flagOutputDesc    = "Output file path (.wav)"
	flagTimeout       = "timeout"
	flagTimeoutDesc   = "Synthesis deadline in seconds"
)

// Defaults.
const (
	defaultLanguage       = "en"
	defaultOutputFile     = "output.wav"
	defaultTimeoutSeconds = 300
	replyGracePeriod      = 10 * time.Second
	outputPermissions     = 0o600
)

// Static errors.
var (
	ErrTextRequired      = errors.New("--text is required")
	ErrNoVoiceSelected   = errors.New("either --sample or --reference must be provided")
	ErrBothVoiceSelected = errors.New("cannot specify both --sample and --reference")
)

type appFlags struct {
	text      string
	language  string
	sample    string
	reference string
	output    string
	timeout   int
}

func parseFlags() *appFlags {
	flags := &appFlags{}

	flag.StringVar(&flags.text, flagText, "", flagTextDesc)
	flag.StringVar(&flags.language, flagLanguage, defaultLanguage, flagLanguageDesc)
	flag.StringVar(&flags.sample, flagSample, "", flagSampleDesc)
	flag.StringVar(&flags.reference, flagReference, "", flagReferenceDesc)
	flag.StringVar(&flags.output, flagOutput, defaultOutputFile, flagOutputDesc)
	flag.IntVar(&flags.timeout, flagTimeout, defaultTimeoutSeconds, flagTimeoutDesc)
	flag.Parse()

	return flags
}

func validateFlags(flags *appFlags) error {
	if flags.text == "" {
		return ErrTextRequired
	}

	if flags.sample == "" && flags.reference == "" {
		return ErrNoVoiceSelected
	}

	if flags.sample != "" && flags.reference != "" {
		return ErrBothVoiceSelected
	}

	return nil
}

func run() error {
	flags := parseFlags()

	err := validateFlags(flags)
	if err != nil {
		return err
	}

	log, err := logger.New(os.TempDir(), "voiceclone-client.log")
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	cfg, err := config.Load(log)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	defer natsConnection.Close()

	return submitJob(cfg, natsConnection, flags)
}

func submitJob(cfg *config.Config, natsConnection *nats.Conn, flags *appFlags) error {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return fmt.Errorf("failed to create JetStream context: %w", err)
	}

	job := worker.SynthesisJob{
		JobID:          uuid.NewString(),
		Text:           flags.text,
		Language:       flags.language,
		SampleName:     flags.sample,
		TimeoutSeconds: flags.timeout,
	}

	uploadKey, err := uploadReference(jetstreamContext, cfg, flags.reference)
	if err != nil {
		return err
	}

	job.UploadKey = uploadKey

	jobData, err := json.Marshal(&job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}

	requestTimeout := time.Duration(flags.timeout)*time.Second + replyGracePeriod

	replyMsg, err := natsConnection.Request(cfg.NATS.SynthesisRequestSubject, jobData, requestTimeout)
	if err != nil {
		return fmt.Errorf("synthesis request failed: %w", err)
	}

	return saveReply(jetstreamContext, cfg, replyMsg.Data, flags.output)
}

func uploadReference(jetstreamContext nats.JetStreamContext, cfg *config.Config, referencePath string) (string, error) {
	if referencePath == "" {
		return "", nil
	}

	data, err := os.ReadFile(referencePath)
	if err != nil {
		return "", fmt.Errorf("failed to read reference file: %w", err)
	}

	uploads, err := objectstore.New(jetstreamContext, cfg.NATS.UploadObjectStoreBucket, cfg.ArtifactTTL())
	if err != nil {
		return "", fmt.Errorf("failed to open upload bucket: %w", err)
	}

	key := uuid.NewString()

	uploadErr := uploads.Upload(context.Background(), key, data)
	if uploadErr != nil {
		return "", fmt.Errorf("failed to upload reference audio: %w", uploadErr)
	}

	return key, nil
}

func saveReply(jetstreamContext nats.JetStreamContext, cfg *config.Config, replyData []byte, outputPath string) error {
	var reply worker.SynthesisReply

	err := json.Unmarshal(replyData, &reply)
	if err != nil {
		return fmt.Errorf("failed to unmarshal reply: %w", err)
	}

	if reply.ErrorCode != "" {
		return fmt.Errorf("synthesis failed (%s): %s", reply.ErrorCode, reply.Error) //nolint:err113
	}

	artifacts, err := objectstore.New(jetstreamContext, cfg.NATS.ArtifactObjectStoreBucket, cfg.ArtifactTTL())
	if err != nil {
		return fmt.Errorf("failed to open artifact bucket: %w", err)
	}

	audioData, err := artifacts.Download(context.Background(), reply.ArtifactKey)
	if err != nil {
		return fmt.Errorf("failed to download artifact '%s': %w", reply.ArtifactKey, err)
	}

	writeErr := os.WriteFile(outputPath, audioData, outputPermissions)
	if writeErr != nil {
		return fmt.Errorf("failed to write output file: %w", writeErr)
	}

	fmt.Printf("Generated: %s (%.1fs at %d Hz)\n", outputPath, reply.DurationSeconds, reply.SampleRate)

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "voiceclone-client: %v\n", err)
		os.Exit(1)
	}
}
