// main package for the voiceclone-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"

	"github.com/speech-forge/voiceclone-service/internal/config"
	"github.com/speech-forge/voiceclone-service/internal/coordinator"
	"github.com/speech-forge/voiceclone-service/internal/engine"
	"github.com/speech-forge/voiceclone-service/internal/ingest"
	"github.com/speech-forge/voiceclone-service/internal/objectstore"
	"github.com/speech-forge/voiceclone-service/internal/store"
	"github.com/speech-forge/voiceclone-service/internal/worker"
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "voiceclone-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	finalLog, err := setupLogger(cfg.Paths.BaseLogsDir)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := finalLog.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runService(ctx, cfg, finalLog)
}

func runService(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	pipeline, err := buildPipeline(ctx, cfg, log)
	if err != nil {
		return err
	}

	defer func() {
		closeErr := pipeline.session.Close()
		if closeErr != nil {
			log.Warn("Failed to close engine session: %v", closeErr)
		}
	}()

	natsConnection, err := nats.Connect(cfg.NATS.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
	}

	defer natsConnection.Close()

	natsWorker, err := buildWorker(cfg, natsConnection, pipeline, log)
	if err != nil {
		return err
	}

	go runSweeper(ctx, pipeline.artifacts, cfg.SweepInterval(), log)

	log.System("Voiceclone-Service initialized. Listening for jobs on subject: %s", cfg.NATS.SynthesisRequestSubject)

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker exited: %w", runErr)
	}

	return nil
}

// pipeline groups the request-path components built at startup.
type pipeline struct {
	coordinator *coordinator.Coordinator
	session     *engine.Session
	artifacts   *store.FSStore
}

func buildPipeline(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline, error) {
	catalog, err := ingest.LoadCatalog(cfg.Catalog.SamplesDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load voice catalog: %w", err)
	}

	ingestor := ingest.New(ingest.Options{
		TargetSampleRate:    cfg.Audio.TargetSampleRate,
		SilenceThresholdDB:  cfg.Audio.SilenceThresholdDB,
		PeakTarget:          cfg.Audio.PeakTarget,
		MinReferenceSeconds: cfg.Audio.MinReferenceSeconds,
		MaxReferenceSeconds: cfg.Audio.MaxReferenceSeconds,
		MaxUploadBytes:      cfg.Audio.MaxUploadBytes,
	}, catalog, log)

	subprocessEngine := engine.NewSubprocessEngine(engine.SubprocessConfig{
		Binary:           cfg.Synthesis.EngineBinary,
		ModelPath:        cfg.Synthesis.ModelPath,
		TargetSampleRate: cfg.Audio.TargetSampleRate,
	}, log)

	session := engine.NewSession(subprocessEngine, cfg.RequestTimeout(), log)

	// Startup load is synchronous and fatal on failure: no request can
	// proceed without a ready engine.
	loadErr := session.Load(ctx)
	if loadErr != nil {
		return nil, loadErr
	}

	artifacts, err := store.NewFSStore(cfg.Store.ArtifactDir, cfg.ArtifactTTL(), log)
	if err != nil {
		return nil, fmt.Errorf("failed to create artifact store: %w", err)
	}

	coord := coordinator.New(ingestor, session, artifacts, coordinator.Options{
		Languages:       cfg.Synthesis.Languages,
		MaxTextLength:   cfg.Synthesis.MaxTextLength,
		DefaultDeadline: cfg.RequestTimeout(),
	}, log)

	return &pipeline{
		coordinator: coord,
		session:     session,
		artifacts:   artifacts,
	}, nil
}

func buildWorker(
	cfg *config.Config,
	natsConnection *nats.Conn,
	pipe *pipeline,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	uploads, err := objectstore.New(jetstreamContext, cfg.NATS.UploadObjectStoreBucket, cfg.ArtifactTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to open upload bucket: %w", err)
	}

	artifactBucket, err := objectstore.New(jetstreamContext, cfg.NATS.ArtifactObjectStoreBucket, cfg.ArtifactTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact bucket: %w", err)
	}

	return worker.NewNatsWorker(
		natsConnection,
		cfg.NATS.SynthesisRequestSubject,
		uploads,
		artifactBucket,
		pipe.artifacts,
		pipe.coordinator,
		cfg.RequestTimeout(),
		log,
	), nil
}

// runSweeper removes expired artifacts on a fixed interval until shutdown.
func runSweeper(ctx context.Context, artifacts *store.FSStore, interval time.Duration, log *logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, sweepErr := artifacts.Sweep(ctx)
			if sweepErr != nil {
				log.Warn("Artifact sweep failed: %v", sweepErr)

				continue
			}

			if removed > 0 {
				log.Info("Artifact sweep removed %d expired artifacts", removed)
			}
		}
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
