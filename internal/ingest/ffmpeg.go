package ingest

import (
	"context"
	"os/exec"
)

const ffmpegBinary = "ffmpeg"

// runFFmpeg executes the transcode. The context bounds the subprocess so an
// adversarial container cannot stall ingestion indefinitely.
func runFFmpeg(ctx context.Context, inputPath, outputPath string, sampleRate int) ([]byte, error) {
	// #nosec G204 -- both paths are service-created temp files
	cmd := exec.CommandContext(ctx, ffmpegBinary, ffmpegArgs(inputPath, outputPath, sampleRate)...)

	return cmd.CombinedOutput()
}
