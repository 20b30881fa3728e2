package codec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"frame-worker/internal/config"
	"frame-worker/internal/domain"
	"frame-worker/internal/domain/ports/adapter"
)

const framePattern = "frame_%04d.png"

var _ adapter.Codec = (*FFmpeg)(nil)

// FFmpeg extracts frames by running the ffmpeg binary at a fixed rate.
type FFmpeg struct {
	path    string
	fps     int
	timeout time.Duration
	log     *zerolog.Logger
}

func NewFFmpeg(cfg config.CodecConfig, logger *zerolog.Logger) *FFmpeg {
	compLog := logger.With().Str("component", "FFmpeg").Logger()
	path := cfg.FFmpegPath
	if path == "" {
		path = "ffmpeg"
	}
	fps := cfg.FPS
	if fps <= 0 {
		fps = 1
	}
	return &FFmpeg{path: path, fps: fps, timeout: cfg.Timeout, log: &compLog}
}

func (f *FFmpeg) Extract(ctx context.Context, input, outDir string) ([]string, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, f.path,
		"-i", input,
		"-vf", fmt.Sprintf("fps=%d", f.fps),
		"-y", filepath.Join(outDir, framePattern),
	)
	cmd.Stderr = &stderr
	cmd.WaitDelay = 5 * time.Second

	f.log.Debug().Str("input", input).Int("fps", f.fps).Msg("ffmpeg started")
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("ffmpeg timeout after %s", f.timeout)
		}
		diag := domain.Truncate(stderr.String(), domain.MaxDiagnosticLen)
		f.log.Error().Err(err).Str("stderr", diag).Msg("ffmpeg failed")
		return nil, fmt.Errorf("ffmpeg failed: %w: %s", err, diag)
	}

	frames, err := listFrames(outDir)
	if err != nil {
		return nil, err
	}
	f.log.Debug().Int("frame_count", len(frames)).Msg("ffmpeg completed")
	return frames, nil
}

// listFrames returns the extracted frame file names in sequence order.
func listFrames(dir string) ([]string, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "frame_*.png"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}
	names := make([]string, 0, len(paths))
	for _, p := range paths {
		names = append(names, filepath.Base(p))
	}
	sort.Strings(names)
	return names, nil
}
