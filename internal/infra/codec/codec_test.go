//go:build !integration

package codec

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frame-worker/internal/config"
	"frame-worker/internal/domain"
)

func newTestLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

// fakeFFmpeg writes an executable shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	p := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"+body), 0o755))
	return p
}

func TestFFmpeg_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("should pass the frame rate and return frames in order", func(t *testing.T) {
		// --- Arrange ---
		argsFile := filepath.Join(t.TempDir(), "args")
		bin := fakeFFmpeg(t, `echo "$@" > `+argsFile+`
for last; do :; done
d=$(dirname "$last")
touch "$d/frame_0003.png" "$d/frame_0001.png" "$d/frame_0002.png" "$d/notes.txt"
`)
		out := t.TempDir()
		ff := NewFFmpeg(config.CodecConfig{FFmpegPath: bin, FPS: 2, Timeout: 10 * time.Second}, newTestLogger())

		// --- Act ---
		frames, err := ff.Extract(ctx, "/videos/in.mp4", out)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, []string{"frame_0001.png", "frame_0002.png", "frame_0003.png"}, frames)
		args, err := os.ReadFile(argsFile)
		require.NoError(t, err)
		assert.Contains(t, string(args), "-i /videos/in.mp4")
		assert.Contains(t, string(args), "-vf fps=2")
		assert.Contains(t, string(args), filepath.Join(out, "frame_%04d.png"))
	})

	t.Run("should return an empty list when nothing was extracted", func(t *testing.T) {
		bin := fakeFFmpeg(t, "exit 0\n")
		ff := NewFFmpeg(config.CodecConfig{FFmpegPath: bin}, newTestLogger())

		frames, err := ff.Extract(ctx, "in.mp4", t.TempDir())

		require.NoError(t, err)
		assert.Empty(t, frames)
	})

	t.Run("should surface a truncated stderr on failure", func(t *testing.T) {
		bin := fakeFFmpeg(t, `printf 'Invalid data found when processing input%.0s' $(seq 1 50) >&2
exit 1
`)
		ff := NewFFmpeg(config.CodecConfig{FFmpegPath: bin}, newTestLogger())

		_, err := ff.Extract(ctx, "in.mp4", t.TempDir())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid data found")
		assert.LessOrEqual(t, len(err.Error()), domain.MaxDiagnosticLen+100)
	})

	t.Run("should give up after the configured timeout", func(t *testing.T) {
		bin := fakeFFmpeg(t, "exec sleep 5\n")
		ff := NewFFmpeg(config.CodecConfig{FFmpegPath: bin, Timeout: 50 * time.Millisecond}, newTestLogger())

		start := time.Now()
		_, err := ff.Extract(ctx, "in.mp4", t.TempDir())

		require.Error(t, err)
		assert.Contains(t, err.Error(), "timeout")
		assert.Less(t, time.Since(start), 4*time.Second)
	})
}

func TestZipPackager_Package(t *testing.T) {
	ctx := context.Background()

	writeFrames := func(t *testing.T, names ...string) string {
		t.Helper()
		dir := t.TempDir()
		for _, n := range names {
			require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("png:"+n), 0o600))
		}
		return dir
	}

	t.Run("should archive frames flat and in order", func(t *testing.T) {
		// --- Arrange ---
		names := []string{"frame_0001.png", "frame_0002.png", "frame_0003.png"}
		dir := writeFrames(t, names...)
		archive := filepath.Join(t.TempDir(), "output.zip")

		// --- Act ---
		size, count, err := NewZipPackager().Package(ctx, dir, names, archive)

		// --- Assert ---
		require.NoError(t, err)
		assert.Equal(t, 3, count)
		info, err := os.Stat(archive)
		require.NoError(t, err)
		assert.Equal(t, info.Size(), size)

		zr, err := zip.OpenReader(archive)
		require.NoError(t, err)
		defer zr.Close()
		var got []string
		for _, f := range zr.File {
			got = append(got, f.Name)
			assert.Equal(t, zip.Deflate, f.Method)
		}
		assert.Equal(t, names, got)

		rc, err := zr.File[1].Open()
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		assert.Equal(t, "png:frame_0002.png", string(body))
	})

	t.Run("should fail when a frame is missing", func(t *testing.T) {
		dir := writeFrames(t, "frame_0001.png")

		_, _, err := NewZipPackager().Package(ctx, dir, []string{"frame_0001.png", "frame_0002.png"},
			filepath.Join(t.TempDir(), "output.zip"))

		require.Error(t, err)
		assert.True(t, strings.Contains(err.Error(), "frame_0002.png"))
	})

	t.Run("should stop on a cancelled context", func(t *testing.T) {
		dir := writeFrames(t, "frame_0001.png")
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, _, err := NewZipPackager().Package(cctx, dir, []string{"frame_0001.png"},
			filepath.Join(t.TempDir(), "output.zip"))

		assert.ErrorIs(t, err, context.Canceled)
	})
}
