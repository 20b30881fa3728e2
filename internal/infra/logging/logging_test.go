//go:build !integration

package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"frame-worker/internal/config"
)

func TestNew(t *testing.T) {
	t.Run("should write JSON at the configured level", func(t *testing.T) {
		var buf bytes.Buffer
		log := newWithWriter(&buf, config.LogConfig{Level: "warn", Format: "json"}, false)

		log.Info().Msg("hidden")
		log.Warn().Msg("shown")

		var line map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
			t.Fatalf("expected a single JSON line, got %q: %v", buf.String(), err)
		}
		if line["message"] != "shown" {
			t.Errorf("expected message 'shown', got %v", line["message"])
		}
	})

	t.Run("should fall back to info on an unknown level", func(t *testing.T) {
		var buf bytes.Buffer
		log := newWithWriter(&buf, config.LogConfig{Level: "loud"}, false)

		log.Debug().Msg("debug")
		if buf.Len() != 0 {
			t.Errorf("expected debug to be dropped, got %q", buf.String())
		}
		log.Info().Msg("info")
		if buf.Len() == 0 {
			t.Error("expected info to be written")
		}
	})
}

func TestForJob(t *testing.T) {
	var buf bytes.Buffer
	log := newWithWriter(&buf, config.LogConfig{Level: "info"}, false)

	ForJob(log, "job-1", 2).Info().Msg("hello")

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if line["job_id"] != "job-1" || line["attempt"] != float64(2) {
		t.Errorf("expected job fields, got %v", line)
	}
}
