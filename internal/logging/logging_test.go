package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestNewJSONRedactsSensitiveKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(Config{Format: FormatJSON, Output: &buf, Level: slog.LevelInfo})

	logger.Info("login attempt", slog.String("password", "hunter2"))

	out := buf.String()
	if strings.Contains(out, "hunter2") {
		t.Fatalf("expected password to be redacted, got %q", out)
	}
	if !strings.Contains(out, "[REDACTED]") {
		t.Fatalf("expected redaction marker, got %q", out)
	}
}

func TestWithClientIDAttachesAttribute(t *testing.T) {
	var buf bytes.Buffer
	base := New(Config{Format: FormatJSON, Output: &buf})
	ctx := NewContext(context.Background(), base)

	ctx = WithClientID(ctx, "client-42")
	if got := ClientIDFromContext(ctx); got != "client-42" {
		t.Fatalf("expected client-42, got %q", got)
	}

	FromContext(ctx).Info("ingested")
	if !strings.Contains(buf.String(), "client-42") {
		t.Fatalf("expected logged output to carry client_id, got %q", buf.String())
	}
}
