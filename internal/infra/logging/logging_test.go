//go:build !integration

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"vpn-subscription-bot/internal/config"
)

func TestWithAddsContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "info", Format: "json"}, false, &buf)

	ctx := WithTraceID(context.Background(), "abc")
	ctx = WithTgID(ctx, 42)
	ctx = WithAction(ctx, "choose_ios")
	With(ctx, base).Info().Msg("hello")

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["trace_id"] != "abc" || line["tg_id"] != float64(42) || line["action"] != "choose_ios" {
		t.Errorf("missing context fields: %v", line)
	}
	if TraceID(ctx) != "abc" {
		t.Errorf("TraceID lookup failed")
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	base := newWithWriter(config.LogConfig{Level: "warn", Format: "json"}, false, &buf)
	base.Info().Msg("dropped")
	if buf.Len() != 0 {
		t.Errorf("info must be filtered at warn level, got %q", buf.String())
	}
}

func TestRedact(t *testing.T) {
	cases := []struct{ in, want string }{
		{"+79991234567", "+79*******67"},
		{"john.doe@example.com", "j***@example.com"},
		{"12345", "***"},
		{"", ""},
	}
	for _, c := range cases {
		if got := Redact(c.in, false); got != c.want {
			t.Errorf("Redact(%q) = %q, want %q", c.in, got, c.want)
		}
	}
	if Redact("+79991234567", true) != "+79991234567" {
		t.Error("dev mode must not redact")
	}
}
