package logger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestNew_DefaultLevel(t *testing.T) {
	t.Setenv("SPENDSENSE_LOG_LEVEL", "")

	log := New()
	if log.GetLevel() != zerolog.InfoLevel {
		t.Errorf("GetLevel() = %s, want info", log.GetLevel())
	}
}

func TestNew_LevelFromEnv(t *testing.T) {
	tests := []struct {
		raw  string
		want zerolog.Level
	}{
		{raw: "debug", want: zerolog.DebugLevel},
		{raw: "WARN", want: zerolog.WarnLevel},
		{raw: "error", want: zerolog.ErrorLevel},
		{raw: "shouting", want: zerolog.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Setenv("SPENDSENSE_LOG_LEVEL", tt.raw)
			if got := New().GetLevel(); got != tt.want {
				t.Errorf("GetLevel() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	buf := &bytes.Buffer{}
	log := NewWithWriter(buf)

	log.Info().Msg("test message")

	if !strings.Contains(buf.String(), "test message") {
		t.Errorf("output = %q, want it to contain the message", buf.String())
	}
}

func TestWithContext_RoundTrip(t *testing.T) {
	buf := &bytes.Buffer{}
	testLog := NewWithWriter(buf)
	ctx := WithContext(context.Background(), testLog)

	got := FromContext(ctx)
	got.Info().Str("user_id", "user_7").Msg("round trip")

	out := buf.String()
	if !strings.Contains(out, "round trip") || !strings.Contains(out, "user_7") {
		t.Errorf("output = %q, want the stored logger to be used", out)
	}
}

func TestFromContext_Fallback(t *testing.T) {
	log := FromContext(context.Background())

	if log.GetLevel() == zerolog.Disabled {
		t.Error("fallback logger is disabled")
	}
}
