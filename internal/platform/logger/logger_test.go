package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestSanitizeRedactsSensitiveKeys(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(core))
	l.Info("open store", "driver", "postgres", "dsn", "postgres://u:p@db/x", "api_token", "abc")

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["dsn"] != "[REDACTED]" {
		t.Fatalf("dsn not redacted: %v", fields["dsn"])
	}
	if fields["api_token"] != "[REDACTED]" {
		t.Fatalf("token not redacted: %v", fields["api_token"])
	}
	if fields["driver"] != "postgres" {
		t.Fatalf("driver should pass through: %v", fields["driver"])
	}
}

func TestSanitizeStripsURLUserinfo(t *testing.T) {
	got := sanitizeValue("url", "postgres://user:pw@host:5432/db")
	if got != "postgres://[REDACTED]@host:5432/db" {
		t.Fatalf("unexpected %v", got)
	}
	if got := sanitizeValue("url", "https://pokeapi.co/api/v2/pokemon/1"); got != "https://pokeapi.co/api/v2/pokemon/1" {
		t.Fatalf("plain url altered: %v", got)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"":        zapcore.InfoLevel,
		"DEBUG":   zapcore.DebugLevel,
		"warning": zapcore.WarnLevel,
		"error":   zapcore.ErrorLevel,
	}
	for in, want := range cases {
		got, err := ParseLevel(in)
		if err != nil {
			t.Fatalf("ParseLevel(%q): %v", in, err)
		}
		if got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestNewBuildsBothModes(t *testing.T) {
	for _, mode := range []string{"development", "production"} {
		l, err := New(mode, "info")
		if err != nil {
			t.Fatalf("New(%s): %v", mode, err)
		}
		l.With("component", "test").Debug("dropped at info")
	}
}
