package logger

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"montero/internal/requestctx"
)

func TestParseLevel(t *testing.T) {
	cases := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"", zerolog.InfoLevel},
		{"nonsense", zerolog.InfoLevel},
	}
	for _, tc := range cases {
		if got := parseLevel(tc.in); got != tc.want {
			t.Errorf("parseLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestContextLoggerIsUsable(t *testing.T) {
	ctx := requestctx.WithRequestID(context.Background(), "req-1")
	ctx = requestctx.WithJobID(ctx, "job-1")
	if C(ctx) == nil {
		t.Fatal("expected child logger")
	}
	if Named("rpa") == nil || Named("") == nil {
		t.Fatal("expected named logger")
	}
	Nop().Info().Msg("discarded")
}
