package sysutil

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zerolog.Level{
		"debug":     zerolog.DebugLevel,
		"  DeBuG  ": zerolog.DebugLevel,
		"info":      zerolog.InfoLevel,
		"":          zerolog.InfoLevel,
		"warn":      zerolog.WarnLevel,
		"Warning":   zerolog.WarnLevel,
		"error":     zerolog.ErrorLevel,
		"fatal":     zerolog.FatalLevel,
		"panic":     zerolog.PanicLevel,
		"verbose":   zerolog.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestParseSwitch(t *testing.T) {
	for _, v := range []string{"1", "true", "TRUE", " yes ", "Y", "on"} {
		if on, known := ParseSwitch(v); !on || !known {
			t.Fatalf("ParseSwitch(%q) = %v,%v; want on", v, on, known)
		}
	}
	for _, v := range []string{"0", "false", "No", "n", " off"} {
		if on, known := ParseSwitch(v); on || !known {
			t.Fatalf("ParseSwitch(%q) = %v,%v; want off", v, on, known)
		}
	}
	for _, v := range []string{"", "  ", "enabled", "2"} {
		if _, known := ParseSwitch(v); known {
			t.Fatalf("ParseSwitch(%q) should be unknown", v)
		}
	}
}

func TestFirstNonEmpty(t *testing.T) {
	cases := []struct {
		in   []string
		want string
	}{
		{nil, ""},
		{[]string{" ", "\t"}, ""},
		{[]string{"", "  rewards.db ", "app.db"}, "  rewards.db "},
		{[]string{"flag.db", "env.db"}, "flag.db"},
	}
	for _, tc := range cases {
		if got := FirstNonEmpty(tc.in...); got != tc.want {
			t.Fatalf("FirstNonEmpty(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func restoreLogging(t *testing.T) {
	t.Helper()
	lvl, logger, ctxLogger, tf := zerolog.GlobalLevel(), log.Logger, zerolog.DefaultContextLogger, zerolog.TimeFieldFormat
	t.Cleanup(func() {
		zerolog.SetGlobalLevel(lvl)
		log.Logger = logger
		zerolog.DefaultContextLogger = ctxLogger
		zerolog.TimeFieldFormat = tf
	})
}

func TestConfigureLogging_JSON(t *testing.T) {
	restoreLogging(t)
	var buf bytes.Buffer
	configureLogging(&buf, "warn", false)

	log.Info().Msg("dropped")
	zerolog.Ctx(context.Background()).Warn().Str("run_id", "r1").Msg("kept")

	out := strings.TrimSpace(buf.String())
	if strings.Contains(out, "dropped") {
		t.Fatalf("info should be filtered at warn: %s", out)
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(out), &m); err != nil {
		t.Fatalf("expected one JSON line, got %q: %v", out, err)
	}
	if m["run_id"] != "r1" || m["time"] == nil {
		t.Fatalf("unexpected line: %v", m)
	}
}

func TestConfigureLogging_Pretty(t *testing.T) {
	restoreLogging(t)
	var buf bytes.Buffer
	configureLogging(&buf, "info", true)

	log.Info().Str("code", "A1").Msg("created")
	out := buf.String()
	if strings.HasPrefix(out, "{") || !strings.Contains(out, "created") || !strings.Contains(out, "code=A1") {
		t.Fatalf("expected console output, got %q", out)
	}

	ConfigureLogging("error", false)
	if zerolog.GlobalLevel() != zerolog.ErrorLevel || zerolog.Ctx(context.Background()) != &log.Logger {
		t.Fatalf("public entry point did not install the global logger")
	}
}
