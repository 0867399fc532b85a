// Package sysutil holds process-level helpers shared by the server and the
// couponctl CLI.
package sysutil

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ConfigureLogging installs the global logger: JSON on stderr, or a
// human-readable console writer when pretty is set. Loggers pulled from a
// context without one attached (zerolog.Ctx) fall back to it.
func ConfigureLogging(level string, pretty bool) {
	configureLogging(os.Stderr, level, pretty)
}

func configureLogging(w io.Writer, level string, pretty bool) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = time.RFC3339Nano

	out := w
	if pretty {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &log.Logger
}

// ParseLevel maps a level name to a zerolog level. "warning" is accepted;
// empty or unknown names mean info.
func ParseLevel(s string) zerolog.Level {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "warning" {
		s = "warn"
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// ParseSwitch reads an on/off flag value. known is false when v is neither.
func ParseSwitch(v string) (on, known bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "y", "on":
		return true, true
	case "0", "false", "no", "n", "off":
		return false, true
	}
	return false, false
}

// FirstNonEmpty returns the first value that is not blank.
func FirstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
