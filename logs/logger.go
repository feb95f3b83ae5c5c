// Package logs builds the process logger.
package logs

import (
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	slogjournal "github.com/systemd/slog-journal"
)

// New returns a logger writing text records to w. When the journal socket
// is reachable records are also sent to the systemd journal, and w is
// skipped when running as a systemd service.
func New(w io.Writer, level slog.Leveler) *slog.Logger {
	return newLogger(w, level, isSystemdService(), func() (slog.Handler, error) {
		return slogjournal.NewHandler(&slogjournal.Options{
			Level:        level,
			ReplaceGroup: journalKey,
			ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
				a.Key = journalKey(a.Key)
				return a
			},
		})
	})
}

func newLogger(w io.Writer, level slog.Leveler, service bool, journal func() (slog.Handler, error)) *slog.Logger {
	var handlers []slog.Handler

	var text slog.Handler
	if !service {
		text = slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
		handlers = append(handlers, text)
	}

	j, err := journal()
	switch {
	case err == nil:
		handlers = append(handlers, j)
	case text != nil:
		slog.New(text).Debug("systemd journal unavailable", "err", err)
	default:
		// service without a journal; fall back to w
		handlers = append(handlers, slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
	}

	return slog.New(slogmulti.Fanout(handlers...))
}

// ParseLevel parses a level name such as "debug" or "warn".
func ParseLevel(s string) (slog.Level, error) {
	var l slog.Level
	err := l.UnmarshalText([]byte(s))
	return l, err
}

func journalKey(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' {
			return r
		}
		return '_'
	}, strings.ToUpper(s))
}

func isSystemdService() bool {
	data, err := os.ReadFile("/proc/self/cgroup")
	if err != nil {
		return false
	}
	parts := strings.SplitN(strings.TrimSpace(string(data)), ":", 3)
	if len(parts) < 3 {
		return false
	}
	return strings.HasSuffix(path.Dir(parts[2]), ".service")
}
