package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/Graylog2/go-gelf/gelf"
)

// Syslog severities used by GELF.
const (
	gelfLevelError   = 3
	gelfLevelWarning = 4
	gelfLevelInfo    = 6
	gelfLevelDebug   = 7
)

// GelfHandler ships records to a Graylog server over UDP. Shipping is best
// effort: a failed write never surfaces to the caller.
type GelfHandler struct {
	writer *gelf.Writer
	host   string
	level  slog.Level
	attrs  []slog.Attr
}

// NewGelfHandler dials the Graylog address and returns a handler filtering
// below the given level.
func NewGelfHandler(address string, level slog.Level) (*GelfHandler, error) {
	w, err := gelf.NewWriter(address)
	if err != nil {
		return nil, fmt.Errorf("failed to create GELF writer: %w", err)
	}
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "tacmap"
	}
	return &GelfHandler{writer: w, host: hostname, level: level}, nil
}

// Enabled reports whether the record level passes the handler's filter.
func (h *GelfHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

// Handle converts the record to a GELF message and writes it.
func (h *GelfHandler) Handle(_ context.Context, r slog.Record) error {
	extra := make(map[string]any, r.NumAttrs()+len(h.attrs))
	for _, a := range h.attrs {
		extra["_"+a.Key] = a.Value.Any()
	}
	r.Attrs(func(a slog.Attr) bool {
		extra["_"+a.Key] = a.Value.Any()
		return true
	})

	var level int32
	switch {
	case r.Level >= slog.LevelError:
		level = gelfLevelError
	case r.Level >= slog.LevelWarn:
		level = gelfLevelWarning
	case r.Level >= slog.LevelInfo:
		level = gelfLevelInfo
	default:
		level = gelfLevelDebug
	}

	msg := &gelf.Message{
		Version:  "1.1",
		Host:     h.host,
		Short:    r.Message,
		TimeUnix: float64(r.Time.UnixNano()) / 1e9,
		Level:    level,
		Extra:    extra,
	}
	_ = h.writer.WriteMessage(msg)
	return nil
}

// WithAttrs returns a handler carrying the additional attributes.
func (h *GelfHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &GelfHandler{writer: h.writer, host: h.host, level: h.level, attrs: merged}
}

// WithGroup is a no-op; GELF extras are flat.
func (h *GelfHandler) WithGroup(string) slog.Handler {
	return h
}

// Close closes the underlying UDP writer.
func (h *GelfHandler) Close() error {
	return h.writer.Close()
}
