// ABOUTME: Logger construction from config: JSON or colorized text output
// ABOUTME: The color handler prints "15:04:05 INF message key=value" lines to any writer

package logging

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/fatih/color"
)

// ParseLevel maps a config level name to a slog level. Unknown names are info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger writing to w. format "json" selects slog's JSON
// handler; anything else selects the colorized text handler.
func New(level, format string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)

	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl}))
	}
	return slog.New(NewColorHandler(w, lvl))
}

// ColorHandler is a slog.Handler for humans reading a terminal.
type ColorHandler struct {
	mu     *sync.Mutex // shared by handlers derived with WithAttrs/WithGroup
	w      io.Writer
	level  slog.Level
	attrs  []slog.Attr // already qualified with their group prefix
	prefix string      // "group." for the current WithGroup chain
}

// NewColorHandler creates a handler writing to w.
func NewColorHandler(w io.Writer, level slog.Level) *ColorHandler {
	return &ColorHandler{mu: &sync.Mutex{}, w: w, level: level}
}

func (h *ColorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *ColorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	if !r.Time.IsZero() {
		buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))
	}

	switch {
	case r.Level < slog.LevelInfo:
		buf.WriteString(color.MagentaString("DBG "))
	case r.Level < slog.LevelWarn:
		buf.WriteString(color.CyanString("INF "))
	case r.Level < slog.LevelError:
		buf.WriteString(color.YellowString("WRN "))
	default:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	}

	buf.WriteString(r.Message)

	for _, a := range h.attrs {
		writeAttr(&buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&buf, h.prefix, a)
		return true
	})
	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, buf.String())
	return err
}

func writeAttr(buf *strings.Builder, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	if a.Equal(slog.Attr{}) {
		return
	}
	if a.Value.Kind() == slog.KindGroup {
		if a.Key != "" {
			prefix += a.Key + "."
		}
		for _, ga := range a.Value.Group() {
			writeAttr(buf, prefix, ga)
		}
		return
	}
	buf.WriteString(color.HiBlackString(" " + prefix + a.Key + "="))
	buf.WriteString(a.Value.String())
}

func (h *ColorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		newAttrs = append(newAttrs, a)
	}

	h2 := *h
	h2.attrs = newAttrs
	return &h2
}

func (h *ColorHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	h2 := *h
	h2.prefix = h.prefix + name + "."
	return &h2
}
