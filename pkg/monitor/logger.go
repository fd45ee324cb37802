package monitor

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"chatagent/pkg/llm"
)

// logLevel is shared by every handler SetupSlog installs so the level can
// be changed at runtime.
var logLevel = new(slog.LevelVar)

// CustomHandler implements slog.Handler to provide [TIME] [LEVEL] [THREAD] format
type CustomHandler struct {
	mu     *sync.Mutex
	w      io.Writer
	opts   slog.HandlerOptions
	attrs  []slog.Attr
	prefix string
}

func NewCustomHandler(w io.Writer, opts slog.HandlerOptions) *CustomHandler {
	if opts.Level == nil {
		opts.Level = slog.LevelInfo
	}
	return &CustomHandler{
		mu:   &sync.Mutex{},
		w:    w,
		opts: opts,
	}
}

func (h *CustomHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *CustomHandler) Handle(ctx context.Context, r slog.Record) error {
	buf := bytes.NewBuffer(nil)

	// Format: [2006-01-02 15:04:05] [LEVEL] [THREAD/DEBUG_ID] Message
	fmt.Fprintf(buf, "[%s] [%s]",
		r.Time.Format("2006-01-02 15:04:05"),
		r.Level,
	)

	if ctx != nil {
		thread := llm.ThreadIDFromContext(ctx)
		debugID := llm.DebugIDFromContext(ctx)
		switch {
		case thread != "" && debugID != "":
			fmt.Fprintf(buf, " [%s/%s]", thread, debugID)
		case thread != "":
			fmt.Fprintf(buf, " [%s]", thread)
		case debugID != "":
			fmt.Fprintf(buf, " [%s]", debugID)
		}
	}

	fmt.Fprintf(buf, " %s", r.Message)

	for _, a := range h.attrs {
		h.appendAttr(buf, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.appendAttr(buf, h.prefix, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(buf.Bytes())
	return err
}

func (h *CustomHandler) appendAttr(buf *bytes.Buffer, prefix string, a slog.Attr) {
	val := a.Value.Resolve()
	if a.Key == "" && val.Kind() != slog.KindGroup {
		return
	}
	if val.Kind() == slog.KindGroup {
		p := prefix
		if a.Key != "" {
			p = prefix + a.Key + "."
		}
		for _, ga := range val.Group() {
			h.appendAttr(buf, p, ga)
		}
		return
	}

	buf.WriteString(" ")
	buf.WriteString(prefix)
	buf.WriteString(a.Key)
	buf.WriteString("=")

	switch val.Kind() {
	case slog.KindString:
		fmt.Fprintf(buf, "%q", val.String())
	case slog.KindTime:
		buf.WriteString(val.Time().Format(time.RFC3339))
	default:
		fmt.Fprintf(buf, "%v", val.Any())
	}
}

func (h *CustomHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	prefixed := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	prefixed = append(prefixed, h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a.Key = h.prefix + a.Key
		}
		prefixed = append(prefixed, a)
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  prefixed,
		prefix: h.prefix,
	}
}

func (h *CustomHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	return &CustomHandler{
		mu:     h.mu,
		w:      h.w,
		opts:   h.opts,
		attrs:  h.attrs,
		prefix: h.prefix + name + ".",
	}
}

// ParseLevel maps a config string to a slog level; unknown values are info.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
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

// SetupSlog initializes the global slog logger with the CustomHandler
// writing to stderr.
func SetupSlog(levelStr string) {
	SetupSlogWriter(os.Stderr, levelStr)
}

// SetupSlogWriter is SetupSlog with an explicit destination.
func SetupSlogWriter(w io.Writer, levelStr string) {
	logLevel.Set(ParseLevel(levelStr))
	handler := NewCustomHandler(w, slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// SetLogLevel changes the level of the logger installed by SetupSlog.
func SetLogLevel(levelStr string) {
	level := ParseLevel(levelStr)
	if logLevel.Level() != level {
		logLevel.Set(level)
		slog.Info("Log level changed", "level", level.String())
	}
}

// PrintBanner prints the startup banner
func PrintBanner(w io.Writer) {
	fmt.Fprintln(w, `
   ___ _         _     _                _
  / __| |_  __ _| |_  /_\  __ _ ___ _ _| |_
 | (__| ' \/ _' |  _|/ _ \/ _' / -_) ' \  _|
  \___|_||_\__,_|\__/_/ \_\__, \___|_||_\__|
                          |___/`)
}
