package llm

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"chatagent/pkg/utils"
)

// DebugRoot is the directory raw stream chunks are dumped under.
var DebugRoot = "debug"

var filenameSafeRegex = regexp.MustCompile(`[^a-zA-Z0-9_\-]`)

// StreamDebugger handles the creation and writing of debug logs for LLM streams.
// It centralizes the logic for directory creation, file naming, and safe writing.
type StreamDebugger struct {
	file    *os.File
	enabled bool
}

// dumpName prefixes ids from utils.GenerateID with their embedded timestamp
// so dumps sort by creation time.
func dumpName(debugID string, now time.Time) string {
	if debugID == "" {
		return now.Format("20060102_150405")
	}
	safe := filenameSafeRegex.ReplaceAllString(debugID, "_")
	if len(debugID) == 24 {
		if ts, ok := utils.TimeFromID(debugID); ok {
			return ts.Format("20060102_150405") + "_" + safe
		}
	}
	return safe
}

// NewStreamDebugger creates a new debugger instance. When enabled it opens
// debug/chunks/<thread>/<provider>/<debug id or timestamp>.log right away.
func NewStreamDebugger(ctx context.Context, provider string, enabled bool) *StreamDebugger {
	if !enabled {
		return &StreamDebugger{}
	}

	debugDir := filepath.Join(DebugRoot, "chunks", provider)
	if thread := ThreadIDFromContext(ctx); thread != "" {
		debugDir = filepath.Join(DebugRoot, "chunks", filenameSafeRegex.ReplaceAllString(thread, "_"), provider)
	}

	if err := os.MkdirAll(debugDir, 0755); err != nil {
		slog.ErrorContext(ctx, "Failed to create debug directory", "dir", debugDir, "error", err)
		return &StreamDebugger{}
	}

	filename := filepath.Join(debugDir, fmt.Sprintf("%s.log", dumpName(DebugIDFromContext(ctx), time.Now())))

	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to open debug file", "file", filename, "error", err)
		return &StreamDebugger{}
	}

	slog.DebugContext(ctx, "Debug mode ON", "provider", provider, "file", filename)
	return &StreamDebugger{
		file:    f,
		enabled: true,
	}
}

// Enabled reports whether writes reach a file.
func (d *StreamDebugger) Enabled() bool {
	return d.enabled && d.file != nil
}

// Write appends raw data to the debug file if enabled.
// It includes a newline after the data.
func (d *StreamDebugger) Write(data []byte) {
	if !d.Enabled() {
		return
	}
	if _, err := d.file.Write(data); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// WriteString appends a string to the debug file if enabled.
func (d *StreamDebugger) WriteString(s string) {
	if !d.Enabled() {
		return
	}
	if _, err := d.file.WriteString(s); err != nil {
		slog.Warn("Failed to write to debug file", "error", err)
	}
	d.file.WriteString("\n")
}

// WriteJSON marshals v and appends it, ignoring unserializable values.
func (d *StreamDebugger) WriteJSON(v any) {
	if !d.Enabled() {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	d.Write(data)
}

// Close closes the debug file handle.
func (d *StreamDebugger) Close() {
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
}
