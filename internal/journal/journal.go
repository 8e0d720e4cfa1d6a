// Package journal implements the two append-only text logs the assistant
// persists: the per-session dialogue transcript and the cross-session
// reflection store.
//
// Both logs share one flat-file format. Every entry starts with a header line
// of the shape
//
//	==== 2006-01-02 15:04:05 ====
//
// optionally followed by " (精炼)" for refined reflection entries. The body is
// everything up to the next header line or end of file. Parsing is purely
// marker-based; the format must stay stable because existing log files are
// read back across releases.
//
// Storage failures never abort a session. Writes log the error and return,
// reads degrade to empty results, so a corrupted or missing log means "no
// history" rather than a crash.
package journal

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	markerPrefix  = "===="
	refinedSuffix = " (精炼)"
	timeLayout    = "2006-01-02 15:04:05"

	logFilePermissions = 0644
	logDirPermissions  = 0755
)

// entryHeader renders the header line for an entry written at ts.
func entryHeader(ts time.Time, refined bool) string {
	header := fmt.Sprintf("%s %s %s", markerPrefix, ts.Format(timeLayout), markerPrefix)
	if refined {
		header += refinedSuffix
	}
	return header
}

// rawEntry is one parsed log entry before domain interpretation.
type rawEntry struct {
	Timestamp time.Time
	Refined   bool
	Body      string
}

// parseEntries splits log content into entries at header lines. Lines before
// the first header (normally none) are ignored, matching the original
// scraper behavior.
func parseEntries(content string) []rawEntry {
	var entries []rawEntry
	var current *rawEntry
	var body []string

	flush := func() {
		if current != nil {
			current.Body = strings.TrimSpace(strings.Join(body, "\n"))
			entries = append(entries, *current)
		}
		body = body[:0]
	}

	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(line, markerPrefix) {
			flush()
			current = &rawEntry{Refined: strings.HasSuffix(strings.TrimRight(line, " "), strings.TrimSpace(refinedSuffix))}
			if ts, ok := parseHeaderTime(line); ok {
				current.Timestamp = ts
			}
			continue
		}
		if current != nil {
			body = append(body, line)
		}
	}
	flush()
	return entries
}

// parseHeaderTime extracts the timestamp between the marker sequences.
func parseHeaderTime(header string) (time.Time, bool) {
	trimmed := strings.TrimSpace(header)
	trimmed = strings.TrimSuffix(trimmed, strings.TrimSpace(refinedSuffix))
	trimmed = strings.Trim(strings.TrimSpace(trimmed), "=")
	trimmed = strings.TrimSpace(trimmed)
	ts, err := time.ParseInLocation(timeLayout, trimmed, time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return ts, true
}

// ensureDir creates the parent directory of path if needed.
func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), logDirPermissions)
}

// appendToFile appends text to the log at path, creating it if missing.
func appendToFile(path, text string) error {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		return fmt.Errorf("failed to write log entry: %w", err)
	}
	return nil
}

// readFile reads the whole log, degrading to empty on any failure.
func readFile(path, component string) string {
	content, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			slog.Error("journal: failed to read log file", "component", component, "path", path, "error", err)
		}
		return ""
	}
	return string(content)
}
