package journal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tablevoice/tablevoice/internal/models"
)

// ReflectionStore persists the assistant's self-critiques across sessions.
// The most recently appended entry is the one injected into generation
// prompts; ReplaceWith collapses the whole store into a single refined entry
// after distillation.
type ReflectionStore struct {
	path string
	now  func() time.Time
}

// NewReflectionStore creates a reflection store backed by the file at path.
func NewReflectionStore(path string) *ReflectionStore {
	return &ReflectionStore{path: path, now: time.Now}
}

// Append adds one reflection entry. I/O failures are logged and swallowed.
func (r *ReflectionStore) Append(text string, refined bool) {
	entry := fmt.Sprintf("\n%s\n%s\n", entryHeader(r.now(), refined), strings.TrimSpace(text))
	if err := appendToFile(r.path, entry); err != nil {
		slog.Error("ReflectionStore.Append: failed to write reflection", "path", r.path, "error", err)
	}
}

// Latest returns the text of the most recently appended entry, or the empty
// string when the store is empty or unreadable.
func (r *ReflectionStore) Latest() string {
	entries := parseEntries(readFile(r.path, "reflection"))
	if len(entries) == 0 {
		return ""
	}
	return entries[len(entries)-1].Body
}

// All returns every entry's text in append order.
func (r *ReflectionStore) All() []string {
	entries := parseEntries(readFile(r.path, "reflection"))
	texts := make([]string, 0, len(entries))
	for _, e := range entries {
		texts = append(texts, e.Body)
	}
	return texts
}

// Entries returns the full parsed entries, including refinement flags.
func (r *ReflectionStore) Entries() []models.ReflectionEntry {
	raw := parseEntries(readFile(r.path, "reflection"))
	entries := make([]models.ReflectionEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, models.ReflectionEntry{
			Timestamp: e.Timestamp,
			Text:      e.Body,
			IsRefined: e.Refined,
		})
	}
	return entries
}

// ReplaceWith truncates the store and writes exactly one refined entry.
// This is the only operation that removes history.
func (r *ReflectionStore) ReplaceWith(distilled string) {
	if err := ensureDir(r.path); err != nil {
		slog.Error("ReflectionStore.ReplaceWith: failed to create log directory", "path", r.path, "error", err)
		return
	}
	entry := fmt.Sprintf("\n%s\n%s\n", entryHeader(r.now(), true), strings.TrimSpace(distilled))
	if err := os.WriteFile(r.path, []byte(entry), logFilePermissions); err != nil {
		slog.Error("ReflectionStore.ReplaceWith: failed to rewrite reflection store", "path", r.path, "error", err)
	}
}
