package journal

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/tablevoice/tablevoice/internal/models"
)

// TranscriptLog records every utterance of the running session, in order.
// It is cleared once at session start and appended to synchronously after
// each turn, so its content is always the full conversation history a
// decision step may read.
type TranscriptLog struct {
	path string
	now  func() time.Time
}

// NewTranscriptLog creates a transcript log backed by the file at path.
func NewTranscriptLog(path string) *TranscriptLog {
	return &TranscriptLog{path: path, now: time.Now}
}

// Append records one utterance. I/O failures are logged and swallowed so the
// conversation can proceed with whatever history did persist.
func (t *TranscriptLog) Append(speaker models.Speaker, content string) {
	entry := fmt.Sprintf("%s\n[%s]: %s\n", entryHeader(t.now(), false), speaker, strings.TrimSpace(content))
	if err := appendToFile(t.path, entry); err != nil {
		slog.Error("TranscriptLog.Append: failed to write dialogue entry", "path", t.path, "speaker", speaker, "error", err)
	}
}

// Clear truncates the transcript. Called exactly once at session start.
func (t *TranscriptLog) Clear() {
	if err := ensureDir(t.path); err != nil {
		slog.Error("TranscriptLog.Clear: failed to create log directory", "path", t.path, "error", err)
		return
	}
	if err := os.WriteFile(t.path, nil, logFilePermissions); err != nil {
		slog.Error("TranscriptLog.Clear: failed to truncate transcript", "path", t.path, "error", err)
	}
}

// ReadAll returns the raw transcript text, empty on any read failure.
func (t *TranscriptLog) ReadAll() string {
	return readFile(t.path, "transcript")
}

// Entries parses the transcript back into ordered conversation turns.
func (t *TranscriptLog) Entries() []models.ConversationTurn {
	var turns []models.ConversationTurn
	for _, e := range parseEntries(t.ReadAll()) {
		speaker, content, ok := splitSpeakerTag(e.Body)
		if !ok {
			slog.Warn("TranscriptLog.Entries: entry without speaker tag, skipping", "path", t.path)
			continue
		}
		turns = append(turns, models.ConversationTurn{
			Speaker:   speaker,
			Content:   content,
			Timestamp: e.Timestamp,
		})
	}
	return turns
}

// splitSpeakerTag splits "[speaker]: content" bodies.
func splitSpeakerTag(body string) (models.Speaker, string, bool) {
	if !strings.HasPrefix(body, "[") {
		return "", "", false
	}
	end := strings.Index(body, "]: ")
	if end < 0 {
		return "", "", false
	}
	return models.Speaker(body[1:end]), body[end+len("]: "):], true
}
