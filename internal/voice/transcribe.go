package voice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// Transcriber converts recorded speech to text.
type Transcriber interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
}

// transcriptionService abstracts the audio transcription endpoint for tests.
type transcriptionService interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// WhisperTranscriber transcribes speech with the Whisper model.
type WhisperTranscriber struct {
	svc transcriptionService
}

// NewWhisperTranscriber creates a transcriber. The API key falls back to the
// OPENAI_API_KEY environment variable. Transcription uses the standard OpenAI
// endpoint regardless of the chat base URL.
func NewWhisperTranscriber(apiKey string) (*WhisperTranscriber, error) {
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		slog.Error("WhisperTranscriber API key not set")
		return nil, fmt.Errorf("OpenAI API key not set")
	}
	cli := openai.NewClient(option.WithAPIKey(apiKey))
	return &WhisperTranscriber{svc: &cli.Audio.Transcriptions}, nil
}

// Transcribe sends one WAV clip for transcription and returns the trimmed
// text.
func (t *WhisperTranscriber) Transcribe(ctx context.Context, wav []byte) (string, error) {
	resp, err := t.svc.New(ctx, openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(bytes.NewReader(wav), "speech.wav", "audio/wav"),
	})
	if err != nil {
		slog.Error("WhisperTranscriber.Transcribe failed", "error", err)
		return "", fmt.Errorf("transcription failed: %w", err)
	}
	text := strings.TrimSpace(resp.Text)
	slog.Debug("WhisperTranscriber.Transcribe succeeded", "chars", len(text))
	return text, nil
}
