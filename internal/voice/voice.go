// Package voice implements the speech pipeline: text-to-speech synthesis for
// merchant-directed messages, microphone capture with silence detection, and
// speech-to-text transcription.
//
// Synthesis uses the Gemini TTS models and returns raw PCM, which is wrapped
// in a WAV container before playback. Transcription uses Whisper through the
// OpenAI-compatible audio endpoint.
package voice

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"google.golang.org/genai"
)

// Defaults for the synthesis pipeline.
const (
	DefaultTTSModel  = "gemini-2.5-flash-preview-tts"
	DefaultVoiceName = "Kore"
)

// Opts holds voice pipeline configuration.
type Opts struct {
	APIKey    string
	TTSModel  string
	VoiceName string
	Player    Player
}

// Option defines a configuration option for the voice pipeline.
type Option func(*Opts)

// WithAPIKey sets the Gemini API key.
func WithAPIKey(key string) Option {
	return func(o *Opts) { o.APIKey = key }
}

// WithTTSModel sets the text-to-speech model ID.
func WithTTSModel(model string) Option {
	return func(o *Opts) { o.TTSModel = model }
}

// WithVoiceName sets the prebuilt voice used for synthesis.
func WithVoiceName(name string) Option {
	return func(o *Opts) { o.VoiceName = name }
}

// WithPlayer sets the audio playback backend.
func WithPlayer(p Player) Option {
	return func(o *Opts) { o.Player = p }
}

// GoogleSynthesizer synthesizes speech with the Gemini TTS models.
type GoogleSynthesizer struct {
	client *genai.Client
	model  string
	voice  string
	player Player
}

// NewGoogleSynthesizer creates a synthesizer. The API key falls back to the
// GEMINI_API_KEY environment variable.
func NewGoogleSynthesizer(ctx context.Context, opts ...Option) (*GoogleSynthesizer, error) {
	cfg := Opts{TTSModel: DefaultTTSModel, VoiceName: DefaultVoiceName}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if cfg.APIKey == "" {
		slog.Error("GoogleSynthesizer API key not set")
		return nil, fmt.Errorf("Gemini API key not set")
	}
	if cfg.Player == nil {
		cfg.Player = NewPlayer()
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		slog.Error("GoogleSynthesizer client creation failed", "error", err)
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	slog.Debug("GoogleSynthesizer created", "model", cfg.TTSModel, "voice", cfg.VoiceName)

	return &GoogleSynthesizer{
		client: client,
		model:  cfg.TTSModel,
		voice:  cfg.VoiceName,
		player: cfg.Player,
	}, nil
}

// Synthesize converts text to raw PCM audio (mono, 24 kHz, 16-bit).
func (s *GoogleSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: s.voice,
				},
			},
		},
	}

	resp, err := s.client.Models.GenerateContent(ctx, s.model, genai.Text(text), config)
	if err != nil {
		slog.Error("GoogleSynthesizer.Synthesize: generation failed", "error", err)
		return nil, fmt.Errorf("speech generation failed: %w", err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, fmt.Errorf("speech generation returned no audio")
	}
	part := resp.Candidates[0].Content.Parts[0]
	if part.InlineData == nil || len(part.InlineData.Data) == 0 {
		return nil, fmt.Errorf("speech generation returned no audio data")
	}
	slog.Debug("GoogleSynthesizer.Synthesize: audio generated", "bytes", len(part.InlineData.Data))
	return part.InlineData.Data, nil
}

// SynthesizeAndPlay converts text to speech and plays it through the
// configured backend.
func (s *GoogleSynthesizer) SynthesizeAndPlay(ctx context.Context, text string) error {
	pcm, err := s.Synthesize(ctx, text)
	if err != nil {
		return err
	}
	wav := EncodeWAV(pcm, DefaultSampleRate, DefaultChannels, DefaultSampleBits)
	if err := s.player.Play(ctx, wav); err != nil {
		return fmt.Errorf("audio playback failed: %w", err)
	}
	return nil
}
