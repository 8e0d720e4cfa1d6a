package voice

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"
)

// Recorder captures microphone audio until the speaker falls silent.
type Recorder struct {
	binary    string
	threshold float64
	duration  time.Duration
}

// NewRecorder creates a recorder backed by the system capture tool (arecord
// or sox's rec). Returns an error when no capture tool is installed.
func NewRecorder(silenceThreshold float64, silenceDuration time.Duration) (*Recorder, error) {
	path, err := exec.LookPath("arecord")
	if err != nil {
		return nil, fmt.Errorf("no audio capture tool found: %w", err)
	}
	if silenceThreshold <= 0 {
		silenceThreshold = DefaultSilenceThreshold
	}
	if silenceDuration <= 0 {
		silenceDuration = DefaultSilenceDuration
	}
	return &Recorder{binary: path, threshold: silenceThreshold, duration: silenceDuration}, nil
}

// RecordUntilSilence captures raw PCM from the microphone and stops once the
// trailing silence reaches the configured duration. It returns the captured
// audio as a WAV clip.
func (r *Recorder) RecordUntilSilence(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, r.binary,
		"-q", "-f", "S16_LE", "-r", fmt.Sprint(DefaultSampleRate), "-c", fmt.Sprint(DefaultChannels), "-t", "raw", "-")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open capture pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start audio capture: %w", err)
	}
	slog.Info("Recorder: recording started")

	detector := NewSilenceDetector(r.threshold, r.duration, DefaultSampleRate)
	// 100ms chunks.
	chunk := make([]byte, DefaultSampleRate/10*2)
	var pcm []byte

	for {
		n, err := io.ReadFull(stdout, chunk)
		if n > 0 {
			pcm = append(pcm, chunk[:n]...)
			if detector.Feed(bytesToSamples(chunk[:n])) {
				slog.Info("Recorder: silence detected, recording stopped")
				break
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				break
			}
			cancel()
			cmd.Wait()
			return nil, fmt.Errorf("audio capture read failed: %w", err)
		}
	}

	cancel()
	cmd.Wait()

	if len(pcm) == 0 {
		return nil, fmt.Errorf("no audio captured")
	}
	slog.Debug("Recorder: capture complete", "seconds", float64(len(pcm))/float64(DefaultSampleRate*2))
	return EncodeWAV(pcm, DefaultSampleRate, DefaultChannels, DefaultSampleBits), nil
}

func bytesToSamples(b []byte) []int16 {
	samples := make([]int16, len(b)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(b[i*2:]))
	}
	return samples
}

// Dictation combines capture and transcription into an input function: it
// prints the prompt, records until silence, and returns the transcript.
func Dictation(recorder *Recorder, transcriber Transcriber, printf func(format string, args ...any)) func(ctx context.Context, prompt string) (string, error) {
	return func(ctx context.Context, prompt string) (string, error) {
		printf("%s（请说话，停顿%.0f秒后自动结束）\n", prompt, DefaultSilenceDuration.Seconds())
		wav, err := recorder.RecordUntilSilence(ctx)
		if err != nil {
			return "", err
		}
		text, err := transcriber.Transcribe(ctx, wav)
		if err != nil {
			return "", err
		}
		printf("识别结果: %s\n", text)
		return text, nil
	}
}
