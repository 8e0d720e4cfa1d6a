package voice

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// Player plays a complete WAV clip.
type Player interface {
	Play(ctx context.Context, wav []byte) error
}

// NewPlayer returns the best available playback backend: a system audio
// player when one is installed, otherwise a sink that writes clips to the
// temp directory so they can be inspected.
func NewPlayer() Player {
	for _, candidate := range []string{"aplay", "paplay", "afplay"} {
		if path, err := exec.LookPath(candidate); err == nil {
			slog.Debug("Player: using system audio player", "binary", path)
			return execPlayerFor(candidate, path)
		}
	}
	slog.Warn("Player: no system audio player found, writing clips to temp files")
	return &filePlayer{dir: os.TempDir()}
}

// execPlayerFor builds the invocation for a known player binary. Each tool
// has its own stdin convention: aplay wants an explicit "-", paplay reads
// stdin when given no file, afplay only plays files.
func execPlayerFor(name, path string) *execPlayer {
	switch name {
	case "aplay":
		return &execPlayer{binary: path, args: []string{"-q", "-"}, stdinCapable: true}
	case "paplay":
		return &execPlayer{binary: path, stdinCapable: true}
	default:
		return &execPlayer{binary: path}
	}
}

// execPlayer pipes the clip to a system audio player.
type execPlayer struct {
	binary       string
	args         []string
	stdinCapable bool
}

func (p *execPlayer) Play(ctx context.Context, wav []byte) error {
	if p.stdinCapable {
		cmd := exec.CommandContext(ctx, p.binary, p.args...)
		cmd.Stdin = bytes.NewReader(wav)
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("%s failed: %w", p.binary, err)
		}
		return nil
	}

	// afplay only reads files.
	path := filepath.Join(os.TempDir(), fmt.Sprintf("tablevoice-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, wav, 0644); err != nil {
		return fmt.Errorf("failed to write audio clip: %w", err)
	}
	defer os.Remove(path)
	cmd := exec.CommandContext(ctx, p.binary, path)
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s failed: %w", p.binary, err)
	}
	return nil
}

// filePlayer writes clips to a directory instead of playing them.
type filePlayer struct {
	dir string
}

func (p *filePlayer) Play(ctx context.Context, wav []byte) error {
	path := filepath.Join(p.dir, fmt.Sprintf("tablevoice-%d.wav", time.Now().UnixNano()))
	if err := os.WriteFile(path, wav, 0644); err != nil {
		return fmt.Errorf("failed to write audio clip: %w", err)
	}
	slog.Info("Player: audio clip written", "path", path)
	return nil
}
