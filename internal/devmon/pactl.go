package devmon

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// pactlSubscribe spawns `pactl subscribe` and returns its stdout as the raw
// event stream. Closing the stream kills and reaps the child.
func pactlSubscribe(ctx context.Context) (io.ReadCloser, error) {
	if _, err := exec.LookPath("pactl"); err != nil {
		return nil, fmt.Errorf("pactl not found in PATH: %w", err)
	}

	cmd := exec.CommandContext(ctx, "pactl", "subscribe")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pactl subscribe stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("pactl subscribe start: %w", err)
	}

	return &subscribeStream{ReadCloser: stdout, cmd: cmd}, nil
}

// pactlDefaultSink returns the name of the current default sink
func pactlDefaultSink(ctx context.Context) (string, error) {
	out, err := exec.CommandContext(ctx, "pactl", "get-default-sink").Output()
	if err != nil {
		return "", fmt.Errorf("pactl get-default-sink: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}

type subscribeStream struct {
	io.ReadCloser
	cmd *exec.Cmd
}

func (s *subscribeStream) Close() error {
	err := s.ReadCloser.Close()
	if s.cmd.Process != nil {
		_ = s.cmd.Process.Kill()
	}
	// Reap the child so it does not linger as a zombie
	_ = s.cmd.Wait()
	return err
}
