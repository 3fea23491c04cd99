package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// CommandRunner executes an external command feeding it stdin and returns stdout bytes.
type CommandRunner func(ctx context.Context, stdin io.Reader, binary string, args ...string) ([]byte, error)

// FFProbe reads media durations with the ffprobe CLI tool.
type FFProbe struct {
	Binary  string
	Args    []string
	Run     CommandRunner
	Timeout time.Duration
}

// NewFFProbe constructs a probe that shells out to ffprobe.
func NewFFProbe(binary string, timeout time.Duration) *FFProbe {
	if strings.TrimSpace(binary) == "" {
		binary = "ffprobe"
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &FFProbe{
		Binary:  binary,
		Args:    []string{"-v", "error", "-show_entries", "format=duration", "-of", "json", "-i", "pipe:0"},
		Run:     defaultCommandRunner,
		Timeout: timeout,
	}
}

// Duration streams r through ffprobe and returns the container duration.
func (p *FFProbe) Duration(ctx context.Context, r io.Reader) (time.Duration, error) {
	if p == nil {
		return 0, ErrProbeUnavailable
	}
	if p.Run == nil {
		p.Run = defaultCommandRunner
	}

	execCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	out, err := p.Run(execCtx, r, p.Binary, p.Args...)
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	var payload struct {
		Format struct {
			Duration string `json:"duration"`
		} `json:"format"`
	}
	if err := json.Unmarshal(out, &payload); err != nil {
		return 0, fmt.Errorf("parse ffprobe response: %w", err)
	}
	if payload.Format.Duration == "" {
		return 0, errors.New("ffprobe returned no duration")
	}

	seconds, err := strconv.ParseFloat(payload.Format.Duration, 64)
	if err != nil || seconds < 0 {
		return 0, fmt.Errorf("parse ffprobe duration %q", payload.Format.Duration)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

func defaultCommandRunner(ctx context.Context, stdin io.Reader, binary string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Stdin = stdin
	return cmd.Output()
}
