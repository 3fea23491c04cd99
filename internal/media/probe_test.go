package media

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"
)

func TestFFProbeDuration(t *testing.T) {
	probe := NewFFProbe("ffprobe", time.Second)
	probe.Run = func(ctx context.Context, stdin io.Reader, binary string, args ...string) ([]byte, error) {
		if binary != "ffprobe" {
			t.Fatalf("unexpected binary %q", binary)
		}
		if args[len(args)-1] != "pipe:0" {
			t.Fatalf("expected input from stdin, got args %v", args)
		}
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, err
		}
		if string(data) != "video-bytes" {
			t.Fatalf("unexpected stdin %q", data)
		}
		return []byte(`{"format":{"duration":"12.500000"}}`), nil
	}

	d, err := probe.Duration(context.Background(), strings.NewReader("video-bytes"))
	if err != nil {
		t.Fatalf("Duration() error = %v", err)
	}
	if d != 12500*time.Millisecond {
		t.Fatalf("expected 12.5s got %s", d)
	}
}

func TestFFProbeDurationFailures(t *testing.T) {
	cases := map[string]CommandRunner{
		"command error": func(context.Context, io.Reader, string, ...string) ([]byte, error) {
			return nil, errors.New("exit status 1")
		},
		"empty format": func(context.Context, io.Reader, string, ...string) ([]byte, error) {
			return []byte(`{"format":{}}`), nil
		},
		"garbage": func(context.Context, io.Reader, string, ...string) ([]byte, error) {
			return []byte(`not json`), nil
		},
		"not a number": func(context.Context, io.Reader, string, ...string) ([]byte, error) {
			return []byte(`{"format":{"duration":"N/A"}}`), nil
		},
	}

	for name, run := range cases {
		t.Run(name, func(t *testing.T) {
			probe := NewFFProbe("", 0)
			probe.Run = run
			if _, err := probe.Duration(context.Background(), strings.NewReader("")); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestNilFFProbe(t *testing.T) {
	var probe *FFProbe
	if _, err := probe.Duration(context.Background(), strings.NewReader("")); !errors.Is(err, ErrProbeUnavailable) {
		t.Fatalf("expected ErrProbeUnavailable got %v", err)
	}
}
