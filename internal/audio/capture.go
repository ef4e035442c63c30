package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// CaptureConfig selects the capture device and PCM shape.
type CaptureConfig struct {
	Command     string
	InputFormat string
	InputDevice string
	SampleRate  int
	Channels    int
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	if c.Command == "" {
		c.Command = "ffmpeg"
	}
	if c.SampleRate <= 0 {
		c.SampleRate = 16000
	}
	if c.Channels <= 0 {
		c.Channels = 1
	}
	if c.InputFormat == "" {
		c.InputFormat = "pulse"
	}
	if c.InputDevice == "" {
		c.InputDevice = "default"
	}
	return c
}

// Stream is an open microphone producing signed 16-bit little-endian PCM.
type Stream interface {
	io.Reader
	Stop() error
}

// Capture opens microphone PCM streams using ffmpeg.
type Capture struct {
	cfg CaptureConfig
}

func NewCapture(cfg CaptureConfig) *Capture {
	return &Capture{cfg: cfg.withDefaults()}
}

// Format returns the PCM shape every stream of this capture produces.
func (c *Capture) Format() PCMFormat {
	return PCMFormat{SampleRate: c.cfg.SampleRate, Channels: c.cfg.Channels}
}

// Open starts ffmpeg and returns once the device has stayed open briefly.
func (c *Capture) Open(ctx context.Context) (Stream, error) {
	args := []string{
		"-nostdin",
		"-hide_banner",
		"-loglevel", "warning",
		"-f", c.cfg.InputFormat,
		"-i", c.cfg.InputDevice,
		"-ac", strconv.Itoa(c.cfg.Channels),
		"-ar", strconv.Itoa(c.cfg.SampleRate),
		"-f", "s16le",
		"-",
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	waitErr := make(chan error, 1)
	go func() {
		waitErr <- cmd.Wait()
		close(waitErr)
	}()

	select {
	case err := <-waitErr:
		if err != nil {
			return nil, fmt.Errorf("ffmpeg exited before capture started: %w: %s", err, trimOutput(stderr.String()))
		}
		return nil, errors.New("ffmpeg exited before capture started")
	case <-time.After(250 * time.Millisecond):
	}

	return &captureStream{
		stdout:  stdout,
		stderr:  &stderr,
		process: cmd.Process,
		waitErr: waitErr,
	}, nil
}

type captureStream struct {
	stdout io.ReadCloser
	stderr *bytes.Buffer

	process *os.Process
	waitErr <-chan error

	stopOnce sync.Once
	stopErr  error
}

func (s *captureStream) Read(p []byte) (int, error) {
	return s.stdout.Read(p)
}

// Stop interrupts ffmpeg and kills it if it does not exit in time.
func (s *captureStream) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = stopProcess(s.process, s.waitErr, 1200*time.Millisecond)

		if closeErr := s.stdout.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
			if s.stopErr == nil {
				s.stopErr = closeErr
			}
		}

		if s.stopErr != nil && s.stderr != nil && s.stderr.Len() > 0 {
			s.stopErr = fmt.Errorf("%w: %s", s.stopErr, trimOutput(s.stderr.String()))
		}
	})

	return s.stopErr
}

func stopProcess(process *os.Process, waitErr <-chan error, grace time.Duration) error {
	if process != nil {
		_ = process.Signal(os.Interrupt)
	}

	select {
	case err, ok := <-waitErr:
		if ok {
			return normalizeStopErr(err)
		}
		return nil
	case <-time.After(grace):
	}

	if process != nil {
		_ = process.Kill()
	}
	if err, ok := <-waitErr; ok {
		return normalizeStopErr(err)
	}
	return nil
}

func normalizeStopErr(err error) error {
	if err == nil {
		return nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return nil
	}
	return err
}

func trimOutput(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
