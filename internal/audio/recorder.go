package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

const (
	defaultChunkSize     = 4096
	defaultLevelInterval = 100 * time.Millisecond
)

// Source opens microphone streams.
type Source interface {
	Open(ctx context.Context) (Stream, error)
	Format() PCMFormat
}

// RecorderOption customizes a Recorder.
type RecorderOption func(*Recorder)

// WithLevelInterval throttles level reports while a clip is being recorded.
func WithLevelInterval(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.levelInterval = d
		}
	}
}

// Recorder implements ports.Recorder over a microphone Source. A continuous
// stream keeps the device warm between clips; bytes read while no clip is
// active are discarded.
type Recorder struct {
	source        Source
	levelInterval time.Duration

	mu         sync.Mutex
	events     ports.RecorderEvents
	stream     Stream
	continuous bool
	recording  bool
	clip       bytes.Buffer
	clips      []domain.AudioBuffer
	lastLevel  time.Time
}

func NewRecorder(source Source, opts ...RecorderOption) *Recorder {
	r := &Recorder{source: source, levelInterval: defaultLevelInterval}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Recorder) Bind(events ports.RecorderEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
}

// RequestPermission opens the device once and releases it.
func (r *Recorder) RequestPermission(ctx context.Context) error {
	r.mu.Lock()
	open := r.stream != nil
	r.mu.Unlock()
	if open {
		return nil
	}

	stream, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("microphone unavailable: %w", err)
	}
	if err := stream.Stop(); err != nil {
		logger.Warn("microphone probe did not stop cleanly", "error", err)
	}
	return nil
}

func (r *Recorder) StartContinuous(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.ensureStreamLocked(ctx); err != nil {
		return err
	}
	r.continuous = true
	return nil
}

func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return nil
	}
	if err := r.ensureStreamLocked(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	r.recording = true
	r.clip.Reset()
	r.lastLevel = time.Time{}
	events := r.events
	r.mu.Unlock()

	if events.StateChanged != nil {
		events.StateChanged(true, 0)
	}
	return nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false

	var clip domain.AudioBuffer
	if r.clip.Len() > 0 {
		clip = domain.AudioBuffer{
			MediaType: r.source.Format().MediaType(),
			Data:      append([]byte(nil), r.clip.Bytes()...),
		}
		r.clips = append(r.clips, clip)
	}
	r.clip.Reset()

	var stream Stream
	if !r.continuous {
		stream = r.detachLocked()
	}
	events := r.events
	r.mu.Unlock()

	if events.StateChanged != nil {
		events.StateChanged(false, 0)
	}
	if !clip.Empty() && events.Completed != nil {
		events.Completed(clip)
	}
	return stopStream(stream)
}

func (r *Recorder) StopContinuous() error {
	r.mu.Lock()
	r.continuous = false
	var stream Stream
	if !r.recording {
		stream = r.detachLocked()
	}
	r.mu.Unlock()
	return stopStream(stream)
}

// Recordings returns every clip captured since the last reset.
func (r *Recorder) Recordings() []domain.AudioBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AudioBuffer, 0, len(r.clips))
	for _, clip := range r.clips {
		out = append(out, clip.Clone())
	}
	return out
}

func (r *Recorder) ResetRecordings() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = nil
}

// Close releases the device without emitting a final clip.
func (r *Recorder) Close() error {
	r.mu.Lock()
	r.recording = false
	r.continuous = false
	r.clip.Reset()
	stream := r.detachLocked()
	r.mu.Unlock()
	return stopStream(stream)
}

func (r *Recorder) ensureStreamLocked(ctx context.Context) error {
	if r.stream != nil {
		return nil
	}
	stream, err := r.source.Open(ctx)
	if err != nil {
		return fmt.Errorf("open microphone: %w", err)
	}
	r.stream = stream
	go r.read(stream)
	return nil
}

func (r *Recorder) detachLocked() Stream {
	stream := r.stream
	r.stream = nil
	return stream
}

func (r *Recorder) read(stream Stream) {
	buf := make([]byte, defaultChunkSize)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			r.consume(buf[:n])
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				logger.Debug("microphone stream ended", "error", err)
			}
			r.mu.Lock()
			if r.stream == stream {
				r.stream = nil
			}
			r.mu.Unlock()
			return
		}
	}
}

func (r *Recorder) consume(chunk []byte) {
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return
	}
	r.clip.Write(chunk)

	now := time.Now()
	if now.Sub(r.lastLevel) < r.levelInterval {
		r.mu.Unlock()
		return
	}
	r.lastLevel = now
	// Reported under the lock so a level can never trail Stop's final report.
	if r.events.StateChanged != nil {
		r.events.StateChanged(true, Level(chunk))
	}
	r.mu.Unlock()
}

func stopStream(stream Stream) error {
	if stream == nil {
		return nil
	}
	return stream.Stop()
}
