package deepgram

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"versusmatch/internal/audio"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

// ErrNotConfigured is returned when no Deepgram API key is set.
var ErrNotConfigured = errors.New("deepgram is not configured")

// RecognizerConfig tunes live recognition.
type RecognizerConfig struct {
	ChunkSize      int
	StreamingGrace time.Duration
	InterimResults bool
}

// Recognizer implements ports.Recognizer by pumping its own microphone stream
// into a Deepgram live session.
type Recognizer struct {
	client *Client
	source audio.Source
	cfg    RecognizerConfig

	mu     sync.Mutex
	events ports.RecognizerEvents
	active *recognition
}

type recognition struct {
	mic     audio.Stream
	session *streamingSession
	cancel  context.CancelFunc
	stopped atomic.Bool
}

func NewRecognizer(client *Client, source audio.Source, cfg RecognizerConfig) *Recognizer {
	if cfg.StreamingGrace <= 0 {
		cfg.StreamingGrace = time.Second
	}
	return &Recognizer{client: client, source: source, cfg: cfg}
}

func (r *Recognizer) Bind(events ports.RecognizerEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
}

func (r *Recognizer) Supported() bool {
	return r.client != nil && r.client.Configured() && r.source != nil
}

func (r *Recognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active != nil
}

// Start opens the microphone and a live session. Starting while listening is
// a no-op.
func (r *Recognizer) Start(ctx context.Context) error {
	if !r.Supported() {
		return ErrNotConfigured
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active != nil {
		return nil
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	mic, err := r.source.Open(sessionCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("open microphone for recognition: %w", err)
	}

	format := r.source.Format()
	session, err := r.client.StartStreaming(sessionCtx, StreamConfig{
		Encoding:       "linear16",
		SampleRate:     format.SampleRate,
		Channels:       format.Channels,
		InterimResults: r.cfg.InterimResults,
	})
	if err != nil {
		_ = mic.Stop()
		cancel()
		return err
	}

	rec := &recognition{mic: mic, session: session, cancel: cancel}
	r.active = rec
	events := r.events
	go r.run(rec, events)

	if events.Started != nil {
		events.Started()
	}
	return nil
}

func (r *Recognizer) run(rec *recognition, events ports.RecognizerEvents) {
	pumped := make(chan error, 1)
	go func() {
		pumped <- pumpAudio(rec.mic, rec.session, r.cfg.ChunkSize)
	}()

	for result := range rec.session.Results() {
		if events.Result != nil {
			events.Result(result)
		}
	}

	streamErr := rec.session.Wait()
	if err := rec.mic.Stop(); err != nil && !errors.Is(err, os.ErrClosed) {
		logger.Debug("recognition microphone stop", "error", err)
	}
	pumpErr := <-pumped
	rec.cancel()

	r.mu.Lock()
	if r.active == rec {
		r.active = nil
	}
	r.mu.Unlock()

	if !rec.stopped.Load() {
		err := streamErr
		if err == nil {
			err = pumpErr
		}
		if err != nil && events.Error != nil {
			events.Error(err.Error())
		}
	}
	if events.Ended != nil {
		events.Ended()
	}
}

// Stop closes the microphone and lets the session deliver trailing finals for
// up to the configured grace before it is forced closed.
func (r *Recognizer) Stop() error {
	r.mu.Lock()
	rec := r.active
	r.mu.Unlock()
	if rec == nil || rec.stopped.Swap(true) {
		return nil
	}

	err := rec.mic.Stop()
	go func() {
		if waitErr := waitForStream(rec.session, r.cfg.StreamingGrace); waitErr != nil {
			logger.Debug("recognition session closed with error", "error", waitErr)
		}
	}()
	return err
}

func (r *Recognizer) Close() error {
	r.mu.Lock()
	rec := r.active
	r.mu.Unlock()
	if rec == nil {
		return nil
	}
	_ = r.Stop()
	return rec.session.Close()
}

var _ ports.Recognizer = (*Recognizer)(nil)
