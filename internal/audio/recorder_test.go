package audio

import (
	"context"
	"strings"
	"sync"
	"testing"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

type recorderEvents struct {
	mu     sync.Mutex
	states []bool
	levels []float64
	clips  []domain.AudioBuffer
}

func (e *recorderEvents) bind(r *Recorder) {
	r.Bind(ports.RecorderEvents{
		StateChanged: func(isRecording bool, level float64) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.states = append(e.states, isRecording)
			e.levels = append(e.levels, level)
		},
		Completed: func(clip domain.AudioBuffer) {
			e.mu.Lock()
			defer e.mu.Unlock()
			e.clips = append(e.clips, clip)
		},
	})
}

func (e *recorderEvents) snapshot() ([]bool, []domain.AudioBuffer) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]bool(nil), e.states...), append([]domain.AudioBuffer(nil), e.clips...)
}

func (r *Recorder) pendingBytes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clip.Len()
}

func (r *Recorder) streamOpen() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stream != nil
}

func TestRecorderCapturesOneClip(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nprintf 'hello'\nexec sleep 5\n")
	recorder := NewRecorder(NewCapture(CaptureConfig{Command: script}))
	events := &recorderEvents{}
	events.bind(recorder)

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	waitFor(t, "captured bytes", func() bool { return recorder.pendingBytes() >= 5 })

	if err := recorder.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}

	states, clips := events.snapshot()
	if len(states) < 2 || !states[0] || states[len(states)-1] {
		t.Fatalf("unexpected state reports: %v", states)
	}
	if len(clips) != 1 {
		t.Fatalf("expected one clip, got %d", len(clips))
	}
	if string(clips[0].Data) != "hello" {
		t.Fatalf("unexpected clip data: %q", clips[0].Data)
	}
	if clips[0].MediaType != "audio/L16;rate=16000;channels=1" {
		t.Fatalf("unexpected media type: %s", clips[0].MediaType)
	}
	if got := recorder.Recordings(); len(got) != 1 {
		t.Fatalf("expected one stored recording, got %d", len(got))
	}
	if recorder.streamOpen() {
		t.Fatalf("expected device released after a standalone clip")
	}

	recorder.ResetRecordings()
	if got := recorder.Recordings(); len(got) != 0 {
		t.Fatalf("expected recordings cleared, got %d", len(got))
	}
}

func TestRecorderContinuousStreamOutlivesClips(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	recorder := NewRecorder(NewCapture(CaptureConfig{Command: script}))
	events := &recorderEvents{}
	events.bind(recorder)

	if err := recorder.StartContinuous(context.Background()); err != nil {
		t.Fatalf("start continuous failed: %v", err)
	}
	states, _ := events.snapshot()
	if len(states) != 0 {
		t.Fatalf("continuous capture must not report recording: %v", states)
	}

	if err := recorder.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := recorder.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if !recorder.streamOpen() {
		t.Fatalf("expected warm device after clip")
	}

	_, clips := events.snapshot()
	if len(clips) != 0 {
		t.Fatalf("expected no clip for silence, got %d", len(clips))
	}

	if err := recorder.StopContinuous(); err != nil {
		t.Fatalf("stop continuous failed: %v", err)
	}
	if recorder.streamOpen() {
		t.Fatalf("expected device released")
	}
}

func TestRecorderStopWithoutStartIsNoop(t *testing.T) {
	t.Parallel()

	recorder := NewRecorder(NewCapture(CaptureConfig{Command: "/nonexistent/ffmpeg"}))
	events := &recorderEvents{}
	events.bind(recorder)

	if err := recorder.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if states, _ := events.snapshot(); len(states) != 0 {
		t.Fatalf("unexpected reports: %v", states)
	}
}

func TestRecorderRequestPermissionFailure(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "fail.sh", "#!/usr/bin/env bash\necho 'no such device' 1>&2\nexit 1\n")
	recorder := NewRecorder(NewCapture(CaptureConfig{Command: script}))

	err := recorder.RequestPermission(context.Background())
	if err == nil {
		t.Fatalf("expected permission failure")
	}
	if !strings.Contains(err.Error(), "microphone unavailable") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRecorderRequestPermissionReleasesDevice(t *testing.T) {
	t.Parallel()

	script := writeScript(t, "capture.sh", "#!/usr/bin/env bash\nexec sleep 5\n")
	recorder := NewRecorder(NewCapture(CaptureConfig{Command: script}))

	if err := recorder.RequestPermission(context.Background()); err != nil {
		t.Fatalf("permission failed: %v", err)
	}
	if recorder.streamOpen() {
		t.Fatalf("expected probe stream to be closed")
	}
}
