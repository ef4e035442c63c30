package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

const defaultProgressInterval = 250 * time.Millisecond

// PlayerConfig names the ffplay and ffprobe binaries.
type PlayerConfig struct {
	PlayCommand      string
	ProbeCommand     string
	ProgressInterval time.Duration
}

func (c PlayerConfig) withDefaults() PlayerConfig {
	if c.PlayCommand == "" {
		c.PlayCommand = "ffplay"
	}
	if c.ProbeCommand == "" {
		c.ProbeCommand = "ffprobe"
	}
	if c.ProgressInterval <= 0 {
		c.ProgressInterval = defaultProgressInterval
	}
	return c
}

// Player implements ports.Player by piping clips into ffplay. Starting a clip
// replaces the one playing.
type Player struct {
	cfg PlayerConfig

	mu      sync.Mutex
	events  ports.PlayerEvents
	current *process
}

func NewPlayer(cfg PlayerConfig) *Player {
	return &Player{cfg: cfg.withDefaults()}
}

func (p *Player) Bind(events ports.PlayerEvents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = events
}

// Play starts clip. An empty clip is inert: it replaces whatever is playing
// and reports a start followed at once by an end.
func (p *Player) Play(ctx context.Context, clip domain.AudioBuffer) error {
	if clip.Empty() {
		p.playInert()
		return nil
	}
	_, err := p.start(ctx, clip)
	return err
}

// PlayWithProgress plays clip and reports progress until it finishes or is
// replaced. Progress stops without a final report when playback is stopped.
func (p *Player) PlayWithProgress(ctx context.Context, clip domain.AudioBuffer, onProgress ports.ProgressFunc) error {
	if clip.Empty() {
		p.playInert()
		if onProgress != nil {
			onProgress(100, 0, 0)
		}
		return nil
	}

	total, err := p.Duration(ctx, clip)
	if err != nil {
		logger.Warn("clip duration unavailable", "error", err)
		total = 0
	}

	proc, err := p.start(ctx, clip)
	if err != nil {
		return err
	}
	if onProgress != nil {
		go p.reportProgress(proc, total, onProgress)
	}
	return nil
}

func (p *Player) reportProgress(proc *process, total float64, onProgress ports.ProgressFunc) {
	ticker := time.NewTicker(p.cfg.ProgressInterval)
	defer ticker.Stop()

	began := time.Now()
	for {
		select {
		case <-proc.done:
			if !proc.wasStopped() {
				onProgress(100, total, total)
			}
			return
		case <-ticker.C:
			elapsed := time.Since(began).Seconds()
			percent := 0.0
			if total > 0 {
				percent = elapsed / total * 100
			}
			onProgress(percent, elapsed, total)
		}
	}
}

func (p *Player) playInert() {
	p.mu.Lock()
	previous := p.current
	p.current = nil
	events := p.events
	p.mu.Unlock()
	if previous != nil {
		previous.stop()
	}

	if events.StateChanged != nil {
		events.StateChanged(true)
		events.StateChanged(false)
	}
}

func (p *Player) start(ctx context.Context, clip domain.AudioBuffer) (*process, error) {
	proc, err := startProcess(ctx, p.cfg.PlayCommand, playArgs(clip.MediaType), clip.Data)
	if err != nil {
		return nil, err
	}

	// The replaced clip ends silently; the player never reports idle between
	// two clips.
	p.mu.Lock()
	previous := p.current
	p.current = proc
	events := p.events
	p.mu.Unlock()
	if previous != nil {
		previous.stop()
	}

	if events.StateChanged != nil {
		events.StateChanged(true)
	}
	go p.watch(proc)
	return proc, nil
}

func (p *Player) watch(proc *process) {
	if err := proc.wait(); err != nil {
		logger.Warn("playback failed", "error", err)
	}

	p.mu.Lock()
	if p.current != proc {
		p.mu.Unlock()
		return
	}
	p.current = nil
	events := p.events
	p.mu.Unlock()

	if events.StateChanged != nil {
		events.StateChanged(false)
	}
}

// Stop ends the current clip, if any, and reports the player idle.
func (p *Player) Stop() error {
	p.mu.Lock()
	proc := p.current
	p.current = nil
	events := p.events
	p.mu.Unlock()

	if proc == nil {
		return nil
	}
	proc.stop()
	if events.StateChanged != nil {
		events.StateChanged(false)
	}
	return nil
}

// Duration computes PCM length directly and asks ffprobe for anything else.
func (p *Player) Duration(ctx context.Context, clip domain.AudioBuffer) (float64, error) {
	if format, ok := ParsePCMFormat(clip.MediaType); ok {
		return format.Seconds(clip.Len()), nil
	}
	if clip.Empty() {
		return 0, nil
	}

	cmd := exec.CommandContext(ctx, p.cfg.ProbeCommand,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		"pipe:0",
	)
	cmd.Stdin = bytes.NewReader(clip.Data)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe: %w", err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe returned %q: %w", trimOutput(string(out)), err)
	}
	return seconds, nil
}

func (p *Player) Close() error {
	return p.Stop()
}

func playArgs(mediaType string) []string {
	args := []string{"-nodisp", "-autoexit", "-hide_banner", "-loglevel", "warning"}
	if format, ok := ParsePCMFormat(mediaType); ok {
		args = append(args,
			"-f", "s16le",
			"-ar", strconv.Itoa(format.SampleRate),
			"-ac", strconv.Itoa(format.Channels),
		)
	}
	return append(args, "pipe:0")
}
