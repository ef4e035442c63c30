package usecase

import (
	"context"
	"math"
	"strings"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

type playbackSource int

const (
	sourceNone playbackSource = iota
	sourceClip
	sourceRemote
	sourceFull
)

// AudioOrchestrator bridges the local recorder and the player into turn
// transitions. It owns the recording and playback handles; all methods run on
// the event loop.
type AudioOrchestrator struct {
	ctx         context.Context
	store       *Store
	arbiter     *Arbiter
	tasks       taskRunner
	recorder    ports.Recorder
	player      ports.Player
	transport   ports.Transport
	transcriber ports.ClipTranscriber
	events      ports.EventSink
	metrics     ports.Metrics

	// respond asks the AI partner to answer a finished clip.
	respond func()

	source playbackSource
}

// StartRecording stops any playback, then arms the recorder.
func (o *AudioOrchestrator) StartRecording() error {
	if o.store.State().IsPlayingAudio {
		if err := o.player.Stop(); err != nil {
			logger.Warn("failed to stop playback before recording", "error", err)
		}
	}
	if err := o.recorder.Start(o.ctx); err != nil {
		return err
	}
	o.store.Update(domain.MatchPatch{UserMuted: domain.Set(false)})
	return nil
}

func (o *AudioOrchestrator) StopRecording() {
	if err := o.recorder.Stop(); err != nil {
		logger.Warn("failed to stop recording", "error", err)
		o.events.MatchError(domain.ErrorCodeRecording, err.Error())
	}
}

func (o *AudioOrchestrator) HandleRecorderState(isRecording bool, level float64) {
	o.store.Update(domain.MatchPatch{
		IsRecording:    domain.Set(isRecording),
		AudioLevel:     domain.Set(level),
		IsUserSpeaking: domain.Set(isRecording),
	})
}

// HandleClip stores a finished clip and routes it according to the match type
// at the moment of completion.
func (o *AudioOrchestrator) HandleClip(clip domain.AudioBuffer) {
	o.store.Update(domain.MatchPatch{LastRecordedAudio: &clip})
	o.transcribe(clip)

	switch o.store.State().MatchType {
	case domain.MatchTypeAIAssisted:
		if o.respond != nil {
			o.respond()
		}
	case domain.MatchTypeHuman:
		if o.transport != nil && o.transport.Connected() {
			o.broadcast(clip)
		}
	}
}

func (o *AudioOrchestrator) transcribe(clip domain.AudioBuffer) {
	if o.transcriber == nil || clip.Empty() {
		return
	}

	var (
		text string
		err  error
	)
	deliver := o.tasks.guard(domain.ReasonClipTranscribed, func() {
		o.applyClipTranscript(text, err)
	})
	go func() {
		text, err = o.transcriber.Transcribe(o.ctx, clip)
		deliver()
	}()
}

func (o *AudioOrchestrator) applyClipTranscript(text string, err error) {
	if err != nil {
		logger.Warn("clip transcription failed", "error", err)
		o.events.MatchError(domain.ErrorCodeTranscription, err.Error())
		return
	}
	text = strings.TrimSpace(text)
	if text == "" || o.store.State().MatchType != domain.MatchTypeHuman {
		return
	}
	o.store.AddTranscriptMessage(domain.TranscriptMessage{IsUser: true, Text: text})
}

func (o *AudioOrchestrator) broadcast(clip domain.AudioBuffer) {
	var err error
	report := o.tasks.guard(domain.ReasonClipCaptured, func() {
		if err != nil {
			logger.Warn("failed to send voice clip", "error", err, "bytes", clip.Len())
			o.events.MatchError(domain.ErrorCodeTransport, err.Error())
		}
	})
	go func() {
		err = o.transport.SendAudio(o.ctx, clip)
		report()
	}()
}

func (o *AudioOrchestrator) TogglePlayback() {
	state := o.store.State()
	if state.IsPlayingAudio {
		if err := o.player.Stop(); err != nil {
			logger.Warn("failed to stop playback", "error", err)
		}
		return
	}
	if state.LastRecordedAudio == nil {
		return
	}
	o.play(*state.LastRecordedAudio, sourceClip)
}

func (o *AudioOrchestrator) DeleteRecording() {
	if err := o.player.Stop(); err != nil {
		logger.Warn("failed to stop playback", "error", err)
	}
	o.store.Update(domain.MatchPatch{ClearLastRecordedAudio: true})
}

func (o *AudioOrchestrator) play(clip domain.AudioBuffer, source playbackSource) {
	o.switchSource(source)
	if err := o.player.Play(o.ctx, clip); err != nil {
		o.switchSource(sourceNone)
		logger.Warn("playback failed", "error", err, "media_type", clip.MediaType)
		o.events.MatchError(domain.ErrorCodePlayback, err.Error())
	}
}

// HandlePlaybackState mirrors the player. A finished peer clip ends the human
// partner's turn.
func (o *AudioOrchestrator) HandlePlaybackState(isPlaying bool) {
	o.store.Update(domain.MatchPatch{IsPlayingAudio: domain.Set(isPlaying)})

	if isPlaying {
		if o.source == sourceRemote && o.store.State().MatchType == domain.MatchTypeHuman {
			o.arbiter.SetPartnerActivity(PartnerSpeaking)
		}
		return
	}

	o.switchSource(sourceNone)
}

// switchSource retargets playback. The player replaces a clip without
// reporting its end, so a peer clip cut short is settled here.
func (o *AudioOrchestrator) switchSource(next playbackSource) {
	if o.source == sourceRemote && next != sourceRemote {
		o.finishRemote()
	}
	o.source = next
}

// finishRemote ends the human partner's speech once their clip stops.
func (o *AudioOrchestrator) finishRemote() {
	if o.store.State().MatchType != domain.MatchTypeHuman {
		return
	}
	o.arbiter.SetPartnerActivity(PartnerIdle)
	o.arbiter.EndPartnerSpeech()
}

// HandleVoice plays a clip received from the network unless it is our own
// echo. Undecodable payloads still reach the player as an empty clip.
func (o *AudioOrchestrator) HandleVoice(packet domain.VoicePacket) {
	if o.transport != nil && packet.SenderID == o.transport.SelfID() {
		o.metrics.VoicePacket("echo")
		return
	}

	clip, err := domain.DecodeAudio(packet.Payload, packet.Format)
	if err != nil {
		logger.Warn("dropping undecodable voice payload", "sender", packet.SenderID, "error", err)
		o.metrics.VoicePacket("decode_failed")
	} else {
		o.metrics.VoicePacket("played")
	}
	o.play(clip, sourceRemote)
}

func (o *AudioOrchestrator) beginFullPlayback(duration float64) {
	o.switchSource(sourceFull)
	o.store.Update(domain.MatchPatch{
		FullRecordingAvailable: domain.Set(true),
		FullRecordingDuration:  domain.Set(duration),
		PlaybackProgress:       domain.Set(0.0),
		CurrentPlaybackTime:    domain.Set(0.0),
	})
}

// applyProgress records full-recording progress, clamping inconsistent
// reports from the player.
func (o *AudioOrchestrator) applyProgress(percent, elapsed, total, fallback float64) {
	if o.source != sourceFull {
		return
	}
	if total <= 0 || math.IsNaN(total) || math.IsInf(total, 0) {
		total = fallback
	}
	o.store.Update(domain.MatchPatch{
		PlaybackProgress:      domain.Set(clamp(percent, 0, 100)),
		CurrentPlaybackTime:   domain.Set(clamp(elapsed, 0, math.MaxFloat64)),
		FullRecordingDuration: domain.Set(total),
	})
}

func (o *AudioOrchestrator) resetFullPlayback() {
	o.switchSource(sourceNone)
	o.store.Update(domain.MatchPatch{
		PlaybackProgress:    domain.Set(0.0),
		CurrentPlaybackTime: domain.Set(0.0),
		IsPlayingAudio:      domain.Set(false),
	})
}

func (o *AudioOrchestrator) StopFullRecording() {
	o.switchSource(sourceNone)
	if err := o.player.Stop(); err != nil {
		logger.Warn("failed to stop full recording playback", "error", err)
	}
	o.store.Update(domain.MatchPatch{
		PlaybackProgress:    domain.Set(0.0),
		CurrentPlaybackTime: domain.Set(0.0),
	})
}

func (o *AudioOrchestrator) reset() {
	o.source = sourceNone
}

func clamp(v, lo, hi float64) float64 {
	switch {
	case math.IsNaN(v):
		return lo
	case v < lo:
		return lo
	case v > hi:
		return hi
	default:
		return v
	}
}
