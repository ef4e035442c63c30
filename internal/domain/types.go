package domain

import "time"

// MatchType selects who the user is practicing against.
type MatchType string

const (
	MatchTypeHuman      MatchType = "human"
	MatchTypeAIAssisted MatchType = "ai_assisted"
)

// Valid reports whether t is a known match type.
func (t MatchType) Valid() bool {
	return t == MatchTypeHuman || t == MatchTypeAIAssisted
}

// DifficultyLevel selects the topic pool for a match.
type DifficultyLevel string

const (
	DifficultyLow  DifficultyLevel = "low"
	DifficultyMid  DifficultyLevel = "mid"
	DifficultyHigh DifficultyLevel = "high"
)

// Valid reports whether l is a known difficulty level.
func (l DifficultyLevel) Valid() bool {
	switch l {
	case DifficultyLow, DifficultyMid, DifficultyHigh:
		return true
	default:
		return false
	}
}

// Speaker identifies the holder of the speaking turn.
type Speaker string

const (
	SpeakerUser    Speaker = "user"
	SpeakerPartner Speaker = "partner"
)

// Other returns the opposite speaker.
func (s Speaker) Other() Speaker {
	if s == SpeakerPartner {
		return SpeakerUser
	}
	return SpeakerPartner
}

// TurnPhase models the turn arbiter lifecycle.
type TurnPhase string

const (
	TurnPhaseIdle            TurnPhase = "idle"
	TurnPhaseUserTurn        TurnPhase = "user_turn"
	TurnPhaseTransitionPause TurnPhase = "transition_pause"
	TurnPhasePartnerTurn     TurnPhase = "partner_turn"
	TurnPhaseEnded           TurnPhase = "ended"
)

// StateReason describes the logical event behind a state notification.
type StateReason string

const (
	ReasonMatchStarted       StateReason = "match_started"
	ReasonMatchAutoStarted   StateReason = "match_auto_started"
	ReasonMatchStartFailed   StateReason = "match_start_failed"
	ReasonMatchEnded         StateReason = "match_ended"
	ReasonRecordingChanged   StateReason = "recording_changed"
	ReasonClipCaptured       StateReason = "clip_captured"
	ReasonClipTranscribed    StateReason = "clip_transcribed"
	ReasonRecordingDeleted   StateReason = "recording_deleted"
	ReasonTurnPause          StateReason = "turn_pause"
	ReasonTurnSwitched       StateReason = "turn_switched"
	ReasonPartnerThinking    StateReason = "partner_thinking"
	ReasonPartnerSpeaking    StateReason = "partner_speaking"
	ReasonPartnerIdle        StateReason = "partner_idle"
	ReasonPartnerReplied     StateReason = "partner_replied"
	ReasonTranscriptUpdated  StateReason = "transcript_updated"
	ReasonRecognitionChanged StateReason = "recognition_changed"
	ReasonPlaybackChanged    StateReason = "playback_changed"
	ReasonPlaybackProgress   StateReason = "playback_progress"
	ReasonVoiceReceived      StateReason = "voice_received"
	ReasonRemainingTime      StateReason = "remaining_time"
	ReasonModeChanged        StateReason = "mode_changed"
	ReasonDifficultyChanged  StateReason = "difficulty_changed"
	ReasonTopicSynced        StateReason = "topic_synced"
)

// ErrorCode identifies absorbed and surfaced failures.
type ErrorCode string

const (
	ErrorCodePermissionDenied ErrorCode = "permission_denied"
	ErrorCodeRecording        ErrorCode = "recording"
	ErrorCodeTransport        ErrorCode = "transport"
	ErrorCodeRecognition      ErrorCode = "recognition"
	ErrorCodeTranscription    ErrorCode = "transcription"
	ErrorCodePlayback         ErrorCode = "playback"
	ErrorCodeSequencerAsset   ErrorCode = "sequencer_asset"
	ErrorCodeGeneration       ErrorCode = "generation"
)

// TranscriptMessage is one attributed utterance. It is never modified after
// being appended to a match transcript.
type TranscriptMessage struct {
	IsUser    bool      `json:"isUser"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// RecognitionResult is one incremental speech recognition event.
type RecognitionResult struct {
	Transcript string  `json:"transcript"`
	IsFinal    bool    `json:"isFinal"`
	Confidence float64 `json:"confidence"`
}

// VoicePacket is an inbound network voice event.
type VoicePacket struct {
	SenderID string `json:"senderId"`
	Payload  string `json:"payload"`
	Format   string `json:"format"`
}

// MatchSummary is what a finished match hands back to its caller.
type MatchSummary struct {
	Recordings []AudioBuffer       `json:"recordings"`
	Transcript []TranscriptMessage `json:"transcript"`
}
