package domain

// DefaultSessionSeconds is the length of a match countdown.
const DefaultSessionSeconds = 300

// MatchState is the canonical snapshot of a versus match.
type MatchState struct {
	MatchID         string          `json:"matchId,omitempty"`
	MatchStarted    bool            `json:"matchStarted"`
	MatchType       MatchType       `json:"matchType"`
	DifficultyLevel DifficultyLevel `json:"difficultyLevel"`

	SpeakingTurn Speaker   `json:"speakingTurn"`
	TurnPhase    TurnPhase `json:"turnPhase"`

	IsUserSpeaking    bool    `json:"isUserSpeaking"`
	IsPartnerSpeaking bool    `json:"isPartnerSpeaking"`
	IsPartnerThinking bool    `json:"isPartnerThinking"`
	IsRecording       bool    `json:"isRecording"`
	IsPlayingAudio    bool    `json:"isPlayingAudio"`
	UserMuted         bool    `json:"userMuted"`
	AudioLevel        float64 `json:"audioLevel"`

	RemainingTime      int `json:"remainingTime"`
	CurrentPromptIndex int `json:"currentPromptIndex"`

	LastRecordedAudio *AudioBuffer `json:"lastRecordedAudio,omitempty"`

	FullRecordingAvailable bool    `json:"fullRecordingAvailable"`
	FullRecordingDuration  float64 `json:"fullRecordingDuration"`
	PlaybackProgress       float64 `json:"playbackProgress"`
	CurrentPlaybackTime    float64 `json:"currentPlaybackTime"`

	TranscriptMessages []TranscriptMessage `json:"transcriptMessages"`

	SpeechText                string  `json:"speechText"`
	InterimSpeechText         string  `json:"interimSpeechText"`
	SpeechConfidence          float64 `json:"speechConfidence"`
	SpeechRecognitionError    string  `json:"speechRecognitionError"`
	IsSpeechRecognitionActive bool    `json:"isSpeechRecognitionActive"`
}

// NewMatchState returns the resting shape of a match that has not started.
func NewMatchState(matchType MatchType, level DifficultyLevel, sessionSeconds int) MatchState {
	if !matchType.Valid() {
		matchType = MatchTypeAIAssisted
	}
	if !level.Valid() {
		level = DifficultyMid
	}
	if sessionSeconds <= 0 {
		sessionSeconds = DefaultSessionSeconds
	}
	return MatchState{
		MatchType:          matchType,
		DifficultyLevel:    level,
		SpeakingTurn:       SpeakerUser,
		TurnPhase:          TurnPhaseIdle,
		RemainingTime:      sessionSeconds,
		TranscriptMessages: []TranscriptMessage{},
	}
}

// Clone returns a deep copy that shares no slices or buffers with s.
func (s MatchState) Clone() MatchState {
	out := s
	if s.LastRecordedAudio != nil {
		clip := s.LastRecordedAudio.Clone()
		out.LastRecordedAudio = &clip
	}
	out.TranscriptMessages = append([]TranscriptMessage{}, s.TranscriptMessages...)
	return out
}

// MatchPatch is a partial update of MatchState. Nil fields are left untouched.
// ClearLastRecordedAudio takes precedence over LastRecordedAudio.
type MatchPatch struct {
	MatchID         *string
	MatchStarted    *bool
	MatchType       *MatchType
	DifficultyLevel *DifficultyLevel

	SpeakingTurn *Speaker
	TurnPhase    *TurnPhase

	IsUserSpeaking    *bool
	IsPartnerSpeaking *bool
	IsPartnerThinking *bool
	IsRecording       *bool
	IsPlayingAudio    *bool
	UserMuted         *bool
	AudioLevel        *float64

	RemainingTime      *int
	CurrentPromptIndex *int

	LastRecordedAudio      *AudioBuffer
	ClearLastRecordedAudio bool

	FullRecordingAvailable *bool
	FullRecordingDuration  *float64
	PlaybackProgress       *float64
	CurrentPlaybackTime    *float64

	SpeechText                *string
	InterimSpeechText         *string
	SpeechConfidence          *float64
	SpeechRecognitionError    *string
	IsSpeechRecognitionActive *bool
}

// Set returns a pointer to v for building patches.
func Set[T any](v T) *T {
	return &v
}

// Apply merges p into s field by field.
func (p MatchPatch) Apply(s *MatchState) {
	assign(&s.MatchID, p.MatchID)
	assign(&s.MatchStarted, p.MatchStarted)
	assign(&s.MatchType, p.MatchType)
	assign(&s.DifficultyLevel, p.DifficultyLevel)
	assign(&s.SpeakingTurn, p.SpeakingTurn)
	assign(&s.TurnPhase, p.TurnPhase)
	assign(&s.IsUserSpeaking, p.IsUserSpeaking)
	assign(&s.IsPartnerSpeaking, p.IsPartnerSpeaking)
	assign(&s.IsPartnerThinking, p.IsPartnerThinking)
	assign(&s.IsRecording, p.IsRecording)
	assign(&s.IsPlayingAudio, p.IsPlayingAudio)
	assign(&s.UserMuted, p.UserMuted)
	assign(&s.AudioLevel, p.AudioLevel)
	assign(&s.RemainingTime, p.RemainingTime)
	assign(&s.CurrentPromptIndex, p.CurrentPromptIndex)
	assign(&s.FullRecordingAvailable, p.FullRecordingAvailable)
	assign(&s.FullRecordingDuration, p.FullRecordingDuration)
	assign(&s.PlaybackProgress, p.PlaybackProgress)
	assign(&s.CurrentPlaybackTime, p.CurrentPlaybackTime)
	assign(&s.SpeechText, p.SpeechText)
	assign(&s.InterimSpeechText, p.InterimSpeechText)
	assign(&s.SpeechConfidence, p.SpeechConfidence)
	assign(&s.SpeechRecognitionError, p.SpeechRecognitionError)
	assign(&s.IsSpeechRecognitionActive, p.IsSpeechRecognitionActive)

	switch {
	case p.ClearLastRecordedAudio:
		s.LastRecordedAudio = nil
	case p.LastRecordedAudio != nil:
		clip := p.LastRecordedAudio.Clone()
		s.LastRecordedAudio = &clip
	}
}

func assign[T any](dst *T, src *T) {
	if src != nil {
		*dst = *src
	}
}
