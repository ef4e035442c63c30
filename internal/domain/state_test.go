package domain

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewMatchStateDefaults(t *testing.T) {
	t.Parallel()

	state := NewMatchState("chess", "impossible", -1)
	assert.Equal(t, MatchTypeAIAssisted, state.MatchType)
	assert.Equal(t, DifficultyMid, state.DifficultyLevel)
	assert.Equal(t, DefaultSessionSeconds, state.RemainingTime)
	assert.Equal(t, SpeakerUser, state.SpeakingTurn)
	assert.Equal(t, TurnPhaseIdle, state.TurnPhase)
	assert.NotNil(t, state.TranscriptMessages)

	state = NewMatchState(MatchTypeHuman, DifficultyHigh, 90)
	assert.Equal(t, MatchTypeHuman, state.MatchType)
	assert.Equal(t, DifficultyHigh, state.DifficultyLevel)
	assert.Equal(t, 90, state.RemainingTime)
}

func TestMatchPatchApply(t *testing.T) {
	t.Parallel()

	state := NewMatchState(MatchTypeHuman, DifficultyLow, 60)
	MatchPatch{
		RemainingTime:     Set(30),
		IsPartnerThinking: Set(true),
		SpeechText:        Set("hi"),
		LastRecordedAudio: &AudioBuffer{MediaType: "audio/webm", Data: []byte("a")},
	}.Apply(&state)

	assert.Equal(t, 30, state.RemainingTime)
	assert.True(t, state.IsPartnerThinking)
	assert.Equal(t, "hi", state.SpeechText)
	assert.Equal(t, MatchTypeHuman, state.MatchType, "untouched fields survive")
	assert.NotNil(t, state.LastRecordedAudio)

	MatchPatch{
		ClearLastRecordedAudio: true,
		LastRecordedAudio:      &AudioBuffer{Data: []byte("b")},
	}.Apply(&state)
	assert.Nil(t, state.LastRecordedAudio)
}

func TestMatchPatchCopiesAudio(t *testing.T) {
	t.Parallel()

	clip := &AudioBuffer{MediaType: "audio/webm", Data: []byte("abc")}
	var state MatchState
	MatchPatch{LastRecordedAudio: clip}.Apply(&state)
	clip.Data[0] = 'z'

	assert.Equal(t, []byte("abc"), state.LastRecordedAudio.Data)
}

func TestSpeakerOther(t *testing.T) {
	t.Parallel()

	assert.Equal(t, SpeakerPartner, SpeakerUser.Other())
	assert.Equal(t, SpeakerUser, SpeakerPartner.Other())
}

func TestValidators(t *testing.T) {
	t.Parallel()

	assert.True(t, MatchTypeHuman.Valid())
	assert.False(t, MatchType("robot").Valid())
	assert.True(t, DifficultyHigh.Valid())
	assert.False(t, DifficultyLevel("").Valid())
}

func TestFormatTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "5:00", FormatTime(300))
	assert.Equal(t, "0:09", FormatTime(9))
	assert.Equal(t, "0:00", FormatTime(-4))
	assert.Equal(t, "1:05", FormatPlaybackTime(65.9))
	assert.Equal(t, "0:00", FormatPlaybackTime(math.NaN()))
	assert.Equal(t, "0:00", FormatPlaybackTime(math.Inf(1)))
}

func TestTopicForMode(t *testing.T) {
	t.Parallel()

	human := TopicForMode(MatchTypeHuman)
	assert.Equal(t, "How to Spend Your Summer Vacation?", human.Topic)
	assert.Len(t, human.Prompts, 5)

	human.Prompts[0] = "mutated"
	assert.NotEqual(t, "mutated", TopicForMode(MatchTypeHuman).Prompts[0])

	assert.Equal(t, TopicForMode(MatchTypeAIAssisted), TopicForMode("unknown"))
}
