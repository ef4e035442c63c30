package usecase

import (
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
)

// DefaultTurnPause is the debounce between a speaker finishing and the turn
// flipping, leaving time for the last audio chunk to flush.
const DefaultTurnPause = 300 * time.Millisecond

// PartnerActivity is the partner's current phase.
type PartnerActivity int

const (
	PartnerIdle PartnerActivity = iota
	PartnerThinking
	PartnerSpeaking
)

func (a PartnerActivity) String() string {
	switch a {
	case PartnerThinking:
		return "thinking"
	case PartnerSpeaking:
		return "speaking"
	default:
		return "idle"
	}
}

type turnHooks struct {
	stopRecording func()
	switched      func(to domain.Speaker)
	partnerTurn   func()
	promptCount   func() int
}

// Arbiter decides whose turn it is. Its operations are synchronous and never
// fail; they run on the event loop.
type Arbiter struct {
	store *Store
	tasks taskRunner
	pause time.Duration
	hooks turnHooks
}

func newArbiter(store *Store, tasks taskRunner, pause time.Duration, hooks turnHooks) *Arbiter {
	if pause <= 0 {
		pause = DefaultTurnPause
	}
	return &Arbiter{store: store, tasks: tasks, pause: pause, hooks: hooks}
}

// Begin hands the first turn of a match to the user.
func (a *Arbiter) Begin() {
	a.store.Update(domain.MatchPatch{
		SpeakingTurn:       domain.Set(domain.SpeakerUser),
		TurnPhase:          domain.Set(domain.TurnPhaseUserTurn),
		IsPartnerSpeaking:  domain.Set(false),
		IsPartnerThinking:  domain.Set(false),
		CurrentPromptIndex: domain.Set(0),
	})
}

// EndUserSpeech marks the user done and schedules the flip to the partner.
// It reports whether a flip was scheduled.
func (a *Arbiter) EndUserSpeech() bool {
	state := a.store.State()
	if !state.MatchStarted || state.SpeakingTurn != domain.SpeakerUser || state.TurnPhase != domain.TurnPhaseUserTurn {
		return false
	}

	a.store.Update(domain.MatchPatch{
		IsUserSpeaking: domain.Set(false),
		UserMuted:      domain.Set(true),
		TurnPhase:      domain.Set(domain.TurnPhaseTransitionPause),
	})
	a.tasks.after(a.pause, domain.ReasonTurnSwitched, a.switchTurn)
	return true
}

// EndPartnerSpeech marks the partner done and schedules the flip back to the
// user. It reports whether a flip was scheduled.
func (a *Arbiter) EndPartnerSpeech() bool {
	state := a.store.State()
	if !state.MatchStarted || state.SpeakingTurn != domain.SpeakerPartner || state.TurnPhase != domain.TurnPhasePartnerTurn {
		return false
	}

	a.store.Update(domain.MatchPatch{TurnPhase: domain.Set(domain.TurnPhaseTransitionPause)})
	a.tasks.after(a.pause, domain.ReasonTurnSwitched, a.switchTurn)
	return true
}

func (a *Arbiter) switchTurn() {
	state := a.store.State()
	if !state.MatchStarted || state.TurnPhase != domain.TurnPhaseTransitionPause {
		return
	}

	if state.IsRecording && state.SpeakingTurn == domain.SpeakerUser && a.hooks.stopRecording != nil {
		a.hooks.stopRecording()
	}

	next := state.SpeakingTurn.Other()
	patch := domain.MatchPatch{
		SpeakingTurn:      domain.Set(next),
		IsUserSpeaking:    domain.Set(false),
		IsPartnerSpeaking: domain.Set(false),
	}
	if next == domain.SpeakerUser {
		patch.TurnPhase = domain.Set(domain.TurnPhaseUserTurn)
		patch.IsPartnerThinking = domain.Set(false)
		patch.CurrentPromptIndex = domain.Set(a.nextPromptIndex(state.CurrentPromptIndex))
	} else {
		patch.TurnPhase = domain.Set(domain.TurnPhasePartnerTurn)
	}
	a.store.Update(patch)

	logger.Debug("speaking turn switched", "to", next, "match_type", state.MatchType)
	if a.hooks.switched != nil {
		a.hooks.switched(next)
	}

	if next == domain.SpeakerPartner && a.store.State().MatchType == domain.MatchTypeAIAssisted && a.hooks.partnerTurn != nil {
		a.hooks.partnerTurn()
	}
}

func (a *Arbiter) nextPromptIndex(current int) int {
	if a.hooks.promptCount == nil {
		return current
	}
	count := a.hooks.promptCount()
	if count <= 0 {
		return 0
	}
	return (current + 1) % count
}

// SetPartnerActivity is the only writer of the partner thinking and speaking
// flags, which keeps them mutually exclusive.
func (a *Arbiter) SetPartnerActivity(activity PartnerActivity) {
	a.store.Update(domain.MatchPatch{
		IsPartnerThinking: domain.Set(activity == PartnerThinking),
		IsPartnerSpeaking: domain.Set(activity == PartnerSpeaking),
	})
}

// End moves the arbiter to its terminal phase.
func (a *Arbiter) End() {
	a.store.Update(domain.MatchPatch{TurnPhase: domain.Set(domain.TurnPhaseEnded)})
}
