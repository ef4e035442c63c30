package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

// ResponseMode selects how the AI partner produces its replies.
type ResponseMode string

const (
	// ResponseScripted plays prerecorded response assets.
	ResponseScripted ResponseMode = "scripted"
	// ResponseGenerated asks a Generator for a reply to the user's words.
	ResponseGenerated ResponseMode = "generated"
)

const DefaultMaxResponses = 6

var errNoAssets = errors.New("no response asset player configured")

// DefaultThinkingDelays is indexed by response number, cycling.
var DefaultThinkingDelays = []time.Duration{
	3 * time.Second,
	6 * time.Second,
	5 * time.Second,
	2 * time.Second,
	2 * time.Second,
	3 * time.Second,
}

type SequencerConfig struct {
	Mode           ResponseMode
	MaxResponses   int
	ThinkingDelays []time.Duration
	Language       string
}

func (c SequencerConfig) withDefaults() SequencerConfig {
	if c.Mode != ResponseGenerated {
		c.Mode = ResponseScripted
	}
	if c.MaxResponses <= 0 {
		c.MaxResponses = DefaultMaxResponses
	}
	if len(c.ThinkingDelays) == 0 {
		c.ThinkingDelays = DefaultThinkingDelays
	}
	return c
}

// Sequencer drives the partner's think-then-speak cycle. At most one step is
// in flight; a step that resolves after Cancel is ignored.
type Sequencer struct {
	ctx       context.Context
	cfg       SequencerConfig
	store     *Store
	arbiter   *Arbiter
	tasks     taskRunner
	assets    ports.AssetPlayer
	generator ports.Generator
	topics    ports.TopicProvider
	events    ports.EventSink
	metrics   ports.Metrics

	// done runs after every completed step, successful or not.
	done func()

	conversation ports.ConversationContext

	index     int
	busy      bool
	step      uint64
	stopAsset func()
	cancelGen context.CancelFunc
}

func (s *Sequencer) Index() int      { return s.index }
func (s *Sequencer) Busy() bool      { return s.busy }
func (s *Sequencer) Exhausted() bool { return s.index >= s.cfg.MaxResponses }

// Trigger starts the next response step and reports whether one started. In
// generated mode text is the user's utterance and must not be empty.
func (s *Sequencer) Trigger(text string) bool {
	if s.busy || s.Exhausted() || !s.store.State().MatchStarted {
		return false
	}
	if s.cfg.Mode == ResponseGenerated {
		text = strings.TrimSpace(text)
		if text == "" {
			return false
		}
		s.begin()
		s.generate(s.step, text)
		return true
	}

	s.begin()
	token := s.step
	delay := s.cfg.ThinkingDelays[s.index%len(s.cfg.ThinkingDelays)]
	logger.Debug("partner thinking", "response", s.index, "delay", delay)
	s.tasks.after(delay, domain.ReasonPartnerSpeaking, func() {
		if token != s.step {
			return
		}
		s.play(token)
	})
	return true
}

func (s *Sequencer) begin() {
	s.busy = true
	s.step++
	s.arbiter.SetPartnerActivity(PartnerThinking)
}

func (s *Sequencer) play(token uint64) {
	assetID := s.index%s.cfg.MaxResponses + 1
	if s.assets == nil {
		s.finish(token, assetID, errNoAssets)
		return
	}

	var failure error
	started := s.tasks.guard(domain.ReasonPartnerSpeaking, func() {
		if token == s.step && s.busy {
			s.arbiter.SetPartnerActivity(PartnerSpeaking)
		}
	})
	ended := s.tasks.guard(domain.ReasonPartnerReplied, func() {
		s.finish(token, assetID, nil)
	})
	failed := s.tasks.guard(domain.ReasonPartnerReplied, func() {
		s.finish(token, assetID, failure)
	})

	stop, err := s.assets.PlayAsset(s.ctx, assetID, ports.AssetEvents{
		Started: started,
		Ended:   ended,
		Failed: func(err error) {
			failure = err
			failed()
		},
	})
	if err != nil {
		s.finish(token, assetID, err)
		return
	}
	s.stopAsset = stop
}

func (s *Sequencer) finish(token uint64, assetID int, err error) {
	if token != s.step || !s.busy {
		return
	}
	s.busy = false
	s.stopAsset = nil
	s.arbiter.SetPartnerActivity(PartnerIdle)
	s.index++

	if err != nil {
		logger.Warn("partner response asset failed", "asset", assetID, "error", err)
		s.events.MatchError(domain.ErrorCodeSequencerAsset, err.Error())
		s.metrics.PartnerResponse("asset_failed")
	} else {
		s.metrics.PartnerResponse("played")
	}
	if s.done != nil {
		s.done()
	}
}

func (s *Sequencer) generate(token uint64, text string) {
	s.generator.SetContext(s.conversationContext())

	ctx, cancel := context.WithCancel(s.ctx)
	s.cancelGen = cancel

	var (
		reply string
		err   error
	)
	deliver := s.tasks.guard(domain.ReasonPartnerReplied, func() {
		s.finishGenerated(token, reply, err)
	})
	go func() {
		reply, err = s.generator.GenerateFromSpeech(ctx, text)
		deliver()
	}()
}

func (s *Sequencer) finishGenerated(token uint64, reply string, err error) {
	if token != s.step || !s.busy {
		return
	}
	s.busy = false
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.arbiter.SetPartnerActivity(PartnerIdle)
	s.index++

	reply = strings.TrimSpace(reply)
	switch {
	case err != nil:
		logger.Warn("partner reply generation failed", "error", err)
		s.events.MatchError(domain.ErrorCodeGeneration, err.Error())
		s.metrics.PartnerResponse("generation_failed")
	case reply == "":
		s.metrics.PartnerResponse("empty")
	default:
		s.store.AddTranscriptMessage(domain.TranscriptMessage{IsUser: false, Text: reply})
		s.metrics.PartnerResponse("generated")
	}
	if s.done != nil {
		s.done()
	}
}

// SetContext overrides the conversation context passed to the generator.
// Empty fields fall back to the current topic and difficulty.
func (s *Sequencer) SetContext(conversation ports.ConversationContext) {
	s.conversation = conversation
}

func (s *Sequencer) conversationContext() ports.ConversationContext {
	out := s.conversation
	if out.Topic == "" && s.topics != nil {
		out.Topic = s.topics.CurrentTopic()
	}
	if out.Difficulty == "" {
		out.Difficulty = s.store.State().DifficultyLevel
	}
	if out.Language == "" {
		out.Language = s.cfg.Language
	}
	return out
}

// Cancel abandons the in-flight step and clears the partner flags.
func (s *Sequencer) Cancel() {
	s.step++
	s.busy = false
	if s.stopAsset != nil {
		s.stopAsset()
		s.stopAsset = nil
	}
	if s.cancelGen != nil {
		s.cancelGen()
		s.cancelGen = nil
	}
	s.arbiter.SetPartnerActivity(PartnerIdle)
}

// Reset cancels and rewinds the response budget.
func (s *Sequencer) Reset() {
	s.Cancel()
	s.index = 0
}
