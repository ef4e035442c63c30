package usecase

import (
	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

type noopSink struct{}

func (noopSink) MatchStateChanged(domain.MatchState, domain.StateReason) {}
func (noopSink) MatchError(domain.ErrorCode, string)                     {}

type noopMetrics struct{}

func (noopMetrics) MatchStarted(domain.MatchType) {}
func (noopMetrics) MatchEnded(domain.MatchType)   {}
func (noopMetrics) TurnSwitched(domain.Speaker)   {}
func (noopMetrics) PartnerResponse(string)        {}
func (noopMetrics) VoicePacket(string)            {}
func (noopMetrics) RecognitionError()             {}

var (
	_ ports.EventSink = noopSink{}
	_ ports.Metrics   = noopMetrics{}
)
