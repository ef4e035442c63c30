package usecase

import (
	"strings"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

// TranscriptionBridge turns live recognition events into transcript state.
// Handlers run on the event loop.
type TranscriptionBridge struct {
	store      *Store
	aggregator *transcriptAggregator
	events     ports.EventSink
	metrics    ports.Metrics

	// respond hands a final user utterance to the AI partner.
	respond func(text string)
}

func (b *TranscriptionBridge) HandleResult(result domain.RecognitionResult) {
	text := b.aggregator.Add(result)
	if !result.IsFinal {
		b.store.Update(domain.MatchPatch{
			InterimSpeechText: domain.Set(text),
			SpeechConfidence:  domain.Set(result.Confidence),
		})
		return
	}

	b.store.Update(domain.MatchPatch{
		SpeechText:        domain.Set(b.aggregator.Final()),
		InterimSpeechText: domain.Set(""),
		SpeechConfidence:  domain.Set(result.Confidence),
	})

	if text == "" || b.store.State().MatchType != domain.MatchTypeAIAssisted {
		return
	}
	b.store.AddTranscriptMessage(domain.TranscriptMessage{IsUser: true, Text: text})
	if b.respond != nil {
		b.respond(text)
	}
}

func (b *TranscriptionBridge) HandleStarted() {
	b.store.Update(domain.MatchPatch{
		IsSpeechRecognitionActive: domain.Set(true),
		SpeechRecognitionError:    domain.Set(""),
	})
}

func (b *TranscriptionBridge) HandleEnded() {
	b.store.Update(domain.MatchPatch{IsSpeechRecognitionActive: domain.Set(false)})
}

// HandleError marks recognition inactive. The match keeps running.
func (b *TranscriptionBridge) HandleError(message string) {
	message = strings.TrimSpace(message)
	if message == "" {
		message = "speech recognition failed"
	}
	logger.Warn("speech recognition error", "error", message)
	b.store.Update(domain.MatchPatch{
		IsSpeechRecognitionActive: domain.Set(false),
		SpeechRecognitionError:    domain.Set(message),
	})
	b.metrics.RecognitionError()
	b.events.MatchError(domain.ErrorCodeRecognition, message)
}

// Clear drops the running transcript text and the last error.
func (b *TranscriptionBridge) Clear() {
	b.aggregator.Reset()
	b.store.Update(domain.MatchPatch{
		SpeechText:             domain.Set(""),
		InterimSpeechText:      domain.Set(""),
		SpeechRecognitionError: domain.Set(""),
	})
}

func (b *TranscriptionBridge) SpeechText() string {
	return b.aggregator.Final()
}
