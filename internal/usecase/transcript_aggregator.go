package usecase

import (
	"strings"
	"sync"

	"versusmatch/internal/domain"
)

// transcriptAggregator keeps the running transcript of live recognition.
type transcriptAggregator struct {
	mu     sync.Mutex
	finals []string
}

func newTranscriptAggregator() *transcriptAggregator {
	return &transcriptAggregator{}
}

// Add records a result and reports its trimmed text. Only non-empty finals
// join the transcript.
func (a *transcriptAggregator) Add(result domain.RecognitionResult) string {
	text := strings.TrimSpace(result.Transcript)
	if !result.IsFinal || text == "" {
		return text
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.finals = append(a.finals, text)
	return text
}

// Final returns the finals joined with spaces.
func (a *transcriptAggregator) Final() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return strings.Join(a.finals, " ")
}

func (a *transcriptAggregator) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.finals = nil
}
