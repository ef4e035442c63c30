package usecase

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"versusmatch/internal/domain"
)

func (h *harness) trigger(text string) bool {
	h.t.Helper()
	var started bool
	h.onLoop(func() { started = h.controller.sequencer.Trigger(text) })
	h.idle()
	return started
}

func TestSequencerConsumesDelayTableThenStops(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()

	for i, want := range DefaultThinkingDelays {
		require.True(t, h.trigger(""), "step %d", i)
		assert.Equal(t, []time.Duration{want}, h.scheduler.pending(), "step %d", i)
		h.fire(want)
		h.assets.last().Started()
		h.assets.last().Ended()
		h.idle()
	}
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, h.assets.played())
	assert.True(t, h.controller.sequencer.Exhausted())

	before := h.state()
	published := len(h.sink.snapshot())
	scheduled := len(h.scheduler.all())

	assert.False(t, h.trigger(""))
	assert.Equal(t, before, h.state())
	assert.Len(t, h.sink.snapshot(), published)
	assert.Len(t, h.scheduler.all(), scheduled)
}

func TestSequencerIgnoresTriggerWhileBusy(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()

	require.True(t, h.trigger(""))
	assert.False(t, h.trigger("again"))
	assert.Len(t, h.scheduler.pending(), 1)
}

func TestSequencerIgnoresTriggerBeforeMatch(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	assert.False(t, h.trigger(""))
	assert.False(t, h.state().IsPartnerThinking)
}

func TestSequencerAssetFailureStillAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.assets.err = errors.New("404 not found")
	h.start()

	require.True(t, h.trigger(""))
	h.fire(3 * time.Second)

	state := h.state()
	assert.False(t, state.IsPartnerThinking)
	assert.False(t, state.IsPartnerSpeaking)
	assert.Equal(t, 1, h.controller.sequencer.Index())
	assert.Contains(t, h.sink.errorCodes(), domain.ErrorCodeSequencerAsset)
	assert.Equal(t, 1, h.metrics.count("response:asset_failed"))

	h.assets.err = nil
	require.True(t, h.trigger(""))
	assert.Equal(t, []time.Duration{6 * time.Second}, h.scheduler.pending())
}

func TestSequencerPlaybackErrorAfterStartAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()

	require.True(t, h.trigger(""))
	h.fire(3 * time.Second)
	h.assets.last().Started()
	h.assets.last().Failed(errors.New("decode error"))

	state := h.state()
	assert.False(t, state.IsPartnerSpeaking)
	assert.Equal(t, 1, h.controller.sequencer.Index())
	assert.False(t, h.controller.sequencer.Busy())
}

func TestSequencerCallbacksAfterEndMatchAreIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()

	require.True(t, h.trigger(""))
	h.fire(3 * time.Second)
	events := h.assets.last()

	_, err := h.controller.EndMatch(h.ctx())
	require.NoError(t, err)
	assert.Equal(t, 1, h.assets.stopCount())

	events.Started()
	events.Ended()
	state := h.state()
	assert.False(t, state.IsPartnerSpeaking)
	assert.False(t, state.IsPartnerThinking)
	assert.Zero(t, h.controller.sequencer.Index())
}

func TestSequencerThinkingDelayAfterEndMatchIsIgnored(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.start()
	require.True(t, h.trigger(""))

	_, err := h.controller.EndMatch(h.ctx())
	require.NoError(t, err)

	var pending int
	h.onLoop(func() { pending = h.controller.tasks.pendingCount() })
	assert.Zero(t, pending)

	h.scheduler.fireStale(3 * time.Second)
	h.idle()
	assert.Empty(t, h.assets.played())
}

func TestSequencerCustomBudget(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(cfg *Config) {
		cfg.Sequencer.MaxResponses = 2
		cfg.Sequencer.ThinkingDelays = []time.Duration{time.Second}
	}))
	h.start()

	for i := 0; i < 2; i++ {
		require.True(t, h.trigger(""))
		h.fire(time.Second)
		h.assets.last().Ended()
		h.idle()
	}
	assert.Equal(t, []int{1, 2}, h.assets.played())
	assert.False(t, h.trigger(""))
}

func TestGeneratedSequencerIgnoresEmptyText(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(cfg *Config) { cfg.Sequencer.Mode = ResponseGenerated }))
	h.start()

	assert.False(t, h.trigger("   "))
	assert.False(t, h.state().IsPartnerThinking)
}

func TestGeneratedSequencerReportsFailureAndAdvances(t *testing.T) {
	t.Parallel()

	h := newHarness(t, withConfig(func(cfg *Config) { cfg.Sequencer.Mode = ResponseGenerated }))
	h.generator.err = errors.New("upstream 500")
	h.start()

	require.True(t, h.trigger("tell me about books"))
	require.Eventually(t, func() bool {
		return h.metrics.count("response:generation_failed") == 1
	}, time.Second, 5*time.Millisecond)
	h.idle()

	assert.Equal(t, 1, h.controller.sequencer.Index())
	assert.False(t, h.state().IsPartnerThinking)
	assert.Contains(t, h.sink.errorCodes(), domain.ErrorCodeGeneration)
}

func TestGeneratedModeFallsBackWithoutGenerator(t *testing.T) {
	t.Parallel()

	recorder := &fakeRecorder{log: &callLog{}}
	c, err := NewController(Config{Sequencer: SequencerConfig{Mode: ResponseGenerated}}, Dependencies{
		Recorder:  recorder,
		Player:    &fakePlayer{log: recorder.log},
		Countdown: &fakeCountdown{log: recorder.log},
		Topics:    &fakeTopics{},
		Scheduler: &fakeScheduler{},
	})
	require.NoError(t, err)
	t.Cleanup(c.Destroy)

	assert.Equal(t, ResponseScripted, c.sequencer.cfg.Mode)
}
