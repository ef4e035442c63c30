package usecase

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"versusmatch/internal/domain"
	"versusmatch/internal/ports"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(call string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, call)
}

func (l *callLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

func (l *callLog) count(call string) int {
	n := 0
	for _, c := range l.snapshot() {
		if c == call {
			n++
		}
	}
	return n
}

type fakeRecorder struct {
	log *callLog

	mu        sync.Mutex
	events    ports.RecorderEvents
	permErr   error
	startErr  error
	contErr   error
	recording bool
	nextClip  domain.AudioBuffer
	clips     []domain.AudioBuffer
}

func (r *fakeRecorder) Bind(events ports.RecorderEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
}

func (r *fakeRecorder) RequestPermission(context.Context) error {
	r.log.add("recorder.permission")
	return r.permErr
}

func (r *fakeRecorder) Start(context.Context) error {
	r.log.add("recorder.start")
	r.mu.Lock()
	if r.startErr != nil {
		r.mu.Unlock()
		return r.startErr
	}
	r.recording = true
	events := r.events
	r.mu.Unlock()

	events.StateChanged(true, 0.4)
	return nil
}

func (r *fakeRecorder) StartContinuous(context.Context) error {
	r.log.add("recorder.start_continuous")
	return r.contErr
}

func (r *fakeRecorder) Stop() error {
	r.log.add("recorder.stop")
	r.mu.Lock()
	if !r.recording {
		r.mu.Unlock()
		return nil
	}
	r.recording = false
	clip := r.nextClip
	if clip.MediaType == "" {
		clip = domain.AudioBuffer{MediaType: "audio/webm", Data: []byte("clip")}
	}
	r.clips = append(r.clips, clip)
	events := r.events
	r.mu.Unlock()

	events.StateChanged(false, 0)
	events.Completed(clip)
	return nil
}

func (r *fakeRecorder) StopContinuous() error {
	r.log.add("recorder.stop_continuous")
	return nil
}

func (r *fakeRecorder) Recordings() []domain.AudioBuffer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.AudioBuffer(nil), r.clips...)
}

func (r *fakeRecorder) ResetRecordings() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clips = nil
}

func (r *fakeRecorder) Close() error {
	r.log.add("recorder.close")
	return nil
}

type fakePlayer struct {
	log *callLog

	mu       sync.Mutex
	events   ports.PlayerEvents
	played   []domain.AudioBuffer
	playing  bool
	playErr  error
	durErr   error
	duration float64
	progress ports.ProgressFunc
}

func (p *fakePlayer) Bind(events ports.PlayerEvents) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = events
}

func (p *fakePlayer) Play(_ context.Context, clip domain.AudioBuffer) error {
	p.log.add("player.play")
	p.mu.Lock()
	if p.playErr != nil {
		p.mu.Unlock()
		return p.playErr
	}
	p.played = append(p.played, clip)
	p.playing = !clip.Empty()
	events := p.events
	p.mu.Unlock()

	// Like audio.Player, an empty clip starts and ends at once.
	events.StateChanged(true)
	if clip.Empty() {
		events.StateChanged(false)
	}
	return nil
}

func (p *fakePlayer) PlayWithProgress(ctx context.Context, clip domain.AudioBuffer, onProgress ports.ProgressFunc) error {
	p.mu.Lock()
	p.progress = onProgress
	p.mu.Unlock()
	return p.Play(ctx, clip)
}

func (p *fakePlayer) Stop() error {
	p.log.add("player.stop")
	p.finish()
	return nil
}

// finish simulates the end of the current clip.
func (p *fakePlayer) finish() {
	p.mu.Lock()
	if !p.playing {
		p.mu.Unlock()
		return
	}
	p.playing = false
	events := p.events
	p.mu.Unlock()

	events.StateChanged(false)
}

func (p *fakePlayer) Duration(context.Context, domain.AudioBuffer) (float64, error) {
	return p.duration, p.durErr
}

func (p *fakePlayer) Close() error {
	p.log.add("player.close")
	return nil
}

func (p *fakePlayer) playedClips() []domain.AudioBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.AudioBuffer(nil), p.played...)
}

func (p *fakePlayer) reportProgress(percent, elapsed, total float64) {
	p.mu.Lock()
	fn := p.progress
	p.mu.Unlock()
	fn(percent, elapsed, total)
}

type fakeAssets struct {
	mu     sync.Mutex
	ids    []int
	events []ports.AssetEvents
	err    error
	stops  int
}

func (a *fakeAssets) PlayAsset(_ context.Context, assetID int, events ports.AssetEvents) (func(), error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ids = append(a.ids, assetID)
	if a.err != nil {
		return nil, a.err
	}
	a.events = append(a.events, events)
	return func() {
		a.mu.Lock()
		defer a.mu.Unlock()
		a.stops++
	}, nil
}

func (a *fakeAssets) played() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.ids...)
}

func (a *fakeAssets) last() ports.AssetEvents {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.events[len(a.events)-1]
}

func (a *fakeAssets) stopCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

type fakeCountdown struct {
	log *callLog

	mu     sync.Mutex
	events ports.CountdownEvents
	starts []int
}

func (c *fakeCountdown) Bind(events ports.CountdownEvents) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = events
}

func (c *fakeCountdown) StartMain(seconds int) {
	c.log.add("countdown.start")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.starts = append(c.starts, seconds)
}

func (c *fakeCountdown) StopAll() {
	c.log.add("countdown.stop_all")
}

func (c *fakeCountdown) tick(remaining int) {
	c.mu.Lock()
	events := c.events
	c.mu.Unlock()
	events.Tick(remaining)
}

func (c *fakeCountdown) started() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int(nil), c.starts...)
}

type fakeRecognizer struct {
	log *callLog

	mu          sync.Mutex
	events      ports.RecognizerEvents
	unsupported bool
	startErr    error
	listening   bool
}

func (r *fakeRecognizer) Bind(events ports.RecognizerEvents) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = events
}

func (r *fakeRecognizer) Supported() bool { return !r.unsupported }

func (r *fakeRecognizer) Start(context.Context) error {
	r.log.add("recognizer.start")
	r.mu.Lock()
	if r.startErr != nil {
		r.mu.Unlock()
		return r.startErr
	}
	r.listening = true
	events := r.events
	r.mu.Unlock()
	events.Started()
	return nil
}

func (r *fakeRecognizer) Stop() error {
	r.log.add("recognizer.stop")
	r.mu.Lock()
	wasListening := r.listening
	r.listening = false
	events := r.events
	r.mu.Unlock()
	if wasListening {
		events.Ended()
	}
	return nil
}

func (r *fakeRecognizer) Listening() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listening
}

func (r *fakeRecognizer) Close() error {
	r.log.add("recognizer.close")
	return nil
}

func (r *fakeRecognizer) emit(result domain.RecognitionResult) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	events.Result(result)
}

func (r *fakeRecognizer) fail(message string) {
	r.mu.Lock()
	events := r.events
	r.mu.Unlock()
	events.Error(message)
}

type fakeTransport struct {
	log *callLog

	mu         sync.Mutex
	events     ports.TransportEvents
	selfID     string
	connected  bool
	connectErr error
	sendErr    error
	sent       []domain.AudioBuffer
}

func (t *fakeTransport) Bind(events ports.TransportEvents) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = events
}

func (t *fakeTransport) SelfID() string { return t.selfID }

func (t *fakeTransport) Connect(context.Context) error {
	t.log.add("transport.connect")
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Disconnect() error {
	t.log.add("transport.disconnect")
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

func (t *fakeTransport) Connected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *fakeTransport) SendAudio(_ context.Context, clip domain.AudioBuffer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sent = append(t.sent, clip)
	return t.sendErr
}

func (t *fakeTransport) sentCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sent)
}

func (t *fakeTransport) deliver(packet domain.VoicePacket) {
	t.mu.Lock()
	events := t.events
	t.mu.Unlock()
	events.Voice(packet)
}

type fakeGenerator struct {
	log *callLog

	mu       sync.Mutex
	events   ports.GeneratorEvents
	reply    string
	err      error
	contexts []ports.ConversationContext
	inputs   []string
}

func (g *fakeGenerator) Bind(events ports.GeneratorEvents) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = events
}

func (g *fakeGenerator) SetContext(conversation ports.ConversationContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.contexts = append(g.contexts, conversation)
}

func (g *fakeGenerator) GenerateFromSpeech(_ context.Context, text string) (string, error) {
	g.mu.Lock()
	g.inputs = append(g.inputs, text)
	reply, err, events := g.reply, g.err, g.events
	g.mu.Unlock()

	events.ThinkingChanged(true)
	events.ThinkingChanged(false)
	if err != nil {
		events.Failed(err)
	}
	return reply, err
}

func (g *fakeGenerator) StopSpeaking() { g.log.add("generator.stop_speaking") }

func (g *fakeGenerator) Close() error {
	g.log.add("generator.close")
	return nil
}

func (g *fakeGenerator) lastContext() ports.ConversationContext {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.contexts[len(g.contexts)-1]
}

type fakeTranscriber struct {
	text string
	err  error
}

func (f fakeTranscriber) Transcribe(context.Context, domain.AudioBuffer) (string, error) {
	return f.text, f.err
}

type fakeTopics struct {
	mu      sync.Mutex
	topic   string
	prompts []string
	server  bool
	loaded  []domain.DifficultyLevel
	loadErr error
	resets  int
}

func (f *fakeTopics) LoadByLevel(_ context.Context, level domain.DifficultyLevel) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loaded = append(f.loaded, level)
	if f.loadErr != nil {
		return f.loadErr
	}
	f.topic = "topic for " + string(level)
	f.prompts = []string{"first prompt", "second prompt"}
	f.server = false
	return nil
}

func (f *fakeTopics) SetTopic(topic string, prompts []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = topic
	f.prompts = append([]string(nil), prompts...)
	f.server = true
}

func (f *fakeTopics) CurrentTopic() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.topic
}

func (f *fakeTopics) PromptByIndex(index int) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.prompts) {
		return ""
	}
	return f.prompts[index]
}

func (f *fakeTopics) PromptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

func (f *fakeTopics) UsingServerTopic() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.server
}

func (f *fakeTopics) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.topic = ""
	f.prompts = nil
	f.server = false
	f.resets++
}

type scheduledTask struct {
	delay     time.Duration
	fn        func()
	cancelled bool
	fired     bool
}

// fakeScheduler holds every timer until a test fires it.
type fakeScheduler struct {
	mu    sync.Mutex
	tasks []*scheduledTask
}

func (s *fakeScheduler) AfterFunc(d time.Duration, fn func()) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	task := &scheduledTask{delay: d, fn: fn}
	s.tasks = append(s.tasks, task)
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		task.cancelled = true
	}
}

func (s *fakeScheduler) pending() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []time.Duration
	for _, task := range s.tasks {
		if !task.cancelled && !task.fired {
			out = append(out, task.delay)
		}
	}
	return out
}

func (s *fakeScheduler) all() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, 0, len(s.tasks))
	for _, task := range s.tasks {
		out = append(out, task.delay)
	}
	return out
}

// fire runs the first live task with the given delay and reports whether one
// was found.
func (s *fakeScheduler) fire(d time.Duration) bool {
	s.mu.Lock()
	var target *scheduledTask
	for _, task := range s.tasks {
		if task.delay == d && !task.cancelled && !task.fired {
			target = task
			break
		}
	}
	if target != nil {
		target.fired = true
	}
	s.mu.Unlock()

	if target == nil {
		return false
	}
	target.fn()
	return true
}

// fireStale runs every task with the given delay, cancelled or not.
func (s *fakeScheduler) fireStale(d time.Duration) {
	s.mu.Lock()
	var targets []*scheduledTask
	for _, task := range s.tasks {
		if task.delay == d && !task.fired {
			task.fired = true
			targets = append(targets, task)
		}
	}
	s.mu.Unlock()

	for _, task := range targets {
		task.fn()
	}
}

type publishedState struct {
	state  domain.MatchState
	reason domain.StateReason
}

type reportedError struct {
	code   domain.ErrorCode
	detail string
}

type fakeSink struct {
	mu     sync.Mutex
	states []publishedState
	errors []reportedError
}

func (s *fakeSink) MatchStateChanged(state domain.MatchState, reason domain.StateReason) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = append(s.states, publishedState{state: state, reason: reason})
}

func (s *fakeSink) MatchError(code domain.ErrorCode, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, reportedError{code: code, detail: detail})
}

func (s *fakeSink) snapshot() []publishedState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publishedState(nil), s.states...)
}

func (s *fakeSink) reasons() []domain.StateReason {
	var out []domain.StateReason
	for _, st := range s.snapshot() {
		out = append(out, st.reason)
	}
	return out
}

func (s *fakeSink) errorCodes() []domain.ErrorCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ErrorCode
	for _, e := range s.errors {
		out = append(out, e.code)
	}
	return out
}

type fakeMetrics struct {
	mu       sync.Mutex
	counters map[string]int
}

func (m *fakeMetrics) inc(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.counters == nil {
		m.counters = map[string]int{}
	}
	m.counters[key]++
}

func (m *fakeMetrics) count(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counters[key]
}

func (m *fakeMetrics) MatchStarted(t domain.MatchType) { m.inc("started:" + string(t)) }
func (m *fakeMetrics) MatchEnded(t domain.MatchType)   { m.inc("ended:" + string(t)) }
func (m *fakeMetrics) TurnSwitched(to domain.Speaker)  { m.inc("turn:" + string(to)) }
func (m *fakeMetrics) PartnerResponse(outcome string)  { m.inc("response:" + outcome) }
func (m *fakeMetrics) VoicePacket(outcome string)      { m.inc("voice:" + outcome) }
func (m *fakeMetrics) RecognitionError()               { m.inc("recognition_error") }

type harness struct {
	t *testing.T

	log         *callLog
	recorder    *fakeRecorder
	player      *fakePlayer
	assets      *fakeAssets
	countdown   *fakeCountdown
	recognizer  *fakeRecognizer
	transport   *fakeTransport
	generator   *fakeGenerator
	topics      *fakeTopics
	scheduler   *fakeScheduler
	sink        *fakeSink
	metrics     *fakeMetrics
	transcriber ports.ClipTranscriber

	cfg        Config
	controller *Controller
}

type harnessOption func(*harness)

func withConfig(mutate func(*Config)) harnessOption {
	return func(h *harness) { mutate(&h.cfg) }
}

func withTranscriber(transcriber ports.ClipTranscriber) harnessOption {
	return func(h *harness) { h.transcriber = transcriber }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	log := &callLog{}
	h := &harness{
		t:          t,
		log:        log,
		recorder:   &fakeRecorder{log: log},
		player:     &fakePlayer{log: log, duration: 12},
		assets:     &fakeAssets{},
		countdown:  &fakeCountdown{log: log},
		recognizer: &fakeRecognizer{log: log},
		transport:  &fakeTransport{log: log, selfID: "self"},
		generator:  &fakeGenerator{log: log},
		topics:     &fakeTopics{},
		scheduler:  &fakeScheduler{},
		sink:       &fakeSink{},
		metrics:    &fakeMetrics{},
		cfg: Config{
			MatchType:  domain.MatchTypeAIAssisted,
			Difficulty: domain.DifficultyMid,
		},
	}
	for _, opt := range opts {
		opt(h)
	}

	controller, err := NewController(h.cfg, Dependencies{
		Recorder:    h.recorder,
		Player:      h.player,
		Assets:      h.assets,
		Countdown:   h.countdown,
		Recognizer:  h.recognizer,
		Transcriber: h.transcriber,
		Transport:   h.transport,
		Generator:   h.generator,
		Topics:      h.topics,
		Events:      h.sink,
		Metrics:     h.metrics,
		Scheduler:   h.scheduler,
	})
	require.NoError(t, err)
	h.controller = controller
	t.Cleanup(controller.Destroy)
	return h
}

func (h *harness) ctx() context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	h.t.Cleanup(cancel)
	return ctx
}

func (h *harness) idle() {
	h.t.Helper()
	require.NoError(h.t, h.controller.WaitIdle(h.ctx()))
}

func (h *harness) state() domain.MatchState {
	h.idle()
	return h.controller.State()
}

func (h *harness) start() {
	h.t.Helper()
	require.NoError(h.t, h.controller.StartMatch(h.ctx()))
	h.idle()
}

// onLoop runs fn on the controller's event loop.
func (h *harness) onLoop(fn func()) {
	h.t.Helper()
	require.NoError(h.t, h.controller.run(h.ctx(), domain.ReasonTranscriptUpdated, fn))
}

func (h *harness) fire(d time.Duration) {
	h.t.Helper()
	require.True(h.t, h.scheduler.fire(d), "no pending %s task", d)
	h.idle()
}
