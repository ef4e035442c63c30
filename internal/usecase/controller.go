package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

var (
	ErrPermissionDenied = errors.New("microphone permission denied")
	ErrMatchInProgress  = errors.New("match already in progress")
	ErrControllerClosed = errors.New("controller closed")
	ErrNoGenerator      = errors.New("no ai generator configured")
)

// Config controls match behavior.
type Config struct {
	SessionSeconds int
	MatchType      domain.MatchType
	Difficulty     domain.DifficultyLevel
	TurnPause      time.Duration
	Sequencer      SequencerConfig
}

// Dependencies are the collaborators a Controller drives. Recorder, Player,
// Countdown and Topics are required; the rest may be nil.
type Dependencies struct {
	Recorder    ports.Recorder
	Player      ports.Player
	Assets      ports.AssetPlayer
	Countdown   ports.Countdown
	Recognizer  ports.Recognizer
	Transcriber ports.ClipTranscriber
	Transport   ports.Transport
	Generator   ports.Generator
	Topics      ports.TopicProvider
	Events      ports.EventSink
	Metrics     ports.Metrics
	Scheduler   ports.Scheduler
	Tracer      trace.Tracer
	Now         func() time.Time
}

// Controller is the match lifecycle manager. It is safe for concurrent use;
// every state change is applied on a single event loop.
type Controller struct {
	cfg  Config
	deps Dependencies

	ctx    context.Context
	cancel context.CancelFunc

	loop       *eventLoop
	store      *Store
	tasks      *matchTasks
	arbiter    *Arbiter
	audio      *AudioOrchestrator
	bridge     *TranscriptionBridge
	sequencer  *Sequencer
	aggregator *transcriptAggregator

	// answeredEarly is set when the partner finished a reply before the turn
	// reached it.
	answeredEarly bool
	// autoStarted marks a match entered by AutoStart whose microphone is not
	// warm yet; StartMatch finishes it.
	autoStarted bool
	matchSpan   trace.Span

	closeOnce sync.Once
}

func NewController(cfg Config, deps Dependencies) (*Controller, error) {
	switch {
	case deps.Recorder == nil:
		return nil, errors.New("recorder is required")
	case deps.Player == nil:
		return nil, errors.New("player is required")
	case deps.Countdown == nil:
		return nil, errors.New("countdown is required")
	case deps.Topics == nil:
		return nil, errors.New("topic provider is required")
	}
	if deps.Events == nil {
		deps.Events = noopSink{}
	}
	if deps.Metrics == nil {
		deps.Metrics = noopMetrics{}
	}
	if deps.Scheduler == nil {
		deps.Scheduler = NewClockScheduler()
	}
	if deps.Tracer == nil {
		deps.Tracer = noop.NewTracerProvider().Tracer("versusmatch/usecase")
	}
	if cfg.SessionSeconds <= 0 {
		cfg.SessionSeconds = domain.DefaultSessionSeconds
	}
	cfg.Sequencer = cfg.Sequencer.withDefaults()
	if cfg.Sequencer.Mode == ResponseGenerated && deps.Generator == nil {
		logger.Warn("generated responses need a generator; using scripted responses")
		cfg.Sequencer.Mode = ResponseScripted
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:        cfg,
		deps:       deps,
		ctx:        ctx,
		cancel:     cancel,
		loop:       newEventLoop(),
		aggregator: newTranscriptAggregator(),
	}
	c.store = NewStore(domain.NewMatchState(cfg.MatchType, cfg.Difficulty, cfg.SessionSeconds), deps.Events, deps.Now)
	c.tasks = newMatchTasks(c.loop, deps.Scheduler, c.store.MatchStarted, func(reason domain.StateReason) {
		c.store.Publish(reason)
	})
	c.audio = &AudioOrchestrator{
		ctx:         ctx,
		store:       c.store,
		tasks:       c.tasks,
		recorder:    deps.Recorder,
		player:      deps.Player,
		transport:   deps.Transport,
		transcriber: deps.Transcriber,
		events:      deps.Events,
		metrics:     deps.Metrics,
		respond:     func() { c.sequencer.Trigger("") },
	}
	c.arbiter = newArbiter(c.store, c.tasks, cfg.TurnPause, turnHooks{
		stopRecording: c.audio.StopRecording,
		switched:      c.onTurnSwitched,
		partnerTurn:   c.onPartnerTurn,
		promptCount:   deps.Topics.PromptCount,
	})
	c.audio.arbiter = c.arbiter
	c.sequencer = &Sequencer{
		ctx:       ctx,
		cfg:       cfg.Sequencer,
		store:     c.store,
		arbiter:   c.arbiter,
		tasks:     c.tasks,
		assets:    deps.Assets,
		generator: deps.Generator,
		topics:    deps.Topics,
		events:    deps.Events,
		metrics:   deps.Metrics,
		done:      c.onResponseDone,
	}
	c.bridge = &TranscriptionBridge{
		store:      c.store,
		aggregator: c.aggregator,
		events:     deps.Events,
		metrics:    deps.Metrics,
		respond:    func(text string) { c.sequencer.Trigger(text) },
	}

	c.bindEvents()
	return c, nil
}

func (c *Controller) bindEvents() {
	c.deps.Recorder.Bind(ports.RecorderEvents{
		StateChanged: func(isRecording bool, level float64) {
			c.dispatch(domain.ReasonRecordingChanged, func() { c.audio.HandleRecorderState(isRecording, level) })
		},
		Completed: func(clip domain.AudioBuffer) {
			c.dispatch(domain.ReasonClipCaptured, func() { c.audio.HandleClip(clip) })
		},
	})
	c.deps.Player.Bind(ports.PlayerEvents{
		StateChanged: func(isPlaying bool) {
			c.dispatch(domain.ReasonPlaybackChanged, func() { c.audio.HandlePlaybackState(isPlaying) })
		},
	})
	c.deps.Countdown.Bind(ports.CountdownEvents{
		Tick: func(remaining int) {
			c.dispatch(domain.ReasonRemainingTime, func() { c.handleTick(remaining) })
		},
	})
	if c.deps.Recognizer != nil {
		c.deps.Recognizer.Bind(ports.RecognizerEvents{
			Result: func(result domain.RecognitionResult) {
				c.dispatch(domain.ReasonRecognitionChanged, func() { c.bridge.HandleResult(result) })
			},
			Error: func(message string) {
				c.dispatch(domain.ReasonRecognitionChanged, func() { c.bridge.HandleError(message) })
			},
			Started: func() {
				c.dispatch(domain.ReasonRecognitionChanged, c.bridge.HandleStarted)
			},
			Ended: func() {
				c.dispatch(domain.ReasonRecognitionChanged, c.bridge.HandleEnded)
			},
		})
	}
	if c.deps.Transport != nil {
		c.deps.Transport.Bind(ports.TransportEvents{
			Voice: func(packet domain.VoicePacket) {
				c.dispatch(domain.ReasonVoiceReceived, func() { c.audio.HandleVoice(packet) })
			},
		})
	}
	if c.deps.Generator != nil {
		c.deps.Generator.Bind(ports.GeneratorEvents{
			SpeakingChanged: func(isSpeaking bool) {
				c.dispatch(domain.ReasonPartnerSpeaking, func() {
					c.applyGeneratorActivity(isSpeaking, PartnerSpeaking)
				})
			},
			ThinkingChanged: func(isThinking bool) {
				c.dispatch(domain.ReasonPartnerThinking, func() {
					c.applyGeneratorActivity(isThinking, PartnerThinking)
				})
			},
			Failed: func(err error) {
				c.dispatch(domain.ReasonPartnerIdle, func() {
					if c.sequencer.Busy() {
						return
					}
					logger.Warn("ai generator failed", "error", err)
					c.deps.Events.MatchError(domain.ErrorCodeGeneration, err.Error())
				})
			},
		})
	}
}

// dispatch queues a collaborator callback onto the loop.
func (c *Controller) dispatch(reason domain.StateReason, fn func()) {
	c.loop.post(func() {
		fn()
		c.store.Publish(reason)
	})
}

// run executes fn on the loop on behalf of a public call and publishes once.
func (c *Controller) run(ctx context.Context, reason domain.StateReason, fn func()) error {
	return c.loop.call(ctx, func() {
		fn()
		c.store.Publish(reason)
	})
}

// applyGeneratorActivity mirrors explicit generation requests; the sequencer
// owns the partner flags while a step is in flight.
func (c *Controller) applyGeneratorActivity(on bool, activity PartnerActivity) {
	if c.sequencer.Busy() {
		return
	}
	if on {
		c.arbiter.SetPartnerActivity(activity)
		return
	}
	state := c.store.State()
	if (activity == PartnerSpeaking && state.IsPartnerSpeaking) || (activity == PartnerThinking && state.IsPartnerThinking) {
		c.arbiter.SetPartnerActivity(PartnerIdle)
	}
}

// StartMatch acquires the microphone, enters the user's turn and starts the
// clock once continuous recording is running. On an auto-started match it
// only acquires the microphone and starts the clock.
func (c *Controller) StartMatch(ctx context.Context) (err error) {
	ctx, span := c.deps.Tracer.Start(ctx, "versus.start_match")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var (
		connect  bool
		resume   bool
		startErr error
	)
	if err := c.loop.call(ctx, func() {
		switch {
		case c.store.MatchStarted() && c.autoStarted:
			c.autoStarted = false
			resume = true
		case c.store.MatchStarted():
			startErr = ErrMatchInProgress
			return
		default:
			c.deps.Recorder.ResetRecordings()
		}
		connect = c.deps.Transport != nil && !c.deps.Transport.Connected()
	}); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	if connect {
		if connErr := c.deps.Transport.Connect(ctx); connErr != nil {
			logger.Warn("voice relay connection failed", "error", connErr)
			_ = c.run(ctx, domain.ReasonMatchStarted, func() {
				c.deps.Events.MatchError(domain.ErrorCodeTransport, connErr.Error())
			})
		}
	}

	if permErr := c.deps.Recorder.RequestPermission(ctx); permErr != nil {
		c.revertStart(ctx, domain.ErrorCodePermissionDenied, permErr)
		return fmt.Errorf("%w: %v", ErrPermissionDenied, permErr)
	}
	if resume {
		return c.finishAutoStart(ctx)
	}

	var (
		gen   uint64
		level domain.DifficultyLevel
		id    = uuid.NewString()
	)
	if err := c.run(ctx, domain.ReasonMatchStarted, func() {
		if c.store.MatchStarted() {
			startErr = ErrMatchInProgress
			return
		}
		c.enterMatch(id)
		gen = c.tasks.generation()
		state := c.store.State()
		level = state.DifficultyLevel
		c.matchSpan = c.startMatchSpan(state, "start")
	}); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}
	logCtx := logger.WithMatchID(ctx, id)
	logger.InfoContext(logCtx, "match started", "difficulty", level)

	if loadErr := c.deps.Topics.LoadByLevel(ctx, level); loadErr != nil {
		logger.WarnContext(logCtx, "failed to load topic", "difficulty", level, "error", loadErr)
	}

	return c.warmUp(ctx, gen)
}

// finishAutoStart keeps the auto-started match, its id and its mode topic.
func (c *Controller) finishAutoStart(ctx context.Context) error {
	var (
		gen uint64
		id  string
	)
	if err := c.loop.call(ctx, func() {
		gen = c.tasks.generation()
		id = c.store.State().MatchID
	}); err != nil {
		return err
	}
	logger.InfoContext(logger.WithMatchID(ctx, id), "auto-started match joined")
	return c.warmUp(ctx, gen)
}

// warmUp opens the continuous microphone, then starts the clock if the match
// of generation gen is still running.
func (c *Controller) warmUp(ctx context.Context, gen uint64) error {
	if recErr := c.deps.Recorder.StartContinuous(c.ctx); recErr != nil {
		c.revertStart(ctx, domain.ErrorCodeRecording, recErr)
		return fmt.Errorf("start continuous recording: %w", recErr)
	}

	return c.run(ctx, domain.ReasonMatchStarted, func() {
		if c.tasks.generation() != gen || !c.store.MatchStarted() {
			return
		}
		c.deps.Countdown.StartMain(c.store.State().RemainingTime)
	})
}

func (c *Controller) enterMatch(id string) {
	c.tasks.cancelAll()
	c.sequencer.Reset()
	c.answeredEarly = false
	c.autoStarted = false
	c.store.Update(domain.MatchPatch{
		MatchStarted: domain.Set(true),
		MatchID:      domain.Set(id),
		UserMuted:    domain.Set(false),
	})
	c.arbiter.Begin()
	c.deps.Metrics.MatchStarted(c.store.State().MatchType)
}

func (c *Controller) revertStart(ctx context.Context, code domain.ErrorCode, cause error) {
	logger.Warn("match start failed", "code", code, "error", cause)
	_ = c.run(ctx, domain.ReasonMatchStartFailed, func() {
		c.autoStarted = false
		if c.store.MatchStarted() {
			c.tasks.cancelAll()
			c.sequencer.Reset()
			c.deps.Metrics.MatchEnded(c.store.State().MatchType)
		}
		c.store.Update(domain.MatchPatch{
			MatchStarted: domain.Set(false),
			MatchID:      domain.Set(""),
			TurnPhase:    domain.Set(domain.TurnPhaseIdle),
		})
		c.endMatchSpan(cause)
		c.deps.Events.MatchError(code, cause.Error())
	})
}

// AutoStart enters the match and loads the mode topic without starting the
// clock; StartSyncedTimer starts it later.
func (c *Controller) AutoStart(ctx context.Context) error {
	var err error
	if callErr := c.run(ctx, domain.ReasonMatchAutoStarted, func() {
		if c.store.MatchStarted() {
			err = ErrMatchInProgress
			return
		}
		c.deps.Recorder.ResetRecordings()
		c.enterMatch(uuid.NewString())
		c.autoStarted = true
		state := c.store.State()
		c.applyModeTopic(state.MatchType)
		c.matchSpan = c.startMatchSpan(state, "auto")
		logger.Info("match auto-started", "match_id", state.MatchID, "match_type", state.MatchType)
	}); callErr != nil {
		return callErr
	}
	return err
}

// StartSyncedTimer starts the countdown from a clock agreed with the peer.
func (c *Controller) StartSyncedTimer(ctx context.Context, seconds int) error {
	return c.run(ctx, domain.ReasonRemainingTime, func() {
		if !c.store.MatchStarted() {
			return
		}
		if seconds > 0 {
			c.store.Update(domain.MatchPatch{RemainingTime: domain.Set(seconds)})
		}
		c.deps.Countdown.StartMain(c.store.State().RemainingTime)
	})
}

// UpdateRemainingTime syncs the clock. A running match only ever moves it
// down.
func (c *Controller) UpdateRemainingTime(ctx context.Context, seconds int) error {
	if seconds < 0 {
		seconds = 0
	}
	return c.run(ctx, domain.ReasonRemainingTime, func() {
		state := c.store.State()
		if state.MatchStarted && seconds > state.RemainingTime {
			return
		}
		c.store.Update(domain.MatchPatch{RemainingTime: domain.Set(seconds)})
	})
}

func (c *Controller) handleTick(remaining int) {
	state := c.store.State()
	if !state.MatchStarted {
		return
	}
	if remaining > state.RemainingTime {
		remaining = state.RemainingTime
	}
	if remaining <= 0 {
		c.endMatch()
		return
	}
	c.store.Update(domain.MatchPatch{RemainingTime: domain.Set(remaining)})
}

// EndMatch tears the match down and hands back what it produced. Ending a
// match that is not running returns an empty summary.
func (c *Controller) EndMatch(ctx context.Context) (domain.MatchSummary, error) {
	summary := domain.MatchSummary{
		Recordings: []domain.AudioBuffer{},
		Transcript: []domain.TranscriptMessage{},
	}
	err := c.loop.call(ctx, func() {
		if c.store.MatchStarted() {
			summary = c.endMatch()
		}
	})
	return summary, err
}

func (c *Controller) endMatch() domain.MatchSummary {
	state := c.store.State()
	logger.Info("ending match", "match_id", state.MatchID, "remaining", state.RemainingTime)

	if c.deps.Transport != nil {
		if err := c.deps.Transport.Disconnect(); err != nil {
			logger.Warn("failed to disconnect voice relay", "error", err)
		}
	}
	c.deps.Countdown.StopAll()
	c.tasks.cancelAll()
	c.sequencer.Reset()
	c.answeredEarly = false
	c.autoStarted = false

	if err := c.deps.Recorder.Stop(); err != nil {
		logger.Debug("recorder stop", "error", err)
	}
	if err := c.deps.Recorder.StopContinuous(); err != nil {
		logger.Debug("recorder stop continuous", "error", err)
	}
	if err := c.deps.Player.Stop(); err != nil {
		logger.Debug("player stop", "error", err)
	}
	if c.deps.Generator != nil {
		c.deps.Generator.StopSpeaking()
	}
	if c.deps.Recognizer != nil && c.deps.Recognizer.Listening() {
		if err := c.deps.Recognizer.Stop(); err != nil {
			logger.Warn("failed to stop speech recognition", "error", err)
		}
	}

	recordings := c.deps.Recorder.Recordings()
	if recordings == nil {
		recordings = []domain.AudioBuffer{}
	}
	summary := domain.MatchSummary{
		Recordings: recordings,
		Transcript: state.TranscriptMessages,
	}

	c.deps.Topics.Reset()
	c.aggregator.Reset()
	c.audio.reset()

	next := domain.NewMatchState(state.MatchType, state.DifficultyLevel, c.cfg.SessionSeconds)
	c.store.Reset(next)
	c.arbiter.End()

	c.deps.Metrics.MatchEnded(state.MatchType)
	c.endMatchSpan(nil)
	c.store.Publish(domain.ReasonMatchEnded)
	return summary
}

func (c *Controller) startMatchSpan(state domain.MatchState, how string) trace.Span {
	c.endMatchSpan(nil)
	_, span := c.deps.Tracer.Start(c.ctx, "versus.match", trace.WithAttributes(
		attribute.String("match.id", state.MatchID),
		attribute.String("match.type", string(state.MatchType)),
		attribute.String("match.difficulty", string(state.DifficultyLevel)),
		attribute.String("match.start", how),
	))
	return span
}

func (c *Controller) endMatchSpan(err error) {
	if c.matchSpan == nil {
		return
	}
	if err != nil {
		c.matchSpan.RecordError(err)
		c.matchSpan.SetStatus(codes.Error, err.Error())
	}
	c.matchSpan.End()
	c.matchSpan = nil
}

func (c *Controller) onTurnSwitched(to domain.Speaker) {
	c.deps.Metrics.TurnSwitched(to)
	if to == domain.SpeakerUser {
		c.answeredEarly = false
	}
}

// onPartnerTurn runs when an AI-assisted match hands the turn to the partner.
func (c *Controller) onPartnerTurn() {
	if c.answeredEarly {
		c.answeredEarly = false
		c.arbiter.EndPartnerSpeech()
		return
	}
	if c.sequencer.Busy() || c.sequencer.Trigger("") {
		return
	}
	c.arbiter.EndPartnerSpeech()
}

func (c *Controller) onResponseDone() {
	state := c.store.State()
	if state.MatchType != domain.MatchTypeAIAssisted {
		return
	}
	switch {
	case state.SpeakingTurn == domain.SpeakerPartner && state.TurnPhase == domain.TurnPhasePartnerTurn:
		c.arbiter.EndPartnerSpeech()
	case state.SpeakingTurn == domain.SpeakerUser:
		c.answeredEarly = true
	}
}

// ToggleRecording stops an active recording and ends the user's speech, or
// starts a new one. The user may start recording at any time.
func (c *Controller) ToggleRecording(ctx context.Context) error {
	var err error
	if callErr := c.run(ctx, domain.ReasonRecordingChanged, func() {
		if c.store.State().IsRecording {
			c.audio.StopRecording()
			c.arbiter.EndUserSpeech()
			return
		}
		if startErr := c.audio.StartRecording(); startErr != nil {
			logger.Warn("failed to start recording", "error", startErr)
			c.deps.Events.MatchError(domain.ErrorCodeRecording, startErr.Error())
			err = fmt.Errorf("start recording: %w", startErr)
		}
	}); callErr != nil {
		return callErr
	}
	return err
}

func (c *Controller) TogglePlayback(ctx context.Context) error {
	return c.run(ctx, domain.ReasonPlaybackChanged, c.audio.TogglePlayback)
}

func (c *Controller) DeleteRecording(ctx context.Context) error {
	return c.run(ctx, domain.ReasonRecordingDeleted, c.audio.DeleteRecording)
}

// PlayFullRecording plays every clip of the match back to back. Failures
// reset the progress fields and are returned.
func (c *Controller) PlayFullRecording(ctx context.Context) (err error) {
	ctx, span := c.deps.Tracer.Start(ctx, "versus.play_full_recording")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var clips []domain.AudioBuffer
	if err := c.loop.call(ctx, func() { clips = c.deps.Recorder.Recordings() }); err != nil {
		return err
	}
	if len(clips) == 0 {
		return nil
	}
	full := domain.MergeClips(clips)
	span.SetAttributes(attribute.Int("clips", len(clips)), attribute.Int("bytes", full.Len()))

	duration, durErr := c.deps.Player.Duration(ctx, full)
	if durErr != nil {
		c.failFullPlayback(ctx, durErr)
		return fmt.Errorf("play full recording: %w", durErr)
	}

	var playErr error
	if err := c.run(ctx, domain.ReasonPlaybackProgress, func() {
		c.audio.beginFullPlayback(duration)
		playErr = c.deps.Player.PlayWithProgress(c.ctx, full, func(percent, elapsed, total float64) {
			c.dispatch(domain.ReasonPlaybackProgress, func() {
				c.audio.applyProgress(percent, elapsed, total, duration)
			})
		})
		if playErr != nil {
			c.audio.resetFullPlayback()
			c.deps.Events.MatchError(domain.ErrorCodePlayback, playErr.Error())
		}
	}); err != nil {
		return err
	}
	if playErr != nil {
		return fmt.Errorf("play full recording: %w", playErr)
	}
	return nil
}

func (c *Controller) failFullPlayback(ctx context.Context, cause error) {
	logger.Warn("full recording playback failed", "error", cause)
	_ = c.run(ctx, domain.ReasonPlaybackProgress, func() {
		c.audio.resetFullPlayback()
		c.deps.Events.MatchError(domain.ErrorCodePlayback, cause.Error())
	})
}

func (c *Controller) StopFullRecording(ctx context.Context) error {
	return c.run(ctx, domain.ReasonPlaybackProgress, c.audio.StopFullRecording)
}

// Recordings returns every clip captured in the current or last match.
func (c *Controller) Recordings(ctx context.Context) ([]domain.AudioBuffer, error) {
	var clips []domain.AudioBuffer
	err := c.loop.call(ctx, func() { clips = c.deps.Recorder.Recordings() })
	return clips, err
}

// ChangeMatchType switches between human and AI partners. The transcript and
// the AI response budget start over.
func (c *Controller) ChangeMatchType(ctx context.Context, matchType domain.MatchType) error {
	if !matchType.Valid() {
		return fmt.Errorf("unknown match type %q", matchType)
	}
	return c.run(ctx, domain.ReasonModeChanged, func() {
		c.store.Update(domain.MatchPatch{
			MatchType:      domain.Set(matchType),
			IsUserSpeaking: domain.Set(false),
		})
		c.store.ClearTranscriptMessages()
		c.sequencer.Reset()
		c.answeredEarly = false
		c.applyModeTopic(matchType)

		state := c.store.State()
		if state.SpeakingTurn == domain.SpeakerPartner && state.TurnPhase == domain.TurnPhasePartnerTurn {
			c.arbiter.EndPartnerSpeech()
		}
		logger.Info("match type changed", "match_type", matchType)
	})
}

func (c *Controller) applyModeTopic(matchType domain.MatchType) {
	topic := domain.TopicForMode(matchType)
	c.deps.Topics.SetTopic(topic.Topic, topic.Prompts)
}

func (c *Controller) ChangeDifficultyLevel(ctx context.Context, level domain.DifficultyLevel) error {
	if !level.Valid() {
		return fmt.Errorf("unknown difficulty level %q", level)
	}
	return c.run(ctx, domain.ReasonDifficultyChanged, func() {
		c.store.Update(domain.MatchPatch{DifficultyLevel: domain.Set(level)})
	})
}

// SyncServerTopic installs a topic assigned by the server. An empty or unknown
// difficulty leaves the current level alone.
func (c *Controller) SyncServerTopic(ctx context.Context, topic string, prompts []string, difficulty string) error {
	return c.run(ctx, domain.ReasonTopicSynced, func() {
		c.deps.Topics.SetTopic(topic, prompts)
		level := domain.DifficultyLevel(strings.TrimSpace(difficulty))
		switch {
		case level == "":
		case level.Valid():
			c.store.Update(domain.MatchPatch{DifficultyLevel: domain.Set(level)})
		default:
			logger.Warn("ignoring unknown server difficulty", "difficulty", difficulty)
		}
	})
}

func (c *Controller) IsUsingServerTopic() bool {
	return c.deps.Topics.UsingServerTopic()
}

func (c *Controller) CurrentTopic() string {
	if topic := c.deps.Topics.CurrentTopic(); topic != "" {
		return topic
	}
	return domain.TopicForMode(c.store.State().MatchType).Topic
}

func (c *Controller) CurrentPrompt() string {
	state := c.store.State()
	if !state.MatchStarted {
		return domain.PendingPrompt
	}
	if prompt := c.deps.Topics.PromptByIndex(state.CurrentPromptIndex); prompt != "" {
		return prompt
	}
	fallback := domain.TopicForMode(state.MatchType).Prompts
	return fallback[state.CurrentPromptIndex%len(fallback)]
}

// CanUserSpeak reports whether the user currently holds the turn.
func (c *Controller) CanUserSpeak() bool {
	state := c.store.State()
	return state.MatchStarted &&
		state.SpeakingTurn == domain.SpeakerUser &&
		state.TurnPhase == domain.TurnPhaseUserTurn &&
		!state.IsPartnerSpeaking
}

func (c *Controller) AddTranscriptMessage(ctx context.Context, msg domain.TranscriptMessage) error {
	return c.run(ctx, domain.ReasonTranscriptUpdated, func() {
		c.store.AddTranscriptMessage(msg)
	})
}

// State returns a snapshot of the match.
func (c *Controller) State() domain.MatchState {
	return c.store.State()
}

// StartSpeechRecognition begins live recognition and reports whether it
// started.
func (c *Controller) StartSpeechRecognition(ctx context.Context) bool {
	if !c.IsSpeechRecognitionSupported() {
		logger.Warn("speech recognition is not supported")
		return false
	}
	if err := c.deps.Recognizer.Start(c.ctx); err != nil {
		_ = c.run(ctx, domain.ReasonRecognitionChanged, func() { c.bridge.HandleError(err.Error()) })
		return false
	}
	return true
}

func (c *Controller) StopSpeechRecognition() {
	if c.deps.Recognizer == nil {
		return
	}
	if err := c.deps.Recognizer.Stop(); err != nil {
		logger.Warn("failed to stop speech recognition", "error", err)
	}
}

func (c *Controller) IsSpeechRecognitionSupported() bool {
	return c.deps.Recognizer != nil && c.deps.Recognizer.Supported()
}

func (c *Controller) IsSpeechRecognitionListening() bool {
	return c.deps.Recognizer != nil && c.deps.Recognizer.Listening()
}

func (c *Controller) ClearSpeechText(ctx context.Context) error {
	return c.run(ctx, domain.ReasonRecognitionChanged, c.bridge.Clear)
}

// SpeechText returns the running transcript of final recognition results.
func (c *Controller) SpeechText() string {
	return c.bridge.SpeechText()
}

// SetConversationContext overrides what the generator is told about the
// conversation.
func (c *Controller) SetConversationContext(ctx context.Context, conversation ports.ConversationContext) error {
	return c.run(ctx, domain.ReasonPartnerIdle, func() {
		c.sequencer.SetContext(conversation)
		if c.deps.Generator != nil {
			c.deps.Generator.SetContext(c.sequencer.conversationContext())
		}
	})
}

// GenerateAIResponse asks the generator to answer text outside the response
// budget and appends the reply to the transcript.
func (c *Controller) GenerateAIResponse(ctx context.Context, text string) error {
	if c.deps.Generator == nil {
		return ErrNoGenerator
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	reply, err := c.deps.Generator.GenerateFromSpeech(ctx, text)
	if err != nil {
		_ = c.run(ctx, domain.ReasonPartnerIdle, func() {
			c.deps.Events.MatchError(domain.ErrorCodeGeneration, err.Error())
		})
		return fmt.Errorf("generate response: %w", err)
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		return nil
	}
	return c.run(ctx, domain.ReasonPartnerReplied, func() {
		c.store.AddTranscriptMessage(domain.TranscriptMessage{IsUser: false, Text: reply})
	})
}

// WaitIdle blocks until every queued event has been applied.
func (c *Controller) WaitIdle(ctx context.Context) error {
	return c.loop.idle(ctx)
}

// Destroy releases every timer, media handle, recognizer and connection. It
// is safe to call more than once.
func (c *Controller) Destroy() {
	c.closeOnce.Do(func() {
		_ = c.loop.call(context.Background(), func() {
			c.deps.Countdown.StopAll()
			c.tasks.cancelAll()
			c.sequencer.Cancel()
			c.endMatchSpan(nil)
		})

		closers := []collaborator{
			{"recorder", c.deps.Recorder.Close},
			{"player", c.deps.Player.Close},
		}
		if c.deps.Recognizer != nil {
			closers = append(closers, collaborator{"recognizer", c.deps.Recognizer.Close})
		}
		if c.deps.Generator != nil {
			closers = append(closers, collaborator{"generator", c.deps.Generator.Close})
		}
		if c.deps.Transport != nil {
			closers = append(closers, collaborator{"transport", c.deps.Transport.Disconnect})
		}
		for _, closer := range closers {
			if err := closer.close(); err != nil {
				logger.Warn("failed to release collaborator", "collaborator", closer.name, "error", err)
			}
		}

		c.cancel()
		c.loop.close()
	})
}

type collaborator struct {
	name  string
	close func() error
}
