package ports

import (
	"context"
	"time"

	"versusmatch/internal/domain"
)

// RecorderEvents are the callbacks a Recorder delivers.
type RecorderEvents struct {
	StateChanged func(isRecording bool, level float64)
	Completed    func(clip domain.AudioBuffer)
}

// Recorder captures microphone clips. StartContinuous keeps the device open
// for the whole match; only Start and Stop delimit a clip and report
// StateChanged.
type Recorder interface {
	Bind(events RecorderEvents)
	RequestPermission(ctx context.Context) error
	Start(ctx context.Context) error
	StartContinuous(ctx context.Context) error
	Stop() error
	StopContinuous() error
	// Recordings returns every clip captured since the last reset, in capture order.
	Recordings() []domain.AudioBuffer
	ResetRecordings()
	Close() error
}

// ProgressFunc receives playback progress of a long clip.
type ProgressFunc func(percent float64, elapsedSeconds float64, totalSeconds float64)

// PlayerEvents are the callbacks a Player delivers.
type PlayerEvents struct {
	StateChanged func(isPlaying bool)
}

// Player plays audio buffers, one at a time.
type Player interface {
	Bind(events PlayerEvents)
	Play(ctx context.Context, clip domain.AudioBuffer) error
	PlayWithProgress(ctx context.Context, clip domain.AudioBuffer, onProgress ProgressFunc) error
	Stop() error
	Duration(ctx context.Context, clip domain.AudioBuffer) (float64, error)
	Close() error
}

// AssetEvents report the lifecycle of one response asset playback.
type AssetEvents struct {
	Started func()
	Ended   func()
	Failed  func(err error)
}

// AssetPlayer plays prerecorded partner response assets by identifier.
type AssetPlayer interface {
	PlayAsset(ctx context.Context, assetID int, events AssetEvents) (stop func(), err error)
}

// CountdownEvents are the callbacks a Countdown delivers.
type CountdownEvents struct {
	Tick func(remaining int)
}

// Countdown drives the match clock.
type Countdown interface {
	Bind(events CountdownEvents)
	StartMain(seconds int)
	StopAll()
}

// RecognizerEvents are the callbacks a Recognizer delivers.
type RecognizerEvents struct {
	Result  func(result domain.RecognitionResult)
	Error   func(message string)
	Started func()
	Ended   func()
}

// Recognizer streams live speech recognition results.
type Recognizer interface {
	Bind(events RecognizerEvents)
	Supported() bool
	Start(ctx context.Context) error
	Stop() error
	Listening() bool
	Close() error
}

// ClipTranscriber transcribes a finished clip in one request.
type ClipTranscriber interface {
	Transcribe(ctx context.Context, clip domain.AudioBuffer) (string, error)
}

// TransportEvents are the callbacks a Transport delivers.
type TransportEvents struct {
	Voice func(packet domain.VoicePacket)
}

// Transport relays voice clips between peers.
type Transport interface {
	Bind(events TransportEvents)
	SelfID() string
	Connect(ctx context.Context) error
	Disconnect() error
	Connected() bool
	SendAudio(ctx context.Context, clip domain.AudioBuffer) error
}

// ConversationContext steers AI generation.
type ConversationContext struct {
	Topic      string
	Difficulty domain.DifficultyLevel
	Language   string
}

// GeneratorEvents are the callbacks a Generator delivers.
type GeneratorEvents struct {
	SpeakingChanged func(isSpeaking bool)
	ThinkingChanged func(isThinking bool)
	Failed          func(err error)
}

// Generator produces partner replies from user speech.
type Generator interface {
	Bind(events GeneratorEvents)
	SetContext(ctx ConversationContext)
	GenerateFromSpeech(ctx context.Context, text string) (string, error)
	StopSpeaking()
	Close() error
}

// TopicProvider serves the discussion topic and prompts.
type TopicProvider interface {
	LoadByLevel(ctx context.Context, level domain.DifficultyLevel) error
	SetTopic(topic string, prompts []string)
	CurrentTopic() string
	PromptByIndex(index int) string
	PromptCount() int
	UsingServerTopic() bool
	Reset()
}

// EventSink receives match state notifications.
type EventSink interface {
	MatchStateChanged(state domain.MatchState, reason domain.StateReason)
	MatchError(code domain.ErrorCode, detail string)
}

// Metrics records match activity.
type Metrics interface {
	MatchStarted(matchType domain.MatchType)
	MatchEnded(matchType domain.MatchType)
	TurnSwitched(to domain.Speaker)
	PartnerResponse(outcome string)
	VoicePacket(outcome string)
	RecognitionError()
}

// Scheduler runs fn once after d. The returned cancel func is safe to call
// more than once.
type Scheduler interface {
	AfterFunc(d time.Duration, fn func()) (cancel func())
}
