package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"versusmatch/internal/bootstrap"
	"versusmatch/internal/domain"
	"versusmatch/internal/usecase"
)

var errQuit = errors.New("quit")

// App is the console host around one match controller.
type App struct {
	out   io.Writer
	outMu sync.Mutex

	services   bootstrap.Services
	controller *usecase.Controller
	bootErr    error
}

func NewApp(out io.Writer) *App {
	return &App{out: out}
}

func (a *App) startup(ctx context.Context) error {
	services, err := bootstrap.Build(ctx, a)
	if err != nil {
		a.bootErr = err
		a.printf("error: startup failed: %v\n", err)
		return err
	}
	a.attach(services)
	return nil
}

func (a *App) attach(services bootstrap.Services) {
	a.services = services
	a.controller = services.Controller
	a.printf("ready: %s match, %s difficulty. Type \"help\" for commands.\n",
		services.Config.Match.MatchType, services.Config.Match.Difficulty)
}

func (a *App) shutdown(ctx context.Context) error {
	if a.controller == nil {
		return nil
	}
	return a.services.Shutdown(ctx)
}

func (a *App) requireReady() error {
	if a.bootErr != nil {
		return a.bootErr
	}
	if a.controller == nil {
		return fmt.Errorf("application is not initialized")
	}
	return nil
}

// Execute runs one command line. It returns errQuit for "quit".
func (a *App) Execute(ctx context.Context, line string) error {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	switch name {
	case "help":
		a.printf("%s\n", helpText)
		return nil
	case "quit", "exit":
		return errQuit
	}
	if err := a.requireReady(); err != nil {
		return err
	}

	c := a.controller
	switch name {
	case "start":
		return c.StartMatch(ctx)
	case "auto":
		return c.AutoStart(ctx)
	case "timer":
		seconds, err := intArg(args)
		if err != nil {
			return err
		}
		return c.StartSyncedTimer(ctx, seconds)
	case "sync":
		seconds, err := intArg(args)
		if err != nil {
			return err
		}
		return c.UpdateRemainingTime(ctx, seconds)
	case "rec":
		return c.ToggleRecording(ctx)
	case "play":
		return c.TogglePlayback(ctx)
	case "full":
		return c.PlayFullRecording(ctx)
	case "stopfull":
		return c.StopFullRecording(ctx)
	case "delete":
		return c.DeleteRecording(ctx)
	case "mode":
		matchType, err := matchTypeArg(args)
		if err != nil {
			return err
		}
		return c.ChangeMatchType(ctx, matchType)
	case "level":
		if len(args) != 1 {
			return errors.New("usage: level low|mid|high")
		}
		return c.ChangeDifficultyLevel(ctx, domain.DifficultyLevel(strings.ToLower(args[0])))
	case "say":
		text := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), fields[0]))
		if text == "" {
			return errors.New("usage: say TEXT")
		}
		return c.GenerateAIResponse(ctx, text)
	case "listen":
		if !c.StartSpeechRecognition(ctx) {
			return errors.New("speech recognition did not start")
		}
		return nil
	case "unlisten":
		c.StopSpeechRecognition()
		return nil
	case "topic":
		a.printf("topic: %s\nprompt: %s\n", c.CurrentTopic(), c.CurrentPrompt())
		return nil
	case "end":
		summary, err := c.EndMatch(ctx)
		if err != nil {
			return err
		}
		a.printf("match over: %d recordings, %d transcript messages\n", len(summary.Recordings), len(summary.Transcript))
		for _, msg := range summary.Transcript {
			a.printf("  %s: %s\n", speakerLabel(msg.IsUser), msg.Text)
		}
		return nil
	case "state":
		raw, err := json.MarshalIndent(c.State(), "", "  ")
		if err != nil {
			return err
		}
		a.printf("%s\n", raw)
		return nil
	default:
		return fmt.Errorf("unknown command %q", name)
	}
}

// MatchStateChanged prints notable state transitions.
func (a *App) MatchStateChanged(state domain.MatchState, reason domain.StateReason) {
	message := reasonMessage(reason, state)
	if message == "" {
		return
	}
	a.printf("[%s] %s\n", domain.FormatTime(state.RemainingTime), message)
}

// MatchError prints absorbed failures.
func (a *App) MatchError(code domain.ErrorCode, detail string) {
	a.printf("error: %s\n", errorMessage(code, detail))
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	_, _ = fmt.Fprintf(a.out, format, args...)
}

func reasonMessage(reason domain.StateReason, state domain.MatchState) string {
	switch reason {
	case domain.ReasonMatchStarted:
		return "Match started. Your turn."
	case domain.ReasonMatchAutoStarted:
		return "Match ready. Waiting for the clock."
	case domain.ReasonMatchStartFailed:
		return "Match could not start"
	case domain.ReasonMatchEnded:
		return "Match ended"
	case domain.ReasonTurnSwitched:
		if state.SpeakingTurn == domain.SpeakerUser {
			return "Your turn"
		}
		return "Partner's turn"
	case domain.ReasonPartnerThinking:
		return "Partner is thinking..."
	case domain.ReasonPartnerSpeaking:
		return "Partner is speaking"
	case domain.ReasonPartnerReplied:
		if n := len(state.TranscriptMessages); n > 0 {
			return "Partner: " + state.TranscriptMessages[n-1].Text
		}
		return ""
	case domain.ReasonClipCaptured:
		return "Recording saved"
	case domain.ReasonRecordingDeleted:
		return "Recording deleted"
	case domain.ReasonVoiceReceived:
		return "Partner voice received"
	case domain.ReasonTranscriptUpdated:
		if state.SpeechText != "" {
			return "Heard: " + state.SpeechText
		}
		return ""
	case domain.ReasonModeChanged:
		return "Match type: " + string(state.MatchType)
	case domain.ReasonDifficultyChanged:
		return "Difficulty: " + string(state.DifficultyLevel)
	case domain.ReasonTopicSynced:
		return "Topic updated"
	default:
		return ""
	}
}

func errorMessage(code domain.ErrorCode, detail string) string {
	var label string
	switch code {
	case domain.ErrorCodePermissionDenied:
		label = "Microphone unavailable"
	case domain.ErrorCodeRecording:
		label = "Recording issue"
	case domain.ErrorCodeTransport:
		label = "Voice relay issue"
	case domain.ErrorCodeRecognition:
		label = "Speech recognition issue"
	case domain.ErrorCodeTranscription:
		label = "Transcription error"
	case domain.ErrorCodePlayback:
		label = "Playback issue"
	case domain.ErrorCodeSequencerAsset:
		label = "Partner response unavailable"
	case domain.ErrorCodeGeneration:
		label = "Partner reply failed"
	default:
		if detail == "" {
			return "Unknown error"
		}
		return detail
	}
	if detail == "" {
		return label
	}
	return label + ": " + detail
}

func speakerLabel(isUser bool) string {
	if isUser {
		return "you"
	}
	return "partner"
}

func intArg(args []string) (int, error) {
	if len(args) != 1 {
		return 0, errors.New("expected one number of seconds")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid seconds %q", args[0])
	}
	return n, nil
}

func matchTypeArg(args []string) (domain.MatchType, error) {
	if len(args) != 1 {
		return "", errors.New("usage: mode ai|human")
	}
	switch strings.ToLower(args[0]) {
	case "ai", "ai_assisted":
		return domain.MatchTypeAIAssisted, nil
	case "human":
		return domain.MatchTypeHuman, nil
	default:
		return "", fmt.Errorf("unknown match type %q", args[0])
	}
}

const helpText = `commands:
  start            start the match (microphone, topic, clock)
  auto             prepare the match without starting the clock
  timer N          start the clock at N seconds
  sync N           lower the clock to N seconds
  rec              start or stop a recording
  play             play or stop the last recording
  full | stopfull  play or stop every recording back to back
  delete           delete the last recording
  mode ai|human    change the match type
  level low|mid|high
  say TEXT         ask the AI partner directly
  listen | unlisten
  topic | state
  end | quit`
