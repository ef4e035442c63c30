package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"versusmatch/internal/audio"
	"versusmatch/internal/config"
	"versusmatch/internal/metrics"
	"versusmatch/internal/ports"
	"versusmatch/internal/providers/deepgram"
	"versusmatch/internal/providers/openrouter"
	"versusmatch/internal/telemetry"
	"versusmatch/internal/timer"
	"versusmatch/internal/topics"
	"versusmatch/internal/transport/wsrelay"
	"versusmatch/internal/usecase"
)

// Services is the assembled runtime graph.
type Services struct {
	Controller *usecase.Controller
	Config     config.Config
	Registry   *prometheus.Registry
	// Exporter is nil unless a metrics address is configured.
	Exporter *metrics.Exporter

	shutdown []func(context.Context) error
}

// Shutdown destroys the controller and flushes telemetry.
func (s Services) Shutdown(ctx context.Context) error {
	if s.Controller != nil {
		s.Controller.Destroy()
	}
	var errs []error
	for _, fn := range s.shutdown {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build loads configuration and wires all dependencies for the current
// runtime.
func Build(ctx context.Context, eventSink ports.EventSink) (Services, error) {
	cfg, err := config.Load()
	if err != nil {
		return Services{}, err
	}
	return BuildWithConfig(ctx, cfg, eventSink)
}

func BuildWithConfig(ctx context.Context, cfg config.Config, eventSink ports.EventSink) (Services, error) {
	catalog, err := topics.LoadCatalog(cfg.Topics.CatalogPath)
	if err != nil {
		return Services{}, err
	}

	capture := audio.NewCapture(audio.CaptureConfig{
		Command:     cfg.Audio.RecorderCommand,
		InputFormat: cfg.Audio.InputFormat,
		InputDevice: cfg.Audio.InputDevice,
		SampleRate:  cfg.Audio.SampleRate,
		Channels:    cfg.Audio.Channels,
	})

	deepgramCfg := deepgram.Config{
		APIKey:      cfg.Deepgram.APIKey,
		APIBaseURL:  cfg.Deepgram.APIBaseURL,
		Model:       cfg.Deepgram.Model,
		Language:    cfg.Deepgram.Language,
		SmartFormat: cfg.Deepgram.SmartFormat,
	}

	matchMetrics := metrics.NewMatch()
	registry := metrics.NewRegistry(matchMetrics.Collectors()...)

	deps := usecase.Dependencies{
		Recorder: audio.NewRecorder(capture),
		Player: audio.NewPlayer(audio.PlayerConfig{
			PlayCommand:  cfg.Audio.PlayCommand,
			ProbeCommand: cfg.Audio.ProbeCommand,
		}),
		Assets:    audio.NewAssetPlayer(cfg.Audio.AssetDir, cfg.Audio.PlayCommand),
		Countdown: timer.NewCountdown(timer.DefaultInterval),
		Recognizer: deepgram.NewRecognizer(deepgram.NewClient(deepgramCfg), capture, deepgram.RecognizerConfig{
			ChunkSize:      cfg.Deepgram.ChunkSize,
			StreamingGrace: cfg.Deepgram.StreamingGrace,
			InterimResults: cfg.Deepgram.InterimResults,
		}),
		Topics:  topics.NewProvider(catalog),
		Events:  eventSink,
		Metrics: matchMetrics,
	}
	if cfg.Deepgram.APIKey != "" {
		deps.Transcriber = deepgram.NewTranscriber(deepgramCfg, nil)
	}
	if cfg.Relay.URL != "" {
		deps.Transport = wsrelay.NewClient(wsrelay.Config{
			URL:      cfg.Relay.URL,
			UserID:   cfg.Relay.UserID,
			SendRate: cfg.Relay.SendRate,
		})
	}
	if cfg.OpenRouter.APIKey != "" {
		deps.Generator = openrouter.NewGenerator(openrouter.Config{
			APIKey:       cfg.OpenRouter.APIKey,
			BaseURL:      cfg.OpenRouter.BaseURL,
			Model:        cfg.OpenRouter.Model,
			MaxTokens:    cfg.OpenRouter.MaxTokens,
			HistoryLimit: cfg.OpenRouter.HistoryLimit,
			Timeout:      cfg.OpenRouter.Timeout,
		}, nil)
	}

	services := Services{Config: cfg, Registry: registry}

	if cfg.Telemetry.OTLPEndpoint != "" {
		tp, err := telemetry.NewTracerProvider(ctx, cfg.Telemetry.OTLPEndpoint, cfg.Telemetry.ServiceName)
		if err != nil {
			return Services{}, fmt.Errorf("tracing: %w", err)
		}
		deps.Tracer = telemetry.Tracer(tp)
		services.shutdown = append(services.shutdown, tp.Shutdown)
	}

	controller, err := usecase.NewController(usecase.Config{
		SessionSeconds: cfg.Match.SessionSeconds,
		MatchType:      cfg.Match.MatchType,
		Difficulty:     cfg.Match.Difficulty,
		TurnPause:      cfg.Match.TurnPause,
		Sequencer: usecase.SequencerConfig{
			Mode:           usecase.ResponseMode(cfg.Match.ResponseMode),
			MaxResponses:   cfg.Match.MaxResponses,
			ThinkingDelays: cfg.Match.ThinkingDelays,
			Language:       cfg.Match.Language,
		},
	}, deps)
	if err != nil {
		_ = services.Shutdown(ctx)
		return Services{}, err
	}
	services.Controller = controller

	if cfg.Metrics.Addr != "" {
		services.Exporter = metrics.NewExporter(cfg.Metrics.Addr, registry)
		services.shutdown = append(services.shutdown, services.Exporter.Shutdown)
	}

	return services, nil
}
