package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"versusmatch/internal/domain"
)

// Config stores runtime configuration for the match host and the relay.
type Config struct {
	Match      MatchConfig
	Audio      AudioConfig
	Deepgram   DeepgramConfig
	Relay      RelayConfig
	OpenRouter OpenRouterConfig
	Topics     TopicsConfig
	Telemetry  TelemetryConfig
	Metrics    MetricsConfig
}

type MatchConfig struct {
	SessionSeconds int
	MatchType      domain.MatchType
	Difficulty     domain.DifficultyLevel
	TurnPause      time.Duration
	ResponseMode   string
	MaxResponses   int
	ThinkingDelays []time.Duration
	Language       string
}

type AudioConfig struct {
	RecorderCommand string
	InputFormat     string
	InputDevice     string
	SampleRate      int
	Channels        int
	PlayCommand     string
	ProbeCommand    string
	AssetDir        string
}

type DeepgramConfig struct {
	APIKey         string
	APIBaseURL     string
	Model          string
	Language       string
	SmartFormat    bool
	InterimResults bool
	ChunkSize      int
	StreamingGrace time.Duration
}

type RelayConfig struct {
	URL        string
	UserID     string
	SendRate   float64
	ListenAddr string
}

type OpenRouterConfig struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	HistoryLimit int
	Timeout      time.Duration
}

type TopicsConfig struct {
	CatalogPath string
}

type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

type MetricsConfig struct {
	// Addr serves /metrics and /health when set.
	Addr string
}

// Load reads an optional dotenv file (VERSUS_ENV_FILE, default .env), then
// resolves configuration from environment variables and sensible defaults.
// Variables already set in the environment win over the file.
func Load() (Config, error) {
	envFile := envOrDefault("VERSUS_ENV_FILE", ".env")
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Config{
		Match: MatchConfig{
			SessionSeconds: envOrDefaultInt("VERSUS_SESSION_SECONDS", domain.DefaultSessionSeconds),
			MatchType:      domain.MatchType(envOrDefault("VERSUS_MATCH_TYPE", string(domain.MatchTypeAIAssisted))),
			Difficulty:     domain.DifficultyLevel(envOrDefault("VERSUS_DIFFICULTY", string(domain.DifficultyMid))),
			TurnPause:      time.Duration(envOrDefaultInt("VERSUS_TURN_PAUSE_MS", 300)) * time.Millisecond,
			ResponseMode:   envOrDefault("VERSUS_RESPONSE_MODE", "scripted"),
			MaxResponses:   envOrDefaultInt("VERSUS_MAX_RESPONSES", 6),
			ThinkingDelays: envDurationsMS("VERSUS_THINKING_DELAYS_MS"),
			Language:       envOrDefault("VERSUS_LANGUAGE", "English"),
		},
		Audio: AudioConfig{
			RecorderCommand: envOrDefault("VERSUS_FFMPEG_COMMAND", "ffmpeg"),
			InputFormat:     envOrDefault("VERSUS_AUDIO_INPUT_FORMAT", "pulse"),
			InputDevice: firstNonEmpty(
				os.Getenv("VERSUS_AUDIO_INPUT_DEVICE"),
				os.Getenv("DEEPGRAM_PULSE_SOURCE"),
				"default",
			),
			SampleRate:   envOrDefaultInt("VERSUS_SAMPLE_RATE", 16000),
			Channels:     envOrDefaultInt("VERSUS_CHANNELS", 1),
			PlayCommand:  envOrDefault("VERSUS_FFPLAY_COMMAND", "ffplay"),
			ProbeCommand: envOrDefault("VERSUS_FFPROBE_COMMAND", "ffprobe"),
			AssetDir:     envOrDefault("VERSUS_ASSET_DIR", "assets/responses"),
		},
		Deepgram: DeepgramConfig{
			APIKey:         strings.TrimSpace(os.Getenv("DEEPGRAM_API_KEY")),
			APIBaseURL:     envOrDefault("DEEPGRAM_API_BASE", "https://api.deepgram.com/v1"),
			Model:          envOrDefault("DEEPGRAM_MODEL", "nova-2"),
			Language:       strings.TrimSpace(os.Getenv("DEEPGRAM_LANGUAGE")),
			SmartFormat:    envOrDefaultBool("DEEPGRAM_SMART_FORMAT", true),
			InterimResults: envOrDefaultBool("DEEPGRAM_INTERIM_RESULTS", true),
			ChunkSize:      envOrDefaultInt("VERSUS_AUDIO_CHUNK_SIZE", 4096),
			StreamingGrace: time.Duration(firstNonNegativeInt("VERSUS_STREAMING_GRACE_MS", "DEEPGRAM_STREAMING_GRACE_MS", 1000)) * time.Millisecond,
		},
		Relay: RelayConfig{
			URL:        strings.TrimSpace(os.Getenv("VERSUS_RELAY_URL")),
			UserID:     strings.TrimSpace(os.Getenv("VERSUS_USER_ID")),
			SendRate:   envOrDefaultFloat("VERSUS_RELAY_SEND_RATE", 10),
			ListenAddr: envOrDefault("VERSUS_RELAY_ADDR", ":8090"),
		},
		OpenRouter: OpenRouterConfig{
			APIKey:       strings.TrimSpace(os.Getenv("OPENROUTER_API_KEY")),
			BaseURL:      envOrDefault("OPENROUTER_API_BASE", "https://openrouter.ai/api/v1"),
			Model:        envOrDefault("OPENROUTER_MODEL", "deepseek/deepseek-chat-v3.1:free"),
			MaxTokens:    envOrDefaultInt("OPENROUTER_MAX_TOKENS", 300),
			HistoryLimit: envOrDefaultInt("VERSUS_HISTORY_LIMIT", 12),
			Timeout:      time.Duration(envOrDefaultInt("OPENROUTER_TIMEOUT_MS", 30000)) * time.Millisecond,
		},
		Topics: TopicsConfig{
			CatalogPath: strings.TrimSpace(os.Getenv("VERSUS_TOPICS_FILE")),
		},
		Telemetry: TelemetryConfig{
			OTLPEndpoint: firstNonEmpty(
				os.Getenv("VERSUS_OTLP_ENDPOINT"),
				os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"),
			),
			ServiceName: envOrDefault("OTEL_SERVICE_NAME", "versusmatch"),
		},
		Metrics: MetricsConfig{
			Addr: strings.TrimSpace(os.Getenv("VERSUS_METRICS_ADDR")),
		},
	}

	if cfg.Match.SessionSeconds <= 0 {
		cfg.Match.SessionSeconds = domain.DefaultSessionSeconds
	}
	if cfg.Match.MatchType != domain.MatchTypeHuman && cfg.Match.MatchType != domain.MatchTypeAIAssisted {
		cfg.Match.MatchType = domain.MatchTypeAIAssisted
	}
	if !cfg.Match.Difficulty.Valid() {
		cfg.Match.Difficulty = domain.DifficultyMid
	}
	if cfg.Match.TurnPause < 0 {
		cfg.Match.TurnPause = 300 * time.Millisecond
	}
	if cfg.Match.ResponseMode != "generated" {
		cfg.Match.ResponseMode = "scripted"
	}
	if cfg.Match.MaxResponses <= 0 {
		cfg.Match.MaxResponses = 6
	}
	if cfg.Audio.SampleRate <= 0 {
		cfg.Audio.SampleRate = 16000
	}
	if cfg.Audio.Channels <= 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Deepgram.ChunkSize < 256 {
		cfg.Deepgram.ChunkSize = 4096
	}
	if cfg.Relay.SendRate <= 0 {
		cfg.Relay.SendRate = 10
	}
	if cfg.OpenRouter.MaxTokens <= 0 {
		cfg.OpenRouter.MaxTokens = 300
	}
	if cfg.OpenRouter.HistoryLimit <= 0 {
		cfg.OpenRouter.HistoryLimit = 12
	}
	if cfg.OpenRouter.Timeout <= 0 {
		cfg.OpenRouter.Timeout = 30 * time.Second
	}

	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func envOrDefault(key string, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func envOrDefaultInt(key string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultFloat(key string, fallback float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func envOrDefaultBool(key string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(key)))
	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func firstNonNegativeInt(primary string, secondary string, fallback int) int {
	for _, key := range []string{primary, secondary} {
		value := strings.TrimSpace(os.Getenv(key))
		if value == "" {
			continue
		}
		parsed, err := strconv.Atoi(value)
		if err == nil && parsed >= 0 {
			return parsed
		}
	}
	return fallback
}

// envDurationsMS parses a comma separated millisecond list. Any bad entry
// discards the whole list.
func envDurationsMS(key string) []time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]time.Duration, 0, len(parts))
	for _, part := range parts {
		ms, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || ms < 0 {
			return nil
		}
		out = append(out, time.Duration(ms)*time.Millisecond)
	}
	return out
}
