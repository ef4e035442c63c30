package openrouter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

const (
	defaultBaseURL      = "https://openrouter.ai/api/v1"
	defaultModel        = "deepseek/deepseek-chat-v3.1:free"
	defaultMaxTokens    = 300
	defaultHistoryLimit = 12
)

// ErrNotConfigured is returned when no OpenRouter API key is set.
var ErrNotConfigured = errors.New("OPENROUTER_API_KEY is not configured")

// Config controls the chat completion requests.
type Config struct {
	APIKey       string
	BaseURL      string
	Model        string
	MaxTokens    int
	HistoryLimit int
	Timeout      time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = defaultModel
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = defaultMaxTokens
	}
	if c.HistoryLimit <= 0 {
		c.HistoryLimit = defaultHistoryLimit
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

type requestPayload struct {
	Model     string    `json:"model"`
	Messages  []message `json:"messages"`
	MaxTokens int       `json:"max_tokens"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiResponse struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Generator implements ports.Generator with OpenRouter chat completions.
// Replies are text only, so SpeakingChanged is never reported.
type Generator struct {
	cfg    Config
	client *http.Client

	mu           sync.Mutex
	events       ports.GeneratorEvents
	conversation ports.ConversationContext
	history      []message
	cancel       context.CancelFunc
}

func NewGenerator(cfg Config, client *http.Client) *Generator {
	cfg = cfg.withDefaults()
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	return &Generator{cfg: cfg, client: client}
}

func (g *Generator) Bind(events ports.GeneratorEvents) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.events = events
}

func (g *Generator) SetContext(conversation ports.ConversationContext) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if conversation.Topic != g.conversation.Topic {
		g.history = nil
	}
	g.conversation = conversation
}

// GenerateFromSpeech answers text in the current conversation. Empty input
// yields an empty reply without a request.
func (g *Generator) GenerateFromSpeech(ctx context.Context, text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", nil
	}
	if strings.TrimSpace(g.cfg.APIKey) == "" {
		return "", g.fail(ErrNotConfigured)
	}

	reqCtx, cancel := context.WithCancel(ctx)
	g.mu.Lock()
	if g.cancel != nil {
		g.cancel()
	}
	g.cancel = cancel
	events := g.events
	messages := append([]message{{Role: "system", Content: systemPrompt(g.conversation)}}, g.history...)
	g.mu.Unlock()
	messages = append(messages, message{Role: "user", Content: text})

	defer func() {
		g.mu.Lock()
		g.cancel = nil
		g.mu.Unlock()
		cancel()
	}()

	if events.ThinkingChanged != nil {
		events.ThinkingChanged(true)
		defer events.ThinkingChanged(false)
	}

	reply, err := g.complete(reqCtx, messages)
	if err != nil {
		return "", g.fail(err)
	}

	g.mu.Lock()
	g.history = append(g.history, message{Role: "user", Content: text}, message{Role: "assistant", Content: reply})
	if excess := len(g.history) - g.cfg.HistoryLimit; excess > 0 {
		g.history = append([]message(nil), g.history[excess:]...)
	}
	g.mu.Unlock()
	return reply, nil
}

func (g *Generator) complete(ctx context.Context, messages []message) (string, error) {
	body, err := json.Marshal(requestPayload{Model: g.cfg.Model, Messages: messages, MaxTokens: g.cfg.MaxTokens})
	if err != nil {
		return "", fmt.Errorf("encode completion request: %w", err)
	}

	endpoint := strings.TrimRight(g.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build completion request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.APIKey)

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("completion request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read completion response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("openrouter returned status %d: %s", resp.StatusCode, bytes.TrimSpace(raw))
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode completion response: %w", err)
	}
	if parsed.Error != nil && parsed.Error.Message != "" {
		return "", fmt.Errorf("openrouter error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("openrouter returned no choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (g *Generator) fail(err error) error {
	g.mu.Lock()
	events := g.events
	g.mu.Unlock()

	logger.Warn("reply generation failed", "model", g.cfg.Model, "error", err)
	if events.Failed != nil {
		events.Failed(err)
	}
	return err
}

// StopSpeaking abandons the request in flight, if any.
func (g *Generator) StopSpeaking() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancel != nil {
		g.cancel()
		g.cancel = nil
	}
}

func (g *Generator) Close() error {
	g.StopSpeaking()
	return nil
}

func systemPrompt(conversation ports.ConversationContext) string {
	topic := conversation.Topic
	if topic == "" {
		topic = domain.TopicForMode(domain.MatchTypeAIAssisted).Topic
	}
	level := conversation.Difficulty
	if !level.Valid() {
		level = domain.DifficultyMid
	}
	language := conversation.Language
	if language == "" {
		language = "English"
	}

	var b strings.Builder
	b.WriteString("You are the partner in a timed speaking practice match. ")
	fmt.Fprintf(&b, "The topic is: %s ", topic)
	fmt.Fprintf(&b, "Answer in %s at a %s difficulty level, in two or three short spoken sentences, ", language, level)
	b.WriteString("and end with a question that keeps the conversation going.")
	return b.String()
}

var _ ports.Generator = (*Generator)(nil)
