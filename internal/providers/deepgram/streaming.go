package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"versusmatch/internal/domain"
)

const defaultBaseURL = "https://api.deepgram.com/v1"

// Config controls Deepgram settings shared by the streaming and prerecorded
// endpoints.
type Config struct {
	APIKey      string
	APIBaseURL  string
	Model       string
	Language    string
	SmartFormat bool
}

func (c Config) withDefaults() Config {
	if c.APIBaseURL == "" {
		c.APIBaseURL = defaultBaseURL
	}
	if c.Model == "" {
		c.Model = "nova-2"
	}
	return c
}

// StreamConfig describes the raw audio sent over a live session.
type StreamConfig struct {
	Encoding       string
	SampleRate     int
	Channels       int
	InterimResults bool
}

// Client opens Deepgram live transcription sessions.
type Client struct {
	cfg    Config
	dialer *websocket.Dialer
}

func NewClient(cfg Config) *Client {
	return &Client{cfg: cfg.withDefaults(), dialer: websocket.DefaultDialer}
}

func (c *Client) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

func (c *Client) StartStreaming(ctx context.Context, cfg StreamConfig) (*streamingSession, error) {
	if !c.Configured() {
		return nil, errors.New("DEEPGRAM_API_KEY is not configured")
	}

	wsURL, err := buildListenURL(c.cfg, cfg)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	headers.Set("Authorization", "Token "+c.cfg.APIKey)

	conn, _, err := c.dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to Deepgram websocket: %w", err)
	}

	session := &streamingSession{
		conn:     conn,
		results:  make(chan domain.RecognitionResult, 64),
		audio:    make(chan []byte, 32),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}

	session.wg.Add(2)
	go session.readLoop()
	go session.writeLoop()
	go func() {
		session.wg.Wait()
		close(session.results)
		close(session.done)
		_ = conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			_ = session.Close()
		case <-session.done:
		}
	}()

	return session, nil
}

// streamingSession is one live websocket. Audio goes out through SendAudio,
// recognition results come back on Results.
type streamingSession struct {
	conn *websocket.Conn

	results  chan domain.RecognitionResult
	audio    chan []byte
	readDone chan struct{}
	done     chan struct{}

	wg sync.WaitGroup

	errMu sync.Mutex
	err   error

	closeSendOnce sync.Once
	closeOnce     sync.Once
	sendMu        sync.RWMutex
	sendClosed    bool
}

func (s *streamingSession) SendAudio(chunk []byte) error {
	if len(chunk) == 0 {
		return nil
	}

	s.sendMu.RLock()
	defer s.sendMu.RUnlock()
	if s.sendClosed {
		return errors.New("audio stream is already closed")
	}

	copied := append([]byte(nil), chunk...)
	select {
	case s.audio <- copied:
		return nil
	case <-s.done:
		if err := s.waitErr(); err != nil {
			return err
		}
		return errors.New("session closed")
	}
}

// CloseSend tells Deepgram no more audio follows; pending results still arrive.
func (s *streamingSession) CloseSend() error {
	s.closeSendOnce.Do(func() {
		s.sendMu.Lock()
		s.sendClosed = true
		close(s.audio)
		s.sendMu.Unlock()
	})
	return nil
}

func (s *streamingSession) Results() <-chan domain.RecognitionResult {
	return s.results
}

func (s *streamingSession) Wait() error {
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) Close() error {
	s.closeOnce.Do(func() {
		_ = s.CloseSend()
		_ = s.conn.Close()
	})
	<-s.done
	return s.waitErr()
}

func (s *streamingSession) waitErr() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *streamingSession) setErr(err error) {
	if err == nil {
		return
	}
	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
	) {
		return
	}

	s.errMu.Lock()
	defer s.errMu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *streamingSession) writeLoop() {
	defer s.wg.Done()

	for {
		var chunk []byte
		select {
		case next, ok := <-s.audio:
			if !ok {
				s.closeStream()
				return
			}
			chunk = next
		case <-s.readDone:
			return
		}
		if err := s.conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
			s.setErr(fmt.Errorf("failed to send audio: %w", err))
			return
		}
	}
}

func (s *streamingSession) closeStream() {
	if err := s.conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"CloseStream"}`)); err != nil {
		s.setErr(fmt.Errorf("failed to close stream: %w", err))
	}
}

func (s *streamingSession) readLoop() {
	defer s.wg.Done()
	defer close(s.readDone)

	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			s.setErr(fmt.Errorf("failed to read provider event: %w", err))
			return
		}

		var response listenResponse
		if err := json.Unmarshal(payload, &response); err != nil {
			continue
		}

		if strings.EqualFold(response.Type, "Error") {
			message := strings.TrimSpace(response.Message)
			if message == "" {
				message = "deepgram returned an unknown error"
			}
			s.setErr(errors.New(message))
			return
		}

		alt, ok := response.best()
		if !ok || alt.Transcript == "" {
			continue
		}
		s.emit(domain.RecognitionResult{
			Transcript: alt.Transcript,
			IsFinal:    response.IsFinal || response.SpeechFinal,
			Confidence: alt.Confidence,
		})
	}
}

// emit drops results nobody is reading instead of stalling the socket.
func (s *streamingSession) emit(result domain.RecognitionResult) {
	select {
	case s.results <- result:
	default:
	}
}

type alternative struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}

// listenResponse covers both the live message shape (channel) and the
// prerecorded one (results.channels).
type listenResponse struct {
	Type        string `json:"type"`
	Message     string `json:"message"`
	IsFinal     bool   `json:"is_final"`
	SpeechFinal bool   `json:"speech_final"`

	Channel struct {
		Alternatives []alternative `json:"alternatives"`
	} `json:"channel"`

	Results struct {
		Channels []struct {
			Alternatives []alternative `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// best returns the top alternative with its transcript trimmed.
func (r listenResponse) best() (alternative, bool) {
	var alt alternative
	switch {
	case len(r.Channel.Alternatives) > 0:
		alt = r.Channel.Alternatives[0]
	case len(r.Results.Channels) > 0 && len(r.Results.Channels[0].Alternatives) > 0:
		alt = r.Results.Channels[0].Alternatives[0]
	default:
		return alternative{}, false
	}
	alt.Transcript = strings.TrimSpace(alt.Transcript)
	return alt, true
}

// listenURL builds the /listen endpoint, switching to a websocket scheme for
// live sessions.
func listenURL(providerCfg Config, live bool) (*url.URL, error) {
	base := strings.TrimSpace(providerCfg.APIBaseURL)
	if base == "" {
		base = defaultBaseURL
	}
	if live {
		if strings.HasPrefix(base, "https://") {
			base = "wss://" + strings.TrimPrefix(base, "https://")
		} else if strings.HasPrefix(base, "http://") {
			base = "ws://" + strings.TrimPrefix(base, "http://")
		}
	}
	base = strings.TrimRight(base, "/")

	parsed, err := url.Parse(base + "/listen")
	if err != nil {
		return nil, fmt.Errorf("invalid Deepgram API base URL: %w", err)
	}

	query := parsed.Query()
	query.Set("model", providerCfg.Model)
	query.Set("smart_format", fmt.Sprintf("%t", providerCfg.SmartFormat))
	if providerCfg.Language != "" {
		query.Set("language", providerCfg.Language)
	}
	parsed.RawQuery = query.Encode()
	return parsed, nil
}

func buildListenURL(providerCfg Config, streamCfg StreamConfig) (string, error) {
	listen, err := listenURL(providerCfg, true)
	if err != nil {
		return "", err
	}

	if streamCfg.Encoding == "" {
		streamCfg.Encoding = "linear16"
	}
	if streamCfg.SampleRate <= 0 {
		streamCfg.SampleRate = 16000
	}
	if streamCfg.Channels <= 0 {
		streamCfg.Channels = 1
	}

	query := listen.Query()
	query.Set("encoding", streamCfg.Encoding)
	query.Set("sample_rate", fmt.Sprintf("%d", streamCfg.SampleRate))
	query.Set("channels", fmt.Sprintf("%d", streamCfg.Channels))
	query.Set("interim_results", fmt.Sprintf("%t", streamCfg.InterimResults))
	listen.RawQuery = query.Encode()
	return listen.String(), nil
}
