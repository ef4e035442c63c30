package wsrelay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"versusmatch/internal/domain"
	"versusmatch/internal/logger"
	"versusmatch/internal/ports"
)

var (
	ErrNotConnected  = errors.New("voice relay is not connected")
	ErrNotConfigured = errors.New("voice relay url is not configured")
)

const (
	defaultSendRate     = 10
	defaultSendBurst    = 4
	defaultWriteTimeout = 5 * time.Second
	defaultCloseTimeout = time.Second
)

// Config controls the relay connection.
type Config struct {
	URL          string
	UserID       string
	SendRate     float64
	SendBurst    int
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	c.URL = strings.TrimSpace(c.URL)
	if strings.TrimSpace(c.UserID) == "" {
		c.UserID = uuid.NewString()
	}
	if c.SendRate <= 0 {
		c.SendRate = defaultSendRate
	}
	if c.SendBurst <= 0 {
		c.SendBurst = defaultSendBurst
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = defaultWriteTimeout
	}
	return c
}

// Client implements ports.Transport against the relay server.
type Client struct {
	cfg     Config
	dialer  *websocket.Dialer
	limiter *rate.Limiter

	mu      sync.Mutex
	events  ports.TransportEvents
	conn    *websocket.Conn
	readEnd chan struct{}

	writeMu sync.Mutex
}

func NewClient(cfg Config) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		cfg:     cfg,
		dialer:  websocket.DefaultDialer,
		limiter: rate.NewLimiter(rate.Limit(cfg.SendRate), cfg.SendBurst),
	}
}

func (c *Client) Bind(events ports.TransportEvents) {
	c.mu.Lock()
	c.events = events
	c.mu.Unlock()
}

func (c *Client) SelfID() string {
	return c.cfg.UserID
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *Client) Connect(ctx context.Context) error {
	if c.cfg.URL == "" {
		return ErrNotConfigured
	}
	if c.Connected() {
		return nil
	}

	target, err := dialURL(c.cfg.URL, c.cfg.UserID)
	if err != nil {
		return err
	}
	conn, _, err := c.dialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to voice relay: %w", err)
	}

	c.mu.Lock()
	if c.conn != nil {
		c.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	readEnd := make(chan struct{})
	c.conn = conn
	c.readEnd = readEnd
	c.mu.Unlock()

	go c.readLoop(conn, readEnd)
	logger.Info("voice relay connected", "url", c.cfg.URL, "user_id", c.cfg.UserID)
	return nil
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn := c.conn
	readEnd := c.readEnd
	c.conn = nil
	c.readEnd = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}

	c.writeMu.Lock()
	_ = conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(defaultCloseTimeout),
	)
	c.writeMu.Unlock()

	err := conn.Close()
	select {
	case <-readEnd:
	case <-time.After(defaultCloseTimeout):
	}
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		return fmt.Errorf("close voice relay: %w", err)
	}
	return nil
}

// SendAudio waits for the send limiter, then writes one voice message.
func (c *Client) SendAudio(ctx context.Context, clip domain.AudioBuffer) error {
	if clip.Empty() {
		return errors.New("voice clip is empty")
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("voice send limited: %w", err)
	}

	payload, err := json.Marshal(Message{
		Type:      TypeVoice,
		UserID:    c.cfg.UserID,
		AudioData: clip.Base64(),
		Format:    clip.MediaType,
	})
	if err != nil {
		return err
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout)); err != nil {
		return fmt.Errorf("send voice clip: %w", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return fmt.Errorf("send voice clip: %w", err)
	}
	return nil
}

func (c *Client) readLoop(conn *websocket.Conn, readEnd chan struct{}) {
	defer close(readEnd)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			current := c.conn == conn
			if current {
				c.conn = nil
				c.readEnd = nil
			}
			c.mu.Unlock()
			if current {
				_ = conn.Close()
				logger.Warn("voice relay connection lost", "error", err)
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			logger.Debug("ignoring malformed relay message", "error", err)
			continue
		}
		if msg.Type != TypeVoice {
			continue
		}

		c.mu.Lock()
		onVoice := c.events.Voice
		c.mu.Unlock()
		if onVoice != nil {
			onVoice(domain.VoicePacket{
				SenderID: msg.UserID,
				Payload:  msg.AudioData,
				Format:   msg.Format,
			})
		}
	}
}

func dialURL(raw string, userID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid voice relay url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("invalid voice relay url scheme %q", u.Scheme)
	}
	q := u.Query()
	q.Set("userId", userID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

var _ ports.Transport = (*Client)(nil)
