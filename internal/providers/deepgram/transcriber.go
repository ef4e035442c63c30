package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"versusmatch/internal/audio"
	"versusmatch/internal/domain"
)

// Transcriber implements ports.ClipTranscriber with Deepgram's prerecorded
// endpoint.
type Transcriber struct {
	cfg    Config
	client *http.Client
}

func NewTranscriber(cfg Config, client *http.Client) *Transcriber {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Transcriber{cfg: cfg.withDefaults(), client: client}
}

func (t *Transcriber) Transcribe(ctx context.Context, clip domain.AudioBuffer) (string, error) {
	if t.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}
	if clip.Empty() {
		return "", nil
	}

	endpoint, err := listenURL(t.cfg, false)
	if err != nil {
		return "", err
	}
	contentType := clip.MediaType
	if format, ok := audio.ParsePCMFormat(clip.MediaType); ok {
		query := endpoint.Query()
		query.Set("encoding", "linear16")
		query.Set("sample_rate", strconv.Itoa(format.SampleRate))
		query.Set("channels", strconv.Itoa(format.Channels))
		endpoint.RawQuery = query.Encode()
		contentType = "application/octet-stream"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), bytes.NewReader(clip.Data))
	if err != nil {
		return "", fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Authorization", "Token "+t.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("transcription request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("deepgram returned status %d: %s", resp.StatusCode, bytes.TrimSpace(body))
	}

	var response listenResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("decode transcription response: %w", err)
	}
	alt, _ := response.best()
	return alt.Transcript, nil
}
