package domain

import (
	"encoding/base64"
	"fmt"
)

// DefaultVoiceFormat is assumed for inbound voice payloads without a format.
const DefaultVoiceFormat = "audio/webm"

// AudioBuffer is an encoded audio clip tagged with its media type.
type AudioBuffer struct {
	MediaType string `json:"mediaType"`
	Data      []byte `json:"-"`
}

// Len returns the payload size in bytes.
func (b AudioBuffer) Len() int {
	return len(b.Data)
}

// Empty reports whether the buffer carries no audio.
func (b AudioBuffer) Empty() bool {
	return len(b.Data) == 0
}

// Clone returns a buffer that shares no memory with b.
func (b AudioBuffer) Clone() AudioBuffer {
	if b.Data == nil {
		return AudioBuffer{MediaType: b.MediaType}
	}
	return AudioBuffer{MediaType: b.MediaType, Data: append([]byte(nil), b.Data...)}
}

// Base64 encodes the payload for network transport.
func (b AudioBuffer) Base64() string {
	return base64.StdEncoding.EncodeToString(b.Data)
}

// DecodeAudio converts a base64 payload into a buffer. A malformed payload
// yields an empty buffer of the requested type together with the decode error,
// so callers on the real-time path can keep going with a playable no-op clip.
func DecodeAudio(payload string, mediaType string) (AudioBuffer, error) {
	if mediaType == "" {
		mediaType = DefaultVoiceFormat
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return AudioBuffer{MediaType: mediaType, Data: []byte{}}, fmt.Errorf("decode voice payload: %w", err)
	}
	return AudioBuffer{MediaType: mediaType, Data: data}, nil
}

// MergeClips concatenates clips in capture order into one buffer tagged with
// the first clip's media type. No re-encoding happens.
func MergeClips(clips []AudioBuffer) AudioBuffer {
	if len(clips) == 0 {
		return AudioBuffer{}
	}
	if len(clips) == 1 {
		return clips[0].Clone()
	}

	size := 0
	for _, clip := range clips {
		size += clip.Len()
	}
	merged := make([]byte, 0, size)
	for _, clip := range clips {
		merged = append(merged, clip.Data...)
	}
	return AudioBuffer{MediaType: clips[0].MediaType, Data: merged}
}
