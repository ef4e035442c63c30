// Package wsrelay relays voice clips between match peers over a websocket.
package wsrelay

// TypeVoice tags a voice clip message.
const TypeVoice = "voice"

// Message is the relay wire format. The relay overwrites UserID with the
// sender's connection id before broadcasting.
type Message struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	AudioData string `json:"audioData"`
	Format    string `json:"format"`
}
