package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const pcmMediaType = "audio/L16"

// PCMFormat describes signed 16-bit little-endian PCM.
type PCMFormat struct {
	SampleRate int
	Channels   int
}

// MediaType renders the format as an audio/L16 media type with parameters.
func (f PCMFormat) MediaType() string {
	return fmt.Sprintf("%s;rate=%d;channels=%d", pcmMediaType, f.SampleRate, f.Channels)
}

// BytesPerSecond is zero for an incomplete format.
func (f PCMFormat) BytesPerSecond() int {
	if f.SampleRate <= 0 || f.Channels <= 0 {
		return 0
	}
	return f.SampleRate * f.Channels * 2
}

// Seconds returns how long n bytes of this format play for.
func (f PCMFormat) Seconds(n int) float64 {
	rate := f.BytesPerSecond()
	if rate == 0 {
		return 0
	}
	return float64(n) / float64(rate)
}

// ParsePCMFormat reads an audio/L16 media type. Missing parameters default to
// 16 kHz mono.
func ParsePCMFormat(mediaType string) (PCMFormat, bool) {
	parts := strings.Split(mediaType, ";")
	if !strings.EqualFold(strings.TrimSpace(parts[0]), pcmMediaType) {
		return PCMFormat{}, false
	}

	format := PCMFormat{SampleRate: 16000, Channels: 1}
	for _, param := range parts[1:] {
		key, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n <= 0 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(key)) {
		case "rate":
			format.SampleRate = n
		case "channels":
			format.Channels = n
		}
	}
	return format, true
}

// Level returns the RMS of a PCM chunk normalized to [0, 1].
func Level(chunk []byte) float64 {
	samples := len(chunk) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i < samples; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(chunk[i*2:]))) / math.MaxInt16
		sum += v * v
	}
	return math.Min(1, math.Sqrt(sum/float64(samples)))
}
