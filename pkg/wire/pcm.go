package wire

import (
	"encoding/base64"
	"fmt"
	"time"
)

// DecodeError indicates a malformed inbound audio blob. One bad chunk is
// dropped and logged by the caller; it never aborts the stream.
type DecodeError struct {
	Reason string
	Cause  error
}

// Error implements the error interface.
func (e *DecodeError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("wire: decode error: %s: %v", e.Reason, e.Cause)
	}
	return fmt.Sprintf("wire: decode error: %s", e.Reason)
}

// Unwrap returns the underlying cause.
func (e *DecodeError) Unwrap() error {
	return e.Cause
}

// EncodePCM converts one captured float32 frame into the wire blob format:
// samples clamped to [-1, 1], scaled to int16 little-endian, base64 encoded.
func EncodePCM(frame []float32, sampleRate int) Blob {
	raw := make([]byte, len(frame)*2)
	for i, f := range frame {
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		s := int16(f * 32767)
		raw[i*2] = byte(s)
		raw[i*2+1] = byte(s >> 8)
	}
	return Blob{
		MimeType: fmt.Sprintf("audio/pcm;rate=%d", sampleRate),
		Data:     base64.StdEncoding.EncodeToString(raw),
	}
}

// DecodePCM converts a base64 blob payload back into int16 little-endian
// samples. Returns a *DecodeError on malformed input.
func DecodePCM(data string) ([]int16, error) {
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, &DecodeError{Reason: "invalid base64", Cause: err}
	}
	if len(raw)%2 != 0 {
		return nil, &DecodeError{Reason: fmt.Sprintf("odd byte count %d", len(raw))}
	}
	if len(raw) == 0 {
		return nil, &DecodeError{Reason: "empty payload"}
	}
	samples := make([]int16, len(raw)/2)
	for i := range samples {
		samples[i] = int16(raw[i*2]) | int16(raw[i*2+1])<<8
	}
	return samples, nil
}

// PCMDuration returns the playback duration of n mono samples at the
// given rate.
func PCMDuration(n, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second / time.Duration(sampleRate)
}
