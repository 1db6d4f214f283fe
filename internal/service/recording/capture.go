package recording

import (
	"bytes"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CaptureProfile holds the per-platform encoding parameters for audio
// capture. These are configuration, not per-call constants.
type CaptureProfile struct {
	SampleRateHz int    `json:"sample_rate_hz"`
	ChannelCount int    `json:"channel_count"`
	BitDepth     int    `json:"bit_depth"`
	Container    string `json:"container"` // e.g. ogg, wav, m4a
}

// DefaultCaptureProfile is used when no profile is configured
func DefaultCaptureProfile() CaptureProfile {
	return CaptureProfile{
		SampleRateHz: 48000,
		ChannelCount: 1,
		BitDepth:     16,
		Container:    "ogg",
	}
}

// ContentType maps the container to a MIME type for object storage
func (p CaptureProfile) ContentType() string {
	switch p.Container {
	case "wav":
		return "audio/wav"
	case "m4a":
		return "audio/mp4"
	default:
		return "audio/ogg"
	}
}

// Capture is the handle returned by Start. The media layer appends audio
// bytes through Write until Stop finalizes the capture. A capture belongs
// to exactly one call and is never reused.
type Capture struct {
	ID        uuid.UUID
	CallID    uuid.UUID
	StartedAt time.Time
	Profile   CaptureProfile

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

// Write appends captured audio bytes. Fails once the capture is finalized.
func (c *Capture) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("capture %s already finalized", c.ID)
	}
	return c.buf.Write(p)
}

// finalize closes the capture and returns the buffered audio exactly once
func (c *Capture) finalize() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.buf.Bytes()
}

// ObjectName returns the storage key for the finished artifact
func (c *Capture) ObjectName() string {
	return fmt.Sprintf("calls/%s/%s.%s", c.CallID, c.ID, c.Profile.Container)
}
