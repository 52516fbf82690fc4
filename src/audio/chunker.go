package audio

import (
	"context"
	"fmt"
	"time"
)

// Chunker splits outbound audio into fixed wire frames and paces their
// delivery so playback stays near real time.
type Chunker struct {
	frameSize   int
	padMultiple int
	delay       time.Duration
}

// NewChunker validates the frame geometry. frameSize and padMultiple are in
// bytes; delay is the gap between consecutive frame sends.
func NewChunker(frameSize, padMultiple int, delay time.Duration) (*Chunker, error) {
	if frameSize <= 0 {
		return nil, fmt.Errorf("frame size must be positive, got %d", frameSize)
	}
	if padMultiple <= 0 {
		return nil, fmt.Errorf("pad multiple must be positive, got %d", padMultiple)
	}
	if frameSize%padMultiple != 0 {
		return nil, fmt.Errorf("frame size %d is not a multiple of pad size %d", frameSize, padMultiple)
	}
	return &Chunker{frameSize: frameSize, padMultiple: padMultiple, delay: delay}, nil
}

// FrameSize returns the configured frame size in bytes.
func (c *Chunker) FrameSize() int { return c.frameSize }

// Split cuts buf into frames of the configured size. The final short frame
// is zero-padded up to the next pad boundary. An empty buffer yields no
// frames.
func (c *Chunker) Split(buf []byte) [][]byte {
	if len(buf) == 0 {
		return nil
	}

	var frames [][]byte
	for off := 0; off < len(buf); off += c.frameSize {
		end := off + c.frameSize
		if end <= len(buf) {
			frame := make([]byte, c.frameSize)
			copy(frame, buf[off:end])
			frames = append(frames, frame)
			continue
		}

		rest := buf[off:]
		padded := len(rest)
		if rem := padded % c.padMultiple; rem != 0 {
			padded += c.padMultiple - rem
		}
		frame := make([]byte, padded)
		copy(frame, rest)
		frames = append(frames, frame)
	}
	return frames
}

// Send writes frames through write with the configured delay between sends.
// The first write error aborts the remaining frames; frames are never
// retried. Cancelling ctx stops pacing immediately.
func (c *Chunker) Send(ctx context.Context, frames [][]byte, write func([]byte) error) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if !timer.Stop() {
		<-timer.C
	}

	for i, frame := range frames {
		if i > 0 && c.delay > 0 {
			timer.Reset(c.delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
			}
		}
		if err := write(frame); err != nil {
			return fmt.Errorf("sending frame %d/%d: %w", i+1, len(frames), err)
		}
	}
	return nil
}
