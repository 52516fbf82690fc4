package audio

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewChunkerValidation(t *testing.T) {
	_, err := NewChunker(0, 320, 0)
	assert.Error(t, err)

	_, err = NewChunker(320, 0, 0)
	assert.Error(t, err)

	_, err = NewChunker(300, 320, 0)
	assert.Error(t, err)

	_, err = NewChunker(3200, 320, 20*time.Millisecond)
	assert.NoError(t, err)
}

func TestSplitFrameGeometry(t *testing.T) {
	c, err := NewChunker(320, 320, 0)
	require.NoError(t, err)

	buf := make([]byte, 1000)
	for i := range buf {
		buf[i] = byte(i)
	}

	frames := c.Split(buf)
	// ceil(1000/320) frames, all exactly one frame long.
	require.Len(t, frames, 4)
	var total int
	for _, f := range frames {
		assert.Equal(t, 320, len(f))
		total += len(f)
	}
	assert.Equal(t, 1280, total)

	// Concatenation reconstructs the input followed by zero padding.
	joined := bytes.Join(frames, nil)
	assert.Equal(t, buf, joined[:len(buf)])
	for _, b := range joined[len(buf):] {
		assert.Zero(t, b)
	}
}

func TestSplitPadsToMultipleNotFrameSize(t *testing.T) {
	c, err := NewChunker(3200, 320, 0)
	require.NoError(t, err)

	frames := c.Split(make([]byte, 5000))
	require.Len(t, frames, 2)
	assert.Equal(t, 3200, len(frames[0]))
	// 1800 trailing bytes pad to the next 320 boundary, not to 3200.
	assert.Equal(t, 1920, len(frames[1]))
}

func TestSplitEmptyBuffer(t *testing.T) {
	c, err := NewChunker(320, 320, 0)
	require.NoError(t, err)
	assert.Nil(t, c.Split(nil))
	assert.Nil(t, c.Split([]byte{}))
}

func TestSplitSubFrameBuffer(t *testing.T) {
	c, err := NewChunker(320, 320, 0)
	require.NoError(t, err)

	frames := c.Split(make([]byte, 100))
	require.Len(t, frames, 1)
	assert.Equal(t, 320, len(frames[0]))
}

func TestSendAbortsOnWriteFailure(t *testing.T) {
	c, err := NewChunker(320, 320, 0)
	require.NoError(t, err)

	frames := c.Split(make([]byte, 1600))
	require.Len(t, frames, 5)

	calls := 0
	writeErr := errors.New("socket gone")
	err = c.Send(context.Background(), frames, func([]byte) error {
		calls++
		if calls == 2 {
			return writeErr
		}
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, writeErr)
	// No frames after the failing one, and no retries.
	assert.Equal(t, 2, calls)
}

func TestSendRespectsContext(t *testing.T) {
	c, err := NewChunker(320, 320, time.Hour)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	frames := c.Split(make([]byte, 640))

	done := make(chan error, 1)
	go func() {
		done <- c.Send(ctx, frames, func([]byte) error { return nil })
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Send did not return after context cancellation")
	}
}

func TestSendPacesFrames(t *testing.T) {
	delay := 20 * time.Millisecond
	c, err := NewChunker(320, 320, delay)
	require.NoError(t, err)

	frames := c.Split(make([]byte, 1280))
	require.Len(t, frames, 4)

	start := time.Now()
	err = c.Send(context.Background(), frames, func([]byte) error { return nil })
	require.NoError(t, err)

	// Three gaps between four frames.
	assert.GreaterOrEqual(t, time.Since(start), 3*delay)
}
