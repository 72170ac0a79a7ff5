package reveal

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingWriter records each Write call so tests can check granularity.
type countingWriter struct {
	bytes.Buffer
	writes []string
	after  func(n int)
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.writes = append(c.writes, string(p))
	n, err := c.Buffer.Write(p)
	if c.after != nil {
		c.after(len(c.writes))
	}
	return n, err
}

func TestWriteOneRunePerWrite(t *testing.T) {
	w := &countingWriter{}
	require.NoError(t, Write(context.Background(), w, "héllo ✨", 0))

	assert.Equal(t, "héllo ✨", w.String())
	assert.Equal(t, []string{"h", "é", "l", "l", "o", " ", "✨"}, w.writes)
}

func TestWriteFlushes(t *testing.T) {
	rec := httptest.NewRecorder()
	require.NoError(t, Write(context.Background(), rec, "ok", time.Microsecond))
	assert.Equal(t, "ok", rec.Body.String())
	assert.True(t, rec.Flushed)
}

func TestWriteEmpty(t *testing.T) {
	w := &countingWriter{}
	require.NoError(t, Write(context.Background(), w, "", time.Second))
	assert.Empty(t, w.writes)
}

func TestWriteStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	w := &countingWriter{after: func(n int) {
		if n == 3 {
			cancel()
		}
	}}

	err := Write(ctx, w, "abcdefgh", time.Millisecond)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, "abc", w.String())
}

func TestWriteHonoursDelay(t *testing.T) {
	start := time.Now()
	require.NoError(t, Write(context.Background(), &countingWriter{}, "abcd", 5*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

type failingWriter struct{}

func (failingWriter) Write(p []byte) (int, error) { return 0, errors.New("broken pipe") }

func TestWriteReturnsWriterError(t *testing.T) {
	err := Write(context.Background(), failingWriter{}, "x", 0)
	assert.Error(t, err)
}
