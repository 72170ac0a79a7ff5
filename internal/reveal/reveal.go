// Package reveal writes a finished completion to a client one character
// at a time so the chat UI can render it as if it were being typed.
package reveal

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
	"unicode/utf8"
)

// DefaultDelay is the pause between characters.
const DefaultDelay = 20 * time.Millisecond

// Write sends text rune by rune with delay between runes. It flushes
// after every rune when w is an http.Flusher and returns ctx.Err() if the
// caller goes away before the text is fully written.
func Write(ctx context.Context, w io.Writer, text string, delay time.Duration) error {
	flusher, _ := w.(http.Flusher)

	var timer *time.Timer
	if delay > 0 {
		timer = time.NewTimer(delay)
		defer timer.Stop()
	}

	buf := make([]byte, utf8.UTFMax)
	for i, r := range text {
		if i > 0 && timer != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				timer.Reset(delay)
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		n := utf8.EncodeRune(buf, r)
		if _, err := w.Write(buf[:n]); err != nil {
			return fmt.Errorf("reveal write: %w", err)
		}
		if flusher != nil {
			flusher.Flush()
		}
	}
	return nil
}
