package conversation

import (
	"context"
	"time"
	"unicode/utf8"
)

// TypingConfig paces replies so they read like a person typing.
type TypingConfig struct {
	PerChar time.Duration
	Min     time.Duration
	Max     time.Duration
}

// DefaultTyping is 45ms per character clamped to [1.5s, 8s].
var DefaultTyping = TypingConfig{PerChar: 45 * time.Millisecond, Min: 1500 * time.Millisecond, Max: 8 * time.Second}

// Delay returns the pause before sending reply.
func (c TypingConfig) Delay(reply string) time.Duration {
	d := time.Duration(utf8.RuneCountInString(reply)) * c.PerChar
	if d < c.Min {
		d = c.Min
	}
	if c.Max > 0 && d > c.Max {
		d = c.Max
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
