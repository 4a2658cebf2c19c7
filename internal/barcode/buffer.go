package barcode

import "time"

// A hardware scanner emits its digits as one rapid keystroke burst
// terminated by Enter. The buffer accumulates those keystrokes and
// flushes on Enter or once the burst goes idle; a gap longer than the
// idle timeout means human typing, which restarts accumulation instead
// of contaminating the code.
const (
	DefaultIdleTimeout = 120 * time.Millisecond
	DefaultMinLength   = 4
)

type bufferState int

const (
	stateIdle bufferState = iota
	stateAccumulating
)

type Buffer struct {
	idleTimeout time.Duration
	minLength   int
	state       bufferState
	runes       []rune
	lastKeyAt   time.Time
}

func NewBuffer(idleTimeout time.Duration, minLength int) *Buffer {
	if idleTimeout <= 0 {
		idleTimeout = DefaultIdleTimeout
	}
	if minLength < 1 {
		minLength = DefaultMinLength
	}
	return &Buffer{idleTimeout: idleTimeout, minLength: minLength}
}

// Press feeds one keystroke observed at the given time. It returns a
// decoded barcode and true when the keystroke completed a code: Enter
// always flushes, and a keystroke arriving after the idle timeout
// flushes whatever burst preceded it before starting a new one.
func (b *Buffer) Press(r rune, at time.Time) (string, bool) {
	if r == '\n' || r == '\r' {
		return b.take()
	}

	if b.state == stateAccumulating && at.Sub(b.lastKeyAt) > b.idleTimeout {
		code, ok := b.take()
		b.append(r, at)
		return code, ok
	}

	b.append(r, at)
	return "", false
}

// FlushIfIdle flushes the accumulated burst once it has been idle for
// the timeout. Call it from a ticker or before reading cart state.
func (b *Buffer) FlushIfIdle(at time.Time) (string, bool) {
	if b.state != stateAccumulating || at.Sub(b.lastKeyAt) < b.idleTimeout {
		return "", false
	}
	return b.take()
}

// Reset drops any accumulated keystrokes and returns to idle.
func (b *Buffer) Reset() {
	b.state = stateIdle
	b.runes = b.runes[:0]
}

func (b *Buffer) append(r rune, at time.Time) {
	b.state = stateAccumulating
	b.runes = append(b.runes, r)
	b.lastKeyAt = at
}

// take flushes the buffer. Bursts shorter than the minimum length are
// stray keys, discarded rather than resolved.
func (b *Buffer) take() (string, bool) {
	code := string(b.runes)
	b.Reset()
	if len(code) < b.minLength {
		return "", false
	}
	return code, true
}
