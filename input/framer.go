package input

import (
	"bytes"
	"strings"
)

// LineSink receives one framed line. Connections call it from their own
// goroutine, in read order.
type LineSink func(line string)

// Framer assembles stream bytes into lines. A line ends at '\n'. While the
// buffered text is a sentence (it starts with '$' or '!'), a further '$' or
// '!' also ends it, because some talkers omit the newline between
// sentences. Carriage returns are dropped.
//
// A Framer is not safe for concurrent use.
type Framer struct {
	buf  []byte
	emit LineSink
	max  int
}

// DefaultMaxLine bounds a buffered line; longer input is emitted as is.
const DefaultMaxLine = 4096

// NewFramer returns a Framer that hands complete lines to emit.
func NewFramer(emit LineSink) *Framer {
	return &Framer{emit: emit, max: DefaultMaxLine}
}

// Write feeds bytes to the framer. It never fails.
func (f *Framer) Write(p []byte) (int, error) {
	for _, b := range p {
		switch b {
		case '\n':
			f.Flush()
		case '\r':
		case '$', '!':
			if len(f.buf) > 0 && isSentenceStart(f.buf[0]) {
				f.Flush()
			}
			f.buf = append(f.buf, b)
		default:
			f.buf = append(f.buf, b)
		}
		if len(f.buf) >= f.max {
			f.Flush()
		}
	}
	return len(p), nil
}

// Flush emits the buffered text, if any, as a line.
func (f *Framer) Flush() {
	if len(f.buf) == 0 {
		return
	}
	line := string(bytes.TrimSpace(f.buf))
	f.buf = f.buf[:0]
	if line != "" {
		f.emit(line)
	}
}

// Buffered reports how many bytes are waiting for a terminator.
func (f *Framer) Buffered() int {
	return len(f.buf)
}

// Reset discards buffered text. Connections reset the framer between
// sessions so a partial line never spans a reconnect.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

func isSentenceStart(b byte) bool {
	return b == '$' || b == '!'
}

// SplitDatagram splits one datagram into lines. Trailing NUL padding is
// stripped, '\r' is ignored and blank lines are skipped.
func SplitDatagram(datagram []byte, emit LineSink) int {
	datagram = bytes.TrimRight(datagram, "\x00")
	count := 0
	for _, line := range strings.Split(string(datagram), "\n") {
		line = strings.TrimSpace(strings.TrimRight(line, "\r\x00"))
		if line == "" {
			continue
		}
		emit(line)
		count++
	}
	return count
}
