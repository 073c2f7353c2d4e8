package serial

import (
	"bytes"
	"strings"
)

// maxPending bounds the bytes kept while waiting for a delimiter. A device
// that never sends one cannot make the reader grow without limit.
const maxPending = 64 * 1024

// lineBuffer accumulates raw reads and splits them on the delimiter.
type lineBuffer struct {
	delim   string
	pending []byte
}

func (b *lineBuffer) feed(p []byte) {
	b.pending = append(b.pending, p...)
	if len(b.pending) > maxPending && bytes.LastIndex(b.pending, []byte(b.delim)) < 0 {
		b.pending = b.pending[:0]
	}
}

func (b *lineBuffer) next() (string, bool) {
	idx := bytes.Index(b.pending, []byte(b.delim))
	if idx < 0 {
		return "", false
	}
	line := string(b.pending[:idx])
	b.pending = b.pending[idx+len(b.delim):]
	if len(b.pending) == 0 {
		b.pending = b.pending[:0:0]
	}
	if b.delim == "\n" {
		line = strings.TrimSuffix(line, "\r")
	}
	return line, true
}
