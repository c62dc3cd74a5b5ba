package protocol

import (
	"bytes"
	"io"
)

// LineReader splits a TCP byte stream into CRLF-terminated lines. It
// tolerates split writes, a CR/LF pair straddling two reads, and several
// lines arriving in a single read.
type LineReader struct {
	r   io.Reader
	buf []byte
	tmp [4096]byte
}

// NewLineReader wraps r in a LineReader.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: r}
}

var crlf = []byte("\r\n")

// ReadLine blocks until a full line is available and returns it without the
// CRLF. It returns ErrLineTooLong once the pending data can no longer form a
// line of MaxLineLen bytes or fewer; any other error is from the underlying
// reader.
func (lr *LineReader) ReadLine() (string, error) {
	for {
		if i := bytes.Index(lr.buf, crlf); i >= 0 {
			if i > MaxLineLen {
				return "", ErrLineTooLong
			}
			line := string(lr.buf[:i])
			rest := len(lr.buf) - (i + 2)
			copy(lr.buf, lr.buf[i+2:])
			lr.buf = lr.buf[:rest]
			return line, nil
		}

		// No terminator yet. A line of exactly MaxLineLen bytes needs
		// MaxLineLen+2 buffered bytes before its CRLF is complete, so only
		// beyond that is the line unsalvageable.
		if len(lr.buf) > MaxLineLen+1 {
			return "", ErrLineTooLong
		}

		n, err := lr.r.Read(lr.tmp[:])
		if n > 0 {
			lr.buf = append(lr.buf, lr.tmp[:n]...)
			continue
		}
		if err != nil {
			return "", err
		}
	}
}
