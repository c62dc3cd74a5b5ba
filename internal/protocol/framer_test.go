package protocol

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
)

// chunkReader hands out its chunks one Read at a time, simulating TCP
// segmentation.
type chunkReader struct {
	chunks [][]byte
}

func (c *chunkReader) Read(p []byte) (int, error) {
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func TestReadLineSingle(t *testing.T) {
	lr := NewLineReader(strings.NewReader("PING 1\r\n"))
	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "PING 1" {
		t.Fatalf("got %q", line)
	}
}

func TestReadLineMultiplePerRead(t *testing.T) {
	lr := NewLineReader(strings.NewReader("PING 1\r\nPING 2\r\nPING 3\r\n"))
	for i, want := range []string{"PING 1", "PING 2", "PING 3"} {
		line, err := lr.ReadLine()
		if err != nil {
			t.Fatalf("line %d: %v", i, err)
		}
		if line != want {
			t.Fatalf("line %d: got %q want %q", i, line, want)
		}
	}
	if _, err := lr.ReadLine(); !errors.Is(err, io.EOF) {
		t.Fatalf("expected EOF, got %v", err)
	}
}

func TestReadLineSplitAcrossReads(t *testing.T) {
	lr := NewLineReader(&chunkReader{chunks: [][]byte{
		[]byte("PI"), []byte("NG "), []byte("1"), []byte("\r"), []byte("\n"),
	}})
	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "PING 1" {
		t.Fatalf("got %q", line)
	}
}

func TestReadLineCRLFStraddlesReads(t *testing.T) {
	lr := NewLineReader(&chunkReader{chunks: [][]byte{
		[]byte("PING 1\r"), []byte("\nPING 2\r\n"),
	}})
	for _, want := range []string{"PING 1", "PING 2"} {
		line, err := lr.ReadLine()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if line != want {
			t.Fatalf("got %q want %q", line, want)
		}
	}
}

func TestReadLineMaxLengthAccepted(t *testing.T) {
	payload := strings.Repeat("a", MaxLineLen)
	lr := NewLineReader(strings.NewReader(payload + "\r\n"))
	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(line) != MaxLineLen {
		t.Fatalf("got %d bytes", len(line))
	}
}

func TestReadLineOverLengthRejected(t *testing.T) {
	payload := strings.Repeat("a", MaxLineLen+1)
	lr := NewLineReader(strings.NewReader(payload + "\r\n"))
	if _, err := lr.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}

func TestReadLineUnterminatedFloodRejected(t *testing.T) {
	// No CRLF at all: once more than MaxLineLen+1 bytes are pending, no
	// legal line can ever complete.
	lr := NewLineReader(bytes.NewReader(bytes.Repeat([]byte("x"), MaxLineLen+4096)))
	if _, err := lr.ReadLine(); !errors.Is(err, ErrLineTooLong) {
		t.Fatalf("expected ErrLineTooLong, got %v", err)
	}
}

func TestReadLineEmptyLine(t *testing.T) {
	lr := NewLineReader(strings.NewReader("\r\nPING 1\r\n"))
	line, err := lr.ReadLine()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if line != "" {
		t.Fatalf("got %q", line)
	}
	line, err = lr.ReadLine()
	if err != nil || line != "PING 1" {
		t.Fatalf("got %q, %v", line, err)
	}
}
