package logging

import (
	"bytes"
	"io"
)

// PrefixWriter decorates an io.Writer so every complete line starts with
// a fixed prefix. Partial lines are buffered until their newline arrives.
type PrefixWriter struct {
	prefix []byte
	dst    io.Writer
	buf    bytes.Buffer
}

// NewPrefixWriter creates a PrefixWriter wrapping w.
func NewPrefixWriter(prefix string, w io.Writer) *PrefixWriter {
	return &PrefixWriter{prefix: []byte(prefix), dst: w}
}

// Write implements io.Writer.
func (pw *PrefixWriter) Write(p []byte) (int, error) {
	pw.buf.Write(p)

	for {
		idx := bytes.IndexByte(pw.buf.Bytes(), '\n')
		if idx < 0 {
			break
		}
		line := pw.buf.Next(idx + 1)
		if _, err := pw.dst.Write(pw.prefix); err != nil {
			return 0, err
		}
		if _, err := pw.dst.Write(line); err != nil {
			return 0, err
		}
	}

	return len(p), nil
}
