// Package stream reassembles newline-delimited records from a byte stream
// whose chunk boundaries carry no meaning.
package stream

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

// LineReader yields complete lines from an underlying reader. Chunks may end
// anywhere, including inside a multi-byte character; bytes are buffered until a
// line terminator arrives, so a line is only converted to text once whole.
type LineReader struct {
	reader *bufio.Reader
	err    error
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{reader: bufio.NewReader(r)}
}

// Next returns the next line without its terminator ("\n" or "\r\n").
//
// At end of stream a non-empty trailing partial line is returned as a final
// line and the following call returns io.EOF. Any other read error is terminal:
// the partial line is dropped and the error is returned from this and every
// later call.
func (lr *LineReader) Next() (string, error) {
	if lr.err != nil {
		return "", lr.err
	}

	line, err := lr.reader.ReadBytes('\n')
	if err == nil {
		return string(trimTerminator(line)), nil
	}

	if errors.Is(err, io.EOF) {
		lr.err = io.EOF
		if len(line) > 0 {
			return string(trimTerminator(line)), nil
		}
		return "", io.EOF
	}

	lr.err = err
	return "", err
}

// Lines drains r and calls fn for every line until the stream ends, fn returns
// an error, or the reader fails. A clean end of stream returns nil.
func Lines(r io.Reader, fn func(line string) error) error {
	lr := NewLineReader(r)
	for {
		line, err := lr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if err := fn(line); err != nil {
			return err
		}
	}
}

func trimTerminator(line []byte) []byte {
	line = bytes.TrimSuffix(line, []byte{'\n'})
	return bytes.TrimSuffix(line, []byte{'\r'})
}
