package comm

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// MaxLineLength bounds a single LCTP line including the terminator.
const MaxLineLength = 1024

// ErrLineTooLong indicates a line exceeding MaxLineLength.
var ErrLineTooLong = errors.New("line too long")

// LineReadWriter frames LCTP lines over a byte stream.
// Each line is terminated by '\n', an optional preceding '\r' is dropped.
type LineReadWriter struct {
	r *bufio.Reader
	w io.Writer
}

// NewLineReadWriter creates a LineReadWriter over rw.
func NewLineReadWriter(rw io.ReadWriter) *LineReadWriter {
	return &LineReadWriter{r: bufio.NewReaderSize(rw, MaxLineLength), w: rw}
}

// ReadLine reads the next line without its terminator.
// A final unterminated line before EOF is returned as a line.
func (p *LineReadWriter) ReadLine() (string, error) {
	data, err := p.r.ReadSlice('\n')
	switch {
	case err == bufio.ErrBufferFull:
		return "", ErrLineTooLong
	case err == io.EOF && len(data) > 0:
		err = nil
	case err != nil:
		return "", err
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// WriteLine writes line followed by '\n'.
func (p *LineReadWriter) WriteLine(line string) error {
	_, err := io.WriteString(p.w, line+"\n")
	return err
}
