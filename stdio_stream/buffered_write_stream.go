package stdio_stream

import (
	"io"

	"github.com/spawnio/spawn-utils/process_error"
)

// DefaultBufferSize is the internal buffer size of a BufferedWriteStream.
const DefaultBufferSize = 8 * 1024

// BufferedWriteStream wraps a WriteStream with an in-memory buffer. Writes
// larger than the remaining buffer flush first; writes larger than the
// whole buffer bypass it entirely.
type BufferedWriteStream struct {
	inner  io.WriteCloser
	buf    []byte
	n      int
	closed bool
}

// NewBufferedWriteStream wraps inner with a DefaultBufferSize buffer.
func NewBufferedWriteStream(inner io.WriteCloser) *BufferedWriteStream {
	return &BufferedWriteStream{
		inner: inner,
		buf:   make([]byte, DefaultBufferSize),
	}
}

// Write buffers p, flushing as needed. The count returned is len(p) unless
// an underlying write fails.
func (b *BufferedWriteStream) Write(p []byte) (int, error) {
	if b.closed {
		return 0, process_error.New(process_error.Closed, "buffered write stream is closed")
	}

	if len(p) > b.available() {
		if err := b.Flush(); err != nil {
			return 0, err
		}

		if len(p) > len(b.buf) {
			// Buffer empty and p still oversized: write straight through.
			return b.inner.Write(p)
		}
	}

	n := copy(b.buf[b.n:], p)
	b.n += n
	return n, nil
}

// Flush drains the buffer to the underlying stream.
func (b *BufferedWriteStream) Flush() error {
	if b.closed {
		return process_error.New(process_error.Closed, "buffered write stream is closed")
	}

	if b.n == 0 {
		return nil
	}

	_, err := b.inner.Write(b.buf[:b.n])
	if err != nil {
		return err
	}

	b.n = 0
	return nil
}

// Close flushes then closes the underlying stream. Flush errors are
// reported with the close error suppressed into them.
func (b *BufferedWriteStream) Close() error {
	if b.closed {
		return nil
	}

	flushErr := b.Flush()
	b.closed = true

	closeErr := b.inner.Close()
	if flushErr != nil {
		if pe, ok := flushErr.(*process_error.Error); ok {
			return pe.Suppress(closeErr)
		}
		return flushErr
	}

	return closeErr
}

func (b *BufferedWriteStream) available() int {
	return len(b.buf) - b.n
}
