package child

import (
	"errors"

	"github.com/spawnio/spawn-utils/line_feed"
	"github.com/spawnio/spawn-utils/process_error"
	"github.com/spawnio/spawn-utils/stdio_stream"
)

// StdoutFeed registers a line sink on the stdout stream. The dedicated
// reader thread starts on the first registration; sinks added later
// receive subsequent lines but no replay. Fails with Invalid when stdout
// is not pipe-configured.
func (c *Child) StdoutFeed(sink line_feed.Sink) error {
	stream := c.handle.ParentStdout()
	if stream == nil {
		return process_error.New(process_error.Invalid, "stdout is not pipe-configured")
	}

	c.stdoutEngine.AddSink(sink)
	c.stdoutReader.Do(func() {
		go c.readLoop(stream, c.stdoutEngine, process_error.ContextFeedStdout)
	})

	return nil
}

// StderrFeed registers a line sink on the stderr stream; see StdoutFeed.
func (c *Child) StderrFeed(sink line_feed.Sink) error {
	stream := c.handle.ParentStderr()
	if stream == nil {
		return process_error.New(process_error.Invalid, "stderr is not pipe-configured")
	}

	c.stderrEngine.AddSink(sink)
	c.stderrReader.Do(func() {
		go c.readLoop(stream, c.stderrEngine, process_error.ContextFeedStderr)
	})

	return nil
}

// readLoop is the body of a per-stream reader thread: it pulls chunks from
// the pipe and hands them to the line-feed engine until EOF or a
// non-retriable error, then flushes the engine so every sink sees the
// end-of-stream sentinel exactly once. Sink panics surface to the error
// handler; the stream is considered dead afterwards.
func (c *Child) readLoop(stream *stdio_stream.ReadStream, engine *line_feed.Engine, context process_error.ExceptionContext) {
	defer engine.Close()

	size := c.tunables.ReaderBufferBytes
	if size <= 0 {
		size = 8 * 1024
	}
	buf := make([]byte, size)

	for {
		n, err := stream.Read(buf)
		if n > 0 {
			if !c.guardedDispatch(engine, buf[:n], context) {
				return
			}
		}

		if err != nil {
			if !errors.Is(err, stdio_stream.ErrEndOfStream) && !process_error.IsKind(err, process_error.Closed) {
				c.reportError(context, err)
			}
			return
		}
	}
}

// guardedDispatch feeds one chunk to the engine, converting a sink panic
// into an error-handler report. Returns false when dispatch must stop.
func (c *Child) guardedDispatch(engine *line_feed.Engine, chunk []byte, context process_error.ExceptionContext) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			err, isErr := r.(error)
			if !isErr {
				err = process_error.Newf(process_error.IO, "line sink panicked: %v", r)
			}
			c.reportError(context, err)
			ok = false
		}
	}()

	engine.OnData(chunk)
	return true
}
