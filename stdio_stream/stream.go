package stdio_stream

import "io"

// ErrEndOfStream is returned by ReadStream.Read when the writer side of the
// pipe is closed and no bytes remain. It aliases io.EOF so streams compose
// with io.Copy and bufio.
var ErrEndOfStream = io.EOF
