// Package logger provides the colorized prefix logger used for lifecycle
// tracing. Colors are enabled only when stdout is a terminal.
package logger

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
)

func colorize(colorToUse color.Attribute, fstring string, args ...any) []string {
	var msg string

	if len(args) == 0 {
		msg = fstring // Treat as plain string if no args
	} else {
		msg = fmt.Sprintf(fstring, args...) // Format if args are present
	}

	lines := strings.Split(msg, "\n")
	colorizedLines := make([]string, len(lines))

	for i, line := range lines {
		colorizedLines[i] = color.New(colorToUse).SprintFunc()(line)
	}

	return colorizedLines
}

func debugColorize(fstring string, args ...any) []string {
	return colorize(color.FgCyan, fstring, args...)
}

func infoColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiBlue, fstring, args...)
}

func errorColorize(fstring string, args ...any) []string {
	return colorize(color.FgHiRed, fstring, args...)
}

func yellowColorize(fstring string, args ...any) []string {
	return colorize(color.FgYellow, fstring, args...)
}

// Serializes logging in case of multiple cloned loggers
type syncWriter struct {
	mu     sync.Mutex
	writer io.Writer
}

func (s *syncWriter) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, err = s.writer.Write(p)
	return n, err
}

// Logger is a wrapper around log.Logger with the following features:
//   - Supports a prefix
//   - Adds colors to the output when stdout is a terminal
//   - Debug mode (all logs, debug and above)
type Logger struct {
	// IsDebug is used to determine whether to emit debug logs.
	IsDebug bool

	// prefix is the prefix to be used for all logs.
	prefix string

	logger log.Logger

	outputWriter *syncWriter
}

// GetLogger returns a logger writing to stdout.
func GetLogger(isDebug bool, prefix string) *Logger {
	color.NoColor = !isatty.IsTerminal(os.Stdout.Fd())
	sharedWriter := &syncWriter{writer: os.Stdout}
	coloredPrefix := yellowColorize("%s", prefix)[0]
	return &Logger{
		logger:       *log.New(sharedWriter, coloredPrefix, 0),
		IsDebug:      isDebug,
		prefix:       prefix,
		outputWriter: sharedWriter,
	}
}

// GetWriterLogger returns a logger writing to the given writer, with colors
// disabled.
func GetWriterLogger(writer io.Writer, isDebug bool, prefix string) *Logger {
	color.NoColor = true
	sharedWriter := &syncWriter{writer: writer}
	return &Logger{
		logger:       *log.New(sharedWriter, prefix, 0),
		IsDebug:      isDebug,
		prefix:       prefix,
		outputWriter: sharedWriter,
	}
}

// Clone clones a given logger.
// Uses the same outputwriter to ensure logs are serialized
// when a clone and an original is running concurrently.
func (l *Logger) Clone() *Logger {
	cloned := &Logger{
		IsDebug:      l.IsDebug,
		prefix:       l.prefix,
		outputWriter: l.outputWriter,
	}

	cloned.logger = *log.New(cloned.outputWriter, yellowColorize("%s", l.prefix)[0], 0)

	return cloned
}

func (l *Logger) Infof(fstring string, args ...any) {
	for _, line := range infoColorize(fstring, args...) {
		l.logger.Println(line)
	}
}

func (l *Logger) Infoln(msg string) {
	for _, line := range infoColorize("%s", msg) {
		l.logger.Println(line)
	}
}

func (l *Logger) Errorf(fstring string, args ...any) {
	for _, line := range errorColorize(fstring, args...) {
		l.logger.Println(line)
	}
}

func (l *Logger) Errorln(msg string) {
	for _, line := range errorColorize("%s", msg) {
		l.logger.Println(line)
	}
}

func (l *Logger) Debugf(fstring string, args ...any) {
	if !l.IsDebug {
		return
	}

	for _, line := range debugColorize(fstring, args...) {
		l.logger.Println(line)
	}
}

func (l *Logger) Debugln(msg string) {
	if !l.IsDebug {
		return
	}

	for _, line := range debugColorize("%s", msg) {
		l.logger.Println(line)
	}
}

func (l *Logger) Plainf(fstring string, args ...any) {
	formattedString := fmt.Sprintf(fstring, args...)

	for _, line := range strings.Split(formattedString, "\n") {
		l.logger.Println(line)
	}
}

func (l *Logger) Plainln(msg string) {
	lines := strings.Split(msg, "\n")

	for _, line := range lines {
		l.logger.Println(line)
	}
}
