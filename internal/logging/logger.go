package logging

import (
	"io"
	"log"
	"os"
	"strings"
)

// Flags used by every labgate logger.
const Flags = log.LstdFlags | log.Lmicroseconds

// Setup points the standard logger at stdout, mirrored to a rotating file
// when logFile is set, and applies prefix. The returned closer releases the
// file and is never nil.
func Setup(logFile, prefix string) (io.Closer, error) {
	var out io.Writer = os.Stdout
	closer := io.Closer(nopWriteCloser{w: io.Discard})
	if strings.TrimSpace(logFile) != "" {
		rot, err := NewRotatingWriter(logFile, DefaultMaxBytes)
		if err != nil {
			return nil, err
		}
		out = io.MultiWriter(os.Stdout, rot)
		closer = rot
	}
	log.SetOutput(out)
	log.SetFlags(Flags)
	log.SetPrefix(prefix)
	return closer, nil
}

// Component returns a logger sharing the standard logger's output with its
// own prefix, e.g. "[gateway] ".
func Component(prefix string) *log.Logger {
	return log.New(log.Writer(), prefix, Flags)
}

// Debugf prints through logger only when debug is on, tagging the line.
func Debugf(logger *log.Logger, debug bool, format string, args ...any) {
	if !debug || logger == nil {
		return
	}
	logger.Printf("DEBUG "+format, args...)
}
