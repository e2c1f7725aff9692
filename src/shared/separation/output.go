package separation

import (
	"bytes"
	"sync"

	"github.com/apex/log"
)

const stderrTailSize = 16 * 1024

// tailBuffer keeps the last stderrTailSize bytes written to it.
type tailBuffer struct {
	mutex sync.Mutex
	buf   []byte
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.buf = append(t.buf, p...)
	if overflow := len(t.buf) - stderrTailSize; overflow > 0 {
		t.buf = append([]byte{}, t.buf[overflow:]...)
	}

	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return string(bytes.TrimSpace(t.buf))
}

// lineLogger logs every complete line at debug level.
type lineLogger struct {
	logger  log.Interface
	pending []byte
}

func (l *lineLogger) Write(p []byte) (int, error) {
	l.pending = append(l.pending, p...)

	for {
		index := bytes.IndexAny(l.pending, "\r\n")
		if index < 0 {
			break
		}

		if line := bytes.TrimSpace(l.pending[:index]); len(line) > 0 {
			l.logger.Debug(string(line))
		}
		l.pending = l.pending[index+1:]
	}

	return len(p), nil
}

func (l *lineLogger) Flush() {
	if line := bytes.TrimSpace(l.pending); len(line) > 0 {
		l.logger.Debug(string(line))
	}
	l.pending = nil
}
