package childproc

import (
	"fmt"
	"strings"
	"time"
)

// WriteStdin implements spec.md §4.3 and I6: append a single record
// separator iff data does not already end with one, then write verbatim and
// flush. Concurrent writers to the same child are serialized by stdinMu;
// writers to distinct children never contend with one another.
func (h *Handle) WriteStdin(data []byte) error {
	if h.ExitObserved() {
		return fmt.Errorf("%w: %s", ErrNotRunning, h.Name)
	}

	framed := data
	if !endsWithSeparator(data) {
		framed = append(append([]byte(nil), data...), '\n')
	}

	type result struct{ err error }
	ch := make(chan result, 1)
	go func() {
		h.stdinMu.Lock()
		defer h.stdinMu.Unlock()
		_, err := h.stdin.Write(framed)
		ch <- result{err}
	}()

	select {
	case res := <-ch:
		if res.err != nil {
			return fmt.Errorf("%w: %v", ErrWriteFailed, res.err)
		}
		return nil
	case <-h.done:
		return fmt.Errorf("%w: %s exited during write", ErrNotRunning, h.Name)
	case <-time.After(stdinWriteTimeout):
		return fmt.Errorf("%w: timeout writing to %s", ErrWriteFailed, h.Name)
	}
}

// endsWithSeparator reports whether data already ends with the record
// separator (I6's framing check).
func endsWithSeparator(data []byte) bool {
	return len(data) > 0 && strings.HasSuffix(string(data), "\n")
}
