package childproc

import (
	"bufio"
	"io"
	"os/exec"
	"strings"
	"syscall"
	"unicode/utf8"

	"github.com/hashicorp/go-hclog"

	"github.com/averyln/procsuper/internal/events"
)

// maxLineBuffer bounds a single line's size, generalized from the teacher's
// 10MB stream-json allowance (native/process.go's streamOutput).
const maxLineBuffer = 10 * 1024 * 1024

// pumpLines reads r line-by-line and emits one events.Line per complete
// line with the terminator stripped (spec.md I5). Non-UTF-8 bytes are
// replaced with the Unicode replacement character rather than aborting the
// pump (spec.md §4.3). The pump terminates naturally at EOF; a read error is
// treated as EOF (spec.md §7: "an I/O error on a pump terminates that pump
// silently").
func pumpLines(name string, r io.Reader, topic events.Topic, sink events.Sink, log hclog.Logger) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBuffer)
	for scanner.Scan() {
		line := sanitizeUTF8(scanner.Text())
		sink.Emit(topic, events.Line{Name: name, Data: line})
	}
	if err := scanner.Err(); err != nil {
		log.Debug("pump terminated by read error, treating as EOF", "error", err)
	}
}

// sanitizeUTF8 replaces invalid byte sequences with the Unicode replacement
// character, leaving already-valid UTF-8 untouched.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				b.WriteRune(utf8.RuneError)
				continue
			}
		}
		b.WriteRune(r)
	}
	return b.String()
}

// reap waits for the stdout and stderr pumps to reach EOF, then awaits the
// child's OS-level exit, emits the exit event exactly once, and signals the
// registry to drop this Handle (spec.md §4.3, I3, I4). Because the pumps are
// drained first, no stdout/stderr event for this name follows the exit
// event; a descendant that keeps the pipes open after the child itself has
// exited (for example after a double-fork) keeps reap waiting until those
// pipes close.
func (h *Handle) reap(sink events.Sink, onSwept func(name string, h *Handle)) {
	h.wg.Wait() // drain stdout/stderr pumps before Wait closes the pipes out from under them
	waitErr := h.cmd.Wait()

	var code *int
	var signal string
	if waitErr == nil {
		c := 0
		code = &c
	} else if exitErr, ok := waitErr.(*exec.ExitError); ok {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				signal = signalName(status.Signal())
			} else {
				c := status.ExitStatus()
				code = &c
			}
		} else {
			c := exitErr.ExitCode()
			code = &c
		}
	}
	// Any other wait failure (process already reaped, ECHILD, etc.) leaves
	// code nil, matching spec.md §3's "null ... if wait failed".

	h.log.Info("process exited", "code", derefInt(code), "signal", signal)

	h.exitObserved.Store(true)
	sink.Emit(events.TopicExit, events.Exit{Name: h.Name, Code: code, Signal: signal})
	close(h.done)

	if onSwept != nil {
		onSwept(h.Name, h)
	}
}

func derefInt(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func signalName(sig syscall.Signal) string {
	switch sig {
	case syscall.SIGTERM:
		return "SIGTERM"
	case syscall.SIGKILL:
		return "SIGKILL"
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGQUIT:
		return "SIGQUIT"
	case syscall.SIGHUP:
		return "SIGHUP"
	case syscall.SIGUSR1:
		return "SIGUSR1"
	case syscall.SIGUSR2:
		return "SIGUSR2"
	case syscall.SIGPIPE:
		return "SIGPIPE"
	case syscall.SIGABRT:
		return "SIGABRT"
	case syscall.SIGSEGV:
		return "SIGSEGV"
	default:
		return ""
	}
}
