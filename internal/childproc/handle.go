// Package childproc implements the Child Handle (C) and Stdio Pumps (SP) of
// spec.md §4.3: launching one OS child, owning its pipes, and running the
// stdout/stderr pumps plus the exit reaper as independent goroutines.
package childproc

import (
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/averyln/procsuper/internal/events"
	"github.com/averyln/procsuper/internal/model"
)

// ErrNotRunning is returned by WriteStdin once the reaper has observed exit.
var ErrNotRunning = errors.New("process not running")

// ErrWriteFailed wraps a stdin write or flush failure.
var ErrWriteFailed = errors.New("stdin write failed")

const stdinWriteTimeout = 10 * time.Second

// Handle is one live child process: its OS handle, its stdin sink, and the
// state the reaper and pumps mutate. Per spec.md §9, pumps and the reaper do
// not hold a back-reference to Handle — they close over a name and a
// events.Sink clone only; Handle owns their lifetimes via a WaitGroup.
type Handle struct {
	Name string

	cmd   *exec.Cmd
	stdin io.WriteCloser

	stdinMu sync.Mutex

	exitObserved atomic.Bool
	done         chan struct{} // closed once the reaper completes

	lastCfgMu sync.Mutex
	lastCfg   model.SpawnConfig

	wg  sync.WaitGroup
	log hclog.Logger
}

// Launch starts the OS child with all three standard streams piped, per
// spec.md §4.2 ("all three ... are captured with pipes. The core does not
// permit pass-through to the parent's terminal") and begins the stdout and
// stderr pumps plus the reaper. onSwept is invoked after the exit event has
// been emitted, so the registry can drop this Handle (spec.md I4).
func Launch(name, executable string, args []string, cwd string, env []string, cfg model.SpawnConfig, sink events.Sink, log hclog.Logger, onSwept func(name string, h *Handle)) (*Handle, error) {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	log = log.Named("child").With("name", name)

	cmd := exec.Command(executable, args...)
	if cwd != "" {
		cmd.Dir = cwd
	}
	if env != nil {
		cmd.Env = env
	}
	// Run in its own process group so kill() can take down any children the
	// interpreter itself forked (carried over from the teacher's spawn()).
	cmd.SysProcAttr = newSysProcAttr()

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting process: %w", err)
	}

	h := &Handle{
		Name:  name,
		cmd:   cmd,
		stdin: stdin,
		done:  make(chan struct{}),
		log:   log,
	}
	h.lastCfg = cfg.Clone()

	log.Info("process spawned", "pid", cmd.Process.Pid)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		pumpLines(name, stdout, events.TopicStdout, sink, log.Named("pump.stdout"))
	}()
	go func() {
		defer h.wg.Done()
		pumpLines(name, stderr, events.TopicStderr, sink, log.Named("pump.stderr"))
	}()

	go h.reap(sink, onSwept)

	return h, nil
}

// PID returns the OS process id, or nil if the OS never reported one.
func (h *Handle) PID() *int {
	if h.cmd.Process == nil {
		return nil
	}
	pid := h.cmd.Process.Pid
	return &pid
}

// ExitObserved reports whether the reaper has already fired.
func (h *Handle) ExitObserved() bool {
	return h.exitObserved.Load()
}

// LastConfig returns the SpawnConfig used to launch this Handle, for
// restart-with-no-override (spec.md §4.5).
func (h *Handle) LastConfig() model.SpawnConfig {
	h.lastCfgMu.Lock()
	defer h.lastCfgMu.Unlock()
	return h.lastCfg.Clone()
}

// Signal sends sig to the child's process group (falling back to the child
// alone if the group lookup fails), matching the teacher's kill().
func (h *Handle) Signal(sig unix.Signal) error {
	if h.cmd.Process == nil {
		return nil
	}
	pgid, err := unix.Getpgid(h.cmd.Process.Pid)
	if err == nil {
		return unix.Kill(-pgid, sig)
	}
	return h.cmd.Process.Signal(sig)
}

// CloseStdin drops the stdin pipe. Spec.md §9: this is mandatory before
// kill so a writer blocked on a full pipe does not deadlock the kill path.
// It does not take stdinMu, which a blocked writer holds for the whole of its
// Write; closing the pipe fails that pending Write instead.
func (h *Handle) CloseStdin() {
	_ = h.stdin.Close()
}

// Wait blocks until the reaper has completed, or the context-free timeout
// elapses (0 means wait forever). Used by shutdown and by restart's
// wait-for-sweep step.
func (h *Handle) Wait(timeout time.Duration) bool {
	if timeout <= 0 {
		<-h.done
		return true
	}
	select {
	case <-h.done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Done returns the channel closed once the reaper completes, for callers
// that want to select on it directly (e.g. Controller.Shutdown once its grace
// window has run out).
func (h *Handle) Done() <-chan struct{} {
	return h.done
}
