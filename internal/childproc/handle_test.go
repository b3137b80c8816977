package childproc

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/averyln/procsuper/internal/events"
	"github.com/averyln/procsuper/internal/model"
)

type recordingSink struct {
	mu    sync.Mutex
	lines []events.Line
	errs  []events.Line
	exits []events.Exit
}

func (s *recordingSink) Emit(topic events.Topic, payload any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch topic {
	case events.TopicStdout:
		s.lines = append(s.lines, payload.(events.Line))
	case events.TopicStderr:
		s.errs = append(s.errs, payload.(events.Line))
	case events.TopicExit:
		s.exits = append(s.exits, payload.(events.Exit))
	}
}

func (s *recordingSink) Lines() []events.Line {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Line(nil), s.lines...)
}

func (s *recordingSink) Exits() []events.Exit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Exit(nil), s.exits...)
}

func launchShell(t *testing.T, script string, onSwept func(string, *Handle)) (*Handle, *recordingSink) {
	t.Helper()
	sink := &recordingSink{}
	h, err := Launch("proc1", "/bin/sh", []string{"-c", script}, "", nil, model.SpawnConfig{Command: "/bin/sh"}, sink, nil, onSwept)
	require.NoError(t, err)
	return h, sink
}

func TestLaunch_CapturesStdoutLines(t *testing.T) {
	h, sink := launchShell(t, "echo hello; echo world", nil)
	require.True(t, h.Wait(5*time.Second))

	lines := sink.Lines()
	require.Len(t, lines, 2)
	assert.Equal(t, "hello", lines[0].Data)
	assert.Equal(t, "world", lines[1].Data)
	assert.Equal(t, "proc1", lines[0].Name)
}

func TestLaunch_ExitCodeOnNormalExit(t *testing.T) {
	h, sink := launchShell(t, "exit 7", nil)
	require.True(t, h.Wait(5*time.Second))

	exits := sink.Exits()
	require.Len(t, exits, 1)
	require.NotNil(t, exits[0].Code)
	assert.Equal(t, 7, *exits[0].Code)
	assert.Empty(t, exits[0].Signal)
}

func TestLaunch_SignalReportedOnSelfKill(t *testing.T) {
	h, sink := launchShell(t, "kill -TERM $$; sleep 5", nil)
	require.True(t, h.Wait(5*time.Second))

	exits := sink.Exits()
	require.Len(t, exits, 1)
	assert.Nil(t, exits[0].Code)
	assert.Equal(t, "SIGTERM", exits[0].Signal)
}

func TestWriteStdin_EchoesThroughCat(t *testing.T) {
	sink := &recordingSink{}
	h, err := Launch("catproc", "/bin/cat", nil, "", nil, model.SpawnConfig{Command: "/bin/cat"}, sink, nil, nil)
	require.NoError(t, err)

	require.NoError(t, h.WriteStdin([]byte("hi")))
	h.CloseStdin()
	require.True(t, h.Wait(5*time.Second))

	lines := sink.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "hi", lines[0].Data)
}

// TestWriteStdin_AlreadyFramedDataIsNotDoubleTerminated covers P4: data that
// already ends with the record separator must not get a second one appended,
// else the cat round-trip would observe two lines ("x", "") instead of one.
func TestWriteStdin_AlreadyFramedDataIsNotDoubleTerminated(t *testing.T) {
	sink := &recordingSink{}
	h, err := Launch("catproc2", "/bin/cat", nil, "", nil, model.SpawnConfig{Command: "/bin/cat"}, sink, nil, nil)
	require.NoError(t, err)

	require.NoError(t, h.WriteStdin([]byte("x\n")))
	h.CloseStdin()
	require.True(t, h.Wait(5*time.Second))

	lines := sink.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, "x", lines[0].Data)
}

func TestWriteStdin_NotRunningAfterExit(t *testing.T) {
	h, _ := launchShell(t, "exit 0", nil)
	require.True(t, h.Wait(5*time.Second))

	err := h.WriteStdin([]byte("too late"))
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestSignal_KillsProcessGroup(t *testing.T) {
	h, sink := launchShell(t, "sleep 5", nil)

	require.NoError(t, h.Signal(unix.SIGKILL))
	require.True(t, h.Wait(5*time.Second))

	exits := sink.Exits()
	require.Len(t, exits, 1)
	assert.Equal(t, "SIGKILL", exits[0].Signal)
}

func TestLaunch_OnSweptCalledWithMatchingHandle(t *testing.T) {
	var gotName string
	var gotHandle *Handle
	done := make(chan struct{})

	h, _ := launchShell(t, "exit 0", func(name string, swept *Handle) {
		gotName = name
		gotHandle = swept
		close(done)
	})

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("onSwept not called in time")
	}
	assert.Equal(t, "proc1", gotName)
	assert.Same(t, h, gotHandle)
}

func TestPID_ReturnsProcessID(t *testing.T) {
	h, _ := launchShell(t, "sleep 1", nil)
	pid := h.PID()
	require.NotNil(t, pid)
	assert.Greater(t, *pid, 0)
	require.NoError(t, h.Signal(unix.SIGKILL))
	h.Wait(5 * time.Second)
}

func TestEndsWithSeparator(t *testing.T) {
	assert.True(t, endsWithSeparator([]byte("hi\n")))
	assert.False(t, endsWithSeparator([]byte("hi")))
	assert.False(t, endsWithSeparator(nil))
}

func TestLastConfig_RoundTrips(t *testing.T) {
	sink := &recordingSink{}
	cfg := model.SpawnConfig{Command: "/bin/sh", Args: []string{"-c", "exit 0"}}
	h, err := Launch("cfgproc", "/bin/sh", []string{"-c", "exit 0"}, "", nil, cfg, sink, nil, nil)
	require.NoError(t, err)
	require.True(t, h.Wait(5*time.Second))

	got := h.LastConfig()
	assert.Equal(t, cfg.Command, got.Command)
	assert.Equal(t, cfg.Args, got.Args)
}
