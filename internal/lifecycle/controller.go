// Package lifecycle implements the Lifecycle Controller (LC) of spec.md
// §4.5: the per-process state machine (spawn -> running -> exited/killed ->
// removed), restart semantics, and the command surface of spec.md §6.
package lifecycle

import (
	"errors"
	"time"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/averyln/procsuper/internal/childproc"
	"github.com/averyln/procsuper/internal/events"
	"github.com/averyln/procsuper/internal/model"
	"github.com/averyln/procsuper/internal/registry"
	"github.com/averyln/procsuper/internal/resolver"
)

// Controller wires the registry, resolver, and event sink into the ten
// operations of spec.md §6. It holds no process-wide globals beyond these
// three collaborators (spec.md §9).
type Controller struct {
	registry *registry.Registry
	resolver *resolver.Resolver
	sink     events.Sink
	log      hclog.Logger
}

// New builds a Controller. sink receives every stdout/stderr/exit event
// emitted by any process this Controller spawns.
func New(reg *registry.Registry, res *resolver.Resolver, sink events.Sink, log hclog.Logger) *Controller {
	if sink == nil {
		sink = events.Discard
	}
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Controller{
		registry: reg,
		resolver: res,
		sink:     sink,
		log:      log.Named("lifecycle"),
	}
}

func (c *Controller) onSwept(name model.ProcessName, h *childproc.Handle) {
	c.registry.Remove(name, h)
}

// Spawn implements spec.md §4.5 spawn.
func (c *Controller) Spawn(name model.ProcessName, cfg model.SpawnConfig) (model.ProcessInfo, error) {
	if name == "" {
		return model.ProcessInfo{}, newErr(KindInvalidConfig, "spawn", name, errors.New("name must not be empty"))
	}
	if h, ok := c.registry.Get(name); ok && !h.ExitObserved() {
		return model.ProcessInfo{}, newErr(KindAlreadyExists, "spawn", name, nil)
	}

	plan, err := c.resolver.Plan(cfg)
	if err != nil {
		kind := KindInvalidConfig
		if errors.Is(err, resolver.ErrRuntimeUnavailable) {
			kind = KindRuntimeUnavailable
		}
		return model.ProcessInfo{}, newErr(kind, "spawn", name, err)
	}

	h, err := childproc.Launch(name, plan.Executable, plan.Args, plan.Cwd, plan.Env, cfg, c.sink, c.log, c.onSwept)
	if err != nil {
		return model.ProcessInfo{}, newErr(KindSpawnFailed, "spawn", name, err)
	}

	if err := c.registry.Insert(name, h); err != nil {
		// Lost a race with a concurrent spawn of the same name; the process
		// we just started must not be left orphaned (spec.md I2).
		h.CloseStdin()
		_ = h.Signal(unix.SIGKILL)
		return model.ProcessInfo{}, newErr(KindAlreadyExists, "spawn", name, nil)
	}

	return model.ProcessInfo{Name: name, PID: h.PID(), Running: true}, nil
}

// Kill implements spec.md §4.5 kill: issues a terminate signal and returns
// without waiting for the reaper. A process whose exit has already been
// observed is a no-op success.
func (c *Controller) Kill(name model.ProcessName) error {
	h, ok := c.registry.Get(name)
	if !ok {
		return newErr(KindNotFound, "kill", name, nil)
	}
	if h.ExitObserved() {
		return nil
	}
	h.CloseStdin()
	if err := h.Signal(unix.SIGTERM); err != nil {
		c.log.Warn("signal delivery failed", "name", name, "error", err)
	}
	return nil
}

// KillAll implements spec.md §4.5 kill_all: idempotent, safe on an empty
// registry, returns once every signal has been issued.
func (c *Controller) KillAll() {
	for _, h := range c.registry.Drain() {
		if h.ExitObserved() {
			continue
		}
		h.CloseStdin()
		if err := h.Signal(unix.SIGTERM); err != nil {
			c.log.Warn("signal delivery failed", "name", h.Name, "error", err)
		}
	}
}

// Restart implements spec.md §4.5 restart.
func (c *Controller) Restart(name model.ProcessName, cfg *model.SpawnConfig) (model.ProcessInfo, error) {
	existing, ok := c.registry.Get(name)
	if ok && !existing.ExitObserved() {
		existing.CloseStdin()
		if err := existing.Signal(unix.SIGTERM); err != nil {
			c.log.Warn("signal delivery failed", "name", name, "error", err)
		}
		existing.Wait(0)
	}

	var useCfg model.SpawnConfig
	switch {
	case cfg != nil:
		useCfg = *cfg
	case ok:
		useCfg = existing.LastConfig()
	default:
		return model.ProcessInfo{}, newErr(KindNotFound, "restart", name, nil)
	}

	return c.Spawn(name, useCfg)
}

// ListProcesses implements spec.md §4.5 list_processes.
func (c *Controller) ListProcesses() []model.ProcessInfo {
	return c.registry.Snapshot()
}

// GetStatus implements spec.md §4.5 get_status.
func (c *Controller) GetStatus(name model.ProcessName) (model.ProcessInfo, error) {
	h, ok := c.registry.Get(name)
	if !ok {
		return model.ProcessInfo{}, newErr(KindNotFound, "get_status", name, nil)
	}
	return model.ProcessInfo{Name: name, PID: h.PID(), Running: !h.ExitObserved()}, nil
}

// WriteStdin implements spec.md §4.5 write_stdin.
func (c *Controller) WriteStdin(name model.ProcessName, data []byte) error {
	h, ok := c.registry.Get(name)
	if !ok {
		return newErr(KindNotFound, "write_stdin", name, nil)
	}
	if err := h.WriteStdin(data); err != nil {
		kind := KindWriteFailed
		if errors.Is(err, childproc.ErrNotRunning) {
			kind = KindNotRunning
		}
		return newErr(kind, "write_stdin", name, err)
	}
	return nil
}

// SetRuntimePath delegates to the resolver's override table.
func (c *Controller) SetRuntimePath(rt model.RuntimeTag, path string) {
	c.resolver.SetOverride(rt, path)
}

// GetRuntimePaths delegates to the resolver's override table.
func (c *Controller) GetRuntimePaths() map[model.RuntimeTag]string {
	return c.resolver.Overrides()
}

// DetectRuntimes delegates to the resolver.
func (c *Controller) DetectRuntimes() []model.RuntimeInfo {
	return c.resolver.DetectRuntimes()
}

// Shutdown implements spec.md §4.5's shutdown-on-app-exit: kill_all, then
// wait briefly per child for its reaper, then give up — any handle that
// outlives the grace window is left for the OS to reap on process exit.
func (c *Controller) Shutdown(grace time.Duration) {
	c.KillAll()

	deadline := time.Now().Add(grace)
	for _, h := range c.registry.Drain() {
		exited := false
		if remaining := time.Until(deadline); remaining > 0 {
			exited = h.Wait(remaining)
		} else {
			select {
			case <-h.Done():
				exited = true
			default:
			}
		}
		if !exited {
			c.log.Warn("process did not exit within shutdown grace window", "name", h.Name)
		}
	}
}
