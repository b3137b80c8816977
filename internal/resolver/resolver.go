// Package resolver implements the Runtime Resolver (R) and Spawn Planner (P)
// of spec.md §4.2: turning a model.SpawnConfig into a concrete executable,
// argument vector, working directory, and environment, and answering
// detect_runtimes queries.
package resolver

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/hashicorp/go-hclog"
	"golang.org/x/sys/unix"

	"github.com/averyln/procsuper/internal/model"
)

// ErrInvalidConfig is returned when a SpawnConfig names no resolvable
// runtime/command/sidecar, or is otherwise malformed.
var ErrInvalidConfig = errors.New("invalid spawn config")

// ErrRuntimeUnavailable is returned when resolution targeted a runtime or
// sidecar whose executable could not be found.
var ErrRuntimeUnavailable = errors.New("runtime unavailable")

// versionFlags is each runtime's conventional version probe argument.
var versionFlags = map[model.RuntimeTag]string{
	model.RuntimeBun:  "--version",
	model.RuntimeDeno: "--version",
	model.RuntimeNode: "--version",
}

// Plan is the concrete invocation the Spawn Planner assembles from a
// SpawnConfig: what Lifecycle Controller hands to os/exec.
type Plan struct {
	Executable string
	Args       []string
	Cwd        string
	Env        []string // inherited environment + overlay, exec.Cmd.Env shape
}

// Resolver owns the runtime-path override table (§3 "Runtime-Path
// Overrides") and resolves SpawnConfigs into Plans.
type Resolver struct {
	mu        sync.RWMutex
	overrides map[model.RuntimeTag]string

	// executablePath returns the core's own executable path, used for
	// sidecar resolution. Overridable in tests.
	executablePath func() (string, error)
	// lookPath resolves a bare runtime/sidecar name against PATH.
	lookPath func(string) (string, error)

	log hclog.Logger
}

// New creates a Resolver with no overrides set.
func New(log hclog.Logger) *Resolver {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Resolver{
		overrides:      make(map[model.RuntimeTag]string),
		executablePath: os.Executable,
		lookPath:       exec.LookPath,
		log:            log.Named("resolver"),
	}
}

// SetOverride records or clears (path == "") the override for a runtime.
func (r *Resolver) SetOverride(rt model.RuntimeTag, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if path == "" {
		delete(r.overrides, rt)
		return
	}
	r.overrides[rt] = path
}

// Overrides returns a snapshot of the current override table.
func (r *Resolver) Overrides() map[model.RuntimeTag]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[model.RuntimeTag]string, len(r.overrides))
	for k, v := range r.overrides {
		out[k] = v
	}
	return out
}

func (r *Resolver) override(rt model.RuntimeTag) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.overrides[rt]
	return p, ok
}

// Plan resolves cfg into a concrete invocation per spec.md §4.2's
// precedence: sidecar, then command, then runtime, else InvalidConfig.
func (r *Resolver) Plan(cfg model.SpawnConfig) (Plan, error) {
	var exePath string
	var err error

	switch {
	case cfg.Sidecar != "":
		exePath, err = r.resolveSidecar(cfg.Sidecar)
	case cfg.Command != "":
		exePath, err = r.resolveCommand(cfg.Command)
	case cfg.Runtime != "":
		exePath, err = r.resolveRuntime(cfg.Runtime)
	default:
		return Plan{}, fmt.Errorf("%w: none of sidecar/command/runtime set", ErrInvalidConfig)
	}
	if err != nil {
		return Plan{}, err
	}

	args := assembleArgs(cfg)
	env := mergeEnv(os.Environ(), cfg.Env)

	return Plan{
		Executable: exePath,
		Args:       args,
		Cwd:        cfg.Cwd,
		Env:        env,
	}, nil
}

// assembleArgs implements spec.md §4.2: [<script>] + <args> if script is
// set, otherwise just <args>.
func assembleArgs(cfg model.SpawnConfig) []string {
	if cfg.Script == "" {
		return append([]string(nil), cfg.Args...)
	}
	out := make([]string, 0, 1+len(cfg.Args))
	out = append(out, cfg.Script)
	out = append(out, cfg.Args...)
	return out
}

// mergeEnv overlays overrides onto base ("key=value" entries), caller wins
// on key conflict, every other inherited entry passes through unchanged.
func mergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return append([]string(nil), base...)
	}
	seen := make(map[string]bool, len(overlay))
	out := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		k, _, ok := strings.Cut(kv, "=")
		if ok {
			if v, overridden := overlay[k]; overridden {
				out = append(out, k+"="+v)
				seen[k] = true
				continue
			}
		}
		out = append(out, kv)
	}
	for k, v := range overlay {
		if !seen[k] {
			out = append(out, k+"="+v)
		}
	}
	return out
}

// resolveRuntime implements step 3 of spec.md §4.2: override first, else
// PATH lookup by the runtime's own tag.
func (r *Resolver) resolveRuntime(rt model.RuntimeTag) (string, error) {
	if p, ok := r.override(rt); ok {
		if !isExecutable(p) {
			return "", fmt.Errorf("%w: override for %q is not executable: %s", ErrRuntimeUnavailable, rt, p)
		}
		return p, nil
	}
	p, err := r.lookPath(string(rt))
	if err != nil {
		return "", fmt.Errorf("%w: %q not found on PATH: %v", ErrRuntimeUnavailable, rt, err)
	}
	return p, nil
}

// resolveSidecar implements step 1 of spec.md §4.2: a plain name and a
// triple-suffixed name, next to the core's own executable, either winning
// (see spec.md §9 Open Question).
func (r *Resolver) resolveSidecar(name string) (string, error) {
	self, err := r.executablePath()
	if err != nil {
		return "", fmt.Errorf("%w: locating own executable: %v", ErrRuntimeUnavailable, err)
	}
	dir := filepath.Dir(self)

	plain := filepath.Join(dir, name)
	triple := filepath.Join(dir, name+"-"+HostTriple())

	for _, candidate := range []string{plain, triple} {
		if isExecutable(candidate) {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("%w: sidecar %q not found as %s or %s", ErrRuntimeUnavailable, name, plain, triple)
}

// resolveCommand implements step 2 of spec.md §4.2 for a literal cfg.Command
// that isn't already a valid path: a bare name launched by a GUI-spawned
// process often can't see the PATH a login shell would have (missing
// nvm/npm global installs), so this falls back through the same chain the
// teacher's spawn() does before giving up: exec.LookPath, a login-shell
// `which`, then a short list of common install directories.
func (r *Resolver) resolveCommand(command string) (string, error) {
	if isExecutable(command) {
		return command, nil
	}

	base := filepath.Base(command)
	if p, err := r.lookPath(base); err == nil {
		return p, nil
	}

	if p, err := r.loginShellWhich(base); err == nil && p != "" {
		r.log.Debug("resolved command via login-shell which", "command", base, "path", p)
		return p, nil
	}

	for _, dir := range commonInstallDirs() {
		candidate := filepath.Join(dir, base)
		if isExecutable(candidate) {
			r.log.Debug("resolved command via common install dir", "command", base, "path", candidate)
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: command %q not found on PATH, via login shell, or in common install dirs", ErrRuntimeUnavailable, base)
}

// loginShellWhich shells out to a login bash to resolve name the way an
// interactively-configured PATH (nvm, asdf, etc.) would, for processes
// spawned by a GUI session with a minimal inherited PATH.
func (r *Resolver) loginShellWhich(name string) (string, error) {
	out, err := exec.Command("bash", "-lc", "which "+name).Output()
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// commonInstallDirs lists the fallback directories the teacher's spawn()
// checks last, for environments where none of the above apply.
func commonInstallDirs() []string {
	dirs := []string{"/usr/local/bin", "/usr/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append([]string{filepath.Join(home, ".local", "bin")}, dirs...)
	}
	return dirs
}

// isExecutable reports whether path exists and the current user may
// execute it, via the same access(2) check the corpus's other process
// supervisors (arctir-proctor, tmc-macgo) use instead of hand-rolling a
// stat+mode check.
func isExecutable(path string) bool {
	if path == "" {
		return false
	}
	if err := unix.Access(path, unix.X_OK); err != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return true
}

// HostTriple returns the build-time target triple used to suffix
// triple-specific sidecar names. Go has no single canonical triple string;
// this mirrors the common <arch>-<vendor>-<os> shape well enough to match
// how sidecars are conventionally named (e.g. "rg-x86_64-unknown-linux-gnu").
func HostTriple() string {
	arch, ok := archTriple[runtime.GOARCH]
	if !ok {
		arch = runtime.GOARCH
	}
	osName, ok := osTriple[runtime.GOOS]
	if !ok {
		osName = runtime.GOOS
	}
	return arch + osName
}

var archTriple = map[string]string{
	"amd64": "x86_64-",
	"arm64": "aarch64-",
	"386":   "i686-",
}

var osTriple = map[string]string{
	"linux":   "unknown-linux-gnu",
	"darwin":  "apple-darwin",
	"windows": "pc-windows-msvc",
}

// DetectRuntimes probes every known runtime tag and reports its
// availability, per spec.md §4.2's detect_runtimes contract. Per-runtime
// failures are non-fatal: they surface as Available=false, never as an
// error from DetectRuntimes itself.
func (r *Resolver) DetectRuntimes() []model.RuntimeInfo {
	out := make([]model.RuntimeInfo, 0, len(model.KnownRuntimes))
	for _, rt := range model.KnownRuntimes {
		out = append(out, r.detectOne(rt))
	}
	return out
}

func (r *Resolver) detectOne(rt model.RuntimeTag) model.RuntimeInfo {
	info := model.RuntimeInfo{Name: rt}

	path, ok := r.override(rt)
	if !ok {
		p, err := r.lookPath(string(rt))
		if err != nil {
			r.log.Debug("runtime not found on PATH", "runtime", rt, "error", err)
			return info
		}
		path = p
	}
	if !isExecutable(path) {
		r.log.Debug("runtime path not executable", "runtime", rt, "path", path)
		pCopy := path
		info.Path = &pCopy
		return info
	}
	pCopy := path
	info.Path = &pCopy

	flag := versionFlags[rt]
	out, err := exec.Command(path, flag).Output()
	if err != nil {
		r.log.Debug("version probe failed", "runtime", rt, "path", path, "error", err)
		return info
	}
	version := strings.TrimSpace(string(out))
	info.Version = &version
	info.Available = true
	return info
}
