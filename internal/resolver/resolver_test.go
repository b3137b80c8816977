package resolver

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/averyln/procsuper/internal/model"
)

func writeFakeExecutable(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
}

func TestPlan_InvalidConfigWhenNothingSet(t *testing.T) {
	r := New(nil)
	_, err := r.Plan(model.SpawnConfig{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestPlan_CommandDirect(t *testing.T) {
	r := New(nil)
	plan, err := r.Plan(model.SpawnConfig{Command: "/bin/cat", Script: "in.txt", Args: []string{"-n"}})
	require.NoError(t, err)
	assert.Equal(t, "/bin/cat", plan.Executable)
	assert.Equal(t, []string{"in.txt", "-n"}, plan.Args)
}

func TestPlan_ArgsWithoutScript(t *testing.T) {
	r := New(nil)
	plan, err := r.Plan(model.SpawnConfig{Command: "/bin/cat", Args: []string{"-n"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"-n"}, plan.Args)
}

func TestPlan_SidecarTakesPrecedenceOverCommand(t *testing.T) {
	dir := t.TempDir()
	self := filepath.Join(dir, "host-bin")
	writeFakeExecutable(t, self, "#!/bin/sh\n")
	sidecarPath := filepath.Join(dir, "helper")
	writeFakeExecutable(t, sidecarPath, "#!/bin/sh\n")

	r := New(nil)
	r.executablePath = func() (string, error) { return self, nil }

	plan, err := r.Plan(model.SpawnConfig{Sidecar: "helper", Command: "/bin/cat"})
	require.NoError(t, err)
	assert.Equal(t, sidecarPath, plan.Executable)
}

func TestResolveSidecar_PlainNameWins(t *testing.T) {
	dir := t.TempDir()
	self := filepath.Join(dir, "host-bin")
	writeFakeExecutable(t, self, "#!/bin/sh\n")
	plain := filepath.Join(dir, "tool")
	writeFakeExecutable(t, plain, "#!/bin/sh\n")

	r := New(nil)
	r.executablePath = func() (string, error) { return self, nil }

	path, err := r.resolveSidecar("tool")
	require.NoError(t, err)
	assert.Equal(t, plain, path)
}

func TestResolveSidecar_TripleNameFallback(t *testing.T) {
	dir := t.TempDir()
	self := filepath.Join(dir, "host-bin")
	writeFakeExecutable(t, self, "#!/bin/sh\n")
	triple := filepath.Join(dir, "tool-"+HostTriple())
	writeFakeExecutable(t, triple, "#!/bin/sh\n")

	r := New(nil)
	r.executablePath = func() (string, error) { return self, nil }

	path, err := r.resolveSidecar("tool")
	require.NoError(t, err)
	assert.Equal(t, triple, path)
}

func TestResolveSidecar_NeitherNameExists(t *testing.T) {
	dir := t.TempDir()
	self := filepath.Join(dir, "host-bin")
	writeFakeExecutable(t, self, "#!/bin/sh\n")

	r := New(nil)
	r.executablePath = func() (string, error) { return self, nil }

	_, err := r.resolveSidecar("missing")
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

func TestResolveCommand_FallsBackToLookPathByBasename(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mytool")
	writeFakeExecutable(t, target, "#!/bin/sh\n")

	r := New(nil)
	r.lookPath = func(name string) (string, error) {
		if name == "mytool" {
			return target, nil
		}
		return "", errors.New("not found")
	}

	path, err := r.resolveCommand("/does/not/exist/mytool")
	require.NoError(t, err)
	assert.Equal(t, target, path)
}

func TestResolveCommand_UnavailableWhenNoFallbackResolves(t *testing.T) {
	r := New(nil)
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := r.resolveCommand("definitely-not-a-real-binary-xyz")
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

func TestResolveRuntime_OverrideWins(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "node")
	writeFakeExecutable(t, override, "#!/bin/sh\necho v99\n")

	r := New(nil)
	r.SetOverride(model.RuntimeNode, override)

	plan, err := r.Plan(model.SpawnConfig{Runtime: model.RuntimeNode})
	require.NoError(t, err)
	assert.Equal(t, override, plan.Executable)
}

func TestResolveRuntime_PathLookupFailureSurfacesAsUnavailable(t *testing.T) {
	r := New(nil)
	r.lookPath = func(string) (string, error) { return "", errors.New("not found") }

	_, err := r.Plan(model.SpawnConfig{Runtime: model.RuntimeBun})
	assert.ErrorIs(t, err, ErrRuntimeUnavailable)
}

func TestMergeEnv_CallerOverridesInherited(t *testing.T) {
	base := []string{"PATH=/usr/bin", "HOME=/root"}
	out := mergeEnv(base, map[string]string{"HOME": "/custom", "EXTRA": "1"})

	seen := map[string]string{}
	for _, kv := range out {
		k, v, _ := cutKV(kv)
		seen[k] = v
	}
	assert.Equal(t, "/usr/bin", seen["PATH"])
	assert.Equal(t, "/custom", seen["HOME"])
	assert.Equal(t, "1", seen["EXTRA"])
}

func cutKV(kv string) (string, string, bool) {
	for i := range kv {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}

func TestDetectRuntimes_OverridePrecedence(t *testing.T) {
	r := New(nil)
	r.SetOverride(model.RuntimeNode, "/nonexistent/node")

	infos := r.DetectRuntimes()
	var nodeInfo *model.RuntimeInfo
	for i := range infos {
		if infos[i].Name == model.RuntimeNode {
			nodeInfo = &infos[i]
		}
	}
	require.NotNil(t, nodeInfo)
	assert.False(t, nodeInfo.Available)
	assert.Nil(t, nodeInfo.Version)

	r.SetOverride(model.RuntimeNode, "")
	assert.Empty(t, r.Overrides())
}

func TestDetectRuntimes_AvailableWhenVersionProbeSucceeds(t *testing.T) {
	dir := t.TempDir()
	fake := filepath.Join(dir, "bun")
	writeFakeExecutable(t, fake, "#!/bin/sh\necho 1.2.3\n")

	r := New(nil)
	r.SetOverride(model.RuntimeBun, fake)

	infos := r.DetectRuntimes()
	for _, info := range infos {
		if info.Name == model.RuntimeBun {
			assert.True(t, info.Available)
			require.NotNil(t, info.Version)
			assert.Equal(t, "1.2.3", *info.Version)
		}
	}
}

func TestHostTriple_NonEmpty(t *testing.T) {
	assert.NotEmpty(t, HostTriple())
}
