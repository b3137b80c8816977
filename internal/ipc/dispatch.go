package ipc

import (
	"encoding/json"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/averyln/procsuper/internal/events"
	"github.com/averyln/procsuper/internal/lifecycle"
	"github.com/averyln/procsuper/internal/model"
)

// dispatcher binds one connection to the shared Controller and Broker.
type dispatcher struct {
	ctrl   *lifecycle.Controller
	broker *Broker
	log    hclog.Logger
}

func (d *dispatcher) handle(conn net.Conn, raw []byte) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		writeErr(conn, "parse error: "+err.Error())
		return
	}

	d.log.Debug("dispatching command", "method", req.Method)

	switch req.Method {
	case "spawn":
		d.handleSpawn(conn, req)
	case "kill":
		d.handleKill(conn, req)
	case "kill_all":
		d.ctrl.KillAll()
		writeResult(conn, nil)
	case "restart":
		d.handleRestart(conn, req)
	case "list_processes":
		writeResult(conn, d.ctrl.ListProcesses())
	case "get_status":
		d.handleGetStatus(conn, req)
	case "write_stdin":
		d.handleWriteStdin(conn, req)
	case "detect_runtimes":
		writeResult(conn, d.ctrl.DetectRuntimes())
	case "set_runtime_path":
		d.handleSetRuntimePath(conn, req)
	case "get_runtime_paths":
		writeResult(conn, d.ctrl.GetRuntimePaths())
	case "subscribe_events":
		d.handleSubscribeEvents(conn)
	default:
		writeErr(conn, "method not found: "+req.Method)
	}
}

type spawnParams struct {
	Name   string              `json:"name"`
	Config spawnConfigTransfer `json:"config"`
}

type spawnConfigTransfer struct {
	Runtime string            `json:"runtime"`
	Command string            `json:"command"`
	Sidecar string            `json:"sidecar"`
	Script  string            `json:"script"`
	Args    []string          `json:"args"`
	Cwd     string            `json:"cwd"`
	Env     map[string]string `json:"env"`
}

func (t spawnConfigTransfer) toModel() model.SpawnConfig {
	return model.SpawnConfig{
		Runtime: model.RuntimeTag(t.Runtime),
		Command: t.Command,
		Sidecar: t.Sidecar,
		Script:  t.Script,
		Args:    t.Args,
		Cwd:     t.Cwd,
		Env:     t.Env,
	}
}

func (d *dispatcher) handleSpawn(conn net.Conn, req Request) {
	var p spawnParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	info, err := d.ctrl.Spawn(p.Name, p.Config.toModel())
	if err != nil {
		writeErr(conn, err.Error())
		return
	}
	writeResult(conn, info)
}

type nameParams struct {
	Name string `json:"name"`
}

func (d *dispatcher) handleKill(conn net.Conn, req Request) {
	var p nameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	if err := d.ctrl.Kill(p.Name); err != nil {
		writeErr(conn, err.Error())
		return
	}
	writeResult(conn, nil)
}

type restartParams struct {
	Name   string               `json:"name"`
	Config *spawnConfigTransfer `json:"config,omitempty"`
}

func (d *dispatcher) handleRestart(conn net.Conn, req Request) {
	var p restartParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	var cfg *model.SpawnConfig
	if p.Config != nil {
		c := p.Config.toModel()
		cfg = &c
	}
	info, err := d.ctrl.Restart(p.Name, cfg)
	if err != nil {
		writeErr(conn, err.Error())
		return
	}
	writeResult(conn, info)
}

func (d *dispatcher) handleGetStatus(conn net.Conn, req Request) {
	var p nameParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	info, err := d.ctrl.GetStatus(p.Name)
	if err != nil {
		writeErr(conn, err.Error())
		return
	}
	writeResult(conn, info)
}

type writeStdinParams struct {
	Name string `json:"name"`
	Data string `json:"data"`
}

func (d *dispatcher) handleWriteStdin(conn net.Conn, req Request) {
	var p writeStdinParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	if err := d.ctrl.WriteStdin(p.Name, []byte(p.Data)); err != nil {
		writeErr(conn, err.Error())
		return
	}
	writeResult(conn, nil)
}

type setRuntimePathParams struct {
	Runtime string `json:"runtime"`
	Path    string `json:"path"`
}

func (d *dispatcher) handleSetRuntimePath(conn net.Conn, req Request) {
	var p setRuntimePathParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		writeErr(conn, "invalid params: "+err.Error())
		return
	}
	d.ctrl.SetRuntimePath(model.RuntimeTag(p.Runtime), p.Path)
	writeResult(conn, nil)
}

// handleSubscribeEvents mirrors the teacher's handleSubscribeEvents: ack,
// then push every event as an unprompted frame until the connection drops,
// detected by its own ReadMessage loop failing.
func (d *dispatcher) handleSubscribeEvents(conn net.Conn) {
	id := uuid.New()
	var writeMu sync.Mutex

	unsubscribe := d.broker.Subscribe(id, func(topic events.Topic, payload any) {
		writeMu.Lock()
		defer writeMu.Unlock()
		data, err := json.Marshal(payload)
		if err != nil {
			d.log.Error("marshaling event payload", "error", err)
			return
		}
		if err := writeEvent(conn, string(topic), json.RawMessage(data)); err != nil {
			d.log.Debug("event write failed", "subscriber", id, "error", err)
		}
	})
	defer unsubscribe()

	writeResult(conn, map[string]bool{"subscribed": true})

	for {
		if _, err := ReadMessage(conn); err != nil {
			return
		}
	}
}

// errKind extracts the lifecycle.Kind of err, if any, for transports that
// want to branch on it rather than pattern-match the rendered string.
func errKind(err error) (lifecycle.Kind, bool) {
	var lerr *lifecycle.Error
	if errors.As(err, &lerr) {
		return lerr.Kind, true
	}
	return "", false
}
