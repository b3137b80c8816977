package ipc

import (
	"net"
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"

	"github.com/averyln/procsuper/internal/lifecycle"
)

// Server listens on a Unix domain socket and dispatches every accepted
// connection's frames to a shared lifecycle.Controller, grounded on the
// teacher's pipe.Server (same accept-loop/per-connection-goroutine shape).
type Server struct {
	socketPath string
	ctrl       *lifecycle.Controller
	broker     *Broker
	log        hclog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
}

// NewServer creates a Server bound to socketPath once Start is called.
func NewServer(socketPath string, ctrl *lifecycle.Controller, broker *Broker, log hclog.Logger) *Server {
	if log == nil {
		log = hclog.NewNullLogger()
	}
	return &Server{
		socketPath: socketPath,
		ctrl:       ctrl,
		broker:     broker,
		log:        log.Named("ipc"),
		quit:       make(chan struct{}),
	}
}

// Start begins listening, removing any stale socket file left behind by a
// prior, uncleanly-terminated run.
func (s *Server) Start() error {
	if err := os.Remove(s.socketPath); err != nil && !os.IsNotExist(err) {
		return err
	}
	listener, err := net.Listen("unix", s.socketPath)
	if err != nil {
		return err
	}
	s.listener = listener

	if err := os.Chmod(s.socketPath, 0700); err != nil {
		listener.Close()
		return err
	}

	s.wg.Add(1)
	go s.acceptLoop()
	return nil
}

// Stop gracefully shuts the listener down and waits for every connection
// handler to return.
func (s *Server) Stop() {
	close(s.quit)
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
	os.Remove(s.socketPath)
}

func (s *Server) acceptLoop() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.quit:
				return
			default:
				s.log.Error("accept failed", "error", err)
				continue
			}
		}
		s.wg.Add(1)
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	d := &dispatcher{ctrl: s.ctrl, broker: s.broker, log: s.log}

	for {
		select {
		case <-s.quit:
			return
		default:
		}

		payload, err := ReadMessage(conn)
		if err != nil {
			s.log.Debug("client disconnected", "error", err)
			return
		}
		d.handle(conn, payload)
	}
}
