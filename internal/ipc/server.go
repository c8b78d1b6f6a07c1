package ipc

import (
	"bufio"
	"encoding/json"
	"net"
	"os"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/audiowrench/wrenchd/internal/control"
)

// Player is the controller surface the socket exposes.
type Player interface {
	Snapshot() control.Snapshot
	Advance()
	TogglePause()
	SetVolume(v int)
	ToggleFavorite()
	LoadPlaylistFile(path string) error
	ExportFavorites(path string) error
	TrashCurrent()
}

// Server accepts control connections on a unix socket. One request per
// line, one response per request.
type Server struct {
	player Player
	save   func() error
	bands  func() []uint8

	socket string
	ln     net.Listener
	wg     sync.WaitGroup
}

// NewServer binds the socket and starts accepting connections. A stale
// socket file from a previous run is removed first.
func NewServer(socket string, player Player, save func() error, bands func() []uint8) (*Server, error) {
	_ = os.Remove(socket)
	ln, err := net.Listen("unix", socket)
	if err != nil {
		return nil, errors.Wrapf(err, "listen on %q", socket)
	}

	s := &Server{
		player: player,
		save:   save,
		bands:  bands,
		socket: socket,
		ln:     ln,
	}
	s.wg.Add(1)
	go s.accept()
	zlog.Info().Msgf("ipc: listening on %q", socket)
	return s, nil
}

func (s *Server) accept() {
	defer s.wg.Done()
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Closed listener is the shutdown path.
			return
		}
		s.wg.Add(1)
		go s.serve(conn)
	}
}

func (s *Server) serve(conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	scanner := bufio.NewScanner(conn)
	enc := json.NewEncoder(conn)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(line, &req); err != nil {
			resp = Response{Error: "malformed request: " + err.Error()}
		} else {
			resp = s.handle(req)
		}
		if err := enc.Encode(resp); err != nil {
			zlog.Debug().Msgf("ipc: write response: %v", err)
			return
		}
	}
}

func (s *Server) handle(req Request) Response {
	switch req.Command {
	case "status":
		return Response{OK: true, Data: statusData(s.player.Snapshot())}
	case "next":
		s.player.Advance()
		return Response{OK: true}
	case "pause":
		s.player.TogglePause()
		return Response{OK: true}
	case "volume":
		if req.Volume == nil {
			return Response{Error: "volume command needs a volume"}
		}
		s.player.SetVolume(*req.Volume)
		return Response{OK: true}
	case "load":
		if req.Path == "" {
			return Response{Error: "load command needs a path"}
		}
		if err := s.player.LoadPlaylistFile(req.Path); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case "favorite":
		s.player.ToggleFavorite()
		return Response{OK: true}
	case "export":
		if req.Path == "" {
			return Response{Error: "export command needs a path"}
		}
		if err := s.player.ExportFavorites(req.Path); err != nil {
			return Response{Error: err.Error()}
		}
		return Response{OK: true}
	case "trash":
		s.player.TrashCurrent()
		return Response{OK: true}
	case "save":
		if s.save != nil {
			if err := s.save(); err != nil {
				return Response{Error: err.Error()}
			}
		}
		return Response{OK: true}
	case "bands":
		if s.bands == nil {
			return Response{Error: "analyzer not available"}
		}
		return Response{OK: true, Data: s.bands()}
	default:
		return Response{Error: "unknown command: " + req.Command}
	}
}

// Close stops the listener, waits for in-flight connections and removes
// the socket file.
func (s *Server) Close() error {
	err := s.ln.Close()
	s.wg.Wait()
	_ = os.Remove(s.socket)
	return err
}
