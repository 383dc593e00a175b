// Server accepts connections on a local Unix-domain socket, framed per
// framing.go, hands each decoded request to a Dispatcher, and sends the
// responses through a per-connection bounded channel, matching the teacher's accept-loop-plus-
// per-connection-goroutine shape used for its own socket-based components,
// generalized to the framed request/response protocol spec.md §4.7
// describes.
package ipc

import (
	"bufio"
	"context"
	"log"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
)

// Dispatcher handles one decoded request and returns the single response to
// send back. Implementations must not block indefinitely: slow handlers
// stall only their own connection (bounded capacity-1 channels), never the
// accept loop.
type Dispatcher interface {
	Dispatch(ctx context.Context, req Request) Response
}

// Server owns the listener and the accept loop.
type Server struct {
	SocketPath string
	Codec      Codec
	Dispatcher Dispatcher

	mu       sync.Mutex
	listener net.Listener
	wg       sync.WaitGroup
	closing  bool
}

// Listen removes any stale socket file, tightens the umask around listener
// creation so the socket is born 0600 with no TOCTOU window, and starts
// accepting. Callers should run Serve in a goroutine.
func (s *Server) Listen() error {
	if err := os.MkdirAll(filepath.Dir(s.SocketPath), 0o755); err != nil {
		return err
	}
	_ = os.Remove(s.SocketPath)

	restore := tightenUmask()
	ln, err := net.Listen("unix", s.SocketPath)
	restore()
	if err != nil {
		return err
	}
	s.listener = ln
	return nil
}

// Serve runs the accept loop until the listener is closed.
func (s *Server) Serve(ctx context.Context) {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			s.mu.Lock()
			closing := s.closing
			s.mu.Unlock()
			if closing {
				return
			}
			log.Printf("pitchfork: ipc accept error: %v", err)
			return
		}
		s.wg.Add(1)
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting, removes the socket file, and waits for outstanding
// connections to drain.
func (s *Server) Close() error {
	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	var err error
	if s.listener != nil {
		err = s.listener.Close()
	}
	_ = os.Remove(s.SocketPath)
	s.wg.Wait()
	return err
}

func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer s.wg.Done()
	defer conn.Close()

	connID := uuid.New().String()
	reader := bufio.NewReader(conn)

	// Bounded capacity-1 channel: a slow client stalls only this
	// connection's handler, never the global dispatcher or accept loop.
	outgoing := make(chan Response, 1)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for resp := range outgoing {
			if err := s.Codec.WriteFrame(conn, resp); err != nil {
				log.Printf("pitchfork: ipc[%s] write error: %v", connID, err)
				return
			}
		}
	}()

	for {
		var req Request
		if err := s.Codec.ReadFrame(reader, &req); err != nil {
			break
		}
		resp := s.Dispatcher.Dispatch(ctx, req)
		outgoing <- resp
	}
	close(outgoing)
	<-done
}
