// Package webui is pitchfork's thin HTTP client: a read-only JSON status
// endpoint and a per-daemon log tail, bound to the address the `web`
// command passes (--addr, default :8732). Like internal/tui, it holds no
// supervision logic of its own — the status handler round-trips through
// internal/ipc's client, the same "thin client over the socket" shape the
// CLI and TUI use, and the log handler reads the log file directly. The net/http-plus-mux server shape
// follows the standard library directly, since nothing in the pack's
// dependency set specializes in an HTTP framework beyond what net/http
// already provides for a two-endpoint read-only status server.
package webui

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/ipc"
)

// Server serves status JSON and log tails over HTTP, proxying every
// request through an IPC client plus direct reads of the log files
// internal/logwriter maintains.
type Server struct {
	Client  *ipc.Client
	LogRoot string
	Addr    string
	srv     *http.Server
}

// New constructs a Server bound to addr (for example ":8732").
func New(client *ipc.Client, logRoot, addr string) *Server {
	return &Server{Client: client, LogRoot: logRoot, Addr: addr}
}

// ListenAndServe blocks serving HTTP until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/logs/", s.handleLogs)
	s.srv = &http.Server{Addr: s.Addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()
	resp, err := s.Client.Call(ctx, ipc.Request{GetActive: &ipc.GetActiveRequest{}})
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp.ActiveDaemons)
}

// handleLogs serves the tail of a daemon's log file at /logs/<namespace>/<name>.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	rest := r.URL.Path[len("/logs/"):]
	id, err := daemonid.Parse(rest)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid daemon id %q: %v", rest, err), http.StatusBadRequest)
		return
	}
	safe := id.SafePath()
	path := filepath.Join(s.LogRoot, safe, safe+".log")
	f, err := os.Open(path)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	defer f.Close()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	const tailBytes = 64 * 1024
	if stat, err := f.Stat(); err == nil && stat.Size() > tailBytes {
		f.Seek(stat.Size()-tailBytes, 0)
	}
	buf := make([]byte, 32*1024)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			w.Write(buf[:n])
		}
		if err != nil {
			return
		}
	}
}
