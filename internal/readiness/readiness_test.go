package readiness

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scannerOf(s string) *bufio.Scanner {
	return bufio.NewScanner(strings.NewReader(s))
}

func TestRaceNoProbesNoWaitReadyStartsImmediately(t *testing.T) {
	a := New(Probes{})
	res := a.Race(context.Background(), nil, nil, nil, nil)
	if res.Outcome != Start {
		t.Fatalf("Outcome = %v, want Start", res.Outcome)
	}
}

func TestRaceOutputRegexWins(t *testing.T) {
	a := New(Probes{OutputRegex: `listening on port \d+`})
	exited := make(chan ExitInfo)
	res := a.Race(context.Background(), scannerOf("booting\nlistening on port 8080\nmore\n"), nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
}

func TestRaceHTTPProbe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(200)
	}))
	defer srv.Close()

	a := New(Probes{HTTPURL: srv.URL})
	exited := make(chan ExitInfo)
	res := a.Race(context.Background(), nil, nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
}

func TestRaceTCPProbe(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	port := uint16(ln.Addr().(*net.TCPAddr).Port)

	a := New(Probes{TCPPort: port})
	exited := make(chan ExitInfo)
	res := a.Race(context.Background(), nil, nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
}

func TestRaceEarlyExitSuccessCountsAsReady(t *testing.T) {
	a := New(Probes{WaitReady: true})
	exited := make(chan ExitInfo, 1)
	exited <- ExitInfo{Success: true}
	res := a.Race(context.Background(), nil, nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
}

func TestRaceExitFailureBeforeReadyFails(t *testing.T) {
	a := New(Probes{OutputRegex: "never matches this"})
	exited := make(chan ExitInfo, 1)
	code := 1
	exited <- ExitInfo{Success: false, ExitCode: &code}
	res := a.Race(context.Background(), scannerOf("nothing relevant\n"), nil, exited, nil)
	if res.Outcome != Failed {
		t.Fatalf("Outcome = %v, want Failed", res.Outcome)
	}
	if res.ExitCode == nil || *res.ExitCode != 1 {
		t.Fatalf("ExitCode = %v, want 1", res.ExitCode)
	}
}

func TestRaceDelayAloneIsFallbackOnly(t *testing.T) {
	a := New(Probes{Delay: 10 * time.Millisecond})
	exited := make(chan ExitInfo)
	start := time.Now()
	res := a.Race(context.Background(), nil, nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Fatalf("delay probe resolved too fast")
	}
}

func TestRaceDelayIgnoredWhenExplicitProbePresent(t *testing.T) {
	a := New(Probes{Delay: time.Hour, OutputRegex: "ready"})
	exited := make(chan ExitInfo)
	res := a.Race(context.Background(), scannerOf("ready\n"), nil, exited, nil)
	if res.Outcome != Ready {
		t.Fatalf("Outcome = %v, want Ready", res.Outcome)
	}
}
