package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/state"
)

func newEngine(t *testing.T) (*Engine, *state.Table) {
	t.Helper()
	dir := t.TempDir()
	table, err := state.Open(filepath.Join(dir, "state.json"))
	if err != nil {
		t.Fatalf("state.Open: %v", err)
	}
	return New(table, filepath.Join(dir, "logs"), 10, os.Environ()), table
}

func TestRunInstantFailMarksErrored(t *testing.T) {
	e, _ := newEngine(t)
	id, _ := daemonid.Qualify("test", "fail")
	res := e.Run(context.Background(), RunOptions{
		ID:        id,
		Cmd:       []string{"sh", "-c", "exit 1"},
		WaitReady: true,
	})
	if res.Outcome != OutcomeFailedWithCode {
		t.Fatalf("Outcome = %v, want OutcomeFailedWithCode", res.Outcome)
	}
	rec, ok := e.Table.Get(id)
	if !ok {
		t.Fatal("expected a persisted record")
	}
	if rec.Status != state.StatusErrored {
		t.Fatalf("Status = %v, want Errored", rec.Status)
	}
}

func TestRunSlowStartSucceedsWithReadyOutput(t *testing.T) {
	e, _ := newEngine(t)
	id, _ := daemonid.Qualify("test", "slow")
	res := e.Run(context.Background(), RunOptions{
		ID:          id,
		Cmd:         []string{"sh", "-c", "sleep 0.05; echo ready-now; sleep 5"},
		ReadyOutput: "ready-now",
		WaitReady:   true,
	})
	if res.Outcome != OutcomeReady {
		t.Fatalf("Outcome = %v, want OutcomeReady", res.Outcome)
	}
	if res.Record == nil || res.Record.Status != state.StatusRunning {
		t.Fatalf("expected a running record, got %+v", res.Record)
	}
	_ = e.Stop(id)
}

func TestStopUnknownIDReturnsNotFound(t *testing.T) {
	e, _ := newEngine(t)
	id, _ := daemonid.Qualify("test", "absent")
	if res := e.Stop(id); res != StopNotFound {
		t.Fatalf("Stop on unknown id = %v, want StopNotFound", res)
	}
}

func TestRunAlreadyRunningWithoutForce(t *testing.T) {
	e, _ := newEngine(t)
	id, _ := daemonid.Qualify("test", "longrun")
	first := e.Run(context.Background(), RunOptions{
		ID:  id,
		Cmd: []string{"sh", "-c", "sleep 5"},
	})
	if first.Outcome != OutcomeStart {
		t.Fatalf("first run Outcome = %v, want OutcomeStart", first.Outcome)
	}
	second := e.Run(context.Background(), RunOptions{
		ID:  id,
		Cmd: []string{"sh", "-c", "sleep 5"},
	})
	if second.Outcome != OutcomeAlreadyRunning {
		t.Fatalf("second run Outcome = %v, want OutcomeAlreadyRunning", second.Outcome)
	}
	_ = e.Stop(id)
	time.Sleep(50 * time.Millisecond)
}

func TestStopSupervisorIDRejected(t *testing.T) {
	e, _ := newEngine(t)
	if res := e.Stop(daemonid.Supervisor); res != StopNotFound {
		t.Fatalf("Stop(Supervisor) = %v, want StopNotFound", res)
	}
}
