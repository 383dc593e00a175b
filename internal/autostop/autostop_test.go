package autostop

import (
	"testing"
	"time"
)

func TestLeaveDirSchedulesOnlyWhenNoShellRemains(t *testing.T) {
	tr := New()
	daemons := []DaemonInfo{
		{ID: "ns/app", Dir: "/proj/app", Running: true, Autostop: true},
	}
	ids := tr.LeaveDir("/proj", daemons)
	if len(ids) != 1 || ids[0] != "ns/app" {
		t.Fatalf("LeaveDir = %v, want [ns/app]", ids)
	}
}

func TestLeaveDirSkipsWhenShellStillInSubtree(t *testing.T) {
	tr := New()
	tr.UpdateShellDir(111, "/proj/app/sub", nil)
	daemons := []DaemonInfo{
		{ID: "ns/app", Dir: "/proj/app", Running: true, Autostop: true},
	}
	ids := tr.LeaveDir("/proj", daemons)
	if len(ids) != 0 {
		t.Fatalf("LeaveDir = %v, want none (shell still present)", ids)
	}
}

func TestScheduleIsIdempotent(t *testing.T) {
	tr := New()
	first := time.Now()
	tr.Schedule("ns/app", first)
	tr.Schedule("ns/app", first.Add(time.Hour))
	due := tr.Drain(first.Add(2 * time.Hour))
	if len(due) != 1 {
		t.Fatalf("Drain = %v, want exactly one entry (no duplicate schedule)", due)
	}
}

func TestDrainOnlyReturnsDueEntries(t *testing.T) {
	tr := New()
	now := time.Now()
	tr.Schedule("ns/soon", now)
	tr.Schedule("ns/later", now.Add(time.Hour))
	due := tr.Drain(now.Add(time.Minute))
	if len(due) != 1 || due[0] != "ns/soon" {
		t.Fatalf("Drain = %v, want [ns/soon]", due)
	}
}

func TestUpdateShellDirCancelsOverlappingPending(t *testing.T) {
	tr := New()
	tr.Schedule("ns/app", time.Now().Add(time.Minute))
	daemons := []DaemonInfo{{ID: "ns/app", Dir: "/proj/app"}}
	tr.UpdateShellDir(222, "/proj/app/sub", daemons)
	due := tr.Drain(time.Now().Add(time.Hour))
	if len(due) != 0 {
		t.Fatalf("Drain = %v, want none (re-entry should have cancelled it)", due)
	}
}
