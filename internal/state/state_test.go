package state

import (
	"path/filepath"
	"testing"

	"go.jdx.dev/pitchfork/internal/daemonid"
)

func mustID(t *testing.T, s string) daemonid.ID {
	t.Helper()
	id, err := daemonid.Parse(s)
	if err != nil {
		t.Fatalf("Parse(%q): %v", s, err)
	}
	return id
}

func TestUpsertPersistsAndReloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := mustID(t, "web/api")
	if _, err := tbl.Upsert(id, func(d *Daemon) {
		d.Status = StatusRunning
		d.PID = 4242
	}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	d, ok := reloaded.Get(id)
	if !ok {
		t.Fatal("record missing after reload")
	}
	if d.Status != StatusRunning || d.PID != 4242 {
		t.Errorf("got %+v", d)
	}
}

func TestLegacyMigrationOnRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")

	tbl, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	// Simulate a pre-qualification record by writing directly.
	tbl.mu.Lock()
	tbl.file.Daemons["redis"] = &Daemon{ID: "redis", Status: StatusStopped}
	if err := tbl.persistLocked(); err != nil {
		tbl.mu.Unlock()
		t.Fatalf("persist: %v", err)
	}
	tbl.mu.Unlock()

	reloaded, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	id := mustID(t, "legacy/redis")
	if _, ok := reloaded.Get(id); !ok {
		t.Fatal("legacy record was not migrated into the legacy namespace")
	}
}

func TestEnableIdempotence(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	id := mustID(t, "web/api")

	changed, err := tbl.SetDisabled(id, false)
	if err != nil {
		t.Fatalf("SetDisabled: %v", err)
	}
	if changed {
		t.Fatal("first enable of an already-enabled daemon reported a change")
	}

	if _, err := tbl.SetDisabled(id, true); err != nil {
		t.Fatalf("SetDisabled(true): %v", err)
	}
	changed, err = tbl.SetDisabled(id, false)
	if err != nil {
		t.Fatalf("SetDisabled(false): %v", err)
	}
	if !changed {
		t.Fatal("enabling a disabled daemon should report a change")
	}
	changed, err = tbl.SetDisabled(id, false)
	if err != nil {
		t.Fatalf("second SetDisabled(false): %v", err)
	}
	if changed {
		t.Fatal("enabling an already-enabled daemon should be a no-op the second time")
	}
}

func TestCleanRemovesOnlyStoppedRecords(t *testing.T) {
	tbl, err := Open(filepath.Join(t.TempDir(), "state.json"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	running := mustID(t, "web/api")
	stopped := mustID(t, "web/worker")
	if _, err := tbl.Upsert(running, func(d *Daemon) { d.PID = 1; d.Status = StatusRunning }); err != nil {
		t.Fatal(err)
	}
	if _, err := tbl.Upsert(stopped, func(d *Daemon) { d.Status = StatusStopped }); err != nil {
		t.Fatal(err)
	}

	removed, err := tbl.Clean()
	if err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if len(removed) != 1 || removed[0] != stopped.Qualified() {
		t.Errorf("Clean removed %v, want only %s", removed, stopped.Qualified())
	}
	if _, ok := tbl.Get(running); !ok {
		t.Error("Clean removed a running daemon's record")
	}
}

func TestRetriesRemainingSaturatesAtInfinite(t *testing.T) {
	d := &Daemon{Retry: RetryInfinite, RetryCount: RetryInfinite}
	if !d.RetriesRemaining() {
		t.Fatal("infinite retry budget should always have retries remaining")
	}
	d2 := &Daemon{Retry: 3, RetryCount: 3}
	if d2.RetriesRemaining() {
		t.Fatal("retry_count == retry should have no retries remaining")
	}
}
