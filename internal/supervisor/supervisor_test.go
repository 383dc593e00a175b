package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.jdx.dev/pitchfork/internal/autostop"
	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/depgraph"
	"go.jdx.dev/pitchfork/internal/filewatch"
	"go.jdx.dev/pitchfork/internal/lifecycle"
	"go.jdx.dev/pitchfork/internal/scheduler"
	"go.jdx.dev/pitchfork/internal/state"
)

// newTestEngine wires a lifecycle.Engine over a fresh on-disk state table,
// the same collaborator Bootstrap constructs, so these cases exercise the
// real spawn/monitor/readiness path against actual sh -c children rather
// than a mock.
func newTestEngine(t *testing.T) (*lifecycle.Engine, *state.Table) {
	t.Helper()
	dir := t.TempDir()
	table, err := state.Open(filepath.Join(dir, "state.json"))
	require.NoError(t, err)
	engine := lifecycle.New(table, filepath.Join(dir, "logs"), 0, os.Environ())
	return engine, table
}

func mustID(t *testing.T, s string) daemonid.ID {
	t.Helper()
	id, err := daemonid.Parse(s)
	require.NoError(t, err)
	return id
}

// Scenario 1: instant-fail. spec.md §8.1.
func TestScenarioInstantFail(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := mustID(t, "test/instant-fail")

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	start := time.Now()
	res := engine.Run(ctx, lifecycle.RunOptions{
		ID:         id,
		Cmd:        []string{"sh", "-c", "exit 1"},
		Retry:      0,
		WaitReady:  true,
		ReadyDelay: 3 * time.Second,
	})
	elapsed := time.Since(start)

	require.Equal(t, lifecycle.OutcomeFailedWithCode, res.Outcome)
	require.NotNil(t, res.ExitCode)
	assert.Equal(t, 1, *res.ExitCode)
	assert.Less(t, elapsed, 3*time.Second)

	rec, ok := engine.Table.Get(id)
	require.True(t, ok)
	assert.Equal(t, state.StatusErrored, rec.Status)
}

// Scenario 2: slow-start, succeed, then stop. spec.md §8.2.
func TestScenarioSlowStartSucceedThenStop(t *testing.T) {
	engine, _ := newTestEngine(t)
	id := mustID(t, "test/slow-start")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	start := time.Now()
	res := engine.Run(ctx, lifecycle.RunOptions{
		ID:         id,
		Cmd:        []string{"sh", "-c", "sleep 4; exec sleep 60"},
		WaitReady:  true,
		ReadyDelay: 3 * time.Second,
	})
	elapsed := time.Since(start)

	require.Equal(t, lifecycle.OutcomeReady, res.Outcome)
	assert.GreaterOrEqual(t, elapsed, 3*time.Second)

	rec, ok := engine.Table.Get(id)
	require.True(t, ok)
	assert.Equal(t, state.StatusRunning, rec.Status)

	require.Equal(t, lifecycle.StopOK, engine.Stop(id))

	rec, ok = engine.Table.Get(id)
	require.True(t, ok)
	assert.Equal(t, state.StatusStopped, rec.Status)
	assert.Zero(t, rec.PID)
	assert.True(t, rec.LastExitSuccess, "Stopping branch must force last_exit_success on explicit stop")
}

// Scenario 3: dependency diamond. spec.md §8.3.
func TestScenarioDependencyDiamond(t *testing.T) {
	depends := map[string][]string{
		"test/db":   nil,
		"test/auth": {"test/db"},
		"test/data": {"test/db"},
		"test/api":  {"test/auth", "test/data"},
	}
	lookup, configured := depgraph.FromConfigMap(depends)
	levels, err := depgraph.Resolve([]string{"test/api"}, configured, lookup)
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"test/db"}, {"test/auth", "test/data"}, {"test/api"}}, levels)

	engine, _ := newTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for _, level := range levels {
		for _, idStr := range level {
			res := engine.Run(ctx, lifecycle.RunOptions{
				ID:        mustID(t, idStr),
				Cmd:       []string{"sh", "-c", "exec sleep 60"},
				WaitReady: true,
			})
			assert.Contains(t, []lifecycle.Outcome{lifecycle.OutcomeReady, lifecycle.OutcomeStart}, res.Outcome, "daemon %s", idStr)
		}
	}
	for _, idStr := range []string{"test/db", "test/auth", "test/data", "test/api"} {
		rec, ok := engine.Table.Get(mustID(t, idStr))
		require.True(t, ok)
		assert.Equal(t, state.StatusRunning, rec.Status, "daemon %s", idStr)
	}

	for _, level := range depgraph.ReverseLevels(levels) {
		for _, idStr := range level {
			engine.Stop(mustID(t, idStr))
		}
	}
}

// Scenario 4: circular dependency. spec.md §8.4.
func TestScenarioCircularDependency(t *testing.T) {
	depends := map[string][]string{
		"test/a": {"test/c"},
		"test/b": {"test/a"},
		"test/c": {"test/b"},
	}
	lookup, configured := depgraph.FromConfigMap(depends)
	_, err := depgraph.Resolve([]string{"test/a"}, configured, lookup)
	require.Error(t, err)
	assert.IsType(t, &depgraph.ErrCircularDependency{}, err)
}

// Scenario 5: autostop with delay. spec.md §8.5. UpdateShellDir only
// reports which daemons are *eligible* to stop (no tracked shell left in
// their subtree); the caller (internal/supervisor's dispatchUpdateShellDir)
// schedules the actual stop at now+autostop_delay, and only a later Drain
// call fires it, mirroring the real dispatch path after its autostop-delay
// fix.
func TestScenarioAutostopWithDelay(t *testing.T) {
	const delay = 5 * time.Second
	tracker := autostop.New()
	daemons := []autostop.DaemonInfo{
		{ID: "test/web", Dir: "/proj/p", Running: true, Autostop: true},
	}

	// shell S starts inside P.
	tracker.UpdateShellDir(100, "/proj/p", daemons)

	// S moves to Q, outside P: eligible now, scheduled for now+delay.
	eligible := tracker.UpdateShellDir(100, "/other/q", daemons)
	require.Equal(t, []string{"test/web"}, eligible)
	scheduledAt := time.Now()
	for _, id := range eligible {
		tracker.Schedule(id, scheduledAt.Add(delay))
	}

	assert.Empty(t, tracker.Drain(scheduledAt.Add(4*time.Second)), "not yet due at t+4s")
	assert.Equal(t, []string{"test/web"}, tracker.Drain(scheduledAt.Add(6*time.Second)), "due at t+6s")
}

// Scenario 5, variant: shell returns to the original directory before the
// autostop delay elapses, which must cancel the pending entry.
func TestScenarioAutostopCancelledOnReturn(t *testing.T) {
	const delay = 5 * time.Second
	tracker := autostop.New()
	daemons := []autostop.DaemonInfo{
		{ID: "test/web", Dir: "/proj/p", Running: true, Autostop: true},
	}

	tracker.UpdateShellDir(100, "/proj/p", daemons)
	eligible := tracker.UpdateShellDir(100, "/other/q", daemons)
	scheduledAt := time.Now()
	for _, id := range eligible {
		tracker.Schedule(id, scheduledAt.Add(delay))
	}

	// At t+2s, shell returns to P: re-entry cancels the pending entry.
	tracker.UpdateShellDir(100, "/proj/p", daemons)

	assert.Empty(t, tracker.Drain(scheduledAt.Add(6*time.Second)), "cancelled by re-entry")
}

// Scenario 6: file-watch restart. spec.md §8.6. Drives the real scheduler
// over a real fsnotify watcher and real sh -c children: touching the
// watched daemon's marker file must respawn it (new PID) within the
// debounce window plus one tick, while an unwatched daemon's PID is
// unaffected by the same touch.
func TestScenarioFileWatchRestart(t *testing.T) {
	engine, table := newTestEngine(t)
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker.txt")
	require.NoError(t, os.WriteFile(marker, []byte("v1"), 0o644))

	watchedID := mustID(t, "test/watched")
	plainID := mustID(t, "test/plain")

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res := engine.Run(ctx, lifecycle.RunOptions{
		ID: watchedID, Cmd: []string{"sh", "-c", "exec sleep 60"}, Dir: dir, Watch: []string{"marker.txt"},
	})
	require.Contains(t, []lifecycle.Outcome{lifecycle.OutcomeReady, lifecycle.OutcomeStart}, res.Outcome)
	res = engine.Run(ctx, lifecycle.RunOptions{
		ID: plainID, Cmd: []string{"sh", "-c", "exec sleep 60"}, Dir: dir,
	})
	require.Contains(t, []lifecycle.Outcome{lifecycle.OutcomeReady, lifecycle.OutcomeStart}, res.Outcome)

	watchedBefore, _ := table.Get(watchedID)
	plainBefore, _ := table.Get(plainID)

	lookup := func(id string) (config.Daemon, bool) { return config.Daemon{}, false }
	sched := scheduler.New(table, engine, autostop.New(), lookup, os.Environ(), time.Hour, time.Hour)
	sched.Start(ctx)
	defer sched.Close()

	require.NoError(t, sched.StartFileWatch([]filewatch.Matcher{
		{ID: "test/watched", BaseDir: dir, Patterns: []string{"marker.txt"}},
	}))

	require.NoError(t, os.WriteFile(marker, []byte("v2"), 0o644))

	deadline := time.Now().Add(5 * time.Second)
	var watchedAfter *state.Daemon
	for time.Now().Before(deadline) {
		time.Sleep(200 * time.Millisecond)
		watchedAfter, _ = table.Get(watchedID)
		if watchedAfter.PID != 0 && watchedAfter.PID != watchedBefore.PID {
			break
		}
	}
	require.NotNil(t, watchedAfter)
	assert.NotEqual(t, watchedBefore.PID, watchedAfter.PID, "watched daemon must respawn after marker touch")

	plainAfter, _ := table.Get(plainID)
	assert.Equal(t, plainBefore.PID, plainAfter.PID, "unwatched daemon must not respawn")

	engine.Stop(watchedID)
	engine.Stop(plainID)
}
