// Package scheduler drives the four background tasks spec.md §4.3
// describes: the refresh (interval) tick, the cron tick, the file-watch
// debounce tick, and the retry driver that rides the refresh tick. Each
// runs as its own goroutine on a time.Ticker, following the teacher's own
// fixed-interval heartbeat style (internal/daemon/daemon.go's
// recoveryHeartbeatInterval timer loop), generalized from one recovery
// heartbeat to the spec's four independent cadences.
package scheduler

import (
	"context"
	"log"
	"time"

	"go.jdx.dev/pitchfork/internal/autostop"
	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/cronexpr"
	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/filewatch"
	"go.jdx.dev/pitchfork/internal/lifecycle"
	"go.jdx.dev/pitchfork/internal/procutil"
	"go.jdx.dev/pitchfork/internal/state"
)

// ConfigLookup resolves a qualified id's live config entry, returning false
// if the daemon is ad-hoc (no config.Daemon backing it).
type ConfigLookup func(id string) (config.Daemon, bool)

// Scheduler owns the four background tasks and their shared collaborators.
type Scheduler struct {
	Table       *state.Table
	Engine      *lifecycle.Engine
	Autostop    *autostop.Tracker
	LookupConfig ConfigLookup
	OriginalEnv []string

	RefreshInterval time.Duration
	CronInterval    time.Duration

	cronSchedules map[string]*cronexpr.Schedule
	watcher       *filewatch.Debouncer
	matchers      []filewatch.Matcher
}

// New constructs a Scheduler; Start must be called to actually run the
// background tasks.
func New(table *state.Table, engine *lifecycle.Engine, tracker *autostop.Tracker, lookup ConfigLookup, originalEnv []string, refreshInterval, cronInterval time.Duration) *Scheduler {
	return &Scheduler{
		Table:           table,
		Engine:          engine,
		Autostop:        tracker,
		LookupConfig:    lookup,
		OriginalEnv:     originalEnv,
		RefreshInterval: refreshInterval,
		CronInterval:    cronInterval,
		cronSchedules:   make(map[string]*cronexpr.Schedule),
	}
}

// Start launches the refresh and cron tick goroutines; it returns
// immediately. Callers should arrange for ctx cancellation at shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	go s.refreshLoop(ctx)
	go s.cronLoop(ctx)
}

// StartFileWatch wires a shared fsnotify debouncer over the given matchers,
// one per watch-enabled daemon. Separate from Start because it requires
// the daemon set to be known (config resolved) before directories can be
// expanded.
func (s *Scheduler) StartFileWatch(matchers []filewatch.Matcher) error {
	s.matchers = matchers
	d, err := filewatch.NewDebouncer(s.onFileBatch)
	if err != nil {
		return err
	}
	s.watcher = d
	for _, m := range matchers {
		dirs, err := filewatch.Dirs(m.BaseDir, m.Patterns)
		if err != nil {
			continue
		}
		for _, dir := range dirs {
			if err := d.Watch(dir); err != nil {
				log.Printf("pitchfork: watch %s: %v", dir, err)
			}
		}
	}
	return nil
}

// Close tears down the file watcher, if any.
func (s *Scheduler) Close() error {
	if s.watcher != nil {
		return s.watcher.Close()
	}
	return nil
}

func (s *Scheduler) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.RefreshInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshTick(ctx)
		}
	}
}

// refreshTick reconciles shell PIDs, drains the autostop queue, and drives
// retries, per spec.md §4.3's "Interval tick (refresh)".
func (s *Scheduler) refreshTick(ctx context.Context) {
	s.reapDeadShells()
	s.drainAutostop(ctx)
	s.driveRetries(ctx)
}

func (s *Scheduler) reapDeadShells() {
	for pid, dir := range s.Autostop.ShellDirs() {
		if !procutil.Alive(pid) {
			s.Autostop.RemoveShellPID(pid)
			ids := s.Autostop.LeaveDir(dir, s.autostopCandidates())
			s.stopAll(context.Background(), ids)
		}
	}
}

func (s *Scheduler) drainAutostop(ctx context.Context) {
	due := s.Autostop.Drain(time.Now())
	s.stopAll(ctx, due)
}

func (s *Scheduler) stopAll(ctx context.Context, ids []string) {
	for _, idStr := range ids {
		id, err := daemonid.Parse(idStr)
		if err != nil {
			continue
		}
		rec, ok := s.Table.Get(id)
		if !ok || !rec.IsRunning() || !rec.Autostop {
			continue
		}
		s.Engine.Stop(id)
	}
}

func (s *Scheduler) autostopCandidates() []autostop.DaemonInfo {
	var out []autostop.DaemonInfo
	for _, d := range s.Table.All() {
		out = append(out, autostop.DaemonInfo{
			ID:       d.ID,
			Dir:      d.Dir,
			Running:  d.IsRunning(),
			Autostop: d.Autostop,
		})
	}
	return out
}

// driveRetries collects Errored, PID-absent, retry_count<retry daemons,
// increments retry_count itself before respawning each via
// lifecycle.RunOnce, per the §9 Open Question resolution: the background
// driver is the sole incrementer for driver-initiated retries, while
// Engine.Run's own synchronous loop remains the incrementer for
// interactively-requested runs — two call sites, each incrementing exactly
// once per attempt, never both for the same attempt.
func (s *Scheduler) driveRetries(ctx context.Context) {
	for _, d := range s.Table.All() {
		if d.Status != state.StatusErrored || d.PID != 0 || !d.RetriesRemaining() {
			continue
		}
		id, err := daemonid.Parse(d.ID)
		if err != nil {
			continue
		}
		s.Table.Upsert(id, func(rec *state.Daemon) {
			rec.RetryCount++
		})
		opts := lifecycle.RunOptions{
			ID:           id,
			Cmd:          d.Cmd,
			Dir:          d.Dir,
			Env:          d.Env,
			Retry:        d.RetryCount + 1, // repurposed as "attempt" for RunOnce
			ReadyDelay:   time.Duration(d.ReadyDelay) * time.Second,
			ReadyOutput:  d.ReadyOutput,
			ReadyHTTP:    d.ReadyHTTP,
			ReadyPort:    d.ReadyPort,
			ReadyCmd:     d.ReadyCmd,
			Port:         d.OriginalPort,
			AutoBumpPort: d.AutoBumpPort,
			Depends:      d.Depends,
			Autostop:     d.Autostop,
			ShellPID:     d.ShellPID,
			Hooks:        s.hooksFor(d.ID),
		}
		go s.Engine.RunOnce(ctx, opts)
	}
}

func (s *Scheduler) hooksFor(id string) config.HooksConfig {
	if cfg, ok := s.LookupConfig(id); ok {
		return cfg.Hooks
	}
	return config.HooksConfig{}
}

func (s *Scheduler) cronLoop(ctx context.Context) {
	ticker := time.NewTicker(s.CronInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cronTick(ctx)
		}
	}
}

// cronTick implements spec.md §4.3's cron semantics: for each daemon with a
// cron schedule, find any scheduled instant in (last, now], then apply the
// daemon's retrigger policy. last_cron_triggered is updated before invoking
// so a slow start cannot double-trigger the same instant.
func (s *Scheduler) cronTick(ctx context.Context) {
	now := time.Now()
	for _, d := range s.Table.All() {
		if d.CronSchedule == "" {
			continue
		}
		sched, err := s.schedule(d.CronSchedule)
		if err != nil {
			continue
		}
		last := d.LastCronTriggered
		if last.IsZero() {
			// First tick for this schedule: store now as the window start so
			// the next tick searches (now, next tick].
			if id, err := daemonid.Parse(d.ID); err == nil {
				s.Table.Upsert(id, func(rec *state.Daemon) {
					rec.LastCronTriggered = now
				})
			}
			continue
		}
		if !sched.Triggered(last, now) {
			continue
		}

		id, err := daemonid.Parse(d.ID)
		if err != nil {
			continue
		}
		s.Table.Upsert(id, func(rec *state.Daemon) {
			rec.LastCronTriggered = now
		})

		if !s.shouldCronFire(d) {
			continue
		}
		force := d.IsRunning() && d.CronRetrigger == "always"
		opts := lifecycle.RunOptions{
			ID:           id,
			Cmd:          d.Cmd,
			Dir:          d.Dir,
			Env:          d.Env,
			Force:        force,
			Retry:        d.Retry,
			ReadyDelay:   time.Duration(d.ReadyDelay) * time.Second,
			ReadyOutput:  d.ReadyOutput,
			ReadyHTTP:    d.ReadyHTTP,
			ReadyPort:    d.ReadyPort,
			ReadyCmd:     d.ReadyCmd,
			Port:         d.OriginalPort,
			AutoBumpPort: d.AutoBumpPort,
			Depends:      d.Depends,
			Autostop:     d.Autostop,
			CronSchedule: d.CronSchedule,
			CronRetrigger: d.CronRetrigger,
			Hooks:        s.hooksFor(d.ID),
		}
		go s.Engine.Run(ctx, opts)
	}
}

func (s *Scheduler) shouldCronFire(d *state.Daemon) bool {
	running := d.IsRunning()
	switch d.CronRetrigger {
	case "always":
		return true
	case "success":
		return !running && d.LastExitSuccess
	case "fail":
		return !running && !d.LastExitSuccess
	default: // "finish" and unset default to finish semantics
		return !running
	}
}

func (s *Scheduler) schedule(expr string) (*cronexpr.Schedule, error) {
	if sched, ok := s.cronSchedules[expr]; ok {
		return sched, nil
	}
	sched, err := cronexpr.Parse(expr)
	if err != nil {
		return nil, err
	}
	s.cronSchedules[expr] = sched
	return sched, nil
}

// onFileBatch is the debouncer callback: restart every daemon whose
// matcher hits at least one changed path, fire-and-forget (the watch-
// triggered restart does not wait for readiness, so the watcher is never
// blocked).
func (s *Scheduler) onFileBatch(paths []string) {
	for _, m := range s.matchers {
		matched := false
		for _, p := range paths {
			if m.Matches(p) {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}
		id, err := daemonid.Parse(m.ID)
		if err != nil {
			continue
		}
		rec, ok := s.Table.Get(id)
		if !ok || !rec.IsRunning() || s.Table.IsDisabled(id) {
			continue
		}
		opts := lifecycle.RunOptions{
			ID:           id,
			Cmd:          rec.Cmd,
			Dir:          rec.Dir,
			Env:          rec.Env,
			Force:        true,
			Retry:        rec.Retry,
			ReadyPort:    rec.ReadyPort,
			Port:         rec.OriginalPort,
			AutoBumpPort: rec.AutoBumpPort,
			Autostop:     rec.Autostop,
			Watch:        rec.Watch,
			Hooks:        s.hooksFor(rec.ID),
		}
		go s.Engine.Run(context.Background(), opts)
	}
}
