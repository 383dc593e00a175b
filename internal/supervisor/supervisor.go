// Package supervisor wires components A-O into the single long-lived
// process a pitchfork deployment runs as: the process table, the lifecycle
// engine, the readiness arbiter it races, the scheduler's four background
// tasks, the autostop tracker, the notification queue, and the IPC server
// that fronts all of it for CLI/TUI/web clients. This is pitchfork's
// analogue of the teacher's own Daemon.Run() (internal/daemon/daemon.go),
// generalized from one hardcoded set of town-wide heartbeats to the
// config-driven daemon set described in §6.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.jdx.dev/pitchfork/internal/autostop"
	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/depgraph"
	"go.jdx.dev/pitchfork/internal/filewatch"
	"go.jdx.dev/pitchfork/internal/ipc"
	"go.jdx.dev/pitchfork/internal/lifecycle"
	"go.jdx.dev/pitchfork/internal/lock"
	"go.jdx.dev/pitchfork/internal/notify"
	"go.jdx.dev/pitchfork/internal/scheduler"
	"go.jdx.dev/pitchfork/internal/state"
)

// ErrAlreadyRunning is returned by Serve when another supervisor instance
// already holds the startup lock.
var ErrAlreadyRunning = errors.New("supervisor: another instance is already running")

// Supervisor owns every long-lived collaborator. Dispatch implements
// ipc.Dispatcher so Serve can hand it straight to ipc.Server.
type Supervisor struct {
	StateDir string

	Table     *state.Table
	Engine    *lifecycle.Engine
	Scheduler *scheduler.Scheduler
	Autostop  *autostop.Tracker
	Notify    *notify.Queue
	Logger    *log.Logger

	cfg        config.File
	unlockFunc func()
	server     *ipc.Server
}

// Bootstrap loads configuration, opens the state file, and constructs every
// collaborator, but does not yet start background tasks or listen on the
// socket; call Serve for that.
func Bootstrap(stateDir string) (*Supervisor, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}

	logFile, err := os.OpenFile(filepath.Join(stateDir, "pitchfork.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening supervisor log: %w", err)
	}
	logger := log.New(logFile, "", log.LstdFlags)

	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolving cwd: %w", err)
	}
	userConfigPath, err := config.UserConfigPath()
	if err != nil {
		logger.Printf("pitchfork: no user config tier: %v", err)
	}
	cfg, err := config.SearchAndMerge("/etc/"+config.FileName, userConfigPath, cwd)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	table, err := state.Open(filepath.Join(stateDir, "state.json"))
	if err != nil {
		return nil, fmt.Errorf("opening state file: %w", err)
	}

	engine := lifecycle.New(table, filepath.Join(stateDir, "logs"), cfg.Settings.PortBumpAttempts, os.Environ())
	tracker := autostop.New()
	queue := notify.New()

	lookup := func(id string) (config.Daemon, bool) {
		d, ok := cfg.Daemons[id]
		return d, ok
	}
	sched := scheduler.New(table, engine, tracker, lookup, os.Environ(), cfg.Settings.Interval(), cfg.Settings.CronInterval())

	return &Supervisor{
		StateDir:  stateDir,
		Table:     table,
		Engine:    engine,
		Scheduler: sched,
		Autostop:  tracker,
		Notify:    queue,
		Logger:    logger,
		cfg:       cfg,
	}, nil
}

// Serve acquires the single-instance startup lock, boots configured
// `boot_start` daemons, starts the scheduler and file watcher, and blocks
// serving the IPC socket until ctx is cancelled.
func (s *Supervisor) Serve(ctx context.Context) error {
	cleanup, acquired, err := lock.FlockTryAcquire(filepath.Join(s.StateDir, "supervisor.lock"))
	if err != nil {
		return fmt.Errorf("acquiring startup lock: %w", err)
	}
	if !acquired {
		return ErrAlreadyRunning
	}
	s.unlockFunc = cleanup
	defer s.unlockFunc()

	if _, err := s.Table.Upsert(daemonid.Supervisor, func(d *state.Daemon) {
		d.PID = os.Getpid()
		d.Status = state.StatusRunning
		d.Cmd = []string{os.Args[0], "serve"}
	}); err != nil {
		s.Logger.Printf("pitchfork: recording supervisor record: %v", err)
	}

	s.Scheduler.Start(ctx)
	if err := s.startFileWatch(); err != nil {
		s.Logger.Printf("pitchfork: starting file watch: %v", err)
	}
	defer s.Scheduler.Close()

	if err := s.bootStart(ctx); err != nil {
		s.Logger.Printf("pitchfork: boot_start orchestration: %v", err)
	}

	socketPath := filepath.Join(s.StateDir, "ipc", "main.sock")
	s.server = &ipc.Server{
		SocketPath: socketPath,
		Codec:      ipc.Codec{JSON: s.cfg.Settings.IPCJSON},
		Dispatcher: s,
	}
	if err := s.server.Listen(); err != nil {
		return fmt.Errorf("listening on %s: %w", socketPath, err)
	}
	s.Logger.Printf("pitchfork: serving on %s", socketPath)
	s.server.Serve(ctx)
	return nil
}

func (s *Supervisor) startFileWatch() error {
	var matchers []filewatch.Matcher
	for id, d := range s.cfg.Daemons {
		if len(d.Watch) == 0 {
			continue
		}
		matchers = append(matchers, filewatch.Matcher{ID: id, BaseDir: config.ExpandDir(d.Dir), Patterns: d.Watch})
	}
	if len(matchers) == 0 {
		return nil
	}
	return s.Scheduler.StartFileWatch(matchers)
}

// bootStart resolves every `boot_start = true` daemon through depgraph and
// starts each level in order, per spec.md §4.4's start orchestration.
func (s *Supervisor) bootStart(ctx context.Context) error {
	var requested []string
	for id, d := range s.cfg.Daemons {
		if d.BootStart {
			requested = append(requested, id)
		}
	}
	if len(requested) == 0 {
		return nil
	}
	results, err := s.startOrchestrated(ctx, requested, false)
	if err != nil {
		return err
	}
	for _, r := range results {
		if r.Err != nil {
			s.Logger.Printf("pitchfork: boot_start: %s: %v", r.ID, r.Err)
		}
	}
	return nil
}

// StartItemResult is one daemon's outcome from an orchestrated, dependency-
// ordered start (internal/depgraph's Resolve feeding internal/lifecycle's
// Engine.Run level by level), the runtime counterpart to bootStart.
type StartItemResult struct {
	ID  string
	Res lifecycle.RunResult
	Err error
}

// startOrchestrated resolves requested (and its transitive config
// dependencies) through depgraph.Resolve, then runs each level in turn,
// stopping after the first level in which any daemon errors (later levels
// are not started). A daemon already disabled is skipped rather than run.
// This is component G's only runtime entry point: both Serve's boot_start
// daemons (via bootStart) and a
// user-invoked Start request funnel through it.
func (s *Supervisor) startOrchestrated(ctx context.Context, requested []string, force bool) ([]StartItemResult, error) {
	depends, configured := depgraph.FromConfigMap(daemonDependsMap(s.cfg))
	levels, err := depgraph.Resolve(requested, configured, depends)
	if err != nil {
		return nil, err
	}
	requestedSet := make(map[string]bool, len(requested))
	for _, id := range requested {
		requestedSet[id] = true
	}

	var all []StartItemResult
	for _, level := range levels {
		type leveled struct {
			id string
			r  StartItemResult
		}
		out := make(chan leveled, len(level))
		for _, idStr := range level {
			idStr := idStr
			go func() {
				res, runErr := s.runConfigured(ctx, idStr, force && requestedSet[idStr])
				out <- leveled{idStr, StartItemResult{ID: idStr, Res: res, Err: runErr}}
			}()
		}
		levelResults := make([]leveled, 0, len(level))
		for range level {
			levelResults = append(levelResults, <-out)
		}
		failed := false
		for _, lr := range levelResults {
			all = append(all, lr.r)
			if lr.r.Err != nil {
				failed = true
			}
		}
		if failed {
			break
		}
	}
	return all, nil
}

// runConfigured spawns a single config-declared daemon by id. A disabled
// daemon returns a zero RunResult (Record nil, Outcome unset) and a nil
// error: callers that only check Err treat this the same as a real run,
// matching the skip behaviour bootStart always had; dispatchStart
// distinguishes the zero RunResult to report "skipped" instead.
func (s *Supervisor) runConfigured(ctx context.Context, idStr string, force bool) (lifecycle.RunResult, error) {
	id, err := daemonid.Parse(idStr)
	if err != nil {
		return lifecycle.RunResult{}, err
	}
	if s.Table.IsDisabled(id) {
		return lifecycle.RunResult{}, nil
	}
	d, ok := s.cfg.Daemons[idStr]
	if !ok {
		return lifecycle.RunResult{}, fmt.Errorf("no config entry for %s", idStr)
	}
	opts := runOptionsFromConfig(id, d, force)
	res := s.Engine.Run(ctx, opts)
	if res.Outcome == lifecycle.OutcomeFailedWithCode {
		return res, fmt.Errorf("%s failed to become ready", idStr)
	}
	return res, nil
}

func runOptionsFromConfig(id daemonid.ID, d config.Daemon, force bool) lifecycle.RunOptions {
	return lifecycle.RunOptions{
		ID:            id,
		Cmd:           splitShellWords(d.Run),
		Dir:           config.ExpandDir(d.Dir),
		Env:           d.Env,
		Force:         force,
		WaitReady:     true,
		Autostop:      contains(d.Auto, "stop"),
		Retry:         d.Retry.Value(),
		ReadyDelay:    time.Duration(d.ReadyDelay) * time.Second,
		ReadyOutput:   d.ReadyOutput,
		ReadyHTTP:     d.ReadyHTTP,
		ReadyPort:     d.ReadyPort,
		ReadyCmd:      d.ReadyCmd,
		Port:          d.Port,
		AutoBumpPort:  d.AutoBumpPort,
		Depends:       d.Depends,
		CronSchedule:  d.Cron.Schedule,
		CronRetrigger: d.Cron.Retrigger,
		Watch:         d.Watch,
		Hooks:         d.Hooks,
	}
}

func daemonDependsMap(cfg config.File) map[string][]string {
	out := make(map[string][]string, len(cfg.Daemons))
	for id, d := range cfg.Daemons {
		out[id] = d.Depends
	}
	return out
}

func contains(list []string, want string) bool {
	for _, v := range list {
		if v == want {
			return true
		}
	}
	return false
}

// splitShellWords is a minimal shell-words tokenizer: it splits on
// unquoted whitespace and strips a single layer of matching quotes,
// sufficient for the `run = "..."` command lines §6 describes.
func splitShellWords(s string) []string {
	var words []string
	var cur []rune
	inQuote := rune(0)
	flush := func() {
		if len(cur) > 0 {
			words = append(words, string(cur))
			cur = nil
		}
	}
	for _, r := range s {
		switch {
		case inQuote != 0:
			if r == inQuote {
				inQuote = 0
			} else {
				cur = append(cur, r)
			}
		case r == '\'' || r == '"':
			inQuote = r
		case r == ' ' || r == '\t':
			flush()
		default:
			cur = append(cur, r)
		}
	}
	flush()
	return words
}

// Close closes the IPC server and its listener, if Serve started one.
func (s *Supervisor) Close() error {
	if s.server != nil {
		return s.server.Close()
	}
	return nil
}

func (s *Supervisor) autostopCandidates() []autostop.DaemonInfo {
	var out []autostop.DaemonInfo
	for _, d := range s.Table.All() {
		out = append(out, autostop.DaemonInfo{ID: d.ID, Dir: d.Dir, Running: d.IsRunning(), Autostop: d.Autostop})
	}
	return out
}

func sortedIDs(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
