package supervisor

import (
	"context"
	"time"

	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/ipc"
	"go.jdx.dev/pitchfork/internal/lifecycle"
	"go.jdx.dev/pitchfork/internal/procutil"
	"go.jdx.dev/pitchfork/internal/state"
)

// Dispatch implements ipc.Dispatcher, routing each Request variant to the
// matching table/engine/tracker call per spec.md §4.8's request table.
func (s *Supervisor) Dispatch(ctx context.Context, req ipc.Request) ipc.Response {
	switch {
	case req.Connect != nil:
		return ipc.Response{Ok: &ipc.OkResponse{}}
	case req.Run != nil:
		return s.dispatchRun(ctx, req.Run)
	case req.Start != nil:
		return s.dispatchStart(ctx, req.Start)
	case req.Stop != nil:
		return s.dispatchStop(req.Stop)
	case req.Restart != nil:
		return s.dispatchRestart(ctx, req.Restart)
	case req.Enable != nil:
		return s.dispatchEnable(req.Enable, false)
	case req.Disable != nil:
		return s.dispatchEnable(req.Disable, true)
	case req.GetActive != nil:
		return s.dispatchGetActive()
	case req.GetDisabled != nil:
		return s.dispatchGetDisabled()
	case req.GetNotify != nil:
		return s.dispatchGetNotifications()
	case req.UpdateShellDir != nil:
		return s.dispatchUpdateShellDir(req.UpdateShellDir)
	case req.Clean != nil:
		return s.dispatchClean()
	case req.Batch != nil:
		return s.dispatchBatch(ctx, req.Batch)
	default:
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: "empty request"}}
	}
}

// dispatchRun spawns a single daemon directly, ad hoc or from a caller-
// supplied command. Depends is recorded on the resulting record purely for
// display (ls, the TUI) and is never resolved through depgraph here: an
// ad-hoc command has no config entry to resolve its dependencies' commands
// from, so ordering them would have nothing to start. dispatchStart is the
// dependency-ordered path, for config-declared daemons.
func (s *Supervisor) dispatchRun(ctx context.Context, req *ipc.RunRequest) ipc.Response {
	id, err := daemonid.Parse(req.ID)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	opts := lifecycle.RunOptions{
		ID:            id,
		Cmd:           req.Cmd,
		Dir:           req.Dir,
		Env:           req.Env,
		Force:         req.Force,
		WaitReady:     req.WaitReady,
		Autostop:      req.Autostop,
		Retry:         req.Retry,
		ReadyDelay:    time.Duration(req.ReadyDelaySec) * time.Second,
		ReadyOutput:   req.ReadyOutput,
		ReadyHTTP:     req.ReadyHTTP,
		ReadyPort:     req.ReadyPort,
		ReadyCmd:      req.ReadyCmd,
		Port:          req.Port,
		AutoBumpPort:  req.AutoBumpPort,
		Depends:       req.Depends,
		CronSchedule:  req.CronSchedule,
		CronRetrigger: req.CronRetrigger,
		Watch:         req.Watch,
		ShellPID:      req.ShellPID,
	}
	res := s.Engine.Run(ctx, opts)
	return runResultToResponse(res)
}

func runResultToResponse(res lifecycle.RunResult) ipc.Response {
	switch res.Outcome {
	case lifecycle.OutcomeStart:
		return ipc.Response{Start: &ipc.DaemonResponse{Record: *recordToWire(res.Record)}}
	case lifecycle.OutcomeReady:
		return ipc.Response{Ready: &ipc.DaemonResponse{Record: *recordToWire(res.Record)}}
	case lifecycle.OutcomeAlreadyRunning:
		return ipc.Response{AlreadyRunning: &ipc.DaemonResponse{Record: *recordToWire(res.Record)}}
	case lifecycle.OutcomeFailedWithCode:
		return ipc.Response{FailedWithCode: &ipc.FailedResponse{ExitCode: res.ExitCode, Message: errString(res.Err)}}
	case lifecycle.OutcomeStopFailed:
		return ipc.Response{StopFailed: &ipc.ErrorResponse{Message: errString(res.Err)}}
	default:
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: "unknown run outcome"}}
	}
}

// dispatchStart runs one or more config-declared daemons through
// startOrchestrated, which resolves `depends` via internal/depgraph before
// spawning each dependency level. This is the runtime path spec.md §2's
// "dispatcher calls F/I/G/A" and the §8.3/§8.4 scenarios describe; bootStart
// is the only other caller of startOrchestrated, at supervisor launch.
func (s *Supervisor) dispatchStart(ctx context.Context, req *ipc.StartRequest) ipc.Response {
	ids := req.IDs
	if len(ids) == 0 {
		for id := range s.cfg.Daemons {
			ids = append(ids, id)
		}
	}
	items, err := s.startOrchestrated(ctx, ids, req.Force)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	out := make([]ipc.StartResult, 0, len(items))
	for _, it := range items {
		sr := ipc.StartResult{ID: it.ID}
		switch {
		case it.Err != nil:
			sr.Outcome = outcomeName(it.Res.Outcome)
			sr.Error = it.Err.Error()
		case it.Res.Record == nil:
			sr.Outcome = "skipped"
		default:
			sr.Outcome = outcomeName(it.Res.Outcome)
			sr.Record = recordToWire(it.Res.Record)
		}
		out = append(out, sr)
	}
	return ipc.Response{Started: &ipc.StartedResponse{Results: out}}
}

func outcomeName(o lifecycle.Outcome) string {
	switch o {
	case lifecycle.OutcomeStart:
		return "start"
	case lifecycle.OutcomeReady:
		return "ready"
	case lifecycle.OutcomeAlreadyRunning:
		return "already_running"
	case lifecycle.OutcomeFailedWithCode:
		return "failed_with_code"
	case lifecycle.OutcomeStopFailed:
		return "stop_failed"
	default:
		return "unknown"
	}
}

func (s *Supervisor) dispatchStop(req *ipc.StopRequest) ipc.Response {
	id, err := daemonid.Parse(req.ID)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	switch s.Engine.Stop(id) {
	case lifecycle.StopOK:
		return ipc.Response{Ok: &ipc.OkResponse{}}
	case lifecycle.StopNotFound:
		return ipc.Response{NotFound: &ipc.ErrorResponse{Message: req.ID}}
	case lifecycle.StopNotRunning:
		return ipc.Response{NotRunning: &ipc.ErrorResponse{Message: req.ID}}
	case lifecycle.StopWasNotRunning:
		return ipc.Response{WasNotRunning: &ipc.OkResponse{}}
	default:
		return ipc.Response{StopFailed: &ipc.ErrorResponse{Message: req.ID}}
	}
}

// dispatchRestart stops then re-runs a daemon using its persisted options,
// per the Restart request supplemented from original_source/src/cli/restart.rs.
func (s *Supervisor) dispatchRestart(ctx context.Context, req *ipc.RestartRequest) ipc.Response {
	id, err := daemonid.Parse(req.ID)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	rec, ok := s.Table.Get(id)
	if !ok {
		return ipc.Response{NotFound: &ipc.ErrorResponse{Message: req.ID}}
	}
	if rec.IsRunning() {
		s.Engine.Stop(id)
	}
	opts := lifecycle.RunOptions{
		ID:            id,
		Cmd:           rec.Cmd,
		Dir:           rec.Dir,
		Env:           rec.Env,
		Force:         req.Force,
		WaitReady:     true,
		Autostop:      rec.Autostop,
		Retry:         rec.Retry,
		ReadyDelay:    time.Duration(rec.ReadyDelay) * time.Second,
		ReadyOutput:   rec.ReadyOutput,
		ReadyHTTP:     rec.ReadyHTTP,
		ReadyPort:     rec.ReadyPort,
		ReadyCmd:      rec.ReadyCmd,
		Port:          rec.OriginalPort,
		AutoBumpPort:  rec.AutoBumpPort,
		Depends:       rec.Depends,
		CronSchedule:  rec.CronSchedule,
		CronRetrigger: rec.CronRetrigger,
		Watch:         rec.Watch,
		ShellPID:      rec.ShellPID,
	}
	res := s.Engine.Run(ctx, opts)
	return runResultToResponse(res)
}

func (s *Supervisor) dispatchEnable(id *ipc.EnableRequest, disabled bool) ipc.Response {
	parsed, err := daemonid.Parse(id.ID)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	changed, err := s.Table.SetDisabled(parsed, disabled)
	if err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	if changed {
		return ipc.Response{Yes: &ipc.OkResponse{}}
	}
	return ipc.Response{No: &ipc.OkResponse{}}
}

// dispatchGetActive reports every running daemon, enriched with a
// point-in-time CPU/RSS sample (component B) for the ls/TUI status columns
// the original's own status UI shows (original_source/src/tui/ui.rs:133,
// "CPU","Mem","Uptime"). A sampling failure (process exited mid-read) just
// leaves CPUPercent/RSSBytes at their zero value rather than failing the
// whole request.
func (s *Supervisor) dispatchGetActive() ipc.Response {
	var out []ipc.DaemonRecord
	for _, d := range s.Table.All() {
		if !d.IsRunning() {
			continue
		}
		rec := *recordToWire(d)
		if sample, err := procutil.SampleProcess(d.PID); err == nil {
			rec.CPUPercent = sample.CPUPercent
			rec.RSSBytes = sample.RSSBytes
		}
		out = append(out, rec)
	}
	return ipc.Response{ActiveDaemons: out}
}

func (s *Supervisor) dispatchGetDisabled() ipc.Response {
	set := make(map[string]bool)
	for _, id := range s.Table.DisabledIDs() {
		set[id] = true
	}
	return ipc.Response{DisabledDaemons: sortedIDs(set)}
}

func (s *Supervisor) dispatchGetNotifications() ipc.Response {
	items := s.Notify.All()
	out := make([]ipc.Notification, 0, len(items))
	for _, n := range items {
		out = append(out, ipc.Notification{Level: string(n.Level), Message: n.Message, Timestamp: n.Timestamp})
	}
	return ipc.Response{Notifications: out}
}

// dispatchUpdateShellDir records the shell's new directory and, for any
// daemon the shell just left with no other tracked shell remaining in its
// subtree, either stops it immediately (autostop_delay = 0) or schedules the
// stop for now+autostop_delay, fired later by the scheduler's
// drainAutostop, per spec.md §4.5 and the §8.5 boundary case.
func (s *Supervisor) dispatchUpdateShellDir(req *ipc.UpdateShellDirRequest) ipc.Response {
	if err := s.Table.SetShellDir(req.ShellPID, req.Dir); err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	ids := s.Autostop.UpdateShellDir(req.ShellPID, req.Dir, s.autostopCandidates())
	delay := s.cfg.Settings.AutostopDelay()
	if delay == 0 {
		s.stopAll(ids)
		return ipc.Response{Ok: &ipc.OkResponse{}}
	}
	at := time.Now().Add(delay)
	for _, id := range ids {
		s.Autostop.Schedule(id, at)
	}
	return ipc.Response{Ok: &ipc.OkResponse{}}
}

// stopAll stops each eligible id immediately, logging rather than failing
// the request on an individual stop error: UpdateShellDir's caller (the
// shell hook) has no way to act on a per-daemon stop failure.
func (s *Supervisor) stopAll(ids []string) {
	for _, idStr := range ids {
		id, err := daemonid.Parse(idStr)
		if err != nil {
			s.Logger.Printf("pitchfork: autostop: bad daemon id %q: %v", idStr, err)
			continue
		}
		if res := s.Engine.Stop(id); res != lifecycle.StopOK && res != lifecycle.StopWasNotRunning {
			s.Logger.Printf("pitchfork: autostop: stopping %s: result %v", idStr, res)
		}
	}
}

func (s *Supervisor) dispatchClean() ipc.Response {
	if _, err := s.Table.Clean(); err != nil {
		return ipc.Response{Invalid: &ipc.InvalidResponse{Error: err.Error()}}
	}
	return ipc.Response{Ok: &ipc.OkResponse{}}
}

func (s *Supervisor) dispatchBatch(ctx context.Context, req *ipc.BatchRequest) ipc.Response {
	out := make([]ipc.Response, 0, len(req.Requests))
	for _, r := range req.Requests {
		out = append(out, s.Dispatch(ctx, r))
	}
	return ipc.Response{Batch: &ipc.BatchResponse{Responses: out}}
}

func recordToWire(d *state.Daemon) *ipc.DaemonRecord {
	if d == nil {
		return nil
	}
	return &ipc.DaemonRecord{
		ID:              d.ID,
		PID:             d.PID,
		Status:          string(d.Status),
		ExitCode:        d.ExitCode,
		Message:         d.Message,
		Dir:             d.Dir,
		Cmd:             d.Cmd,
		Autostop:        d.Autostop,
		LastExitSuccess: d.LastExitSuccess,
		Retry:           d.Retry,
		RetryCount:      d.RetryCount,
		Port:            d.Port,
		Env:             d.Env,
		Depends:         d.Depends,
		CronSchedule:    d.CronSchedule,
		CronRetrigger:   d.CronRetrigger,
		Watch:           d.Watch,
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
