// Package ipc implements the supervisor's request/response protocol: a
// framed local-socket transport (component D) and the client library
// (component K). Encoding defaults to MessagePack
// (github.com/vmihailenco/msgpack/v5, grounded on the pack's
// aristath-portfolioManager, hashicorp-nomad, DataDog-datadog-agent, and
// canonical-lxd manifests, all of which carry a msgpack dependency for the
// same compact-wire-encoding role), with encoding/json selectable via
// [settings].ipc_json. Per-connection correlation ids use
// github.com/google/uuid: already a direct dependency in the teacher's
// go.mod, and used the same way (a per-instance correlation id generated
// with uuid.New().String()) in the pack's tombee-conductor daemon.
package ipc

import "time"

// Request is the envelope every client call sends. Exactly one of the
// pointer fields is set, mirroring the teacher's tagged-union-by-presence
// style for its own event payloads.
type Request struct {
	Connect         *ConnectRequest         `msgpack:"connect,omitempty" json:"connect,omitempty"`
	Run             *RunRequest             `msgpack:"run,omitempty" json:"run,omitempty"`
	Start           *StartRequest           `msgpack:"start,omitempty" json:"start,omitempty"`
	Stop            *StopRequest            `msgpack:"stop,omitempty" json:"stop,omitempty"`
	Restart         *RestartRequest         `msgpack:"restart,omitempty" json:"restart,omitempty"`
	Enable          *EnableRequest          `msgpack:"enable,omitempty" json:"enable,omitempty"`
	Disable         *EnableRequest          `msgpack:"disable,omitempty" json:"disable,omitempty"`
	GetActive       *GetActiveRequest       `msgpack:"get_active,omitempty" json:"get_active,omitempty"`
	GetDisabled     *GetDisabledRequest     `msgpack:"get_disabled,omitempty" json:"get_disabled,omitempty"`
	GetNotify       *GetNotificationsRequest `msgpack:"get_notifications,omitempty" json:"get_notifications,omitempty"`
	UpdateShellDir  *UpdateShellDirRequest  `msgpack:"update_shell_dir,omitempty" json:"update_shell_dir,omitempty"`
	Clean           *CleanRequest           `msgpack:"clean,omitempty" json:"clean,omitempty"`
	Batch           *BatchRequest           `msgpack:"batch,omitempty" json:"batch,omitempty"`
}

type ConnectRequest struct{}

// RunRequest mirrors the lifecycle engine's RunOptions over the wire.
type RunRequest struct {
	ID            string            `msgpack:"id" json:"id"`
	Cmd           []string          `msgpack:"cmd" json:"cmd"`
	Dir           string            `msgpack:"dir" json:"dir"`
	Env           map[string]string `msgpack:"env" json:"env"`
	Force         bool              `msgpack:"force" json:"force"`
	WaitReady     bool              `msgpack:"wait_ready" json:"wait_ready"`
	Autostop      bool              `msgpack:"autostop" json:"autostop"`
	Retry         uint32            `msgpack:"retry" json:"retry"`
	ReadyDelaySec uint64            `msgpack:"ready_delay" json:"ready_delay"`
	ReadyOutput   string            `msgpack:"ready_output" json:"ready_output"`
	ReadyHTTP     string            `msgpack:"ready_http" json:"ready_http"`
	ReadyPort     uint16            `msgpack:"ready_port" json:"ready_port"`
	ReadyCmd      string            `msgpack:"ready_cmd" json:"ready_cmd"`
	Port          uint16            `msgpack:"port" json:"port"`
	AutoBumpPort  bool              `msgpack:"auto_bump_port" json:"auto_bump_port"`
	Depends       []string          `msgpack:"depends,omitempty" json:"depends,omitempty"`
	CronSchedule  string            `msgpack:"cron_schedule,omitempty" json:"cron_schedule,omitempty"`
	CronRetrigger string            `msgpack:"cron_retrigger,omitempty" json:"cron_retrigger,omitempty"`
	Watch         []string          `msgpack:"watch,omitempty" json:"watch,omitempty"`
	ShellPID      int               `msgpack:"shell_pid,omitempty" json:"shell_pid,omitempty"`
}

type StopRequest struct {
	ID string `msgpack:"id" json:"id"`
}

// RestartRequest is supplemented from original_source/src/cli/restart.rs:
// stop then start by id, re-reading stored cmd/env/dir when no config entry
// exists for an ad-hoc run.
type RestartRequest struct {
	ID    string `msgpack:"id" json:"id"`
	Force bool   `msgpack:"force" json:"force"`
}

type EnableRequest struct {
	ID string `msgpack:"id" json:"id"`
}

type GetActiveRequest struct{}
type GetDisabledRequest struct{}
type GetNotificationsRequest struct{}

type UpdateShellDirRequest struct {
	ShellPID int    `msgpack:"shell_pid" json:"shell_pid"`
	Dir      string `msgpack:"dir" json:"dir"`
}

type CleanRequest struct{}

// BatchRequest is supplemented from original_source/src/ipc/batch.rs: a TUI
// refresh can fetch several read-only requests in one round trip.
type BatchRequest struct {
	Requests []Request `msgpack:"requests" json:"requests"`
}

// StartRequest starts one or more config-declared daemons by id, resolving
// their `depends` through the dependency graph before spawning (component
// G), the runtime counterpart to Bootstrap's boot_start orchestration.
// IDs left empty starts every daemon declared in the config file, matching
// the original's bare `pitchfork start` (original_source/src/cli/start.rs).
type StartRequest struct {
	IDs   []string `msgpack:"ids,omitempty" json:"ids,omitempty"`
	Force bool     `msgpack:"force" json:"force"`
}

// Response is the single-shot reply envelope; exactly one field is set.
type Response struct {
	Ok                *OkResponse                `msgpack:"ok,omitempty" json:"ok,omitempty"`
	Start             *DaemonResponse            `msgpack:"start,omitempty" json:"start,omitempty"`
	Ready             *DaemonResponse            `msgpack:"ready,omitempty" json:"ready,omitempty"`
	AlreadyRunning    *DaemonResponse            `msgpack:"already_running,omitempty" json:"already_running,omitempty"`
	FailedWithCode    *FailedResponse            `msgpack:"failed_with_code,omitempty" json:"failed_with_code,omitempty"`
	StopFailed        *ErrorResponse             `msgpack:"stop_failed,omitempty" json:"stop_failed,omitempty"`
	NotFound          *ErrorResponse             `msgpack:"not_found,omitempty" json:"not_found,omitempty"`
	NotRunning        *ErrorResponse             `msgpack:"not_running,omitempty" json:"not_running,omitempty"`
	WasNotRunning     *OkResponse                `msgpack:"was_not_running,omitempty" json:"was_not_running,omitempty"`
	Yes               *OkResponse                `msgpack:"yes,omitempty" json:"yes,omitempty"`
	No                *OkResponse                `msgpack:"no,omitempty" json:"no,omitempty"`
	ActiveDaemons     []DaemonRecord             `msgpack:"active_daemons,omitempty" json:"active_daemons,omitempty"`
	DisabledDaemons   []string                   `msgpack:"disabled_daemons,omitempty" json:"disabled_daemons,omitempty"`
	Notifications     []Notification             `msgpack:"notifications,omitempty" json:"notifications,omitempty"`
	Batch             *BatchResponse             `msgpack:"batch,omitempty" json:"batch,omitempty"`
	Invalid           *InvalidResponse           `msgpack:"invalid,omitempty" json:"invalid,omitempty"`
	Started           *StartedResponse           `msgpack:"started,omitempty" json:"started,omitempty"`
}

type OkResponse struct{}

// StartedResponse is the reply to a StartRequest: one StartResult per
// daemon actually attempted, in dependency-level order. A circular or
// missing-dependency error aborts resolution entirely and is reported via
// Response.Invalid instead, since no daemon in the request was spawned.
type StartedResponse struct {
	Results []StartResult `msgpack:"results" json:"results"`
}

// StartResult reports one daemon's outcome from an orchestrated start. A
// daemon skipped because it is disabled carries Outcome "skipped" and a nil
// Record.
type StartResult struct {
	ID      string        `msgpack:"id" json:"id"`
	Outcome string        `msgpack:"outcome" json:"outcome"`
	Record  *DaemonRecord `msgpack:"record,omitempty" json:"record,omitempty"`
	Error   string        `msgpack:"error,omitempty" json:"error,omitempty"`
}

type DaemonResponse struct {
	Record DaemonRecord `msgpack:"record" json:"record"`
}

type FailedResponse struct {
	ExitCode *int   `msgpack:"exit_code,omitempty" json:"exit_code,omitempty"`
	Message  string `msgpack:"message,omitempty" json:"message,omitempty"`
}

type ErrorResponse struct {
	Message string `msgpack:"message,omitempty" json:"message,omitempty"`
}

// InvalidResponse is the in-band validation-failure variant spec.md §4.8
// calls out explicitly, so malformed requests don't break framing.
type InvalidResponse struct {
	Error string `msgpack:"error" json:"error"`
}

// BatchResponse pairs each BatchRequest entry with its own Response, in the
// same order the sub-requests were submitted.
type BatchResponse struct {
	Responses []Response `msgpack:"responses" json:"responses"`
}

// DaemonRecord is the wire projection of internal/state.Daemon.
type DaemonRecord struct {
	ID              string            `msgpack:"id" json:"id"`
	PID             int               `msgpack:"pid,omitempty" json:"pid,omitempty"`
	Status          string            `msgpack:"status" json:"status"`
	ExitCode        *int              `msgpack:"exit_code,omitempty" json:"exit_code,omitempty"`
	Message         string            `msgpack:"message,omitempty" json:"message,omitempty"`
	Dir             string            `msgpack:"dir" json:"dir"`
	Cmd             []string          `msgpack:"cmd" json:"cmd"`
	Autostop        bool              `msgpack:"autostop" json:"autostop"`
	LastExitSuccess bool              `msgpack:"last_exit_success" json:"last_exit_success"`
	Retry           uint32            `msgpack:"retry" json:"retry"`
	RetryCount      uint32            `msgpack:"retry_count" json:"retry_count"`
	Port            uint16            `msgpack:"port,omitempty" json:"port,omitempty"`
	Env             map[string]string `msgpack:"env,omitempty" json:"env,omitempty"`
	Depends         []string          `msgpack:"depends,omitempty" json:"depends,omitempty"`
	CronSchedule    string            `msgpack:"cron_schedule,omitempty" json:"cron_schedule,omitempty"`
	CronRetrigger   string            `msgpack:"cron_retrigger,omitempty" json:"cron_retrigger,omitempty"`
	Watch           []string          `msgpack:"watch,omitempty" json:"watch,omitempty"`
	CPUPercent      float64           `msgpack:"cpu_percent,omitempty" json:"cpu_percent,omitempty"`
	RSSBytes        uint64            `msgpack:"rss_bytes,omitempty" json:"rss_bytes,omitempty"`
}

// Notification is one entry of the drained pending-notification queue.
type Notification struct {
	Level     string    `msgpack:"level" json:"level"`
	Message   string    `msgpack:"message" json:"message"`
	Timestamp time.Time `msgpack:"timestamp" json:"timestamp"`
}
