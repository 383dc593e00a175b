// Package hooks fires the three fire-and-forget lifecycle hooks (on_ready,
// on_fail, on_retry) described in spec.md §4.6, layering environment the
// same way the lifecycle engine does for the daemon's own process, and
// dispatching via internal/shellexec, generalizing the teacher's single
// hardcoded "gt mail send" notification call (daemon/daemon.go:840) to
// arbitrary user-declared hook commands.
package hooks

import (
	"fmt"
	"log"
	"strings"

	"go.jdx.dev/pitchfork/internal/config"
	"go.jdx.dev/pitchfork/internal/daemonid"
	"go.jdx.dev/pitchfork/internal/shellexec"
	"go.jdx.dev/pitchfork/internal/state"
)

// Kind identifies which of the three hooks is firing.
type Kind int

const (
	KindReady Kind = iota
	KindFail
	KindRetry
)

func (k Kind) String() string {
	switch k {
	case KindReady:
		return "on_ready"
	case KindFail:
		return "on_fail"
	case KindRetry:
		return "on_retry"
	default:
		return "unknown"
	}
}

func commandFor(k Kind, cfg config.HooksConfig) string {
	switch k {
	case KindReady:
		return cfg.OnReady
	case KindFail:
		return cfg.OnFail
	case KindRetry:
		return cfg.OnRetry
	default:
		return ""
	}
}

// Fire launches the hook command for kind, if one is configured, with the
// daemon's working directory, PATH-first env layering, and
// PITCHFORK_DAEMON_ID / PITCHFORK_RETRY_COUNT injected last. A nil record is
// a no-op: hooks never run against a daemon that failed before a record
// existed.
func Fire(k Kind, record *state.Daemon, cfg config.HooksConfig, originalEnv []string) {
	cmd := commandFor(k, cfg)
	if cmd == "" || record == nil {
		return
	}
	env := envFor(record, originalEnv)
	shellexec.Fire(cmd, record.Dir, env, func(err error) {
		if err != nil {
			log.Printf("pitchfork: hook %s for %s exited non-zero: %v", k, record.ID, err)
		}
	})
}

func envFor(record *state.Daemon, originalEnv []string) []string {
	merged := make(map[string]string)
	for _, kv := range originalEnv {
		if idx := strings.IndexByte(kv, '='); idx >= 0 {
			merged[kv[:idx]] = kv[idx+1:]
		}
	}
	for k, v := range record.Env {
		merged[k] = v
	}
	merged["PITCHFORK_DAEMON_ID"] = shortName(record.ID)
	merged["PITCHFORK_RETRY_COUNT"] = fmt.Sprintf("%d", record.RetryCount)
	out := make([]string, 0, len(merged))
	for k, v := range merged {
		out = append(out, k+"="+v)
	}
	return out
}

// shortName extracts the bare daemon name from a qualified "namespace/name"
// id, falling back to the raw string if it doesn't parse (ad-hoc records
// created before a namespace existed).
func shortName(qualified string) string {
	id, err := daemonid.Parse(qualified)
	if err != nil {
		return qualified
	}
	return id.Name
}
