// Package config loads pitchfork.toml files (merged system-wide -> user ->
// project tree), projecting them into daemon definitions and runtime
// settings. TOML parsing follows the teacher's own choice of
// github.com/BurntSushi/toml (internal/rig/manifest.go).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"go.jdx.dev/pitchfork/internal/daemonid"
)

// FileName is the config file's base name, searched up the directory tree.
const FileName = "pitchfork.toml"

// CronConfig is a daemon's [daemons.<n>.cron] table.
type CronConfig struct {
	Schedule  string `toml:"schedule"`
	Retrigger string `toml:"retrigger"`
}

// HooksConfig is a daemon's [daemons.<n>.hooks] table.
type HooksConfig struct {
	OnReady string `toml:"on_ready"`
	OnFail  string `toml:"on_fail"`
	OnRetry string `toml:"on_retry"`
}

// Retry encodes the retry field's three accepted TOML shapes: a count, or
// the booleans true ("infinite", saturating max uint32) / false (zero).
type Retry struct {
	set   bool
	value uint32
}

// UnmarshalTOML implements toml.Unmarshaler for the three accepted shapes.
func (r *Retry) UnmarshalTOML(data interface{}) error {
	switch v := data.(type) {
	case bool:
		r.set = true
		if v {
			r.value = ^uint32(0)
		} else {
			r.value = 0
		}
	case int64:
		r.set = true
		if v < 0 {
			return fmt.Errorf("retry must not be negative: %d", v)
		}
		r.value = uint32(v)
	default:
		return fmt.Errorf("retry must be a bool or non-negative integer, got %T", data)
	}
	return nil
}

// Value returns the resolved retry budget, defaulting to 0 when unset.
func (r Retry) Value() uint32 {
	if !r.set {
		return 0
	}
	return r.value
}

// Daemon is a single [daemons.<short-name>] table.
type Daemon struct {
	Run  string            `toml:"run"`
	Dir  string             `toml:"dir"`
	Env  map[string]string  `toml:"env"`
	Auto []string           `toml:"auto"`

	Depends []string `toml:"depends"`
	Retry   Retry    `toml:"retry"`

	ReadyDelay  uint64 `toml:"ready_delay"`
	ReadyOutput string `toml:"ready_output"`
	ReadyHTTP   string `toml:"ready_http"`
	ReadyPort   uint16 `toml:"ready_port"`
	ReadyCmd    string `toml:"ready_cmd"`

	Port         uint16 `toml:"port"`
	AutoBumpPort bool   `toml:"auto_bump_port"`

	Watch     []string `toml:"watch"`
	BootStart bool     `toml:"boot_start"`

	Cron  CronConfig  `toml:"cron"`
	Hooks HooksConfig `toml:"hooks"`
}

// Settings is the [settings] subtable: runtime parameters independent of
// daemon declarations.
type Settings struct {
	IntervalSeconds      uint64 `toml:"interval_seconds"`
	CronIntervalSeconds  uint64 `toml:"cron_interval_seconds"`
	AutostopDelaySeconds uint64 `toml:"autostop_delay_seconds"`
	PortBumpAttempts     uint32 `toml:"port_bump_attempts"`
	IPCJSON              bool   `toml:"ipc_json"`
	WebPort              uint16 `toml:"web_port"`
	ClientTimeoutSeconds uint64 `toml:"client_timeout_seconds"`
}

// DefaultSettings returns the spec's documented defaults.
func DefaultSettings() Settings {
	return Settings{
		IntervalSeconds:      10,
		CronIntervalSeconds:  10,
		AutostopDelaySeconds: 0,
		PortBumpAttempts:     10,
		IPCJSON:              false,
		WebPort:              0,
		ClientTimeoutSeconds: 5,
	}
}

func (s Settings) Interval() time.Duration { return time.Duration(s.IntervalSeconds) * time.Second }
func (s Settings) CronInterval() time.Duration {
	return time.Duration(s.CronIntervalSeconds) * time.Second
}
func (s Settings) AutostopDelay() time.Duration {
	return time.Duration(s.AutostopDelaySeconds) * time.Second
}
func (s Settings) ClientTimeout() time.Duration {
	return time.Duration(s.ClientTimeoutSeconds) * time.Second
}

// File is the parsed contents of a single pitchfork.toml.
type File struct {
	Settings Settings          `toml:"settings"`
	Daemons  map[string]Daemon `toml:"daemons"`
}

// Load parses a single TOML file. A missing file is not an error: it yields
// a zero File so the merge chain can skip absent tiers.
func Load(path string) (File, error) {
	var f File
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return f, nil
		}
		return f, fmt.Errorf("reading %s: %w", path, err)
	}
	if _, err := toml.Decode(string(data), &f); err != nil {
		return f, fmt.Errorf("parsing %s: %w", path, err)
	}
	if f.Daemons == nil {
		f.Daemons = make(map[string]Daemon)
	}
	return f, nil
}

// Merge combines a with b; b's keys win on collision ("last write wins").
// Merge is associative: Merge(Merge(a,b),c) == Merge(a,Merge(b,c)), which is
// what lets the multi-tier search below fold left-to-right regardless of how
// the folds are grouped.
func Merge(a, b File) File {
	out := File{Settings: a.Settings, Daemons: make(map[string]Daemon, len(a.Daemons)+len(b.Daemons))}
	for k, v := range a.Daemons {
		out.Daemons[k] = v
	}
	for k, v := range b.Daemons {
		out.Daemons[k] = v
	}
	if b.Settings.IntervalSeconds != 0 {
		out.Settings.IntervalSeconds = b.Settings.IntervalSeconds
	}
	if b.Settings.CronIntervalSeconds != 0 {
		out.Settings.CronIntervalSeconds = b.Settings.CronIntervalSeconds
	}
	if b.Settings.AutostopDelaySeconds != 0 {
		out.Settings.AutostopDelaySeconds = b.Settings.AutostopDelaySeconds
	}
	if b.Settings.PortBumpAttempts != 0 {
		out.Settings.PortBumpAttempts = b.Settings.PortBumpAttempts
	}
	if b.Settings.WebPort != 0 {
		out.Settings.WebPort = b.Settings.WebPort
	}
	if b.Settings.ClientTimeoutSeconds != 0 {
		out.Settings.ClientTimeoutSeconds = b.Settings.ClientTimeoutSeconds
	}
	out.Settings.IPCJSON = out.Settings.IPCJSON || b.Settings.IPCJSON
	return out
}

// Resolved pairs a daemon's id with its namespace-derived config.
type Resolved struct {
	ID     daemonid.ID
	Config Daemon
}

// SearchAndMerge merges the system-wide file, the user file, and every
// pitchfork.toml between the filesystem root and cwd (inclusive), in that
// precedence order, later tiers overriding earlier ones.
func SearchAndMerge(systemPath, userPath, cwd string) (File, error) {
	merged := DefaultsFile()

	if systemPath != "" {
		f, err := Load(systemPath)
		if err != nil {
			return File{}, err
		}
		merged = Merge(merged, f)
	}
	if userPath != "" {
		f, err := Load(userPath)
		if err != nil {
			return File{}, err
		}
		merged = Merge(merged, f)
	}

	for _, dir := range ancestryRootToLeaf(cwd) {
		path := filepath.Join(dir, FileName)
		f, err := Load(path)
		if err != nil {
			return File{}, err
		}
		if len(f.Daemons) == 0 && f.Settings == (Settings{}) {
			continue
		}
		namespace := daemonid.NamespaceFromDir(filepath.Base(dir))
		f = namespaceDaemons(f, namespace)
		merged = Merge(merged, f)
	}
	return merged, nil
}

// DefaultsFile seeds a File with DefaultSettings so a merge chain that finds
// no [settings] table anywhere still yields sane values.
func DefaultsFile() File {
	return File{Settings: DefaultSettings(), Daemons: make(map[string]Daemon)}
}

// namespaceDaemons rewrites a file's daemon keys from short names to
// "namespace/name" qualified keys, per spec.md §6: "the namespace of a
// daemon is derived from the config file's containing directory basename".
func namespaceDaemons(f File, namespace string) File {
	out := File{Settings: f.Settings, Daemons: make(map[string]Daemon, len(f.Daemons))}
	for name, d := range f.Daemons {
		id, err := daemonid.Qualify(namespace, name)
		if err != nil {
			continue
		}
		out.Daemons[id.Qualified()] = d
	}
	return out
}

// ancestryRootToLeaf returns every directory from the filesystem root down
// to dir (inclusive), root first, so later merges (deeper directories)
// override earlier ones per spec.md §9's "root to CWD" search order.
func ancestryRootToLeaf(dir string) []string {
	abs, err := filepath.Abs(dir)
	if err != nil {
		abs = dir
	}
	abs = filepath.Clean(abs)

	var chain []string
	for {
		chain = append(chain, abs)
		parent := filepath.Dir(abs)
		if parent == abs {
			break
		}
		abs = parent
	}
	// chain is currently leaf-to-root; reverse it.
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// ExpandDir expands "$VAR"/"${VAR}" references and a leading "~" in a
// configured working directory.
func ExpandDir(dir string) string {
	if dir == "" {
		return dir
	}
	if dir == "~" || strings.HasPrefix(dir, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			dir = filepath.Join(home, strings.TrimPrefix(dir, "~"))
		}
	}
	return os.Expand(dir, os.Getenv)
}

// StateDir returns the directory pitchfork persists its state file, logs,
// and IPC socket under: $PITCHFORK_STATE_DIR if set, else
// $XDG_STATE_HOME/pitchfork, else ~/.local/state/pitchfork.
func StateDir() (string, error) {
	if v := os.Getenv("PITCHFORK_STATE_DIR"); v != "" {
		return v, nil
	}
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "pitchfork"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".local", "state", "pitchfork"), nil
}

// UserConfigPath returns the per-user pitchfork.toml path under
// os.UserConfigDir(), the tier between the system-wide and project files in
// SearchAndMerge's precedence order.
func UserConfigPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolving user config directory: %w", err)
	}
	return filepath.Join(dir, "pitchfork", FileName), nil
}
