package config

import (
	"os"
	"sort"
)

// MergeEnv merges multiple environment maps left to right; later maps
// override earlier ones on key collision. Adapted from the teacher's
// config.MergeEnv helper, generalized from agent-role environments to the
// spawn-time layering spec.md §4.1 requires: original PATH, then user env,
// then injected PITCHFORK_* metadata last so it always wins.
func MergeEnv(maps ...map[string]string) map[string]string {
	result := make(map[string]string)
	for _, m := range maps {
		for k, v := range m {
			result[k] = v
		}
	}
	return result
}

// EnvToSlice converts an env map to a sorted slice of "K=V" strings suitable
// for exec.Cmd.Env. Sorting keeps spawn behavior deterministic across runs,
// which matters for log reproducibility even though the OS does not care
// about env var order.
func EnvToSlice(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	result := make([]string, 0, len(env))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

// EnvForExecCommand returns os.Environ() with the given env vars appended,
// later entries (including duplicates) taking precedence because Go's exec
// package uses the last matching "K=V" entry for a given K.
func EnvForExecCommand(env map[string]string) []string {
	result := os.Environ()
	result = append(result, EnvToSlice(env)...)
	return result
}

// OriginalPath returns the supervisor process's own PATH, which children and
// hooks inherit so user tools resolve regardless of what PATH a daemon's
// declared env happens to set.
func OriginalPath() string {
	return os.Getenv("PATH")
}
