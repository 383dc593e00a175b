// Package daemonid parses and encodes the qualified "namespace/name"
// identifiers pitchfork uses to address daemons.
package daemonid

import (
	"fmt"
	"strings"
)

// LegacyNamespace is where unqualified names from pre-qualification state
// files are migrated to on read.
const LegacyNamespace = "legacy"

// Supervisor is the distinguished id of the supervisor's own daemon record.
// It is immune to user-driven stop/disable.
var Supervisor = ID{Namespace: "global", Name: "pitchfork"}

// ID is a qualified daemon identifier: namespace/name.
type ID struct {
	Namespace string
	Name      string
}

// Qualified returns the canonical "namespace/name" form.
func (id ID) Qualified() string {
	return id.Namespace + "/" + id.Name
}

// String implements fmt.Stringer.
func (id ID) String() string { return id.Qualified() }

// SafePath returns the filesystem-safe encoding "namespace--name" used for
// log directories.
func (id ID) SafePath() string {
	return id.Namespace + "--" + id.Name
}

// IsSupervisor reports whether id is the distinguished supervisor record.
func (id ID) IsSupervisor() bool {
	return id == Supervisor
}

// invalid characters shared by both namespace and name parts.
const invalidSubstrings = "--"

func validPart(s string) error {
	if s == "" {
		return fmt.Errorf("empty")
	}
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return fmt.Errorf("contains non-printable or non-ASCII character %q", r)
		}
		switch r {
		case ' ', '/', '\\':
			return fmt.Errorf("contains disallowed character %q", r)
		}
	}
	if strings.Contains(s, "..") {
		return fmt.Errorf("contains \"..\"")
	}
	if strings.Contains(s, invalidSubstrings) {
		return fmt.Errorf("contains reserved separator \"--\"")
	}
	if strings.Contains(s, ".") {
		return fmt.Errorf("contains \".\"")
	}
	return nil
}

// Parse parses a qualified "namespace/name" identifier. If s has no "/", it
// is treated as a legacy unqualified name and qualified into LegacyNamespace.
func Parse(s string) (ID, error) {
	if !strings.Contains(s, "/") {
		return Qualify(LegacyNamespace, s)
	}
	parts := strings.SplitN(s, "/", 2)
	return Qualify(parts[0], parts[1])
}

// Qualify validates and builds an ID from separate namespace and name parts.
func Qualify(namespace, name string) (ID, error) {
	if err := validPart(namespace); err != nil {
		return ID{}, fmt.Errorf("invalid namespace %q: %w", namespace, err)
	}
	if err := validPart(name); err != nil {
		return ID{}, fmt.Errorf("invalid name %q: %w", name, err)
	}
	return ID{Namespace: namespace, Name: name}, nil
}

// FromSafePath decodes a "namespace--name" filesystem-safe path back into an
// ID. It is the inverse of ID.SafePath.
func FromSafePath(safe string) (ID, error) {
	idx := strings.Index(safe, "--")
	if idx < 0 {
		return ID{}, fmt.Errorf("not a safe path: %q", safe)
	}
	return Qualify(safe[:idx], safe[idx+2:])
}

// NamespaceFromDir derives a namespace from a config file's containing
// directory basename, collapsing "--" to "-" since "--" is reserved.
func NamespaceFromDir(dirBasename string) string {
	return strings.ReplaceAll(dirBasename, "--", "-")
}
