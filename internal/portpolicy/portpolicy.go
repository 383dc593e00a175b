// Package portpolicy implements the pre-spawn port reservation described in
// spec.md §4.1: bind-probe a requested port, optionally bump to the next
// free one, and fail fast with a port-in-use error before any child is
// spawned. The probe-then-release pattern (bind, then close, to claim a
// port number without holding the listener across exec) is built directly
// on net.Listen: no pack dependency specializes in port-availability
// probing, so this stays on the standard library (see DESIGN.md).
package portpolicy

import (
	"fmt"
	"net"
)

// Resolve returns the port the daemon should actually bind to. requested=0
// means "no port policy configured" and resolves to 0 (no-op). On conflict,
// if autoBump is true, the next `attempts` integers are tried in order; the
// first free one wins. Without autoBump, a conflict is a hard error.
func Resolve(requested uint16, autoBump bool, attempts uint32) (uint16, error) {
	if requested == 0 {
		return 0, nil
	}
	if free(requested) {
		return requested, nil
	}
	if !autoBump {
		return 0, fmt.Errorf("port %d already in use", requested)
	}
	candidate := requested
	for i := uint32(0); i < attempts; i++ {
		candidate++
		if candidate == 0 {
			break // wrapped past uint16 max
		}
		if free(candidate) {
			return candidate, nil
		}
	}
	return 0, fmt.Errorf("no free port found starting at %d after %d attempts", requested, attempts)
}

// free reports whether port is currently bindable on 127.0.0.1, by binding
// and immediately releasing it.
func free(port uint16) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}
