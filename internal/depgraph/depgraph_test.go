package depgraph

import "testing"

func TestResolveDiamondDependency(t *testing.T) {
	cfg := map[string][]string{
		"ns/top":   {"ns/left", "ns/right"},
		"ns/left":  {"ns/base"},
		"ns/right": {"ns/base"},
		"ns/base":  {},
	}
	depends, ids := FromConfigMap(cfg)
	levels, err := Resolve([]string{"ns/top"}, ids, depends)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(levels) != 3 {
		t.Fatalf("levels = %v, want 3 levels", levels)
	}
	if levels[0][0] != "ns/base" {
		t.Errorf("level 0 = %v, want [ns/base]", levels[0])
	}
	if len(levels[1]) != 2 || levels[1][0] != "ns/left" || levels[1][1] != "ns/right" {
		t.Errorf("level 1 = %v, want [ns/left ns/right] sorted", levels[1])
	}
	if levels[2][0] != "ns/top" {
		t.Errorf("level 2 = %v, want [ns/top]", levels[2])
	}
}

func TestResolveCircularDependency(t *testing.T) {
	cfg := map[string][]string{
		"ns/a": {"ns/b"},
		"ns/b": {"ns/a"},
	}
	depends, ids := FromConfigMap(cfg)
	_, err := Resolve([]string{"ns/a"}, ids, depends)
	if err == nil {
		t.Fatal("expected a circular dependency error")
	}
	var circ *ErrCircularDependency
	if !asCircular(err, &circ) {
		t.Fatalf("error = %v, want *ErrCircularDependency", err)
	}
}

func asCircular(err error, out **ErrCircularDependency) bool {
	c, ok := err.(*ErrCircularDependency)
	if ok {
		*out = c
	}
	return ok
}

func TestResolveMissingDependency(t *testing.T) {
	cfg := map[string][]string{
		"ns/a": {"ns/ghost"},
	}
	depends, ids := FromConfigMap(cfg)
	_, err := Resolve([]string{"ns/a"}, ids, depends)
	if _, ok := err.(*ErrMissingDependency); !ok {
		t.Fatalf("error = %v, want *ErrMissingDependency", err)
	}
}

func TestResolveDaemonNotFoundSuggestsClosest(t *testing.T) {
	cfg := map[string][]string{
		"ns/webserver": {},
	}
	depends, ids := FromConfigMap(cfg)
	_, err := Resolve([]string{"ns/webserverr"}, ids, depends)
	notFound, ok := err.(*ErrDaemonNotFound)
	if !ok {
		t.Fatalf("error = %v, want *ErrDaemonNotFound", err)
	}
	if notFound.Suggestion != "ns/webserver" {
		t.Errorf("Suggestion = %q, want ns/webserver", notFound.Suggestion)
	}
}

func TestReverseLevels(t *testing.T) {
	levels := [][]string{{"a"}, {"b", "c"}, {"d"}}
	rev := ReverseLevels(levels)
	if rev[0][0] != "d" || rev[2][0] != "a" {
		t.Errorf("ReverseLevels = %v", rev)
	}
}
