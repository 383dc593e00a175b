package config

import "testing"

func TestMergeIsAssociative(t *testing.T) {
	a := File{Daemons: map[string]Daemon{"x": {Run: "a"}}}
	b := File{Daemons: map[string]Daemon{"x": {Run: "b"}, "y": {Run: "b2"}}}
	c := File{Daemons: map[string]Daemon{"y": {Run: "c"}, "z": {Run: "c2"}}}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	if left.Daemons["x"].Run != right.Daemons["x"].Run {
		t.Errorf("x: left=%q right=%q", left.Daemons["x"].Run, right.Daemons["x"].Run)
	}
	if left.Daemons["y"].Run != right.Daemons["y"].Run {
		t.Errorf("y: left=%q right=%q", left.Daemons["y"].Run, right.Daemons["y"].Run)
	}
	if left.Daemons["x"].Run != "b" {
		t.Errorf("last-write-wins violated: x.Run = %q, want b", left.Daemons["x"].Run)
	}
	if left.Daemons["y"].Run != "c" {
		t.Errorf("last-write-wins violated: y.Run = %q, want c", left.Daemons["y"].Run)
	}
}

func TestRetryUnmarshalShapes(t *testing.T) {
	cases := []struct {
		in   interface{}
		want uint32
	}{
		{true, ^uint32(0)},
		{false, 0},
		{int64(3), 3},
	}
	for _, c := range cases {
		var r Retry
		if err := r.UnmarshalTOML(c.in); err != nil {
			t.Fatalf("UnmarshalTOML(%v): %v", c.in, err)
		}
		if r.Value() != c.want {
			t.Errorf("UnmarshalTOML(%v).Value() = %d, want %d", c.in, r.Value(), c.want)
		}
	}
}

func TestAncestryRootToLeaf(t *testing.T) {
	chain := ancestryRootToLeaf("/a/b/c")
	if len(chain) < 3 {
		t.Fatalf("expected at least 3 ancestors, got %v", chain)
	}
	if chain[0] != "/" {
		t.Errorf("first entry should be root, got %q", chain[0])
	}
	if chain[len(chain)-1] != "/a/b/c" {
		t.Errorf("last entry should be the leaf, got %q", chain[len(chain)-1])
	}
}
