package daemonid

import "testing"

func TestParseQualifiedRoundTrip(t *testing.T) {
	cases := []string{"web/api", "legacy/old-name", "global/pitchfork"}
	for _, s := range cases {
		id, err := Parse(s)
		if err != nil {
			t.Fatalf("Parse(%q): %v", s, err)
		}
		if got := id.Qualified(); got != s {
			t.Errorf("round trip: Parse(%q).Qualified() = %q", s, got)
		}
	}
}

func TestParseLegacyUnqualified(t *testing.T) {
	id, err := Parse("redis")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if id.Namespace != LegacyNamespace || id.Name != "redis" {
		t.Errorf("got %+v, want namespace=%s name=redis", id, LegacyNamespace)
	}
}

func TestSafePathRoundTrip(t *testing.T) {
	id := ID{Namespace: "web", Name: "api"}
	safe := id.SafePath()
	if safe != "web--api" {
		t.Fatalf("SafePath() = %q", safe)
	}
	back, err := FromSafePath(safe)
	if err != nil {
		t.Fatalf("FromSafePath: %v", err)
	}
	if back != id {
		t.Errorf("FromSafePath(%q) = %+v, want %+v", safe, back, id)
	}
}

func TestQualifyRejectsInvalid(t *testing.T) {
	cases := []struct {
		ns, name string
	}{
		{"", "x"},
		{"x", ""},
		{"a/b", "x"},
		{"a\\b", "x"},
		{"a b", "x"},
		{"a..b", "x"},
		{"a--b", "x"},
		{"a.b", "x"},
	}
	for _, c := range cases {
		if _, err := Qualify(c.ns, c.name); err == nil {
			t.Errorf("Qualify(%q, %q) succeeded, want error", c.ns, c.name)
		}
	}
}

func TestSupervisorIsImmune(t *testing.T) {
	if !Supervisor.IsSupervisor() {
		t.Fatal("Supervisor.IsSupervisor() = false")
	}
	other, _ := Parse("global/other")
	if other.IsSupervisor() {
		t.Fatal("unrelated id reported as supervisor")
	}
}

func TestNamespaceFromDirCollapsesSeparator(t *testing.T) {
	if got := NamespaceFromDir("my--project"); got != "my-project" {
		t.Errorf("NamespaceFromDir = %q, want my-project", got)
	}
}
