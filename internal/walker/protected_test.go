package walker

import "testing"

func TestIsPrefixExactComponents(t *testing.T) {
	p := &ProtectedPredicate{roots: [][]string{{"usr"}}}
	if !p.IsProtected("/usr") {
		t.Error("expected /usr to be protected")
	}
	if !p.IsProtected("/usr/local") {
		t.Error("expected /usr/local to be protected as a descendant")
	}
	if p.IsProtected("/usr2") {
		t.Error("usr2 must not match the usr protected root (component, not string, prefix)")
	}
	if p.IsProtected("/opt") {
		t.Error("unrelated path must not be protected")
	}
}

func TestSplitPath(t *testing.T) {
	got := splitPath("/a/b/c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("splitPath(%q) = %v, want %v", "/a/b/c", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("splitPath component %d = %q, want %q", i, got[i], want[i])
		}
	}
}
