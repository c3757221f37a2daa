package version

import "testing"

func TestGetReflectsLinkerVariables(t *testing.T) {
	orig := Commit
	t.Cleanup(func() { Commit = orig })
	Commit = "abc123"

	info := Get()
	if info.Commit != "abc123" || info.Version != Version {
		t.Fatalf("unexpected info %+v", info)
	}
	if got := info.String(); got != "version="+Version+" commit=abc123 built_at="+BuiltAt {
		t.Fatalf("unexpected string %q", got)
	}
}
