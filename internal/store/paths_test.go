package store

import (
	"path/filepath"
	"testing"
)

func TestLayoutDerivesPaths(t *testing.T) {
	layout := Layout{Dir: "/srv/files"}
	if got := layout.InputPath("abc"); got != filepath.Join("/srv/files", "abc_o.c") {
		t.Fatalf("InputPath = %q", got)
	}
	if got := layout.OutputPath("abc"); got != filepath.Join("/srv/files", "abc_t.c") {
		t.Fatalf("OutputPath = %q", got)
	}
	if got := layout.FlowPath("abc"); got != filepath.Join("/srv/files", "abc_t.json") {
		t.Fatalf("FlowPath = %q", got)
	}
	if len(layout.All("abc")) != 3 {
		t.Fatal("expected three derived paths")
	}
}

func TestRemotePath(t *testing.T) {
	if got := RemotePath("", "x_o.c"); got != "x_o.c" {
		t.Fatalf("RemotePath empty dir = %q", got)
	}
	if got := RemotePath("/work/", "x_o.c"); got != "/work/x_o.c" {
		t.Fatalf("RemotePath = %q", got)
	}
}

func TestValidRef(t *testing.T) {
	cases := map[string]bool{
		"abc-123_X": true,
		"":          false,
		"../x":      false,
		"a/b":       false,
		"a b":       false,
	}
	for ref, want := range cases {
		if got := ValidRef(ref); got != want {
			t.Fatalf("ValidRef(%q) = %v, want %v", ref, got, want)
		}
	}
}

func TestRebindPostgres(t *testing.T) {
	s := &Store{engine: "postgres"}
	if got := s.rebind("SELECT * FROM t WHERE a = ? AND b = ?"); got != "SELECT * FROM t WHERE a = $1 AND b = $2" {
		t.Fatalf("rebind = %q", got)
	}
	sqlite := &Store{engine: "sqlite"}
	if got := sqlite.rebind("a = ?"); got != "a = ?" {
		t.Fatalf("sqlite rebind = %q", got)
	}
}
