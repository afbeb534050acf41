package flatstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSanitizeID(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"abc123", "abc123"},
		{"chain-42_x", "chain-42_x"},
		{"../../../evil", "_________evil"},
		{`..\..\win`, "______win"},
		{"a/b.c", "a_b_c"},
		{"héllo", "h_llo"},
		{"", ""},
	}

	for _, tt := range tests {
		got := SanitizeID(tt.in)
		if got != tt.want {
			t.Errorf("SanitizeID(%q) = %q, want %q", tt.in, got, tt.want)
		}
		if utf8.RuneCountInString(got) != utf8.RuneCountInString(tt.in) {
			t.Errorf("SanitizeID(%q) changed rune length", tt.in)
		}
		if strings.ContainsAny(got, `./\`) {
			t.Errorf("SanitizeID(%q) = %q contains unsafe characters", tt.in, got)
		}
	}
}

func TestPathContainment(t *testing.T) {
	base := t.TempDir()
	fs := NewFlatStore(base, ".json", "chain")

	for _, id := range []string{"plain", "../../../../etc/passwd", "a/../../b", `..\..\..`} {
		path, err := fs.Path(id)
		if err != nil {
			t.Fatalf("Path(%q): %v", id, err)
		}
		rel, err := filepath.Rel(base, path)
		if err != nil || strings.HasPrefix(rel, "..") {
			t.Errorf("Path(%q) = %q escapes base dir", id, path)
		}
	}

	if _, err := fs.Path(""); err == nil {
		t.Error("expected error for empty id")
	}
}

func TestWriteReadDoc(t *testing.T) {
	fs := NewFlatStore(t.TempDir(), ".json", "chain")

	want := []byte(`{"hello":"world"}`)
	if err := fs.WriteDoc("abc123", want); err != nil {
		t.Fatalf("WriteDoc: %v", err)
	}

	got, err := fs.ReadDoc("abc123")
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("ReadDoc = %s, want %s", got, want)
	}

	// No stray temp file left behind.
	entries, err := os.ReadDir(fs.BaseDir())
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("leftover temp file: %s", e.Name())
		}
	}
}

func TestReadDocMissing(t *testing.T) {
	fs := NewFlatStore(t.TempDir(), ".json", "chain")

	data, err := fs.ReadDoc("nonexistent")
	if err != nil {
		t.Fatalf("ReadDoc: %v", err)
	}
	if data != nil {
		t.Errorf("expected nil for missing doc, got %s", data)
	}
}

func TestListDocs(t *testing.T) {
	base := t.TempDir()
	fs := NewFlatStore(base, ".json", "chain")

	for _, id := range []string{"one", "two", "three"} {
		if err := fs.WriteDoc(id, []byte(`{"id":"`+id+`"}`)); err != nil {
			t.Fatalf("WriteDoc %s: %v", id, err)
		}
	}
	// Non-matching extension and directories are ignored.
	if err := os.WriteFile(filepath.Join(base, "notes.txt"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "subdir"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	docs, err := fs.ListDocs()
	if err != nil {
		t.Fatalf("ListDocs: %v", err)
	}
	if len(docs) != 3 {
		t.Errorf("ListDocs returned %d docs, want 3", len(docs))
	}
}

func TestListDocsNonExistent(t *testing.T) {
	fs := NewFlatStore(filepath.Join(t.TempDir(), "nope"), ".json", "chain")

	docs, err := fs.ListDocs()
	if err != nil {
		t.Fatalf("ListDocs: %v", err)
	}
	if docs != nil {
		t.Errorf("expected nil, got %v", docs)
	}
}

func TestRemoveDoc(t *testing.T) {
	fs := NewFlatStore(t.TempDir(), ".json", "chain")

	if err := fs.WriteDoc("gone", []byte(`{}`)); err != nil {
		t.Fatalf("WriteDoc: %v", err)
	}

	removed, err := fs.RemoveDoc("gone")
	if err != nil {
		t.Fatalf("RemoveDoc: %v", err)
	}
	if !removed {
		t.Error("expected removed=true")
	}

	removed, err = fs.RemoveDoc("gone")
	if err != nil {
		t.Fatalf("RemoveDoc second: %v", err)
	}
	if removed {
		t.Error("expected removed=false for missing doc")
	}
}
