package exclude

import "testing"

func TestMatcher_Match(t *testing.T) {
	m, err := New([]string{"*.tmp", "node_modules/", "build/out", " ", "Thumbs.db"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"a.tmp", false, true},
		{"sub/deep/x.tmp", false, true},
		{"a.txt", false, false},
		{"node_modules", true, true},
		{"web/node_modules", true, true},
		{"node_modules/pkg/index.js", false, true},
		{"node_modules", false, false},
		{"build/out", true, true},
		{"build/other", true, false},
		{"pics/Thumbs.db", false, true},
		{"Q1/Report.key", false, false},
		{"./x.tmp", false, true},
	}

	for _, tt := range tests {
		if got := m.Match(tt.path, tt.isDir); got != tt.want {
			t.Errorf("Match(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
		}
	}
	if m.Len() != 4 {
		t.Errorf("Len() = %d, want 4", m.Len())
	}
}

func TestMatcher_Nil(t *testing.T) {
	var m *Matcher
	if m.Match("anything", false) {
		t.Error("nil matcher should match nothing")
	}
	if m.Len() != 0 {
		t.Error("nil matcher should have no patterns")
	}
}

func TestNew_InvalidPattern(t *testing.T) {
	if _, err := New([]string{"[unclosed"}); err == nil {
		t.Error("expected error for malformed glob")
	}
}
