package shared

import (
	"bytes"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

func TestSafeFilename(t *testing.T) {
	tc := []struct {
		name  string
		input string
		want  string
	}{
		{name: "plain name", input: "j.sech", want: "j.sech"},
		{name: "spaces", input: "Jane Doe", want: "Jane_Doe"},
		{name: "path traversal", input: "../../etc/passwd", want: "_.._etc_passwd"},
		{name: "separators", input: `a/b\c`, want: "a_b_c"},
		{name: "empty", input: "   ", want: "unknown"},
		{name: "only dots", input: "...", want: "unknown"},
		{name: "unicode", input: "Björk", want: "Bj_rk"},
	}

	for _, tt := range tc {
		t.Run(tt.name, func(t *testing.T) {
			if got := SafeFilename(tt.input); got != tt.want {
				t.Errorf("SafeFilename(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestGenerateID(t *testing.T) {
	id := GenerateID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("expected a valid uuid, got %q: %v", id, err)
	}
	if id == GenerateID() {
		t.Error("expected distinct ids")
	}
}

func TestSetLogLevel(t *testing.T) {
	t.Run("known level", func(t *testing.T) {
		var buf bytes.Buffer
		l := NewLogger(&buf)
		SetLogLevel(l, "Warn")
		if l.GetLevel() != log.WarnLevel {
			t.Errorf("expected warn level, got %v", l.GetLevel())
		}
		l.Info("hidden")
		if strings.Contains(buf.String(), "hidden") {
			t.Error("info message should be filtered at warn level")
		}
	})

	t.Run("unknown level falls back to info", func(t *testing.T) {
		l := NewLogger(nil)
		SetLogLevel(l, "verbose")
		if l.GetLevel() != log.InfoLevel {
			t.Errorf("expected info level, got %v", l.GetLevel())
		}
	})
}

func TestBrowserCommand(t *testing.T) {
	tests := []struct {
		goos    string
		want    string
		wantErr bool
	}{
		{goos: "darwin", want: "open"},
		{goos: "linux", want: "xdg-open"},
		{goos: "windows", want: "rundll32"},
		{goos: "plan9", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args, err := browserCommand(tt.goos, "https://example.test")
			if tt.wantErr {
				if err == nil {
					t.Error("expected error for unsupported platform")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if name != tt.want {
				t.Errorf("expected %s, got %s", tt.want, name)
			}
			if args[len(args)-1] != "https://example.test" {
				t.Errorf("expected url as last argument, got %v", args)
			}
		})
	}

	t.Run("OpenBrowser unsupported", func(t *testing.T) {
		orig := getRuntime
		getRuntime = func() string { return "plan9" }
		defer func() { getRuntime = orig }()

		if err := OpenBrowser("https://example.test"); err == nil {
			t.Error("expected error for unsupported platform")
		}
	})
}
