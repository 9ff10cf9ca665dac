package util

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/token"
)

func captureStderr(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	old := Stderr
	Stderr = &buf
	t.Cleanup(func() { Stderr = old })
	return &buf
}

func withSource(t *testing.T, name, src string) {
	t.Helper()
	SetSourceFiles([]SourceFileRecord{{Name: name, Content: []rune(src)}})
	t.Cleanup(func() { SetSourceFiles(nil) })
}

func TestSourceError(t *testing.T) {
	withSource(t, "a.sig", "func f()\nfunc g(i65)\n")
	tok := token.Token{FileIndex: 0, Line: 2, Column: 8, Len: 3}

	err := Errorf(tok, "Unknown type '%s'", "i65")
	if got, want := err.Error(), "a.sig:2:8: Unknown type 'i65'"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}

	base := errors.New("boom")
	wrapped := Wrap(tok, base, "Cannot lower '%s'", "g")
	if !errors.Is(wrapped, base) {
		t.Error("Wrap lost the underlying error")
	}
	if got, want := wrapped.Msg, "Cannot lower 'g': boom"; got != want {
		t.Errorf("Msg = %q, want %q", got, want)
	}
}

func TestReportPrintsEveryJoinedError(t *testing.T) {
	withSource(t, "a.sig", "func f(i65)\nfunc g(i66)\n")
	buf := captureStderr(t)

	Report(errors.Join(
		Errorf(token.Token{FileIndex: 0, Line: 1, Column: 8, Len: 3}, "first"),
		Errorf(token.Token{FileIndex: 0, Line: 2, Column: 8, Len: 3}, "second"),
		errors.New("plain"),
	))

	out := buf.String()
	for _, want := range []string{"a.sig:1:8:", "first", "func g(i66)", "second", "zabi:", "plain"} {
		if !strings.Contains(out, want) {
			t.Errorf("report does not contain %q:\n%s", want, out)
		}
	}
}

func TestWarnSuffix(t *testing.T) {
	buf := captureStderr(t)
	cfg := config.NewConfig()

	Warn(cfg, config.WarnBackchain, token.Token{FileIndex: -1}, "quiet")
	if buf.Len() != 0 {
		t.Fatalf("disabled warning printed %q", buf.String())
	}

	Warn(cfg, config.WarnLargeFrame, token.Token{FileIndex: -1}, "frame is %d bytes", 70000)
	if out := buf.String(); !strings.Contains(out, "frame is 70000 bytes [-Wlarge-frame]") {
		t.Errorf("warning = %q", out)
	}
}
