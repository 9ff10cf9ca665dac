package util

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/xplshn/zabi/pkg/config"
	"github.com/xplshn/zabi/pkg/token"
)

// Stderr receives every diagnostic.
var Stderr io.Writer = os.Stderr

// diagnostics from concurrent lowering must not interleave
var outMu sync.Mutex

// SourceFileRecord tracks the name and content of a single source file.
type SourceFileRecord struct {
	Name    string
	Content []rune
}

var sourceFiles []SourceFileRecord

// SetSourceFiles stores the source code for all input files for rich error messages
func SetSourceFiles(files []SourceFileRecord) {
	sourceFiles = files
}

func findFileAndLine(tok token.Token) (filename string, line, col int) {
	if tok.FileIndex < 0 || tok.FileIndex >= len(sourceFiles) {
		return "unknown", tok.Line, tok.Column
	}
	return sourceFiles[tok.FileIndex].Name, tok.Line, tok.Column
}

func hasLocation(tok token.Token) bool {
	return tok.FileIndex >= 0 && tok.FileIndex < len(sourceFiles) && tok.Line > 0
}

// printErrorLine prints the source line and a caret indicating the error position
func printErrorLine(w io.Writer, tok token.Token) {
	if !hasLocation(tok) {
		return
	}

	content := sourceFiles[tok.FileIndex].Content
	lineNum := tok.Line
	lineStart := 0
	for i, r := range content {
		if lineNum <= 1 {
			break
		}
		if r == '\n' {
			lineNum--
			lineStart = i + 1
		}
	}

	lineEnd := len(content)
	for i := lineStart; i < len(content); i++ {
		if content[i] == '\n' {
			lineEnd = i
			break
		}
	}

	fmt.Fprintf(w, "  %s\n", string(content[lineStart:lineEnd]))
	fmt.Fprintf(w, "  %s\033[32m^", strings.Repeat(" ", max(tok.Column-1, 0)))
	if tok.Len > 1 {
		fmt.Fprintf(w, "%s", strings.Repeat("~", tok.Len-1))
	}
	fmt.Fprintln(w, "\033[0m")
}

// SourceError is a diagnostic anchored at a token of an input file. Err, when set, is the
// lowering error it reports.
type SourceError struct {
	Tok token.Token
	Msg string
	Err error
}

func (e *SourceError) Error() string {
	filename, line, col := findFileAndLine(e.Tok)
	return fmt.Sprintf("%s:%d:%d: %s", filename, line, col, e.Msg)
}

func (e *SourceError) Unwrap() error { return e.Err }

func Errorf(tok token.Token, format string, args ...any) *SourceError {
	return &SourceError{Tok: tok, Msg: fmt.Sprintf(format, args...)}
}

// Wrap anchors err at tok, prefixing the message with what was being done.
func Wrap(tok token.Token, err error, format string, args ...any) *SourceError {
	return &SourceError{Tok: tok, Msg: fmt.Sprintf(format, args...) + ": " + err.Error(), Err: err}
}

func printDiagnostic(tok token.Token, kind, msg, suffix string) {
	outMu.Lock()
	defer outMu.Unlock()
	if hasLocation(tok) {
		filename, line, col := findFileAndLine(tok)
		fmt.Fprintf(Stderr, "%s:%d:%d: %s %s%s\n", filename, line, col, kind, msg, suffix)
		printErrorLine(Stderr, tok)
		return
	}
	fmt.Fprintf(Stderr, "zabi: %s %s%s\n", kind, msg, suffix)
}

// Report prints err. Joined errors are printed one by one and source errors get the
// offending line underlined.
func Report(err error) {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			Report(e)
		}
		return
	}
	var srcErr *SourceError
	if errors.As(err, &srcErr) {
		printDiagnostic(srcErr.Tok, "\033[31merror:\033[0m", srcErr.Msg, "")
		return
	}
	printDiagnostic(token.Token{FileIndex: -1}, "\033[31merror:\033[0m", err.Error(), "")
}

// Error prints a formatted error message and exits the program
func Error(tok token.Token, format string, args ...any) {
	printDiagnostic(tok, "\033[31merror:\033[0m", fmt.Sprintf(format, args...), "")
	os.Exit(1)
}

// Warn prints a formatted warning message if the corresponding warning is enabled
func Warn(cfg *config.Config, wt config.Warning, tok token.Token, format string, args ...any) {
	if !cfg.IsWarningEnabled(wt) {
		return
	}
	suffix := fmt.Sprintf(" [-W%s]", cfg.Warnings[wt].Name)
	printDiagnostic(tok, "\033[33mwarning:\033[0m", fmt.Sprintf(format, args...), suffix)
}

// Info prints a progress line.
func Info(format string, args ...any) {
	outMu.Lock()
	defer outMu.Unlock()
	fmt.Fprintf(Stderr, "zabi: info: "+format+"\n", args...)
}
