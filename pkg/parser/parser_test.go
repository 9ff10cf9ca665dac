package parser

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/xplshn/zabi/pkg/ast"
	"github.com/xplshn/zabi/pkg/lexer"
	"github.com/xplshn/zabi/pkg/util"
)

func parse(t *testing.T, src string) (*ast.Node, error) {
	t.Helper()
	tokens, err := lexer.Tokenize([]rune(src), 0)
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	return NewParser(tokens).Parse()
}

func TestParseFuncDecl(t *testing.T) {
	root, err := parse(t, `
// [zabi]: -Fprobestack
func callee(i64 sext, i64 struct(24) sret) -> (f64, i32 uext) tail
func caller(i64, i64 vmctx, i64 stack_limit) -> i64 {
	clobbers r6, r7, f8
	stackslots 32
	spillslots 16
	outgoing 8
	call callee -> r2, spill 8
	tailcall callee pop 16
}`)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	decls := root.Data.(ast.FileNode).Decls
	if len(decls) != 3 {
		t.Fatalf("got %d top level nodes, want 3", len(decls))
	}
	if d := decls[0].Data.(ast.DirectiveNode); d.Flags != "-Fprobestack" {
		t.Errorf("directive flags = %q", d.Flags)
	}

	callee := decls[1].Data.(ast.FuncDeclNode)
	if callee.Name != "callee" || callee.HasBody || callee.Conv == nil || callee.Conv.Data.(ast.IdentNode).Name != "tail" {
		t.Fatalf("callee = %+v", callee)
	}
	wantParams := []ast.ParamNode{
		{TypeName: "i64", Attrs: []string{"sext"}},
		{TypeName: "i64", Attrs: []string{"struct", "sret"}, StructSize: 24},
	}
	var gotParams []ast.ParamNode
	for _, n := range callee.Params {
		gotParams = append(gotParams, n.Data.(ast.ParamNode))
	}
	if diff := cmp.Diff(wantParams, gotParams); diff != "" {
		t.Errorf("params (-want +got):\n%s", diff)
	}
	if len(callee.Returns) != 2 || callee.Returns[1].Data.(ast.ParamNode).Attrs[0] != "uext" {
		t.Errorf("returns = %+v", callee.Returns)
	}

	caller := decls[2].Data.(ast.FuncDeclNode)
	if caller.Conv != nil || !caller.HasBody || len(caller.Returns) != 1 {
		t.Fatalf("caller = %+v", caller)
	}
	var kinds []ast.NodeType
	for _, n := range caller.Body {
		kinds = append(kinds, n.Type)
		if n.Parent != decls[2] {
			t.Errorf("body node %v has the wrong parent", n.Type)
		}
	}
	wantKinds := []ast.NodeType{ast.Clobbers, ast.StackSlots, ast.SpillSlots, ast.Outgoing, ast.Call, ast.TailCall}
	if diff := cmp.Diff(wantKinds, kinds); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}

	call := caller.Body[4].Data.(ast.CallNode)
	if call.Callee != "callee" || len(call.Dests) != 2 || call.Dests[0].Type != ast.Ident || call.Dests[1].Data.(ast.SpillNode).Slot != 8 {
		t.Errorf("call = %+v", call)
	}
	if tc := caller.Body[5].Data.(ast.TailCallNode); tc.Target != "callee" || tc.Pop != 16 {
		t.Errorf("tailcall = %+v", tc)
	}
	if sz := caller.Body[1].Data.(ast.SizeNode); sz.Size != 32 {
		t.Errorf("stackslots = %d", sz.Size)
	}
}

func TestWalkCountsRegisters(t *testing.T) {
	root, err := parse(t, "func a() { clobbers r6, r7 }\nfunc b() { clobbers f8 }")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	idents := 0
	ast.Walk(root, func(n *ast.Node) bool {
		if n.Type == ast.Ident {
			idents++
		}
		return true
	})
	if idents != 3 {
		t.Fatalf("walked %d idents, want 3", idents)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		src, msg  string
		line, col int
	}{
		{"func (i64)", "Expected a function name after 'func'.", 1, 6},
		{"func f(i64", "Expected ')' after parameter list.", 1, 11},
		{"func f() { stackslots }", "Expected a number after 'stackslots'.", 1, 23},
		{"func f() {\n  pop 3\n}", "Unexpected 'pop' in function body.", 2, 3},
		{"func f() { call g -> 4 }", "Expected a register or 'spill N' as call destination, got number.", 1, 22},
		{"clobbers r6", "Expected 'func' or a directive, got 'clobbers'.", 1, 1},
		{"func f() { clobbers r6", "Expected '}' to close the body of 'f'.", 1, 23},
		{"func f(i64 struct 8)", "Expected '(' after 'struct'.", 1, 19},
	}
	for _, c := range cases {
		_, err := parse(t, c.src)
		var srcErr *util.SourceError
		if !errors.As(err, &srcErr) {
			t.Errorf("%q: error = %v, want a source error", c.src, err)
			continue
		}
		if srcErr.Msg != c.msg || srcErr.Tok.Line != c.line || srcErr.Tok.Column != c.col {
			t.Errorf("%q: got %q at %d:%d, want %q at %d:%d", c.src, srcErr.Msg,
				srcErr.Tok.Line, srcErr.Tok.Column, c.msg, c.line, c.col)
		}
	}
}
