// Package ast defines the syntax tree of a signature file
package ast

import (
	"github.com/xplshn/zabi/pkg/token"
)

// NodeType defines the kind of a node in the AST
type NodeType int

const (
	File NodeType = iota
	FuncDecl
	Param
	Directive

	// Body directives
	Clobbers
	StackSlots
	SpillSlots
	Outgoing
	TailCall
	Call

	// Operands
	Ident
	Number
	Spill
)

// Node represents a node in the Abstract Syntax Tree
type Node struct {
	Type   NodeType
	Tok    token.Token
	Parent *Node
	Data   interface{}
}

// --- Node Data Structs ---
type FileNode struct{ Decls []*Node }
type NumberNode struct{ Value uint32 }
type IdentNode struct{ Name string }
type SpillNode struct{ Slot uint32 }
type DirectiveNode struct{ Flags string }

// ParamNode is one parameter or return value. StructSize is set only for struct(N).
type ParamNode struct {
	TypeName   string
	Attrs      []string
	StructSize uint32
}

type FuncDeclNode struct {
	Name    string
	Params  []*Node
	Returns []*Node
	Conv    *Node // Ident, nil for the default convention
	Body    []*Node
	HasBody bool
}

type ClobbersNode struct{ Regs []*Node }
type SizeNode struct{ Size uint32 } // stackslots, spillslots and outgoing
type TailCallNode struct {
	Target string
	Pop    uint32
	HasPop bool
}
type CallNode struct {
	Callee string
	Dests  []*Node
}

// --- Node Constructors ---

func newNode(tok token.Token, nodeType NodeType, data interface{}, children ...*Node) *Node {
	node := &Node{Type: nodeType, Tok: tok, Data: data}
	for _, child := range children {
		if child != nil {
			child.Parent = node
		}
	}
	return node
}

func NewFile(tok token.Token, decls []*Node) *Node {
	return newNode(tok, File, FileNode{Decls: decls}, decls...)
}
func NewNumber(tok token.Token, value uint32) *Node {
	return newNode(tok, Number, NumberNode{Value: value})
}
func NewIdent(tok token.Token, name string) *Node {
	return newNode(tok, Ident, IdentNode{Name: name})
}
func NewSpill(tok token.Token, slot uint32) *Node {
	return newNode(tok, Spill, SpillNode{Slot: slot})
}
func NewDirective(tok token.Token, flags string) *Node {
	return newNode(tok, Directive, DirectiveNode{Flags: flags})
}
func NewParam(tok token.Token, typeName string, attrs []string, structSize uint32) *Node {
	return newNode(tok, Param, ParamNode{TypeName: typeName, Attrs: attrs, StructSize: structSize})
}
func NewFuncDecl(tok token.Token, name string, params, returns []*Node, conv *Node, body []*Node, hasBody bool) *Node {
	node := newNode(tok, FuncDecl, FuncDeclNode{
		Name: name, Params: params, Returns: returns, Conv: conv, Body: body, HasBody: hasBody,
	}, conv)
	for _, group := range [][]*Node{params, returns, body} {
		for _, n := range group {
			n.Parent = node
		}
	}
	return node
}
func NewClobbers(tok token.Token, regs []*Node) *Node {
	return newNode(tok, Clobbers, ClobbersNode{Regs: regs}, regs...)
}

// NewSize builds a stackslots, spillslots or outgoing directive.
func NewSize(tok token.Token, nodeType NodeType, size uint32) *Node {
	return newNode(tok, nodeType, SizeNode{Size: size})
}
func NewTailCall(tok token.Token, target string, pop uint32, hasPop bool) *Node {
	return newNode(tok, TailCall, TailCallNode{Target: target, Pop: pop, HasPop: hasPop})
}
func NewCall(tok token.Token, callee string, dests []*Node) *Node {
	return newNode(tok, Call, CallNode{Callee: callee, Dests: dests}, dests...)
}

// Walk visits node and its descendants depth first. fn returning false prunes the subtree.
func Walk(node *Node, fn func(*Node) bool) {
	if node == nil || !fn(node) {
		return
	}
	var children []*Node
	switch d := node.Data.(type) {
	case FileNode:
		children = d.Decls
	case FuncDeclNode:
		children = append(append(append(children, d.Params...), d.Returns...), d.Body...)
	case ClobbersNode:
		children = d.Regs
	case CallNode:
		children = d.Dests
	}
	for _, child := range children {
		Walk(child, fn)
	}
}
