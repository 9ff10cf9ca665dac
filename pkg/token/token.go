package token

type Type int

const (
	EOF Type = iota
	Comment
	Directive
	Ident
	Number
	Func
	Clobbers
	StackSlots
	SpillSlots
	Outgoing
	TailCall
	Pop
	Call
	Spill
	LParen
	RParen
	LBrace
	RBrace
	Comma
	Arrow
)

var KeywordMap = map[string]Type{
	"func":       Func,
	"clobbers":   Clobbers,
	"stackslots": StackSlots,
	"spillslots": SpillSlots,
	"outgoing":   Outgoing,
	"tailcall":   TailCall,
	"pop":        Pop,
	"call":       Call,
	"spill":      Spill,
}

// Reverse mapping from Type to the keyword string
var TypeStrings = map[Type]string{
	EOF:       "end of file",
	Directive: "directive",
	Ident:     "identifier",
	Number:    "number",
	LParen:    "'('",
	RParen:    "')'",
	LBrace:    "'{'",
	RBrace:    "'}'",
	Comma:     "','",
	Arrow:     "'->'",
}

func init() {
	for str, typ := range KeywordMap {
		TypeStrings[typ] = "'" + str + "'"
	}
}

func (t Type) String() string {
	if s, ok := TypeStrings[t]; ok {
		return s
	}
	return "token"
}

type Token struct {
	Type      Type
	Value     string
	FileIndex int
	Line      int
	Column    int
	Len       int
}
