package arena

import "unsafe"

// Kind tags what a node is: one of the combinator terminals, a data
// constructor application target, a literal, an I/O primitive, or an
// application of two existing nodes.
type Kind uint32

const (
	KindApp Kind = iota
	KindS
	KindK
	KindI
	KindConstructor
	KindLitInt
	KindLitChar
	KindReadOne  // primitive: suspends until a byte is available on stdin
	KindWriteOne // primitive: writes its first argument's byte to stdout
	KindMatch    // primitive: pattern selection over a constructor scrutinee
)

func (k Kind) String() string {
	switch k {
	case KindApp:
		return "app"
	case KindS:
		return "S"
	case KindK:
		return "K"
	case KindI:
		return "I"
	case KindConstructor:
		return "ctor"
	case KindLitInt:
		return "litint"
	case KindLitChar:
		return "litchar"
	case KindReadOne:
		return "readOne"
	case KindWriteOne:
		return "writeOne"
	case KindMatch:
		return "match"
	default:
		return "unknown"
	}
}

// rawNode is the fixed-offset, 16-byte on-the-wire representation of a
// single arena node. Every node, terminal or application, occupies
// exactly one rawNode slot so that node id == slot index.
//
//	Kind == KindApp:   Left/Right are the operand node ids.
//	Kind == KindConstructor: Aux is the constructor tag, Left is the
//	                   field count, Right is unused (fields are
//	                   themselves chained application nodes, same as
//	                   any other curried application).
//	Kind == KindLitInt: Aux/Right together hold the 64-bit literal value
//	                   (Aux = high 32 bits, Right = low 32 bits).
//	Kind == KindLitChar: Aux holds the character.
//	Kind == KindWriteOne: no payload; applied to a KindLitChar and a
//	                   continuation, it writes that literal's byte and
//	                   reduces to the continuation.
//	Kind == KindMatch: Aux holds the branch count. Applied to a
//	                   scrutinee followed by one branch per
//	                   constructor tag (arity Aux+1), it selects the
//	                   branch at the scrutinee's tag and applies it to
//	                   the scrutinee's fields in order.
type rawNode struct {
	Kind  Kind
	Aux   uint32
	Left  uint32
	Right uint32
}

// Compile-time size check: the node layout is the arena's external
// ABI and must stay exactly 16 bytes.
var _ [16]byte = [unsafe.Sizeof(rawNode{})]byte{}

// Node is the caller-facing, copied-out view of a rawNode.
type Node struct {
	Kind  Kind
	Aux   uint32
	Left  uint32
	Right uint32
}

// IsApplication reports whether n is an application of Left to Right.
func (n Node) IsApplication() bool { return n.Kind == KindApp }

// IsTerminal reports whether n is anything other than an application.
func (n Node) IsTerminal() bool { return n.Kind != KindApp }

// LitValue reassembles a 64-bit literal from Aux (high) and Right (low).
func (n Node) LitValue() uint64 {
	return uint64(n.Aux)<<32 | uint64(n.Right)
}
