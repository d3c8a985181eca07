package forest

import (
	"fmt"
	"strconv"

	"github.com/nrobinson/arenaski/internal/arena"
)

// Lower recursively allocates t directly into a, terminal nodes for
// leaves and application nodes for internal tree nodes. Raw SKI terms
// are already in the arena's native vocabulary, so no external
// lowering collaborator is involved.
func Lower(a *arena.Arena, t *Term) (uint32, error) {
	if t.Leaf {
		var kind arena.Kind
		switch t.Symbol {
		case SymS:
			kind = arena.KindS
		case SymK:
			kind = arena.KindK
		case SymI:
			kind = arena.KindI
		}
		return a.AllocTerminal(kind, 0, 0, 0)
	}
	left, err := Lower(a, t.Left)
	if err != nil {
		return 0, err
	}
	right, err := Lower(a, t.Right)
	if err != nil {
		return 0, err
	}
	return a.AllocApplication(left, right)
}

// Print renders t as parenthesized left-associative application, the
// same shape self-lowering consumes: S, K, I for leaves, "(a b)" for
// an application of a to b.
func Print(t *Term) string {
	if t.Leaf {
		return t.Symbol.String()
	}
	return "(" + Print(t.Left) + " " + Print(t.Right) + ")"
}

// maxPrintDepth bounds PrintNode's recursion so a node that has been
// rewritten into a self-referential shape (the exact condition the
// driver's cycle detector finalizes on) can't recurse forever if it
// is printed before that finalization is observed.
const maxPrintDepth = 100000

// PrintNode renders the *current* arena content at id, which may no
// longer match any generated Term once reduction has rewritten it in
// place. This is the built-in printer used for the "nodeLabel" JSONL
// records when no external Printer collaborator is supplied.
func PrintNode(a *arena.Arena, id uint32) string {
	return printNode(a, id, make(map[uint32]bool), 0)
}

func printNode(a *arena.Arena, id uint32, visiting map[uint32]bool, depth int) string {
	if depth > maxPrintDepth {
		return "..."
	}
	node, ok := a.Get(id)
	if !ok {
		return "?"
	}
	switch node.Kind {
	case arena.KindS:
		return "S"
	case arena.KindK:
		return "K"
	case arena.KindI:
		return "I"
	case arena.KindLitInt:
		return strconv.FormatUint(node.LitValue(), 10)
	case arena.KindLitChar:
		return strconv.Quote(string(rune(node.Aux)))
	case arena.KindConstructor:
		return fmt.Sprintf("ctor%d", node.Aux)
	case arena.KindReadOne:
		return "readOne"
	case arena.KindWriteOne:
		return "writeOne"
	case arena.KindApp:
		if visiting[id] {
			return "<cycle>"
		}
		visiting[id] = true
		s := "(" + printNode(a, node.Left, visiting, depth+1) + " " + printNode(a, node.Right, visiting, depth+1) + ")"
		delete(visiting, id)
		return s
	default:
		return "?"
	}
}
