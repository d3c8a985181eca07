// Package forest enumerates every raw SKI combinator term of a given
// symbol count, evaluates each one through a driver.Driver, and emits
// the resulting evaluation forest as JSONL. Raw SKI terms need no
// external front-end: enumeration, lowering into the arena, and
// printing are all owned here.
package forest

// Symbol is one of the three SKI combinator terminals a leaf can be
// labeled with.
type Symbol int

const (
	SymS Symbol = iota
	SymK
	SymI
)

func (s Symbol) String() string {
	switch s {
	case SymS:
		return "S"
	case SymK:
		return "K"
	case SymI:
		return "I"
	default:
		return "?"
	}
}

var symbols = [3]Symbol{SymS, SymK, SymI}

// Term is a binary tree of application nodes with SKI-labeled leaves:
// the in-memory shape generated terms take before they are lowered
// into the arena.
type Term struct {
	Leaf        bool
	Symbol      Symbol
	Left, Right *Term
}

// Generate produces every binary tree with exactly symbolCount leaves,
// each leaf labeled S, K or I, in a fixed deterministic order: tree
// shapes in standard Catalan recursive-split order, and within each
// shape every labeling of its leaves with the leftmost leaf's label
// varying fastest.
func Generate(symbolCount int) []*Term {
	if symbolCount <= 0 {
		return nil
	}
	shapes := generateShapes(symbolCount)
	var out []*Term
	for _, shape := range shapes {
		leaves := collectLeaves(shape)
		n := len(leaves)
		total := pow3(n)
		for labeling := 0; labeling < total; labeling++ {
			assignLabels(leaves, labeling)
			out = append(out, cloneTerm(shape))
		}
	}
	return out
}

// shapeLeaf marks an unlabeled placeholder leaf in a shape tree; its
// Symbol field is overwritten by assignLabels before each clone.
func shapeLeaf() *Term { return &Term{Leaf: true} }

// generateShapes returns every unlabeled binary tree with n leaves,
// via the standard recursive split over left/right leaf counts.
func generateShapes(n int) []*Term {
	if n == 1 {
		return []*Term{shapeLeaf()}
	}
	var out []*Term
	for split := 1; split < n; split++ {
		lefts := generateShapes(split)
		rights := generateShapes(n - split)
		for _, l := range lefts {
			for _, r := range rights {
				out = append(out, &Term{Left: l, Right: r})
			}
		}
	}
	return out
}

// collectLeaves walks t left to right and returns its leaf nodes in
// that order, so the digit at position i of a labeling index
// corresponds to leaves[i].
func collectLeaves(t *Term) []*Term {
	if t.Leaf {
		return []*Term{t}
	}
	return append(collectLeaves(t.Left), collectLeaves(t.Right)...)
}

// assignLabels writes labeling's base-3 digits into leaves in order,
// digit 0 (least significant) going to the leftmost leaf so that it
// is the one that changes on every increment of labeling.
func assignLabels(leaves []*Term, labeling int) {
	for _, leaf := range leaves {
		leaf.Symbol = symbols[labeling%3]
		labeling /= 3
	}
}

// cloneTerm deep-copies a shape tree with its leaves' current labels,
// since generateShapes' trees are reused across every labeling of the
// same shape.
func cloneTerm(t *Term) *Term {
	if t.Leaf {
		return &Term{Leaf: true, Symbol: t.Symbol}
	}
	return &Term{Left: cloneTerm(t.Left), Right: cloneTerm(t.Right)}
}

func pow3(n int) int {
	p := 1
	for i := 0; i < n; i++ {
		p *= 3
	}
	return p
}
