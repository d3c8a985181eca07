package forest

import (
	"context"
	"fmt"
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/nrobinson/arenaski/internal/driver"
	"github.com/nrobinson/arenaski/internal/interfaces"
)

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a forest Run. The per-expression step budget is
// configured on the driver itself (driver.Params.MaxStepsPerExpr), not
// here, since Run operates on an already-constructed *driver.Driver.
type Options struct {
	// NoLabels skips the nodeLabel pass entirely (gen-forest
	// --no-labels).
	NoLabels bool

	// Printer overrides the built-in raw-SKI node printer for the
	// nodeLabel records, for callers whose arena holds terms lowered
	// from a richer source language than bare S/K/I.
	Printer interfaces.Printer

	// Progress, if set, is called after every finalized expression
	// with the count of expressions emitted so far and the total.
	Progress func(done, total int)
}

type stepRecord struct {
	From uint32 `json:"from"`
	To   uint32 `json:"to"`
}

type pathRecord struct {
	Expr              string       `json:"expr"`
	Source            uint32       `json:"source"`
	Sink              uint32       `json:"sink"`
	Steps             []stepRecord `json:"steps"`
	ReachedNormalForm bool         `json:"reachedNormalForm"`
	StepsTaken        uint64       `json:"stepsTaken"`
}

type nodeLabelRecord struct {
	Type  string `json:"type"`
	ID    uint32 `json:"id"`
	Label string `json:"label"`
}

// Run generates every term of the given symbol count, lowers each one
// into d's arena, streams them all through d.Stream, and writes the
// resulting JSONL to w: every evaluation path first, then one
// nodeLabel record per referenced node id.
func Run(ctx context.Context, d *driver.Driver, symbolCount int, opts Options, w io.Writer) error {
	terms := Generate(symbolCount)
	if len(terms) == 0 {
		return nil
	}

	exprs := make([]driver.Expression, len(terms))
	sourceLabels := make([]string, len(terms))
	for i, t := range terms {
		id, err := Lower(d.Arena(), t)
		if err != nil {
			return fmt.Errorf("forest: lowering term %d: %w", i, err)
		}
		exprs[i] = driver.Expression{Index: i, RootNodeID: id}
		sourceLabels[i] = Print(t)
	}

	referenced := make(map[uint32]struct{}, len(terms)*2)
	done := 0
	total := len(exprs)
	var writeErr error

	emit := func(p driver.Path) {
		referenced[p.SourceNodeID] = struct{}{}
		referenced[p.ResultNodeID] = struct{}{}
		steps := make([]stepRecord, 0, len(p.Steps))
		for _, s := range p.Steps {
			steps = append(steps, stepRecord{From: s.From, To: s.To})
			referenced[s.From] = struct{}{}
			referenced[s.To] = struct{}{}
		}
		rec := pathRecord{
			Expr:              sourceLabels[p.ExprIndex],
			Source:            p.SourceNodeID,
			Sink:              p.ResultNodeID,
			Steps:             steps,
			ReachedNormalForm: p.ReachedNormalForm,
			StepsTaken:        p.StepsTaken,
		}
		if err := writeLine(w, rec); err != nil && writeErr == nil {
			writeErr = err
		}
		done++
		if opts.Progress != nil {
			opts.Progress(done, total)
		}
	}

	if err := d.Stream(ctx, exprs, emit); err != nil {
		return err
	}
	if writeErr != nil {
		return writeErr
	}

	if opts.NoLabels {
		return nil
	}
	return writeNodeLabels(d, opts.Printer, referenced, w)
}

func writeNodeLabels(d *driver.Driver, printer interfaces.Printer, referenced map[uint32]struct{}, w io.Writer) error {
	ids := make([]uint32, 0, len(referenced))
	for id := range referenced {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		label, err := printLabel(d, printer, id)
		if err != nil {
			return err
		}
		rec := nodeLabelRecord{Type: "nodeLabel", ID: id, Label: label}
		if err := writeLine(w, rec); err != nil {
			return err
		}
	}
	return nil
}

func printLabel(d *driver.Driver, printer interfaces.Printer, id uint32) (string, error) {
	if printer == nil {
		return PrintNode(d.Arena(), id), nil
	}
	label, err := printer.Print(id)
	if err != nil {
		return "", fmt.Errorf("forest: printing node %d: %w", id, err)
	}
	return label, nil
}

func writeLine(w io.Writer, v any) error {
	b, err := jsonAPI.Marshal(v)
	if err != nil {
		return fmt.Errorf("forest: marshaling record: %w", err)
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
