// Package compiler ties the Venom middle-end together: lowering from the
// legacy IR tree, the rewrite pass pipeline run to a fixpoint, and the
// stack scheduler that emits the final assembly item list. This is the one
// entry point a front-end driver needs.
package compiler

import (
	"kanso/internal/legacyir"
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/asm"
	"kanso/internal/venom/ir"
	"kanso/internal/venom/lowering"
	"kanso/internal/venom/passes"
)

// Output is the compiled result for one legacy IR tree: the final Venom
// context (useful for printing/debugging) plus one assembly item list per
// function, keyed by function name.
type Output struct {
	Context *ir.Context
	Asm     map[string][]asm.Item
}

// Options controls which optional passes run; the functional passes
// (MakeSSA, SimplifyCFG, SCCP, DCE, DFTPass) always run since later passes
// and the scheduler both assume SSA form and a scheduled instruction
// order.
type Options struct {
	// Inline enables FuncInliner. Off by default since it changes the
	// shape of the compiled functions (fewer of them) in a way a caller
	// comparing against per-function output may not want.
	Inline bool
	// MaxFixpointIterations bounds the per-function pipeline's fixpoint
	// loop; zero uses a sane default.
	MaxFixpointIterations int
}

const defaultMaxIterations = 16

// Compile lowers root and runs the full middle-end over the result.
func Compile(root *legacyir.Node, opts Options) (*Output, error) {
	ctx, err := lowering.Lower(root)
	if err != nil {
		return nil, err
	}
	return CompileContext(ctx, opts)
}

// CompileContext runs the middle-end over an already-lowered context
// (exposed separately so tests and tooling can build a context by hand
// without going through the legacy tree).
func CompileContext(ctx *ir.Context, opts Options) (*Output, error) {
	am := analysis.NewManager(ctx)
	maxIter := opts.MaxFixpointIterations
	if maxIter == 0 {
		maxIter = defaultMaxIterations
	}

	pm := passes.NewManager(am)
	pm.Add(passes.MakeSSA{})
	pm.Add(passes.SimplifyCFG{})
	pm.Add(passes.SCCP{})
	pm.Add(passes.Mem2Var{})
	pm.Add(passes.StoreElimination{})
	pm.Add(passes.RedundantLoadElimination{})
	pm.Add(passes.StoreElimination{LoadOp: "sload", StoreOp: "sstore"})
	pm.Add(passes.RedundantLoadElimination{LoadOp: "sload", StoreOp: "sstore"})
	pm.Add(passes.RemoveUnusedVariables{})

	for _, fn := range ctx.FunctionsInOrder() {
		if err := pm.RunToFixpoint(fn, maxIter); err != nil {
			return nil, err
		}
	}

	if opts.Inline {
		inliner := &passes.FuncInliner{}
		for {
			changed, err := inliner.RunOnContext(ctx, am)
			if err != nil {
				return nil, err
			}
			if !changed {
				break
			}
			for _, fn := range ctx.FunctionsInOrder() {
				if err := pm.RunToFixpoint(fn, maxIter); err != nil {
					return nil, err
				}
			}
		}
	}

	// DFTPass schedules within-block instruction order for the stack
	// scheduler's benefit; it must run last, after every pass that still
	// reorders or removes instructions has reached its fixpoint.
	dft := passes.DFTPass{}
	for _, fn := range ctx.FunctionsInOrder() {
		if _, err := dft.RunOnFunction(fn, am); err != nil {
			return nil, err
		}
	}

	scheduler := asm.NewScheduler(am)
	out := &Output{Context: ctx, Asm: map[string][]asm.Item{}}
	for _, fn := range ctx.FunctionsInOrder() {
		items, err := scheduler.Schedule(fn)
		if err != nil {
			return nil, err
		}
		out.Asm[fn.Name] = items
	}
	return out, nil
}
