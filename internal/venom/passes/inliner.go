package passes

import (
	"fmt"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// FuncInliner inlines a callee into its unique call site: copy the
// callee's blocks under a fresh name prefix, rewrite its param
// pseudo-instructions into stores of the caller's actual arguments (the
// return buffer pointer counts as an actual), redirect every ret in the
// copied body to a freshly created continuation block holding the
// call site's post-call instructions, and splice that continuation in
// place of the invoke. Only functions with exactly one invoke site
// anywhere in the context are eligible; inlining is applied in call-graph
// post-order so an already-inlined callee's own callees have already been
// flattened into it.
type FuncInliner struct {
	count int
}

// RunOnContext runs the inliner once over every eligible function, mutating
// ctx in place. Returns whether anything was inlined.
func (p *FuncInliner) RunOnContext(ctx *ir.Context, am *analysis.Manager) (bool, error) {
	cg := am.CallGraph()
	order := cg.PostOrder(ctx)

	changed := false
	for _, name := range order {
		callee := ctx.Functions[name]
		if callee == nil {
			continue // already removed by an earlier inline in this pass
		}
		site, ok := cg.SingleCallSite(name)
		if !ok {
			continue
		}
		if site.Block == nil || site.Block.Function == callee {
			continue // self-recursive single call site: never inline a function into itself
		}
		if err := p.inlineCallSite(ctx, callee, site); err != nil {
			return changed, err
		}
		changed = true
		am.InvalidateCallGraph()
		am.InvalidateCFG(site.Block.Function)
		cg = am.CallGraph()
	}
	return changed, nil
}

func (p *FuncInliner) inlineCallSite(ctx *ir.Context, callee *ir.Function, site *ir.Instruction) error {
	caller := site.Block.Function
	callBlock := site.Block

	p.count++
	prefix := fmt.Sprintf("inline%d.", p.count)

	// Copy every callee block under the fresh prefix, preserving relative
	// CFGOut structure via the copied labels (block.go's Copy() doesn't wire
	// CFG pointers, only instructions, so this pass rebuilds them itself via
	// ComputeCFG once the copies are spliced in).
	copies := map[*ir.BasicBlock]*ir.BasicBlock{}
	for _, b := range callee.Blocks {
		nb := b.Copy(prefix)
		copies[b] = nb
		caller.AppendBlock(nb)
	}
	// Label operands inside the copied bodies refer to un-prefixed callee
	// labels (jmp/jnz/phi targets); redirect them to the prefixed copies.
	relabel := map[string]*ir.Label{}
	for orig, nb := range copies {
		relabel[orig.Label] = ir.NewLabel(nb.Label)
	}
	for _, nb := range copies {
		for _, inst := range nb.Instructions {
			inst.ReplaceLabelOperands(relabel)
		}
	}

	entry := copies[callee.Entry]

	// Split the call block: everything from site onward is the "post-call"
	// tail, which becomes the continuation block that callee returns into.
	idx := indexOfInstruction(callBlock.Instructions, site)
	tailInsts := append([]*ir.Instruction{}, callBlock.Instructions[idx+1:]...)
	callBlock.Instructions = callBlock.Instructions[:idx]

	contLabel := fmt.Sprintf("%scont", prefix)
	cont := ir.NewBasicBlock(contLabel)
	for _, inst := range tailInsts {
		inst.Block = cont
		cont.Instructions = append(cont.Instructions, inst)
	}
	caller.AppendBlock(cont)

	// invoke operands, by construction in the legacy-to-venom lowering, are
	// [callee label, actual args..., return-buffer pointer]; param
	// instructions in the callee's entry appear in the same order they were
	// declared, one per actual.
	actuals := site.Operands[1:]
	params := []*ir.Instruction{}
	for _, inst := range entry.Instructions {
		if inst.IsParam() {
			params = append(params, inst)
		}
	}
	for i, param := range params {
		if i >= len(actuals) {
			break
		}
		param.Opcode = "store"
		param.Operands = []ir.Operand{actuals[i]}
	}

	// Redirect callee jmp into its (copied) entry from the call block, and
	// turn every ret in the copied body into a jmp to the continuation.
	callBlock.AppendInstruction(&ir.Instruction{
		Opcode:   "jmp",
		Operands: []ir.Operand{ir.NewLabel(entry.Label)},
	})
	for _, nb := range copies {
		for _, inst := range nb.Instructions {
			if inst.Opcode != "ret" {
				continue
			}
			if site.Output != nil && len(inst.Operands) > 0 {
				inst.Opcode = "store"
				inst.Output = site.Output
				inst.Operands = []ir.Operand{inst.Operands[0]}
				nb.AppendInstruction(&ir.Instruction{
					Opcode:   "jmp",
					Operands: []ir.Operand{ir.NewLabel(contLabel)},
				})
			} else {
				inst.Opcode = "jmp"
				inst.Operands = []ir.Operand{ir.NewLabel(contLabel)}
			}
		}
	}

	ctx.RemoveFunction(callee.Name)
	return nil
}
