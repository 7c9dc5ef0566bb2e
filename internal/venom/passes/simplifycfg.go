package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// SimplifyCFG merges a block into its unique predecessor when legal,
// removes blocks unreachable from entry (fixing up successor phis first),
// and removes empty non-entry blocks by redirecting label operands to
// their successor, preserving symbol labels across the merge.
type SimplifyCFG struct{}

func (SimplifyCFG) Name() string { return "simplify-cfg" }

func (p SimplifyCFG) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	am.CFG(fn) // ensure CFGIn/CFGOut reflect current terminators before we reason about them
	changed := false

	if p.removeUnreachable(fn) {
		changed = true
		am.InvalidateCFG(fn)
		am.CFG(fn)
	}

	for {
		did := false
		if p.mergeStraightLine(fn, am) {
			did = true
		}
		if p.removeEmptyBlocks(fn, am) {
			did = true
		}
		if !did {
			break
		}
		changed = true
	}

	return changed, nil
}

func (p SimplifyCFG) removeUnreachable(fn *ir.Function) bool {
	reachable := analysis.Reachable(fn)
	doomed := map[*ir.BasicBlock]struct{}{}
	for _, b := range fn.Blocks {
		if _, ok := reachable[b]; !ok {
			doomed[b] = struct{}{}
		}
	}
	if len(doomed) == 0 {
		return false
	}
	for dead := range doomed {
		for _, succ := range dead.CFGOut {
			succ.CFGIn = removeBlock(succ.CFGIn, dead)
			succ.FixPhiInstructions()
		}
	}
	fn.RemoveBlocks(doomed)
	return true
}

// mergeStraightLine merges B into its unique predecessor P when P's only
// successor is B and B has no phis (so no ambiguity about which edge's
// value to keep).
func (p SimplifyCFG) mergeStraightLine(fn *ir.Function, am *analysis.Manager) bool {
	changed := false
	for {
		merged := false
		for _, b := range fn.Blocks {
			if b == fn.Entry || len(b.CFGIn) != 1 {
				continue
			}
			pred := b.CFGIn[0]
			if len(pred.CFGOut) != 1 || pred.CFGOut[0] != b {
				continue
			}
			if len(b.PhiInstructions()) != 0 {
				continue
			}
			p.absorb(pred, b, fn)
			merged = true
			changed = true
			am.InvalidateCFG(fn)
			am.CFG(fn)
			break // block list mutated; restart scan
		}
		if !merged {
			break
		}
	}
	return changed
}

func (p SimplifyCFG) absorb(pred, b *ir.BasicBlock, fn *ir.Function) {
	// Drop pred's terminator jump to b, then append b's instructions.
	pred.Instructions = pred.Instructions[:len(pred.Instructions)-1]
	for _, inst := range b.Instructions {
		inst.Block = pred
		pred.Instructions = append(pred.Instructions, inst)
	}
	doomed := map[*ir.BasicBlock]struct{}{b: {}}
	for _, succ := range b.CFGOut {
		succ.CFGIn = removeBlock(succ.CFGIn, b)
		succ.AddCFGIn(pred)
		relabelPhiPredecessor(succ, b.Label, pred.Label)
	}
	fn.RemoveBlocks(doomed)
}

func relabelPhiPredecessor(b *ir.BasicBlock, oldLabel, newLabel string) {
	for _, phi := range b.PhiInstructions() {
		for _, pair := range phi.PhiOperands() {
			if pair.Label.Value == oldLabel {
				pair.Label.Value = newLabel
			}
		}
	}
}

// removeEmptyBlocks drops non-entry blocks with a single instruction that
// is just an unconditional jmp and no phis, redirecting every label
// operand that named it to its successor. Symbol labels are preserved by
// moving them onto the surviving successor when the removed block's own
// label was a symbol.
func (p SimplifyCFG) removeEmptyBlocks(fn *ir.Function, am *analysis.Manager) bool {
	changed := false
	for _, b := range append([]*ir.BasicBlock{}, fn.Blocks...) {
		if b == fn.Entry {
			continue
		}
		if len(b.PhiInstructions()) != 0 {
			continue
		}
		if len(b.Instructions) != 1 {
			continue
		}
		term := b.Instructions[0]
		if term.Opcode != "jmp" {
			continue
		}
		target, ok := ir.AsLabel(term.Operands[0])
		if !ok {
			continue
		}
		succLabel := target.Value
		succ := fn.GetBlock(succLabel)

		if b.IsSymbolLabel && succ != nil && !succ.IsSymbolLabel {
			// Preserve the symbol by moving it onto the surviving
			// successor instead of redirecting references away from it.
			oldSuccLabel := succ.Label
			succ.Label = b.Label
			succ.IsSymbolLabel = true
			redirectLabel(fn, oldSuccLabel, b.Label)
		} else {
			redirectLabel(fn, b.Label, succLabel)
		}

		fn.RemoveBlocks(map[*ir.BasicBlock]struct{}{b: {}})
		am.InvalidateCFG(fn)
		am.CFG(fn)
		changed = true
	}
	return changed
}

func redirectLabel(fn *ir.Function, from, to string) {
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			for _, l := range inst.LabelOperands() {
				if l.Value == from {
					l.Value = to
				}
			}
		}
	}
}

func removeBlock(list []*ir.BasicBlock, target *ir.BasicBlock) []*ir.BasicBlock {
	out := list[:0:0]
	for _, b := range list {
		if b != target {
			out = append(out, b)
		}
	}
	return out
}
