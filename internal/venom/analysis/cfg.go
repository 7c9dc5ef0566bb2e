// Package analysis implements the Venom middle-end's read-only analyses:
// CFG, dominators, DFG, liveness, the function call graph, the alias
// oracle and Memory SSA, plus the generation-counter cache (Manager) that
// memoizes them per function and invalidates transitively on mutation.
package analysis

import (
	"kanso/internal/venom/ir"
)

// CFG holds, per function, nothing beyond what's already mirrored onto the
// BasicBlock.CFGIn/CFGOut fields — ComputeCFG (re)builds those fields from the
// instruction stream, which is the single source of truth.
type CFG struct {
	fn *Function
}

// Function wraps an *ir.Function with its entry block cached for analyses
// that need a designated root (dominators, liveness fixpoint order).
type Function struct {
	IR    *ir.Function
	Entry *ir.BasicBlock
}

// ComputeCFG clears and rebuilds CFGIn/CFGOut for every block in fn by
// scanning terminators whose opcode is CFG-altering.
func ComputeCFG(fn *ir.Function) *CFG {
	for _, b := range fn.Blocks {
		b.CFGIn = nil
		b.CFGOut = nil
	}

	for _, b := range fn.Blocks {
		term := b.Terminator()
		if term == nil {
			continue
		}
		if _, altering := ir.CFGAltering[term.Opcode]; !altering {
			continue
		}
		for _, label := range term.LabelOperands() {
			target := b.Function.GetBlock(label.Value)
			if target == nil {
				continue
			}
			b.AddCFGOut(target)
			target.AddCFGIn(b)
		}
	}

	return &CFG{fn: &Function{IR: fn, Entry: fn.Entry}}
}

// Reachable returns the set of blocks reachable from fn.Entry via CFGOut.
func Reachable(fn *ir.Function) map[*ir.BasicBlock]struct{} {
	seen := map[*ir.BasicBlock]struct{}{}
	if fn.Entry == nil {
		return seen
	}
	stack := []*ir.BasicBlock{fn.Entry}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if _, ok := seen[b]; ok {
			continue
		}
		seen[b] = struct{}{}
		stack = append(stack, b.CFGOut...)
	}
	return seen
}

// DFSPostOrder returns fn's reachable blocks in depth-first post-order from
// the entry, the order the dominator and liveness computations walk in.
func DFSPostOrder(fn *ir.Function) []*ir.BasicBlock {
	var order []*ir.BasicBlock
	visited := map[*ir.BasicBlock]struct{}{}
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if _, ok := visited[b]; ok {
			return
		}
		visited[b] = struct{}{}
		for _, s := range b.CFGOut {
			visit(s)
		}
		order = append(order, b)
	}
	if fn.Entry != nil {
		visit(fn.Entry)
	}
	return order
}

// DFSPreOrder returns fn's reachable blocks in depth-first pre-order from
// the entry.
func DFSPreOrder(fn *ir.Function) []*ir.BasicBlock {
	var order []*ir.BasicBlock
	visited := map[*ir.BasicBlock]struct{}{}
	var visit func(b *ir.BasicBlock)
	visit = func(b *ir.BasicBlock) {
		if _, ok := visited[b]; ok {
			return
		}
		visited[b] = struct{}{}
		order = append(order, b)
		for _, s := range b.CFGOut {
			visit(s)
		}
	}
	if fn.Entry != nil {
		visit(fn.Entry)
	}
	return order
}
