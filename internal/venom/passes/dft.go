package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// DFTPass performs a data-flow topological scheduling of each block's
// instructions: every instruction is pulled in only once its producers
// (and, recursively, their consumers that may still reorder ahead of it)
// have been placed, subject to fence-id boundaries erected at each
// volatile instruction. The effect is that a producer tends to land
// immediately before its sole consumer, which is exactly what the stack
// scheduler wants to keep a value on top of the stack instead of having to
// stash it.
type DFTPass struct{}

func (DFTPass) Name() string { return "dft" }

type dftState struct {
	dfg     *analysis.DFG
	visited map[*ir.Instruction]bool
	out     []*ir.Instruction
}

func (DFTPass) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	dfg := am.DFG(fn)

	for _, b := range fn.Blocks {
		original := b.Instructions
		fenceID := 0
		for _, inst := range original {
			inst.FenceID = fenceID
			if inst.IsVolatile() {
				fenceID++
			}
		}

		s := &dftState{dfg: dfg, visited: map[*ir.Instruction]bool{}}
		for _, inst := range original {
			s.visit(b, inst)
		}
		// The walk can place an instruction unrelated to the terminator's
		// operands after it; the terminator is moved back to the end.
		out := s.out
		if n := len(original); n > 0 && original[n-1].IsBBTerminator() {
			term := original[n-1]
			out = make([]*ir.Instruction, 0, len(s.out))
			for _, inst := range s.out {
				if inst != term {
					out = append(out, inst)
				}
			}
			out = append(out, term)
		}
		b.Instructions = out
	}

	// Scheduling only reorders within a block; no CFG or def/use edge
	// changes, so no analysis needs invalidating.
	return true, nil
}

func (s *dftState) visit(b *ir.BasicBlock, inst *ir.Instruction) {
	if inst.Output != nil {
		for _, user := range s.dfg.GetUses(inst.Output) {
			if !user.CanReorder(inst) {
				continue
			}
			s.visit(b, user)
		}
	}

	if s.visited[inst] {
		return
	}
	s.visited[inst] = true

	if inst.IsPhi() {
		// phis need no input processing (their operands are
		// predecessor-edge values, not same-block producers); since the
		// caller visits the block's instructions in original order and
		// phis lead that order, appending here keeps them at the front.
		s.out = append(s.out, inst)
		return
	}

	for _, v := range inst.InputVariables() {
		producer := s.dfg.GetProducingInstruction(v)
		if producer == nil {
			continue // function parameter: no producer in this function
		}
		if !producer.CanReorder(inst) {
			continue
		}
		s.visit(b, producer)
	}

	s.out = append(s.out, inst)
}
