package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// MakeSSA constructs scalar SSA form: phi insertion at the iterated
// dominance frontier of each variable's def blocks, followed by renaming
// via per-variable version stacks walked in dominator-tree pre-order.
type MakeSSA struct{}

func (MakeSSA) Name() string { return "make-ssa" }

func (p MakeSSA) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	dom := am.Dominators(fn)

	defBlocks := map[string]map[*ir.BasicBlock]struct{}{}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Output == nil {
				continue
			}
			name := inst.Output.Name
			if defBlocks[name] == nil {
				defBlocks[name] = map[*ir.BasicBlock]struct{}{}
			}
			defBlocks[name][b] = struct{}{}
		}
	}

	changed := false
	phiOutputs := map[*ir.BasicBlock]map[string]*ir.Instruction{}
	for name, blocks := range defBlocks {
		if len(blocks) < 2 {
			continue // single def block: no join can observe two distinct reaching defs
		}
		seeds := make([]*ir.BasicBlock, 0, len(blocks))
		for b := range blocks {
			seeds = append(seeds, b)
		}
		idf := dom.IteratedDominanceFrontier(seeds)
		for b := range idf {
			if phiOutputs[b] != nil && phiOutputs[b][name] != nil {
				continue
			}
			phi := &ir.Instruction{Opcode: "phi", Output: ir.NewVariable(name, 0)}
			b.InsertInstructionAt(0, phi)
			if phiOutputs[b] == nil {
				phiOutputs[b] = map[string]*ir.Instruction{}
			}
			phiOutputs[b][name] = phi
			changed = true
		}
	}

	r := &renamer{
		counters:   map[string]int{},
		stacks:     map[string][]*ir.Variable{},
		phiOutputs: phiOutputs,
	}
	r.walk(fn.Entry, dom)

	if changed {
		am.InvalidateDFG(fn)
	}
	return changed, nil
}

type renamer struct {
	counters   map[string]int
	stacks     map[string][]*ir.Variable
	phiOutputs map[*ir.BasicBlock]map[string]*ir.Instruction
}

func (r *renamer) fresh(name string) *ir.Variable {
	r.counters[name]++
	v := ir.NewVariable(name, r.counters[name])
	r.stacks[name] = append(r.stacks[name], v)
	return v
}

func (r *renamer) top(name string) *ir.Variable {
	st := r.stacks[name]
	if len(st) == 0 {
		return nil // unversioned: no dominating def (function parameter)
	}
	return st[len(st)-1]
}

func (r *renamer) walk(b *ir.BasicBlock, dom *analysis.Dominators) {
	pushed := map[string]int{}
	push := func(name string) {
		pushed[name]++
	}

	for _, inst := range b.Instructions {
		if inst.IsPhi() {
			name := inst.Output.Name
			inst.Output = r.fresh(name)
			push(name)
			continue
		}
		for i, op := range inst.Operands {
			v, ok := ir.AsVariable(op)
			if !ok || v.Version != 0 {
				continue
			}
			if cur := r.top(v.Name); cur != nil {
				inst.Operands[i] = cur
			}
		}
		if inst.Output != nil {
			name := inst.Output.Name
			inst.Output = r.fresh(name)
			push(name)
		}
	}

	for _, succ := range b.CFGOut {
		for name, phi := range r.phiOutputs[succ] {
			val := r.top(name)
			if val == nil {
				continue
			}
			pairs := phi.PhiOperands()
			replaced := false
			for i, pr := range pairs {
				if pr.Label.Value == b.Label {
					pairs[i].Value = val
					replaced = true
				}
			}
			if !replaced {
				pairs = append(pairs, ir.PhiPair{Label: ir.NewLabel(b.Label), Value: val})
			}
			phi.SetPhiOperands(pairs)
		}
	}

	for _, child := range dom.Children(b) {
		r.walk(child, dom)
	}

	for name, n := range pushed {
		st := r.stacks[name]
		r.stacks[name] = st[:len(st)-n]
	}
}

