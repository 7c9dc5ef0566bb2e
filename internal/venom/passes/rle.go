package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// RedundantLoadElimination replaces a load with the value of the nearest
// store that provably still holds it: Memory SSA's backward walk resolves
// the load's reaching def, and if that def's location is exactly the
// load's location (no partial-overlap ambiguity), the load becomes a plain
// copy of the stored value instead of touching memory again.
type RedundantLoadElimination struct {
	LoadOp, StoreOp string
}

func (p RedundantLoadElimination) Name() string {
	if p.LoadOp == "sload" {
		return "redundant-load-elimination-storage"
	}
	return "redundant-load-elimination"
}

func (p RedundantLoadElimination) ssa(fn *ir.Function, am *analysis.Manager) *analysis.MemorySSA {
	if p.LoadOp == "sload" {
		return am.StorageSSA(fn)
	}
	return am.MemorySSA(fn)
}

func (p RedundantLoadElimination) loadOpcode() string {
	if p.LoadOp == "" {
		return "mload"
	}
	return p.LoadOp
}

func (p RedundantLoadElimination) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	mssa := p.ssa(fn, am)
	loadOp := p.loadOpcode()

	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Opcode != loadOp || inst.Output == nil {
				continue
			}
			use, ok := mssa.UseFor(inst)
			if !ok {
				continue
			}
			reaching := mssa.GetClobberedMemoryAccess(use)
			def, ok := reaching.(*analysis.MemoryDef)
			if !ok {
				continue
			}
			if def.Loc.Kind != analysis.LocRange || def.Loc != use.Loc {
				continue
			}
			if len(def.Inst.Operands) == 0 {
				continue
			}
			inst.Opcode = "store"
			inst.Operands = []ir.Operand{def.Inst.Operands[0]}
			changed = true
		}
	}

	if changed {
		am.InvalidateDFG(fn)
	}
	return changed, nil
}
