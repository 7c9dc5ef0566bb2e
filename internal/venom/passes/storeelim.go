package passes

import (
	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
)

// StoreElimination removes a store when Memory SSA proves it is fully
// overwritten before being observed: GetClobberingMemoryAccess finds a
// later def that completely covers the same location with nothing
// aliasing in between.
type StoreElimination struct {
	// LoadOp/StoreOp select which Memory SSA space to run over: mload/mstore
	// for plain memory, or sload/sstore for storage. Zero value runs over
	// plain memory, matching the common case.
	LoadOp, StoreOp string
}

func (p StoreElimination) Name() string {
	if p.StoreOp == "sstore" {
		return "store-elimination-storage"
	}
	return "store-elimination"
}

func (p StoreElimination) ssa(fn *ir.Function, am *analysis.Manager) *analysis.MemorySSA {
	if p.StoreOp == "sstore" {
		return am.StorageSSA(fn)
	}
	return am.MemorySSA(fn)
}

func (p StoreElimination) storeOpcode() string {
	if p.StoreOp == "" {
		return "mstore"
	}
	return p.StoreOp
}

func (p StoreElimination) RunOnFunction(fn *ir.Function, am *analysis.Manager) (bool, error) {
	dom := am.Dominators(fn)
	mssa := p.ssa(fn, am)
	storeOp := p.storeOpcode()

	changed := false
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Opcode != storeOp {
				continue
			}
			def, ok := mssa.DefFor(inst)
			if !ok {
				continue
			}
			if _, clobbered := mssa.GetClobberingMemoryAccess(def, dom); clobbered {
				b.MarkDead(inst)
				changed = true
			}
		}
		b.ClearDeadInstructions()
	}

	if changed {
		am.InvalidateDFG(fn)
	}
	return changed, nil
}
