package analysis

import "kanso/internal/venom/ir"

// DFG records, for every variable produced in a function, its unique
// producing instruction and the set of instructions that use it. Function
// parameters and phi "param" inputs have no producer, recorded as nil.
type DFG struct {
	producer map[ir.VariableKey]*ir.Instruction
	uses     map[ir.VariableKey][]*ir.Instruction
}

// ComputeDFG walks every block of fn once, recording defs and uses.
func ComputeDFG(fn *ir.Function) *DFG {
	d := &DFG{
		producer: map[ir.VariableKey]*ir.Instruction{},
		uses:     map[ir.VariableKey][]*ir.Instruction{},
	}
	for _, b := range fn.Blocks {
		for _, inst := range b.Instructions {
			if inst.Output != nil {
				d.producer[inst.Output.Key()] = inst
			}
			for _, v := range operandVariables(inst) {
				k := v.Key()
				d.uses[k] = append(d.uses[k], inst)
			}
		}
	}
	return d
}

// operandVariables returns every Variable-typed operand of inst, including
// phi value operands (phi operands are laid out as label/value pairs, so
// plain InputVariables would miss them — labels aren't variables, but a
// generic scan over i.Operands already finds phi value operands fine since
// phi values can themselves be Variables).
func operandVariables(inst *ir.Instruction) []*ir.Variable {
	return inst.InputVariables()
}

// GetProducingInstruction returns v's unique producer, or nil if v has
// none (a function parameter, or a phi "param" input).
func (d *DFG) GetProducingInstruction(v *ir.Variable) *ir.Instruction {
	return d.producer[v.Key()]
}

// GetUses returns every instruction that reads v.
func (d *DFG) GetUses(v *ir.Variable) []*ir.Instruction {
	return d.uses[v.Key()]
}

// UseCount returns len(GetUses(v)), the common case callers want.
func (d *DFG) UseCount(v *ir.Variable) int {
	return len(d.uses[v.Key()])
}
