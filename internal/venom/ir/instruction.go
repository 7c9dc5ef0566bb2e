package ir

import (
	"fmt"
	"math/big"
	"strings"
)

// Instruction is a single Venom operation: an opcode, an ordered operand
// list (the rightmost operand is conceptually the top of the operand stack
// once emitted), and an optional output variable.
//
// Convention: the rightmost operand is the top of the stack.
type Instruction struct {
	ID      int
	Opcode  string
	Operands []Operand
	Output  *Variable

	Block *BasicBlock // non-owning back-pointer, updated on any splice

	Annotation string // debug string
	ErrorMsg   string
	SourceNode interface{} // optional reference into the legacy IR tree

	// FenceID partitions a block's instructions at volatile boundaries:
	// DFTPass may only reorder instructions that share a fence id.
	// Assigned fresh by DFTPass on every run; meaningless until then.
	FenceID int
}

// CanReorder reports whether i and other may be reordered relative to each
// other: only instructions within the same fence partition of the same
// block.
func (i *Instruction) CanReorder(other *Instruction) bool {
	return i.Block == other.Block && i.FenceID == other.FenceID
}

// IsVolatile reports whether the instruction is exempt from dead-code
// removal and from cross-instruction reordering by the scheduler.
func (i *Instruction) IsVolatile() bool { return inSet(VolatileOpcodes, i.Opcode) }

// IsCommutative reports whether operand order can be swapped freely.
func (i *Instruction) IsCommutative() bool { return inSet(CommutativeOpcodes, i.Opcode) }

// IsComparator reports whether the opcode is a flippable comparison.
func (i *Instruction) IsComparator() bool { return inSet(ComparatorOpcodes, i.Opcode) }

// Flippable reports whether Flip is legal for this instruction.
func (i *Instruction) Flippable() bool { return i.IsCommutative() || i.IsComparator() }

// IsBBTerminator reports whether the opcode may end a basic block.
func (i *Instruction) IsBBTerminator() bool { return inSet(Terminators, i.Opcode) }

// IsPhi reports whether this is a phi instruction.
func (i *Instruction) IsPhi() bool { return i.Opcode == "phi" }

// IsParam reports whether this is a param pseudo-instruction.
func (i *Instruction) IsParam() bool { return i.Opcode == "param" }

// IsPseudo reports whether the instruction is a phi or param: a construct
// for the IR rather than a real operation.
func (i *Instruction) IsPseudo() bool { return i.IsPhi() || i.IsParam() }

// Flip reverses operand order for a commutative or comparator instruction,
// renaming comparator opcodes to their mirror (gt<->lt, sgt<->slt).
func (i *Instruction) Flip() {
	if !i.Flippable() {
		panic("ir: Flip called on non-flippable instruction " + i.Opcode)
	}
	for l, r := 0, len(i.Operands)-1; l < r; l, r = l+1, r-1 {
		i.Operands[l], i.Operands[r] = i.Operands[r], i.Operands[l]
	}
	if i.IsCommutative() {
		return
	}
	if flipped := FlipComparator(i.Opcode); flipped != "" {
		i.Opcode = flipped
	}
}

// MakeNop turns the instruction into a nop in place, used when a phi
// degenerates to having no operands left.
func (i *Instruction) MakeNop() {
	i.Opcode = "nop"
	i.Output = nil
	i.Operands = nil
	i.Annotation = ""
}

// LabelOperands returns the Label-typed operands, in operand order.
func (i *Instruction) LabelOperands() []*Label {
	var out []*Label
	for _, op := range i.Operands {
		if l, ok := op.(*Label); ok {
			out = append(out, l)
		}
	}
	return out
}

// InputVariables returns the Variable-typed operands, in operand order.
func (i *Instruction) InputVariables() []*Variable {
	var out []*Variable
	for _, op := range i.Operands {
		if v, ok := op.(*Variable); ok {
			out = append(out, v)
		}
	}
	return out
}

// ReplaceOperands substitutes operands matching keys in replacements.
// Matching is by operand identity for variables/labels via comparable key,
// done through the supplied equality function to keep this file
// independent of a specific key representation.
func (i *Instruction) ReplaceOperands(replace func(Operand) (Operand, bool)) {
	for idx, op := range i.Operands {
		if newOp, ok := replace(op); ok {
			i.Operands[idx] = newOp
		}
	}
}

// ReplaceLabelOperands substitutes label operands whose Value matches a key
// in replacements.
func (i *Instruction) ReplaceLabelOperands(replacements map[string]*Label) {
	for idx, op := range i.Operands {
		if l, ok := op.(*Label); ok {
			if repl, ok := replacements[l.Value]; ok {
				i.Operands[idx] = repl
			}
		}
	}
}

// PhiPair is one (predecessor label, incoming value) operand pair of a phi.
type PhiPair struct {
	Label *Label
	Value Operand
}

// PhiOperands decodes a phi's flat operand list into (label, value) pairs,
// laid out as the spec requires: one pair per predecessor, in the
// predecessor order fixed when the phi was created.
func (i *Instruction) PhiOperands() []PhiPair {
	if !i.IsPhi() {
		panic("ir: PhiOperands called on non-phi instruction")
	}
	pairs := make([]PhiPair, 0, len(i.Operands)/2)
	for idx := 0; idx+1 < len(i.Operands); idx += 2 {
		label, ok := i.Operands[idx].(*Label)
		if !ok {
			panic("ir: malformed phi operand layout")
		}
		pairs = append(pairs, PhiPair{Label: label, Value: i.Operands[idx+1]})
	}
	return pairs
}

// SetPhiOperands replaces the phi's operand list from pairs.
func (i *Instruction) SetPhiOperands(pairs []PhiPair) {
	ops := make([]Operand, 0, len(pairs)*2)
	for _, p := range pairs {
		ops = append(ops, p.Label, p.Value)
	}
	i.Operands = ops
}

// RemovePhiOperand drops the pair for the given predecessor label, if any.
func (i *Instruction) RemovePhiOperand(label string) {
	pairs := i.PhiOperands()
	out := pairs[:0]
	for _, p := range pairs {
		if p.Label.Value != label {
			out = append(out, p)
		}
	}
	i.SetPhiOperands(out)
}

// Copy deep-copies the instruction, prefixing variable names (used by
// inlining to avoid name collisions when splicing a callee's blocks in).
func (i *Instruction) Copy(prefix string) *Instruction {
	ops := make([]Operand, len(i.Operands))
	for idx, op := range i.Operands {
		switch v := op.(type) {
		case *Variable:
			ops[idx] = NewVariable(prefix+v.Name, v.Version)
		case *Label:
			ops[idx] = &Label{Value: v.Value, IsSymbol: v.IsSymbol}
		case *Literal:
			ops[idx] = &Literal{Value: new(big.Int).Set(v.Value)}
		}
	}
	var output *Variable
	if i.Output != nil {
		output = NewVariable(prefix+i.Output.Name, i.Output.Version)
	}
	return &Instruction{
		ID:         i.ID,
		Opcode:     i.Opcode,
		Operands:   ops,
		Output:     output,
		Annotation: i.Annotation,
		ErrorMsg:   i.ErrorMsg,
		SourceNode: i.SourceNode,
	}
}

func (i *Instruction) String() string {
	var b strings.Builder
	if i.Output != nil {
		fmt.Fprintf(&b, "%s = ", i.Output)
	}
	if i.Opcode != "store" {
		fmt.Fprintf(&b, "%s ", i.Opcode)
	}
	parts := make([]string, len(i.Operands))
	// Rightmost operand is the top of stack; print in reverse like the
	// reference disassembly does, except for phi/jmp/jnz which keep
	// source order for readability.
	printOrder := i.Operands
	if i.Opcode != "jmp" && i.Opcode != "jnz" && i.Opcode != "phi" {
		printOrder = reverseOperands(i.Operands)
	}
	for idx, op := range printOrder {
		if l, ok := op.(*Label); ok {
			parts[idx] = "@" + l.Value
		} else {
			parts[idx] = op.String()
		}
	}
	b.WriteString(strings.Join(parts, ", "))
	if i.Annotation != "" {
		fmt.Fprintf(&b, " ; %s", i.Annotation)
	}
	return b.String()
}

func reverseOperands(ops []Operand) []Operand {
	out := make([]Operand, len(ops))
	for idx, op := range ops {
		out[len(ops)-1-idx] = op
	}
	return out
}
