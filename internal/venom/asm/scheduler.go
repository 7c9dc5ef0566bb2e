package asm

import (
	"fmt"
	"sort"

	"kanso/internal/venom/analysis"
	"kanso/internal/venom/ir"
	"kanso/internal/venom/verrors"
)

// Scheduler walks a function's CFG in depth-first order and emits the flat
// EVM item list for it, tracking a virtual stack map of which variable
// (if any) occupies each depth so operands can be found by DUP/SWAP instead
// of carried explicitly.
type Scheduler struct {
	am *analysis.Manager
}

// NewScheduler builds a scheduler backed by am.
func NewScheduler(am *analysis.Manager) *Scheduler {
	return &Scheduler{am: am}
}

// Schedule lowers fn to a flat assembly item list.
func (s *Scheduler) Schedule(fn *ir.Function) ([]Item, error) {
	st := &schedState{
		fn:      fn,
		dfg:     s.am.DFG(fn),
		live:    s.am.Liveness(fn),
		visited: map[*ir.BasicBlock]bool{},
		emitted: map[*ir.Instruction]bool{},
	}

	var err error
	func() {
		defer func() {
			if r := recover(); r != nil {
				if ve, ok := r.(*verrors.Error); ok {
					err = ve
					return
				}
				panic(r)
			}
		}()
		for _, b := range analysis.DFSPreOrder(fn) {
			st.scheduleBlock(b)
		}
	}()
	if err != nil {
		return nil, err
	}
	return st.items, nil
}

type schedState struct {
	fn      *ir.Function
	dfg     *analysis.DFG
	live    *analysis.Liveness
	visited map[*ir.BasicBlock]bool
	emitted map[*ir.Instruction]bool

	// stack models the EVM stack, top at the end of the slice. A nil entry
	// is an anonymous value (a literal or label push) nothing will ever
	// look up by depthOf.
	stack []*ir.Variable
	items []Item
}

func (st *schedState) scheduleBlock(b *ir.BasicBlock) {
	if st.visited[b] {
		return
	}
	st.visited[b] = true

	st.items = append(st.items, labelItem(b.Label), mnemonicItem("JUMPDEST"))

	if b == st.fn.Entry {
		// Parameters arrive through the calling convention (calldata, or a
		// caller-arranged stack for an inlined/invoked callee) and are
		// materialized by whatever "param" rewriting already ran (store,
		// via the inliner, or a calldata decode emitted by lowering) — the
		// entry block itself starts from an empty virtual stack.
		st.stack = nil
	} else {
		// Every predecessor's terminator has already arranged its values in
		// this block's canonical layout, so the slots take on those names
		// (phi outputs included) at the JUMPDEST.
		st.stack = st.canonicalInVars(b)
	}

	for _, inst := range b.Instructions {
		st.emitInstruction(inst)
	}
}

// canonicalInVars fixes, once and for all, the order every predecessor must
// arrange its out_vars in for this block: phi outputs first (in phi order),
// then every other live-in variable sorted by (name, version) for
// determinism. Every predecessor edge must agree on this order since they
// all land on the same physical stack layout at the block's JUMPDEST.
func (st *schedState) canonicalInVars(b *ir.BasicBlock) []*ir.Variable {
	var out []*ir.Variable
	seen := map[ir.VariableKey]bool{}
	for _, phi := range b.PhiInstructions() {
		out = append(out, phi.Output)
		seen[phi.Output.Key()] = true
	}

	liveIn := st.live.LiveIn(b)
	keys := make([]ir.VariableKey, 0, len(liveIn))
	for k := range liveIn {
		if seen[k] {
			continue
		}
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Name != keys[j].Name {
			return keys[i].Name < keys[j].Name
		}
		return keys[i].Version < keys[j].Version
	})
	for _, k := range keys {
		out = append(out, liveIn[k])
	}
	return out
}

// successorOperands resolves canonicalInVars(succ) against the edge
// pred->succ: any canonical slot that is a phi output is replaced by that
// phi's operand for this specific predecessor. Blocks with more than one
// successor (jnz) are assumed, post-SimplifyCFG, to route differing phi
// operands through distinct predecessor blocks rather than sharing one
// conditional branch with two different resolutions — a real edge-splitting
// pass would be needed to lift that assumption, which this scheduler does
// not perform.
func (st *schedState) successorOperands(pred, succ *ir.BasicBlock) []ir.Operand {
	canon := st.canonicalInVars(succ)
	out := make([]ir.Operand, len(canon))
	for i, v := range canon {
		out[i] = v
	}
	for _, phi := range succ.PhiInstructions() {
		for _, pair := range phi.PhiOperands() {
			if pair.Label.Value != pred.Label {
				continue
			}
			for i, v := range canon {
				if v.Key() == phi.Output.Key() {
					out[i] = pair.Value
				}
			}
		}
	}
	return out
}

func asOperands(vs []*ir.Variable) []ir.Operand {
	out := make([]ir.Operand, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

func (st *schedState) emitInstruction(inst *ir.Instruction) {
	if st.emitted[inst] {
		return
	}
	st.emitted[inst] = true

	if inst.IsPhi() || inst.IsParam() {
		// Resolved before scheduling ever reaches them: a phi's value
		// arrives on the stack via reconcileStack at block entry, and a
		// surviving param means lowering never rewrote it (a genuine
		// function-entry parameter), which the scheduler treats as already
		// materialized by the calling convention rather than something to
		// emit code for.
		return
	}

	if inst.IsBBTerminator() {
		st.emitTerminator(inst)
		return
	}

	switch inst.Opcode {
	case "nop":
		return
	case "store":
		st.materialize(inst.Operands[0])
		st.stack[len(st.stack)-1] = inst.Output
		return
	case "alloca":
		st.emitAlloca(inst)
		return
	case "sha3_64":
		st.emitSha3_64(inst)
		return
	case "invoke":
		st.emitInvoke(inst)
		return
	case "assert":
		st.emitAssert(inst)
		return
	case "assert_unreachable":
		st.emitAssertUnreachable(inst)
		return
	}

	for _, op := range inst.Operands {
		st.materialize(op)
	}
	st.items = append(st.items, mnemonicItem(st.mnemonic(inst)))
	for range inst.Operands {
		st.pop()
	}
	if inst.Output != nil {
		st.push(inst.Output)
	}
}

func (st *schedState) mnemonic(inst *ir.Instruction) string {
	if m, ok := simpleMnemonics[inst.Opcode]; ok {
		return m
	}
	panic(verrors.Bugf("asm: no mnemonic mapping for opcode %q", inst.Opcode))
}

// emitAlloca reserves a fixed word of scratch memory and leaves its byte
// offset, as a literal, where the instruction's output is expected — mirrors
// a bump allocator over the free-memory region, matching what Mem2Var leaves
// behind for any alloca it could not promote to a register.
func (st *schedState) emitAlloca(inst *ir.Instruction) {
	if inst.Output == nil {
		return
	}
	offset, ok := ir.AsLiteral(inst.Operands[0])
	if !ok {
		panic(verrors.Bugf("asm: alloca operand must be a literal offset"))
	}
	st.items = append(st.items, pushItem(offset.Value))
	st.push(inst.Output)
}

// emitSha3_64 hashes its two word operands by spilling them into the two
// scratch words below the free memory pointer (offsets 0 and 32) and
// running SHA3 over that range — the fixed expansion every EVM backend uses
// for a two-word hash instead of a general-purpose memory write.
func (st *schedState) emitSha3_64(inst *ir.Instruction) {
	st.materialize(inst.Operands[0])
	st.items = append(st.items, pushItem(bigZero()), mnemonicItem("MSTORE"))
	st.pop() // the offset push is anonymous and never on the virtual stack

	st.materialize(inst.Operands[1])
	st.items = append(st.items, pushItem(bigThirtyTwo()), mnemonicItem("MSTORE"))
	st.pop()

	st.items = append(st.items,
		pushItem(bigZero()),
		pushItem(bigSixtyFour()),
		mnemonicItem("SHA3"),
	)
	if inst.Output != nil {
		st.push(inst.Output)
	}
}

// emitInvoke expands a call to another function (with Options.Inline set,
// single call sites have already been removed by the inliner): push the
// arguments, push a return label, jump to the callee's entry, and land on a
// fresh label the callee's ret jumps back to, at which point the return
// value (if any) is on top of the stack exactly like any other producer.
func (st *schedState) emitInvoke(inst *ir.Instruction) {
	calleeLabel, ok := ir.AsLabel(inst.Operands[0])
	if !ok {
		panic(verrors.Bugf("asm: invoke operand 0 must be a function label"))
	}
	for _, arg := range inst.Operands[1:] {
		st.materialize(arg)
	}

	retLabel := fmt.Sprintf("%s.ret%d", calleeLabel.Value, len(st.items))
	st.items = append(st.items,
		pushLabelItem(retLabel),
		pushLabelItem(calleeLabel.Value),
		mnemonicItem("JUMP"),
		labelItem(retLabel),
		mnemonicItem("JUMPDEST"),
	)
	for range inst.Operands[1:] {
		st.pop()
	}
	if inst.Output != nil {
		st.push(inst.Output)
	}
}

func (st *schedState) emitTerminator(inst *ir.Instruction) {
	b := inst.Block
	switch inst.Opcode {
	case "jmp":
		target := b.Function.GetBlock(mustLabel(inst.Operands[0]).Value)
		st.reconcileStack(st.successorOperands(b, target))
		st.items = append(st.items, pushLabelItem(target.Label), mnemonicItem("JUMP"))
		st.scheduleBlock(target)

	case "jnz":
		trueLabel := mustLabel(inst.Operands[1])
		falseLabel := mustLabel(inst.Operands[2])
		trueBlock := b.Function.GetBlock(trueLabel.Value)
		falseBlock := b.Function.GetBlock(falseLabel.Value)

		// Shared arrangement for both edges (see successorOperands' doc
		// comment on the edge-splitting assumption this relies on).
		// The condition is arranged on top of that layout so the
		// reconciliation cannot drop it.
		st.reconcileStack(append(st.successorOperands(b, trueBlock), inst.Operands[0]))

		st.items = append(st.items, pushLabelItem(trueBlock.Label), mnemonicItem("JUMPI"))
		st.pop() // cond; the pushed label is never on the virtual stack
		st.items = append(st.items, pushLabelItem(falseBlock.Label), mnemonicItem("JUMP"))

		st.scheduleBlock(trueBlock)
		st.scheduleBlock(falseBlock)

	case "ret":
		if len(inst.Operands) > 0 {
			st.materialize(inst.Operands[0])
		}
		st.items = append(st.items, mnemonicItem("JUMP"))

	case "djmp":
		st.materialize(inst.Operands[0])
		st.items = append(st.items, mnemonicItem("JUMP"))

	case "return":
		// Operands are [size, ptr] (mem2var.go's convention); RETURN wants
		// offset on top, size beneath it, so materialize size first.
		st.materialize(inst.Operands[0])
		st.materialize(inst.Operands[1])
		st.items = append(st.items, mnemonicItem("RETURN"))

	case "revert":
		st.materialize(inst.Operands[0])
		st.materialize(inst.Operands[1])
		st.items = append(st.items, mnemonicItem("REVERT"))

	case "stop", "exit":
		st.items = append(st.items, mnemonicItem("STOP"))

	default:
		panic(verrors.Bugf("asm: unhandled terminator opcode %q", inst.Opcode))
	}
}

// emitAssert expands to a fixed inline branch: revert with empty returndata
// if the condition is falsy, otherwise fall through. assert is volatile but
// not a block terminator (opcodes.go), so the fall-through label here is an
// assembly-level forward jump only, not a new CFG block.
func (st *schedState) emitAssert(inst *ir.Instruction) {
	st.materialize(inst.Operands[0])
	okLabel := fmt.Sprintf("assert.ok%d", len(st.items))
	st.items = append(st.items,
		pushLabelItem(okLabel), mnemonicItem("JUMPI"),
		pushItem(bigZero()), pushItem(bigZero()), mnemonicItem("REVERT"),
		labelItem(okLabel), mnemonicItem("JUMPDEST"),
	)
	st.pop()
}

// emitAssertUnreachable is the same shape as emitAssert but traps with
// INVALID instead of reverting, for a condition the front-end has proven
// can never be false in well-formed bytecode.
func (st *schedState) emitAssertUnreachable(inst *ir.Instruction) {
	st.materialize(inst.Operands[0])
	okLabel := fmt.Sprintf("assert.unreachable.ok%d", len(st.items))
	st.items = append(st.items,
		pushLabelItem(okLabel), mnemonicItem("JUMPI"),
		mnemonicItem("INVALID"),
		labelItem(okLabel), mnemonicItem("JUMPDEST"),
	)
	st.pop()
}

// materialize ensures op's value is a fresh duplicate on top of the virtual
// stack: a literal or label is pushed outright, and a variable already on
// the stack is DUPed from wherever it sits; a variable not yet computed in
// this block is produced by recursing into its in-block producer first.
// Earlier occurrences are never removed mid-block — an unoptimized
// scheduler trades stack depth for simplicity, leaving peephole cleanup to
// a later optimization pass outside the core pipeline.
func (st *schedState) materialize(op ir.Operand) {
	switch v := op.(type) {
	case *ir.Literal:
		st.items = append(st.items, pushItem(v.Value))
		st.push(nil)
	case *ir.Label:
		st.items = append(st.items, pushLabelItem(v.Value))
		st.push(nil)
	case *ir.Variable:
		if d, ok := st.depthOf(v); ok {
			st.items = append(st.items, dupItem(d))
			st.push(v)
			return
		}
		producer := st.dfg.GetProducingInstruction(v)
		if producer == nil {
			panic(verrors.Bugf("asm: no producer in scope for %s", v))
		}
		st.emitInstruction(producer)
		d, ok := st.depthOf(v)
		if !ok {
			panic(verrors.Bugf("asm: producer for %s ran but left it off the stack", v))
		}
		st.items = append(st.items, dupItem(d))
		st.push(v)
	}
}

// reconcileStack rearranges the virtual stack to hold exactly expected, in
// order, discarding everything else. It first DUPs every expected operand
// to the top (in order, so the last one ends up on top), then deletes the
// original stack contents that now sit beneath that fresh block.
func (st *schedState) reconcileStack(expected []ir.Operand) {
	for _, op := range expected {
		st.materializeNoRecurse(op)
	}
	n := len(expected)
	for len(st.stack) > n {
		st.deleteAt(n)
	}
}

// materializeNoRecurse is materialize's counterpart for values that must
// already be live on the stack (out_vars, phi operands): a Literal/Label is
// pushed fresh, a Variable is looked up by depth with no producer fallback,
// since block-boundary values are never computed for the first time here.
func (st *schedState) materializeNoRecurse(op ir.Operand) {
	switch v := op.(type) {
	case *ir.Literal:
		st.items = append(st.items, pushItem(v.Value))
		st.push(nil)
	case *ir.Label:
		st.items = append(st.items, pushLabelItem(v.Value))
		st.push(nil)
	case *ir.Variable:
		d, ok := st.depthOf(v)
		if !ok {
			panic(verrors.Bugf("asm: expected live variable %s missing from stack", v))
		}
		st.items = append(st.items, dupItem(d))
		st.push(v)
	}
}

// deleteAt removes the stack element currently at depth d (0 = top),
// preserving the relative order of the d elements above it: rotate the top
// d+1 elements via an ascending SWAP(1..d) cascade, which brings the
// depth-d element to the top while leaving the shallower d elements in
// their original relative order, then pop it.
func (st *schedState) deleteAt(d int) {
	for i := 1; i <= d; i++ {
		st.items = append(st.items, swapItem(i))
		st.swapAt(i)
	}
	st.items = append(st.items, mnemonicItem("POP"))
	st.pop()
}

func (st *schedState) push(v *ir.Variable) { st.stack = append(st.stack, v) }

func (st *schedState) pop() { st.stack = st.stack[:len(st.stack)-1] }

func (st *schedState) depthOf(v *ir.Variable) (int, bool) {
	key := v.Key()
	for i := len(st.stack) - 1; i >= 0; i-- {
		if st.stack[i] != nil && st.stack[i].Key() == key {
			return len(st.stack) - 1 - i, true
		}
	}
	return 0, false
}

func (st *schedState) swapAt(d int) {
	top := len(st.stack) - 1
	other := top - d
	st.stack[top], st.stack[other] = st.stack[other], st.stack[top]
}

func dupItem(d int) Item {
	if d+1 < 1 || d+1 > 16 {
		panic(verrors.Bugf("asm: DUP%d out of EVM range", d+1))
	}
	return mnemonicItem(fmt.Sprintf("DUP%d", d+1))
}

func swapItem(d int) Item {
	if d < 1 || d > 16 {
		panic(verrors.Bugf("asm: SWAP%d out of EVM range", d))
	}
	return mnemonicItem(fmt.Sprintf("SWAP%d", d))
}

func mustLabel(op ir.Operand) *ir.Label {
	l, ok := ir.AsLabel(op)
	if !ok {
		panic(verrors.Bugf("asm: expected a label operand, got %T", op))
	}
	return l
}
