package lowering

import (
	"kanso/internal/legacyir"
	"kanso/internal/venom/ir"
	"kanso/internal/venom/verrors"
)

// convertStmt lowers n for its control-flow/side-effect, returning whatever
// operand it evaluates to (nil for pure control-flow forms like "if" that
// produce no value). sym is the name environment visible to n; "with"
// nodes extend a copy of it for their body, never mutating the caller's.
func (lw *Lowerer) convertStmt(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	switch n.Value {
	case "lit":
		return lw.convertLit(n), nil
	case "sym":
		op, ok := syms[n.Label]
		if !ok {
			return nil, verrors.Structuref("lowering: unbound symbol %q", n.Label)
		}
		return op, nil
	case "seq":
		return lw.convertSeq(n, syms)
	case "if":
		return nil, lw.convertIf(n, syms)
	case "repeat":
		return nil, lw.convertRepeat(n, syms)
	case "with":
		return lw.convertWith(n, syms)
	case "goto":
		return nil, lw.convertGoto(n)
	case "label":
		return nil, lw.convertLabel(n, syms)
	case "return":
		return nil, lw.convertReturn(n, syms)
	case "revert":
		return nil, lw.convertRevert(n, syms)
	case "stop", "exit":
		lw.block.AppendInstruction(&ir.Instruction{Opcode: n.Value})
		return nil, nil
	case "assert":
		return nil, lw.convertUnaryEffect(n, syms, "assert")
	case "assert_unreachable":
		return nil, lw.convertUnaryEffect(n, syms, "assert_unreachable")
	case "invalid", "selfdestruct":
		return nil, lw.convertVariadicEffect(n, syms, n.Value)
	case "mstore", "sstore", "tstore", "istore":
		return nil, lw.convertStore(n, syms)
	case "mcopy", "calldatacopy", "codecopy", "returndatacopy", "extcodecopy":
		return nil, lw.convertCopy(n, syms)
	case "log0", "log1", "log2", "log3", "log4":
		return nil, lw.convertVariadicEffect(n, syms, n.Value)
	case "call", "staticcall", "delegatecall", "create", "create2":
		return lw.convertCallLike(n, syms)
	case "invoke":
		return lw.convertInvoke(n, syms)
	case "ne", "le", "sle", "ge", "sge":
		return lw.convertInverseMapped(n, syms)
	case "addmod", "mulmod":
		return lw.convertTernary(n, syms)
	case "mload", "sload", "tload", "iload", "dload":
		return lw.convertUnaryValue(n, syms)
	case "dloadbytes":
		return nil, lw.convertVariadicEffect(n, syms, "dloadbytes")
	}

	if _, ok := passThrough[n.Value]; ok {
		return lw.convertBinaryOrUnary(n, syms)
	}

	return nil, verrors.Unsupportedf("lowering: no Venom mapping for legacy node %q", n.Value)
}

func (lw *Lowerer) convertLit(n *legacyir.Node) *ir.Literal {
	v, ok := bigFromDecimal(n.Lit.Decimal)
	if !ok {
		v = bigZeroValue()
	}
	return ir.NewLiteralBig(v)
}

// convertSeq lowers every child for effect, in order, and returns the
// value of the last one (vyper's "seq" is an expression whose value is its
// final child, as well as the statement-sequencing construct).
func (lw *Lowerer) convertSeq(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	var last ir.Operand
	for _, child := range n.Args {
		v, err := lw.convertStmt(child, syms)
		if err != nil {
			return nil, err
		}
		last = v
	}
	return last, nil
}

// convertWith binds n.Label to the lowered value of n.Args[0] for the
// lowering of n.Args[1], in a copy of syms so the binding cannot leak past
// this node.
func (lw *Lowerer) convertWith(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	if len(n.Args) != 2 {
		return nil, verrors.Structuref("lowering: with expects 2 children, got %d", len(n.Args))
	}
	val, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return nil, err
	}
	inner := make(symbols, len(syms)+1)
	for k, v := range syms {
		inner[k] = v
	}
	inner[n.Label] = val
	return lw.convertStmt(n.Args[1], inner)
}

// convertIf lowers a two- or three-armed conditional into three
// fresh blocks joined by an unconditional jump to a shared continuation;
// "if" is a statement form here (no value), matching how the front-end
// only ever uses it for control flow, never as a ternary expression.
func (lw *Lowerer) convertIf(n *legacyir.Node, syms symbols) error {
	if len(n.Args) != 2 && len(n.Args) != 3 {
		return verrors.Structuref("lowering: if expects 2 or 3 children, got %d", len(n.Args))
	}
	cond, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return err
	}

	thenBlock := lw.newBlock("then")
	elseBlock := lw.newBlock("else")
	cont := lw.newBlock("endif")

	lw.block.AppendInstruction(&ir.Instruction{
		Opcode:   "jnz",
		Operands: []ir.Operand{cond, ir.NewLabel(thenBlock.Label), ir.NewLabel(elseBlock.Label)},
	})

	lw.block = thenBlock
	if _, err := lw.convertStmt(n.Args[1], syms); err != nil {
		return err
	}
	lw.terminateFallthrough("jmp")
	if lw.block.Terminator().Opcode == "jmp" && len(lw.block.Terminator().Operands) == 0 {
		lw.block.Terminator().Operands = []ir.Operand{ir.NewLabel(cont.Label)}
	}

	lw.block = elseBlock
	if len(n.Args) == 3 {
		if _, err := lw.convertStmt(n.Args[2], syms); err != nil {
			return err
		}
	}
	lw.terminateFallthrough("jmp")
	if lw.block.Terminator().Opcode == "jmp" && len(lw.block.Terminator().Operands) == 0 {
		lw.block.Terminator().Operands = []ir.Operand{ir.NewLabel(cont.Label)}
	}

	lw.block = cont
	return nil
}

// convertRepeat lowers a counted loop: (repeat start count body), binding
// the loop variable to a fresh SSA-to-be register incremented each
// iteration. MakeSSA is what actually turns this into a proper phi-joined
// induction variable; the lowering only needs to produce a structurally
// valid, if redundantly load/store-heavy, CFG.
func (lw *Lowerer) convertRepeat(n *legacyir.Node, syms symbols) error {
	if len(n.Args) != 3 {
		return verrors.Structuref("lowering: repeat expects 3 children, got %d", len(n.Args))
	}
	start, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return err
	}
	count, err := lw.convertStmt(n.Args[1], syms)
	if err != nil {
		return err
	}

	ptr := lw.allocaWord()
	lw.emit("mstore", []ir.Operand{start, ptr}, false)

	header := lw.newBlock("loop")
	body := lw.newBlock("body")
	exit := lw.newBlock("loopexit")

	lw.block.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel(header.Label)}})

	lw.block = header
	iv := lw.emit("mload", []ir.Operand{ptr}, true)
	cond := lw.emit("lt", []ir.Operand{iv, count}, true)
	lw.block.AppendInstruction(&ir.Instruction{
		Opcode:   "jnz",
		Operands: []ir.Operand{cond, ir.NewLabel(body.Label), ir.NewLabel(exit.Label)},
	})

	lw.block = body
	bodySyms := make(symbols, len(syms)+1)
	for k, v := range syms {
		bodySyms[k] = v
	}
	bodySyms[n.Label] = iv
	if _, err := lw.convertStmt(n.Args[2], bodySyms); err != nil {
		return err
	}
	nextVal := lw.emit("add", []ir.Operand{iv, ir.NewLiteral(1)}, true)
	lw.emit("mstore", []ir.Operand{nextVal, ptr}, false)
	lw.terminateFallthrough("jmp")
	if lw.block.Terminator().Opcode == "jmp" && len(lw.block.Terminator().Operands) == 0 {
		lw.block.Terminator().Operands = []ir.Operand{ir.NewLabel(header.Label)}
	}

	lw.block = exit
	return nil
}

// convertGoto and convertLabel implement the legacy front-end's internal
// subroutine-call idiom: a "label" node marks a block boundary an earlier
// "goto" can unconditionally jump to, used for internal (same-contract,
// non-ABI) function calls before FuncInliner or the stack scheduler's
// invoke expansion takes over.
func (lw *Lowerer) convertGoto(n *legacyir.Node) error {
	target := lw.fn.GetBlock(n.Label)
	if target == nil {
		target = ir.NewBasicBlock(n.Label)
		lw.fn.AppendBlock(target)
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel(target.Label)}})
	lw.block = lw.newBlock("unreachable")
	return nil
}

func (lw *Lowerer) convertLabel(n *legacyir.Node, syms symbols) error {
	target := lw.fn.GetBlock(n.Label)
	if target == nil {
		target = ir.NewBasicBlock(n.Label)
		lw.fn.AppendBlock(target)
	}
	if !lw.block.IsTerminated() {
		lw.block.AppendInstruction(&ir.Instruction{Opcode: "jmp", Operands: []ir.Operand{ir.NewLabel(target.Label)}})
	}
	lw.block = target
	if len(n.Args) == 1 {
		if _, err := lw.convertStmt(n.Args[0], syms); err != nil {
			return err
		}
	}
	return nil
}

// convertReturn and convertRevert take the legacy tree's natural (offset,
// size) argument order and re-pair them as [size, ptr] to match the Venom
// "return"/"revert" instruction's established operand convention (the one
// place the two conventions meet).
func (lw *Lowerer) convertReturn(n *legacyir.Node, syms symbols) error {
	return lw.convertReturnLike(n, syms, "return")
}

func (lw *Lowerer) convertRevert(n *legacyir.Node, syms symbols) error {
	return lw.convertReturnLike(n, syms, "revert")
}

func (lw *Lowerer) convertReturnLike(n *legacyir.Node, syms symbols, opcode string) error {
	if len(n.Args) != 2 {
		return verrors.Structuref("lowering: %s expects 2 children, got %d", opcode, len(n.Args))
	}
	ptr, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return err
	}
	size, err := lw.convertStmt(n.Args[1], syms)
	if err != nil {
		return err
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: opcode, Operands: []ir.Operand{size, ptr}})
	return nil
}

func (lw *Lowerer) convertUnaryEffect(n *legacyir.Node, syms symbols, opcode string) error {
	if len(n.Args) != 1 {
		return verrors.Structuref("lowering: %s expects 1 child, got %d", opcode, len(n.Args))
	}
	v, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return err
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: opcode, Operands: []ir.Operand{v}})
	return nil
}

func (lw *Lowerer) convertVariadicEffect(n *legacyir.Node, syms symbols, opcode string) error {
	operands := make([]ir.Operand, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return err
		}
		operands = append(operands, v)
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: opcode, Operands: operands})
	return nil
}

// convertStore handles mstore/sstore/tstore/istore: legacy arg order is
// (ptr, value); Venom's is [value, ptr] (alias.go's WriteLocation reads
// the offset from Operands[1]).
func (lw *Lowerer) convertStore(n *legacyir.Node, syms symbols) error {
	if len(n.Args) != 2 {
		return verrors.Structuref("lowering: %s expects 2 children, got %d", n.Value, len(n.Args))
	}
	ptr, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return err
	}
	val, err := lw.convertStmt(n.Args[1], syms)
	if err != nil {
		return err
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: n.Value, Operands: []ir.Operand{val, ptr}})
	return nil
}

// convertCopy handles mcopy/calldatacopy/codecopy/returndatacopy/
// extcodecopy, all shaped (dst, src, size[, addr]) in both the legacy tree
// and Venom's own convention (alias.go's WriteLocation reads dst from
// Operands[0]).
func (lw *Lowerer) convertCopy(n *legacyir.Node, syms symbols) error {
	operands := make([]ir.Operand, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return err
		}
		operands = append(operands, v)
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: n.Value, Operands: operands})
	return nil
}

func (lw *Lowerer) convertUnaryValue(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	if len(n.Args) != 1 {
		return nil, verrors.Structuref("lowering: %s expects 1 child, got %d", n.Value, len(n.Args))
	}
	v, err := lw.convertStmt(n.Args[0], syms)
	if err != nil {
		return nil, err
	}
	return lw.emit(n.Value, []ir.Operand{v}, true), nil
}

func (lw *Lowerer) convertTernary(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	if len(n.Args) != 3 {
		return nil, verrors.Structuref("lowering: %s expects 3 children, got %d", n.Value, len(n.Args))
	}
	operands := make([]ir.Operand, 0, 3)
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	return lw.emit(n.Value, operands, true), nil
}

// convertBinaryOrUnary handles every pass-through opcode: arithmetic,
// bitwise, comparison, hashing and environment reads. Operand count is
// whatever the legacy node's arity says (1 for unary reads/iszero/not, 2
// for the rest), with no reordering.
func (lw *Lowerer) convertBinaryOrUnary(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	operands := make([]ir.Operand, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	return lw.emit(n.Value, operands, true), nil
}

// convertInverseMapped lowers ne/le/sle/ge/sge (no direct EVM opcode) into
// their positive comparator plus an iszero, per vyper's
// INVERSE_MAPPED_IR_INSTRUCTIONS table.
func (lw *Lowerer) convertInverseMapped(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	base := inverseMapped[n.Value]
	operands := make([]ir.Operand, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	cmp := lw.emit(base, operands, true)
	return lw.emit("iszero", []ir.Operand{cmp}, true), nil
}

// convertCallLike lowers call/staticcall/delegatecall/create/create2:
// operand order follows the legacy node's own argument order with no
// attempt to model the exact EVM gas/value/addr calling convention byte
// for byte — the middle-end's passes only need correct dataflow (which
// operand is which), not a literal ABI encoding.
func (lw *Lowerer) convertCallLike(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	operands := make([]ir.Operand, 0, len(n.Args))
	for _, a := range n.Args {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	return lw.emit(n.Value, operands, true), nil
}

// convertInvoke lowers an internal function call: (invoke callee arg1..
// argN retbuf), matching the operand shape FuncInliner and the stack
// scheduler's invoke expansion both assume: [callee label, actuals...,
// return-buffer pointer].
func (lw *Lowerer) convertInvoke(n *legacyir.Node, syms symbols) (ir.Operand, error) {
	if len(n.Args) < 1 {
		return nil, verrors.Structuref("lowering: invoke expects at least a callee")
	}
	if !n.Args[0].IsSym() {
		return nil, verrors.Structuref("lowering: invoke's first child must be the callee symbol")
	}
	operands := make([]ir.Operand, 0, len(n.Args))
	operands = append(operands, ir.NewSymbolLabel(n.Args[0].Label))
	for _, a := range n.Args[1:] {
		v, err := lw.convertStmt(a, syms)
		if err != nil {
			return nil, err
		}
		operands = append(operands, v)
	}
	return lw.emit("invoke", operands, true), nil
}
