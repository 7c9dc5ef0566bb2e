// Package lowering implements the mechanical recursive walk from a
// legacyir.Node tree into a Venom ir.Context: a runtime function lowered
// from the deploy root's runtime subtree plus a synthesized deploy
// function, one basic block per control-flow join,
// and a fresh SSA-shaped (pre-MakeSSA) variable per node that produces a
// value. The walk itself performs no optimization; MakeSSA and the rest of
// the pass pipeline run afterward.
package lowering

import (
	"fmt"
	"math/big"

	"kanso/internal/legacyir"
	"kanso/internal/venom/ir"
	"kanso/internal/venom/verrors"
)

// inverseMapped mirrors vyper's INVERSE_MAPPED_IR_INSTRUCTIONS: legacy
// comparison spellings with no direct EVM opcode, rewritten to the opcode
// they're the negation of plus an iszero.
var inverseMapped = map[string]string{
	"ne": "eq", "le": "gt", "sle": "sgt", "ge": "lt", "sge": "slt",
}

// passThrough are legacy node names that map 1:1 onto a Venom opcode of the
// same name with no operand reordering.
var passThrough = map[string]struct{}{
	"add": {}, "sub": {}, "mul": {}, "div": {}, "sdiv": {}, "mod": {}, "smod": {},
	"exp": {}, "and": {}, "or": {}, "xor": {}, "not": {}, "shr": {}, "shl": {}, "sar": {},
	"signextend": {}, "lt": {}, "gt": {}, "slt": {}, "sgt": {}, "eq": {}, "iszero": {},
	"sha3": {}, "sha3_64": {},
	"chainid": {}, "basefee": {}, "timestamp": {}, "blockhash": {}, "caller": {},
	"selfbalance": {}, "calldatasize": {}, "callvalue": {}, "address": {}, "origin": {},
	"codesize": {}, "gas": {}, "gasprice": {}, "gaslimit": {}, "returndatasize": {},
	"coinbase": {}, "number": {}, "calldataload": {}, "extcodesize": {}, "extcodehash": {},
	"balance": {},
}

// symbols is the lowering-time name environment: "with" binds a legacy
// symbol to whatever Venom operand its value lowered to. Copied (not
// mutated) at scope entry so a shadowing inner "with" cannot leak out.
type symbols map[string]ir.Operand

// Lowerer holds the state threaded through one legacyir.Node -> ir.Context
// walk: the context being built, the function/block currently being
// appended to, and counters for synthesizing block labels.
type Lowerer struct {
	ctx      *ir.Context
	fn       *ir.Function
	block    *ir.BasicBlock
	blockNum int

	// scratchOffset is a simple bump allocator over free memory for
	// alloca slots minted during lowering (e.g. a repeat loop's induction
	// variable); Mem2Var promotes most of these away, and whatever
	// survives is what the stack scheduler's alloca expansion reads back
	// as a fixed literal offset.
	scratchOffset int64
}

// New creates a lowerer that will build ctx.
func New() *Lowerer {
	return &Lowerer{ctx: ir.NewContext()}
}

// Lower implements the entry contract (spec §6): root must be a "deploy"
// node with exactly three children (constructor memory size, the runtime
// subtree, and an immutables-length literal). Produces one context holding
// a "deploy" function (the constructor body) and a "runtime" function.
func Lower(root *legacyir.Node) (*ir.Context, error) {
	if root.Value != "deploy" || len(root.Args) != 3 {
		return nil, verrors.Unsupportedf("lowering: root must be a deploy node with 3 children, got %q/%d", root.Value, len(root.Args))
	}
	lw := New()

	memSize, ok := intLiteral(root.Args[0])
	if !ok {
		return nil, verrors.Structuref("lowering: deploy child 0 (constructor memory size) must be a literal")
	}
	immutablesLen, ok := intLiteral(root.Args[2])
	if !ok {
		return nil, verrors.Structuref("lowering: deploy child 2 (immutables length) must be a literal")
	}
	lw.ctx.ConstructorMemorySize = &memSize
	lw.ctx.ImmutablesLen = &immutablesLen

	// Only args[1] is an executable subtree; args[0] and args[2] are the
	// two plain integers the front-end attaches to the deploy node itself
	// (mirrors ir_node_to_venom.py's "deploy" handler, which stashes them
	// on the context and returns immediately without recursing).
	runtimeFn := ir.NewFunction("runtime", lw.ctx)
	lw.ctx.AddFunction(runtimeFn)
	lw.fn = runtimeFn
	lw.block = runtimeFn.Entry
	lw.scratchOffset = 0
	if _, err := lw.convertStmt(root.Args[1], symbols{}); err != nil {
		return nil, err
	}
	lw.terminateFallthrough("stop")

	// The constructor body itself isn't part of the entry contract's tree
	// (there is no third executable subtree to lower); synthesize the
	// standard copy-runtime-and-return init sequence. The runtime blob is
	// registered as a data-segment symbol; its length is referenced by the
	// symbol runtime_code_len. Both are resolved at link time.
	runtimeLabel := ir.NewSymbolLabel("runtime_code")
	runtimeLenLabel := ir.NewSymbolLabel("runtime_code_len")
	lw.ctx.Data = append(lw.ctx.Data, &ir.Instruction{
		Opcode:   "dbytes",
		Operands: []ir.Operand{runtimeLabel},
	})

	deployFn := ir.NewFunction("deploy", lw.ctx)
	lw.ctx.AddFunction(deployFn)
	lw.fn = deployFn
	lw.block = deployFn.Entry
	lw.scratchOffset = 0
	dst := ir.NewLiteral(0)
	lw.block.AppendInstruction(&ir.Instruction{
		Opcode:   "dloadbytes",
		Operands: []ir.Operand{dst, runtimeLabel, runtimeLenLabel},
	})
	lw.block.AppendInstruction(&ir.Instruction{
		Opcode:   "return",
		Operands: []ir.Operand{runtimeLenLabel, dst},
	})

	return lw.ctx, nil
}

// terminateFallthrough appends op as a terminator if the current block
// isn't already terminated (a legacy subtree that falls off the end
// without an explicit return needs an implicit stop, mirroring what the
// front-end's own fallthrough handling does).
func (lw *Lowerer) terminateFallthrough(op string) {
	if lw.block.IsTerminated() {
		return
	}
	lw.block.AppendInstruction(&ir.Instruction{Opcode: op})
}

// newBlock mints and appends a fresh block to the current function.
func (lw *Lowerer) newBlock(hint string) *ir.BasicBlock {
	lw.blockNum++
	b := ir.NewBasicBlock(fmt.Sprintf("%s.%s%d", lw.fn.Name, hint, lw.blockNum))
	lw.fn.AppendBlock(b)
	return b
}

func (lw *Lowerer) emit(opcode string, operands []ir.Operand, hasOutput bool) *ir.Variable {
	inst := &ir.Instruction{Opcode: opcode, Operands: operands}
	if hasOutput {
		inst.Output = lw.fn.NextVariable()
	}
	lw.block.AppendInstruction(inst)
	return inst.Output
}

// allocaWord reserves one fresh 32-byte scratch slot in the current
// function's frame.
func (lw *Lowerer) allocaWord() *ir.Variable {
	offset := lw.scratchOffset
	lw.scratchOffset += 32
	return lw.emit("alloca", []ir.Operand{ir.NewLiteral(offset)}, true)
}

func bigFromDecimal(decimal string) (*big.Int, bool) {
	return new(big.Int).SetString(decimal, 10)
}

func bigZeroValue() *big.Int { return big.NewInt(0) }

func intLiteral(n *legacyir.Node) (int, bool) {
	if !n.IsLit() {
		return 0, false
	}
	v, ok := new(big.Int).SetString(n.Lit.Decimal, 10)
	if !ok {
		return 0, false
	}
	return int(v.Int64()), true
}

