package passes

import "math/big"

// word256 helpers: every Venom value is a 256-bit unsigned word with
// wrap-around arithmetic, matching EVM stack semantics.

var wordMod = new(big.Int).Lsh(big.NewInt(1), 256)
var wordMax = new(big.Int).Sub(wordMod, big.NewInt(1))
var signBit = new(big.Int).Lsh(big.NewInt(1), 255)

func wrap(v *big.Int) *big.Int {
	r := new(big.Int).Mod(v, wordMod)
	if r.Sign() < 0 {
		r.Add(r, wordMod)
	}
	return r
}

// toSigned interprets an unsigned 256-bit word as a two's-complement
// signed value.
func toSigned(v *big.Int) *big.Int {
	if v.Cmp(signBit) < 0 {
		return new(big.Int).Set(v)
	}
	return new(big.Int).Sub(v, wordMod)
}

func fromSigned(v *big.Int) *big.Int { return wrap(v) }

func boolWord(b bool) *big.Int {
	if b {
		return big.NewInt(1)
	}
	return big.NewInt(0)
}

// evalFn evaluates a pure opcode over its literal operands in *creation*
// order (operands[0] is the first-written operand, matching how
// instructions are built during lowering; this is the opposite of the
// print/stack order, which is reversed for right-to-left stack
// convention). Returns (result, ok); ok is false for opcodes this
// evaluator doesn't know how to fold (keeps SCCP conservative rather than
// wrong). A division/modulo by zero folds to 0, as the EVM defines it.
type evalFn func(args []*big.Int) (*big.Int, bool)

var pureEvaluators = map[string]evalFn{
	"add": binOp(func(a, b *big.Int) *big.Int { return wrap(new(big.Int).Add(a, b)) }),
	"sub": binOp(func(a, b *big.Int) *big.Int { return wrap(new(big.Int).Sub(a, b)) }),
	"mul": binOp(func(a, b *big.Int) *big.Int { return wrap(new(big.Int).Mul(a, b)) }),
	"div": binOp(func(a, b *big.Int) *big.Int {
		if b.Sign() == 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Div(a, b)
	}),
	"sdiv": binOp(func(a, b *big.Int) *big.Int {
		sb := toSigned(b)
		if sb.Sign() == 0 {
			return big.NewInt(0)
		}
		sa := toSigned(a)
		q := new(big.Int).Quo(sa, sb)
		return fromSigned(q)
	}),
	"mod": binOp(func(a, b *big.Int) *big.Int {
		if b.Sign() == 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Mod(a, b)
	}),
	"smod": binOp(func(a, b *big.Int) *big.Int {
		sb := toSigned(b)
		if sb.Sign() == 0 {
			return big.NewInt(0)
		}
		sa := toSigned(a)
		r := new(big.Int).Rem(sa, sb)
		return fromSigned(r)
	}),
	"exp": binOp(func(a, b *big.Int) *big.Int { return new(big.Int).Exp(a, b, wordMod) }),
	"and": binOp(func(a, b *big.Int) *big.Int { return new(big.Int).And(a, b) }),
	"or":  binOp(func(a, b *big.Int) *big.Int { return new(big.Int).Or(a, b) }),
	"xor": binOp(func(a, b *big.Int) *big.Int { return new(big.Int).Xor(a, b) }),
	"shl": binOp(func(shift, val *big.Int) *big.Int {
		if shift.Cmp(big.NewInt(256)) >= 0 {
			return big.NewInt(0)
		}
		return wrap(new(big.Int).Lsh(val, uint(shift.Uint64())))
	}),
	"shr": binOp(func(shift, val *big.Int) *big.Int {
		if shift.Cmp(big.NewInt(256)) >= 0 {
			return big.NewInt(0)
		}
		return new(big.Int).Rsh(val, uint(shift.Uint64()))
	}),
	"sar": binOp(func(shift, val *big.Int) *big.Int {
		sv := toSigned(val)
		if shift.Cmp(big.NewInt(256)) >= 0 {
			if sv.Sign() < 0 {
				return new(big.Int).Set(wordMax)
			}
			return big.NewInt(0)
		}
		return fromSigned(new(big.Int).Rsh(sv, uint(shift.Uint64())))
	}),
	"signextend": binOp(func(b, x *big.Int) *big.Int {
		if b.Cmp(big.NewInt(31)) >= 0 {
			return new(big.Int).Set(x)
		}
		bitPos := uint(b.Uint64())*8 + 7
		testBit := new(big.Int).Lsh(big.NewInt(1), bitPos)
		if new(big.Int).And(x, testBit).Sign() != 0 {
			mask := new(big.Int).Lsh(big.NewInt(1), bitPos+1)
			mask.Sub(mask, big.NewInt(1))
			return wrap(new(big.Int).Or(x, new(big.Int).Not(mask)))
		}
		mask := new(big.Int).Lsh(big.NewInt(1), bitPos+1)
		mask.Sub(mask, big.NewInt(1))
		return new(big.Int).And(x, mask)
	}),
	"lt":  binOp(func(a, b *big.Int) *big.Int { return boolWord(a.Cmp(b) < 0) }),
	"gt":  binOp(func(a, b *big.Int) *big.Int { return boolWord(a.Cmp(b) > 0) }),
	"slt": binOp(func(a, b *big.Int) *big.Int { return boolWord(toSigned(a).Cmp(toSigned(b)) < 0) }),
	"sgt": binOp(func(a, b *big.Int) *big.Int { return boolWord(toSigned(a).Cmp(toSigned(b)) > 0) }),
	"eq":  binOp(func(a, b *big.Int) *big.Int { return boolWord(a.Cmp(b) == 0) }),
	"addmod": func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 3 {
			return nil, false
		}
		if args[2].Sign() == 0 {
			return big.NewInt(0), true
		}
		return new(big.Int).Mod(new(big.Int).Add(args[0], args[1]), args[2]), true
	},
	"mulmod": func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 3 {
			return nil, false
		}
		if args[2].Sign() == 0 {
			return big.NewInt(0), true
		}
		return new(big.Int).Mod(new(big.Int).Mul(args[0], args[1]), args[2]), true
	},
	"iszero": func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 1 {
			return nil, false
		}
		return boolWord(args[0].Sign() == 0), true
	},
	"not": func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 1 {
			return nil, false
		}
		return wrap(new(big.Int).Not(args[0])), true
	},
	"select": func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 3 {
			return nil, false
		}
		if args[0].Sign() != 0 {
			return new(big.Int).Set(args[1]), true
		}
		return new(big.Int).Set(args[2]), true
	},
}

func binOp(f func(a, b *big.Int) *big.Int) evalFn {
	return func(args []*big.Int) (*big.Int, bool) {
		if len(args) != 2 {
			return nil, false
		}
		return f(args[0], args[1]), true
	}
}

// evalConst evaluates opcode over literal args in creation order; returns
// ok=false when the opcode isn't in the pure table (calls, memory/storage
// ops, anything with side effects) — SCCP only ever folds pure opcodes.
func evalConst(opcode string, args []*big.Int) (*big.Int, bool) {
	fn, ok := pureEvaluators[opcode]
	if !ok {
		return nil, false
	}
	return fn(args)
}
