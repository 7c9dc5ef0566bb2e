// Package asm implements the stack scheduler: the walk that turns
// scheduled Venom instructions into a flat EVM assembly item list, tracking
// a virtual stack map of which variable occupies which depth so that
// PUSH/DUP/SWAP/POP can be synthesized around each opcode.
package asm

import (
	"math/big"
	"strconv"
)

// ItemKind distinguishes the four shapes an assembly element can take.
type ItemKind int

const (
	// ItemMnemonic is a bare opcode mnemonic ("ADD", "JUMPDEST", ...).
	ItemMnemonic ItemKind = iota
	// ItemPush is a PUSH* mnemonic immediately followed, in the same Item,
	// by its literal payload.
	ItemPush
	// ItemPushLabel is a PUSH immediately followed by a symbolic label
	// token, resolved by the linker.
	ItemPushLabel
	// ItemLabel defines a jump destination in the output (paired with a
	// JUMPDEST mnemonic emitted right after it).
	ItemLabel
)

// Item is one element of the flat assembly list described in the external
// interface: a mnemonic string, an integer literal payload following a
// PUSH*, or a symbolic label token.
type Item struct {
	Kind     ItemKind
	Mnemonic string
	Value    *big.Int
	Label    string
}

func mnemonicItem(m string) Item { return Item{Kind: ItemMnemonic, Mnemonic: m} }

func pushItem(v *big.Int) Item {
	return Item{Kind: ItemPush, Mnemonic: pushMnemonicFor(v), Value: v}
}

func pushLabelItem(label string) Item {
	return Item{Kind: ItemPushLabel, Mnemonic: "PUSH", Label: label}
}

func labelItem(label string) Item { return Item{Kind: ItemLabel, Label: label} }

// pushMnemonicFor picks the narrowest PUSH1..PUSH32 that fits v, matching
// the EVM's byte-width-tagged push family.
func pushMnemonicFor(v *big.Int) string {
	n := byteLen(v)
	if n == 0 {
		n = 1
	}
	return "PUSH" + strconv.Itoa(n)
}

func byteLen(v *big.Int) int {
	bits := v.BitLen()
	return (bits + 7) / 8
}

func bigZero() *big.Int      { return big.NewInt(0) }
func bigThirtyTwo() *big.Int { return big.NewInt(32) }
func bigSixtyFour() *big.Int { return big.NewInt(64) }
