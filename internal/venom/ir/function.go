package ir

import "fmt"

// Function is a Venom function: an ordered list of basic blocks (the first
// is the entry), with counters that allocate fresh variable names and
// fresh labels during construction and during passes (inlining, CFG
// splitting) that need to mint new names without colliding.
type Function struct {
	Name    string
	Context *Context

	Entry  *BasicBlock
	Blocks []*BasicBlock

	nextVar   int
	nextLabel int
}

// NewFunction creates a function with a single empty entry block.
func NewFunction(name string, ctx *Context) *Function {
	fn := &Function{Name: name, Context: ctx}
	entry := NewBasicBlock(name)
	entry.Function = fn
	fn.Entry = entry
	fn.Blocks = []*BasicBlock{entry}
	return fn
}

// NextVariable mints a fresh version-0 variable unique within this
// function.
func (f *Function) NextVariable() *Variable {
	f.nextVar++
	return NewVariable(fmt.Sprintf("%%%d", f.nextVar), 0)
}

// NextLabel mints a fresh non-symbol label unique within this function.
func (f *Function) NextLabel(hint string) *Label {
	f.nextLabel++
	return NewLabel(fmt.Sprintf("%s_%d", hint, f.nextLabel))
}

// AppendBlock adds bb to the function's block list, wiring its back-pointer.
func (f *Function) AppendBlock(bb *BasicBlock) {
	bb.Function = f
	f.Blocks = append(f.Blocks, bb)
}

// GetBlock looks up a block by label within this function.
func (f *Function) GetBlock(label string) *BasicBlock {
	for _, b := range f.Blocks {
		if b.Label == label {
			return b
		}
	}
	return nil
}

// RemoveBlocks drops every block in doomed from Blocks (identity match).
func (f *Function) RemoveBlocks(doomed map[*BasicBlock]struct{}) {
	kept := f.Blocks[:0:0]
	for _, b := range f.Blocks {
		if _, dead := doomed[b]; !dead {
			kept = append(kept, b)
		}
	}
	f.Blocks = kept
}

func (f *Function) String() string {
	s := fmt.Sprintf("function %s {\n", f.Name)
	for _, b := range f.Blocks {
		s += b.String()
	}
	return s + "}\n"
}
