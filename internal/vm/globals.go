package vm

import "github.com/dolthub/swiss"

type globalEntry struct {
	name    string
	value   Value
	isConst bool
}

// Globals is the VM's global binding table: an ordered entry list with a
// swiss-map index by name. Iteration order is definition order.
type Globals struct {
	entries []globalEntry
	index   *swiss.Map[string, int]
}

// NewGlobals creates an empty table.
func NewGlobals() *Globals {
	return &Globals{index: swiss.NewMap[string, int](64)}
}

// Define binds name, overwriting an existing non-const binding.
func (g *Globals) Define(name string, v Value, isConst bool) error {
	if i, ok := g.index.Get(name); ok {
		if g.entries[i].isConst {
			return errConstReassign(name)
		}
		g.entries[i].value = v
		g.entries[i].isConst = isConst
		return nil
	}
	g.index.Put(name, len(g.entries))
	g.entries = append(g.entries, globalEntry{name: name, value: v, isConst: isConst})
	return nil
}

// Get looks up name.
func (g *Globals) Get(name string) (Value, bool) {
	if i, ok := g.index.Get(name); ok {
		return g.entries[i].value, true
	}
	return NullVal(), false
}

// Set assigns to an existing binding.
func (g *Globals) Set(name string, v Value) error {
	i, ok := g.index.Get(name)
	if !ok {
		return errUndefinedVariable(name)
	}
	if g.entries[i].isConst {
		return errConstReassign(name)
	}
	g.entries[i].value = v
	return nil
}

// Has reports whether name is bound.
func (g *Globals) Has(name string) bool {
	_, ok := g.index.Get(name)
	return ok
}

// Len returns the number of bindings.
func (g *Globals) Len() int { return len(g.entries) }
