package reachability

import (
	"github.com/715d/reachmark/pkg/dexmodel"
)

// Table is the side record of reachability state, one State per program
// entity, created together with the graph and living exactly as long as
// it. Keeping the states in one table instead of fields on graph nodes
// makes ownership explicit and the whole state centrally inspectable.
//
// The table is built once, before any marking; marking only flips atomic
// facts inside existing States, so concurrent scans may look states up
// freely.
type Table struct {
	states map[dexmodel.Entity]*State
}

// NewTable allocates a state for every class, method, and field of the
// program.
func NewTable(p *dexmodel.Program) *Table {
	t := &Table{states: make(map[dexmodel.Entity]*State)}
	for _, c := range p.Classes {
		t.states[c] = &State{}
		for _, m := range c.Methods {
			t.states[m] = &State{}
		}
		for _, f := range c.Fields {
			t.states[f] = &State{}
		}
	}
	return t
}

// State returns the state record of e. Entities outside the table (never
// the case for entities of the program the table was built from) yield nil.
func (t *Table) State(e dexmodel.Entity) *State {
	return t.states[e]
}

// Len returns the number of tracked entities.
func (t *Table) Len() int { return len(t.states) }
