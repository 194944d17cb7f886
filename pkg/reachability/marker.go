package reachability

import (
	"sync"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// Marker applies reachability marks to entities of one program. All mark
// operations resolve against the program graph; a name with no matching
// entity denotes a platform or third-party class and the operation is a
// silent no-op.
//
// Operations are serialized by a mutex so that a cascading mark is never
// observed half applied: readers either see none of a cascade or all of
// it. The facts themselves stay atomic, so the serialization is about
// cascade visibility, not fact integrity.
type Marker struct {
	program *dexmodel.Program
	table   *Table

	// CascadeMembers controls whether class-level direct and by-name
	// marks sweep over the class's declared methods and fields. The
	// sweep is a deliberate over-approximation: a finer per-member
	// liveness would only ever need to change this one policy point.
	CascadeMembers bool

	mu sync.Mutex
}

// NewMarker creates a marker over the program and its state table with
// member cascading enabled.
func NewMarker(p *dexmodel.Program, t *Table) *Marker {
	return &Marker{program: p, table: t, CascadeMembers: true}
}

// Table returns the state table the marker writes to.
func (mk *Marker) Table() *Table { return mk.table }

// MarkDirect records that cls is used directly in code (check-cast,
// new-instance, instance-of, const-class) or matched a keep rule. With
// cascading enabled every method and field declared on cls is marked too.
func (mk *Marker) MarkDirect(cls *dexmodel.Class) {
	if cls == nil {
		return
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.table.State(cls).MarkTypeReferenced()
	if !mk.CascadeMembers {
		return
	}
	for _, m := range cls.Methods {
		mk.table.State(m).MarkTypeReferenced()
	}
	for _, f := range cls.Fields {
		mk.table.State(f).MarkTypeReferenced()
	}
}

// MarkByName records that cls is referenced by name. fromCode
// distinguishes reflection-style lookups inside the analyzed code from
// references in manifests, layouts, or native libraries. Cascades like
// MarkDirect.
func (mk *Marker) MarkByName(cls *dexmodel.Class, fromCode bool) {
	if cls == nil {
		return
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.table.State(cls).MarkStringReferenced(fromCode)
	if !mk.CascadeMembers {
		return
	}
	for _, m := range cls.Methods {
		mk.table.State(m).MarkStringReferenced(fromCode)
	}
	for _, f := range cls.Fields {
		mk.table.State(f).MarkStringReferenced(fromCode)
	}
}

// MarkSeed records that cls appears on the seed allowlist. Seed marks
// never cascade: the seed protects the class's identity, not its
// unrelated members.
func (mk *Marker) MarkSeed(cls *dexmodel.Class) {
	if cls == nil {
		return
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.table.State(cls).MarkSeedReferenced()
}

// MarkEntityDirect sets the direct-use fact on exactly one entity,
// without sweeping a class's members. Used for single annotated members
// and other cases where only the named entity must be protected.
func (mk *Marker) MarkEntityDirect(e dexmodel.Entity) {
	if e == nil {
		return
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.table.State(e).MarkTypeReferenced()
}

// MarkEntityByName sets the by-name fact on exactly one entity, without
// sweeping a class's members.
func (mk *Marker) MarkEntityByName(e dexmodel.Entity, fromCode bool) {
	if e == nil {
		return
	}
	mk.mu.Lock()
	defer mk.mu.Unlock()
	mk.table.State(e).MarkStringReferenced(fromCode)
}

// MarkNameDirect resolves an internal descriptor and marks the class
// directly. Returns false when the name is outside the program.
func (mk *Marker) MarkNameDirect(descriptor string) bool {
	cls, ok := mk.program.Resolve(descriptor)
	if !ok {
		return false
	}
	mk.MarkDirect(cls)
	return true
}

// MarkNameByName resolves an internal descriptor and marks the class by
// name. Returns false when the name is outside the program.
func (mk *Marker) MarkNameByName(descriptor string, fromCode bool) bool {
	cls, ok := mk.program.Resolve(descriptor)
	if !ok {
		return false
	}
	mk.MarkByName(cls, fromCode)
	return true
}

// MarkNameSeed resolves an internal descriptor and marks the class as a
// seed. Returns false when the name is outside the program.
func (mk *Marker) MarkNameSeed(descriptor string) bool {
	cls, ok := mk.program.Resolve(descriptor)
	if !ok {
		return false
	}
	mk.MarkSeed(cls)
	return true
}
