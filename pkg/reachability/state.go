// Package reachability decides, for every entity of an analyzed program,
// whether later optimization passes may delete or rename it. Evidence from
// independent sources accumulates into monotone per-entity facts; the
// derived verdicts only ever tighten, never relax.
package reachability

import "sync/atomic"

// State holds the four monotone reachability facts of one entity. Facts
// are only ever set, never cleared, within and across analysis runs; each
// is an independently synchronized unit so concurrent markers setting
// different facts on the same entity cannot lose updates.
type State struct {
	typeReferenced atomic.Bool
	stringFromCode atomic.Bool
	stringExternal atomic.Bool
	seed           atomic.Bool
}

// MarkTypeReferenced records a direct use of the entity's type in code
// (cast, instantiation, type check, constant-class reference) or a
// keep-rule match. Idempotent.
func (s *State) MarkTypeReferenced() { s.typeReferenced.Store(true) }

// MarkStringReferenced records a reference to the entity by name: from
// code (reflection-style lookup) when fromCode is true, otherwise from an
// external source such as a manifest, layout, or native library. Idempotent.
func (s *State) MarkStringReferenced(fromCode bool) {
	if fromCode {
		s.stringFromCode.Store(true)
	} else {
		s.stringExternal.Store(true)
	}
}

// MarkSeedReferenced records that the entity appears on the external seed
// allowlist. Idempotent.
func (s *State) MarkSeedReferenced() { s.seed.Store(true) }

// CanDelete reports whether no evidence source protects the entity from
// deletion.
func (s *State) CanDelete() bool {
	return !(s.typeReferenced.Load() ||
		s.stringFromCode.Load() ||
		s.stringExternal.Load() ||
		s.seed.Load())
}

// CanRename reports whether the entity's name may be rewritten. Only
// externally visible name references and seeds pin the name: a name
// reference confined to code the optimizer also controls can be rewritten
// together with the rename.
func (s *State) CanRename() bool {
	return !(s.stringExternal.Load() || s.seed.Load())
}

// IsSeed reports whether the entity was protected by the seed allowlist.
func (s *State) IsSeed() bool { return s.seed.Load() }

// TypeReferenced reports the raw direct-use fact.
func (s *State) TypeReferenced() bool { return s.typeReferenced.Load() }

// StringReferenced reports the raw by-name fact for the given origin.
func (s *State) StringReferenced(fromCode bool) bool {
	if fromCode {
		return s.stringFromCode.Load()
	}
	return s.stringExternal.Load()
}
