package reachability

import (
	"log/slog"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// Report holds the three verdict name lists, one internal class name per
// entry, in scope order. Building a report is a pure read over final
// state; writing it out belongs to the caller.
type Report struct {
	CantDelete []string
	CantRename []string
	MustKeep   []string
}

// Section pairs a conventional report-file suffix with its lines.
type Section struct {
	Suffix string
	Lines  []string
}

// BuildReport projects the final reachability state of every class into
// the three output lists.
func BuildReport(p *dexmodel.Program, t *Table) *Report {
	slog.Debug("reporting reachable classes", "classes", len(p.Classes))
	r := &Report{}
	for _, cls := range p.Classes {
		st := t.State(cls)
		if !st.CanDelete() {
			r.CantDelete = append(r.CantDelete, cls.Name)
		}
		if !st.CanRename() {
			r.CantRename = append(r.CantRename, cls.Name)
		}
		if st.IsSeed() {
			r.MustKeep = append(r.MustKeep, cls.Name)
		}
	}
	return r
}

// Sections returns the lists with their conventional file suffixes, in
// a fixed order.
func (r *Report) Sections() []Section {
	return []Section{
		{Suffix: ".cant_delete", Lines: r.CantDelete},
		{Suffix: ".cant_rename", Lines: r.CantRename},
		{Suffix: ".must_keep", Lines: r.MustKeep},
	}
}
