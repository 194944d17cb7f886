package reachability

import (
	"log/slog"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/715d/reachmark/pkg/dexmodel"
)

// RecomputeFromCode rescans all method bodies in scope for methods
// declared platform-native and re-asserts the by-name (from code) mark
// on their owning classes. A native method is a fixed cross-boundary
// contract: its owner must stay resolvable at runtime no matter what the
// optimizer removes elsewhere.
//
// Call this after every program-mutating pass. Facts derived from code
// that has since been deleted are not retracted; the state may go stale
// but only ever over-approximates protection.
func RecomputeFromCode(p *dexmodel.Program, mk *Marker) {
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())

	for _, cls := range p.Classes {
		g.Go(func() error {
			for _, m := range cls.Methods {
				if m.IsNative() {
					slog.Debug("native method owner kept", "class", cls.Name, "method", m.Name)
					mk.MarkByName(cls, true)
				}
			}
			return nil
		})
	}
	_ = g.Wait()
}
